package addressbook

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fjod/go_cart/storefront/internal/domain"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type MongoBook struct {
	collection *mongo.Collection
}

func NewMongoBook(db *mongo.Database) *MongoBook {
	return &MongoBook{collection: db.Collection("addresses")}
}

func (m *MongoBook) CreateIndexes(ctx context.Context) error {
	_, err := m.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "is_default", Value: 1}},
	})
	if err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}
	return nil
}

// Create stores addr for userID. The first address a user saves becomes the default.
func (m *MongoBook) Create(ctx context.Context, userID string, addr domain.Address) (*SavedAddress, error) {
	if err := addr.Validate(); err != nil {
		return nil, err
	}

	count, err := m.collection.CountDocuments(ctx, bson.M{"user_id": userID})
	if err != nil {
		return nil, fmt.Errorf("failed to count addresses: %w", err)
	}

	saved := &SavedAddress{
		ID:        primitive.NewObjectID(),
		UserID:    userID,
		Address:   addr,
		IsDefault: count == 0,
		CreatedAt: time.Now().UTC().Truncate(time.Millisecond),
	}
	if _, err := m.collection.InsertOne(ctx, saved); err != nil {
		return nil, fmt.Errorf("failed to insert address: %w", err)
	}
	return saved, nil
}

func (m *MongoBook) List(ctx context.Context, userID string) ([]SavedAddress, error) {
	opts := options.Find().SetSort(bson.D{{Key: "_id", Value: 1}})
	cursor, err := m.collection.Find(ctx, bson.M{"user_id": userID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find addresses: %w", err)
	}
	defer cursor.Close(ctx)

	addresses := make([]SavedAddress, 0)
	for cursor.Next(ctx) {
		var a SavedAddress
		if err := cursor.Decode(&a); err != nil {
			return nil, fmt.Errorf("failed to decode address: %w", err)
		}
		addresses = append(addresses, a)
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("cursor error: %w", err)
	}
	return addresses, nil
}

func (m *MongoBook) Get(ctx context.Context, userID, id string) (*SavedAddress, error) {
	oid, err := parseID(id)
	if err != nil {
		return nil, err
	}

	var a SavedAddress
	err = m.collection.FindOne(ctx, bson.M{"_id": oid, "user_id": userID}).Decode(&a)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrAddressNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get address: %w", err)
	}
	return &a, nil
}

func (m *MongoBook) Delete(ctx context.Context, userID, id string) error {
	oid, err := parseID(id)
	if err != nil {
		return err
	}

	var removed SavedAddress
	err = m.collection.FindOneAndDelete(ctx, bson.M{"_id": oid, "user_id": userID}).Decode(&removed)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return ErrAddressNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to delete address: %w", err)
	}
	if !removed.IsDefault {
		return nil
	}

	// The oldest remaining address takes over as default.
	opts := options.FindOneAndUpdate().SetSort(bson.D{{Key: "_id", Value: 1}})
	err = m.collection.FindOneAndUpdate(ctx,
		bson.M{"user_id": userID},
		bson.M{"$set": bson.M{"is_default": true}}, opts).Err()
	if err != nil && !errors.Is(err, mongo.ErrNoDocuments) {
		return fmt.Errorf("failed to promote default address: %w", err)
	}
	return nil
}

func (m *MongoBook) SetDefault(ctx context.Context, userID, id string) error {
	oid, err := parseID(id)
	if err != nil {
		return err
	}

	result, err := m.collection.UpdateOne(ctx,
		bson.M{"_id": oid, "user_id": userID},
		bson.M{"$set": bson.M{"is_default": true}})
	if err != nil {
		return fmt.Errorf("failed to set default address: %w", err)
	}
	if result.MatchedCount == 0 {
		return ErrAddressNotFound
	}

	_, err = m.collection.UpdateMany(ctx,
		bson.M{"user_id": userID, "_id": bson.M{"$ne": oid}},
		bson.M{"$set": bson.M{"is_default": false}})
	if err != nil {
		return fmt.Errorf("failed to clear previous default: %w", err)
	}
	return nil
}
