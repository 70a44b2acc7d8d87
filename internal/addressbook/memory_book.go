package addressbook

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/fjod/go_cart/storefront/internal/domain"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MemoryBook is the in-process Book used with STORAGE_DRIVER=memory.
type MemoryBook struct {
	mu        sync.RWMutex
	addresses map[primitive.ObjectID]SavedAddress
}

func NewMemoryBook() *MemoryBook {
	return &MemoryBook{addresses: make(map[primitive.ObjectID]SavedAddress)}
}

func (b *MemoryBook) Create(_ context.Context, userID string, addr domain.Address) (*SavedAddress, error) {
	if err := addr.Validate(); err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	first := true
	for _, a := range b.addresses {
		if a.UserID == userID {
			first = false
			break
		}
	}
	saved := SavedAddress{
		ID:        primitive.NewObjectID(),
		UserID:    userID,
		Address:   addr,
		IsDefault: first,
		CreatedAt: time.Now().UTC(),
	}
	b.addresses[saved.ID] = saved
	return &saved, nil
}

func (b *MemoryBook) List(_ context.Context, userID string) ([]SavedAddress, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]SavedAddress, 0)
	for _, a := range b.addresses {
		if a.UserID == userID {
			out = append(out, a)
		}
	}
	// ObjectIDs grow with creation time.
	sort.Slice(out, func(i, j int) bool { return out[i].ID.Hex() < out[j].ID.Hex() })
	return out, nil
}

func (b *MemoryBook) Get(_ context.Context, userID, id string) (*SavedAddress, error) {
	oid, err := parseID(id)
	if err != nil {
		return nil, err
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	a, ok := b.addresses[oid]
	if !ok || a.UserID != userID {
		return nil, ErrAddressNotFound
	}
	return &a, nil
}

func (b *MemoryBook) Delete(_ context.Context, userID, id string) error {
	oid, err := parseID(id)
	if err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	a, ok := b.addresses[oid]
	if !ok || a.UserID != userID {
		return ErrAddressNotFound
	}
	delete(b.addresses, oid)
	if a.IsDefault {
		b.promoteOldest(userID)
	}
	return nil
}

// promoteOldest makes the user's earliest saved address the default.
func (b *MemoryBook) promoteOldest(userID string) {
	var oldest *SavedAddress
	for _, a := range b.addresses {
		if a.UserID != userID {
			continue
		}
		if oldest == nil || a.ID.Hex() < oldest.ID.Hex() {
			cp := a
			oldest = &cp
		}
	}
	if oldest != nil {
		oldest.IsDefault = true
		b.addresses[oldest.ID] = *oldest
	}
}

func (b *MemoryBook) SetDefault(_ context.Context, userID, id string) error {
	oid, err := parseID(id)
	if err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	target, ok := b.addresses[oid]
	if !ok || target.UserID != userID {
		return ErrAddressNotFound
	}
	for key, a := range b.addresses {
		if a.UserID == userID {
			a.IsDefault = key == oid
			b.addresses[key] = a
		}
	}
	return nil
}
