package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"time"

	"github.com/fjod/go_cart/storefront/internal/addressbook"
	"github.com/fjod/go_cart/storefront/internal/cache"
	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/fjod/go_cart/storefront/internal/metrics"
	"github.com/fjod/go_cart/storefront/internal/repository"
	"github.com/fjod/go_cart/storefront/internal/storage"
	"github.com/fjod/go_cart/storefront/pkg/logger"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type ImageUpload struct {
	Name        string
	ContentType string
	Body        io.Reader
}

// ReturnInput is a return or exchange request as submitted by the customer.
// AddressID names a saved address and is only used when the draft carries
// no inline pickup address.
type ReturnInput struct {
	Draft     domain.ReturnDraft
	AddressID string
	Images    []ImageUpload
}

type ReturnService struct {
	repo    repository.OrderRepository
	cache   cache.OrderCache
	images  storage.ImageStore
	book    addressbook.Book
	metrics *metrics.Metrics
	log     zerolog.Logger
}

func NewReturnService(
	repo repository.OrderRepository,
	c cache.OrderCache,
	images storage.ImageStore,
	book addressbook.Book,
	m *metrics.Metrics,
	log zerolog.Logger,
) *ReturnService {
	return &ReturnService{
		repo:    repo,
		cache:   c,
		images:  images,
		book:    book,
		metrics: m,
		log:     logger.Component(log, "return-service"),
	}
}

// CreateReturnRequest validates the input without touching storage, checks
// the order item is still returnable, then stores the photos and the request.
func (s *ReturnService) CreateReturnRequest(ctx context.Context, actor Actor, in ReturnInput) (*domain.ReturnRequest, error) {
	if err := actor.requireUser(); err != nil {
		return nil, err
	}
	if len(in.Images) > storage.MaxImages {
		return nil, storage.ErrTooManyImages
	}

	draft := in.Draft
	if draft.PickupAddress.IsZero() && in.AddressID != "" {
		saved, err := s.book.Get(ctx, actor.UserID, in.AddressID)
		if errors.Is(err, addressbook.ErrAddressNotFound) || errors.Is(err, addressbook.ErrInvalidID) {
			return nil, &domain.ValidationError{Field: "address_id", Code: "not_found", Message: "saved address not found"}
		}
		if err != nil {
			return nil, err
		}
		draft.PickupAddress = saved.Address
	}
	draft.ImageCount = len(in.Images)
	if err := draft.Validate(); err != nil {
		return nil, err
	}

	order, err := s.repo.GetOrderByID(ctx, draft.OrderID)
	if err != nil {
		return nil, err
	}
	if !order.OwnedBy(actor.UserID) {
		return nil, ErrForbidden
	}
	if _, ok := order.Item(draft.ProductID); !ok {
		return nil, &domain.ValidationError{Field: "product_id", Code: "not_in_order", Message: "product is not part of this order"}
	}
	existing, err := s.repo.ListReturnRequestsByOrder(ctx, order.ID)
	if err != nil {
		return nil, err
	}
	if !domain.CanReturnItem(order, existing, draft.ProductID) {
		return nil, domain.ErrReturnNotEligible
	}

	ids := make([]string, 0, len(in.Images))
	for _, img := range in.Images {
		id, err := s.images.Put(ctx, img.Name, img.ContentType, img.Body)
		if err != nil {
			s.discardImages(ids)
			return nil, fmt.Errorf("store image %q: %w", img.Name, err)
		}
		ids = append(ids, id)
	}

	rr := &domain.ReturnRequest{
		ID:            uuid.New(),
		OrderID:       order.ID,
		UserID:        actor.UserID,
		ProductID:     draft.ProductID,
		Type:          draft.Type,
		Reason:        draft.Reason,
		NewSize:       draft.NewSize,
		NewColor:      draft.NewColor,
		PickupAddress: draft.PickupAddress,
		Images:        ids,
		Status:        domain.ReturnStatusPending,
	}
	if err := s.repo.CreateReturnRequest(ctx, rr); err != nil {
		s.discardImages(ids)
		return nil, err
	}
	s.invalidate(order.ID)
	s.metrics.ReturnRequests.WithLabelValues(string(rr.Type)).Inc()

	log := logger.FromContext(ctx, s.log)
	log.Info().
		Str(logger.ORDER, order.ID.String()).
		Str(logger.USER, actor.UserID).
		Int64("product_id", rr.ProductID).
		Str("type", string(rr.Type)).
		Str("reason", string(rr.Reason)).
		Int("images", len(ids)).
		Msg("return request created")
	return rr, nil
}

func (s *ReturnService) ListMine(ctx context.Context, actor Actor) ([]domain.ReturnRequest, error) {
	if err := actor.requireUser(); err != nil {
		return nil, err
	}
	return s.repo.ListReturnRequestsByUser(ctx, actor.UserID)
}

// ListAll lists every request for admins; an empty status means all of them.
func (s *ReturnService) ListAll(ctx context.Context, actor Actor, status string) ([]domain.ReturnRequest, error) {
	if err := actor.requireAdmin(); err != nil {
		return nil, err
	}
	var filter domain.ReturnStatus
	if status != "" {
		parsed, ok := domain.ParseReturnStatus(status)
		if !ok {
			return nil, &domain.ValidationError{Field: "status", Code: "invalid_status", Message: fmt.Sprintf("unknown return status %q", status)}
		}
		filter = parsed
	}
	return s.repo.ListReturnRequests(ctx, filter)
}

// Decide approves or rejects a pending request. The order status is left
// alone; marking the order returned is a separate admin action.
func (s *ReturnService) Decide(ctx context.Context, actor Actor, id uuid.UUID, status, note string) (*domain.ReturnRequest, error) {
	if err := actor.requireAdmin(); err != nil {
		return nil, err
	}
	next, ok := domain.ParseReturnStatus(status)
	if !ok || !next.IsFinal() {
		return nil, &domain.ValidationError{Field: "status", Code: "invalid_status", Message: "must be approved or rejected"}
	}

	rr, err := s.repo.GetReturnRequest(ctx, id)
	if err != nil {
		return nil, err
	}
	if !rr.Status.CanTransitionTo(next) {
		s.metrics.Action("return_decide", domain.ErrRequestAlreadyFinal)
		return nil, domain.ErrRequestAlreadyFinal
	}

	rr.Status = next
	rr.AdminNote = note
	err = s.repo.UpdateReturnRequest(ctx, rr)
	s.metrics.Action("return_decide", err)
	if err != nil {
		return nil, err
	}
	s.invalidate(rr.OrderID)

	log := logger.FromContext(ctx, s.log)
	log.Info().
		Str(logger.ORDER, rr.OrderID.String()).
		Str("return_request_id", rr.ID.String()).
		Str("status", string(rr.Status)).
		Msg("return request decided")
	return rr, nil
}

// OpenImage streams one photo of a request to its owner or an admin.
func (s *ReturnService) OpenImage(ctx context.Context, actor Actor, requestID uuid.UUID, imageID string) (io.ReadCloser, string, error) {
	if err := actor.requireUser(); err != nil {
		return nil, "", err
	}
	rr, err := s.repo.GetReturnRequest(ctx, requestID)
	if err != nil {
		return nil, "", err
	}
	if !actor.Admin && rr.UserID != actor.UserID {
		return nil, "", ErrForbidden
	}
	if !slices.Contains(rr.Images, imageID) {
		return nil, "", storage.ErrImageNotFound
	}
	return s.images.Open(ctx, imageID)
}

// discardImages removes photos stored for a request that was never saved.
func (s *ReturnService) discardImages(ids []string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, id := range ids {
		if err := s.images.Delete(ctx, id); err != nil {
			s.log.Warn().Err(err).Str("image_id", id).Msg("failed to discard image")
		}
	}
}

func (s *ReturnService) invalidate(orderID uuid.UUID) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.cache.Delete(ctx, orderID); err != nil {
		s.log.Warn().Err(err).Str(logger.ORDER, orderID.String()).Msg("cache invalidate error")
	}
}
