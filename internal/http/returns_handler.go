package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/fjod/go_cart/storefront/internal/service"
	"github.com/fjod/go_cart/storefront/internal/storage"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type ReturnService interface {
	CreateReturnRequest(ctx context.Context, actor service.Actor, in service.ReturnInput) (*domain.ReturnRequest, error)
	ListMine(ctx context.Context, actor service.Actor) ([]domain.ReturnRequest, error)
	ListAll(ctx context.Context, actor service.Actor, status string) ([]domain.ReturnRequest, error)
	Decide(ctx context.Context, actor service.Actor, id uuid.UUID, status, note string) (*domain.ReturnRequest, error)
	OpenImage(ctx context.Context, actor service.Actor, requestID uuid.UUID, imageID string) (io.ReadCloser, string, error)
}

type ReturnsHandler struct {
	returns       ReturnService
	maxUploadSize int64
	log           zerolog.Logger
}

func NewReturnsHandler(returns ReturnService, maxUploadSize int64, log zerolog.Logger) *ReturnsHandler {
	return &ReturnsHandler{returns: returns, maxUploadSize: maxUploadSize, log: log}
}

type DecideRequestDTO struct {
	Status    string `json:"status"`
	AdminNote string `json:"admin_note"`
}

// POST /api/v1/return-requests/
//
// multipart/form-data: orderId, productId, type, reason, newSize, newColor,
// pickupAddress (JSON) or addressId, and up to five images.
func (h *ReturnsHandler) Create(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadSize)
	if err := r.ParseMultipartForm(h.maxUploadSize); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(w, http.StatusRequestEntityTooLarge, "invalid_request", "upload too large")
			return
		}
		respondError(w, http.StatusBadRequest, "invalid_request", "expected multipart form")
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	in, err := parseReturnForm(r.MultipartForm)
	if err != nil {
		handleServiceError(w, r, h.log, err)
		return
	}

	files := append(r.MultipartForm.File["images"], r.MultipartForm.File["images[]"]...)
	if len(files) > storage.MaxImages {
		handleServiceError(w, r, h.log, storage.ErrTooManyImages)
		return
	}
	for _, fh := range files {
		f, err := fh.Open()
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid_request", "unreadable image upload")
			return
		}
		defer f.Close()
		in.Images = append(in.Images, service.ImageUpload{
			Name:        fh.Filename,
			ContentType: fh.Header.Get("Content-Type"),
			Body:        f,
		})
	}

	rr, err := h.returns.CreateReturnRequest(r.Context(), actorFrom(r.Context()), in)
	if err != nil {
		handleServiceError(w, r, h.log, err)
		return
	}
	respondJSON(w, http.StatusCreated, rr)
}

func parseReturnForm(form *multipart.Form) (service.ReturnInput, error) {
	value := func(key string) string {
		if v := form.Value[key]; len(v) > 0 {
			return v[0]
		}
		return ""
	}

	var in service.ReturnInput
	if raw := value("orderId"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return in, &domain.ValidationError{Field: "order_id", Code: "invalid_format", Message: "must be a UUID"}
		}
		in.Draft.OrderID = id
	}
	if raw := value("productId"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return in, &domain.ValidationError{Field: "product_id", Code: "invalid_format", Message: "must be an integer"}
		}
		in.Draft.ProductID = id
	}
	if raw := value("type"); raw != "" {
		t, ok := domain.ParseReturnType(raw)
		if !ok {
			return in, &domain.ValidationError{Field: "type", Code: "invalid_type", Message: "must be return or exchange"}
		}
		in.Draft.Type = t
	}
	in.Draft.Reason = domain.ReturnReason(value("reason"))
	in.Draft.NewSize = value("newSize")
	in.Draft.NewColor = value("newColor")
	in.AddressID = value("addressId")

	if raw := value("pickupAddress"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &in.Draft.PickupAddress); err != nil {
			return in, &domain.ValidationError{Field: "pickup_address", Code: "invalid_format", Message: "must be a JSON address"}
		}
	}
	return in, nil
}

// GET /api/v1/return-requests/my
func (h *ReturnsHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	list, err := h.returns.ListMine(r.Context(), actorFrom(r.Context()))
	h.respondList(w, r, list, err)
}

// GET /api/v1/return-requests?status=
func (h *ReturnsHandler) ListAll(w http.ResponseWriter, r *http.Request) {
	list, err := h.returns.ListAll(r.Context(), actorFrom(r.Context()), r.URL.Query().Get("status"))
	h.respondList(w, r, list, err)
}

// PUT /api/v1/return-requests/{id}/status
func (h *ReturnsHandler) Decide(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	var req DecideRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	rr, err := h.returns.Decide(r.Context(), actorFrom(r.Context()), id, req.Status, req.AdminNote)
	if err != nil {
		handleServiceError(w, r, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, rr)
}

// GET /api/v1/return-requests/{id}/images/{image_id}
func (h *ReturnsHandler) Image(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	body, contentType, err := h.returns.OpenImage(r.Context(), actorFrom(r.Context()), id, chi.URLParam(r, "image_id"))
	if err != nil {
		handleServiceError(w, r, h.log, err)
		return
	}
	defer body.Close()

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "private, max-age=3600")
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, body); err != nil {
		h.log.Warn().Err(err).Msg("image stream interrupted")
	}
}

func (h *ReturnsHandler) respondList(w http.ResponseWriter, r *http.Request, list []domain.ReturnRequest, err error) {
	if err != nil {
		handleServiceError(w, r, h.log, err)
		return
	}
	if list == nil {
		list = []domain.ReturnRequest{}
	}
	respondJSON(w, http.StatusOK, list)
}
