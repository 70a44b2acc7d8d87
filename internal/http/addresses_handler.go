package http

import (
	"encoding/json"
	"net/http"

	"github.com/fjod/go_cart/storefront/internal/addressbook"
	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/fjod/go_cart/storefront/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

type AddressesHandler struct {
	book addressbook.Book
	log  zerolog.Logger
}

func NewAddressesHandler(book addressbook.Book, log zerolog.Logger) *AddressesHandler {
	return &AddressesHandler{book: book, log: log}
}

func (h *AddressesHandler) user(w http.ResponseWriter, r *http.Request) (string, bool) {
	actor := actorFrom(r.Context())
	if actor.UserID == "" {
		handleServiceError(w, r, h.log, service.ErrUnauthenticated)
		return "", false
	}
	return actor.UserID, true
}

// GET /api/v1/addresses
func (h *AddressesHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.user(w, r)
	if !ok {
		return
	}
	list, err := h.book.List(r.Context(), userID)
	if err != nil {
		handleServiceError(w, r, h.log, err)
		return
	}
	if list == nil {
		list = []addressbook.SavedAddress{}
	}
	respondJSON(w, http.StatusOK, list)
}

// POST /api/v1/addresses
func (h *AddressesHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.user(w, r)
	if !ok {
		return
	}
	var addr domain.Address
	if err := json.NewDecoder(r.Body).Decode(&addr); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	saved, err := h.book.Create(r.Context(), userID, addr)
	if err != nil {
		handleServiceError(w, r, h.log, err)
		return
	}
	respondJSON(w, http.StatusCreated, saved)
}

// DELETE /api/v1/addresses/{id}
func (h *AddressesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.user(w, r)
	if !ok {
		return
	}
	if err := h.book.Delete(r.Context(), userID, chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, r, h.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// PUT /api/v1/addresses/{id}/default
func (h *AddressesHandler) SetDefault(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.user(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")
	if err := h.book.SetDefault(r.Context(), userID, id); err != nil {
		handleServiceError(w, r, h.log, err)
		return
	}
	saved, err := h.book.Get(r.Context(), userID, id)
	if err != nil {
		handleServiceError(w, r, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, saved)
}
