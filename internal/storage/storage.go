package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/fjod/go_cart/storefront/internal/domain"
)

const (
	MaxImages    = domain.MaxReturnImages
	MaxImageSize = domain.MaxReturnImageSize

	sniffLen = 512
)

var (
	ErrImageNotFound  = errors.New("image not found")
	ErrImageTooLarge  = domain.ErrImageTooLarge
	ErrNotAnImage     = errors.New("only image uploads are accepted")
	ErrTooManyImages  = domain.ErrTooManyImages
	ErrEmptyImage     = errors.New("image is empty")
	ErrInvalidImageID = errors.New("invalid image id")
)

// ImageStore keeps the photos attached to return requests.
type ImageStore interface {
	Put(ctx context.Context, name, contentType string, r io.Reader) (string, error)
	Open(ctx context.Context, id string) (io.ReadCloser, string, error)
	// Delete removes an image; deleting a missing image is not an error.
	Delete(ctx context.Context, id string) error
}

// readImage buffers r up to MaxImageSize and settles its content type.
// A missing or generic declared type is replaced by the sniffed one.
func readImage(contentType string, r io.Reader) ([]byte, string, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxImageSize+1))
	if err != nil {
		return nil, "", fmt.Errorf("read image: %w", err)
	}
	if len(data) == 0 {
		return nil, "", ErrEmptyImage
	}
	if len(data) > MaxImageSize {
		return nil, "", ErrImageTooLarge
	}

	contentType = strings.ToLower(strings.TrimSpace(contentType))
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = http.DetectContentType(data[:min(len(data), sniffLen)])
	}
	if !strings.HasPrefix(contentType, "image/") {
		return nil, "", ErrNotAnImage
	}
	return data, contentType, nil
}

func nopCloser(data []byte) io.ReadCloser {
	return io.NopCloser(bytes.NewReader(data))
}
