package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strconv"

	"github.com/fjod/go_cart/storefront/internal/domain"
)

type Image struct {
	Name        string
	ContentType string
	Data        []byte
}

type ReturnInput struct {
	Draft ReturnDraft
	// AddressID picks a saved address when Draft carries no pickup address.
	AddressID string
	Images    []Image
}

// CreateReturnRequest validates the request locally and only calls the API
// when it passes, so a draft missing required photos never leaves the process.
func (c *Client) CreateReturnRequest(ctx context.Context, in ReturnInput) (*ReturnRequest, error) {
	if len(in.Images) > domain.MaxReturnImages {
		return nil, domain.ErrTooManyImages
	}
	for _, img := range in.Images {
		if len(img.Data) > domain.MaxReturnImageSize {
			return nil, fmt.Errorf("%s: %w", img.Name, domain.ErrImageTooLarge)
		}
	}

	draft := in.Draft
	draft.ImageCount = len(in.Images)
	var err error
	if draft.PickupAddress.IsZero() && in.AddressID != "" {
		err = draft.ValidateDetails()
	} else {
		err = draft.Validate()
	}
	if err != nil {
		return nil, err
	}

	body, contentType, err := returnForm(draft, in)
	if err != nil {
		return nil, err
	}
	var rr ReturnRequest
	if err := c.do(ctx, http.MethodPost, "/api/v1/return-requests/", contentType, body, &rr); err != nil {
		return nil, err
	}
	return &rr, nil
}

func returnForm(draft ReturnDraft, in ReturnInput) (*bytes.Buffer, string, error) {
	buf := &bytes.Buffer{}
	mw := multipart.NewWriter(buf)

	fields := [][2]string{
		{"orderId", draft.OrderID.String()},
		{"productId", strconv.FormatInt(draft.ProductID, 10)},
		{"type", string(draft.Type)},
		{"reason", string(draft.Reason)},
		{"newSize", draft.NewSize},
		{"newColor", draft.NewColor},
		{"addressId", in.AddressID},
	}
	if !draft.PickupAddress.IsZero() {
		raw, err := json.Marshal(draft.PickupAddress)
		if err != nil {
			return nil, "", fmt.Errorf("encode pickup address: %w", err)
		}
		fields = append(fields, [2]string{"pickupAddress", string(raw)})
	}
	for _, f := range fields {
		if f[1] == "" {
			continue
		}
		if err := mw.WriteField(f[0], f[1]); err != nil {
			return nil, "", err
		}
	}

	for _, img := range in.Images {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="images"; filename=%q`, img.Name))
		ct := img.ContentType
		if ct == "" {
			ct = "application/octet-stream"
		}
		h.Set("Content-Type", ct)
		part, err := mw.CreatePart(h)
		if err != nil {
			return nil, "", err
		}
		if _, err := part.Write(img.Data); err != nil {
			return nil, "", err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, "", err
	}
	return buf, mw.FormDataContentType(), nil
}
