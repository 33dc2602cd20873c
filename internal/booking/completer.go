// Package booking marks appointments completed when a consultation ends.
package booking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

var (
	ErrNotFound     = errors.New("appointment not found")
	ErrUnauthorized = errors.New("not authorized to complete appointment")
)

// Completer marks an appointment completed
type Completer interface {
	Complete(ctx context.Context, appointmentID string) error
}

// Error is a non-success response from the booking service
type Error struct {
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("booking service returned %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("booking service returned %d", e.Status)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// HTTPCompleter calls PUT /api/appointments/:id/complete on the booking
// service with a bearer token.
type HTTPCompleter struct {
	BaseURL string
	Token   string
	Client  *http.Client
}

func NewHTTPCompleter(baseURL, token string) *HTTPCompleter {
	return &HTTPCompleter{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		Client:  &http.Client{Timeout: 10 * time.Second},
	}
}

func (h *HTTPCompleter) Complete(ctx context.Context, appointmentID string) error {
	if appointmentID == "" {
		return fmt.Errorf("complete appointment: %w", ErrNotFound)
	}

	endpoint := h.BaseURL + "/api/appointments/" + url.PathEscape(appointmentID) + "/complete"
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, endpoint, nil)
	if err != nil {
		return fmt.Errorf("build completion request: %w", err)
	}
	if h.Token != "" {
		req.Header.Set("Authorization", "Bearer "+h.Token)
	}

	client := h.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("complete appointment %s: %w", appointmentID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		io.Copy(io.Discard, resp.Body)
		return nil
	}

	apiErr := &Error{Status: resp.StatusCode, Message: readMessage(resp.Body)}
	switch resp.StatusCode {
	case http.StatusNotFound:
		apiErr.Err = ErrNotFound
	case http.StatusUnauthorized, http.StatusForbidden:
		apiErr.Err = ErrUnauthorized
	}
	return apiErr
}

func readMessage(r io.Reader) string {
	body, err := io.ReadAll(io.LimitReader(r, 4096))
	if err != nil || len(body) == 0 {
		return ""
	}
	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &payload) == nil {
		if payload.Error != "" {
			return payload.Error
		}
		if payload.Message != "" {
			return payload.Message
		}
	}
	return strings.TrimSpace(string(body))
}
