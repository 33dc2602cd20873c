package booking

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPCompleterSendsAuthorizedPut(t *testing.T) {
	var gotMethod, gotPath, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod, gotPath, gotAuth = r.Method, r.URL.Path, r.Header.Get("Authorization")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"completed"}`))
	}))
	defer srv.Close()

	c := NewHTTPCompleter(srv.URL+"/", "tok")
	require.NoError(t, c.Complete(context.Background(), "65f1c0ffee"))

	assert.Equal(t, http.MethodPut, gotMethod)
	assert.Equal(t, "/api/appointments/65f1c0ffee/complete", gotPath)
	assert.Equal(t, "Bearer tok", gotAuth)
}

func TestHTTPCompleterErrors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		target  error
		message string
	}{
		{"not found", http.StatusNotFound, `{"error":"Appointment not found"}`, ErrNotFound, "Appointment not found"},
		{"forbidden", http.StatusForbidden, `{"message":"You do not have permission"}`, ErrUnauthorized, "You do not have permission"},
		{"server error", http.StatusInternalServerError, "boom", nil, "boom"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			err := NewHTTPCompleter(srv.URL, "").Complete(context.Background(), "abc")
			require.Error(t, err)

			var apiErr *Error
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, tt.status, apiErr.Status)
			assert.Equal(t, tt.message, apiErr.Message)
			if tt.target != nil {
				assert.ErrorIs(t, err, tt.target)
			}
		})
	}
}

func TestHTTPCompleterUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	err := NewHTTPCompleter(url, "").Complete(context.Background(), "abc")
	require.Error(t, err)
	var apiErr *Error
	assert.False(t, errors.As(err, &apiErr))
}

func TestHTTPCompleterEmptyID(t *testing.T) {
	err := NewHTTPCompleter("http://127.0.0.1:1", "").Complete(context.Background(), "")
	assert.ErrorIs(t, err, ErrNotFound)
}
