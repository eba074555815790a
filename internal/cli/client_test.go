package cli

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcoot/proxymail/internal/api/apierr"
)

func TestClientSendsTokenAndDecodes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.Equal(t, "mailctl", r.Header.Get("User-Agent"))
		_ = json.NewEncoder(w).Encode(HealthResult{Status: "ok", Storage: "file"})
	}))
	defer srv.Close()

	var result HealthResult
	require.NoError(t, NewClient(srv.URL+"/", "secret").Get("/api/v1/health", &result))
	assert.Equal(t, "file", result.Storage)
}

func TestClientReturnsAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":{"code":"MESSAGE_NOT_FOUND","message":"Message not found"}}`))
	}))
	defer srv.Close()

	err := NewClient(srv.URL, "").Delete("/api/v1/players/x/messages/9", nil)
	require.Error(t, err)
	assert.True(t, IsAPIError(err, apierr.CodeMessageNotFound))
	assert.False(t, IsAPIError(err, apierr.CodeUnknownRecipient))
	assert.Contains(t, err.Error(), "MESSAGE_NOT_FOUND")

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.Status)
}

func TestClientNonJSONError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer srv.Close()

	err := NewClient(srv.URL, "").Get("/", nil)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadGateway, apiErr.Status)
	assert.Equal(t, "boom", apiErr.Message)
	assert.False(t, IsAPIError(nil, apierr.CodeInternalError))
}
