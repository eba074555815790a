package api_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcoot/proxymail/internal/api"
	"github.com/mcoot/proxymail/internal/api/apierr"
	"github.com/mcoot/proxymail/internal/api/middleware"
	"github.com/mcoot/proxymail/internal/api/response"
	"github.com/mcoot/proxymail/internal/factory"
	"github.com/mcoot/proxymail/internal/model"
	"github.com/mcoot/proxymail/internal/testutil"
)

// testServer creates a test server with all dependencies
type testServer struct {
	handler http.Handler
	app     *factory.TestApp
}

func newTestServer(t *testing.T, tokenHash string) *testServer {
	t.Helper()

	app := factory.NewTestApp(t.TempDir())
	router := api.NewRouter(api.RouterConfig{
		Logger:      testutil.NopLogger(),
		MailService: app.MailService,
		Metrics:     app.Metrics,
		TokenHash:   tokenHash,
		StorageType: factory.StorageTypeFile,
	})

	return &testServer{
		handler: router,
		app:     app,
	}
}

func (ts *testServer) request(method, path string, body any, token string) *httptest.ResponseRecorder {
	var reqBody *bytes.Buffer
	if body != nil {
		b, _ := json.Marshal(body)
		reqBody = bytes.NewBuffer(b)
	} else {
		reqBody = bytes.NewBuffer(nil)
	}

	req := httptest.NewRequest(method, path, reqBody)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rr := httptest.NewRecorder()
	ts.handler.ServeHTTP(rr, req)
	return rr
}

// join registers a player through the session endpoint
func (ts *testServer) join(t *testing.T, name string) model.Identity {
	t.Helper()
	id := model.NewIdentity()
	rr := ts.request(http.MethodPost, "/api/v1/players/"+id.String()+"/session", map[string]string{"username": name}, "")
	require.Equal(t, http.StatusOK, rr.Code)
	return id
}

func (ts *testServer) send(t *testing.T, from model.Identity, fromName, to, body string) response.Message {
	t.Helper()
	rr := ts.request(http.MethodPost, "/api/v1/messages", map[string]string{
		"sender_name": fromName,
		"sender_id":   from.String(),
		"recipient":   to,
		"body":        body,
	}, "")
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	var msg response.Message
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &msg))
	return msg
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v))
	return v
}

func TestHealthCheck(t *testing.T) {
	ts := newTestServer(t, "")

	rr := ts.request(http.MethodGet, "/api/v1/health", nil, "")
	assert.Equal(t, http.StatusOK, rr.Code)

	health := decode[response.Health](t, rr)
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, "file", health.Storage)
}

func TestSessionReportsUnread(t *testing.T) {
	ts := newTestServer(t, "")
	alice := ts.join(t, "Alice")
	bob := ts.join(t, "Bob")

	ts.send(t, alice, "Alice", "Bob", "first")
	ts.send(t, alice, "Alice", "Bob", "second")

	rr := ts.request(http.MethodPost, "/api/v1/players/"+bob.String()+"/session", map[string]string{"username": "Bob"}, "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 2, decode[response.Session](t, rr).Unread)
}

func TestSendAndReadInbox(t *testing.T) {
	ts := newTestServer(t, "")
	alice := ts.join(t, "Alice")
	bob := ts.join(t, "Bob")

	msg := ts.send(t, alice, "Alice", "bob", "hello bob")
	assert.Equal(t, bob.String(), msg.Recipient)
	assert.Equal(t, "hello bob", msg.Body)
	assert.False(t, msg.Read)

	rr := ts.request(http.MethodGet, "/api/v1/players/"+bob.String()+"/messages", nil, "")
	require.Equal(t, http.StatusOK, rr.Code)
	page := decode[response.Page](t, rr)
	require.Len(t, page.Messages, 1)
	assert.Equal(t, msg.ID, page.Messages[0].ID)
	assert.Equal(t, 1, page.Total)

	// Listing marked it read
	rr = ts.request(http.MethodGet, "/api/v1/players/"+bob.String()+"/messages", nil, "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Empty(t, decode[response.Page](t, rr).Messages)

	rr = ts.request(http.MethodGet, "/api/v1/players/"+bob.String()+"/messages?all=true", nil, "")
	require.Equal(t, http.StatusOK, rr.Code)
	page = decode[response.Page](t, rr)
	require.Len(t, page.Messages, 1)
	assert.True(t, page.Messages[0].Read)
}

func TestInboxPaging(t *testing.T) {
	ts := newTestServer(t, "")
	alice := ts.join(t, "Alice")
	bob := ts.join(t, "Bob")
	for i := 1; i <= 12; i++ {
		ts.send(t, alice, "Alice", "Bob", fmt.Sprintf("message %d", i))
	}

	rr := ts.request(http.MethodGet, "/api/v1/players/"+bob.String()+"/messages?start=11", nil, "")
	require.Equal(t, http.StatusOK, rr.Code)
	page := decode[response.Page](t, rr)
	assert.Equal(t, 11, page.Start)
	assert.Equal(t, 12, page.End)
	assert.Len(t, page.Messages, 2)
}

func TestInboxHugePageSize(t *testing.T) {
	ts := newTestServer(t, "")
	alice := ts.join(t, "Alice")
	bob := ts.join(t, "Bob")
	for i := 1; i <= 3; i++ {
		ts.send(t, alice, "Alice", "Bob", fmt.Sprintf("message %d", i))
	}

	rr := ts.request(http.MethodGet, "/api/v1/players/"+bob.String()+"/messages?start=2&page_size=9223372036854775807", nil, "")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	page := decode[response.Page](t, rr)
	assert.Equal(t, 2, page.Start)
	assert.Equal(t, 3, page.End)
	assert.Len(t, page.Messages, 2)
}

func TestSendErrors(t *testing.T) {
	ts := newTestServer(t, "")
	alice := ts.join(t, "Alice")
	ts.join(t, "Bob")

	tests := []struct {
		name   string
		body   map[string]string
		status int
		code   string
	}{
		{
			name:   "unknown recipient",
			body:   map[string]string{"sender_name": "Alice", "sender_id": alice.String(), "recipient": "Carol", "body": "hi"},
			status: http.StatusNotFound,
			code:   apierr.CodeUnknownRecipient,
		},
		{
			name:   "empty body",
			body:   map[string]string{"sender_name": "Alice", "sender_id": alice.String(), "recipient": "Bob", "body": "  "},
			status: http.StatusBadRequest,
			code:   apierr.CodeEmptyMessage,
		},
		{
			name:   "missing recipient",
			body:   map[string]string{"sender_name": "Alice", "sender_id": alice.String(), "body": "hi"},
			status: http.StatusBadRequest,
			code:   apierr.CodeInvalidRequest,
		},
		{
			name:   "bad sender id",
			body:   map[string]string{"sender_name": "Alice", "sender_id": "alice", "recipient": "Bob", "body": "hi"},
			status: http.StatusBadRequest,
			code:   apierr.CodeInvalidRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := ts.request(http.MethodPost, "/api/v1/messages", tt.body, "")
			assert.Equal(t, tt.status, rr.Code)
			assert.Equal(t, tt.code, decode[apierr.ErrorResponse](t, rr).Error.Code)
		})
	}
}

func TestSendAsConsole(t *testing.T) {
	ts := newTestServer(t, "")
	ts.join(t, "Alice")

	rr := ts.request(http.MethodPost, "/api/v1/messages", map[string]string{"recipient": "Alice", "body": "server notice"}, "")
	require.Equal(t, http.StatusCreated, rr.Code)

	msg := decode[response.Message](t, rr)
	assert.Equal(t, model.ConsoleName, msg.SenderName)
	assert.Equal(t, model.ConsoleIdentity.String(), msg.SenderID)
}

func TestBroadcast(t *testing.T) {
	ts := newTestServer(t, "")
	ts.join(t, "Alice")
	ts.join(t, "Bob")

	rr := ts.request(http.MethodPost, "/api/v1/messages/broadcast", map[string]string{"body": "restart soon"}, "")
	require.Equal(t, http.StatusCreated, rr.Code)
	assert.Equal(t, 3, decode[response.Broadcast](t, rr).Count)
}

func TestDeleteMessage(t *testing.T) {
	ts := newTestServer(t, "")
	alice := ts.join(t, "Alice")
	bob := ts.join(t, "Bob")
	msg := ts.send(t, alice, "Alice", "Bob", "delete me")

	// Alice cannot delete Bob's mail
	rr := ts.request(http.MethodDelete, fmt.Sprintf("/api/v1/players/%s/messages/%d", alice, msg.ID), nil, "")
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = ts.request(http.MethodDelete, fmt.Sprintf("/api/v1/players/%s/messages/%d", bob, msg.ID), nil, "")
	assert.Equal(t, http.StatusNoContent, rr.Code)

	rr = ts.request(http.MethodDelete, fmt.Sprintf("/api/v1/players/%s/messages/%d", bob, msg.ID), nil, "")
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = ts.request(http.MethodDelete, fmt.Sprintf("/api/v1/players/%s/messages/abc", bob), nil, "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestDeleteMessages(t *testing.T) {
	ts := newTestServer(t, "")
	alice := ts.join(t, "Alice")
	bob := ts.join(t, "Bob")
	ts.send(t, alice, "Alice", "Bob", "one")

	// Read the first message, then receive a second
	rr := ts.request(http.MethodGet, "/api/v1/players/"+bob.String()+"/messages", nil, "")
	require.Equal(t, http.StatusOK, rr.Code)
	ts.send(t, alice, "Alice", "Bob", "two")

	rr = ts.request(http.MethodDelete, "/api/v1/players/"+bob.String()+"/messages?read_only=true", nil, "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 1, decode[response.Deleted](t, rr).Deleted)

	rr = ts.request(http.MethodDelete, "/api/v1/players/"+bob.String()+"/messages", nil, "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 1, decode[response.Deleted](t, rr).Deleted)
}

func TestInvalidIdentity(t *testing.T) {
	ts := newTestServer(t, "")

	rr := ts.request(http.MethodGet, "/api/v1/players/not-a-uuid/messages", nil, "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestNames(t *testing.T) {
	ts := newTestServer(t, "")
	bob := ts.join(t, "Bob")
	ts.join(t, "Alice")

	rr := ts.request(http.MethodGet, "/api/v1/names", nil, "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, []string{"Alice", "Bob"}, decode[response.Usernames](t, rr).Usernames)

	rr = ts.request(http.MethodGet, "/api/v1/names/bOB", nil, "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, bob.String(), decode[response.Identity](t, rr).Identity)

	rr = ts.request(http.MethodGet, "/api/v1/names/Console", nil, "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, model.ConsoleIdentity.String(), decode[response.Identity](t, rr).Identity)

	rr = ts.request(http.MethodGet, "/api/v1/names/Nobody", nil, "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestAdminCleanup(t *testing.T) {
	ts := newTestServer(t, "")

	rr := ts.request(http.MethodPost, "/api/v1/admin/cleanup", nil, "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 0, decode[response.Deleted](t, rr).Deleted)
}

func TestTokenAuth(t *testing.T) {
	hash, err := middleware.HashToken("s3cret")
	require.NoError(t, err)
	ts := newTestServer(t, hash)

	// Health stays open
	rr := ts.request(http.MethodGet, "/api/v1/health", nil, "")
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = ts.request(http.MethodGet, "/api/v1/names", nil, "")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = ts.request(http.MethodGet, "/api/v1/names", nil, "wrong")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = ts.request(http.MethodGet, "/api/v1/names", nil, "s3cret")
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t, "")
	alice := ts.join(t, "Alice")
	ts.send(t, alice, "Alice", "Alice", "note to self")

	rr := ts.request(http.MethodGet, "/metrics", nil, "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `proxymail_messages_sent_total{kind="direct"} 1`)
}
