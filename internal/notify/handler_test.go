package notify

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joao-fontenele/marketplace/internal/auth"
	"github.com/joao-fontenele/marketplace/internal/domain"
)

type inboxFixture struct {
	fanout *Fanout
	inbox  *memInbox
	mux    *http.ServeMux
	tokens *auth.Tokens
}

func newInboxFixture(t *testing.T) *inboxFixture {
	t.Helper()
	fanout, inbox := newTestFanout()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	tokens := auth.NewTokens("test-secret", time.Hour, time.Hour)

	mux := http.NewServeMux()
	NewHandler(fanout, logger).Register(mux, auth.NewGuard(tokens, logger))
	return &inboxFixture{fanout: fanout, inbox: inbox, mux: mux, tokens: tokens}
}

func (f *inboxFixture) do(t *testing.T, method, path string, p *auth.Principal) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	if p != nil {
		tok, err := f.tokens.Issue(*p)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	rec := httptest.NewRecorder()
	f.mux.ServeHTTP(rec, req)
	return rec
}

func TestHandleInbox(t *testing.T) {
	f := newInboxFixture(t)
	require.NoError(t, f.fanout.NotifyUser(context.Background(), "u1", "Your order has been placed", domain.SeveritySuccess))
	user := auth.UserPrincipal("u1")

	rec := f.do(t, http.MethodGet, "/notifications", &user)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		Message       string                `json:"message"`
		Notifications []domain.Notification `json:"notifications"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.Message)
	require.Len(t, resp.Notifications, 1)
	assert.Equal(t, domain.SeveritySuccess, resp.Notifications[0].Severity)

	assert.Equal(t, http.StatusUnauthorized, f.do(t, http.MethodGet, "/notifications", nil).Code)

	ghost := auth.UserPrincipal("ghost")
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/notifications", &ghost).Code)
}

func TestHandleMarkRead_OneThenAll(t *testing.T) {
	f := newInboxFixture(t)
	ctx := context.Background()
	require.NoError(t, f.fanout.NotifyUser(ctx, "u1", "first", domain.SeverityInfo))
	require.NoError(t, f.fanout.NotifyUser(ctx, "u1", "second", domain.SeverityWarning))
	ref := domain.UserAccount("u1")
	user := auth.UserPrincipal("u1")

	first := f.inbox.entries[ref][0].ID
	rec := f.do(t, http.MethodPatch, "/notifications/"+first+"/read", &user)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	entries, err := f.inbox.Inbox(ctx, ref)
	require.NoError(t, err)
	assert.True(t, entries[0].IsRead)
	assert.False(t, entries[1].IsRead)

	rec = f.do(t, http.MethodPatch, "/notifications/read", &user)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	entries, err = f.inbox.Inbox(ctx, ref)
	require.NoError(t, err)
	for _, n := range entries {
		assert.True(t, n.IsRead, n.Message)
	}
}

func TestHandleMarkRead_UnknownNotification(t *testing.T) {
	f := newInboxFixture(t)
	admin := auth.AdminPrincipal("a1", domain.RoleAdmin)

	rec := f.do(t, http.MethodPatch, "/notifications/does-not-exist/read", &admin)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "not_found", body["error"])
}
