package worker

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joao-fontenele/marketplace/internal/domain"
)

type emailServer struct {
	mu       sync.Mutex
	requests []sendRequest
	status   int
}

func (s *emailServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var req sendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || r.URL.Path != "/send" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	s.requests = append(s.requests, req)
	w.WriteHeader(s.status)
}

func (s *emailServer) sent() []sendRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]sendRequest(nil), s.requests...)
}

func newMailer(t *testing.T, status int) (*Mailer, *emailServer) {
	t.Helper()
	backend := &emailServer{status: status}
	srv := httptest.NewServer(backend)
	t.Cleanup(srv.Close)

	m, err := NewMailer(srv.URL, srv.Client(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	return m, backend
}

func event(eventType domain.OrderEventType) domain.OrderEvent {
	return domain.OrderEvent{
		Type:         eventType,
		OrderID:      "o1",
		UserID:       "u1",
		UserEmail:    "ada@example.com",
		UserName:     "Ada <Lovelace>",
		Items:        []domain.OrderItem{{ProductID: "p1", Quantity: 2}},
		TotalAmount:  decimal.RequireFromString("5000"),
		PickupMethod: domain.PickupMethodDelivery,
		Address:      "12 Allen Ave",
		Timestamp:    time.Date(2026, 5, 20, 9, 30, 0, 0, time.UTC),
	}
}

func TestMailer_RendersEachEvent(t *testing.T) {
	tests := []struct {
		eventType domain.OrderEventType
		subject   string
		phrase    string
	}{
		{domain.OrderEventCreated, "Order received: o1", "has been placed successfully"},
		{domain.OrderEventApproved, "Order completed: o1", "approved and completed"},
		{domain.OrderEventCancelled, "Order cancelled: o1", "has been cancelled"},
	}

	for _, tt := range tests {
		t.Run(string(tt.eventType), func(t *testing.T) {
			m, backend := newMailer(t, http.StatusOK)

			require.NoError(t, m.Handle(context.Background(), event(tt.eventType)))

			sent := backend.sent()
			require.Len(t, sent, 1)
			req := sent[0]
			assert.Equal(t, []string{"ada@example.com"}, req.To)
			assert.Equal(t, tt.subject, req.Subject)
			assert.Contains(t, req.HTML, tt.phrase)
			assert.Contains(t, req.HTML, "5000.00")
			assert.Contains(t, req.HTML, "Ada &lt;Lovelace&gt;")
		})
	}
}

func TestMailer_SkipsUnaddressableEvents(t *testing.T) {
	m, backend := newMailer(t, http.StatusOK)

	noEmail := event(domain.OrderEventCreated)
	noEmail.UserEmail = ""
	require.NoError(t, m.Handle(context.Background(), noEmail))
	require.NoError(t, m.Handle(context.Background(), event("order.refunded")))

	assert.Empty(t, backend.sent())
}

func TestMailer_EmailServiceFailure(t *testing.T) {
	m, _ := newMailer(t, http.StatusBadGateway)

	err := m.Handle(context.Background(), event(domain.OrderEventApproved))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}
