package orders

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/joao-fontenele/marketplace/internal/domain"
	"github.com/joao-fontenele/marketplace/internal/telemetry"
)

// memStore is an in-memory Store and Catalog. InTx holds the lock for the
// whole transaction and restores a snapshot when fn fails.
type memStore struct {
	mu       sync.Mutex
	orders   map[string]domain.Order
	products map[string]domain.Product
}

func newMemStore(products ...domain.Product) *memStore {
	s := &memStore{orders: map[string]domain.Order{}, products: map[string]domain.Product{}}
	for _, p := range products {
		s.products[p.ID] = p
	}
	return s
}

func (s *memStore) Create(_ context.Context, order *domain.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o := *order
	o.Items = append([]domain.OrderItem(nil), order.Items...)
	s.orders[o.ID] = o
	return nil
}

func (s *memStore) Get(_ context.Context, id string) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return nil, fmt.Errorf("order %s: %w", id, domain.ErrNotFound)
	}
	return &o, nil
}

func (s *memStore) match(f Filter) []domain.Order {
	out := []domain.Order{}
	for _, o := range s.orders {
		if f.UserID != "" && o.UserID != f.UserID {
			continue
		}
		if f.Status != "" && o.Status != f.Status {
			continue
		}
		if !f.Since.IsZero() && o.OrderDate.Before(f.Since) {
			continue
		}
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OrderDate.After(out[j].OrderDate) })
	return out
}

func (s *memStore) List(_ context.Context, f Filter) ([]domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.match(f), nil
}

func (s *memStore) Count(_ context.Context, f Filter) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.match(f)), nil
}

func (s *memStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.orders[id]; !ok {
		return fmt.Errorf("order %s: %w", id, domain.ErrNotFound)
	}
	delete(s.orders, id)
	return nil
}

func (s *memStore) DeleteByUser(_ context.Context, userID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, o := range s.orders {
		if o.UserID == userID {
			delete(s.orders, id)
			n++
		}
	}
	return n, nil
}

func (s *memStore) DeleteAll(context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := int64(len(s.orders))
	s.orders = map[string]domain.Order{}
	return n, nil
}

func (s *memStore) DeleteStalePickups(_ context.Context, cutoff time.Time) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	users := []string{}
	for id, o := range s.orders {
		if o.PickupMethod == domain.PickupMethodPickup && o.Status == domain.OrderStatusPending && o.OrderDate.Before(cutoff) {
			delete(s.orders, id)
			users = append(users, o.UserID)
		}
	}
	return users, nil
}

func (s *memStore) InTx(_ context.Context, fn func(Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	orders := maps.Clone(s.orders)
	products := maps.Clone(s.products)
	if err := fn(memTx{s}); err != nil {
		s.orders = orders
		s.products = products
		return err
	}
	return nil
}

type memTx struct{ s *memStore }

func (t memTx) TransitionOrder(_ context.Context, id string, from, to domain.OrderStatus) error {
	o, ok := t.s.orders[id]
	if !ok {
		return fmt.Errorf("order %s: %w", id, domain.ErrNotFound)
	}
	if o.Status != from {
		return fmt.Errorf("%w: order %s is %s", domain.ErrInvalidTransition, id, o.Status)
	}
	o.Status = to
	t.s.orders[id] = o
	return nil
}

func (t memTx) ReserveStock(_ context.Context, productID string, quantity int) error {
	p, ok := t.s.products[productID]
	if !ok {
		return fmt.Errorf("product %s: %w", productID, domain.ErrNotFound)
	}
	if p.Quantity < quantity {
		return fmt.Errorf("%w for product %s", domain.ErrInsufficientStock, productID)
	}
	p.Quantity -= quantity
	t.s.products[productID] = p
	return nil
}

func (s *memStore) ProductsByIDs(_ context.Context, ids []string) (map[string]domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := map[string]domain.Product{}
	for _, id := range ids {
		if p, ok := s.products[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

func (s *memStore) stock(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.products[id].Quantity
}

func (s *memStore) removeProduct(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.products, id)
}

type memUsers map[string]domain.User

func (u memUsers) GetUser(_ context.Context, id string) (*domain.User, error) {
	user, ok := u[id]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", id, domain.ErrNotFound)
	}
	return &user, nil
}

func (u memUsers) UsersByIDs(_ context.Context, ids []string) (map[string]domain.User, error) {
	out := map[string]domain.User{}
	for _, id := range ids {
		if user, ok := u[id]; ok {
			out[id] = user
		}
	}
	return out, nil
}

type sent struct {
	to       string
	message  string
	severity domain.Severity
}

type recordingNotifier struct {
	mu     sync.Mutex
	user   []sent
	admins []sent
	fail   bool
}

func (n *recordingNotifier) NotifyUser(_ context.Context, userID, message string, severity domain.Severity) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.fail {
		return errors.New("inbox unavailable")
	}
	n.user = append(n.user, sent{userID, message, severity})
	return nil
}

func (n *recordingNotifier) NotifyAllAdmins(_ context.Context, message string, severity domain.Severity) (int, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.fail {
		return 0, errors.New("inbox unavailable")
	}
	n.admins = append(n.admins, sent{"admins", message, severity})
	return 1, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.OrderEvent
}

func (p *recordingPublisher) PublishOrderEvent(_ context.Context, event domain.OrderEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

type memHistory struct {
	mu          sync.Mutex
	entries     map[string][]domain.OrderSummary
	invalidated []string
	// cancelled counts invalidations that arrived with a done context.
	cancelled int
}

func newMemHistory() *memHistory {
	return &memHistory{entries: map[string][]domain.OrderSummary{}}
}

func (h *memHistory) Get(_ context.Context, userID string) ([]domain.OrderSummary, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	v, ok := h.entries[userID]
	return v, ok
}

func (h *memHistory) Set(_ context.Context, userID string, history []domain.OrderSummary) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries[userID] = history
}

func (h *memHistory) Invalidate(ctx context.Context, userIDs ...string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if ctx.Err() != nil {
		h.cancelled++
		return
	}
	for _, id := range userIDs {
		delete(h.entries, id)
		h.invalidated = append(h.invalidated, id)
	}
}

func (h *memHistory) InvalidateAll(ctx context.Context) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if ctx.Err() != nil {
		h.cancelled++
		return
	}
	h.entries = map[string][]domain.OrderSummary{}
}

type harness struct {
	svc       *Service
	store     *memStore
	notifier  *recordingNotifier
	publisher *recordingPublisher
	history   *memHistory
	now       time.Time
}

var fixedNow = time.Date(2026, 5, 20, 9, 30, 0, 0, time.UTC)

func product(id string, qty int) domain.Product {
	return domain.Product{
		ID:       id,
		Name:     "Product " + id,
		Price:    decimal.NewFromInt(100),
		Quantity: qty,
		Category: domain.CategoryBuildingMaterial,
		Images:   []string{"https://cdn.example.com/" + id + ".jpg"},
	}
}

func newHarness(t *testing.T, products ...domain.Product) *harness {
	t.Helper()
	metrics, err := telemetry.NewInstruments()
	require.NoError(t, err)

	h := &harness{
		store:     newMemStore(products...),
		notifier:  &recordingNotifier{},
		publisher: &recordingPublisher{},
		history:   newMemHistory(),
		now:       fixedNow,
	}
	users := memUsers{
		"u1": {ID: "u1", FirstName: "Ada", LastName: "Lovelace", Email: "ada@example.com"},
		"u2": {ID: "u2", FirstName: "Bob", LastName: "Builder", Email: "bob@example.com"},
	}
	h.svc = NewService(h.store, h.store, users, h.notifier, h.publisher, h.history, metrics,
		slog.New(slog.NewTextHandler(io.Discard, nil)))
	h.svc.now = func() time.Time { return h.now }
	t.Cleanup(h.svc.Wait)
	return h
}

func amount(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

// seed stores an order directly, bypassing CreateOrder.
func (h *harness) seed(id, userID string, method domain.PickupMethod, status domain.OrderStatus, placed time.Time, items ...domain.OrderItem) {
	h.store.mu.Lock()
	defer h.store.mu.Unlock()
	h.store.orders[id] = domain.Order{
		ID:           id,
		UserID:       userID,
		Items:        items,
		TotalAmount:  decimal.NewFromInt(100),
		OrderDate:    placed,
		Status:       status,
		PickupMethod: method,
		Address:      domain.StoreAddress,
	}
}
