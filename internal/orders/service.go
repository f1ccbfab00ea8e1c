// Package orders is the order lifecycle engine: creation, admin approval
// with stock deduction, cancellation, deletion and the stale pickup sweep.
package orders

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/joao-fontenele/marketplace/internal/domain"
	"github.com/joao-fontenele/marketplace/internal/telemetry"
)

var tracer = otel.Tracer("marketplace/orders")

const (
	// StalePickupAge is how long a pickup order may stay pending before the
	// janitor removes it.
	StalePickupAge = 7 * 24 * time.Hour

	// recentWindow bounds the "this week" listings.
	recentWindow = 7 * 24 * time.Hour

	sideEffectTimeout = 30 * time.Second

	unknownUser = "Unknown User"
)

type Store interface {
	Create(ctx context.Context, order *domain.Order) error
	Get(ctx context.Context, id string) (*domain.Order, error)
	List(ctx context.Context, f Filter) ([]domain.Order, error)
	Count(ctx context.Context, f Filter) (int, error)
	Delete(ctx context.Context, id string) error
	DeleteByUser(ctx context.Context, userID string) (int64, error)
	DeleteAll(ctx context.Context) (int64, error)
	DeleteStalePickups(ctx context.Context, cutoff time.Time) ([]string, error)
	InTx(ctx context.Context, fn func(Tx) error) error
}

// Tx is the transactional surface used by approval and cancellation.
type Tx interface {
	TransitionOrder(ctx context.Context, id string, from, to domain.OrderStatus) error
	ReserveStock(ctx context.Context, productID string, quantity int) error
}

type Catalog interface {
	ProductsByIDs(ctx context.Context, ids []string) (map[string]domain.Product, error)
}

type Users interface {
	GetUser(ctx context.Context, id string) (*domain.User, error)
	UsersByIDs(ctx context.Context, ids []string) (map[string]domain.User, error)
}

type Notifier interface {
	NotifyUser(ctx context.Context, userID, message string, severity domain.Severity) error
	NotifyAllAdmins(ctx context.Context, message string, severity domain.Severity) (int, error)
}

type Publisher interface {
	PublishOrderEvent(ctx context.Context, event domain.OrderEvent) error
}

// HistoryCache holds per-user order history projections. Implementations
// log their own failures; a miss falls back to the order store.
type HistoryCache interface {
	Get(ctx context.Context, userID string) ([]domain.OrderSummary, bool)
	Set(ctx context.Context, userID string, history []domain.OrderSummary)
	Invalidate(ctx context.Context, userIDs ...string)
	InvalidateAll(ctx context.Context)
}

type Service struct {
	store     Store
	catalog   Catalog
	users     Users
	notifier  Notifier
	publisher Publisher
	history   HistoryCache
	metrics   *telemetry.Instruments
	logger    *slog.Logger
	now       func() time.Time

	// pending tracks post-commit side effects still running.
	pending sync.WaitGroup
}

// NewService wires the engine. publisher and history may be nil, which
// disables order events and history caching.
func NewService(store Store, catalog Catalog, users Users, notifier Notifier,
	publisher Publisher, history HistoryCache, metrics *telemetry.Instruments, logger *slog.Logger,
) *Service {
	return &Service{
		store:     store,
		catalog:   catalog,
		users:     users,
		notifier:  notifier,
		publisher: publisher,
		history:   history,
		metrics:   metrics,
		logger:    logger,
		now:       time.Now,
	}
}

// Wait blocks until every post-commit side effect started so far is done.
func (s *Service) Wait() {
	s.pending.Wait()
}

type CreateInput struct {
	UserID       string              `json:"userId"`
	Items        []domain.OrderItem  `json:"items"`
	TotalAmount  *decimal.Decimal    `json:"totalAmount"`
	PickupMethod domain.PickupMethod `json:"pickupMethod"`
	Address      string              `json:"address"`
}

func (in *CreateInput) validate() error {
	if strings.TrimSpace(in.UserID) == "" {
		return fmt.Errorf("%w: userId is required", domain.ErrValidation)
	}
	if len(in.Items) == 0 {
		return fmt.Errorf("%w: at least one item is required", domain.ErrValidation)
	}
	for i, item := range in.Items {
		if strings.TrimSpace(item.ProductID) == "" {
			return fmt.Errorf("%w: item %d has no productId", domain.ErrValidation, i)
		}
		if item.Quantity < 1 || item.Quantity > domain.MaxQuantity {
			return fmt.Errorf("%w: item %d quantity must be between 1 and %d", domain.ErrValidation, i, domain.MaxQuantity)
		}
	}
	if in.TotalAmount == nil || !in.TotalAmount.IsPositive() {
		return fmt.Errorf("%w: totalAmount must be greater than zero", domain.ErrValidation)
	}
	if !domain.ValidMoney(*in.TotalAmount) {
		return fmt.Errorf("%w: totalAmount must have at most two decimal places and fewer than 11 integer digits", domain.ErrValidation)
	}
	if !in.PickupMethod.Valid() {
		return fmt.Errorf("%w: pickupMethod must be Pickup or Delivery", domain.ErrValidation)
	}
	if in.PickupMethod == domain.PickupMethodDelivery && strings.TrimSpace(in.Address) == "" {
		return fmt.Errorf("%w: address is required for delivery orders", domain.ErrValidation)
	}
	return nil
}

// CreateOrder records a pending order for an existing user. Notifications
// and the order.created event follow the commit and never fail the call.
func (s *Service) CreateOrder(ctx context.Context, in CreateInput) (*domain.Order, error) {
	ctx, span := tracer.Start(ctx, "orders.create", trace.WithAttributes(
		attribute.String("user.id", in.UserID),
		attribute.String("order.pickup_method", string(in.PickupMethod)),
	))
	defer span.End()

	if err := in.validate(); err != nil {
		return nil, recordErr(span, err)
	}

	user, err := s.users.GetUser(ctx, in.UserID)
	if err != nil {
		return nil, recordErr(span, err)
	}

	order := &domain.Order{
		ID:           uuid.New().String(),
		UserID:       user.ID,
		Items:        in.Items,
		TotalAmount:  *in.TotalAmount,
		OrderDate:    s.now().UTC(),
		Status:       domain.OrderStatusPending,
		PickupMethod: in.PickupMethod,
		Address:      domain.ResolveAddress(in.PickupMethod, in.Address),
	}
	if err := s.store.Create(ctx, order); err != nil {
		return nil, recordErr(span, err)
	}
	span.SetAttributes(attribute.String("order.id", order.ID))

	s.metrics.OrderCreated(ctx, string(order.PickupMethod))
	s.invalidateHistory(ctx, order.UserID)
	s.logger.Info("order created", "order_id", order.ID, "user_id", order.UserID, "pickup_method", order.PickupMethod)

	adminMsg := fmt.Sprintf("New order placed by user %s. Order ID: %s.", displayName(user), order.ID)
	s.afterCommit(ctx, order.ID,
		task{"notify_user", func(ctx context.Context) error {
			return s.notifier.NotifyUser(ctx, order.UserID,
				fmt.Sprintf("Your order has been placed successfully! Order ID: %s.", order.ID), domain.SeveritySuccess)
		}},
		task{"notify_admins", func(ctx context.Context) error {
			_, err := s.notifier.NotifyAllAdmins(ctx, adminMsg, domain.SeverityInfo)
			return err
		}},
		s.publishTask(domain.OrderEventCreated, order, user),
	)

	return order, nil
}

// ApproveOrder completes a pending order and deducts its stock in one
// transaction. Any missing product or shortfall rolls the whole approval
// back, leaving the order pending and stock untouched.
func (s *Service) ApproveOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	ctx, span := tracer.Start(ctx, "orders.approve", trace.WithAttributes(attribute.String("order.id", orderID)))
	defer span.End()

	order, err := s.store.Get(ctx, orderID)
	if err != nil {
		return nil, recordErr(span, err)
	}
	if err := checkTransition(order, domain.OrderStatusCompleted); err != nil {
		return nil, recordErr(span, err)
	}

	err = s.store.InTx(ctx, func(tx Tx) error {
		if err := tx.TransitionOrder(ctx, order.ID, domain.OrderStatusPending, domain.OrderStatusCompleted); err != nil {
			return err
		}
		for _, line := range aggregateItems(order.Items) {
			if err := tx.ReserveStock(ctx, line.ProductID, line.Quantity); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrInsufficientStock) {
			s.metrics.StockRejected(ctx)
			s.logger.Warn("order approval rejected", "order_id", order.ID, "error", err)
		}
		return nil, recordErr(span, err)
	}

	order.Status = domain.OrderStatusCompleted
	s.metrics.OrderApproved(ctx)
	s.invalidateHistory(ctx, order.UserID)
	s.logger.Info("order approved", "order_id", order.ID, "user_id", order.UserID)

	s.afterCommit(ctx, order.ID,
		task{"notify_user", func(ctx context.Context) error {
			return s.notifier.NotifyUser(ctx, order.UserID,
				fmt.Sprintf("Your order with ID %s has been approved and completed. Thank you for shopping with us!", order.ID),
				domain.SeveritySuccess)
		}},
		s.publishTask(domain.OrderEventApproved, order, nil),
	)

	return order, nil
}

// CancelOrder cancels a pending order. Stock is not touched since it was
// never deducted.
func (s *Service) CancelOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	ctx, span := tracer.Start(ctx, "orders.cancel", trace.WithAttributes(attribute.String("order.id", orderID)))
	defer span.End()

	order, err := s.store.Get(ctx, orderID)
	if err != nil {
		return nil, recordErr(span, err)
	}
	if err := checkTransition(order, domain.OrderStatusCancelled); err != nil {
		return nil, recordErr(span, err)
	}

	err = s.store.InTx(ctx, func(tx Tx) error {
		return tx.TransitionOrder(ctx, order.ID, domain.OrderStatusPending, domain.OrderStatusCancelled)
	})
	if err != nil {
		return nil, recordErr(span, err)
	}

	order.Status = domain.OrderStatusCancelled
	s.metrics.OrderCancelled(ctx)
	s.invalidateHistory(ctx, order.UserID)
	s.logger.Info("order cancelled", "order_id", order.ID, "user_id", order.UserID)

	s.afterCommit(ctx, order.ID,
		task{"notify_user", func(ctx context.Context) error {
			return s.notifier.NotifyUser(ctx, order.UserID,
				fmt.Sprintf("Your order with ID %s has been cancelled.", order.ID), domain.SeverityWarning)
		}},
		s.publishTask(domain.OrderEventCancelled, order, nil),
	)

	return order, nil
}

func checkTransition(order *domain.Order, to domain.OrderStatus) error {
	if order.Status == domain.OrderStatusPending {
		return nil
	}
	verb := "approve"
	if to == domain.OrderStatusCancelled {
		verb = "cancel"
	}
	return fmt.Errorf("%w: cannot %s a %s order", domain.ErrInvalidTransition, verb, strings.ToLower(string(order.Status)))
}

// aggregateItems sums quantities per product and orders the result by
// product id so concurrent approvals lock rows in the same order.
func aggregateItems(items []domain.OrderItem) []domain.OrderItem {
	totals := make(map[string]int, len(items))
	for _, item := range items {
		totals[item.ProductID] += item.Quantity
	}

	lines := make([]domain.OrderItem, 0, len(totals))
	for id, qty := range totals {
		lines = append(lines, domain.OrderItem{ProductID: id, Quantity: qty})
	}
	sort.Slice(lines, func(i, j int) bool { return lines[i].ProductID < lines[j].ProductID })
	return lines
}

func (s *Service) DeleteOrder(ctx context.Context, orderID string) error {
	order, err := s.store.Get(ctx, orderID)
	if err != nil {
		return err
	}
	if err := s.store.Delete(ctx, orderID); err != nil {
		return err
	}

	s.invalidateHistory(ctx, order.UserID)
	s.logger.Info("order deleted", "order_id", orderID, "user_id", order.UserID)
	return nil
}

// DeleteOrdersForUser removes every order of an existing user.
func (s *Service) DeleteOrdersForUser(ctx context.Context, userID string) (int64, error) {
	if _, err := s.users.GetUser(ctx, userID); err != nil {
		return 0, err
	}

	n, err := s.store.DeleteByUser(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("delete user orders: %w", err)
	}

	s.invalidateHistory(ctx, userID)
	s.logger.Info("user orders deleted", "user_id", userID, "count", n)
	return n, nil
}

func (s *Service) DeleteAllOrders(ctx context.Context) (int64, error) {
	n, err := s.store.DeleteAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("delete all orders: %w", err)
	}

	if s.history != nil {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sideEffectTimeout)
		defer cancel()
		s.history.InvalidateAll(ctx)
	}
	s.logger.Info("all orders deleted", "count", n)
	return n, nil
}

// SweepStalePickups deletes pickup orders still pending after
// StalePickupAge. It sends no notifications and is safe to repeat.
func (s *Service) SweepStalePickups(ctx context.Context) (int64, error) {
	ctx, span := tracer.Start(ctx, "orders.sweep_stale_pickups")
	defer span.End()

	cutoff := s.now().Add(-StalePickupAge)
	users, err := s.store.DeleteStalePickups(ctx, cutoff)
	if err != nil {
		return 0, recordErr(span, err)
	}

	n := int64(len(users))
	span.SetAttributes(attribute.Int64("orders.deleted", n))
	if n > 0 {
		s.metrics.JanitorDeleted(ctx, n)
		s.invalidateHistory(ctx, users...)
	}
	s.logger.Info("stale pickup orders swept", "count", n, "cutoff", cutoff)
	return n, nil
}

// invalidateHistory runs after a commit, so it must outlive a client that
// has already gone away.
func (s *Service) invalidateHistory(ctx context.Context, userIDs ...string) {
	if s.history == nil || len(userIDs) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sideEffectTimeout)
	defer cancel()
	s.history.Invalidate(ctx, userIDs...)
}

// task is a named post-commit side effect.
type task struct {
	name string
	run  func(ctx context.Context) error
}

// afterCommit runs tasks in order on a separate goroutine, detached from
// the request's cancellation but keeping its trace. Failures are logged
// and counted, never returned.
func (s *Service) afterCommit(ctx context.Context, orderID string, tasks ...task) {
	ctx = context.WithoutCancel(ctx)

	s.pending.Add(1)
	go func() {
		defer s.pending.Done()

		ctx, cancel := context.WithTimeout(ctx, sideEffectTimeout)
		defer cancel()

		for _, t := range tasks {
			if t.run == nil {
				continue
			}
			if err := t.run(ctx); err != nil {
				s.metrics.SideEffectFailed(ctx, t.name)
				s.logger.Error("post-commit task failed", "task", t.name, "order_id", orderID, "error", err)
			}
		}
	}()
}

// publishTask builds the event task. user may be nil, in which case it is
// looked up when the task runs.
func (s *Service) publishTask(eventType domain.OrderEventType, order *domain.Order, user *domain.User) task {
	if s.publisher == nil {
		return task{name: "publish_event"}
	}

	snapshot := *order
	return task{"publish_event", func(ctx context.Context) error {
		u := user
		if u == nil {
			var err error
			if u, err = s.users.GetUser(ctx, snapshot.UserID); err != nil {
				return fmt.Errorf("load user for event: %w", err)
			}
		}
		return s.publisher.PublishOrderEvent(ctx, domain.OrderEvent{
			Type:         eventType,
			OrderID:      snapshot.ID,
			UserID:       snapshot.UserID,
			UserEmail:    u.Email,
			UserName:     u.FullName(),
			Items:        snapshot.Items,
			TotalAmount:  snapshot.TotalAmount,
			PickupMethod: snapshot.PickupMethod,
			Address:      snapshot.Address,
			Timestamp:    s.now().UTC(),
		})
	}}
}

func displayName(u *domain.User) string {
	if name := u.FullName(); name != "" {
		return name
	}
	return u.Email
}

func recordErr(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
