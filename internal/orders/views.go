package orders

import (
	"context"

	"github.com/joao-fontenele/marketplace/internal/domain"
)

// lineDetail selects how much catalog data a view carries per product.
type lineDetail int

const (
	lineBasic lineDetail = iota
	lineFull
)

// GetOrder returns the summary view of one order.
func (s *Service) GetOrder(ctx context.Context, orderID string) (*domain.OrderView, error) {
	order, err := s.store.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	views, err := s.render(ctx, []domain.Order{*order}, lineBasic, false)
	if err != nil {
		return nil, err
	}
	return &views[0], nil
}

// OrderDetails returns one order with full product data, stock included.
func (s *Service) OrderDetails(ctx context.Context, orderID string) (*domain.OrderView, error) {
	order, err := s.store.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	views, err := s.render(ctx, []domain.Order{*order}, lineFull, false)
	if err != nil {
		return nil, err
	}
	return &views[0], nil
}

func (s *Service) ListOrders(ctx context.Context) ([]domain.OrderView, error) {
	return s.listViews(ctx, Filter{}, false)
}

// OrdersThisWeek lists orders placed in the last seven days with the
// ordering user's name.
func (s *Service) OrdersThisWeek(ctx context.Context) ([]domain.OrderView, error) {
	return s.listViews(ctx, Filter{Since: s.now().Add(-recentWindow)}, true)
}

func (s *Service) PendingOrders(ctx context.Context) ([]domain.OrderView, error) {
	return s.listViews(ctx, Filter{Status: domain.OrderStatusPending}, true)
}

func (s *Service) OrdersForUser(ctx context.Context, userID string) ([]domain.OrderView, error) {
	if _, err := s.users.GetUser(ctx, userID); err != nil {
		return nil, err
	}
	return s.listViews(ctx, Filter{UserID: userID}, false)
}

func (s *Service) OrderCountThisWeek(ctx context.Context) (int, error) {
	return s.store.Count(ctx, Filter{Since: s.now().Add(-recentWindow)})
}

// UserOrderHistory returns the derived history summaries for userID,
// served from the cache when present.
func (s *Service) UserOrderHistory(ctx context.Context, userID string) ([]domain.OrderSummary, error) {
	if s.history != nil {
		if cached, ok := s.history.Get(ctx, userID); ok {
			return cached, nil
		}
	}

	orders, err := s.store.List(ctx, Filter{UserID: userID})
	if err != nil {
		return nil, err
	}

	history := make([]domain.OrderSummary, len(orders))
	for i := range orders {
		history[i] = orders[i].Summary()
	}

	if s.history != nil {
		s.history.Set(ctx, userID, history)
	}
	return history, nil
}

func (s *Service) listViews(ctx context.Context, f Filter, withNames bool) ([]domain.OrderView, error) {
	orders, err := s.store.List(ctx, f)
	if err != nil {
		return nil, err
	}
	return s.render(ctx, orders, lineBasic, withNames)
}

// render joins orders with the catalog and, when withNames is set, the
// ordering users. Products that no longer exist are left out and missing
// users are shown as "Unknown User".
func (s *Service) render(ctx context.Context, orders []domain.Order, detail lineDetail, withNames bool) ([]domain.OrderView, error) {
	products, err := s.catalog.ProductsByIDs(ctx, productIDs(orders))
	if err != nil {
		return nil, err
	}

	var users map[string]domain.User
	if withNames {
		if users, err = s.users.UsersByIDs(ctx, userIDs(orders)); err != nil {
			return nil, err
		}
	}

	views := make([]domain.OrderView, len(orders))
	for i := range orders {
		o := &orders[i]
		view := domain.OrderView{
			OrderID:      o.ID,
			UserID:       o.UserID,
			Products:     []domain.ProductLine{},
			TotalAmount:  o.TotalAmount,
			Status:       o.Status,
			Active:       o.Active(),
			OrderDate:    o.OrderDate,
			PickupMethod: o.PickupMethod,
			Address:      o.Address,
		}
		if withNames {
			view.FullName = unknownUser
			if u, ok := users[o.UserID]; ok {
				view.FullName = u.FullName()
			}
		}

		for _, item := range o.Items {
			p, ok := products[item.ProductID]
			if !ok {
				continue
			}
			view.Products = append(view.Products, productLine(p, item.Quantity, detail))
		}
		views[i] = view
	}
	return views, nil
}

func productLine(p domain.Product, quantity int, detail lineDetail) domain.ProductLine {
	line := domain.ProductLine{
		ProductID: p.ID,
		Name:      p.Name,
		Price:     p.Price,
		Image:     p.Image(),
		Quantity:  quantity,
	}
	if detail == lineFull {
		stock := p.Quantity
		line.Description = p.Description
		line.Category = p.Category
		line.Stock = &stock
	}
	return line
}

func productIDs(orders []domain.Order) []string {
	seen := map[string]bool{}
	ids := []string{}
	for _, o := range orders {
		for _, item := range o.Items {
			if !seen[item.ProductID] {
				seen[item.ProductID] = true
				ids = append(ids, item.ProductID)
			}
		}
	}
	return ids
}

func userIDs(orders []domain.Order) []string {
	seen := map[string]bool{}
	ids := []string{}
	for _, o := range orders {
		if !seen[o.UserID] {
			seen[o.UserID] = true
			ids = append(ids, o.UserID)
		}
	}
	return ids
}
