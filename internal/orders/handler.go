package orders

import (
	"log/slog"
	"net/http"

	"github.com/joao-fontenele/marketplace/internal/auth"
	"github.com/joao-fontenele/marketplace/internal/web"
)

type Handler struct {
	svc    *Service
	logger *slog.Logger
}

func NewHandler(svc *Service, logger *slog.Logger) *Handler {
	return &Handler{
		svc:    svc,
		logger: logger,
	}
}

func (h *Handler) Register(mux *http.ServeMux, guard *auth.Guard) {
	manage := auth.Principal.CanManageOrders

	mux.Handle("POST /orders", guard.Require(auth.AnyAccount, h.HandleCreate))
	mux.Handle("GET /orders", guard.Require(manage, h.HandleList))
	mux.Handle("DELETE /orders", guard.Require(manage, h.HandleDeleteAll))
	mux.Handle("GET /orders/week", guard.Require(manage, h.HandleThisWeek))
	mux.Handle("GET /orders/week/count", guard.Require(manage, h.HandleCountThisWeek))
	mux.Handle("GET /orders/pending", guard.Require(manage, h.HandlePending))
	mux.Handle("POST /orders/sweep", guard.Require(manage, h.HandleSweep))
	mux.Handle("GET /orders/{orderId}", guard.Require(auth.AnyAccount, h.HandleGet))
	mux.Handle("GET /orders/{orderId}/details", guard.Require(auth.AnyAccount, h.HandleDetails))
	mux.Handle("POST /orders/{orderId}/approve", guard.Require(manage, h.HandleApprove))
	mux.Handle("POST /orders/{orderId}/cancel", guard.Require(manage, h.HandleCancel))
	mux.Handle("DELETE /orders/{orderId}", guard.Require(manage, h.HandleDelete))

	mux.Handle("GET /users/{userId}/orders", guard.Require(auth.AnyAccount, h.HandleListForUser))
	mux.Handle("DELETE /users/{userId}/orders", guard.Require(manage, h.HandleDeleteForUser))
}

func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var in CreateInput
	if err := web.Decode(w, r, &in); err != nil {
		web.Error(w, h.logger, err)
		return
	}
	if err := auth.ActFor(r, in.UserID); err != nil {
		web.Error(w, h.logger, err)
		return
	}

	order, err := h.svc.CreateOrder(r.Context(), in)
	if err != nil {
		web.Error(w, h.logger, err)
		return
	}

	web.Message(w, h.logger, http.StatusCreated,
		"Order created successfully. Notifications sent to user and admins.", map[string]any{"order": order})
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	view, err := h.svc.GetOrder(r.Context(), r.PathValue("orderId"))
	if err != nil {
		web.Error(w, h.logger, err)
		return
	}
	if err := auth.ActFor(r, view.UserID); err != nil {
		web.Error(w, h.logger, err)
		return
	}
	web.JSON(w, h.logger, http.StatusOK, view)
}

func (h *Handler) HandleDetails(w http.ResponseWriter, r *http.Request) {
	view, err := h.svc.OrderDetails(r.Context(), r.PathValue("orderId"))
	if err != nil {
		web.Error(w, h.logger, err)
		return
	}
	if err := auth.ActFor(r, view.UserID); err != nil {
		web.Error(w, h.logger, err)
		return
	}
	web.JSON(w, h.logger, http.StatusOK, view)
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	views, err := h.svc.ListOrders(r.Context())
	if err != nil {
		web.Error(w, h.logger, err)
		return
	}
	h.logger.Info("orders listed", "count", len(views))
	web.Message(w, h.logger, http.StatusOK, "Orders retrieved successfully", map[string]any{"orders": views})
}

func (h *Handler) HandleThisWeek(w http.ResponseWriter, r *http.Request) {
	views, err := h.svc.OrdersThisWeek(r.Context())
	if err != nil {
		web.Error(w, h.logger, err)
		return
	}
	web.Message(w, h.logger, http.StatusOK, "Orders for this week retrieved successfully", map[string]any{"orders": views})
}

func (h *Handler) HandleCountThisWeek(w http.ResponseWriter, r *http.Request) {
	n, err := h.svc.OrderCountThisWeek(r.Context())
	if err != nil {
		web.Error(w, h.logger, err)
		return
	}
	web.Message(w, h.logger, http.StatusOK, "Order count for this week retrieved successfully",
		map[string]any{"orderCount": n})
}

func (h *Handler) HandlePending(w http.ResponseWriter, r *http.Request) {
	views, err := h.svc.PendingOrders(r.Context())
	if err != nil {
		web.Error(w, h.logger, err)
		return
	}
	web.Message(w, h.logger, http.StatusOK, "Pending orders retrieved successfully", map[string]any{"orders": views})
}

func (h *Handler) HandleListForUser(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("userId")
	if err := auth.ActFor(r, userID); err != nil {
		web.Error(w, h.logger, err)
		return
	}

	views, err := h.svc.OrdersForUser(r.Context(), userID)
	if err != nil {
		web.Error(w, h.logger, err)
		return
	}
	web.Message(w, h.logger, http.StatusOK, "User orders retrieved successfully", map[string]any{"orders": views})
}

func (h *Handler) HandleApprove(w http.ResponseWriter, r *http.Request) {
	order, err := h.svc.ApproveOrder(r.Context(), r.PathValue("orderId"))
	if err != nil {
		web.Error(w, h.logger, err)
		return
	}
	web.Message(w, h.logger, http.StatusOK, "Order approved and products updated.", map[string]any{"order": order})
}

func (h *Handler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	order, err := h.svc.CancelOrder(r.Context(), r.PathValue("orderId"))
	if err != nil {
		web.Error(w, h.logger, err)
		return
	}
	web.Message(w, h.logger, http.StatusOK, "Order cancelled successfully.", map[string]any{"order": order})
}

func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteOrder(r.Context(), r.PathValue("orderId")); err != nil {
		web.Error(w, h.logger, err)
		return
	}
	web.Message(w, h.logger, http.StatusOK, "Order deleted successfully", nil)
}

func (h *Handler) HandleDeleteForUser(w http.ResponseWriter, r *http.Request) {
	n, err := h.svc.DeleteOrdersForUser(r.Context(), r.PathValue("userId"))
	if err != nil {
		web.Error(w, h.logger, err)
		return
	}
	web.Message(w, h.logger, http.StatusOK, "All orders for the user have been deleted", map[string]any{"deleted": n})
}

func (h *Handler) HandleDeleteAll(w http.ResponseWriter, r *http.Request) {
	n, err := h.svc.DeleteAllOrders(r.Context())
	if err != nil {
		web.Error(w, h.logger, err)
		return
	}
	web.Message(w, h.logger, http.StatusOK, "All orders deleted successfully", map[string]any{"deleted": n})
}

func (h *Handler) HandleSweep(w http.ResponseWriter, r *http.Request) {
	n, err := h.svc.SweepStalePickups(r.Context())
	if err != nil {
		web.Error(w, h.logger, err)
		return
	}
	web.Message(w, h.logger, http.StatusOK, "Stale pickup orders removed", map[string]any{"deleted": n})
}
