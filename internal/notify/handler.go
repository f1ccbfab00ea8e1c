package notify

import (
	"log/slog"
	"net/http"

	"github.com/joao-fontenele/marketplace/internal/auth"
	"github.com/joao-fontenele/marketplace/internal/web"
)

// Handler serves the caller's own inbox, for users and admins alike.
type Handler struct {
	fanout *Fanout
	logger *slog.Logger
}

func NewHandler(fanout *Fanout, logger *slog.Logger) *Handler {
	return &Handler{
		fanout: fanout,
		logger: logger,
	}
}

func (h *Handler) Register(mux *http.ServeMux, guard *auth.Guard) {
	mux.Handle("GET /notifications", guard.Require(auth.AnyAccount, h.HandleInbox))
	mux.Handle("PATCH /notifications/read", guard.Require(auth.AnyAccount, h.HandleMarkAllRead))
	mux.Handle("PATCH /notifications/{notificationId}/read", guard.Require(auth.AnyAccount, h.HandleMarkRead))
}

func (h *Handler) HandleInbox(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.FromContext(r.Context())

	inbox, err := h.fanout.Inbox(r.Context(), p.Account())
	if err != nil {
		web.Error(w, h.logger, err)
		return
	}
	web.Message(w, h.logger, http.StatusOK, "Notifications retrieved successfully", map[string]any{"notifications": inbox})
}

func (h *Handler) HandleMarkAllRead(w http.ResponseWriter, r *http.Request) {
	h.markRead(w, r, "")
}

func (h *Handler) HandleMarkRead(w http.ResponseWriter, r *http.Request) {
	h.markRead(w, r, r.PathValue("notificationId"))
}

func (h *Handler) markRead(w http.ResponseWriter, r *http.Request, id string) {
	p, _ := auth.FromContext(r.Context())

	if err := h.fanout.MarkRead(r.Context(), p.Account(), id); err != nil {
		web.Error(w, h.logger, err)
		return
	}

	msg := "All notifications marked as read"
	if id != "" {
		msg = "Notification marked as read"
	}
	web.Message(w, h.logger, http.StatusOK, msg, nil)
}
