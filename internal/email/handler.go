package email

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/joao-fontenele/marketplace/internal/domain"
	"github.com/joao-fontenele/marketplace/internal/web"
)

type Handler struct {
	sender Sender
	logger *slog.Logger
}

func NewHandler(sender Sender, logger *slog.Logger) *Handler {
	return &Handler{
		sender: sender,
		logger: logger,
	}
}

func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /send", h.HandleSend)
}

var validate = validator.New()

type sendRequest struct {
	To      []string `json:"to" validate:"required,min=1,dive,email"`
	Subject string   `json:"subject" validate:"required"`
	HTML    string   `json:"html" validate:"required"`
}

func (r *sendRequest) validate() error {
	if err := validate.Struct(r); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return fmt.Errorf("%w: %v", domain.ErrValidation, err)
		}
		switch first := fieldErrs[0]; {
		case first.Tag() == "email":
			return fmt.Errorf("%w: invalid recipient %q", domain.ErrValidation, first.Value())
		case first.Field() == "To":
			return fmt.Errorf("%w: at least one recipient is required", domain.ErrValidation)
		default:
			return fmt.Errorf("%w: %s is required", domain.ErrValidation, strings.ToLower(first.Field()))
		}
	}
	// Subject ends up in a header.
	if strings.TrimSpace(r.Subject) == "" || strings.ContainsAny(r.Subject, "\r\n") {
		return fmt.Errorf("%w: subject is required and must be a single line", domain.ErrValidation)
	}
	if strings.TrimSpace(r.HTML) == "" {
		return fmt.Errorf("%w: html body is required", domain.ErrValidation)
	}
	return nil
}

func (h *Handler) HandleSend(w http.ResponseWriter, r *http.Request) {
	var req sendRequest
	if err := web.Decode(w, r, &req); err != nil {
		web.Error(w, h.logger, err)
		return
	}
	if err := req.validate(); err != nil {
		web.Error(w, h.logger, err)
		return
	}

	msg := Message{To: req.To, Subject: req.Subject, HTML: req.HTML}
	if err := h.sender.Send(r.Context(), msg); err != nil {
		h.logger.Error("email delivery failed", "error", err, "to", req.To, "subject", req.Subject)
		web.Message(w, h.logger, http.StatusBadGateway, "email delivery failed", map[string]any{"error": "delivery"})
		return
	}

	web.JSON(w, h.logger, http.StatusOK, map[string]string{"status": "sent"})
}
