package worker

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"

	"github.com/joao-fontenele/marketplace/internal/domain"
)

//go:embed templates/*.html
var templateFS embed.FS

var subjects = map[domain.OrderEventType]string{
	domain.OrderEventCreated:   "Order received: %s",
	domain.OrderEventApproved:  "Order completed: %s",
	domain.OrderEventCancelled: "Order cancelled: %s",
}

// Mailer turns order events into emails sent through the email service.
type Mailer struct {
	emailServiceURL string
	httpClient      *http.Client
	templates       map[domain.OrderEventType]*template.Template
	logger          *slog.Logger
}

func NewMailer(emailServiceURL string, client *http.Client, logger *slog.Logger) (*Mailer, error) {
	templates := make(map[domain.OrderEventType]*template.Template, len(subjects))
	for eventType := range subjects {
		tmpl, err := template.ParseFS(templateFS, "templates/layout.html", "templates/"+string(eventType)+".html")
		if err != nil {
			return nil, fmt.Errorf("parse %s template: %w", eventType, err)
		}
		templates[eventType] = tmpl
	}

	return &Mailer{
		emailServiceURL: emailServiceURL,
		httpClient:      client,
		templates:       templates,
		logger:          logger,
	}, nil
}

type sendRequest struct {
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
}

func (m *Mailer) Handle(ctx context.Context, event domain.OrderEvent) error {
	tmpl, ok := m.templates[event.Type]
	if !ok {
		m.logger.Warn("ignoring order event", "type", event.Type, "order_id", event.OrderID)
		return nil
	}
	if event.UserEmail == "" {
		m.logger.Warn("order event has no recipient", "type", event.Type, "order_id", event.OrderID)
		return nil
	}

	var body bytes.Buffer
	if err := tmpl.ExecuteTemplate(&body, "layout", event); err != nil {
		return fmt.Errorf("render %s email: %w", event.Type, err)
	}

	req := sendRequest{
		To:      []string{event.UserEmail},
		Subject: fmt.Sprintf(subjects[event.Type], event.OrderID),
		HTML:    body.String(),
	}
	if err := m.send(ctx, req); err != nil {
		return fmt.Errorf("send %s email for order %s: %w", event.Type, event.OrderID, err)
	}

	m.logger.Info("order email sent", "type", event.Type, "order_id", event.OrderID)
	return nil
}

func (m *Mailer) send(ctx context.Context, body sendRequest) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.emailServiceURL+"/send", bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("email service returned status %d", resp.StatusCode)
	}

	return nil
}
