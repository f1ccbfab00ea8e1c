// Package notify appends in-app notifications to user and admin inboxes.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/joao-fontenele/marketplace/internal/domain"
)

// adminFanoutLimit bounds concurrent inbox writes during an admin broadcast.
const adminFanoutLimit = 8

type Store interface {
	Append(ctx context.Context, ref domain.AccountRef, n *domain.Notification) error
	Inbox(ctx context.Context, ref domain.AccountRef) ([]domain.Notification, error)
	MarkRead(ctx context.Context, ref domain.AccountRef, id string) error
	MarkAllRead(ctx context.Context, ref domain.AccountRef) error
}

// Directory resolves inbox owners.
type Directory interface {
	AccountExists(ctx context.Context, ref domain.AccountRef) (bool, error)
	ListAdmins(ctx context.Context) ([]domain.Admin, error)
}

type Fanout struct {
	store  Store
	dir    Directory
	logger *slog.Logger
	now    func() time.Time
}

func NewFanout(store Store, dir Directory, logger *slog.Logger) *Fanout {
	return &Fanout{
		store:  store,
		dir:    dir,
		logger: logger,
		now:    time.Now,
	}
}

// checkMessage validates a notification and defaults an empty severity to
// info.
func checkMessage(message string, severity domain.Severity) (domain.Severity, error) {
	if strings.TrimSpace(message) == "" {
		return "", fmt.Errorf("%w: notification message is required", domain.ErrValidation)
	}
	if severity == "" {
		severity = domain.SeverityInfo
	}
	if !severity.Valid() {
		return "", fmt.Errorf("%w: unknown severity %q", domain.ErrValidation, severity)
	}
	return severity, nil
}

func (f *Fanout) stamp(message string, severity domain.Severity) *domain.Notification {
	return &domain.Notification{
		ID:        uuid.New().String(),
		Message:   message,
		Severity:  severity,
		Timestamp: f.now().UTC(),
	}
}

func (f *Fanout) requireAccount(ctx context.Context, ref domain.AccountRef) error {
	exists, err := f.dir.AccountExists(ctx, ref)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("%s %s: %w", ref.Kind, ref.ID, domain.ErrNotFound)
	}
	return nil
}

func (f *Fanout) NotifyUser(ctx context.Context, userID, message string, severity domain.Severity) error {
	severity, err := checkMessage(message, severity)
	if err != nil {
		return err
	}
	ref := domain.UserAccount(userID)
	if err := f.requireAccount(ctx, ref); err != nil {
		return err
	}
	return f.store.Append(ctx, ref, f.stamp(message, severity))
}

// NotifyAllAdmins appends message to every admin inbox concurrently. A
// failed write is logged and does not stop the others; the returned count
// is the number of inboxes written.
func (f *Fanout) NotifyAllAdmins(ctx context.Context, message string, severity domain.Severity) (int, error) {
	severity, err := checkMessage(message, severity)
	if err != nil {
		return 0, err
	}

	admins, err := f.dir.ListAdmins(ctx)
	if err != nil {
		return 0, fmt.Errorf("list admins: %w", err)
	}

	delivered := make([]bool, len(admins))
	var g errgroup.Group
	g.SetLimit(adminFanoutLimit)
	for i, admin := range admins {
		g.Go(func() error {
			if err := f.store.Append(ctx, domain.AdminAccount(admin.ID), f.stamp(message, severity)); err != nil {
				f.logger.Error("failed to notify admin", "error", err, "admin_id", admin.ID)
				return nil
			}
			delivered[i] = true
			return nil
		})
	}
	_ = g.Wait()

	count := 0
	for _, ok := range delivered {
		if ok {
			count++
		}
	}
	return count, nil
}

// MarkRead marks one notification read when id is set, or the whole inbox
// otherwise. Repeating the call is harmless.
func (f *Fanout) MarkRead(ctx context.Context, ref domain.AccountRef, id string) error {
	if err := f.requireAccount(ctx, ref); err != nil {
		return err
	}
	if id == "" {
		return f.store.MarkAllRead(ctx, ref)
	}
	return f.store.MarkRead(ctx, ref, id)
}

func (f *Fanout) Inbox(ctx context.Context, ref domain.AccountRef) ([]domain.Notification, error) {
	if err := f.requireAccount(ctx, ref); err != nil {
		return nil, err
	}
	return f.store.Inbox(ctx, ref)
}
