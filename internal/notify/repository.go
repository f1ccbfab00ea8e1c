package notify

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/joao-fontenele/marketplace/internal/domain"
	"github.com/joao-fontenele/marketplace/internal/store"
)

// Repository stores inbox entries for users and admins in one table keyed
// by account kind and id. Insertion order is kept by a sequence column.
type Repository struct {
	db store.DBTX
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Append(ctx context.Context, ref domain.AccountRef, n *domain.Notification) error {
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO notifications (id, account_kind, account_id, message, severity, is_read, created_at)
		VALUES ($1, $2, $3, $4, $5, FALSE, $6)
		RETURNING is_read
	`, n.ID, ref.Kind, ref.ID, n.Message, n.Severity, n.Timestamp).Scan(&n.IsRead)
	if err != nil {
		return fmt.Errorf("append notification: %w", err)
	}
	return nil
}

func (r *Repository) Inbox(ctx context.Context, ref domain.AccountRef) ([]domain.Notification, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, message, severity, is_read, created_at
		FROM notifications
		WHERE account_kind = $1 AND account_id = $2
		ORDER BY seq
	`, ref.Kind, ref.ID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	inbox := []domain.Notification{}
	for rows.Next() {
		var n domain.Notification
		if err := rows.Scan(&n.ID, &n.Message, &n.Severity, &n.IsRead, &n.Timestamp); err != nil {
			return nil, err
		}
		inbox = append(inbox, n)
	}
	return inbox, rows.Err()
}

// MarkRead sets one entry read. Entries already read still match, so a
// repeat call succeeds.
func (r *Repository) MarkRead(ctx context.Context, ref domain.AccountRef, id string) error {
	n, err := store.Affected(r.db.ExecContext(ctx, `
		UPDATE notifications SET is_read = TRUE
		WHERE account_kind = $1 AND account_id = $2 AND id = $3
	`, ref.Kind, ref.ID, id))
	if err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("notification %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

func (r *Repository) MarkAllRead(ctx context.Context, ref domain.AccountRef) error {
	if _, err := r.db.ExecContext(ctx, `
		UPDATE notifications SET is_read = TRUE
		WHERE account_kind = $1 AND account_id = $2 AND NOT is_read
	`, ref.Kind, ref.ID); err != nil {
		return fmt.Errorf("mark notifications read: %w", err)
	}
	return nil
}
