package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ds124wfegd/smartblood/internal/entity"
)

type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

func NewPostgresRepositories(db *sql.DB) *Repositories {
	return &Repositories{
		Profiles:      &profilePostgres{db: db},
		Requests:      &requestPostgres{db: db},
		DonorRequests: &donorRequestPostgres{db: db},
		Notifications: &notificationPostgres{db: db},
	}
}

const insertNotificationQuery = `
	INSERT INTO notifications (
		id, recipient_id, title, message, read, created_at,
		request_id, location, urgency, units
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	ON CONFLICT (recipient_id, id) DO NOTHING
`

func insertNotification(ctx context.Context, exec execer, n *entity.Notification) error {
	_, err := exec.ExecContext(ctx, insertNotificationQuery,
		n.ID,
		n.RecipientID,
		n.Title,
		n.Message,
		n.Read,
		n.Timestamp,
		n.RequestID,
		n.Location,
		string(n.Urgency),
		n.Units,
	)
	if err != nil {
		return entity.Unavailable("insert notification", err)
	}
	return nil
}

// applyStatusChange runs the conditional update plus its side effects in one
// transaction. update must only match rows still in change.From.
func applyStatusChange(ctx context.Context, db *sql.DB, table string, notFound error,
	change entity.StatusChange, update string, args ...interface{}) (bool, error) {

	tx, err := db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return false, entity.Unavailable("begin transaction", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, update, args...)
	if err != nil {
		return false, entity.Unavailable("update "+table+" status", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, entity.Unavailable("get rows affected", err)
	}
	if rowsAffected == 0 {
		var exists bool
		query := fmt.Sprintf(`SELECT EXISTS(SELECT 1 FROM %s WHERE id = $1)`, table)
		if err := tx.QueryRowContext(ctx, query, change.ID).Scan(&exists); err != nil {
			return false, entity.Unavailable("check "+table, err)
		}
		if !exists {
			return false, notFound
		}
		return false, nil
	}

	if change.CreditProfileID != "" {
		query := `UPDATE profiles SET donation_count = donation_count + 1, updated_at = $1 WHERE id = $2`
		if _, err := tx.ExecContext(ctx, query, change.At, change.CreditProfileID); err != nil {
			return false, entity.Unavailable("credit donation", err)
		}
	}

	if change.Notification != nil {
		if err := insertNotification(ctx, tx, change.Notification); err != nil {
			return false, err
		}
	}

	if err := tx.Commit(); err != nil {
		return false, entity.Unavailable("commit transaction", err)
	}
	return true, nil
}
