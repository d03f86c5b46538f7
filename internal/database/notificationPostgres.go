package database

import (
	"context"
	"database/sql"

	"github.com/ds124wfegd/smartblood/internal/entity"
)

type notificationPostgres struct {
	db *sql.DB
}

func (r *notificationPostgres) Create(ctx context.Context, notification *entity.Notification) error {
	return insertNotification(ctx, r.db, notification)
}

func (r *notificationPostgres) ListByRecipient(ctx context.Context, recipientID string) ([]*entity.Notification, error) {
	query := `
		SELECT id, recipient_id, title, message, read, created_at,
			request_id, location, urgency, units
		FROM notifications
		WHERE recipient_id = $1
		ORDER BY created_at DESC, id ASC
	`

	rows, err := r.db.QueryContext(ctx, query, recipientID)
	if err != nil {
		return nil, entity.Unavailable("query notifications", err)
	}
	defer rows.Close()

	var notifications []*entity.Notification
	for rows.Next() {
		var n entity.Notification
		err := rows.Scan(
			&n.ID,
			&n.RecipientID,
			&n.Title,
			&n.Message,
			&n.Read,
			&n.Timestamp,
			&n.RequestID,
			&n.Location,
			&n.Urgency,
			&n.Units,
		)
		if err != nil {
			return nil, entity.Unavailable("scan notification", err)
		}
		notifications = append(notifications, &n)
	}

	if err := rows.Err(); err != nil {
		return nil, entity.Unavailable("iterate notifications", err)
	}
	return notifications, nil
}

func (r *notificationPostgres) MarkRead(ctx context.Context, recipientID, id string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE notifications SET read = TRUE WHERE recipient_id = $1 AND id = $2`, recipientID, id)
	if err != nil {
		return entity.Unavailable("mark notification read", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return entity.Unavailable("get rows affected", err)
	}
	if rowsAffected == 0 {
		return entity.ErrNotificationNotFound
	}
	return nil
}
