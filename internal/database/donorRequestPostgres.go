package database

import (
	"context"
	"database/sql"

	"github.com/ds124wfegd/smartblood/internal/entity"
)

type donorRequestPostgres struct {
	db *sql.DB
}

const donorRequestColumns = `id, from_id, to_id, status, created_at, updated_at`

func scanDonorRequest(row rowScanner) (*entity.DonorRequest, error) {
	var dr entity.DonorRequest
	err := row.Scan(
		&dr.ID,
		&dr.FromID,
		&dr.ToID,
		&dr.Status,
		&dr.CreatedAt,
		&dr.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &dr, nil
}

// Create writes the request and the recipient's notification in one transaction
func (r *donorRequestPostgres) Create(ctx context.Context, request *entity.DonorRequest, notification *entity.Notification) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return entity.Unavailable("begin transaction", err)
	}
	defer tx.Rollback()

	query := `INSERT INTO donor_requests (` + donorRequestColumns + `) VALUES ($1, $2, $3, $4, $5, $6)`
	_, err = tx.ExecContext(ctx, query,
		request.ID,
		request.FromID,
		request.ToID,
		request.Status,
		request.CreatedAt,
		request.UpdatedAt,
	)
	if err != nil {
		return entity.Unavailable("create donor request", err)
	}

	if notification != nil {
		if err := insertNotification(ctx, tx, notification); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return entity.Unavailable("commit transaction", err)
	}
	return nil
}

func (r *donorRequestPostgres) GetByID(ctx context.Context, id string) (*entity.DonorRequest, error) {
	query := `SELECT ` + donorRequestColumns + ` FROM donor_requests WHERE id = $1`

	dr, err := scanDonorRequest(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, entity.ErrDonorRequestNotFound
	}
	if err != nil {
		return nil, entity.Unavailable("get donor request", err)
	}
	return dr, nil
}

func (r *donorRequestPostgres) query(ctx context.Context, query string, args ...interface{}) ([]*entity.DonorRequest, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, entity.Unavailable("query donor requests", err)
	}
	defer rows.Close()

	var requests []*entity.DonorRequest
	for rows.Next() {
		dr, err := scanDonorRequest(rows)
		if err != nil {
			return nil, entity.Unavailable("scan donor request", err)
		}
		requests = append(requests, dr)
	}

	if err := rows.Err(); err != nil {
		return nil, entity.Unavailable("iterate donor requests", err)
	}
	return requests, nil
}

func (r *donorRequestPostgres) ListByRecipient(ctx context.Context, toID string) ([]*entity.DonorRequest, error) {
	return r.query(ctx, `SELECT `+donorRequestColumns+` FROM donor_requests WHERE to_id = $1 ORDER BY created_at DESC, id ASC`, toID)
}

func (r *donorRequestPostgres) ListBySender(ctx context.Context, fromID string) ([]*entity.DonorRequest, error) {
	return r.query(ctx, `SELECT `+donorRequestColumns+` FROM donor_requests WHERE from_id = $1 ORDER BY created_at DESC, id ASC`, fromID)
}

func (r *donorRequestPostgres) UpdateStatus(ctx context.Context, change entity.StatusChange) (bool, error) {
	query := `UPDATE donor_requests SET status = $1, updated_at = $2 WHERE id = $3 AND status = $4`
	return applyStatusChange(ctx, r.db, "donor_requests", entity.ErrDonorRequestNotFound, change, query,
		change.To, change.At, change.ID, change.From)
}
