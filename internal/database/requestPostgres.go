package database

import (
	"context"
	"database/sql"
	"time"

	"github.com/ds124wfegd/smartblood/internal/entity"

	"github.com/lib/pq"
)

type requestPostgres struct {
	db *sql.DB
}

const requestColumns = `
	id, requester_id, requester_name, blood_type, units, location, urgency,
	contact, notes, needed_by, hospital, patient_id, status, donor_id,
	donor_name, suspicious, flag_reasons, notified, created_at, updated_at
`

func scanRequest(row rowScanner) (*entity.BloodRequest, error) {
	var r entity.BloodRequest
	var reasons pq.StringArray

	err := row.Scan(
		&r.ID,
		&r.RequesterID,
		&r.RequesterName,
		&r.BloodType,
		&r.Units,
		&r.Location,
		&r.Urgency,
		&r.Contact,
		&r.Notes,
		&r.NeededBy,
		&r.Hospital,
		&r.PatientID,
		&r.Status,
		&r.DonorID,
		&r.DonorName,
		&r.Suspicious,
		&reasons,
		&r.Notified,
		&r.CreatedAt,
		&r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(reasons) > 0 {
		r.FlagReasons = []string(reasons)
	}
	return &r, nil
}

func (r *requestPostgres) Create(ctx context.Context, request *entity.BloodRequest) error {
	query := `
		INSERT INTO blood_requests (` + requestColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
			$15, $16, $17, $18, $19, $20)
	`

	_, err := r.db.ExecContext(ctx, query,
		request.ID,
		request.RequesterID,
		request.RequesterName,
		request.BloodType,
		request.Units,
		request.Location,
		request.Urgency,
		request.Contact,
		request.Notes,
		request.NeededBy,
		request.Hospital,
		request.PatientID,
		request.Status,
		request.DonorID,
		request.DonorName,
		request.Suspicious,
		pq.Array(append([]string{}, request.FlagReasons...)),
		request.Notified,
		request.CreatedAt,
		request.UpdatedAt,
	)
	if err != nil {
		return entity.Unavailable("create blood request", err)
	}
	return nil
}

func (r *requestPostgres) GetByID(ctx context.Context, id string) (*entity.BloodRequest, error) {
	query := `SELECT ` + requestColumns + ` FROM blood_requests WHERE id = $1`

	req, err := scanRequest(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, entity.ErrRequestNotFound
	}
	if err != nil {
		return nil, entity.Unavailable("get blood request", err)
	}
	return req, nil
}

func (r *requestPostgres) query(ctx context.Context, query string, args ...interface{}) ([]*entity.BloodRequest, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, entity.Unavailable("query blood requests", err)
	}
	defer rows.Close()

	var requests []*entity.BloodRequest
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, entity.Unavailable("scan blood request", err)
		}
		requests = append(requests, req)
	}

	if err := rows.Err(); err != nil {
		return nil, entity.Unavailable("iterate blood requests", err)
	}
	return requests, nil
}

func (r *requestPostgres) List(ctx context.Context) ([]*entity.BloodRequest, error) {
	return r.query(ctx, `SELECT `+requestColumns+` FROM blood_requests ORDER BY created_at DESC, id ASC`)
}

func (r *requestPostgres) ListByContactSince(ctx context.Context, contact string, since time.Time) ([]*entity.BloodRequest, error) {
	query := `SELECT ` + requestColumns + ` FROM blood_requests
		WHERE contact = $1 AND created_at >= $2
		ORDER BY created_at DESC, id ASC`
	return r.query(ctx, query, contact, since)
}

func (r *requestPostgres) ListUnnotified(ctx context.Context, limit int) ([]*entity.BloodRequest, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `SELECT ` + requestColumns + ` FROM blood_requests
		WHERE notified = FALSE
		ORDER BY created_at ASC
		LIMIT $1`
	return r.query(ctx, query, limit)
}

func (r *requestPostgres) UpdateStatus(ctx context.Context, change entity.StatusChange) (bool, error) {
	query := `
		UPDATE blood_requests SET
			status = $1,
			updated_at = $2,
			donor_id = CASE WHEN donor_id = '' THEN $3 ELSE donor_id END,
			donor_name = CASE WHEN donor_id = '' THEN $4 ELSE donor_name END
		WHERE id = $5 AND status = $6
	`
	return applyStatusChange(ctx, r.db, "blood_requests", entity.ErrRequestNotFound, change, query,
		change.To, change.At, change.DonorID, change.DonorName, change.ID, change.From)
}

func (r *requestPostgres) ClaimFanout(ctx context.Context, id string) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE blood_requests SET notified = TRUE WHERE id = $1 AND notified = FALSE`, id)
	if err != nil {
		return false, entity.Unavailable("claim fan-out", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, entity.Unavailable("get rows affected", err)
	}
	if rowsAffected == 1 {
		return true, nil
	}

	var exists bool
	if err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM blood_requests WHERE id = $1)`, id).Scan(&exists); err != nil {
		return false, entity.Unavailable("check blood request", err)
	}
	if !exists {
		return false, entity.ErrRequestNotFound
	}
	return false, nil
}

func (r *requestPostgres) ReleaseFanout(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `UPDATE blood_requests SET notified = FALSE WHERE id = $1`, id)
	if err != nil {
		return entity.Unavailable("release fan-out", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return entity.Unavailable("get rows affected", err)
	}
	if rowsAffected == 0 {
		return entity.ErrRequestNotFound
	}
	return nil
}
