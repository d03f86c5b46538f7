package database

import (
	"context"
	"database/sql"

	"github.com/ds124wfegd/smartblood/internal/entity"
)

type profilePostgres struct {
	db *sql.DB
}

const profileColumns = `
	id, name, role, blood_type, location_name, lat, lon,
	email, phone, donation_count, created_at, updated_at
`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanProfile(row rowScanner) (*entity.Profile, error) {
	var p entity.Profile
	var lat, lon sql.NullFloat64

	err := row.Scan(
		&p.ID,
		&p.Name,
		&p.Role,
		&p.BloodType,
		&p.Location.Name,
		&lat,
		&lon,
		&p.Email,
		&p.Phone,
		&p.DonationCount,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if lat.Valid && lon.Valid {
		p.Location.Lat = &lat.Float64
		p.Location.Lon = &lon.Float64
	}
	return &p, nil
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

// Upsert never touches donation_count on an existing row.
func (r *profilePostgres) Upsert(ctx context.Context, profile *entity.Profile) error {
	query := `
		INSERT INTO profiles (
			id, name, role, blood_type, location_name, lat, lon,
			email, phone, donation_count, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 0, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			role = EXCLUDED.role,
			blood_type = EXCLUDED.blood_type,
			location_name = EXCLUDED.location_name,
			lat = EXCLUDED.lat,
			lon = EXCLUDED.lon,
			email = EXCLUDED.email,
			phone = EXCLUDED.phone,
			updated_at = EXCLUDED.updated_at
		RETURNING donation_count, created_at
	`

	err := r.db.QueryRowContext(ctx, query,
		profile.ID,
		profile.Name,
		profile.Role,
		profile.BloodType,
		profile.Location.Name,
		nullFloat(profile.Location.Lat),
		nullFloat(profile.Location.Lon),
		profile.Email,
		profile.Phone,
		profile.CreatedAt,
		profile.UpdatedAt,
	).Scan(&profile.DonationCount, &profile.CreatedAt)
	if err != nil {
		return entity.Unavailable("upsert profile", err)
	}
	return nil
}

func (r *profilePostgres) GetByID(ctx context.Context, id string) (*entity.Profile, error) {
	query := `SELECT ` + profileColumns + ` FROM profiles WHERE id = $1`

	p, err := scanProfile(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, entity.ErrProfileNotFound
	}
	if err != nil {
		return nil, entity.Unavailable("get profile", err)
	}
	return p, nil
}

func (r *profilePostgres) query(ctx context.Context, query string, args ...interface{}) ([]*entity.Profile, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, entity.Unavailable("query profiles", err)
	}
	defer rows.Close()

	var profiles []*entity.Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, entity.Unavailable("scan profile", err)
		}
		profiles = append(profiles, p)
	}

	if err := rows.Err(); err != nil {
		return nil, entity.Unavailable("iterate profiles", err)
	}
	return profiles, nil
}

func (r *profilePostgres) List(ctx context.Context) ([]*entity.Profile, error) {
	return r.query(ctx, `SELECT `+profileColumns+` FROM profiles ORDER BY created_at ASC, id ASC`)
}

func (r *profilePostgres) ListDonorsByBloodType(ctx context.Context, bloodType string) ([]*entity.Profile, error) {
	query := `SELECT ` + profileColumns + ` FROM profiles
		WHERE role = 'donor' AND blood_type = $1
		ORDER BY created_at ASC, id ASC`
	return r.query(ctx, query, bloodType)
}
