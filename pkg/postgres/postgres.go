package postgres

import (
	"database/sql"
	"fmt"

	"github.com/ds124wfegd/smartblood/config"

	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"
)

func NewPostgresDB(cfg *config.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logrus.Info("Successfully connected to PostgreSQL")
	return db, nil
}

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS profiles (
		id VARCHAR(64) PRIMARY KEY,
		name VARCHAR(200) NOT NULL DEFAULT '',
		role VARCHAR(16) NOT NULL,
		blood_type VARCHAR(8) NOT NULL DEFAULT '',
		location_name VARCHAR(255) NOT NULL DEFAULT '',
		lat DOUBLE PRECISION,
		lon DOUBLE PRECISION,
		email VARCHAR(255) NOT NULL DEFAULT '',
		phone VARCHAR(64) NOT NULL DEFAULT '',
		donation_count INTEGER NOT NULL DEFAULT 0 CHECK (donation_count >= 0),
		created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,

	`CREATE TABLE IF NOT EXISTS blood_requests (
		id VARCHAR(64) PRIMARY KEY,
		requester_id VARCHAR(64) NOT NULL DEFAULT '',
		requester_name VARCHAR(200) NOT NULL DEFAULT '',
		blood_type VARCHAR(8) NOT NULL DEFAULT '',
		units INTEGER NOT NULL,
		location VARCHAR(255) NOT NULL DEFAULT '',
		urgency VARCHAR(16) NOT NULL DEFAULT 'Medium',
		contact VARCHAR(255) NOT NULL DEFAULT '',
		notes TEXT NOT NULL DEFAULT '',
		needed_by VARCHAR(32) NOT NULL DEFAULT '',
		hospital VARCHAR(255) NOT NULL DEFAULT '',
		patient_id VARCHAR(64) NOT NULL DEFAULT '',
		status VARCHAR(16) NOT NULL DEFAULT 'pending',
		donor_id VARCHAR(64) NOT NULL DEFAULT '',
		donor_name VARCHAR(200) NOT NULL DEFAULT '',
		suspicious BOOLEAN NOT NULL DEFAULT FALSE,
		flag_reasons TEXT[] NOT NULL DEFAULT '{}',
		notified BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,

	`CREATE TABLE IF NOT EXISTS donor_requests (
		id VARCHAR(64) PRIMARY KEY,
		from_id VARCHAR(64) NOT NULL,
		to_id VARCHAR(64) NOT NULL REFERENCES profiles(id),
		status VARCHAR(16) NOT NULL DEFAULT 'pending',
		created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		CHECK (from_id <> to_id)
	)`,

	`CREATE TABLE IF NOT EXISTS notifications (
		id VARCHAR(64) NOT NULL,
		recipient_id VARCHAR(64) NOT NULL,
		title VARCHAR(255) NOT NULL DEFAULT '',
		message TEXT NOT NULL,
		read BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		request_id VARCHAR(64) NOT NULL DEFAULT '',
		location VARCHAR(255) NOT NULL DEFAULT '',
		urgency VARCHAR(16) NOT NULL DEFAULT '',
		units INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (recipient_id, id)
	)`,

	// Indexes
	`CREATE INDEX IF NOT EXISTS idx_profiles_donors ON profiles(blood_type) WHERE role = 'donor'`,
	`CREATE INDEX IF NOT EXISTS idx_blood_requests_contact ON blood_requests(contact, created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_blood_requests_unnotified ON blood_requests(created_at) WHERE notified = FALSE`,
	`CREATE INDEX IF NOT EXISTS idx_donor_requests_to ON donor_requests(to_id, created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_donor_requests_from ON donor_requests(from_id, created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_notifications_recipient ON notifications(recipient_id, created_at)`,
}

func RunMigrations(db *sql.DB) error {
	for _, migration := range migrations {
		if _, err := db.Exec(migration); err != nil {
			return fmt.Errorf("failed to execute migration: %w", err)
		}
	}

	logrus.Info("Database migrations completed successfully")
	return nil
}
