package database

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/ds124wfegd/smartblood/internal/entity"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockRepositories(t *testing.T) (*Repositories, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewPostgresRepositories(db), mock
}

func TestRequestPostgres_ClaimFanout(t *testing.T) {
	claim := regexp.QuoteMeta(`UPDATE blood_requests SET notified = TRUE WHERE id = $1 AND notified = FALSE`)
	exists := regexp.QuoteMeta(`SELECT EXISTS(SELECT 1 FROM blood_requests WHERE id = $1)`)

	tests := []struct {
		name        string
		setup       func(mock sqlmock.Sqlmock)
		wantClaimed bool
		wantErr     error
	}{
		{
			name: "first claim wins",
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec(claim).WithArgs("r1").WillReturnResult(sqlmock.NewResult(0, 1))
			},
			wantClaimed: true,
		},
		{
			name: "already notified",
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec(claim).WithArgs("r1").WillReturnResult(sqlmock.NewResult(0, 0))
				mock.ExpectQuery(exists).WithArgs("r1").WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
			},
		},
		{
			name: "missing request",
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec(claim).WithArgs("r1").WillReturnResult(sqlmock.NewResult(0, 0))
				mock.ExpectQuery(exists).WithArgs("r1").WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
			},
			wantErr: entity.ErrNotFound,
		},
		{
			name: "database down",
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec(claim).WithArgs("r1").WillReturnError(errors.New("connection refused"))
			},
			wantErr: entity.ErrStoreUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repos, mock := newMockRepositories(t)
			tt.setup(mock)

			claimed, err := repos.Requests.ClaimFanout(context.Background(), "r1")
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.wantClaimed, claimed)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestRequestPostgres_UpdateStatusCompletes(t *testing.T) {
	repos, mock := newMockRepositories(t)
	at := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	change := entity.StatusChange{
		ID: "r1", From: entity.StatusAccepted, To: entity.StatusCompleted,
		DonorID: "d1", DonorName: "Ravi", At: at, CreditProfileID: "d1",
	}

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE blood_requests SET`)).
		WithArgs(entity.StatusCompleted, at, "d1", "Ravi", "r1", entity.StatusAccepted).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE profiles SET donation_count = donation_count + 1`)).
		WithArgs(at, "d1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	applied, err := repos.Requests.UpdateStatus(context.Background(), change)
	require.NoError(t, err)
	assert.True(t, applied)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRequestPostgres_UpdateStatusStale(t *testing.T) {
	repos, mock := newMockRepositories(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE blood_requests SET`)).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT EXISTS(SELECT 1 FROM blood_requests WHERE id = $1)`)).
		WithArgs("r1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectRollback()

	applied, err := repos.Requests.UpdateStatus(context.Background(), entity.StatusChange{
		ID: "r1", From: entity.StatusPending, To: entity.StatusCompleted, CreditProfileID: "d1",
	})
	require.NoError(t, err)
	assert.False(t, applied)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDonorRequestPostgres_UpdateStatusRollsBackOnNotificationError(t *testing.T) {
	repos, mock := newMockRepositories(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE donor_requests SET status = $1`)).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO notifications`)).WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	_, err := repos.DonorRequests.UpdateStatus(context.Background(), entity.StatusChange{
		ID: "dr1", From: entity.StatusPending, To: entity.StatusAccepted,
		Notification: &entity.Notification{ID: "n1", RecipientID: "p1", Message: "accepted"},
	})
	assert.ErrorIs(t, err, entity.ErrStoreUnavailable)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDonorRequestPostgres_CreateWithNotification(t *testing.T) {
	repos, mock := newMockRepositories(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO donor_requests`)).
		WithArgs("dr1", "p1", "d1", entity.StatusPending, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO notifications`)).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repos.DonorRequests.Create(context.Background(),
		&entity.DonorRequest{ID: "dr1", FromID: "p1", ToID: "d1", Status: entity.StatusPending},
		&entity.Notification{ID: "n1", RecipientID: "d1", Message: "Asha requested blood from you."},
	)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRequestPostgres_GetByID(t *testing.T) {
	repos, mock := newMockRepositories(t)
	created := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	columns := []string{
		"id", "requester_id", "requester_name", "blood_type", "units", "location", "urgency",
		"contact", "notes", "needed_by", "hospital", "patient_id", "status", "donor_id",
		"donor_name", "suspicious", "flag_reasons", "notified", "created_at", "updated_at",
	}
	mock.ExpectQuery(regexp.QuoteMeta(`FROM blood_requests WHERE id = $1`)).
		WithArgs("r1").
		WillReturnRows(sqlmock.NewRows(columns).AddRow(
			"r1", "p1", "Asha", "O-", 3, "City Hospital", "High",
			"c1", "", "", "", "", "pending", "",
			"", true, "{units,duplicate}", false, created, created,
		))
	mock.ExpectQuery(regexp.QuoteMeta(`FROM blood_requests WHERE id = $1`)).
		WithArgs("gone").
		WillReturnError(sql.ErrNoRows)

	got, err := repos.Requests.GetByID(context.Background(), "r1")
	require.NoError(t, err)
	assert.Equal(t, 3, got.Units)
	assert.True(t, got.Suspicious)
	assert.Equal(t, []string{"units", "duplicate"}, got.FlagReasons)
	assert.Equal(t, entity.UrgencyHigh, got.Urgency)

	_, err = repos.Requests.GetByID(context.Background(), "gone")
	assert.ErrorIs(t, err, entity.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRequestPostgres_CreateNeverWritesNullReasons(t *testing.T) {
	repos, mock := newMockRepositories(t)

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO blood_requests`)).
		WithArgs(
			"r1", "", "Asha", "O-", 1, "loc", entity.UrgencyMedium,
			"c1", "", "", "", "", entity.StatusPending, "",
			"", false, pq.Array([]string{}), false, sqlmock.AnyArg(), sqlmock.AnyArg(),
		).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repos.Requests.Create(context.Background(), &entity.BloodRequest{
		ID: "r1", RequesterName: "Asha", BloodType: "O-", Units: 1, Location: "loc",
		Urgency: entity.UrgencyMedium, Contact: "c1", Status: entity.StatusPending,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProfilePostgres_UpsertKeepsDonationCount(t *testing.T) {
	repos, mock := newMockRepositories(t)
	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO profiles`)).
		WillReturnRows(sqlmock.NewRows([]string{"donation_count", "created_at"}).AddRow(4, created))

	p := &entity.Profile{ID: "d1", Name: "Ravi", Role: entity.RoleDonor, BloodType: "O-", CreatedAt: time.Now()}
	require.NoError(t, repos.Profiles.Upsert(context.Background(), p))
	assert.Equal(t, 4, p.DonationCount)
	assert.Equal(t, created, p.CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNotificationPostgres_MarkReadMissing(t *testing.T) {
	repos, mock := newMockRepositories(t)

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE notifications SET read = TRUE`)).
		WithArgs("d1", "n1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repos.Notifications.MarkRead(context.Background(), "d1", "n1")
	assert.ErrorIs(t, err, entity.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
