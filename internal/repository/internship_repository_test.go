package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/internship-placement-api/internal/models"
	appErrors "github.com/noah-isme/internship-placement-api/pkg/errors"
)

func fixtureInternship() models.Internship {
	batchID := "batch-1"
	return models.Internship{
		ID: "int-1", StudentID: "stu-1", CompanyID: "co-1", BatchID: &batchID,
		Status: models.InternshipAssigned, SeatHeld: true, Version: 3,
		RequestedAt: time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC),
	}
}

func TestInternshipRepositoryUpdateAdvancesVersion(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewInternshipRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE internships SET")).WillReturnResult(sqlmock.NewResult(0, 1))

	in := fixtureInternship()
	require.NoError(t, repo.Update(context.Background(), &in))
	assert.Equal(t, 4, in.Version)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInternshipRepositoryUpdateStale(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewInternshipRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("WHERE id = $")).WillReturnResult(sqlmock.NewResult(0, 0))

	in := fixtureInternship()
	err := repo.Update(context.Background(), &in)
	assert.ErrorIs(t, err, appErrors.ErrStaleVersion)
	assert.Equal(t, 3, in.Version)
}

func TestInternshipRepositoryUpdateHeldSeatConflict(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewInternshipRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE internships SET")).
		WillReturnError(&pq.Error{Code: pqUniqueViolation, Constraint: heldSeatIndex})

	in := fixtureInternship()
	err := repo.Update(context.Background(), &in)
	assert.ErrorIs(t, err, appErrors.ErrDuplicateEnrollment)
}

func TestInternshipRepositoryHasHeldSeat(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewInternshipRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM internships WHERE student_id = $1 AND batch_id = $2 AND seat_held = TRUE")).
		WithArgs("stu-1", "batch-1", "int-2").
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM internships")).
		WithArgs("stu-2", "batch-1", "").
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}))

	held, err := repo.HasHeldSeat(context.Background(), "stu-1", "batch-1", "int-2")
	require.NoError(t, err)
	assert.True(t, held)

	held, err = repo.HasHeldSeat(context.Background(), "stu-2", "batch-1", "")
	require.NoError(t, err)
	assert.False(t, held)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInternshipRepositoryListFilters(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewInternshipRepository(db)

	in := fixtureInternship()
	cols := []string{"id", "student_id", "company_id", "batch_id", "status", "seat_held", "final_score", "version",
		"requested_at", "approved_at", "rejected_at", "assigned_at", "started_at", "completed_at", "cancelled_at", "updated_at"}
	rows := sqlmock.NewRows(cols).AddRow(in.ID, in.StudentID, in.CompanyID, "batch-1", in.Status, in.SeatHeld, nil, in.Version,
		in.RequestedAt, nil, nil, nil, nil, nil, nil, in.RequestedAt)
	mock.ExpectQuery(regexp.QuoteMeta("FROM internships WHERE student_id = $1 AND status = $2 ORDER BY requested_at DESC")).
		WithArgs("stu-1", models.InternshipAssigned).
		WillReturnRows(rows)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM internships WHERE student_id = $1 AND status = $2")).
		WithArgs("stu-1", models.InternshipAssigned).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	list, total, err := repo.List(context.Background(), models.InternshipFilter{StudentID: "stu-1", Status: models.InternshipAssigned})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, 1, total)
	assert.Equal(t, "batch-1", list[0].BatchRef())
	require.NoError(t, mock.ExpectationsWereMet())
}
