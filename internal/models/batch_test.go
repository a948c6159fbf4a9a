package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func sampleBatch() Batch {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	return Batch{
		ID:                "batch-1",
		Capacity:          4,
		AllocatedSeats:    1,
		RegistrationStart: base,
		RegistrationEnd:   base.AddDate(0, 0, 14),
		InternshipStart:   base.AddDate(0, 1, 0),
		InternshipEnd:     base.AddDate(0, 4, 0),
	}
}

func TestBatchDerivedFields(t *testing.T) {
	b := sampleBatch()
	cases := []struct {
		name                     string
		now                      time.Time
		open, active, completed bool
	}{
		{"before registration", b.RegistrationStart.Add(-time.Second), false, false, false},
		{"registration start inclusive", b.RegistrationStart, true, false, false},
		{"registration end inclusive", b.RegistrationEnd, true, false, false},
		{"between windows", b.RegistrationEnd.Add(time.Hour), false, false, false},
		{"internship running", b.InternshipStart.AddDate(0, 0, 3), false, true, false},
		{"internship end inclusive", b.InternshipEnd, false, true, false},
		{"after end", b.InternshipEnd.Add(time.Nanosecond), false, false, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			view := b.View(tc.now)
			assert.Equal(t, tc.open, view.IsRegistrationOpen)
			assert.Equal(t, tc.active, view.IsActive)
			assert.Equal(t, tc.completed, view.IsCompleted)
			assert.Equal(t, tc.now, view.AsOf)
		})
	}
}

func TestBatchEnrollmentProgress(t *testing.T) {
	b := sampleBatch()
	assert.InDelta(t, 0.25, b.EnrollmentProgress(), 1e-9)
	assert.Equal(t, 3, b.View(b.RegistrationStart).AvailableSeats)

	b.Capacity = 0
	assert.Zero(t, b.EnrollmentProgress())
}

func TestBatchAcceptsReservations(t *testing.T) {
	b := sampleBatch()
	now := b.RegistrationStart.Add(time.Hour)
	assert.True(t, b.AcceptsReservations(now))

	b.AllocatedSeats = b.Capacity
	assert.False(t, b.AcceptsReservations(now))

	b = sampleBatch()
	b.Retired = true
	assert.False(t, b.AcceptsReservations(now))
	assert.Zero(t, b.View(now).AvailableSeats)

	b = sampleBatch()
	assert.False(t, b.AcceptsReservations(b.RegistrationEnd.Add(time.Second)))
}

func TestInternshipStatusTerminal(t *testing.T) {
	assert.True(t, InternshipCompleted.Terminal())
	assert.True(t, InternshipCancelled.Terminal())
	assert.True(t, InternshipRejected.Terminal())
	assert.False(t, InternshipInProgress.Terminal())
	assert.False(t, InternshipStatus("ARCHIVED").Valid())
}

func TestEvaluatorRoleFor(t *testing.T) {
	role, ok := EvaluatorRoleFor(RoleStudent)
	assert.True(t, ok)
	assert.Equal(t, EvaluatorSelf, role)
	_, ok = EvaluatorRoleFor(RoleAdmin)
	assert.False(t, ok)
}
