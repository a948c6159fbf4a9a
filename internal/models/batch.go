package models

import "time"

// Batch is an intake period with a fixed number of placement seats.
type Batch struct {
	ID                string    `db:"id" json:"id"`
	Name              string    `db:"name" json:"name"`
	Capacity          int       `db:"capacity" json:"capacity"`
	AllocatedSeats    int       `db:"allocated_seats" json:"allocated_seats"`
	RegistrationStart time.Time `db:"registration_start" json:"registration_start"`
	RegistrationEnd   time.Time `db:"registration_end" json:"registration_end"`
	InternshipStart   time.Time `db:"internship_start" json:"internship_start"`
	InternshipEnd     time.Time `db:"internship_end" json:"internship_end"`
	Retired           bool      `db:"retired" json:"retired"`
	CreatedAt         time.Time `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time `db:"updated_at" json:"updated_at"`
}

// IsRegistrationOpen reports whether now falls inside the registration window (inclusive).
func (b Batch) IsRegistrationOpen(now time.Time) bool {
	return !now.Before(b.RegistrationStart) && !now.After(b.RegistrationEnd)
}

// IsActive reports whether now falls inside the internship window (inclusive).
func (b Batch) IsActive(now time.Time) bool {
	return !now.Before(b.InternshipStart) && !now.After(b.InternshipEnd)
}

// IsCompleted reports whether the internship window has ended.
func (b Batch) IsCompleted(now time.Time) bool {
	return now.After(b.InternshipEnd)
}

// EnrollmentProgress is the allocated share of capacity in [0, 1].
func (b Batch) EnrollmentProgress() float64 {
	if b.Capacity <= 0 {
		return 0
	}
	return float64(b.AllocatedSeats) / float64(b.Capacity)
}

// AcceptsReservations is the full precondition for taking a seat at now.
func (b Batch) AcceptsReservations(now time.Time) bool {
	return !b.Retired && b.IsRegistrationOpen(now) && b.AllocatedSeats < b.Capacity
}

// BatchView is the read model: raw batch plus values derived against a reference time.
type BatchView struct {
	Batch
	AsOf               time.Time `json:"as_of"`
	IsRegistrationOpen bool      `json:"is_registration_open"`
	IsActive           bool      `json:"is_active"`
	IsCompleted        bool      `json:"is_completed"`
	EnrollmentProgress float64   `json:"enrollment_progress"`
	AvailableSeats     int       `json:"available_seats"`
}

// View computes the derived fields of b as of now.
func (b Batch) View(now time.Time) BatchView {
	available := b.Capacity - b.AllocatedSeats
	if available < 0 || b.Retired {
		available = 0
	}
	return BatchView{
		Batch:              b,
		AsOf:               now,
		IsRegistrationOpen: b.IsRegistrationOpen(now),
		IsActive:           b.IsActive(now),
		IsCompleted:        b.IsCompleted(now),
		EnrollmentProgress: b.EnrollmentProgress(),
		AvailableSeats:     available,
	}
}

// ReserveOutcome is the result of an atomic seat reservation attempt.
type ReserveOutcome string

const (
	ReserveOK       ReserveOutcome = "RESERVED"
	ReserveFull     ReserveOutcome = "FULL"
	ReserveClosed   ReserveOutcome = "CLOSED"
	ReserveNotFound ReserveOutcome = "NOT_FOUND"
)

// BatchFilter scopes batch listings.
type BatchFilter struct {
	IncludeRetired bool
	Page           int
	PageSize       int
}
