package models

import "time"

// InternshipStatus is a state of the placement lifecycle.
type InternshipStatus string

const (
	InternshipPending    InternshipStatus = "PENDING"
	InternshipApproved   InternshipStatus = "APPROVED"
	InternshipAssigned   InternshipStatus = "ASSIGNED"
	InternshipInProgress InternshipStatus = "IN_PROGRESS"
	InternshipCompleted  InternshipStatus = "COMPLETED"
	InternshipRejected   InternshipStatus = "REJECTED"
	InternshipCancelled  InternshipStatus = "CANCELLED"
)

// Terminal reports whether no further events are accepted (besides idempotent cancel).
func (s InternshipStatus) Terminal() bool {
	return s == InternshipCompleted || s == InternshipRejected || s == InternshipCancelled
}

// Valid reports whether s is a known status.
func (s InternshipStatus) Valid() bool {
	switch s {
	case InternshipPending, InternshipApproved, InternshipAssigned, InternshipInProgress,
		InternshipCompleted, InternshipRejected, InternshipCancelled:
		return true
	}
	return false
}

// InternshipEvent names a lifecycle event.
type InternshipEvent string

const (
	EventRequest  InternshipEvent = "request"
	EventApprove  InternshipEvent = "approve"
	EventReject   InternshipEvent = "reject"
	EventAssign   InternshipEvent = "assign"
	EventStart    InternshipEvent = "start"
	EventComplete InternshipEvent = "complete"
	EventCancel   InternshipEvent = "cancel"
)

// Internship is a single student/company placement.
type Internship struct {
	ID          string           `db:"id" json:"id"`
	StudentID   string           `db:"student_id" json:"student_id"`
	CompanyID   string           `db:"company_id" json:"company_id"`
	BatchID     *string          `db:"batch_id" json:"batch_id,omitempty"`
	Status      InternshipStatus `db:"status" json:"status"`
	SeatHeld    bool             `db:"seat_held" json:"seat_held"`
	FinalScore  *float64         `db:"final_score" json:"final_score,omitempty"`
	Version     int              `db:"version" json:"version"`
	RequestedAt time.Time        `db:"requested_at" json:"requested_at"`
	ApprovedAt  *time.Time       `db:"approved_at" json:"approved_at,omitempty"`
	RejectedAt  *time.Time       `db:"rejected_at" json:"rejected_at,omitempty"`
	AssignedAt  *time.Time       `db:"assigned_at" json:"assigned_at,omitempty"`
	StartedAt   *time.Time       `db:"started_at" json:"started_at,omitempty"`
	CompletedAt *time.Time       `db:"completed_at" json:"completed_at,omitempty"`
	CancelledAt *time.Time       `db:"cancelled_at" json:"cancelled_at,omitempty"`
	UpdatedAt   time.Time        `db:"updated_at" json:"updated_at"`
}

// BatchRef returns the referenced batch id or "".
func (i Internship) BatchRef() string {
	if i.BatchID == nil {
		return ""
	}
	return *i.BatchID
}

// InternshipFilter scopes internship listings.
type InternshipFilter struct {
	StudentID string
	CompanyID string
	BatchID   string
	Status    InternshipStatus
	Page      int
	PageSize  int
}

// LifecycleEvent is published after a transition commits.
type LifecycleEvent struct {
	InternshipID string           `json:"internship_id"`
	StudentID    string           `json:"student_id"`
	BatchID      string           `json:"batch_id,omitempty"`
	Event        InternshipEvent  `json:"event"`
	From         InternshipStatus `json:"from"`
	To           InternshipStatus `json:"to"`
	ActorID      string           `json:"actor_id,omitempty"`
	OccurredAt   time.Time        `json:"occurred_at"`
}
