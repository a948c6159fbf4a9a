package service

import (
	"fmt"
	"time"

	"github.com/noah-isme/internship-placement-api/internal/models"
	appErrors "github.com/noah-isme/internship-placement-api/pkg/errors"
)

// TransitionError names the refused (state, event) pair. It is carried as the cause of
// ErrInvalidTransition.
type TransitionError struct {
	From  models.InternshipStatus
	Event models.InternshipEvent
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot %s an internship in %s", e.Event, e.From)
}

var transitions = map[models.InternshipStatus]map[models.InternshipEvent]models.InternshipStatus{
	models.InternshipPending: {
		models.EventApprove: models.InternshipApproved,
		models.EventReject:  models.InternshipRejected,
		models.EventCancel:  models.InternshipCancelled,
	},
	models.InternshipApproved: {
		models.EventAssign: models.InternshipAssigned,
		models.EventCancel: models.InternshipCancelled,
	},
	models.InternshipAssigned: {
		models.EventStart:  models.InternshipInProgress,
		models.EventCancel: models.InternshipCancelled,
	},
	models.InternshipInProgress: {
		models.EventComplete: models.InternshipCompleted,
		models.EventCancel:   models.InternshipCancelled,
	},
	models.InternshipCancelled: {
		models.EventCancel: models.InternshipCancelled,
	},
}

// NextStatus returns the state reached by applying event in from.
func NextStatus(from models.InternshipStatus, event models.InternshipEvent) (models.InternshipStatus, error) {
	if to, ok := transitions[from][event]; ok {
		return to, nil
	}
	cause := &TransitionError{From: from, Event: event}
	return from, appErrors.CloneWrap(appErrors.ErrInvalidTransition, cause, cause.Error())
}

// Actor is the caller of a lifecycle operation. A zero Actor is a trusted internal caller.
type Actor struct {
	ID   string
	Role models.UserRole
}

func (a Actor) internal() bool {
	return a.ID == "" && a.Role == ""
}

// authorizeEvent applies the per-role rules; route guards mirror them.
func authorizeEvent(actor Actor, internship *models.Internship, event models.InternshipEvent) error {
	if actor.internal() || actor.Role == models.RoleAdmin {
		return nil
	}
	switch actor.Role {
	case models.RoleTeacher, models.RoleMentor:
		if event == models.EventStart || event == models.EventComplete {
			return nil
		}
	case models.RoleStudent:
		if event == models.EventCancel && internship.StudentID == actor.ID {
			return nil
		}
	}
	return appErrors.Clone(appErrors.ErrForbidden, fmt.Sprintf("%s may not %s this internship", actor.Role, event))
}

// stamp records the transition time on the field belonging to the reached state.
func stamp(internship *models.Internship, to models.InternshipStatus, at time.Time) {
	t := at
	switch to {
	case models.InternshipApproved:
		internship.ApprovedAt = &t
	case models.InternshipRejected:
		internship.RejectedAt = &t
	case models.InternshipAssigned:
		internship.AssignedAt = &t
	case models.InternshipInProgress:
		internship.StartedAt = &t
	case models.InternshipCompleted:
		internship.CompletedAt = &t
	case models.InternshipCancelled:
		internship.CancelledAt = &t
	}
	internship.Status = to
}
