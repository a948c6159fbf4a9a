package models

import "time"

// EvaluatorRole identifies who produced an evaluation.
type EvaluatorRole string

const (
	EvaluatorMentor  EvaluatorRole = "MENTOR"
	EvaluatorTeacher EvaluatorRole = "TEACHER"
	EvaluatorSelf    EvaluatorRole = "SELF"
)

// EvaluatorRoles lists roles in their canonical order.
var EvaluatorRoles = []EvaluatorRole{EvaluatorMentor, EvaluatorTeacher, EvaluatorSelf}

// Valid reports whether r is a known evaluator role.
func (r EvaluatorRole) Valid() bool {
	return r == EvaluatorMentor || r == EvaluatorTeacher || r == EvaluatorSelf
}

// ScoreComponent is one scored rubric slot.
type ScoreComponent struct {
	Name     string  `json:"name" validate:"required"`
	Value    float64 `json:"value"`
	MaxValue float64 `json:"max_value"`
}

// SectionScore is the subtotal of one rubric section.
type SectionScore struct {
	Name  string  `json:"name"`
	Total float64 `json:"total"`
	Max   float64 `json:"max"`
}

// ScoreBreakdown is the validated result of scoring a component list.
type ScoreBreakdown struct {
	Components []ScoreComponent `json:"components"`
	Sections   []SectionScore   `json:"sections"`
	Total      float64          `json:"total"`
	Max        float64          `json:"max"`
}

// EvaluationRecord is the active evaluation for an (internship, role) pair.
type EvaluationRecord struct {
	ID            string           `db:"id" json:"id"`
	InternshipID  string           `db:"internship_id" json:"internship_id"`
	EvaluatorRole EvaluatorRole    `db:"evaluator_role" json:"evaluator_role"`
	EvaluatorID   string           `db:"evaluator_id" json:"evaluator_id,omitempty"`
	Components    []ScoreComponent `db:"-" json:"components"`
	Sections      []SectionScore   `db:"-" json:"sections"`
	OverallScore  float64          `db:"overall_score" json:"overall_score"`
	MaxScore      float64          `db:"max_score" json:"max_score"`
	Comment       string           `db:"comment" json:"comment,omitempty"`
	Version       int              `db:"version" json:"version"`
	CreatedAt     time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time        `db:"updated_at" json:"updated_at"`
}

// RoleContribution is one role's share of an aggregate score.
type RoleContribution struct {
	Role     EvaluatorRole `json:"role"`
	Score    float64       `json:"score"`
	Weight   float64       `json:"weight"`
	Weighted float64       `json:"weighted"`
}

// AggregateScore combines the evaluations present for one internship. Graded is false
// when nothing has been submitted yet; Score is then nil and must not be read as zero.
type AggregateScore struct {
	InternshipID  string             `json:"internship_id"`
	Graded        bool               `json:"graded"`
	Score         *float64           `json:"score"`
	Contributions []RoleContribution `json:"contributions"`
	Evaluations   int                `json:"evaluations"`
	ComputedAt    time.Time          `json:"computed_at"`
}
