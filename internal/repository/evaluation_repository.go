package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/internship-placement-api/internal/models"
)

// EvaluationRepository persists one active evaluation per (internship, evaluator role).
type EvaluationRepository struct {
	db *sqlx.DB
}

// NewEvaluationRepository constructs the repository.
func NewEvaluationRepository(db *sqlx.DB) *EvaluationRepository {
	return &EvaluationRepository{db: db}
}

type evaluationRow struct {
	models.EvaluationRecord
	ComponentsJSON []byte `db:"components"`
	SectionsJSON   []byte `db:"sections"`
}

func (row evaluationRow) record() (models.EvaluationRecord, error) {
	rec := row.EvaluationRecord
	if err := json.Unmarshal(row.ComponentsJSON, &rec.Components); err != nil {
		return rec, fmt.Errorf("decode evaluation components: %w", err)
	}
	if len(row.SectionsJSON) > 0 {
		if err := json.Unmarshal(row.SectionsJSON, &rec.Sections); err != nil {
			return rec, fmt.Errorf("decode evaluation sections: %w", err)
		}
	}
	return rec, nil
}

const evaluationColumns = `id, internship_id, evaluator_role, evaluator_id, components, sections,
        overall_score, max_score, comment, version, created_at, updated_at`

// Upsert stores rec unless the stored record carries a later updated_at. It reports
// whether rec was applied; on success rec's id, version and created_at reflect storage.
func (r *EvaluationRepository) Upsert(ctx context.Context, rec *models.EvaluationRecord) (bool, error) {
	components, err := json.Marshal(rec.Components)
	if err != nil {
		return false, fmt.Errorf("encode evaluation components: %w", err)
	}
	sections, err := json.Marshal(rec.Sections)
	if err != nil {
		return false, fmt.Errorf("encode evaluation sections: %w", err)
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO evaluations (id, internship_id, evaluator_role, evaluator_id, components, sections,
        overall_score, max_score, comment, version, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 1, $10, $10)
        ON CONFLICT (internship_id, evaluator_role) DO UPDATE SET
        evaluator_id = EXCLUDED.evaluator_id, components = EXCLUDED.components, sections = EXCLUDED.sections,
        overall_score = EXCLUDED.overall_score, max_score = EXCLUDED.max_score, comment = EXCLUDED.comment,
        version = evaluations.version + 1, updated_at = EXCLUDED.updated_at
        WHERE evaluations.updated_at <= EXCLUDED.updated_at
        RETURNING id, version, created_at`
	var stored struct {
		ID        string    `db:"id"`
		Version   int       `db:"version"`
		CreatedAt time.Time `db:"created_at"`
	}
	err = r.db.QueryRowxContext(ctx, query, rec.ID, rec.InternshipID, rec.EvaluatorRole, rec.EvaluatorID,
		components, sections, rec.OverallScore, rec.MaxScore, rec.Comment, rec.UpdatedAt).StructScan(&stored)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("upsert evaluation: %w", err)
	}
	rec.ID = stored.ID
	rec.Version = stored.Version
	rec.CreatedAt = stored.CreatedAt
	return true, nil
}

// FindByKey returns the active record for the pair or sql.ErrNoRows.
func (r *EvaluationRepository) FindByKey(ctx context.Context, internshipID string, role models.EvaluatorRole) (*models.EvaluationRecord, error) {
	query := `SELECT ` + evaluationColumns + ` FROM evaluations WHERE internship_id = $1 AND evaluator_role = $2`
	var row evaluationRow
	if err := r.db.GetContext(ctx, &row, query, internshipID, role); err != nil {
		return nil, err
	}
	rec, err := row.record()
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// evaluationRoleOrder sorts records MENTOR, TEACHER, SELF, matching models.EvaluatorRoles.
const evaluationRoleOrder = `CASE evaluator_role WHEN 'MENTOR' THEN 1 WHEN 'TEACHER' THEN 2 ELSE 3 END`

// ListByInternship returns every active record for the internship in role order.
func (r *EvaluationRepository) ListByInternship(ctx context.Context, internshipID string) ([]models.EvaluationRecord, error) {
	query := `SELECT ` + evaluationColumns + ` FROM evaluations WHERE internship_id = $1 ORDER BY ` + evaluationRoleOrder
	var rows []evaluationRow
	if err := r.db.SelectContext(ctx, &rows, query, internshipID); err != nil {
		return nil, fmt.Errorf("list evaluations: %w", err)
	}
	records := make([]models.EvaluationRecord, 0, len(rows))
	for _, row := range rows {
		rec, err := row.record()
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}
