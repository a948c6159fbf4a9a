package repository

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/internship-placement-api/internal/models"
	appErrors "github.com/noah-isme/internship-placement-api/pkg/errors"
)

// MemoryBatchRepository keeps batches in process. Each batch row has its own mutex so
// seat reservations on different batches never contend.
type MemoryBatchRepository struct {
	mu   sync.RWMutex
	rows map[string]*memoryBatchRow
}

type memoryBatchRow struct {
	mu    sync.Mutex
	batch models.Batch
}

// NewMemoryBatchRepository constructs an empty store.
func NewMemoryBatchRepository() *MemoryBatchRepository {
	return &MemoryBatchRepository{rows: make(map[string]*memoryBatchRow)}
}

func (r *MemoryBatchRepository) row(id string) (*memoryBatchRow, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	row, ok := r.rows[id]
	return row, ok
}

// Create stores a new batch with zero allocated seats.
func (r *MemoryBatchRepository) Create(ctx context.Context, batch *models.Batch) error {
	if batch.ID == "" {
		batch.ID = uuid.NewString()
	}
	if batch.CreatedAt.IsZero() {
		batch.CreatedAt = time.Now().UTC()
	}
	batch.UpdatedAt = batch.CreatedAt
	batch.AllocatedSeats = 0
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.rows[batch.ID]; exists {
		return appErrors.Clone(appErrors.ErrConflict, "batch id already exists")
	}
	r.rows[batch.ID] = &memoryBatchRow{batch: *batch}
	return nil
}

// FindByID returns a copy of the batch or sql.ErrNoRows.
func (r *MemoryBatchRepository) FindByID(ctx context.Context, id string) (*models.Batch, error) {
	row, ok := r.row(id)
	if !ok {
		return nil, sql.ErrNoRows
	}
	row.mu.Lock()
	batch := row.batch
	row.mu.Unlock()
	return &batch, nil
}

// List returns batches ordered like the SQL repository.
func (r *MemoryBatchRepository) List(ctx context.Context, filter models.BatchFilter) ([]models.Batch, int, error) {
	r.mu.RLock()
	all := make([]models.Batch, 0, len(r.rows))
	for _, row := range r.rows {
		row.mu.Lock()
		b := row.batch
		row.mu.Unlock()
		if b.Retired && !filter.IncludeRetired {
			continue
		}
		all = append(all, b)
	}
	r.mu.RUnlock()
	sort.Slice(all, func(i, j int) bool {
		if !all[i].RegistrationStart.Equal(all[j].RegistrationStart) {
			return all[i].RegistrationStart.After(all[j].RegistrationStart)
		}
		return all[i].ID < all[j].ID
	})
	page, size := normalizePage(filter.Page, filter.PageSize)
	return paginate(all, page, size), len(all), nil
}

// TryReserveSeat checks and increments under the batch's mutex.
func (r *MemoryBatchRepository) TryReserveSeat(ctx context.Context, id string, now time.Time) (models.ReserveOutcome, error) {
	row, ok := r.row(id)
	if !ok {
		return models.ReserveNotFound, nil
	}
	row.mu.Lock()
	defer row.mu.Unlock()
	if !row.batch.AcceptsReservations(now) {
		return classifyRefusal(row.batch, now), nil
	}
	row.batch.AllocatedSeats++
	row.batch.UpdatedAt = now
	return models.ReserveOK, nil
}

// ReleaseSeat decrements the counter, floored at zero.
func (r *MemoryBatchRepository) ReleaseSeat(ctx context.Context, id string) error {
	row, ok := r.row(id)
	if !ok {
		return sql.ErrNoRows
	}
	row.mu.Lock()
	defer row.mu.Unlock()
	if row.batch.AllocatedSeats > 0 {
		row.batch.AllocatedSeats--
	}
	row.batch.UpdatedAt = time.Now().UTC()
	return nil
}

// Retire marks the batch retired.
func (r *MemoryBatchRepository) Retire(ctx context.Context, id string) error {
	row, ok := r.row(id)
	if !ok {
		return sql.ErrNoRows
	}
	row.mu.Lock()
	defer row.mu.Unlock()
	row.batch.Retired = true
	row.batch.UpdatedAt = time.Now().UTC()
	return nil
}

// MemoryInternshipRepository keeps internships in process with the same version and
// held-seat uniqueness rules as the SQL schema.
type MemoryInternshipRepository struct {
	mu    sync.RWMutex
	rows  map[string]models.Internship
	held  map[string]string
	order []string
}

// NewMemoryInternshipRepository constructs an empty store.
func NewMemoryInternshipRepository() *MemoryInternshipRepository {
	return &MemoryInternshipRepository{rows: make(map[string]models.Internship), held: make(map[string]string)}
}

func heldKey(studentID, batchID string) string {
	return studentID + "\x00" + batchID
}

// Create stores a new internship at version 1.
func (r *MemoryInternshipRepository) Create(ctx context.Context, internship *models.Internship) error {
	if internship.ID == "" {
		internship.ID = uuid.NewString()
	}
	if internship.RequestedAt.IsZero() {
		internship.RequestedAt = time.Now().UTC()
	}
	if internship.Status == "" {
		internship.Status = models.InternshipPending
	}
	internship.Version = 1
	internship.UpdatedAt = internship.RequestedAt
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.rows[internship.ID]; exists {
		return appErrors.Clone(appErrors.ErrConflict, "internship id already exists")
	}
	r.rows[internship.ID] = cloneInternship(*internship)
	r.order = append(r.order, internship.ID)
	return nil
}

// FindByID returns a copy or sql.ErrNoRows.
func (r *MemoryInternshipRepository) FindByID(ctx context.Context, id string) (*models.Internship, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	internship, ok := r.rows[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	internship = cloneInternship(internship)
	return &internship, nil
}

// List returns internships matching the filter, newest request first.
func (r *MemoryInternshipRepository) List(ctx context.Context, filter models.InternshipFilter) ([]models.Internship, int, error) {
	r.mu.RLock()
	matched := make([]models.Internship, 0, len(r.order))
	for _, id := range r.order {
		in := r.rows[id]
		if filter.StudentID != "" && in.StudentID != filter.StudentID {
			continue
		}
		if filter.CompanyID != "" && in.CompanyID != filter.CompanyID {
			continue
		}
		if filter.BatchID != "" && in.BatchRef() != filter.BatchID {
			continue
		}
		if filter.Status != "" && in.Status != filter.Status {
			continue
		}
		matched = append(matched, cloneInternship(in))
	}
	r.mu.RUnlock()
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].RequestedAt.After(matched[j].RequestedAt)
	})
	page, size := normalizePage(filter.Page, filter.PageSize)
	return paginate(matched, page, size), len(matched), nil
}

// Update applies the record when its version matches the stored one.
func (r *MemoryInternshipRepository) Update(ctx context.Context, internship *models.Internship) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.rows[internship.ID]
	if !ok {
		return sql.ErrNoRows
	}
	if current.Version != internship.Version {
		return appErrors.ErrStaleVersion
	}
	if internship.SeatHeld {
		key := heldKey(internship.StudentID, internship.BatchRef())
		if owner, taken := r.held[key]; taken && owner != internship.ID {
			return appErrors.ErrDuplicateEnrollment
		}
	}
	if current.SeatHeld {
		delete(r.held, heldKey(current.StudentID, current.BatchRef()))
	}
	if internship.SeatHeld {
		r.held[heldKey(internship.StudentID, internship.BatchRef())] = internship.ID
	}
	internship.Version++
	internship.UpdatedAt = time.Now().UTC()
	r.rows[internship.ID] = cloneInternship(*internship)
	return nil
}

// HasHeldSeat reports whether another internship of the student holds a seat in the batch.
func (r *MemoryInternshipRepository) HasHeldSeat(ctx context.Context, studentID, batchID, excludeID string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	owner, ok := r.held[heldKey(studentID, batchID)]
	return ok && owner != excludeID, nil
}

// HeldSeats counts internships currently holding a seat in the batch.
func (r *MemoryInternshipRepository) HeldSeats(batchID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	count := 0
	for _, in := range r.rows {
		if in.SeatHeld && in.BatchRef() == batchID {
			count++
		}
	}
	return count
}

// MemoryEvaluationRepository keeps evaluations in process, last writer by timestamp wins.
type MemoryEvaluationRepository struct {
	mu   sync.RWMutex
	rows map[string]map[models.EvaluatorRole]models.EvaluationRecord
}

// NewMemoryEvaluationRepository constructs an empty store.
func NewMemoryEvaluationRepository() *MemoryEvaluationRepository {
	return &MemoryEvaluationRepository{rows: make(map[string]map[models.EvaluatorRole]models.EvaluationRecord)}
}

// Upsert stores rec unless the stored record is newer.
func (r *MemoryEvaluationRepository) Upsert(ctx context.Context, rec *models.EvaluationRecord) (bool, error) {
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = time.Now().UTC()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	byRole, ok := r.rows[rec.InternshipID]
	if !ok {
		byRole = make(map[models.EvaluatorRole]models.EvaluationRecord)
		r.rows[rec.InternshipID] = byRole
	}
	if existing, ok := byRole[rec.EvaluatorRole]; ok {
		if existing.UpdatedAt.After(rec.UpdatedAt) {
			return false, nil
		}
		rec.ID = existing.ID
		rec.CreatedAt = existing.CreatedAt
		rec.Version = existing.Version + 1
	} else {
		if rec.ID == "" {
			rec.ID = uuid.NewString()
		}
		rec.CreatedAt = rec.UpdatedAt
		rec.Version = 1
	}
	byRole[rec.EvaluatorRole] = cloneEvaluation(*rec)
	return true, nil
}

// FindByKey returns the active record or sql.ErrNoRows.
func (r *MemoryEvaluationRepository) FindByKey(ctx context.Context, internshipID string, role models.EvaluatorRole) (*models.EvaluationRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.rows[internshipID][role]
	if !ok {
		return nil, sql.ErrNoRows
	}
	rec = cloneEvaluation(rec)
	return &rec, nil
}

// ListByInternship returns the records for the internship in role order.
func (r *MemoryEvaluationRepository) ListByInternship(ctx context.Context, internshipID string) ([]models.EvaluationRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	byRole := r.rows[internshipID]
	records := make([]models.EvaluationRecord, 0, len(byRole))
	for _, role := range models.EvaluatorRoles {
		if rec, ok := byRole[role]; ok {
			records = append(records, cloneEvaluation(rec))
		}
	}
	return records, nil
}

func cloneInternship(in models.Internship) models.Internship {
	out := in
	out.BatchID = cloneString(in.BatchID)
	out.FinalScore = cloneFloat(in.FinalScore)
	out.ApprovedAt = cloneTime(in.ApprovedAt)
	out.RejectedAt = cloneTime(in.RejectedAt)
	out.AssignedAt = cloneTime(in.AssignedAt)
	out.StartedAt = cloneTime(in.StartedAt)
	out.CompletedAt = cloneTime(in.CompletedAt)
	out.CancelledAt = cloneTime(in.CancelledAt)
	return out
}

func cloneEvaluation(rec models.EvaluationRecord) models.EvaluationRecord {
	out := rec
	out.Components = append([]models.ScoreComponent(nil), rec.Components...)
	out.Sections = append([]models.SectionScore(nil), rec.Sections...)
	return out
}

func cloneString(v *string) *string {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func cloneFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func cloneTime(v *time.Time) *time.Time {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func paginate[T any](items []T, page, size int) []T {
	start := (page - 1) * size
	if start >= len(items) {
		return []T{}
	}
	end := start + size
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}
