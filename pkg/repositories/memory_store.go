package repositories

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/ekaya-inc/labqms/pkg/apperrors"
	"github.com/ekaya-inc/labqms/pkg/models"
)

// MemoryStore keeps all collections in process memory. Records handed in or
// out are copied, so callers never share state with the store.
type MemoryStore struct {
	mu          sync.RWMutex
	ncs         []*models.NonConformity
	reports     []*models.PreventiveActionReport
	collections map[string]json.RawMessage

	// afterWrite runs with the write lock held after every successful mutation.
	// When it fails the mutation is rolled back.
	afterWrite func(ctx context.Context) error
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{collections: make(map[string]json.RawMessage)}
}

func (s *MemoryStore) NonConformities() NonConformityRepository     { return &memoryNCRepository{s} }
func (s *MemoryStore) PreventiveActions() PreventiveActionRepository { return &memoryPARepository{s} }
func (s *MemoryStore) Collections() CollectionRepository             { return &memoryCollectionRepository{s} }

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() error { return nil }

func (s *MemoryStore) read(ctx context.Context, fn func()) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	fn()
	return nil
}

func (s *MemoryStore) write(ctx context.Context, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.afterWrite == nil {
		return fn()
	}
	prev := s.snapshotLocked()
	if err := fn(); err != nil {
		return err
	}
	if err := s.afterWrite(ctx); err != nil {
		s.loadLocked(prev)
		return err
	}
	return nil
}

// snapshotLocked copies the full state. Caller holds s.mu.
func (s *MemoryStore) snapshotLocked() models.Snapshot {
	snap := models.Snapshot{
		NonConformities:         make([]*models.NonConformity, 0, len(s.ncs)),
		PreventiveActionReports: make([]*models.PreventiveActionReport, 0, len(s.reports)),
		Collections:             maps.Clone(s.collections),
	}
	for _, nc := range s.ncs {
		snap.NonConformities = append(snap.NonConformities, nc.Clone())
	}
	for _, r := range s.reports {
		snap.PreventiveActionReports = append(snap.PreventiveActionReports, r.Clone())
	}
	return snap
}

// loadLocked replaces the full state. Caller holds s.mu.
func (s *MemoryStore) loadLocked(snap models.Snapshot) {
	s.ncs = s.ncs[:0]
	for _, nc := range snap.NonConformities {
		s.ncs = append(s.ncs, nc.Clone())
	}
	s.reports = s.reports[:0]
	for _, r := range snap.PreventiveActionReports {
		s.reports = append(s.reports, r.Clone())
	}
	s.collections = maps.Clone(snap.Collections)
	if s.collections == nil {
		s.collections = make(map[string]json.RawMessage)
	}
}

// checkNCCodesLocked rejects codes already held by a record other than skip.
func checkNCCodesLocked(records []*models.NonConformity, nc *models.NonConformity, skip uuid.UUID) error {
	for _, other := range records {
		if other.ID == skip {
			continue
		}
		if nc.NCID != "" && other.NCID == nc.NCID {
			return &apperrors.DuplicateIdentifierError{Identifier: nc.NCID}
		}
		if nc.HDKPID != "" && other.HDKPID == nc.HDKPID {
			return &apperrors.DuplicateIdentifierError{Identifier: nc.HDKPID}
		}
	}
	return nil
}

func checkReportCodeLocked(reports []*models.PreventiveActionReport, report *models.PreventiveActionReport, skip uuid.UUID) error {
	if report.ReportID == "" {
		return nil
	}
	for _, other := range reports {
		if other.ID != skip && other.ReportID == report.ReportID {
			return &apperrors.DuplicateIdentifierError{Identifier: report.ReportID}
		}
	}
	return nil
}

type memoryNCRepository struct{ s *MemoryStore }

func (r *memoryNCRepository) List(ctx context.Context) ([]*models.NonConformity, error) {
	var out []*models.NonConformity
	err := r.s.read(ctx, func() {
		out = make([]*models.NonConformity, 0, len(r.s.ncs))
		for _, nc := range r.s.ncs {
			out = append(out, nc.Clone())
		}
	})
	return out, err
}

func (r *memoryNCRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.NonConformity, error) {
	var found *models.NonConformity
	if err := r.s.read(ctx, func() {
		if i := r.indexLocked(id); i >= 0 {
			found = r.s.ncs[i].Clone()
		}
	}); err != nil {
		return nil, err
	}
	if found == nil {
		return nil, fmt.Errorf("non-conformity %s: %w", id, apperrors.ErrNotFound)
	}
	return found, nil
}

func (r *memoryNCRepository) Create(ctx context.Context, nc *models.NonConformity) error {
	return r.s.write(ctx, func() error {
		if nc.ID == uuid.Nil {
			nc.ID = uuid.New()
		}
		if r.indexLocked(nc.ID) >= 0 {
			return fmt.Errorf("non-conformity %s: %w", nc.ID, apperrors.ErrConflict)
		}
		if err := checkNCCodesLocked(r.s.ncs, nc, uuid.Nil); err != nil {
			return err
		}
		r.s.ncs = append(r.s.ncs, nc.Clone())
		return nil
	})
}

func (r *memoryNCRepository) Update(ctx context.Context, nc *models.NonConformity) error {
	return r.s.write(ctx, func() error {
		i := r.indexLocked(nc.ID)
		if i < 0 {
			return fmt.Errorf("non-conformity %s: %w", nc.ID, apperrors.ErrNotFound)
		}
		if err := checkNCCodesLocked(r.s.ncs, nc, nc.ID); err != nil {
			return err
		}
		r.s.ncs[i] = nc.Clone()
		return nil
	})
}

func (r *memoryNCRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.s.write(ctx, func() error {
		i := r.indexLocked(id)
		if i < 0 {
			return fmt.Errorf("non-conformity %s: %w", id, apperrors.ErrNotFound)
		}
		r.s.ncs = slices.Delete(r.s.ncs, i, i+1)
		return nil
	})
}

func (r *memoryNCRepository) ReplaceAll(ctx context.Context, records []*models.NonConformity) error {
	return r.s.write(ctx, func() error {
		next := make([]*models.NonConformity, 0, len(records))
		seen := make(map[uuid.UUID]struct{}, len(records))
		for _, nc := range records {
			if nc.ID == uuid.Nil {
				nc.ID = uuid.New()
			}
			if _, dup := seen[nc.ID]; dup {
				return fmt.Errorf("non-conformity %s: %w", nc.ID, apperrors.ErrConflict)
			}
			seen[nc.ID] = struct{}{}
			if err := checkNCCodesLocked(next, nc, uuid.Nil); err != nil {
				return err
			}
			next = append(next, nc.Clone())
		}
		r.s.ncs = next
		return nil
	})
}

func (r *memoryNCRepository) indexLocked(id uuid.UUID) int {
	return slices.IndexFunc(r.s.ncs, func(nc *models.NonConformity) bool { return nc.ID == id })
}

type memoryPARepository struct{ s *MemoryStore }

func (r *memoryPARepository) List(ctx context.Context) ([]*models.PreventiveActionReport, error) {
	var out []*models.PreventiveActionReport
	err := r.s.read(ctx, func() {
		out = make([]*models.PreventiveActionReport, 0, len(r.s.reports))
		for _, rep := range r.s.reports {
			out = append(out, rep.Clone())
		}
	})
	return out, err
}

func (r *memoryPARepository) GetByID(ctx context.Context, id uuid.UUID) (*models.PreventiveActionReport, error) {
	var found *models.PreventiveActionReport
	if err := r.s.read(ctx, func() {
		if i := r.indexLocked(id); i >= 0 {
			found = r.s.reports[i].Clone()
		}
	}); err != nil {
		return nil, err
	}
	if found == nil {
		return nil, fmt.Errorf("preventive action report %s: %w", id, apperrors.ErrNotFound)
	}
	return found, nil
}

func (r *memoryPARepository) Create(ctx context.Context, report *models.PreventiveActionReport) error {
	return r.s.write(ctx, func() error {
		if report.ID == uuid.Nil {
			report.ID = uuid.New()
		}
		if r.indexLocked(report.ID) >= 0 {
			return fmt.Errorf("preventive action report %s: %w", report.ID, apperrors.ErrConflict)
		}
		if err := checkReportCodeLocked(r.s.reports, report, uuid.Nil); err != nil {
			return err
		}
		r.s.reports = append(r.s.reports, report.Clone())
		return nil
	})
}

func (r *memoryPARepository) Update(ctx context.Context, report *models.PreventiveActionReport) error {
	return r.s.write(ctx, func() error {
		i := r.indexLocked(report.ID)
		if i < 0 {
			return fmt.Errorf("preventive action report %s: %w", report.ID, apperrors.ErrNotFound)
		}
		if err := checkReportCodeLocked(r.s.reports, report, report.ID); err != nil {
			return err
		}
		r.s.reports[i] = report.Clone()
		return nil
	})
}

func (r *memoryPARepository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.s.write(ctx, func() error {
		i := r.indexLocked(id)
		if i < 0 {
			return fmt.Errorf("preventive action report %s: %w", id, apperrors.ErrNotFound)
		}
		r.s.reports = slices.Delete(r.s.reports, i, i+1)
		return nil
	})
}

func (r *memoryPARepository) ReplaceAll(ctx context.Context, reports []*models.PreventiveActionReport) error {
	return r.s.write(ctx, func() error {
		next := make([]*models.PreventiveActionReport, 0, len(reports))
		seen := make(map[uuid.UUID]struct{}, len(reports))
		for _, rep := range reports {
			if rep.ID == uuid.Nil {
				rep.ID = uuid.New()
			}
			if _, dup := seen[rep.ID]; dup {
				return fmt.Errorf("preventive action report %s: %w", rep.ID, apperrors.ErrConflict)
			}
			seen[rep.ID] = struct{}{}
			if err := checkReportCodeLocked(next, rep, uuid.Nil); err != nil {
				return err
			}
			next = append(next, rep.Clone())
		}
		r.s.reports = next
		return nil
	})
}

func (r *memoryPARepository) indexLocked(id uuid.UUID) int {
	return slices.IndexFunc(r.s.reports, func(rep *models.PreventiveActionReport) bool { return rep.ID == id })
}

type memoryCollectionRepository struct{ s *MemoryStore }

func (r *memoryCollectionRepository) GetAll(ctx context.Context) (map[string]json.RawMessage, error) {
	var out map[string]json.RawMessage
	err := r.s.read(ctx, func() {
		out = maps.Clone(r.s.collections)
	})
	return out, err
}

func (r *memoryCollectionRepository) ReplaceAll(ctx context.Context, collections map[string]json.RawMessage) error {
	return r.s.write(ctx, func() error {
		r.s.collections = maps.Clone(collections)
		if r.s.collections == nil {
			r.s.collections = make(map[string]json.RawMessage)
		}
		return nil
	})
}
