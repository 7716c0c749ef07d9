package services

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/labqms/pkg/apperrors"
	"github.com/ekaya-inc/labqms/pkg/lifecycle"
	"github.com/ekaya-inc/labqms/pkg/locker"
	"github.com/ekaya-inc/labqms/pkg/metrics"
	"github.com/ekaya-inc/labqms/pkg/models"
	"github.com/ekaya-inc/labqms/pkg/numbering"
	"github.com/ekaya-inc/labqms/pkg/repositories"
)

// Lock keys serializing identifier allocation.
const (
	NonConformityLockKey    = "alloc:nonconformities"
	PreventiveActionLockKey = "alloc:preventive-actions"
)

// NonConformityService provides operations for non-conformity records.
type NonConformityService interface {
	// List returns every record, newest detection date first.
	List(ctx context.Context) ([]*models.NonConformity, error)

	Get(ctx context.Context, id uuid.UUID) (*models.NonConformity, error)

	// Create allocates the NC (and, with a corrective action, HDKP) code for
	// proto and stores it. actor is recorded if the record is created closed.
	Create(ctx context.Context, actor string, proto *models.NonConformity) (*models.NonConformity, error)

	// Update saves changes to an existing record. Stored identifiers always
	// win over the submitted ones.
	Update(ctx context.Context, actor string, id uuid.UUID, changes *models.NonConformity) (*models.NonConformity, error)

	Delete(ctx context.Context, id uuid.UUID) error

	// BulkLoad numbers protos from scratch and replaces the whole collection.
	// actor is recorded on closed records that carry no closure attribution.
	BulkLoad(ctx context.Context, actor string, protos []*models.NonConformity) ([]*models.NonConformity, error)

	// Review returns advisory findings for a stored record.
	Review(ctx context.Context, id uuid.UUID) ([]lifecycle.Finding, error)
}

type nonConformityService struct {
	repo    repositories.NonConformityRepository
	locker  locker.Locker
	metrics *metrics.Metrics
	now     func() time.Time
	logger  *zap.Logger
}

// NewNonConformityService creates a NonConformityService. A nil locker
// serializes allocation within this process only.
func NewNonConformityService(
	repo repositories.NonConformityRepository,
	lk locker.Locker,
	m *metrics.Metrics,
	logger *zap.Logger,
) NonConformityService {
	if lk == nil {
		lk = locker.NewLocal()
	}
	return &nonConformityService{
		repo:    repo,
		locker:  lk,
		metrics: m,
		now:     time.Now,
		logger:  logger.Named("nonconformity-service"),
	}
}

var _ NonConformityService = (*nonConformityService)(nil)

func (s *nonConformityService) List(ctx context.Context) ([]*models.NonConformity, error) {
	records, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list non-conformities: %w", err)
	}
	// Dates are ISO calendar dates, so string order is date order.
	slices.SortStableFunc(records, func(a, b *models.NonConformity) int {
		if c := cmp.Compare(b.Date, a.Date); c != 0 {
			return c
		}
		return cmp.Compare(b.NCID, a.NCID)
	})
	return records, nil
}

func (s *nonConformityService) Get(ctx context.Context, id uuid.UUID) (*models.NonConformity, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *nonConformityService) Create(ctx context.Context, actor string, proto *models.NonConformity) (*models.NonConformity, error) {
	if proto == nil {
		return nil, fmt.Errorf("%w: record is required", apperrors.ErrInvalidInput)
	}
	rec := lifecycle.Defaults(proto)
	rec.ID = uuid.Nil
	rec.NCID = ""
	rec.HDKPID = ""
	if err := validateNonConformity(rec); err != nil {
		return nil, err
	}

	unlock, err := s.locker.Lock(ctx, NonConformityLockKey)
	if err != nil {
		return nil, fmt.Errorf("acquire allocation lock: %w", err)
	}
	defer unlock()

	existing, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list non-conformities: %w", err)
	}

	allocated, err := numbering.AllocateNonConformity(existing, rec)
	if err != nil {
		allocationFailed(s.metrics, s.logger, err)
		return nil, err
	}
	allocated = lifecycle.Save(allocated, actor, s.now())

	if err := s.repo.Create(ctx, allocated); err != nil {
		allocationFailed(s.metrics, s.logger, err)
		return nil, err
	}

	s.metrics.IdentifiersAllocated(metrics.KindNonConformity, metrics.ModeSingle, 1)
	if allocated.HDKPID != "" {
		s.metrics.IdentifiersAllocated(metrics.KindCorrectiveAction, metrics.ModeSingle, 1)
	}
	s.metrics.StatusChanged(false, allocated.Status == models.NCStatusClosed)

	s.logger.Info("Created non-conformity",
		zap.String("nc_id", allocated.NCID),
		zap.String("hdkp_id", allocated.HDKPID),
		zap.String("date", allocated.Date),
		zap.String("actor", actor))
	return allocated, nil
}

func (s *nonConformityService) Update(ctx context.Context, actor string, id uuid.UUID, changes *models.NonConformity) (*models.NonConformity, error) {
	if changes == nil {
		return nil, fmt.Errorf("%w: record is required", apperrors.ErrInvalidInput)
	}

	stored, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	rec := changes.Clone()
	rec.ID = stored.ID
	rec.NCID = stored.NCID
	rec.HDKPID = stored.HDKPID
	if rec.Status == "" {
		rec.Status = stored.Status
	}
	// Re-saving a closed record keeps its original closure attribution.
	if rec.Status == models.NCStatusClosed {
		if rec.ClosedBy == "" {
			rec.ClosedBy = stored.ClosedBy
		}
		if rec.ClosedDate == "" {
			rec.ClosedDate = stored.ClosedDate
		}
	}
	if err := validateNonConformity(rec); err != nil {
		return nil, err
	}
	// Later allocations count records by date, so a stored date must parse.
	if _, err := numbering.ParseDate("date", rec.Date); err != nil {
		return nil, err
	}
	if rec.Date != stored.Date {
		// The code was derived from the original date and is not renumbered.
		s.logger.Debug("Detection date changed after allocation",
			zap.String("nc_id", rec.NCID),
			zap.String("from", stored.Date),
			zap.String("to", rec.Date))
	}

	saved := lifecycle.Save(rec, actor, s.now())
	if err := s.repo.Update(ctx, saved); err != nil {
		return nil, err
	}

	wasClosed := stored.Status == models.NCStatusClosed
	isClosed := saved.Status == models.NCStatusClosed
	s.metrics.StatusChanged(wasClosed, isClosed)
	if wasClosed != isClosed {
		s.logger.Info("Non-conformity status changed",
			zap.String("nc_id", saved.NCID),
			zap.String("from", string(stored.Status)),
			zap.String("to", string(saved.Status)),
			zap.String("actor", actor))
	}
	return saved, nil
}

func (s *nonConformityService) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info("Deleted non-conformity", zap.String("id", id.String()))
	return nil
}

func (s *nonConformityService) BulkLoad(ctx context.Context, actor string, protos []*models.NonConformity) ([]*models.NonConformity, error) {
	prepared := make([]*models.NonConformity, 0, len(protos))
	hdkp := 0
	for i, p := range protos {
		if p == nil {
			continue
		}
		rec := lifecycle.Defaults(p)
		if err := validateNonConformity(rec); err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		if rec.CorrectiveAction != "" && rec.HDKPID == "" {
			hdkp++
		}
		prepared = append(prepared, rec)
	}

	unlock, err := s.locker.Lock(ctx, NonConformityLockKey)
	if err != nil {
		return nil, fmt.Errorf("acquire allocation lock: %w", err)
	}
	defer unlock()

	assigned, err := numbering.AssignNonConformityIDs(prepared)
	if err != nil {
		allocationFailed(s.metrics, s.logger, err)
		return nil, err
	}
	now := s.now()
	for i, rec := range assigned {
		assigned[i] = lifecycle.Save(rec, actor, now)
	}

	if err := s.repo.ReplaceAll(ctx, assigned); err != nil {
		allocationFailed(s.metrics, s.logger, err)
		return nil, fmt.Errorf("replace non-conformities: %w", err)
	}

	s.metrics.IdentifiersAllocated(metrics.KindNonConformity, metrics.ModeBulk, len(assigned))
	s.metrics.IdentifiersAllocated(metrics.KindCorrectiveAction, metrics.ModeBulk, hdkp)
	s.logger.Info("Bulk loaded non-conformities",
		zap.Int("records", len(assigned)),
		zap.Int("corrective_actions", hdkp))
	return assigned, nil
}

func (s *nonConformityService) Review(ctx context.Context, id uuid.UUID) ([]lifecycle.Finding, error) {
	rec, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	findings := lifecycle.Review(rec)
	if findings == nil {
		findings = []lifecycle.Finding{}
	}
	return findings, nil
}

// allocationFailed counts a failed allocation by cause.
func allocationFailed(m *metrics.Metrics, logger *zap.Logger, err error) {
	switch {
	case errors.Is(err, apperrors.ErrInvalidDate):
		m.AllocationFailed("invalid_date")
	case errors.Is(err, apperrors.ErrDuplicateIdentifier):
		m.AllocationFailed("duplicate_identifier")
		logger.Warn("Identifier collision during allocation", zap.Error(err))
	default:
		m.AllocationFailed("store")
	}
}

func validateNonConformity(rec *models.NonConformity) error {
	if rec.Category != "" && !rec.Category.IsValid() {
		return fmt.Errorf("%w: unknown category %q", apperrors.ErrInvalidInput, rec.Category)
	}
	if rec.Severity != "" && !rec.Severity.IsValid() {
		return fmt.Errorf("%w: unknown severity %q", apperrors.ErrInvalidInput, rec.Severity)
	}
	if !rec.Status.IsValid() {
		return fmt.Errorf("%w: unknown status %q", apperrors.ErrInvalidInput, rec.Status)
	}
	if !rec.ImplementationApproved.IsValid() {
		return fmt.Errorf("%w: unknown implementation approval %q", apperrors.ErrInvalidInput, rec.ImplementationApproved)
	}
	if !rec.ResultApproved.IsValid() {
		return fmt.Errorf("%w: unknown result approval %q", apperrors.ErrInvalidInput, rec.ResultApproved)
	}
	for _, src := range rec.DetectionSources {
		if !src.IsValid() {
			return fmt.Errorf("%w: unknown detection source %q", apperrors.ErrInvalidInput, src)
		}
	}
	return nil
}
