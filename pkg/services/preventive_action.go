package services

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/labqms/pkg/apperrors"
	"github.com/ekaya-inc/labqms/pkg/locker"
	"github.com/ekaya-inc/labqms/pkg/metrics"
	"github.com/ekaya-inc/labqms/pkg/models"
	"github.com/ekaya-inc/labqms/pkg/numbering"
	"github.com/ekaya-inc/labqms/pkg/repositories"
)

// PreventiveActionService provides operations for preventive action reports.
type PreventiveActionService interface {
	// List returns every report, newest creation date first.
	List(ctx context.Context) ([]*models.PreventiveActionReport, error)
	Get(ctx context.Context, id uuid.UUID) (*models.PreventiveActionReport, error)
	// Create allocates the report code. An empty DateCreated means today and
	// an empty CreatedBy means actor.
	Create(ctx context.Context, actor string, proto *models.PreventiveActionReport) (*models.PreventiveActionReport, error)
	// Update saves changes; the report code and creation date are kept.
	Update(ctx context.Context, id uuid.UUID, changes *models.PreventiveActionReport) (*models.PreventiveActionReport, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type preventiveActionService struct {
	repo    repositories.PreventiveActionRepository
	locker  locker.Locker
	metrics *metrics.Metrics
	now     func() time.Time
	logger  *zap.Logger
}

// NewPreventiveActionService creates a PreventiveActionService.
func NewPreventiveActionService(
	repo repositories.PreventiveActionRepository,
	lk locker.Locker,
	m *metrics.Metrics,
	logger *zap.Logger,
) PreventiveActionService {
	if lk == nil {
		lk = locker.NewLocal()
	}
	return &preventiveActionService{
		repo:    repo,
		locker:  lk,
		metrics: m,
		now:     time.Now,
		logger:  logger.Named("preventive-action-service"),
	}
}

var _ PreventiveActionService = (*preventiveActionService)(nil)

func (s *preventiveActionService) List(ctx context.Context) ([]*models.PreventiveActionReport, error) {
	reports, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list preventive action reports: %w", err)
	}
	slices.SortStableFunc(reports, func(a, b *models.PreventiveActionReport) int {
		if c := cmp.Compare(b.DateCreated, a.DateCreated); c != 0 {
			return c
		}
		return cmp.Compare(b.ReportID, a.ReportID)
	})
	return reports, nil
}

func (s *preventiveActionService) Get(ctx context.Context, id uuid.UUID) (*models.PreventiveActionReport, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *preventiveActionService) Create(ctx context.Context, actor string, proto *models.PreventiveActionReport) (*models.PreventiveActionReport, error) {
	if proto == nil {
		return nil, fmt.Errorf("%w: report is required", apperrors.ErrInvalidInput)
	}
	rec := proto.Clone()
	rec.ID = uuid.Nil
	rec.ReportID = ""
	if rec.DateCreated == "" {
		rec.DateCreated = s.now().Format(models.DateLayout)
	}
	if rec.CreatedBy == "" {
		rec.CreatedBy = actor
	}
	if rec.Status == "" {
		rec.Status = models.PreventiveActionOpen
	}
	if err := validatePreventiveAction(rec); err != nil {
		return nil, err
	}

	unlock, err := s.locker.Lock(ctx, PreventiveActionLockKey)
	if err != nil {
		return nil, fmt.Errorf("acquire allocation lock: %w", err)
	}
	defer unlock()

	existing, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list preventive action reports: %w", err)
	}

	allocated, err := numbering.AllocatePreventiveAction(existing, rec)
	if err != nil {
		allocationFailed(s.metrics, s.logger, err)
		return nil, err
	}
	if err := s.repo.Create(ctx, allocated); err != nil {
		allocationFailed(s.metrics, s.logger, err)
		return nil, err
	}

	s.metrics.IdentifiersAllocated(metrics.KindPreventiveAction, metrics.ModeSingle, 1)
	s.logger.Info("Created preventive action report",
		zap.String("report_id", allocated.ReportID),
		zap.String("date_created", allocated.DateCreated),
		zap.String("actor", actor))
	return allocated, nil
}

func (s *preventiveActionService) Update(ctx context.Context, id uuid.UUID, changes *models.PreventiveActionReport) (*models.PreventiveActionReport, error) {
	if changes == nil {
		return nil, fmt.Errorf("%w: report is required", apperrors.ErrInvalidInput)
	}
	stored, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	rec := changes.Clone()
	rec.ID = stored.ID
	rec.ReportID = stored.ReportID
	rec.DateCreated = stored.DateCreated
	if rec.CreatedBy == "" {
		rec.CreatedBy = stored.CreatedBy
	}
	if rec.Status == "" {
		rec.Status = stored.Status
	}
	if err := validatePreventiveAction(rec); err != nil {
		return nil, err
	}

	if err := s.repo.Update(ctx, rec); err != nil {
		return nil, err
	}
	if rec.Status != stored.Status {
		s.logger.Info("Preventive action report status changed",
			zap.String("report_id", rec.ReportID),
			zap.String("from", string(stored.Status)),
			zap.String("to", string(rec.Status)))
	}
	return rec, nil
}

func (s *preventiveActionService) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info("Deleted preventive action report", zap.String("id", id.String()))
	return nil
}

func validatePreventiveAction(rec *models.PreventiveActionReport) error {
	if rec.Title == "" {
		return fmt.Errorf("%w: title is required", apperrors.ErrInvalidInput)
	}
	if !rec.Status.IsValid() {
		return fmt.Errorf("%w: unknown status %q", apperrors.ErrInvalidInput, rec.Status)
	}
	if rec.DueDate != "" {
		if _, err := numbering.ParseDate("dueDate", rec.DueDate); err != nil {
			return err
		}
	}
	return nil
}
