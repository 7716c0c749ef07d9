package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/labqms/pkg/apperrors"
	"github.com/ekaya-inc/labqms/pkg/blob"
	"github.com/ekaya-inc/labqms/pkg/locker"
	"github.com/ekaya-inc/labqms/pkg/metrics"
	"github.com/ekaya-inc/labqms/pkg/models"
	"github.com/ekaya-inc/labqms/pkg/numbering"
	"github.com/ekaya-inc/labqms/pkg/repositories"
)

// archiveTimeLayout sorts lexically in time order.
const archiveTimeLayout = "20060102T150405Z"

// MaxBackupBytes bounds a backup read from an archive or request body.
const MaxBackupBytes = 64 << 20

// BackupService exports and restores the full record state.
type BackupService interface {
	// Export returns every collection exactly as stored.
	Export(ctx context.Context) (*models.Snapshot, error)
	// Restore replaces every collection with the contents of a backup file.
	// Missing collections restore as empty; records keep their codes.
	Restore(ctx context.Context, raw []byte) (*models.Snapshot, error)
	// Archive writes an export to the archive store.
	Archive(ctx context.Context) (blob.Info, error)
	ListArchives(ctx context.Context) ([]blob.Info, error)
	RestoreArchive(ctx context.Context, key string) (*models.Snapshot, error)
}

type backupService struct {
	store   repositories.Store
	blobs   blob.Store
	prefix  string
	locker  locker.Locker
	metrics *metrics.Metrics
	now     func() time.Time
	logger  *zap.Logger
}

// NewBackupService creates a BackupService. blobs may be nil, in which case
// the archive operations return apperrors.ErrBlobStoreDisabled.
func NewBackupService(
	store repositories.Store,
	blobs blob.Store,
	prefix string,
	lk locker.Locker,
	m *metrics.Metrics,
	logger *zap.Logger,
) BackupService {
	if lk == nil {
		lk = locker.NewLocal()
	}
	return &backupService{
		store:   store,
		blobs:   blobs,
		prefix:  prefix,
		locker:  lk,
		metrics: m,
		now:     time.Now,
		logger:  logger.Named("backup-service"),
	}
}

var _ BackupService = (*backupService)(nil)

func (s *backupService) Export(ctx context.Context) (*models.Snapshot, error) {
	snap, err := s.export(ctx)
	s.metrics.BackupOperation("export", err)
	return snap, err
}

func (s *backupService) export(ctx context.Context) (*models.Snapshot, error) {
	ncs, err := s.store.NonConformities().List(ctx)
	if err != nil {
		return nil, fmt.Errorf("export non-conformities: %w", err)
	}
	reports, err := s.store.PreventiveActions().List(ctx)
	if err != nil {
		return nil, fmt.Errorf("export preventive action reports: %w", err)
	}
	collections, err := s.store.Collections().GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("export collections: %w", err)
	}
	return &models.Snapshot{
		NonConformities:         ncs,
		PreventiveActionReports: reports,
		Collections:             collections,
	}, nil
}

func (s *backupService) Restore(ctx context.Context, raw []byte) (*models.Snapshot, error) {
	snap, err := s.restore(ctx, raw)
	s.metrics.BackupOperation("restore", err)
	return snap, err
}

func (s *backupService) restore(ctx context.Context, raw []byte) (*models.Snapshot, error) {
	var snap models.Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrInvalidInput, err)
	}

	// Hold both allocation locks so no code is allocated against a
	// half-restored collection.
	for _, key := range []string{NonConformityLockKey, PreventiveActionLockKey} {
		unlock, err := s.locker.Lock(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("acquire allocation lock: %w", err)
		}
		defer unlock()
	}

	if err := s.store.NonConformities().ReplaceAll(ctx, snap.NonConformities); err != nil {
		return nil, fmt.Errorf("restore non-conformities: %w", err)
	}
	if err := s.store.PreventiveActions().ReplaceAll(ctx, snap.PreventiveActionReports); err != nil {
		return nil, fmt.Errorf("restore preventive action reports: %w", err)
	}
	if err := s.store.Collections().ReplaceAll(ctx, snap.Collections); err != nil {
		return nil, fmt.Errorf("restore collections: %w", err)
	}

	for _, nc := range snap.NonConformities {
		if _, err := numbering.ParseDate("date", nc.Date); err != nil {
			s.logger.Warn("Restored non-conformity has an unparseable date; allocation will fail until it is corrected",
				zap.String("nc_id", nc.NCID),
				zap.String("id", nc.ID.String()),
				zap.String("date", nc.Date))
		}
	}

	s.logger.Info("Restored backup",
		zap.Int("non_conformities", len(snap.NonConformities)),
		zap.Int("preventive_action_reports", len(snap.PreventiveActionReports)),
		zap.Int("collections", len(snap.Collections)))
	return &snap, nil
}

func (s *backupService) Archive(ctx context.Context) (blob.Info, error) {
	info, err := s.archive(ctx)
	s.metrics.BackupOperation("archive", err)
	return info, err
}

func (s *backupService) archive(ctx context.Context) (blob.Info, error) {
	if s.blobs == nil {
		return blob.Info{}, apperrors.ErrBlobStoreDisabled
	}
	snap, err := s.export(ctx)
	if err != nil {
		return blob.Info{}, err
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return blob.Info{}, fmt.Errorf("encode backup: %w", err)
	}

	key := s.prefix + "labqms-" + s.now().UTC().Format(archiveTimeLayout) + ".json"
	info, err := s.blobs.Put(ctx, key, bytes.NewReader(data), blob.PutOptions{
		ContentType: "application/json",
		Metadata: map[string]string{
			"non-conformities":          fmt.Sprint(len(snap.NonConformities)),
			"preventive-action-reports": fmt.Sprint(len(snap.PreventiveActionReports)),
		},
	})
	if err != nil {
		return blob.Info{}, fmt.Errorf("upload backup: %w", err)
	}

	s.logger.Info("Archived backup", zap.String("key", info.Key), zap.Int64("bytes", info.Size))
	return info, nil
}

func (s *backupService) ListArchives(ctx context.Context) ([]blob.Info, error) {
	if s.blobs == nil {
		return nil, apperrors.ErrBlobStoreDisabled
	}
	infos, err := s.blobs.List(ctx, s.prefix)
	if err != nil {
		return nil, fmt.Errorf("list archives: %w", err)
	}
	archives := make([]blob.Info, 0, len(infos))
	for _, info := range infos {
		if strings.HasSuffix(info.Key, ".json") {
			archives = append(archives, info)
		}
	}
	return archives, nil
}

func (s *backupService) RestoreArchive(ctx context.Context, key string) (*models.Snapshot, error) {
	if s.blobs == nil {
		return nil, apperrors.ErrBlobStoreDisabled
	}
	if key == "" || !strings.HasPrefix(key, s.prefix) {
		return nil, fmt.Errorf("%w: archive key must start with %q", apperrors.ErrInvalidInput, s.prefix)
	}

	_, body, err := s.blobs.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("download backup: %w", err)
	}
	defer body.Close()

	raw, err := io.ReadAll(io.LimitReader(body, MaxBackupBytes+1))
	if err != nil {
		return nil, fmt.Errorf("download backup: %w", err)
	}
	if len(raw) > MaxBackupBytes {
		return nil, fmt.Errorf("%w: backup exceeds %d bytes", apperrors.ErrInvalidInput, MaxBackupBytes)
	}

	s.logger.Info("Restoring archived backup", zap.String("key", key))
	return s.Restore(ctx, raw)
}
