package handlers

import (
	"context"

	"github.com/google/uuid"

	"github.com/ekaya-inc/labqms/pkg/blob"
	"github.com/ekaya-inc/labqms/pkg/lifecycle"
	"github.com/ekaya-inc/labqms/pkg/models"
	"github.com/ekaya-inc/labqms/pkg/services"
)

// mockNonConformityService records the actor it was called with and returns
// the configured record or error.
type mockNonConformityService struct {
	record    *models.NonConformity
	records   []*models.NonConformity
	findings  []lifecycle.Finding
	err       error
	lastActor string
	lastID    uuid.UUID
	lastInput *models.NonConformity
	lastBulk  []*models.NonConformity
}

var _ services.NonConformityService = (*mockNonConformityService)(nil)

func (m *mockNonConformityService) List(ctx context.Context) ([]*models.NonConformity, error) {
	return m.records, m.err
}

func (m *mockNonConformityService) Get(ctx context.Context, id uuid.UUID) (*models.NonConformity, error) {
	m.lastID = id
	if m.err != nil {
		return nil, m.err
	}
	return m.record, nil
}

func (m *mockNonConformityService) Create(ctx context.Context, actor string, proto *models.NonConformity) (*models.NonConformity, error) {
	m.lastActor, m.lastInput = actor, proto
	if m.err != nil {
		return nil, m.err
	}
	return m.record, nil
}

func (m *mockNonConformityService) Update(ctx context.Context, actor string, id uuid.UUID, changes *models.NonConformity) (*models.NonConformity, error) {
	m.lastActor, m.lastID, m.lastInput = actor, id, changes
	if m.err != nil {
		return nil, m.err
	}
	return m.record, nil
}

func (m *mockNonConformityService) Delete(ctx context.Context, id uuid.UUID) error {
	m.lastID = id
	return m.err
}

func (m *mockNonConformityService) BulkLoad(ctx context.Context, actor string, protos []*models.NonConformity) ([]*models.NonConformity, error) {
	m.lastActor, m.lastBulk = actor, protos
	if m.err != nil {
		return nil, m.err
	}
	return m.records, nil
}

func (m *mockNonConformityService) Review(ctx context.Context, id uuid.UUID) ([]lifecycle.Finding, error) {
	m.lastID = id
	if m.err != nil {
		return nil, m.err
	}
	return m.findings, nil
}

type mockPreventiveActionService struct {
	report    *models.PreventiveActionReport
	reports   []*models.PreventiveActionReport
	err       error
	lastActor string
	lastID    uuid.UUID
}

var _ services.PreventiveActionService = (*mockPreventiveActionService)(nil)

func (m *mockPreventiveActionService) List(ctx context.Context) ([]*models.PreventiveActionReport, error) {
	return m.reports, m.err
}

func (m *mockPreventiveActionService) Get(ctx context.Context, id uuid.UUID) (*models.PreventiveActionReport, error) {
	m.lastID = id
	if m.err != nil {
		return nil, m.err
	}
	return m.report, nil
}

func (m *mockPreventiveActionService) Create(ctx context.Context, actor string, proto *models.PreventiveActionReport) (*models.PreventiveActionReport, error) {
	m.lastActor = actor
	if m.err != nil {
		return nil, m.err
	}
	return m.report, nil
}

func (m *mockPreventiveActionService) Update(ctx context.Context, id uuid.UUID, changes *models.PreventiveActionReport) (*models.PreventiveActionReport, error) {
	m.lastID = id
	if m.err != nil {
		return nil, m.err
	}
	return m.report, nil
}

func (m *mockPreventiveActionService) Delete(ctx context.Context, id uuid.UUID) error {
	m.lastID = id
	return m.err
}

type mockBackupService struct {
	snapshot    *models.Snapshot
	info        blob.Info
	archives    []blob.Info
	err         error
	lastRaw     []byte
	lastArchive string
}

var _ services.BackupService = (*mockBackupService)(nil)

func (m *mockBackupService) Export(ctx context.Context) (*models.Snapshot, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.snapshot, nil
}

func (m *mockBackupService) Restore(ctx context.Context, raw []byte) (*models.Snapshot, error) {
	m.lastRaw = raw
	if m.err != nil {
		return nil, m.err
	}
	return m.snapshot, nil
}

func (m *mockBackupService) Archive(ctx context.Context) (blob.Info, error) {
	return m.info, m.err
}

func (m *mockBackupService) ListArchives(ctx context.Context) ([]blob.Info, error) {
	return m.archives, m.err
}

func (m *mockBackupService) RestoreArchive(ctx context.Context, key string) (*models.Snapshot, error) {
	m.lastArchive = key
	if m.err != nil {
		return nil, m.err
	}
	return m.snapshot, nil
}
