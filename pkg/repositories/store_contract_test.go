package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/labqms/pkg/apperrors"
	"github.com/ekaya-inc/labqms/pkg/models"
)

func newTestNC(ncID, date string) *models.NonConformity {
	return &models.NonConformity{
		NCID:             ncID,
		Date:             date,
		Category:         models.NCCategoryAnalytical,
		Severity:         models.NCSeverityMinor,
		Description:      "QC run out of range for " + ncID,
		Status:           models.NCStatusOpen,
		DetectionSources: []models.DetectionSource{models.DetectionInternalAudit},
	}
}

func newTestReport(reportID, date string) *models.PreventiveActionReport {
	return &models.PreventiveActionReport{
		ReportID:    reportID,
		DateCreated: date,
		Title:       "Centrifuge calibration drift",
		Status:      models.PreventiveActionOpen,
		CreatedBy:   "QA Manager",
	}
}

// runStoreContract exercises behavior every Store backend must share.
func runStoreContract(t *testing.T, newStore func(t *testing.T) Store) {
	t.Run("non-conformity create and get", func(t *testing.T) {
		ctx := context.Background()
		repo := newStore(t).NonConformities()

		nc := newTestNC("SKPH-2403001", "2024-03-05")
		nc.CorrectiveAction = "Recalibrated analyser"
		nc.HDKPID = "HDKP-2403001"
		require.NoError(t, repo.Create(ctx, nc))
		require.NotEqual(t, uuid.Nil, nc.ID)

		got, err := repo.GetByID(ctx, nc.ID)
		require.NoError(t, err)
		assert.Equal(t, nc, got)
	})

	t.Run("non-conformity list keeps insertion order", func(t *testing.T) {
		ctx := context.Background()
		repo := newStore(t).NonConformities()

		for _, nc := range []*models.NonConformity{
			newTestNC("SKPH-2403002", "2024-03-20"),
			newTestNC("SKPH-2402001", "2024-02-01"),
			newTestNC("SKPH-2403001", "2024-03-01"),
		} {
			require.NoError(t, repo.Create(ctx, nc))
		}

		list, err := repo.List(ctx)
		require.NoError(t, err)
		require.Len(t, list, 3)
		assert.Equal(t, "SKPH-2403002", list[0].NCID)
		assert.Equal(t, "SKPH-2402001", list[1].NCID)
		assert.Equal(t, "SKPH-2403001", list[2].NCID)
	})

	t.Run("non-conformity duplicate codes rejected", func(t *testing.T) {
		ctx := context.Background()
		repo := newStore(t).NonConformities()

		first := newTestNC("SKPH-2403001", "2024-03-05")
		first.HDKPID = "HDKP-2403001"
		require.NoError(t, repo.Create(ctx, first))

		err := repo.Create(ctx, newTestNC("SKPH-2403001", "2024-03-06"))
		var dup *apperrors.DuplicateIdentifierError
		require.True(t, errors.As(err, &dup), "got %v", err)
		assert.Equal(t, "SKPH-2403001", dup.Identifier)

		second := newTestNC("SKPH-2403002", "2024-03-06")
		second.HDKPID = "HDKP-2403001"
		err = repo.Create(ctx, second)
		require.True(t, errors.As(err, &dup), "got %v", err)
		assert.Equal(t, "HDKP-2403001", dup.Identifier)
		assert.ErrorIs(t, err, apperrors.ErrConflict)
	})

	t.Run("non-conformity update and delete", func(t *testing.T) {
		ctx := context.Background()
		repo := newStore(t).NonConformities()

		nc := newTestNC("SKPH-2403001", "2024-03-05")
		require.NoError(t, repo.Create(ctx, nc))

		nc.Status = models.NCStatusClosed
		nc.ClosedBy = "Lab Director"
		nc.ClosedDate = "2024-04-01"
		require.NoError(t, repo.Update(ctx, nc))

		got, err := repo.GetByID(ctx, nc.ID)
		require.NoError(t, err)
		assert.Equal(t, models.NCStatusClosed, got.Status)
		assert.Equal(t, "Lab Director", got.ClosedBy)

		require.NoError(t, repo.Delete(ctx, nc.ID))
		_, err = repo.GetByID(ctx, nc.ID)
		assert.ErrorIs(t, err, apperrors.ErrNotFound)
		assert.ErrorIs(t, repo.Delete(ctx, nc.ID), apperrors.ErrNotFound)
	})

	t.Run("non-conformity update of missing record", func(t *testing.T) {
		repo := newStore(t).NonConformities()
		nc := newTestNC("SKPH-2403001", "2024-03-05")
		nc.ID = uuid.New()
		assert.ErrorIs(t, repo.Update(context.Background(), nc), apperrors.ErrNotFound)
	})

	t.Run("non-conformity replace all", func(t *testing.T) {
		ctx := context.Background()
		repo := newStore(t).NonConformities()
		require.NoError(t, repo.Create(ctx, newTestNC("SKPH-2401001", "2024-01-10")))

		replacement := []*models.NonConformity{
			newTestNC("SKPH-2402001", "2024-02-10"),
			newTestNC("SKPH-2402002", "2024-02-11"),
		}
		require.NoError(t, repo.ReplaceAll(ctx, replacement))

		list, err := repo.List(ctx)
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, "SKPH-2402001", list[0].NCID)
		assert.Equal(t, "SKPH-2402002", list[1].NCID)
		assert.NotEqual(t, uuid.Nil, list[0].ID)

		err = repo.ReplaceAll(ctx, []*models.NonConformity{
			newTestNC("SKPH-2405001", "2024-05-01"),
			newTestNC("SKPH-2405001", "2024-05-02"),
		})
		assert.ErrorIs(t, err, apperrors.ErrDuplicateIdentifier)

		list, err = repo.List(ctx)
		require.NoError(t, err)
		assert.Len(t, list, 2, "failed replace must leave the collection untouched")
	})

	t.Run("replace all rejects repeated record ids", func(t *testing.T) {
		ctx := context.Background()
		store := newStore(t)

		ncs := store.NonConformities()
		require.NoError(t, ncs.Create(ctx, newTestNC("SKPH-2401001", "2024-01-10")))
		first := newTestNC("SKPH-2403001", "2024-03-05")
		first.ID = uuid.New()
		second := newTestNC("SKPH-2403002", "2024-03-06")
		second.ID = first.ID
		err := ncs.ReplaceAll(ctx, []*models.NonConformity{first, second})
		assert.ErrorIs(t, err, apperrors.ErrConflict)

		list, err := ncs.List(ctx)
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, "SKPH-2401001", list[0].NCID)

		reports := store.PreventiveActions()
		a := newTestReport("HDPN-240001", "2024-01-15")
		a.ID = uuid.New()
		b := newTestReport("HDPN-240002", "2024-02-15")
		b.ID = a.ID
		err = reports.ReplaceAll(ctx, []*models.PreventiveActionReport{a, b})
		assert.ErrorIs(t, err, apperrors.ErrConflict)

		stored, err := reports.List(ctx)
		require.NoError(t, err)
		assert.Empty(t, stored)
	})

	t.Run("preventive action lifecycle", func(t *testing.T) {
		ctx := context.Background()
		repo := newStore(t).PreventiveActions()

		report := newTestReport("HDPN-240001", "2024-01-15")
		require.NoError(t, repo.Create(ctx, report))
		require.NoError(t, repo.Create(ctx, newTestReport("HDPN-240002", "2024-02-15")))

		err := repo.Create(ctx, newTestReport("HDPN-240001", "2024-03-15"))
		assert.ErrorIs(t, err, apperrors.ErrDuplicateIdentifier)

		report.Status = models.PreventiveActionCompleted
		require.NoError(t, repo.Update(ctx, report))
		got, err := repo.GetByID(ctx, report.ID)
		require.NoError(t, err)
		assert.Equal(t, models.PreventiveActionCompleted, got.Status)

		list, err := repo.List(ctx)
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, "HDPN-240001", list[0].ReportID)

		require.NoError(t, repo.Delete(ctx, report.ID))
		_, err = repo.GetByID(ctx, report.ID)
		assert.ErrorIs(t, err, apperrors.ErrNotFound)
	})

	t.Run("collections replace all", func(t *testing.T) {
		ctx := context.Background()
		repo := newStore(t).Collections()

		in := map[string]json.RawMessage{
			"chemicals": json.RawMessage(`[{"name":"EDTA"}]`),
			"equipment": json.RawMessage(`[]`),
		}
		require.NoError(t, repo.ReplaceAll(ctx, in))

		got, err := repo.GetAll(ctx)
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.JSONEq(t, `[{"name":"EDTA"}]`, string(got["chemicals"]))
		assert.JSONEq(t, `[]`, string(got["equipment"]))
	})
}
