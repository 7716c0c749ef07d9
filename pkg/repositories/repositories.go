// Package repositories provides storage for quality records.
//
// Three backends share one contract: an in-memory store, a SQLite store that
// snapshots the in-memory state after every write, and a PostgreSQL store.
// Every backend keeps records in insertion order, which is the order the
// identifier allocator and the backup export see.
package repositories

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"

	"github.com/ekaya-inc/labqms/pkg/models"
)

// NonConformityRepository provides data access for non-conformity records.
type NonConformityRepository interface {
	// List returns every record in insertion order.
	List(ctx context.Context) ([]*models.NonConformity, error)
	// GetByID returns apperrors.ErrNotFound when no record has the id.
	GetByID(ctx context.Context, id uuid.UUID) (*models.NonConformity, error)
	// Create appends a record, assigning an ID if it has none. A taken NC or
	// HDKP code yields *apperrors.DuplicateIdentifierError.
	Create(ctx context.Context, nc *models.NonConformity) error
	Update(ctx context.Context, nc *models.NonConformity) error
	Delete(ctx context.Context, id uuid.UUID) error
	// ReplaceAll swaps the whole collection, keeping the given order.
	ReplaceAll(ctx context.Context, records []*models.NonConformity) error
}

// PreventiveActionRepository provides data access for preventive action reports.
type PreventiveActionRepository interface {
	List(ctx context.Context) ([]*models.PreventiveActionReport, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.PreventiveActionReport, error)
	Create(ctx context.Context, report *models.PreventiveActionReport) error
	Update(ctx context.Context, report *models.PreventiveActionReport) error
	Delete(ctx context.Context, id uuid.UUID) error
	ReplaceAll(ctx context.Context, reports []*models.PreventiveActionReport) error
}

// CollectionRepository holds the collections the service carries through
// backup and restore without interpreting them.
type CollectionRepository interface {
	GetAll(ctx context.Context) (map[string]json.RawMessage, error)
	ReplaceAll(ctx context.Context, collections map[string]json.RawMessage) error
}

// Store groups the repositories of one storage backend.
type Store interface {
	NonConformities() NonConformityRepository
	PreventiveActions() PreventiveActionRepository
	Collections() CollectionRepository
	Close() error
}
