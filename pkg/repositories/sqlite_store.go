package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	_ "modernc.org/sqlite" // pure go sqlite driver

	"github.com/ekaya-inc/labqms/pkg/models"
)

// SQLiteStore persists the in-memory state to a single SQLite table, one JSON
// array per collection. The full state is written after every successful
// mutation, the same unit a browser-local store would save.
type SQLiteStore struct {
	*MemoryStore
	db     *sql.DB
	path   string
	logger *zap.Logger
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens (or creates) the database at path and loads any state
// it already holds.
func NewSQLiteStore(ctx context.Context, path string, logger *zap.Logger) (*SQLiteStore, error) {
	if path == "" {
		path = "labqms.db"
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One writer at a time; snapshots are written under the store lock anyway.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS state (
		bucket TEXT PRIMARY KEY,
		payload BLOB NOT NULL
	)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create state table: %w", err)
	}

	s := &SQLiteStore{
		MemoryStore: NewMemoryStore(),
		db:          db,
		path:        path,
		logger:      logger.Named("sqlite-store"),
	}
	if err := s.load(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	s.afterWrite = s.persistLocked
	return s, nil
}

func (s *SQLiteStore) load(ctx context.Context) error {
	rows, err := s.db.QueryContext(ctx, `SELECT bucket, payload FROM state`)
	if err != nil {
		return fmt.Errorf("select state: %w", err)
	}
	defer func() { _ = rows.Close() }()

	buckets := make(map[string]json.RawMessage)
	for rows.Next() {
		var bucket string
		var payload []byte
		if err := rows.Scan(&bucket, &payload); err != nil {
			return fmt.Errorf("scan: %w", err)
		}
		buckets[bucket] = json.RawMessage(payload)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate state: %w", err)
	}
	if len(buckets) == 0 {
		return nil
	}

	// Route through the backup decoder so stored records get the same id
	// normalization a restored file does.
	data, err := json.Marshal(buckets)
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	var snap models.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("decode state: %w", err)
	}

	s.mu.Lock()
	s.loadLocked(snap)
	s.mu.Unlock()

	s.logger.Info("Loaded state from SQLite",
		zap.String("path", s.path),
		zap.Int("non_conformities", len(snap.NonConformities)),
		zap.Int("preventive_action_reports", len(snap.PreventiveActionReports)))
	return nil
}

// persistLocked writes every collection in one transaction. Caller holds s.mu.
func (s *SQLiteStore) persistLocked(ctx context.Context) (retErr error) {
	data, err := json.Marshal(s.snapshotLocked())
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	var buckets map[string]json.RawMessage
	if err := json.Unmarshal(data, &buckets); err != nil {
		return fmt.Errorf("split state: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()
	if _, err := tx.ExecContext(ctx, `DELETE FROM state`); err != nil {
		return fmt.Errorf("clear state: %w", err)
	}
	for bucket, payload := range buckets {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO state(bucket,payload) VALUES(?,?) ON CONFLICT(bucket) DO UPDATE SET payload=excluded.payload`,
			bucket, []byte(payload)); err != nil {
			return fmt.Errorf("upsert %s: %w", bucket, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string { return s.path }
