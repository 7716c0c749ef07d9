package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/ekaya-inc/labqms/pkg/apperrors"
	"github.com/ekaya-inc/labqms/pkg/database"
	"github.com/ekaya-inc/labqms/pkg/models"
)

// querier is satisfied by both the pool and a transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore keeps records in PostgreSQL. The schema is created by
// database.RunMigrations.
type PostgresStore struct {
	db *database.DB
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore wraps an open connection pool.
func NewPostgresStore(db *database.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) NonConformities() NonConformityRepository {
	return &nonConformityRepository{db: s.db}
}

func (s *PostgresStore) PreventiveActions() PreventiveActionRepository {
	return &preventiveActionRepository{db: s.db}
}

func (s *PostgresStore) Collections() CollectionRepository {
	return &collectionRepository{db: s.db}
}

// Close closes the connection pool.
func (s *PostgresStore) Close() error {
	s.db.Close()
	return nil
}

// uniqueViolation maps a unique-index violation to a DuplicateIdentifierError
// naming the identifier the index guards.
func uniqueViolation(err error, identifierFor func(constraint string) string) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		if id := identifierFor(pgErr.ConstraintName); id != "" {
			return &apperrors.DuplicateIdentifierError{Identifier: id}
		}
		return fmt.Errorf("%s: %w", pgErr.Detail, apperrors.ErrConflict)
	}
	return nil
}

const nonConformityColumns = `
	id, nc_id, hdkp_id, nc_date, category, severity,
	description, root_cause_analysis, corrective_action, preventive_action,
	status, implementation_approved, implementation_approval_date,
	result_approved, action_effectiveness, closed_by, closed_date,
	reported_by, action_performer, action_approver, final_approver,
	detection_sources, detection_source_other`

type nonConformityRepository struct {
	db *database.DB
}

func (r *nonConformityRepository) List(ctx context.Context) ([]*models.NonConformity, error) {
	rows, err := r.db.Query(ctx, `SELECT `+nonConformityColumns+` FROM non_conformities ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("failed to list non-conformities: %w", err)
	}
	defer rows.Close()

	records := make([]*models.NonConformity, 0)
	for rows.Next() {
		nc, err := scanNonConformity(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan non-conformity: %w", err)
		}
		records = append(records, nc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate non-conformities: %w", err)
	}
	return records, nil
}

func (r *nonConformityRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.NonConformity, error) {
	row := r.db.QueryRow(ctx, `SELECT `+nonConformityColumns+` FROM non_conformities WHERE id = $1`, id)
	nc, err := scanNonConformity(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("non-conformity %s: %w", id, apperrors.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get non-conformity: %w", err)
	}
	return nc, nil
}

func (r *nonConformityRepository) Create(ctx context.Context, nc *models.NonConformity) error {
	if nc.ID == uuid.Nil {
		nc.ID = uuid.New()
	}
	return insertNonConformity(ctx, r.db, nc)
}

func (r *nonConformityRepository) Update(ctx context.Context, nc *models.NonConformity) error {
	query := `
		UPDATE non_conformities
		SET nc_id = $2, hdkp_id = $3, nc_date = $4, category = $5, severity = $6,
		    description = $7, root_cause_analysis = $8, corrective_action = $9, preventive_action = $10,
		    status = $11, implementation_approved = $12, implementation_approval_date = $13,
		    result_approved = $14, action_effectiveness = $15, closed_by = $16, closed_date = $17,
		    reported_by = $18, action_performer = $19, action_approver = $20, final_approver = $21,
		    detection_sources = $22, detection_source_other = $23, updated_at = now()
		WHERE id = $1`

	tag, err := r.db.Exec(ctx, query, nonConformityArgs(nc)...)
	if err != nil {
		if dup := uniqueViolation(err, ncIdentifier(nc)); dup != nil {
			return dup
		}
		return fmt.Errorf("failed to update non-conformity: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("non-conformity %s: %w", nc.ID, apperrors.ErrNotFound)
	}
	return nil
}

func (r *nonConformityRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM non_conformities WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete non-conformity: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("non-conformity %s: %w", id, apperrors.ErrNotFound)
	}
	return nil
}

// ReplaceAll deletes every record and inserts records in order, atomically.
func (r *nonConformityRepository) ReplaceAll(ctx context.Context, records []*models.NonConformity) error {
	return r.db.InTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM non_conformities`); err != nil {
			return fmt.Errorf("failed to clear non-conformities: %w", err)
		}
		for _, nc := range records {
			if nc.ID == uuid.Nil {
				nc.ID = uuid.New()
			}
			if err := insertNonConformity(ctx, tx, nc); err != nil {
				return err
			}
		}
		return nil
	})
}

func insertNonConformity(ctx context.Context, q querier, nc *models.NonConformity) error {
	query := `
		INSERT INTO non_conformities (` + nonConformityColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12,
		        $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23)`

	if _, err := q.Exec(ctx, query, nonConformityArgs(nc)...); err != nil {
		if dup := uniqueViolation(err, ncIdentifier(nc)); dup != nil {
			return dup
		}
		return fmt.Errorf("failed to create non-conformity: %w", err)
	}
	return nil
}

func ncIdentifier(nc *models.NonConformity) func(string) string {
	return func(constraint string) string {
		switch constraint {
		case "non_conformities_nc_id_key":
			return nc.NCID
		case "non_conformities_hdkp_id_key":
			return nc.HDKPID
		}
		return ""
	}
}

func nonConformityArgs(nc *models.NonConformity) []any {
	sources := make([]string, 0, len(nc.DetectionSources))
	for _, src := range nc.DetectionSources {
		sources = append(sources, string(src))
	}
	return []any{
		nc.ID, nc.NCID, nc.HDKPID, nc.Date, string(nc.Category), string(nc.Severity),
		nc.Description, nc.RootCauseAnalysis, nc.CorrectiveAction, nc.PreventiveAction,
		string(nc.Status), string(nc.ImplementationApproved), nc.ImplementationApprovalDate,
		string(nc.ResultApproved), nc.ActionEffectiveness, nc.ClosedBy, nc.ClosedDate,
		nc.ReportedBy, nc.ActionPerformer, nc.ActionApprover, nc.FinalApprover,
		sources, nc.DetectionSourceOther,
	}
}

func scanNonConformity(row pgx.Row) (*models.NonConformity, error) {
	var nc models.NonConformity
	var category, severity, status, implApproved, resultApproved string
	var sources []string

	err := row.Scan(
		&nc.ID, &nc.NCID, &nc.HDKPID, &nc.Date, &category, &severity,
		&nc.Description, &nc.RootCauseAnalysis, &nc.CorrectiveAction, &nc.PreventiveAction,
		&status, &implApproved, &nc.ImplementationApprovalDate,
		&resultApproved, &nc.ActionEffectiveness, &nc.ClosedBy, &nc.ClosedDate,
		&nc.ReportedBy, &nc.ActionPerformer, &nc.ActionApprover, &nc.FinalApprover,
		&sources, &nc.DetectionSourceOther,
	)
	if err != nil {
		return nil, err
	}

	nc.Category = models.NCCategory(category)
	nc.Severity = models.NCSeverity(severity)
	nc.Status = models.NCStatus(status)
	nc.ImplementationApproved = models.ApprovalState(implApproved)
	nc.ResultApproved = models.ApprovalState(resultApproved)
	if len(sources) > 0 {
		nc.DetectionSources = make([]models.DetectionSource, 0, len(sources))
		for _, src := range sources {
			nc.DetectionSources = append(nc.DetectionSources, models.DetectionSource(src))
		}
	}
	return &nc, nil
}

const preventiveActionColumns = `
	id, report_id, date_created, title, description, risk_source,
	proposed_action, responsible_person, due_date, status, created_by`

type preventiveActionRepository struct {
	db *database.DB
}

func (r *preventiveActionRepository) List(ctx context.Context) ([]*models.PreventiveActionReport, error) {
	rows, err := r.db.Query(ctx, `SELECT `+preventiveActionColumns+` FROM preventive_action_reports ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("failed to list preventive action reports: %w", err)
	}
	defer rows.Close()

	reports := make([]*models.PreventiveActionReport, 0)
	for rows.Next() {
		report, err := scanPreventiveAction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan preventive action report: %w", err)
		}
		reports = append(reports, report)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate preventive action reports: %w", err)
	}
	return reports, nil
}

func (r *preventiveActionRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.PreventiveActionReport, error) {
	row := r.db.QueryRow(ctx, `SELECT `+preventiveActionColumns+` FROM preventive_action_reports WHERE id = $1`, id)
	report, err := scanPreventiveAction(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("preventive action report %s: %w", id, apperrors.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get preventive action report: %w", err)
	}
	return report, nil
}

func (r *preventiveActionRepository) Create(ctx context.Context, report *models.PreventiveActionReport) error {
	if report.ID == uuid.Nil {
		report.ID = uuid.New()
	}
	return insertPreventiveAction(ctx, r.db, report)
}

func (r *preventiveActionRepository) Update(ctx context.Context, report *models.PreventiveActionReport) error {
	query := `
		UPDATE preventive_action_reports
		SET report_id = $2, date_created = $3, title = $4, description = $5, risk_source = $6,
		    proposed_action = $7, responsible_person = $8, due_date = $9, status = $10,
		    created_by = $11, updated_at = now()
		WHERE id = $1`

	tag, err := r.db.Exec(ctx, query, preventiveActionArgs(report)...)
	if err != nil {
		if dup := uniqueViolation(err, reportIdentifier(report)); dup != nil {
			return dup
		}
		return fmt.Errorf("failed to update preventive action report: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("preventive action report %s: %w", report.ID, apperrors.ErrNotFound)
	}
	return nil
}

func (r *preventiveActionRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM preventive_action_reports WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete preventive action report: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("preventive action report %s: %w", id, apperrors.ErrNotFound)
	}
	return nil
}

func (r *preventiveActionRepository) ReplaceAll(ctx context.Context, reports []*models.PreventiveActionReport) error {
	return r.db.InTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM preventive_action_reports`); err != nil {
			return fmt.Errorf("failed to clear preventive action reports: %w", err)
		}
		for _, report := range reports {
			if report.ID == uuid.Nil {
				report.ID = uuid.New()
			}
			if err := insertPreventiveAction(ctx, tx, report); err != nil {
				return err
			}
		}
		return nil
	})
}

func insertPreventiveAction(ctx context.Context, q querier, report *models.PreventiveActionReport) error {
	query := `
		INSERT INTO preventive_action_reports (` + preventiveActionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	if _, err := q.Exec(ctx, query, preventiveActionArgs(report)...); err != nil {
		if dup := uniqueViolation(err, reportIdentifier(report)); dup != nil {
			return dup
		}
		return fmt.Errorf("failed to create preventive action report: %w", err)
	}
	return nil
}

func reportIdentifier(report *models.PreventiveActionReport) func(string) string {
	return func(constraint string) string {
		if constraint == "preventive_action_reports_report_id_key" {
			return report.ReportID
		}
		return ""
	}
}

func preventiveActionArgs(report *models.PreventiveActionReport) []any {
	return []any{
		report.ID, report.ReportID, report.DateCreated, report.Title, report.Description,
		report.RiskSource, report.ProposedAction, report.ResponsiblePerson, report.DueDate,
		string(report.Status), report.CreatedBy,
	}
}

func scanPreventiveAction(row pgx.Row) (*models.PreventiveActionReport, error) {
	var report models.PreventiveActionReport
	var status string
	err := row.Scan(
		&report.ID, &report.ReportID, &report.DateCreated, &report.Title, &report.Description,
		&report.RiskSource, &report.ProposedAction, &report.ResponsiblePerson, &report.DueDate,
		&status, &report.CreatedBy,
	)
	if err != nil {
		return nil, err
	}
	report.Status = models.PreventiveActionStatus(status)
	return &report, nil
}

type collectionRepository struct {
	db *database.DB
}

func (r *collectionRepository) GetAll(ctx context.Context) (map[string]json.RawMessage, error) {
	rows, err := r.db.Query(ctx, `SELECT name, payload FROM opaque_collections`)
	if err != nil {
		return nil, fmt.Errorf("failed to list collections: %w", err)
	}
	defer rows.Close()

	out := make(map[string]json.RawMessage)
	for rows.Next() {
		var name string
		var payload []byte
		if err := rows.Scan(&name, &payload); err != nil {
			return nil, fmt.Errorf("failed to scan collection: %w", err)
		}
		out[name] = json.RawMessage(payload)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate collections: %w", err)
	}
	return out, nil
}

func (r *collectionRepository) ReplaceAll(ctx context.Context, collections map[string]json.RawMessage) error {
	return r.db.InTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM opaque_collections`); err != nil {
			return fmt.Errorf("failed to clear collections: %w", err)
		}
		for name, payload := range collections {
			if _, err := tx.Exec(ctx,
				`INSERT INTO opaque_collections (name, payload) VALUES ($1, $2)`,
				name, []byte(payload)); err != nil {
				return fmt.Errorf("failed to store collection %s: %w", name, err)
			}
		}
		return nil
	})
}
