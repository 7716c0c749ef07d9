// Package seed bootstraps an empty store from a YAML file.
//
// A seed file lists non-conformities and preventive action reports without
// tracking codes:
//
//	nonConformities:
//	  - date: 2024-03-05
//	    category: analytical
//	    severity: minor
//	    description: QC run out of range
//	    detectionSources: [internal_audit]
//	preventiveActionReports:
//	  - dateCreated: 2024-01-15
//	    title: Fridge temperature excursions
//
// Non-conformities are numbered in one bulk pass; reports are created one by
// one in file order.
package seed

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/ekaya-inc/labqms/pkg/models"
	"github.com/ekaya-inc/labqms/pkg/services"
)

// File is the decoded contents of a seed file.
type File struct {
	NonConformities   []NonConformity    `yaml:"nonConformities"`
	PreventiveActions []PreventiveAction `yaml:"preventiveActionReports"`
}

// NonConformity is one seeded non-conformity.
type NonConformity struct {
	Date                       string   `yaml:"date"`
	Category                   string   `yaml:"category"`
	Severity                   string   `yaml:"severity"`
	Description                string   `yaml:"description"`
	RootCauseAnalysis          string   `yaml:"rootCauseAnalysis"`
	CorrectiveAction           string   `yaml:"correctiveAction"`
	PreventiveAction           string   `yaml:"preventiveAction"`
	Status                     string   `yaml:"status"`
	ImplementationApproved     string   `yaml:"implementationApproved"`
	ImplementationApprovalDate string   `yaml:"implementationApprovalDate"`
	ResultApproved             string   `yaml:"resultApproved"`
	ActionEffectiveness        string   `yaml:"actionEffectiveness"`
	ClosedBy                   string   `yaml:"closedBy"`
	ClosedDate                 string   `yaml:"closedDate"`
	ReportedBy                 string   `yaml:"reportedBy"`
	ActionPerformer            string   `yaml:"actionPerformer"`
	ActionApprover             string   `yaml:"actionApprover"`
	FinalApprover              string   `yaml:"finalApprover"`
	DetectionSources           []string `yaml:"detectionSources"`
	DetectionSourceOther       string   `yaml:"detectionSourceOther"`
}

// PreventiveAction is one seeded preventive action report.
type PreventiveAction struct {
	DateCreated       string `yaml:"dateCreated"`
	Title             string `yaml:"title"`
	Description       string `yaml:"description"`
	RiskSource        string `yaml:"riskSource"`
	ProposedAction    string `yaml:"proposedAction"`
	ResponsiblePerson string `yaml:"responsiblePerson"`
	DueDate           string `yaml:"dueDate"`
	Status            string `yaml:"status"`
	CreatedBy         string `yaml:"createdBy"`
}

// Load reads and decodes a seed file.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse seed file %s: %w", path, err)
	}
	return &f, nil
}

// Model converts the seed entry to a proto-record.
func (n NonConformity) Model() *models.NonConformity {
	rec := &models.NonConformity{
		Date:                       n.Date,
		Category:                   models.NCCategory(n.Category),
		Severity:                   models.NCSeverity(n.Severity),
		Description:                n.Description,
		RootCauseAnalysis:          n.RootCauseAnalysis,
		CorrectiveAction:           n.CorrectiveAction,
		PreventiveAction:           n.PreventiveAction,
		Status:                     models.NCStatus(n.Status),
		ImplementationApproved:     models.ApprovalState(n.ImplementationApproved),
		ImplementationApprovalDate: n.ImplementationApprovalDate,
		ResultApproved:             models.ApprovalState(n.ResultApproved),
		ActionEffectiveness:        n.ActionEffectiveness,
		ClosedBy:                   n.ClosedBy,
		ClosedDate:                 n.ClosedDate,
		ReportedBy:                 n.ReportedBy,
		ActionPerformer:            n.ActionPerformer,
		ActionApprover:             n.ActionApprover,
		FinalApprover:              n.FinalApprover,
		DetectionSourceOther:       n.DetectionSourceOther,
	}
	for _, src := range n.DetectionSources {
		rec.DetectionSources = append(rec.DetectionSources, models.DetectionSource(src))
	}
	return rec
}

// Model converts the seed entry to a proto-report.
func (p PreventiveAction) Model() *models.PreventiveActionReport {
	return &models.PreventiveActionReport{
		DateCreated:       p.DateCreated,
		Title:             p.Title,
		Description:       p.Description,
		RiskSource:        p.RiskSource,
		ProposedAction:    p.ProposedAction,
		ResponsiblePerson: p.ResponsiblePerson,
		DueDate:           p.DueDate,
		Status:            models.PreventiveActionStatus(p.Status),
		CreatedBy:         p.CreatedBy,
	}
}

// Result reports what Apply loaded.
type Result struct {
	NonConformities   int
	PreventiveActions int
}

// Apply loads f into collections that are still empty. A collection that
// already holds records is left alone, so Apply is safe to run on every start.
func Apply(
	ctx context.Context,
	f *File,
	ncs services.NonConformityService,
	reports services.PreventiveActionService,
	actor string,
	logger *zap.Logger,
) (Result, error) {
	logger = logger.Named("seed")
	var res Result

	if len(f.NonConformities) > 0 {
		existing, err := ncs.List(ctx)
		if err != nil {
			return res, fmt.Errorf("check non-conformities: %w", err)
		}
		if len(existing) == 0 {
			protos := make([]*models.NonConformity, 0, len(f.NonConformities))
			for _, n := range f.NonConformities {
				protos = append(protos, n.Model())
			}
			loaded, err := ncs.BulkLoad(ctx, actor, protos)
			if err != nil {
				return res, fmt.Errorf("seed non-conformities: %w", err)
			}
			res.NonConformities = len(loaded)
		} else {
			logger.Info("Skipping non-conformity seed; collection is not empty",
				zap.Int("existing", len(existing)))
		}
	}

	if len(f.PreventiveActions) > 0 {
		existing, err := reports.List(ctx)
		if err != nil {
			return res, fmt.Errorf("check preventive action reports: %w", err)
		}
		if len(existing) == 0 {
			for i, p := range f.PreventiveActions {
				if _, err := reports.Create(ctx, actor, p.Model()); err != nil {
					return res, fmt.Errorf("seed preventive action report %d: %w", i, err)
				}
				res.PreventiveActions++
			}
		} else {
			logger.Info("Skipping preventive action seed; collection is not empty",
				zap.Int("existing", len(existing)))
		}
	}

	logger.Info("Applied seed data",
		zap.Int("non_conformities", res.NonConformities),
		zap.Int("preventive_action_reports", res.PreventiveActions))
	return res, nil
}
