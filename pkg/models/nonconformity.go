// Package models contains domain types for the lab quality-management service.
package models

import (
	"slices"

	"github.com/google/uuid"
)

// DateLayout is the calendar-date format used by every date field.
const DateLayout = "2006-01-02"

// Tracking-code prefixes.
const (
	NCIDPrefix   = "SKPH-" // non-conformity
	HDKPIDPrefix = "HDKP-" // corrective action, co-derived with the NC code
)

// NCStatus is the top-level lifecycle state of a non-conformity.
type NCStatus string

const (
	NCStatusOpen       NCStatus = "open"
	NCStatusInProgress NCStatus = "in_progress"
	NCStatusClosed     NCStatus = "closed"
)

// IsValid returns true if the status is a known lifecycle state.
func (s NCStatus) IsValid() bool {
	switch s {
	case NCStatusOpen, NCStatusInProgress, NCStatusClosed:
		return true
	default:
		return false
	}
}

// NCCategory classifies where in the testing process the deviation occurred.
type NCCategory string

const (
	NCCategoryPreAnalytical  NCCategory = "pre-analytical"
	NCCategoryAnalytical     NCCategory = "analytical"
	NCCategoryPostAnalytical NCCategory = "post-analytical"
	NCCategorySafety         NCCategory = "safety"
	NCCategorySupplier       NCCategory = "supplier"
	NCCategorySystem         NCCategory = "system"
	NCCategoryOther          NCCategory = "other"
)

func (c NCCategory) IsValid() bool {
	switch c {
	case NCCategoryPreAnalytical, NCCategoryAnalytical, NCCategoryPostAnalytical,
		NCCategorySafety, NCCategorySupplier, NCCategorySystem, NCCategoryOther:
		return true
	default:
		return false
	}
}

// NCSeverity is the impact level of a non-conformity.
type NCSeverity string

const (
	NCSeverityMinor  NCSeverity = "minor"
	NCSeveritySevere NCSeverity = "severe"
)

func (s NCSeverity) IsValid() bool {
	return s == NCSeverityMinor || s == NCSeveritySevere
}

// ApprovalState is the outcome of an approval step. The zero value means not yet decided.
type ApprovalState string

const (
	ApprovalUnset    ApprovalState = ""
	ApprovalApproved ApprovalState = "approved"
	ApprovalRejected ApprovalState = "rejected"
)

func (a ApprovalState) IsValid() bool {
	switch a {
	case ApprovalUnset, ApprovalApproved, ApprovalRejected:
		return true
	default:
		return false
	}
}

// DetectionSource records how a non-conformity was discovered.
type DetectionSource string

const (
	DetectionNCReport         DetectionSource = "nc_report"
	DetectionInternalAudit    DetectionSource = "internal_audit"
	DetectionManagementReview DetectionSource = "management_review"
	DetectionExternalAudit    DetectionSource = "external_audit"
	DetectionOther            DetectionSource = "other"
)

func (d DetectionSource) IsValid() bool {
	switch d {
	case DetectionNCReport, DetectionInternalAudit, DetectionManagementReview,
		DetectionExternalAudit, DetectionOther:
		return true
	default:
		return false
	}
}

// NonConformity is one recorded quality deviation.
//
// NCID is assigned once at creation and never changes. HDKPID shares the
// numeric suffix of NCID and is only present when a corrective action
// existed at allocation time. Date is the detection date (YYYY-MM-DD) and is
// the only input to sequence numbering.
type NonConformity struct {
	ID     uuid.UUID `json:"id"`
	NCID   string    `json:"ncId"`
	HDKPID string    `json:"hdkpId,omitempty"`
	Date   string    `json:"date"`

	Category NCCategory `json:"category"`
	Severity NCSeverity `json:"severity"`

	Description       string `json:"description"`
	RootCauseAnalysis string `json:"rootCauseAnalysis"`
	CorrectiveAction  string `json:"correctiveAction"`
	PreventiveAction  string `json:"preventiveAction"`

	Status                     NCStatus      `json:"status"`
	ImplementationApproved     ApprovalState `json:"implementationApproved"`
	ImplementationApprovalDate string        `json:"implementationApprovalDate"`
	ResultApproved             ApprovalState `json:"resultApproved"`
	ActionEffectiveness        string        `json:"actionEffectiveness"`
	ClosedBy                   string        `json:"closedBy"`
	ClosedDate                 string        `json:"closedDate"`

	ReportedBy      string `json:"reportedBy"`
	ActionPerformer string `json:"actionPerformer"`
	ActionApprover  string `json:"actionApprover"`
	FinalApprover   string `json:"finalApprover"`

	DetectionSources     []DetectionSource `json:"detectionSources"`
	DetectionSourceOther string            `json:"detectionSourceOther"`
}

// Clone returns a deep copy of the record.
func (nc *NonConformity) Clone() *NonConformity {
	if nc == nil {
		return nil
	}
	c := *nc
	c.DetectionSources = slices.Clone(nc.DetectionSources)
	return &c
}

// HasDetectionSource reports whether src is among the record's detection sources.
func (nc *NonConformity) HasDetectionSource(src DetectionSource) bool {
	return slices.Contains(nc.DetectionSources, src)
}
