// Package lifecycle applies the save-time rules of a non-conformity record.
//
// Status is a flat enum: any value may follow any other and no state is
// terminal. The only enforced side effect is that closure attribution
// (ClosedBy, ClosedDate) is present exactly when the status is closed.
package lifecycle

import (
	"strings"
	"time"

	"github.com/ekaya-inc/labqms/pkg/models"
	"github.com/ekaya-inc/labqms/pkg/numbering"
)

// Defaults fills the initial state of a newly submitted record: open status
// when none was given. Approval states are left as submitted; their zero
// value is unset.
func Defaults(proto *models.NonConformity) *models.NonConformity {
	rec := proto.Clone()
	if rec.Status == "" {
		rec.Status = models.NCStatusOpen
	}
	return rec
}

// Save returns the record as it must be stored after a save by actor at now.
//
// A closed record gets ClosedBy and ClosedDate filled in if they are empty;
// existing values are kept, so re-saving a closed record changes nothing. Any
// other status clears both fields. Save never rejects a record.
func Save(record *models.NonConformity, actor string, now time.Time) *models.NonConformity {
	rec := record.Clone()
	if rec.Status == models.NCStatusClosed {
		if rec.ClosedBy == "" {
			rec.ClosedBy = actor
		}
		if rec.ClosedDate == "" {
			rec.ClosedDate = now.Format(models.DateLayout)
		}
		return rec
	}
	rec.ClosedBy = ""
	rec.ClosedDate = ""
	return rec
}

// IsClosureConsistent reports whether closure attribution matches the status.
func IsClosureConsistent(rec *models.NonConformity) bool {
	closed := rec.Status == models.NCStatusClosed
	attributed := rec.ClosedBy != "" && rec.ClosedDate != ""
	cleared := rec.ClosedBy == "" && rec.ClosedDate == ""
	if closed {
		return attributed
	}
	return cleared
}

// FindingSeverity grades an advisory finding. Findings never block a save.
type FindingSeverity string

const (
	SeverityInfo FindingSeverity = "info"
	SeverityWarn FindingSeverity = "warn"
)

// Finding is an advisory observation about field combinations the state
// machine permits but a reviewer may want to look at.
type Finding struct {
	Rule     string          `json:"rule"`
	Severity FindingSeverity `json:"severity"`
	Message  string          `json:"message"`
	NCID     string          `json:"ncId,omitempty"`
}

type check struct {
	rule     string
	severity FindingSeverity
	message  string
	applies  func(rec *models.NonConformity) bool
}

var checks = []check{
	{
		rule:     "result_approved_while_not_closed",
		severity: SeverityWarn,
		message:  "result is approved but the non-conformity is not closed",
		applies: func(rec *models.NonConformity) bool {
			return rec.ResultApproved == models.ApprovalApproved && rec.Status != models.NCStatusClosed
		},
	},
	{
		rule:     "closed_without_result_approval",
		severity: SeverityWarn,
		message:  "non-conformity is closed without an approved result",
		applies: func(rec *models.NonConformity) bool {
			return rec.Status == models.NCStatusClosed && rec.ResultApproved != models.ApprovalApproved
		},
	},
	{
		rule:     "closed_with_rejected_implementation",
		severity: SeverityWarn,
		message:  "non-conformity is closed while corrective action implementation was rejected",
		applies: func(rec *models.NonConformity) bool {
			return rec.Status == models.NCStatusClosed && rec.ImplementationApproved == models.ApprovalRejected
		},
	},
	{
		rule:     "detection_source_other_unspecified",
		severity: SeverityInfo,
		message:  "detection source 'other' is selected without a description",
		applies: func(rec *models.NonConformity) bool {
			return rec.HasDetectionSource(models.DetectionOther) && strings.TrimSpace(rec.DetectionSourceOther) == ""
		},
	},
	{
		rule:     "corrective_action_without_identifier",
		severity: SeverityInfo,
		message:  "corrective action was added after creation and has no HDKP code",
		applies: func(rec *models.NonConformity) bool {
			return rec.CorrectiveAction != "" && rec.HDKPID == ""
		},
	},
	{
		rule:     "identifier_without_corrective_action",
		severity: SeverityInfo,
		message:  "HDKP code is kept although the corrective action was cleared",
		applies: func(rec *models.NonConformity) bool {
			return rec.HDKPID != "" && strings.TrimSpace(rec.CorrectiveAction) == ""
		},
	},
	{
		rule:     "unparseable_date",
		severity: SeverityWarn,
		message:  "detection date cannot be parsed; new codes cannot be allocated until it is corrected",
		applies: func(rec *models.NonConformity) bool {
			_, err := numbering.ParseDate("date", rec.Date)
			return err != nil
		},
	},
}

// Review returns advisory findings for rec in a fixed order.
func Review(rec *models.NonConformity) []Finding {
	var findings []Finding
	for _, c := range checks {
		if !c.applies(rec) {
			continue
		}
		findings = append(findings, Finding{
			Rule:     c.rule,
			Severity: c.severity,
			Message:  c.message,
			NCID:     rec.NCID,
		})
	}
	return findings
}
