package models

import "github.com/google/uuid"

// PreventiveActionPrefix prefixes preventive action report codes.
const PreventiveActionPrefix = "HDPN-"

// PreventiveActionStatus is the progress state of a preventive action report.
type PreventiveActionStatus string

const (
	PreventiveActionOpen       PreventiveActionStatus = "open"
	PreventiveActionInProgress PreventiveActionStatus = "in_progress"
	PreventiveActionCompleted  PreventiveActionStatus = "completed"
)

func (s PreventiveActionStatus) IsValid() bool {
	switch s {
	case PreventiveActionOpen, PreventiveActionInProgress, PreventiveActionCompleted:
		return true
	default:
		return false
	}
}

// PreventiveActionReport records a risk and the action planned to prevent it.
// ReportID is sequenced per calendar year of DateCreated.
type PreventiveActionReport struct {
	ID                uuid.UUID              `json:"id"`
	ReportID          string                 `json:"reportId"`
	DateCreated       string                 `json:"dateCreated"`
	Title             string                 `json:"title"`
	Description       string                 `json:"description"`
	RiskSource        string                 `json:"riskSource"`
	ProposedAction    string                 `json:"proposedAction"`
	ResponsiblePerson string                 `json:"responsiblePerson"`
	DueDate           string                 `json:"dueDate"`
	Status            PreventiveActionStatus `json:"status"`
	CreatedBy         string                 `json:"createdBy"`
}

// Clone returns a copy of the report.
func (r *PreventiveActionReport) Clone() *PreventiveActionReport {
	if r == nil {
		return nil
	}
	c := *r
	return &c
}
