// Package numbering derives the human-facing tracking codes of quality
// records from their dates.
//
// Non-conformities are numbered per calendar month of their detection date
// (SKPH-YYMMNNN, with a co-derived HDKP-YYMMNNN when a corrective action is
// present). Preventive action reports are numbered per calendar year of their
// creation date (HDPN-YYNNNN). Every function here is pure: counters are
// rebuilt from the supplied collection on each call and nothing is cached.
package numbering

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/ekaya-inc/labqms/pkg/apperrors"
	"github.com/ekaya-inc/labqms/pkg/models"
)

// Accepted date inputs. Anything after the calendar date is only used for ordering.
var dateLayouts = []string{
	models.DateLayout,
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
}

// ParseDate parses a record date. field names the source field in the error.
func ParseDate(field, value string) (time.Time, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return time.Time{}, &apperrors.InvalidDateError{Field: field, Value: value}
	}
	var lastErr error
	for _, layout := range dateLayouts {
		t, err := time.Parse(layout, trimmed)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, &apperrors.InvalidDateError{Field: field, Value: value, Err: lastErr}
}

type monthKey struct {
	year  int
	month time.Month
}

func monthOf(t time.Time) monthKey {
	return monthKey{year: t.Year(), month: t.Month()}
}

// String renders the key as "{year}-{zeroIndexedMonth}".
func (k monthKey) String() string {
	return fmt.Sprintf("%d-%d", k.year, int(k.month)-1)
}

// MonthKey returns the "{year}-{zeroIndexedMonth}" bucket a date is sequenced in.
func MonthKey(date string) (string, error) {
	t, err := ParseDate("date", date)
	if err != nil {
		return "", err
	}
	return monthOf(t).String(), nil
}

func ncSuffix(t time.Time, seq int) string {
	return fmt.Sprintf("%02d%02d%03d", t.Year()%100, int(t.Month()), seq)
}

// Suffix returns the numeric part of a tracking code (everything after the
// first '-'), or "" if the code has no prefix.
func Suffix(code string) string {
	_, suffix, ok := strings.Cut(code, "-")
	if !ok {
		return ""
	}
	return suffix
}

// AssignNonConformityIDs numbers a whole collection from scratch.
//
// Records are stable-sorted by date and numbered per month starting at 1.
// Previously assigned NC codes are ignored and overwritten; an existing
// HDKP code is kept. The result is in date order, not input order, and the
// input records are not modified.
func AssignNonConformityIDs(protos []*models.NonConformity) ([]*models.NonConformity, error) {
	type dated struct {
		rec *models.NonConformity
		at  time.Time
	}

	items := make([]dated, 0, len(protos))
	for i, p := range protos {
		if p == nil {
			continue
		}
		at, err := ParseDate("date", p.Date)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		items = append(items, dated{rec: p.Clone(), at: at})
	}

	slices.SortStableFunc(items, func(a, b dated) int {
		return a.at.Compare(b.at)
	})

	counters := make(map[monthKey]int)
	taken := make(map[string]struct{}, len(items)*2)
	out := make([]*models.NonConformity, 0, len(items))
	for _, it := range items {
		key := monthOf(it.at)
		counters[key]++
		suffix := ncSuffix(it.at, counters[key])

		rec := it.rec
		rec.NCID = models.NCIDPrefix + suffix
		if rec.CorrectiveAction != "" && rec.HDKPID == "" {
			rec.HDKPID = models.HDKPIDPrefix + suffix
		}

		for _, code := range []string{rec.NCID, rec.HDKPID} {
			if code == "" {
				continue
			}
			if _, dup := taken[code]; dup {
				return nil, &apperrors.DuplicateIdentifierError{Identifier: code}
			}
			taken[code] = struct{}{}
		}
		out = append(out, rec)
	}
	return out, nil
}

// AllocateNonConformity assigns codes to one new record given the current
// collection.
//
// The sequence is the number of existing records dated in the same month,
// plus one; stored codes of existing records are not consulted for counting.
// A record dated earlier than others in its month is still appended at the
// end of the month's sequence and nothing is renumbered. existing is not
// modified.
func AllocateNonConformity(existing []*models.NonConformity, proto *models.NonConformity) (*models.NonConformity, error) {
	if proto == nil {
		return nil, fmt.Errorf("%w: record is required", apperrors.ErrInvalidInput)
	}
	at, err := ParseDate("date", proto.Date)
	if err != nil {
		return nil, err
	}

	counters := make(map[monthKey]int)
	for _, rec := range existing {
		if rec == nil {
			continue
		}
		d, err := ParseDate("date", rec.Date)
		if err != nil {
			return nil, fmt.Errorf("existing record %s: %w", recordLabel(rec), err)
		}
		counters[monthOf(d)]++
	}

	suffix := ncSuffix(at, counters[monthOf(at)]+1)
	rec := proto.Clone()
	rec.NCID = models.NCIDPrefix + suffix
	if rec.CorrectiveAction != "" && rec.HDKPID == "" {
		rec.HDKPID = models.HDKPIDPrefix + suffix
	}

	for _, other := range existing {
		if other == nil {
			continue
		}
		if other.NCID == rec.NCID {
			return nil, &apperrors.DuplicateIdentifierError{Identifier: rec.NCID}
		}
		if rec.HDKPID != "" && other.HDKPID == rec.HDKPID {
			return nil, &apperrors.DuplicateIdentifierError{Identifier: rec.HDKPID}
		}
	}
	return rec, nil
}

// AllocatePreventiveAction assigns a report code to one new preventive action
// report: HDPN- + two-digit year + four-digit count of existing reports
// created in that year, plus one. existing is not modified.
func AllocatePreventiveAction(existing []*models.PreventiveActionReport, proto *models.PreventiveActionReport) (*models.PreventiveActionReport, error) {
	if proto == nil {
		return nil, fmt.Errorf("%w: report is required", apperrors.ErrInvalidInput)
	}
	at, err := ParseDate("dateCreated", proto.DateCreated)
	if err != nil {
		return nil, err
	}

	count := 0
	for _, r := range existing {
		if r == nil {
			continue
		}
		d, err := ParseDate("dateCreated", r.DateCreated)
		if err != nil {
			return nil, fmt.Errorf("existing report %s: %w", r.ReportID, err)
		}
		if d.Year() == at.Year() {
			count++
		}
	}

	rec := proto.Clone()
	rec.ReportID = fmt.Sprintf("%s%02d%04d", models.PreventiveActionPrefix, at.Year()%100, count+1)
	for _, r := range existing {
		if r != nil && r.ReportID == rec.ReportID {
			return nil, &apperrors.DuplicateIdentifierError{Identifier: rec.ReportID}
		}
	}
	return rec, nil
}

func recordLabel(nc *models.NonConformity) string {
	if nc.NCID != "" {
		return nc.NCID
	}
	return nc.ID.String()
}
