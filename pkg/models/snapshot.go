package models

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/google/uuid"

	"github.com/ekaya-inc/labqms/pkg/jsonutil"
)

// Collection names used as top-level keys of a backup.
const (
	CollectionNonConformities   = "nonConformities"
	CollectionPreventiveActions = "preventiveActionReports"
)

// OpaqueCollections are carried through backup and restore without being
// interpreted by the service.
var OpaqueCollections = []string{
	"chemicals",
	"equipment",
	"maintenanceRecords",
	"personnel",
	"trainingRecords",
	"documents",
}

// legacyIDNamespace scopes UUIDs derived from non-UUID record ids found in
// older exports (millisecond timestamps, mostly).
var legacyIDNamespace = uuid.MustParse("6f1f8b52-4c1e-4a55-9f0e-2a9d3c7b5e10")

// Snapshot is the full persisted state: one array per collection, keyed by
// collection name. There is no version field.
type Snapshot struct {
	NonConformities         []*NonConformity
	PreventiveActionReports []*PreventiveActionReport
	Collections             map[string]json.RawMessage
}

// MarshalJSON flattens the snapshot into a single object keyed by collection.
func (s Snapshot) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(s.Collections)+len(OpaqueCollections)+2)
	for name, raw := range s.Collections {
		out[name] = jsonutil.ArrayOrEmpty(raw)
	}
	for _, name := range OpaqueCollections {
		if _, ok := out[name]; !ok {
			out[name] = jsonutil.ArrayOrEmpty(nil)
		}
	}

	ncs := s.NonConformities
	if ncs == nil {
		ncs = []*NonConformity{}
	}
	reports := s.PreventiveActionReports
	if reports == nil {
		reports = []*PreventiveActionReport{}
	}
	out[CollectionNonConformities] = ncs
	out[CollectionPreventiveActions] = reports

	return json.Marshal(out)
}

// UnmarshalJSON reads a backup object. Missing collections become empty.
func (s *Snapshot) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("backup is not a JSON object: %w", err)
	}

	ncs, err := decodeRecords[NonConformity](CollectionNonConformities, raw[CollectionNonConformities])
	if err != nil {
		return err
	}
	reports, err := decodeRecords[PreventiveActionReport](CollectionPreventiveActions, raw[CollectionPreventiveActions])
	if err != nil {
		return err
	}
	delete(raw, CollectionNonConformities)
	delete(raw, CollectionPreventiveActions)

	collections := make(map[string]json.RawMessage, len(raw)+len(OpaqueCollections))
	for name, value := range raw {
		collections[name] = jsonutil.ArrayOrEmpty(value)
	}
	for _, name := range OpaqueCollections {
		if _, ok := collections[name]; !ok {
			collections[name] = jsonutil.ArrayOrEmpty(nil)
		}
	}

	s.NonConformities = ncs
	s.PreventiveActionReports = reports
	s.Collections = collections
	return nil
}

// DecodeNonConformities decodes a JSON array of non-conformities with the
// same id handling a restored backup gets.
func DecodeNonConformities(raw json.RawMessage) ([]*NonConformity, error) {
	return decodeRecords[NonConformity](CollectionNonConformities, raw)
}

func decodeRecords[T any](collection string, raw json.RawMessage) ([]*T, error) {
	var items []map[string]json.RawMessage
	if err := json.Unmarshal(jsonutil.ArrayOrEmpty(raw), &items); err != nil {
		return nil, fmt.Errorf("decode %s: %w", collection, err)
	}

	out := make([]*T, 0, len(items))
	for i, item := range items {
		if item == nil {
			continue
		}
		item["id"] = normalizeRecordID(item["id"])
		buf, err := json.Marshal(item)
		if err != nil {
			return nil, fmt.Errorf("decode %s[%d]: %w", collection, i, err)
		}
		var rec T
		if err := json.Unmarshal(buf, &rec); err != nil {
			return nil, fmt.Errorf("decode %s[%d]: %w", collection, i, err)
		}
		out = append(out, &rec)
	}
	return out, nil
}

// normalizeRecordID maps whatever id an export carried onto a UUID. Records
// without an id get a fresh one; non-UUID ids map deterministically.
func normalizeRecordID(raw json.RawMessage) json.RawMessage {
	legacy := jsonutil.FlexibleStringValue(raw)
	var id uuid.UUID
	switch parsed, err := uuid.Parse(legacy); {
	case legacy == "":
		id = uuid.New()
	case err == nil:
		id = parsed
	default:
		id = uuid.NewSHA1(legacyIDNamespace, []byte(legacy))
	}
	return json.RawMessage(strconv.Quote(id.String()))
}
