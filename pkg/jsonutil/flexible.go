package jsonutil

import (
	"bytes"
	"encoding/json"
	"strconv"
)

var emptyArray = json.RawMessage(`[]`)

// FlexibleStringValue reads a scalar that older exports may have written as a
// number or boolean instead of a string. Returns "" for null or empty input.
func FlexibleStringValue(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}

	var n json.Number
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&n); err == nil {
		if i, err := n.Int64(); err == nil {
			return strconv.FormatInt(i, 10)
		}
		if f, err := n.Float64(); err == nil {
			return strconv.FormatFloat(f, 'g', -1, 64)
		}
	}

	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return strconv.FormatBool(b)
	}

	return string(raw)
}

// ArrayOrEmpty returns raw unchanged when it holds a JSON array and `[]` when
// it is missing or null. Any other shape is returned as-is so the caller's
// decoder reports it.
func ArrayOrEmpty(raw json.RawMessage) json.RawMessage {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return emptyArray
	}
	return raw
}
