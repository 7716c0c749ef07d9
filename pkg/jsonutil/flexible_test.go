package jsonutil

import (
	"encoding/json"
	"testing"
)

func TestFlexibleStringValue(t *testing.T) {
	tests := []struct {
		name  string
		input json.RawMessage
		want  string
	}{
		{name: "string value", input: json.RawMessage(`"abc-123"`), want: "abc-123"},
		{name: "millisecond timestamp id", input: json.RawMessage(`1709251200000`), want: "1709251200000"},
		{name: "float value", input: json.RawMessage(`3.5`), want: "3.5"},
		{name: "boolean", input: json.RawMessage(`true`), want: "true"},
		{name: "null value", input: json.RawMessage(`null`), want: ""},
		{name: "nil raw message", input: nil, want: ""},
		{name: "padded null", input: json.RawMessage(`  null `), want: ""},
		{name: "negative integer", input: json.RawMessage(`-7`), want: "-7"},
		{name: "object falls back to raw", input: json.RawMessage(`{"a":1}`), want: `{"a":1}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FlexibleStringValue(tt.input)
			if got != tt.want {
				t.Errorf("FlexibleStringValue(%s) = %q, want %q", string(tt.input), got, tt.want)
			}
		})
	}
}

func TestArrayOrEmpty(t *testing.T) {
	tests := []struct {
		name  string
		input json.RawMessage
		want  string
	}{
		{name: "missing", input: nil, want: `[]`},
		{name: "null", input: json.RawMessage(`null`), want: `[]`},
		{name: "array kept", input: json.RawMessage(`[{"id":1}]`), want: `[{"id":1}]`},
		{name: "object passed through", input: json.RawMessage(`{}`), want: `{}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := string(ArrayOrEmpty(tt.input))
			if got != tt.want {
				t.Errorf("ArrayOrEmpty(%s) = %s, want %s", string(tt.input), got, tt.want)
			}
		})
	}
}
