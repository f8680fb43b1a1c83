// Package format writes CLI output: the JSON envelope for scripts and plain
// text for people.
package format

import (
	"encoding/json"
	"fmt"
	"io"
)

// Envelope is the shape of every --json response.
type Envelope struct {
	Data  any            `json:"data"`
	Meta  map[string]any `json:"meta,omitempty"`
	Hints []string       `json:"_hints,omitempty"`
}

// ErrorBody is the shape of a failed --json response.
type ErrorBody struct {
	Error ErrorInfo `json:"error"`
}

type ErrorInfo struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

// WriteJSON writes strict JSON output. Anything beyond the payload goes in
// meta or _hints, never in extra top-level keys.
func WriteJSON(w io.Writer, v any, pretty bool) error {
	var (
		b   []byte
		err error
	)
	if pretty {
		b, err = json.MarshalIndent(v, "", "  ")
	} else {
		b, err = json.Marshal(v)
	}
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(b))
	return err
}

// WriteEnvelope wraps data with optional meta.
func WriteEnvelope(w io.Writer, data any, meta map[string]any, pretty bool, hints ...string) error {
	return WriteJSON(w, Envelope{Data: data, Meta: meta, Hints: hints}, pretty)
}

func WriteError(w io.Writer, kind, message, field string) error {
	return WriteJSON(w, ErrorBody{Error: ErrorInfo{Kind: kind, Message: message, Field: field}}, false)
}

// WriteJSONLine writes one compact JSON value per line, for streams.
func WriteJSONLine(w io.Writer, v any) error {
	return WriteJSON(w, v, false)
}
