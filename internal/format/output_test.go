package format

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestWriteEnvelope(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteEnvelope(&buf, []string{"a"}, map[string]any{"count": 1}, false); err != nil {
		t.Fatal(err)
	}
	var got map[string]any
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	want := map[string]any{"data": []any{"a"}, "meta": map[string]any{"count": float64(1)}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("(-want +got):\n%s", diff)
	}
}

func TestWriteEnvelopeOmitsEmptyMeta(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteEnvelope(&buf, nil, nil, false); err != nil {
		t.Fatal(err)
	}
	if got := strings.TrimSpace(buf.String()); got != `{"data":null}` {
		t.Fatalf("got %s", got)
	}
}

func TestWriteError(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteError(&buf, "validation", "name is required", "name"); err != nil {
		t.Fatal(err)
	}
	if got := strings.TrimSpace(buf.String()); got != `{"error":{"kind":"validation","message":"name is required","field":"name"}}` {
		t.Fatalf("got %s", got)
	}
}
