package output

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestColorDisabledForJSON(t *testing.T) {
	f := New(true, false, false)
	if got := f.SuccessText("ok"); got != "ok" {
		t.Errorf("JSON mode should suppress colors, got %q", got)
	}

	f = New(false, false, false)
	f.NoColor = true
	if got := f.ErrorText("bad"); got != "bad" {
		t.Errorf("NoColor should suppress colors, got %q", got)
	}

	if got := f.BoldText("x"); got != Bold+"x"+Reset {
		t.Errorf("colors enabled, got %q", got)
	}
}

func TestPrintJSON(t *testing.T) {
	var buf bytes.Buffer
	f := New(true, false, false)
	f.Writer = &buf

	if err := f.PrintJSON(map[string]int{"count": 3}); err != nil {
		t.Fatalf("PrintJSON: %v", err)
	}

	var out map[string]int
	if err := json.Unmarshal(buf.Bytes(), &out); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if out["count"] != 3 {
		t.Errorf("count = %d", out["count"])
	}
}

func TestPrintSuccessQuiet(t *testing.T) {
	var buf bytes.Buffer
	f := New(false, false, true)
	f.Writer = &buf

	f.PrintSuccess("done")
	if buf.Len() != 0 {
		t.Errorf("quiet mode wrote %q", buf.String())
	}
}

func TestVerbosef(t *testing.T) {
	var buf bytes.Buffer
	f := New(false, true, false)
	f.Writer = &buf
	f.NoColor = true

	f.Verbosef("fetched %d messages", 7)
	if !strings.Contains(buf.String(), "fetched 7 messages") {
		t.Errorf("verbose output = %q", buf.String())
	}

	buf.Reset()
	f.Verbose = false
	f.Verbosef("hidden")
	if buf.Len() != 0 {
		t.Errorf("non-verbose mode wrote %q", buf.String())
	}
}

func TestTableWriter(t *testing.T) {
	var buf bytes.Buffer
	f := New(false, false, false)
	f.Writer = &buf
	f.NoColor = true

	table := f.NewTable("NAME", "PROTOCOL")
	table.AddRow("work", "imap")
	table.AddRow("personal", "pop3")
	table.Flush()

	out := buf.String()
	for _, want := range []string{"NAME", "PROTOCOL", "work", "imap", "personal", "pop3"} {
		if !strings.Contains(out, want) {
			t.Errorf("table output missing %q:\n%s", want, out)
		}
	}
}
