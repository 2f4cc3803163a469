package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

// Setup mutates package globals, so these tests do not run in parallel.

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"", FormatConsole, false},
		{"console", FormatConsole, false},
		{"json", FormatJSON, false},
		{"xml", "", true},
	}
	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseFormat(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("ParseFormat(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSetupJSONLevels(t *testing.T) {
	var buf bytes.Buffer
	SetupWithWriter(LevelNormal, FormatJSON, &buf)

	Debug("hidden", "k", 1)
	Info("shown", "activity_type", "Run", "year", 2024)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected 1 line at normal level, got %d: %q", len(lines), buf.String())
	}

	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("log line is not JSON: %v", err)
	}
	if entry["message"] != "shown" || entry["activity_type"] != "Run" || entry["year"] != float64(2024) {
		t.Errorf("unexpected entry %v", entry)
	}
	if IsVerbose() || IsTraceEnabled() {
		t.Error("normal level should not be verbose")
	}

	buf.Reset()
	SetupWithWriter(LevelTrace, FormatJSON, &buf)
	Debug("now shown")
	if !strings.Contains(buf.String(), "now shown") {
		t.Errorf("expected debug output at trace level, got %q", buf.String())
	}
	if !IsVerbose() || !IsTraceEnabled() {
		t.Error("trace level should be verbose and trace enabled")
	}
}

func TestToJSON(t *testing.T) {
	if got := ToJSON(nil); got != "null" {
		t.Errorf("ToJSON(nil) = %q", got)
	}
	if got := ToJSON(map[string]int{"a": 1}); got != `{"a":1}` {
		t.Errorf("ToJSON(map) = %q", got)
	}
	if got := ToJSON(make(chan int)); got != "<marshal error>" {
		t.Errorf("ToJSON(chan) = %q", got)
	}
	long := strings.Repeat("x", 3000)
	if got := ToJSON(long); !strings.HasSuffix(got, "...(truncated)") {
		t.Error("expected long output to be truncated")
	}
}
