package logging

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

// captureLogOutput captures log output for testing by temporarily
// redirecting the logger to write to a buffer
func captureLogOutput(f func()) string {
	var buf bytes.Buffer

	oldLogger := defaultLogger
	handler := slog.NewJSONHandler(&buf, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	})
	defaultLogger = slog.New(handler)

	f()

	defaultLogger = oldLogger
	return buf.String()
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{"debug", LevelDebug, false},
		{"info", LevelInfo, false},
		{"", LevelInfo, false},
		{"warn", LevelWarn, false},
		{"error", LevelError, false},
		{"verbose", LevelInfo, true},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseLevel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if !tt.wantErr && got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestParseFormat(t *testing.T) {
	if f, err := ParseFormat("json"); err != nil || f != FormatJSON {
		t.Errorf("ParseFormat(json) = %v, %v", f, err)
	}
	if f, err := ParseFormat(""); err != nil || f != FormatText {
		t.Errorf("ParseFormat(\"\") = %v, %v", f, err)
	}
	if _, err := ParseFormat("xml"); err == nil {
		t.Error("ParseFormat(xml) should fail")
	}
}

func TestBasicLogging(t *testing.T) {
	out := captureLogOutput(func() {
		Info("opening dataset", "root", "/tmp/ds")
	})
	if !strings.Contains(out, "opening dataset") || !strings.Contains(out, "/tmp/ds") {
		t.Errorf("log output missing expected fields: %s", out)
	}

	out = captureLogOutput(func() {
		Warn("count drift", "walked", 10)
	})
	if !strings.Contains(out, "WARN") {
		t.Errorf("expected WARN level in output: %s", out)
	}
}

func TestCheckStage(t *testing.T) {
	out := captureLogOutput(func() {
		CheckStage("alignment", "fail", 2)
	})
	for _, want := range []string{"check_stage", "alignment", "fail", `"violations":2`} {
		if !strings.Contains(out, want) {
			t.Errorf("CheckStage output missing %q: %s", want, out)
		}
	}
}

func TestSweepProgress(t *testing.T) {
	out := captureLogOutput(func() {
		SweepProgress(10000, 50000)
	})
	if !strings.Contains(out, "sweep_progress") || !strings.Contains(out, "10000") {
		t.Errorf("SweepProgress output missing fields: %s", out)
	}
}

func TestDatasetOpen(t *testing.T) {
	out := captureLogOutput(func() {
		DatasetOpen("/data/libero", 379, 101469)
	})
	for _, want := range []string{"dataset_open", "/data/libero", "379", "101469"} {
		if !strings.Contains(out, want) {
			t.Errorf("DatasetOpen output missing %q: %s", want, out)
		}
	}
}
