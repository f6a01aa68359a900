package progress

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		input    int64
		expected string
	}{
		{0, "0 B"},
		{100, "100 B"},
		{1024, "1.00 KiB"},
		{1536, "1.50 KiB"},
		{1024 * 1024, "1.00 MiB"},
		{256 * 1024 * 1024, "256.00 MiB"},
		{1024 * 1024 * 1024, "1.00 GiB"},
		{1024 * 1024 * 1024 * 1024, "1.00 TiB"},
		{2.5 * 1024 * 1024 * 1024 * 1024, "2.50 TiB"},
	}

	for _, tt := range tests {
		result := FormatBytes(tt.input)
		if result != tt.expected {
			t.Errorf("FormatBytes(%d) = %q, want %q", tt.input, result, tt.expected)
		}
	}
}

func TestParseBytes(t *testing.T) {
	tests := []struct {
		input    string
		expected int64
	}{
		{"100", 100},
		{"100B", 100},
		{"1KB", 1024},
		{"1KiB", 1024},
		{"1.5KiB", 1536},
		{"8 MiB", 8 * 1024 * 1024},
		{"256MB", 256 * 1024 * 1024},
		{"1GiB", 1024 * 1024 * 1024},
		{"1TB", 1024 * 1024 * 1024 * 1024},
	}

	for _, tt := range tests {
		result, err := ParseBytes(tt.input)
		if err != nil {
			t.Errorf("ParseBytes(%q): %v", tt.input, err)
			continue
		}
		if result != tt.expected {
			t.Errorf("ParseBytes(%q) = %d, want %d", tt.input, result, tt.expected)
		}
	}
}

func TestParseBytesInvalid(t *testing.T) {
	for _, in := range []string{"invalid", "MiB", "-5MB"} {
		if _, err := ParseBytes(in); err == nil {
			t.Errorf("ParseBytes(%q): expected error", in)
		}
	}
}

func TestReporterUpdate(t *testing.T) {
	reporter := NewReporter(Options{TotalSize: 1024})

	reporter.Update(0.25, 256, 1024)
	if got := reporter.processed.Load(); got != 256 {
		t.Errorf("expected 256 processed bytes, got %d", got)
	}
	if got := reporter.total.Load(); got != 1024 {
		t.Errorf("expected 1024 total bytes, got %d", got)
	}
}

func TestReporterStartStop(t *testing.T) {
	var buf bytes.Buffer
	reporter := NewReporter(Options{
		TotalSize:      2048,
		Workers:        2,
		Output:         &buf,
		UpdateInterval: 10 * time.Millisecond,
		Verb:           "Uploading",
		Name:           "backup.tar",
	})

	reporter.Start()
	reporter.Update(0.5, 1024, 2048)
	time.Sleep(30 * time.Millisecond)
	reporter.Update(1, 2048, 2048)
	reporter.Stop()
	reporter.Stop() // idempotent

	out := buf.String()
	if !strings.Contains(out, "[ferry] Uploading: backup.tar") {
		t.Errorf("missing header in output: %q", out)
	}
	if !strings.Contains(out, "Progress: 100.0%") {
		t.Errorf("missing final status in output: %q", out)
	}
}

func TestReporterStopWithoutStart(t *testing.T) {
	reporter := NewReporter(Options{})
	reporter.Stop()
}
