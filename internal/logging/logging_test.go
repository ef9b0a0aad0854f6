package logging

import (
	"os"
	"path/filepath"
	"regexp"
	"testing"
)

func TestNewRejectsUnknownLevel(t *testing.T) {
	_, err := New(Config{Path: filepath.Join(t.TempDir(), "x.log"), Level: "verbose"})
	if err == nil {
		t.Fatalf("expected error for unknown level")
	}
}

func TestLineFormatMatchesFixedLayout(t *testing.T) {
	path := filepath.Join(t.TempDir(), "netwatch.log")
	logger, err := New(Config{Path: path, Level: "info"})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	logger.Info("capture started")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}

	re := regexp.MustCompile(`^\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}\.\d{3} \[INFO\] capture started\n$`)
	if !re.Match(data) {
		t.Fatalf("log line does not match expected format: %q", data)
	}
}
