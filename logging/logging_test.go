package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewRejectsBadLevel(t *testing.T) {
	if _, err := New(Config{Level: "loud"}); err == nil {
		t.Fatal("expected error for unknown level")
	}
}

func TestNewConsole(t *testing.T) {
	for _, level := range []string{"", "debug", "info", "warn", "error"} {
		t.Run(level, func(t *testing.T) {
			l, err := New(Config{Level: level})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if l == nil {
				t.Fatal("nil logger")
			}
		})
	}
}

func TestNewWritesLogfile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "loader.log")
	l, err := New(Config{Level: "info", Logfile: path, MaxSize: 1, MaxAge: 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	l.Info("Loading train set from: /data/a.h5")
	l.Debug("hidden")
	_ = l.Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(data), "Loading train set from") {
		t.Errorf("log file missing message: %s", data)
	}
	if strings.Contains(string(data), "hidden") {
		t.Error("debug message written at info level")
	}
}

func TestOrNop(t *testing.T) {
	if OrNop(nil) == nil {
		t.Fatal("OrNop(nil) returned nil")
	}
}
