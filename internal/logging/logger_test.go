package logging

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/gdbdeck/gdx/test"
)

func TestNewWritesLogFileUnderHome(t *testing.T) {
	home := test.TempDir(t)
	t.Setenv("HOME", home)

	logger, err := New(test.Context(t), WithGDBPath("/usr/bin/gdb"))
	if err != nil {
		t.Fatalf("initialize logging: %v", err)
	}
	defer func() {
		if closeErr := logger.Close(); closeErr != nil {
			t.Fatalf("close logger: %v", closeErr)
		}
	}()

	if logger.Path() == "" {
		t.Fatal("expected a non-empty log file path")
	}
	wantDir := filepath.Join(home, ".gdx", "logs")
	if filepath.Dir(logger.Path()) != wantDir {
		t.Fatalf("log dir = %q, want %q", filepath.Dir(logger.Path()), wantDir)
	}
	test.AssertFileExists(t, logger.Path())
}

func TestNewEmbedsSessionIDInFileName(t *testing.T) {
	t.Setenv("HOME", test.TempDir(t))

	logger, err := New(test.Context(t), WithSessionID("gdx-4242"))
	if err != nil {
		t.Fatalf("initialize logging: %v", err)
	}
	defer logger.Close()

	if !strings.HasSuffix(logger.Path(), "-gdx-4242.log") {
		t.Fatalf("log path = %q, want session id suffix", logger.Path())
	}
}

func TestWithSessionIDRebindsLogger(t *testing.T) {
	t.Setenv("HOME", test.TempDir(t))

	logger, err := New(test.Context(t))
	if err != nil {
		t.Fatalf("initialize logging: %v", err)
	}
	defer logger.Close()

	before := logger.Logger
	logger.WithSessionID("  gdx-7  ")

	if logger.sessionID != "gdx-7" {
		t.Fatalf("session id = %q, want trimmed %q", logger.sessionID, "gdx-7")
	}
	if logger.Logger == before {
		t.Fatal("expected logger to be rebuilt with the new session id")
	}
	logger.Logger.Info("rebound")
	test.AssertFileExists(t, logger.Path())
}

func TestNilRuntimeLoggerIsInert(t *testing.T) {
	t.Parallel()

	var logger *RuntimeLogger
	if logger.WithSessionID("gdx-1") != nil {
		t.Fatal("nil logger should stay nil")
	}
	if logger.Path() != "" {
		t.Fatal("nil logger should report no path")
	}
	if err := logger.Close(); err != nil {
		t.Fatalf("close nil logger: %v", err)
	}
}
