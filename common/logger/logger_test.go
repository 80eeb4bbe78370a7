package logger

import (
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestSetVerbosityClampsAndTogglesPinLogging(t *testing.T) {
	SetVerbosity(Verbosity(-3))
	if level.Level() != zapcore.InfoLevel || PinLogging() {
		t.Fatalf("negative verbosity should clamp to normal")
	}
	SetVerbosity(Verbose)
	if level.Level() != zapcore.DebugLevel || PinLogging() {
		t.Fatalf("verbose should enable debug without pin logging")
	}
	SetVerbosity(Verbosity(9))
	if !PinLogging() {
		t.Fatalf("verbosity above range should clamp to pin values")
	}
	SetVerbosity(Normal)
}

func TestInitLoggerWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ofs.log")
	InitLogger(Options{Verbosity: Normal, LogFile: path, MaxSizeMB: 1, MaxBackups: 1, MaxAgeDays: 1})
	Infof("jam detector ready %d", 1)
	Sync()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("expected log file, got %v", err)
	}
	if len(data) == 0 {
		t.Fatalf("expected log output in file")
	}
	Logger = nil
}
