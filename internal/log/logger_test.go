package log

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/felixgeelhaar/phaseflow/internal/errors"
)

func newJSONLogger(buf *bytes.Buffer, level Level) *Logger {
	return New(Config{Level: level, Format: FormatJSON, Output: buf})
}

func decode(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse JSON %q: %v", buf.String(), err)
	}
	return entry
}

func TestLogLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := newJSONLogger(&buf, LevelWarn)

	logger.Info("hidden")
	if buf.Len() != 0 {
		t.Fatalf("info should be filtered at warn level, got %q", buf.String())
	}

	logger.Warn("shown")
	if !strings.Contains(buf.String(), "shown") {
		t.Fatalf("warn should be logged, got %q", buf.String())
	}
}

func TestTextFormatOutput(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: LevelInfo, Format: FormatText, Output: &buf})

	logger.Info("phase started", "phase", "backend")

	out := buf.String()
	if !strings.Contains(out, "phase started") || !strings.Contains(out, "phase=backend") {
		t.Errorf("unexpected text output: %q", out)
	}
}

func TestForChangeAndPhase(t *testing.T) {
	var buf bytes.Buffer
	logger := newJSONLogger(&buf, LevelInfo).ForChange("chg-7").ForPhase("database", "schema-builder")

	logger.Info("dispatch")

	entry := decode(t, &buf)
	if entry["change_id"] != "chg-7" {
		t.Errorf("change_id = %v", entry["change_id"])
	}
	if entry["phase"] != "database" || entry["role"] != "schema-builder" {
		t.Errorf("phase/role = %v/%v", entry["phase"], entry["role"])
	}
}

func TestWithError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantCode  string
		wantSuggs bool
	}{
		{
			name: "plain error",
			err:  fmt.Errorf("boom"),
		},
		{
			name:      "coded error with suggestions",
			err:       errors.NewStateMissingError("chg-1"),
			wantCode:  "PERSIST-001",
			wantSuggs: true,
		},
		{
			name:     "wrapped coded error",
			err:      fmt.Errorf("advance: %w", errors.New(errors.ErrCodeQualityFailure, "no files")),
			wantCode: "QUALITY-001",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			newJSONLogger(&buf, LevelInfo).WithError(tt.err).Info("test")

			entry := decode(t, &buf)
			if _, ok := entry["error"]; !ok {
				t.Error("expected error field")
			}
			if tt.wantCode != "" && entry["error_code"] != tt.wantCode {
				t.Errorf("error_code = %v, want %s", entry["error_code"], tt.wantCode)
			}
			if _, ok := entry["suggestions"]; ok != tt.wantSuggs {
				t.Errorf("suggestions present = %v, want %v", ok, tt.wantSuggs)
			}
		})
	}
}

func TestWithErrorNil(t *testing.T) {
	var buf bytes.Buffer
	logger := newJSONLogger(&buf, LevelInfo)

	if logger.WithError(nil) != logger {
		t.Error("WithError(nil) should return the same logger")
	}
}

func TestLogError(t *testing.T) {
	var buf bytes.Buffer
	logger := newJSONLogger(&buf, LevelInfo)

	logger.LogError("advance failed", nil)
	if buf.Len() != 0 {
		t.Fatal("nil error should not be logged")
	}

	logger.LogError("advance failed", errors.NewCycleError([]string{"a", "b", "a"}))
	entry := decode(t, &buf)
	if entry["level"] != "ERROR" {
		t.Errorf("level = %v", entry["level"])
	}
	if entry["error_code"] != "DEPEND-002" {
		t.Errorf("error_code = %v", entry["error_code"])
	}
}

func TestEnabled(t *testing.T) {
	logger := New(Config{Level: LevelWarn, Output: &bytes.Buffer{}})
	ctx := context.Background()

	if logger.Enabled(ctx, LevelInfo) {
		t.Error("info should be disabled at warn level")
	}
	if !logger.Enabled(ctx, LevelError) {
		t.Error("error should be enabled at warn level")
	}
}

func TestDiscard(t *testing.T) {
	logger := Discard()
	logger.Error("nothing happens")
	if logger.Enabled(context.Background(), LevelInfo) {
		t.Error("discard logger should not enable info")
	}
}

func TestDefaultLoggerConcurrency(t *testing.T) {
	SetDefaultLogger(nil)
	defer SetDefaultLogger(nil)

	var wg sync.WaitGroup
	loggers := make([]*Logger, 16)
	for i := range loggers {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			loggers[i] = DefaultLogger()
		}(i)
	}
	wg.Wait()

	for i := 1; i < len(loggers); i++ {
		if loggers[i] != loggers[0] {
			t.Fatal("DefaultLogger should return one shared instance")
		}
	}
}
