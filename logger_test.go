package comm

import (
	"log/slog"
	"sync"
	"testing"
)

func TestLogger_Interface(t *testing.T) {
	var _ Logger = slog.Default()
	var _ Logger = nopLogger{}
}

func TestDefaultLogger(t *testing.T) {
	logger := defaultLogger()
	if logger == nil {
		t.Fatal("defaultLogger returned nil")
	}
	if logger != slog.Default() {
		t.Error("defaultLogger did not return slog.Default()")
	}
}

// nopLogger discards everything.
type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

// recordLogger keeps the messages logged at each level.
type recordLogger struct {
	mu     sync.Mutex
	levels map[string][]string
}

func newRecordLogger() *recordLogger {
	return &recordLogger{levels: make(map[string][]string)}
}

func (l *recordLogger) log(level, msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.levels[level] = append(l.levels[level], msg)
}

func (l *recordLogger) Debug(msg string, _ ...any) { l.log("debug", msg) }
func (l *recordLogger) Info(msg string, _ ...any)  { l.log("info", msg) }
func (l *recordLogger) Warn(msg string, _ ...any)  { l.log("warn", msg) }
func (l *recordLogger) Error(msg string, _ ...any) { l.log("error", msg) }

func (l *recordLogger) has(level, msg string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, m := range l.levels[level] {
		if m == msg {
			return true
		}
	}
	return false
}

func TestLoggerOption_UsedByConn(t *testing.T) {
	logger := newRecordLogger()
	client, server := handshakePair(t, LoggerOption(logger))
	defer server.Close()

	if !logger.has("info", "connection established") {
		t.Errorf("custom logger not used, got %v", logger.levels)
	}
	_ = client.Close()
}
