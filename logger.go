package comm

import "log/slog"

// Logger is what connections, communicators and hosts log through.
// *slog.Logger satisfies it, so does any adapter with the same four methods.
// Arguments after msg are alternating keys and values.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// defaultLogger is used when no logger option is given.
func defaultLogger() Logger {
	return slog.Default()
}
