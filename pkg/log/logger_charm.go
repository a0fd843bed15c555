package log

import (
	"context"
	"io"
	"os"

	charm "github.com/charmbracelet/log"
)

type runIDKey struct{}

// WithRunID tags every line logged with ctx by the run it belongs to.
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey{}, runID)
}

// CharmLogger writes leveled, timestamped lines through charmbracelet/log.
// Alert, Critical and Emergency are error-level lines with a severity key;
// none of them exits the process.
type CharmLogger struct {
	l *charm.Logger
}

func NewCharmLogger(w io.Writer, level string) (*CharmLogger, error) {
	if w == nil {
		w = os.Stderr
	}
	lvl, err := charm.ParseLevel(level)
	if err != nil {
		lvl = charm.InfoLevel
	}
	return &CharmLogger{
		l: charm.NewWithOptions(w, charm.Options{
			ReportTimestamp: true,
			TimeFormat:      "2006-01-02 15:04:05.00",
			Level:           lvl,
		}),
	}, nil
}

// NewDiscardLogger is the logger tests hand to components.
func NewDiscardLogger() *CharmLogger {
	l, _ := NewCharmLogger(io.Discard, "debug")
	return l
}

func (l *CharmLogger) with(ctx context.Context) *charm.Logger {
	if ctx == nil {
		return l.l
	}
	if runID, ok := ctx.Value(runIDKey{}).(string); ok && runID != "" {
		return l.l.With("run", runID)
	}
	return l.l
}

func (l *CharmLogger) Info(ctx context.Context, format string, args ...interface{}) {
	l.with(ctx).Infof(format, args...)
}

func (l *CharmLogger) Alert(ctx context.Context, format string, args ...interface{}) {
	l.with(ctx).With("severity", "alert").Errorf(format, args...)
}

func (l *CharmLogger) Error(ctx context.Context, format string, args ...interface{}) {
	l.with(ctx).Errorf(format, args...)
}

func (l *CharmLogger) Warn(ctx context.Context, format string, args ...interface{}) {
	l.with(ctx).Warnf(format, args...)
}

func (l *CharmLogger) Debug(ctx context.Context, format string, args ...interface{}) {
	l.with(ctx).Debugf(format, args...)
}

func (l *CharmLogger) Critical(ctx context.Context, format string, args ...interface{}) {
	l.with(ctx).With("severity", "critical").Errorf(format, args...)
}

func (l *CharmLogger) Emergency(ctx context.Context, format string, args ...interface{}) {
	l.with(ctx).With("severity", "emergency").Errorf(format, args...)
}

func (l *CharmLogger) Notice(ctx context.Context, format string, args ...interface{}) {
	l.with(ctx).With("severity", "notice").Infof(format, args...)
}
