package log

import (
	"context"
	"io"
	"log/slog"
)

// WideEventLogger writes one summary record per runner invocation.
type WideEventLogger struct {
	minLevel slog.Level
	logger   *slog.Logger
}

// NewWideEventLogger creates a wide-event logger. Events whose level is below
// minLevel are dropped, so a quiet run only surfaces when debug logging is on.
func NewWideEventLogger(w io.Writer, minLevel slog.Level, loggerType string, contextKeys map[string]any) *WideEventLogger {
	opts := &slog.HandlerOptions{
		Level: slog.LevelDebug,
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			if a.Key == slog.MessageKey {
				return slog.Attr{}
			}
			return a
		},
	}

	var handler slog.Handler
	if loggerType == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	return &WideEventLogger{
		minLevel: minLevel,
		logger:   slog.New(&contextHandler{handler, contextKeys}),
	}
}

// WriteEvent finalizes event duration and writes it unless it is below the
// configured level. Events with errors are always written.
func (l *WideEventLogger) WriteEvent(ctx context.Context, e *Event) {
	e.Finish()

	if e.Level() < l.minLevel && !e.HasErrors() {
		return
	}

	l.logger.LogAttrs(ctx, e.Level(), "", e.ToAttrs()...)
}
