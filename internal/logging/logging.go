// Package logging builds the daemon's slog logger.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/lmittmann/tint"
)

// ParseLevel maps a config level name to a slog level. Unknown names map to
// info.
func ParseLevel(name string) slog.Level {
	switch strings.ToLower(name) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// New returns a logger writing to w. format is "json", "text" or "pretty";
// pretty is colourised for terminals.
func New(w io.Writer, level, format string) *slog.Logger {
	lvl := ParseLevel(level)
	switch strings.ToLower(format) {
	case "pretty":
		return slog.New(tint.NewHandler(w, &tint.Options{
			Level:      lvl,
			TimeFormat: time.TimeOnly,
			ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
				if s, ok := a.Value.Any().(string); ok && s == "" {
					return slog.Attr{}
				}
				return a
			},
		}))
	case "text":
		return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl}))
	default:
		return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
			Level: lvl,
			ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
				if a.Key == slog.TimeKey {
					a.Value = slog.StringValue(formatRFC3339Millis(a.Value.Time()))
				}
				return a
			},
		}))
	}
}

func formatRFC3339Millis(t time.Time) string {
	t = t.UTC()
	return fmt.Sprintf("%s.%03dZ", t.Format("2006-01-02T15:04:05"), t.Nanosecond()/1_000_000)
}
