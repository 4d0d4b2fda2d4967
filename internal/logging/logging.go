package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

type Logger = slog.Logger

func New(level string) *slog.Logger {
	h := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLevel(level)})
	return slog.New(h).With("app", "leadflow")
}

// NewRunLogger tees JSON log lines to stdout and to a per-run file under dir,
// named by the run's start time. The returned closer flushes the file; callers
// defer it for the life of the run.
func NewRunLogger(level, dir string, start time.Time) (*slog.Logger, func(), error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("create log dir: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("leadflow_%s.log", start.Format("20060102_150405")))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open run log: %w", err)
	}
	w := io.MultiWriter(os.Stdout, f)
	h := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: parseLevel(level)})
	log := slog.New(h).With("app", "leadflow")
	return log, func() { _ = f.Close() }, nil
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
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
