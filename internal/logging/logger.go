// Package logging provides the leveled logger used across autoencode: a text
// handler on stderr fanned out with slog-multi to an optional JSON file.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	slogmulti "github.com/samber/slog-multi"

	"github.com/backmassage/autoencode/internal/config"
)

// LevelSuccess sits between INFO and WARN and marks completed work.
const LevelSuccess = slog.Level(2)

// Logger provides printf-style leveled logging on top of slog.
type Logger struct {
	slog *slog.Logger

	mu   *sync.Mutex
	file *os.File
}

// NewLogger builds a logger from cfg: debug level when Verbose, plus a JSON
// file sink when LogFile is set. Call Close() when done.
func NewLogger(cfg *config.Config) (*Logger, error) {
	level := slog.LevelInfo
	if cfg.Verbose {
		level = slog.LevelDebug
	}

	if cfg.LogFile == "" {
		return &Logger{slog: slog.New(textHandler(os.Stderr, level)), mu: &sync.Mutex{}}, nil
	}

	if err := os.MkdirAll(filepath.Dir(cfg.LogFile), 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	h := slogmulti.Fanout(textHandler(os.Stderr, level), jsonHandler(f, level))
	return &Logger{slog: slog.New(h), mu: &sync.Mutex{}, file: f}, nil
}

// NewWithWriters creates a logger writing text to stderr and JSON to file.
// file may be nil. Intended for tests and embedding.
func NewWithWriters(stderr, file io.Writer, verbose bool) *Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	var h slog.Handler = textHandler(stderr, level)
	if file != nil {
		h = slogmulti.Fanout(h, jsonHandler(file, level))
	}
	return &Logger{slog: slog.New(h), mu: &sync.Mutex{}}
}

// Discard returns a logger that drops everything.
func Discard() *Logger {
	return NewWithWriters(io.Discard, nil, false)
}

func textHandler(w io.Writer, level slog.Level) slog.Handler {
	return slog.NewTextHandler(w, &slog.HandlerOptions{Level: level, ReplaceAttr: replaceLevel})
}

func jsonHandler(w io.Writer, level slog.Level) slog.Handler {
	return slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level, ReplaceAttr: replaceLevel})
}

// replaceLevel prints LevelSuccess as "SUCCESS" instead of "INFO+2".
func replaceLevel(groups []string, a slog.Attr) slog.Attr {
	if a.Key != slog.LevelKey || len(groups) > 0 {
		return a
	}
	if lvl, ok := a.Value.Any().(slog.Level); ok && lvl == LevelSuccess {
		a.Value = slog.StringValue("SUCCESS")
	}
	return a
}

// Close closes the log file if one was opened.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file != nil {
		err := l.file.Close()
		l.file = nil
		return err
	}
	return nil
}

// With returns a logger that adds attrs (key/value pairs) to every record,
// e.g. log.With("job", id). The returned logger shares the file sink.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{slog: l.slog.With(args...), mu: l.mu, file: l.file}
}

// Slog exposes the underlying slog.Logger.
func (l *Logger) Slog() *slog.Logger { return l.slog }

func (l *Logger) log(level slog.Level, format string, args []any) {
	if !l.slog.Enabled(context.Background(), level) {
		return
	}
	l.slog.Log(context.Background(), level, fmt.Sprintf(format, args...))
}

// Info logs at INFO level.
func (l *Logger) Info(format string, args ...any) { l.log(slog.LevelInfo, format, args) }

// Success logs at SUCCESS level.
func (l *Logger) Success(format string, args ...any) { l.log(LevelSuccess, format, args) }

// Warn logs at WARN level.
func (l *Logger) Warn(format string, args ...any) { l.log(slog.LevelWarn, format, args) }

// Error logs at ERROR level.
func (l *Logger) Error(format string, args ...any) { l.log(slog.LevelError, format, args) }

// Debug logs at DEBUG level; dropped unless the logger was built verbose.
func (l *Logger) Debug(format string, args ...any) { l.log(slog.LevelDebug, format, args) }
