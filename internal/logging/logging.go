// Package logging sets up the process-wide structured logger. Logs always
// go to stderr so the CLI's JSON envelope on stdout is never interleaved
// with log output.
package logging

import (
	"io"
	"log/slog"
	"os"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
)

// New builds a *slog.Logger writing to w (normally os.Stderr). When w is a
// TTY it uses tint's colored handler; otherwise it falls back to plain JSON
// so piped/scripted invocations stay machine-readable.
func New(w *os.File, level slog.Level) *slog.Logger {
	var handler slog.Handler
	if isatty.IsTerminal(w.Fd()) || isatty.IsCygwinTerminal(w.Fd()) {
		var out io.Writer = colorable.NewColorable(w)
		handler = tint.NewHandler(out, &tint.Options{Level: level})
	} else {
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	}
	return slog.New(handler)
}

// Default builds the standard process logger at info level on stderr.
func Default() *slog.Logger {
	return New(os.Stderr, slog.LevelInfo)
}
