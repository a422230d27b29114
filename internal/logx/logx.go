// Package logx threads a single zerolog.Logger through the dedup engines
// (the restore package takes no logger). Library code never forces console output on an
// importer: the zero value of Logger is a no-op logger, and callers opt in
// with New or NewConsole.
package logx

import (
	"io"
	"os"

	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
)

// Logger wraps zerolog.Logger so call sites in dedup can log with
// structured fields (chkpt_id, node, tree, ...) without importing zerolog
// directly.
type Logger struct {
	z zerolog.Logger
}

// Noop returns a Logger that discards everything, the default collaborator
// for every Dedup constructor so importing this module never prints
// to stderr unless the caller asks for it.
func Noop() Logger {
	return Logger{z: zerolog.Nop()}
}

// New wraps an existing zerolog.Logger, for callers embedding this module
// into a larger zerolog-based service.
func New(z zerolog.Logger) Logger {
	return Logger{z: z}
}

// NewConsole builds a human-readable, optionally colored console logger
// writing to w — the same ConsoleWriter + go-isatty/go-colorable pairing
// zerolog's own docs recommend for CLI entry points. Color is enabled only
// when w is a terminal.
func NewConsole(w io.Writer) Logger {
	out := w
	if f, ok := w.(*os.File); ok && isatty.IsTerminal(f.Fd()) {
		out = colorable.NewColorable(f)
	}
	cw := zerolog.ConsoleWriter{Out: out, TimeFormat: "15:04:05"}
	return Logger{z: zerolog.New(cw).With().Timestamp().Logger()}
}

func (l Logger) Debug() *zerolog.Event { return l.z.Debug() }
func (l Logger) Info() *zerolog.Event  { return l.z.Info() }
func (l Logger) Warn() *zerolog.Event  { return l.z.Warn() }
func (l Logger) Error() *zerolog.Event { return l.z.Error() }
