// Package logx builds the slog loggers used for rename and repack
// diagnostics.
package logx

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"golang.org/x/term"
)

const (
	FormatPlain = "plain"
	FormatText  = "text"
	FormatJSON  = "json"
	FormatAuto  = "auto"
)

// ParseFormat normalizes a user supplied log format name.
func ParseFormat(format string) (string, error) {
	f := strings.TrimSpace(strings.ToLower(format))
	switch f {
	case "", FormatPlain, "message":
		return FormatPlain, nil
	case FormatText, "logfmt":
		return FormatText, nil
	case FormatJSON:
		return FormatJSON, nil
	case FormatAuto:
		return FormatAuto, nil
	default:
		return "", fmt.Errorf("invalid log format %q (expected plain, text, json, or auto)", format)
	}
}

// New returns a logger writing to w in the given format.
//
// FormatAuto picks plain output when w is a terminal and text otherwise.
func New(w io.Writer, format string, level slog.Level) (*slog.Logger, error) {
	f, err := ParseFormat(format)
	if err != nil {
		return nil, err
	}
	if f == FormatAuto {
		f = FormatText
		if isTerminal(w) {
			f = FormatPlain
		}
	}

	opts := &slog.HandlerOptions{Level: level}
	switch f {
	case FormatText:
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case FormatJSON:
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return slog.New(NewPlainHandler(w, level)), nil
	}
}

// Discard returns a logger that drops every record.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

// OrDiscard returns l, or a discarding logger when l is nil.
func OrDiscard(l *slog.Logger) *slog.Logger {
	if l == nil {
		return Discard()
	}
	return l
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}

// PlainHandler writes only the record message, one line per record.
// Attributes are dropped.
type PlainHandler struct {
	mu    *sync.Mutex
	w     io.Writer
	level slog.Leveler
}

// NewPlainHandler creates a PlainHandler writing records at or above level.
func NewPlainHandler(w io.Writer, level slog.Leveler) *PlainHandler {
	return &PlainHandler{mu: &sync.Mutex{}, w: w, level: level}
}

// Enabled reports whether level is at or above the configured minimum.
func (h *PlainHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

// Handle writes the message of r followed by a newline.
func (h *PlainHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.w, r.Message+"\n")
	return err
}

func (h *PlainHandler) WithAttrs([]slog.Attr) slog.Handler { return h }

func (h *PlainHandler) WithGroup(string) slog.Handler { return h }
