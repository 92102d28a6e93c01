// Package logging provides a colorized, human-readable slog.Handler
// used by both the tracker and peer binaries, adapted from a pretty
// console handler: level, timestamp, and source are colorized with
// fatih/color while structured attributes are rendered as compact
// JSON after the message.
package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
)

var bufPool = sync.Pool{
	New: func() any { return new(bytes.Buffer) },
}

// Options configures a PrettyHandler.
type Options struct {
	SlogOpts       slog.HandlerOptions
	UseColor       bool
	ShowSource     bool
	TimeFormat     string
	LevelWidth     int
	FieldSeparator string
}

// DefaultOptions returns info-level, colorized, source-free options.
func DefaultOptions() Options {
	return Options{
		SlogOpts:       slog.HandlerOptions{Level: slog.LevelInfo},
		UseColor:       true,
		ShowSource:     false,
		TimeFormat:     time.RFC3339,
		LevelWidth:     7,
		FieldSeparator: " | ",
	}
}

// PrettyHandler implements slog.Handler.
type PrettyHandler struct {
	opts   Options
	writer io.Writer
	mu     *sync.Mutex
	attrs  []slog.Attr
	groups []string

	colorTime    func(...any) string
	colorLevel   map[slog.Level]func(...any) string
	colorMessage func(...any) string
	colorSource  func(...any) string
	colorFields  func(...any) string
}

// NewPrettyHandler builds a PrettyHandler writing to w. A nil opts uses
// DefaultOptions.
func NewPrettyHandler(w io.Writer, opts *Options) *PrettyHandler {
	if opts == nil {
		d := DefaultOptions()
		opts = &d
	}
	if opts.TimeFormat == "" {
		opts.TimeFormat = time.RFC3339
	}
	if opts.LevelWidth < 5 {
		opts.LevelWidth = 7
	}
	if opts.FieldSeparator == "" {
		opts.FieldSeparator = " | "
	}

	h := &PrettyHandler{
		opts:   *opts,
		writer: w,
		mu:     &sync.Mutex{},
	}
	h.initColorFuncs()
	return h
}

func (h *PrettyHandler) initColorFuncs() {
	if !h.opts.UseColor {
		noColor := func(a ...any) string { return fmt.Sprint(a...) }
		h.colorTime, h.colorMessage, h.colorSource, h.colorFields = noColor, noColor, noColor, noColor
		h.colorLevel = map[slog.Level]func(...any) string{
			slog.LevelDebug: noColor, slog.LevelInfo: noColor,
			slog.LevelWarn: noColor, slog.LevelError: noColor,
		}
		return
	}

	h.colorTime = color.New(color.FgHiBlack).SprintFunc()
	h.colorMessage = color.New(color.FgCyan).SprintFunc()
	h.colorSource = color.New(color.FgHiBlack).SprintFunc()
	h.colorFields = color.New(color.FgWhite).SprintFunc()
	h.colorLevel = map[slog.Level]func(...any) string{
		slog.LevelDebug: color.New(color.FgMagenta).SprintFunc(),
		slog.LevelInfo:  color.New(color.FgBlue).SprintFunc(),
		slog.LevelWarn:  color.New(color.FgYellow).SprintFunc(),
		slog.LevelError: color.New(color.FgRed).SprintFunc(),
	}
}

func (h *PrettyHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.opts.SlogOpts.Level.Level()
}

func (h *PrettyHandler) Handle(_ context.Context, r slog.Record) error {
	buf := bufPool.Get().(*bytes.Buffer)
	defer func() {
		buf.Reset()
		bufPool.Put(buf)
	}()

	h.mu.Lock()
	defer h.mu.Unlock()

	buf.WriteString(h.colorTime(r.Time.Format(h.opts.TimeFormat)))
	buf.WriteString(h.opts.FieldSeparator)

	level := strings.ToUpper(r.Level.String())
	if h.opts.LevelWidth > 0 {
		level = fmt.Sprintf("%-*s", h.opts.LevelWidth, level)
	}
	if colorFn, ok := h.colorLevel[r.Level]; ok {
		buf.WriteString(colorFn(level))
	} else {
		buf.WriteString(level)
	}
	buf.WriteString(h.opts.FieldSeparator)

	if h.opts.ShowSource && r.PC != 0 {
		frames := runtime.CallersFrames([]uintptr{r.PC})
		frame, _ := frames.Next()
		if frame.Function != "" {
			buf.WriteString(h.colorSource(fmt.Sprintf("%s:%d", filepath.Base(frame.File), frame.Line)))
			buf.WriteString(h.opts.FieldSeparator)
		}
	}

	buf.WriteString(h.colorMessage(r.Message))

	attrs := h.collectAttrs(r)
	if len(attrs) > 0 {
		buf.WriteString(h.opts.FieldSeparator)
		b, err := json.Marshal(attrs)
		if err != nil {
			buf.WriteString(fmt.Sprintf("(error formatting attributes: %v)", err))
		} else {
			buf.WriteString(h.colorFields(string(b)))
		}
	}

	buf.WriteByte('\n')
	_, err := h.writer.Write(buf.Bytes())
	return err
}

func (h *PrettyHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	nh := &PrettyHandler{
		opts: h.opts, writer: h.writer, mu: h.mu,
		groups: append([]string(nil), h.groups...),
		attrs:  append(append([]slog.Attr(nil), h.attrs...), attrs...),
	}
	nh.initColorFuncs()
	return nh
}

func (h *PrettyHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	nh := &PrettyHandler{
		opts: h.opts, writer: h.writer, mu: h.mu,
		groups: append(append([]string(nil), h.groups...), name),
		attrs:  append([]slog.Attr(nil), h.attrs...),
	}
	nh.initColorFuncs()
	return nh
}

func (h *PrettyHandler) collectAttrs(r slog.Record) map[string]any {
	out := make(map[string]any)
	for _, a := range h.attrs {
		out[a.Key] = a.Value.Any()
	}
	r.Attrs(func(a slog.Attr) bool {
		out[a.Key] = a.Value.Any()
		return true
	})
	return out
}
