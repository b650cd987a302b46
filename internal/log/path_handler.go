package log

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
)

// Base is a directory whose prefix is replaced by $Name in log output.
type Base struct {
	// Name is the variable name, without the dollar sign.
	Name string

	// Dir is the directory. Relative directories are made absolute.
	Dir string
}

// PathHandler wraps an slog.Handler to shorten paths below known base
// directories. String values and error messages are rewritten; other kinds
// pass through unchanged.
//
// Design decision: We use a handler wrapper rather than a custom logger
// because:
//  1. It integrates seamlessly with standard slog APIs
//  2. It works with any underlying handler (text, JSON, etc.)
//  3. Packages keep logging full paths and stay unaware of the CLI layout
type PathHandler struct {
	// handler is the underlying slog handler that receives rewritten records.
	handler slog.Handler

	// replacer rewrites base prefixes. Nil when there are no bases.
	replacer *strings.Replacer

	// exact maps a base directory itself to its variable.
	exact map[string]string
}

// NewPathHandler creates a new PathHandler wrapping the given handler.
// If handler is nil, the returned PathHandler will use slog.Default().Handler().
// Bases with an empty Name or Dir are ignored.
func NewPathHandler(handler slog.Handler, bases ...Base) *PathHandler {
	if handler == nil {
		handler = slog.Default().Handler()
	}
	replacer, exact := newReplacer(bases)
	return &PathHandler{handler: handler, replacer: replacer, exact: exact}
}

// newReplacer builds a replacer that maps "dir/" to "$NAME/".
// Longer directories come first so that nested bases win over their parents.
func newReplacer(bases []Base) (*strings.Replacer, map[string]string) {
	type pair struct{ from, to string }
	var pairs []pair
	exact := make(map[string]string)
	for _, b := range bases {
		if b.Name == "" || b.Dir == "" {
			continue
		}
		dir := b.Dir
		if abs, err := filepath.Abs(dir); err == nil {
			dir = abs
		}
		dir = filepath.Clean(dir)
		sep := string(filepath.Separator)
		exact[dir] = "$" + b.Name
		pairs = append(pairs, pair{from: strings.TrimSuffix(dir, sep) + sep, to: "$" + b.Name + "/"})
	}
	if len(pairs) == 0 {
		return nil, nil
	}

	sort.SliceStable(pairs, func(i, j int) bool {
		return len(pairs[i].from) > len(pairs[j].from)
	})
	args := make([]string, 0, len(pairs)*2)
	for _, p := range pairs {
		args = append(args, p.from, p.to)
	}
	return strings.NewReplacer(args...), exact
}

// Enabled reports whether the handler handles records at the given level.
// It delegates to the underlying handler.
func (h *PathHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.handler.Enabled(ctx, level)
}

// Handle rewrites the record's attributes and passes it to the underlying handler.
func (h *PathHandler) Handle(ctx context.Context, r slog.Record) error {
	if h.replacer == nil {
		return h.handler.Handle(ctx, r)
	}

	rewritten := slog.NewRecord(r.Time, r.Level, r.Message, r.PC)
	r.Attrs(func(a slog.Attr) bool {
		rewritten.AddAttrs(h.rewriteAttr(a))
		return true
	})

	return h.handler.Handle(ctx, rewritten)
}

// WithAttrs returns a new handler with the given attributes added.
// Attributes are rewritten before being added.
func (h *PathHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	rewritten := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		rewritten[i] = h.rewriteAttr(a)
	}
	return &PathHandler{handler: h.handler.WithAttrs(rewritten), replacer: h.replacer, exact: h.exact}
}

// WithGroup returns a new handler with the given group name.
func (h *PathHandler) WithGroup(name string) slog.Handler {
	return &PathHandler{handler: h.handler.WithGroup(name), replacer: h.replacer, exact: h.exact}
}

// rewriteAttr rewrites a single attribute, recursively handling groups.
func (h *PathHandler) rewriteAttr(a slog.Attr) slog.Attr {
	if h.replacer == nil {
		return a
	}

	v := a.Value.Resolve()
	switch v.Kind() {
	case slog.KindGroup:
		attrs := v.Group()
		rewritten := make([]slog.Attr, len(attrs))
		for i, groupAttr := range attrs {
			rewritten[i] = h.rewriteAttr(groupAttr)
		}
		return slog.Attr{Key: a.Key, Value: slog.GroupValue(rewritten...)}
	case slog.KindString:
		return slog.String(a.Key, h.shorten(v.String()))
	case slog.KindAny:
		if err, ok := v.Any().(error); ok && err != nil {
			return slog.String(a.Key, h.shorten(err.Error()))
		}
	}
	return slog.Attr{Key: a.Key, Value: v}
}

func (h *PathHandler) shorten(s string) string {
	if name, ok := h.exact[filepath.Clean(s)]; ok && s != "" {
		return name
	}
	return h.replacer.Replace(s)
}

// NewLogger creates a new text slog.Logger with path shortening.
//
// Parameters:
//   - w: The io.Writer to write log output to (typically os.Stderr)
//   - verbose: If true, sets log level to Debug; otherwise Info
//   - bases: directories to shorten in log output
//
// Info is the quiet level because batch progress is reported at Info.
func NewLogger(w io.Writer, verbose bool, bases ...Base) *slog.Logger {
	return slog.New(NewPathHandler(slog.NewTextHandler(w, handlerOptions(verbose)), bases...))
}

// NewJSONLogger creates a new slog.Logger with path shortening that outputs
// JSON format. Useful for CI log aggregation.
func NewJSONLogger(w io.Writer, verbose bool, bases ...Base) *slog.Logger {
	return slog.New(NewPathHandler(slog.NewJSONHandler(w, handlerOptions(verbose)), bases...))
}

func handlerOptions(verbose bool) *slog.HandlerOptions {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return &slog.HandlerOptions{Level: level}
}
