// Package logging provides the console slog.Handler used by the command line tools. Error records are
// always written, Debug records only when enabled, and the levels in between are filtered by
// verbosity. Each level is written in its own ANSI colour.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
)

// LevelInfoFancy is a highlighted informational level, one step less important than slog.LevelInfo
const LevelInfoFancy = slog.LevelInfo - 1

// Verbosity is the highest level of detail that will be written, excluding errors and debug records
type Verbosity int

const (
	VerbosityError Verbosity = iota
	VerbosityWarning
	VerbosityInfo
	VerbosityInfoFancy
)

var verbosityMapping = map[Verbosity]string{
	VerbosityError:     "error",
	VerbosityWarning:   "warning",
	VerbosityInfo:      "info",
	VerbosityInfoFancy: "fancy",
}

func (v Verbosity) String() string {
	return verbosityMapping[v]
}

// ParseVerbosity accepts the names produced by Verbosity.String
func ParseVerbosity(str string) (Verbosity, error) {
	str = strings.ToLower(strings.TrimSpace(str))
	for verbosity, name := range verbosityMapping {
		if name == str {
			return verbosity, nil
		}
	}

	return VerbosityInfoFancy, errors.Newf("unknown verbosity %q", str)
}

const (
	colorRed    = "\x1b[31m"
	colorGreen  = "\x1b[32m"
	colorYellow = "\x1b[33m"
	colorBlue   = "\u001b[34;1m"
	colorReset  = "\x1b[0m"
)

type Options struct {
	// Verbosity defaults to VerbosityError. Use VerbosityInfoFancy to write everything.
	Verbosity Verbosity
	// Debug enables debug records. It is forced on by the cam_debug build tag.
	Debug bool
	// NoColor writes records without ANSI escapes
	NoColor bool
}

// Handler writes one line per record: the message followed by its attributes as key=value pairs
type Handler struct {
	options Options

	mutex  *sync.Mutex
	writer io.Writer
	prefix string
	attrs  []slog.Attr
}

var _ slog.Handler = &Handler{}

func NewHandler(w io.Writer, options *Options) *Handler {
	h := &Handler{
		mutex:  &sync.Mutex{},
		writer: w,
	}

	if options != nil {
		h.options = *options
	}
	h.options.Debug = h.options.Debug || debugDefault

	return h
}

// New returns a logger writing to w through a Handler
func New(w io.Writer, options *Options) *slog.Logger {
	return slog.New(NewHandler(w, options))
}

func (h *Handler) Enabled(_ context.Context, level slog.Level) bool {
	switch {
	case level >= slog.LevelError:
		return true
	case level < LevelInfoFancy:
		return h.options.Debug
	case level >= slog.LevelWarn:
		return h.options.Verbosity >= VerbosityWarning
	case level >= slog.LevelInfo:
		return h.options.Verbosity >= VerbosityInfo
	default:
		return h.options.Verbosity >= VerbosityInfoFancy
	}
}

func (h *Handler) color(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return colorRed
	case level >= slog.LevelWarn:
		return colorYellow
	case level >= slog.LevelInfo:
		return colorReset
	case level >= LevelInfoFancy:
		return colorBlue
	default:
		return colorGreen
	}
}

func (h *Handler) appendAttr(builder *strings.Builder, prefix string, attr slog.Attr) {
	attr.Value = attr.Value.Resolve()
	if attr.Equal(slog.Attr{}) {
		return
	}

	if attr.Value.Kind() == slog.KindGroup {
		groupPrefix := prefix
		if attr.Key != "" {
			groupPrefix = prefix + attr.Key + "."
		}
		for _, child := range attr.Value.Group() {
			h.appendAttr(builder, groupPrefix, child)
		}
		return
	}

	builder.WriteByte(' ')
	builder.WriteString(prefix)
	builder.WriteString(attr.Key)
	builder.WriteByte('=')
	builder.WriteString(attr.Value.String())
}

func (h *Handler) Handle(_ context.Context, record slog.Record) error {
	var builder strings.Builder

	if !h.options.NoColor {
		builder.WriteString(h.color(record.Level))
	}

	builder.WriteString(record.Message)

	for _, attr := range h.attrs {
		h.appendAttr(&builder, "", attr)
	}
	record.Attrs(func(attr slog.Attr) bool {
		h.appendAttr(&builder, h.prefix, attr)
		return true
	})

	if !h.options.NoColor {
		builder.WriteByte(' ')
		builder.WriteString(colorReset)
	}
	builder.WriteByte('\n')

	h.mutex.Lock()
	defer h.mutex.Unlock()

	_, err := io.WriteString(h.writer, builder.String())
	return err
}

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.attrs = make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	clone.attrs = append(clone.attrs, h.attrs...)
	for _, attr := range attrs {
		attr.Key = h.prefix + attr.Key
		clone.attrs = append(clone.attrs, attr)
	}

	return &clone
}

func (h *Handler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}

	clone := *h
	clone.prefix = h.prefix + name + "."
	return &clone
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// Open builds a logger that writes to the console, to logFile, or to both. The returned closer
// closes logFile and is safe to call when no file was opened.
func Open(options *Options, logFile string, console bool) (*slog.Logger, io.Closer, error) {
	var writers []io.Writer
	var closer io.Closer = nopCloser{}

	if console {
		writers = append(writers, os.Stdout)
	}

	if logFile != "" {
		// Ensure directory exists
		dir := filepath.Dir(logFile)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, nil, errors.Wrapf(err, "creating log directory %s", dir)
		}

		file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
		if err != nil {
			return nil, nil, errors.Wrapf(err, "opening log file %s", logFile)
		}
		writers = append(writers, file)
		closer = file
	}

	return New(io.MultiWriter(writers...), options), closer, nil
}
