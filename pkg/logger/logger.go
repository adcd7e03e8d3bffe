package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Logger is a thin field-oriented wrapper over zerolog. Error lines (and
// warnings when configured) are also handed to an attached Digest.
type Logger struct {
	zl     zerolog.Logger
	digest *digestSlot
}

// digestSlot is shared by a logger and every child created with With, so
// attaching or detaching a digest affects the whole tree.
type digestSlot struct {
	mu sync.RWMutex
	d  *Digest
}

func (s *digestSlot) get() *Digest {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.d
}

func (s *digestSlot) swap(d *Digest) *Digest {
	s.mu.Lock()
	defer s.mu.Unlock()
	old := s.d
	s.d = d
	return old
}

type Config struct {
	Level      string // trace, debug, info, warn, error, fatal, panic
	Format     string // json or console
	Output     string // stdout, stderr, or file path
	TimeFormat string
	Service    string
	NoCaller   bool
}

func New(cfg *Config) (*Logger, error) {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}

	out, err := openOutput(cfg.Output)
	if err != nil {
		return nil, err
	}

	timeFormat := cfg.TimeFormat
	if timeFormat == "" {
		timeFormat = time.RFC3339Nano
	}
	zerolog.TimeFieldFormat = timeFormat

	if cfg.Format == "console" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.TimeOnly}
	}

	zctx := zerolog.New(out).Level(level).With().Timestamp()
	if !cfg.NoCaller {
		zctx = zctx.CallerWithSkipFrameCount(4)
	}
	if cfg.Service != "" {
		zctx = zctx.Str("service", cfg.Service)
	}
	return &Logger{zl: zctx.Logger(), digest: &digestSlot{}}, nil
}

func openOutput(target string) (io.Writer, error) {
	switch target {
	case "", "stdout":
		return os.Stdout, nil
	case "stderr":
		return os.Stderr, nil
	}
	f, err := os.OpenFile(target, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	return f, nil
}

// NewNop returns a logger that discards everything.
func NewNop() *Logger {
	return &Logger{zl: zerolog.Nop(), digest: &digestSlot{}}
}

// NewWriter logs JSON lines to w at the given level. Used by tests.
func NewWriter(w io.Writer, level zerolog.Level) *Logger {
	return &Logger{zl: zerolog.New(w).Level(level), digest: &digestSlot{}}
}

// With returns a child logger that adds fields to every line.
func (l *Logger) With(fields ...Field) *Logger {
	zctx := l.zl.With()
	for _, f := range fields {
		zctx = zctx.Interface(f.Key, f.Value)
	}
	return &Logger{zl: zctx.Logger(), digest: l.digest}
}

func (l *Logger) Debug(msg string, fields ...Field) { l.emit(l.zl.Debug(), zerolog.DebugLevel, msg, fields) }
func (l *Logger) Info(msg string, fields ...Field)  { l.emit(l.zl.Info(), zerolog.InfoLevel, msg, fields) }
func (l *Logger) Warn(msg string, fields ...Field)  { l.emit(l.zl.Warn(), zerolog.WarnLevel, msg, fields) }
func (l *Logger) Error(msg string, fields ...Field) { l.emit(l.zl.Error(), zerolog.ErrorLevel, msg, fields) }

func (l *Logger) emit(ev *zerolog.Event, level zerolog.Level, msg string, fields []Field) {
	for _, f := range fields {
		f.add(ev)
	}
	ev.Msg(msg)

	if l.digest == nil {
		return
	}
	if d := l.digest.get(); d != nil && level >= d.minLevel {
		d.Add(level.String(), msg, fieldMap(fields), callerOf(3))
	}
}

// AttachDigest starts aggregating error lines into d's batches. A digest
// already attached is closed first.
func (l *Logger) AttachDigest(cfg DigestConfig) {
	if old := l.digest.swap(NewDigest(cfg)); old != nil {
		old.Close()
	}
}

// DetachDigest flushes and stops the attached digest, if any.
func (l *Logger) DetachDigest() {
	if old := l.digest.swap(nil); old != nil {
		old.Close()
	}
}

// callerOf reports "dir/file.go:line" for the frame skip levels up.
func callerOf(skip int) string {
	_, file, line, ok := runtime.Caller(skip)
	if !ok {
		return "unknown"
	}
	return filepath.Base(filepath.Dir(file)) + "/" + filepath.Base(file) + ":" + strconv.Itoa(line)
}

func fieldMap(fields []Field) map[string]any {
	if len(fields) == 0 {
		return nil
	}
	m := make(map[string]any, len(fields))
	for _, f := range fields {
		m[f.Key] = f.Value
	}
	return m
}

// Field is one structured key/value pair. Value is what the digest sees;
// add writes the typed form onto a zerolog event.
type Field struct {
	Key   string
	Value any
	add   func(ev *zerolog.Event)
}

func String(key, value string) Field {
	return Field{Key: key, Value: value, add: func(ev *zerolog.Event) { ev.Str(key, value) }}
}

func Strings(key string, value []string) Field {
	return Field{Key: key, Value: value, add: func(ev *zerolog.Event) { ev.Strs(key, value) }}
}

func Int(key string, value int) Field {
	return Field{Key: key, Value: value, add: func(ev *zerolog.Event) { ev.Int(key, value) }}
}

func Int64(key string, value int64) Field {
	return Field{Key: key, Value: value, add: func(ev *zerolog.Event) { ev.Int64(key, value) }}
}

func Uint64(key string, value uint64) Field {
	return Field{Key: key, Value: value, add: func(ev *zerolog.Event) { ev.Uint64(key, value) }}
}

func Float64(key string, value float64) Field {
	return Field{Key: key, Value: value, add: func(ev *zerolog.Event) { ev.Float64(key, value) }}
}

func Bool(key string, value bool) Field {
	return Field{Key: key, Value: value, add: func(ev *zerolog.Event) { ev.Bool(key, value) }}
}

// Duration is logged in milliseconds.
func Duration(key string, value time.Duration) Field {
	ms := value.Milliseconds()
	return Field{Key: key, Value: ms, add: func(ev *zerolog.Event) { ev.Int64(key, ms) }}
}

func Error(err error) Field {
	var msg string
	if err != nil {
		msg = err.Error()
	}
	return Field{Key: zerolog.ErrorFieldName, Value: msg, add: func(ev *zerolog.Event) { ev.Err(err) }}
}

func Any(key string, value any) Field {
	return Field{Key: key, Value: value, add: func(ev *zerolog.Event) { ev.Interface(key, value) }}
}
