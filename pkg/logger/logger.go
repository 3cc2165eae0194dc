package logger

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Logger is a leveled zerolog wrapper. Children created with With share
// the parent's anomaly collector, including one attached later.
type Logger struct {
	zl     zerolog.Logger
	sink   *sink
	levels map[string]zerolog.Level
}

type sink struct {
	mu sync.RWMutex
	c  *LogCollector
}

func (s *sink) get() *LogCollector {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.c
}

// swap installs c and returns the collector it replaced.
func (s *sink) swap(c *LogCollector) *LogCollector {
	s.mu.Lock()
	defer s.mu.Unlock()
	old := s.c
	s.c = c
	return old
}

type Config struct {
	Level      string // debug, info, warn, error
	Format     string // json or console
	Output     string // stdout, stderr, or file path
	TimeFormat string

	// Components overrides the level per component name, e.g. {"agent": "debug"}.
	Components map[string]string
}

func New(cfg *Config) (*Logger, error) {
	var out io.Writer
	switch cfg.Output {
	case "", "stdout":
		out = os.Stdout
	case "stderr":
		out = os.Stderr
	default:
		f, err := os.OpenFile(cfg.Output, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("could not open log file: %w", err)
		}
		out = f
	}
	return newLogger(cfg, out)
}

// NewWriter is New with an explicit destination.
func NewWriter(cfg *Config, out io.Writer) (*Logger, error) {
	return newLogger(cfg, out)
}

func newLogger(cfg *Config, out io.Writer) (*Logger, error) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}
	levels := make(map[string]zerolog.Level, len(cfg.Components))
	for name, lv := range cfg.Components {
		parsed, err := zerolog.ParseLevel(lv)
		if err != nil {
			return nil, fmt.Errorf("invalid log level for component %s: %w", name, err)
		}
		levels[name] = parsed
	}

	tf := cfg.TimeFormat
	if tf == "" {
		tf = time.RFC3339Nano
	}
	zerolog.SetGlobalLevel(zerolog.TraceLevel)
	zerolog.TimeFieldFormat = tf
	if cfg.Format == "console" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: tf}
	}

	zl := zerolog.New(out).With().Timestamp().CallerWithSkipFrameCount(4).Logger().Level(level)
	return &Logger{zl: zl, sink: &sink{}, levels: levels}, nil
}

// Nop returns a logger that discards everything. Used by tests.
func Nop() *Logger {
	return &Logger{zl: zerolog.Nop(), sink: &sink{}}
}

// With returns a child logger tagged with the component name. A level
// configured for that component replaces the inherited one.
func (l *Logger) With(component string) *Logger {
	child := l.zl.With().Str("component", component).Logger()
	if lv, ok := l.levels[component]; ok {
		child = child.Level(lv)
	}
	return &Logger{zl: child, sink: l.sink, levels: l.levels}
}

// DebugEnabled reports whether debug output would be written.
func (l *Logger) DebugEnabled() bool {
	return l.zl.GetLevel() <= zerolog.DebugLevel
}

func (l *Logger) Debug(msg string, fields ...Field) { l.write(zerolog.DebugLevel, msg, fields) }

func (l *Logger) Info(msg string, fields ...Field) { l.write(zerolog.InfoLevel, msg, fields) }

// Warn and Error lines are also counted by the anomaly collector when one
// is attached.
func (l *Logger) Warn(msg string, fields ...Field) { l.write(zerolog.WarnLevel, msg, fields) }

func (l *Logger) Error(msg string, fields ...Field) { l.write(zerolog.ErrorLevel, msg, fields) }

func (l *Logger) write(level zerolog.Level, msg string, fields []Field) {
	ev := l.zl.WithLevel(level)
	for _, f := range fields {
		f.apply(ev)
	}
	ev.Msg(msg)

	if level < zerolog.WarnLevel || l.sink == nil {
		return
	}
	if c := l.sink.get(); c != nil {
		c.AddLog(level.String(), msg, fieldMap(fields), caller())
	}
}

// caller is the file:line of the code that called Warn or Error, relative
// to the module root.
func caller() string {
	_, file, line, ok := runtime.Caller(3)
	if !ok {
		return "unknown"
	}
	if i := strings.LastIndex(file, "LatentTrader/"); i >= 0 {
		file = file[i+len("LatentTrader/"):]
	}
	return fmt.Sprintf("%s:%d", file, line)
}

// AddCollector attaches a collector for this logger and all its children,
// closing any previous one.
func (l *Logger) AddCollector(cfg *CollectionConfig) {
	if old := l.sink.swap(NewLogCollector(cfg)); old != nil {
		old.Close()
	}
}

// RemoveCollector flushes and detaches the collector.
func (l *Logger) RemoveCollector() {
	if old := l.sink.swap(nil); old != nil {
		old.Close()
	}
}
