package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Leveled logger used across the terminal backend.
// - zerolog underneath, one JSON line per entry
// - printf-style helpers (Debugf/Infof/Warnf/Errorf/Fatalf) plus structured Event helpers

var (
	mu     sync.RWMutex
	out    io.Writer = os.Stdout
	logger           = newLogger(os.Stdout)
	level            = zerolog.InfoLevel
)

func newLogger(w io.Writer) zerolog.Logger {
	return zerolog.New(w).With().Timestamp().Str("service", "smartbar-terminal").Logger()
}

// Init sets the global log level (case-insensitive: debug, info, warn, error, fatal).
// Call early during startup. Default level is Info.
func Init(l string) {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	mu.Lock()
	defer mu.Unlock()
	switch strings.ToLower(strings.TrimSpace(l)) {
	case "debug":
		level = zerolog.DebugLevel
	case "warn", "warning":
		level = zerolog.WarnLevel
	case "error":
		level = zerolog.ErrorLevel
	case "fatal":
		level = zerolog.FatalLevel
	default:
		level = zerolog.InfoLevel
	}
	logger = newLogger(out).Level(level)
}

// SetOutput redirects log output; used by tests and by main when LOG_FORMAT=console.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	out = w
	logger = newLogger(out).Level(level)
}

func current() *zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	l := logger
	return &l
}

// WithComponent returns a child logger tagged with the given component name.
func WithComponent(name string) zerolog.Logger {
	return current().With().Str("component", name).Logger()
}

// Structured entry points. Callers must finish the event with Msg/Msgf/Send.
func DebugEvent() *zerolog.Event { return current().Debug() }
func InfoEvent() *zerolog.Event  { return current().Info() }
func WarnEvent() *zerolog.Event  { return current().Warn() }
func ErrorEvent() *zerolog.Event { return current().Error() }

func Debugf(format string, v ...interface{}) {
	current().Debug().Msgf(format, v...)
}

func Infof(format string, v ...interface{}) {
	current().Info().Msgf(format, v...)
}

func Warnf(format string, v ...interface{}) {
	current().Warn().Msgf(format, v...)
}

func Errorf(format string, v ...interface{}) {
	current().Error().Msgf(format, v...)
}

func Fatalf(format string, v ...interface{}) {
	// WithLevel keeps the fatal entry without zerolog's own os.Exit so deferred writers flush first.
	current().WithLevel(zerolog.FatalLevel).Msgf(format, v...)
	os.Exit(1)
}

// Println kept for brief messages (maps to Info)
func Println(v ...interface{}) {
	current().Info().Msg(strings.TrimSuffix(fmt.Sprintln(v...), "\n"))
}

// Debug/Info/Warn/Error helpers that accept a single string
func Debug(v string) { Debugf("%s", v) }
func Info(v string)  { Infof("%s", v) }
func Warn(v string)  { Warnf("%s", v) }
func Error(v string) { Errorf("%s", v) }

// LevelString returns the current level as text.
func LevelString() string {
	mu.RLock()
	defer mu.RUnlock()
	switch level {
	case zerolog.DebugLevel:
		return "debug"
	case zerolog.WarnLevel:
		return "warn"
	case zerolog.ErrorLevel:
		return "error"
	case zerolog.FatalLevel:
		return "fatal"
	}
	return "info"
}
