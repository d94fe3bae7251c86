package log

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

type LoggerType uint8

const (
	ConsoleLogger LoggerType = iota
	JSONLogger
)

// Component loggers. They discard everything until Init is called, so the
// simulator core can log unconditionally from tests and libraries.
var (
	Root    = zerolog.Nop()
	Sim     = zerolog.Nop()
	Store   = zerolog.Nop()
	Network = zerolog.Nop()
)

// Options for Logger
type Options struct {
	// Enable Debug loglevel, default Info
	LogLevel zerolog.Level
	Type     LoggerType
	// Output defaults to stdout
	Output io.Writer
}

func ParseLogLevel(loglevel string) (zerolog.Level, error) {
	return zerolog.ParseLevel(loglevel)
}

func Init(opts Options) {
	out := opts.Output
	if out == nil {
		out = os.Stdout
	}

	switch opts.Type {
	case ConsoleLogger:
		Root = zerolog.New(newConsoleWriter(out)).Level(opts.LogLevel).
			With().Timestamp().Logger()
	default:
		Root = zerolog.New(out).Level(opts.LogLevel).
			With().Timestamp().Logger()
	}
	Sim = Root.With().Str("component", "sim").Logger()
	Store = Root.With().Str("component", "store").Logger()
	Network = Root.With().Str("component", "network").Logger()
}

func newConsoleWriter(out io.Writer) zerolog.ConsoleWriter {
	cw := zerolog.ConsoleWriter{Out: out, NoColor: true, TimeFormat: time.RFC3339}

	cw.FormatLevel = func(i interface{}) string {
		return strings.ToUpper(fmt.Sprintf("| %-6s|", i))
	}

	cw.FormatMessage = func(i interface{}) string {
		return fmt.Sprintf("message: \"%s\" |", i)
	}

	cw.FormatFieldName = func(i interface{}) string {
		return fmt.Sprintf("\"%s\": ", i)
	}

	cw.FormatFieldValue = func(i interface{}) string {
		return fmt.Sprintf("\"%s\" |", i)
	}

	cw.FormatErrFieldValue = func(i interface{}) string {
		return fmt.Sprintf(" %s |", i)
	}
	return cw
}
