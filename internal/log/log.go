// Package log configures the process-wide zerolog logger used by every
// pdusim component.
package log

import (
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// string representation that directly corresponds to zerolog.Level
type LogLevel string

const (
	DEBUG    LogLevel = "debug"
	INFO     LogLevel = "info"
	WARN     LogLevel = "warn"
	ERROR    LogLevel = "error"
	DISABLED LogLevel = "disabled"
	TRACE    LogLevel = "trace"
)

var Levels = [6]LogLevel{DEBUG, INFO, WARN, ERROR, DISABLED, TRACE}

// LogFile is the optional file sink opened by InitWithLogLevel. It is kept
// so that the caller can close it on shutdown.
var LogFile *os.File

func (ll LogLevel) String() string {
	return string(ll)
}

func (ll *LogLevel) Set(v string) error {
	switch LogLevel(strings.ToLower(v)) {
	case DEBUG, INFO, WARN, ERROR, DISABLED, TRACE:
		*ll = LogLevel(strings.ToLower(v))
		return nil
	default:
		return fmt.Errorf("must be one of %v", Levels)
	}
}

func (ll LogLevel) Type() string {
	return "LogLevel"
}

// InitWithLogLevel replaces the global zerolog logger with one writing to
// stderr and, when logPath is set, appending to that file as well.
func InitWithLogLevel(logLevel LogLevel, logPath string) error {
	var (
		level   zerolog.Level
		writers []io.Writer
		err     error
	)

	level, err = strToLogLevel(logLevel)
	if err != nil {
		return fmt.Errorf("failed to convert log level: %w", err)
	}

	writers = append(writers, &zerolog.FilteredLevelWriter{
		Writer: &zerolog.LevelWriterAdapter{Writer: zerolog.ConsoleWriter{Out: os.Stderr}},
		Level:  level,
	})

	if logPath != "" {
		LogFile, err = os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0664)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		writers = append(writers, &zerolog.FilteredLevelWriter{
			Writer: zerolog.LevelWriterAdapter{Writer: LogFile},
			Level:  level,
		})
	}

	writer := zerolog.MultiLevelWriter(writers...)
	log.Logger = zerolog.New(writer).Level(level).With().Timestamp().Caller().Logger()
	zerolog.SetGlobalLevel(level)
	return nil
}

// Close releases the log file sink, if any.
func Close() {
	if LogFile != nil {
		LogFile.Close()
		LogFile = nil
	}
}

func strToLogLevel(ll LogLevel) (zerolog.Level, error) {
	if index := slices.Index(Levels[:], ll); index >= 0 {
		// DISABLED and TRACE do not follow the zerolog ordering
		switch ll {
		case DISABLED:
			return zerolog.Disabled, nil
		case TRACE:
			return zerolog.TraceLevel, nil
		}
		return zerolog.Level(index), nil
	}
	names := make([]string, 0, len(Levels))
	for _, l := range Levels {
		names = append(names, string(l))
	}
	return zerolog.NoLevel, fmt.Errorf("invalid log level (options: %s)", strings.Join(names, ", "))
}
