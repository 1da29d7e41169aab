// Package logging builds the zerolog logger shared by every command.
//
// Two sinks are combined: a human-readable console writer on stderr at
// the configured level, and a JSON file sink at debug level that rotates
// through lumberjack. The logger is returned to the caller and passed
// down explicitly; nothing is stored globally.
package logging

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// FileName is the log file written under the log directory.
const FileName = "anki_vibe.log"

// Rotation limits for the log file.
const (
	MaxSizeMB  = 5
	MaxBackups = 3
)

// Config holds logging configuration.
type Config struct {
	// Level is the console level: trace, debug, info, warn or error.
	// Default: info
	Level string

	// Dir receives the rotating JSON log file. Empty disables the file.
	Dir string

	// Console is the human-readable sink.
	// Default: os.Stderr
	Console io.Writer

	// NoColor disables ANSI colors on the console.
	NoColor bool
}

// Logger is a configured logger plus the file sink to close on exit.
type Logger struct {
	zerolog.Logger
	file *lumberjack.Logger
}

// New builds a Logger. Failing to create the log directory only drops
// the file sink; console logging always works.
func New(cfg Config) *Logger {
	if cfg.Console == nil {
		cfg.Console = os.Stderr
	}

	console := zerolog.ConsoleWriter{
		Out:        cfg.Console,
		NoColor:    cfg.NoColor,
		TimeFormat: time.TimeOnly,
	}
	writers := []io.Writer{
		&zerolog.FilteredLevelWriter{
			Writer: zerolog.LevelWriterAdapter{Writer: console},
			Level:  ParseLevel(cfg.Level),
		},
	}

	var file *lumberjack.Logger
	var dirErr error
	if cfg.Dir != "" {
		if dirErr = os.MkdirAll(cfg.Dir, 0755); dirErr == nil {
			file = &lumberjack.Logger{
				Filename:   filepath.Join(cfg.Dir, FileName),
				MaxSize:    MaxSizeMB,
				MaxBackups: MaxBackups,
				LocalTime:  true,
			}
			writers = append(writers, file)
		}
	}

	zl := zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(zerolog.DebugLevel).
		With().Timestamp().Logger()
	if lvl := ParseLevel(cfg.Level); lvl < zerolog.DebugLevel {
		zl = zl.Level(lvl)
	}

	if dirErr != nil {
		zl.Warn().Err(dirErr).Str("dir", cfg.Dir).Msg("file logging disabled")
	}
	return &Logger{Logger: zl, file: file}
}

// Close flushes and closes the log file.
func (l *Logger) Close() error {
	if l.file == nil {
		return nil
	}
	return l.file.Close()
}

// FilePath returns the active log file, or "" without a file sink.
func (l *Logger) FilePath() string {
	if l.file == nil {
		return ""
	}
	return l.file.Filename
}

// ParseLevel converts a level name to a zerolog level. Empty or unknown
// names mean info.
func ParseLevel(level string) zerolog.Level {
	name := strings.ToLower(strings.TrimSpace(level))
	if name == "warning" {
		name = "warn"
	}
	l, err := zerolog.ParseLevel(name)
	if err != nil || l == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return l
}
