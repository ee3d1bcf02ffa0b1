// Package logging configures the process-wide zerolog logger. Call Setup
// exactly once at startup; everything else logs through zerolog's global
// logger with correlation ids attached as fields.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options controls how the global logger is configured.
type Options struct {
	Level string // trace, debug, info, warn, error; defaults to info
	JSON  bool   // structured JSON output; console writer when false
	File  string // optional rotating log file path
}

// Setup installs the global zerolog logger.
func Setup(opts Options) {
	level, err := zerolog.ParseLevel(strings.ToLower(opts.Level))
	if err != nil || opts.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339

	var out io.Writer = os.Stderr
	if !opts.JSON {
		out = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	}

	if opts.File != "" {
		rotator := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    50, // megabytes
			MaxBackups: 5,
			MaxAge:     14, // days
			Compress:   true,
		}
		out = zerolog.MultiLevelWriter(out, rotator)
	}

	log.Logger = zerolog.New(out).With().Timestamp().Logger()
}

// ForJob returns a logger carrying the job and request correlation ids.
func ForJob(jobID, requestID string) zerolog.Logger {
	return log.With().Str("job_id", jobID).Str("request_id", requestID).Logger()
}
