// Package logging sets up structured logging for one scan run. Every
// run gets a unique ID and its own log file under run_logs/, while the
// console keeps a human-readable stream.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// RunLogger owns the per-run log file and the global zerolog wiring
// for the duration of a run.
type RunLogger struct {
	runID     string
	logFile   *os.File
	startTime time.Time

	mu     sync.Mutex
	closed bool
}

// StartRun configures global logging for a new run: JSON records go to
// a per-run file under dir, console output goes to stderr at the given
// level. The returned logger must be closed when the run ends.
func StartRun(dir, level string) (*RunLogger, error) {
	runID := uuid.NewString()
	shortID := runID[:8]

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory %s: %w", dir, err)
	}

	timestamp := time.Now().Format("20060102_150405")
	path := filepath.Join(dir, fmt.Sprintf("run_%s_%s.log", timestamp, shortID))
	logFile, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create log file %s: %w", path, err)
	}

	console := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}
	log.Logger = zerolog.New(io.MultiWriter(console, logFile)).
		With().Timestamp().Str("run_id", shortID).Logger()
	zerolog.SetGlobalLevel(parseLevel(level))

	r := &RunLogger{
		runID:     runID,
		logFile:   logFile,
		startTime: time.Now(),
	}
	log.Info().Str("log_file", path).Msg("run started")
	return r, nil
}

// RunID returns the full run identifier.
func (r *RunLogger) RunID() string {
	return r.runID
}

// Close writes the closing record and releases the log file. Safe to
// call more than once.
func (r *RunLogger) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true

	log.Info().Dur("elapsed", time.Since(r.startTime)).Msg("run finished")
	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}).
		With().Timestamp().Logger()
	return r.logFile.Close()
}

func parseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
