// Package logging builds the process-wide zerolog root logger and lets a
// config reload swap its sinks and level at runtime.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"waterminder/internal/config"
)

const timeFormat = "2006-01-02T15:04:05.000Z07:00"

// Service owns the sinks behind the root logger. The logger returned by New
// stays live across Apply calls: derived loggers (log.With()...) pick up new
// writers and levels without being rebuilt.
type Service struct {
	mu   sync.Mutex
	out  *dynamicWriter
	file *os.File
}

// New creates the logging service and applies cfg immediately.
func New(cfg config.LoggingConfig) (*Service, zerolog.Logger) {
	zerolog.ErrorFieldName = "err"
	zerolog.TimeFieldFormat = timeFormat

	s := &Service{out: &dynamicWriter{}}
	s.Apply(cfg)

	log := zerolog.New(s.out).With().Timestamp().Logger()
	return s, log
}

// Apply swaps outputs and level at runtime. Safe to call concurrently.
func (s *Service) Apply(cfg config.LoggingConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file != nil {
		_ = s.file.Close()
		s.file = nil
	}

	writers := make([]io.Writer, 0, 2)
	if cfg.Console {
		writers = append(writers, zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: timeFormat})
	}
	if cfg.File.Enabled {
		path := strings.TrimSpace(cfg.File.Path)
		if path == "" {
			path = "./waterminder.log"
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "logging: failed opening log file %q: %v\n", path, err)
		} else {
			s.file = f
			writers = append(writers, zerolog.SyncWriter(f))
		}
	}
	if len(writers) == 0 {
		writers = append(writers, zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: timeFormat})
	}

	s.out.set(zerolog.MultiLevelWriter(writers...))
	zerolog.SetGlobalLevel(ParseLevel(cfg.Level, zerolog.InfoLevel))
}

func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file != nil {
		err := s.file.Close()
		s.file = nil
		return err
	}
	return nil
}

// ParseLevel maps a config string to a zerolog level, falling back to def.
func ParseLevel(s string, def zerolog.Level) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return def
	}
}

// dynamicWriter lets Apply retarget every logger derived from the root
// without rebuilding them.
type dynamicWriter struct {
	w atomic.Value // zerolog.LevelWriter
}

func (d *dynamicWriter) set(w zerolog.LevelWriter) { d.w.Store(w) }

func (d *dynamicWriter) get() zerolog.LevelWriter {
	v := d.w.Load()
	if v == nil {
		return nil
	}
	lw, _ := v.(zerolog.LevelWriter)
	return lw
}

func (d *dynamicWriter) Write(p []byte) (int, error) {
	if lw := d.get(); lw != nil {
		return lw.Write(p)
	}
	return len(p), nil
}

func (d *dynamicWriter) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	if lw := d.get(); lw != nil {
		return lw.WriteLevel(level, p)
	}
	return len(p), nil
}
