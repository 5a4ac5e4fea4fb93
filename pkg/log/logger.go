package log

import (
	"io"
	stdlog "log"
	"os"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// Config selects level, output format and the service tag.
type Config struct {
	Level string `mapstructure:"level"`
	// Pretty switches from JSON lines to human-readable console output.
	Pretty      bool   `mapstructure:"pretty"`
	ServiceName string `mapstructure:"service_name"`
}

var root atomic.Pointer[zerolog.Logger]

func init() {
	l := zerolog.New(os.Stdout).With().Timestamp().Logger()
	root.Store(&l)
}

// Build returns a logger for cfg writing to w.
func Build(cfg Config, w io.Writer) zerolog.Logger {
	if cfg.Pretty {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.TimeOnly}
	}

	lvl, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		lvl = zerolog.InfoLevel
	}

	zc := zerolog.New(w).Level(lvl).With().Timestamp()
	if cfg.ServiceName != "" {
		zc = zc.Str(FieldService, cfg.ServiceName)
	}
	return zc.Logger()
}

// Init replaces the process logger and sends stdlib log output through it.
// The level is applied process-wide so SetLevel can change it later.
func Init(cfg Config) zerolog.Logger {
	level := cfg.Level
	cfg.Level = zerolog.LevelTraceValue
	l := Build(cfg, os.Stdout)
	root.Store(&l)
	SetLevel(level)

	stdlog.SetFlags(0)
	stdlog.SetOutput(l.With().Str("source", "stdlog").Logger())
	return l
}

// SetLevel changes the minimum level of every logger in the process.
// Unknown names select info.
func SetLevel(name string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(name)
	if err != nil || name == "" {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	return lvl
}

// L returns the process logger.
func L() zerolog.Logger {
	return *root.Load()
}
