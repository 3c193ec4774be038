package log

import (
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	level  = zap.NewAtomicLevel()
	logger = newLogger()
)

func newLogger() *zap.Logger {
	cfg := zap.NewProductionConfig()
	cfg.Level = level
	cfg.Sampling = nil
	l, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return l
}

// Init sets the log level. debug forces the debug level.
func Init(levelName string, debug bool) error {
	lvl, err := ParseLevel(levelName)
	if err != nil {
		return err
	}
	if debug {
		lvl = zapcore.DebugLevel
	}
	level.SetLevel(lvl)
	return nil
}

// ParseLevel parses level names such as INFO, warning or CRITICAL.
// An empty name is the info level.
func ParseLevel(name string) (zapcore.Level, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	switch name {
	case "warning":
		name = "warn"
	case "critical":
		name = "error"
	}
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(name)); err != nil {
		return lvl, errors.Errorf("unknown log level %q", name)
	}
	return lvl, nil
}

func Get() *zap.Logger {
	return logger
}
