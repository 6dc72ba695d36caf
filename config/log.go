package config

import (
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.viam.com/utils"

	"go.viam.com/sensing/logging"
)

// LogConfig configures the process wide logging.
type LogConfig struct {
	// Level is the default level. Empty means "info".
	Level    string                        `json:"level,omitempty"`
	File     *logging.FileAppenderConfig   `json:"file,omitempty"`
	Patterns []logging.LoggerPatternConfig `json:"patterns,omitempty"`
}

// Validate the LogConfig.
func (lc LogConfig) Validate(path string) error {
	if lc.Level != "" {
		if _, err := logging.LevelFromString(lc.Level); err != nil {
			return utils.NewConfigValidationError(path, err)
		}
	}
	if lc.File != nil && lc.File.Path == "" {
		return utils.NewConfigValidationFieldRequiredError(path+".file", "path")
	}
	for idx, lpc := range lc.Patterns {
		if err := lpc.Validate(); err != nil {
			return utils.NewConfigValidationError(path+".patterns", errors.Wrapf(err, "pattern %d", idx))
		}
	}
	return nil
}

// ApplyLevels sets the global level and installs the per-logger patterns.
func (lc LogConfig) ApplyLevels(logger logging.Logger) error {
	if lc.Level != "" {
		level, err := logging.LevelFromString(lc.Level)
		if err != nil {
			return err
		}
		logging.GlobalLevel.Set(level)
		logger.SetLevel(level)
	}
	return logging.UpdateLoggerConfig(lc.Patterns)
}

// Apply does what ApplyLevels does and also adds the file appender to logger when one is
// configured. The returned function closes the file appender.
func (lc LogConfig) Apply(logger logging.Logger) (func() error, error) {
	closer := func() error { return nil }
	if err := lc.ApplyLevels(logger); err != nil {
		return closer, err
	}
	if lc.File == nil {
		return closer, nil
	}
	appender, err := logging.NewFileAppender(*lc.File)
	if err != nil {
		return closer, err
	}
	logger.AddAppender(appender)
	return func() error {
		return multierr.Combine(appender.Sync(), appender.Close())
	}, nil
}
