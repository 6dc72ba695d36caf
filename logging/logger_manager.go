package logging

import "sync"

// loggerRegistry tracks named loggers so that level patterns from the config reach loggers
// created before and after the patterns are installed.
type loggerRegistry struct {
	mu       sync.Mutex
	loggers  map[string]Logger
	patterns []LoggerPatternConfig
}

var loggerManager = newLoggerManager()

func newLoggerManager() *loggerRegistry {
	return &loggerRegistry{loggers: map[string]Logger{}}
}

// levelFor returns the level of the last pattern matching name.
func (lr *loggerRegistry) levelFor(name string) (Level, bool) {
	var (
		level Level
		found bool
	)
	for _, p := range lr.patterns {
		if !p.matches(name) {
			continue
		}
		if l, err := LevelFromString(p.Level); err == nil {
			level, found = l, true
		}
	}
	return level, found
}

func (lr *loggerRegistry) registerLogger(name string, logger Logger) {
	lr.mu.Lock()
	defer lr.mu.Unlock()
	lr.loggers[name] = logger
	if level, ok := lr.levelFor(name); ok {
		logger.SetLevel(level)
	}
}

func (lr *loggerRegistry) deregisterLogger(name string) bool {
	lr.mu.Lock()
	defer lr.mu.Unlock()
	if _, ok := lr.loggers[name]; !ok {
		return false
	}
	delete(lr.loggers, name)
	return true
}

func (lr *loggerRegistry) loggerNamed(name string) (Logger, bool) {
	lr.mu.Lock()
	defer lr.mu.Unlock()
	logger, ok := lr.loggers[name]
	return logger, ok
}

// updateConfig installs patterns after validating all of them. Loggers no pattern matches keep
// their current level.
func (lr *loggerRegistry) updateConfig(patterns []LoggerPatternConfig) error {
	for _, p := range patterns {
		if err := p.Validate(); err != nil {
			return err
		}
	}
	lr.mu.Lock()
	defer lr.mu.Unlock()
	lr.patterns = patterns
	for name, logger := range lr.loggers {
		if level, ok := lr.levelFor(name); ok {
			logger.SetLevel(level)
		}
	}
	return nil
}

// RegisterLogger adds logger to the global registry, applying any matching pattern right away.
func RegisterLogger(name string, logger Logger) {
	loggerManager.registerLogger(name, logger)
}

// UpdateLoggerConfig replaces the global patterns and re-applies them to every registered logger.
func UpdateLoggerConfig(patterns []LoggerPatternConfig) error {
	return loggerManager.updateConfig(patterns)
}
