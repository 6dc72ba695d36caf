package logging

import (
	"strings"
	"testing"

	"go.viam.com/test"
)

func verifySetLevels(registry *loggerRegistry, expectedMatches map[string]string) bool {
	for name, level := range expectedMatches {
		logger, ok := registry.loggerNamed(name)
		if !ok || !strings.EqualFold(level, logger.GetLevel().String()) {
			return false
		}
	}
	return true
}

func createTestRegistry(loggerNames []string) *loggerRegistry {
	manager := newLoggerManager()
	for _, name := range loggerNames {
		manager.registerLogger(name, NewBlankLogger(name))
		// Blank loggers start at DEBUG; reset to the usual default.
		manager.loggers[name].SetLevel(INFO)
	}
	return manager
}

func TestValidatePattern(t *testing.T) {
	t.Parallel()

	type testCfg struct {
		pattern string
		isValid bool
	}

	tests := []testCfg{
		// Valid patterns
		{"sensing.accel-0", true},
		{"sensing.accel-0.*", true},
		{"sensing.*.driver", true},
		{"sensing.*.*", true},
		{"*.driver", true},
		{"*", true},

		// Invalid patterns
		{"sensing..accel-0", false},
		{"sensing.accel-0.", false},
		{".sensing.accel-0", false},
		{"sensing.accel-0.**", false},
		{"sensing.**.driver", false},

		// Invalid patterns with special characters
		{"_.sensing.accel-0", false},
		{"-.sensing", false},
		{"sensing.-", false},
		{"sensing.-.driver", false},
		{"sensing._.driver", false},
		{"sensing accel", false},
	}

	for _, tc := range tests {
		t.Run(tc.pattern, func(t *testing.T) {
			t.Parallel()
			test.That(t, validatePattern(tc.pattern), test.ShouldEqual, tc.isValid)
		})
	}
}

func TestUpdateLoggerRegistry(t *testing.T) {
	type testCfg struct {
		loggerConfig    []LoggerPatternConfig
		loggerNames     []string
		expectedMatches map[string]string
	}

	tests := []testCfg{
		{
			loggerConfig: []LoggerPatternConfig{{Pattern: "sensing.accel-0", Level: "WARN"}},
			loggerNames:  []string{"sensing.accel-0", "sensing.accel-0.driver", "sensing.gyro-0"},
			expectedMatches: map[string]string{
				"sensing.accel-0":        "WARN",
				"sensing.accel-0.driver": "INFO",
				"sensing.gyro-0":         "INFO",
			},
		},
		{
			loggerConfig: []LoggerPatternConfig{{Pattern: "sensing.*", Level: "DEBUG"}},
			loggerNames:  []string{"sensing.accel-0", "sensing.gyro-0.driver"},
			expectedMatches: map[string]string{
				"sensing.accel-0":       "DEBUG",
				"sensing.gyro-0.driver": "DEBUG",
			},
		},
		{
			loggerConfig: []LoggerPatternConfig{{Pattern: "sensing.*.driver", Level: "ERROR"}},
			loggerNames:  []string{"sensing.accel-0.driver", "sensing.gyro-0.driver", "sensing.gyro-0"},
			expectedMatches: map[string]string{
				"sensing.accel-0.driver": "ERROR",
				"sensing.gyro-0.driver":  "ERROR",
				"sensing.gyro-0":         "INFO",
			},
		},
		{
			// Later patterns take precedence.
			loggerConfig: []LoggerPatternConfig{
				{Pattern: "sensing.*", Level: "DEBUG"},
				{Pattern: "sensing.accel-0", Level: "WARN"},
			},
			loggerNames:     []string{"sensing.accel-0"},
			expectedMatches: map[string]string{"sensing.accel-0": "WARN"},
		},
		{
			loggerConfig:    []LoggerPatternConfig{{Pattern: "a.b", Level: "DEBUG"}},
			loggerNames:     []string{"a.b.c"},
			expectedMatches: map[string]string{"a.b.c": "INFO"},
		},
	}

	for _, tc := range tests {
		testRegistry := createTestRegistry(tc.loggerNames)

		err := testRegistry.updateConfig(tc.loggerConfig)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, verifySetLevels(testRegistry, tc.expectedMatches), test.ShouldBeTrue)
	}
}

func TestUpdateLoggerRegistryRejectsInvalid(t *testing.T) {
	testRegistry := createTestRegistry([]string{"sensing.accel-0"})

	err := testRegistry.updateConfig([]LoggerPatternConfig{{Pattern: "_.*", Level: "DEBUG"}})
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "invalid logger pattern")

	err = testRegistry.updateConfig([]LoggerPatternConfig{{Pattern: "sensing.*", Level: "loud"}})
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, verifySetLevels(testRegistry, map[string]string{"sensing.accel-0": "INFO"}), test.ShouldBeTrue)
}

func TestRegisterAppliesExistingConfig(t *testing.T) {
	manager := newLoggerManager()
	test.That(t, manager.updateConfig([]LoggerPatternConfig{{Pattern: "sensing.*", Level: "error"}}), test.ShouldBeNil)

	logger := NewBlankLogger("sensing.gyro-0")
	manager.registerLogger("sensing.gyro-0", logger)
	test.That(t, logger.GetLevel(), test.ShouldEqual, ERROR)

	test.That(t, manager.deregisterLogger("sensing.gyro-0"), test.ShouldBeTrue)
	test.That(t, manager.deregisterLogger("sensing.gyro-0"), test.ShouldBeFalse)
	_, ok := manager.loggerNamed("sensing.gyro-0")
	test.That(t, ok, test.ShouldBeFalse)
}
