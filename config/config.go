// Package config reads the JSON file that describes the sensors available to the engine.
package config

import (
	"fmt"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.viam.com/utils"

	"go.viam.com/sensing/sensor"
)

// Config is the top level configuration.
type Config struct {
	ConfigFilePath string         `json:"-"`
	Sensors        []SensorConfig `json:"sensors"`
	Log            LogConfig      `json:"log"`
}

// Validate checks every sensor and the logging section. All problems found are reported together.
func (c *Config) Validate() error {
	var errs error
	seenNames := make(map[string]int, len(c.Sensors))
	seenRefs := make(map[string]int, len(c.Sensors))
	for idx := range c.Sensors {
		path := fmt.Sprintf("sensors.%d", idx)
		sc := &c.Sensors[idx]
		if err := sc.Validate(path); err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		if prev, ok := seenNames[sc.Name]; ok {
			errs = multierr.Append(errs, utils.NewConfigValidationError(path,
				errors.Errorf("duplicate sensor name %q (also at sensors.%d)", sc.Name, prev)))
		}
		seenNames[sc.Name] = idx
		if sc.UnderlyingDevice == "" {
			continue
		}
		if prev, ok := seenRefs[sc.UnderlyingDevice]; ok {
			errs = multierr.Append(errs, utils.NewConfigValidationError(path,
				errors.Errorf("duplicate underlying_device %q (also at sensors.%d)", sc.UnderlyingDevice, prev)))
		}
		seenRefs[sc.UnderlyingDevice] = idx
	}
	if err := c.Log.Validate("log"); err != nil {
		errs = multierr.Append(errs, err)
	}
	return errs
}

// SensorConfig describes one sensor.
type SensorConfig struct {
	Name         string `json:"name"`
	FriendlyName string `json:"friendly_name,omitempty"`
	// Type is either a type name such as "accelerometer_3d" or a numeric usage id such as "0x73".
	Type  string `json:"type"`
	Model string `json:"model"`
	// UnderlyingDevice is the physical reference sessions may open the sensor by.
	UnderlyingDevice string       `json:"underlying_device,omitempty"`
	MinInterval      string       `json:"min_interval,omitempty"`
	FieldCount       int          `json:"field_count,omitempty"`
	ReportOnChange   bool         `json:"report_on_change,omitempty"`
	Attributes       AttributeMap `json:"attributes,omitempty"`

	// ConvertedAttributes holds the model specific attributes after conversion. It is filled in
	// when the sensor's driver is looked up.
	ConvertedAttributes interface{} `json:"-"`
}

// Validate ensures all parts of the config are valid.
func (sc *SensorConfig) Validate(path string) error {
	if sc.Name == "" {
		return utils.NewConfigValidationFieldRequiredError(path, "name")
	}
	if sc.Type == "" {
		return utils.NewConfigValidationFieldRequiredError(path, "type")
	}
	if sc.Model == "" {
		return utils.NewConfigValidationFieldRequiredError(path, "model")
	}
	if _, err := sensor.TypeFromString(sc.Type); err != nil {
		return utils.NewConfigValidationError(path, err)
	}
	if _, err := sc.minInterval(); err != nil {
		return utils.NewConfigValidationError(path, err)
	}
	if sc.FieldCount < 0 {
		return utils.NewConfigValidationError(path, errors.New("field_count cannot be negative"))
	}
	return nil
}

func (sc *SensorConfig) minInterval() (time.Duration, error) {
	if sc.MinInterval == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(sc.MinInterval)
	if err != nil {
		return 0, errors.Wrap(err, "invalid min_interval")
	}
	if d < 0 {
		return 0, errors.New("min_interval cannot be negative")
	}
	return d, nil
}

// Descriptor builds the immutable sensor descriptor. The config must be valid.
func (sc *SensorConfig) Descriptor() (sensor.Descriptor, error) {
	typ, err := sensor.TypeFromString(sc.Type)
	if err != nil {
		return sensor.Descriptor{}, err
	}
	minInterval, err := sc.minInterval()
	if err != nil {
		return sensor.Descriptor{}, err
	}
	friendlyName := sc.FriendlyName
	if friendlyName == "" {
		friendlyName = sc.Name
	}
	return sensor.Descriptor{
		Type:           typ,
		Name:           sc.Name,
		FriendlyName:   friendlyName,
		Model:          sc.Model,
		PhysicalRef:    sc.UnderlyingDevice,
		MinInterval:    minInterval,
		FieldCount:     sc.FieldCount,
		ReportOnChange: sc.ReportOnChange,
	}, nil
}
