package registry

import (
	"sync"

	"github.com/pkg/errors"

	"go.viam.com/sensing/config"
	"go.viam.com/sensing/driver"
)

// A DriverRegistration stores construction info for a driver model.
type DriverRegistration struct {
	Constructor driver.Constructor
	// AttributeMapConverter converts the raw attributes of a sensor using this model. Optional.
	AttributeMapConverter config.AttributeMapConverter
}

var (
	driverRegistryMu sync.RWMutex
	driverRegistry   = map[string]DriverRegistration{}
)

// RegisterDriver registers a driver model. It panics if the model is already registered or the
// registration has no constructor.
func RegisterDriver(model string, reg DriverRegistration) {
	driverRegistryMu.Lock()
	defer driverRegistryMu.Unlock()
	if _, old := driverRegistry[model]; old {
		panic(errors.Errorf("trying to register two drivers with same model %s", model))
	}
	if reg.Constructor == nil {
		panic(errors.Errorf("cannot register a nil constructor for model %s", model))
	}
	driverRegistry[model] = reg
}

// DeregisterDriver removes a previously registered model.
func DeregisterDriver(model string) {
	driverRegistryMu.Lock()
	defer driverRegistryMu.Unlock()
	delete(driverRegistry, model)
}

// DriverLookup looks up a driver registration by model.
func DriverLookup(model string) (DriverRegistration, bool) {
	driverRegistryMu.RLock()
	defer driverRegistryMu.RUnlock()
	reg, ok := driverRegistry[model]
	return reg, ok
}
