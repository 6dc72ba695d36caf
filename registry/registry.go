// Package registry holds the immutable catalog of sensors known to the process and the global
// table of driver models able to serve them.
package registry

import (
	"slices"

	"github.com/pkg/errors"

	"go.viam.com/sensing/config"
	"go.viam.com/sensing/sensor"
)

// Registry is the immutable sensor catalog. It is built once at startup and is safe for
// concurrent use without locking.
type Registry struct {
	descs  []*sensor.Descriptor
	byName map[string]*sensor.Descriptor
	byRef  map[string]*sensor.Descriptor
	attrs  map[string]interface{}
}

// New builds a catalog from the given descriptors. Names must be unique, as must non-empty
// physical references.
func New(descs []sensor.Descriptor) (*Registry, error) {
	reg := &Registry{
		descs:  make([]*sensor.Descriptor, 0, len(descs)),
		byName: make(map[string]*sensor.Descriptor, len(descs)),
		byRef:  make(map[string]*sensor.Descriptor, len(descs)),
		attrs:  map[string]interface{}{},
	}
	for i := range descs {
		desc := descs[i]
		if desc.Name == "" {
			return nil, errors.Errorf("sensor %d has no name", i)
		}
		if desc.FieldCount < 0 {
			return nil, errors.Errorf("sensor %q has a negative field count", desc.Name)
		}
		if _, ok := reg.byName[desc.Name]; ok {
			return nil, errors.Errorf("duplicate sensor name %q", desc.Name)
		}
		if desc.PhysicalRef != "" {
			if _, ok := reg.byRef[desc.PhysicalRef]; ok {
				return nil, errors.Errorf("duplicate physical reference %q", desc.PhysicalRef)
			}
		}
		d := &desc
		reg.descs = append(reg.descs, d)
		reg.byName[d.Name] = d
		if d.PhysicalRef != "" {
			reg.byRef[d.PhysicalRef] = d
		}
	}
	return reg, nil
}

// FromConfig builds a catalog from a validated config. Every sensor's model must be registered,
// and its attributes are converted with the model's converter.
func FromConfig(cfg *config.Config) (*Registry, error) {
	descs := make([]sensor.Descriptor, 0, len(cfg.Sensors))
	attrs := make(map[string]interface{}, len(cfg.Sensors))
	for i := range cfg.Sensors {
		sc := &cfg.Sensors[i]
		drvReg, ok := DriverLookup(sc.Model)
		if !ok {
			return nil, errors.Errorf("sensor %q: unknown model %q", sc.Name, sc.Model)
		}
		if drvReg.AttributeMapConverter != nil {
			converted, err := drvReg.AttributeMapConverter(sc.Attributes)
			if err != nil {
				return nil, errors.Wrapf(err, "sensor %q", sc.Name)
			}
			sc.ConvertedAttributes = converted
			attrs[sc.Name] = converted
		}
		desc, err := sc.Descriptor()
		if err != nil {
			return nil, errors.Wrapf(err, "sensor %q", sc.Name)
		}
		descs = append(descs, desc)
	}
	reg, err := New(descs)
	if err != nil {
		return nil, err
	}
	reg.attrs = attrs
	return reg, nil
}

// List returns the full catalog in configuration order. The slice is clipped, so appending to it
// never writes into the catalog; the descriptors themselves are shared and must not be modified.
func (r *Registry) List() []*sensor.Descriptor {
	return slices.Clip(r.descs)
}

// Len returns the number of sensors.
func (r *Registry) Len() int {
	return len(r.descs)
}

// Lookup finds a sensor by name.
func (r *Registry) Lookup(name string) (*sensor.Descriptor, bool) {
	d, ok := r.byName[name]
	return d, ok
}

// LookupRef finds a sensor by physical reference.
func (r *Registry) LookupRef(ref string) (*sensor.Descriptor, bool) {
	if ref == "" {
		return nil, false
	}
	d, ok := r.byRef[ref]
	return d, ok
}

// Attributes returns the converted driver attributes of the named sensor, or nil.
func (r *Registry) Attributes(name string) interface{} {
	return r.attrs[name]
}

// Contains reports whether desc is one of this catalog's descriptors. Only pointer identity
// counts: a copy of a descriptor is not part of the catalog.
func (r *Registry) Contains(desc *sensor.Descriptor) bool {
	if desc == nil {
		return false
	}
	d, ok := r.byName[desc.Name]
	return ok && d == desc
}
