package boot

import (
	"github.com/riftgate/forge/pkg/extension"
	"github.com/riftgate/forge/pkg/registry"
)

// Registrar is the callback an extension supplies to publish its declared
// capabilities. It runs synchronously on the boot goroutine during the
// registration phase; a blocking registrar stalls the whole boot.
type Registrar interface {
	RegisterCapabilities(rc *RegistrationContext) error
}

// RegistrarFunc adapts a function to Registrar.
type RegistrarFunc func(rc *RegistrationContext) error

func (f RegistrarFunc) RegisterCapabilities(rc *RegistrationContext) error { return f(rc) }

// RegistrationContext is the narrow surface handed to one extension's
// registrar: writes scoped to that extension against the three registries,
// with successful writes recorded in the usage accumulator.
type RegistrationContext struct {
	ext *extension.Validated
	bc  *Context
}

// Extension returns the validated extension being registered.
func (rc *RegistrationContext) Extension() *extension.Validated { return rc.ext }

// RegisterAPI publishes a callable function under the derived path
// "<extension id>.<capability>".
func (rc *RegistrationContext) RegisterAPI(capName string, h registry.Handler, metadata map[string]any) error {
	if err := rc.bc.API.Register(rc.ext, capName, h, metadata); err != nil {
		return err
	}
	rc.bc.Usage.Record(rc.ext.Descriptor.ID, capName)
	return nil
}

// RegisterAPIPath publishes a callable function under an explicit path,
// which must carry the extension's id prefix.
func (rc *RegistrationContext) RegisterAPIPath(capName, path string, h registry.Handler, metadata map[string]any) error {
	if err := rc.bc.API.RegisterPath(rc.ext, capName, path, h, metadata); err != nil {
		return err
	}
	rc.bc.Usage.Record(rc.ext.Descriptor.ID, capName)
	return nil
}

// RegisterHook publishes an event callback.
func (rc *RegistrationContext) RegisterHook(capName string, h registry.Handler, metadata map[string]any) error {
	if err := rc.bc.Hooks.Register(rc.ext, capName, h, metadata); err != nil {
		return err
	}
	rc.bc.Usage.Record(rc.ext.Descriptor.ID, capName)
	return nil
}

// RegisterService publishes a backend service object handle.
func (rc *RegistrationContext) RegisterService(capName string, h registry.Handler, metadata map[string]any) error {
	if err := rc.bc.Services.Register(rc.ext, capName, h, metadata); err != nil {
		return err
	}
	rc.bc.Usage.Record(rc.ext.Descriptor.ID, capName)
	return nil
}
