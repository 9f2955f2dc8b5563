// Package booterr defines the tagged error type used for boot-time contract
// violations: wrong phase, frozen registry, undeclared capability, duplicate
// registration, namespace violation, and pipeline invariant breaks. One
// struct with a Kind discriminator replaces an exception hierarchy; callers
// match with errors.As and switch on Kind exhaustively.
package booterr

import (
	"errors"
	"fmt"
)

// Kind identifies the violated contract.
type Kind string

const (
	// KindWrongPhase: an operation ran outside the phase that permits it.
	KindWrongPhase Kind = "WRONG_PHASE"
	// KindRegistryFrozen: a write reached a registry after freeze.
	KindRegistryFrozen Kind = "REGISTRY_FROZEN"
	// KindUndeclaredCapability: an extension registered a capability it
	// never declared.
	KindUndeclaredCapability Kind = "UNDECLARED_CAPABILITY"
	// KindDuplicateRegistration: a capability name was registered twice.
	KindDuplicateRegistration Kind = "DUPLICATE_REGISTRATION"
	// KindNamespaceViolation: an API path is not prefixed with the owning
	// extension's id.
	KindNamespaceViolation Kind = "NAMESPACE_VIOLATION"
	// KindInvariantViolation: the pipeline reached a state its own logic
	// should have made impossible. Unrecoverable; never downgraded to an
	// ordinary rejection.
	KindInvariantViolation Kind = "INVARIANT_VIOLATION"
)

// Error is a boot contract violation.
type Error struct {
	Kind Kind
	// ExtensionID is the extension whose action violated the contract,
	// empty for violations not attributable to one extension.
	ExtensionID string
	// Capability is the capability name involved, if any.
	Capability string
	Detail     string
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Kind, e.Detail)
	if e.ExtensionID != "" {
		msg = fmt.Sprintf("%s (extension %q)", msg, e.ExtensionID)
	}
	return msg
}

// New builds a tagged boot error.
func New(kind Kind, extensionID, capability, format string, args ...any) *Error {
	return &Error{
		Kind:        kind,
		ExtensionID: extensionID,
		Capability:  capability,
		Detail:      fmt.Sprintf(format, args...),
	}
}

// IsKind reports whether err is a boot error of the given kind.
func IsKind(err error, kind Kind) bool {
	var be *Error
	if !errors.As(err, &be) {
		return false
	}
	return be.Kind == kind
}

// Unrecoverable reports whether err is an invariant violation, the one class
// that aborts the boot regardless of validation policy.
func Unrecoverable(err error) bool {
	return IsKind(err, KindInvariantViolation)
}
