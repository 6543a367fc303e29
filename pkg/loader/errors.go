package loader

import (
	"errors"
	"fmt"
)

// ErrorKind distinguishes why a skill reference could not be loaded, so callers
// can decide between skipping a skill and aborting.
type ErrorKind string

const (
	// KindInvalidReference means the reference string is malformed.
	KindInvalidReference ErrorKind = "invalid_reference"

	// KindFileNotFound means the location does not resolve to a file or registered namespace.
	KindFileNotFound ErrorKind = "file_not_found"

	// KindSymbolNotFound means the location exists but does not define the symbol.
	KindSymbolNotFound ErrorKind = "symbol_not_found"

	// KindInterfaceNotSatisfied means the symbol exists but is not a usable skill.
	KindInterfaceNotSatisfied ErrorKind = "interface_not_satisfied"

	// KindInvalidManifest means a sidecar manifest could not be parsed or did not match.
	KindInvalidManifest ErrorKind = "invalid_manifest"

	// KindInstantiationFailed means a registered factory returned an error.
	KindInstantiationFailed ErrorKind = "instantiation_failed"
)

// LoadError is returned for every loader failure. No partially loaded skill is
// returned alongside it.
type LoadError struct {
	// Kind classifies the failure.
	Kind ErrorKind

	// Ref is the reference being loaded.
	Ref string

	// Message describes the failure.
	Message string

	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (e *LoadError) Error() string {
	msg := fmt.Sprintf("load %q: %s: %s", e.Ref, e.Kind, e.Message)
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *LoadError) Unwrap() error {
	return e.Err
}

func newLoadError(kind ErrorKind, ref, message string, err error) *LoadError {
	return &LoadError{Kind: kind, Ref: ref, Message: message, Err: err}
}

// KindOf returns the kind of a LoadError in err's chain, or "".
func KindOf(err error) ErrorKind {
	var le *LoadError
	if errors.As(err, &le) {
		return le.Kind
	}
	return ""
}

// IsFileNotFound reports whether err is a file-not-found load error.
func IsFileNotFound(err error) bool {
	return KindOf(err) == KindFileNotFound
}

// IsSymbolNotFound reports whether err is a symbol-not-found load error.
func IsSymbolNotFound(err error) bool {
	return KindOf(err) == KindSymbolNotFound
}

// IsInterfaceNotSatisfied reports whether err is an interface-not-satisfied load error.
func IsInterfaceNotSatisfied(err error) bool {
	return KindOf(err) == KindInterfaceNotSatisfied
}
