package loader

import (
	"path/filepath"
	"strings"
)

const (
	// Separator splits a reference into location and symbol.
	Separator = "::"

	// DefaultSymbol is used when a reference names no symbol.
	DefaultSymbol = "run"
)

// Reference identifies a loadable skill: "<location>::<symbol>".
type Reference struct {
	// Location is a registry namespace or a path to a .star or .wasm file.
	Location string

	// Symbol names the factory or function inside Location.
	Symbol string
}

// String renders the reference in its canonical form.
func (r Reference) String() string {
	return r.Location + Separator + r.Symbol
}

// IsFile reports whether the location points at a module file rather than a registry namespace.
func (r Reference) IsFile() bool {
	switch strings.ToLower(filepath.Ext(r.Location)) {
	case ExtStarlark, ExtWASM:
		return true
	}
	return strings.ContainsAny(r.Location, `/\`)
}

// ParseReference splits ref at the last separator. A missing symbol defaults to DefaultSymbol.
func ParseReference(ref string) (Reference, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return Reference{}, newLoadError(KindInvalidReference, ref, "empty reference", nil)
	}

	location, symbol := ref, ""
	if i := strings.LastIndex(ref, Separator); i >= 0 {
		location, symbol = ref[:i], ref[i+len(Separator):]
		if symbol == "" {
			return Reference{}, newLoadError(KindInvalidReference, ref, "empty symbol after separator", nil)
		}
	}
	location = strings.TrimSpace(location)
	symbol = strings.TrimSpace(symbol)

	if location == "" {
		return Reference{}, newLoadError(KindInvalidReference, ref, "empty location", nil)
	}
	if strings.Contains(symbol, Separator) || strings.ContainsAny(symbol, `/\ `) {
		return Reference{}, newLoadError(KindInvalidReference, ref, "malformed symbol "+symbol, nil)
	}
	if symbol == "" {
		symbol = DefaultSymbol
	}

	return Reference{Location: location, Symbol: symbol}, nil
}
