// Package loader turns skill references into engine.Skill instances.
//
// A reference has the form "<location>::<symbol>". When the symbol is omitted it
// defaults to "run". The location selects a backend:
//
//   - a registered namespace such as "builtin" resolves through the Registry
//   - a path ending in .star is executed as a Starlark module and the symbol names
//     a function taking one context argument
//   - a path ending in .wasm is compiled with wazero and the symbol names an
//     exported function with signature () -> i32
//
// Module files may carry a sidecar YAML manifest ("render.star" pairs with
// "render.yaml") that sets the skill name, version, description, required inputs
// and an optional sha256 checksum of the module.
//
// Every failure is a *LoadError whose Kind tells apart a malformed reference, a
// missing file or namespace, a missing symbol, and a symbol that does not satisfy
// the skill contract:
//
//	l := loader.New(registry, loader.WithBaseDir("skills"))
//	defer l.Close(ctx)
//
//	skill, err := l.Load(ctx, "render.star::render")
//	if loader.IsSymbolNotFound(err) {
//	    ...
//	}
package loader
