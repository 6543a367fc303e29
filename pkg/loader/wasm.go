package loader

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/skilldag/skilldag/pkg/engine"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
)

// wasmSkill runs an exported function of a compiled WebAssembly module.
//
// The entry point has the signature () -> i32 and returns 0 on success. Inputs are
// written to WASI stdin as a JSON object; a JSON object printed to stdout becomes the
// skill output. Every attempt gets its own module instance.
type wasmSkill struct {
	name        string
	version     string
	description string
	required    []string
	symbol      string
	runtime     wazero.Runtime
	compiled    wazero.CompiledModule
}

// loadWASM compiles the module and checks that the entry point has the expected signature.
func (l *Loader) loadWASM(ctx context.Context, path string, ref Reference) (engine.Skill, error) {
	bin, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, newLoadError(KindFileNotFound, ref.String(), "no such file "+path, err)
	}
	if err != nil {
		return nil, newLoadError(KindFileNotFound, ref.String(), "failed to read "+path, err)
	}

	manifest, _, err := loadManifest(path)
	if err != nil {
		return nil, newLoadError(KindInvalidManifest, ref.String(), "bad manifest", err)
	}
	if err := manifest.verifyChecksum(bin); err != nil {
		return nil, newLoadError(KindInvalidManifest, ref.String(), "module rejected", err)
	}

	runtime, err := l.wasmRuntime(ctx)
	if err != nil {
		return nil, newLoadError(KindInterfaceNotSatisfied, ref.String(), "WASM runtime unavailable", err)
	}

	compiled, err := runtime.CompileModule(ctx, bin)
	if err != nil {
		return nil, newLoadError(KindInterfaceNotSatisfied, ref.String(), "not a valid WASM module", err)
	}

	def, ok := compiled.ExportedFunctions()[ref.Symbol]
	if !ok {
		_ = compiled.Close(ctx)
		return nil, newLoadError(KindSymbolNotFound, ref.String(),
			fmt.Sprintf("module does not export function %s", ref.Symbol), nil)
	}
	if len(def.ParamTypes()) != 0 || len(def.ResultTypes()) != 1 || def.ResultTypes()[0] != api.ValueTypeI32 {
		_ = compiled.Close(ctx)
		return nil, newLoadError(KindInterfaceNotSatisfied, ref.String(),
			fmt.Sprintf("%s must have signature () -> i32, has %s", ref.Symbol, signature(def)), nil)
	}

	skill := &wasmSkill{
		name:        baseName(path),
		version:     "0.0.0",
		description: manifest.Description,
		required:    manifest.RequiredInputs,
		symbol:      ref.Symbol,
		runtime:     runtime,
		compiled:    compiled,
	}
	if manifest.Name != "" {
		skill.name = manifest.Name
	}
	if manifest.Version != "" {
		skill.version = manifest.Version
	}

	l.logger.Debug().
		Str("ref", ref.String()).
		Int("bytes", len(bin)).
		Msg("Compiled WASM skill")

	return engine.Adapt(skill), nil
}

func (s *wasmSkill) Name() string        { return s.name }
func (s *wasmSkill) Version() string     { return s.version }
func (s *wasmSkill) Description() string { return s.description }

func (s *wasmSkill) ValidateInputs(inputs map[string]interface{}) error {
	return engine.RequireInputs(inputs, s.required...)
}

// Run instantiates the module, calls the entry point and decodes stdout.
func (s *wasmSkill) Run(ctx context.Context, ec *engine.ExecutionContext) (map[string]interface{}, error) {
	stdin, err := json.Marshal(ec.Inputs)
	if err != nil {
		return nil, fmt.Errorf("failed to encode inputs: %w", err)
	}

	var stdout, stderr bytes.Buffer
	cfg := wazero.NewModuleConfig().
		WithName("").
		WithStartFunctions().
		WithStdin(bytes.NewReader(stdin)).
		WithStdout(&stdout).
		WithStderr(&stderr).
		WithArgs(ec.SkillName)

	mod, err := s.runtime.InstantiateModule(ctx, s.compiled, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to instantiate WASM module: %w", err)
	}
	defer mod.Close(ctx)

	fn := mod.ExportedFunction(s.symbol)
	if fn == nil {
		return nil, fmt.Errorf("export %s disappeared after instantiation", s.symbol)
	}

	results, err := fn.Call(ctx)
	if err != nil {
		return nil, fmt.Errorf("WASM call failed: %w", err)
	}
	if msg := strings.TrimSpace(stderr.String()); msg != "" {
		ec.Debug("stderr: %s", msg)
	}
	if code := int32(uint32(results[0])); code != 0 {
		return nil, fmt.Errorf("%s returned status %d", s.symbol, code)
	}

	out := make(map[string]interface{})
	if body := bytes.TrimSpace(stdout.Bytes()); len(body) > 0 {
		if err := json.Unmarshal(body, &out); err != nil {
			return nil, fmt.Errorf("stdout is not a JSON object: %w", err)
		}
	}
	return out, nil
}

func signature(def api.FunctionDefinition) string {
	names := func(types []api.ValueType) string {
		parts := make([]string, len(types))
		for i, t := range types {
			parts[i] = api.ValueTypeName(t)
		}
		return strings.Join(parts, ", ")
	}
	return fmt.Sprintf("(%s) -> (%s)", names(def.ParamTypes()), names(def.ResultTypes()))
}
