package loader

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"github.com/skilldag/skilldag/pkg/engine"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
)

// Module file extensions understood by the loader.
const (
	ExtStarlark = ".star"
	ExtWASM     = ".wasm"
)

// DefaultMemoryLimitPages caps WASM memory at 16MB (64KB pages).
const DefaultMemoryLimitPages = 256

// Loader resolves skill references to engine.Skill instances.
type Loader struct {
	registry         *Registry
	baseDir          string
	logger           zerolog.Logger
	memoryLimitPages uint32

	// mu guards the lazily created WASM runtime.
	mu      sync.Mutex
	runtime wazero.Runtime
}

// Option configures a Loader.
type Option func(*Loader)

// WithBaseDir resolves relative module paths against dir.
func WithBaseDir(dir string) Option {
	return func(l *Loader) { l.baseDir = dir }
}

// WithLogger sets the loader logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(l *Loader) { l.logger = logger.With().Str("component", "loader").Logger() }
}

// WithMemoryLimitPages caps the memory of WASM skills.
func WithMemoryLimitPages(pages uint32) Option {
	return func(l *Loader) { l.memoryLimitPages = pages }
}

// New creates a loader backed by registry. A nil registry gets an empty one.
func New(registry *Registry, opts ...Option) *Loader {
	if registry == nil {
		registry = NewRegistry()
	}
	l := &Loader{
		registry:         registry,
		logger:           zerolog.Nop(),
		memoryLimitPages: DefaultMemoryLimitPages,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Registry returns the registry the loader resolves namespaces against.
func (l *Loader) Registry() *Registry {
	return l.registry
}

// Load resolves ref, confirms the target satisfies the skill contract and
// instantiates it. Failures are always *LoadError.
func (l *Loader) Load(ctx context.Context, ref string) (engine.Skill, error) {
	parsed, err := ParseReference(ref)
	if err != nil {
		return nil, err
	}

	var skill engine.Skill
	switch {
	case strings.EqualFold(extOf(parsed.Location), ExtStarlark):
		skill, err = loadStarlark(l.resolve(parsed.Location), parsed)
	case strings.EqualFold(extOf(parsed.Location), ExtWASM):
		skill, err = l.loadWASM(ctx, l.resolve(parsed.Location), parsed)
	case parsed.IsFile():
		err = newLoadError(KindInvalidReference, parsed.String(),
			fmt.Sprintf("unsupported module type %q (want %s or %s)", extOf(parsed.Location), ExtStarlark, ExtWASM), nil)
	default:
		skill, err = l.registry.load(parsed)
	}
	if err != nil {
		l.logger.Debug().Err(err).Str("ref", ref).Msg("Skill load failed")
		return nil, err
	}

	l.logger.Debug().Str("ref", parsed.String()).Str("skill", skill.Name()).Msg("Skill loaded")
	return skill, nil
}

// LoadAll loads every reference and reports all failures together.
// It returns no skills unless every reference loaded.
func (l *Loader) LoadAll(ctx context.Context, refs map[string]string) (map[string]engine.Skill, error) {
	names := sortedKeys(refs)
	skills := make(map[string]engine.Skill, len(refs))
	var errs []error
	for _, name := range names {
		skill, err := l.Load(ctx, refs[name])
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			continue
		}
		skills[name] = skill
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return skills, nil
}

// Close releases the WASM runtime and every module compiled by it.
func (l *Loader) Close(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.runtime == nil {
		return nil
	}
	err := l.runtime.Close(ctx)
	l.runtime = nil
	return err
}

// wasmRuntime returns the shared runtime, creating it with WASI on first use.
func (l *Loader) wasmRuntime(ctx context.Context) (wazero.Runtime, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.runtime != nil {
		return l.runtime, nil
	}

	runtimeConfig := wazero.NewRuntimeConfig().
		WithMemoryLimitPages(l.memoryLimitPages).
		WithCloseOnContextDone(true)

	// The runtime outlives the load call, so it must not be bound to ctx.
	runtime := wazero.NewRuntimeWithConfig(context.WithoutCancel(ctx), runtimeConfig)

	if _, err := wasi_snapshot_preview1.Instantiate(ctx, runtime); err != nil {
		runtime.Close(ctx)
		return nil, fmt.Errorf("failed to instantiate WASI: %w", err)
	}

	l.runtime = runtime
	return runtime, nil
}

func (l *Loader) resolve(location string) string {
	if filepath.IsAbs(location) || l.baseDir == "" {
		return location
	}
	return filepath.Join(l.baseDir, location)
}

func extOf(path string) string {
	return filepath.Ext(path)
}

func baseName(path string) string {
	return strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
