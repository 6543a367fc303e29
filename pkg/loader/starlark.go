package loader

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/skilldag/skilldag/pkg/engine"
	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
)

// maxLoadSteps bounds top-level module execution so a runaway module cannot hang Load.
const maxLoadSteps = 10_000_000

// starlarkSkill runs a function defined in a Starlark module. The function receives a
// context struct with the fields inputs, skill and attempt and returns a dict of outputs.
type starlarkSkill struct {
	name        string
	version     string
	description string
	required    []string
	fn          *starlark.Function
	validate    starlark.Callable
}

// loadStarlark executes the module file once and resolves the entry point.
func loadStarlark(path string, ref Reference) (engine.Skill, error) {
	src, err := os.ReadFile(path)
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
	if err := manifest.verifyChecksum(src); err != nil {
		return nil, newLoadError(KindInvalidManifest, ref.String(), "module rejected", err)
	}

	thread := &starlark.Thread{
		Name:  "load:" + filepath.Base(path),
		Print: func(_ *starlark.Thread, msg string) {},
	}
	thread.SetMaxExecutionSteps(maxLoadSteps)

	predeclared := starlark.StringDict{
		"struct": starlarkstruct.Default,
	}
	globals, err := starlark.ExecFile(thread, path, src, predeclared)
	if err != nil {
		return nil, newLoadError(KindInterfaceNotSatisfied, ref.String(), "module failed to execute", err)
	}

	value, ok := globals[ref.Symbol]
	if !ok {
		return nil, newLoadError(KindSymbolNotFound, ref.String(),
			fmt.Sprintf("module %s does not define %s", filepath.Base(path), ref.Symbol), nil)
	}
	fn, ok := value.(*starlark.Function)
	if !ok {
		return nil, newLoadError(KindInterfaceNotSatisfied, ref.String(),
			fmt.Sprintf("%s is a %s, not a function", ref.Symbol, value.Type()), nil)
	}
	if fn.NumParams() != 1 {
		return nil, newLoadError(KindInterfaceNotSatisfied, ref.String(),
			fmt.Sprintf("%s must take exactly one context parameter, takes %d", ref.Symbol, fn.NumParams()), nil)
	}

	skill := &starlarkSkill{
		name:        baseName(path),
		version:     "0.0.0",
		fn:          fn,
		required:    manifest.RequiredInputs,
		description: manifest.Description,
	}
	if manifest.Name != "" {
		skill.name = manifest.Name
	}
	if manifest.Version != "" {
		skill.version = manifest.Version
	}

	if err := skill.applyGlobals(globals); err != nil {
		return nil, newLoadError(KindInterfaceNotSatisfied, ref.String(), "invalid module metadata", err)
	}

	return engine.Adapt(skill), nil
}

// applyGlobals reads the optional NAME, VERSION, DESCRIPTION and REQUIRED_INPUTS
// globals and the optional validate function. Manifest values take precedence.
func (s *starlarkSkill) applyGlobals(globals starlark.StringDict) error {
	str := func(key string, dst *string, keep bool) error {
		v, ok := globals[key]
		if !ok || keep {
			return nil
		}
		sv, ok := starlark.AsString(v)
		if !ok {
			return fmt.Errorf("%s must be a string, got %s", key, v.Type())
		}
		*dst = sv
		return nil
	}
	if err := str("NAME", &s.name, false); err != nil {
		return err
	}
	if err := str("VERSION", &s.version, false); err != nil {
		return err
	}
	if err := str("DESCRIPTION", &s.description, s.description != ""); err != nil {
		return err
	}

	if v, ok := globals["REQUIRED_INPUTS"]; ok && len(s.required) == 0 {
		goVal, err := fromStarlarkValue(v)
		if err != nil {
			return fmt.Errorf("REQUIRED_INPUTS: %w", err)
		}
		list, ok := goVal.([]interface{})
		if !ok {
			return fmt.Errorf("REQUIRED_INPUTS must be a list, got %s", v.Type())
		}
		for _, item := range list {
			key, ok := item.(string)
			if !ok {
				return fmt.Errorf("REQUIRED_INPUTS entries must be strings")
			}
			s.required = append(s.required, key)
		}
	}

	if v, ok := globals["validate"]; ok {
		callable, ok := v.(starlark.Callable)
		if !ok {
			return fmt.Errorf("validate must be callable, got %s", v.Type())
		}
		s.validate = callable
	}
	return nil
}

func (s *starlarkSkill) Name() string        { return s.name }
func (s *starlarkSkill) Version() string     { return s.version }
func (s *starlarkSkill) Description() string { return s.description }

// ValidateInputs checks required inputs, then calls validate(inputs) if defined.
// validate may return None or True to accept, or False or an error string to reject.
func (s *starlarkSkill) ValidateInputs(inputs map[string]interface{}) error {
	if err := engine.RequireInputs(inputs, s.required...); err != nil {
		return err
	}
	if s.validate == nil {
		return nil
	}

	dict, err := toStarlarkValue(inputs)
	if err != nil {
		return fmt.Errorf("failed to convert inputs: %w", err)
	}
	thread := &starlark.Thread{Name: "validate:" + s.name, Print: func(*starlark.Thread, string) {}}
	thread.SetMaxExecutionSteps(maxLoadSteps)

	res, err := starlark.Call(thread, s.validate, starlark.Tuple{dict}, nil)
	if err != nil {
		return fmt.Errorf("validate failed: %w", err)
	}
	switch v := res.(type) {
	case starlark.NoneType:
		return nil
	case starlark.Bool:
		if !bool(v) {
			return fmt.Errorf("inputs rejected by %s", s.name)
		}
		return nil
	case starlark.String:
		if v == "" {
			return nil
		}
		return errors.New(string(v))
	default:
		return fmt.Errorf("validate returned unsupported %s", res.Type())
	}
}

// Run calls the entry point on a fresh thread. print() output goes to the audit trail
// and the thread is cancelled when ctx ends.
func (s *starlarkSkill) Run(ctx context.Context, ec *engine.ExecutionContext) (map[string]interface{}, error) {
	inputs, err := toStarlarkValue(ec.Inputs)
	if err != nil {
		return nil, fmt.Errorf("failed to convert inputs: %w", err)
	}

	thread := &starlark.Thread{
		Name: "skill:" + ec.SkillName,
		Print: func(_ *starlark.Thread, msg string) {
			ec.Debug("%s", msg)
		},
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			thread.Cancel(ctx.Err().Error())
		case <-done:
		}
	}()

	arg := starlarkstruct.FromStringDict(starlark.String("context"), starlark.StringDict{
		"inputs":  inputs,
		"skill":   starlark.String(ec.SkillName),
		"attempt": starlark.MakeInt(ec.Attempt),
	})

	res, err := starlark.Call(thread, s.fn, starlark.Tuple{arg}, nil)
	if err != nil {
		var evalErr *starlark.EvalError
		if errors.As(err, &evalErr) {
			return nil, fmt.Errorf("%s", strings.TrimSpace(evalErr.Msg))
		}
		return nil, err
	}

	switch res.(type) {
	case starlark.NoneType:
		return map[string]interface{}{}, nil
	case *starlark.Dict:
		out, err := fromStarlarkValue(res)
		if err != nil {
			return nil, fmt.Errorf("failed to convert outputs: %w", err)
		}
		return out.(map[string]interface{}), nil
	default:
		return nil, fmt.Errorf("%s must return a dict or None, got %s", s.fn.Name(), res.Type())
	}
}

// toStarlarkValue converts a Go value to a Starlark value.
func toStarlarkValue(v interface{}) (starlark.Value, error) {
	if v == nil {
		return starlark.None, nil
	}

	switch val := v.(type) {
	case bool:
		return starlark.Bool(val), nil
	case int:
		return starlark.MakeInt(val), nil
	case int32:
		return starlark.MakeInt64(int64(val)), nil
	case int64:
		return starlark.MakeInt64(val), nil
	case uint64:
		return starlark.MakeUint64(val), nil
	case float32:
		return starlark.Float(val), nil
	case float64:
		return starlark.Float(val), nil
	case string:
		return starlark.String(val), nil
	case []string:
		list := make([]starlark.Value, len(val))
		for i, item := range val {
			list[i] = starlark.String(item)
		}
		return starlark.NewList(list), nil
	case []interface{}:
		list := make([]starlark.Value, len(val))
		for i, item := range val {
			starlarkItem, err := toStarlarkValue(item)
			if err != nil {
				return nil, err
			}
			list[i] = starlarkItem
		}
		return starlark.NewList(list), nil
	case map[string]interface{}:
		dict := starlark.NewDict(len(val))
		for _, k := range sortedKeys(val) {
			starlarkVal, err := toStarlarkValue(val[k])
			if err != nil {
				return nil, err
			}
			if err := dict.SetKey(starlark.String(k), starlarkVal); err != nil {
				return nil, err
			}
		}
		return dict, nil
	case map[string]string:
		dict := starlark.NewDict(len(val))
		for k, s := range val {
			if err := dict.SetKey(starlark.String(k), starlark.String(s)); err != nil {
				return nil, err
			}
		}
		return dict, nil
	default:
		return nil, fmt.Errorf("unsupported type: %T", v)
	}
}

// fromStarlarkValue converts a Starlark value to a Go value.
func fromStarlarkValue(v starlark.Value) (interface{}, error) {
	switch val := v.(type) {
	case starlark.NoneType:
		return nil, nil
	case starlark.Bool:
		return bool(val), nil
	case starlark.Int:
		i, ok := val.Int64()
		if !ok {
			return nil, fmt.Errorf("integer too large")
		}
		return i, nil
	case starlark.Float:
		return float64(val), nil
	case starlark.String:
		return string(val), nil
	case *starlark.List:
		list := make([]interface{}, val.Len())
		for i := 0; i < val.Len(); i++ {
			item, err := fromStarlarkValue(val.Index(i))
			if err != nil {
				return nil, err
			}
			list[i] = item
		}
		return list, nil
	case starlark.Tuple:
		list := make([]interface{}, len(val))
		for i, item := range val {
			goItem, err := fromStarlarkValue(item)
			if err != nil {
				return nil, err
			}
			list[i] = goItem
		}
		return list, nil
	case *starlark.Dict:
		dict := make(map[string]interface{})
		for _, item := range val.Items() {
			key, ok := item[0].(starlark.String)
			if !ok {
				return nil, fmt.Errorf("dict key must be string")
			}
			value, err := fromStarlarkValue(item[1])
			if err != nil {
				return nil, err
			}
			dict[string(key)] = value
		}
		return dict, nil
	case *starlarkstruct.Struct:
		dict := make(map[string]interface{})
		for _, name := range val.AttrNames() {
			attr, err := val.Attr(name)
			if err != nil {
				continue
			}
			value, err := fromStarlarkValue(attr)
			if err != nil {
				return nil, err
			}
			dict[name] = value
		}
		return dict, nil
	default:
		return nil, fmt.Errorf("unsupported starlark type: %s", v.Type())
	}
}
