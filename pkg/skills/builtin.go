package skills

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/skilldag/skilldag/pkg/engine"
)

// NewEcho returns a skill that copies every input to its outputs.
func NewEcho() engine.Skill {
	return engine.NewSkill("echo", func(ctx context.Context, ec *engine.ExecutionContext) (map[string]interface{}, error) {
		keys := make([]string, 0, len(ec.Inputs))
		for k := range ec.Inputs {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		for _, k := range keys {
			ec.SetOutput(k, ec.Inputs[k])
		}
		ec.Debug("echoed %d inputs", len(keys))
		return nil, nil
	},
		engine.WithVersion(Version),
		engine.WithDescription("Copies its inputs to its outputs"),
	)
}

// NewFail returns a skill that always fails with the "message" input.
func NewFail() engine.Skill {
	return engine.NewSkill("fail", func(ctx context.Context, ec *engine.ExecutionContext) (map[string]interface{}, error) {
		msg := ec.InputString("message")
		if msg == "" {
			msg = "intentional failure"
		}
		ec.Error("%s", msg)
		return nil, errors.New(msg)
	},
		engine.WithVersion(Version),
		engine.WithDescription("Always fails; used to exercise retry and cascade-stop"),
	)
}

// NewFlaky returns a skill that fails its first "failures" attempts (default 1)
// and then succeeds, reporting the attempt that succeeded.
func NewFlaky() engine.Skill {
	return engine.NewSkill("flaky", func(ctx context.Context, ec *engine.ExecutionContext) (map[string]interface{}, error) {
		failures, err := intInput(ec.Inputs, "failures", 1)
		if err != nil {
			return nil, err
		}
		if ec.Attempt < failures {
			return nil, fmt.Errorf("transient failure on attempt %d of %d", ec.Attempt+1, failures+1)
		}
		return map[string]interface{}{"succeeded_on_attempt": ec.Attempt}, nil
	},
		engine.WithVersion(Version),
		engine.WithDescription("Fails a configurable number of attempts before succeeding"),
		engine.WithValidator(func(inputs map[string]interface{}) error {
			n, err := intInput(inputs, "failures", 1)
			if err != nil {
				return err
			}
			if n < 0 {
				return fmt.Errorf("failures must be non-negative, got %d", n)
			}
			return nil
		}),
	)
}

// NewSleep returns a skill that waits for the "duration" input. The wait ends early
// with an error when ctx is done.
func NewSleep() engine.Skill {
	return engine.NewSkill("sleep", func(ctx context.Context, ec *engine.ExecutionContext) (map[string]interface{}, error) {
		d, err := durationInput(ec.Inputs, "duration")
		if err != nil {
			return nil, err
		}

		timer := time.NewTimer(d)
		defer timer.Stop()

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("sleep interrupted: %w", ctx.Err())
		case <-timer.C:
		}
		return map[string]interface{}{"slept": d.String()}, nil
	},
		engine.WithVersion(Version),
		engine.WithDescription("Waits for a duration"),
		engine.WithRequiredInputs("duration"),
		engine.WithValidator(func(inputs map[string]interface{}) error {
			_, err := durationInput(inputs, "duration")
			return err
		}),
	)
}

// transformOps are the operations understood by the transform skill.
var transformOps = map[string]func(string, map[string]interface{}) string{
	"upper": func(s string, _ map[string]interface{}) string { return strings.ToUpper(s) },
	"lower": func(s string, _ map[string]interface{}) string { return strings.ToLower(s) },
	"trim":  func(s string, _ map[string]interface{}) string { return strings.TrimSpace(s) },
	"reverse": func(s string, _ map[string]interface{}) string {
		r := []rune(s)
		for i, j := 0, len(r)-1; i < j; i, j = i+1, j-1 {
			r[i], r[j] = r[j], r[i]
		}
		return string(r)
	},
	"prefix": func(s string, in map[string]interface{}) string { return fmt.Sprint(in["with"]) + s },
	"suffix": func(s string, in map[string]interface{}) string { return s + fmt.Sprint(in["with"]) },
}

// NewTransform returns a skill that applies the "op" input to the "value" input and
// writes the result to the output named by "as" (default "value").
func NewTransform() engine.Skill {
	return engine.NewSkill("transform", func(ctx context.Context, ec *engine.ExecutionContext) (map[string]interface{}, error) {
		op := transformOps[ec.InputString("op")]
		out := op(ec.InputString("value"), ec.Inputs)

		key := ec.InputString("as")
		if key == "" {
			key = "value"
		}
		ec.SetOutput(key, out)
		return nil, nil
	},
		engine.WithVersion(Version),
		engine.WithDescription("Applies a string operation (upper, lower, trim, reverse, prefix, suffix) to a value"),
		engine.WithRequiredInputs("op", "value"),
		engine.WithValidator(func(inputs map[string]interface{}) error {
			op, _ := inputs["op"].(string)
			if _, ok := transformOps[op]; !ok {
				return fmt.Errorf("unknown op %q", op)
			}
			if op == "prefix" || op == "suffix" {
				if _, ok := inputs["with"]; !ok {
					return fmt.Errorf("op %s requires input \"with\"", op)
				}
			}
			return nil
		}),
	)
}

// intInput reads an integer input that may arrive as any numeric type or a string.
func intInput(inputs map[string]interface{}, key string, def int) (int, error) {
	v, ok := inputs[key]
	if !ok || v == nil {
		return def, nil
	}
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		if n != float64(int(n)) {
			return 0, fmt.Errorf("%s must be a whole number, got %v", key, n)
		}
		return int(n), nil
	case string:
		var i int
		if _, err := fmt.Sscanf(n, "%d", &i); err != nil {
			return 0, fmt.Errorf("%s must be an integer, got %q", key, n)
		}
		return i, nil
	default:
		return 0, fmt.Errorf("%s must be an integer, got %T", key, v)
	}
}

// durationInput reads a duration given as a Go duration string or as milliseconds.
func durationInput(inputs map[string]interface{}, key string) (time.Duration, error) {
	v, ok := inputs[key]
	if !ok {
		return 0, fmt.Errorf("missing input %s", key)
	}
	var d time.Duration
	switch x := v.(type) {
	case string:
		parsed, err := time.ParseDuration(x)
		if err != nil {
			return 0, fmt.Errorf("invalid %s: %w", key, err)
		}
		d = parsed
	case time.Duration:
		d = x
	default:
		ms, err := intInput(inputs, key, 0)
		if err != nil {
			return 0, err
		}
		d = time.Duration(ms) * time.Millisecond
	}
	if d < 0 {
		return 0, fmt.Errorf("%s must not be negative", key)
	}
	return d, nil
}
