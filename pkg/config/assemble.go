package config

import (
	"context"
	"fmt"
	"time"

	"github.com/skilldag/skilldag/pkg/engine"
	"github.com/skilldag/skilldag/pkg/loader"
)

// Assemble loads every skill the workflow references and builds the graph.
// Load failures are reported together; structural problems come back as the
// builder's *engine.ValidationError.
func Assemble(ctx context.Context, wf *WorkflowSpec, l *loader.Loader) (*engine.Graph, error) {
	skills, err := l.LoadAll(ctx, wf.References())
	if err != nil {
		return nil, fmt.Errorf("failed to load skills: %w", err)
	}

	b := engine.NewBuilder()

	if wf.Retry != nil {
		rc, err := wf.Retry.ToRetryConfig()
		if err != nil {
			return nil, fmt.Errorf("workflow retry: %w", err)
		}
		b.SetRetryConfig(rc)
	}

	for _, s := range wf.Skills {
		b.AddSkillAs(s.Name, skills[s.Name])
	}
	for _, s := range wf.Skills {
		for _, dep := range s.DependsOn {
			b.AddDependency(dep, s.Name)
		}
		if len(s.Config) > 0 {
			b.ConfigureSkill(s.Name, s.Config)
		}
		if len(s.MapInput) > 0 {
			b.MapInput(s.Name, s.MapInput)
		}
		if s.Retry != nil {
			rc, err := s.Retry.ToRetryConfig()
			if err != nil {
				return nil, fmt.Errorf("skill %s retry: %w", s.Name, err)
			}
			b.SetNodeRetryConfig(s.Name, rc)
		}
	}

	return b.Build()
}

// ExecutorOptions returns the executor options the workflow asks for.
func ExecutorOptions(wf *WorkflowSpec) ([]engine.ExecutorOption, error) {
	var opts []engine.ExecutorOption

	if wf.Mode != "" {
		opts = append(opts, engine.WithMode(engine.ExecutionMode(wf.Mode)))
	}
	if wf.Timeout != "" {
		d, err := time.ParseDuration(wf.Timeout)
		if err != nil {
			return nil, fmt.Errorf("invalid timeout: %w", err)
		}
		opts = append(opts, engine.WithTimeout(d))
	}
	if wf.NodeTimeout != "" {
		d, err := time.ParseDuration(wf.NodeTimeout)
		if err != nil {
			return nil, fmt.Errorf("invalid node_timeout: %w", err)
		}
		opts = append(opts, engine.WithNodeTimeout(d))
	}

	return opts, nil
}
