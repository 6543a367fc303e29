package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/user"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"github.com/skilldag/skilldag/pkg/config"
	"github.com/skilldag/skilldag/pkg/engine"
	"github.com/skilldag/skilldag/pkg/loader"
	"github.com/skilldag/skilldag/pkg/policy"
	"github.com/skilldag/skilldag/pkg/skills"
	"github.com/skilldag/skilldag/pkg/stores"
)

// workflow is a parsed workflow file with its skills loaded and its graph built.
type workflow struct {
	path   string
	spec   *config.WorkflowSpec
	graph  *engine.Graph
	loader *loader.Loader
}

// openWorkflow parses path and assembles its graph. Relative skill paths resolve
// against the directory of the workflow file.
func openWorkflow(ctx context.Context, path string) (*workflow, error) {
	spec, err := config.LoadWorkflow(ctx, path)
	if err != nil {
		return nil, err
	}

	l := newLoader(filepath.Dir(path))
	graph, err := config.Assemble(ctx, spec, l)
	if err != nil {
		_ = l.Close(ctx)
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return &workflow{path: path, spec: spec, graph: graph, loader: l}, nil
}

func (w *workflow) Close(ctx context.Context) error {
	return w.loader.Close(ctx)
}

func newLoader(baseDir string) *loader.Loader {
	return loader.New(skills.NewRegistry(),
		loader.WithBaseDir(baseDir),
		loader.WithLogger(log.Logger),
	)
}

// newPolicyEngine returns the built-in policies plus any loaded from --policy.
func newPolicyEngine(ctx context.Context) (*policy.Engine, error) {
	eng, err := policy.NewEngine(log.Logger)
	if err != nil {
		return nil, err
	}
	if len(policyPaths) > 0 {
		if err := eng.LoadPolicies(ctx, policyPaths); err != nil {
			return nil, err
		}
	}
	return eng, nil
}

// checkPolicies evaluates the workflow and prints what it finds. It returns an
// error when a blocking violation was found.
func checkPolicies(ctx context.Context, eng *policy.Engine, wf *workflow, operation, environment string) (*policy.Result, error) {
	result, err := eng.EvaluateWorkflow(ctx, wf.spec, wf.graph, &policy.Context{
		User:        currentUser(),
		Environment: environment,
		Operation:   operation,
	})
	if err != nil {
		return nil, fmt.Errorf("policy evaluation failed: %w", err)
	}

	for _, e := range result.Errors {
		log.Warn().Str("error", e).Msg("Policy could not be evaluated")
	}
	if len(result.Warnings) > 0 {
		fmt.Fprint(os.Stderr, policy.FormatViolations(result.Warnings))
	}
	if !result.Allowed {
		fmt.Fprint(os.Stderr, policy.FormatViolations(result.Violations))
		return result, fmt.Errorf("workflow %s blocked by %d policy violation(s)", wf.spec.Name, len(result.Violations))
	}
	return result, nil
}

// openHistory opens the run history database, creating it if needed.
func openHistory(ctx context.Context) (*stores.SQLiteStore, error) {
	if dir := filepath.Dir(historyPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create history directory: %w", err)
		}
	}

	store, err := stores.NewSQLiteStore(stores.Config{Path: historyPath})
	if err != nil {
		return nil, err
	}
	if err := store.Init(ctx); err != nil {
		return nil, err
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, err
	}
	return store, nil
}

func currentUser() string {
	if u, err := user.Current(); err == nil {
		return u.Username
	}
	return os.Getenv("USER")
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
