package commands

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gofrs/flock"

	"github.com/skilldag/skilldag/pkg/engine"
	"github.com/skilldag/skilldag/pkg/stores"
	"github.com/skilldag/skilldag/pkg/telemetry"
)

const pipelineYAML = `name: pipeline
timeout: 1m
inputs:
  message: hello
skills:
  - name: fetch
    uses: builtin::echo
  - name: shout
    uses: builtin::transform
    depends_on: [fetch]
    config:
      op: upper
    map_input:
      fetch.message: value
`

const brokenYAML = `name: broken
timeout: 1m
retry:
  max_retries: 2
  strategy: fixed
  base_delay: 1ms
skills:
  - name: first
    uses: builtin::fail
  - name: second
    uses: builtin::echo
    depends_on: [first]
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write %s: %v", name, err)
	}
	return path
}

func newTestRunner(t *testing.T, path string) (*runner, *stores.SQLiteStore) {
	t.Helper()
	ctx := context.Background()

	cfg := telemetry.DefaultConfig()
	cfg.Logging.Level = "error"
	tel, err := telemetry.NewTelemetry(cfg)
	if err != nil {
		t.Fatalf("Failed to create telemetry: %v", err)
	}
	t.Cleanup(func() { _ = tel.Shutdown(context.Background()) })

	store, err := stores.NewSQLiteStore(stores.Config{Path: ":memory:"})
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	if err := store.Init(ctx); err != nil {
		t.Fatalf("Failed to init store: %v", err)
	}
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("Failed to migrate store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	policies, err := newPolicyEngine(ctx)
	if err != nil {
		t.Fatalf("Failed to create policy engine: %v", err)
	}

	return &runner{
		path:     path,
		policies: policies,
		tel:      tel,
		store:    store,
	}, store
}

func TestRunOnce(t *testing.T) {
	r, store := newTestRunner(t, writeFile(t, "pipeline.yaml", pipelineYAML))
	ctx := context.Background()

	result, err := r.runOnce(ctx)
	if err != nil {
		t.Fatalf("runOnce failed: %v", err)
	}

	shout, ok := result.Result("shout")
	if !ok {
		t.Fatal("Expected a result for shout")
	}
	if shout.Output["value"] != "HELLO" {
		t.Errorf("Expected shout output HELLO, got %v", shout.Output["value"])
	}

	runs, err := store.ListRuns(ctx, stores.RunFilter{Workflow: "pipeline"})
	if err != nil {
		t.Fatalf("ListRuns failed: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("Expected 1 recorded run, got %d", len(runs))
	}
	if runs[0].ID != result.RunID {
		t.Errorf("Expected recorded run %s, got %s", result.RunID, runs[0].ID)
	}
	if runs[0].Source != r.path {
		t.Errorf("Expected source %s, got %s", r.path, runs[0].Source)
	}
}

func TestRunOnce_InputOverride(t *testing.T) {
	r, _ := newTestRunner(t, writeFile(t, "pipeline.yaml", pipelineYAML))
	r.inputs = map[string]string{"message": "bye"}

	result, err := r.runOnce(context.Background())
	if err != nil {
		t.Fatalf("runOnce failed: %v", err)
	}

	shout, _ := result.Result("shout")
	if shout.Output["value"] != "BYE" {
		t.Errorf("Expected shout output BYE, got %v", shout.Output["value"])
	}
}

func TestRunOnce_Failure(t *testing.T) {
	r, store := newTestRunner(t, writeFile(t, "broken.yaml", brokenYAML))
	ctx := context.Background()

	result, err := r.runOnce(ctx)
	if err == nil {
		t.Fatal("Expected an error for a failed run")
	}
	if result == nil {
		t.Fatal("Expected a result for a failed run")
	}
	if result.Status != engine.StatusFailed {
		t.Errorf("Expected status failed, got %s", result.Status)
	}
	if got := result.Skipped; len(got) != 1 || got[0] != "second" {
		t.Errorf("Expected [second] skipped, got %v", got)
	}

	runs, err := store.ListRuns(ctx, stores.RunFilter{Status: engine.StatusFailed})
	if err != nil {
		t.Fatalf("ListRuns failed: %v", err)
	}
	if len(runs) != 1 {
		t.Errorf("Expected the failed run to be recorded, got %d runs", len(runs))
	}
}

func TestRunOnce_PolicyBlocked(t *testing.T) {
	r, store := newTestRunner(t, writeFile(t, "broken.yaml", brokenYAML))
	r.environment = "production"
	ctx := context.Background()

	_, err := r.runOnce(ctx)
	if err == nil || !strings.Contains(err.Error(), "blocked by") {
		t.Fatalf("Expected a policy block, got %v", err)
	}

	runs, _ := store.ListRuns(ctx, stores.RunFilter{})
	if len(runs) != 0 {
		t.Errorf("Expected no run to be recorded, got %d", len(runs))
	}
}

func TestRunCommand_Locked(t *testing.T) {
	path := writeFile(t, "pipeline.yaml", pipelineYAML)

	held := flock.New(path + ".lock")
	locked, err := held.TryLock()
	if err != nil || !locked {
		t.Fatalf("Failed to take the lock: %v", err)
	}
	defer held.Unlock()

	cmd := newRootCommand("test", "none", "today")
	cmd.SetArgs([]string{"run", "--no-history", path})

	err = cmd.ExecuteContext(context.Background())
	if err == nil || !strings.Contains(err.Error(), "already running") {
		t.Errorf("Expected an already running error, got %v", err)
	}
}

func TestValidateCommand(t *testing.T) {
	tests := []struct {
		name    string
		content string
		args    []string
		wantErr bool
	}{
		{"valid", pipelineYAML, nil, false},
		{"unknown skill", strings.Replace(pipelineYAML, "builtin::echo", "builtin::nope", 1), nil, true},
		{"cycle", strings.Replace(pipelineYAML, "builtin::echo\n", "builtin::echo\n    depends_on: [shout]\n", 1), nil, true},
		{"skill retry", pipelineYAML + "    retry:\n      max_retries: 1\n", nil, false},
		{"production blocks test skills", brokenYAML, []string{"--env", "production"}, true},
		{"skip policy", brokenYAML, []string{"--env", "production", "--skip-policy"}, false},
		{"syntax", "name: [", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, "wf.yaml", tt.content)

			cmd := newRootCommand("test", "none", "today")
			cmd.SetArgs(append(append([]string{"validate"}, tt.args...), path))

			err := cmd.ExecuteContext(context.Background())
			if tt.wantErr && err == nil {
				t.Error("Expected an error")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("Expected no error, got %v", err)
			}
		})
	}
}

func TestHistoryCommands(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, "pipeline.yaml", pipelineYAML)

	run := func(args ...string) error {
		cmd := newRootCommand("test", "none", "today")
		cmd.SetArgs(append(args, "--history", filepath.Join(dir, "history.db")))
		return cmd.ExecuteContext(context.Background())
	}

	for i := 0; i < 3; i++ {
		if err := run("run", path); err != nil {
			t.Fatalf("run %d failed: %v", i, err)
		}
	}

	if err := run("history", "list", "--workflow", "pipeline"); err != nil {
		t.Errorf("history list failed: %v", err)
	}
	if err := run("history", "prune", "--workflow", "pipeline", "--keep", "1"); err != nil {
		t.Errorf("history prune failed: %v", err)
	}
	if err := run("history", "show", "no-such-run"); err == nil {
		t.Error("Expected history show of an unknown run to fail")
	}

	store, err := stores.NewSQLiteStore(stores.Config{Path: filepath.Join(dir, "history.db")})
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	if err := store.Init(context.Background()); err != nil {
		t.Fatalf("Failed to init store: %v", err)
	}
	defer store.Close()

	runs, err := store.ListRuns(context.Background(), stores.RunFilter{Workflow: "pipeline"})
	if err != nil {
		t.Fatalf("ListRuns failed: %v", err)
	}
	if len(runs) != 1 {
		t.Errorf("Expected 1 run after pruning, got %d", len(runs))
	}
}

func TestPrintSummary(t *testing.T) {
	start := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	result := &engine.DAGExecutionResult{
		RunID:  "run-1",
		Status: engine.StatusFailed,
		Results: []*engine.SkillResult{
			{SkillName: "fetch", Status: engine.StatusCompleted, RetryCount: 1, Duration: 12 * time.Millisecond, StartedAt: start},
			{SkillName: "parse", Status: engine.StatusFailed, RetryCount: 3, Error: "malformed page", StartedAt: start},
			{SkillName: "publish", Status: engine.StatusSkipped, Error: "skipped: dependency parse failed"},
		},
		Duration: 1500 * time.Millisecond,
	}

	var buf bytes.Buffer
	printSummary(&buf, "pipeline", result)
	out := buf.String()

	for _, want := range []string{
		"pipeline",
		"run run-1",
		"after 1 retries",
		"3 attempts: malformed page",
		"skipped: dependency parse failed",
		"3 nodes: 1 completed, 1 failed, 1 skipped, 0 cancelled (4 retries)",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected summary to contain %q, got:\n%s", want, out)
		}
	}
}
