package stores_test

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/skilldag/skilldag/pkg/engine"
	"github.com/skilldag/skilldag/pkg/stores"
)

// ExampleNewSQLiteStore demonstrates creating and initializing a new SQLite store.
func ExampleNewSQLiteStore() {
	store, err := stores.NewSQLiteStore(stores.Config{
		Path: ":memory:", // Use in-memory database for example
	})
	if err != nil {
		log.Fatal(err)
	}

	ctx := context.Background()
	if err := store.Init(ctx); err != nil {
		log.Fatal(err)
	}

	if err := store.Migrate(ctx); err != nil {
		log.Fatal(err)
	}

	defer store.Close()

	fmt.Println("Store initialized successfully")
	// Output: Store initialized successfully
}

// ExampleSQLiteStore_SaveResult demonstrates recording a run and reading it back.
func ExampleSQLiteStore_SaveResult() {
	store, _ := stores.NewSQLiteStore(stores.Config{Path: ":memory:"})
	ctx := context.Background()
	_ = store.Init(ctx)
	_ = store.Migrate(ctx)
	defer store.Close()

	greet := engine.NewSkill("greet", func(_ context.Context, ec *engine.ExecutionContext) (map[string]interface{}, error) {
		return map[string]interface{}{"greeting": "hello " + ec.InputString("name")}, nil
	})
	graph, err := engine.NewBuilder().AddSkill(greet).Build()
	if err != nil {
		log.Fatal(err)
	}

	result, err := engine.NewExecutor(graph).Execute(ctx, map[string]interface{}{"name": "world"})
	if err != nil {
		log.Fatal(err)
	}

	run, err := store.SaveResult(ctx, "hello", "hello.yaml", result, nil)
	if err != nil {
		log.Fatal(err)
	}

	records, err := store.ListSkillResults(ctx, run.ID)
	if err != nil {
		log.Fatal(err)
	}

	fmt.Printf("Run status: %s, nodes: %d\n", run.Status, run.Summary.Total)
	fmt.Printf("%s: %v\n", records[0].Node, records[0].Output["greeting"])
	// Output:
	// Run status: completed, nodes: 1
	// greet: hello world
}

// ExampleSQLiteStore_ListRuns demonstrates browsing run history for one workflow.
func ExampleSQLiteStore_ListRuns() {
	store, _ := stores.NewSQLiteStore(stores.Config{Path: ":memory:"})
	ctx := context.Background()
	_ = store.Init(ctx)
	_ = store.Migrate(ctx)
	defer store.Close()

	start := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	for i, status := range []engine.ExecutionStatus{engine.StatusCompleted, engine.StatusFailed} {
		_, err := store.SaveResult(ctx, "nightly", "", &engine.DAGExecutionResult{
			RunID:       fmt.Sprintf("run-%03d", i+1),
			Status:      status,
			StartedAt:   start.Add(time.Duration(i) * time.Hour),
			CompletedAt: start.Add(time.Duration(i)*time.Hour + time.Minute),
			Duration:    time.Minute,
		}, nil)
		if err != nil {
			log.Fatal(err)
		}
	}

	runs, err := store.ListRuns(ctx, stores.RunFilter{Workflow: "nightly"})
	if err != nil {
		log.Fatal(err)
	}

	for _, run := range runs {
		fmt.Printf("%s %s %s\n", run.ID, run.Status, run.Duration)
	}
	// Output:
	// run-002 failed 1m0s
	// run-001 completed 1m0s
}
