package telemetry_test

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/skilldag/skilldag/pkg/engine"
	"github.com/skilldag/skilldag/pkg/telemetry"
)

// Example_runObserver demonstrates reporting a run as events.
func Example_runObserver() {
	cfg := telemetry.DefaultConfig()
	cfg.Logging.Level = "error"

	tel, err := telemetry.NewTelemetry(cfg)
	if err != nil {
		panic(err)
	}
	defer tel.Shutdown(context.Background())

	tel.Events.Subscribe(func(event telemetry.Event) {
		fmt.Printf("%s %s\n", event.Type, event.Node)
	}, telemetry.FilterByType(telemetry.EventTypeNodeCompleted, telemetry.EventTypeNodeFailed, telemetry.EventTypeNodeSkipped))

	ok := func(_ context.Context, _ *engine.ExecutionContext) (map[string]interface{}, error) {
		return map[string]interface{}{}, nil
	}
	broken := func(_ context.Context, _ *engine.ExecutionContext) (map[string]interface{}, error) {
		return nil, errors.New("connection refused")
	}

	graph, err := engine.NewBuilder().
		AddSkill(engine.NewSkill("fetch", ok)).
		AddSkill(engine.NewSkill("upload", broken)).
		AddSkill(engine.NewSkill("notify", ok)).
		AddDependency("fetch", "upload").
		AddDependency("upload", "notify").
		SetNodeRetryConfig("upload", engine.RetryConfig{MaxRetries: 1, Strategy: engine.BackoffFixed}).
		Build()
	if err != nil {
		panic(err)
	}

	exec := engine.NewExecutor(graph, engine.WithObserver(telemetry.NewRunObserver(tel, "backup")))
	if _, err := exec.Execute(context.Background(), nil); err != nil {
		panic(err)
	}

	// Output:
	// node.completed fetch
	// node.failed upload
	// node.skipped notify
}

// Example_eventFiltering demonstrates subscriber filters.
func Example_eventFiltering() {
	cfg := telemetry.DefaultConfig()

	tel, _ := telemetry.NewTelemetry(cfg)
	defer tel.Shutdown(context.Background())

	tel.Events.Subscribe(func(event telemetry.Event) {
		fmt.Printf("Important event: %s\n", event.Type)
	}, telemetry.FilterByLevel(telemetry.EventLevelWarning))

	_ = tel.Events.PublishRunStarted("run-123", "nightly", 3)
	_ = tel.Events.PublishNodeRetry("run-123", "nightly", "fetch", 0, time.Second, "timeout")
	_ = tel.Events.PublishRunFailed("run-123", "nightly", []string{"fetch"})

	// Output:
	// Important event: node.retry
	// Important event: run.failed
}

// Example_instrumentedOperation demonstrates the InstrumentedContext helper.
func Example_instrumentedOperation() {
	cfg := telemetry.DefaultConfig()
	cfg.Logging.Level = "error"

	tel, _ := telemetry.NewTelemetry(cfg)
	defer tel.Shutdown(context.Background())

	ctx := tel.WithContext(context.Background())

	ic := telemetry.StartOperation(ctx, "workflow.validate",
		attribute.String("workflow.path", "nightly.yaml"),
	)
	ic.Logger.Debug("Validating workflow")
	ic.End(nil)

	fmt.Println("Operation instrumentation complete")
	// Output: Operation instrumentation complete
}

// Example_productionConfiguration demonstrates production-ready configuration.
func Example_productionConfiguration() {
	cfg := telemetry.ProductionConfig()
	cfg.ServiceVersion = "1.2.3"
	cfg.Tracing.Endpoint = "otel-collector.monitoring.svc.cluster.local:4317"
	cfg.Events.BufferSize = 10000

	if err := cfg.Validate(); err != nil {
		panic(err)
	}

	fmt.Println("Production configuration validated")
	// Output: Production configuration validated
}
