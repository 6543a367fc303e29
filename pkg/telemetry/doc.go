// Package telemetry provides observability for skilldag runs.
//
// It combines structured logging (zerolog), tracing (OpenTelemetry), metrics
// (Prometheus) and lifecycle events behind a single Telemetry value.
//
// # Usage
//
//	tel, err := telemetry.NewTelemetry(telemetry.DefaultConfig())
//	if err != nil {
//	    return err
//	}
//	defer tel.Shutdown(context.Background())
//
//	exec := engine.NewExecutor(graph,
//	    engine.WithLogger(tel.Logger.NewComponentLogger("executor").Zerolog()),
//	    engine.WithObserver(telemetry.NewRunObserver(tel, wf.Name)),
//	)
//
// RunObserver turns executor callbacks into:
//
//   - a run.execute span with one node.execute child per node, failed attempts
//     recorded as span events
//   - run, node, attempt and retry counters plus duration histograms
//   - run.* and node.* events on the EventPublisher
//
// Skipped and cancelled nodes never start, so their spans open and close in
// NodeFinished.
//
// # Exporters
//
// Tracing is off by default. When enabled the exporter is one of:
//
//   - "otlp": OTLP over gRPC to TracingConfig.Endpoint
//   - "stdout": pretty-printed spans on stderr
//   - "none": spans are sampled but not exported
//
// # Metrics
//
// Metrics live in a private registry. Set MetricsConfig.ListenAddress to
// serve them over HTTP:
//
//   - skilldag_runs_started_total{workflow}
//   - skilldag_runs_completed_total{workflow,status}
//   - skilldag_run_duration_seconds{workflow,status}
//   - skilldag_nodes_finished_total{workflow,status}
//   - skilldag_node_duration_seconds{workflow,node}
//   - skilldag_attempts_failed_total{workflow,node}
//   - skilldag_retries_total{workflow,node}
//   - skilldag_policy_violations_total{policy,severity}
//   - skilldag_active_runs
//
// # Events
//
// Events are delivered inline by default. With EventsConfig.EnableAsync they
// are buffered and delivered in batches from a background goroutine; Flush
// and Shutdown deliver whatever is still buffered.
package telemetry
