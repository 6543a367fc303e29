package commands

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/gofrs/flock"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/skilldag/skilldag/pkg/config"
	"github.com/skilldag/skilldag/pkg/engine"
	"github.com/skilldag/skilldag/pkg/policy"
	"github.com/skilldag/skilldag/pkg/stores"
	"github.com/skilldag/skilldag/pkg/telemetry"
)

func newRunCommand() *cobra.Command {
	var (
		inputs        map[string]string
		environment   string
		watch         bool
		noHistory     bool
		traceExporter string
		otlpEndpoint  string
		metricsAddr   string
	)

	cmd := &cobra.Command{
		Use:   "run <workflow>",
		Short: "Run a workflow",
		Long: `Execute a workflow file.

The workflow is parsed, its skills are loaded and the graph is checked against the
admission policies before anything runs. Skills execute one at a time in
topological order. The run result is printed and recorded in the run history.

Only one run of a given workflow file may be in progress at a time.`,
		Example: `  # Run a workflow
  skilldag run pipeline.yaml

  # Override global inputs
  skilldag run pipeline.yaml --input url=https://example.com --input retries=2

  # Re-run whenever the file changes
  skilldag run pipeline.yaml --watch

  # Export traces to a collector and serve metrics
  skilldag run pipeline.yaml --trace otlp --otlp-endpoint localhost:4317 --metrics-addr :9090`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			path := args[0]

			lock := flock.New(path + ".lock")
			locked, err := lock.TryLock()
			if err != nil {
				return fmt.Errorf("failed to lock %s: %w", path, err)
			}
			if !locked {
				return fmt.Errorf("workflow %s is already running", path)
			}
			defer func() {
				_ = lock.Unlock()
				_ = os.Remove(lock.Path())
			}()

			tel, err := newRunTelemetry(traceExporter, otlpEndpoint, metricsAddr)
			if err != nil {
				return fmt.Errorf("failed to initialize telemetry: %w", err)
			}
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := tel.Shutdown(shutdownCtx); err != nil {
					log.Warn().Err(err).Msg("Telemetry shutdown failed")
				}
			}()
			if addr, err := tel.StartMetricsServer(); err != nil {
				return err
			} else if addr != "" {
				log.Info().Str("address", addr).Msg("Serving metrics")
			}

			policies, err := newPolicyEngine(ctx)
			if err != nil {
				return err
			}

			r := &runner{
				path:        path,
				inputs:      inputs,
				environment: environment,
				policies:    policies,
				tel:         tel,
			}

			if !noHistory {
				store, err := openHistory(ctx)
				if err != nil {
					return err
				}
				defer store.Close()
				r.store = store
			}

			if !watch {
				_, err := r.runOnce(ctx)
				return err
			}

			if len(policyPaths) > 0 {
				pl := policy.NewLoader(log.Logger)
				err := pl.Watch(ctx, policyPaths, func(loaded []policy.Policy) error {
					return policies.ApplyPolicies(ctx, loaded)
				})
				if err != nil {
					return err
				}
				defer pl.StopWatching()
			}

			if _, err := r.runOnce(ctx); err != nil {
				log.Error().Err(err).Msg("Run failed")
			}
			return config.NewWatcher(path, log.Logger).Run(ctx, func(ctx context.Context) {
				if _, err := r.runOnce(ctx); err != nil {
					log.Error().Err(err).Msg("Run failed")
				}
			})
		},
	}

	cmd.Flags().StringToStringVarP(&inputs, "input", "i", nil, "global input override (key=value)")
	cmd.Flags().StringVarP(&environment, "env", "e", "", "environment passed to policies (e.g. production)")
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "re-run when the workflow file changes")
	cmd.Flags().BoolVar(&noHistory, "no-history", false, "do not record the run in the history database")
	cmd.Flags().StringVar(&traceExporter, "trace", "", "trace exporter (otlp, stdout, none); empty disables tracing")
	cmd.Flags().StringVar(&otlpEndpoint, "otlp-endpoint", "localhost:4317", "OTLP gRPC collector endpoint")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")

	return cmd
}

func newRunTelemetry(traceExporter, otlpEndpoint, metricsAddr string) (*telemetry.Telemetry, error) {
	cfg := telemetry.DefaultConfig()
	cfg.ServiceVersion = buildVersion
	if verbose {
		cfg.Logging.Level = "debug"
	}
	if traceExporter != "" {
		cfg.Tracing.Enabled = true
		cfg.Tracing.Exporter = traceExporter
		cfg.Tracing.Endpoint = otlpEndpoint
	}
	cfg.Metrics.ListenAddress = metricsAddr
	return telemetry.NewTelemetry(cfg)
}

// runner executes one workflow file, possibly many times under --watch.
type runner struct {
	path        string
	inputs      map[string]string
	environment string
	policies    *policy.Engine
	tel         *telemetry.Telemetry
	store       stores.Store
}

func (r *runner) runOnce(ctx context.Context) (*engine.DAGExecutionResult, error) {
	wf, err := openWorkflow(ctx, r.path)
	if err != nil {
		return nil, err
	}
	defer wf.Close(context.WithoutCancel(ctx))

	logger := r.tel.Logger.WithWorkflow(wf.spec.Name)

	verdict, err := checkPolicies(ctx, r.policies, wf, "run", r.environment)
	if verdict != nil {
		r.reportViolations(wf.spec.Name, verdict)
	}
	if err != nil {
		return nil, err
	}

	opts, err := config.ExecutorOptions(wf.spec)
	if err != nil {
		return nil, err
	}
	opts = append(opts,
		engine.WithLogger(logger.NewComponentLogger("executor").Zerolog()),
		engine.WithObserver(telemetry.NewRunObserver(r.tel, wf.spec.Name)),
	)

	result, err := engine.NewExecutor(wf.graph, opts...).Execute(ctx, r.globalInputs(wf.spec))
	if err != nil {
		return nil, err
	}

	if jsonOutput {
		if err := printJSON(os.Stdout, result); err != nil {
			return result, err
		}
	} else {
		printSummary(os.Stdout, wf.spec.Name, result)
	}

	if r.store != nil {
		// Record interrupted runs too.
		run, err := r.store.SaveResult(context.WithoutCancel(ctx), wf.spec.Name, r.path, result, map[string]string{
			"user":        currentUser(),
			"environment": r.environment,
		})
		if err != nil {
			logger.WithError(err).Error("Failed to record run")
		} else {
			logger.WithRunID(run.ID).Debug("Run recorded")
		}
	}

	if !result.Succeeded() {
		return result, fmt.Errorf("run %s %s", result.RunID, result.Status)
	}
	return result, nil
}

// globalInputs merges the workflow inputs with --input overrides.
func (r *runner) globalInputs(spec *config.WorkflowSpec) map[string]interface{} {
	merged := make(map[string]interface{}, len(spec.Inputs)+len(r.inputs))
	for k, v := range spec.Inputs {
		merged[k] = v
	}
	for k, v := range r.inputs {
		merged[k] = v
	}
	return merged
}

func (r *runner) reportViolations(workflow string, verdict *policy.Result) {
	for _, group := range [][]policy.Violation{verdict.Violations, verdict.Warnings} {
		for _, v := range group {
			r.tel.Metrics.RecordPolicyViolation(v.Policy, string(v.Severity))
			_ = r.tel.Events.PublishPolicyViolation(workflow, v.Node, v.Policy, string(v.Severity), v.Message)
		}
	}
}
