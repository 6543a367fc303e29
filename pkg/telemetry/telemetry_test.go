package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"default", func(*Config) {}, ""},
		{"production", func(c *Config) { *c = *ProductionConfig() }, ""},
		{"development", func(c *Config) { *c = *DevelopmentConfig() }, ""},
		{"no service name", func(c *Config) { c.ServiceName = "" }, "service name is required"},
		{"bad level", func(c *Config) { c.Logging.Level = "loud" }, "invalid log level"},
		{"bad format", func(c *Config) { c.Logging.Format = "xml" }, "invalid log format"},
		{"bad exporter", func(c *Config) {
			c.Tracing.Enabled = true
			c.Tracing.Exporter = "jaeger"
		}, "invalid trace exporter"},
		{"otlp without endpoint", func(c *Config) {
			c.Tracing.Enabled = true
			c.Tracing.Exporter = "otlp"
			c.Tracing.Endpoint = ""
		}, "trace endpoint is required"},
		{"sampling rate", func(c *Config) { c.Tracing.SamplingRate = 1.5 }, "sampling rate"},
		{"metrics path", func(c *Config) {
			c.Metrics.ListenAddress = ":0"
			c.Metrics.Path = ""
		}, "metrics path is required"},
		{"event buffer", func(c *Config) { c.Events.BufferSize = 0 }, "event buffer size"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Expected no error, got %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestLoggerFields(t *testing.T) {
	var buf bytes.Buffer
	logger := newLoggerWithWriter(LoggingConfig{Level: "debug", Format: "json"}, &buf, nil)

	logger.NewComponentLogger("executor").
		WithRunID("run-1").
		WithWorkflow("nightly").
		WithNode("fetch").
		WithSkill("http.get", "1.2.0").
		Info("Node started")

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("Failed to decode log line %q: %v", buf.String(), err)
	}

	expected := map[string]string{
		"component":     "executor",
		"run_id":        "run-1",
		"workflow":      "nightly",
		"node":          "fetch",
		"skill":         "http.get",
		"skill_version": "1.2.0",
		"message":       "Node started",
		"level":         "info",
	}
	for key, want := range expected {
		if entry[key] != want {
			t.Errorf("Expected %s=%q, got %v", key, want, entry[key])
		}
	}
}

func TestLoggerLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := newLoggerWithWriter(LoggingConfig{Level: "warn", Format: "json"}, &buf, nil)

	logger.Info("dropped")
	logger.Debugf("dropped %d", 1)
	if buf.Len() != 0 {
		t.Errorf("Expected info and debug to be filtered at warn, got %q", buf.String())
	}

	logger.Warnf("kept %d", 2)
	if !strings.Contains(buf.String(), "kept 2") {
		t.Errorf("Expected the warning to be written, got %q", buf.String())
	}
}

func TestLoggerContext(t *testing.T) {
	var buf bytes.Buffer
	logger := newLoggerWithWriter(LoggingConfig{Level: "info", Format: "json"}, &buf, nil)

	ctx := logger.WithRunID("run-9").WithContext(context.Background())
	FromContext(ctx).Info("from context")
	if !strings.Contains(buf.String(), `"run_id":"run-9"`) {
		t.Errorf("Expected run_id from the context logger, got %q", buf.String())
	}

	// No logger in the context discards output.
	FromContext(context.Background()).Error("nowhere")
}

func TestMetricsDisabled(t *testing.T) {
	m, err := NewMetrics(MetricsConfig{Enabled: false})
	if err != nil {
		t.Fatalf("NewMetrics failed: %v", err)
	}

	m.RecordRunStarted("wf")
	m.RecordRunCompleted("wf", "completed", time.Second)
	m.RecordNodeFinished("wf", "a", "completed", time.Second, true)
	m.RecordAttemptFailed("wf", "a", true)
	m.RecordPolicyViolation("node-naming", "error")

	if m.Registry() != nil {
		t.Error("Expected no registry when metrics are disabled")
	}
	addr, err := m.StartMetricsServer()
	if err != nil || addr != "" {
		t.Errorf("Expected no server when metrics are disabled, got %q, %v", addr, err)
	}
}

func TestMetricsServer(t *testing.T) {
	cfg := DefaultConfig().Metrics
	cfg.ListenAddress = "127.0.0.1:0"

	m, err := NewMetrics(cfg)
	if err != nil {
		t.Fatalf("NewMetrics failed: %v", err)
	}
	m.RecordRunStarted("nightly")
	m.RecordPolicyViolation("retry-bounds", "warning")

	addr, err := m.StartMetricsServer()
	if err != nil {
		t.Fatalf("StartMetricsServer failed: %v", err)
	}
	defer m.StopMetricsServer(context.Background())

	resp, err := http.Get("http://" + addr + "/metrics")
	if err != nil {
		t.Fatalf("Failed to scrape metrics: %v", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("Failed to read metrics: %v", err)
	}

	for _, want := range []string{
		`skilldag_runs_started_total{workflow="nightly"} 1`,
		`skilldag_policy_violations_total{policy="retry-bounds",severity="warning"} 1`,
		`skilldag_active_runs 1`,
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("Expected metrics to contain %q", want)
		}
	}
}

func TestStartOperation(t *testing.T) {
	tel, recorder, _ := newTestTelemetry(t)
	ctx := tel.WithContext(context.Background())

	ic := StartOperation(ctx, "workflow.load")
	if ic.Span == nil {
		t.Fatal("Expected a span when telemetry is in the context")
	}
	ic.End(nil)

	spans := recorder.Ended()
	if len(spans) != 1 || spans[0].Name() != "workflow.load" {
		t.Fatalf("Expected one workflow.load span, got %d", len(spans))
	}

	bare := StartOperation(context.Background(), "workflow.load")
	if bare.Span != nil {
		t.Error("Expected no span without telemetry in the context")
	}
	bare.End(nil)
}
