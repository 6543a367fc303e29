package engine

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestRetryConfig_Delay(t *testing.T) {
	tests := []struct {
		name    string
		cfg     RetryConfig
		attempt int
		want    time.Duration
	}{
		{"exponential 0", RetryConfig{Strategy: BackoffExponential, BaseDelay: time.Second, MaxDelay: time.Minute}, 0, time.Second},
		{"exponential 1", RetryConfig{Strategy: BackoffExponential, BaseDelay: time.Second, MaxDelay: time.Minute}, 1, 2 * time.Second},
		{"exponential 3", RetryConfig{Strategy: BackoffExponential, BaseDelay: time.Second, MaxDelay: time.Minute}, 3, 8 * time.Second},
		{"exponential capped", RetryConfig{Strategy: BackoffExponential, BaseDelay: time.Second, MaxDelay: 5 * time.Second}, 3, 5 * time.Second},
		{"exponential overflow capped", RetryConfig{Strategy: BackoffExponential, BaseDelay: time.Second, MaxDelay: time.Hour}, 80, time.Hour},
		{"linear 0", RetryConfig{Strategy: BackoffLinear, BaseDelay: time.Second, MaxDelay: time.Minute}, 0, time.Second},
		{"linear 2", RetryConfig{Strategy: BackoffLinear, BaseDelay: time.Second, MaxDelay: time.Minute}, 2, 3 * time.Second},
		{"linear capped", RetryConfig{Strategy: BackoffLinear, BaseDelay: time.Second, MaxDelay: 2 * time.Second}, 4, 2 * time.Second},
		{"fixed", RetryConfig{Strategy: BackoffFixed, BaseDelay: 3 * time.Second, MaxDelay: time.Second}, 7, 3 * time.Second},
		{"uncapped", RetryConfig{Strategy: BackoffExponential, BaseDelay: time.Millisecond}, 10, 1024 * time.Millisecond},
		{"negative attempt", RetryConfig{Strategy: BackoffLinear, BaseDelay: time.Second}, -3, time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cfg.Delay(tt.attempt); got != tt.want {
				t.Errorf("Expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestRetryConfig_DelayIsPure(t *testing.T) {
	cfg := DefaultRetryConfig()
	for attempt := 0; attempt < 5; attempt++ {
		if cfg.Delay(attempt) != cfg.Delay(attempt) {
			t.Fatalf("Delay(%d) is not stable", attempt)
		}
	}
}

func TestRetryConfig_Validate(t *testing.T) {
	if err := DefaultRetryConfig().Validate(); err != nil {
		t.Errorf("Expected default config to be valid, got: %v", err)
	}

	tests := []struct {
		name    string
		cfg     RetryConfig
		wantErr string
	}{
		{"zero retries", RetryConfig{Strategy: BackoffFixed}, "max_retries"},
		{"bad strategy", RetryConfig{MaxRetries: 1, Strategy: "jitter"}, "strategy"},
		{"negative max delay", RetryConfig{MaxRetries: 1, Strategy: BackoffFixed, MaxDelay: -1}, "max_delay"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Expected error containing %q, got: %v", tt.wantErr, err)
			}
		})
	}
}

func TestRetryConfig_MarshalJSON(t *testing.T) {
	data, err := json.Marshal(DefaultRetryConfig())
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	want := `{"max_retries":3,"strategy":"exponential","base_delay":"1s","max_delay":"1m0s"}`
	if string(data) != want {
		t.Errorf("Expected %s, got %s", want, data)
	}
}

func TestExecutionStatus(t *testing.T) {
	terminal := []ExecutionStatus{StatusCompleted, StatusFailed, StatusSkipped, StatusCancelled}
	for _, s := range terminal {
		if !s.IsTerminal() {
			t.Errorf("Expected %s to be terminal", s)
		}
	}
	for _, s := range []ExecutionStatus{StatusPending, StatusRunning, StatusRetry} {
		if s.IsTerminal() || !s.IsActive() {
			t.Errorf("Expected %s to be active and not terminal", s)
		}
	}

	var s ExecutionStatus
	if err := json.Unmarshal([]byte(`"exploded"`), &s); err == nil {
		t.Error("Expected invalid status to fail unmarshaling")
	}
	if err := json.Unmarshal([]byte(`"retry"`), &s); err != nil || s != StatusRetry {
		t.Errorf("Expected retry, got %s (%v)", s, err)
	}
}
