package monitoring

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/walkshed/access-cli/internal/config"
)

func TestChecker_RunStopsOnCancel(t *testing.T) {
	st := newTestStore(t)
	collector := NewCollector(st)
	alerter := NewAlerter(config.MonitorConfig{FailureRateThreshold: 0.10})
	checker := NewChecker(collector, alerter, config.MonitorConfig{
		CheckIntervalSecs: 1,
		LookbackRuns:      20,
	})

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		checker.Run(ctx)
		close(done)
	}()

	// Let it tick once then cancel.
	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case <-done:
		// Good, Run returned.
	case <-time.After(5 * time.Second):
		t.Fatal("Checker.Run did not stop after context cancellation")
	}
}

func TestChecker_DefaultInterval(t *testing.T) {
	st := newTestStore(t)
	collector := NewCollector(st)
	alerter := NewAlerter(config.MonitorConfig{})

	// Zero interval should default to 5 minutes.
	checker := NewChecker(collector, alerter, config.MonitorConfig{CheckIntervalSecs: 0})
	assert.NotNil(t, checker)

	// Start and immediately cancel to verify it exits cleanly.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	checker.Run(ctx)
}
