package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/walkshed/access-cli/internal/config"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertRunFailureRate AlertType = "run_failure_rate"
	AlertStaleScores    AlertType = "stale_scores"
	AlertEmptyRun       AlertType = "empty_run"
)

// minFinishedRuns is how many finished runs the failure rate needs
// before it is meaningful enough to alert on.
const minFinishedRuns = 5

// Alert represents a single alert to be sent.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Alerter evaluates a Snapshot against configured thresholds and sends
// alerts via webhook when thresholds are breached.
type Alerter struct {
	cfg    config.MonitorConfig
	client *http.Client
}

// NewAlerter creates a new Alerter with the given monitor config.
func NewAlerter(cfg config.MonitorConfig) *Alerter {
	return &Alerter{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Evaluate checks the snapshot against thresholds and returns any alerts.
func (a *Alerter) Evaluate(snap *Snapshot) []Alert {
	var alerts []Alert
	now := time.Now().UTC()

	// Failure rate over recent runs.
	if snap.RecentFinished >= minFinishedRuns && snap.FailureRate() > a.cfg.FailureRateThreshold {
		alerts = append(alerts, Alert{
			Type:     AlertRunFailureRate,
			Severity: "high",
			Message: fmt.Sprintf(
				"Scoring run failure rate %.1f%% exceeds threshold %.1f%% (%d failed / %d finished in last %d runs)",
				snap.FailureRate()*100, a.cfg.FailureRateThreshold*100,
				snap.RecentFailed, snap.RecentFinished, snap.LookbackRuns,
			),
			Details: map[string]any{
				"failure_rate": snap.FailureRate(),
				"threshold":    a.cfg.FailureRateThreshold,
				"failed":       snap.RecentFailed,
				"finished":     snap.RecentFinished,
			},
			Timestamp: now,
		})
	}

	// Scores older than allowed while distance sets are waiting.
	if a.cfg.MaxScoreAgeHours > 0 && snap.TotalDistanceSets() > 0 {
		maxAge := time.Duration(a.cfg.MaxScoreAgeHours) * time.Hour
		switch {
		case snap.LatestRun == nil:
			alerts = append(alerts, Alert{
				Type:     AlertStaleScores,
				Severity: "medium",
				Message: fmt.Sprintf(
					"No completed scoring run while %d distance sets are stored",
					snap.TotalDistanceSets(),
				),
				Details: map[string]any{
					"distance_sets": snap.TotalDistanceSets(),
				},
				Timestamp: now,
			})
		case snap.LatestRun.FinishedAt != nil && now.Sub(*snap.LatestRun.FinishedAt) > maxAge:
			age := now.Sub(*snap.LatestRun.FinishedAt)
			alerts = append(alerts, Alert{
				Type:     AlertStaleScores,
				Severity: "medium",
				Message: fmt.Sprintf(
					"Latest completed scoring run is %.0fh old, exceeds %dh",
					age.Hours(), a.cfg.MaxScoreAgeHours,
				),
				Details: map[string]any{
					"run_id":        snap.LatestRun.ID,
					"age_hours":     age.Hours(),
					"max_age_hours": a.cfg.MaxScoreAgeHours,
				},
				Timestamp: now,
			})
		}
	}

	// A completed run that wrote nothing while data exists.
	if snap.LatestRun != nil && snap.LatestRunScores == 0 && snap.TotalDistanceSets() > 0 {
		alerts = append(alerts, Alert{
			Type:     AlertEmptyRun,
			Severity: "high",
			Message: fmt.Sprintf(
				"Latest completed run %s produced no scores while %d distance sets are stored",
				snap.LatestRun.ID, snap.TotalDistanceSets(),
			),
			Details: map[string]any{
				"run_id":        snap.LatestRun.ID,
				"distance_sets": snap.TotalDistanceSets(),
			},
			Timestamp: now,
		})
	}

	return alerts
}

// SendAlerts delivers alerts to the configured webhook URL.
// Returns the number of alerts successfully sent.
func (a *Alerter) SendAlerts(ctx context.Context, alerts []Alert) int {
	if a.cfg.WebhookURL == "" || len(alerts) == 0 {
		return 0
	}

	sent := 0
	for _, alert := range alerts {
		if err := a.sendWebhook(ctx, alert); err != nil {
			zap.L().Error("monitoring: failed to send alert",
				zap.String("type", string(alert.Type)),
				zap.Error(err),
			)
			continue
		}
		zap.L().Info("monitoring: alert sent",
			zap.String("type", string(alert.Type)),
			zap.String("severity", alert.Severity),
		)
		sent++
	}
	return sent
}

// sendWebhook posts a single alert to the webhook URL.
func (a *Alerter) sendWebhook(ctx context.Context, alert Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return eris.Wrap(err, "monitoring: marshal alert")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return eris.Wrap(err, "monitoring: create webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "monitoring: webhook request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		return eris.Errorf("monitoring: webhook returned status %d", resp.StatusCode)
	}
	return nil
}
