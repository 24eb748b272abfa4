// Package monitoring evaluates the outcome of a run and reports threshold
// breaches to a webhook.
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

	"github.com/sells-group/report-kpi/internal/config"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertEntityFailureRate   AlertType = "entity_failure_rate"
	AlertDocumentFailureRate AlertType = "document_failure_rate"
	AlertCostOverrun         AlertType = "cost_overrun"
)

// Alert represents a single alert to be sent.
type Alert struct {
	Type      AlertType      `json:"type"`
	Command   string         `json:"command"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// RunSnapshot summarizes one acquire or analyze run.
type RunSnapshot struct {
	Command         string
	Entities        int
	EntitiesFailed  int
	Documents       int
	DocumentsFailed int
	CostUSD         float64
}

// Alerter evaluates a RunSnapshot against configured thresholds and sends
// alerts via webhook when thresholds are breached.
type Alerter struct {
	cfg    config.AlertsConfig
	client *http.Client
}

// NewAlerter creates a new Alerter with the given alert config.
func NewAlerter(cfg config.AlertsConfig) *Alerter {
	return &Alerter{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Evaluate checks the snapshot against thresholds and returns any alerts.
func (a *Alerter) Evaluate(snap RunSnapshot) []Alert {
	var alerts []Alert
	now := time.Now().UTC()

	if rate, ok := failureRate(snap.EntitiesFailed, snap.Entities); ok && rate > a.cfg.FailureRateThreshold {
		alerts = append(alerts, Alert{
			Type:     AlertEntityFailureRate,
			Command:  snap.Command,
			Severity: "high",
			Message: fmt.Sprintf("%s: %d of %d entities failed (%.1f%%, threshold %.1f%%)",
				snap.Command, snap.EntitiesFailed, snap.Entities, rate*100, a.cfg.FailureRateThreshold*100),
			Details: map[string]any{
				"failure_rate": rate,
				"threshold":    a.cfg.FailureRateThreshold,
				"failed":       snap.EntitiesFailed,
				"entities":     snap.Entities,
			},
			Timestamp: now,
		})
	}

	if rate, ok := failureRate(snap.DocumentsFailed, snap.Documents); ok && rate > a.cfg.FailureRateThreshold {
		alerts = append(alerts, Alert{
			Type:     AlertDocumentFailureRate,
			Command:  snap.Command,
			Severity: "medium",
			Message: fmt.Sprintf("%s: %d of %d documents failed (%.1f%%)",
				snap.Command, snap.DocumentsFailed, snap.Documents, rate*100),
			Details: map[string]any{
				"failure_rate": rate,
				"failed":       snap.DocumentsFailed,
				"documents":    snap.Documents,
			},
			Timestamp: now,
		})
	}

	if a.cfg.CostThresholdUSD > 0 && snap.CostUSD > a.cfg.CostThresholdUSD {
		alerts = append(alerts, Alert{
			Type:     AlertCostOverrun,
			Command:  snap.Command,
			Severity: "high",
			Message: fmt.Sprintf("%s: model cost $%.2f exceeds threshold $%.2f",
				snap.Command, snap.CostUSD, a.cfg.CostThresholdUSD),
			Details: map[string]any{
				"cost_usd":      snap.CostUSD,
				"threshold_usd": a.cfg.CostThresholdUSD,
			},
			Timestamp: now,
		})
	}

	return alerts
}

func failureRate(failed, total int) (float64, bool) {
	if failed == 0 || total == 0 {
		return 0, false
	}
	return float64(failed) / float64(total), true
}

// Notify evaluates snap and sends whatever it breaches. It returns the
// number of alerts delivered.
func (a *Alerter) Notify(ctx context.Context, snap RunSnapshot) int {
	alerts := a.Evaluate(snap)
	for _, al := range alerts {
		zap.L().Warn("monitoring: threshold breached",
			zap.String("type", string(al.Type)),
			zap.String("message", al.Message),
		)
	}
	return a.SendAlerts(ctx, alerts)
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
