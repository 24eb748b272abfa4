package monitoring

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/report-kpi/internal/config"
)

func TestAlerter_Evaluate_NoAlerts(t *testing.T) {
	a := NewAlerter(config.AlertsConfig{
		FailureRateThreshold: 0.25,
		CostThresholdUSD:     5.0,
	})

	alerts := a.Evaluate(RunSnapshot{
		Command:        "analyze",
		Entities:       10,
		EntitiesFailed: 1,
		CostUSD:        1.2,
	})
	assert.Empty(t, alerts)
}

func TestAlerter_Evaluate_EntityFailureRate(t *testing.T) {
	a := NewAlerter(config.AlertsConfig{FailureRateThreshold: 0.25})

	alerts := a.Evaluate(RunSnapshot{Command: "analyze", Entities: 4, EntitiesFailed: 2})
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertEntityFailureRate, alerts[0].Type)
	assert.Equal(t, "analyze", alerts[0].Command)
	assert.Equal(t, "high", alerts[0].Severity)
	assert.Contains(t, alerts[0].Message, "50.0%")
}

func TestAlerter_Evaluate_DocumentFailureRate(t *testing.T) {
	a := NewAlerter(config.AlertsConfig{FailureRateThreshold: 0.25})

	alerts := a.Evaluate(RunSnapshot{Command: "acquire", Entities: 3, Documents: 10, DocumentsFailed: 4})
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertDocumentFailureRate, alerts[0].Type)
	assert.Contains(t, alerts[0].Message, "4 of 10 documents")
}

func TestAlerter_Evaluate_CostOverrun(t *testing.T) {
	a := NewAlerter(config.AlertsConfig{FailureRateThreshold: 0.25, CostThresholdUSD: 2.0})

	alerts := a.Evaluate(RunSnapshot{Command: "analyze", Entities: 5, CostUSD: 2.5})
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertCostOverrun, alerts[0].Type)
	assert.Contains(t, alerts[0].Message, "$2.50")
}

func TestAlerter_Evaluate_MultipleAlerts(t *testing.T) {
	a := NewAlerter(config.AlertsConfig{FailureRateThreshold: 0.1, CostThresholdUSD: 1.0})

	alerts := a.Evaluate(RunSnapshot{
		Command:         "analyze",
		Entities:        4,
		EntitiesFailed:  2,
		Documents:       8,
		DocumentsFailed: 4,
		CostUSD:         3,
	})
	types := make(map[AlertType]bool)
	for _, a := range alerts {
		types[a.Type] = true
	}
	assert.Len(t, alerts, 3)
	assert.True(t, types[AlertEntityFailureRate])
	assert.True(t, types[AlertDocumentFailureRate])
	assert.True(t, types[AlertCostOverrun])
}

func TestAlerter_Evaluate_EmptyRun(t *testing.T) {
	a := NewAlerter(config.AlertsConfig{})
	assert.Empty(t, a.Evaluate(RunSnapshot{Command: "analyze"}))
}

func TestAlerter_Evaluate_ZeroCostThreshold(t *testing.T) {
	a := NewAlerter(config.AlertsConfig{CostThresholdUSD: 0})
	assert.Empty(t, a.Evaluate(RunSnapshot{CostUSD: 999}))
}

func TestAlerter_SendAlerts_Webhook(t *testing.T) {
	var received atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var alert Alert
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&alert))
		assert.NotEmpty(t, alert.Type)
		received.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	a := NewAlerter(config.AlertsConfig{WebhookURL: ts.URL})
	sent := a.SendAlerts(context.Background(), []Alert{
		{Type: AlertEntityFailureRate, Severity: "high", Message: "test alert 1"},
		{Type: AlertCostOverrun, Severity: "high", Message: "test alert 2"},
	})
	assert.Equal(t, 2, sent)
	assert.Equal(t, int32(2), received.Load())
}

func TestAlerter_Notify(t *testing.T) {
	var received atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		received.Add(1)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer ts.Close()

	a := NewAlerter(config.AlertsConfig{WebhookURL: ts.URL, FailureRateThreshold: 0.25})
	assert.Equal(t, 0, a.Notify(context.Background(), RunSnapshot{Command: "acquire", Documents: 10}))
	assert.Equal(t, 1, a.Notify(context.Background(), RunSnapshot{Command: "acquire", Documents: 10, DocumentsFailed: 9}))
	assert.Equal(t, int32(1), received.Load())
}

func TestAlerter_SendAlerts_EmptyURL(t *testing.T) {
	a := NewAlerter(config.AlertsConfig{})
	sent := a.SendAlerts(context.Background(), []Alert{{Type: AlertEntityFailureRate, Message: "test"}})
	assert.Equal(t, 0, sent)
}

func TestAlerter_SendAlerts_WebhookError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	a := NewAlerter(config.AlertsConfig{WebhookURL: ts.URL})
	sent := a.SendAlerts(context.Background(), []Alert{{Type: AlertEntityFailureRate, Message: "test"}})
	assert.Equal(t, 0, sent)
}
