package oracle

import (
	"context"
	"errors"
	"sync"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/report-kpi/internal/config"
	"github.com/sells-group/report-kpi/internal/resilience"
	"github.com/sells-group/report-kpi/pkg/anthropic"
)

// AnthropicOracle sends the instructions as a cached system prompt and the
// report text as the user message, at temperature 0.
type AnthropicOracle struct {
	client       anthropic.Client
	instructions string
	model        string
	maxTokens    int64
	retry        resilience.RetryConfig
	entity       string
	spend        *spend
}

// spend totals estimated cost across the entity-scoped copies of an oracle.
type spend struct {
	mu  sync.Mutex
	usd float64
}

func (s *spend) add(usd float64) {
	s.mu.Lock()
	s.usd += usd
	s.mu.Unlock()
}

// NewAnthropic returns an oracle for cfg. client is usually
// anthropic.NewClient(cfg.Key).
func NewAnthropic(client anthropic.Client, instructions string, cfg config.AnthropicConfig) *AnthropicOracle {
	o := &AnthropicOracle{
		client:       client,
		instructions: instructions,
		model:        cfg.Model,
		maxTokens:    cfg.MaxTokens,
		retry:        resilience.WithAttempts(cfg.MaxAttempts),
		spend:        &spend{},
	}
	if o.maxTokens <= 0 {
		o.maxTokens = 4096
	}
	o.retry.ShouldRetry = isRetryable
	return o
}

// ForEntity returns a copy that tags logs with entity.
func (o *AnthropicOracle) ForEntity(entity string) Oracle {
	c := *o
	c.entity = entity
	c.retry.OnRetry = resilience.RetryLogger("anthropic", entity)
	return &c
}

// Run implements Oracle.
func (o *AnthropicOracle) Run(ctx context.Context, text string) (string, error) {
	temp := 0.0
	req := anthropic.MessageRequest{
		Model:       o.model,
		MaxTokens:   o.maxTokens,
		System:      anthropic.BuildCachedSystemBlocks(o.instructions),
		Messages:    []anthropic.Message{{Role: "user", Content: text}},
		Temperature: &temp,
	}

	resp, err := resilience.DoVal(ctx, o.retry, func(ctx context.Context) (*anthropic.MessageResponse, error) {
		return o.client.CreateMessage(ctx, req)
	})
	if err != nil {
		return "", eris.Wrap(err, "oracle: run")
	}

	resp.Usage.LogCost(o.model, o.entity)
	o.spend.add(resp.Usage.EstimateCost(o.model))
	if resp.StopReason == "max_tokens" {
		zap.L().Warn("oracle: answer truncated",
			zap.String("entity", o.entity),
			zap.Int64("max_tokens", o.maxTokens),
		)
	}
	return resp.Text(), nil
}

// SpentUSD returns the estimated cost of every call made so far by o and
// its ForEntity copies.
func (o *AnthropicOracle) SpentUSD() float64 {
	o.spend.mu.Lock()
	defer o.spend.mu.Unlock()
	return o.spend.usd
}

// isRetryable retries rate limits, overloads and network failures, never
// request errors.
func isRetryable(err error) bool {
	var apiErr *sdk.Error
	if errors.As(err, &apiErr) {
		return resilience.IsTransientHTTPStatus(apiErr.StatusCode)
	}
	return resilience.IsTransient(err)
}
