package fetcher

import (
	"context"
	"io"
	"math"
	"math/rand/v2"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// HTTPOptions configures the HTTP fetcher.
type HTTPOptions struct {
	UserAgent string
	// Timeout bounds a single request, body included.
	Timeout time.Duration
	// MaxRetries is the number of attempts per request. The default of 1
	// means no automatic retry.
	MaxRetries int
	// RequestsPerSecond paces requests per host. Zero uses 2 rps.
	RequestsPerSecond float64
	// RateLimiters overrides pacing for specific hosts.
	RateLimiters map[string]*rate.Limiter
	// Transport replaces the default transport; used by tests.
	Transport http.RoundTripper
}

// AdaptiveLimiter wraps a rate.Limiter that slows down on 429 responses
// and recovers on success, staying within [initial/4, initial*2].
type AdaptiveLimiter struct {
	mu          sync.Mutex
	limiter     *rate.Limiter
	initialRate rate.Limit
	maxRate     rate.Limit
	minRate     rate.Limit
	currentRate rate.Limit
}

// NewAdaptiveLimiter creates an adaptive rate limiter.
func NewAdaptiveLimiter(initialRate rate.Limit, burst int) *AdaptiveLimiter {
	return &AdaptiveLimiter{
		limiter:     rate.NewLimiter(initialRate, burst),
		initialRate: initialRate,
		maxRate:     initialRate * 2,
		minRate:     initialRate / 4,
		currentRate: initialRate,
	}
}

// Wait blocks until the limiter allows an event.
func (a *AdaptiveLimiter) Wait(ctx context.Context) error {
	return a.limiter.Wait(ctx)
}

// OnSuccess raises the rate by 20%, up to 2x initial.
func (a *AdaptiveLimiter) OnSuccess() {
	a.mu.Lock()
	defer a.mu.Unlock()
	newRate := a.currentRate * 1.2
	if newRate > a.maxRate {
		newRate = a.maxRate
	}
	a.currentRate = newRate
	a.limiter.SetLimit(newRate)
}

// OnRateLimit halves the rate.
func (a *AdaptiveLimiter) OnRateLimit() {
	a.mu.Lock()
	defer a.mu.Unlock()
	newRate := a.currentRate * 0.5
	if newRate < a.minRate {
		newRate = a.minRate
	}
	a.currentRate = newRate
	a.limiter.SetLimit(newRate)
	zap.L().Warn("fetcher: reducing rate after 429",
		zap.Float64("new_rate", float64(newRate)),
	)
}

// Limit returns the current rate limit.
func (a *AdaptiveLimiter) Limit() rate.Limit {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.currentRate
}

// HTTPFetcher implements Fetcher over net/http with per-host pacing.
type HTTPFetcher struct {
	client *http.Client
	opts   HTTPOptions

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	adaptive map[string]*AdaptiveLimiter
}

var _ Fetcher = (*HTTPFetcher)(nil)

// NewHTTPFetcher creates a new HTTPFetcher with the given options.
func NewHTTPFetcher(opts HTTPOptions) *HTTPFetcher {
	if opts.Timeout == 0 {
		opts.Timeout = 60 * time.Second
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 1
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "report-kpi/1.0"
	}
	if opts.RequestsPerSecond <= 0 {
		opts.RequestsPerSecond = 2
	}
	limiters := make(map[string]*rate.Limiter, len(opts.RateLimiters))
	for k, v := range opts.RateLimiters {
		limiters[k] = v
	}
	transport := opts.Transport
	if transport == nil {
		transport = &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConnsPerHost: 4,
			IdleConnTimeout:     90 * time.Second,
		}
	}
	return &HTTPFetcher{
		client: &http.Client{
			Timeout:   opts.Timeout,
			Transport: transport,
		},
		opts:     opts,
		limiters: limiters,
		adaptive: make(map[string]*AdaptiveLimiter),
	}
}

// UserAgent returns the User-Agent sent with every request.
func (f *HTTPFetcher) UserAgent() string { return f.opts.UserAgent }

// wait paces the request: fixed limiters configured for the host win,
// otherwise an adaptive limiter is created for it on first use.
func (f *HTTPFetcher) wait(ctx context.Context, host string) (*AdaptiveLimiter, error) {
	f.mu.Lock()
	if lim, ok := f.limiters[host]; ok {
		f.mu.Unlock()
		return nil, eris.Wrap(lim.Wait(ctx), "fetcher: rate limiter wait")
	}
	a, ok := f.adaptive[host]
	if !ok {
		burst := int(math.Max(1, math.Ceil(f.opts.RequestsPerSecond)))
		a = NewAdaptiveLimiter(rate.Limit(f.opts.RequestsPerSecond), burst)
		f.adaptive[host] = a
	}
	f.mu.Unlock()
	if err := a.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "fetcher: rate limiter wait")
	}
	return a, nil
}

// Do sends req with pacing and, when MaxRetries > 1, retries on network
// errors, 429 and 5xx. The caller must close the response body.
func (f *HTTPFetcher) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", f.opts.UserAgent)
	}

	var lastErr error
	for attempt := range f.opts.MaxRetries {
		if attempt > 0 {
			f.backoff(ctx, attempt-1)
		}
		adaptive, err := f.wait(ctx, req.URL.Host)
		if err != nil {
			return nil, err
		}

		attemptReq := req.Clone(ctx)
		if attempt > 0 && req.GetBody != nil {
			if attemptReq.Body, err = req.GetBody(); err != nil {
				return nil, eris.Wrap(err, "fetcher: rewind request body")
			}
		}

		resp, err := f.client.Do(attemptReq)
		if err != nil {
			lastErr = eris.Wrapf(err, "fetcher: request %s", req.URL.Redacted())
			zap.L().Warn("fetcher: request failed",
				zap.String("url", req.URL.Redacted()),
				zap.Int("attempt", attempt+1),
				zap.Error(err),
			)
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			_ = resp.Body.Close()
			if resp.StatusCode == http.StatusTooManyRequests && adaptive != nil {
				adaptive.OnRateLimit()
			}
			lastErr = &StatusError{URL: req.URL.Redacted(), StatusCode: resp.StatusCode}
			zap.L().Warn("fetcher: server refused request",
				zap.String("url", req.URL.Redacted()),
				zap.Int("status", resp.StatusCode),
				zap.Int("attempt", attempt+1),
			)
			continue
		}

		if adaptive != nil {
			adaptive.OnSuccess()
		}
		return resp, nil
	}

	if f.opts.MaxRetries > 1 {
		return nil, eris.Wrap(lastErr, "fetcher: all attempts failed")
	}
	return nil, lastErr
}

func (f *HTTPFetcher) backoff(ctx context.Context, attempt int) {
	base := time.Second
	maxBackoff := 30 * time.Second
	d := time.Duration(float64(base) * math.Pow(2, float64(attempt)))
	if d > maxBackoff {
		d = maxBackoff
	}
	d += time.Duration(rand.Int64N(int64(d)/2 + 1))

	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// Fetch issues a GET and returns the body on 200 OK.
func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string) (*Response, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, eris.Wrapf(err, "fetcher: parse url %q", rawURL)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "fetcher: create request")
	}
	req.Header.Set("Accept", "application/pdf,*/*;q=0.8")

	resp, err := f.Do(ctx, req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		_ = resp.Body.Close()
		return nil, &StatusError{URL: u.Redacted(), StatusCode: resp.StatusCode}
	}
	return &Response{
		Body:        resp.Body,
		ContentType: resp.Header.Get("Content-Type"),
		Size:        resp.ContentLength,
	}, nil
}
