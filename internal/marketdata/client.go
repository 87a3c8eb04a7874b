package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/pkg/errors"

	"setbull_trader/internal/config"
	"setbull_trader/pkg/apperrors"
	"setbull_trader/pkg/cache"
	"setbull_trader/pkg/log"
)

// Client is a typed wrapper over the provider's REST endpoints (§6): a
// bare *http.Client plus a `get` helper, with retry/backoff, a URL-keyed
// response cache, and in-flight request coalescing.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	cfgStore   *config.Store

	respCache cache.API

	inflightMu sync.Mutex
	inflight   map[string]*inflightCall
}

type inflightCall struct {
	done chan struct{}
	body []byte
	err  error
}

// NewClient builds a Client bound to the given config store (so retry
// counts / timeouts can change via updateConfig without re-dialing) and an
// ambient two-tier response cache.
func NewClient(cfgStore *config.Store, respCache cache.API) *Client {
	cfg := cfgStore.Get()
	return &Client{
		httpClient: &http.Client{Timeout: time.Duration(cfg.API.HTTPTimeoutMs) * time.Millisecond},
		baseURL:    cfg.MarketData.BaseURL,
		apiKey:     cfg.MarketData.APIKey,
		cfgStore:   cfgStore,
		respCache:  respCache,
		inflight:   make(map[string]*inflightCall),
	}
}

// get performs a cached, retried, in-flight-deduplicated GET and returns
// the raw response body.
func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	url := c.baseURL + path
	cacheKey := "GET:" + url

	if cached, ok := c.respCache.Get(ctx, cacheKey); ok {
		return []byte(cached), nil
	}

	c.inflightMu.Lock()
	if call, ok := c.inflight[cacheKey]; ok {
		c.inflightMu.Unlock()
		<-call.done
		return call.body, call.err
	}
	call := &inflightCall{done: make(chan struct{})}
	c.inflight[cacheKey] = call
	c.inflightMu.Unlock()

	body, err := c.fetchWithRetry(ctx, url)
	call.body, call.err = body, err
	close(call.done)

	c.inflightMu.Lock()
	delete(c.inflight, cacheKey)
	c.inflightMu.Unlock()

	if err == nil {
		cfg := c.cfgStore.Get()
		c.respCache.SetWithDuration(ctx, cacheKey, string(body), time.Duration(cfg.API.RequestTimeoutMs)*time.Millisecond)
	}
	return body, err
}

// fetchWithRetry implements the retry schedule of §4.3: 1s, 2s, 4s up to
// api.maxRetries on 5xx or network error; a 4xx response returns at once
// with a non-retryable ProviderError. Both a per-attempt
// (httpTimeoutMs) and an overall (requestTimeoutMs) deadline apply.
func (c *Client) fetchWithRetry(ctx context.Context, url string) ([]byte, error) {
	cfg := c.cfgStore.Get()

	overallCtx, cancel := context.WithTimeout(ctx, time.Duration(cfg.API.RequestTimeoutMs)*time.Millisecond)
	defer cancel()

	delays := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}
	var lastErr error

	for attempt := 0; attempt <= cfg.API.MaxRetries; attempt++ {
		if attempt > 0 {
			idx := attempt - 1
			if idx >= len(delays) {
				idx = len(delays) - 1
			}
			select {
			case <-time.After(delays[idx]):
			case <-overallCtx.Done():
				return nil, apperrors.NewProviderError("request cancelled while backing off", 0, true, overallCtx.Err())
			}
		}

		body, status, err := c.doOnce(overallCtx, url)
		if err == nil {
			return body, nil
		}
		lastErr = err

		if status >= 400 && status < 500 {
			return nil, apperrors.NewProviderError(fmt.Sprintf("permanent failure for %s", url), status, false, err)
		}
		log.Warn("marketdata: attempt %d/%d failed for %s: %v", attempt+1, cfg.API.MaxRetries+1, url, err)
	}

	return nil, apperrors.NewProviderError(fmt.Sprintf("exhausted retries for %s", url), 0, true, lastErr)
}

func (c *Client) doOnce(ctx context.Context, url string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, errors.Wrap(err, "failed to build request")
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, errors.Wrap(err, "failed to execute request")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, errors.Wrap(err, "failed to read response body")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, resp.StatusCode, fmt.Errorf("status=%d body=%s", resp.StatusCode, string(body))
	}
	return body, resp.StatusCode, nil
}

func decode[T any](body []byte) (T, error) {
	var v T
	if err := json.Unmarshal(body, &v); err != nil {
		var zero T
		return zero, errors.Wrap(err, "failed to unmarshal response")
	}
	return v, nil
}
