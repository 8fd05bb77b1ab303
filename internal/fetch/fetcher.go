// Package fetch provides the HTTP transport used by the sync pipeline.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"
)

// Concurrency settings
const (
	// MaxConcurrencyPerHost limits parallel requests to any single host.
	MaxConcurrencyPerHost = 4
	// DelayBetweenHostRequests is the minimum delay between requests to the same host.
	DelayBetweenHostRequests = 50 * time.Millisecond
	// MaxBodyBytes caps a response body read.
	MaxBodyBytes = 32 << 20
)

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Method     string
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: unexpected status %d", e.Method, e.URL, e.StatusCode)
}

// hostLimiter controls rate limiting per host to avoid overwhelming servers.
type hostLimiter struct {
	mu          sync.Mutex
	semaphores  map[string]chan struct{}
	lastRequest map[string]time.Time
}

func newHostLimiter() *hostLimiter {
	return &hostLimiter{
		semaphores:  make(map[string]chan struct{}),
		lastRequest: make(map[string]time.Time),
	}
}

// acquire gets a slot for the host, blocking if necessary.
// It also enforces the minimum delay between requests to the same host.
func (hl *hostLimiter) acquire(ctx context.Context, host string) error {
	hl.mu.Lock()
	sem, ok := hl.semaphores[host]
	if !ok {
		sem = make(chan struct{}, MaxConcurrencyPerHost)
		hl.semaphores[host] = sem
	}
	hl.mu.Unlock()

	select {
	case sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}

	hl.mu.Lock()
	lastReq := hl.lastRequest[host]
	hl.mu.Unlock()

	if !lastReq.IsZero() {
		if elapsed := time.Since(lastReq); elapsed < DelayBetweenHostRequests {
			select {
			case <-time.After(DelayBetweenHostRequests - elapsed):
			case <-ctx.Done():
				<-sem
				return ctx.Err()
			}
		}
	}
	return nil
}

// release returns a slot for the host and records the request time.
func (hl *hostLimiter) release(host string) {
	hl.mu.Lock()
	defer hl.mu.Unlock()

	hl.lastRequest[host] = time.Now()
	if sem, ok := hl.semaphores[host]; ok {
		<-sem
	}
}

func extractHost(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	return u.Host
}

// Fetcher is a thin wrapper over an *http.Client. Timeouts and retries belong
// to the client; a timeout surfaces as an ordinary error.
type Fetcher struct {
	client    *http.Client
	userAgent string
	limiter   *hostLimiter
}

// New creates a Fetcher. A nil client gets one with the given timeout.
func New(client *http.Client, timeout time.Duration) *Fetcher {
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	return &Fetcher{
		client:    client,
		userAgent: "confsync/1.0",
		limiter:   newHostLimiter(),
	}
}

// Get returns the body of rawURL.
func (f *Fetcher) Get(ctx context.Context, rawURL string) ([]byte, error) {
	resp, err := f.do(ctx, http.MethodGet, rawURL)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rawURL, err)
	}
	return body, nil
}

// Head returns the ETag of rawURL, "" when the server sends none.
func (f *Fetcher) Head(ctx context.Context, rawURL string) (string, error) {
	resp, err := f.do(ctx, http.MethodHead, rawURL)
	if err != nil {
		return "", err
	}
	resp.Body.Close()
	return resp.Header.Get("ETag"), nil
}

func (f *Fetcher) do(ctx context.Context, method, rawURL string) (*http.Response, error) {
	host := extractHost(rawURL)
	if err := f.limiter.acquire(ctx, host); err != nil {
		return nil, fmt.Errorf("rate limit cancelled for %s: %w", rawURL, err)
	}
	defer f.limiter.release(host)

	req, err := http.NewRequestWithContext(ctx, method, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "application/json, application/atom+xml;q=0.9, */*;q=0.8")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, rawURL, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		return nil, &StatusError{Method: method, URL: rawURL, StatusCode: resp.StatusCode}
	}
	return resp, nil
}
