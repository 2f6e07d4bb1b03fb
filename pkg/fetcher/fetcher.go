// Package fetcher retrieves pages and images over HTTP with retry, rate
// limiting and an optional on-disk cache.
package fetcher

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
	"golang.org/x/time/rate"

	"github.com/mccodeai/mmgamerag/pkg/apperr"
	"github.com/mccodeai/mmgamerag/pkg/caching"
)

const defaultMaxBodyBytes = 10 << 20

// Options configures a Fetcher. Zero values fall back to defaults.
type Options struct {
	Timeout           time.Duration
	UserAgent         string
	Retries           int
	RetryDelay        time.Duration
	RequestsPerSecond float64 // 0 disables the limiter
	MaxBodyBytes      int64
	Cache             *caching.Cache
	Client            *http.Client
}

type Fetcher struct {
	client    *http.Client
	userAgent string
	maxBody   int64
	limiter   *rate.Limiter
	cache     *caching.Cache
	executor  failsafe.Executor[[]byte]
}

// statusError is returned for non-200 responses.
type statusError struct {
	code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("status code: %d", e.code)
}

func (e *statusError) retryable() bool {
	return e.code == http.StatusTooManyRequests || e.code >= 500
}

func NewFetcher(opts Options) *Fetcher {
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	if opts.Retries < 0 {
		opts.Retries = 0
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = time.Second
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = defaultMaxBodyBytes
	}
	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}

	var limiter *rate.Limiter
	if opts.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1)
	}

	retry := retrypolicy.NewBuilder[[]byte]().
		WithDelay(opts.RetryDelay).
		WithMaxRetries(opts.Retries).
		HandleIf(func(_ []byte, err error) bool {
			if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return false
			}
			var se *statusError
			if errors.As(err, &se) {
				return se.retryable()
			}
			return true
		}).
		Build()

	return &Fetcher{
		client:    client,
		userAgent: opts.UserAgent,
		maxBody:   opts.MaxBodyBytes,
		limiter:   limiter,
		cache:     opts.Cache,
		executor:  failsafe.With[[]byte](retry),
	}
}

// GetHtml fetches a page and parses it into a goquery document.
func (f *Fetcher) GetHtml(ctx context.Context, url string) (*goquery.Document, error) {
	body, err := f.GetBytes(ctx, url)
	if err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse HTML: %w", apperr.ErrParse, err)
	}
	return doc, nil
}

// GetBytes returns the response body for url. Transient failures are
// retried; exhaustion is reported as apperr.ErrFetchFailure.
func (f *Fetcher) GetBytes(ctx context.Context, url string) ([]byte, error) {
	if f.cache != nil {
		if data, ok := f.cache.Get(url); ok {
			fetchTotal.WithLabelValues("cache_hit").Inc()
			return data, nil
		}
	}

	start := time.Now()
	body, err := f.executor.WithContext(ctx).Get(func() ([]byte, error) {
		return f.attempt(ctx, url)
	})
	fetchDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		fetchTotal.WithLabelValues("failed").Inc()
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("%w: %s: %w", apperr.ErrFetchFailure, url, ctxErr)
		}
		return nil, fmt.Errorf("%w: %s: %w", apperr.ErrFetchFailure, url, err)
	}
	fetchTotal.WithLabelValues("ok").Inc()

	if f.cache != nil {
		_ = f.cache.Set(url, body)
	}
	return body, nil
}

// Forget drops url from the cache.
func (f *Fetcher) Forget(url string) error {
	if f.cache == nil {
		return nil
	}
	return f.cache.Delete(url)
}

func (f *Fetcher) attempt(ctx context.Context, url string) ([]byte, error) {
	if f.limiter != nil {
		if err := f.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}
	fetchAttempts.Inc()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make HTTP request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &statusError{code: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBody+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if int64(len(body)) > f.maxBody {
		return nil, &statusError{code: http.StatusRequestEntityTooLarge}
	}
	return body, nil
}
