package fetcher

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mccodeai/mmgamerag/pkg/apperr"
	"github.com/mccodeai/mmgamerag/pkg/caching"
)

func newTestFetcher(cache *caching.Cache) *Fetcher {
	return NewFetcher(Options{
		Timeout:    2 * time.Second,
		Retries:    2,
		RetryDelay: 10 * time.Millisecond,
		Cache:      cache,
	})
}

func TestGetBytes_RetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("<html><title>ok</title></html>"))
	}))
	defer srv.Close()

	body, err := newTestFetcher(nil).GetBytes(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("GetBytes() error = %v", err)
	}
	if string(body) != "<html><title>ok</title></html>" {
		t.Errorf("GetBytes() body = %q", body)
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("server calls = %d, want 3", got)
	}
}

func TestGetBytes_Failures(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		wantCalls int32
	}{
		{name: "server error exhausts retries", status: http.StatusInternalServerError, wantCalls: 3},
		{name: "not found is not retried", status: http.StatusNotFound, wantCalls: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			_, err := newTestFetcher(nil).GetBytes(context.Background(), srv.URL)
			if !errors.Is(err, apperr.ErrFetchFailure) {
				t.Fatalf("GetBytes() error = %v, want ErrFetchFailure", err)
			}
			if got := calls.Load(); got != tt.wantCalls {
				t.Errorf("server calls = %d, want %d", got, tt.wantCalls)
			}
		})
	}
}

func TestGetBytes_UsesCache(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte("cached"))
	}))
	defer srv.Close()

	cache, err := caching.NewCache(t.TempDir(), time.Hour)
	if err != nil {
		t.Fatalf("NewCache() error = %v", err)
	}
	f := newTestFetcher(cache)
	for i := 0; i < 2; i++ {
		if _, err := f.GetBytes(context.Background(), srv.URL); err != nil {
			t.Fatalf("GetBytes() error = %v", err)
		}
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("server calls = %d, want 1", got)
	}
}

func TestForget_RefetchesPage(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte("page"))
	}))
	defer srv.Close()

	cache, err := caching.NewCache(t.TempDir(), time.Hour)
	if err != nil {
		t.Fatalf("NewCache() error = %v", err)
	}
	f := newTestFetcher(cache)
	if _, err := f.GetBytes(context.Background(), srv.URL); err != nil {
		t.Fatalf("GetBytes() error = %v", err)
	}
	if err := f.Forget(srv.URL); err != nil {
		t.Fatalf("Forget() error = %v", err)
	}
	if _, err := f.GetBytes(context.Background(), srv.URL); err != nil {
		t.Fatalf("GetBytes() error = %v", err)
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("server calls = %d, want 2", got)
	}
	if err := newTestFetcher(nil).Forget(srv.URL); err != nil {
		t.Errorf("Forget() without cache error = %v", err)
	}
}

func TestGetBytes_Cancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestFetcher(nil).GetBytes(ctx, srv.URL)
	if !errors.Is(err, apperr.ErrFetchFailure) || !errors.Is(err, context.Canceled) {
		t.Errorf("GetBytes() error = %v, want ErrFetchFailure wrapping context.Canceled", err)
	}
}

func TestGetHtml(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html><head><title>Boss guide</title></head><body><p>hi</p></body></html>`))
	}))
	defer srv.Close()

	doc, err := newTestFetcher(nil).GetHtml(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("GetHtml() error = %v", err)
	}
	if got := doc.Find("title").Text(); got != "Boss guide" {
		t.Errorf("title = %q, want %q", got, "Boss guide")
	}
}
