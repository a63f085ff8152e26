package fetchers

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/i474232898/load-profile-aggregation/internal/loadprofile"
)

var fastBackoff = BackoffConfig{
	MaxRetries:      2,
	InitialInterval: time.Millisecond,
	MaxInterval:     5 * time.Millisecond,
}

func TestFetchStreamsBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("20200301,Profile,Method"))
	}))
	defer srv.Close()

	f := NewHTTPFetcher(srv.Client(), fastBackoff)
	var buf bytes.Buffer
	if err := f.Fetch(context.Background(), srv.URL+"/20200301.dlp", &buf); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if buf.String() != "20200301,Profile,Method" {
		t.Fatalf("unexpected body %q", buf.String())
	}
}

func TestFetchRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	f := NewHTTPFetcher(srv.Client(), fastBackoff)
	var buf bytes.Buffer
	if err := f.Fetch(context.Background(), srv.URL, &buf); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls.Load() != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls.Load())
	}
}

func TestFetchNotFoundIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.NotFound(w, r)
	}))
	defer srv.Close()

	f := NewHTTPFetcher(srv.Client(), fastBackoff)
	err := f.Fetch(context.Background(), srv.URL, &bytes.Buffer{})
	if !errors.Is(err, loadprofile.ErrFetch) || !errors.Is(err, ErrNotPublished) {
		t.Fatalf("expected ErrFetch wrapping ErrNotPublished, got %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("expected a single attempt, got %d", calls.Load())
	}
}

func TestFetchHonoursContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	f := NewHTTPFetcher(srv.Client(), fastBackoff)
	if err := f.Fetch(ctx, srv.URL, &bytes.Buffer{}); !errors.Is(err, loadprofile.ErrFetch) {
		t.Fatalf("expected ErrFetch on timeout, got %v", err)
	}
}

type failingSink struct{ err error }

func (s failingSink) Write([]byte) (int, error) { return 0, s.err }

func TestFetchSinkErrorPassesThrough(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("data"))
	}))
	defer srv.Close()

	sinkErr := errors.New("disk full")
	f := NewHTTPFetcher(srv.Client(), fastBackoff)
	err := f.Fetch(context.Background(), srv.URL, failingSink{err: sinkErr})
	if !errors.Is(err, sinkErr) || errors.Is(err, loadprofile.ErrFetch) {
		t.Fatalf("expected the sink error unwrapped by ErrFetch, got %v", err)
	}
}

func TestNoHTTPClient(t *testing.T) {
	f := NewHTTPFetcher(nil, fastBackoff)
	if err := f.Fetch(context.Background(), "http://example.invalid", &bytes.Buffer{}); !errors.Is(err, loadprofile.ErrFetch) {
		t.Fatalf("expected ErrFetch, got %v", err)
	}
}
