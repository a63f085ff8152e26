package fetchers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sony/gobreaker"

	"github.com/i474232898/load-profile-aggregation/internal/loadprofile"
)

// HTTPFetcher implements loadprofile.Fetcher over HTTP with retries and a circuit breaker.
type HTTPFetcher struct {
	name    string
	httpCfg HTTPClientConfig
	circuit *gobreaker.CircuitBreaker
}

// DefaultBackoff is used when NewHTTPFetcher is given a zero BackoffConfig.
var DefaultBackoff = BackoffConfig{
	MaxRetries:      3,
	InitialInterval: 500 * time.Millisecond,
	MaxInterval:     5 * time.Second,
}

func NewHTTPFetcher(client *http.Client, backoff BackoffConfig) *HTTPFetcher {
	if backoff == (BackoffConfig{}) {
		backoff = DefaultBackoff
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "dlp",
		MaxRequests: 5,
		Interval:    1 * time.Minute,
		Timeout:     2 * time.Minute,
		// A day that was never published says nothing about the server's health.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrNotPublished)
		},
	})

	return &HTTPFetcher{
		name: "dlp",
		httpCfg: HTTPClientConfig{
			Client:  client,
			Backoff: backoff,
		},
		circuit: cb,
	}
}

func (f *HTTPFetcher) Name() string {
	return f.name
}

// Fetch streams url into sink. Any failure wraps loadprofile.ErrFetch, except sink write
// failures, which the sink reports itself.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string, sink io.Writer) error {
	buildRequest := func() (*http.Request, error) {
		return http.NewRequest(http.MethodGet, url, nil)
	}

	resp, err := doRequestWithResilience(ctx, f.httpCfg, f.circuit, buildRequest)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", loadprofile.ErrFetch, url, err)
	}
	defer resp.Body.Close()

	if _, err := io.Copy(sink, &readErr{r: resp.Body}); err != nil {
		if errors.Is(err, errRead) {
			return fmt.Errorf("%w: %s: %w", loadprofile.ErrFetch, url, err)
		}
		return err
	}
	return nil
}

var errRead = errors.New("read response body")

// readErr tags body read failures so they can be told apart from sink write failures.
type readErr struct {
	r io.Reader
}

func (r *readErr) Read(p []byte) (int, error) {
	n, err := r.r.Read(p)
	if err != nil && err != io.EOF {
		return n, fmt.Errorf("%w: %w", errRead, err)
	}
	return n, err
}
