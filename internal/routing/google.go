package routing

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"
)

const (
	// defaultDirectionsURL is the Google Directions API JSON endpoint.
	defaultDirectionsURL = "https://maps.googleapis.com/maps/api/directions/json"

	// defaultTimeout is the maximum duration for a single Directions API call.
	defaultTimeout = 10 * time.Second

	// maxResponseBytes caps how much of an upstream body is read.
	maxResponseBytes = 8 << 20

	// initialBackoff is the delay before the second attempt; it doubles on
	// every further attempt.
	initialBackoff = 200 * time.Millisecond

	// httpMaxIdleConns is the maximum number of idle (keep-alive) connections
	// kept in the transport pool across all hosts.
	httpMaxIdleConns = 10

	// httpIdleConnTimeout is how long an idle connection is kept in the pool
	// before being closed.
	httpIdleConnTimeout = 30 * time.Second
)

// ErrMissingAPIKey is returned by NewGoogleClient when no API key is given.
var ErrMissingAPIKey = errors.New("routing: google: api key is empty")

// ErrResponseTooLarge is returned (inside an *UpstreamError) when the upstream
// body exceeds the read limit. A truncated document is never relayed.
var ErrResponseTooLarge = errors.New("routing: google: response body too large")

// UpstreamError reports that the Directions API could not be reached or its
// response could not be read.
type UpstreamError struct {
	Attempts int
	Err      error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("routing: google: upstream failed after %d attempt(s): %v", e.Attempts, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// GoogleClient implements Client using the Google Directions API.
type GoogleClient struct {
	apiKey      string
	language    string
	region      string
	httpClient  *http.Client
	timeout     time.Duration
	maxAttempts int
	backoff     time.Duration
	maxBody     int64
	// apiURL is the Directions API endpoint. Overrideable in tests.
	apiURL string
}

// GoogleOption configures a GoogleClient.
type GoogleOption func(*GoogleClient)

// WithAPIURL points the client at a different Directions endpoint. An empty
// u keeps the Google endpoint.
func WithAPIURL(u string) GoogleOption {
	return func(g *GoogleClient) {
		if u != "" {
			g.apiURL = u
		}
	}
}

// WithLocale sets the language and region sent on every request.
func WithLocale(language, region string) GoogleOption {
	return func(g *GoogleClient) {
		g.language = language
		g.region = region
	}
}

// WithTimeout bounds each individual upstream attempt.
func WithTimeout(d time.Duration) GoogleOption {
	return func(g *GoogleClient) {
		if d > 0 {
			g.timeout = d
		}
	}
}

// WithMaxAttempts enables retries of network errors, 429 and 5xx responses.
// 1 means a single attempt.
func WithMaxAttempts(n int) GoogleOption {
	return func(g *GoogleClient) {
		if n > 0 {
			g.maxAttempts = n
		}
	}
}

// withBackoff overrides the initial retry delay. Used by tests.
func withBackoff(d time.Duration) GoogleOption {
	return func(g *GoogleClient) { g.backoff = d }
}

// withMaxResponseBytes overrides the body read limit. Used by tests.
func withMaxResponseBytes(n int64) GoogleOption {
	return func(g *GoogleClient) { g.maxBody = n }
}

// NewGoogleClient creates a Client backed by the Google Directions API.
// apiKey must be a valid Google Cloud API key with the Directions API enabled.
func NewGoogleClient(apiKey string, opts ...GoogleOption) (*GoogleClient, error) {
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}

	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        httpMaxIdleConns,
		MaxIdleConnsPerHost: httpMaxIdleConns,
		IdleConnTimeout:     httpIdleConnTimeout,
	}
	g := &GoogleClient{
		apiKey:      apiKey,
		language:    "ja",
		region:      "jp",
		apiURL:      defaultDirectionsURL,
		timeout:     defaultTimeout,
		maxAttempts: 1,
		backoff:     initialBackoff,
		maxBody:     maxResponseBytes,
		httpClient:  &http.Client{Transport: transport},
	}
	for _, o := range opts {
		o(g)
	}
	return g, nil
}

// Directions performs the Directions API call for req.
//
// A response with any HTTP status is returned as a Document; only transport
// failures produce an *UpstreamError. With more than one attempt configured,
// network errors, 429 and 5xx are retried with exponential backoff.
func (g *GoogleClient) Directions(ctx context.Context, req Request) (*Document, error) {
	endpoint := g.apiURL + "?" + req.Values(g.apiKey, g.language, g.region).Encode()

	backoff := g.backoff
	var lastErr error

	for attempt := 1; attempt <= g.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, &UpstreamError{Attempts: attempt - 1, Err: err}
		}

		doc, err := g.get(ctx, endpoint)
		switch {
		case err != nil:
			lastErr = err
			if !isRetryableErr(err) {
				return nil, &UpstreamError{Attempts: attempt, Err: err}
			}
		case isRetryableStatus(doc.StatusCode) && attempt < g.maxAttempts:
			lastErr = fmt.Errorf("status %d", doc.StatusCode)
		default:
			return doc, nil
		}

		if attempt == g.maxAttempts {
			break
		}

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, &UpstreamError{Attempts: attempt, Err: ctx.Err()}
		case <-timer.C:
		}
		backoff *= 2
	}

	return nil, &UpstreamError{Attempts: g.maxAttempts, Err: lastErr}
}

// get performs a single GET with the per-attempt timeout and reads the body.
func (g *GoogleClient) get(ctx context.Context, endpoint string) (*Document, error) {
	reqCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(reqCtx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")

	httpResp, err := g.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("http: %w", err)
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(httpResp.Body, g.maxBody+1))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if int64(len(body)) > g.maxBody {
		return nil, fmt.Errorf("read response: %w (limit %d bytes)", ErrResponseTooLarge, g.maxBody)
	}

	return &Document{
		Body:        body,
		StatusCode:  httpResp.StatusCode,
		ContentType: httpResp.Header.Get("Content-Type"),
	}, nil
}

func isRetryableStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

func isRetryableErr(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
