// Package ipapi resolves an approximate position from a client IP address
// using the ip-api.com JSON endpoint.
package ipapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/autoplaza/autoplaza/internal/geolocation"
	"github.com/autoplaza/autoplaza/internal/provider/resilience"
)

const (
	// DefaultBaseURL is the base URL for the ip-api service.
	DefaultBaseURL = "http://ip-api.com"

	// ProviderName identifies this provider.
	ProviderName = "ip-api"

	// cityAccuracyMeters is a typical radius for city-level IP geolocation.
	cityAccuracyMeters = 25_000
)

// ClientConfig holds configuration for the ip-api client.
type ClientConfig struct {
	// BaseURL is the API base URL (defaults to DefaultBaseURL).
	BaseURL string

	// HTTPClient is the HTTP client to use.
	// If nil, a default resilient client will be created.
	HTTPClient HTTPDoer

	// Registry receives the default resilient client for health reporting.
	Registry *resilience.Registry

	// Timeout bounds each lookup of the default client (default: geolocation.DefaultTimeout).
	Timeout time.Duration
}

// HTTPDoer abstracts HTTP request execution.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client is an ip-api client.
type Client struct {
	baseURL    string
	httpClient HTTPDoer
}

// NewClient creates a new ip-api client.
func NewClient(cfg ClientConfig) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = geolocation.DefaultTimeout
		}
		httpClient = resilience.NewClient(resilience.ClientConfig{
			Name:            ProviderName,
			Timeout:         timeout,
			MaxRetries:      1,
			InitialInterval: 200 * time.Millisecond,
			MaxInterval:     time.Second,
			Registry:        cfg.Registry,
		})
	}

	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: httpClient,
	}
}

type lookupResponse struct {
	Status  string  `json:"status"`
	Message string  `json:"message"`
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
	City    string  `json:"city"`
	Country string  `json:"country"`
}

// CurrentPosition returns the approximate position of opts.ClientIP.
// IP lookups are city-level; HighAccuracy cannot improve on that.
func (c *Client) CurrentPosition(ctx context.Context, opts geolocation.Options) (geolocation.Position, error) {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = geolocation.DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ip := net.ParseIP(strings.TrimSpace(opts.ClientIP))
	if ip == nil {
		return geolocation.Position{}, fmt.Errorf("%w: no client address", geolocation.ErrPositionUnavailable)
	}
	if ip.IsLoopback() || ip.IsPrivate() || ip.IsUnspecified() {
		return geolocation.Position{}, fmt.Errorf("%w: %s is not publicly routable", geolocation.ErrPermissionDenied, ip)
	}

	endpoint := c.baseURL + "/json/" + url.PathEscape(ip.String()) + "?fields=status,message,lat,lon,city,country"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return geolocation.Position{}, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return geolocation.Position{}, classify(ctx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return geolocation.Position{}, fmt.Errorf("%w: unexpected status %d", geolocation.ErrPositionUnavailable, resp.StatusCode)
	}

	var result lookupResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return geolocation.Position{}, classify(ctx, fmt.Errorf("decode response: %w", err))
	}

	if result.Status != "success" {
		switch result.Message {
		case "private range", "reserved range":
			return geolocation.Position{}, fmt.Errorf("%w: %s", geolocation.ErrPermissionDenied, result.Message)
		default:
			return geolocation.Position{}, fmt.Errorf("%w: %s", geolocation.ErrPositionUnavailable, result.Message)
		}
	}

	return geolocation.Position{
		Lat:            result.Lat,
		Lon:            result.Lon,
		AccuracyMeters: cityAccuracyMeters,
		City:           result.City,
		Country:        result.Country,
	}, nil
}

func classify(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", geolocation.ErrTimeout, err)
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return fmt.Errorf("%w: %w", geolocation.ErrPositionUnavailable, err)
}
