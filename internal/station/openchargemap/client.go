// Package openchargemap provides a client for the Open Charge Map POI API.
package openchargemap

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/autoplaza/autoplaza/internal/provider/resilience"
	"github.com/autoplaza/autoplaza/internal/station"
)

const (
	// DefaultBaseURL is the base URL for the Open Charge Map API.
	DefaultBaseURL = "https://api.openchargemap.io/v3"

	// ProviderName identifies this provider.
	ProviderName = "openchargemap"

	// DefaultCountryCode scopes country queries.
	DefaultCountryCode = "NL"

	// DefaultMaxResults caps a single query.
	DefaultMaxResults = 500
)

// ClientConfig holds configuration for the Open Charge Map client.
type ClientConfig struct {
	// BaseURL is the API base URL (defaults to DefaultBaseURL).
	BaseURL string

	// APIKey is sent as X-API-Key when set.
	APIKey string

	// CountryCode scopes country queries (defaults to DefaultCountryCode).
	CountryCode string

	// MaxResults caps each query (defaults to DefaultMaxResults).
	MaxResults int

	// MaxResultsFunc, if set, overrides MaxResults per request.
	MaxResultsFunc func(ctx context.Context) int

	// HTTPClient is the HTTP client to use.
	// If nil, a default resilient client will be created.
	HTTPClient HTTPDoer

	// Registry receives the default resilient client for health reporting.
	Registry *resilience.Registry

	// Timeout for individual API requests (default: 10s).
	Timeout time.Duration

	// Logger for client operations.
	Logger zerolog.Logger
}

// HTTPDoer abstracts HTTP request execution.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client is an Open Charge Map API client.
type Client struct {
	baseURL        string
	apiKey         string
	countryCode    string
	maxResults     int
	maxResultsFunc func(ctx context.Context) int
	httpClient     HTTPDoer
	logger         zerolog.Logger
}

// NewClient creates a new Open Charge Map client.
func NewClient(cfg ClientConfig) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	countryCode := cfg.CountryCode
	if countryCode == "" {
		countryCode = DefaultCountryCode
	}

	maxResults := cfg.MaxResults
	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = 10 * time.Second
		}
		httpClient = resilience.NewClient(resilience.ClientConfig{
			Name:            ProviderName,
			Timeout:         timeout,
			MaxRetries:      2,
			InitialInterval: 200 * time.Millisecond,
			MaxInterval:     2 * time.Second,
			UserAgent:       "autoplaza-map/1.0",
			Registry:        cfg.Registry,
		})
	}

	return &Client{
		baseURL:        strings.TrimSuffix(baseURL, "/"),
		apiKey:         cfg.APIKey,
		countryCode:    strings.ToUpper(countryCode),
		maxResults:     maxResults,
		maxResultsFunc: cfg.MaxResultsFunc,
		httpClient:     httpClient,
		logger:         cfg.Logger,
	}
}

// FetchStations retrieves the stations for a country- or bounds-scoped query.
func (c *Client) FetchStations(ctx context.Context, q station.Query) ([]station.Feature, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.poiURL(ctx, q), http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch stations: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: unexpected status %d from poi endpoint", station.ErrSourceUnavailable, resp.StatusCode)
	}

	var raw []record
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		// A canceled body read surfaces as a decode error.
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: decode poi response: %w", station.ErrSourceUnavailable, err)
	}

	features := make([]station.Feature, 0, len(raw))
	skipped := 0
	for _, r := range raw {
		f, ok := normalize(r)
		if !ok {
			skipped++
			continue
		}
		features = append(features, f)
	}

	c.logger.Debug().
		Str("query", q.Key()).
		Int("count", len(features)).
		Int("skipped", skipped).
		Msg("fetched stations")

	return features, nil
}

// Variant names the result cap applied to the next request, so cached
// answers fetched under a different cap are not reused.
func (c *Client) Variant(ctx context.Context) string {
	return "max" + strconv.Itoa(c.effectiveMaxResults(ctx))
}

func (c *Client) effectiveMaxResults(ctx context.Context) int {
	if c.maxResultsFunc != nil {
		if n := c.maxResultsFunc(ctx); n > 0 {
			return n
		}
	}
	return c.maxResults
}

func (c *Client) poiURL(ctx context.Context, q station.Query) string {
	params := url.Values{}
	params.Set("output", "json")
	params.Set("maxresults", strconv.Itoa(c.effectiveMaxResults(ctx)))
	params.Set("compact", "false")
	params.Set("verbose", "false")

	switch q.Mode {
	case station.ModeBounds:
		params.Set("boundingbox", q.Box.String())
	default:
		params.Set("countrycode", c.countryCode)
	}

	return c.baseURL + "/poi?" + params.Encode()
}

var _ station.Variant = (*Client)(nil)
