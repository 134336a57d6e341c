// Package geocode resolves block addresses to coordinates through the
// OneMap search API, with bounded retries, rate-limit throttling, and a
// persistent lookup cache.
package geocode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/seayun/hdbmap/internal/retry"
)

// ErrNoMatch is returned when the service resolves zero results for an
// address. Per-row, non-fatal: callers drop the row and continue the batch.
var ErrNoMatch = errors.New("geocode: no match")

// Result is one resolved address. Matches carries the total match count so
// callers can see when the first-match choice was ambiguous.
type Result struct {
	Address  string
	Building string
	Lat      float64
	Lon      float64
	Matches  int
}

// Client queries the geocoding service.
type Client struct {
	baseURL  string
	token    string
	http     *http.Client
	policy   retry.Policy
	throttle time.Duration
	cache    *Cache
	log      *zap.Logger
}

// NewClient creates a geocoding client. cache may be nil to disable
// caching; policy bounds per-address attempts and tests pass zero delays.
// throttle is slept before every network request to respect the service
// rate limit.
func NewClient(baseURL, token string, policy retry.Policy, throttle time.Duration, cache *Cache, log *zap.Logger) *Client {
	return &Client{
		baseURL:  baseURL,
		token:    token,
		http:     &http.Client{Timeout: 15 * time.Second},
		policy:   policy,
		throttle: throttle,
		cache:    cache,
		log:      log,
	}
}

// Lookup resolves an address, taking the first match when several are
// returned. Transient failures are retried up to the policy budget; zero
// matches return ErrNoMatch without further attempts.
func (c *Client) Lookup(ctx context.Context, address string) (*Result, error) {
	if c.cache != nil {
		cached, ok, err := c.cache.Get(address)
		if err != nil {
			c.log.Warn("geocode cache read failed", zap.String("address", address), zap.Error(err))
		} else if ok {
			if cached == nil {
				return nil, fmt.Errorf("%w: %s (cached)", ErrNoMatch, address)
			}
			return cached, nil
		}
	}

	var result *Result
	var noMatch bool
	err := c.policy.Do(ctx, func() error {
		time.Sleep(c.throttle)
		r, err := c.search(ctx, address)
		if errors.Is(err, ErrNoMatch) {
			// An empty result set is an answer, not a transient fault.
			noMatch = true
			return nil
		}
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	if noMatch {
		c.put(address, nil)
		return nil, fmt.Errorf("%w: %s", ErrNoMatch, address)
	}

	if result.Matches > 1 {
		c.log.Debug("multiple geocode matches, taking first",
			zap.String("address", address),
			zap.Int("matches", result.Matches))
	}
	c.put(address, result)
	return result, nil
}

func (c *Client) put(address string, r *Result) {
	if c.cache == nil {
		return
	}
	if err := c.cache.Put(address, r); err != nil {
		c.log.Warn("geocode cache write failed", zap.String("address", address), zap.Error(err))
	}
}

func (c *Client) search(ctx context.Context, address string) (*Result, error) {
	params := url.Values{
		"searchVal":      {address},
		"returnGeom":     {"Y"},
		"getAddrDetails": {"Y"},
		"pageNum":        {"1"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("building search request: %w", err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("searching %q: %w", address, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("searching %q: HTTP %d", address, resp.StatusCode)
	}

	var body struct {
		Found   int `json:"found"`
		Results []struct {
			Address   string `json:"ADDRESS"`
			Building  string `json:"BUILDING"`
			Latitude  string `json:"LATITUDE"`
			Longitude string `json:"LONGITUDE"`
		} `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decoding search response: %w", err)
	}

	if body.Found == 0 || len(body.Results) == 0 {
		return nil, ErrNoMatch
	}

	first := body.Results[0]
	lat, err := strconv.ParseFloat(first.Latitude, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing latitude %q: %w", first.Latitude, err)
	}
	lon, err := strconv.ParseFloat(first.Longitude, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing longitude %q: %w", first.Longitude, err)
	}

	return &Result{
		Address:  first.Address,
		Building: first.Building,
		Lat:      lat,
		Lon:      lon,
		Matches:  body.Found,
	}, nil
}
