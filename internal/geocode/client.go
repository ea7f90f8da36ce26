package geocode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"time"

	"reconquest/internal"
	"reconquest/internal/config"
)

const (
	maxAttempts = 4
	// results scoring below this are too vague to place a customer
	minScore = 0.4
)

// Client queries the French national address API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *RateLimiter
}

type searchResponse struct {
	Features []struct {
		Geometry struct {
			Coordinates []float64 `json:"coordinates"`
		} `json:"geometry"`
		Properties struct {
			Label string  `json:"label"`
			Score float64 `json:"score"`
		} `json:"properties"`
	} `json:"features"`
}

func NewClient(cfg config.Config) *Client {
	return &Client{
		baseURL:    cfg.GeocoderBaseURL,
		httpClient: &http.Client{Timeout: time.Duration(cfg.GeocoderTimeoutMs) * time.Millisecond},
		limiter:    NewRateLimiter(cfg.GeocoderRateLimitRPS),
	}
}

func (c *Client) Lookup(ctx context.Context, address string) (internal.Coordinates, bool, error) {
	body, err := c.fetch(ctx, "search/", map[string]string{"q": address, "limit": "1"})
	if err != nil {
		return internal.Coordinates{}, false, err
	}

	var resp searchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return internal.Coordinates{}, false, fmt.Errorf("decode geocoder response: %w", err)
	}
	if len(resp.Features) == 0 {
		return internal.Coordinates{}, false, nil
	}
	f := resp.Features[0]
	if len(f.Geometry.Coordinates) < 2 || f.Properties.Score < minScore {
		return internal.Coordinates{}, false, nil
	}
	// GeoJSON order is [lng, lat]
	return internal.Coordinates{
		Lat:   f.Geometry.Coordinates[1],
		Lng:   f.Geometry.Coordinates[0],
		Label: f.Properties.Label,
	}, true, nil
}

func (c *Client) fetch(ctx context.Context, endpoint string, params map[string]string) ([]byte, error) {
	u, err := url.Parse(strings.TrimRight(c.baseURL, "/") + "/" + endpoint)
	if err != nil {
		return nil, err
	}
	q := u.Query()
	for k, v := range params {
		if strings.TrimSpace(v) != "" {
			q.Set(k, v)
		}
	}
	u.RawQuery = q.Encode()

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = err
			continue
		}

		body, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			lastErr = readErr
			continue
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			if isRetryableStatus(resp.StatusCode) && attempt < maxAttempts {
				lastErr = fmt.Errorf("geocoder status %d", resp.StatusCode)
				if err := sleepCtx(ctx, backoff(attempt)); err != nil {
					return nil, err
				}
				continue
			}
			return nil, fmt.Errorf("geocoder error: status=%d body=%s", resp.StatusCode, truncate(string(body), 200))
		}
		return body, nil
	}

	if lastErr == nil {
		lastErr = errors.New("geocoder request failed")
	}
	return nil, lastErr
}

func backoff(attempt int) time.Duration {
	return time.Duration(250*(1<<(attempt-1))+rand.Intn(100)) * time.Millisecond
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func isRetryableStatus(status int) bool {
	switch status {
	case 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
