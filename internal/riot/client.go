package riot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/time/rate"
)

// ErrNotFound is returned when the API reports 404 for a resource. Freshly
// finished matches can 404 for a while before they propagate.
var ErrNotFound = errors.New("riot: resource not found")

// Routing region base URLs for the Account-V1 and Match-V5 APIs
var regionalBaseURLs = map[string]string{
	"americas": "https://americas.api.riotgames.com",
	"asia":     "https://asia.api.riotgames.com",
	"europe":   "https://europe.api.riotgames.com",
	"sea":      "https://sea.api.riotgames.com",
}

// Platform region -> routing region
var platformRouting = map[string]string{
	"NA": "americas", "BR": "americas", "LAN": "americas", "LAS": "americas",
	"KR": "asia", "JP": "asia",
	"EUW": "europe", "EUNE": "europe", "TR": "europe", "RU": "europe",
	"OCE": "sea", "PH": "sea", "SG": "sea", "TH": "sea", "TW": "sea", "VN": "sea",
}

const defaultRouting = "asia"

// RoutingBaseURL returns the regional API host for a platform region code
func RoutingBaseURL(region string) string {
	routing, ok := platformRouting[region]
	if !ok {
		routing = defaultRouting
	}
	return regionalBaseURLs[routing]
}

// Client is a Riot Games API client with a shared rate ceiling across all
// callers. Development keys allow 20 requests per second.
type Client struct {
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewClient creates a new Riot API client
func NewClient(apiKey string) *Client {
	return &Client{
		apiKey: apiKey,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		limiter: rate.NewLimiter(rate.Limit(20), 20),
	}
}

// doRequest performs an HTTP request under the rate ceiling
func (c *Client) doRequest(req *http.Request) (*http.Response, error) {
	if err := c.limiter.Wait(req.Context()); err != nil {
		return nil, err
	}

	// Add API key header
	req.Header.Set("X-Riot-Token", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}

	// Handle rate limiting (429): honor Retry-After and retry once
	if resp.StatusCode == http.StatusTooManyRequests {
		wait := time.Second
		if s := resp.Header.Get("Retry-After"); s != "" {
			if secs, err := strconv.Atoi(s); err == nil {
				wait = time.Duration(secs) * time.Second
			}
		}
		resp.Body.Close()

		select {
		case <-req.Context().Done():
			return nil, req.Context().Err()
		case <-time.After(wait):
		}
		return c.httpClient.Do(req)
	}

	return resp, nil
}

// get performs a GET request and decodes the JSON response
func (c *Client) get(ctx context.Context, url string, result interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.doRequest(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("API error: status %d, body: %s", resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return nil
}
