// Package indicators fetches technical-indicator vote counts from a charting provider.
package indicators

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"quotecore/internal/signal"
)

type response struct {
	RetCode int             `json:"retCode"`
	RetMsg  string          `json:"retMsg"`
	Result  json.RawMessage `json:"result"`
}

// SummaryResponse is the result of GET /v1/indicators.
type SummaryResponse struct {
	Symbol         string        `json:"symbol"`
	Interval       string        `json:"interval"`
	MovingAverages signal.Counts `json:"movingAverages"`
	Oscillators    signal.Counts `json:"oscillators"`
}

// RESTClient implements signal.CountsSource.
type RESTClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewRESTClient creates a client for baseURL. timeout bounds each request.
func NewRESTClient(baseURL string, timeout time.Duration) *RESTClient {
	return &RESTClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Counts fetches the moving-average and oscillator votes for symbol at interval.
func (c *RESTClient) Counts(ctx context.Context, symbol string, interval signal.Interval) (signal.Counts, signal.Counts, error) {
	q := url.Values{}
	q.Set("symbol", symbol)
	q.Set("interval", string(interval))
	endpoint := c.baseURL + "/v1/indicators?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return signal.Counts{}, signal.Counts{}, fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return signal.Counts{}, signal.Counts{}, fmt.Errorf("making request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return signal.Counts{}, signal.Counts{}, fmt.Errorf("indicators error: http %d: %s", resp.StatusCode, body)
	}

	var raw response
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return signal.Counts{}, signal.Counts{}, fmt.Errorf("decode response: %w", err)
	}
	if raw.RetCode != 0 {
		return signal.Counts{}, signal.Counts{}, fmt.Errorf("indicators error: code %d: %s", raw.RetCode, raw.RetMsg)
	}

	var result SummaryResponse
	if err := json.Unmarshal(raw.Result, &result); err != nil {
		return signal.Counts{}, signal.Counts{}, fmt.Errorf("decode result: %w", err)
	}
	return result.MovingAverages, result.Oscillators, nil
}
