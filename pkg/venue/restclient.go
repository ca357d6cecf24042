// Package venue submits priced orders to an execution venue over REST.
package venue

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"quotecore/internal/order"
	"quotecore/internal/pricing"
)

// RESTClient is an order.Venue backed by the venue's REST API.
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

// Submit places o as a limit order at its execution price and returns once
// the venue reports it filled. Any other outcome is an order.ErrVenueRejected.
func (c *RESTClient) Submit(ctx context.Context, o pricing.PricedOrder) error {
	_, err := c.PlaceOrder(ctx, o)
	return err
}

// PlaceOrder is Submit returning the venue's order result.
func (c *RESTClient) PlaceOrder(ctx context.Context, o pricing.PricedOrder) (OrderResult, error) {
	endpoint := c.baseURL + "/v1/orders"

	body, err := json.Marshal(OrderRequest{
		OrderLinkID: o.OrderID,
		Symbol:      o.Symbol,
		Side:        side(o.Direction),
		Qty:         o.RequestedVolume.String(),
		Price:       o.ExecutionPrice.String(),
	})
	if err != nil {
		return OrderResult{}, fmt.Errorf("encode order: %w", err)
	}

	// Construct the POST request with context for timeout/cancel support
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return OrderResult{}, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return OrderResult{}, fmt.Errorf("making request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(resp.Body)
		return OrderResult{}, fmt.Errorf("%w: http %d: %s", order.ErrVenueRejected, resp.StatusCode, bytes.TrimSpace(msg))
	}

	var raw Response
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return OrderResult{}, fmt.Errorf("decode response: %w", err)
	}
	if raw.RetCode != 0 {
		return OrderResult{}, fmt.Errorf("%w: code %d: %s", order.ErrVenueRejected, raw.RetCode, raw.RetMsg)
	}

	var result OrderResult
	if err := json.Unmarshal(raw.Result, &result); err != nil {
		return OrderResult{}, fmt.Errorf("decode result: %w", err)
	}
	if !strings.EqualFold(result.Status, "Filled") {
		return result, fmt.Errorf("%w: order %s is %s", order.ErrVenueRejected, result.OrderID, result.Status)
	}
	return result, nil
}

func side(d pricing.Direction) string {
	if d == pricing.Sell {
		return "Sell"
	}
	return "Buy"
}
