package venue

import "encoding/json"

// Response is the envelope every venue endpoint answers with.
type Response struct {
	RetCode int             `json:"retCode"` // 0 means success
	RetMsg  string          `json:"retMsg"`
	Result  json.RawMessage `json:"result"` // decoded per endpoint
	Time    int64           `json:"time"`   // server time, ms
}

// OrderRequest is the body of POST /v1/orders.
type OrderRequest struct {
	OrderLinkID string `json:"orderLinkId"` // our order id, used by the venue for idempotency
	Symbol      string `json:"symbol"`
	Side        string `json:"side"` // "Buy" or "Sell"
	Qty         string `json:"qty"`
	Price       string `json:"price"`
}

type OrderResult struct {
	OrderID string `json:"orderId"`
	Status  string `json:"status"` // "Filled", "Rejected", ...
}
