package exchange

// OrderRequest contains parameters for placing an order.
type OrderRequest struct {
	ProductSymbol string  `json:"product_symbol"`
	Size          float64 `json:"size"`
	Side          string  `json:"side"`       // "buy" or "sell"
	OrderType     string  `json:"order_type"` // "market_order" or "limit_order"
	LimitPrice    float64 `json:"limit_price,omitempty"`
	ClientOrderID string  `json:"client_order_id,omitempty"`
	ReduceOnly    bool    `json:"reduce_only,omitempty"`
	TimeInForce   string  `json:"time_in_force,omitempty"` // "gtc", "ioc", "fok"
}

// OrderResponse is the exchange's acceptance of a command. It says
// nothing about execution; the event stream owns that.
type OrderResponse struct {
	ID            string `json:"id"`
	ClientOrderID string `json:"client_order_id,omitempty"`
	State         string `json:"state"`
}

// OrderEdit carries the mutable fields of a resting order.
type OrderEdit struct {
	Size       float64 `json:"size,omitempty"`
	LimitPrice float64 `json:"limit_price,omitempty"`
}

// CancelFilters narrows a cancel-all. Zero value cancels everything.
type CancelFilters struct {
	ProductSymbol string `json:"product_symbol,omitempty"`
	Side          string `json:"side,omitempty"`
}
