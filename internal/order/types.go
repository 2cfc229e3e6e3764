package order

import (
	"time"
)

// Submission is the transient acknowledgment of a REST placement: the
// exchange accepted the command, nothing more. It must never be treated
// as execution state; that lives in Confirmed.
type Submission struct {
	OrderID       string    `json:"order_id"`
	ClientOrderID string    `json:"client_order_id"`
	Symbol        string    `json:"symbol"`
	Side          string    `json:"side"`
	Size          float64   `json:"size"`
	SubmittedAt   time.Time `json:"submitted_at"`
}

// Confirmed is the event-stream truth about an order. Entries are
// created and overwritten only by the stream handler, last write wins.
type Confirmed struct {
	ID               string    `json:"id"`
	ClientOrderID    string    `json:"client_order_id,omitempty"`
	Symbol           string    `json:"symbol"`
	Size             float64   `json:"size"`
	Side             string    `json:"side"`
	OrderType        string    `json:"order_type,omitempty"`
	State            string    `json:"state"`
	FilledSize       float64   `json:"filled_size"`
	AverageFillPrice float64   `json:"average_fill_price"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// BatchResult is the per-order outcome of a batch cancel. Batches never
// fail as a group; each id reports for itself.
type BatchResult struct {
	OrderID string `json:"order_id"`
	Err     error  `json:"-"`
}
