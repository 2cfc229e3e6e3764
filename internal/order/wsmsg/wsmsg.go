// Package wsmsg is the single parsing step between the raw order event
// stream and the typed domain. Every inbound frame is validated against
// a closed schema of known message kinds before anything downstream
// sees it; duck-typed payloads never cross this boundary.
package wsmsg

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/tidwall/gjson"

	"deltadeck/internal/pkg/convert"
)

type Kind string

const (
	KindOrder Kind = "orders"
	KindFill  Kind = "fills"
)

// Order lifecycle states as the exchange reports them.
const (
	StateOpen      = "open"
	StatePending   = "pending"
	StateClosed    = "closed"
	StateCancelled = "cancelled"
)

const schemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["type"],
  "properties": {
    "type": {"enum": ["orders", "fills"]}
  },
  "allOf": [
    {
      "if": {"properties": {"type": {"const": "orders"}}},
      "then": {
        "required": ["id", "state"],
        "properties": {
          "state": {"enum": ["open", "pending", "closed", "cancelled"]}
        }
      }
    },
    {
      "if": {"properties": {"type": {"const": "fills"}}},
      "then": {"required": ["order_id"]}
    }
  ]
}`

var frameSchema = jsonschema.MustCompileString("order_stream.json", schemaJSON)

// OrderEvent is the typed form of one validated frame. Fill frames fold
// into the same shape: they carry the fill size/price and leave the
// state at whatever the frame reported (open when absent).
type OrderEvent struct {
	Kind             Kind      `json:"kind"`
	OrderID          string    `json:"order_id"`
	ClientOrderID    string    `json:"client_order_id,omitempty"`
	Symbol           string    `json:"symbol,omitempty"`
	Side             string    `json:"side,omitempty"`
	Size             float64   `json:"size,omitempty"`
	OrderType        string    `json:"order_type,omitempty"`
	State            string    `json:"state"`
	FilledSize       float64   `json:"filled_size,omitempty"`
	AverageFillPrice float64   `json:"average_fill_price,omitempty"`
	Timestamp        time.Time `json:"timestamp"`
}

// Parse validates one raw frame and extracts the typed event. Frames
// outside the closed union fail here and never reach the order cache.
func Parse(raw json.RawMessage) (OrderEvent, error) {
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return OrderEvent{}, fmt.Errorf("malformed frame: %w", err)
	}
	if err := frameSchema.Validate(doc); err != nil {
		return OrderEvent{}, fmt.Errorf("frame rejected by schema: %w", err)
	}

	kind := Kind(gjson.GetBytes(raw, "type").String())
	evt := OrderEvent{
		Kind:             kind,
		ClientOrderID:    strings.TrimSpace(gjson.GetBytes(raw, "client_order_id").String()),
		Symbol:           extractSymbol(raw),
		Side:             strings.ToLower(strings.TrimSpace(gjson.GetBytes(raw, "side").String())),
		OrderType:        strings.TrimSpace(gjson.GetBytes(raw, "order_type").String()),
		Size:             convert.ToFloat64(gjson.GetBytes(raw, "size").Value()),
		FilledSize:       convert.ToFloat64(gjson.GetBytes(raw, "filled_size").Value()),
		AverageFillPrice: convert.ToFloat64(gjson.GetBytes(raw, "average_fill_price").Value()),
		Timestamp:        parseTimestamp(raw),
	}

	switch kind {
	case KindOrder:
		evt.OrderID = gjson.GetBytes(raw, "id").String()
		evt.State = gjson.GetBytes(raw, "state").String()
	case KindFill:
		evt.OrderID = gjson.GetBytes(raw, "order_id").String()
		evt.State = strings.ToLower(strings.TrimSpace(gjson.GetBytes(raw, "order_state").String()))
		if evt.State == "" {
			evt.State = StateOpen
		}
		if evt.FilledSize == 0 {
			evt.FilledSize = evt.Size
		}
		if evt.AverageFillPrice == 0 {
			evt.AverageFillPrice = convert.ToFloat64(gjson.GetBytes(raw, "price").Value())
		}
	}
	if strings.TrimSpace(evt.OrderID) == "" {
		return OrderEvent{}, fmt.Errorf("frame missing order id")
	}
	if !validState(evt.State) {
		return OrderEvent{}, fmt.Errorf("unknown order state: %q", evt.State)
	}
	return evt, nil
}

// extractSymbol reads "symbol", falling back to the "product_symbol"
// alias some feeds use for the same field.
func extractSymbol(raw json.RawMessage) string {
	sym := gjson.GetBytes(raw, "symbol").String()
	if strings.TrimSpace(sym) == "" {
		sym = gjson.GetBytes(raw, "product_symbol").String()
	}
	return strings.ToUpper(strings.TrimSpace(sym))
}

func validState(state string) bool {
	switch state {
	case StateOpen, StatePending, StateClosed, StateCancelled:
		return true
	default:
		return false
	}
}

// parseTimestamp accepts epoch microseconds or milliseconds in the
// "timestamp" field and falls back to arrival time.
func parseTimestamp(raw json.RawMessage) time.Time {
	ts := gjson.GetBytes(raw, "timestamp")
	if !ts.Exists() || ts.Int() <= 0 {
		return time.Now()
	}
	v := ts.Int()
	if v > 1e15 { // microseconds
		return time.UnixMicro(v)
	}
	return time.UnixMilli(v)
}
