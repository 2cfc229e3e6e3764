// Package exchange defines the collaborator boundary of the core: the
// REST-shaped order command interface, the asynchronous order event
// stream, the market/account data source and the analysis oracle. All
// four are implemented outside this repository; the core only consumes
// them through these interfaces.
package exchange

import (
	"context"
	"encoding/json"

	"deltadeck/internal/types"
)

// Commander is the request/response order command surface. A successful
// call confirms only that the exchange accepted the command; execution
// truth arrives later on the EventStream.
type Commander interface {
	PlaceOrder(ctx context.Context, req OrderRequest) (*OrderResponse, error)

	CancelOrder(ctx context.Context, orderID string) error

	EditOrder(ctx context.Context, orderID string, edit OrderEdit) error

	CancelAllOrders(ctx context.Context, filters CancelFilters) error
}

// EventStream delivers raw order/fill frames from the exchange socket.
// The transport (connection, reconnect, subscription) is out of scope;
// the stream is assumed to deliver frames in the order the exchange
// produced them. The channel closes when the transport shuts down.
type EventStream interface {
	Frames(ctx context.Context) (<-chan json.RawMessage, error)
}

// MarketSource is polled by the agent and the take-profit system.
type MarketSource interface {
	GetMarketState(ctx context.Context) (types.MarketState, error)

	// LatestPrice returns 0 when no quote is known for the symbol.
	LatestPrice(ctx context.Context, symbol string) float64
}

// Analyzer is the opaque signal oracle. The core consumes its output
// without validating the reasoning behind it.
type Analyzer interface {
	Analyze(ctx context.Context, state types.MarketState) (types.Signal, error)
}
