// Package sim is an in-process simulated venue for demos and local
// runs. Orders are accepted over the command interface and their fills
// come back on the event stream, the same round trip a live venue
// produces, so the whole reconciliation path runs unmodified.
package sim

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"deltadeck/internal/gateway/exchange"
	"deltadeck/internal/logger"
	"deltadeck/internal/types"
)

const frameBuffer = 64

// Exchange implements Commander, EventStream and MarketSource against a
// random-walk price process.
type Exchange struct {
	mu       sync.Mutex
	prices   map[string]float64
	balance  float64
	seq      int
	frames   chan json.RawMessage
	rng      *rand.Rand
	stepSize float64
}

func New(symbol string, startPrice, balance float64, seed int64) *Exchange {
	return &Exchange{
		prices:   map[string]float64{strings.ToUpper(symbol): startPrice},
		balance:  balance,
		frames:   make(chan json.RawMessage, frameBuffer),
		rng:      rand.New(rand.NewSource(seed)),
		stepSize: 0.002,
	}
}

// PlaceOrder fills market orders immediately at the simulated price and
// reports the fill on the stream.
func (e *Exchange) PlaceOrder(ctx context.Context, req exchange.OrderRequest) (*exchange.OrderResponse, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	symbol := strings.ToUpper(req.ProductSymbol)
	price, ok := e.prices[symbol]
	if !ok {
		return nil, fmt.Errorf("unknown symbol %s", req.ProductSymbol)
	}
	e.seq++
	id := fmt.Sprintf("sim-%d", e.seq)

	e.emitLocked(map[string]any{
		"type":               "orders",
		"id":                 id,
		"client_order_id":    req.ClientOrderID,
		"symbol":             symbol,
		"side":               req.Side,
		"size":               req.Size,
		"order_type":         req.OrderType,
		"state":              "closed",
		"average_fill_price": price,
		"timestamp":          time.Now().UnixMicro(),
	})
	logger.Debugf("sim: filled %s %s %.6f @ %.2f", req.Side, symbol, req.Size, price)
	return &exchange.OrderResponse{ID: id, ClientOrderID: req.ClientOrderID, State: "closed"}, nil
}

func (e *Exchange) CancelOrder(ctx context.Context, orderID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.emitLocked(map[string]any{
		"type":      "orders",
		"id":        orderID,
		"state":     "cancelled",
		"timestamp": time.Now().UnixMicro(),
	})
	return nil
}

func (e *Exchange) EditOrder(ctx context.Context, orderID string, edit exchange.OrderEdit) error {
	// Market orders fill instantly here; there is never anything left
	// to edit.
	return fmt.Errorf("order %s is no longer open", orderID)
}

func (e *Exchange) CancelAllOrders(ctx context.Context, filters exchange.CancelFilters) error {
	return nil
}

func (e *Exchange) Frames(ctx context.Context) (<-chan json.RawMessage, error) {
	return e.frames, nil
}

func (e *Exchange) emitLocked(frame map[string]any) {
	raw, err := json.Marshal(frame)
	if err != nil {
		return
	}
	select {
	case e.frames <- raw:
	default:
		logger.Warnf("sim: frame buffer full, dropping event")
	}
}

// LatestPrice advances the random walk one step per call.
func (e *Exchange) LatestPrice(ctx context.Context, symbol string) float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stepLocked(strings.ToUpper(symbol))
}

func (e *Exchange) stepLocked(symbol string) float64 {
	price, ok := e.prices[symbol]
	if !ok {
		return 0
	}
	price *= 1 + (e.rng.Float64()*2-1)*e.stepSize
	e.prices[symbol] = price
	return price
}

func (e *Exchange) GetMarketState(ctx context.Context) (types.MarketState, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	state := types.MarketState{Balance: e.balance}
	for symbol, price := range e.prices {
		state.MarketData = append(state.MarketData, types.MarketData{
			Symbol:    symbol,
			LastPrice: price,
			UpdatedAt: time.Now(),
		})
	}
	return state, nil
}

// Analyzer is a naive momentum oracle over the simulated walk. It
// exists so the full pipeline can run without an external engine; its
// signals carry no insight.
type Analyzer struct {
	mu   sync.Mutex
	last map[string]float64
}

func NewAnalyzer() *Analyzer {
	return &Analyzer{last: make(map[string]float64)}
}

func (a *Analyzer) Analyze(ctx context.Context, state types.MarketState) (types.Signal, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for _, md := range state.MarketData {
		prev, seen := a.last[md.Symbol]
		a.last[md.Symbol] = md.LastPrice
		if !seen || prev <= 0 {
			continue
		}
		change := (md.LastPrice - prev) / prev
		if change > 0.001 {
			return types.Signal{
				Action:     "long",
				Confidence: 0.75,
				EntryPrice: md.LastPrice,
				StopLoss:   md.LastPrice * 0.98,
				Reasoning:  fmt.Sprintf("upward momentum %.3f%%", change*100),
			}, nil
		}
		if change < -0.001 {
			return types.Signal{
				Action:     "short",
				Confidence: 0.75,
				EntryPrice: md.LastPrice,
				StopLoss:   md.LastPrice * 1.02,
				Reasoning:  fmt.Sprintf("downward momentum %.3f%%", change*100),
			}, nil
		}
	}
	return types.Signal{Action: "hold", Confidence: 0.5, Reasoning: "no momentum"}, nil
}
