// Package order reconciles REST-placed orders with the asynchronous
// event stream that carries execution truth. The confirmed cache here
// is the only source of "what happened to an order"; REST responses
// confirm submission and nothing else.
//
// The stream is assumed to deliver events in the order the exchange
// produced them, at least once. There are no sequence numbers, so a
// reordering transport would need a per-order version field added;
// duplicates are harmless last-write-wins upserts.
package order

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"deltadeck/internal/gateway/exchange"
	"deltadeck/internal/logger"
	"deltadeck/internal/order/wsmsg"
)

// DefaultWaitTimeout bounds WaitForOrderUpdate when the caller passes 0.
const DefaultWaitTimeout = 30 * time.Second

// Manager owns the confirmed-order cache and the pending correlation
// table. One goroutine (Run) writes the cache; every mutation happens
// under one mutex hold, so no reader observes a half-applied event.
type Manager struct {
	commander exchange.Commander

	mu         sync.Mutex
	byID       map[string]*Confirmed
	byClientID map[string]*Confirmed
	pending    map[string]Submission      // client order id -> submission awaiting first event
	waiters    map[string][]chan Confirmed // order id or client id -> one-shot listeners

	onUpdate func(Confirmed)
}

func NewManager(commander exchange.Commander) *Manager {
	return &Manager{
		commander:  commander,
		byID:       make(map[string]*Confirmed),
		byClientID: make(map[string]*Confirmed),
		pending:    make(map[string]Submission),
		waiters:    make(map[string][]chan Confirmed),
	}
}

// SetUpdateHook installs a callback invoked after each applied event.
// Install before Run starts consuming.
func (m *Manager) SetUpdateHook(fn func(Confirmed)) {
	m.mu.Lock()
	m.onUpdate = fn
	m.mu.Unlock()
}

// Run consumes the event stream until the context ends or the stream
// closes. Invalid frames are logged and dropped at the boundary.
func (m *Manager) Run(ctx context.Context, stream exchange.EventStream) error {
	frames, err := stream.Frames(ctx)
	if err != nil {
		return fmt.Errorf("subscribing to order stream failed: %w", err)
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case raw, ok := <-frames:
			if !ok {
				return nil
			}
			evt, err := wsmsg.Parse(raw)
			if err != nil {
				logger.Warnf("order: dropping frame: %v", err)
				continue
			}
			m.HandleEvent(evt)
		}
	}
}

// PlaceOrder submits an order command. A nil error means the exchange
// accepted the submission, not that anything filled; execution state
// arrives later via the event stream. A client order id is generated
// when the caller supplies none, and a pending correlation entry is
// stored either way so the first matching event resolves any waiter.
func (m *Manager) PlaceOrder(ctx context.Context, req exchange.OrderRequest) (Submission, error) {
	if strings.TrimSpace(req.ProductSymbol) == "" {
		return Submission{}, fmt.Errorf("product symbol is required")
	}
	if req.Size <= 0 {
		return Submission{}, fmt.Errorf("order size must be positive")
	}
	if req.ClientOrderID == "" {
		req.ClientOrderID = uuid.NewString()
	}

	resp, err := m.commander.PlaceOrder(ctx, req)
	if err != nil {
		return Submission{}, fmt.Errorf("order placement failed: %w", err)
	}

	sub := Submission{
		ClientOrderID: req.ClientOrderID,
		Symbol:        strings.ToUpper(strings.TrimSpace(req.ProductSymbol)),
		Side:          req.Side,
		Size:          req.Size,
		SubmittedAt:   time.Now(),
	}
	if resp != nil {
		sub.OrderID = resp.ID
	}

	m.mu.Lock()
	m.pending[sub.ClientOrderID] = sub
	m.mu.Unlock()

	logger.Infof("order: submitted symbol=%s side=%s size=%.6f id=%s client_id=%s",
		sub.Symbol, sub.Side, sub.Size, sub.OrderID, sub.ClientOrderID)
	return sub, nil
}

// CancelOrder passes a cancel through to the command interface.
func (m *Manager) CancelOrder(ctx context.Context, orderID string) error {
	if strings.TrimSpace(orderID) == "" {
		return fmt.Errorf("order id is required")
	}
	if err := m.commander.CancelOrder(ctx, orderID); err != nil {
		return fmt.Errorf("cancel failed for %s: %w", orderID, err)
	}
	return nil
}

// CancelBatchOrders cancels each id independently and reports per-order
// results. The batch never fails atomically.
func (m *Manager) CancelBatchOrders(ctx context.Context, orderIDs []string) []BatchResult {
	results := make([]BatchResult, 0, len(orderIDs))
	for _, id := range orderIDs {
		results = append(results, BatchResult{OrderID: id, Err: m.CancelOrder(ctx, id)})
	}
	return results
}

// CancelAllOrders passes the filtered cancel-all through.
func (m *Manager) CancelAllOrders(ctx context.Context, filters exchange.CancelFilters) error {
	if err := m.commander.CancelAllOrders(ctx, filters); err != nil {
		return fmt.Errorf("cancel all failed: %w", err)
	}
	return nil
}

// EditOrder passes an order edit through.
func (m *Manager) EditOrder(ctx context.Context, orderID string, edit exchange.OrderEdit) error {
	if strings.TrimSpace(orderID) == "" {
		return fmt.Errorf("order id is required")
	}
	if err := m.commander.EditOrder(ctx, orderID, edit); err != nil {
		return fmt.Errorf("edit failed for %s: %w", orderID, err)
	}
	return nil
}

// HandleEvent applies one typed stream event: upsert the confirmed
// cache under both ids, drop the pending correlation entry, and resolve
// any waiters exactly once. Duplicate events after resolution are
// plain upserts; they cannot re-resolve a waiter.
func (m *Manager) HandleEvent(evt wsmsg.OrderEvent) {
	now := time.Now()

	m.mu.Lock()
	existing := m.byID[evt.OrderID]
	if existing == nil && evt.ClientOrderID != "" {
		existing = m.byClientID[evt.ClientOrderID]
	}

	rec := &Confirmed{
		ID:               evt.OrderID,
		ClientOrderID:    evt.ClientOrderID,
		Symbol:           evt.Symbol,
		Size:             evt.Size,
		Side:             evt.Side,
		OrderType:        evt.OrderType,
		State:            evt.State,
		FilledSize:       evt.FilledSize,
		AverageFillPrice: evt.AverageFillPrice,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if existing != nil {
		rec.CreatedAt = existing.CreatedAt
		if rec.ClientOrderID == "" {
			rec.ClientOrderID = existing.ClientOrderID
		}
		if rec.Symbol == "" {
			rec.Symbol = existing.Symbol
		}
		if rec.Side == "" {
			rec.Side = existing.Side
		}
		if rec.Size == 0 {
			rec.Size = existing.Size
		}
	}

	m.byID[rec.ID] = rec
	if rec.ClientOrderID != "" {
		m.byClientID[rec.ClientOrderID] = rec
		delete(m.pending, rec.ClientOrderID)
	}

	// At-most-once: registrations are removed before delivery, so a
	// stale duplicate finds nothing to resolve.
	listeners := m.takeWaitersLocked(rec.ID)
	if rec.ClientOrderID != "" {
		listeners = append(listeners, m.takeWaitersLocked(rec.ClientOrderID)...)
	}
	snapshot := *rec
	hook := m.onUpdate
	m.mu.Unlock()

	for _, ch := range listeners {
		ch <- snapshot // buffered, never blocks
	}
	if hook != nil {
		hook(snapshot)
	}
}

func (m *Manager) takeWaitersLocked(key string) []chan Confirmed {
	listeners := m.waiters[key]
	if len(listeners) > 0 {
		delete(m.waiters, key)
	}
	return listeners
}

// WaitForOrderUpdate blocks until the next event matching the order id
// or client order id arrives, the timeout passes, or the context ends.
// The listener registration is removed on every outcome.
func (m *Manager) WaitForOrderUpdate(ctx context.Context, orderID string, timeout time.Duration) (Confirmed, error) {
	if strings.TrimSpace(orderID) == "" {
		return Confirmed{}, fmt.Errorf("order id is required")
	}
	if timeout <= 0 {
		timeout = DefaultWaitTimeout
	}

	ch := make(chan Confirmed, 1)
	m.mu.Lock()
	m.waiters[orderID] = append(m.waiters[orderID], ch)
	m.mu.Unlock()

	cleanup := func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		listeners := m.waiters[orderID]
		for i, c := range listeners {
			if c == ch {
				listeners = append(listeners[:i], listeners[i+1:]...)
				break
			}
		}
		if len(listeners) == 0 {
			delete(m.waiters, orderID)
		} else {
			m.waiters[orderID] = listeners
		}
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case rec := <-ch:
		return rec, nil
	case <-timer.C:
		cleanup()
		return Confirmed{}, fmt.Errorf("timed out after %s waiting for order %s", timeout, orderID)
	case <-ctx.Done():
		cleanup()
		return Confirmed{}, ctx.Err()
	}
}

// Order looks up one confirmed order by exchange id or client id.
func (m *Manager) Order(id string) (Confirmed, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec, ok := m.byID[id]; ok {
		return *rec, true
	}
	if rec, ok := m.byClientID[id]; ok {
		return *rec, true
	}
	return Confirmed{}, false
}

// AllOrders returns copies of every confirmed order.
func (m *Manager) AllOrders() []Confirmed {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Confirmed, 0, len(m.byID))
	for _, rec := range m.byID {
		out = append(out, *rec)
	}
	return out
}

// OrdersByState filters the confirmed cache by lifecycle state.
func (m *Manager) OrdersByState(state string) []Confirmed {
	state = strings.ToLower(strings.TrimSpace(state))
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Confirmed
	for _, rec := range m.byID {
		if rec.State == state {
			out = append(out, *rec)
		}
	}
	return out
}

// OpenOrders returns confirmed orders still working (open or pending).
func (m *Manager) OpenOrders() []Confirmed {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Confirmed
	for _, rec := range m.byID {
		if rec.State == wsmsg.StateOpen || rec.State == wsmsg.StatePending {
			out = append(out, *rec)
		}
	}
	return out
}

// PendingSubmissions lists REST-accepted orders the stream has not yet
// confirmed.
func (m *Manager) PendingSubmissions() []Submission {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Submission, 0, len(m.pending))
	for _, sub := range m.pending {
		out = append(out, sub)
	}
	return out
}
