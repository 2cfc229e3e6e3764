package order

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"deltadeck/internal/gateway/exchange"
	"deltadeck/internal/order/wsmsg"
)

type mockCommander struct {
	mock.Mock
}

func (m *mockCommander) PlaceOrder(ctx context.Context, req exchange.OrderRequest) (*exchange.OrderResponse, error) {
	args := m.Called(ctx, req)
	if resp := args.Get(0); resp != nil {
		return resp.(*exchange.OrderResponse), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockCommander) CancelOrder(ctx context.Context, orderID string) error {
	return m.Called(ctx, orderID).Error(0)
}

func (m *mockCommander) EditOrder(ctx context.Context, orderID string, edit exchange.OrderEdit) error {
	return m.Called(ctx, orderID, edit).Error(0)
}

func (m *mockCommander) CancelAllOrders(ctx context.Context, filters exchange.CancelFilters) error {
	return m.Called(ctx, filters).Error(0)
}

type fakeStream struct {
	frames chan json.RawMessage
}

func (f *fakeStream) Frames(ctx context.Context) (<-chan json.RawMessage, error) {
	return f.frames, nil
}

func orderEvent(id, clientID, state string) wsmsg.OrderEvent {
	return wsmsg.OrderEvent{
		Kind:          wsmsg.KindOrder,
		OrderID:       id,
		ClientOrderID: clientID,
		Symbol:        "BTC-USD",
		Side:          "buy",
		Size:          0.5,
		State:         state,
		Timestamp:     time.Now(),
	}
}

func TestPlaceOrderGeneratesClientIDAndTracksPending(t *testing.T) {
	cmd := new(mockCommander)
	cmd.On("PlaceOrder", mock.Anything, mock.MatchedBy(func(req exchange.OrderRequest) bool {
		return req.ClientOrderID != ""
	})).Return(&exchange.OrderResponse{ID: "ord-1", State: "pending"}, nil)

	mgr := NewManager(cmd)
	sub, err := mgr.PlaceOrder(context.Background(), exchange.OrderRequest{
		ProductSymbol: "BTC-USD",
		Side:          "buy",
		Size:          0.5,
		OrderType:     "market_order",
	})
	require.NoError(t, err)
	assert.Equal(t, "ord-1", sub.OrderID)
	assert.NotEmpty(t, sub.ClientOrderID)
	assert.Equal(t, "BTC-USD", sub.Symbol)

	pending := mgr.PendingSubmissions()
	require.Len(t, pending, 1)
	assert.Equal(t, sub.ClientOrderID, pending[0].ClientOrderID)

	// The submission is not execution truth: nothing confirmed yet.
	_, found := mgr.Order("ord-1")
	assert.False(t, found)
	cmd.AssertExpectations(t)
}

func TestPlaceOrderRejectsBadInput(t *testing.T) {
	mgr := NewManager(new(mockCommander))

	_, err := mgr.PlaceOrder(context.Background(), exchange.OrderRequest{Side: "buy", Size: 1})
	assert.Error(t, err)

	_, err = mgr.PlaceOrder(context.Background(), exchange.OrderRequest{ProductSymbol: "BTC-USD", Side: "buy"})
	assert.Error(t, err)
}

func TestPlaceOrderPropagatesRejection(t *testing.T) {
	cmd := new(mockCommander)
	cmd.On("PlaceOrder", mock.Anything, mock.Anything).Return(nil, errors.New("insufficient margin"))

	mgr := NewManager(cmd)
	_, err := mgr.PlaceOrder(context.Background(), exchange.OrderRequest{
		ProductSymbol: "BTC-USD", Side: "buy", Size: 0.5, OrderType: "market_order",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insufficient margin")
	assert.Empty(t, mgr.PendingSubmissions())
}

func TestHandleEventUpsertsUnderBothIDs(t *testing.T) {
	mgr := NewManager(new(mockCommander))

	mgr.HandleEvent(orderEvent("ord-1", "cli-1", wsmsg.StateOpen))

	byExchangeID, ok := mgr.Order("ord-1")
	require.True(t, ok)
	byClientID, ok := mgr.Order("cli-1")
	require.True(t, ok)
	assert.Equal(t, byExchangeID, byClientID)
	assert.Equal(t, wsmsg.StateOpen, byExchangeID.State)

	// Last write wins, created time survives the update.
	mgr.HandleEvent(orderEvent("ord-1", "cli-1", wsmsg.StateClosed))
	updated, ok := mgr.Order("cli-1")
	require.True(t, ok)
	assert.Equal(t, wsmsg.StateClosed, updated.State)
	assert.Equal(t, byExchangeID.CreatedAt, updated.CreatedAt)
}

func TestHandleEventClearsPendingSubmission(t *testing.T) {
	cmd := new(mockCommander)
	cmd.On("PlaceOrder", mock.Anything, mock.Anything).Return(&exchange.OrderResponse{ID: "ord-1"}, nil)

	mgr := NewManager(cmd)
	sub, err := mgr.PlaceOrder(context.Background(), exchange.OrderRequest{
		ProductSymbol: "BTC-USD", Side: "buy", Size: 0.5, OrderType: "market_order",
	})
	require.NoError(t, err)
	require.Len(t, mgr.PendingSubmissions(), 1)

	mgr.HandleEvent(orderEvent("ord-1", sub.ClientOrderID, wsmsg.StateOpen))
	assert.Empty(t, mgr.PendingSubmissions())
}

func TestWaitForOrderUpdateResolvesOnce(t *testing.T) {
	mgr := NewManager(new(mockCommander))

	done := make(chan Confirmed, 1)
	go func() {
		rec, err := mgr.WaitForOrderUpdate(context.Background(), "ord-1", 2*time.Second)
		if err == nil {
			done <- rec
		}
		close(done)
	}()

	// Let the waiter register before the event lands.
	require.Eventually(t, func() bool {
		mgr.mu.Lock()
		defer mgr.mu.Unlock()
		return len(mgr.waiters["ord-1"]) == 1
	}, time.Second, 5*time.Millisecond)

	mgr.HandleEvent(orderEvent("ord-1", "cli-1", wsmsg.StateClosed))

	rec, ok := <-done
	require.True(t, ok)
	assert.Equal(t, wsmsg.StateClosed, rec.State)

	// A duplicate event finds no listener left to resolve.
	mgr.HandleEvent(orderEvent("ord-1", "cli-1", wsmsg.StateClosed))
	mgr.mu.Lock()
	assert.Empty(t, mgr.waiters)
	mgr.mu.Unlock()
}

func TestWaitForOrderUpdateByClientID(t *testing.T) {
	mgr := NewManager(new(mockCommander))

	go func() {
		time.Sleep(20 * time.Millisecond)
		mgr.HandleEvent(orderEvent("ord-9", "cli-9", wsmsg.StateOpen))
	}()

	rec, err := mgr.WaitForOrderUpdate(context.Background(), "cli-9", 2*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "ord-9", rec.ID)
}

func TestWaitForOrderUpdateTimeoutCleansUp(t *testing.T) {
	mgr := NewManager(new(mockCommander))

	_, err := mgr.WaitForOrderUpdate(context.Background(), "ord-gone", 30*time.Millisecond)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timed out")

	mgr.mu.Lock()
	assert.Empty(t, mgr.waiters)
	mgr.mu.Unlock()
}

func TestWaitForOrderUpdateContextCancelCleansUp(t *testing.T) {
	mgr := NewManager(new(mockCommander))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := mgr.WaitForOrderUpdate(ctx, "ord-gone", 5*time.Second)
	assert.ErrorIs(t, err, context.Canceled)

	mgr.mu.Lock()
	assert.Empty(t, mgr.waiters)
	mgr.mu.Unlock()
}

func TestCancelBatchOrdersReportsPerOrder(t *testing.T) {
	cmd := new(mockCommander)
	cmd.On("CancelOrder", mock.Anything, "ord-1").Return(nil)
	cmd.On("CancelOrder", mock.Anything, "ord-2").Return(errors.New("already closed"))
	cmd.On("CancelOrder", mock.Anything, "ord-3").Return(nil)

	mgr := NewManager(cmd)
	results := mgr.CancelBatchOrders(context.Background(), []string{"ord-1", "ord-2", "ord-3"})

	require.Len(t, results, 3)
	assert.NoError(t, results[0].Err)
	assert.Error(t, results[1].Err)
	assert.NoError(t, results[2].Err)
	cmd.AssertExpectations(t)
}

func TestOrderFiltersAndCopies(t *testing.T) {
	mgr := NewManager(new(mockCommander))
	for i, state := range []string{wsmsg.StateOpen, wsmsg.StatePending, wsmsg.StateClosed, wsmsg.StateCancelled} {
		mgr.HandleEvent(orderEvent(fmt.Sprintf("ord-%d", i), "", state))
	}

	assert.Len(t, mgr.AllOrders(), 4)
	assert.Len(t, mgr.OpenOrders(), 2)
	assert.Len(t, mgr.OrdersByState(wsmsg.StateClosed), 1)
	assert.Empty(t, mgr.OrdersByState("rejected"))

	// Mutating a returned copy never touches the cache.
	rec, ok := mgr.Order("ord-0")
	require.True(t, ok)
	rec.State = "mangled"
	fresh, _ := mgr.Order("ord-0")
	assert.Equal(t, wsmsg.StateOpen, fresh.State)
}

func TestRunConsumesStreamAndSkipsInvalidFrames(t *testing.T) {
	mgr := NewManager(new(mockCommander))
	stream := &fakeStream{frames: make(chan json.RawMessage, 4)}

	stream.frames <- json.RawMessage(`{"type": "orders", "id": "ord-1", "state": "open", "symbol": "BTC-USD", "side": "buy", "size": 0.5}`)
	stream.frames <- json.RawMessage(`{"type": "nonsense"}`)
	stream.frames <- json.RawMessage(`{"type": "orders", "id": "ord-1", "state": "closed", "symbol": "BTC-USD", "side": "buy", "size": 0.5}`)
	close(stream.frames)

	err := mgr.Run(context.Background(), stream)
	require.NoError(t, err)

	rec, ok := mgr.Order("ord-1")
	require.True(t, ok)
	assert.Equal(t, wsmsg.StateClosed, rec.State)
	assert.Len(t, mgr.AllOrders(), 1)
}

func TestUpdateHookSeesEachEvent(t *testing.T) {
	mgr := NewManager(new(mockCommander))

	var seen []string
	mgr.SetUpdateHook(func(rec Confirmed) {
		seen = append(seen, rec.State)
	})

	mgr.HandleEvent(orderEvent("ord-1", "", wsmsg.StateOpen))
	mgr.HandleEvent(orderEvent("ord-1", "", wsmsg.StateClosed))
	assert.Equal(t, []string{wsmsg.StateOpen, wsmsg.StateClosed}, seen)
}
