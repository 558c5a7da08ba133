package execution

import (
	"context"
	"sync"

	"tradingcore/internal/fixedpoint"
	"tradingcore/pkg/types"
)

// MockBackend is a deterministic, in-process execution backend for
// backtests and unit tests. It never touches the network: market orders
// are acknowledged and fully filled as soon as the request is handled, at
// the order's own Price field; the mock keeps no record of observed trade
// prices, so a market order sent with a zero Price fills at zero. Limit
// orders are acknowledged immediately and filled only when Cross is given
// a price that crosses them. This mirrors the
// teacher's `dryRun` branch in `exchange/client.go` (`PostOrders` returning
// synthetic success without calling the venue) generalized into a standing
// backend rather than a one-off branch.
type MockBackend struct {
	mu       sync.Mutex
	requests chan ExecutionRequest
	events   chan types.AccountEvent

	resting map[types.OrderKey]types.Order
	now     func() int64

	// costFormula, when set, computes the fee charged on each fill from
	// the broker registry's cost schedule (see internal/broker). nil
	// means no fee, matching the mock's previous always-zero behavior.
	costFormula *types.CostFormula
}

// NewMockBackend builds a MockBackend. nowFn supplies the engine-time
// stamp attached to generated AccountEvents; tests typically pass a
// closure over a counter rather than a wall clock, since the engine's own
// time is the monotone event-derived clock, not real time.
func NewMockBackend(nowFn func() int64) *MockBackend {
	return &MockBackend{
		requests: make(chan ExecutionRequest, 256),
		events:   make(chan types.AccountEvent, 256),
		resting:  map[types.OrderKey]types.Order{},
		now:      nowFn,
	}
}

// SetCostFormula installs the fee schedule applied to every fill this
// backend produces from here on, resolved by the caller (typically from a
// broker.Registry lookup) at engine-construction time. Cost attribution
// happens once, here, at the fill site, per spec.md's cost-model open
// question.
func (b *MockBackend) SetCostFormula(f types.CostFormula) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.costFormula = &f
}

func (b *MockBackend) feeFor(price, quantity fixedpoint.Decimal) fixedpoint.Decimal {
	if b.costFormula == nil {
		return fixedpoint.Zero
	}
	return b.costFormula.Apply(price.Mul(quantity), quantity)
}

func (b *MockBackend) Start(ctx context.Context) error {
	go b.run(ctx)
	return nil
}

func (b *MockBackend) Stop() error {
	return nil
}

func (b *MockBackend) Requests() chan<- ExecutionRequest { return b.requests }
func (b *MockBackend) Events() <-chan types.AccountEvent  { return b.events }

func (b *MockBackend) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case req, ok := <-b.requests:
			if !ok {
				return
			}
			b.handle(req)
		}
	}
}

func (b *MockBackend) handle(req ExecutionRequest) {
	switch req.Kind {
	case RequestOpenOrder:
		b.handleOpen(req.Open)
	case RequestCancelOrder:
		b.handleCancel(req.Cancel)
	case RequestFetchBalances, RequestFetchOpenOrders, RequestFetchTrades:
		// No-op: the mock backend has no external state to snapshot beyond
		// what the engine already tracks from its own requests.
	}
}

func (b *MockBackend) handleOpen(o types.Order) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.emit(types.AccountEvent{
		Kind:                 types.AccountEventAck,
		Exchange:             o.Key.Exchange,
		Order:                o.Key,
		VenueId:              types.VenueOrderId("mock-" + string(o.Key.ClientId)),
		ReceivedAtEngineTime: b.now(),
	})

	if o.Kind == types.OrderKindMarket {
		b.emit(types.AccountEvent{
			Kind:     types.AccountEventTrade,
			Exchange: o.Key.Exchange,
			Order:    o.Key,
			Trade: types.Trade{
				Order:      o.Key,
				Instrument: o.Instrument,
				Side:       o.Side,
				Price:      o.Price,
				Quantity:   o.Quantity,
				Fee:        b.feeFor(o.Price, o.Quantity),
				EngineTime: b.now(),
			},
			ReceivedAtEngineTime: b.now(),
		})
		return
	}
	b.resting[o.Key] = o
}

func (b *MockBackend) handleCancel(key types.OrderKey) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.resting[key]; ok {
		delete(b.resting, key)
	}
	b.emit(types.AccountEvent{
		Kind:                 types.AccountEventCancelAck,
		Exchange:             key.Exchange,
		Order:                key,
		ReceivedAtEngineTime: b.now(),
	})
}

// Cross matches every resting limit order against a simulated last-trade
// price: a buy fills if price <= its limit, a sell fills if price >= its
// limit. Tests drive this directly; it is not called by the engine loop.
func (b *MockBackend) Cross(instrument types.InstrumentIndex, price fixedpoint.Decimal) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for key, o := range b.resting {
		if o.Instrument != instrument {
			continue
		}
		crosses := (o.Side == types.Buy && price.LessThanOrEqual(o.Price)) ||
			(o.Side == types.Sell && price.GreaterThanOrEqual(o.Price))
		if !crosses {
			continue
		}
		delete(b.resting, key)
		b.emit(types.AccountEvent{
			Kind:     types.AccountEventTrade,
			Exchange: key.Exchange,
			Order:    key,
			Trade: types.Trade{
				Order:      key,
				Instrument: o.Instrument,
				Side:       o.Side,
				Price:      o.Price,
				Quantity:   o.Quantity.Sub(o.FilledQty),
				Fee:        b.feeFor(o.Price, o.Quantity.Sub(o.FilledQty)),
				EngineTime: b.now(),
			},
			ReceivedAtEngineTime: b.now(),
		})
	}
}

// emit is a non-blocking send after the teacher's drop-and-warn pattern,
// minus the warning: a full events channel here means the engine loop has
// stalled, and the mock has no logger, so the event is dropped silently.
// emit reports nothing to its caller.
func (b *MockBackend) emit(ev types.AccountEvent) {
	select {
	case b.events <- ev:
	default:
	}
}
