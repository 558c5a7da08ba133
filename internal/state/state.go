// Package state holds EngineState, the single authoritative in-memory
// store the engine loop (package engine) mutates. It is not a
// general-purpose database: it is a set of nested maps keyed by the dense
// indices the index package assigns, with exactly one writer — the engine
// loop goroutine. Every exported method here assumes single-writer access;
// nothing in this package takes a lock.
package state

import (
	"fmt"

	"tradingcore/internal/index"
	"tradingcore/internal/orders"
	"tradingcore/pkg/types"
)

// GlobalProcessor is the strategy-defined hook EngineState.UpdateFromMarketEvent
// invokes after its own bookkeeping, if the caller installed one. A nil
// Global is legal; it simply means no strategy-global state is tracked.
type GlobalProcessor interface {
	ProcessMarketEvent(types.MarketEvent)
}

// AssetState is the per-(exchange,asset) record.
type AssetState struct {
	Balance types.AssetBalance
	HasBalance bool
}

// InstrumentState is the per-instrument record: any open position, the
// live order book (keyed by OrderKey so in-flight requests are trivially
// reconciled by cid), and the most recent normalized market snapshot.
type InstrumentState struct {
	Position    types.Position
	HasPosition bool
	Orders      map[types.OrderKey]types.Order
	MarketData  types.MarketEvent
}

// EngineState is the authoritative store described by the spec's data
// model: a trading flag, strategy-global data, per-exchange connectivity,
// and the assets/instruments maps.
type EngineState struct {
	blueprint *index.IndexedInstruments

	Trading      types.TradingState
	Global       GlobalProcessor
	Connectivity map[types.ExchangeIndex]types.Health

	assets      map[assetKey]*AssetState
	instruments map[types.InstrumentIndex]*InstrumentState

	timeEngineNow int64
}

type assetKey struct {
	exchange types.ExchangeIndex
	asset    types.AssetIndex
}

// New builds an EngineState from an index blueprint. Trading starts
// Disabled per spec; every exchange starts Healthy; every instrument gets
// an empty order book and no position.
func New(blueprint *index.IndexedInstruments, global GlobalProcessor) *EngineState {
	s := &EngineState{
		blueprint:    blueprint,
		Trading:      types.TradingDisabled,
		Global:       global,
		Connectivity: map[types.ExchangeIndex]types.Health{},
		assets:       map[assetKey]*AssetState{},
		instruments:  map[types.InstrumentIndex]*InstrumentState{},
	}
	for _, ex := range blueprint.Exchanges() {
		s.Connectivity[ex.Index] = types.HealthHealthy
	}
	for _, inst := range blueprint.Instruments() {
		s.instruments[inst.Index] = &InstrumentState{Orders: map[types.OrderKey]types.Order{}}
	}
	return s
}

// Blueprint returns the index this state was built from, so callers can
// translate names to indices without holding a second reference around.
func (s *EngineState) Blueprint() *index.IndexedInstruments { return s.blueprint }

// TimeEngineNow returns the monotone engine clock.
func (s *EngineState) TimeEngineNow() int64 { return s.timeEngineNow }

// AdvanceTime clamps time_engine_now forward to max(current, t), per the
// monotone-non-decreasing invariant. Called once per processed event by
// the engine loop before any other mutation.
func (s *EngineState) AdvanceTime(t int64) {
	if t > s.timeEngineNow {
		s.timeEngineNow = t
	}
}

// Asset returns the AssetState for (exchange, asset), creating an empty one
// on first access — every asset referenced by the index blueprint is valid
// to look up even before a balance has ever been reported for it.
func (s *EngineState) Asset(exchange types.ExchangeIndex, asset types.AssetIndex) *AssetState {
	k := assetKey{exchange: exchange, asset: asset}
	as, ok := s.assets[k]
	if !ok {
		as = &AssetState{}
		s.assets[k] = as
	}
	return as
}

// Instrument returns the InstrumentState for an instrument index, or nil if
// the index is not part of this engine's blueprint.
func (s *EngineState) Instrument(i types.InstrumentIndex) *InstrumentState {
	return s.instruments[i]
}

// SetTrading flips the trading flag. Returns true if this was a transition
// to Disabled, so the caller (the engine loop) knows to invoke the
// OnTradingDisabled hook.
func (s *EngineState) SetTrading(next types.TradingState) (transitionedToDisabled bool) {
	prev := s.Trading
	s.Trading = next
	return prev == types.TradingEnabled && next == types.TradingDisabled
}

// SetConnectivity updates one exchange's health. Returns true if this was a
// transition to Reconnecting, so the caller can invoke the OnDisconnect
// hook.
func (s *EngineState) SetConnectivity(exchange types.ExchangeIndex, health types.Health) (transitionedToReconnecting bool) {
	prev := s.Connectivity[exchange]
	s.Connectivity[exchange] = health
	return prev == types.HealthHealthy && health == types.HealthReconnecting
}

// UpdateFromMarketEvent folds a normalized MarketEvent into the
// instrument's market-data snapshot and invokes the strategy-global
// processor, if any.
func (s *EngineState) UpdateFromMarketEvent(ev types.MarketEvent) error {
	inst := s.instruments[ev.Instrument]
	if inst == nil {
		return fmt.Errorf("state: market event for unknown instrument %d", ev.Instrument)
	}
	inst.MarketData = ev
	if s.Global != nil {
		s.Global.ProcessMarketEvent(ev)
	}
	return nil
}

// UpdateFromAccountEvent dispatches an AccountEvent to the balance, order,
// or position updater per its kind. Order events whose cid is unknown are
// reported via the returned bool (the caller emits an Unsolicited audit
// entry) rather than mutating anything.
func (s *EngineState) UpdateFromAccountEvent(ev types.AccountEvent) (recognized bool, err error) {
	switch ev.Kind {
	case types.AccountEventBalance:
		k := assetKey{exchange: ev.Exchange, asset: ev.Balance.Asset}
		as := s.assets[k]
		if as == nil {
			as = &AssetState{}
			s.assets[k] = as
		}
		if !as.HasBalance || ev.Balance.UpdatedAtEngineTime >= as.Balance.UpdatedAtEngineTime {
			as.Balance = ev.Balance
			as.HasBalance = true
		}
		return true, nil

	case types.AccountEventAck, types.AccountEventReject, types.AccountEventCancelAck, types.AccountEventCancelReject, types.AccountEventExpired:
		return s.applyOrderTransition(ev)

	case types.AccountEventTrade:
		return s.applyTrade(ev)

	default:
		return false, fmt.Errorf("state: unknown account event kind %q", ev.Kind)
	}
}

func (s *EngineState) applyOrderTransition(ev types.AccountEvent) (bool, error) {
	inst := s.instruments[ev.Order.Instrument]
	if inst == nil {
		return false, nil
	}
	o, ok := inst.Orders[ev.Order]
	if !ok {
		return false, nil
	}

	var next types.Order
	var err error
	switch ev.Kind {
	case types.AccountEventAck:
		next, err = orders.OnAck(o, ev.VenueId, s.timeEngineNow)
	case types.AccountEventReject:
		next, err = orders.OnReject(o, ev.RejectReason, s.timeEngineNow)
	case types.AccountEventCancelAck:
		next, err = orders.OnCancelAck(o, s.timeEngineNow)
	case types.AccountEventCancelReject:
		next, err = orders.OnCancelReject(o, s.timeEngineNow)
	case types.AccountEventExpired:
		next, err = orders.OnExpired(o, s.timeEngineNow)
	}
	if err != nil {
		return true, err
	}
	inst.Orders[ev.Order] = next
	return true, nil
}

func (s *EngineState) applyTrade(ev types.AccountEvent) (bool, error) {
	inst := s.instruments[ev.Order.Instrument]
	if inst == nil {
		return false, nil
	}
	o, ok := inst.Orders[ev.Order]
	if !ok {
		return false, nil
	}

	next, err := orders.OnTrade(o, ev.Trade.Quantity, ev.Trade.Price, s.timeEngineNow)
	if err != nil {
		return true, err
	}
	inst.Orders[ev.Order] = next

	pos := inst.Position
	pos.Instrument = ev.Order.Instrument
	pos = orders.ApplyFill(pos, ev.Trade.Side, ev.Trade.Quantity, ev.Trade.Price, ev.Trade.Fee, s.timeEngineNow)
	inst.Position = pos
	inst.HasPosition = !pos.Flat() || inst.HasPosition
	return true, nil
}

// PutOrder inserts or replaces an order in its instrument's order book.
// Used by the engine loop when it first records a RequestOpen/RequestCancel
// as in-flight.
func (s *EngineState) PutOrder(o types.Order) error {
	inst := s.instruments[o.Instrument]
	if inst == nil {
		return fmt.Errorf("state: order for unknown instrument %d", o.Instrument)
	}
	inst.Orders[o.Key] = o
	return nil
}
