// Package engine implements the deterministic single-writer event
// processing loop (spec.md §4.4): it consumes a merged stream of market
// events, account events, and operator commands; mutates EngineState; and
// emits one AuditTick per processed event. Nothing outside Engine.Run
// mutates EngineState, and nothing outside Engine ever sees a raw venue
// envelope — everything is normalized to pkg/types by the time it reaches
// this loop.
//
// Grounded on the teacher's internal/engine/engine.go orchestration shape
// (a main select loop dispatching to handler methods, non-blocking sends
// with a warn-and-drop fallback on a full channel) generalized from
// per-market goroutine fan-out to one single-writer loop over indexed
// instruments.
package engine

import (
	"context"
	"fmt"
	"log/slog"

	"tradingcore/internal/execution"
	"tradingcore/internal/fixedpoint"
	"tradingcore/internal/orders"
	"tradingcore/internal/risk"
	"tradingcore/internal/state"
	"tradingcore/internal/strategy"
	"tradingcore/pkg/types"
)

var twoDec = fixedpoint.NewFromInt(2)

var errExecutionChannelDropped = fmt.Errorf("engine: execution backend's events channel closed")

// Config wires an Engine's pluggable capabilities. Every field is fixed at
// construction; none of them is swapped at runtime.
type Config struct {
	State   *state.EngineState
	Backend execution.Backend

	Algo              strategy.AlgoStrategy
	ClosePositions    strategy.ClosePositionsStrategy
	OnDisconnect      strategy.OnDisconnectStrategy
	OnTradingDisabled strategy.OnTradingDisabledHook
	Risk              risk.RiskManager

	Logger *slog.Logger

	// AuditBuffer sizes the internal audit-tick channel. The engine emits a
	// tick after every processed event regardless of whether a consumer is
	// attached; a full buffer causes the best-effort drop described in
	// SPEC_FULL.md's audit broadcast section, not a block.
	AuditBuffer int
}

// Engine is the event-processing loop.
type Engine struct {
	state   *state.EngineState
	backend execution.Backend

	algo              strategy.AlgoStrategy
	closePositions    strategy.ClosePositionsStrategy
	onDisconnect      strategy.OnDisconnectStrategy
	onTradingDisabled strategy.OnTradingDisabledHook
	risk              risk.RiskManager

	logger *slog.Logger

	sequence uint64
	auditCh  chan types.AuditTick

	market       chan types.MarketEvent
	commands     chan types.Command
	connectivity chan connectivityUpdate
}

type connectivityUpdate struct {
	exchange types.ExchangeIndex
	health   types.Health
	time     int64
}

// New constructs an Engine from cfg. Market/command channels are created
// internally; callers feed them via SubmitMarketEvent/SubmitCommand and
// read results via AuditTicks().
func New(cfg Config) *Engine {
	buf := cfg.AuditBuffer
	if buf <= 0 {
		buf = 1024
	}
	return &Engine{
		state:             cfg.State,
		backend:           cfg.Backend,
		algo:              cfg.Algo,
		closePositions:    cfg.ClosePositions,
		onDisconnect:      cfg.OnDisconnect,
		onTradingDisabled: cfg.OnTradingDisabled,
		risk:              cfg.Risk,
		logger:            cfg.Logger,
		auditCh:           make(chan types.AuditTick, buf),
		market:            make(chan types.MarketEvent, 256),
		commands:          make(chan types.Command, 64),
		connectivity:      make(chan connectivityUpdate, 16),
	}
}

// SubmitMarketEvent feeds a normalized MarketEvent into the loop. Called by
// the market-data layer (C6), never by a strategy directly.
func (e *Engine) SubmitMarketEvent(ev types.MarketEvent) { e.market <- ev }

// SubmitCommand feeds an operator/scheduler command into the loop.
func (e *Engine) SubmitCommand(cmd types.Command) { e.commands <- cmd }

// SubmitConnectivity reports a health transition for one exchange. Called
// by the market-data layer's reconnection policy (C6).
func (e *Engine) SubmitConnectivity(exchange types.ExchangeIndex, health types.Health, engineTime int64) {
	e.connectivity <- connectivityUpdate{exchange: exchange, health: health, time: engineTime}
}

// AuditTicks returns the read side of the audit channel. Consumers (the
// broadcast server in internal/audit) drain this; the engine never blocks
// waiting for a consumer to be present.
func (e *Engine) AuditTicks() <-chan types.AuditTick { return e.auditCh }

// Run drives the loop until ctx is cancelled or a Shutdown command or
// terminal execution failure is processed. It returns nil on a clean
// shutdown and a non-nil error only on the "execution channel dropped"
// terminal failure path described in spec.md's failure semantics.
func (e *Engine) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			e.drainOnce()
			return nil

		case cmd := <-e.commands:
			if cmd.Kind == types.CommandShutdown {
				e.drainOnce()
				e.sequence++
				e.emitTick(types.EngineEventCommand, "shutdown: command")
				return nil
			}
			e.processEvent(types.EngineEvent{Kind: types.EngineEventCommand, Command: cmd}, e.state.TimeEngineNow())

		case ev := <-e.market:
			e.processEvent(types.EngineEvent{Kind: types.EngineEventMarket, Market: ev}, ev.ReceivedAtEngineTime)

		case conn := <-e.connectivity:
			e.sequence++
			e.state.AdvanceTime(conn.time)
			transitioned := e.state.SetConnectivity(conn.exchange, conn.health)
			if transitioned && e.onDisconnect != nil {
				e.dispatchIntents(e.onDisconnect.OnDisconnect(e.state, conn.exchange))
			}
			e.emitTick(types.EngineEventMarket, "")

		case acc, ok := <-e.backend.Events():
			if !ok {
				e.emitShutdownTick("execution channel dropped")
				return errExecutionChannelDropped
			}
			e.processEvent(types.EngineEvent{Kind: types.EngineEventAccount, Account: acc}, acc.ReceivedAtEngineTime)
		}
	}
}

// processEvent implements the per-event algorithm in spec.md §4.4: advance
// the clock, dispatch by kind, run the algo/risk pass if trading is
// enabled, then emit exactly one AuditTick.
func (e *Engine) processEvent(ev types.EngineEvent, eventTime int64) {
	e.sequence++
	e.state.AdvanceTime(eventTime)

	var note string
	switch ev.Kind {
	case types.EngineEventMarket:
		if err := e.state.UpdateFromMarketEvent(ev.Market); err != nil {
			note = err.Error()
		} else if e.risk != nil {
			if price, ok := markPrice(ev.Market); ok {
				e.risk.CheckPriceMovement(ev.Market.Instrument, ev.Market.Exchange, price)
			}
		}

	case types.EngineEventAccount:
		recognized, err := e.state.UpdateFromAccountEvent(ev.Account)
		if err != nil {
			note = err.Error()
		} else if !recognized {
			note = "unsolicited account event for unknown order"
		}

	case types.EngineEventCommand:
		e.handleCommand(ev.Command)
	}

	if e.state.Trading == types.TradingEnabled && e.algo != nil {
		e.dispatchIntents(e.algo.GenerateAlgoOrders(e.state))
	}

	e.emitTick(ev.Kind, note)
}

func (e *Engine) handleCommand(cmd types.Command) {
	switch cmd.Kind {
	case types.CommandSetTrading:
		wentDisabled := e.state.SetTrading(cmd.TradingState)
		if wentDisabled && e.onTradingDisabled != nil {
			e.dispatchIntents(e.onTradingDisabled.OnTradingDisabled(e.state))
		}

	case types.CommandCancelOrder:
		e.sendCancel(cmd.CancelTarget)

	case types.CommandCancelOrders:
		e.cancelFiltered(cmd.CancelFilter)

	case types.CommandOpenOrder:
		if cmd.OpenRequest != nil {
			// Operator-initiated opens bypass the algo risk pass: they are
			// explicit, not algo-generated, so spec.md's "subject to risk
			// approval" clause does not apply to them.
			e.sendOpen(*cmd.OpenRequest, "operator")
		}

	case types.CommandClosePositions:
		if e.closePositions != nil {
			e.dispatchIntents(e.closePositions.ClosePositions(e.state, cmd.ClosePositions))
		}
	}
}

// markPrice extracts the price to feed into the risk kill switch's rolling
// anchor from a MarketEvent: the tape print for a Trade, the top-of-book
// mid for a Snapshot/Delta, and nothing for Disconnect/Reconnect.
func markPrice(ev types.MarketEvent) (fixedpoint.Decimal, bool) {
	switch ev.Kind {
	case types.MarketEventTrade:
		if ev.TradePrice.IsZero() {
			return fixedpoint.Zero, false
		}
		return ev.TradePrice, true
	case types.MarketEventSnapshot, types.MarketEventDelta:
		if len(ev.Bids) == 0 || len(ev.Asks) == 0 {
			return fixedpoint.Zero, false
		}
		mid, ok := ev.Bids[0].Price.Add(ev.Asks[0].Price).Div(twoDec)
		return mid, ok
	default:
		return fixedpoint.Zero, false
	}
}

// cancelFiltered implements Command/CancelOrders(filter) (spec.md §4.4):
// every Open order on an instrument matching filter gets a RequestCancel,
// skipping risk checks entirely since a cancel never increases exposure.
func (e *Engine) cancelFiltered(filter types.Filter) {
	for _, o := range e.state.Orders(filter) {
		if o.Status == types.StatusOpen {
			e.sendCancel(o.Key)
		}
	}
}

// dispatchIntents sends cancels before opens (spec.md's documented
// ordering), running each open through risk approval first.
func (e *Engine) dispatchIntents(in strategy.Intents) {
	for _, key := range in.Cancels {
		e.sendCancel(key)
	}
	for _, open := range in.Opens {
		if e.risk != nil {
			result := e.risk.Check(e.state, open)
			if !result.Approved {
				if e.logger != nil {
					e.logger.Info("engine: risk rejected open order", "instrument", open.Instrument, "reason", result.Reason)
				}
				continue
			}
		}
		e.sendOpen(open, "")
	}
}

var clientOrderSeq uint64

func (e *Engine) sendOpen(req types.OpenOrderRequest, strategyID types.StrategyId) {
	clientOrderSeq++
	inst, ok := e.state.Blueprint().Instrument(req.Instrument)
	if !ok {
		return
	}
	key := types.OrderKey{
		Exchange:   inst.Exchange,
		Instrument: req.Instrument,
		Strategy:   strategyID,
		ClientId:   types.ClientOrderId(fmt.Sprintf("cid-%d", clientOrderSeq)),
	}
	order := types.Order{
		Key:                   key,
		Instrument:            req.Instrument,
		Side:                  req.Side,
		Kind:                  req.Kind,
		TIF:                   req.TIF,
		Price:                 req.Price,
		Quantity:              req.Quantity,
		Status:                types.StatusInFlightOpen,
		RequestedAtEngineTime: e.state.TimeEngineNow(),
		UpdatedAtEngineTime:   e.state.TimeEngineNow(),
	}
	if err := e.state.PutOrder(order); err != nil {
		if e.logger != nil {
			e.logger.Error("engine: failed to record in-flight open", "err", err)
		}
		return
	}
	e.backend.Requests() <- execution.ExecutionRequest{Kind: execution.RequestOpenOrder, Open: order}
}

// sendCancel records the cancel as in-flight in the instrument's order book
// (Open → RequestCancel → InFlightCancel, per spec.md §4.4) before handing it
// to the execution backend, so a later CancelAck/CancelReject has a matching
// InFlightCancel order to transition from.
func (e *Engine) sendCancel(key types.OrderKey) {
	inst := e.state.Instrument(key.Instrument)
	if inst == nil {
		if e.logger != nil {
			e.logger.Error("engine: cancel for unknown instrument", "instrument", key.Instrument)
		}
		return
	}
	o, ok := inst.Orders[key]
	if !ok {
		if e.logger != nil {
			e.logger.Warn("engine: cancel for unknown order", "key", key)
		}
		return
	}

	o, err := orders.RequestCancel(o, e.state.TimeEngineNow())
	if err != nil {
		if e.logger != nil {
			e.logger.Warn("engine: cancel rejected, order not cancellable", "key", key, "err", err)
		}
		return
	}
	o, err = orders.OnCancelSent(o, e.state.TimeEngineNow())
	if err != nil {
		if e.logger != nil {
			e.logger.Error("engine: failed to mark cancel in-flight", "key", key, "err", err)
		}
		return
	}
	if err := e.state.PutOrder(o); err != nil {
		if e.logger != nil {
			e.logger.Error("engine: failed to record in-flight cancel", "key", key, "err", err)
		}
		return
	}

	e.backend.Requests() <- execution.ExecutionRequest{Kind: execution.RequestCancelOrder, Cancel: key}
}

// drainOnce gives strategy/risk one final pass at Shutdown, per spec.md's
// "drain strategy/risk once, stop" rule, without emitting further audit
// ticks for it.
func (e *Engine) drainOnce() {
	if e.algo != nil && e.state.Trading == types.TradingEnabled {
		e.dispatchIntents(e.algo.GenerateAlgoOrders(e.state))
	}
}

func (e *Engine) emitTick(source types.EngineEventKind, note string) {
	tick := types.AuditTick{
		Sequence:     e.sequence,
		EngineTime:   e.state.TimeEngineNow(),
		SourceEvent:  source,
		TradingState: e.state.Trading,
		Connectivity: cloneHealth(e.state.Connectivity),
		Note:         note,
	}
	select {
	case e.auditCh <- tick:
	default:
		if e.logger != nil {
			e.logger.Warn("engine: audit tick dropped, consumer lagging", "sequence", tick.Sequence)
		}
	}
}

func (e *Engine) emitShutdownTick(reason string) {
	e.sequence++
	e.emitTick(types.EngineEventAccount, "shutdown: "+reason)
}

func cloneHealth(h map[types.ExchangeIndex]types.Health) map[types.ExchangeIndex]types.Health {
	out := make(map[types.ExchangeIndex]types.Health, len(h))
	for k, v := range h {
		out[k] = v
	}
	return out
}
