// Package risk implements the synchronous pre-trade check the engine loop
// runs over every strategy-generated open order: RiskManager.Check(state,
// open) → Result. Unlike the teacher's standalone goroutine-and-channel
// Manager (which aggregated asynchronous PositionReports from independent
// per-market strategy loops), the engine loop here is already the single
// writer of EngineState, so the check can simply read state synchronously
// instead of keeping a second shadow copy of positions/exposure — the
// channel-based aggregation the teacher needed to avoid data races no
// longer serves a purpose once there is one writer goroutine.
package risk

import (
	"log/slog"
	"time"

	"tradingcore/internal/fixedpoint"
	"tradingcore/internal/state"
	"tradingcore/pkg/types"
)

// Result is the outcome of a pre-trade risk check.
type Result struct {
	Approved bool
	Reason   string
}

// RiskManager is invoked once per strategy-generated open order, and once
// per mark price update so the rolling-anchor kill switch can arm itself
// ahead of the next Check.
type RiskManager interface {
	Check(s *state.EngineState, open types.OpenOrderRequest) Result
	CheckPriceMovement(instrument types.InstrumentIndex, exchange types.ExchangeIndex, price fixedpoint.Decimal) bool
}

// Limits configures Manager, generalizing the teacher's RiskConfig fields
// (per-market exposure cap, global exposure cap, daily loss cap, rapid
// price movement window/threshold) from a hardcoded binary-market
// USD-exposure model to per-instrument notional in the instrument's own
// quote asset.
type Limits struct {
	MaxNotionalPerInstrument fixedpoint.Decimal
	MaxNotionalGlobal        fixedpoint.Decimal
	MaxDailyLoss             fixedpoint.Decimal // positive number; breached when realized+unrealized PnL < -MaxDailyLoss
	KillSwitchDropPct        float64
	KillSwitchWindowSec      int64
	CooldownAfterKill        time.Duration
}

// Manager is the reference RiskManager, grounded on the teacher's
// internal/risk/manager.go exposure/daily-loss/price-movement checks.
type Manager struct {
	limits Limits
	logger *slog.Logger

	killUntil    map[types.ExchangeIndex]time.Time
	priceAnchor  map[types.InstrumentIndex]anchor
	killUntilAll time.Time
	clock        func() time.Time
}

type anchor struct {
	price fixedpoint.Decimal
	at    time.Time
}

// NewManager builds a Manager. clock defaults to time.Now if nil; tests
// pass a deterministic clock.
func NewManager(limits Limits, logger *slog.Logger, clock func() time.Time) *Manager {
	if clock == nil {
		clock = time.Now
	}
	return &Manager{
		limits:      limits,
		logger:      logger,
		killUntil:   map[types.ExchangeIndex]time.Time{},
		priceAnchor: map[types.InstrumentIndex]anchor{},
		clock:       clock,
	}
}

// Check evaluates one proposed open order against the configured limits,
// reading live exposure and PnL straight out of EngineState.
func (m *Manager) Check(s *state.EngineState, open types.OpenOrderRequest) Result {
	now := m.clock()

	if now.Before(m.killUntilAll) {
		return Result{Approved: false, Reason: "risk: global kill switch cooldown active"}
	}

	inst, ok := s.Blueprint().Instrument(open.Instrument)
	if !ok {
		return Result{Approved: false, Reason: "risk: unknown instrument"}
	}
	if until, ok := m.killUntil[inst.Exchange]; ok && now.Before(until) {
		return Result{Approved: false, Reason: "risk: exchange kill switch cooldown active"}
	}

	if !m.limits.MaxNotionalPerInstrument.IsZero() {
		is := s.Instrument(open.Instrument)
		notional := open.Price.Mul(open.Quantity)
		if is != nil && is.HasPosition {
			notional = notional.Add(is.Position.Quantity.Abs().Mul(is.Position.AvgEntryPrice))
		}
		if notional.GreaterThan(m.limits.MaxNotionalPerInstrument) {
			return Result{Approved: false, Reason: "risk: per-instrument notional cap exceeded"}
		}
	}

	if !m.limits.MaxNotionalGlobal.IsZero() {
		total := fixedpoint.Zero
		for _, i := range s.Instruments(state.NoFilter()) {
			is := s.Instrument(i.Index)
			if is != nil && is.HasPosition {
				total = total.Add(is.Position.Quantity.Abs().Mul(is.Position.AvgEntryPrice))
			}
		}
		if total.Add(open.Price.Mul(open.Quantity)).GreaterThan(m.limits.MaxNotionalGlobal) {
			return Result{Approved: false, Reason: "risk: global notional cap exceeded"}
		}
	}

	if !m.limits.MaxDailyLoss.IsZero() {
		total := fixedpoint.Zero
		for _, i := range s.Instruments(state.NoFilter()) {
			is := s.Instrument(i.Index)
			if is != nil && is.HasPosition {
				total = total.Add(is.Position.RealizedPnL).Add(is.Position.UnrealizedPnL)
			}
		}
		if total.LessThan(m.limits.MaxDailyLoss.Neg()) {
			m.killUntilAll = now.Add(m.limits.CooldownAfterKill)
			return Result{Approved: false, Reason: "risk: daily loss limit breached"}
		}
	}

	return Result{Approved: true}
}

// CheckPriceMovement records a mark price and reports whether it has moved
// by at least KillSwitchDropPct within KillSwitchWindowSec of the last
// anchor for this instrument, arming that exchange's kill switch if so.
// Grounded directly on the teacher's checkPriceMovement rolling-anchor
// logic, generalized from one global anchor per market to one per
// instrument index.
func (m *Manager) CheckPriceMovement(instrument types.InstrumentIndex, exchange types.ExchangeIndex, price fixedpoint.Decimal) bool {
	now := m.clock()
	prev, ok := m.priceAnchor[instrument]
	m.priceAnchor[instrument] = anchor{price: price, at: now}
	if !ok {
		return false
	}
	if now.Sub(prev.at) > time.Duration(m.limits.KillSwitchWindowSec)*time.Second {
		return false
	}
	if prev.price.IsZero() {
		return false
	}
	diff := price.Sub(prev.price).Abs()
	pct, ok := diff.Div(prev.price)
	if !ok {
		return false
	}
	if pct.Float64() >= m.limits.KillSwitchDropPct {
		m.killUntil[exchange] = now.Add(m.limits.CooldownAfterKill)
		if m.logger != nil {
			m.logger.Warn("risk: rapid price movement kill switch armed", "instrument", instrument, "pct", pct.Float64())
		}
		return true
	}
	return false
}
