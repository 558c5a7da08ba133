package types

import "tradingcore/internal/fixedpoint"

// AuditTick is the single observability artifact the engine produces. One
// is emitted after every processed EngineEvent, regardless of how many (if
// any) consumers are attached. Sequence numbers are assigned in strict
// order with no gaps; a tick that finds the engine's audit buffer full is
// dropped, so a lagging reader can observe a gap in the sequence.
type AuditTick struct {
	Sequence      uint64
	EngineTime    int64
	SourceEvent   EngineEventKind
	TradingState  TradingState
	Connectivity  map[ExchangeIndex]Health

	// OrderDeltas/PositionDeltas/BalanceDeltas carry only what changed as a
	// result of processing the source event, not a full state snapshot —
	// consumers reconstruct state by folding the tick stream.
	OrderDeltas    []Order
	PositionDeltas []Position
	BalanceDeltas  []AssetBalance

	Note string
}

// Zero reports whether this is the unset AuditTick value, used by consumers
// to detect a closed/drained channel without a separate ok flag.
func (t AuditTick) Zero() bool { return t.Sequence == 0 && t.EngineTime == 0 }

// CostFormula models one broker's fee schedule: a fixed per-order charge
// plus a rate on gross notional plus a per-contract charge, as declared in
// the broker registry.
type CostFormula struct {
	Fixed       fixedpoint.Decimal
	RateGross   fixedpoint.Decimal
	PerContract fixedpoint.Decimal
}

// Apply computes the total cost of one fill under this formula.
func (f CostFormula) Apply(grossValue, contracts fixedpoint.Decimal) fixedpoint.Decimal {
	rateCost := f.RateGross.Mul(grossValue)
	contractCost := f.PerContract.Mul(contracts)
	return f.Fixed.Add(rateCost).Add(contractCost)
}
