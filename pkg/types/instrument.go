package types

import "tradingcore/internal/fixedpoint"

// ExchangeIndex, AssetIndex and InstrumentIndex are dense, zero-based
// integers assigned once at startup by the index builder. Every hot-path
// lookup in the engine keys off one of these instead of a string, so the
// state maps stay array-like instead of hashing a symbol on every event.
type ExchangeIndex int
type AssetIndex int
type InstrumentIndex int

// ExchangeId is the stable, human-assigned identifier for a venue
// connection, e.g. "BINANCE_SPOT" or "IBKR_PAPER".
type ExchangeId string

// AssetId is the stable identifier for an asset within one exchange, e.g.
// "BTC" or "USD".
type AssetId string

// InstrumentId is the stable identifier for a tradable instrument, unique
// within one exchange.
type InstrumentId string

// ExchangeDecl is the declared (pre-index) description of one venue
// connection, supplied at engine construction.
type ExchangeDecl struct {
	Id ExchangeId
}

// AssetDecl is the declared (pre-index) description of one asset.
type AssetDecl struct {
	Exchange ExchangeId
	Id       AssetId
	Kind     AssetKind
}

// InstrumentDecl is the declared (pre-index) description of one tradable
// instrument, as supplied by configuration before the index builder runs.
type InstrumentDecl struct {
	Exchange     ExchangeId
	Id           InstrumentId
	BaseAsset    AssetId
	QuoteAsset   AssetId
	QuoteRole    QuoteAssetRole
	PriceTick    fixedpoint.Decimal
	QuantityStep fixedpoint.Decimal
	MinNotional  fixedpoint.Decimal

	// Derivative-only fields; zero-valued for spot/currency instruments.
	Underlying    InstrumentId
	Multiplier    fixedpoint.Decimal
	ExpiryUnix    int64
	OptionKind    OptionKind
	ExerciseStyle ExerciseStyle
	StrikePrice   fixedpoint.Decimal
}

// IsDerivative reports whether this is a future or option, i.e. whether the
// derivative-only fields are meaningful.
func (d InstrumentDecl) IsDerivative() bool {
	return d.Multiplier.Sign() != 0
}

// Exchange is the indexed, runtime form of ExchangeDecl.
type Exchange struct {
	Index ExchangeIndex
	Id    ExchangeId
}

// Asset is the indexed, runtime form of AssetDecl.
type Asset struct {
	Index    AssetIndex
	Exchange ExchangeIndex
	Id       AssetId
	Kind     AssetKind
}

// Instrument is the indexed, runtime form of InstrumentDecl.
type Instrument struct {
	Index        InstrumentIndex
	Exchange     ExchangeIndex
	Id           InstrumentId
	BaseAsset    AssetIndex
	QuoteAsset   AssetIndex
	QuoteRole    QuoteAssetRole
	PriceTick    fixedpoint.Decimal
	QuantityStep fixedpoint.Decimal
	MinNotional  fixedpoint.Decimal

	Underlying    InstrumentIndex
	HasUnderlying bool
	Multiplier    fixedpoint.Decimal
	ExpiryUnix    int64
	OptionKind    OptionKind
	ExerciseStyle ExerciseStyle
	StrikePrice   fixedpoint.Decimal
}

func (i Instrument) IsDerivative() bool { return i.Multiplier.Sign() != 0 }

// RoundPrice snaps a raw price down to the nearest valid tick for this
// instrument. A non-positive tick is treated as "no rounding".
func (i Instrument) RoundPrice(raw fixedpoint.Decimal) fixedpoint.Decimal {
	return roundToStep(raw, i.PriceTick)
}

// RoundQuantity snaps a raw quantity down to the nearest valid step.
func (i Instrument) RoundQuantity(raw fixedpoint.Decimal) fixedpoint.Decimal {
	return roundToStep(raw, i.QuantityStep)
}

func roundToStep(raw, step fixedpoint.Decimal) fixedpoint.Decimal {
	if step.Sign() <= 0 {
		return raw
	}
	units, ok := raw.Div(step)
	if !ok {
		return raw
	}
	whole := fixedpoint.NewFromFloat(float64(int64(units.Float64())))
	return whole.Mul(step)
}
