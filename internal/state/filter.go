package state

import "tradingcore/pkg/types"

// Filter re-exports types.Filter so existing call sites in this package read
// naturally; the type itself lives in pkg/types so a types.Command can carry
// one without an import cycle back into internal/state.
type Filter = types.Filter

// NoFilter matches every instrument/asset/order.
func NoFilter() Filter { return types.NoFilter() }

// ByExchanges matches only instruments/assets on one of the given exchanges.
func ByExchanges(exchanges ...types.ExchangeIndex) Filter { return types.ByExchanges(exchanges...) }

// ByInstruments matches only the given instruments.
func ByInstruments(instruments ...types.InstrumentIndex) Filter {
	return types.ByInstruments(instruments...)
}

// ByUnderlyings matches derivative instruments whose underlying is one of
// the given instruments.
func ByUnderlyings(underlyings ...types.InstrumentIndex) Filter {
	return types.ByUnderlyings(underlyings...)
}

// Instruments iterates indexed instruments matching f.
func (s *EngineState) Instruments(f Filter) []types.Instrument {
	var out []types.Instrument
	for _, inst := range s.blueprint.Instruments() {
		if f.MatchesInstrument(inst) {
			out = append(out, inst)
		}
	}
	return out
}

// Assets iterates indexed assets matching f (by exchange only — assets have
// no underlying/instrument concept).
func (s *EngineState) Assets(f Filter) []types.Asset {
	var out []types.Asset
	for _, a := range s.blueprint.Assets() {
		if f.MatchesAssetExchange(a.Exchange) {
			out = append(out, a)
		}
	}
	return out
}

// Orders iterates every order across instruments matching f. Orders is
// deliberately not indexed by status; callers filter the returned slice
// further (e.g. "Open orders only") themselves, since that predicate is
// cheap and varies per caller.
func (s *EngineState) Orders(f Filter) []types.Order {
	var out []types.Order
	for _, inst := range s.Instruments(f) {
		is := s.instruments[inst.Index]
		if is == nil {
			continue
		}
		for _, o := range is.Orders {
			out = append(out, o)
		}
	}
	return out
}
