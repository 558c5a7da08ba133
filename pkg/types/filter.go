package types

// FilterKind selects which predicate a Filter applies.
type FilterKind string

const (
	FilterNone        FilterKind = "NONE" // matches everything
	FilterExchanges   FilterKind = "EXCHANGES"
	FilterInstruments FilterKind = "INSTRUMENTS"
	FilterUnderlyings FilterKind = "UNDERLYINGS"
)

// Filter is the value-typed predicate strategies and operator commands use
// to select a subset of orders/assets/instruments, per spec.md §4.3. It
// lives in pkg/types (rather than internal/state, where the iterators that
// consume it live) so a Command can carry one without an import cycle.
type Filter struct {
	Kind        FilterKind
	Exchanges   []ExchangeIndex
	Instruments []InstrumentIndex
	Underlyings []InstrumentIndex
}

// NoFilter matches every instrument/asset/order.
func NoFilter() Filter { return Filter{Kind: FilterNone} }

// ByExchanges matches only instruments/assets on one of the given exchanges.
func ByExchanges(exchanges ...ExchangeIndex) Filter {
	return Filter{Kind: FilterExchanges, Exchanges: exchanges}
}

// ByInstruments matches only the given instruments.
func ByInstruments(instruments ...InstrumentIndex) Filter {
	return Filter{Kind: FilterInstruments, Instruments: instruments}
}

// ByUnderlyings matches derivative instruments whose underlying is one of
// the given instruments.
func ByUnderlyings(underlyings ...InstrumentIndex) Filter {
	return Filter{Kind: FilterUnderlyings, Underlyings: underlyings}
}

func containsIndex[T comparable](xs []T, x T) bool {
	for _, v := range xs {
		if v == x {
			return true
		}
	}
	return false
}

// MatchesInstrument reports whether f selects the given instrument record.
func (f Filter) MatchesInstrument(inst Instrument) bool {
	switch f.Kind {
	case FilterNone:
		return true
	case FilterExchanges:
		return containsIndex(f.Exchanges, inst.Exchange)
	case FilterInstruments:
		return containsIndex(f.Instruments, inst.Index)
	case FilterUnderlyings:
		return inst.HasUnderlying && containsIndex(f.Underlyings, inst.Underlying)
	default:
		return false
	}
}

// MatchesAssetExchange reports whether f selects assets on the given
// exchange (assets have no underlying/instrument concept to filter on).
func (f Filter) MatchesAssetExchange(exchange ExchangeIndex) bool {
	switch f.Kind {
	case FilterNone:
		return true
	case FilterExchanges:
		return containsIndex(f.Exchanges, exchange)
	default:
		return false
	}
}
