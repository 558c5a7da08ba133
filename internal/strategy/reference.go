package strategy

import (
	"tradingcore/internal/state"
	"tradingcore/pkg/types"
)

// Noop implements every capability interface with empty Intents. cmd/engine
// wires it as the Algo strategy; the engine itself does not substitute it
// for an unset capability, it skips a nil one.
type Noop struct{}

func (Noop) GenerateAlgoOrders(*state.EngineState) Intents                { return Intents{} }
func (Noop) ClosePositions(*state.EngineState, state.Filter) Intents      { return Intents{} }
func (Noop) OnDisconnect(*state.EngineState, types.ExchangeIndex) Intents { return Intents{} }
func (Noop) OnTradingDisabled(*state.EngineState) Intents                 { return Intents{} }

// FlattenOnSignal is a reference ClosePositionsStrategy/OnDisconnectStrategy/
// OnTradingDisabledHook: it cancels every open order and requests a
// market order closing any non-flat position for the matching
// instruments. This is infrastructure (close-out-everything), not alpha
// generation, so it stays in scope despite the "no strategy logic beyond
// the contract" non-goal — it is itself one of the named contracts.
// Grounded on the teacher's `cancelAllMyOrders` (internal/strategy/maker.go),
// generalized from a single binary market's order map to the filtered
// multi-instrument case.
type FlattenOnSignal struct {
	Strategy types.StrategyId
}

func (f FlattenOnSignal) ClosePositions(s *state.EngineState, filter state.Filter) Intents {
	return f.flatten(s, filter)
}

func (f FlattenOnSignal) OnDisconnect(s *state.EngineState, exchange types.ExchangeIndex) Intents {
	return f.flatten(s, state.ByExchanges(exchange))
}

func (f FlattenOnSignal) OnTradingDisabled(s *state.EngineState) Intents {
	return f.flatten(s, state.NoFilter())
}

func (f FlattenOnSignal) flatten(s *state.EngineState, filter state.Filter) Intents {
	var out Intents
	for _, inst := range s.Instruments(filter) {
		is := s.Instrument(inst.Index)
		if is == nil {
			continue
		}
		for _, o := range is.Orders {
			if o.Status == types.StatusOpen {
				out.Cancels = append(out.Cancels, o.Key)
			}
		}
		if is.HasPosition && !is.Position.Flat() {
			side := types.Sell
			qty := is.Position.Quantity
			if is.Position.Quantity.IsNegative() {
				side = types.Buy
				qty = qty.Neg()
			}
			out.Opens = append(out.Opens, types.OpenOrderRequest{
				Instrument: inst.Index,
				Side:       side,
				Kind:       types.OrderKindMarket,
				TIF:        types.IOC(),
				Quantity:   qty,
			})
		}
	}
	return out
}
