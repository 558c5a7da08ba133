// Package strategy defines the pluggable capability-bundle contracts the
// engine loop invokes: AlgoStrategy, ClosePositionsStrategy,
// OnDisconnectStrategy, and OnTradingDisabled. Per spec.md's non-goal
// boundary, no production strategy logic lives here — only the contracts
// and a minimal reference implementation used by tests and the mock
// backtest wiring.
//
// Capability selection is fixed at engine construction; nothing in the
// engine loop swaps a strategy at runtime.
package strategy

import (
	"tradingcore/internal/state"
	"tradingcore/pkg/types"
)

// Intents is the (cancels, opens) pair every capability hook returns. Per
// spec.md §4.4's ordering rule, cancels are dispatched before opens in the
// order the strategy returned them.
type Intents struct {
	Cancels []types.OrderKey
	Opens   []types.OpenOrderRequest
}

// AlgoStrategy is invoked once per processed event while trading is
// Enabled, after state has absorbed that event's mutations.
type AlgoStrategy interface {
	GenerateAlgoOrders(s *state.EngineState) Intents
}

// ClosePositionsStrategy answers a Command/ClosePositions(filter): given the
// current state and a filter, produce the cancels+opens needed to flatten
// the matching positions.
type ClosePositionsStrategy interface {
	ClosePositions(s *state.EngineState, f state.Filter) Intents
}

// OnDisconnectStrategy is invoked when an exchange's connectivity
// transitions to Reconnecting, so the strategy can pull in risk (e.g.
// cancel everything resting on that exchange) while the feed is dark.
type OnDisconnectStrategy interface {
	OnDisconnect(s *state.EngineState, exchange types.ExchangeIndex) Intents
}

// OnTradingDisabledHook is invoked when the trading flag transitions to
// Disabled, so the strategy can wind down open exposure.
type OnTradingDisabledHook interface {
	OnTradingDisabled(s *state.EngineState) Intents
}
