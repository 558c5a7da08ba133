// Package execution defines the contract between the engine loop and an
// execution backend — the component that actually places orders on an
// exchange (or simulates doing so). The engine never talks to a venue
// directly; it only ever sends ExecutionRequests and receives
// types.AccountEvents back, so every backend (a live REST/WS adapter, a
// deterministic mock for backtests) is interchangeable from the engine's
// point of view.
package execution

import (
	"context"

	"tradingcore/pkg/types"
)

// RequestKind tags the payload of an ExecutionRequest.
type RequestKind string

const (
	RequestOpenOrder       RequestKind = "OPEN_ORDER"
	RequestCancelOrder     RequestKind = "CANCEL_ORDER"
	RequestFetchBalances   RequestKind = "FETCH_BALANCES"
	RequestFetchOpenOrders RequestKind = "FETCH_OPEN_ORDERS"
	RequestFetchTrades     RequestKind = "FETCH_TRADES"
)

// ExecutionRequest is the sole outbound message shape the engine loop
// sends to a Backend.
type ExecutionRequest struct {
	Kind RequestKind

	Open   types.Order   // valid when Kind == RequestOpenOrder
	Cancel types.OrderKey // valid when Kind == RequestCancelOrder
}

// Backend is implemented by every execution adapter: a live venue client
// or a deterministic backtest mock. Requests() is the channel the engine
// loop writes ExecutionRequests to; Events() is the channel the backend
// writes types.AccountEvents to as responses/fills arrive asynchronously.
//
// Both channels are unbuffered-safe: a Backend must never block the engine
// loop indefinitely on a full Requests() channel, and the engine loop's
// merged event-select must never block indefinitely on an empty Events()
// channel. Implementations size their buffers accordingly.
type Backend interface {
	Start(ctx context.Context) error
	Stop() error

	Requests() chan<- ExecutionRequest
	Events() <-chan types.AccountEvent
}
