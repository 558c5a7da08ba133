package types

import "tradingcore/internal/fixedpoint"

// PriceLevel is one price/quantity pair of an order book side.
type PriceLevel struct {
	Price    fixedpoint.Decimal
	Quantity fixedpoint.Decimal
}

// MarketEventKind tags the payload carried by a MarketEvent.
type MarketEventKind string

const (
	MarketEventSnapshot   MarketEventKind = "SNAPSHOT"
	MarketEventDelta      MarketEventKind = "DELTA"
	MarketEventTrade      MarketEventKind = "TRADE"
	MarketEventDisconnect MarketEventKind = "DISCONNECT"
	MarketEventReconnect  MarketEventKind = "RECONNECT"
)

// MarketEvent is the normalized shape every marketdata.Transformer produces,
// regardless of venue wire format. The engine's single writer loop only
// ever sees this shape, never a venue envelope.
type MarketEvent struct {
	Kind       MarketEventKind
	Exchange   ExchangeIndex
	Instrument InstrumentIndex
	Sequence   uint64 // venue-assigned, monotone per instrument; 0 if venue has none

	// Populated when Kind is Snapshot or Delta.
	Bids []PriceLevel
	Asks []PriceLevel

	// Populated when Kind is Trade (public tape print, not our own fill).
	TradePrice fixedpoint.Decimal
	TradeQty   fixedpoint.Decimal
	TradeSide  Side

	ReceivedAtEngineTime int64
}

// AccountEventKind tags the payload carried by an AccountEvent.
type AccountEventKind string

const (
	AccountEventAck          AccountEventKind = "ACK"
	AccountEventReject       AccountEventKind = "REJECT"
	AccountEventCancelAck    AccountEventKind = "CANCEL_ACK"
	AccountEventCancelReject AccountEventKind = "CANCEL_REJECT"
	AccountEventTrade        AccountEventKind = "TRADE"
	AccountEventExpired      AccountEventKind = "EXPIRED"
	AccountEventBalance      AccountEventKind = "BALANCE"
)

// AccountEvent is the normalized shape every execution.Backend emits on its
// inbound channel.
type AccountEvent struct {
	Kind     AccountEventKind
	Exchange ExchangeIndex

	Order   OrderKey
	VenueId VenueOrderId

	RejectReason string
	Trade        Trade
	Balance      AssetBalance

	ReceivedAtEngineTime int64
}

// Command is an operator- or scheduler-originated instruction injected into
// the engine's event stream out of band from market/account data.
type Command struct {
	Kind CommandKind

	OpenRequest    *OpenOrderRequest
	CancelTarget   OrderKey
	CancelFilter   Filter
	TradingState   TradingState
	ClosePositions Filter
}

type CommandKind string

const (
	CommandOpenOrder      CommandKind = "OPEN_ORDER"
	CommandCancelOrder    CommandKind = "CANCEL_ORDER"
	CommandCancelOrders   CommandKind = "CANCEL_ORDERS"
	CommandSetTrading     CommandKind = "SET_TRADING"
	CommandClosePositions CommandKind = "CLOSE_POSITIONS"
	CommandShutdown       CommandKind = "SHUTDOWN"
)

// OpenOrderRequest is the payload of a CommandOpenOrder, also used internally
// by strategies to request new orders.
type OpenOrderRequest struct {
	Instrument InstrumentIndex
	Side       Side
	Kind       OrderKind
	TIF        TimeInForce
	Price      fixedpoint.Decimal
	Quantity   fixedpoint.Decimal
}

// EngineEvent is the tagged union the single-writer loop selects over. Every
// external input — market data, account data, operator commands, shutdown —
// is normalized into one of these before it reaches the state machine.
type EngineEvent struct {
	Kind    EngineEventKind
	Market  MarketEvent
	Account AccountEvent
	Command Command
}

type EngineEventKind string

const (
	EngineEventMarket  EngineEventKind = "MARKET"
	EngineEventAccount EngineEventKind = "ACCOUNT"
	EngineEventCommand EngineEventKind = "COMMAND"
)
