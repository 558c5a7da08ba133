package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"tradingcore/internal/fixedpoint"
	"tradingcore/pkg/types"
)

// SimConnector is the reference Connector used by backtests and tests: it
// speaks a trivial JSON protocol (one object per WebSocket frame) of its own devising rather
// than any real venue's wire format, so C6 is exercisable end-to-end
// without a live exchange. Generalizes the shape of the teacher's
// exchange.WSFeed (one feed per venue) down to "one Connector any simulated
// or real venue can implement".
type SimConnector struct {
	url                 string
	pingInterval        time.Duration
	subscriptionTimeout time.Duration
}

// NewSimConnector builds a SimConnector dialing url.
func NewSimConnector(url string) *SimConnector {
	return &SimConnector{url: url, subscriptionTimeout: defaultSubscriptionTimeout}
}

func (c *SimConnector) URL() string                { return c.url }
func (c *SimConnector) PingInterval() time.Duration { return c.pingInterval }
func (c *SimConnector) SubscriptionTimeout() time.Duration {
	if c.subscriptionTimeout <= 0 {
		return defaultSubscriptionTimeout
	}
	return c.subscriptionTimeout
}
func (c *SimConnector) ExpectedResponses(subs []Subscription) int { return len(subs) }

// simSubscribeRequest is the wire shape SimConnector sends to subscribe.
type simSubscribeRequest struct {
	Op         string `json:"op"`
	Instrument int    `json:"instrument"`
	Kind       string `json:"kind"`
}

// simSubscribeAck is the wire shape a SimConnector peer echoes back per
// subscription request, which SimValidator waits for.
type simSubscribeAck struct {
	Op         string `json:"op"`
	Instrument int    `json:"instrument"`
	Ok         bool   `json:"ok"`
}

// simBookFrame is the wire shape for a book snapshot/delta.
type simBookFrame struct {
	Op         string          `json:"op"`
	Instrument int             `json:"instrument"`
	Sequence   uint64          `json:"sequence"`
	Bids       []simPriceLevel `json:"bids"`
	Asks       []simPriceLevel `json:"asks"`
}

type simPriceLevel struct {
	Price    string `json:"price"`
	Quantity string `json:"quantity"`
}

// simTradeFrame is the wire shape for a public trade print.
type simTradeFrame struct {
	Op         string `json:"op"`
	Instrument int    `json:"instrument"`
	Price      string `json:"price"`
	Quantity   string `json:"quantity"`
	Side       string `json:"side"`
}

// SimMapper is the SubscriptionMapper for SimConnector: ids map 1:1 to
// instrument indices since the sim protocol has no separate channel/market
// namespacing to fold in.
type SimMapper struct{}

func (SimMapper) Map(subs []Subscription) ([]WireMessage, map[SubscriptionId]Subscription, error) {
	ids := make(map[SubscriptionId]Subscription, len(subs))
	reqs := make([]WireMessage, 0, len(subs))
	for _, sub := range subs {
		ids[SubscriptionId(fmt.Sprintf("%d", sub.Instrument))] = sub
		reqs = append(reqs, WireMessage{JSON: simSubscribeRequest{
			Op:         "subscribe",
			Instrument: int(sub.Instrument),
			Kind:       string(sub.Kind),
		}})
	}
	return reqs, ids, nil
}

// SimValidator waits for `expected` simSubscribeAck{Ok: true} frames,
// buffering anything else it sees for the Transformer to process afterward
// — a real venue may start streaming book data before every ack arrives.
type SimValidator struct{}

func (SimValidator) Validate(ctx context.Context, frames <-chan RawMessage, expected int) ([]RawMessage, error) {
	var pending []RawMessage
	acked := 0
	for acked < expected {
		select {
		case <-ctx.Done():
			return pending, fmt.Errorf("marketdata: subscription validation timed out after %d/%d acks: %w", acked, expected, ctx.Err())
		case frame := <-frames:
			var ack simSubscribeAck
			if err := json.Unmarshal(frame.Data, &ack); err == nil && ack.Op == "ack" {
				if ack.Ok {
					acked++
				}
				continue
			}
			pending = append(pending, frame)
		}
	}
	return pending, nil
}

// SimTransformer decodes SimConnector's book/trade frames into DecodedFrame
// for a wrapping BookTransformer.
func SimTransformer() *BookTransformer {
	return NewBookTransformer(decodeSimFrame)
}

func decodeSimFrame(msg RawMessage, ids map[SubscriptionId]Subscription) (DecodedFrame, error) {
	var envelope struct {
		Op string `json:"op"`
	}
	if err := json.Unmarshal(msg.Data, &envelope); err != nil {
		return DecodedFrame{}, fmt.Errorf("marketdata: decode sim envelope: %w", err)
	}

	switch envelope.Op {
	case "snapshot", "delta":
		var f simBookFrame
		if err := json.Unmarshal(msg.Data, &f); err != nil {
			return DecodedFrame{}, fmt.Errorf("marketdata: decode sim book frame: %w", err)
		}
		bids, err := decodeLevels(f.Bids)
		if err != nil {
			return DecodedFrame{}, err
		}
		asks, err := decodeLevels(f.Asks)
		if err != nil {
			return DecodedFrame{}, err
		}
		return DecodedFrame{
			Instrument: types.InstrumentIndex(f.Instrument),
			IsSnapshot: envelope.Op == "snapshot",
			Sequence:   f.Sequence,
			Bids:       bids,
			Asks:       asks,
		}, nil

	case "trade":
		var f simTradeFrame
		if err := json.Unmarshal(msg.Data, &f); err != nil {
			return DecodedFrame{}, fmt.Errorf("marketdata: decode sim trade frame: %w", err)
		}
		lvl, err := decodeLevel(simPriceLevel{Price: f.Price, Quantity: f.Quantity})
		if err != nil {
			return DecodedFrame{}, err
		}
		side := types.Buy
		if f.Side == "sell" {
			side = types.Sell
		}
		return DecodedFrame{
			Instrument: types.InstrumentIndex(f.Instrument),
			IsTrade:    true,
			TradePrice: lvl,
			TradeSide:  side,
		}, nil

	default:
		return DecodedFrame{}, fmt.Errorf("marketdata: unknown sim frame op %q", envelope.Op)
	}
}

func decodeLevels(raw []simPriceLevel) ([]types.PriceLevel, error) {
	out := make([]types.PriceLevel, 0, len(raw))
	for _, r := range raw {
		lvl, err := decodeLevel(r)
		if err != nil {
			return nil, err
		}
		out = append(out, lvl)
	}
	return out, nil
}

func decodeLevel(r simPriceLevel) (types.PriceLevel, error) {
	price, err := fixedpoint.Parse(r.Price)
	if err != nil {
		return types.PriceLevel{}, fmt.Errorf("marketdata: decode price %q: %w", r.Price, err)
	}
	qty, err := fixedpoint.Parse(r.Quantity)
	if err != nil {
		return types.PriceLevel{}, fmt.Errorf("marketdata: decode quantity %q: %w", r.Quantity, err)
	}
	return types.PriceLevel{Price: price, Quantity: qty}, nil
}
