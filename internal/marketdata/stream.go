package marketdata

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"

	"tradingcore/pkg/types"
)

// Reconnection policy constants, fixed per spec.md §4.5 (overridable per
// subscription is not exercised by the reference Stream below — every
// configured exchange shares one policy, matching the teacher's single
// hardcoded backoff schedule in exchange/ws.go, just with different
// numbers: 125ms/2x/60s here instead of the teacher's 1s/30s).
const (
	backoffInitial    = 125 * time.Millisecond
	backoffMultiplier = 2
	backoffMax        = 60 * time.Second

	defaultSubscriptionTimeout = 10 * time.Second
	rawFrameBuffer             = 256
)

// Stream drives one exchange's reconnecting feed: dial, subscribe, validate,
// transform, resume on disconnect. It is the generalized, pluggable
// replacement for the teacher's WSFeed — one Stream per Connector/exchange
// instead of one hardcoded market/user pair.
type Stream struct {
	exchange types.ExchangeIndex
	conn     Connector
	mapper   SubscriptionMapper
	validate SubscriptionValidator
	xform    Transformer
	logger   *slog.Logger

	subs []Subscription

	events       chan types.MarketEvent
	connectivity chan ConnectivityReport
}

// ConnectivityReport is a health transition observed by a Stream, forwarded
// by the caller into Engine.SubmitConnectivity.
type ConnectivityReport struct {
	Exchange types.ExchangeIndex
	Health   types.Health
}

// NewStream builds a Stream for one exchange. subs is the full set of
// instruments to subscribe to; it is re-sent verbatim on every reconnect.
func NewStream(exchange types.ExchangeIndex, conn Connector, mapper SubscriptionMapper, validator SubscriptionValidator, xform Transformer, subs []Subscription, logger *slog.Logger) *Stream {
	return &Stream{
		exchange:     exchange,
		conn:         conn,
		mapper:       mapper,
		validate:     validator,
		xform:        xform,
		logger:       logger,
		subs:         subs,
		events:       make(chan types.MarketEvent, 1024),
		connectivity: make(chan ConnectivityReport, 16),
	}
}

// Events returns the normalized MarketEvent output. Consumers (the engine
// loop, via SubmitMarketEvent) drain this; a full channel means the engine
// is not keeping up and frames are dropped with a warning, mirroring the
// teacher's book/price_change channel-full behavior.
func (s *Stream) Events() <-chan types.MarketEvent { return s.events }

// Connectivity reports health transitions this Stream observes, for the
// caller to forward into Engine.SubmitConnectivity.
func (s *Stream) Connectivity() <-chan ConnectivityReport { return s.connectivity }

// Run connects and maintains the feed with exponential backoff until ctx is
// cancelled. On every disconnect it reports Reconnecting before attempting
// the next dial, per spec.md §4.5's documented marker contract.
func (s *Stream) Run(ctx context.Context) error {
	backoff := backoffInitial

	for {
		err := s.connectAndRead(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		s.reportHealth(types.HealthReconnecting)
		if s.logger != nil {
			s.logger.Warn("marketdata: stream disconnected, reconnecting",
				"exchange", s.exchange, "error", err, "backoff", backoff)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}

		backoff *= backoffMultiplier
		if backoff > backoffMax {
			backoff = backoffMax
		}
	}
}

func (s *Stream) connectAndRead(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.conn.URL(), nil)
	if err != nil {
		return fmt.Errorf("marketdata: dial %s: %w", s.conn.URL(), err)
	}
	defer conn.Close()

	requests, ids, err := s.mapper.Map(s.subs)
	if err != nil {
		return fmt.Errorf("marketdata: map subscriptions: %w", err)
	}
	for _, req := range requests {
		if err := writeWireMessage(conn, req); err != nil {
			return fmt.Errorf("marketdata: send subscription: %w", err)
		}
	}

	frames := make(chan RawMessage, rawFrameBuffer)
	readErrs := make(chan error, 1)
	readCtx, cancelRead := context.WithCancel(ctx)
	defer cancelRead()
	go readLoop(readCtx, conn, frames, readErrs)

	timeout := s.conn.SubscriptionTimeout()
	if timeout <= 0 {
		timeout = defaultSubscriptionTimeout
	}
	validateCtx, cancelValidate := context.WithTimeout(ctx, timeout)
	pending, err := s.validate.Validate(validateCtx, frames, s.conn.ExpectedResponses(s.subs))
	cancelValidate()
	if err != nil {
		return fmt.Errorf("marketdata: subscription validation: %w", err)
	}

	s.reportHealth(types.HealthHealthy)

	var pingStop chan struct{}
	if iv := s.conn.PingInterval(); iv > 0 {
		pingStop = make(chan struct{})
		go s.pingLoop(conn, iv, pingStop)
		defer close(pingStop)
	}

	for _, frame := range pending {
		s.handleFrame(frame, ids)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-readErrs:
			return err
		case frame := <-frames:
			s.handleFrame(frame, ids)
		}
	}
}

func (s *Stream) handleFrame(frame RawMessage, ids map[SubscriptionId]Subscription) {
	events, err := s.xform.Transform(frame, ids)
	if err != nil {
		if s.logger != nil {
			s.logger.Error("marketdata: transform failed", "exchange", s.exchange, "error", err)
		}
		return
	}
	for _, ev := range events {
		ev.Exchange = s.exchange
		select {
		case s.events <- ev:
		default:
			if s.logger != nil {
				s.logger.Warn("marketdata: event channel full, dropping", "exchange", s.exchange, "instrument", ev.Instrument)
			}
		}
	}
}

func (s *Stream) reportHealth(h types.Health) {
	select {
	case s.connectivity <- ConnectivityReport{Exchange: s.exchange, Health: h}:
	default:
	}
}

func (s *Stream) pingLoop(conn *websocket.Conn, interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func readLoop(ctx context.Context, conn *websocket.Conn, out chan<- RawMessage, errs chan<- error) {
	for {
		if ctx.Err() != nil {
			return
		}
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			select {
			case errs <- err:
			default:
			}
			return
		}
		select {
		case out <- RawMessage{Data: data, IsText: msgType == websocket.TextMessage}:
		case <-ctx.Done():
			return
		}
	}
}

func writeWireMessage(conn *websocket.Conn, msg WireMessage) error {
	if msg.Binary != nil {
		return conn.WriteMessage(websocket.BinaryMessage, msg.Binary)
	}
	return conn.WriteJSON(msg.JSON)
}
