package execution

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"tradingcore/pkg/types"
)

// HTTPConfig configures an HTTPBackend. It generalizes the teacher's
// exchange.Client wiring away from the Polymarket CLOB's specific
// endpoints and EIP-712 signing: this backend is parameterized entirely by
// base URL + HMAC credentials, per spec.md's "the core is parameterised
// over exchange identifiers and opaque execution channels" non-goal
// boundary (concrete venue encodings live outside the core).
type HTTPConfig struct {
	BaseURL       string
	APIKey        string
	APISecret     string
	OrderPath     string
	CancelPath    string
	BalancesPath  string
	OpenOrderPath string
	TradesPath    string

	OrderBucketCapacity float64
	OrderBucketRate     float64
}

// HTTPBackend is a generic REST execution backend: it rate-limits,
// HMAC-signs, and retries requests against a venue's REST API, translating
// ExecutionRequests into HTTP calls and HTTP responses back into
// AccountEvents. It mirrors the teacher's `exchange.Client` (resty client
// with retry/backoff, a per-category TokenBucket, and L2 HMAC request
// signing) generalized from Polymarket's L1/L2 auth split down to a single
// HMAC-over-path+body scheme common to many venue REST APIs.
type HTTPBackend struct {
	cfg    HTTPConfig
	http   *resty.Client
	bucket *TokenBucket
	logger *slog.Logger

	requests chan ExecutionRequest
	events   chan types.AccountEvent
}

// NewHTTPBackend builds an HTTPBackend from cfg.
func NewHTTPBackend(cfg HTTPConfig, logger *slog.Logger) *HTTPBackend {
	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(10 * time.Second).
		SetRetryCount(3).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(5 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return r.StatusCode() >= 500
		}).
		SetHeader("Content-Type", "application/json")

	return &HTTPBackend{
		cfg:      cfg,
		http:     client,
		bucket:   NewTokenBucket(cfg.OrderBucketCapacity, cfg.OrderBucketRate),
		logger:   logger,
		requests: make(chan ExecutionRequest, 256),
		events:   make(chan types.AccountEvent, 256),
	}
}

func (b *HTTPBackend) Start(ctx context.Context) error {
	go b.run(ctx)
	return nil
}

func (b *HTTPBackend) Stop() error { return nil }

func (b *HTTPBackend) Requests() chan<- ExecutionRequest { return b.requests }
func (b *HTTPBackend) Events() <-chan types.AccountEvent  { return b.events }

func (b *HTTPBackend) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case req, ok := <-b.requests:
			if !ok {
				return
			}
			go b.handle(ctx, req)
		}
	}
}

func (b *HTTPBackend) handle(ctx context.Context, req ExecutionRequest) {
	if err := b.bucket.Wait(ctx); err != nil {
		return
	}
	switch req.Kind {
	case RequestOpenOrder:
		b.placeOrder(ctx, req.Open)
	case RequestCancelOrder:
		b.cancelOrder(ctx, req.Cancel)
	}
}

func (b *HTTPBackend) placeOrder(ctx context.Context, o types.Order) {
	body := map[string]any{
		"client_order_id": o.Key.ClientId,
		"side":            o.Side,
		"price":           o.Price.String(),
		"quantity":        o.Quantity.String(),
		"type":            o.Kind,
	}
	payload, _ := json.Marshal(body)

	var result struct {
		VenueId string `json:"order_id"`
		Error   string `json:"error"`
	}
	resp, err := b.http.R().
		SetContext(ctx).
		SetHeaders(b.authHeaders(b.cfg.OrderPath, payload)).
		SetBody(payload).
		SetResult(&result).
		Post(b.cfg.OrderPath)

	if err != nil || resp.StatusCode() >= http.StatusBadRequest {
		reason := result.Error
		if reason == "" && err != nil {
			reason = err.Error()
		}
		b.emit(types.AccountEvent{Kind: types.AccountEventReject, Exchange: o.Key.Exchange, Order: o.Key, RejectReason: reason, ReceivedAtEngineTime: nowUnixMilli()})
		return
	}
	b.emit(types.AccountEvent{Kind: types.AccountEventAck, Exchange: o.Key.Exchange, Order: o.Key, VenueId: types.VenueOrderId(result.VenueId), ReceivedAtEngineTime: nowUnixMilli()})
}

func (b *HTTPBackend) cancelOrder(ctx context.Context, key types.OrderKey) {
	resp, err := b.http.R().
		SetContext(ctx).
		SetHeaders(b.authHeaders(b.cfg.CancelPath, nil)).
		SetQueryParam("client_order_id", string(key.ClientId)).
		Delete(b.cfg.CancelPath)

	if err != nil || resp.StatusCode() >= http.StatusBadRequest {
		b.emit(types.AccountEvent{Kind: types.AccountEventCancelReject, Exchange: key.Exchange, Order: key, ReceivedAtEngineTime: nowUnixMilli()})
		return
	}
	b.emit(types.AccountEvent{Kind: types.AccountEventCancelAck, Exchange: key.Exchange, Order: key, ReceivedAtEngineTime: nowUnixMilli()})
}

// authHeaders computes an HMAC-SHA256 signature over path+body, the
// generic (non-blockchain) auth scheme this backend supports. Venues that
// require EIP-712 or another signature scheme are explicitly out of the
// core's scope (see DESIGN.md's dropped-dependency entries for
// go-ethereum/GoPolymarket SDK).
func (b *HTTPBackend) authHeaders(path string, body []byte) map[string]string {
	mac := hmac.New(sha256.New, []byte(b.cfg.APISecret))
	mac.Write([]byte(path))
	mac.Write(body)
	sig := hex.EncodeToString(mac.Sum(nil))
	return map[string]string{
		"X-API-Key":       b.cfg.APIKey,
		"X-API-Signature": sig,
	}
}

func (b *HTTPBackend) emit(ev types.AccountEvent) {
	select {
	case b.events <- ev:
	default:
		if b.logger != nil {
			b.logger.Warn("execution: account event dropped, events channel full", "order", fmt.Sprintf("%+v", ev.Order))
		}
	}
}

func nowUnixMilli() int64 { return time.Now().UnixMilli() }
