package marketdata

import (
	"sort"
	"sync"

	"tradingcore/pkg/types"
)

// Book is the authoritative local L2 mirror for one instrument: shared-read,
// exclusive-write, per spec.md §5's "reader-writer scope" requirement.
// Snapshots replace both sides outright; deltas whose sequence number is not
// strictly greater than the book's current sequence are dropped, giving
// idempotent delta application under at-least-once delivery. A delta with
// sequence 0 (a venue that assigns none) is always applied and leaves the
// sequence cursor unchanged.
//
// Grounded on the teacher's internal/market/book.go (mutex-guarded snapshot
// + staleness tracking), generalized from the teacher's per-token
// bid/ask-as-strings snapshot to fixedpoint-priced levels keyed by a venue
// sequence number rather than an opaque hash string (the teacher's `hash`
// field detects *some* change but not ordering; spec.md requires the
// delta-after-snapshot-is-newer comparison sequence numbers give directly).
type Book struct {
	mu  sync.RWMutex
	seq uint64

	bids map[string]types.PriceLevel // keyed by price string for dedupe-by-price
	asks map[string]types.PriceLevel
}

// NewBook constructs an empty book.
func NewBook() *Book {
	return &Book{bids: map[string]types.PriceLevel{}, asks: map[string]types.PriceLevel{}}
}

// ApplySnapshot replaces the book outright and resets the sequence cursor.
func (b *Book) ApplySnapshot(seq uint64, bids, asks []types.PriceLevel) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.seq = seq
	b.bids = levelMap(bids)
	b.asks = levelMap(asks)
}

// ApplyDelta merges a set of level updates (zero quantity removes the
// level) into the book, provided seq is strictly newer than the book's
// current sequence or is 0 (no sequence). Returns false if the delta was
// dropped as stale.
func (b *Book) ApplyDelta(seq uint64, bids, asks []types.PriceLevel) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if seq != 0 && seq <= b.seq {
		return false
	}
	mergeLevels(b.bids, bids)
	mergeLevels(b.asks, asks)
	if seq != 0 {
		b.seq = seq
	}
	return true
}

// BestBidAsk returns the best bid/ask levels, or ok=false if either side is
// empty.
func (b *Book) BestBidAsk() (bid, ask types.PriceLevel, ok bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	bids := sortedLevels(b.bids, true)
	asks := sortedLevels(b.asks, false)
	if len(bids) == 0 || len(asks) == 0 {
		return types.PriceLevel{}, types.PriceLevel{}, false
	}
	return bids[0], asks[0], true
}

// Snapshot returns the current book sides sorted best-first (bids
// descending, asks ascending), for handing to a consumer as a
// types.MarketEvent's Bids/Asks payload.
func (b *Book) Snapshot() (bids, asks []types.PriceLevel) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return sortedLevels(b.bids, true), sortedLevels(b.asks, false)
}

// Sequence returns the book's current sequence cursor.
func (b *Book) Sequence() uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.seq
}

func levelMap(levels []types.PriceLevel) map[string]types.PriceLevel {
	m := make(map[string]types.PriceLevel, len(levels))
	for _, l := range levels {
		if l.Quantity.Sign() == 0 {
			continue
		}
		m[l.Price.String()] = l
	}
	return m
}

func mergeLevels(dst map[string]types.PriceLevel, levels []types.PriceLevel) {
	for _, l := range levels {
		key := l.Price.String()
		if l.Quantity.Sign() == 0 {
			delete(dst, key)
			continue
		}
		dst[key] = l
	}
}

func sortedLevels(m map[string]types.PriceLevel, descending bool) []types.PriceLevel {
	out := make([]types.PriceLevel, 0, len(m))
	for _, l := range m {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool {
		if descending {
			return out[i].Price.GreaterThan(out[j].Price)
		}
		return out[i].Price.LessThan(out[j].Price)
	})
	return out
}

// BookTransformer is a stateful Transformer wrapping one Book per
// instrument, turning venue book-snapshot/delta frames (already decoded by
// a venue-specific inner step — the decode function passed to
// NewBookTransformer) into normalized
// MarketEvents. It is the reference stateful transformer spec.md §4.5 calls
// out: "stateful ones (e.g. L2 order-book) initialise with a snapshot and a
// sink for outbound messages."
type BookTransformer struct {
	mu     sync.Mutex
	books  map[types.InstrumentIndex]*Book
	decode func(msg RawMessage, ids map[SubscriptionId]Subscription) (DecodedFrame, error)
}

// DecodedFrame is the venue-neutral shape a per-exchange decoder step must
// reduce a raw frame to before BookTransformer can apply it. Venue adapters
// live outside this package (spec.md places "concrete exchange protocol
// encodings" out of scope); this is the seam they implement against.
type DecodedFrame struct {
	Instrument types.InstrumentIndex
	IsSnapshot bool
	IsTrade    bool
	Sequence   uint64
	Bids       []types.PriceLevel
	Asks       []types.PriceLevel
	TradePrice types.PriceLevel
	TradeSide  types.Side
}

// NewBookTransformer builds a BookTransformer. decode adapts one venue's
// wire format into a DecodedFrame; book management itself is venue-agnostic.
func NewBookTransformer(decode func(msg RawMessage, ids map[SubscriptionId]Subscription) (DecodedFrame, error)) *BookTransformer {
	return &BookTransformer{books: map[types.InstrumentIndex]*Book{}, decode: decode}
}

func (t *BookTransformer) bookFor(inst types.InstrumentIndex) *Book {
	t.mu.Lock()
	defer t.mu.Unlock()
	b, ok := t.books[inst]
	if !ok {
		b = NewBook()
		t.books[inst] = b
	}
	return b
}

func (t *BookTransformer) Transform(msg RawMessage, ids map[SubscriptionId]Subscription) ([]types.MarketEvent, error) {
	df, err := t.decode(msg, ids)
	if err != nil {
		return nil, err
	}

	if df.IsTrade {
		return []types.MarketEvent{{
			Kind:       types.MarketEventTrade,
			Instrument: df.Instrument,
			TradePrice: df.TradePrice.Price,
			TradeQty:   df.TradePrice.Quantity,
			TradeSide:  df.TradeSide,
		}}, nil
	}

	book := t.bookFor(df.Instrument)
	if df.IsSnapshot {
		book.ApplySnapshot(df.Sequence, df.Bids, df.Asks)
	} else if !book.ApplyDelta(df.Sequence, df.Bids, df.Asks) {
		return nil, nil // stale delta, dropped per spec.md §4.5
	}

	bids, asks := book.Snapshot()
	kind := types.MarketEventDelta
	if df.IsSnapshot {
		kind = types.MarketEventSnapshot
	}
	return []types.MarketEvent{{
		Kind:       kind,
		Instrument: df.Instrument,
		Sequence:   book.Sequence(),
		Bids:       bids,
		Asks:       asks,
	}}, nil
}
