package marketdata

import (
	"testing"

	"tradingcore/internal/fixedpoint"
	"tradingcore/pkg/types"
)

func lvl(price, qty string) types.PriceLevel {
	return types.PriceLevel{Price: fixedpoint.MustParse(price), Quantity: fixedpoint.MustParse(qty)}
}

func TestBookApplySnapshotThenBestBidAsk(t *testing.T) {
	t.Parallel()
	b := NewBook()
	b.ApplySnapshot(1, []types.PriceLevel{lvl("99", "1"), lvl("98", "2")}, []types.PriceLevel{lvl("100", "1"), lvl("101", "2")})

	bid, ask, ok := b.BestBidAsk()
	if !ok {
		t.Fatal("expected both sides populated")
	}
	if !bid.Price.Equal(fixedpoint.MustParse("99")) {
		t.Errorf("best bid = %s, want 99", bid.Price)
	}
	if !ask.Price.Equal(fixedpoint.MustParse("100")) {
		t.Errorf("best ask = %s, want 100", ask.Price)
	}
}

func TestBookApplyDeltaDropsStaleSequence(t *testing.T) {
	t.Parallel()
	b := NewBook()
	b.ApplySnapshot(5, []types.PriceLevel{lvl("99", "1")}, []types.PriceLevel{lvl("100", "1")})

	if ok := b.ApplyDelta(5, []types.PriceLevel{lvl("99", "5")}, nil); ok {
		t.Error("delta with seq == current should be dropped as stale")
	}
	if ok := b.ApplyDelta(3, []types.PriceLevel{lvl("99", "5")}, nil); ok {
		t.Error("delta with seq < current should be dropped as stale")
	}
	bid, _, _ := b.BestBidAsk()
	if !bid.Quantity.Equal(fixedpoint.MustParse("1")) {
		t.Errorf("stale deltas must not mutate the book; bid qty = %s, want 1", bid.Quantity)
	}

	if ok := b.ApplyDelta(6, []types.PriceLevel{lvl("99", "5")}, nil); !ok {
		t.Error("delta with seq > current should be applied")
	}
	bid, _, _ = b.BestBidAsk()
	if !bid.Quantity.Equal(fixedpoint.MustParse("5")) {
		t.Errorf("bid qty after fresh delta = %s, want 5", bid.Quantity)
	}
}

func TestBookApplyDeltaRemovesZeroQuantityLevel(t *testing.T) {
	t.Parallel()
	b := NewBook()
	b.ApplySnapshot(1, []types.PriceLevel{lvl("99", "1"), lvl("98", "1")}, []types.PriceLevel{lvl("100", "1")})

	b.ApplyDelta(2, []types.PriceLevel{lvl("99", "0")}, nil)
	bids, _ := b.Snapshot()
	if len(bids) != 1 || !bids[0].Price.Equal(fixedpoint.MustParse("98")) {
		t.Fatalf("bids after zero-qty delta = %+v, want only 98", bids)
	}
}

func TestBookTransformerSnapshotThenTrade(t *testing.T) {
	t.Parallel()
	xform := SimTransformer()
	ids := map[SubscriptionId]Subscription{"1": {Instrument: 1, Kind: SubscriptionBook}}

	snapshot := RawMessage{Data: []byte(`{"op":"snapshot","instrument":1,"sequence":1,"bids":[{"price":"99","quantity":"1"}],"asks":[{"price":"100","quantity":"1"}]}`)}
	events, err := xform.Transform(snapshot, ids)
	if err != nil {
		t.Fatalf("Transform snapshot: %v", err)
	}
	if len(events) != 1 || events[0].Kind != types.MarketEventSnapshot {
		t.Fatalf("events = %+v, want one Snapshot", events)
	}

	trade := RawMessage{Data: []byte(`{"op":"trade","instrument":1,"price":"99.5","quantity":"2","side":"buy"}`)}
	events, err = xform.Transform(trade, ids)
	if err != nil {
		t.Fatalf("Transform trade: %v", err)
	}
	if len(events) != 1 || events[0].Kind != types.MarketEventTrade || events[0].TradeSide != types.Buy {
		t.Fatalf("events = %+v, want one Buy Trade", events)
	}
}

func TestBookTransformerStaleDeltaProducesNoEvent(t *testing.T) {
	t.Parallel()
	xform := SimTransformer()
	ids := map[SubscriptionId]Subscription{"1": {Instrument: 1, Kind: SubscriptionBook}}

	snapshot := RawMessage{Data: []byte(`{"op":"snapshot","instrument":1,"sequence":5,"bids":[{"price":"99","quantity":"1"}],"asks":[{"price":"100","quantity":"1"}]}`)}
	if _, err := xform.Transform(snapshot, ids); err != nil {
		t.Fatalf("Transform snapshot: %v", err)
	}

	stale := RawMessage{Data: []byte(`{"op":"delta","instrument":1,"sequence":3,"bids":[{"price":"99","quantity":"9"}]}`)}
	events, err := xform.Transform(stale, ids)
	if err != nil {
		t.Fatalf("Transform stale delta: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("stale delta should produce no event, got %+v", events)
	}
}
