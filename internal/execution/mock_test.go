package execution

import (
	"context"
	"testing"
	"time"

	"tradingcore/internal/fixedpoint"
	"tradingcore/pkg/types"
)

func TestMockBackendMarketOrderFillsImmediately(t *testing.T) {
	t.Parallel()

	var tick int64
	b := NewMockBackend(func() int64 { tick++; return tick })
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := b.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	key := types.OrderKey{Exchange: 0, Instrument: 1, Strategy: "s", ClientId: "c1"}
	b.Requests() <- ExecutionRequest{Kind: RequestOpenOrder, Open: types.Order{
		Key:        key,
		Instrument: 1,
		Side:       types.Buy,
		Kind:       types.OrderKindMarket,
		Price:      fixedpoint.MustParse("100"),
		Quantity:   fixedpoint.NewFromInt(5),
	}}

	ack := requireEvent(t, b.Events())
	if ack.Kind != types.AccountEventAck {
		t.Fatalf("first event kind = %s, want Ack", ack.Kind)
	}
	trade := requireEvent(t, b.Events())
	if trade.Kind != types.AccountEventTrade {
		t.Fatalf("second event kind = %s, want Trade", trade.Kind)
	}
	if !trade.Trade.Quantity.Equal(fixedpoint.NewFromInt(5)) {
		t.Errorf("trade quantity = %s, want 5", trade.Trade.Quantity)
	}
}

func TestMockBackendLimitOrderRestsThenCrosses(t *testing.T) {
	t.Parallel()

	var tick int64
	b := NewMockBackend(func() int64 { tick++; return tick })
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	b.Start(ctx)

	key := types.OrderKey{Exchange: 0, Instrument: 1, Strategy: "s", ClientId: "c1"}
	b.Requests() <- ExecutionRequest{Kind: RequestOpenOrder, Open: types.Order{
		Key:        key,
		Instrument: 1,
		Side:       types.Buy,
		Kind:       types.OrderKindLimit,
		Price:      fixedpoint.MustParse("100"),
		Quantity:   fixedpoint.NewFromInt(5),
	}}
	ack := requireEvent(t, b.Events())
	if ack.Kind != types.AccountEventAck {
		t.Fatalf("expected Ack for resting limit order, got %s", ack.Kind)
	}

	select {
	case ev := <-b.Events():
		t.Fatalf("unexpected event before cross: %+v", ev)
	case <-time.After(20 * time.Millisecond):
	}

	b.Cross(1, fixedpoint.MustParse("99"))
	trade := requireEvent(t, b.Events())
	if trade.Kind != types.AccountEventTrade {
		t.Fatalf("expected Trade after crossing, got %s", trade.Kind)
	}
}

func TestMockBackendAppliesCostFormulaToFills(t *testing.T) {
	t.Parallel()

	var tick int64
	b := NewMockBackend(func() int64 { tick++; return tick })
	b.SetCostFormula(types.CostFormula{
		Fixed:     fixedpoint.MustParse("1"),
		RateGross: fixedpoint.MustParse("0.01"),
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := b.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	key := types.OrderKey{Exchange: 0, Instrument: 1, Strategy: "s", ClientId: "c1"}
	b.Requests() <- ExecutionRequest{Kind: RequestOpenOrder, Open: types.Order{
		Key:        key,
		Instrument: 1,
		Side:       types.Buy,
		Kind:       types.OrderKindMarket,
		Price:      fixedpoint.MustParse("100"),
		Quantity:   fixedpoint.NewFromInt(5),
	}}

	requireEvent(t, b.Events()) // Ack
	trade := requireEvent(t, b.Events())

	// gross = 100*5 = 500; fee = 1 + 0.01*500 = 6
	if !trade.Trade.Fee.Equal(fixedpoint.MustParse("6")) {
		t.Fatalf("Fee = %s, want 6", trade.Trade.Fee)
	}
}

func requireEvent(t *testing.T, ch <-chan types.AccountEvent) types.AccountEvent {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return types.AccountEvent{}
	}
}
