package orders

import (
	"testing"

	"tradingcore/internal/fixedpoint"
	"tradingcore/pkg/types"
)

func TestApplyFillExtendsAndAverages(t *testing.T) {
	t.Parallel()

	pos := types.Position{Instrument: 1}
	pos = ApplyFill(pos, types.Buy, fixedpoint.NewFromInt(10), fixedpoint.MustParse("100"), fixedpoint.Zero, 1)
	if !pos.Quantity.Equal(fixedpoint.NewFromInt(10)) {
		t.Fatalf("Quantity = %s, want 10", pos.Quantity)
	}
	pos = ApplyFill(pos, types.Buy, fixedpoint.NewFromInt(10), fixedpoint.MustParse("110"), fixedpoint.Zero, 2)
	if !pos.Quantity.Equal(fixedpoint.NewFromInt(20)) {
		t.Fatalf("Quantity = %s, want 20", pos.Quantity)
	}
	// avg = (10*100 + 10*110) / 20 = 105
	if !pos.AvgEntryPrice.Equal(fixedpoint.MustParse("105")) {
		t.Errorf("AvgEntryPrice = %s, want 105", pos.AvgEntryPrice)
	}
}

func TestApplyFillPartialClose(t *testing.T) {
	t.Parallel()

	pos := types.Position{Instrument: 1}
	pos = ApplyFill(pos, types.Buy, fixedpoint.NewFromInt(10), fixedpoint.MustParse("100"), fixedpoint.Zero, 1)
	pos = ApplyFill(pos, types.Sell, fixedpoint.NewFromInt(4), fixedpoint.MustParse("110"), fixedpoint.Zero, 2)

	if !pos.Quantity.Equal(fixedpoint.NewFromInt(6)) {
		t.Fatalf("Quantity = %s, want 6", pos.Quantity)
	}
	// realized = (110-100)*4 = 40
	if !pos.RealizedPnL.Equal(fixedpoint.MustParse("40")) {
		t.Errorf("RealizedPnL = %s, want 40", pos.RealizedPnL)
	}
	// avg entry unchanged by a partial close
	if !pos.AvgEntryPrice.Equal(fixedpoint.MustParse("100")) {
		t.Errorf("AvgEntryPrice = %s, want 100", pos.AvgEntryPrice)
	}
}

func TestApplyFillFullCloseWithFee(t *testing.T) {
	t.Parallel()

	pos := types.Position{Instrument: 1}
	pos = ApplyFill(pos, types.Buy, fixedpoint.NewFromInt(10), fixedpoint.MustParse("100"), fixedpoint.Zero, 1)
	pos = ApplyFill(pos, types.Sell, fixedpoint.NewFromInt(10), fixedpoint.MustParse("110"), fixedpoint.MustParse("5"), 2)

	if !pos.Flat() {
		t.Fatalf("expected flat position, got quantity %s", pos.Quantity)
	}
	// realized = (110-100)*10 - 5 = 95
	if !pos.RealizedPnL.Equal(fixedpoint.MustParse("95")) {
		t.Errorf("RealizedPnL = %s, want 95", pos.RealizedPnL)
	}
}

func TestApplyFillFlip(t *testing.T) {
	t.Parallel()

	pos := types.Position{Instrument: 1}
	pos = ApplyFill(pos, types.Buy, fixedpoint.NewFromInt(10), fixedpoint.MustParse("100"), fixedpoint.Zero, 1)
	// sell 15: closes the 10 long (realizing PnL) then opens 5 short at 110
	pos = ApplyFill(pos, types.Sell, fixedpoint.NewFromInt(15), fixedpoint.MustParse("110"), fixedpoint.Zero, 2)

	if !pos.Quantity.Equal(fixedpoint.MustParse("-5")) {
		t.Fatalf("Quantity = %s, want -5", pos.Quantity)
	}
	if !pos.AvgEntryPrice.Equal(fixedpoint.MustParse("110")) {
		t.Errorf("AvgEntryPrice = %s, want 110", pos.AvgEntryPrice)
	}
	// realized = (110-100)*10 = 100
	if !pos.RealizedPnL.Equal(fixedpoint.MustParse("100")) {
		t.Errorf("RealizedPnL = %s, want 100", pos.RealizedPnL)
	}
}

func TestApplyFillShortPositionPnLSign(t *testing.T) {
	t.Parallel()

	pos := types.Position{Instrument: 1}
	pos = ApplyFill(pos, types.Sell, fixedpoint.NewFromInt(10), fixedpoint.MustParse("100"), fixedpoint.Zero, 1)
	if !pos.Quantity.Equal(fixedpoint.MustParse("-10")) {
		t.Fatalf("Quantity = %s, want -10", pos.Quantity)
	}
	// buy back at 90: profit on a short is (avgEntry - closePrice) * qty = 10*10 = 100
	pos = ApplyFill(pos, types.Buy, fixedpoint.NewFromInt(10), fixedpoint.MustParse("90"), fixedpoint.Zero, 2)
	if !pos.Flat() {
		t.Fatalf("expected flat, got %s", pos.Quantity)
	}
	if !pos.RealizedPnL.Equal(fixedpoint.MustParse("100")) {
		t.Errorf("RealizedPnL = %s, want 100", pos.RealizedPnL)
	}
}

func TestMarkToMarket(t *testing.T) {
	t.Parallel()

	pos := types.Position{Instrument: 1}
	pos = ApplyFill(pos, types.Buy, fixedpoint.NewFromInt(10), fixedpoint.MustParse("100"), fixedpoint.Zero, 1)
	pos = MarkToMarket(pos, fixedpoint.MustParse("105"), 2)
	if !pos.UnrealizedPnL.Equal(fixedpoint.MustParse("50")) {
		t.Errorf("UnrealizedPnL = %s, want 50", pos.UnrealizedPnL)
	}
}
