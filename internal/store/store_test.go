package store

import (
	"path/filepath"
	"testing"

	"tradingcore/internal/fixedpoint"
	"tradingcore/pkg/types"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "store.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSaveAndLoadPositionRoundTrips(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	pos := types.Position{
		Instrument:          7,
		Quantity:            fixedpoint.MustParse("10"),
		AvgEntryPrice:       fixedpoint.MustParse("0.55"),
		RealizedPnL:         fixedpoint.MustParse("1.2"),
		UnrealizedPnL:       fixedpoint.MustParse("-0.4"),
		LastMarkPrice:       fixedpoint.MustParse("0.6"),
		UpdatedAtEngineTime: 42,
	}
	if err := s.SavePosition(pos); err != nil {
		t.Fatalf("SavePosition: %v", err)
	}

	loaded, err := s.LoadPositions()
	if err != nil {
		t.Fatalf("LoadPositions: %v", err)
	}
	if len(loaded) != 1 {
		t.Fatalf("len(loaded) = %d, want 1", len(loaded))
	}
	got := loaded[0]
	if got.Instrument != pos.Instrument || !got.Quantity.Equal(pos.Quantity) || !got.AvgEntryPrice.Equal(pos.AvgEntryPrice) {
		t.Fatalf("loaded position = %+v, want %+v", got, pos)
	}
	if got.UpdatedAtEngineTime != pos.UpdatedAtEngineTime {
		t.Fatalf("UpdatedAtEngineTime = %d, want %d", got.UpdatedAtEngineTime, pos.UpdatedAtEngineTime)
	}
}

func TestSaveFlatPositionDeletesRow(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	pos := types.Position{Instrument: 3, Quantity: fixedpoint.MustParse("5"), AvgEntryPrice: fixedpoint.MustParse("1")}
	if err := s.SavePosition(pos); err != nil {
		t.Fatalf("SavePosition: %v", err)
	}

	flat := pos
	flat.Quantity = fixedpoint.Zero
	if err := s.SavePosition(flat); err != nil {
		t.Fatalf("SavePosition(flat): %v", err)
	}

	loaded, err := s.LoadPositions()
	if err != nil {
		t.Fatalf("LoadPositions: %v", err)
	}
	if len(loaded) != 0 {
		t.Fatalf("len(loaded) = %d, want 0 after flattening", len(loaded))
	}
}

func TestSaveAndLoadOpenOrdersRoundTrips(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	key := types.OrderKey{Exchange: 1, Instrument: 2, Strategy: "mm", ClientId: "c-1"}
	order := types.Order{
		Key:                   key,
		Instrument:            2,
		Side:                  types.Buy,
		Kind:                  types.OrderKindLimit,
		TIF:                   types.GTC(true),
		Price:                 fixedpoint.MustParse("0.5"),
		Quantity:              fixedpoint.MustParse("100"),
		Status:                types.StatusOpen,
		VenueId:               "venue-1",
		FilledQty:             fixedpoint.MustParse("20"),
		AvgFillPx:             fixedpoint.MustParse("0.51"),
		RequestedAtEngineTime: 1,
		UpdatedAtEngineTime:   2,
	}
	if err := s.SaveOrder(order); err != nil {
		t.Fatalf("SaveOrder: %v", err)
	}

	loaded, err := s.LoadOpenOrders()
	if err != nil {
		t.Fatalf("LoadOpenOrders: %v", err)
	}
	if len(loaded) != 1 {
		t.Fatalf("len(loaded) = %d, want 1", len(loaded))
	}
	got := loaded[0]
	if got.Key != key {
		t.Fatalf("Key = %+v, want %+v", got.Key, key)
	}
	if got.TIF.Kind != types.TIFGoodTilCancelled || !got.TIF.PostOnly {
		t.Fatalf("TIF = %+v, want GTC post-only", got.TIF)
	}
	if !got.FilledQty.Equal(order.FilledQty) || !got.AvgFillPx.Equal(order.AvgFillPx) {
		t.Fatalf("FilledQty/AvgFillPx = %s/%s, want %s/%s", got.FilledQty, got.AvgFillPx, order.FilledQty, order.AvgFillPx)
	}
}

func TestLoadOpenOrdersExcludesTerminalStatuses(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	open := types.Order{
		Key:      types.OrderKey{Exchange: 0, Instrument: 1, Strategy: "mm", ClientId: "open"},
		TIF:      types.IOC(),
		Price:    fixedpoint.MustParse("1"),
		Quantity: fixedpoint.MustParse("1"),
		Status:   types.StatusOpen,
	}
	filled := open
	filled.Key.ClientId = "filled"
	filled.Status = types.StatusFullyFilled

	if err := s.SaveOrder(open); err != nil {
		t.Fatalf("SaveOrder(open): %v", err)
	}
	if err := s.SaveOrder(filled); err != nil {
		t.Fatalf("SaveOrder(filled): %v", err)
	}

	loaded, err := s.LoadOpenOrders()
	if err != nil {
		t.Fatalf("LoadOpenOrders: %v", err)
	}
	if len(loaded) != 1 || loaded[0].Key.ClientId != "open" {
		t.Fatalf("loaded = %+v, want only the still-open order", loaded)
	}
}

func TestSaveOrderUpdateOverwritesPreviousRow(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	key := types.OrderKey{Exchange: 0, Instrument: 1, Strategy: "mm", ClientId: "c-1"}
	first := types.Order{Key: key, TIF: types.GTC(false), Price: fixedpoint.MustParse("1"), Quantity: fixedpoint.MustParse("10"), Status: types.StatusInFlightOpen}
	if err := s.SaveOrder(first); err != nil {
		t.Fatalf("SaveOrder(first): %v", err)
	}

	second := first
	second.Status = types.StatusOpen
	second.VenueId = "v-1"
	second.FilledQty = fixedpoint.MustParse("3")
	if err := s.SaveOrder(second); err != nil {
		t.Fatalf("SaveOrder(second): %v", err)
	}

	loaded, err := s.LoadOpenOrders()
	if err != nil {
		t.Fatalf("LoadOpenOrders: %v", err)
	}
	if len(loaded) != 1 {
		t.Fatalf("len(loaded) = %d, want 1 (update, not insert)", len(loaded))
	}
	if loaded[0].Status != types.StatusOpen || loaded[0].VenueId != "v-1" {
		t.Fatalf("loaded order = %+v, want updated status/venue", loaded[0])
	}
}
