package risk

import (
	"testing"
	"time"

	"tradingcore/internal/fixedpoint"
	"tradingcore/internal/index"
	"tradingcore/internal/state"
	"tradingcore/pkg/types"
)

func testState(t *testing.T) (*state.EngineState, types.InstrumentIndex) {
	t.Helper()
	ix, err := index.Build(nil, nil, []types.InstrumentDecl{
		{Exchange: "X", Id: "BTCUSDT", BaseAsset: "BTC", QuoteAsset: "USDT"},
	})
	if err != nil {
		t.Fatalf("index.Build: %v", err)
	}
	s := state.New(ix, nil)
	exIdx, _ := ix.FindExchangeIndex("X")
	instIdx, _ := ix.FindInstrumentIndex(exIdx, "BTCUSDT")
	return s, instIdx
}

func TestCheckApprovesWithinLimits(t *testing.T) {
	t.Parallel()
	s, instIdx := testState(t)
	m := NewManager(Limits{MaxNotionalPerInstrument: fixedpoint.MustParse("100000")}, nil, nil)

	r := m.Check(s, types.OpenOrderRequest{Instrument: instIdx, Price: fixedpoint.MustParse("100"), Quantity: fixedpoint.NewFromInt(10)})
	if !r.Approved {
		t.Fatalf("expected approval, got rejection: %s", r.Reason)
	}
}

func TestCheckRejectsOverPerInstrumentCap(t *testing.T) {
	t.Parallel()
	s, instIdx := testState(t)
	m := NewManager(Limits{MaxNotionalPerInstrument: fixedpoint.MustParse("500")}, nil, nil)

	r := m.Check(s, types.OpenOrderRequest{Instrument: instIdx, Price: fixedpoint.MustParse("100"), Quantity: fixedpoint.NewFromInt(10)})
	if r.Approved {
		t.Fatal("expected rejection for notional exceeding per-instrument cap")
	}
}

func TestCheckPriceMovementArmsKillSwitch(t *testing.T) {
	t.Parallel()
	now := time.Unix(1000, 0)
	clock := func() time.Time { return now }
	m := NewManager(Limits{KillSwitchDropPct: 0.05, KillSwitchWindowSec: 10, CooldownAfterKill: time.Minute}, nil, clock)

	if armed := m.CheckPriceMovement(1, 0, fixedpoint.MustParse("100")); armed {
		t.Fatal("first anchor should never arm")
	}
	now = now.Add(2 * time.Second)
	if armed := m.CheckPriceMovement(1, 0, fixedpoint.MustParse("106")); !armed {
		t.Fatal("6% move within window should arm the kill switch")
	}

	s, instIdx := testState(t)
	r := m.Check(s, types.OpenOrderRequest{Instrument: instIdx, Price: fixedpoint.MustParse("1"), Quantity: fixedpoint.NewFromInt(1)})
	if r.Approved {
		t.Fatal("expected rejection while exchange kill switch cooldown active")
	}
}
