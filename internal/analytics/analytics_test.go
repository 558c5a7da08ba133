package analytics

import (
	"testing"

	"tradingcore/internal/fixedpoint"
	"tradingcore/pkg/types"
)

func sample(engineTime int64, pnl string) Sample {
	return Sample{EngineTime: engineTime, PnL: fixedpoint.MustParse(pnl)}
}

func TestComputeEmptySeriesReturnsZeroValueSheet(t *testing.T) {
	t.Parallel()
	sheet := Compute(1, fixedpoint.Daily, fixedpoint.Annual252, Params{}, nil)
	if sheet.SampleCount != 0 {
		t.Fatalf("SampleCount = %d, want 0", sheet.SampleCount)
	}
	if !sheet.Sharpe.IsZero() || !sheet.MaxDrawdown.IsZero() {
		t.Fatalf("sheet = %+v, want all-zero", sheet)
	}
	if sheet.ProfitFactor.Kind != ProfitFactorUndefined {
		t.Fatalf("ProfitFactor.Kind = %v, want ProfitFactorUndefined for an empty series", sheet.ProfitFactor.Kind)
	}
}

func TestComputeAllPositiveReturnsHaveZeroDrawdownAndFullWinRate(t *testing.T) {
	t.Parallel()
	samples := []Sample{
		sample(1, "10"),
		sample(2, "5"),
		sample(3, "8"),
	}
	sheet := Compute(1, fixedpoint.Daily, fixedpoint.Annual252, Params{}, samples)

	if !sheet.MaxDrawdown.IsZero() {
		t.Errorf("MaxDrawdown = %s, want 0 (equity curve is monotonically increasing)", sheet.MaxDrawdown)
	}
	if !sheet.WinRate.Equal(fixedpoint.NewFromInt(1)) {
		t.Errorf("WinRate = %s, want 1", sheet.WinRate)
	}
	if !sheet.Sharpe.GreaterThan(fixedpoint.Zero) {
		t.Errorf("Sharpe = %s, want > 0 for an all-positive series", sheet.Sharpe)
	}
}

func TestComputeMaxDrawdownTracksPeakToTrough(t *testing.T) {
	t.Parallel()
	// equity curve: 10, 15, 5, 8 -> peak 15, trough 5, drawdown 10
	samples := []Sample{
		sample(1, "10"),
		sample(2, "5"),
		sample(3, "-10"),
		sample(4, "3"),
	}
	sheet := Compute(1, fixedpoint.Daily, fixedpoint.Annual252, Params{}, samples)

	if !sheet.MaxDrawdown.Equal(fixedpoint.MustParse("10")) {
		t.Fatalf("MaxDrawdown = %s, want 10", sheet.MaxDrawdown)
	}
}

func TestComputeWinRateAndProfitFactor(t *testing.T) {
	t.Parallel()
	samples := []Sample{
		sample(1, "10"), // win
		sample(2, "-5"), // loss
		sample(3, "20"), // win
		sample(4, "-5"), // loss
	}
	sheet := Compute(1, fixedpoint.Daily, fixedpoint.Annual252, Params{}, samples)

	if !sheet.WinRate.Equal(fixedpoint.MustParse("0.5")) {
		t.Fatalf("WinRate = %s, want 0.5", sheet.WinRate)
	}
	// grossProfit=30, grossLoss=10 -> profit factor 3
	if sheet.ProfitFactor.Kind != ProfitFactorFinite {
		t.Fatalf("ProfitFactor.Kind = %v, want ProfitFactorFinite", sheet.ProfitFactor.Kind)
	}
	if !sheet.ProfitFactor.Value.Equal(fixedpoint.NewFromInt(3)) {
		t.Fatalf("ProfitFactor.Value = %s, want 3", sheet.ProfitFactor.Value)
	}
}

func TestComputeNoLossesProducesPositiveInfinitySentinel(t *testing.T) {
	t.Parallel()
	samples := []Sample{sample(1, "10"), sample(2, "5")}
	sheet := Compute(1, fixedpoint.Daily, fixedpoint.Annual252, Params{}, samples)

	if sheet.ProfitFactor.Kind != ProfitFactorAllProfit {
		t.Fatalf("ProfitFactor.Kind = %v, want ProfitFactorAllProfit (+Inf sentinel)", sheet.ProfitFactor.Kind)
	}
}

func TestComputeNoProfitsProducesNegativeInfinitySentinel(t *testing.T) {
	t.Parallel()
	samples := []Sample{sample(1, "-10"), sample(2, "-5")}
	sheet := Compute(1, fixedpoint.Daily, fixedpoint.Annual252, Params{}, samples)

	if sheet.ProfitFactor.Kind != ProfitFactorAllLoss {
		t.Fatalf("ProfitFactor.Kind = %v, want ProfitFactorAllLoss (-Inf sentinel)", sheet.ProfitFactor.Kind)
	}
}

func TestComputeNoWinsOrLossesProducesUndefinedProfitFactor(t *testing.T) {
	t.Parallel()
	samples := []Sample{sample(1, "0"), sample(2, "0")}
	sheet := Compute(1, fixedpoint.Daily, fixedpoint.Annual252, Params{}, samples)

	if sheet.ProfitFactor.Kind != ProfitFactorUndefined {
		t.Fatalf("ProfitFactor.Kind = %v, want ProfitFactorUndefined", sheet.ProfitFactor.Kind)
	}
}

func TestSharpeScalesBySqrtOfPeriodsPerYear(t *testing.T) {
	t.Parallel()
	// Two identical return series, annualized to different intervals:
	// Annual252 should scale by sqrt(252), Annual365 by sqrt(365), so the
	// Annual365 Sharpe must be strictly larger for any non-degenerate series.
	samples := []Sample{sample(1, "10"), sample(2, "-5"), sample(3, "8"), sample(4, "-3")}

	s252 := Compute(1, fixedpoint.Daily, fixedpoint.Annual252, Params{}, samples)
	s365 := Compute(1, fixedpoint.Daily, fixedpoint.Annual365, Params{}, samples)

	if !s365.Sharpe.GreaterThan(s252.Sharpe) {
		t.Fatalf("Sharpe(Annual365) = %s, Sharpe(Annual252) = %s, want 365 > 252", s365.Sharpe, s252.Sharpe)
	}
}

func TestSortinoIgnoresUpsideVolatility(t *testing.T) {
	t.Parallel()
	// No returns below the MAR of 0 -> downside deviation is undefined -> 0.
	samples := []Sample{sample(1, "10"), sample(2, "1"), sample(3, "20")}
	sheet := Compute(1, fixedpoint.Daily, fixedpoint.Annual252, Params{MinimumAcceptableReturn: 0}, samples)

	if !sheet.Sortino.IsZero() {
		t.Errorf("Sortino = %s, want 0 when no sample falls below the MAR", sheet.Sortino)
	}
}

func TestComputePreservesInstrumentAndInterval(t *testing.T) {
	t.Parallel()
	sheet := Compute(types.InstrumentIndex(42), fixedpoint.Daily, fixedpoint.Annual365, Params{}, []Sample{sample(1, "1")})
	if sheet.Instrument != 42 {
		t.Errorf("Instrument = %d, want 42", sheet.Instrument)
	}
	if sheet.Interval != fixedpoint.Annual365 {
		t.Errorf("Interval = %v, want Annual365", sheet.Interval)
	}
}
