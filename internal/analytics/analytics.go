// Package analytics computes tear-sheets (Sharpe, Sortino, Calmar, max
// drawdown, win rate, profit factor) over a series of realised-PnL samples.
//
// Grounded on aristath-sentinel's trader-go/pkg/formulas (stats.go's Mean/StdDev wrapping
// gonum/stat, sharpe.go's CalculateSharpeRatio/CalculateSortinoRatio,
// drawdown.go's CalculateMaxDrawdown peak-tracking loop), generalized from
// that package's float64-in/float64-out price-series API to fixed-point
// PnL samples tagged with an instrument and an explicit interval, and from
// a fixed periodsPerYear int to fixedpoint.Interval/ScaleFactor so
// annualization always goes through the same interval-scaling rule the
// engine uses everywhere else. Analytics is the one place in this module
// floating point is allowed to do real work; every output is quantised
// back to fixedpoint.Decimal before it leaves this package.
package analytics

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"tradingcore/internal/fixedpoint"
	"tradingcore/pkg/types"
)

// Sample is one period's realised PnL for an instrument, e.g. one trading
// day's closed-position PnL. It is a delta, not a cumulative total — Compute
// derives the equity curve itself.
type Sample struct {
	EngineTime int64
	PnL        fixedpoint.Decimal
}

// TearSheet is the statistical summary of a Sample series over a stated
// annualization interval.
type TearSheet struct {
	Instrument  types.InstrumentIndex
	Interval    fixedpoint.Interval
	SampleCount int

	MeanReturn   fixedpoint.Decimal
	StdDev       fixedpoint.Decimal
	Sharpe       fixedpoint.Decimal
	Sortino      fixedpoint.Decimal
	Calmar       fixedpoint.Decimal
	MaxDrawdown  fixedpoint.Decimal
	WinRate      fixedpoint.Decimal
	ProfitFactor ProfitFactor
}

// ProfitFactorKind tags the degenerate profit-factor cases a finite
// fixedpoint.Decimal cannot represent.
type ProfitFactorKind int

const (
	// ProfitFactorFinite means Value holds grossProfit/grossLoss.
	ProfitFactorFinite ProfitFactorKind = iota
	// ProfitFactorAllProfit means there were no losing periods: +Inf.
	ProfitFactorAllProfit
	// ProfitFactorAllLoss means there were no winning periods: -Inf.
	ProfitFactorAllLoss
	// ProfitFactorUndefined means there were neither wins nor losses.
	ProfitFactorUndefined
)

// ProfitFactor is gross profit over gross loss. fixedpoint.Decimal has no
// +-Inf representation, so the all-profit, all-loss, and no-activity cases
// are tagged by Kind instead of collapsing to a misleading finite value;
// Value only carries meaning when Kind is ProfitFactorFinite.
type ProfitFactor struct {
	Kind  ProfitFactorKind
	Value fixedpoint.Decimal
}

// Params bundles the rates a tear-sheet is computed against. Both are
// annual, as decimals (0.02 == 2%), matching pkg/formulas' convention.
type Params struct {
	RiskFreeRate            float64
	MinimumAcceptableReturn float64
}

// Compute builds a TearSheet from samples ordered ascending by EngineTime,
// each one sampleInterval apart (e.g. fixedpoint.Daily for one-sample-per-day
// PnL), annualizing ratios to annualizeTo (typically fixedpoint.Annual252 or
// fixedpoint.Annual365). An empty series returns a TearSheet carrying only
// Instrument and Interval, with every statistic zero and ProfitFactor
// Undefined.
func Compute(instrument types.InstrumentIndex, sampleInterval, annualizeTo fixedpoint.Interval, params Params, samples []Sample) TearSheet {
	sheet := TearSheet{Instrument: instrument, Interval: annualizeTo, SampleCount: len(samples), ProfitFactor: ProfitFactor{Kind: ProfitFactorUndefined}}
	if len(samples) == 0 {
		return sheet
	}

	returns := make([]float64, len(samples))
	for i, s := range samples {
		returns[i] = s.PnL.Float64()
	}

	mean := stat.Mean(returns, nil)
	std := stat.StdDev(returns, nil)
	scale := fixedpoint.ScaleFactor(sampleInterval, annualizeTo)
	periodsPerYear := scale * scale

	equity := equityCurve(returns)
	maxDD := maxDrawdown(equity)
	wins, _ := winLossCounts(returns)

	sheet.MeanReturn = quantize(mean)
	sheet.StdDev = quantize(std)
	sheet.Sharpe = quantize(sharpeRatio(mean, std, params.RiskFreeRate, periodsPerYear, scale))
	sheet.Sortino = quantize(sortinoRatio(returns, mean, params.RiskFreeRate, params.MinimumAcceptableReturn, periodsPerYear, scale))
	sheet.Calmar = quantize(calmarRatio(mean, periodsPerYear, maxDD))
	sheet.MaxDrawdown = quantize(maxDD)
	sheet.WinRate = quantize(float64(wins) / float64(len(returns)))
	sheet.ProfitFactor = profitFactor(returns)
	return sheet
}

// sharpeRatio mirrors pkg/formulas' CalculateSharpeRatio: subtract the
// periodic risk-free rate from the mean return, divide by the standard
// deviation, and annualize by scale (== sqrt(periodsPerYear)).
func sharpeRatio(mean, std, annualRiskFreeRate, periodsPerYear, scale float64) float64 {
	if std == 0 || periodsPerYear == 0 {
		return 0
	}
	periodicRiskFree := annualRiskFreeRate / periodsPerYear
	return ((mean - periodicRiskFree) / std) * scale
}

// sortinoRatio mirrors pkg/formulas' CalculateSortinoRatio: only returns
// below the periodic minimum-acceptable-return count toward the downside
// deviation denominator.
func sortinoRatio(returns []float64, mean, annualRiskFreeRate, annualMAR, periodsPerYear, scale float64) float64 {
	if periodsPerYear == 0 {
		return 0
	}
	periodicMAR := annualMAR / periodsPerYear
	var downsideSumSq float64
	var downsideCount int
	for _, r := range returns {
		if r < periodicMAR {
			d := r - periodicMAR
			downsideSumSq += d * d
			downsideCount++
		}
	}
	if downsideCount == 0 {
		return 0
	}
	downsideDeviation := math.Sqrt(downsideSumSq / float64(downsideCount))
	if downsideDeviation == 0 {
		return 0
	}
	periodicRiskFree := annualRiskFreeRate / periodsPerYear
	return ((mean - periodicRiskFree) / downsideDeviation) * scale
}

// calmarRatio is annualized mean return divided by max drawdown.
func calmarRatio(mean, periodsPerYear, maxDD float64) float64 {
	if maxDD == 0 {
		return 0
	}
	return (mean * periodsPerYear) / maxDD
}

// equityCurve is the running sum of per-period PnL.
func equityCurve(returns []float64) []float64 {
	equity := make([]float64, len(returns))
	var cumulative float64
	for i, r := range returns {
		cumulative += r
		equity[i] = cumulative
	}
	return equity
}

// maxDrawdown tracks the running peak of the equity curve and returns the
// largest peak-to-trough decline observed, in the same units as PnL
// (absolute, not a percentage — an equity curve built from signed PnL can
// cross zero, where a percentage drawdown is undefined).
func maxDrawdown(equity []float64) float64 {
	if len(equity) == 0 {
		return 0
	}
	peak := equity[0]
	var maxDD float64
	for _, v := range equity {
		if v > peak {
			peak = v
		}
		if dd := peak - v; dd > maxDD {
			maxDD = dd
		}
	}
	return maxDD
}

func winLossCounts(returns []float64) (wins, losses int) {
	for _, r := range returns {
		switch {
		case r > 0:
			wins++
		case r < 0:
			losses++
		}
	}
	return wins, losses
}

// profitFactor is gross profit over gross loss, tagging the three
// degenerate cases a finite ratio can't express: no losses at all (+Inf),
// no profits at all (-Inf), and neither (undefined).
func profitFactor(returns []float64) ProfitFactor {
	var grossProfit, grossLoss float64
	for _, r := range returns {
		switch {
		case r > 0:
			grossProfit += r
		case r < 0:
			grossLoss += -r
		}
	}
	switch {
	case grossProfit == 0 && grossLoss == 0:
		return ProfitFactor{Kind: ProfitFactorUndefined}
	case grossLoss == 0:
		return ProfitFactor{Kind: ProfitFactorAllProfit}
	case grossProfit == 0:
		return ProfitFactor{Kind: ProfitFactorAllLoss}
	default:
		return ProfitFactor{Kind: ProfitFactorFinite, Value: quantize(grossProfit / grossLoss)}
	}
}

// quantize converts a float64 analytics output to fixedpoint.Decimal,
// mapping non-finite results (possible from degenerate all-zero series) to
// zero instead of producing an unrepresentable Decimal.
func quantize(v float64) fixedpoint.Decimal {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fixedpoint.Zero
	}
	return fixedpoint.NewFromFloat(v)
}
