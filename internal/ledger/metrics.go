package ledger

import (
	"math"
	"sort"
	"strconv"

	"predictioncore/pkg/types"
)

// Metrics is a snapshot of the risk-facing statistics derived from the
// ledger's bounded realized-P&L history (spec.md §4.1, §4.3). These feed the
// risk checker's post-trade monitor and the portfolio summary endpoint.
type Metrics struct {
	RealizedPnL       types.Money
	MaxDrawdown       float64 // fraction of peak cumulative P&L, [0,1]
	SharpeRatio       float64 // annualized, using daily-bucketed returns
	Var95             types.Money
	ExpectedShortfall types.Money // mean loss beyond the VaR95 threshold
	SampleSize        int         // number of daily buckets used
}

// Metrics computes the current risk snapshot from the ledger's history ring.
// Everything here is read-only and safe to call from outside the decision
// loop (spec.md §5: metrics endpoints are a yield-point concern).
func (l *Ledger) Metrics() Metrics {
	history := l.History()
	if len(history) == 0 {
		return Metrics{RealizedPnL: types.ZeroMoney()}
	}

	realized := types.ZeroMoney()
	for _, rec := range history {
		realized = types.Money{Decimal: realized.Add(rec.PnL.Decimal)}
	}

	daily := dailyReturns(history)
	return Metrics{
		RealizedPnL:       realized,
		MaxDrawdown:       maxDrawdown(history),
		SharpeRatio:       sharpeRatio(daily),
		Var95:             valueAtRisk(daily, 0.95),
		ExpectedShortfall: expectedShortfall(daily, 0.95),
		SampleSize:        len(daily),
	}
}

// dailyReturns buckets realized PnLRecords by UTC calendar day and sums
// each bucket, giving the return series the Sharpe/VaR/ES estimators need.
func dailyReturns(history []types.PnLRecord) []float64 {
	buckets := make(map[string]float64)
	order := make([]string, 0)
	for _, rec := range history {
		day := rec.ClosedAt.UTC().Format("2006-01-02")
		if _, ok := buckets[day]; !ok {
			order = append(order, day)
		}
		f, _ := rec.PnL.Float64()
		buckets[day] += f
	}
	sort.Strings(order)
	out := make([]float64, len(order))
	for i, day := range order {
		out[i] = buckets[day]
	}
	return out
}

// maxDrawdown scans the cumulative realized P&L sequence (trade order, not
// day-bucketed) for the largest peak-to-trough fraction (spec.md §4.3).
func maxDrawdown(history []types.PnLRecord) float64 {
	var cum, peak, worst float64
	for _, rec := range history {
		f, _ := rec.PnL.Float64()
		cum += f
		if cum > peak {
			peak = cum
		}
		if peak <= 0 {
			continue
		}
		dd := (peak - cum) / peak
		if dd > worst {
			worst = dd
		}
	}
	return worst
}

// sharpeRatio annualizes the daily-return series with sqrt(252), the
// standard trading-day convention (spec.md §4.3). Returns 0 for fewer than
// two samples or zero variance, never NaN/Inf.
func sharpeRatio(daily []float64) float64 {
	n := len(daily)
	if n < 2 {
		return 0
	}
	mean := 0.0
	for _, r := range daily {
		mean += r
	}
	mean /= float64(n)

	var variance float64
	for _, r := range daily {
		d := r - mean
		variance += d * d
	}
	variance /= float64(n - 1)
	if variance <= 0 {
		return 0
	}
	stddev := math.Sqrt(variance)
	return (mean / stddev) * math.Sqrt(252)
}

// valueAtRisk returns the loss magnitude at the given confidence level
// (e.g. 0.95) using the empirical quantile of the daily-return series — the
// worst loss not exceeded (1-confidence) of the time. Returns zero money
// when there isn't enough history to form a meaningful quantile.
func valueAtRisk(daily []float64, confidence float64) types.Money {
	if len(daily) == 0 {
		return types.ZeroMoney()
	}
	sorted := append([]float64(nil), daily...)
	sort.Float64s(sorted)

	idx := int(math.Floor((1 - confidence) * float64(len(sorted))))
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	worst := sorted[idx]
	if worst >= 0 {
		return types.ZeroMoney()
	}
	return types.MustMoney(strconv.FormatFloat(-worst, 'f', -1, 64))
}

// expectedShortfall is the mean of the losses at or beyond the VaR
// threshold (the tail average, sometimes called CVaR; spec.md §4.3).
func expectedShortfall(daily []float64, confidence float64) types.Money {
	if len(daily) == 0 {
		return types.ZeroMoney()
	}
	sorted := append([]float64(nil), daily...)
	sort.Float64s(sorted)

	cutoff := int(math.Ceil((1 - confidence) * float64(len(sorted))))
	if cutoff <= 0 {
		cutoff = 1
	}
	if cutoff > len(sorted) {
		cutoff = len(sorted)
	}
	tail := sorted[:cutoff]

	sum := 0.0
	for _, v := range tail {
		sum += v
	}
	mean := sum / float64(len(tail))
	if mean >= 0 {
		return types.ZeroMoney()
	}
	return types.MustMoney(strconv.FormatFloat(-mean, 'f', -1, 64))
}
