// Package pipeline orchestrates the six-stage signal lifecycle (spec.md
// §4.5): Generate happens upstream (each concrete generator in
// internal/generators runs against its own event/state type and returns
// candidates); this package picks up from Filter through Emit & Persist.
// Structured like the teacher's engine.manageMarkets per-tick select loop:
// one call to Run processes exactly one market tick's candidates before the
// caller advances to the next tick's events, preserving the ordering
// guarantee in spec.md §4.5.
package pipeline

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"predictioncore/internal/config"
	"predictioncore/internal/risk"
	"predictioncore/internal/sizing"
	"predictioncore/pkg/types"
)

// Recorder persists both approved and rejected signals for audit (spec.md
// §4.5 stage 6). Concrete storage engines are out of scope (spec.md §1
// Non-goals) — callers wire in internal/store's reference implementation
// or their own.
type Recorder interface {
	RecordSignal(ctx context.Context, sig types.Signal, approved bool, reason string) error
}

// Executor is the outbound half of the executor contract (spec.md §4.10):
// the pipeline hands approved signals to it and never reasons about order
// routing itself. A nil Executor is valid — Run then only sizes, gates,
// ranks, and records, useful for backtests and dry runs.
type Executor interface {
	Submit(ctx context.Context, sig types.Signal) error
}

// Pipeline wires the sizer and risk checker into the filter/rank/emit
// stages. One Pipeline per running core instance.
type Pipeline struct {
	cfg             config.PipelineConfig
	sizer           *sizing.Sizer
	checker         *risk.Checker
	bankroll        decimal.Decimal
	maxPositionSize decimal.Decimal
	recorder        Recorder
	executor        Executor
	logger          *slog.Logger
}

func New(cfg config.PipelineConfig, sizer *sizing.Sizer, checker *risk.Checker, bankroll, maxPositionSize float64, recorder Recorder, executor Executor, logger *slog.Logger) *Pipeline {
	return &Pipeline{
		cfg:             cfg,
		sizer:           sizer,
		checker:         checker,
		bankroll:        decimal.NewFromFloat(bankroll),
		maxPositionSize: decimal.NewFromFloat(maxPositionSize),
		recorder:        recorder,
		executor:        executor,
		logger:          logger.With("component", "pipeline"),
	}
}

// Outcome is one candidate's final disposition after the pipeline runs.
type Outcome struct {
	Signal   types.Signal
	Approved bool
	Reason   string
}

// PayoutPriceFn returns the price of the side a signal actually buys (the
// YES ask for a Long signal, 1-YES-bid for a Short signal) — the sizer
// needs this but generators don't all compute it the same way, so the
// caller supplies it per-candidate.
type PayoutPriceFn func(types.Signal) types.Price

// ThemeFn maps a signal to its thematic bucket for risk's theme-exposure
// check; returns "" if the market has no theme assigned.
type ThemeFn func(types.Signal) string

// Run executes stages 2-6 against one tick's candidates: Filter, Size,
// Risk-gate, Rank, Emit & Persist. Candidates are processed in the order
// given, and all output is produced before Run returns, preserving
// spec.md §4.5's single-tick ordering guarantee.
func (p *Pipeline) Run(ctx context.Context, now time.Time, candidates []types.Signal, payoutPrice PayoutPriceFn, theme ThemeFn) []Outcome {
	var outcomes []Outcome

	for _, sig := range p.filter(now, candidates) {
		price := payoutPrice(sig)
		sig = p.size(sig, price)

		if reason, ok := p.liquidityRatioOK(sig); !ok {
			outcomes = append(outcomes, Outcome{Signal: sig, Approved: false, Reason: reason})
			continue
		}

		decision := p.checker.Check(sig, theme(sig), now)
		outcomes = append(outcomes, Outcome{Signal: sig, Approved: decision.Approved, Reason: decision.Reason})
	}

	ranked := p.rank(outcomes)
	p.emitAndPersist(ctx, ranked)
	return ranked
}

// filter drops expired candidates and anything failing the configured
// floors, applied in spec.md §4.5 stage 2's literal order: min_edge,
// min_confidence, liquidity, expected_value.
func (p *Pipeline) filter(now time.Time, candidates []types.Signal) []types.Signal {
	minEdge := decimal.NewFromFloat(p.cfg.MinEdge)
	minEV := decimal.NewFromFloat(p.cfg.MinExpectedValue)
	var out []types.Signal
	for _, sig := range candidates {
		if sig.IsExpired(now) {
			continue
		}
		if sig.Edge.LessThan(minEdge) {
			continue
		}
		if sig.Confidence < p.cfg.MinConfidence {
			continue
		}
		if sig.LiquidityScore < p.cfg.MinLiquidityScore {
			continue
		}
		if sig.ExpectedValue.LessThan(minEV) {
			continue
		}
		out = append(out, sig)
	}
	return out
}

// liquidityRatioOK checks the sized position against the book's liquidity
// (original_source/signal-generation/src/validators.rs's
// LiquidityValidator: position_ratio = position_size / max(liquidity_score
// * 10000, 1) <= max_position_liquidity_ratio). Evaluated right after
// sizing rather than inside filter() — the ratio needs SuggestedSize,
// which stage 3 (size) is the first to set.
func (p *Pipeline) liquidityRatioOK(sig types.Signal) (string, bool) {
	if p.cfg.MaxPositionLiquidityRatio <= 0 {
		return "", true
	}
	notional := decimal.NewFromFloat(sig.LiquidityScore * 10000)
	if notional.LessThan(decimal.NewFromInt(1)) {
		notional = decimal.NewFromInt(1)
	}
	ratio := sig.SuggestedSize.Div(notional)
	if ratio.GreaterThan(decimal.NewFromFloat(p.cfg.MaxPositionLiquidityRatio)) {
		return "position size exceeds max_position_liquidity_ratio", false
	}
	return "", true
}

// size runs the Kelly sizer (spec.md §4.5 stage 3), attaching the
// resulting fraction and its dollar-notional size to the signal. Risk's
// limits (MaxPositionSize, MaxTotalExposure) are themselves expressed in
// notional dollars, so SuggestedSize carries notional here rather than a
// contract count — converting to a share count at execution time is the
// executor's concern, not the sizer's.
func (p *Pipeline) size(sig types.Signal, payoutPrice types.Price) types.Signal {
	fraction := p.sizer.Fraction(sig.Edge, payoutPrice)
	notional := sizing.ToSize(fraction, p.bankroll, p.maxPositionSize)

	sig.KellyFraction = fraction
	if size, err := types.NewSize(notional.Decimal); err == nil {
		sig.SuggestedSize = size
	}
	return sig
}

// rank sorts approved outcomes by expected_value*confidence descending
// and truncates to max_signals_per_tick (spec.md §4.5 stage 5). Rejected
// outcomes are appended unordered after the ranked approved set so callers
// still see every disposition.
func (p *Pipeline) rank(outcomes []Outcome) []Outcome {
	var approved, rejected []Outcome
	for _, o := range outcomes {
		if o.Approved {
			approved = append(approved, o)
		} else {
			rejected = append(rejected, o)
		}
	}

	sort.SliceStable(approved, func(i, j int) bool {
		scoreI, _ := approved[i].Signal.ExpectedValue.Mul(decimal.NewFromFloat(approved[i].Signal.Confidence)).Float64()
		scoreJ, _ := approved[j].Signal.ExpectedValue.Mul(decimal.NewFromFloat(approved[j].Signal.Confidence)).Float64()
		return scoreI > scoreJ
	})

	if p.cfg.MaxSignalsPerTick > 0 && len(approved) > p.cfg.MaxSignalsPerTick {
		dropped := approved[p.cfg.MaxSignalsPerTick:]
		approved = approved[:p.cfg.MaxSignalsPerTick]
		for _, d := range dropped {
			d.Approved = false
			d.Reason = "truncated by max_signals_per_tick"
			rejected = append(rejected, d)
		}
	}

	return append(approved, rejected...)
}

// emitAndPersist hands approved signals to the executor and records every
// outcome for audit (spec.md §4.5 stage 6). Both the executor and recorder
// are optional; neither blocks the others from running.
func (p *Pipeline) emitAndPersist(ctx context.Context, outcomes []Outcome) {
	for _, o := range outcomes {
		if o.Approved && p.executor != nil {
			if err := p.executor.Submit(ctx, o.Signal); err != nil {
				p.logger.Warn("executor submit failed", "signal_id", o.Signal.Id, "err", err)
			}
		}
		if p.recorder != nil {
			if err := p.recorder.RecordSignal(ctx, o.Signal, o.Approved, o.Reason); err != nil {
				p.logger.Warn("record signal failed", "signal_id", o.Signal.Id, "err", err)
			}
		}
	}
}
