// Package engine is the single-threaded decision loop that drains the
// ingress queue and drives every other component (spec.md §5). Grounded on
// the teacher's internal/engine.Engine: same New → Start → Stop lifecycle
// and a single owning goroutine for shared state; the engine starts no
// other goroutines. Generalized
// from "one strategy goroutine per market" to "one decision loop, N
// per-market state cells" since spec.md §5 requires a single-threaded
// cooperative core rather than one goroutine per market.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"predictioncore/internal/attribution"
	"predictioncore/internal/calibration"
	"predictioncore/internal/config"
	"predictioncore/internal/correlation"
	"predictioncore/internal/events"
	"predictioncore/internal/generators"
	"predictioncore/internal/ledger"
	"predictioncore/internal/pipeline"
	"predictioncore/internal/resolution"
	"predictioncore/internal/risk"
	"predictioncore/pkg/types"
)

// marketCell is the per-market state the generators read and update each
// tick — owned exclusively by the decision loop (spec.md §5 "generator
// per-market state cells are owned exclusively by the decision loop").
type marketCell struct {
	book     *events.Book
	mm       types.MarketMakingState
	pair     types.PairCostState
	newsFlag bool
}

// Fill is an executor-reported execution folded into the ledger and
// attribution (spec.md §4.9 stage 2).
type Fill struct {
	TradeId   string
	SignalId  string
	MarketId  types.MarketId
	OutcomeId types.OutcomeId
	Side      types.Side
	Money     types.Money // dollars spent (Buy) or realized (Sell)
	Price     types.Price
}

// Engine drains the ingress queue and dispatches to the ledger, the
// generators, the pipeline, and the resolution monitor, preserving FIFO
// order per market_id (spec.md §5).
type Engine struct {
	cfg         config.Config
	ledger      *ledger.Ledger
	checker     *risk.Checker
	pipeline    *pipeline.Pipeline
	resolution  *resolution.Monitor
	correlation *correlation.Graph
	attribution *attribution.Engine
	calibration *calibration.Engine

	marketMaker *generators.MarketMaker
	pairCost    *generators.PairCostArb
	spreadArb   *generators.SpreadArb
	sentiment   *generators.Sentiment

	cellsMu sync.Mutex
	cells   map[types.MarketId]*marketCell
	prices  map[types.MarketId]types.Price // last known mid, keyed by market
	themes  map[types.MarketId]string

	ingress chan events.MarketEvent

	coalesceMu sync.Mutex
	coalesced  map[string]events.PriceTick

	logger *slog.Logger
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(cfg config.Config, led *ledger.Ledger, checker *risk.Checker, pl *pipeline.Pipeline, mon *resolution.Monitor, corr *correlation.Graph, attr *attribution.Engine, cal *calibration.Engine, logger *slog.Logger) *Engine {
	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		cfg:         cfg,
		ledger:      led,
		checker:     checker,
		pipeline:    pl,
		resolution:  mon,
		correlation: corr,
		attribution: attr,
		calibration: cal,

		marketMaker: generators.NewMarketMaker(cfg.MarketMaking),
		pairCost:    generators.NewPairCostArb(cfg.PairCost),
		spreadArb:   generators.NewSpreadArb(cfg.SpreadArb),
		sentiment:   generators.NewSentiment(cfg.Sentiment),

		cells:  make(map[types.MarketId]*marketCell),
		prices: make(map[types.MarketId]types.Price),
		themes: make(map[types.MarketId]string),

		ingress:   make(chan events.MarketEvent, cfg.Pipeline.IngressQueueSize),
		coalesced: make(map[string]events.PriceTick),

		logger: logger.With("component", "engine"),
		ctx:    ctx,
		cancel: cancel,
	}
}

// SetMarketTheme assigns a market to a thematic bucket for risk's
// theme-exposure check (spec.md §4.3). Unassigned markets have no theme.
func (e *Engine) SetMarketTheme(marketID types.MarketId, theme string) {
	e.cellsMu.Lock()
	e.themes[marketID] = theme
	e.cellsMu.Unlock()
	e.ledger.SetTheme(marketID, theme)
}

// Start launches the decision loop. Non-blocking; call Stop to shut down.
func (e *Engine) Start() {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.run()
	}()
}

// Stop cancels the decision loop, drains whatever is left in the ingress
// queue and the coalesce buffer, then waits for the loop to exit (spec.md
// §5: "orderly shutdown drains the ingress queue, flushes pending
// signals, then stops").
func (e *Engine) Stop() {
	e.logger.Info("shutting down")
	e.cancel()
	e.wg.Wait()
	e.logger.Info("shutdown complete")
}

// Submit enqueues a normalized market event (spec.md §5 ingress). Under
// backpressure, PriceTicks are coalesced by (market_id, outcome_id) and
// applied on the next flush tick; OrderBook and Trade events are never
// dropped and block until there is room or the engine is shutting down.
func (e *Engine) Submit(ev events.MarketEvent) error {
	select {
	case e.ingress <- ev:
		return nil
	default:
	}

	if tick, ok := ev.(events.PriceTick); ok {
		e.coalesceMu.Lock()
		e.coalesced[tick.CoalesceKey()] = tick
		e.coalesceMu.Unlock()
		return nil
	}

	select {
	case e.ingress <- ev:
		return nil
	case <-e.ctx.Done():
		return e.ctx.Err()
	}
}

// SubmitSentiment feeds an external sentiment score into the sentiment
// generator. Sentiment ingestion (news/NLP) is out of scope (spec.md §1
// Non-goals); only the SentimentScore contract crosses the boundary.
func (e *Engine) SubmitSentiment(marketID types.MarketId, score generators.SentimentScore) {
	e.cellsMu.Lock()
	mid, ok := e.prices[marketID]
	e.cellsMu.Unlock()
	if !ok {
		return
	}
	e.dispatch(time.Now(), e.sentiment.Generate(time.Now(), mid, score))
}

// HandleFill folds an executor's reported fill into the ledger and links
// it back to the originating signal in attribution (spec.md §4.9 stage 2).
// A parsing/lookup failure on the fill itself is the caller's concern
// (spec.md §4.9: "logged and skipped"); an orphaned fill — one whose
// signal_id attribution doesn't recognize — is logged but not treated as
// fatal, since the ledger update has already happened.
func (e *Engine) HandleFill(f Fill) error {
	switch f.Side {
	case types.Buy:
		if err := e.ledger.Buy(f.MarketId, f.OutcomeId, f.Money, f.Price); err != nil {
			return fmt.Errorf("fill %s: %w", f.TradeId, err)
		}
	case types.Sell:
		if _, err := e.ledger.Sell(f.MarketId, f.OutcomeId, f.Money, f.Price); err != nil {
			return fmt.Errorf("fill %s: %w", f.TradeId, err)
		}
	default:
		return fmt.Errorf("fill %s: unrecognized side %q", f.TradeId, f.Side)
	}

	if err := e.attribution.RecordFill(f.TradeId, f.SignalId, f.MarketId, f.OutcomeId); err != nil {
		e.logger.Warn("orphaned fill", "trade_id", f.TradeId, "error", err)
	}
	e.marketMaker.OnFill(time.Now(), f.Side)

	if f.Side == types.Buy {
		if sig, ok := e.attribution.Signal(f.SignalId); ok && sig.StrategyId == types.StrategyPairCost {
			cell := e.cellFor(f.MarketId)
			e.cellsMu.Lock()
			cell.pair = cell.pair.ApplyBuy(f.OutcomeId, f.Price, f.Money)
			e.cellsMu.Unlock()
		}
	}
	return nil
}

// SubmitNewsFlag sets whether a market is currently under a breaking-news
// condition, widening the market-making generator's spread until cleared
// (spec.md §4.4.1: "widen spread... by news flag (×2)"). News detection
// itself is out of scope (spec.md §1 Non-goals) — only the flag crosses
// the boundary, mirroring SubmitSentiment.
func (e *Engine) SubmitNewsFlag(marketID types.MarketId, active bool) {
	cell := e.cellFor(marketID)
	e.cellsMu.Lock()
	cell.newsFlag = active
	e.cellsMu.Unlock()
}

// run is the decision loop: one goroutine, one select, in-memory and
// bounded per spec.md §5. A flush ticker periodically applies coalesced
// PriceTicks; a monitor ticker periodically re-evaluates the circuit
// breaker's post-trade state, mirroring the teacher's risk manager except
// called directly rather than via its own goroutine+channel.
func (e *Engine) run() {
	flush := time.NewTicker(50 * time.Millisecond)
	defer flush.Stop()
	monitor := time.NewTicker(5 * time.Second)
	defer monitor.Stop()

	for {
		select {
		case ev := <-e.ingress:
			e.handle(ev)
		case <-flush.C:
			e.drainCoalesced()
		case <-monitor.C:
			e.checker.Monitor(time.Now())
		case <-e.ctx.Done():
			e.drain()
			return
		}
	}
}

// drain processes whatever is left in the ingress queue and the coalesce
// buffer before the decision loop exits.
func (e *Engine) drain() {
	for {
		select {
		case ev := <-e.ingress:
			e.handle(ev)
		default:
			e.drainCoalesced()
			return
		}
	}
}

func (e *Engine) drainCoalesced() {
	e.coalesceMu.Lock()
	pending := e.coalesced
	e.coalesced = make(map[string]events.PriceTick)
	e.coalesceMu.Unlock()

	for _, tick := range pending {
		e.handle(tick)
	}
}

// handle dispatches one event by kind, preserving FIFO-per-market order
// since the decision loop processes the ingress queue strictly in arrival
// order (spec.md §5).
func (e *Engine) handle(ev events.MarketEvent) {
	switch v := ev.(type) {
	case events.OrderBook:
		e.handleOrderBook(v)
	case events.Trade:
		e.handleTrade(v)
	case events.PriceTick:
		e.handlePriceTick(v)
	case events.MarketResolved:
		e.resolution.Handle(e.ctx, v)
	}
}

func (e *Engine) cellFor(marketID types.MarketId) *marketCell {
	e.cellsMu.Lock()
	defer e.cellsMu.Unlock()
	c, ok := e.cells[marketID]
	if !ok {
		c = &marketCell{book: events.NewBook(marketID)}
		e.cells[marketID] = c
	}
	return c
}

func (e *Engine) handleOrderBook(ob events.OrderBook) {
	now := time.Now()
	cell := e.cellFor(ob.MarketId)
	cell.book.Apply(ob)

	mid, ok := cell.book.Mid()
	if !ok {
		return
	}
	midPrice, err := types.NewPrice(mid)
	if err != nil {
		return
	}
	e.cellsMu.Lock()
	e.prices[ob.MarketId] = midPrice
	mmState, pairState, newsFlag := cell.mm, cell.pair, cell.newsFlag
	e.cellsMu.Unlock()

	var candidates []types.Signal
	if bestBid, bestAsk, ok := cell.book.BestBidAsk(); ok {
		liquidity := cell.book.LiquidityScore()

		mmSigs := e.marketMaker.Generate(now, ob.MarketId, bestBid, bestAsk, mmState, newsFlag)
		for i := range mmSigs {
			mmSigs[i].LiquidityScore = liquidity
		}
		candidates = append(candidates, mmSigs...)

		noAskRaw := decimal.NewFromInt(1).Sub(bestBid.Decimal)
		if noAsk, err := types.NewPrice(noAskRaw); err == nil {
			pcSigs := e.pairCost.Generate(now, ob.MarketId, bestAsk, noAsk, pairState)
			for i := range pcSigs {
				pcSigs[i].LiquidityScore = liquidity
			}
			candidates = append(candidates, pcSigs...)
		}
	}

	candidates = append(candidates, e.spreadArbCandidates(now, ob.MarketId, midPrice)...)
	e.dispatch(now, candidates)
}

func (e *Engine) handleTrade(t events.Trade) {
	e.marketMaker.OnFill(t.Ts, t.Side)
}

func (e *Engine) handlePriceTick(p events.PriceTick) {
	if p.OutcomeId != types.OutcomeYes {
		return
	}
	e.cellsMu.Lock()
	e.prices[p.MarketId] = p.Price
	e.cellsMu.Unlock()

	now := time.Now()
	e.dispatch(now, e.spreadArbCandidates(now, p.MarketId, p.Price))
}

// spreadArbCandidates scans every correlation edge out of marketID and
// generates a spread-arbitrage candidate wherever the correlated market's
// last known price is available (spec.md §4.4.3, C10).
func (e *Engine) spreadArbCandidates(now time.Time, marketID types.MarketId, fromPrice types.Price) []types.Signal {
	var out []types.Signal
	for _, edge := range e.correlation.Neighbors(marketID) {
		e.cellsMu.Lock()
		toPrice, ok := e.prices[edge.ToMarket]
		e.cellsMu.Unlock()
		if !ok {
			continue
		}
		out = append(out, e.spreadArb.Generate(now, edge, fromPrice, toPrice)...)
	}
	return out
}

// dispatch runs the candidates through the pipeline and, for every
// approved outcome, links it into attribution and calibration (spec.md
// §4.5 stage 6, §4.6 stage 1, §4.8 stage 0).
func (e *Engine) dispatch(now time.Time, candidates []types.Signal) {
	if len(candidates) == 0 {
		return
	}
	outcomes := e.pipeline.Run(e.ctx, now, candidates, e.payoutPrice, e.theme)
	for _, o := range outcomes {
		if !o.Approved {
			continue
		}
		e.attribution.RecordSignal(o.Signal)
		e.calibration.RecordPrediction(predictionFromSignal(o.Signal))
	}
}

// payoutPrice returns the price of the side a signal buys: the YES entry
// price for a Long signal, its complement (the NO price) for a Short one.
func (e *Engine) payoutPrice(sig types.Signal) types.Price {
	if sig.Direction == types.Short {
		if p, err := types.NewPrice(decimal.NewFromInt(1).Sub(sig.EntryPrice.Decimal)); err == nil {
			return p
		}
	}
	return sig.EntryPrice
}

func (e *Engine) theme(sig types.Signal) string {
	e.cellsMu.Lock()
	defer e.cellsMu.Unlock()
	return e.themes[sig.MarketId]
}

// Theme returns a market's assigned thematic bucket, or "" if unassigned.
// Exported for observability endpoints (spec.md §6: "portfolio summary...
// exposure_by_category").
func (e *Engine) Theme(marketID types.MarketId) string {
	e.cellsMu.Lock()
	defer e.cellsMu.Unlock()
	return e.themes[marketID]
}

// predictionFromSignal derives the strategy's implied probability estimate
// from entry_price + edge (spec.md §3: "edge = estimated true probability -
// market-implied probability"), clamped to [0,1].
func predictionFromSignal(sig types.Signal) types.Prediction {
	prob := sig.EntryPrice.Decimal.Add(sig.Edge)
	probF, _ := prob.Float64()
	if probF < 0 {
		probF = 0
	}
	if probF > 1 {
		probF = 1
	}

	outcome := sig.OutcomeId
	if outcome == "" {
		outcome = types.OutcomeYes
	}

	return types.Prediction{
		Id:                   uuid.NewString(),
		SignalId:             sig.Id,
		StrategyId:           sig.StrategyId,
		MarketId:             sig.MarketId,
		OutcomeId:            outcome,
		PredictedProbability: probF,
		Ts:                   sig.CreatedAt,
	}
}
