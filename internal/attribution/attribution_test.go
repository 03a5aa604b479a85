package attribution

import (
	"testing"
	"time"

	"predictioncore/pkg/types"
)

func testSignal(id string, strategy types.StrategyId) types.Signal {
	return types.Signal{
		Id:            id,
		MarketId:      types.MarketIdFromBytes([]byte("m1")),
		OutcomeId:     types.OutcomeYes,
		StrategyId:    strategy,
		Direction:     types.Long,
		EntryPrice:    types.MustPrice("0.40"),
		TargetPrice:   types.MustPrice("0.60"),
		StopLoss:      types.MustPrice("0.20"),
		ExpectedValue: types.MustPrice("0.10").Decimal,
		CreatedAt:     time.Now(),
	}
}

func TestRecordFillRejectsUnknownSignal(t *testing.T) {
	t.Parallel()
	e := New()
	market := types.MarketIdFromBytes([]byte("m1"))
	if err := e.RecordFill("t1", "nonexistent", market, types.OutcomeYes); err == nil {
		t.Error("expected error for orphaned fill")
	}
}

func TestHandlePnLAttributesToOldestOpenTrade(t *testing.T) {
	t.Parallel()
	e := New()
	market := types.MarketIdFromBytes([]byte("m1"))

	sig := testSignal("s1", types.StrategyMarketMaking)
	e.RecordSignal(sig)
	if err := e.RecordFill("t1", "s1", market, types.OutcomeYes); err != nil {
		t.Fatalf("RecordFill failed: %v", err)
	}

	e.HandlePnL(types.PnLRecord{
		MarketId:  market,
		OutcomeId: types.OutcomeYes,
		PnL:       types.MustMoney("5"),
		Investment: types.MustMoney("10"),
		ClosedAt:  time.Now(),
		Reason:    "sell",
	})

	trade, ok := e.Trade("t1")
	if !ok {
		t.Fatal("expected trade t1 to exist")
	}
	if trade.PnL == nil || !trade.PnL.Equal(types.MustMoney("5").Decimal) {
		t.Errorf("expected PnL 5, got %+v", trade.PnL)
	}
	if trade.PnLPct == nil || *trade.PnLPct != 0.5 {
		t.Errorf("expected PnLPct 0.5, got %+v", trade.PnLPct)
	}
}

func TestRollupComputesHitRateAndProfitFactor(t *testing.T) {
	t.Parallel()
	e := New()
	market := types.MarketIdFromBytes([]byte("m1"))

	e.RecordSignal(testSignal("s1", types.StrategyPairCost))
	e.RecordSignal(testSignal("s2", types.StrategyPairCost))
	_ = e.RecordFill("t1", "s1", market, types.OutcomeYes)
	_ = e.RecordFill("t2", "s2", market, types.OutcomeNo)

	e.HandlePnL(types.PnLRecord{MarketId: market, OutcomeId: types.OutcomeYes, PnL: types.MustMoney("5"), Investment: types.MustMoney("10"), ClosedAt: time.Now()})
	e.HandlePnL(types.PnLRecord{MarketId: market, OutcomeId: types.OutcomeNo, PnL: types.MustMoney("-2"), Investment: types.MustMoney("10"), ClosedAt: time.Now()})

	r := e.Rollup(types.StrategyPairCost)
	if r.TradeCount != 2 || r.Wins != 1 || r.Losses != 1 {
		t.Fatalf("unexpected rollup counts: %+v", r)
	}
	if r.HitRate != 0.5 {
		t.Errorf("expected hit rate 0.5, got %v", r.HitRate)
	}
	if r.ProfitFactor != 2.5 {
		t.Errorf("expected profit factor 2.5 (5/2), got %v", r.ProfitFactor)
	}
	if !r.TotalPnL.Equal(types.MustMoney("3").Decimal) {
		t.Errorf("expected total pnl 3, got %v", r.TotalPnL)
	}
}

func TestRollupExcludesOtherStrategies(t *testing.T) {
	t.Parallel()
	e := New()
	market := types.MarketIdFromBytes([]byte("m1"))

	e.RecordSignal(testSignal("s1", types.StrategyMarketMaking))
	_ = e.RecordFill("t1", "s1", market, types.OutcomeYes)
	e.HandlePnL(types.PnLRecord{MarketId: market, OutcomeId: types.OutcomeYes, PnL: types.MustMoney("5"), Investment: types.MustMoney("10"), ClosedAt: time.Now()})

	r := e.Rollup(types.StrategySentiment)
	if r.TradeCount != 0 {
		t.Errorf("expected 0 trades for unrelated strategy, got %d", r.TradeCount)
	}
}
