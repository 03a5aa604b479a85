package ledger

import (
	"testing"

	"predictioncore/pkg/types"
)

var market = types.MarketIdFromBytes([]byte("m1"))

func TestBuyCreatesPositionThenReaverages(t *testing.T) {
	t.Parallel()
	l := New()

	if err := l.Buy(market, types.OutcomeYes, types.MustMoney("100"), types.MustPrice("0.50")); err != nil {
		t.Fatalf("buy: %v", err)
	}
	pos, ok := l.Position(market, types.OutcomeYes)
	if !ok {
		t.Fatal("expected position to exist")
	}
	if !pos.AvgEntryPrice.Equal(types.MustPrice("0.50").Decimal) {
		t.Errorf("avg entry = %v, want 0.50", pos.AvgEntryPrice)
	}

	// Buy more at a worse price: 100 @ 0.50 (200 shares) + 100 @ 0.60 (166.67
	// shares) => avg = 200 / (200+166.67) = 0.545...
	if err := l.Buy(market, types.OutcomeYes, types.MustMoney("100"), types.MustPrice("0.60")); err != nil {
		t.Fatalf("second buy: %v", err)
	}
	pos, _ = l.Position(market, types.OutcomeYes)
	if !pos.Investment.Equal(types.MustMoney("200").Decimal) {
		t.Errorf("investment = %v, want 200", pos.Investment)
	}
	if pos.AvgEntryPrice.LessThanOrEqual(types.MustPrice("0.50").Decimal) {
		t.Errorf("avg entry should have risen above 0.50, got %v", pos.AvgEntryPrice)
	}
}

func TestSellPartialThenFullCloses(t *testing.T) {
	t.Parallel()
	l := New()
	_ = l.Buy(market, types.OutcomeYes, types.MustMoney("100"), types.MustPrice("0.50"))

	pnl, err := l.Sell(market, types.OutcomeYes, types.MustMoney("50"), types.MustPrice("0.60"))
	if err != nil {
		t.Fatalf("sell: %v", err)
	}
	// shares_sold = 50/0.6 = 83.33, cost_basis = 83.33*0.5 = 41.67, pnl = 8.33
	if !pnl.GreaterThan(types.MustMoney("8").Decimal) {
		t.Errorf("pnl = %v, want > 8", pnl)
	}

	pos, ok := l.Position(market, types.OutcomeYes)
	if !ok {
		t.Fatal("position should still be open (partial sell)")
	}
	if pos.State != types.PositionPartiallyClosed {
		t.Errorf("state = %v, want PARTIALLY_CLOSED", pos.State)
	}

	// Selling the remaining investment at the original avg entry price
	// realizes exactly cost_basis = remaining, closing the position flat.
	remaining := pos.Investment
	if _, err := l.Sell(market, types.OutcomeYes, remaining, types.MustPrice("0.50")); err != nil {
		t.Fatalf("closing sell: %v", err)
	}
	if _, ok := l.Position(market, types.OutcomeYes); ok {
		t.Error("position should be gone after full close")
	}
}

func TestSellMoreThanInvestedFails(t *testing.T) {
	t.Parallel()
	l := New()
	_ = l.Buy(market, types.OutcomeYes, types.MustMoney("10"), types.MustPrice("0.50"))
	if _, err := l.Sell(market, types.OutcomeYes, types.MustMoney("1000"), types.MustPrice("0.50")); err == nil {
		t.Error("expected error selling far more than invested")
	}
}

func TestSellWithoutPositionFails(t *testing.T) {
	t.Parallel()
	l := New()
	if _, err := l.Sell(market, types.OutcomeYes, types.MustMoney("10"), types.MustPrice("0.5")); err == nil {
		t.Error("expected error selling into a nonexistent position")
	}
}

func TestResolveWinningAndLosingOutcomes(t *testing.T) {
	t.Parallel()
	l := New()
	_ = l.Buy(market, types.OutcomeYes, types.MustMoney("100"), types.MustPrice("0.40"))
	_ = l.Buy(market, types.OutcomeNo, types.MustMoney("50"), types.MustPrice("0.55"))

	records := l.Resolve(market, types.OutcomeYes)
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}

	var yesPnL, noPnL types.Money
	for _, r := range records {
		switch r.OutcomeId {
		case types.OutcomeYes:
			yesPnL = r.PnL
		case types.OutcomeNo:
			noPnL = r.PnL
		}
	}
	// Yes won: investment*(1/0.4 - 1) = 100*1.5 = 150 profit.
	if !yesPnL.Equal(types.MustMoney("150").Decimal) {
		t.Errorf("yes pnl = %v, want 150", yesPnL)
	}
	// No lost: pnl = -investment = -50.
	if !noPnL.Equal(types.MustMoney("-50").Decimal) {
		t.Errorf("no pnl = %v, want -50", noPnL)
	}

	if _, ok := l.Position(market, types.OutcomeYes); ok {
		t.Error("yes position should be closed after resolution")
	}
	if _, ok := l.Position(market, types.OutcomeNo); ok {
		t.Error("no position should be closed after resolution")
	}
}

func TestResolveIsIdempotent(t *testing.T) {
	t.Parallel()
	l := New()
	_ = l.Buy(market, types.OutcomeYes, types.MustMoney("100"), types.MustPrice("0.40"))

	first := l.Resolve(market, types.OutcomeYes)
	if len(first) != 1 {
		t.Fatalf("expected 1 record on first resolution, got %d", len(first))
	}
	second := l.Resolve(market, types.OutcomeYes)
	if len(second) != 0 {
		t.Errorf("expected no-op on re-delivered resolution, got %d records", len(second))
	}
}

func TestSubscribersReceivePnLRecords(t *testing.T) {
	t.Parallel()
	l := New()
	var got []types.PnLRecord
	l.Subscribe(func(r types.PnLRecord) { got = append(got, r) })

	_ = l.Buy(market, types.OutcomeYes, types.MustMoney("100"), types.MustPrice("0.40"))
	l.Resolve(market, types.OutcomeYes)

	if len(got) != 1 {
		t.Fatalf("expected 1 emitted record, got %d", len(got))
	}
}

func TestMarkDoesNotAffectCostBasis(t *testing.T) {
	t.Parallel()
	l := New()
	_ = l.Buy(market, types.OutcomeYes, types.MustMoney("100"), types.MustPrice("0.40"))
	l.Mark(market, types.OutcomeYes, types.MustPrice("0.70"))

	pos, _ := l.Position(market, types.OutcomeYes)
	if !pos.Investment.Equal(types.MustMoney("100").Decimal) {
		t.Errorf("investment changed after mark: %v", pos.Investment)
	}
	if !pos.CurrentPrice.Equal(types.MustPrice("0.70").Decimal) {
		t.Errorf("current price = %v, want 0.70", pos.CurrentPrice)
	}
}
