package generators

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"predictioncore/internal/config"
	"predictioncore/pkg/types"
)

func testPairCostConfig() config.PairCostConfig {
	return config.PairCostConfig{MinSafetyMargin: 0.02, MaxImbalanceRatio: 3.0}
}

func TestPairCostGeneratesBothLegsWhenProfitable(t *testing.T) {
	t.Parallel()
	g := NewPairCostArb(testPairCostConfig())
	market := types.MarketIdFromBytes([]byte("m1"))

	// pair_cost = 0.45+0.45 = 0.90, guaranteed margin = 0.10 > 0.02 margin.
	sigs := g.Generate(time.Now(), market, types.MustPrice("0.45"), types.MustPrice("0.45"), types.PairCostState{})
	if len(sigs) != 2 {
		t.Fatalf("expected 2 legs, got %d", len(sigs))
	}
	for _, s := range sigs {
		if err := s.Validate(); err != nil {
			t.Errorf("signal failed validation: %v", err)
		}
		if !s.ExpectedValue.Equal(decimal.NewFromFloat(0.10)) {
			t.Errorf("expected_value = %v, want 0.10", s.ExpectedValue)
		}
	}
}

func TestPairCostNoOpportunityBelowMargin(t *testing.T) {
	t.Parallel()
	g := NewPairCostArb(testPairCostConfig())
	market := types.MarketIdFromBytes([]byte("m1"))

	// pair_cost = 0.50+0.49 = 0.99, margin 0.01 < 0.02 required.
	sigs := g.Generate(time.Now(), market, types.MustPrice("0.50"), types.MustPrice("0.49"), types.PairCostState{})
	if sigs != nil {
		t.Errorf("expected nil signals below safety margin, got %+v", sigs)
	}
}

func TestPairCostSuppressedWhenAlreadyImbalanced(t *testing.T) {
	t.Parallel()
	g := NewPairCostArb(testPairCostConfig())
	market := types.MarketIdFromBytes([]byte("m1"))

	state := types.PairCostState{
		YesQty: decimal.NewFromInt(1000),
		NoQty:  decimal.NewFromInt(100), // ratio 10 > max 3
	}
	sigs := g.Generate(time.Now(), market, types.MustPrice("0.45"), types.MustPrice("0.45"), state)
	if sigs != nil {
		t.Errorf("expected nil signals when already over imbalance ratio, got %+v", sigs)
	}
}
