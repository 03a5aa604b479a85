package generators

import (
	"testing"
	"time"

	"predictioncore/internal/config"
	"predictioncore/pkg/types"
)

func testSentimentConfig() config.SentimentConfig {
	return config.SentimentConfig{
		MinScore:        0.2,
		DecayHalfLife:   10 * time.Minute,
		MaxSignalAgeSec: 3600,
	}
}

func TestSentimentPositiveScoreProducesLongLeg(t *testing.T) {
	t.Parallel()
	g := NewSentiment(testSentimentConfig())
	market := types.MarketIdFromBytes([]byte("m1"))
	now := time.Now()

	score := SentimentScore{MarketId: market, Score: 0.8, Ts: now}
	sigs := g.Generate(now, types.MustPrice("0.40"), score)
	if len(sigs) != 1 {
		t.Fatalf("expected 1 signal, got %d", len(sigs))
	}
	if sigs[0].Direction != types.Long {
		t.Errorf("expected Long for positive sentiment, got %s", sigs[0].Direction)
	}
	if err := sigs[0].Validate(); err != nil {
		t.Errorf("signal failed validation: %v", err)
	}
}

func TestSentimentNegativeScoreProducesShortLeg(t *testing.T) {
	t.Parallel()
	g := NewSentiment(testSentimentConfig())
	market := types.MarketIdFromBytes([]byte("m1"))
	now := time.Now()

	score := SentimentScore{MarketId: market, Score: -0.8, Ts: now}
	sigs := g.Generate(now, types.MustPrice("0.60"), score)
	if len(sigs) != 1 {
		t.Fatalf("expected 1 signal, got %d", len(sigs))
	}
	if sigs[0].Direction != types.Short {
		t.Errorf("expected Short for negative sentiment, got %s", sigs[0].Direction)
	}
	if err := sigs[0].Validate(); err != nil {
		t.Errorf("signal failed validation: %v", err)
	}
}

func TestSentimentDecaysBelowFloorOverTime(t *testing.T) {
	t.Parallel()
	g := NewSentiment(testSentimentConfig())
	market := types.MarketIdFromBytes([]byte("m1"))
	now := time.Now()

	// Score starts at 0.3, just above the 0.2 floor; after 3 half-lives
	// (30 min) it decays to 0.3/8 = 0.0375, well below the floor.
	score := SentimentScore{MarketId: market, Score: 0.3, Ts: now.Add(-30 * time.Minute)}
	sigs := g.Generate(now, types.MustPrice("0.40"), score)
	if sigs != nil {
		t.Errorf("expected nil once decayed below floor, got %+v", sigs)
	}
}

func TestSentimentStaleScoreIgnored(t *testing.T) {
	t.Parallel()
	g := NewSentiment(testSentimentConfig())
	market := types.MarketIdFromBytes([]byte("m1"))
	now := time.Now()

	score := SentimentScore{MarketId: market, Score: 0.9, Ts: now.Add(-2 * time.Hour)}
	sigs := g.Generate(now, types.MustPrice("0.40"), score)
	if sigs != nil {
		t.Errorf("expected nil for stale score, got %+v", sigs)
	}
}

func TestSentimentInvalidMidIgnored(t *testing.T) {
	t.Parallel()
	g := NewSentiment(testSentimentConfig())
	market := types.MarketIdFromBytes([]byte("m1"))
	now := time.Now()

	score := SentimentScore{MarketId: market, Score: 0.9, Ts: now}
	if sigs := g.Generate(now, types.MustPrice("0"), score); sigs != nil {
		t.Errorf("expected nil for mid=0, got %+v", sigs)
	}
	if sigs := g.Generate(now, types.MustPrice("1"), score); sigs != nil {
		t.Errorf("expected nil for mid=1, got %+v", sigs)
	}
}
