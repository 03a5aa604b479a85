package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"predictioncore/internal/calibration"
	"predictioncore/internal/store"
	"predictioncore/pkg/types"
)

// knownStrategies enumerates every generator strategy. No handler reads it;
// the metrics endpoint reports one strategy per request.
var knownStrategies = []types.StrategyId{
	types.StrategyMarketMaking,
	types.StrategyPairCost,
	types.StrategySpreadArb,
	types.StrategySentiment,
}

// portfolioSummary is the shape spec.md §6 names verbatim: "portfolio
// summary {total_value, num_positions, total_pnl, exposure_by_category,
// risk_level}".
type portfolioSummary struct {
	TotalValue         string            `json:"total_value"`
	NumPositions       int               `json:"num_positions"`
	TotalPnL           string            `json:"total_pnl"`
	ExposureByCategory map[string]string `json:"exposure_by_category"`
	RiskLevel          types.RiskLevel   `json:"risk_level"`
}

func (s *Server) handlePortfolio(c *gin.Context) {
	positions := s.ledger.Positions()
	metrics := s.ledger.Metrics()
	snapshot := s.checker.Monitor(time.Now())

	totalValue := types.ZeroMoney()
	exposure := make(map[string]types.Money)
	for _, p := range positions {
		totalValue = types.Money{Decimal: totalValue.Add(p.CurrentValue().Decimal)}
		theme := s.theme(p.MarketId)
		exposure[theme] = types.Money{Decimal: exposure[theme].Add(p.CurrentValue().Decimal)}
	}

	exposureOut := make(map[string]string, len(exposure))
	for theme, v := range exposure {
		exposureOut[theme] = v.Decimal.String()
	}

	c.JSON(http.StatusOK, portfolioSummary{
		TotalValue:         totalValue.Decimal.String(),
		NumPositions:       len(positions),
		TotalPnL:           metrics.RealizedPnL.Decimal.String(),
		ExposureByCategory: exposureOut,
		RiskLevel:          snapshot.RiskLevel,
	})
}

// strategyMetrics mirrors calibration.Metrics with JSON tags fit for
// external reporters (spec.md §6: "per-strategy metrics").
type strategyMetrics struct {
	StrategyId types.StrategyId     `json:"strategy_id"`
	Count      int                  `json:"count"`
	Brier      float64              `json:"brier"`
	LogLoss    float64              `json:"log_loss"`
	ECE        float64              `json:"ece"`
	Buckets    []calibration.Bucket `json:"buckets"`
}

func (s *Server) handleStrategyMetrics(c *gin.Context) {
	strategyID := types.StrategyId(c.Param("id"))
	m := s.cal.Compute(strategyID)
	c.JSON(http.StatusOK, strategyMetrics{
		StrategyId: m.StrategyId,
		Count:      m.Count,
		Brier:      m.Brier,
		LogLoss:    m.LogLoss,
		ECE:        m.ECE,
		Buckets:    m.Buckets,
	})
}

// driftAlertView is calibration.DriftAlert plus the timestamp it was
// recorded under, flattened for JSON.
type driftAlertView struct {
	StrategyId types.StrategyId          `json:"strategy_id"`
	Kind       calibration.DriftKind     `json:"kind"`
	Severity   calibration.DriftSeverity `json:"severity"`
	Detail     string                    `json:"detail"`
	Ts         time.Time                 `json:"ts"`
}

func (s *Server) handleDriftAlerts(c *gin.Context) {
	records := s.drift.Active(store.Period{})
	out := make([]driftAlertView, 0, len(records))
	for _, r := range records {
		out = append(out, driftAlertView{
			StrategyId: r.Alert.StrategyId,
			Kind:       r.Alert.Kind,
			Severity:   r.Alert.Severity,
			Detail:     r.Alert.Detail,
			Ts:         r.Ts,
		})
	}
	c.JSON(http.StatusOK, gin.H{"alerts": out})
}
