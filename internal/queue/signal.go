package queue

import (
	"strings"
	"time"

	"autotrader/internal/domain"
)

// basePriority is the priority of a recommendation with no risk/reward edge.
const basePriority = 100.0

// PriorityFromRiskReward maps a risk/reward ratio onto a queue priority:
// lower is more urgent. Ratios above 10 yield negative priorities; the value
// is deliberately left unclamped.
func PriorityFromRiskReward(rr float64) float64 {
	return basePriority - rr*10
}

// FromRecommendation converts an upstream recommendation into a queued
// signal. ExpiresAt is left zero so the queue applies its default TTL.
// The strategy falls back to defaultStrategy when the recommendation does
// not name one.
func FromRecommendation(rec domain.Recommendation, source, defaultStrategy string, now time.Time) (domain.PendingSignal, bool) {
	ticker := strings.ToUpper(strings.TrimSpace(rec.Ticker))
	if ticker == "" {
		return domain.PendingSignal{}, false
	}
	side, ok := rec.Side()
	if !ok {
		return domain.PendingSignal{}, false
	}
	rec.Ticker = ticker

	strategyName := rec.Strategy
	if strategyName == "" {
		strategyName = defaultStrategy
	}
	confidence := rec.Confidence
	if confidence <= 0 {
		confidence = 0.5
	}

	return domain.PendingSignal{
		Ticker:         ticker,
		Action:         side,
		Confidence:     confidence,
		Priority:       PriorityFromRiskReward(rec.RiskRewardRatio),
		Source:         source,
		StrategyName:   strategyName,
		CreatedAt:      now,
		Recommendation: &rec,
	}, true
}
