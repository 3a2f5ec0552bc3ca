package strategy

import (
	"fmt"

	"autotrader/internal/domain"
)

// CheckEntryPreconditions is the entry filter shared by every strategy. It
// returns a rejection reason and false when the market is not open, the
// ticker is cooling down, or a position in it is already held.
func CheckEntryPreconditions(ticker string, mctx domain.MarketContext) (string, bool) {
	if !mctx.IsMarketOpen() {
		return fmt.Sprintf("market not open (status %s)", mctx.MarketStatus), false
	}
	if mctx.InCooldown(ticker) {
		return fmt.Sprintf("%s is in cooldown", ticker), false
	}
	if mctx.HasPosition(ticker) {
		return fmt.Sprintf("position already held in %s", ticker), false
	}
	return "", true
}

// LastPrice picks the freshest price available: the technical signal's
// price, then the latest intraday or daily close.
func LastPrice(tech *domain.TechnicalSignal) float64 {
	if tech == nil {
		return 0
	}
	if tech.Price > 0 {
		return tech.Price
	}
	if n := len(tech.Intraday); n > 0 {
		return tech.Intraday[n-1].Close
	}
	if n := len(tech.Daily); n > 0 {
		return tech.Daily[n-1].Close
	}
	return 0
}

// Bars returns the daily series when it has at least n bars, else the
// intraday series when that does, else nil.
func Bars(tech *domain.TechnicalSignal, n int) []domain.Bar {
	if tech == nil {
		return nil
	}
	if len(tech.Daily) >= n {
		return tech.Daily
	}
	if len(tech.Intraday) >= n {
		return tech.Intraday
	}
	return nil
}
