package indicators

import (
	"math"

	"autotrader/internal/domain"
)

// Pattern is a detected candlestick formation on the last bar(s).
type Pattern struct {
	Name       string
	Confidence float64 // 0..1
	Bullish    bool
}

// DetectPattern looks for a reversal formation on the final bar. It returns
// ok=false when none is found or the last bar has no range.
func DetectPattern(bars []domain.Bar) (Pattern, bool) {
	if len(bars) == 0 {
		return Pattern{}, false
	}
	last := bars[len(bars)-1]
	rng := last.High - last.Low
	if rng <= 0 {
		return Pattern{}, false
	}
	body := math.Abs(last.Close - last.Open)

	if len(bars) >= 2 {
		prev := bars[len(bars)-2]
		prevBody := math.Abs(prev.Close - prev.Open)
		if prevBody > 0 && body > prevBody {
			conf := math.Min(1, 0.5+0.5*(body-prevBody)/body)
			switch {
			case prev.Close < prev.Open && last.Close > last.Open &&
				last.Open <= prev.Close && last.Close >= prev.Open:
				return Pattern{Name: "bullish_engulfing", Confidence: conf, Bullish: true}, true
			case prev.Close > prev.Open && last.Close < last.Open &&
				last.Open >= prev.Close && last.Close <= prev.Open:
				return Pattern{Name: "bearish_engulfing", Confidence: conf}, true
			}
		}
	}

	upper := last.High - math.Max(last.Open, last.Close)
	lower := math.Min(last.Open, last.Close) - last.Low
	if body <= rng*0.35 {
		switch {
		case lower >= 2*body && upper <= rng*0.15:
			return Pattern{Name: "hammer", Confidence: math.Min(1, lower/rng), Bullish: true}, true
		case upper >= 2*body && lower <= rng*0.15:
			return Pattern{Name: "shooting_star", Confidence: math.Min(1, upper/rng)}, true
		}
	}
	return Pattern{}, false
}
