package indicators

import (
	"math"

	"autotrader/internal/domain"
)

// RSI is Wilder's relative strength index over closes. It needs period+1
// bars. A window with no losses returns 100.
func RSI(bars []domain.Bar, period int) (float64, error) {
	if err := needBars(bars, period+1); err != nil {
		return 0, err
	}

	var gain, loss float64
	for i := 1; i <= period; i++ {
		ch := bars[i].Close - bars[i-1].Close
		if ch > 0 {
			gain += ch
		} else {
			loss -= ch
		}
	}
	gain /= float64(period)
	loss /= float64(period)

	for i := period + 1; i < len(bars); i++ {
		ch := bars[i].Close - bars[i-1].Close
		g, l := 0.0, 0.0
		if ch > 0 {
			g = ch
		} else {
			l = -ch
		}
		gain = (gain*float64(period-1) + g) / float64(period)
		loss = (loss*float64(period-1) + l) / float64(period)
	}

	if loss == 0 {
		if gain == 0 {
			return 50, nil
		}
		return 100, nil
	}
	rs := gain / loss
	return 100 - 100/(1+rs), nil
}

// trueRange calculates the True Range for a bar given the previous bar.
func trueRange(current, previous domain.Bar) float64 {
	highLow := current.High - current.Low
	highClose := math.Abs(current.High - previous.Close)
	lowClose := math.Abs(current.Low - previous.Close)
	return math.Max(highLow, math.Max(highClose, lowClose))
}

// ATR calculates the Average True Range for the given period using Wilder's
// smoothing. It needs period+1 bars.
func ATR(bars []domain.Bar, period int) (float64, error) {
	if err := needBars(bars, period+1); err != nil {
		return 0, err
	}

	sum := 0.0
	for i := 1; i <= period; i++ {
		sum += trueRange(bars[i], bars[i-1])
	}
	atr := sum / float64(period)

	for i := period + 1; i < len(bars); i++ {
		atr = (atr*float64(period-1) + trueRange(bars[i], bars[i-1])) / float64(period)
	}
	return atr, nil
}

// ADX implements Wilder's Average Directional Index (trend strength). It
// needs 2*period+1 bars: period to seed the smoothed TR/DM sums and period
// DX values to seed the ADX itself.
func ADX(bars []domain.Bar, period int) (float64, error) {
	if err := needBars(bars, 2*period+1); err != nil {
		return 0, err
	}
	p := float64(period)

	var tr, pdm, mdm float64
	var dxSum, adx float64
	dxCount := 0

	for i := 1; i < len(bars); i++ {
		cur, prev := bars[i], bars[i-1]
		up := cur.High - prev.High
		down := prev.Low - cur.Low
		var pd, md float64
		if up > down && up > 0 {
			pd = up
		}
		if down > up && down > 0 {
			md = down
		}
		t := trueRange(cur, prev)

		if i <= period {
			tr += t
			pdm += pd
			mdm += md
			if i < period {
				continue
			}
		} else {
			tr = tr - tr/p + t
			pdm = pdm - pdm/p + pd
			mdm = mdm - mdm/p + md
		}

		if tr == 0 {
			continue
		}
		pdi := 100 * pdm / tr
		mdi := 100 * mdm / tr
		if pdi+mdi == 0 {
			continue
		}
		dx := 100 * math.Abs(pdi-mdi) / (pdi + mdi)

		switch {
		case dxCount < period:
			dxSum += dx
			dxCount++
			if dxCount == period {
				adx = dxSum / p
			}
		default:
			adx = (adx*(p-1) + dx) / p
		}
	}

	if dxCount < period {
		return 0, ErrInsufficientData
	}
	return adx, nil
}
