// Package indicators computes technical indicators over daily or intraday
// bars. Every function is pure: it reads the trailing window of the slice and
// returns ErrInsufficientData when the window is not full.
package indicators

import (
	"errors"
	"fmt"
	"math"

	"autotrader/internal/domain"
)

// ErrInsufficientData is returned when there are fewer bars than a period
// requires.
var ErrInsufficientData = errors.New("not enough bars")

func needBars(bars []domain.Bar, n int) error {
	if n <= 0 {
		return fmt.Errorf("period must be positive, got %d", n)
	}
	if len(bars) < n {
		return fmt.Errorf("%w: need %d, got %d", ErrInsufficientData, n, len(bars))
	}
	return nil
}

// Closes extracts closing prices.
func Closes(bars []domain.Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Close
	}
	return out
}

// SMA is the simple moving average of the last period closes.
func SMA(bars []domain.Bar, period int) (float64, error) {
	if err := needBars(bars, period); err != nil {
		return 0, err
	}
	sum := 0.0
	for _, b := range bars[len(bars)-period:] {
		sum += b.Close
	}
	return sum / float64(period), nil
}

// EMA is the exponential moving average of closes, seeded with the SMA of the
// first period bars.
func EMA(bars []domain.Bar, period int) (float64, error) {
	if err := needBars(bars, period); err != nil {
		return 0, err
	}
	k := 2.0 / float64(period+1)
	ema, _ := SMA(bars[:period], period)
	for _, b := range bars[period:] {
		ema = b.Close*k + ema*(1-k)
	}
	return ema, nil
}

// StdDev is the population standard deviation of the last period closes.
func StdDev(bars []domain.Bar, period int) (float64, error) {
	mean, err := SMA(bars, period)
	if err != nil {
		return 0, err
	}
	var ss float64
	for _, b := range bars[len(bars)-period:] {
		d := b.Close - mean
		ss += d * d
	}
	return math.Sqrt(ss / float64(period)), nil
}

// ZScore is how many standard deviations the last close sits from the mean
// of the last period closes. A flat window yields 0.
func ZScore(bars []domain.Bar, period int) (float64, error) {
	mean, err := SMA(bars, period)
	if err != nil {
		return 0, err
	}
	sd, _ := StdDev(bars, period)
	if sd == 0 {
		return 0, nil
	}
	return (bars[len(bars)-1].Close - mean) / sd, nil
}

// Bands is a Bollinger band triple.
type Bands struct {
	Upper, Middle, Lower float64
}

// Width is (Upper-Lower)/Middle.
func (b Bands) Width() float64 {
	if b.Middle == 0 {
		return 0
	}
	return (b.Upper - b.Lower) / b.Middle
}

// Bollinger returns bands k standard deviations around the period SMA.
func Bollinger(bars []domain.Bar, period int, k float64) (Bands, error) {
	mid, err := SMA(bars, period)
	if err != nil {
		return Bands{}, err
	}
	sd, _ := StdDev(bars, period)
	return Bands{Upper: mid + k*sd, Middle: mid, Lower: mid - k*sd}, nil
}

// AverageVolume is the mean volume of the last period bars.
func AverageVolume(bars []domain.Bar, period int) (float64, error) {
	if err := needBars(bars, period); err != nil {
		return 0, err
	}
	var sum float64
	for _, b := range bars[len(bars)-period:] {
		sum += float64(b.Volume)
	}
	return sum / float64(period), nil
}

// Range returns the highest high and lowest low over bars.
func Range(bars []domain.Bar) (high, low float64) {
	if len(bars) == 0 {
		return 0, 0
	}
	high, low = bars[0].High, bars[0].Low
	for _, b := range bars[1:] {
		high = math.Max(high, b.High)
		low = math.Min(low, b.Low)
	}
	return high, low
}
