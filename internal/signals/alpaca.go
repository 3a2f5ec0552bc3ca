package signals

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"

	"autotrader/internal/domain"
)

var _ BarSource = (*AlpacaBars)(nil)

// AlpacaBars is a BarSource backed by the Alpaca market-data API.
type AlpacaBars struct {
	client        *marketdata.Client
	feed          string
	intradayFrame marketdata.TimeFrame
}

// NewAlpacaBars creates an AlpacaBars client. feed selects the data feed
// ("iex" or "sip"); intraday bars are five-minute bars.
func NewAlpacaBars(apiKey, apiSecret, dataURL, feed string) *AlpacaBars {
	opts := marketdata.ClientOpts{
		APIKey:    apiKey,
		APISecret: apiSecret,
	}
	if dataURL != "" {
		opts.BaseURL = dataURL
	}
	return &AlpacaBars{
		client:        marketdata.NewClient(opts),
		feed:          feed,
		intradayFrame: marketdata.NewTimeFrame(5, marketdata.Min),
	}
}

// DailyBars implements BarSource.
func (a *AlpacaBars) DailyBars(ctx context.Context, symbol string, start, end time.Time) ([]domain.Bar, error) {
	return a.getBars(ctx, symbol, marketdata.OneDay, start, end)
}

// IntradayBars implements BarSource.
func (a *AlpacaBars) IntradayBars(ctx context.Context, symbol string, start, end time.Time) ([]domain.Bar, error) {
	return a.getBars(ctx, symbol, a.intradayFrame, start, end)
}

func (a *AlpacaBars) getBars(ctx context.Context, symbol string, tf marketdata.TimeFrame, start, end time.Time) ([]domain.Bar, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	alpacaBars, err := a.client.GetBars(symbol, marketdata.GetBarsRequest{
		TimeFrame: tf,
		Start:     start,
		End:       end,
		Feed:      a.feed,
	})
	if err != nil {
		return nil, fmt.Errorf("GetBars %s: %w", symbol, err)
	}

	bars := make([]domain.Bar, 0, len(alpacaBars))
	for _, ab := range alpacaBars {
		bars = append(bars, domain.Bar{
			Symbol:     strings.ToUpper(symbol),
			Timestamp:  ab.Timestamp,
			Open:       ab.Open,
			High:       ab.High,
			Low:        ab.Low,
			Close:      ab.Close,
			Volume:     int64(ab.Volume),
			TradeCount: int64(ab.TradeCount),
			VWAP:       ab.VWAP,
		})
	}
	return bars, nil
}
