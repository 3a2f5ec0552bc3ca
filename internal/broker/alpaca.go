package broker

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/shopspring/decimal"

	"autotrader/internal/domain"
	"autotrader/internal/util"
)

// Compile-time interface checks.
var (
	_ Broker = (*AlpacaBroker)(nil)
	_ Clock  = (*AlpacaBroker)(nil)
)

const (
	// Alpaca allows 200 requests per minute per account.
	alpacaRequestsPerMin = 190
	alpacaBurst          = 5
	readAttempts         = 3
	readBaseDelay        = 250 * time.Millisecond
)

// AlpacaBroker implements the Broker interface using the Alpaca trading API.
// Idempotent reads are retried with backoff; writes are attempted once.
type AlpacaBroker struct {
	client  *alpaca.Client
	limiter *util.RateLimiter
}

// NewAlpacaBroker creates a new AlpacaBroker configured with the given
// credentials and API endpoint.
func NewAlpacaBroker(apiKey, apiSecret, baseURL string) *AlpacaBroker {
	return &AlpacaBroker{
		client: alpaca.NewClient(alpaca.ClientOpts{
			APIKey:    apiKey,
			APISecret: apiSecret,
			BaseURL:   baseURL,
		}),
		limiter: util.NewBurstRateLimiter(alpacaRequestsPerMin, alpacaBurst),
	}
}

// Name returns "alpaca".
func (b *AlpacaBroker) Name() string {
	return "alpaca"
}

// GetAllPositions returns all current positions from the Alpaca account.
func (b *AlpacaBroker) GetAllPositions(ctx context.Context) ([]domain.Position, error) {
	var raw []alpaca.Position
	err := b.read(ctx, func() (err error) {
		raw, err = b.client.GetPositions()
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("GetPositions: %w", err)
	}

	out := make([]domain.Position, 0, len(raw))
	for _, p := range raw {
		side := domain.SideLong
		if strings.EqualFold(p.Side, "short") {
			side = domain.SideShort
		}
		out = append(out, domain.Position{
			Symbol:        p.Symbol,
			Qty:           p.Qty.Abs().InexactFloat64(),
			Side:          side,
			AvgEntryPrice: p.AvgEntryPrice.InexactFloat64(),
			CurrentPrice:  decimalOrZero(p.CurrentPrice),
			MarketValue:   decimalOrZero(p.MarketValue),
			UnrealizedPL:  decimalOrZero(p.UnrealizedPL),
		})
	}
	return out, nil
}

// GetAccount returns the current account information from the Alpaca API.
func (b *AlpacaBroker) GetAccount(ctx context.Context) (*domain.AccountInfo, error) {
	var acct *alpaca.Account
	err := b.read(ctx, func() (err error) {
		acct, err = b.client.GetAccount()
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("GetAccount: %w", err)
	}
	return &domain.AccountInfo{
		Equity:           acct.Equity.InexactFloat64(),
		LastEquity:       acct.LastEquity.InexactFloat64(),
		Cash:             acct.Cash.InexactFloat64(),
		BuyingPower:      acct.BuyingPower.InexactFloat64(),
		MarginMultiplier: acct.Multiplier.InexactFloat64(),
	}, nil
}

// GetAsset returns the tradability flags for ticker.
func (b *AlpacaBroker) GetAsset(ctx context.Context, ticker string) (*domain.Asset, error) {
	var asset *alpaca.Asset
	err := b.read(ctx, func() (err error) {
		asset, err = b.client.GetAsset(ticker)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("GetAsset %s: %w", ticker, err)
	}
	return &domain.Asset{
		Symbol:       asset.Symbol,
		Tradable:     asset.Tradable,
		Shortable:    asset.Shortable,
		Fractionable: asset.Fractionable,
	}, nil
}

// SubmitOrder places an order. Bracket orders carry their take-profit and
// stop-loss legs in the same request.
func (b *AlpacaBroker) SubmitOrder(ctx context.Context, req domain.OrderRequest) (*domain.Order, error) {
	if err := b.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	qty := decimal.NewFromFloat(req.Qty)
	pr := alpaca.PlaceOrderRequest{
		Symbol:        req.Symbol,
		Qty:           &qty,
		Side:          alpaca.Side(req.Side),
		Type:          alpaca.OrderType(req.Type),
		TimeInForce:   alpaca.TimeInForce(req.TimeInForce),
		ClientOrderID: req.ClientOrderID,
		OrderClass:    alpaca.OrderClass(req.Class),
		LimitPrice:    decimalPtr(req.LimitPrice),
		StopPrice:     decimalPtr(req.StopPrice),
	}
	if req.Class.IsMultiLeg() {
		if req.TakeProfit > 0 {
			pr.TakeProfit = &alpaca.TakeProfit{LimitPrice: decimalPtr(req.TakeProfit)}
		}
		if req.StopLoss > 0 {
			pr.StopLoss = &alpaca.StopLoss{StopPrice: decimalPtr(req.StopLoss)}
		}
	}

	o, err := b.client.PlaceOrder(pr)
	if err != nil {
		return nil, fmt.Errorf("PlaceOrder %s: %w", req.ClientOrderID, classify(err))
	}
	out := convertOrder(*o)
	return &out, nil
}

// ClosePosition liquidates the entire position in ticker.
func (b *AlpacaBroker) ClosePosition(ctx context.Context, ticker string) (*domain.Order, error) {
	if err := b.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	o, err := b.client.ClosePosition(ticker, alpaca.ClosePositionRequest{})
	if err != nil {
		return nil, fmt.Errorf("ClosePosition %s: %w", ticker, classify(err))
	}
	out := convertOrder(*o)
	return &out, nil
}

// GetOrders lists orders matching filter.
func (b *AlpacaBroker) GetOrders(ctx context.Context, filter domain.OrderFilter) ([]domain.Order, error) {
	status := filter.Status
	if status == "" {
		status = "open"
	}
	req := alpaca.GetOrdersRequest{
		Status:  status,
		Limit:   filter.Limit,
		Nested:  filter.Nested,
		Symbols: filter.Symbols,
	}

	var raw []alpaca.Order
	err := b.read(ctx, func() (err error) {
		raw, err = b.client.GetOrders(req)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("GetOrders: %w", err)
	}
	out := make([]domain.Order, 0, len(raw))
	for _, o := range raw {
		out = append(out, convertOrder(o))
	}
	return out, nil
}

// CancelOrder requests cancellation of an open order.
func (b *AlpacaBroker) CancelOrder(ctx context.Context, orderID string) error {
	if err := b.limiter.Wait(ctx); err != nil {
		return err
	}
	if err := b.client.CancelOrder(orderID); err != nil {
		return fmt.Errorf("CancelOrder %s: %w", orderID, classify(err))
	}
	return nil
}

// GetClock returns the market session as reported by Alpaca.
func (b *AlpacaBroker) GetClock(ctx context.Context) (*domain.MarketClock, error) {
	var clock *alpaca.Clock
	err := b.read(ctx, func() (err error) {
		clock, err = b.client.GetClock()
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("GetClock: %w", err)
	}
	return &domain.MarketClock{
		Timestamp: clock.Timestamp,
		IsOpen:    clock.IsOpen,
		NextOpen:  clock.NextOpen,
		NextClose: clock.NextClose,
	}, nil
}

// read rate-limits and retries an idempotent call. Non-transient errors are
// returned on the first attempt.
func (b *AlpacaBroker) read(ctx context.Context, fn func() error) error {
	return util.Retry(ctx, readAttempts, readBaseDelay, func() error {
		if err := b.limiter.Wait(ctx); err != nil {
			return util.Permanent(err)
		}
		err := classify(fn())
		if err != nil && !IsTransient(err) {
			return util.Permanent(err)
		}
		return err
	})
}

// classify maps Alpaca API errors onto the package sentinels.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *alpaca.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == http.StatusTooManyRequests || apiErr.StatusCode >= 500:
			return fmt.Errorf("%w: %v", ErrTransient, err)
		case apiErr.StatusCode == http.StatusNotFound:
			return fmt.Errorf("%w: %v", ErrNotFound, err)
		case apiErr.StatusCode == http.StatusForbidden || apiErr.StatusCode == http.StatusUnprocessableEntity:
			return fmt.Errorf("%w: %v", ErrRejected, err)
		}
	}
	return err
}

func convertOrder(o alpaca.Order) domain.Order {
	out := domain.Order{
		ID:             o.ID,
		ClientOrderID:  o.ClientOrderID,
		Symbol:         o.Symbol,
		Side:           domain.OrderSide(o.Side),
		Type:           domain.OrderType(o.Type),
		Class:          domain.OrderClass(o.OrderClass),
		Status:         domain.OrderStatus(o.Status),
		Qty:            decimalOrZero(o.Qty),
		FilledQty:      o.FilledQty.InexactFloat64(),
		FilledAvgPrice: decimalOrZero(o.FilledAvgPrice),
		LimitPrice:     decimalOrZero(o.LimitPrice),
		StopPrice:      decimalOrZero(o.StopPrice),
		CreatedAt:      o.CreatedAt,
		UpdatedAt:      o.UpdatedAt,
	}
	if out.Class == "" {
		out.Class = domain.OrderClassSimple
	}
	for _, leg := range o.Legs {
		out.Legs = append(out.Legs, convertOrder(leg))
	}
	return out
}

func decimalOrZero(d *decimal.Decimal) float64 {
	if d == nil {
		return 0
	}
	return d.InexactFloat64()
}

func decimalPtr(v float64) *decimal.Decimal {
	if v == 0 {
		return nil
	}
	d := decimal.NewFromFloat(v)
	return &d
}
