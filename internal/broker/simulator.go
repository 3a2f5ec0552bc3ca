package broker

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"autotrader/internal/domain"
)

// Compile-time interface checks.
var (
	_ Broker = (*SimulatorBroker)(nil)
	_ Clock  = (*SimulatorBroker)(nil)
)

// Operation names accepted by FailNext and Calls.
const (
	OpGetAllPositions = "GetAllPositions"
	OpGetAccount      = "GetAccount"
	OpGetAsset        = "GetAsset"
	OpSubmitOrder     = "SubmitOrder"
	OpClosePosition   = "ClosePosition"
	OpGetOrders       = "GetOrders"
	OpCancelOrder     = "CancelOrder"
	OpGetClock        = "GetClock"
)

// SimulatorBroker implements the Broker interface for paper trading and
// tests. It tracks positions and orders in memory without making external API
// calls. Entry orders fill immediately at their limit price when FillEntries
// is set; bracket entries then leave their exit legs resting as open orders.
type SimulatorBroker struct {
	mu sync.Mutex

	positions  map[string]*domain.Position
	orders     map[string]*domain.Order
	orderSeq   []string
	assets     map[string]domain.Asset
	account    domain.AccountInfo
	marketOpen bool

	fillEntries  bool
	stickyOrders bool
	failures     map[string][]error
	calls        map[string]int
	now          func() time.Time
}

// NewSimulatorBroker creates a SimulatorBroker with empty position and order
// maps, a $100k account and an open market.
func NewSimulatorBroker() *SimulatorBroker {
	return &SimulatorBroker{
		positions:  make(map[string]*domain.Position),
		orders:     make(map[string]*domain.Order),
		assets:     make(map[string]domain.Asset),
		account:    domain.AccountInfo{Equity: 100000, LastEquity: 100000, Cash: 100000, BuyingPower: 200000, MarginMultiplier: 2},
		marketOpen: true,
		failures:   make(map[string][]error),
		calls:      make(map[string]int),
		now:        time.Now,
	}
}

// Name returns "simulator".
func (b *SimulatorBroker) Name() string {
	return "simulator"
}

// ---------------------------------------------------------------------------
// Test and paper-trading controls
// ---------------------------------------------------------------------------

// SetClock overrides the time source used to stamp orders.
func (b *SimulatorBroker) SetClock(now func() time.Time) {
	b.mu.Lock()
	b.now = now
	b.mu.Unlock()
}

// SetFillEntries controls whether submitted entries fill immediately.
func (b *SimulatorBroker) SetFillEntries(fill bool) {
	b.mu.Lock()
	b.fillEntries = fill
	b.mu.Unlock()
}

// SetStickyOrders makes CancelOrder succeed without actually cancelling,
// modelling orders that never clear.
func (b *SimulatorBroker) SetStickyOrders(sticky bool) {
	b.mu.Lock()
	b.stickyOrders = sticky
	b.mu.Unlock()
}

// SetMarketOpen sets the session state reported by GetClock.
func (b *SimulatorBroker) SetMarketOpen(open bool) {
	b.mu.Lock()
	b.marketOpen = open
	b.mu.Unlock()
}

// SetAccount replaces the account snapshot.
func (b *SimulatorBroker) SetAccount(a domain.AccountInfo) {
	b.mu.Lock()
	b.account = a
	b.mu.Unlock()
}

// SetAsset registers tradability flags for a ticker. Unregistered tickers are
// tradable and shortable.
func (b *SimulatorBroker) SetAsset(a domain.Asset) {
	b.mu.Lock()
	b.assets[a.Symbol] = a
	b.mu.Unlock()
}

// SetPosition inserts or replaces a position.
func (b *SimulatorBroker) SetPosition(p domain.Position) {
	b.mu.Lock()
	cp := p
	b.positions[p.Symbol] = &cp
	b.mu.Unlock()
}

// RemovePosition drops a position as if it were closed outside the engine.
func (b *SimulatorBroker) RemovePosition(ticker string) {
	b.mu.Lock()
	delete(b.positions, ticker)
	b.mu.Unlock()
}

// SetPrice marks a position to a new price.
func (b *SimulatorBroker) SetPrice(ticker string, price float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.positions[ticker]
	if !ok {
		return
	}
	p.CurrentPrice = price
	p.MarketValue = price * p.Qty
	if p.Side == domain.SideShort {
		p.UnrealizedPL = (p.AvgEntryPrice - price) * p.Qty
	} else {
		p.UnrealizedPL = (price - p.AvgEntryPrice) * p.Qty
	}
}

// AddOpenOrder inserts a resting order directly.
func (b *SimulatorBroker) AddOpenOrder(o domain.Order) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	if o.Status == "" {
		o.Status = domain.OrderStatusNew
	}
	b.storeOrder(&o)
}

// SetOrderStatus overrides the status of a stored order, e.g. to expire a
// resting entry at the close.
func (b *SimulatorBroker) SetOrderStatus(orderID string, status domain.OrderStatus) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if o, ok := b.orders[orderID]; ok {
		o.Status = status
		o.UpdatedAt = b.now()
	}
}

// FailNext queues err to be returned by the next call to op.
func (b *SimulatorBroker) FailNext(op string, err error) {
	b.mu.Lock()
	b.failures[op] = append(b.failures[op], err)
	b.mu.Unlock()
}

// Calls returns how many times op has been invoked.
func (b *SimulatorBroker) Calls(op string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[op]
}

// Orders returns every order ever stored, in submission order.
func (b *SimulatorBroker) Orders() []domain.Order {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]domain.Order, 0, len(b.orderSeq))
	for _, id := range b.orderSeq {
		out = append(out, *b.orders[id])
	}
	return out
}

// begin records a call and pops an injected failure. Must be called with mu
// held.
func (b *SimulatorBroker) begin(op string) error {
	b.calls[op]++
	if q := b.failures[op]; len(q) > 0 {
		err := q[0]
		b.failures[op] = q[1:]
		return err
	}
	return nil
}

func (b *SimulatorBroker) storeOrder(o *domain.Order) {
	if _, exists := b.orders[o.ID]; !exists {
		b.orderSeq = append(b.orderSeq, o.ID)
	}
	b.orders[o.ID] = o
}

// ---------------------------------------------------------------------------
// Broker implementation
// ---------------------------------------------------------------------------

// GetAllPositions returns all simulated positions sorted by symbol.
func (b *SimulatorBroker) GetAllPositions(_ context.Context) ([]domain.Position, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.begin(OpGetAllPositions); err != nil {
		return nil, err
	}
	positions := make([]domain.Position, 0, len(b.positions))
	for _, p := range b.positions {
		positions = append(positions, *p)
	}
	sort.Slice(positions, func(i, j int) bool { return positions[i].Symbol < positions[j].Symbol })
	return positions, nil
}

// GetAccount returns the simulated account.
func (b *SimulatorBroker) GetAccount(_ context.Context) (*domain.AccountInfo, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.begin(OpGetAccount); err != nil {
		return nil, err
	}
	a := b.account
	return &a, nil
}

// GetAsset returns the registered asset, or a tradable/shortable default.
func (b *SimulatorBroker) GetAsset(_ context.Context, ticker string) (*domain.Asset, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.begin(OpGetAsset); err != nil {
		return nil, err
	}
	if a, ok := b.assets[ticker]; ok {
		return &a, nil
	}
	return &domain.Asset{Symbol: ticker, Tradable: true, Shortable: true}, nil
}

// SubmitOrder records the order and, with FillEntries set, fills it.
func (b *SimulatorBroker) SubmitOrder(_ context.Context, req domain.OrderRequest) (*domain.Order, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.begin(OpSubmitOrder); err != nil {
		return nil, err
	}
	if req.Qty <= 0 {
		return nil, fmt.Errorf("%w: qty must be positive", ErrRejected)
	}
	for _, o := range b.orders {
		if req.ClientOrderID != "" && o.ClientOrderID == req.ClientOrderID {
			return nil, fmt.Errorf("%w: duplicate client_order_id %s", ErrRejected, req.ClientOrderID)
		}
	}

	now := b.now()
	class := req.Class
	if class == "" {
		class = domain.OrderClassSimple
	}
	o := &domain.Order{
		ID:            uuid.NewString(),
		ClientOrderID: req.ClientOrderID,
		Symbol:        req.Symbol,
		Side:          req.Side,
		Type:          req.Type,
		Class:         class,
		Status:        domain.OrderStatusNew,
		Qty:           req.Qty,
		LimitPrice:    req.LimitPrice,
		StopPrice:     req.StopPrice,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if class.IsMultiLeg() {
		exitSide := domain.OrderSideSell
		if req.Side == domain.OrderSideSell {
			exitSide = domain.OrderSideBuy
		}
		if req.TakeProfit > 0 {
			o.Legs = append(o.Legs, domain.Order{
				ID: uuid.NewString(), Symbol: req.Symbol, Side: exitSide, Type: domain.OrderTypeLimit,
				Class: class, Status: domain.OrderStatusHeld, Qty: req.Qty, LimitPrice: req.TakeProfit,
				CreatedAt: now, UpdatedAt: now,
			})
		}
		if req.StopLoss > 0 {
			o.Legs = append(o.Legs, domain.Order{
				ID: uuid.NewString(), Symbol: req.Symbol, Side: exitSide, Type: domain.OrderTypeStop,
				Class: class, Status: domain.OrderStatusHeld, Qty: req.Qty, StopPrice: req.StopLoss,
				CreatedAt: now, UpdatedAt: now,
			})
		}
	}

	if b.fillEntries {
		price := req.LimitPrice
		if price == 0 {
			if p, ok := b.positions[req.Symbol]; ok {
				price = p.CurrentPrice
			}
		}
		o.Status = domain.OrderStatusFilled
		o.FilledQty = req.Qty
		o.FilledAvgPrice = price
		b.applyFill(req.Symbol, req.Side, req.Qty, price)
		for i := range o.Legs {
			o.Legs[i].Status = domain.OrderStatusNew
		}
	}

	b.storeOrder(o)
	for i := range o.Legs {
		leg := o.Legs[i]
		b.storeOrder(&leg)
	}

	out := *o
	return &out, nil
}

func (b *SimulatorBroker) applyFill(symbol string, side domain.OrderSide, qty, price float64) {
	posSide := domain.SideLong
	if side == domain.OrderSideSell {
		posSide = domain.SideShort
	}
	p, ok := b.positions[symbol]
	if !ok {
		p = &domain.Position{Symbol: symbol, Side: posSide}
		b.positions[symbol] = p
	}
	total := p.Qty + qty
	p.AvgEntryPrice = (p.AvgEntryPrice*p.Qty + price*qty) / total
	p.Qty = total
	p.CurrentPrice = price
	p.MarketValue = price * total
}

// ClosePosition removes the position and returns a filled market order.
func (b *SimulatorBroker) ClosePosition(_ context.Context, ticker string) (*domain.Order, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.begin(OpClosePosition); err != nil {
		return nil, err
	}
	p, ok := b.positions[ticker]
	if !ok {
		return nil, fmt.Errorf("position %s: %w", ticker, ErrNotFound)
	}
	delete(b.positions, ticker)

	now := b.now()
	o := &domain.Order{
		ID:             uuid.NewString(),
		Symbol:         ticker,
		Side:           p.Side.ExitOrderSide(),
		Type:           domain.OrderTypeMarket,
		Class:          domain.OrderClassSimple,
		Status:         domain.OrderStatusFilled,
		Qty:            p.Qty,
		FilledQty:      p.Qty,
		FilledAvgPrice: p.CurrentPrice,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	b.storeOrder(o)
	out := *o
	return &out, nil
}

// GetOrders returns orders matching filter, oldest first.
func (b *SimulatorBroker) GetOrders(_ context.Context, filter domain.OrderFilter) ([]domain.Order, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.begin(OpGetOrders); err != nil {
		return nil, err
	}

	symbols := make(map[string]bool, len(filter.Symbols))
	for _, s := range filter.Symbols {
		symbols[s] = true
	}

	var out []domain.Order
	for _, id := range b.orderSeq {
		o := b.orders[id]
		if len(symbols) > 0 && !symbols[o.Symbol] {
			continue
		}
		switch filter.Status {
		case "", "open":
			if !o.Status.IsOpen() {
				continue
			}
		case "closed":
			if o.Status.IsOpen() {
				continue
			}
		}
		out = append(out, *o)
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	return out, nil
}

// CancelOrder marks the specified order as cancelled. With sticky orders set
// it acknowledges the request but leaves the order open.
func (b *SimulatorBroker) CancelOrder(_ context.Context, orderID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.begin(OpCancelOrder); err != nil {
		return err
	}
	o, ok := b.orders[orderID]
	if !ok {
		return fmt.Errorf("order %s: %w", orderID, ErrNotFound)
	}
	if b.stickyOrders || !o.Status.IsOpen() {
		return nil
	}
	o.Status = domain.OrderStatusCancelled
	o.UpdatedAt = b.now()
	for _, leg := range o.Legs {
		if l, ok := b.orders[leg.ID]; ok && l.Status.IsOpen() {
			l.Status = domain.OrderStatusCancelled
			l.UpdatedAt = o.UpdatedAt
		}
	}
	return nil
}

// GetClock reports the simulated session.
func (b *SimulatorBroker) GetClock(_ context.Context) (*domain.MarketClock, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.begin(OpGetClock); err != nil {
		return nil, err
	}
	return &domain.MarketClock{Timestamp: b.now(), IsOpen: b.marketOpen}, nil
}
