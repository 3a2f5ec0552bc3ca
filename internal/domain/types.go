// Package domain defines the core value types shared by every part of the
// execution engine: broker-side orders and positions, queued signals, tracked
// positions, cooldowns, and the decisions strategies hand back.
package domain

import (
	"strings"
	"time"
)

// ---------------------------------------------------------------------------
// Enums
// ---------------------------------------------------------------------------

// Market identifies the exchange calendar a ticker trades on.
type Market string

const (
	MarketUS Market = "us"
	MarketCN Market = "cn"
)

// Side is the direction of a position.
type Side string

const (
	SideLong  Side = "long"
	SideShort Side = "short"
)

// ParseSide maps loose upstream spellings ("LONG", "buy", "short", "sell")
// onto a Side. The second return value is false for anything unrecognised.
func ParseSide(s string) (Side, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "long", "buy":
		return SideLong, true
	case "short", "sell":
		return SideShort, true
	}
	return "", false
}

// EntryOrderSide returns the order side that opens a position on this side.
func (s Side) EntryOrderSide() OrderSide {
	if s == SideShort {
		return OrderSideSell
	}
	return OrderSideBuy
}

// ExitOrderSide returns the order side that closes a position on this side.
func (s Side) ExitOrderSide() OrderSide {
	if s == SideShort {
		return OrderSideBuy
	}
	return OrderSideSell
}

// OrderSide is the side of a single broker order.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// OrderType is the execution type of an order.
type OrderType string

const (
	OrderTypeMarket    OrderType = "market"
	OrderTypeLimit     OrderType = "limit"
	OrderTypeStop      OrderType = "stop"
	OrderTypeStopLimit OrderType = "stop_limit"
)

// OrderClass distinguishes single orders from multi-leg submissions.
type OrderClass string

const (
	OrderClassSimple  OrderClass = "simple"
	OrderClassBracket OrderClass = "bracket"
	OrderClassOCO     OrderClass = "oco"
	OrderClassOTO     OrderClass = "oto"
)

// IsMultiLeg reports whether the class carries broker-managed exit legs.
func (c OrderClass) IsMultiLeg() bool {
	switch c {
	case OrderClassBracket, OrderClassOCO, OrderClassOTO:
		return true
	}
	return false
}

// OrderStatus is the broker-reported lifecycle state of an order.
type OrderStatus string

const (
	OrderStatusNew             OrderStatus = "new"
	OrderStatusAccepted        OrderStatus = "accepted"
	OrderStatusPendingNew      OrderStatus = "pending_new"
	OrderStatusPartiallyFilled OrderStatus = "partially_filled"
	OrderStatusFilled          OrderStatus = "filled"
	OrderStatusCancelled       OrderStatus = "canceled"
	OrderStatusRejected        OrderStatus = "rejected"
	OrderStatusExpired         OrderStatus = "expired"
	OrderStatusHeld            OrderStatus = "held"
)

// IsOpen reports whether an order in this state can still execute.
func (s OrderStatus) IsOpen() bool {
	switch s {
	case OrderStatusNew, OrderStatusAccepted, OrderStatusPendingNew,
		OrderStatusPartiallyFilled, OrderStatusHeld:
		return true
	}
	return false
}

// TimeInForce controls how long an order rests at the broker.
type TimeInForce string

const (
	TimeInForceDay TimeInForce = "day"
	TimeInForceGTC TimeInForce = "gtc"
)

// Urgency ranks how quickly an exit should be executed.
type Urgency string

const (
	UrgencyNormal    Urgency = "normal"
	UrgencyUrgent    Urgency = "urgent"
	UrgencyImmediate Urgency = "immediate"
)

// MarketStatus is the session state used by the shared entry filter.
type MarketStatus string

const (
	MarketStatusOpen       MarketStatus = "open"
	MarketStatusClosed     MarketStatus = "closed"
	MarketStatusPreMarket  MarketStatus = "pre_market"
	MarketStatusAfterHours MarketStatus = "after_hours"
)

// ---------------------------------------------------------------------------
// Market data
// ---------------------------------------------------------------------------

// Bar is a single OHLCV bar.
type Bar struct {
	Symbol     string    `json:"symbol"`
	Timestamp  time.Time `json:"timestamp"`
	Open       float64   `json:"open"`
	High       float64   `json:"high"`
	Low        float64   `json:"low"`
	Close      float64   `json:"close"`
	Volume     int64     `json:"volume"`
	TradeCount int64     `json:"trade_count"`
	VWAP       float64   `json:"vwap"`
}

// TechnicalSignal is the per-ticker analysis snapshot supplied by the external
// analysis component. The engine treats it as opaque apart from caching.
type TechnicalSignal struct {
	Symbol     string    `json:"symbol"`
	Price      float64   `json:"price"`
	ATR        float64   `json:"atr"`
	RVOL       float64   `json:"rvol"`
	SignalTags []string  `json:"signal_tags"`
	Score      float64   `json:"score"`
	Momentum   float64   `json:"momentum"`
	Daily      []Bar     `json:"raw_daily_series"`
	Intraday   []Bar     `json:"raw_intraday_series"`
	ComputedAt time.Time `json:"computed_at"`
}

// HasTag reports whether the signal carries the given tag (case-insensitive).
func (t *TechnicalSignal) HasTag(tag string) bool {
	if t == nil {
		return false
	}
	for _, s := range t.SignalTags {
		if strings.EqualFold(s, tag) {
			return true
		}
	}
	return false
}

// ---------------------------------------------------------------------------
// Broker-side types
// ---------------------------------------------------------------------------

// OrderRequest describes an order to submit. StopLoss and TakeProfit are only
// honoured for multi-leg classes.
type OrderRequest struct {
	Symbol        string      `json:"symbol"`
	Qty           float64     `json:"qty"`
	Side          OrderSide   `json:"side"`
	Type          OrderType   `json:"type"`
	TimeInForce   TimeInForce `json:"time_in_force"`
	LimitPrice    float64     `json:"limit_price,omitempty"`
	StopPrice     float64     `json:"stop_price,omitempty"`
	Class         OrderClass  `json:"order_class"`
	TakeProfit    float64     `json:"take_profit,omitempty"`
	StopLoss      float64     `json:"stop_loss,omitempty"`
	ClientOrderID string      `json:"client_order_id"`
}

// Order is a broker order as reported back to us.
type Order struct {
	ID             string      `json:"id"`
	ClientOrderID  string      `json:"client_order_id"`
	Symbol         string      `json:"symbol"`
	Side           OrderSide   `json:"side"`
	Type           OrderType   `json:"type"`
	Class          OrderClass  `json:"order_class"`
	Status         OrderStatus `json:"status"`
	Qty            float64     `json:"qty"`
	FilledQty      float64     `json:"filled_qty"`
	FilledAvgPrice float64     `json:"filled_avg_price"`
	LimitPrice     float64     `json:"limit_price,omitempty"`
	StopPrice      float64     `json:"stop_price,omitempty"`
	Legs           []Order     `json:"legs,omitempty"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
}

// OrderFilter narrows a GetOrders query.
type OrderFilter struct {
	// Status is "open", "closed" or "all". Empty means "open".
	Status  string
	Symbols []string
	Limit   int
	Nested  bool
}

// Position is a broker-reported open position.
type Position struct {
	Symbol        string  `json:"symbol"`
	Qty           float64 `json:"qty"`
	Side          Side    `json:"side"`
	AvgEntryPrice float64 `json:"avg_entry_price"`
	CurrentPrice  float64 `json:"current_price"`
	MarketValue   float64 `json:"market_value"`
	UnrealizedPL  float64 `json:"unrealized_pl"`
}

// AccountInfo is a snapshot of account-level financial metrics.
type AccountInfo struct {
	Equity           float64 `json:"equity"`
	LastEquity       float64 `json:"last_equity"`
	Cash             float64 `json:"cash"`
	BuyingPower      float64 `json:"buying_power"`
	MarginMultiplier float64 `json:"margin_multiplier"`
}

// Asset carries the tradability flags checked before any submission.
type Asset struct {
	Symbol       string `json:"symbol"`
	Tradable     bool   `json:"tradable"`
	Shortable    bool   `json:"shortable"`
	Fractionable bool   `json:"fractionable"`
}

// MarketClock is the broker's view of the current session.
type MarketClock struct {
	Timestamp time.Time `json:"timestamp"`
	IsOpen    bool      `json:"is_open"`
	NextOpen  time.Time `json:"next_open"`
	NextClose time.Time `json:"next_close"`
}
