package util

import (
	"fmt"
	"sync"
	"time"
	_ "time/tzdata" // exchange zones must resolve in minimal containers

	"autotrader/internal/domain"
)

// session is a continuous trading window expressed in minutes after local
// midnight.
type session struct {
	open, close int
}

type marketHours struct {
	zone     string
	offset   int // fallback UTC offset in seconds if the zone cannot load
	sessions []session
	// Extended-hours windows; zero when the market has none.
	preOpen    int
	afterClose int
}

var hoursByMarket = map[domain.Market]marketHours{
	// NYSE: 9:30-16:00 ET, pre-market from 4:00, after-hours until 20:00.
	domain.MarketUS: {
		zone:       "America/New_York",
		offset:     -5 * 3600,
		sessions:   []session{{9*60 + 30, 16 * 60}},
		preOpen:    4 * 60,
		afterClose: 20 * 60,
	},
	// SSE: 9:30-11:30 and 13:00-15:00 CST, call auction from 9:15.
	domain.MarketCN: {
		zone:     "Asia/Shanghai",
		offset:   8 * 3600,
		sessions: []session{{9*60 + 30, 11*60 + 30}, {13 * 60, 15 * 60}},
		preOpen:  9*60 + 15,
	},
}

// TradingCalendar provides market-hours awareness for a specific market.
type TradingCalendar struct {
	market   domain.Market
	hours    marketHours
	loc      *time.Location
	mu       sync.RWMutex
	holidays map[string]struct{}
}

// NewTradingCalendar creates a TradingCalendar for the given market. Unknown
// markets fall back to US hours.
func NewTradingCalendar(market domain.Market) *TradingCalendar {
	hours, ok := hoursByMarket[market]
	if !ok {
		hours = hoursByMarket[domain.MarketUS]
	}
	loc, err := time.LoadLocation(hours.zone)
	if err != nil {
		loc = time.FixedZone(hours.zone, hours.offset)
	}
	return &TradingCalendar{
		market:   market,
		hours:    hours,
		loc:      loc,
		holidays: make(map[string]struct{}),
	}
}

// Location returns the exchange time zone.
func (tc *TradingCalendar) Location() *time.Location { return tc.loc }

// AddHolidays marks the given dates (YYYY-MM-DD, exchange local) as closed.
func (tc *TradingCalendar) AddHolidays(dates ...string) error {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	for _, d := range dates {
		if _, err := time.ParseInLocation("2006-01-02", d, tc.loc); err != nil {
			return fmt.Errorf("parsing holiday %q: %w", d, err)
		}
		tc.holidays[d] = struct{}{}
	}
	return nil
}

// IsTradingDay reports whether the exchange trades on t's local date.
func (tc *TradingCalendar) IsTradingDay(t time.Time) bool {
	local := t.In(tc.loc)
	switch local.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	tc.mu.RLock()
	_, holiday := tc.holidays[local.Format("2006-01-02")]
	tc.mu.RUnlock()
	return !holiday
}

// Status classifies t as regular session, extended hours, or closed.
func (tc *TradingCalendar) Status(t time.Time) domain.MarketStatus {
	if !tc.IsTradingDay(t) {
		return domain.MarketStatusClosed
	}
	local := t.In(tc.loc)
	minute := local.Hour()*60 + local.Minute()

	for _, s := range tc.hours.sessions {
		if minute >= s.open && minute < s.close {
			return domain.MarketStatusOpen
		}
	}
	first := tc.hours.sessions[0]
	last := tc.hours.sessions[len(tc.hours.sessions)-1]
	if tc.hours.preOpen > 0 && minute >= tc.hours.preOpen && minute < first.open {
		return domain.MarketStatusPreMarket
	}
	if tc.hours.afterClose > 0 && minute >= last.close && minute < tc.hours.afterClose {
		return domain.MarketStatusAfterHours
	}
	return domain.MarketStatusClosed
}

// IsMarketOpen returns whether the regular session is open at time t.
func (tc *TradingCalendar) IsMarketOpen(t time.Time) bool {
	return tc.Status(t) == domain.MarketStatusOpen
}

// NextOpen returns the next session open at or after t.
func (tc *TradingCalendar) NextOpen(t time.Time) time.Time {
	return tc.scan(t, func(s session) int { return s.open })
}

// NextClose returns the next session close at or after t. During a session
// that is the close of the current session.
func (tc *TradingCalendar) NextClose(t time.Time) time.Time {
	return tc.scan(t, func(s session) int { return s.close })
}

// scan walks forward day by day looking for the first session boundary at or
// after t. Three weeks covers any realistic run of holidays.
func (tc *TradingCalendar) scan(t time.Time, boundary func(session) int) time.Time {
	local := t.In(tc.loc)
	day := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, tc.loc)
	for i := 0; i < 21; i++ {
		d := day.AddDate(0, 0, i)
		if !tc.IsTradingDay(d) {
			continue
		}
		for _, s := range tc.hours.sessions {
			m := boundary(s)
			at := time.Date(d.Year(), d.Month(), d.Day(), m/60, m%60, 0, 0, tc.loc)
			if !at.Before(t) {
				return at
			}
		}
	}
	return time.Time{}
}
