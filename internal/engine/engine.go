// Package engine runs the execution cycle: it reconciles positions against
// the broker, evaluates exits and entries through the owning strategies under
// admission control, and submits the resulting orders.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"autotrader/internal/broker"
	"autotrader/internal/cooldown"
	"autotrader/internal/domain"
	"autotrader/internal/events"
	"autotrader/internal/metrics"
	"autotrader/internal/orders"
	"autotrader/internal/queue"
	"autotrader/internal/strategy"
	"autotrader/internal/tracker"
	"autotrader/internal/util"
)

// ErrStopped is returned by RunCycle after Stop.
var ErrStopped = errors.New("engine stopped")

// SignalProvider supplies the technical signal for a ticker.
type SignalProvider interface {
	GetSignal(ctx context.Context, ticker string) (*domain.TechnicalSignal, error)
}

// VIXProvider is optionally implemented by a SignalProvider that can report
// the volatility index.
type VIXProvider interface {
	GetVIX(ctx context.Context) (float64, error)
}

// ClosedArchive receives positions as they move to closed history.
type ClosedArchive interface {
	AppendClosed(ctx context.Context, closed []domain.TrackedPosition) error
}

// Config holds the engine's tunables.
type Config struct {
	MaxPositions       int
	DailyLossLimitPct  float64
	MaxPositionPct     float64
	MaxEntriesPerCycle int
	SignalCacheTTL     time.Duration
	PendingOrderTTL    time.Duration
	MaxExitAttempts    int
	DefaultStrategy    string
	DryRun             bool
}

// Deps are the collaborators the engine drives. Broker, Orders, Tracker,
// Queue, Cooldowns and Strategies are required.
type Deps struct {
	Broker      broker.Broker
	Orders      *orders.Manager
	Tracker     *tracker.Tracker
	Queue       *queue.SignalQueue
	Cooldowns   *cooldown.Manager
	Strategies  *strategy.Registry
	Signals     SignalProvider
	Risk        *RiskManager
	Events      events.Sink
	Checkpoints CheckpointStore
	Archive     ClosedArchive
	Calendar    *util.TradingCalendar
	Metrics     *metrics.Metrics
	Logger      *slog.Logger
}

// CycleReport summarizes one RunCycle call.
type CycleReport struct {
	Cycle              int64         `json:"cycle"`
	StartedAt          time.Time     `json:"started_at"`
	Duration           time.Duration `json:"duration"`
	DryRun             bool          `json:"dry_run"`
	MarketStatus       string        `json:"market_status"`
	Changed            []string      `json:"changed,omitempty"`
	Exits              int           `json:"exits"`
	Entries            int           `json:"entries"`
	Rejected           int           `json:"rejected"`
	Requeued           int           `json:"requeued"`
	CircuitBreakerOpen bool          `json:"circuit_breaker_open"`
	Errors             []string      `json:"errors,omitempty"`
}

// Engine is the execution engine. RunCycle is single-writer: concurrent calls
// are serialized.
type Engine struct {
	cfg         Config
	broker      broker.Broker
	orders      *orders.Manager
	tracker     *tracker.Tracker
	queue       *queue.SignalQueue
	cooldowns   *cooldown.Manager
	strategies  *strategy.Registry
	signals     SignalProvider
	risk        *RiskManager
	sink        events.Sink
	checkpoints CheckpointStore
	archive     ClosedArchive
	calendar    *util.TradingCalendar
	metrics     *metrics.Metrics
	log         *slog.Logger
	now         func() time.Time

	cycleMu sync.Mutex
	stopped atomic.Bool
	cache   *signalCache

	mu           sync.Mutex
	pending      map[string]PendingOrder
	cycle        int64
	lastReport   *CycleReport
	lastAccount  *domain.AccountInfo
	archivedUpTo int
	breakerOpen  bool
}

// NewEngine creates a new Engine wired with the given dependencies.
func NewEngine(cfg Config, deps Deps) (*Engine, error) {
	switch {
	case deps.Broker == nil:
		return nil, errors.New("engine: broker is required")
	case deps.Orders == nil:
		return nil, errors.New("engine: order manager is required")
	case deps.Tracker == nil:
		return nil, errors.New("engine: position tracker is required")
	case deps.Queue == nil:
		return nil, errors.New("engine: signal queue is required")
	case deps.Cooldowns == nil:
		return nil, errors.New("engine: cooldown manager is required")
	case deps.Strategies == nil:
		return nil, errors.New("engine: strategy registry is required")
	}
	if deps.Risk == nil {
		deps.Risk = NewRiskManager(cfg.MaxPositions, cfg.MaxPositionPct, cfg.DailyLossLimitPct)
	}
	if deps.Events == nil {
		deps.Events = events.Discard
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	// The order manager is the one that actually suppresses broker calls.
	cfg.DryRun = cfg.DryRun || deps.Orders.DryRun()
	if cfg.MaxEntriesPerCycle <= 0 {
		cfg.MaxEntriesPerCycle = 5
	}
	if cfg.MaxExitAttempts <= 0 {
		cfg.MaxExitAttempts = 3
	}

	return &Engine{
		cfg:         cfg,
		broker:      deps.Broker,
		orders:      deps.Orders,
		tracker:     deps.Tracker,
		queue:       deps.Queue,
		cooldowns:   deps.Cooldowns,
		strategies:  deps.Strategies,
		signals:     deps.Signals,
		risk:        deps.Risk,
		sink:        deps.Events,
		checkpoints: deps.Checkpoints,
		archive:     deps.Archive,
		calendar:    deps.Calendar,
		metrics:     deps.Metrics,
		log:         deps.Logger.With("component", "engine"),
		now:         time.Now,
		cache:       newSignalCache(cfg.SignalCacheTTL),
		pending:     make(map[string]PendingOrder),
	}, nil
}

// SetClock overrides the time source (tests).
func (e *Engine) SetClock(now func() time.Time) { e.now = now }

// Stop makes every later RunCycle return ErrStopped. A cycle in flight runs
// to completion.
func (e *Engine) Stop() {
	if e.stopped.CompareAndSwap(false, true) {
		e.log.Info("engine stopping")
	}
}

// Stopped reports whether Stop has been called.
func (e *Engine) Stopped() bool { return e.stopped.Load() }

// DryRun reports whether the engine runs in analyze mode.
func (e *Engine) DryRun() bool { return e.cfg.DryRun }

// Enqueue converts an upstream recommendation into a queued signal. It
// reports false when the recommendation is unusable, the ticker is already
// queued, or the queue is full.
func (e *Engine) Enqueue(rec domain.Recommendation, source string) bool {
	sig, ok := queue.FromRecommendation(rec, source, e.cfg.DefaultStrategy, e.now())
	if !ok {
		e.log.Debug("recommendation skipped", "ticker", rec.Ticker, "trade_type", rec.TradeType)
		return false
	}
	if !e.queue.Add(sig) {
		e.log.Info("signal not queued", "ticker", sig.Ticker, "reason", "duplicate or queue full")
		return false
	}
	e.log.Info("signal queued", "ticker", sig.Ticker, "action", sig.Action,
		"priority", sig.Priority, "strategy", sig.StrategyName, "source", source)
	return true
}

// RunCycle executes one SYNC, EVALUATE_EXITS, EXECUTE_EXITS,
// EVALUATE_ENTRIES, SUBMIT_ENTRIES pass. A failed broker sync abandons the
// rest of the cycle, leaving queued entries for the next one.
func (e *Engine) RunCycle(ctx context.Context) (CycleReport, error) {
	if e.stopped.Load() {
		return CycleReport{}, ErrStopped
	}
	e.cycleMu.Lock()
	defer e.cycleMu.Unlock()

	start := e.now()
	e.mu.Lock()
	e.cycle++
	rep := CycleReport{Cycle: e.cycle, StartedAt: start, DryRun: e.cfg.DryRun}
	e.mu.Unlock()
	log := e.log.With("cycle", rep.Cycle)

	e.cache.clear()
	e.expireCooldowns(start)

	// SYNC
	_, closedBefore := e.tracker.ClosedSince(0)
	changed, err := e.tracker.SyncFromBroker(ctx)
	if err != nil {
		log.Warn("position sync failed; skipping cycle", "error", err)
		rep.Errors = append(rep.Errors, err.Error())
		err = fmt.Errorf("cycle %d: %w", rep.Cycle, err)
		e.finish(ctx, &rep, err)
		return rep, err
	}
	rep.Changed = changed
	e.handleBrokerClosures(closedBefore, start, &rep)
	e.resolvePending(ctx, start, &rep)
	e.refreshBracketFlags(ctx, &rep)
	account := e.fetchAccount(ctx, &rep)
	mctx := e.marketContext(ctx, start, account)
	rep.MarketStatus = string(mctx.MarketStatus)

	// EVALUATE_EXITS / EXECUTE_EXITS
	for _, x := range e.evaluateExits(ctx, mctx) {
		if e.executeExit(ctx, x, &rep) {
			rep.Exits++
		}
	}

	// EVALUATE_ENTRIES / SUBMIT_ENTRIES
	mctx.ExistingPositions = e.existingPositions()
	mctx.CooldownTickers = e.cooldowns.Tickers()
	e.processEntries(ctx, mctx, account, &rep)

	e.finish(ctx, &rep, nil)
	return rep, nil
}

func (e *Engine) finish(ctx context.Context, rep *CycleReport, cycleErr error) {
	now := e.now()

	if closed, n := e.tracker.ClosedSince(e.archivedUpTo); len(closed) > 0 && e.archive != nil {
		if err := e.archive.AppendClosed(ctx, closed); err != nil {
			e.log.Warn("archiving closed positions failed", "count", len(closed), "error", err)
			rep.Errors = append(rep.Errors, err.Error())
		} else {
			e.archivedUpTo = n
		}
	} else {
		e.archivedUpTo = n
	}

	if err := e.SaveCheckpoint(ctx); err != nil {
		e.log.Warn("checkpoint failed", "error", err)
		rep.Errors = append(rep.Errors, err.Error())
	}

	rep.Duration = now.Sub(rep.StartedAt)
	e.metrics.ObserveCycle(rep.Duration, cycleErr)
	e.metrics.SetState(e.tracker.Count(), e.queue.Size(), rep.CircuitBreakerOpen)

	ev := e.event(events.CycleComplete, now)
	ev.Cycle, ev.DurationMS = rep.Cycle, rep.Duration.Milliseconds()
	ev.Exits, ev.Entries, ev.Errors = rep.Exits, rep.Entries, len(rep.Errors)
	if cycleErr != nil {
		ev.Reason = cycleErr.Error()
	}
	e.emit(ev)

	e.mu.Lock()
	r := *rep
	e.lastReport = &r
	e.breakerOpen = rep.CircuitBreakerOpen
	e.mu.Unlock()

	e.log.Info("cycle complete", "cycle", rep.Cycle, "duration", rep.Duration,
		"exits", rep.Exits, "entries", rep.Entries, "rejected", rep.Rejected,
		"errors", len(rep.Errors), "dry_run", rep.DryRun)
}

// ---------------------------------------------------------------------------
// SYNC helpers
// ---------------------------------------------------------------------------

func (e *Engine) expireCooldowns(now time.Time) {
	for _, c := range e.cooldowns.Prune() {
		ev := e.event(events.CooldownEnded, now)
		ev.Ticker, ev.StrategyName, ev.Reason, ev.ExpiresAt = c.Ticker, c.StrategyName, c.Reason, c.ExpiresAt
		e.emit(ev)
	}
}

// handleBrokerClosures treats positions the broker stopped reporting (for
// example a bracket leg filled) as exits: strategies observe the round trip
// and the ticker cools down.
func (e *Engine) handleBrokerClosures(offset int, now time.Time, rep *CycleReport) {
	closed, _ := e.tracker.ClosedSince(offset)
	for _, c := range closed {
		ev := e.event(events.ExitTriggered, now)
		ev.Ticker, ev.Side, ev.Quantity = c.Ticker, c.Side, c.Quantity
		ev.Price, ev.PnL, ev.Reason = c.CurrentPrice, c.RealizedPnL, c.CloseReason
		ev.StrategyName, ev.Urgency = c.StrategyName, domain.UrgencyNormal
		e.emit(ev)
		e.afterExit(c, now)
		rep.Exits++
	}
}

func (e *Engine) refreshBracketFlags(ctx context.Context, rep *CycleReport) {
	for _, p := range e.tracker.Positions() {
		if _, err := e.tracker.SyncBracketOrderStatus(ctx, p.Ticker); err != nil {
			e.log.Warn("bracket status refresh failed", "ticker", p.Ticker, "error", err)
			rep.Errors = append(rep.Errors, err.Error())
		}
	}
}

func (e *Engine) fetchAccount(ctx context.Context, rep *CycleReport) *domain.AccountInfo {
	acct, err := e.broker.GetAccount(ctx)
	e.mu.Lock()
	defer e.mu.Unlock()
	if err != nil {
		e.log.Warn("account fetch failed; using last known", "error", err)
		rep.Errors = append(rep.Errors, err.Error())
		return e.lastAccount
	}
	e.lastAccount = acct
	return acct
}

func (e *Engine) marketStatus(ctx context.Context, now time.Time) domain.MarketStatus {
	calStatus := domain.MarketStatusClosed
	if e.calendar != nil {
		calStatus = e.calendar.Status(now)
	}
	clock, ok := e.broker.(broker.Clock)
	if !ok {
		return calStatus
	}
	mc, err := clock.GetClock(ctx)
	if err != nil {
		e.log.Debug("broker clock unavailable; using calendar", "error", err)
		return calStatus
	}
	if mc.IsOpen {
		return domain.MarketStatusOpen
	}
	if calStatus == domain.MarketStatusOpen {
		// Broker knows about closures the calendar does not.
		return domain.MarketStatusClosed
	}
	return calStatus
}

func (e *Engine) marketContext(ctx context.Context, now time.Time, acct *domain.AccountInfo) domain.MarketContext {
	mctx := domain.MarketContext{
		Now:               now,
		MarketStatus:      e.marketStatus(ctx, now),
		ExistingPositions: e.existingPositions(),
		CooldownTickers:   e.cooldowns.Tickers(),
	}
	if acct != nil {
		mctx.AccountEquity = acct.Equity
		mctx.BuyingPower = acct.BuyingPower
	}
	if vp, ok := e.signals.(VIXProvider); ok {
		if vix, err := vp.GetVIX(ctx); err == nil {
			mctx.VIX = vix
		} else {
			e.log.Debug("vix unavailable", "error", err)
		}
	}
	return mctx
}

// existingPositions returns open positions plus in-flight entries, so that
// strategies see a pending ticker as held.
func (e *Engine) existingPositions() map[string]domain.TrackedPosition {
	out := make(map[string]domain.TrackedPosition)
	for _, p := range e.tracker.Positions() {
		out[p.Ticker] = p
	}
	for _, p := range e.pendingOrders() {
		if _, ok := out[p.Ticker]; !ok {
			out[p.Ticker] = domain.TrackedPosition{
				Ticker: p.Ticker, Side: p.Side, Quantity: p.Quantity, AvgEntryPrice: p.EntryPrice,
				StrategyName: p.StrategyName, StopLoss: p.StopLoss, Target: p.Target, Notes: "pending entry",
			}
		}
	}
	return out
}

// signal returns the technical signal for ticker, consulting the cycle cache
// first. Failures yield nil.
func (e *Engine) signal(ctx context.Context, ticker string) *domain.TechnicalSignal {
	now := e.now()
	if sig, ok := e.cache.get(ticker, now); ok {
		return sig
	}
	if e.signals == nil {
		return nil
	}
	sig, err := e.signals.GetSignal(ctx, ticker)
	if err != nil {
		e.log.Debug("technical signal unavailable", "ticker", ticker, "error", err)
		sig = nil
	}
	e.cache.put(ticker, sig, now)
	return sig
}

// ---------------------------------------------------------------------------
// Exits
// ---------------------------------------------------------------------------

type plannedExit struct {
	pos      domain.TrackedPosition
	decision domain.ExitDecision
}

var urgencyRank = map[domain.Urgency]int{
	domain.UrgencyImmediate: 0,
	domain.UrgencyUrgent:    1,
	domain.UrgencyNormal:    2,
}

func (e *Engine) evaluateExits(ctx context.Context, mctx domain.MarketContext) []plannedExit {
	var out []plannedExit
	for _, pos := range e.tracker.Positions() {
		if pos.HasBracketOrder && pos.BracketOrderVerified {
			e.log.Debug("exit managed by broker bracket", "ticker", pos.Ticker)
			continue
		}
		tech := e.signal(ctx, pos.Ticker)
		if price := strategy.LastPrice(tech); price > 0 {
			e.tracker.UpdatePrice(pos.Ticker, price)
			pos, _ = e.tracker.Get(pos.Ticker)
		}

		var d domain.ExitDecision
		if s, ok := e.strategies.Get(pos.StrategyName); ok {
			d = s.EvaluateExit(pos, tech, mctx)
		} else {
			d = strategy.DefaultFallbackExit.EvaluateExit(pos, tech)
		}
		if d.ShouldExit {
			out = append(out, plannedExit{pos: pos, decision: d})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return urgencyRank[out[i].decision.Urgency] < urgencyRank[out[j].decision.Urgency]
	})
	return out
}

func (e *Engine) executeExit(ctx context.Context, x plannedExit, rep *CycleReport) bool {
	pos, d := x.pos, x.decision
	now := e.now()
	log := e.log.With("ticker", pos.Ticker, "strategy", pos.StrategyName)

	ev := e.event(events.ExitTriggered, now)
	ev.Ticker, ev.Side, ev.Quantity = pos.Ticker, pos.Side, pos.Quantity
	ev.EntryPrice, ev.Price, ev.PnL = pos.AvgEntryPrice, pos.CurrentPrice, pos.UnrealizedPnL
	ev.Reason, ev.Urgency, ev.StrategyName = d.Reason, d.Urgency, pos.StrategyName
	e.emit(ev)

	// Nothing reaches the broker in dry-run, so no close attempt is counted.
	if e.cfg.DryRun {
		e.metrics.Exit(string(d.Urgency))
		e.metrics.Order(string(pos.Side.ExitOrderSide()), "dry_run")
		e.startCooldown(pos.Ticker, d.Reason, pos.StrategyName, now)
		log.Info("dry run: exit not executed", "reason", d.Reason, "urgency", d.Urgency)
		return true
	}

	attempts := e.tracker.IncrementExitAttempts(pos.Ticker)
	if attempts > e.cfg.MaxExitAttempts {
		log.Error("exit still failing after max attempts", "attempts", attempts, "max", e.cfg.MaxExitAttempts)
	}

	order, err := e.orders.ClosePosition(ctx, pos.Ticker, true)
	if err != nil {
		log.Warn("close failed", "attempt", attempts, "error", err)
		rep.Errors = append(rep.Errors, err.Error())
		rej := e.event(events.OrderRejected, e.now())
		rej.Ticker, rej.Side, rej.Quantity = pos.Ticker, pos.Side, pos.Quantity
		rej.Reason, rej.StrategyName = err.Error(), pos.StrategyName
		e.emit(rej)
		e.metrics.Order(string(pos.Side.ExitOrderSide()), "rejected")
		return false
	}
	e.metrics.Exit(string(d.Urgency))

	sub := e.event(events.OrderSubmitted, e.now())
	sub.Ticker, sub.Side, sub.Quantity = pos.Ticker, pos.Side, pos.Quantity
	sub.Price, sub.Reason, sub.StrategyName = pos.CurrentPrice, d.Reason, pos.StrategyName
	if order != nil {
		sub.OrderID, sub.ClientOrderID = order.ID, order.ClientOrderID
		if order.FilledAvgPrice > 0 {
			e.tracker.UpdatePrice(pos.Ticker, order.FilledAvgPrice)
		}
	}
	e.emit(sub)
	e.metrics.Order(string(pos.Side.ExitOrderSide()), "submitted")

	closed, ok := e.tracker.RemovePosition(pos.Ticker, d.Reason)
	if !ok {
		closed = pos
	}
	e.afterExit(closed, now)
	log.Info("position exited", "reason", d.Reason, "urgency", d.Urgency, "pnl", closed.RealizedPnL)
	return true
}

// afterExit informs the owning strategy of the round trip and starts the
// re-entry cooldown.
func (e *Engine) afterExit(closed domain.TrackedPosition, now time.Time) {
	if s, ok := e.strategies.Get(closed.StrategyName); ok {
		if obs, ok := s.(strategy.RoundTripObserver); ok {
			obs.OnRoundTrip(closed.Ticker, closed.RealizedPnL)
		}
	}
	e.startCooldown(closed.Ticker, closed.CloseReason, closed.StrategyName, now)
}

func (e *Engine) startCooldown(ticker, reason, strategyName string, now time.Time) {
	c := e.cooldowns.AddCooldown(ticker, reason, strategyName, 0)
	ev := e.event(events.CooldownStarted, now)
	ev.Ticker, ev.Reason, ev.StrategyName, ev.ExpiresAt = ticker, reason, strategyName, c.ExpiresAt
	e.emit(ev)
}

// ---------------------------------------------------------------------------
// Entries
// ---------------------------------------------------------------------------

type entryOutcome int

const (
	entryRejected entryOutcome = iota
	entrySubmitted
	entryRetry
)

func (e *Engine) dailyPnL(acct *domain.AccountInfo, now time.Time) float64 {
	if acct != nil && acct.LastEquity > 0 {
		return acct.Equity - acct.LastEquity
	}
	loc := time.UTC
	if e.calendar != nil {
		loc = e.calendar.Location()
	}
	local := now.In(loc)
	midnight := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	return e.tracker.RealizedSince(midnight) + e.tracker.UnrealizedTotal()
}

func (e *Engine) processEntries(ctx context.Context, mctx domain.MarketContext, acct *domain.AccountInfo, rep *CycleReport) {
	daily := e.dailyPnL(acct, mctx.Now)
	rep.CircuitBreakerOpen = e.risk.CircuitOpen(daily, mctx.AccountEquity)

	openCount := len(mctx.ExistingPositions)
	var retry []domain.PendingSignal
	for e.queue.Size() > 0 {
		if rep.Entries >= e.cfg.MaxEntriesPerCycle {
			e.log.Debug("per-cycle entry cap reached", "cap", e.cfg.MaxEntriesPerCycle)
			break
		}
		if ok, reason := e.risk.Admit(openCount, daily, mctx.AccountEquity); !ok {
			e.log.Info("entries blocked by admission control", "reason", reason, "queued", e.queue.Size())
			break
		}
		sig, ok := e.queue.Pop()
		if !ok {
			break
		}

		switch e.processEntry(ctx, sig, mctx) {
		case entrySubmitted:
			rep.Entries++
			openCount++
			mctx.ExistingPositions[sig.Ticker] = domain.TrackedPosition{Ticker: sig.Ticker, Notes: "pending entry"}
		case entryRetry:
			retry = append(retry, sig)
		default:
			rep.Rejected++
		}
	}

	for _, sig := range retry {
		if e.queue.Add(sig) {
			rep.Requeued++
		}
	}
}

func (e *Engine) processEntry(ctx context.Context, sig domain.PendingSignal, mctx domain.MarketContext) entryOutcome {
	log := e.log.With("ticker", sig.Ticker, "source", sig.Source)
	name := sig.StrategyName
	if name == "" || name == domain.StrategyUnknown {
		name = e.cfg.DefaultStrategy
	}
	strat, ok := e.strategies.Get(name)
	if !ok {
		log.Warn("no strategy for signal", "strategy", name)
		e.metrics.Entry(name, "rejected")
		return entryRejected
	}

	tech := e.signal(ctx, sig.Ticker)
	d := strat.EvaluateEntry(sig, tech, mctx)
	if !d.ShouldEnter() {
		log.Info("entry rejected", "strategy", name, "reason", d.Reason())
		e.metrics.Entry(name, "rejected")
		return entryRejected
	}
	plan, _ := d.Plan()
	if plan.StopLoss <= 0 {
		// Unreachable through domain.AcceptEntry.
		log.Error("accepted entry without stop loss", "strategy", name)
		return entryRejected
	}

	if ok, reason := e.orders.ValidateAsset(ctx, sig.Ticker, plan.Side); !ok {
		log.Info("entry rejected", "strategy", name, "reason", reason)
		e.metrics.Entry(name, "rejected")
		return entryRejected
	}

	qty := plan.Size
	if qty <= 0 {
		qty = strat.CalculatePositionSize(plan.EntryPrice, plan.StopLoss, mctx)
	}
	if qty <= 0 {
		log.Info("entry rejected", "strategy", name, "reason", "position size is zero")
		e.metrics.Entry(name, "rejected")
		return entryRejected
	}
	if err := e.risk.CheckOrder(qty, plan.EntryPrice, mctx.AccountEquity); err != nil {
		log.Info("entry rejected", "strategy", name, "reason", err.Error())
		e.metrics.Entry(name, "rejected")
		return entryRejected
	}
	target := plan.Target
	if target <= 0 {
		// Brackets need a take-profit leg; default to 2R.
		target = plan.EntryPrice + 2*(plan.EntryPrice-plan.StopLoss)
	}

	params := domain.OrderParams{
		Ticker:       sig.Ticker,
		Side:         plan.Side,
		Quantity:     qty,
		EntryPrice:   plan.EntryPrice,
		StopLoss:     plan.StopLoss,
		Target:       target,
		StrategyName: name,
	}
	now := e.now()
	trig := e.event(events.EntryTriggered, now)
	trig.Ticker, trig.Side, trig.Quantity = params.Ticker, params.Side, params.Quantity
	trig.EntryPrice, trig.StopLoss, trig.Target = params.EntryPrice, params.StopLoss, params.Target
	trig.Reason, trig.StrategyName = d.Reason(), name
	e.emit(trig)
	e.metrics.Entry(name, "accepted")

	order, err := e.orders.SubmitBracketOrder(ctx, &params)
	orderSide := string(params.Side.EntryOrderSide())
	if err != nil {
		rej := e.event(events.OrderRejected, e.now())
		rej.Ticker, rej.Side, rej.Quantity = params.Ticker, params.Side, params.Quantity
		rej.EntryPrice, rej.StrategyName, rej.ClientOrderID = params.EntryPrice, name, params.ClientOrderID
		rej.Reason = err.Error()
		e.emit(rej)
		e.metrics.Order(orderSide, "rejected")
		if broker.IsTransient(err) {
			log.Warn("entry submit failed; will retry next cycle", "error", err)
			return entryRetry
		}
		log.Warn("entry submit rejected", "error", err)
		return entryRejected
	}

	sub := e.event(events.OrderSubmitted, e.now())
	sub.Ticker, sub.Side, sub.Quantity = params.Ticker, params.Side, params.Quantity
	sub.EntryPrice, sub.StopLoss, sub.Target = params.EntryPrice, params.StopLoss, params.Target
	sub.StrategyName, sub.ClientOrderID = name, params.ClientOrderID
	if order == nil {
		e.emit(sub)
		e.metrics.Order(orderSide, "dry_run")
		log.Info("dry run: entry not submitted", "strategy", name, "qty", qty)
		return entrySubmitted
	}
	sub.OrderID = order.ID
	e.emit(sub)
	e.metrics.Order(orderSide, "submitted")

	e.mu.Lock()
	e.pending[sig.Ticker] = PendingOrder{
		Ticker:        sig.Ticker,
		OrderID:       order.ID,
		ClientOrderID: params.ClientOrderID,
		StrategyName:  name,
		Side:          params.Side,
		Quantity:      qty,
		EntryPrice:    params.EntryPrice,
		StopLoss:      params.StopLoss,
		Target:        params.Target,
		SubmittedAt:   now,
	}
	e.mu.Unlock()
	log.Info("entry submitted", "strategy", name, "qty", qty, "order_id", order.ID)
	return entrySubmitted
}

// ---------------------------------------------------------------------------
// Events
// ---------------------------------------------------------------------------

func (e *Engine) event(t events.Type, ts time.Time) events.Event {
	ev := events.New(t, ts)
	ev.DryRun = e.cfg.DryRun
	return ev
}

func (e *Engine) emit(ev events.Event) {
	e.sink.Emit(ev)
}
