package crawler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"google.golang.org/api/iterator"

	"github.com/JakeFAU/ladder-battle-crawler/internal/metrics"
)

var (
	// ErrNotOpen is returned by Next before Open succeeded.
	ErrNotOpen = errors.New("engine not open")
	// ErrAlreadyOpen is returned by Open on an engine that left the idle state.
	ErrAlreadyOpen = errors.New("engine already opened")
)

// State is the engine's session state.
type State int32

// Engine states. Transitions only move forward.
const (
	StateIdle State = iota
	StateRunning
	StateDraining
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Reasons a session stops accepting new fetches.
const (
	ReasonBattlelogLimit = "battlelog limit"
	ReasonBattleLimit    = "battle limit"
	ReasonExhausted      = "frontier exhausted"
	ReasonMaintenance    = "maintenance"
	ReasonCancelled      = "cancelled"
	ReasonHealthCheck    = "health check failed"
)

// Stats is a point-in-time view of a session.
type Stats struct {
	State            State  `json:"-"`
	StateName        string `json:"state"`
	Reason           string `json:"reason,omitempty"`
	Dispatched       int    `json:"dispatched"`
	PlayersProcessed int    `json:"players_processed"`
	BattlesEmitted   int    `json:"battles_emitted"`
	RecordsSkipped   int    `json:"records_skipped"`
	Throttled        int    `json:"throttled"`
	Failed           int    `json:"failed"`
	Inflight         int    `json:"inflight"`
	FrontierSize     int    `json:"frontier_size"`
	Requested        int    `json:"requested"`
}

type pendingFetch struct {
	tag      PlayerTag
	priority Priority
}

type fetchResult struct {
	id     uint64
	result BattlelogResult
}

// Engine crawls battlelogs from the seed players outward. Batches are pulled
// with Next. Next and Close must not be called concurrently with each other;
// Stats may be called from any goroutine.
type Engine struct {
	cfg    Config
	client BattlelogClient
	logger *zap.Logger

	mu      sync.Mutex
	state   State
	reason  string
	graph   *graph
	pending map[uint64]pendingFetch
	nextID  uint64
	results chan fetchResult

	maintenance atomic.Bool
	session     context.Context
	endSession  context.CancelFunc

	dispatched       int
	playersProcessed int
	battlesEmitted   int
	recordsSkipped   int
	throttled        int
	failed           int

	stats atomic.Pointer[Stats]
}

// NewEngine builds an idle engine. cfg is used as given: targets and the
// low-rating cutoff may be zero (a zero cutoff admits every opponent). Only
// empty seeds and a zero concurrency fall back to their defaults.
func NewEngine(cfg Config, client BattlelogClient, logger *zap.Logger) (*Engine, error) {
	if client == nil {
		return nil, errors.New("battlelog client is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(cfg.Seeds) == 0 {
		cfg.Seeds = DefaultSeeds
	}
	if cfg.Concurrency == 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid engine config: %w", err)
	}

	e := &Engine{
		cfg:     cfg,
		client:  client,
		logger:  logger,
		graph:   newGraph(cfg, logger),
		pending: make(map[uint64]pendingFetch, cfg.Concurrency),
		results: make(chan fetchResult, cfg.Concurrency),
	}
	e.publish()
	return e, nil
}

// Open checks the upstream and seeds the frontier. A failed health check
// closes the engine and is returned wrapped in ErrHealthCheck.
func (e *Engine) Open(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != StateIdle {
		return ErrAlreadyOpen
	}
	if err := e.client.CheckHealth(ctx); err != nil {
		e.state = StateClosed
		e.reason = ReasonHealthCheck
		e.publish()
		if errors.Is(err, ErrHealthCheck) {
			return err
		}
		return fmt.Errorf("%w: %w", ErrHealthCheck, err)
	}

	seeds := make([]PlayerTag, 0, len(e.cfg.Seeds))
	for _, s := range e.cfg.Seeds {
		seeds = append(seeds, NormalizeTag(s.String()))
	}
	e.graph.seed(seeds)
	e.session, e.endSession = context.WithCancel(context.WithoutCancel(ctx))
	e.state = StateRunning
	e.logger.Info("crawl session started",
		zap.Int("seeds", len(seeds)),
		zap.Int("concurrency", e.cfg.Concurrency),
		zap.Int("max_battlelogs", e.cfg.MaxBattlelogs),
		zap.Int("max_battles", e.cfg.MaxBattles),
	)
	e.publish()
	return nil
}

// Next returns the next batch. It returns iterator.Done once the session is
// closed. If ctx is cancelled the engine stops dispatching, returns ctx.Err()
// and discards in-flight results; a later Next or Close finishes the drain.
func (e *Engine) Next(ctx context.Context) (Batch, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch e.state {
	case StateIdle:
		return Batch{}, ErrNotOpen
	case StateClosed:
		return Batch{}, iterator.Done
	}

	for {
		if e.state == StateRunning {
			if reason, stop := e.stopReason(); stop {
				e.beginDrain(reason)
				continue
			}
			if len(e.pending) < e.cfg.Concurrency && e.graph.frontier.Len() > 0 {
				e.dispatch()
				continue
			}
			if len(e.pending) == 0 {
				e.beginDrain(ReasonExhausted)
				continue
			}
		}
		if e.state == StateDraining && len(e.pending) == 0 {
			e.finish()
			return Batch{}, iterator.Done
		}

		select {
		case <-ctx.Done():
			if e.state == StateRunning {
				e.beginDrain(ReasonCancelled)
			}
			return Batch{}, ctx.Err()
		case res := <-e.results:
			if batch, ok := e.complete(res); ok {
				return batch, nil
			}
		}
	}
}

// Close stops dispatching, waits for in-flight fetches and releases the
// session. If ctx ends first the remaining fetches are cancelled. Close is
// idempotent.
func (e *Engine) Close(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch e.state {
	case StateClosed:
		return nil
	case StateIdle:
		e.state = StateClosed
		e.reason = ReasonCancelled
		e.publish()
		return nil
	case StateRunning:
		e.beginDrain(ReasonCancelled)
	}

	for len(e.pending) > 0 {
		select {
		case <-ctx.Done():
			e.logger.Warn("abandoning in-flight fetches", zap.Int("inflight", len(e.pending)))
			e.finish()
			return ctx.Err()
		case res := <-e.results:
			e.complete(res)
		}
	}
	e.finish()
	return nil
}

// Stats returns the latest published snapshot.
func (e *Engine) Stats() Stats {
	if s := e.stats.Load(); s != nil {
		return *s
	}
	return Stats{StateName: StateIdle.String()}
}

func (e *Engine) stopReason() (string, bool) {
	if e.maintenance.Load() {
		return ReasonMaintenance, true
	}
	return e.limitReason()
}

func (e *Engine) limitReason() (string, bool) {
	switch {
	case e.cfg.MaxBattlelogs > 0 && e.playersProcessed >= e.cfg.MaxBattlelogs:
		return ReasonBattlelogLimit, true
	case e.cfg.MaxBattles > 0 && e.battlesEmitted >= e.cfg.MaxBattles:
		return ReasonBattleLimit, true
	default:
		return "", false
	}
}

func (e *Engine) beginDrain(reason string) {
	e.state = StateDraining
	e.reason = reason
	if reason == ReasonMaintenance {
		metrics.ObserveMaintenance()
		e.logger.Error("upstream maintenance detected, draining", zap.Int("inflight", len(e.pending)))
	} else {
		e.logger.Info("crawl draining", zap.String("reason", reason), zap.Int("inflight", len(e.pending)))
	}
	e.publish()
}

func (e *Engine) finish() {
	e.endSession()
	e.state = StateClosed
	e.logger.Info("crawl session closed",
		zap.String("reason", e.reason),
		zap.Int("players_processed", e.playersProcessed),
		zap.Int("battles_emitted", e.battlesEmitted),
		zap.Int("records_skipped", e.recordsSkipped),
	)
	e.publish()
}

func (e *Engine) dispatch() {
	tag, prio, _ := e.graph.frontier.Pop()
	e.nextID++
	id := e.nextID
	e.pending[id] = pendingFetch{tag: tag, priority: prio}
	e.graph.inflight[tag] = struct{}{}
	e.dispatched++
	metrics.SetInflight(len(e.pending))
	metrics.SetFrontierSize(e.graph.frontier.Len())
	e.logger.Debug("dispatching battlelog fetch", zap.Stringer("tag", tag), zap.Int("inflight", len(e.pending)))

	go func(ctx context.Context) {
		res := e.client.Battlelog(ctx, tag)
		if res.Outcome == OutcomeMaintenance {
			e.maintenance.Store(true)
		}
		e.results <- fetchResult{id: id, result: res}
	}(e.session)
	e.publish()
}

// complete applies one finished fetch. It reports a batch only when the
// result should reach the consumer.
func (e *Engine) complete(res fetchResult) (Batch, bool) {
	p := e.pending[res.id]
	delete(e.pending, res.id)
	delete(e.graph.inflight, p.tag)
	metrics.SetInflight(len(e.pending))
	metrics.ObserveBattlelog(res.result.Outcome.String(), res.result.Duration)
	defer e.publish()

	// A maintenance drain still yields results, but never past a limit.
	if e.state == StateDraining {
		_, overLimit := e.limitReason()
		if e.reason != ReasonMaintenance || overLimit {
			e.logger.Debug("discarding result while draining", zap.Stringer("tag", p.tag))
			return Batch{}, false
		}
	}

	switch res.result.Outcome {
	case OutcomeThrottled:
		e.throttled++
		e.graph.frontier.Upsert(p.tag, p.priority)
		return Batch{}, false
	case OutcomeMaintenance:
		e.graph.markRequested(p.tag)
		return Batch{}, false
	case OutcomeFailed:
		e.failed++
		e.graph.markRequested(p.tag)
		return Batch{}, false
	}

	battles := e.normalizeAll(p.tag, res.result.Records)
	if len(battles) == 0 {
		e.logger.Debug("empty battlelog", zap.Stringer("tag", p.tag))
		e.graph.markRequested(p.tag)
		return Batch{}, false
	}
	e.graph.apply(p.tag, battles)
	e.playersProcessed++
	e.battlesEmitted += len(battles)
	metrics.ObserveBatch(len(battles))
	metrics.SetFrontierSize(e.graph.frontier.Len())
	e.logger.Debug("battles found", zap.Stringer("tag", p.tag), zap.Int("battles", len(battles)))
	return Batch{Tag: p.tag, Priority: p.priority, Battles: battles}, true
}

func (e *Engine) normalizeAll(tag PlayerTag, records []RawBattle) []Battle {
	battles := make([]Battle, 0, len(records))
	for i, rec := range records {
		if mode, ok := rec.Mode(); ok && !mode.IsOneVOne() {
			continue
		}
		b, err := Normalize(rec)
		if err != nil {
			e.recordsSkipped++
			metrics.ObserveSkippedRecord()
			e.logger.Error("skipping invalid battle record",
				zap.Stringer("tag", tag),
				zap.Int("index", i),
				zap.Error(err),
			)
			continue
		}
		battles = append(battles, b)
	}
	return battles
}

func (e *Engine) publish() {
	e.stats.Store(&Stats{
		State:            e.state,
		StateName:        e.state.String(),
		Reason:           e.reason,
		Dispatched:       e.dispatched,
		PlayersProcessed: e.playersProcessed,
		BattlesEmitted:   e.battlesEmitted,
		RecordsSkipped:   e.recordsSkipped,
		Throttled:        e.throttled,
		Failed:           e.failed,
		Inflight:         len(e.pending),
		FrontierSize:     e.graph.frontier.Len(),
		Requested:        len(e.graph.requested),
	})
}
