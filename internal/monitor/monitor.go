// Package monitor implements the Monitor Loop (§4.7): a periodic tick that
// feeds the latest cached price for every open-position symbol into the
// Position Manager. Scheduling is grounded on
// aristath-sentinel/trader-go/internal/scheduler/scheduler.go's use of
// robfig/cron's "@every" syntax, wrapped in cron.SkipIfStillRunning so that
// ticks are single-flight (a tick that fires while the previous one is still
// running is skipped) instead of a hand-rolled ticker/mutex pair. Per-symbol fan-out within one tick is bounded by
// golang.org/x/sync/errgroup, following the same bounded-concurrency idiom
// used for multi-feed work in the pack's alanyoungcy-polymarketbot.
package monitor

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/chidi150c/perpexec/internal/position"
	"github.com/chidi150c/perpexec/internal/pricecache"
)

// Config controls the loop's cadence and fan-out bound.
type Config struct {
	Interval       time.Duration // default 5s, §4.7
	MaxPriceAge    time.Duration // default 30s, matches risk.Params.MaxPriceAge
	MaxConcurrency int           // bound on simultaneous per-symbol ApplyTick calls, default 8
}

// Loop is the Monitor Loop.
type Loop struct {
	manager *position.Manager
	prices  *pricecache.Cache
	log     zerolog.Logger
	cfg     Config

	cron    *cron.Cron
	entryID cron.EntryID
}

// New builds a Loop. Call Start to begin ticking.
func New(manager *position.Manager, prices *pricecache.Cache, log zerolog.Logger, cfg Config) *Loop {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Second
	}
	if cfg.MaxPriceAge <= 0 {
		cfg.MaxPriceAge = 30 * time.Second
	}
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = 8
	}
	return &Loop{
		manager: manager,
		prices:  prices,
		log:     log,
		cfg:     cfg,
		cron:    cron.New(cron.WithSeconds(), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
	}
}

// Start schedules the recurring tick and begins running it in the
// background. ctx bounds the lifetime of every tick's adapter calls, not
// the schedule itself; call Stop to end the schedule.
func (l *Loop) Start(ctx context.Context) error {
	spec := "@every " + l.cfg.Interval.String()
	id, err := l.cron.AddFunc(spec, func() { l.tick(ctx) })
	if err != nil {
		return err
	}
	l.entryID = id
	l.cron.Start()
	return nil
}

// Stop halts the schedule and waits for any in-flight tick to finish,
// matching §5's shutdown ordering (stop the scheduler before draining
// in-flight operations).
func (l *Loop) Stop() {
	stopCtx := l.cron.Stop()
	<-stopCtx.Done()
}

// tick runs one round: snapshot the open symbols, fan out a bounded set of
// ApplyTick calls, log failures without aborting the round.
func (l *Loop) tick(ctx context.Context) {
	symbols := l.manager.OpenSymbols()
	if len(symbols) == 0 {
		return
	}

	now := time.Now().UTC()
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.cfg.MaxConcurrency)

	for _, symbol := range symbols {
		symbol := symbol
		g.Go(func() error {
			quote, ok := l.prices.Fresh(symbol, now, l.cfg.MaxPriceAge)
			if !ok {
				l.log.Debug().Str("symbol", symbol).Msg("monitor: no fresh price, skipping tick")
				return nil
			}
			age := now.Sub(quote.At)
			if err := l.manager.ApplyTick(gctx, symbol, quote.Price, age, now); err != nil {
				l.log.Error().Err(err).Str("symbol", symbol).Msg("monitor: apply tick failed")
			}
			return nil
		})
	}
	_ = g.Wait()
}
