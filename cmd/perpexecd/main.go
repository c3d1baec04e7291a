// Command perpexecd is the demo process that wires the executor core
// together behind the in-memory paper exchange adapter: it boots the
// Position Store, hydrates open positions, starts the Monitor Loop, and
// serves /healthz and /metrics. It is not a production venue integration —
// a real deployment supplies its own exchange.Adapter and its own
// webhook/HTTP front end that calls into internal/router.
//
// Boot sequence mirrors the teacher's main.go: load config, wire
// components, start the HTTP server, run until signaled, shut down the
// scheduler before the HTTP server per §5's drain ordering.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/chidi150c/perpexec/internal/config"
	"github.com/chidi150c/perpexec/internal/exchange"
	"github.com/chidi150c/perpexec/internal/exchange/paper"
	"github.com/chidi150c/perpexec/internal/logging"
	"github.com/chidi150c/perpexec/internal/monitor"
	"github.com/chidi150c/perpexec/internal/position"
	"github.com/chidi150c/perpexec/internal/pricecache"
	"github.com/chidi150c/perpexec/internal/reporting"
	"github.com/chidi150c/perpexec/internal/risk"
	"github.com/chidi150c/perpexec/internal/router"
	"github.com/chidi150c/perpexec/internal/sizer"
	"github.com/chidi150c/perpexec/internal/store"
	"github.com/chidi150c/perpexec/internal/types"
)

func main() {
	cfg := config.FromEnv()

	rootLog := logging.New(logging.Config{Level: cfg.LogLevel, Pretty: cfg.LogPretty})
	log := logging.Component(rootLog, "perpexecd")

	st, err := store.Open(cfg.DatabasePath)
	if err != nil {
		log.Fatal().Err(err).Msg("open position store")
	}
	defer st.Close()

	defaultSpec := types.Instrument{
		ContractSize:   cfg.DefaultContractSize,
		PricePrecision: 2,
		SizePrecision:  0,
		MinSize:        cfg.DefaultMinSize,
	}
	adapter := paper.New(defaultSpec)

	mgr := position.New(adapter, st, logging.Component(rootLog, "position"))
	mgr.AdapterTimeout = cfg.AdapterTimeout
	mgr.SizerOptions = sizer.Options{RoundUpToMinSize: cfg.RoundUpToMinSize}
	mgr.RiskParams = risk.Params{
		MaxPriceAge:     cfg.MaxPriceAge,
		MaxHoldDuration: cfg.MaxHoldDuration,
		TrailingArmPct:  cfg.TrailingArmPct,
	}
	mgr.EntryPriceCapEnabled = cfg.EntryPriceCapEnabled

	bootCtx, bootCancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := mgr.LoadOpen(bootCtx); err != nil {
		bootCancel()
		log.Fatal().Err(err).Msg("load open positions")
	}
	bootCancel()

	limits := router.Limits{
		Whitelist:              cfg.Whitelist,
		CooldownAfterClose:     cfg.CooldownAfterClose,
		MaxTradesPerDay:        cfg.MaxTradesPerDay,
		MaxDailyLossQuote:      cfg.MaxDailyLossQuote,
		MaxConcurrentPositions: cfg.MaxConcurrentPositions,
	}
	rtr := router.New(mgr, st, logging.Component(rootLog, "router"), limits)

	prices := pricecache.New()
	reporter := reporting.New(mgr, prices, st)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	subCtx, subCancel := context.WithTimeout(ctx, cfg.AdapterTimeout)
	cancelSub, err := adapter.SubscribeMarkPrice(subCtx, cfg.Whitelist, func(u exchange.PriceUpdate) {
		prices.Update(u.Symbol, u.Price, u.TS)
	})
	subCancel()
	if err != nil {
		log.Warn().Err(err).Msg("subscribe mark price")
	}
	defer cancelSub()

	loop := monitor.New(mgr, prices, logging.Component(rootLog, "monitor"), monitor.Config{
		Interval:       cfg.MonitorInterval,
		MaxPriceAge:    cfg.MaxPriceAge,
		MaxConcurrency: cfg.MonitorConcurrency,
	})
	if err := loop.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("start monitor loop")
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok\n"))
	})
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		snap, err := reporter.Status(r.Context(), 50)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		fmt.Fprintf(w, "open_positions=%d realized_today=%s closed_today=%d\n",
			len(snap.OpenPositions), snap.Today.RealizedPnL.String(), snap.Today.ClosedCount)
	})

	srv := &http.Server{Addr: fmt.Sprintf(":%d", cfg.HTTPPort), Handler: mux}
	go func() {
		log.Info().Int("port", cfg.HTTPPort).Msg("serving /healthz, /metrics, /status")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http server")
		}
	}()

	_ = rtr // the router is the entrypoint a front-end process calls into;
	// this demo binary does not itself expose a signal-intake endpoint.

	<-ctx.Done()
	log.Info().Msg("shutdown signal received, draining")

	loop.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http server shutdown")
	}
}
