package app

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/avask/arbot/internal/config"
	"github.com/avask/arbot/internal/crypto"
	"github.com/avask/arbot/internal/detector"
	"github.com/avask/arbot/internal/domain"
	"github.com/avask/arbot/internal/executor"
	"github.com/avask/arbot/internal/feed"
	"github.com/avask/arbot/internal/market"
	"github.com/avask/arbot/internal/risk"
	"github.com/avask/arbot/internal/server"
	"github.com/avask/arbot/internal/server/handler"
	"github.com/avask/arbot/internal/server/ws"
	"github.com/avask/arbot/internal/settlement"
)

const (
	// eventBuffer sizes the persistence/broadcast hand-off channels. When a
	// drain stalls, the detection path evicts the oldest buffered event
	// rather than block.
	eventBuffer = 256

	// paperFloat funds the in-process ledger for paper trading.
	paperFloat = 1_000_000.0

	// ledgerOwner is the administrator identity for the paper ledger.
	ledgerOwner = "operator"
)

// pipeline bundles the runtime components shared by all run modes.
type pipeline struct {
	markets      *market.Store
	feeds        []*feed.VenueFeed
	orchestrator *executor.Orchestrator
	oppCh        chan domain.Opportunity
	execCh       chan domain.TradeExecution
}

// MonitorMode runs feeds and detection only; nothing is ever executed.
func (a *App) MonitorMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting monitor mode")
	return a.runPipeline(ctx, deps, false)
}

// ArbitrageMode runs the full detect-and-execute loop.
func (a *App) ArbitrageMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting arbitrage mode")
	return a.runPipeline(ctx, deps, true)
}

// FullMode runs arbitrage plus the trade archiver when object storage is
// configured.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")
	return a.runPipeline(ctx, deps, true)
}

// runPipeline builds the pipeline and runs every goroutine of the selected
// mode under one errgroup: venue feeds, the orchestrator, the event drains,
// the WebSocket hub, the API server, and (full mode) the archiver.
func (a *App) runPipeline(ctx context.Context, deps *Dependencies, execEnabled bool) error {
	p, err := a.buildPipeline(ctx, deps, execEnabled)
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)

	for _, f := range p.feeds {
		g.Go(func() error { return f.Run(ctx) })
	}

	g.Go(func() error { return p.orchestrator.Run(ctx) })
	g.Go(func() error { return a.drainOpportunities(ctx, deps, p.oppCh) })
	g.Go(func() error { return a.drainExecutions(ctx, deps, p.execCh) })

	hub := ws.NewHub(deps.SignalBus, a.cfg.Mode, a.logger)
	g.Go(func() error { return hub.Run(ctx) })

	if execEnabled && deps.Archiver != nil {
		g.Go(func() error { return deps.Archiver.Run(ctx) })
	}

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
	}, server.Handlers{
		Health: handler.NewHealthHandler(a.cfg.Mode),
		Query:  handler.NewQueryHandler(deps.Opportunities, deps.Executions, p.markets, a.logger),
		Config: handler.NewConfigHandler(p.orchestrator, a.logger),
	}, hub, a.logger)

	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return ctx.Err()
	})

	return g.Wait()
}

// buildPipeline assembles the market store, detector, orchestrator, and
// venue feeds. Detection events are handed off through buffered channels so
// the per-pair critical section never performs I/O.
func (a *App) buildPipeline(ctx context.Context, deps *Dependencies, execEnabled bool) (*pipeline, error) {
	cfg := a.cfg

	markets := market.NewStore(cfg.Detector.StalenessWindow())

	riskMgr := risk.NewManager(risk.Limits{
		MaxTradeAmount: cfg.Risk.MaxTradeAmount,
		MaxDailyLoss:   cfg.Risk.MaxDailyLoss,
		MaxTradeCount:  cfg.Risk.MaxTradeCount,
	}, a.logger)

	settler, err := a.buildSettler(ctx)
	if err != nil {
		return nil, err
	}

	oppCh := make(chan domain.Opportunity, eventBuffer)
	execCh := make(chan domain.TradeExecution, eventBuffer)

	orch := executor.New(executor.Config{
		Token:          settleToken(cfg),
		Routers:        routerMap(cfg),
		AutoExecute:    execEnabled && cfg.Executor.AutoExecute,
		QueueSize:      cfg.Executor.QueueSize,
		SubmitTimeout:  cfg.Executor.SubmitTimeout(),
		ConfirmTimeout: cfg.Executor.ConfirmTimeout(),
		PollInterval:   cfg.Executor.PollInterval(),
	}, settler, riskMgr, func(exec domain.TradeExecution) {
		if !offerLatest(execCh, exec) {
			a.logger.Warn("execution drain full, evicted oldest event", slog.String("id", exec.ID))
		}
	}, a.logger)

	feeBps := make(map[string]float64, len(cfg.Venues))
	for _, v := range cfg.Venues {
		feeBps[v.Name] = v.TakerFeeBps
	}

	det := detector.New(detector.Config{
		MinThresholdBps: cfg.Detector.MinThresholdBps,
		Notional:        cfg.Detector.Notional,
		GasEstimateUSD:  cfg.Detector.GasEstimateUSD,
		PriceBucket:     cfg.Detector.PriceBucket,
		DedupWindow:     cfg.Detector.DedupWindow(),
	}, feeBps, func(opp domain.Opportunity) {
		if !offerLatest(oppCh, opp) {
			a.logger.Warn("opportunity drain full, evicted oldest event", slog.String("fingerprint", opp.Fingerprint))
		}
		orch.Submit(opp)
	}, a.logger)

	norm := feed.NewNormalizer(markets, cfg.Detector.MaxQuoteSpreadBps, det.Scan,
		func(ctx context.Context, quote domain.PriceQuote) {
			if deps.QuoteCache != nil {
				if err := deps.QuoteCache.SetQuote(ctx, quote); err != nil {
					a.logger.WarnContext(ctx, "quote cache write failed", slog.String("error", err.Error()))
				}
			}
			a.publish(ctx, deps.SignalBus, domain.ChannelMarket, domain.EventMarketUpdate, quote)
		}, a.logger)

	feeds := make([]*feed.VenueFeed, 0, len(cfg.Venues))
	for _, v := range cfg.Venues {
		feeds = append(feeds, feed.NewVenueFeed(v.Name, v.WsURL, v.Pairs, norm, a.logger))
	}

	return &pipeline{
		markets:      markets,
		feeds:        feeds,
		orchestrator: orch,
		oppCh:        oppCh,
		execCh:       execCh,
	}, nil
}

// buildSettler selects on-chain settlement when an RPC endpoint is
// configured and the in-process paper ledger otherwise.
func (a *App) buildSettler(ctx context.Context) (settlement.Settler, error) {
	cfg := a.cfg

	if cfg.Chain.RPCURL != "" {
		key, err := crypto.LoadKey(crypto.KeyConfig{
			RawPrivateKey:    cfg.Chain.PrivateKey,
			EncryptedKeyPath: cfg.Chain.EncryptedKeyPath,
			KeyPassword:      cfg.Chain.KeyPassword,
		})
		if err != nil {
			return nil, err
		}
		return settlement.NewEVMSettler(ctx, cfg.Chain.RPCURL, cfg.Chain.ContractAddress,
			key, cfg.Chain.ChainID, cfg.Chain.GasLimit)
	}

	ledger := settlement.NewLedger(ledgerOwner, a.logger)
	ledger.Deposit(settleToken(cfg), paperFloat)
	for _, v := range cfg.Venues {
		addr := venueRouter(v)
		ledger.RegisterRouter(addr, settlement.NewPaperRouter(v.Name))
		if err := ledger.SetRouterApproval(ledgerOwner, addr, true); err != nil {
			return nil, err
		}
	}
	return settlement.NewLedgerSettler(ledger, ledgerOwner), nil
}

// drainOpportunities persists and broadcasts detected opportunities.
func (a *App) drainOpportunities(ctx context.Context, deps *Dependencies, ch <-chan domain.Opportunity) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case opp := <-ch:
			if err := deps.Opportunities.Insert(ctx, opp); err != nil {
				a.logger.WarnContext(ctx, "opportunity insert failed", slog.String("error", err.Error()))
			}
			a.publish(ctx, deps.SignalBus, domain.ChannelOpportunities, domain.EventOpportunity, opp)
		}
	}
}

// drainExecutions persists and broadcasts execution transitions, and pushes
// notifications when a settlement reaches a terminal state.
func (a *App) drainExecutions(ctx context.Context, deps *Dependencies, ch <-chan domain.TradeExecution) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case exec := <-ch:
			var err error
			if exec.Status == domain.ExecQueued {
				err = deps.Executions.Insert(ctx, exec)
			} else {
				err = deps.Executions.Update(ctx, exec)
				if errors.Is(err, domain.ErrNotFound) {
					err = deps.Executions.Insert(ctx, exec)
				}
			}
			if err != nil {
				a.logger.WarnContext(ctx, "execution persist failed",
					slog.String("id", exec.ID),
					slog.String("error", err.Error()),
				)
			}
			a.publish(ctx, deps.SignalBus, domain.ChannelExecutions, domain.EventExecution, exec)

			if exec.Status.Terminal() && deps.Notifier != nil {
				if err := deps.Notifier.ExecutionSettled(ctx, exec); err != nil {
					a.logger.WarnContext(ctx, "notification failed", slog.String("error", err.Error()))
				}
			}
		}
	}
}

// offerLatest enqueues v without blocking, evicting the oldest buffered
// element when the channel is full so a stalled drain sees fresh events.
// Returns true when v was enqueued without eviction.
func offerLatest[T any](ch chan T, v T) bool {
	select {
	case ch <- v:
		return true
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- v:
	default:
	}
	return false
}

// publish wraps data in an event envelope and publishes it to the bus.
func (a *App) publish(ctx context.Context, bus domain.SignalBus, channel, eventType string, data any) {
	ev, err := domain.NewEvent(eventType, data)
	if err != nil {
		a.logger.WarnContext(ctx, "event encode failed", slog.String("type", eventType))
		return
	}
	raw, err := ev.Encode()
	if err != nil {
		return
	}
	if err := bus.Publish(ctx, channel, raw); err != nil {
		a.logger.WarnContext(ctx, "event publish failed",
			slog.String("channel", channel),
			slog.String("error", err.Error()),
		)
	}
}

// settleToken returns the settlement token identity: the on-chain token
// address when configured, a symbolic name for the paper ledger otherwise.
func settleToken(cfg *config.Config) string {
	if cfg.Chain.TokenAddress != "" {
		return cfg.Chain.TokenAddress
	}
	return "USDC"
}

// venueRouter returns the router address for a venue, synthesizing one for
// paper trading when none is configured.
func venueRouter(v config.VenueConfig) string {
	if v.Router != "" {
		return v.Router
	}
	return "paper:" + v.Name
}

// routerMap builds the venue-to-router mapping for the orchestrator.
func routerMap(cfg *config.Config) map[string]string {
	m := make(map[string]string, len(cfg.Venues))
	for _, v := range cfg.Venues {
		m[v.Name] = venueRouter(v)
	}
	return m
}
