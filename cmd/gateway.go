package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dongshu2013/the-agent-bot/internal/agentapi"
	"github.com/dongshu2013/the-agent-bot/internal/batcher"
	"github.com/dongshu2013/the-agent-bot/internal/bus"
	"github.com/dongshu2013/the-agent-bot/internal/channels"
	"github.com/dongshu2013/the-agent-bot/internal/channels/telegram"
	"github.com/dongshu2013/the-agent-bot/internal/config"
	httpapi "github.com/dongshu2013/the-agent-bot/internal/http"
	"github.com/dongshu2013/the-agent-bot/internal/tracing"
)

const shutdownTimeout = 30 * time.Second

func msDuration(v int) time.Duration { return time.Duration(v) * time.Millisecond }

func batcherConfig(cfg *config.Config) batcher.Config {
	return batcher.Config{
		PollInterval:    cfg.Batcher.PollInterval(),
		VolumeThreshold: cfg.Batcher.VolumeThreshold,
		QuietThreshold:  cfg.Batcher.QuietThreshold(),
		IdleEvictAfter:  cfg.Batcher.IdleEvictAfter(),
		ReplyTimeout:    cfg.ReplyService.Timeout(),
	}
}

func newAgentClient(cfg *config.Config) *agentapi.Client {
	return agentapi.New(agentapi.Config{
		BaseURL: cfg.ReplyService.BaseURL,
		APIKey:  cfg.ReplyService.APIKey,
		AgentID: cfg.ReplyService.AgentID,
		Timeout: cfg.ReplyService.Timeout(),
	})
}

func runGateway() error {
	setupLogging()

	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		slog.Error("failed to load config", "error", err)
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Setup(ctx, cfg.Telemetry, Version)
	if err != nil {
		slog.Warn("tracing disabled", "error", err)
		shutdownTracing = func(context.Context) error { return nil }
	}

	if cfg.IsManagedMode() {
		if err := ensureSchema(ctx, cfg); err != nil {
			slog.Error("database schema not ready", "error", err)
			return err
		}
	}

	stores, err := openStores(ctx, cfg)
	if err != nil {
		slog.Error("failed to open stores", "error", err)
		return err
	}
	// Runs last: every timer is stopped before connections close.
	defer stores.Close()

	client := newAgentClient(cfg)
	msgBus := bus.New()

	var opts []batcher.Option
	if stores.Locker != nil {
		opts = append(opts, batcher.WithLocker(stores.Locker))
	}
	sched := batcher.New(batcherConfig(cfg), stores.Queue, stores.Status, client,
		bus.NewDeliverer(msgBus, telegram.ChannelName), opts...)

	// Timers outlive the signal context so Stop can let in-flight dispatches finish.
	if err := sched.Start(context.WithoutCancel(ctx)); err != nil {
		slog.Warn("startup recovery incomplete", "error", err)
	}

	channelMgr := channels.NewManager(msgBus)
	if cfg.Channels.Telegram.Enabled {
		tg, err := telegram.New(cfg.Channels.Telegram, msgBus, client)
		if err != nil {
			sched.Stop()
			slog.Error("failed to create telegram channel", "error", err)
			return err
		}
		channelMgr.RegisterChannel(telegram.ChannelName, tg)
	}

	consumeCtx, stopConsumer := context.WithCancel(context.Background())
	consumerDone := make(chan struct{})
	go func() {
		defer close(consumerDone)
		consumeInboundMessages(consumeCtx, msgBus, sched)
	}()

	g, gctx := errgroup.WithContext(ctx)
	if cfg.Gateway.HTTPAddr != "" {
		mux := http.NewServeMux()
		httpapi.NewOpsHandler(stores.Queue, stores.Status, sched, channelMgr, cfg.Gateway.Token).RegisterRoutes(mux)
		srv := &http.Server{
			Addr:              cfg.Gateway.HTTPAddr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		}
		g.Go(func() error {
			slog.Info("ops http listening", "addr", cfg.Gateway.HTTPAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	if err := channelMgr.StartAll(ctx); err != nil {
		slog.Error("failed to start channels", "error", err)
		stop()
	} else {
		slog.Info("agentbot gateway running",
			"version", Version,
			"managed", cfg.IsManagedMode(),
			"agent_id", cfg.ReplyService.AgentID,
		)
	}

	<-gctx.Done()
	runErr := g.Wait()
	slog.Info("graceful shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	// Timers stop first so in-flight replies still reach the channels. Messages
	// arriving after this are stored and re-armed by recovery on next start.
	sched.Stop()

	_ = channelMgr.StopAll(shutdownCtx)
	stopConsumer()
	<-consumerDone
	for _, msg := range msgBus.DrainInbound() {
		enqueueInbound(shutdownCtx, msgBus, sched, msg)
	}

	if err := shutdownTracing(shutdownCtx); err != nil {
		slog.Warn("tracing shutdown failed", "error", err)
	}

	slog.Info("gateway stopped")
	return runErr
}
