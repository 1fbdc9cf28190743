package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"golang.org/x/sync/errgroup"

	"github.com/nextlevelbuilder/goclaw/internal/channels/discord"
	"github.com/nextlevelbuilder/goclaw/internal/channels/telegram"
	"github.com/nextlevelbuilder/goclaw/internal/clock"
	"github.com/nextlevelbuilder/goclaw/internal/config"
	gw "github.com/nextlevelbuilder/goclaw/internal/gateway"
	"github.com/nextlevelbuilder/goclaw/internal/gateway/methods"
	httpapi "github.com/nextlevelbuilder/goclaw/internal/http"
	"github.com/nextlevelbuilder/goclaw/internal/leaderlock"
	"github.com/nextlevelbuilder/goclaw/internal/reconcile"
	"github.com/nextlevelbuilder/goclaw/internal/registry"
	"github.com/nextlevelbuilder/goclaw/internal/scheduler"
	"github.com/nextlevelbuilder/goclaw/internal/store"
	"github.com/nextlevelbuilder/goclaw/internal/store/pg"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the scheduler, gateway, and HTTP control surface",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	watcher, err := config.Watch(configPath, func(reloaded *config.Config) {
		slog.Info("serve: config file reloaded", "bind_addr", reloaded.BindAddr)
	})
	if err != nil {
		return err
	}
	if watcher != nil {
		defer watcher.Close()
	}

	shutdownTracing, err := initTracing()
	if err != nil {
		return err
	}
	defer shutdownTracing(context.Background())

	pgStore, err := pg.Open(ctx, cfg.Database.DSN)
	if err != nil {
		return err
	}
	defer pgStore.Close()

	cachedStore, err := pg.NewCachedStore(pgStore)
	if err != nil {
		return err
	}
	var st store.Store = cachedStore

	reg := registry.New()

	// Supplemental channels (SPEC_FULL §3): senders for campaigns whose
	// Channel is discord/telegram instead of the default browser_dm
	// websocket. Each outbound account's recipient ID (Discord user ID /
	// Telegram chat ID) is its Handle; registering a RecipientPusher per
	// account lets dispatchCampaign's push step reach it by
	// OutboundAccountID the same way it reaches a websocket sender by ID.
	if token := os.Getenv("GOCLAW_DISCORD_TOKEN"); token != "" {
		discordSender, err := discord.New(token)
		if err != nil {
			return err
		}
		defer discordSender.Close()

		accounts, err := st.ListByChannel(ctx, store.ChannelDiscord)
		if err != nil {
			return err
		}
		for _, account := range accounts {
			reg.RegisterChannel(account.ID, discord.RecipientPusher{Sender: discordSender, UserID: account.Handle})
		}
		slog.Info("serve: discord channel enabled", "accounts", len(accounts))
	}
	if token := os.Getenv("GOCLAW_TELEGRAM_TOKEN"); token != "" {
		telegramSender, err := telegram.New(token)
		if err != nil {
			return err
		}

		accounts, err := st.ListByChannel(ctx, store.ChannelTelegram)
		if err != nil {
			return err
		}
		for _, account := range accounts {
			chatID, err := strconv.ParseInt(account.Handle, 10, 64)
			if err != nil {
				return fmt.Errorf("serve: outbound account %s has a non-numeric telegram handle %q: %w", account.ID, account.Handle, err)
			}
			reg.RegisterChannel(account.ID, telegram.RecipientPusher{Sender: telegramSender, ChatID: chatID})
		}
		slog.Info("serve: telegram channel enabled", "accounts", len(accounts))
	}

	sched := scheduler.New(st, reg, clock.System{})
	rec := reconcile.New(st, st, st, st, st, reg)
	senderMethods := methods.New(st, st, rec, reg)

	router := gw.NewMethodRouter()
	senderMethods.Register(router)
	gwServer := gw.NewServer(router, reg)

	mux := http.NewServeMux()
	mux.Handle("GET /v1/gateway", gwServer)
	httpapi.NewCampaignsHandler(st, os.Getenv("GOCLAW_API_TOKEN")).RegisterRoutes(mux)

	httpServer := &http.Server{Addr: cfg.BindAddr, Handler: mux}

	group, gctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		<-gctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutCtx)
	})
	group.Go(func() error {
		slog.Info("serve: http listening", "addr", cfg.BindAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	group.Go(func() error {
		runScheduler(gctx, cfg, sched)
		return nil
	})

	return group.Wait()
}

// runScheduler ticks sched for as long as this process holds (or doesn't
// need) the Redis leader lock. With no Redis URL configured, every
// process ticks unconditionally — the single-process cooperative design
// spec.md §5 describes as the default.
func runScheduler(ctx context.Context, cfg *config.Config, sched *scheduler.Scheduler) {
	period := cfg.Scheduler.TickPeriod
	if period <= 0 {
		period = scheduler.TickPeriod
	}

	var lock *leaderlock.Lock
	if cfg.Redis.URL != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.Redis.URL})
		lock = leaderlock.New(client, cfg.Redis.LockKeyPrefix, uuid.NewString())
	}

	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if lock != nil {
				leading, err := lock.TryAcquire(ctx)
				if err != nil {
					slog.Error("serve: leader lock error", "err", err)
					continue
				}
				if !leading {
					continue
				}
			}
			sched.Tick(ctx)
		}
	}
}

func initTracing() (func(context.Context) error, error) {
	tp := sdktrace.NewTracerProvider()
	otel.SetTracerProvider(tp)
	return tp.Shutdown, nil
}
