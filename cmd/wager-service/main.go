package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/radieske/sports-wager-engine/internal/catalog"
	catcache "github.com/radieske/sports-wager-engine/internal/catalog/cache"
	catrepo "github.com/radieske/sports-wager-engine/internal/catalog/repo"
	"github.com/radieske/sports-wager-engine/internal/feed"
	"github.com/radieske/sports-wager-engine/internal/ratelimit"
	"github.com/radieske/sports-wager-engine/internal/settlement"
	settlementhttp "github.com/radieske/sports-wager-engine/internal/settlement/http"
	"github.com/radieske/sports-wager-engine/internal/settlement/lock"
	"github.com/radieske/sports-wager-engine/internal/shared/cache"
	"github.com/radieske/sports-wager-engine/internal/shared/config"
	"github.com/radieske/sports-wager-engine/internal/shared/db"
	"github.com/radieske/sports-wager-engine/internal/shared/kafka"
	"github.com/radieske/sports-wager-engine/internal/shared/logger"
	"github.com/radieske/sports-wager-engine/internal/shared/metrics"
	"github.com/radieske/sports-wager-engine/internal/wager"
	"github.com/radieske/sports-wager-engine/internal/wager/producer"
	"github.com/radieske/sports-wager-engine/internal/wager/repo"
	"github.com/radieske/sports-wager-engine/internal/workflow"
	workflowhttp "github.com/radieske/sports-wager-engine/internal/workflow/http"
)

func main() {
	// carrega config
	cfg := config.Load()

	// inicia logger
	log, err := logger.New(cfg.ServiceName, cfg.Env, cfg.LogLevel)
	if err != nil {
		panic(fmt.Errorf("logger init: %w", err))
	}
	defer log.Sync()

	log.Info("starting service", zap.String("service", cfg.ServiceName), zap.String("env", cfg.Env))

	// catálogo de opções do fluxo (TOML opcional)
	catCfg, err := catalog.LoadFile(cfg.CatalogFile)
	if err != nil {
		log.Fatal("failed to load catalog", zap.Error(err))
	}

	redisClient, err := cache.ConnectRedis(cfg.RedisAddr)
	if err != nil {
		log.Fatal("failed to connect redis", zap.Error(err))
	}
	defer redisClient.Close()
	log.Info("redis connected")

	// store: Postgres em produção, memória para rodar local sem banco
	var (
		store wager.Store
		games catalog.GameSource
		pg    *sql.DB
	)
	switch cfg.StoreDriver {
	case "memory":
		store = repo.NewMemory()
		log.Warn("using in-memory wager store; game lookup disabled")
	default:
		pg, err = db.ConnectPostgres(cfg.PostgresDSN)
		if err != nil {
			log.Fatal("failed to connect postgres", zap.Error(err))
		}
		defer pg.Close()
		log.Info("postgres connected")

		store = repo.NewPostgres(pg, cfg.StoreTimeout)
		games = catcache.NewGames(redisClient, catrepo.NewGames(pg, cfg.StoreTimeout), cfg.GameCacheTTL, log)
	}
	cat := catalog.New(catCfg, games, log)

	// producers Kafka + feed em tempo real via Redis Pub/Sub
	createdW := kafka.NewWriter(cfg.KafkaBrokers, cfg.TopicWagerCreated)
	defer createdW.Close()
	gradedW := kafka.NewWriter(cfg.KafkaBrokers, cfg.TopicWagerGraded)
	defer gradedW.Close()
	pub := producer.New(createdW, gradedW, feed.NewRedisBroadcaster(redisClient, cfg.RedisFeedChannel), log)

	col := metrics.NewCollectors(nil)

	// rate limit por capper
	limiter := ratelimit.New(ratelimit.NewStore(), map[string]ratelimit.Rule{
		ratelimit.ClassWagerConstruction: {Max: cfg.RateWagerMax, Window: cfg.RateWagerWindow},
	}, log)
	limiter.OnDenied = func(class string) { col.RateDenials.WithLabelValues(class).Inc() }

	// engine do fluxo
	wf := workflow.New(workflow.Config{
		IdleTimeout:  cfg.SessionIdle,
		TombstoneTTL: cfg.SessionTombstone,
		StoreTimeout: cfg.StoreTimeout,
		MaxLegs:      cfg.MaxLegs,
	}, workflow.NewSessions(), limiter, cat, store, pub, log)
	wf.Hooks = workflow.Hooks{
		OnTransition:      func(from, to workflow.Step) { col.Transitions.WithLabelValues(from.String(), to.String()).Inc() },
		OnRejected:        func(reason string) { col.Rejections.WithLabelValues(reason).Inc() },
		OnCreated:         func(kind wager.Kind) { col.WagersCreated.WithLabelValues(kind.String()).Inc() },
		OnSessionsChanged: func(active int) { col.ActiveSessions.Set(float64(active)) },
	}

	// settlement manual (admin) no mesmo processo; lock Redis coordena com o worker
	se := settlement.New(settlement.Config{
		StoreTimeout: cfg.StoreTimeout,
		LockTTL:      cfg.GradeLockTTL,
	}, store, lock.NewRedis(redisClient), pub, log)
	se.Hooks = settlementHooks(col)

	hub := feed.NewHub(nil)

	// API pública
	root := chi.NewRouter()
	root.Use(middleware.RequestID, middleware.Recoverer)
	root.Mount("/workflow", (&workflowhttp.API{Engine: wf, Limiter: limiter, Log: log}).Router())
	root.Mount("/settlement", settlementhttp.NewServer(log, se).Router())
	root.Get("/ws", hub.HandleWS)

	apiSrv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           root,
		ReadHeaderTimeout: 5 * time.Second,
	}

	metricsSrv := metrics.StartMetricsServer(cfg.MetricsPort, func(ctx context.Context) error {
		if pg != nil {
			if err := pg.PingContext(ctx); err != nil {
				return fmt.Errorf("postgres: %w", err)
			}
		}
		if err := redisClient.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		return nil
	})
	log.Info("metrics/health listening", zap.String("addr", metricsSrv.Addr))

	// Sinalização para shutdown gracioso (SIGINT/SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	feed.StartRedisSubscriber(ctx, redisClient, cfg.RedisFeedChannel, hub, log)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		limiter.Run(gctx, cfg.RateSweep)
		return nil
	})
	g.Go(func() error {
		wf.Run(gctx, cfg.SessionSweep)
		return nil
	})
	g.Go(func() error {
		log.Info("http listening", zap.String("addr", apiSrv.Addr))
		if err := apiSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, scancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer scancel()
		_ = metricsSrv.Shutdown(sctx)
		return apiSrv.Shutdown(sctx)
	})

	if err := g.Wait(); err != nil {
		log.Error("service stopped with error", zap.Error(err))
		return
	}
	log.Info("service stopped")
}

func settlementHooks(col *metrics.Collectors) settlement.Hooks {
	return settlement.Hooks{
		OnGraded:   func(s wager.Status) { col.Graded.WithLabelValues(string(s)).Inc() },
		OnNoop:     func() { col.GradeNoops.Inc() },
		OnConflict: func() { col.GradeConflicts.Inc() },
		OnError:    func(stage string) { col.SettlementErrors.WithLabelValues(stage).Inc() },
	}
}
