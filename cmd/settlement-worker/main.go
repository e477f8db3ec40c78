package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/radieske/sports-wager-engine/internal/feed"
	"github.com/radieske/sports-wager-engine/internal/settlement"
	"github.com/radieske/sports-wager-engine/internal/settlement/consumer"
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
)

func main() {
	cfg := config.Load()
	log, err := logger.New(cfg.ServiceName, cfg.Env, cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	// Inicializa dependências: Postgres e Redis
	pg, err := db.ConnectPostgres(cfg.PostgresDSN)
	if err != nil {
		log.Fatal("postgres connect", zap.Error(err))
	}
	defer pg.Close()

	redisClient, err := cache.ConnectRedis(cfg.RedisAddr)
	if err != nil {
		log.Fatal("redis connect", zap.Error(err))
	}
	defer redisClient.Close()

	// Consumer de outcomes (consumer group settlement-worker) e DLQ
	reader := kafka.NewReader(cfg.KafkaBrokers, cfg.TopicLegOutcomes, "settlement-worker")
	defer reader.Close()
	dlq := kafka.NewWriter(cfg.KafkaBrokers, cfg.TopicLegOutcomesDLQ)
	defer dlq.Close()
	gradedW := kafka.NewWriter(cfg.KafkaBrokers, cfg.TopicWagerGraded)
	defer gradedW.Close()

	col := metrics.NewCollectors(nil)

	// wager_created não é publicado aqui
	pub := producer.New(nil, gradedW, feed.NewRedisBroadcaster(redisClient, cfg.RedisFeedChannel), log)

	eng := settlement.New(settlement.Config{
		StoreTimeout: cfg.StoreTimeout,
		LockTTL:      cfg.GradeLockTTL,
	}, repo.NewPostgres(pg, cfg.StoreTimeout), lock.NewRedis(redisClient), pub, log)
	eng.Hooks = settlement.Hooks{
		OnGraded:   func(s wager.Status) { col.Graded.WithLabelValues(string(s)).Inc() },
		OnNoop:     func() { col.GradeNoops.Inc() },
		OnConflict: func() { col.GradeConflicts.Inc() },
		OnError:    func(stage string) { col.SettlementErrors.WithLabelValues(stage).Inc() },
	}

	proc := &consumer.Processor{
		Log:        log,
		Reader:     reader,
		Grader:     eng,
		DLQ:        dlq,
		Retries:    cfg.GradeRetries,
		Backoff:    200 * time.Millisecond,
		OnConsumed: func() { col.Consumed.Inc() },
		OnDLQ:      func(reason string) { col.DLQ.WithLabelValues(reason).Inc() },
		OnError:    func(stage string) { col.SettlementErrors.WithLabelValues(stage).Inc() },
	}

	// Servidor HTTP para métricas e health check
	metricsSrv := metrics.StartMetricsServer(cfg.MetricsPort, func(ctx context.Context) error {
		if err := pg.PingContext(ctx); err != nil {
			return fmt.Errorf("postgres: %w", err)
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

	log.Info("settlement-worker started", zap.String("topic", cfg.TopicLegOutcomes))
	if err := proc.Run(ctx); err != nil && ctx.Err() == nil {
		log.Error("processor stopped with error", zap.Error(err))
	}

	sctx, scancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer scancel()
	_ = metricsSrv.Shutdown(sctx)
	log.Info("settlement-worker stopped")
}
