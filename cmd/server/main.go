package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/iliyamo/concert-reservation/internal/clock"
	"github.com/iliyamo/concert-reservation/internal/config"
	"github.com/iliyamo/concert-reservation/internal/database"
	"github.com/iliyamo/concert-reservation/internal/handler"
	"github.com/iliyamo/concert-reservation/internal/infra"
	"github.com/iliyamo/concert-reservation/internal/middleware"
	"github.com/iliyamo/concert-reservation/internal/queue"
	"github.com/iliyamo/concert-reservation/internal/repository"
	"github.com/iliyamo/concert-reservation/internal/repository/memory"
	"github.com/iliyamo/concert-reservation/internal/router"
	"github.com/iliyamo/concert-reservation/internal/service"
)

const tokenRetention = 24 * time.Hour

type stores struct {
	seats  repository.SeatStore
	points repository.PointStore
	tokens repository.TokenStore
	// rdb backs the token store and the rate limiter; nil without Redis.
	rdb   *redis.Client
	close []func()
}

// Close releases every handle in reverse order of opening.
func (st *stores) Close() {
	for i := len(st.close) - 1; i >= 0; i-- {
		st.close[i]()
	}
	st.close = nil
}

func main() {
	_ = godotenv.Load()

	factory := infra.NewLoggerFactory(os.Getenv("LOG_LEVEL"))
	defer factory.Sync()
	logger := factory.Create("Main").Sugar()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	clk := clock.NewSystem()
	st, err := openStores(ctx, cfg, clk.Now(), logger)
	if err != nil {
		logger.Fatalf("open stores: %v", err)
	}
	defer st.Close()

	var events service.EventPublisher = service.NopPublisher{}
	if cfg.RabbitURL != "" {
		pub := service.NewAMQPPublisher(cfg.RabbitURL, factory.Create("Publisher").Sugar())
		defer pub.Close()
		events = pub
		startConsumer(ctx, cfg.RabbitURL, factory.Create("Consumer").Sugar())
	}

	tokens := service.NewTokenService(st.tokens, clk, factory.Create("TokenService").Sugar(),
		service.WithCapacity(cfg.QueueCapacity),
		service.WithActiveTTL(cfg.TokenActiveTTL),
	)
	concerts := service.NewConcertService(st.seats, clk, factory.Create("ConcertService").Sugar(),
		service.WithHoldTTL(cfg.SeatHoldTTL),
	)
	logger.Infof("queue capacity[%d] token ttl[%s] hold ttl[%s]", tokens.Capacity(), tokens.ActiveTTL(), concerts.HoldTTL())
	points := service.NewPointService(st.points, clk, factory.Create("PointService").Sugar())
	tokenFacade := service.NewTokenFacade(tokens, clk, cfg.QueueTokenSecret)
	concertFacade := service.NewConcertFacade(tokens, concerts, events, factory.Create("ConcertFacade").Sugar())

	sweeper := service.NewSweeper(tokens, concerts, cfg.AdvanceInterval, cfg.HoldSweepEvery, factory.Create("Sweeper").Sugar())
	go sweeper.Run(ctx)

	httpLog := factory.Create("HTTP").Sugar()
	e := echo.New()
	e.HideBanner = true
	router.Use(e, httpLog)
	router.RegisterRoutes(e, handler.NewDebugHandler(infra.LoggerLevel))
	v1 := router.V1(e, middleware.NewTokenBucket(config.LoadRateLimitConfig(), st.rdb, factory.Create("RateLimit").Sugar()))
	router.RegisterQueue(v1, handler.NewQueueHandler(tokenFacade, httpLog), cfg.QueueTokenSecret)
	router.RegisterConcert(v1, handler.NewConcertHandler(concertFacade, httpLog), cfg.QueueTokenSecret)
	router.RegisterPoints(v1, handler.NewPointHandler(points, concerts, httpLog))

	addr := ":" + cfg.Port
	go func() {
		logger.Infof("listening on %s (env=%s store=%s tokens=%s)", addr, cfg.Env, cfg.StoreDriver, cfg.TokenDriver)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("server stopped: %v", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Warnf("shutdown: %v", err)
	}
	logger.Info("bye")
}

// openStores selects the seat/point and token stores named by cfg.  On
// error everything opened so far is closed again.
func openStores(ctx context.Context, cfg config.Config, now time.Time, log *zap.SugaredLogger) (st *stores, err error) {
	st = &stores{}
	defer func() {
		if err != nil {
			st.Close()
			st = nil
		}
	}()

	switch cfg.StoreDriver {
	case config.DriverMySQL:
		db, err := database.Open(ctx, cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
		if err != nil {
			return st, err
		}
		st.close = append(st.close, func() { _ = db.Close() })
		if err := database.Migrate(ctx, db); err != nil {
			return st, err
		}
		if cfg.SeedDemo {
			if err := database.SeedDemo(ctx, db, now, memory.DemoSeatsPerSlot, memory.DemoSeatPrice); err != nil {
				return st, err
			}
		}
		st.seats = repository.NewSeatRepo(db)
		st.points = repository.NewPointRepo(db)
	default:
		mem := memory.NewStore()
		if cfg.SeedDemo {
			mem.SeedDemo(now)
		}
		st.seats, st.points = mem, mem
	}

	if cfg.TokenDriver == config.DriverRedis || config.RedisConfigured() {
		rdb, err := config.NewRedisClient(ctx)
		switch {
		case err == nil:
			st.rdb = rdb
			st.close = append(st.close, func() { _ = rdb.Close() })
		case cfg.TokenDriver == config.DriverRedis:
			return st, err
		default:
			log.Warnf("redis unavailable, rate limiting disabled: %v", err)
		}
	}

	if cfg.TokenDriver == config.DriverRedis {
		st.tokens = repository.NewTokenRepo(st.rdb, "queue", tokenRetention)
	} else {
		st.tokens = memory.NewTokenStore()
	}

	log.Infof("stores ready: seats[%s] tokens[%s]", cfg.StoreDriver, cfg.TokenDriver)
	return st, nil
}

// startConsumer appends seat.sold events to logs/sales.log until ctx ends.
func startConsumer(ctx context.Context, url string, log *zap.SugaredLogger) {
	sink, f, err := queue.OpenSalesLog("logs")
	if err != nil {
		log.Warnf("sales log disabled: %v", err)
		return
	}
	go func() {
		defer f.Close()
		queue.NewConsumer(url, sink, log).Run(ctx)
	}()
}
