package main // Entry point package

import (
	"context"
	"log"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/flash-sale-service/internal/config"
	"github.com/iliyamo/flash-sale-service/internal/database"
	"github.com/iliyamo/flash-sale-service/internal/handler"
	"github.com/iliyamo/flash-sale-service/internal/limiter"
	"github.com/iliyamo/flash-sale-service/internal/lock"
	"github.com/iliyamo/flash-sale-service/internal/queue"
	"github.com/iliyamo/flash-sale-service/internal/repository"
	"github.com/iliyamo/flash-sale-service/internal/router"
	"github.com/iliyamo/flash-sale-service/internal/seckill"
	queue_publisher "github.com/iliyamo/flash-sale-service/internal/service"
	"github.com/iliyamo/flash-sale-service/internal/store"
)

func main() {
	// Load .env if present; real deployments set the environment directly.
	if err := godotenv.Load(); err != nil {
		log.Printf("no .env file loaded: %v", err)
	}

	cfg := config.Load()
	rlCfg := config.LoadRateLimitConfig()
	skCfg := config.LoadSeckillConfig()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()

	// The counter store is the single source of truth for stock,
	// participation and locks.  Without Redis the service degrades to the
	// in-memory store, which is only correct on a single node.
	var st store.Store
	if rdb := config.NewRedisClient(); rdb != nil {
		st = store.NewRedisStore(rdb)
	} else {
		log.Printf("redis unreachable; using in-memory counter store (single-node mode)")
		st = store.NewMemoryStore()
	}

	activities := repository.NewActivityRepo(db)
	users := repository.NewUserRepo(db)

	locks := lock.New(st, "lock")

	var engineLimiter limiter.Limiter
	var httpLimiter limiter.Limiter
	if rlCfg.Enabled {
		switch rlCfg.Strategy {
		case config.StrategyTokenBucket:
			engineLimiter = limiter.NewTokenBucket(st, rlCfg.Prefix+":engine", rlCfg.Capacity, rlCfg.RefillRate, rlCfg.TTL)
			httpLimiter = limiter.NewTokenBucket(st, rlCfg.Prefix+":http", rlCfg.Capacity, rlCfg.RefillRate, rlCfg.TTL)
		default:
			engineLimiter = limiter.NewSlidingWindow(st, rlCfg.Prefix+":engine", rlCfg.Limit, rlCfg.Window)
			httpLimiter = limiter.NewSlidingWindow(st, rlCfg.Prefix+":http", rlCfg.Limit, rlCfg.Window)
		}
	} else {
		engineLimiter = admitAll{}
	}

	engine := seckill.New(st, locks, engineLimiter, activities, seckill.Options{
		LockWait:            skCfg.LockWait,
		LockLease:           skCfg.LockLease,
		ParticipationTTL:    skCfg.ParticipationTTL,
		StockTTL:            skCfg.StockTTL,
		OrderDetailTTL:      skCfg.OrderDetailTTL,
		CompensationRetries: skCfg.CompensationRetries,
		CompensationBackoff: skCfg.CompensationBackoff,
	})

	// Successful sales feed the order stream; publishing is best-effort and
	// the product id is resolved outside the critical section.
	engine.OnSale(func(ctx context.Context, s seckill.Sale) {
		ev := queue.OrderCreatedEvent{
			OrderRef:   s.OrderRef,
			ActivityID: s.ActivityID,
			UserID:     s.UserID,
			Remaining:  s.Remaining,
			CreatedAt:  s.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
		}
		if act, err := activities.GetByID(ctx, s.ActivityID); err == nil {
			ev.ProductID = act.ProductID
		}
		_ = queue_publisher.PublishOrderCreated(ctx, ev)
	})

	// Background consumer materializes the sold count and the order log.
	go func() {
		if err := queue.StartOrderConsumer(activities); err != nil {
			log.Printf("order-consumer stopped: %v", err)
		}
	}()

	e := echo.New()
	router.RegisterRoutes(e)
	router.RegisterAuth(e, handler.NewAuthHandler(cfg, users))
	router.RegisterSeckill(e,
		handler.NewSeckillHandler(engine),
		handler.NewActivityHandler(activities, engine),
		cfg.JWTSecret,
		httpLimiter,
	)

	addr := ":" + cfg.Port
	log.Printf("listening on %s (env=%s)", addr, cfg.Env)
	if err := e.Start(addr); err != nil {
		log.Fatal(err)
	}
}

// admitAll is the limiter used when rate limiting is disabled by config.
type admitAll struct{}

func (admitAll) Admit(context.Context, string) bool { return true }
