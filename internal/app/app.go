// Package app wires configuration into the running services. Both the API
// server and the operator CLI build their object graph here.
package app

import (
	"context"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"Bootcamp/internal/chain"
	"Bootcamp/internal/config"
	"Bootcamp/internal/database"
	"Bootcamp/internal/queue"
	"Bootcamp/internal/services"
	"Bootcamp/internal/store"
)

type App struct {
	Config     *config.Config
	Store      *store.GormStore
	Paystack   *services.PaystackService
	Email      *services.EmailService
	Sync       *services.StatusSync
	Grants     *services.KeyGrantService
	Router     *services.Router
	Reconciler *services.Reconciler
	Sweeper    *services.Sweeper

	chain     *chain.Client
	redis     *redis.Client
	publisher *queue.Publisher
}

// New connects to the database and every optional collaborator. Missing
// optional collaborators are logged and left out.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	db, err := database.Connect(cfg.Database)
	if err != nil {
		return nil, err
	}
	if err := database.Migrate(db); err != nil {
		return nil, err
	}

	a := &App{
		Config:   cfg,
		Store:    store.NewGormStore(db),
		Paystack: services.NewPaystackService(cfg.Paystack),
		Email:    services.NewEmailService(cfg.Resend),
	}

	var chainClient services.ChainClient
	if cfg.Chain.RPCURL != "" {
		dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		c, err := chain.NewClient(dialCtx, cfg.Chain)
		cancel()
		if err != nil {
			log.Printf("⚠️  Chain client unavailable, key grants and on-chain verification disabled: %v", err)
		} else {
			a.chain = c
			chainClient = c
			log.Printf("⛓️  Chain client connected (chain id %d)", cfg.Chain.ChainID)
		}
	} else {
		log.Println("⚠️  CHAIN_RPC_URL not set, key grants and on-chain verification disabled")
	}

	var locker services.Locker
	if a.redis = database.NewRedisClient(cfg.Redis); a.redis != nil {
		locker = services.NewRedisLocker(a.redis)
	}

	var events services.EventPublisher
	if cfg.RabbitMQ.Enabled {
		a.publisher = queue.NewPublisher(cfg.RabbitMQ.URL)
		events = a.publisher
	}

	a.Sync = services.NewStatusSync(a.Store)
	enrollments := services.NewEnrollmentService(a.Store)
	if chainClient != nil {
		a.Grants = services.NewKeyGrantService(a.Store, chainClient, services.KeyGrantOptions{
			MaxAttempts: cfg.Reconcile.KeyGrantAttempts,
			BaseDelay:   cfg.Reconcile.KeyGrantBaseDelay,
			KeyDuration: time.Duration(cfg.Reconcile.KeyExpirationDays) * 24 * time.Hour,
			LockTTL:     cfg.Reconcile.KeyGrantLockTTL,
			Locker:      locker,
			Events:      events,
		})
	}

	a.Router = services.NewRouter(services.RouterDeps{
		Store:             a.Store,
		Sync:              a.Sync,
		Enrollments:       enrollments,
		Grants:            a.Grants,
		Gateway:           a.Paystack,
		Chain:             chainClient,
		Mailer:            a.Email,
		Events:            events,
		WebhookWaitWindow: cfg.Reconcile.WebhookWaitWindow,
		GatewayTimeout:    cfg.Paystack.Timeout,
		CallbackURL:       cfg.Paystack.CallbackURL,
	})
	a.Reconciler = services.NewReconciler(a.Store, a.Sync, enrollments, a.Grants)
	a.Sweeper = services.NewSweeper(a.Store, a.Router, a.Reconciler, a.Sync, services.SweeperOptions{
		Window:       cfg.Reconcile.WebhookWaitWindow,
		BatchSize:    cfg.Reconcile.SweepBatchSize,
		Concurrency:  cfg.Reconcile.SweepConcurrency,
		AbandonAfter: cfg.Reconcile.SweepAbandonAfter,
	})

	return a, nil
}

// StartWorkers runs the sweeper and the key grant consumer until ctx ends.
func (a *App) StartWorkers(ctx context.Context) {
	if a.Config.Reconcile.SweepEnabled {
		go a.Sweeper.Start(ctx, a.Config.Reconcile.SweepInterval)
	}
	if a.Config.RabbitMQ.Enabled {
		consumer := queue.NewKeyGrantConsumer(a.Config.RabbitMQ.URL, a.Reconciler, a.Email)
		go consumer.Start(ctx)
	}
}

func (a *App) Close() {
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			log.Printf("⚠️  Closing publisher: %v", err)
		}
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.chain != nil {
		a.chain.Close()
	}
	if err := database.Close(); err != nil {
		log.Printf("⚠️  Closing database: %v", err)
	}
}
