package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"time"

	"github.com/dmitrymomot/biogen/handler"
	"github.com/dmitrymomot/biogen/pkg/config"
	"github.com/dmitrymomot/biogen/pkg/docstore"
	"github.com/dmitrymomot/biogen/pkg/httpserver"
	"github.com/dmitrymomot/biogen/pkg/identity"
	"github.com/dmitrymomot/biogen/pkg/logger"
	"github.com/dmitrymomot/biogen/pkg/mongo"
	"github.com/dmitrymomot/biogen/pkg/ratelimit"
	"github.com/dmitrymomot/biogen/pkg/redis"
	"github.com/dmitrymomot/biogen/svc/admin"
	"github.com/dmitrymomot/biogen/svc/bio"
	"github.com/dmitrymomot/biogen/svc/billing"
	"github.com/dmitrymomot/biogen/svc/entitlement"
)

type appConfig struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	GatePolicy  string `env:"GATE_POLICY_FILE"`

	HTTP        httpserver.Config
	Redis       redis.Config
	Mongo       mongo.Config
	RateLimit   ratelimit.Config
	Identity    identity.GoogleConfig
	Flutterwave billing.FlutterwaveConfig
	Charge      billing.ExpectedCharge
	Webhook     billing.WebhookConfig
	Entitlement entitlement.Config
	Gemini      bio.GeminiConfig
	Admin       admin.Config
}

func main() {
	if err := run(); err != nil {
		slog.Error("server exited", slog.Any("error", err))
		os.Exit(1)
	}
}

func run() error {
	var cfg appConfig
	if err := config.Load(&cfg); err != nil {
		return err
	}

	log := logger.New(
		logger.WithFormat(logger.FormatJSON),
		logger.WithEnvironment(cfg.Environment, "biogen"),
	)
	logger.SetAsDefault(log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	connectCtx, connectCancel := context.WithTimeout(ctx, 30*time.Second)
	defer connectCancel()

	redisClient, err := redis.Connect(connectCtx, cfg.Redis)
	if err != nil {
		return err
	}
	defer redisClient.Close()

	mongoDB, err := mongo.NewWithDatabase(connectCtx, cfg.Mongo)
	if err != nil {
		return err
	}
	mongoClient := mongoDB.Client()
	defer mongoClient.Disconnect(context.Background())

	store := docstore.NewMongoStore(mongoDB)

	idp, err := identity.NewGoogleClient(cfg.Identity)
	if err != nil {
		return err
	}

	flutterwave, err := billing.NewFlutterwave(cfg.Flutterwave, cfg.Charge)
	if err != nil {
		return err
	}

	entStore := entitlement.NewStore(store, log)
	entVerifier := entitlement.NewVerifier(entStore, flutterwave, cfg.Charge, cfg.Entitlement, log)

	ledger := billing.NewLedger(store)
	failures := billing.NewFailureLog(store, log)
	billingSvc := billing.NewService(flutterwave, entStore, ledger, failures, cfg.Charge, cfg.Webhook, log)
	banks := billing.NewBankCatalog(flutterwave, redisClient, log)

	limiter := ratelimit.New(ratelimit.NewRedisStore(redisClient), cfg.RateLimit, log)

	policy := bio.DefaultGatePolicy()
	if cfg.GatePolicy != "" {
		policy, err = bio.LoadGatePolicy(cfg.GatePolicy)
		if err != nil {
			return err
		}
	}
	bioSvc := bio.NewService(policy, entVerifier, limiter, bio.NewGemini(cfg.Gemini), bio.NewChatStore(store), log)

	adminSvc := admin.NewService(cfg.Admin, idp, entStore, failures, log)

	redisHealth := redis.Healthcheck(redisClient)
	mongoHealth := mongo.Healthcheck(mongoClient)

	router := handler.New(handler.Deps{
		Verifier:     idp,
		Entitlements: entVerifier,
		Bio:          bioSvc,
		Billing:      billingSvc,
		Banks:        banks,
		Admin:        adminSvc,
		Health: func(ctx context.Context) error {
			return errors.Join(redisHealth(ctx), mongoHealth(ctx))
		},
		Log: log,
	})

	srv := httpserver.New(cfg.HTTP, log)
	return srv.Run(ctx, router)
}
