package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/stridehq/subscription-engine/modules/billing"
	"github.com/stridehq/subscription-engine/pkg/access"
	"github.com/stridehq/subscription-engine/pkg/config"
	"github.com/stridehq/subscription-engine/pkg/httpserver"
	"github.com/stridehq/subscription-engine/pkg/invoicing"
	"github.com/stridehq/subscription-engine/pkg/logger"
	"github.com/stridehq/subscription-engine/pkg/notify"
	"github.com/stridehq/subscription-engine/pkg/payment"
	"github.com/stridehq/subscription-engine/pkg/pg"
	"github.com/stridehq/subscription-engine/pkg/recommend"
	"github.com/stridehq/subscription-engine/pkg/redis"
	"github.com/stridehq/subscription-engine/pkg/requestid"
	"github.com/stridehq/subscription-engine/pkg/subscription"
	"github.com/stridehq/subscription-engine/pkg/tier"
)

type appConfig struct {
	Environment string `env:"APP_ENV" envDefault:"development"`
	ServiceName string `env:"SERVICE_NAME" envDefault:"subscription-engine"`

	CronSecret string `env:"CRON_SECRET,required"`

	PaymentAPIURL     string `env:"PAYMENT_API_URL,required"`
	PaymentAPIKey     string `env:"PAYMENT_API_KEY,required"`
	PaymentWebhookKey string `env:"PAYMENT_WEBHOOK_KEY,required"`

	InvoicingAPIURL string `env:"INVOICING_API_URL"`
	InvoicingAPIKey string `env:"INVOICING_API_KEY"`

	PostmarkServerToken  string `env:"POSTMARK_SERVER_TOKEN"`
	PostmarkAccountToken string `env:"POSTMARK_ACCOUNT_TOKEN"`
	BillingSenderEmail   string `env:"BILLING_SENDER_EMAIL"`

	TiersFile string `env:"TIERS_FILE"`

	EnforcementKey     string   `env:"ENFORCEMENT_SWITCH_KEY" envDefault:"billing:enforcement_enabled"`
	EnforcementDefault bool     `env:"ENFORCEMENT_SWITCH_DEFAULT" envDefault:"true"`
	AdminUserIDs       []string `env:"ADMIN_USER_IDS" envSeparator:","`
}

func (c appConfig) adminIDs() ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, 0, len(c.AdminUserIDs))
	for _, raw := range c.AdminUserIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("admin user id %q: %w", raw, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func main() {
	if err := run(context.Background()); err != nil {
		slog.Error("server exited", logger.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	var (
		appCfg   appConfig
		httpCfg  httpserver.Config
		pgCfg    pg.Config
		redisCfg redis.Config
	)
	if err := config.Load(&appCfg); err != nil {
		return fmt.Errorf("load app config: %w", err)
	}
	if err := config.Load(&httpCfg); err != nil {
		return fmt.Errorf("load http config: %w", err)
	}
	if err := config.Load(&pgCfg); err != nil {
		return fmt.Errorf("load postgres config: %w", err)
	}
	if err := config.Load(&redisCfg); err != nil {
		return fmt.Errorf("load redis config: %w", err)
	}

	log := logger.New(
		logger.WithEnvironment(appCfg.Environment, appCfg.ServiceName),
		logger.WithContextExtractors(requestid.LoggerExtractor()),
	)
	logger.SetAsDefault(log)

	pool, err := pg.Connect(ctx, pgCfg)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pool.Close()
	if err := pg.Migrate(ctx, pool, pgCfg, log); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}

	redisClient, err := redis.Connect(ctx, redisCfg)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	defer redisClient.Close()

	src := tier.DefaultSource()
	if appCfg.TiersFile != "" {
		src = tier.NewFileSource(appCfg.TiersFile)
	}
	catalog, err := tier.NewCatalog(ctx, src)
	if err != nil {
		return fmt.Errorf("load tier catalog: %w", err)
	}

	store := subscription.NewPostgresStore(pool)
	gateway := payment.NewHTTPGateway(appCfg.PaymentAPIURL, appCfg.PaymentAPIKey, appCfg.PaymentWebhookKey)

	var issuer invoicing.Issuer
	if appCfg.InvoicingAPIURL != "" {
		issuer = invoicing.NewClient(appCfg.InvoicingAPIURL, appCfg.InvoicingAPIKey)
	}

	var notifier notify.Notifier = notify.NopNotifier{}
	if appCfg.PostmarkServerToken != "" {
		notifier, err = notify.NewPostmarkNotifier(
			appCfg.PostmarkServerToken,
			appCfg.PostmarkAccountToken,
			appCfg.BillingSenderEmail,
		)
		if err != nil {
			return fmt.Errorf("configure payment notices: %w", err)
		}
	}

	manager := subscription.NewManager(store, catalog, gateway,
		subscription.WithLogger(log))

	adminIDs, err := appCfg.adminIDs()
	if err != nil {
		return fmt.Errorf("parse admin list: %w", err)
	}
	killSwitch := access.NewRedisSwitch(redisClient, appCfg.EnforcementKey, appCfg.EnforcementDefault, log)
	control := access.NewControl(store, catalog, killSwitch,
		access.WithAdminResolver(access.StaticAdminList(adminIDs...)),
		access.WithControlLogger(log))

	engine := recommend.NewEngine(store)

	r := chi.NewRouter()
	r.Use(requestid.Middleware)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Get("/health", httpserver.HealthCheckHandler(ctx, log,
		pg.Healthcheck(pool),
		redis.Healthcheck(redisClient)))
	r.Mount("/billing", billing.Router(billing.Deps{
		Manager:    manager,
		Store:      store,
		Control:    control,
		Engine:     engine,
		Catalog:    catalog,
		Gateway:    gateway,
		Verifier:   gateway,
		KillSwitch: killSwitch,
		Issuer:     issuer,
		Notifier:   notifier,
		CronSecret: appCfg.CronSecret,
		Logger:     log,
	}))

	srv := httpserver.New(httpCfg, httpserver.WithLogger(log))
	return srv.Run(ctx, r)
}
