// Package app wires configuration into the running components.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"affiliate-tracking-system/internal/config"
	"affiliate-tracking-system/internal/content"
	"affiliate-tracking-system/internal/conversions"
	"affiliate-tracking-system/internal/database"
	"affiliate-tracking-system/internal/dedup"
	"affiliate-tracking-system/internal/earnings"
	"affiliate-tracking-system/internal/handlers"
	"affiliate-tracking-system/internal/jobs"
	"affiliate-tracking-system/internal/kafka"
	"affiliate-tracking-system/internal/notify"
	"affiliate-tracking-system/internal/repository"
	"affiliate-tracking-system/internal/services"
	"affiliate-tracking-system/internal/sitecheck"
	"affiliate-tracking-system/internal/strapi"
	"affiliate-tracking-system/internal/tags"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	gormlogger "gorm.io/gorm/logger"
)

const leadQueueSize = 10000

type App struct {
	Config    *config.Config
	Logger    *logrus.Logger
	Store     repository.Store
	Pool      *tags.Pool
	Queue     *services.LeadQueue
	Leads     *services.LeadService
	Sync      *services.PurchaseSync
	Stats     *services.StatsService
	Scheduler *jobs.Scheduler
	Events    kafka.Publisher
	Notifier  notify.Notifier
	Products  *content.ProductPublisher

	posts    content.PostStore
	products content.ProductStore
	closers  []func() error
	done    chan struct{}
}

// New builds every component from cfg. Nothing runs until Start.
func New(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (*App, error) {
	a := &App{Config: cfg, Logger: logger}

	if err := a.setupStore(); err != nil {
		a.Close()
		return nil, err
	}

	cache, err := a.setupDedup(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.Events = kafka.Publisher(kafka.NopPublisher{})
	if cfg.KafkaBroker != "" {
		a.Events = kafka.NewKafkaPublisher(cfg.KafkaBroker, cfg.KafkaTopic, logger)
		logger.WithField("topic", cfg.KafkaTopic).Info("Publishing tracking events to Kafka")
	}

	a.Notifier = notify.NewLogNotifier(logger)
	if cfg.TelegramToken != "" && cfg.AdminChatID != "" {
		a.Notifier = notify.NewTelegram(cfg.TelegramToken, cfg.AdminChatID)
	}

	a.Pool = tags.NewPool(a.Store, a.Store, logger)
	a.Pool.SetResetAfter(cfg.TagResetAfter)
	if cfg.TagAutomationURL != "" {
		a.Pool.SetRegistrar(tags.NewHTTPRegistrar(cfg.TagAutomationURL))
	}

	a.Queue = services.NewLeadQueue(a.Store, logger, leadQueueSize)
	a.Queue.SetPublisher(a.Events)
	a.Leads = services.NewLeadService(a.Pool, cache, a.Queue, logger)
	if cfg.AnthropicAPIKey != "" && a.products != nil {
		a.Products = content.NewProductPublisher(a.generator(), a.products, a.Leads, logger)
	}

	a.Sync = services.NewPurchaseSync(earnings.NewSource(cfg.EarningsReportURL), a.Store, cfg.SiteURL, a.Notifier, logger)
	a.Sync.SetWindows(cfg.LeadLookback, cfg.PurchaseLookback)
	a.Sync.SetDefaultCommission(cfg.DefaultCommission)
	a.setupReporters()

	a.Stats = services.NewStatsService(a.Store)

	if err := a.setupScheduler(); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) setupStore() error {
	cfg := a.Config
	switch cfg.StoreBackend {
	case "strapi":
		client := strapi.NewClient(cfg.StrapiURL, cfg.StrapiToken, a.Logger)
		a.Store = client
		a.posts = client
		a.products = client
	case "postgres":
		level := gormlogger.Info
		if cfg.GinMode == gin.ReleaseMode {
			level = gormlogger.Warn
		}
		db, err := database.SetupDatabase(cfg.DatabaseURL, level)
		if err != nil {
			return fmt.Errorf("connect database: %w", err)
		}
		if sqlDB, err := db.DB(); err == nil {
			a.closers = append(a.closers, sqlDB.Close)
		}
		if err := database.SeedDatabase(db); err != nil {
			a.Logger.WithError(err).Warn("Failed to seed commission rates")
		}
		a.Store = repository.NewGormStore(db, a.Logger)
	default:
		store := repository.NewMemoryStore(nil)
		store.SetCommissions(database.DefaultCommissionRates)
		a.Store = store
	}
	a.Logger.WithField("backend", cfg.StoreBackend).Info("Store ready")
	return nil
}

func (a *App) setupDedup(ctx context.Context) (dedup.Cache, error) {
	cfg := a.Config
	if cfg.DedupBackend != "redis" {
		return dedup.NewLRUCache(cfg.DedupCapacity, cfg.DedupTTL), nil
	}
	client, err := dedup.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	a.closers = append(a.closers, client.Close)
	return dedup.NewRedisCache(client, cfg.DedupTTL), nil
}

func (a *App) setupReporters() {
	cfg := a.Config
	if cfg.Facebook.Enabled() {
		fb := conversions.NewFacebook(cfg.Facebook.PixelID, cfg.Facebook.AccessToken, cfg.Facebook.APIVersion)
		a.Sync.AddReporter(conversions.NewReporter(fb, a.Store, a.Events, a.Logger))
		a.Queue.SetNotifier(fb, cfg.SiteURL)
	} else {
		a.Logger.Warn("Facebook conversions disabled, FB_PIXEL_ID or FB_ACCESS_TOKEN missing")
	}

	if cfg.GoogleAds.Enabled() {
		g := cfg.GoogleAds
		ads := conversions.NewGoogleAds(conversions.GoogleAdsConfig{
			DeveloperToken:     g.DeveloperToken,
			ClientID:           g.ClientID,
			ClientSecret:       g.ClientSecret,
			RefreshToken:       g.RefreshToken,
			CustomerID:         g.CustomerID,
			LoginCustomerID:    g.LoginCustomerID,
			ConversionActionID: g.ConversionActionID,
			APIVersion:         g.APIVersion,
		})
		a.Sync.AddReporter(conversions.NewReporter(ads, a.Store, a.Events, a.Logger))
	} else {
		a.Logger.Warn("Google Ads conversions disabled, GOOGLE_ADS_* settings incomplete")
	}
}

func (a *App) setupScheduler() error {
	cfg := a.Config
	location, err := time.LoadLocation(cfg.Schedule.Timezone)
	if err != nil {
		a.Logger.WithError(err).WithField("timezone", cfg.Schedule.Timezone).Warn("Unknown timezone, scheduling in UTC")
		location = time.UTC
	}
	a.Scheduler = jobs.NewScheduler(location, a.Logger)

	register := func(name, spec string, run jobs.Func) error {
		if err := a.Scheduler.Register(name, spec, run); err != nil {
			return fmt.Errorf("register %s: %w", name, err)
		}
		return nil
	}

	if err := register(jobs.PurchaseSync, cfg.Schedule.PurchaseSync, func(ctx context.Context) error {
		_, err := a.Sync.Run(ctx)
		return err
	}); err != nil {
		return err
	}

	if err := register(jobs.TagReset, cfg.Schedule.TagReset, func(ctx context.Context) error {
		_, err := a.Pool.ResetOldUsedTags(ctx, cfg.Countries)
		return err
	}); err != nil {
		return err
	}

	if publisher := a.contentPublisher(); publisher != nil {
		if err := register(jobs.ContentPublish, cfg.Schedule.ContentPublish, func(ctx context.Context) error {
			_, err := publisher.Publish(ctx)
			return err
		}); err != nil {
			return err
		}
	}

	if len(cfg.Sites) > 0 {
		checker := sitecheck.NewChecker(cfg.Sites, a.Notifier, a.Logger)
		if err := register(jobs.SiteCheck, cfg.Schedule.SiteCheck, checker.Run); err != nil {
			return err
		}
	}
	return nil
}

func (a *App) contentPublisher() *content.Publisher {
	switch {
	case a.Config.AnthropicAPIKey == "":
		a.Logger.Info("Content publishing disabled, ANTHROPIC_API_KEY not set")
		return nil
	case a.posts == nil:
		a.Logger.Info("Content publishing disabled, posts live in the strapi backend only")
		return nil
	}
	return content.NewPublisher(a.generator(), a.posts, a.Notifier, a.Config.SiteURL, a.Logger)
}

func (a *App) generator() content.TextGenerator {
	return content.NewAnthropicGenerator(a.Config.AnthropicAPIKey, a.Config.AnthropicModel)
}

// Server returns the HTTP layer bound to this app.
func (a *App) Server() *handlers.Server {
	server := handlers.NewServer(a.Leads, a.Pool, a.Scheduler, a.Stats, a.Logger)
	if a.Products != nil {
		server.SetProducts(a.Products)
	}
	return server
}

// Start launches the lead queue processor and the scheduler.
func (a *App) Start(ctx context.Context) {
	a.done = make(chan struct{})
	go func() {
		defer close(a.done)
		a.Queue.StartProcessor(ctx)
	}()
	a.Scheduler.Start()
}

// Shutdown stops the scheduler, waits for the lead queue to drain after
// ctx passed to Start is cancelled, and releases connections.
func (a *App) Shutdown(ctx context.Context) error {
	a.Scheduler.Stop()
	if a.done != nil {
		select {
		case <-a.done:
		case <-ctx.Done():
			a.Logger.Warn("Lead queue did not drain before shutdown deadline")
		}
	}
	return a.Close()
}

// Close releases the event publisher and store connections.
func (a *App) Close() error {
	var errs []error
	if a.Events != nil {
		errs = append(errs, a.Events.Close())
		a.Events = nil
	}
	for _, closeFn := range a.closers {
		errs = append(errs, closeFn())
	}
	a.closers = nil
	return errors.Join(errs...)
}
