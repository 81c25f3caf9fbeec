package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/soyeahso/chatconn/internal/cache"
	"github.com/soyeahso/chatconn/internal/config"
	"github.com/soyeahso/chatconn/internal/connection"
	"github.com/soyeahso/chatconn/internal/hooks"
	"github.com/soyeahso/chatconn/internal/i18n"
	"github.com/soyeahso/chatconn/internal/observability"
	"github.com/soyeahso/chatconn/internal/permission"
	"github.com/soyeahso/chatconn/internal/store"
	"github.com/soyeahso/chatconn/internal/telegram"
	"github.com/soyeahso/chatconn/internal/version"
)

// app holds the components every command builds on.
type app struct {
	cfg      config.Config
	store    store.Backend
	kv       cache.KV
	cache    *cache.ResolutionCache
	oracle   connection.Oracle
	admins   *permission.Admins
	hooks    *hooks.Manager
	registry *prometheus.Registry
	metrics  *observability.Metrics
	tracing  *observability.Tracing
	resolver *connection.Resolver
	manager  *connection.Manager
	catalog  *i18n.Catalog

	// nil unless telegram.token is configured
	bot *tgbotapi.BotAPI
}

func openApp(ctx context.Context, cfg config.Config) (*app, error) {
	if err := paths.EnsureDirs(); err != nil {
		return nil, fmt.Errorf("creating directories: %w", err)
	}

	a := &app{
		cfg:      cfg,
		hooks:    hooks.NewManager(log),
		registry: prometheus.NewRegistry(),
	}
	a.metrics = observability.NewMetrics(a.registry)

	var err error
	if a.tracing, err = observability.NewTracing(ctx, cfg.Tracing, version.Version); err != nil {
		return nil, err
	}

	st, err := store.OpenBackend(ctx, cfg.Store, paths, log)
	if err != nil {
		a.Close(ctx)
		return nil, fmt.Errorf("opening store: %w", err)
	}
	a.store = st
	kv, err := cache.Open(cfg.Cache, paths, log)
	if err != nil {
		a.Close(ctx)
		return nil, fmt.Errorf("opening cache: %w", err)
	}
	a.kv = kv
	a.cache = cache.NewResolutionCache(a.kv, time.Duration(cfg.Cache.TTLSeconds)*time.Second, log)

	if cfg.Telegram.Token != "" {
		if a.bot, err = telegram.NewAPI(cfg.Telegram.Token); err != nil {
			a.Close(ctx)
			return nil, err
		}
	}

	var oracle connection.Oracle = permission.NewStoreOracle(a.store)
	if cfg.Permissions.Source == "telegram" {
		if a.bot == nil {
			a.Close(ctx)
			return nil, errors.New("permissions.source telegram needs telegram.token")
		}
		oracle = permission.NewTelegramOracle(a.bot, log)
	}
	memo := permission.NewCached(oracle, cfg.Permissions.CacheSize,
		time.Duration(cfg.Permissions.CacheSeconds)*time.Second)
	a.oracle = memo
	a.admins = permission.NewAdmins(a.store, memo)

	if a.catalog, err = i18n.New(cfg.I18n.DefaultLanguage); err != nil {
		a.Close(ctx)
		return nil, err
	}

	opts := []connection.Option{
		connection.WithMetrics(a.metrics),
		connection.WithTracing(a.tracing),
		connection.WithHooks(a.hooks),
	}
	a.resolver = connection.NewResolver(a.store, a.cache, a.oracle, log, opts...)
	a.manager = connection.NewManager(a.store, a.cache, log, opts...)
	return a, nil
}

// Close releases everything openApp acquired.
func (a *app) Close(ctx context.Context) error {
	var errs []error
	if a.kv != nil {
		errs = append(errs, a.kv.Close())
	}
	if a.store != nil {
		errs = append(errs, a.store.Close(ctx))
	}
	if a.tracing != nil {
		errs = append(errs, a.tracing.Shutdown(ctx))
	}
	return errors.Join(errs...)
}

// withApp loads config, opens the app for the duration of fn and closes it.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) (err error) {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := openApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := a.Close(context.WithoutCancel(ctx)); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return fn(ctx, a)
}
