package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nextlevelbuilder/omniwp/internal/api"
	"github.com/nextlevelbuilder/omniwp/internal/cache"
	"github.com/nextlevelbuilder/omniwp/internal/config"
	"github.com/nextlevelbuilder/omniwp/internal/crm"
	"github.com/nextlevelbuilder/omniwp/internal/crypto"
	"github.com/nextlevelbuilder/omniwp/internal/notify"
	"github.com/nextlevelbuilder/omniwp/internal/session"
)

// app holds everything a command needs. One app lives for the whole process,
// so the shell shares its cache, session and push channel across commands.
type app struct {
	cfg      *config.Config
	storage  *session.LocalStorage
	session  *session.Manager
	client   *api.Client
	cache    *cache.Cache
	svc      *crm.Service
	toasts   *notify.Terminal
	shutdown func(context.Context) error
}

var (
	appMu      sync.Mutex
	currentApp *app
)

// getApp returns the process app, building it on first use.
func getApp(ctx context.Context) (*app, error) {
	appMu.Lock()
	defer appMu.Unlock()
	if currentApp != nil {
		return currentApp, nil
	}
	a, err := newApp(ctx)
	if err != nil {
		return nil, err
	}
	currentApp = a
	return a, nil
}

func closeApp() {
	appMu.Lock()
	a := currentApp
	currentApp = nil
	appMu.Unlock()
	if a != nil {
		a.close()
	}
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	storage, err := session.OpenLocalStorage(cfg.DBPath())
	if err != nil {
		return nil, err
	}

	var sealer *crypto.Sealer
	if cfg.Storage.EncryptToken {
		if sealer, err = crypto.KeyringSealer(); err != nil {
			// No keyring (headless, CI): keep working with a plain token.
			slog.Warn("OS keyring unavailable, session token stored unsealed", "error", err)
			sealer = nil
		}
	}
	mgr := session.NewManager(storage, sealer)
	if err := mgr.Restore(ctx); err != nil {
		storage.Close()
		return nil, err
	}

	store, err := newCacheStore(ctx, cfg)
	if err != nil {
		storage.Close()
		return nil, err
	}
	c := cache.New(store, cache.Options{
		Scope:        crm.CacheScope(mgr),
		StaleAfter:   cfg.StaleTime,
		ServeStaleOn: crm.ServeStale,
	})

	client := api.New(api.Config{
		BaseURL:           cfg.API.BaseURL,
		Timeout:           cfg.API.Timeout.Std(),
		ConnectTimeout:    cfg.WhatsApp.ConnectTimeout.Std(),
		RequestsPerMinute: cfg.API.RequestsPerMinute,
		Burst:             cfg.API.Burst,
		Tokens:            mgr,
	})

	toasts := notify.NewTerminal(nil)
	svc := crm.New(crm.Config{API: client, Cache: c, Session: mgr, Notifier: toasts})
	client.OnUnauthorized(func() {
		svc.HandleUnauthorized(context.Background())
	})

	a := &app{
		cfg:      cfg,
		storage:  storage,
		session:  mgr,
		client:   client,
		cache:    c,
		svc:      svc,
		toasts:   toasts,
		shutdown: initTelemetry(ctx, cfg),
	}
	return a, nil
}

func newCacheStore(ctx context.Context, cfg *config.Config) (cache.Store, error) {
	if cfg.Cache.Backend == config.CacheRedis {
		s, err := cache.NewRedisStore(ctx, cache.RedisConfig{
			Addr:     cfg.Cache.RedisAddr,
			Password: cfg.Cache.RedisPassword,
			DB:       cfg.Cache.RedisDB,
			TTL:      cfg.Cache.TTL.Std(),
		})
		if err != nil {
			return nil, fmt.Errorf("redis cache: %w", err)
		}
		return s, nil
	}
	return cache.NewMemoryStore(cfg.Cache.Size, cfg.Cache.TTL.Std()), nil
}

// applyConfig picks up settings that can change without a restart.
func (a *app) applyConfig(cfg *config.Config) {
	a.cfg = cfg
	slog.Info("config reloaded", "api", cfg.API.BaseURL, "statusInterval", cfg.WhatsApp.StatusInterval)
}

func (a *app) close() {
	if a.shutdown != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := a.shutdown(ctx); err != nil {
			slog.Debug("telemetry shutdown", "error", err)
		}
		cancel()
	}
	if err := a.cache.Close(); err != nil {
		slog.Debug("cache close", "error", err)
	}
	if err := a.storage.Close(); err != nil {
		slog.Debug("storage close", "error", err)
	}
}

// requireLogin fails early when there is no session.
func (a *app) requireLogin() error {
	if !a.session.Snapshot().Authenticated() {
		return session.ErrNoToken
	}
	return nil
}
