package api

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"time"

	"chuckafile/auth"
	"chuckafile/config"
	"chuckafile/database"
	"chuckafile/handlers"
	"chuckafile/ledger"
	"chuckafile/metrics"
	"chuckafile/middleware"
	"chuckafile/realtime"
	"chuckafile/respond"
	"chuckafile/storage"
)

const devSecret = "chuckafile-dev-secret"

// App owns every long-lived component of a running server
type App struct {
	DB      *database.DB
	Blobs   storage.BlobStore
	Hub     *realtime.Hub
	Metrics *metrics.Metrics
	Handler http.Handler

	closers []io.Closer
	logger  *slog.Logger
}

// NewApp opens the stores and assembles the ledgers, hub and router.
func NewApp(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	app := &App{logger: logger, Metrics: metrics.New()}

	db, err := database.Open(ctx, cfg.DatabaseType, cfg.DatabaseURL, logger)
	if err != nil {
		return nil, err
	}
	app.DB = db
	app.closers = append(app.closers, db)

	switch cfg.BlobBackend {
	case config.BlobBackendBadger:
		store, err := storage.OpenBadgerStore(storage.BadgerConfig{
			Dir:        cfg.BadgerDir,
			SyncWrites: true,
			GCInterval: 5 * time.Minute,
		}, logger)
		if err != nil {
			app.Close()
			return nil, err
		}
		app.Blobs = store
		app.closers = append(app.closers, store)
	default:
		store, err := storage.NewDiskStore(cfg.UploadDir, logger)
		if err != nil {
			app.Close()
			return nil, err
		}
		app.Blobs = store
	}

	secret := cfg.JwtSecret
	if secret == "" {
		logger.Warn("JWT_SECRET not set, using the development secret")
		secret = devSecret
	}
	tokens := auth.NewTokens(secret, cfg.TokenTTL)

	resp := &respond.Writer{Logger: logger, DevMode: cfg.DevMode}
	authMW := middleware.NewAuth(tokens, db, resp)
	app.Hub = realtime.NewHub(logger, app.Metrics)

	h := handlers.New(handlers.Deps{
		Users:    db,
		Friends:  ledger.NewFriends(db, logger, app.Metrics),
		Convs:    ledger.NewConversations(db, app.Blobs, logger, app.Metrics),
		Hub:      app.Hub,
		Tokens:   tokens,
		Auth:     authMW,
		Response: resp,
		Logger:   logger,
		Metrics:  app.Metrics,
		Options: handlers.Options{
			MaxUploadBytes: cfg.MaxUploadBytes,
			AllowedOrigins: cfg.AllowedOrigins,
			WSRatePerSec:   cfg.WSRatePerSec,
			WSRateBurst:    cfg.WSRateBurst,
		},
	})

	app.Handler = NewRouter(h, RouterConfig{
		Auth:           authMW,
		Store:          db,
		Metrics:        app.Metrics,
		Response:       resp,
		Logger:         logger,
		AllowedOrigins: cfg.AllowedOrigins,
	})
	return app, nil
}

// Close drops every live subscription and closes the stores.
func (a *App) Close() error {
	if a.Hub != nil {
		a.Hub.Close()
	}
	var firstErr error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	a.closers = nil
	return firstErr
}
