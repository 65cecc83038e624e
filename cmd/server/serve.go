package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"qctracker/internal/auth"
	"qctracker/internal/database"
	"qctracker/internal/handlers"
	"qctracker/internal/services"
	"qctracker/internal/store"
	"qctracker/web"
)

func runServe(ctx context.Context, configFile string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, logger, err := setup(configFile)
	if err != nil {
		return err
	}

	logger.Info().
		Str("version", Version).
		Str("build_time", BuildTime).
		Msg("starting qctracker")

	// Initialize database
	db, err := database.New(ctx, cfg.Database, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	// Initialize services
	userService, err := auth.NewUserService(db, cfg.Auth.BcryptCost, logger)
	if err != nil {
		return err
	}
	if _, err := userService.EnsureDefaultAdmin(ctx, cfg.Admin.Username, cfg.Admin.Password, cfg.Admin.FullName); err != nil {
		return fmt.Errorf("failed to seed default admin: %w", err)
	}

	sessionManager := auth.NewSessionManager(cfg.Session.Secret, cfg.Session.MaxAge, cfg.Session.Secure)
	recordStore := store.NewTestResultStore(db)
	recordService := services.NewRecordService(recordStore, userService, logger)
	queryService := services.NewQueryService(recordStore, logger)

	// Load templates
	assets := web.Assets(cfg.Web.Dir)
	templates, err := web.LoadTemplates(assets)
	if err != nil {
		return fmt.Errorf("failed to load templates: %w", err)
	}
	static, err := fs.Sub(assets, "static")
	if err != nil {
		return fmt.Errorf("failed to open static assets: %w", err)
	}
	if cfg.Web.Dir != "" {
		logger.Info().Str("dir", cfg.Web.Dir).Msg("serving web assets from disk")
	}

	router := handlers.NewRouter(handlers.RouterConfig{
		Templates: templates,
		Sessions:  sessionManager,
		Users:     userService,
		Records:   recordService,
		Queries:   queryService,
		Logger:    logger,
		Static:    static,
	})

	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	return nil
}
