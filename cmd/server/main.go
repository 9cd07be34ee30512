package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"finboard/internal/auth"
	"finboard/internal/config"
	"finboard/internal/handlers"
	"finboard/internal/models"
	"finboard/internal/recurring"
	"finboard/internal/storage"
	"finboard/internal/ui"
	"finboard/internal/worker"
	"finboard/web"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"
)

func main() {
	if err := run(); err != nil {
		logrus.Fatal(err)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	setupLogging(cfg.Log)

	site, err := config.LoadSite(cfg.SiteConfig)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := storage.NewDB(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	if err := seedAdmin(ctx, db, cfg.AdminUser, cfg.AdminPassword); err != nil {
		return err
	}

	provider := ui.NewProvider(site)
	renderer, err := ui.NewRenderer(dirOr(cfg.TemplateDir, web.Templates()), provider)
	if err != nil {
		return fmt.Errorf("load templates: %w", err)
	}
	h := handlers.NewHandlers(db, renderer, cfg)

	go maintenance(db, cfg.RecurringInterval).Consume(ctx)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           setupRouter(h, provider, dirOr(cfg.StaticDir, web.Static()), cfg.CORSOrigins),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logrus.WithField("addr", srv.Addr).Info("server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logrus.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func setupLogging(cfg config.Log) {
	if strings.EqualFold(cfg.Format, "json") {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		logrus.WithField("level", cfg.Level).Warn("unknown log level, using info")
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)
}

// dirOr serves dir from disk when set, otherwise the embedded fallback.
func dirOr(dir string, fallback fs.FS) fs.FS {
	if dir == "" {
		return fallback
	}
	return os.DirFS(dir)
}

// seedAdmin creates the admin account on first start when credentials are
// configured. An existing account is left alone.
func seedAdmin(ctx context.Context, db *storage.DB, username, password string) error {
	if username == "" || password == "" {
		return nil
	}
	_, err := db.GetUserByUsername(ctx, username)
	if err == nil {
		return nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("look up admin: %w", err)
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}
	if _, err := db.CreateUser(ctx, models.User{Username: username, Role: models.RoleAdmin, PasswordHash: hash}); err != nil {
		return fmt.Errorf("create admin: %w", err)
	}
	logrus.WithField("user", username).Info("admin user created")
	return nil
}

// maintenance books due recurring transactions and purges expired sessions.
func maintenance(db *storage.DB, interval time.Duration) *worker.Worker {
	booker := recurring.NewBooker(db)
	return worker.New(interval,
		worker.Job{Name: "recurring", Run: func(ctx context.Context) error {
			n, err := booker.Run(ctx)
			if n > 0 {
				logrus.WithField("booked", n).Info("recurring transactions booked")
			}
			return err
		}},
		worker.Job{Name: "sessions", Run: func(ctx context.Context) error {
			n, err := db.CleanExpiredSessions(ctx)
			if n > 0 {
				logrus.WithField("removed", n).Info("expired sessions removed")
			}
			return err
		}},
	)
}

func setupRouter(h *handlers.Handlers, provider *ui.Provider, static fs.FS, corsOrigins []string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(handlers.RequestLogger)
	r.Use(middleware.Recoverer)
	r.Use(provider.Wrap)

	r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.FS(static))))
	h.Routes(r, corsOrigins)
	return r
}
