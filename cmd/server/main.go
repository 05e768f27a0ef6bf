package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/resonatefm/resonate/internal/api"
	"github.com/resonatefm/resonate/internal/app"
	iauth "github.com/resonatefm/resonate/internal/auth"
	"github.com/resonatefm/resonate/internal/database"
	"github.com/resonatefm/resonate/internal/services"
	"github.com/resonatefm/resonate/pkg/logger"
	"github.com/resonatefm/resonate/pkg/mail"
)

const shutdownTimeout = 15 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	if err := run(ctx, os.Args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("resonate-server", flag.ContinueOnError)
	fs.SetOutput(os.Stdout)

	var configPath string
	fs.StringVar(&configPath, "config", "", "Path to configuration directory or file")

	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadApplicationConfig(configPath)
	if err != nil {
		return err
	}

	generated, err := app.ApplyRuntimeDefaults(cfg)
	if err != nil {
		return err
	}

	if err := app.ConfigureLogging(cfg.Server.LogLevel); err != nil {
		return fmt.Errorf("configure logging: %w", err)
	}
	defer logger.Sync() // best effort

	log := logger.WithModule("bootstrap")
	for key := range generated {
		log.Info("generated runtime secret", zap.String("key", key))
	}

	db, err := initialiseDatabase(cfg)
	if err != nil {
		return err
	}
	defer closeDatabase(db, log)

	jwtService, err := iauth.NewJWTService(cfg.Auth.JWTServiceConfig())
	if err != nil {
		return fmt.Errorf("initialise jwt service: %w", err)
	}

	var oidcProvider *iauth.OIDCProvider
	if cfg.Auth.OAuth.Enabled {
		oidcProvider, err = iauth.NewOIDCProvider(ctx, cfg.Auth.OIDCConfig())
		if err != nil {
			return fmt.Errorf("initialise oidc provider: %w", err)
		}
		log.Info("oidc login enabled", zap.String("issuer", cfg.Auth.OAuth.IssuerURL))
	}

	mailer := initialiseMailer(cfg.Email.SMTPSettings(), log)

	svcs, processor, err := buildServices(db, mailer, cfg)
	if err != nil {
		return err
	}

	if err := processor.Start(); err != nil {
		return fmt.Errorf("start email processor: %w", err)
	}
	defer func() {
		<-processor.Stop().Done()
	}()

	router, err := api.NewRouter(db, jwtService, oidcProvider, cfg, svcs)
	if err != nil {
		return fmt.Errorf("build api router: %w", err)
	}

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("graceful shutdown: %w", err)
	}

	if err, ok := <-serverErr; ok && err != nil {
		return fmt.Errorf("server error: %w", err)
	}

	log.Info("server stopped gracefully")
	return nil
}

func buildServices(db *gorm.DB, mailer mail.Mailer, cfg *app.Config) (api.Services, *services.EmailProcessor, error) {
	emails, err := services.NewEmailService(db, mailer,
		services.WithEmailBaseURL(cfg.Server.BaseURL),
		services.WithEmailMaxAttempts(cfg.Email.Queue.MaxAttempts))
	if err != nil {
		return api.Services{}, nil, fmt.Errorf("initialise email service: %w", err)
	}

	verifications, err := services.NewVerificationService(db)
	if err != nil {
		return api.Services{}, nil, fmt.Errorf("initialise verification service: %w", err)
	}

	users, err := services.NewUserService(db, emails, verifications)
	if err != nil {
		return api.Services{}, nil, fmt.Errorf("initialise user service: %w", err)
	}

	songs, err := services.NewSongService(db)
	if err != nil {
		return api.Services{}, nil, fmt.Errorf("initialise song service: %w", err)
	}

	ratings, err := services.NewRatingService(db)
	if err != nil {
		return api.Services{}, nil, fmt.Errorf("initialise rating service: %w", err)
	}

	analytics, err := services.NewAnalyticsService(db)
	if err != nil {
		return api.Services{}, nil, fmt.Errorf("initialise analytics service: %w", err)
	}

	processor, err := services.NewEmailProcessor(db, mailer, verifications, services.ProcessorConfig{
		Enabled:        cfg.Email.Queue.Enabled,
		Interval:       cfg.Email.Queue.Interval,
		BatchSize:      cfg.Email.Queue.BatchSize,
		BaseRetryDelay: cfg.Email.Queue.BaseRetryDelay,
	})
	if err != nil {
		return api.Services{}, nil, fmt.Errorf("initialise email processor: %w", err)
	}

	return api.Services{
		Users:         users,
		Songs:         songs,
		Ratings:       ratings,
		Analytics:     analytics,
		Emails:        emails,
		Verifications: verifications,
		Processor:     processor,
	}, processor, nil
}

func loadApplicationConfig(path string) (*app.Config, error) {
	switch {
	case strings.TrimSpace(path) == "":
		return app.LoadConfig()
	default:
		info, err := os.Stat(path)
		if err == nil {
			if info.IsDir() {
				return app.LoadConfig(path)
			}
			return app.LoadConfig(filepath.Dir(path))
		}
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("config path %q does not exist", path)
		}
		return nil, fmt.Errorf("stat config path: %w", err)
	}
}

// initialiseMailer never fails the boot sequence. Invalid SMTP settings leave
// email delivery disabled; queued messages keep accumulating until an operator
// fixes the configuration and restarts.
func initialiseMailer(settings mail.SMTPSettings, log *zap.Logger) mail.Mailer {
	mailer, err := mail.NewSMTPMailer(settings)
	if err == nil {
		return mailer
	}

	log.Warn("smtp configuration invalid, email delivery disabled", zap.Error(err))

	mailer, fallbackErr := mail.NewSMTPMailer(mail.SMTPSettings{Enabled: false})
	if fallbackErr != nil {
		// Unreachable: a disabled configuration never fails validation.
		panic(fallbackErr)
	}
	return mailer
}

func initialiseDatabase(cfg *app.Config) (*gorm.DB, error) {
	db, err := database.Open(cfg.Database.StoreConfig())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := database.AutoMigrateAndSeed(db); err != nil {
		return nil, fmt.Errorf("auto-migrate database: %w", err)
	}

	return db, nil
}

func closeDatabase(db *gorm.DB, log *zap.Logger) {
	sqlDB, err := db.DB()
	if err != nil {
		log.Warn("database close failed", zap.Error(err))
		return
	}
	if err := sqlDB.Close(); err != nil {
		log.Warn("database close failed", zap.Error(err))
	}
}
