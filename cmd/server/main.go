package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"lapaksayur/backend/internal/cache"
	"lapaksayur/backend/internal/config"
	"lapaksayur/backend/internal/domain"
	"lapaksayur/backend/internal/httpapi"
	"lapaksayur/backend/internal/logger"
	"lapaksayur/backend/internal/scheduler"
	"lapaksayur/backend/internal/service"
	"lapaksayur/backend/internal/store"
	"lapaksayur/backend/internal/store/memory"
	pgstore "lapaksayur/backend/internal/store/postgres"
)

func main() {
	cfg, err := config.Load(".env")
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	log := logger.Must(logger.New(cfg.LogLevel))
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Fatal("server exited", zap.Error(err))
	}
}

func run(cfg config.Config, log *zap.Logger) error {
	if err := validateSecurityConfig(cfg); err != nil {
		return fmt.Errorf("invalid security configuration: %w", err)
	}
	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	startupCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	var repo store.Repository
	closers := make([]func() error, 0, 2)

	if cfg.DatabaseURL != "" {
		pg, err := pgstore.New(startupCtx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("postgres unavailable and DATABASE_URL is set; refusing to start with in-memory fallback: %w", err)
		}
		closers = append(closers, pg.Close)
		if err := pgstore.Migrate(startupCtx, pg.DB()); err != nil {
			return err
		}
		if err := pg.SeedUsers(startupCtx, seedAccounts(log)); err != nil {
			return err
		}
		repo = pg
		log.Info("repository: postgres")
	} else {
		repo = memory.NewSeeded(logger.Named(log, "memory"))
		log.Info("repository: in-memory")
	}

	reports := cache.ReportCache(cache.NoopReportCache{})
	if cfg.RedisAddr != "" {
		redisCache := cache.NewRedisReportCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.ReportCacheTTL())
		if err := redisCache.Ping(startupCtx); err != nil {
			log.Warn("redis unavailable, using noop report cache", zap.Error(err))
			_ = redisCache.Close()
		} else {
			reports = redisCache
			closers = append(closers, redisCache.Close)
			log.Info("report cache: redis", zap.String("addr", cfg.RedisAddr))
		}
	} else {
		log.Info("report cache: noop")
	}

	svc := service.New(repo, reports, logger.Named(log, "service"), service.WithLocation(loc))
	auth := httpapi.NewAuthManager(cfg.AuthSecret, cfg.AccessTokenTTL(), cfg.ManagerPIN, repo, logger.Named(log, "auth"))
	api := httpapi.New(svc, auth, cfg.AllowedOrigin, logger.Named(log, "http"))

	sched, err := scheduler.New(cfg.ReportCron, loc, svc, logger.Named(log, "scheduler"))
	if err != nil {
		return err
	}
	if err := sched.Start(); err != nil {
		return err
	}

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Info("shop backend listening", zap.String("addr", cfg.Address()), zap.String("timezone", loc.String()))
	serveErr := serve(ctx, server)
	if serveErr != nil {
		log.Error("server error", zap.Error(serveErr))
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn("shutdown error", zap.Error(err))
	}
	sched.Stop(shutdownCtx)

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			log.Warn("close error", zap.Error(err))
		}
	}

	log.Info("server stopped")
	return serveErr
}

// serve runs server until ctx is done or it fails to serve. Only a failure is
// returned; a shutdown triggered by ctx is not an error.
func serve(ctx context.Context, server *http.Server) error {
	serveErr := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
		return nil
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("serve %s: %w", server.Addr, err)
		}
		return nil
	}
}

// seedAccounts returns the bootstrap accounts for a fresh database. Passwords
// are stored as given and upgraded to bcrypt on the first auth bootstrap.
func seedAccounts(log *zap.Logger) []domain.UserAccount {
	var accounts []domain.UserAccount
	for _, seed := range []struct {
		username string
		env      string
		role     string
	}{
		{"admin", "SEED_ADMIN_PASSWORD", domain.RoleAdmin},
		{"cashier", "SEED_CASHIER_PASSWORD", domain.RoleCashier},
	} {
		password := os.Getenv(seed.env)
		if password == "" {
			log.Warn("seed account skipped", zap.String("username", seed.username), zap.String("env", seed.env))
			continue
		}
		accounts = append(accounts, domain.UserAccount{
			Username: seed.username,
			Password: password,
			Role:     seed.role,
			Active:   true,
		})
	}
	return accounts
}

func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be set and at least 32 characters")
	}
	if len(cfg.ManagerPIN) < 6 {
		return fmt.Errorf("MANAGER_PIN must be set and at least 6 digits")
	}
	if err := validatePINStrength(cfg.ManagerPIN); err != nil {
		return fmt.Errorf("MANAGER_PIN is too weak: %w", err)
	}
	return nil
}

// validatePINStrength rejects PINs that are all the same digit,
// sequential (ascending or descending), or from a known-weak list.
func validatePINStrength(pin string) error {
	known := map[string]bool{
		"123456": true, "654321": true, "000000": true, "111111": true,
		"121212": true, "112233": true, "123123": true,
	}
	if known[pin] {
		return fmt.Errorf("common PIN not allowed")
	}

	allSame := true
	for i := 1; i < len(pin); i++ {
		if pin[i] != pin[0] {
			allSame = false
			break
		}
	}
	if allSame {
		return fmt.Errorf("all-same-digit PIN not allowed")
	}

	ascending, descending := true, true
	for i := 1; i < len(pin); i++ {
		diff := int(pin[i]) - int(pin[i-1])
		if diff != 1 {
			ascending = false
		}
		if diff != -1 {
			descending = false
		}
	}
	if ascending || descending {
		return fmt.Errorf("sequential PIN not allowed")
	}

	return nil
}
