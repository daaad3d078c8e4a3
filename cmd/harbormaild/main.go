package main

import (
	"fmt"
	"log"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/harbormail/authkit/api"
	"github.com/harbormail/authkit/config"
	"github.com/harbormail/authkit/directory"
	"github.com/harbormail/authkit/ledger"
	"github.com/harbormail/authkit/logger"
	"github.com/harbormail/authkit/provider"
	"github.com/harbormail/authkit/token"
	"github.com/harbormail/authkit/validate"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/thejerf/abtime"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger.InitLogger(cfg.LogLevel)
	defer logger.Log.Sync()

	logger.Log.Info("starting Harbormail auth service",
		zap.Int("port", cfg.Port),
		zap.String("ledger", cfg.Ledger),
		zap.Strings("providers", cfg.ProviderNames()),
	)

	clock := abtime.NewRealTime()

	keys, err := buildKeyRing(cfg)
	if err != nil {
		logger.Log.Fatal("failed to build token key ring", zap.Error(err))
	}

	led, err := buildLedger(cfg, clock)
	if err != nil {
		logger.Log.Fatal("failed to initialize registration ledger", zap.Error(err))
	}

	lifetimes := provider.Lifetimes{
		Auth:                cfg.AuthTokenLifetime,
		Admin:               cfg.AdminAuthTokenLifetime,
		TwoFactor:           cfg.TwoFactorAuthTokenLifetime,
		TwoFactorEnablement: cfg.TwoFactorEnablementTokenLifetime,
	}

	codec := token.NewCodec(keys)
	registry := provider.NewRegistry(logger.Log)
	registry.Register(provider.NewHarborProvider(codec, led, clock, lifetimes, cfg.TokenCacheSize))
	if cfg.JWTSecret != "" {
		registry.Register(provider.NewJWTProvider([]byte(cfg.JWTSecret), led, clock, lifetimes))
	}
	registry.Refresh(cfg.ProviderNames())

	dir := directory.NewMemDirectory()

	validator := validate.NewValidator(dir, led, clock, logger.Log)
	validator.Skew = cfg.TokenClockSkew

	h := api.NewHandler(registry, validator, dir, dir, led, logger.Log)

	e := echo.New()
	e.HideBanner = true

	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	g := e.Group("/api/v1")
	h.RegisterRoutes(g)

	logger.Log.Info("server is starting", zap.Int("port", cfg.Port))
	if err := e.Start(fmt.Sprintf(":%d", cfg.Port)); err != nil {
		logger.Log.Fatal("server failed to start", zap.Error(err))
	}
}

func buildKeyRing(cfg *config.Config) (*token.KeyRing, error) {
	if cfg.TokenSecret != "" {
		return token.NewKeyRing(token.Key{Version: "1", Secret: []byte(cfg.TokenSecret)})
	}
	// tokens minted against a generated key do not survive a restart
	logger.Log.Warn("TOKEN_SECRET not set, generating an ephemeral key")
	key, err := token.GenerateKey("1")
	if err != nil {
		return nil, err
	}
	return token.NewKeyRing(key)
}

func buildLedger(cfg *config.Config, clock abtime.AbstractTime) (ledger.Ledger, error) {
	switch cfg.Ledger {
	case "memory", "":
		led := ledger.NewMemory(clock, cfg.TokenClockSkew)
		go func() {
			for range time.Tick(time.Hour) {
				if n := led.Evict(); n > 0 {
					logger.Log.Debug("evicted expired registrations", zap.Int("count", n))
				}
			}
		}()
		return led, nil
	case "sqlite":
		db, err := gorm.Open(sqlite.Open(cfg.DSN), &gorm.Config{})
		if err != nil {
			return nil, err
		}
		led, err := ledger.NewGorm(db, clock, cfg.TokenClockSkew)
		if err != nil {
			return nil, err
		}
		go func() {
			for range time.Tick(time.Hour) {
				if n, err := led.Purge(); err != nil {
					logger.Log.Error("registration purge failed", zap.Error(err))
				} else if n > 0 {
					logger.Log.Debug("purged expired registrations", zap.Int64("count", n))
				}
			}
		}()
		return led, nil
	}
	return nil, fmt.Errorf("unknown ledger backend %q", cfg.Ledger)
}
