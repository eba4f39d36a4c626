//go:build wireinject
// +build wireinject

package main

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/google/wire"

	"relay/config"
	"relay/internal/bus"
	"relay/internal/cache"
	"relay/internal/database"
	"relay/internal/devices"
	"relay/internal/gateway"
	"relay/internal/identity"
	"relay/internal/media"
	"relay/internal/messages"
	"relay/internal/metrics"
	"relay/internal/presence"
	"relay/internal/readstatus"
	"relay/internal/registry"
	"relay/internal/rooms"
	"relay/pkg/jwt"
)

var AppSet = wire.NewSet(
	ProvideDatabase,
	ProvideCache,
	ProvideJWT,
	ProvideTracker,
	ProvideResolver,
	ProvideBus,
	ProvideDeviceStorage,
	identity.NewService,
	wire.Bind(new(identity.Verifier), new(*identity.Service)),
	wire.Bind(new(identity.Directory), new(*identity.Service)),
	registry.New,
	rooms.NewRepository,
	messages.NewRepository,
	readstatus.NewStore,
	metrics.NewDefault,
	gateway.NewServer,
)

func InitializeServer(cfg *config.Config, sqlDB *sql.DB, logger *slog.Logger) (*gateway.Server, error) {
	wire.Build(AppSet)
	return &gateway.Server{}, nil
}

func ProvideDatabase(cfg *config.Config) (*database.Database, error) {
	db, err := database.NewDatabase(cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(); err != nil {
		return nil, err
	}
	return db, nil
}

func ProvideCache(cfg *config.Config) (*cache.RedisCache, error) {
	return cache.NewRedisCache(cfg.RedisAddr, cfg.RedisPassword)
}

func ProvideJWT(cfg *config.Config) *jwt.JWT {
	return jwt.NewJWT(cfg.JWTSecret, 30*24*3600)
}

func ProvideTracker(c *cache.RedisCache) presence.Tracker {
	return presence.NewRedisTracker(c)
}

func ProvideResolver(cfg *config.Config) media.Resolver {
	return media.NewDiskStore(cfg.UploadDir, cfg.SiteURL)
}

func ProvideBus(c *cache.RedisCache, logger *slog.Logger) bus.Bus {
	return bus.NewRedisBus(c, gateway.ProcessID(), logger)
}

func ProvideDeviceStorage(sqlDB *sql.DB) (*devices.Storage, error) {
	storage := devices.NewStorage(sqlDB)
	if err := storage.EnsureSchema(context.Background()); err != nil {
		return nil, err
	}
	return storage, nil
}
