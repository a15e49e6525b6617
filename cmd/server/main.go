// Command main is the entry point for the Playroom backend server.
package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"playroom/internal/config"
	"playroom/internal/observability"
	"playroom/internal/server"
	"playroom/internal/store"
	"playroom/internal/store/gormstore"
	"playroom/internal/store/memstore"
	"playroom/internal/store/redisstore"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	observability.Init(slog.LevelInfo, cfg.Env)

	st, closeStore, err := openStore(cfg)
	if err != nil {
		log.Fatalf("Failed to open %s store: %v", cfg.StoreBackend, err)
	}

	srv := server.NewServer(cfg, st)

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Println("Shutting down server...")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			log.Printf("Server shutdown error: %v", err)
		}
		if err := closeStore(); err != nil {
			log.Printf("Store close error: %v", err)
		}
		os.Exit(0)
	}()

	log.Fatal(srv.Start())
}

// openStore builds the configured document store backend.
func openStore(cfg *config.Config) (store.Store, func() error, error) {
	switch cfg.StoreBackend {
	case config.BackendRedis:
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisURL})
		st := redisstore.New(rdb, observability.Component("redisstore"))
		return st, func() error {
			if err := st.Close(); err != nil {
				return err
			}
			return rdb.Close()
		}, nil

	case config.BackendSQLite:
		db, err := gorm.Open(sqlite.Open(cfg.SQLitePath), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		})
		if err != nil {
			return nil, nil, err
		}
		st, err := gormstore.New(db, observability.Component("gormstore"))
		if err != nil {
			return nil, nil, err
		}
		return st, func() error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.Close()
		}, nil

	default:
		return memstore.New(), func() error { return nil }, nil
	}
}
