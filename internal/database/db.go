package database

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"puzzletrainer/internal/config"
	"puzzletrainer/internal/logger"
	"puzzletrainer/internal/models"
)

const maxRetries = 10

// Stores holds every connection the service uses.
type Stores struct {
	DB     *gorm.DB
	Corpus *sql.DB
	Redis  *redis.Client
}

// Close releases all connections.
func (s *Stores) Close() {
	if s.Redis != nil {
		_ = s.Redis.Close()
	}
	if s.Corpus != nil {
		_ = s.Corpus.Close()
	}
	if s.DB != nil {
		if sqlDB, err := s.DB.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
}

// Open connects to MySQL, the puzzle corpus and Redis, waiting for the servers to come up.
func Open(ctx context.Context, cfg config.Config, logg *logger.Logger) (*Stores, error) {
	db, err := OpenMySQL(cfg, logg)
	if err != nil {
		return nil, err
	}
	stores := &Stores{DB: db}

	stores.Corpus, err = OpenCorpus(cfg.PuzzleDBPath, true)
	if err != nil {
		stores.Close()
		return nil, err
	}
	logg.Info("opened puzzle corpus", "path", cfg.PuzzleDBPath)

	stores.Redis, err = OpenRedis(ctx, cfg, logg)
	if err != nil {
		stores.Close()
		return nil, err
	}
	return stores, nil
}

// OpenMySQL opens the user-state database with retries and migrates the schema.
func OpenMySQL(cfg config.Config, logg *logger.Logger) (*gorm.DB, error) {
	gormLog := gormLogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormLogger.Config{
			SlowThreshold:             1 * time.Second,
			LogLevel:                  gormLogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	var db *gorm.DB
	var err error
	for i := 1; i <= maxRetries; i++ {
		db, err = gorm.Open(mysql.Open(cfg.MySQLDSN()), &gorm.Config{Logger: gormLog})
		if err == nil {
			break
		}
		logg.Warn("waiting for MySQL", "attempt", i, "of", maxRetries, "error", err)
		time.Sleep(3 * time.Second)
	}
	if err != nil {
		return nil, fmt.Errorf("connect to MySQL after %d attempts: %w", maxRetries, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)

	if err := db.AutoMigrate(models.AllModels()...); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	logg.Info("connected to MySQL", "database", cfg.MySQLDatabase)
	return db, nil
}

// OpenCorpus opens the SQLite puzzle corpus.
func OpenCorpus(path string, readOnly bool) (*sql.DB, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("puzzle corpus %q: %w", path, err)
	}
	dsn := "file:" + path + "?_busy_timeout=5000"
	if readOnly {
		dsn += "&mode=ro"
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open puzzle corpus: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("open puzzle corpus: %w", err)
	}
	return db, nil
}

// OpenRedis connects to Redis with retries.
func OpenRedis(ctx context.Context, cfg config.Config, logg *logger.Logger) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr(),
		Password: cfg.RedisPassword,
		DB:       0,
	})

	var err error
	for i := 1; i <= maxRetries; i++ {
		err = client.Ping(ctx).Err()
		if err == nil {
			break
		}
		logg.Warn("waiting for Redis", "attempt", i, "of", maxRetries)
		time.Sleep(2 * time.Second)
	}
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to Redis after %d attempts: %w", maxRetries, err)
	}
	logg.Info("connected to Redis", "addr", cfg.RedisAddr())
	return client, nil
}
