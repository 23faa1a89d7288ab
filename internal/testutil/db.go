// Package testutil opens throwaway stores for package tests.
package testutil

import (
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"puzzletrainer/internal/models"
)

// NewUserDB returns a migrated in-memory SQLite database. It holds a single connection, so code
// running inside a transaction must use the transaction handle.
func NewUserDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(models.AllModels()...))
	return db
}

// NewRedis starts a miniredis server and returns a client for it.
func NewRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return client, mr
}

// SeedThemes creates one category and a trainable child per tag. It returns the children in tag order.
func SeedThemes(t *testing.T, db *gorm.DB, tags ...string) []models.Theme {
	t.Helper()
	category := models.Theme{Name: "Tactics"}
	require.NoError(t, db.Create(&category).Error)

	out := make([]models.Theme, 0, len(tags))
	for _, tag := range tags {
		tag := tag
		theme := models.Theme{
			Name:        tag,
			ExternalTag: &tag,
			ParentID:    &category.ID,
			Trainable:   true,
		}
		require.NoError(t, db.Create(&theme).Error)
		out = append(out, theme)
	}
	return out
}
