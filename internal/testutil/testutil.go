// Package testutil holds fixtures shared by package tests.
package testutil

import (
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/weiawesome/wes-io-chat/internal/domain"
	"github.com/weiawesome/wes-io-chat/pkg/database"
)

// NewDB opens a migrated sqlite database in a temp dir. A single
// connection keeps sqlite writers serialised.
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := database.New(&database.Config{
		Driver:       "sqlite",
		FilePath:     filepath.Join(t.TempDir(), "chat.db"),
		MaxOpenConns: 1,
		MaxIdleConns: 1,
		LogLevel:     "silent",
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close(db) })

	require.NoError(t, database.AutoMigrate(db, domain.AllModels()...))
	return db
}

// SeedUser inserts a user row.
func SeedUser(t *testing.T, db *gorm.DB, id int64, name string) domain.User {
	t.Helper()

	m := &domain.UserModel{ID: id, Name: name, Nickname: name + "_nick", Email: name + "@example.com"}
	require.NoError(t, db.Create(m).Error)
	return *m.ToDomain()
}

// SeedAdmin inserts an administrator.
func SeedAdmin(t *testing.T, db *gorm.DB, id int64, name string) domain.User {
	t.Helper()

	m := &domain.UserModel{ID: id, Name: name, Nickname: name + "_nick", IsAdmin: true}
	require.NoError(t, db.Create(m).Error)
	return *m.ToDomain()
}

// NewRedis starts a miniredis server and returns a client for it.
func NewRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}
