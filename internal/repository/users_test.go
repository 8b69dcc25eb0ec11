package repository

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/ratecon-intake/internal/common"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(context.Background(), Config{DSN: "sqlite:" + filepath.Join(t.TempDir(), "users.db")}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close(nil) })
	return db
}

func TestResolveDSN(t *testing.T) {
	tests := []struct {
		cfg     Config
		dialect Dialect
		dsn     string
	}{
		{Config{}, SQLite, "./bot_database.db"},
		{Config{SQLitePath: "/var/lib/bot.db"}, SQLite, "/var/lib/bot.db"},
		{Config{DSN: "postgres://u:p@h/db"}, Postgres, "postgres://u:p@h/db"},
		{Config{DSN: "postgresql://u@h/db"}, Postgres, "postgresql://u@h/db"},
		{Config{DSN: "sqlite+aiosqlite:///./bot_database.db"}, SQLite, "./bot_database.db"},
		{Config{DSN: "sqlite:///data/x.db"}, SQLite, "data/x.db"},
		{Config{DSN: "sqlite:x.db"}, SQLite, "x.db"},
		{Config{DSN: "file::memory:?cache=shared"}, SQLite, "file::memory:?cache=shared"},
	}
	for _, tt := range tests {
		d, dsn := ResolveDSN(tt.cfg)
		assert.Equal(t, tt.dialect, d, tt.cfg.DSN)
		assert.Equal(t, tt.dsn, dsn, tt.cfg.DSN)
	}
}

func TestRebind(t *testing.T) {
	pg := &DB{Dialect: Postgres}
	assert.Equal(t, "UPDATE users SET a = $1 WHERE b = $2", pg.rebind("UPDATE users SET a = ? WHERE b = ?"))
	lite := &DB{Dialect: SQLite}
	assert.Equal(t, "a = ?", lite.rebind("a = ?"))
}

func TestUserRepository_GetOrCreate(t *testing.T) {
	ctx := context.Background()
	repo := NewUserRepository(openTestDB(t), nil)

	u, err := repo.GetOrCreate(ctx, 42, "alice", 2)
	require.NoError(t, err)
	assert.Equal(t, int64(42), u.TelegramID)
	assert.Equal(t, "alice", u.Username)
	assert.Equal(t, 2, u.FreeUses)
	assert.False(t, u.IsPro)
	assert.Nil(t, u.ExpiryDate)
	assert.False(t, u.HasTemplate())

	again, err := repo.GetOrCreate(ctx, 42, "renamed", 5)
	require.NoError(t, err)
	assert.Equal(t, u.ID, again.ID)
	assert.Equal(t, "alice", again.Username)
	assert.Equal(t, 2, again.FreeUses)
}

func TestUserRepository_NotFound(t *testing.T) {
	ctx := context.Background()
	repo := NewUserRepository(openTestDB(t), nil)

	_, err := repo.GetByTelegramID(ctx, 7)
	assert.ErrorIs(t, err, common.ErrNotFound)

	tpl := "x"
	assert.ErrorIs(t, repo.SetTemplate(ctx, 7, &tpl), common.ErrNotFound)
	assert.ErrorIs(t, repo.SetPro(ctx, 7, true, nil), common.ErrNotFound)
}

func TestUserRepository_Template(t *testing.T) {
	ctx := context.Background()
	repo := NewUserRepository(openTestDB(t), nil)
	_, err := repo.GetOrCreate(ctx, 1, "", 2)
	require.NoError(t, err)

	tpl := "<b>{{ broker }}</b>"
	require.NoError(t, repo.SetTemplate(ctx, 1, &tpl))
	u, err := repo.GetByTelegramID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, tpl, u.Template())

	require.NoError(t, repo.SetTemplate(ctx, 1, nil))
	u, err = repo.GetByTelegramID(ctx, 1)
	require.NoError(t, err)
	assert.Nil(t, u.TemplateText)
}

func TestUserRepository_DecrementStopsAtZero(t *testing.T) {
	ctx := context.Background()
	repo := NewUserRepository(openTestDB(t), nil)
	_, err := repo.GetOrCreate(ctx, 1, "", 2)
	require.NoError(t, err)

	for _, want := range []int{1, 0, 0} {
		left, err := repo.DecrementFreeUses(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, want, left)
	}
	_, err = repo.DecrementFreeUses(ctx, 99)
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestUserRepository_SetPro(t *testing.T) {
	ctx := context.Background()
	repo := NewUserRepository(openTestDB(t), nil)
	_, err := repo.GetOrCreate(ctx, 1, "", 2)
	require.NoError(t, err)

	exp := time.Date(2030, 1, 2, 3, 4, 5, 0, time.UTC)
	require.NoError(t, repo.SetPro(ctx, 1, true, &exp))
	u, err := repo.GetByTelegramID(ctx, 1)
	require.NoError(t, err)
	assert.True(t, u.IsPro)
	require.NotNil(t, u.ExpiryDate)
	assert.True(t, exp.Equal(*u.ExpiryDate))

	require.NoError(t, repo.SetPro(ctx, 1, false, nil))
	u, err = repo.GetByTelegramID(ctx, 1)
	require.NoError(t, err)
	assert.False(t, u.IsPro)
	assert.Nil(t, u.ExpiryDate)
}

func TestUserRepository_List(t *testing.T) {
	ctx := context.Background()
	repo := NewUserRepository(openTestDB(t), nil)
	for _, id := range []int64{3, 1, 2} {
		_, err := repo.GetOrCreate(ctx, id, "", 2)
		require.NoError(t, err)
	}
	users, err := repo.List(ctx, 2)
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, int64(3), users[0].TelegramID)
	assert.Equal(t, int64(1), users[1].TelegramID)
}

func TestHealthCheck(t *testing.T) {
	db := openTestDB(t)
	assert.NoError(t, HealthCheck(context.Background(), db, time.Second, nil))
}
