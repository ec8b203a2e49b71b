package repositories

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/tipjar/broker/internal/db"
	"github.com/tipjar/broker/internal/models"
	"github.com/tipjar/broker/migrations"
	"go.uber.org/zap"
)

func setupPostgres(t *testing.T) *pgxpool.Pool {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	ctx := context.Background()

	var pgContainer *postgres.PostgresContainer
	var err error
	func() {
		defer func() {
			if r := recover(); r != nil {
				t.Skipf("Skipping integration test, docker unavailable: %v", r)
			}
		}()
		pgContainer, err = postgres.Run(ctx,
			"postgres:16-alpine",
			postgres.WithDatabase("tipjar"),
			postgres.WithUsername("tipjar"),
			postgres.WithPassword("tipjar"),
			testcontainers.WithWaitStrategy(
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2).
					WithStartupTimeout(30*time.Second)),
		)
	}()
	require.NoError(t, err)
	t.Cleanup(func() { _ = pgContainer.Terminate(ctx) })

	dsn, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := db.NewPostgresPool(ctx, dsn, db.PoolOptions{MaxConns: 4}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	applied, err := db.RunMigrations(ctx, pool, migrations.FS, zap.NewNop())
	require.NoError(t, err)
	require.Positive(t, applied)

	again, err := db.RunMigrations(ctx, pool, migrations.FS, zap.NewNop())
	require.NoError(t, err)
	require.Zero(t, again, "migrations are recorded once")

	return pool
}

func TestStreamerRepo_Integration(t *testing.T) {
	pool := setupPostgres(t)
	r := NewStreamerRepo(pool)
	ctx := context.Background()

	alex := &models.StreamerProfile{
		ID:                "id-1",
		UserName:          "AlexAnarcho",
		DisplayName:       "Alex",
		Stream:            models.StreamInfo{Platform: "twitch", URL: "https://twitch.tv/alex"},
		AnimationSettings: models.AnimationSettings{Goal: 10, ShowGoal: true},
		CreationDate:      time.Now().UTC().Truncate(time.Millisecond),
	}
	require.NoError(t, r.Insert(ctx, alex))
	assert.Equal(t, int64(1), alex.Revision)

	t.Run("duplicates", func(t *testing.T) {
		err := r.Insert(ctx, &models.StreamerProfile{ID: "id-2", UserName: "alexanarcho", CreationDate: time.Now()})
		assert.ErrorIs(t, err, models.ErrDuplicateUserName)

		err = r.Insert(ctx, &models.StreamerProfile{ID: "id-2", UserName: " alexanarcho ", CreationDate: time.Now()})
		assert.ErrorIs(t, err, models.ErrDuplicateUserName, "padding does not make a new name")

		err = r.Insert(ctx, &models.StreamerProfile{ID: "id-1", UserName: "someone", CreationDate: time.Now()})
		assert.ErrorIs(t, err, models.ErrIdentityExists)
	})

	t.Run("lookup ignores case", func(t *testing.T) {
		got, err := r.GetByUserName(ctx, "ALEXANARCHO")
		require.NoError(t, err)
		assert.Equal(t, "id-1", got.ID)
		assert.Equal(t, "twitch", got.Stream.Platform)
		assert.Equal(t, 10.0, got.AnimationSettings.Goal)

		_, err = r.Get(ctx, "missing")
		assert.ErrorIs(t, err, models.ErrNotFound)
	})

	t.Run("update is compare and swap", func(t *testing.T) {
		require.NoError(t, r.SetOnline(ctx, "id-1", true))

		edit := *alex
		edit.DisplayName = "Alex Live"
		edit.IsOnline = false
		require.NoError(t, r.Update(ctx, &edit))
		assert.Equal(t, int64(2), edit.Revision)
		assert.True(t, edit.IsOnline, "update leaves is_online alone")

		stale := *alex
		assert.ErrorIs(t, r.Update(ctx, &stale), models.ErrStoreConflict)

		ghost := models.StreamerProfile{ID: "ghost", UserName: "ghost", Revision: 1}
		assert.ErrorIs(t, r.Update(ctx, &ghost), models.ErrNotFound)
	})

	t.Run("list online", func(t *testing.T) {
		for _, p := range []*models.StreamerProfile{
			{ID: "id-3", UserName: "zed", DisplayName: "Zed", CreationDate: time.Now()},
			{ID: "id-4", UserName: "amy", DisplayName: "Amy", CreationDate: time.Now()},
			{ID: "id-5", UserName: "off", DisplayName: "Off", CreationDate: time.Now()},
		} {
			require.NoError(t, r.Insert(ctx, p))
		}
		require.NoError(t, r.SetOnline(ctx, "id-3", true))
		require.NoError(t, r.SetOnline(ctx, "id-4", true))

		var names []string
		for p, err := range r.ListOnline(ctx) {
			require.NoError(t, err)
			names = append(names, p.DisplayName)
		}
		assert.Equal(t, []string{"Alex Live", "Amy", "Zed"}, names)

		require.NoError(t, r.ClearOnline(ctx))
		for range r.ListOnline(ctx) {
			t.Fatal("no streamer should be online after ClearOnline")
		}
		assert.ErrorIs(t, r.SetOnline(ctx, "ghost", true), models.ErrNotFound)
	})
}
