package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tipjar/broker/internal/models"
)

func TestDirectory_CreateRejectsCaseInsensitiveDuplicate(t *testing.T) {
	env := newTestEnv(t, true)
	ctx := context.Background()

	created := env.createStreamer(t, "id-1", "AlexAnarcho", "Alex")
	assert.False(t, created.CreationDate.IsZero())
	assert.Equal(t, int64(1), created.Revision)

	for _, name := range []string{"alexanarcho", "ALEXANARCHO", " AlexAnarcho "} {
		_, err := env.directory.Create(ctx, &models.StreamerProfile{ID: "id-" + name, UserName: name})
		assert.ErrorIs(t, err, models.ErrDuplicateUserName, name)
	}
}

func TestDirectory_CreateNeverStartsOnline(t *testing.T) {
	env := newTestEnv(t, true)

	p, err := env.directory.Create(context.Background(), &models.StreamerProfile{ID: "id-1", UserName: "a", IsOnline: true})
	require.NoError(t, err)
	assert.False(t, p.IsOnline)
}

func TestDirectory_Finders(t *testing.T) {
	env := newTestEnv(t, true)
	ctx := context.Background()
	env.createStreamer(t, "id-1", "Monerobird", "Bird")

	p, err := env.directory.FindByID(ctx, "id-1")
	require.NoError(t, err)
	assert.Equal(t, "Monerobird", p.UserName)

	p, err = env.directory.FindByUserName(ctx, "MONEROBIRD")
	require.NoError(t, err)
	assert.Equal(t, "id-1", p.ID)

	_, err = env.directory.FindByID(ctx, "missing")
	assert.ErrorIs(t, err, models.ErrNotFound)

	_, err = env.directory.FindByConnectionHandle(ctx, "conn-1")
	assert.ErrorIs(t, err, models.ErrNotFound)

	env.bindings.Bind("id-1", "conn-1")
	p, err = env.directory.FindByConnectionHandle(ctx, "conn-1")
	require.NoError(t, err)
	assert.Equal(t, "id-1", p.ID)
}

func TestDirectory_Update(t *testing.T) {
	env := newTestEnv(t, true)
	ctx := context.Background()
	p := env.createStreamer(t, "id-1", "alex", "Alex")

	stale := *p
	edit := *p
	edit.DisplayName = "Alex (live)"
	edit.AnimationSettings.Goal = 5

	updated, err := env.directory.Update(ctx, &edit)
	require.NoError(t, err)
	assert.Equal(t, int64(2), updated.Revision)
	assert.Equal(t, "Alex (live)", updated.DisplayName)

	_, err = env.directory.Update(ctx, &stale)
	assert.ErrorIs(t, err, models.ErrStoreConflict)

	_, err = env.directory.Update(ctx, &models.StreamerProfile{ID: "ghost", UserName: "ghost", Revision: 1})
	assert.ErrorIs(t, err, models.ErrNotFound)

	_, err = env.directory.FindByUserName(ctx, "ghost")
	assert.ErrorIs(t, err, models.ErrNotFound, "update must not create")
}

func TestDirectory_StoresTrimmedUserNames(t *testing.T) {
	env := newTestEnv(t, true)
	ctx := context.Background()

	created, err := env.directory.Create(ctx, &models.StreamerProfile{ID: "id-1", UserName: " alex "})
	require.NoError(t, err)
	assert.Equal(t, "alex", created.UserName)

	carol := env.createStreamer(t, "id-2", "carol", "Carol")

	rename := *carol
	rename.UserName = " Alex"
	_, err = env.directory.Update(ctx, &rename)
	assert.ErrorIs(t, err, models.ErrDuplicateUserName)

	rename.UserName = " Caroline "
	updated, err := env.directory.Update(ctx, &rename)
	require.NoError(t, err)
	assert.Equal(t, "Caroline", updated.UserName)

	stored, err := env.directory.FindByUserName(ctx, "caroline")
	require.NoError(t, err)
	assert.Equal(t, "Caroline", stored.UserName)
}

func TestDirectory_SetOnlineStatusIsIdempotent(t *testing.T) {
	env := newTestEnv(t, true)
	ctx := context.Background()
	env.createStreamer(t, "id-1", "alex", "Alex")

	require.NoError(t, env.directory.SetOnlineStatus(ctx, "id-1", true))
	require.NoError(t, env.directory.SetOnlineStatus(ctx, "id-1", true))
	require.NoError(t, env.directory.SetOnlineStatus(ctx, "id-1", false))
	require.NoError(t, env.directory.SetOnlineStatus(ctx, "id-1", false))

	assert.ErrorIs(t, env.directory.SetOnlineStatus(ctx, "ghost", true), models.ErrNotFound)
}

func TestDirectory_ListOnline(t *testing.T) {
	env := newTestEnv(t, true)
	ctx := context.Background()
	env.createStreamer(t, "id-1", "zed", "Zed")
	env.createStreamer(t, "id-2", "amy", "Amy")
	env.createStreamer(t, "id-3", "bob", "Bob")
	env.createStreamer(t, "id-4", "max", "Max")
	for _, id := range []string{"id-1", "id-2", "id-4"} {
		require.NoError(t, env.directory.SetOnlineStatus(ctx, id, true))
	}

	var names []string
	for p, err := range env.directory.ListOnline(ctx) {
		require.NoError(t, err)
		assert.True(t, p.IsOnline)
		names = append(names, p.DisplayName)
	}
	assert.Equal(t, []string{"Amy", "Max", "Zed"}, names)

	// Early break then a second range starts from the beginning.
	for p := range env.directory.ListOnline(ctx) {
		assert.Equal(t, "Amy", p.DisplayName)
		break
	}
	count := 0
	for range env.directory.ListOnline(ctx) {
		count++
	}
	assert.Equal(t, 3, count)
}

func TestDirectory_ResetOnline(t *testing.T) {
	env := newTestEnv(t, true)
	ctx := context.Background()
	env.createStreamer(t, "id-1", "alex", "Alex")
	require.NoError(t, env.directory.SetOnlineStatus(ctx, "id-1", true))

	require.NoError(t, env.directory.ResetOnline(ctx))

	p, err := env.directory.FindByID(ctx, "id-1")
	require.NoError(t, err)
	assert.False(t, p.IsOnline)
}

func TestDirectory_SeedSkipsExisting(t *testing.T) {
	env := newTestEnv(t, true)
	env.createStreamer(t, "id-1", "alex", "Alex")

	added, err := env.directory.Seed(context.Background(), []models.StreamerProfile{
		{ID: "id-1", UserName: "alex"},
		{ID: "id-2", UserName: "ALEX"},
		{ID: "id-3", UserName: "bob"},
		{UserName: "no-id"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, added)
}
