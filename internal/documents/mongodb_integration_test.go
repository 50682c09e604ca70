//go:build integration

package documents

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tierguard/internal/testinfra"
	"tierguard/pkg/migrations"
)

func TestMongoStore(t *testing.T) {
	infra := testinfra.Setup(t, testinfra.Options{Mongo: true})
	ctx := context.Background()

	require.NoError(t, migrations.EnsureMongoCollection(ctx, infra.MongoDB, "config_documents"))
	store := NewMongoStore(infra.MongoDB, "config_documents")

	_, err := store.Read(ctx, "automod")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, store.Restore(ctx, "automod"), ErrNoBackup)

	require.NoError(t, store.Write(ctx, "automod", []byte("v1")))
	hasBackup, err := store.HasBackup(ctx, "automod")
	require.NoError(t, err)
	assert.False(t, hasBackup)

	require.NoError(t, store.Write(ctx, "automod", []byte("v2")))
	hasBackup, err = store.HasBackup(ctx, "automod")
	require.NoError(t, err)
	assert.True(t, hasBackup)

	data, err := store.Read(ctx, "automod")
	require.NoError(t, err)
	assert.Equal(t, "v2", string(data))

	require.NoError(t, store.Restore(ctx, "automod"))
	data, err = store.Read(ctx, "automod")
	require.NoError(t, err)
	assert.Equal(t, "v1", string(data))
}
