package favorites

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/doeshing/shai-bridge/internal/domain"
)

func TestYAMLStore(t *testing.T) {
	ctx := context.Background()
	store := NewYAMLStore(filepath.Join(t.TempDir(), "favorites.yaml"))
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	store.now = func() time.Time { return fixed }

	favs, err := store.Favorites(ctx)
	require.NoError(t, err)
	assert.Empty(t, favs)

	require.NoError(t, store.Save(ctx, domain.Favorite{Name: "disk", Command: "df -h", UsageCount: 4}))
	require.NoError(t, store.Save(ctx, domain.Favorite{Name: "after", Command: " ls -la "}))
	require.NoError(t, store.Save(ctx, domain.Favorite{Name: "disk", Command: "df -h /", Description: "root only"}))

	favs, err = store.Favorites(ctx)
	require.NoError(t, err)
	require.Len(t, favs, 2)
	assert.Equal(t, "after", favs[0].Name)
	assert.Equal(t, "ls -la", favs[0].Command)
	assert.Equal(t, "df -h /", favs[1].Command)
	assert.Equal(t, "root only", favs[1].Description)
	assert.Equal(t, 4, favs[1].UsageCount, "usage survives an update")
	assert.True(t, favs[1].UpdatedAt.Equal(fixed))

	require.NoError(t, store.Remove(ctx, "after"))
	assert.ErrorIs(t, store.Remove(ctx, "after"), ErrNotFound)

	favs, err = store.Favorites(ctx)
	require.NoError(t, err)
	require.Len(t, favs, 1)
	assert.Equal(t, "disk", favs[0].Name)
}

func TestYAMLStoreValidation(t *testing.T) {
	store := NewYAMLStore(filepath.Join(t.TempDir(), "favorites.yaml"))
	err := store.Save(context.Background(), domain.Favorite{Name: "x"})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestYAMLStoreCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "favorites.yaml")
	require.NoError(t, os.WriteFile(path, []byte("favorites: [\n"), 0o600))
	_, err := NewYAMLStore(path).Favorites(context.Background())
	assert.Error(t, err)
}
