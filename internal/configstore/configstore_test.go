package configstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mergegate/pkg/models"
)

func TestLoadThresholds_MissingBlobDisablesAutoMerge(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	cfg, err := LoadThresholds(ctx, store)
	require.NoError(t, err)

	assert.False(t, cfg.Enabled, "auto-merge should be disabled when no thresholds are stored")
	assert.Equal(t, models.ModeAtMost, cfg.Mode)
	assert.True(t, cfg.AllowFallbackScore, "fallback scores should be allowed by default")
}

func TestThresholds_RoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	junit := 80
	saved := models.AutoMergeConfig{
		Enabled:             true,
		Mode:                models.ModeAtLeast,
		AIThreshold:         75,
		SonarThreshold:      3,
		JUnitThreshold:      &junit,
		RequireJUnitForJava: true,
		AllowFallbackScore:  false,
	}

	require.NoError(t, SaveThresholds(ctx, store, saved))

	loaded, err := LoadThresholds(ctx, store)
	require.NoError(t, err)

	assert.Equal(t, saved, loaded)
}

func TestDecode_AbsentAndPresent(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	var hosting HostingConfig
	found, err := Decode(ctx, store, TypeGitHub, &hosting)
	require.NoError(t, err)
	assert.False(t, found, "decode should report absence for a missing blob")

	require.NoError(t, store.Save(ctx, TypeGitHub, []byte(`{"owner":"acme","repo":"widget"}`)))

	found, err = Decode(ctx, store, TypeGitHub, &hosting)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "acme", hosting.Owner)
	assert.Equal(t, "widget", hosting.Repo)
}

func TestDecode_CorruptBlob(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.Save(ctx, TypeAI, []byte(`{not json`)))

	var ai AIConfig
	_, err := Decode(ctx, store, TypeAI, &ai)
	assert.Error(t, err)
}

func TestMemoryStore_DefensiveCopies(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	blob := []byte(`{"a":1}`)
	require.NoError(t, store.Save(ctx, TypeAI, blob))
	blob[0] = 'X'

	got, err := store.Get(ctx, TypeAI)
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, string(got), "stored blob must not alias the caller's slice")
}
