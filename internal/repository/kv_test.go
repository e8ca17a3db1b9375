package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	_, ok, err := s.Get(ctx, "photos")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Set(ctx, "photos", `["1.jpeg"]`))
	require.NoError(t, s.Set(ctx, "abc", "x"))

	v, ok, err := s.Get(ctx, "photos")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, `["1.jpeg"]`, v)

	keys, err := s.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"abc", "photos"}, keys)

	require.NoError(t, s.Remove(ctx, "photos"))
	require.NoError(t, s.Remove(ctx, "photos"))

	_, ok, err = s.Get(ctx, "photos")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestNamespaced(t *testing.T) {
	ctx := context.Background()
	base := NewMemoryStore()
	require.NoError(t, base.Set(ctx, "other", "1"))

	ns := Namespaced{Store: base, Prefix: "org.bikeaction.laser/"}
	require.NoError(t, ns.Set(ctx, "photos", "[]"))

	v, ok, err := base.Get(ctx, "org.bikeaction.laser/photos")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "[]", v)

	keys, err := ns.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"photos"}, keys)

	require.NoError(t, ns.Remove(ctx, "photos"))
	_, ok, _ = ns.Get(ctx, "photos")
	assert.False(t, ok)
}
