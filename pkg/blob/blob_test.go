package blob

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryClientRoundTrip(t *testing.T) {
	c := NewMemoryClient("memory://bucket/")
	ctx := context.Background()

	obj, err := c.Upload(ctx, "tenants/acme/avatar/1.png", strings.NewReader("png"), 3, "image/png")
	require.NoError(t, err)
	assert.Equal(t, "memory://bucket/tenants/acme/avatar/1.png", obj.URL)
	assert.EqualValues(t, 3, obj.Size)

	key, ok := c.KeyFromURL(obj.URL)
	require.True(t, ok)
	assert.Equal(t, obj.Key, key)

	data, ct, ok := c.Get(key)
	require.True(t, ok)
	assert.Equal(t, "png", string(data))
	assert.Equal(t, "image/png", ct)

	require.NoError(t, c.Delete(ctx, key))
	assert.Equal(t, 0, c.Len())
}

func TestKeyFromURLRejectsForeignURL(t *testing.T) {
	_, ok := keyFromURL("https://cdn.kinship.app", "https://example.com/a.png")
	assert.False(t, ok)
	_, ok = keyFromURL("https://cdn.kinship.app", "https://cdn.kinship.app/")
	assert.False(t, ok)
}
