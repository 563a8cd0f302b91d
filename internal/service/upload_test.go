package service

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Kinship/pkg/blob"
	pkgerrors "Kinship/pkg/errors"
)

// 最小 PNG 文件头
var pngBytes = append([]byte("\x89PNG\r\n\x1a\n"), make([]byte, 32)...)

func newUploads(max int64) (*UploadService, *blob.MemoryClient) {
	store := blob.NewMemoryClient("https://cdn.example.com")
	ids := []string{"id-1", "id-2", "id-3"}
	next := 0
	svc := NewUploadService(store, max, func() string {
		id := ids[next]
		next++
		return id
	})
	return svc, store
}

func TestUploadStoresImageUnderTenantPath(t *testing.T) {
	svc, store := newUploads(1024)

	obj, err := svc.Upload(context.Background(), "acme", UploadAvatar, bytes.NewReader(pngBytes), "")
	require.NoError(t, err)
	assert.Equal(t, "tenants/acme/avatars/id-1.png", obj.Key)
	assert.Equal(t, "https://cdn.example.com/tenants/acme/avatars/id-1.png", obj.URL)

	data, contentType, ok := store.Get(obj.Key)
	require.True(t, ok)
	assert.Equal(t, "image/png", contentType)
	assert.Equal(t, pngBytes, data)
}

func TestUploadReplacesPreviousObject(t *testing.T) {
	svc, store := newUploads(1024)
	ctx := context.Background()

	first, err := svc.Upload(ctx, "acme", UploadCommunityImage, bytes.NewReader(pngBytes), "")
	require.NoError(t, err)

	second, err := svc.Upload(ctx, "acme", UploadCommunityImage, bytes.NewReader(pngBytes), first.URL)
	require.NoError(t, err)
	assert.Equal(t, "tenants/acme/communities/id-2.png", second.Key)

	_, _, ok := store.Get(first.Key)
	assert.False(t, ok, "previous object is deleted")
	assert.Equal(t, 1, store.Len())

	// 外部 URL 不删除
	_, err = svc.Upload(ctx, "acme", UploadAvatar, bytes.NewReader(pngBytes), "https://img.other.com/a.png")
	require.NoError(t, err)
	assert.Equal(t, 2, store.Len())
}

func TestUploadRejections(t *testing.T) {
	svc, store := newUploads(16)
	ctx := context.Background()

	_, err := svc.Upload(ctx, "acme", UploadAvatar, bytes.NewReader(pngBytes), "")
	assert.ErrorIs(t, err, pkgerrors.UploadTooLarge)

	_, err = svc.Upload(ctx, "acme", UploadAvatar, strings.NewReader("plain text"), "")
	assert.ErrorIs(t, err, pkgerrors.UploadTypeUnsupported)

	_, err = svc.Upload(ctx, "acme", UploadAvatar, strings.NewReader(""), "")
	assert.ErrorIs(t, err, pkgerrors.UploadTypeUnsupported)

	svc, store = newUploads(1024)
	store.FailWith(errBoom)
	_, err = svc.Upload(ctx, "acme", UploadAvatar, bytes.NewReader(pngBytes), "")
	assert.ErrorIs(t, err, pkgerrors.UploadFailed)

	// 未配置存储
	_, err = NewUploadService(nil, 1024, nil).Upload(ctx, "acme", UploadAvatar, bytes.NewReader(pngBytes), "")
	assert.ErrorIs(t, err, pkgerrors.UploadFailed)
}

func TestUploadKindForField(t *testing.T) {
	kind, ok := UploadKindForField("avatar")
	assert.True(t, ok)
	assert.Equal(t, UploadAvatar, kind)

	_, ok = UploadKindForField("bio")
	assert.False(t, ok)
}
