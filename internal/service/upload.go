package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"Kinship/internal/model"
	"Kinship/pkg/blob"
	pkgerrors "Kinship/pkg/errors"
	"Kinship/pkg/logger"
	"Kinship/pkg/metrics"
)

// UploadKind 决定对象路径中的目录
type UploadKind string

const (
	UploadAvatar         UploadKind = "avatars"
	UploadCommunityImage UploadKind = "communities"
)

// DefaultUploadMaxBytes 5 MiB
const DefaultUploadMaxBytes int64 = 5 << 20

// sniffLen http.DetectContentType 最多读取的字节数
const sniffLen = 512

var imageExtensions = map[string]string{
	"image/png":  "png",
	"image/jpeg": "jpg",
	"image/gif":  "gif",
	"image/webp": "webp",
}

// UploadKindForField 向导中允许上传的字段
func UploadKindForField(field string) (UploadKind, bool) {
	switch field {
	case model.FieldAvatar:
		return UploadAvatar, true
	case model.FieldCommunityImage:
		return UploadCommunityImage, true
	default:
		return "", false
	}
}

type UploadService struct {
	store    blob.Client
	maxBytes int64
	newID    func() string
}

func NewUploadService(store blob.Client, maxBytes int64, newID func() string) *UploadService {
	if maxBytes <= 0 {
		maxBytes = DefaultUploadMaxBytes
	}
	if newID == nil {
		newID = uuid.NewString
	}
	return &UploadService{store: store, maxBytes: maxBytes, newID: newID}
}

// Upload 校验图片类型与大小后写入 tenants/{tenant}/{kind}/{uuid}.{ext}。
// previousURL 指向本存储的旧对象时尽力删除，删除失败不影响结果。
func (s *UploadService) Upload(ctx context.Context, tenantID string, kind UploadKind, body io.Reader, previousURL string) (*blob.Object, error) {
	if s.store == nil {
		return nil, pkgerrors.Wrap(pkgerrors.UploadFailed, errors.New("blob storage not configured"))
	}
	data, err := io.ReadAll(io.LimitReader(body, s.maxBytes+1))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.InvalidRequest, err)
	}
	if int64(len(data)) > s.maxBytes {
		return nil, pkgerrors.UploadTooLarge
	}
	if len(data) == 0 {
		return nil, pkgerrors.UploadTypeUnsupported
	}

	head := data
	if len(head) > sniffLen {
		head = head[:sniffLen]
	}
	contentType := http.DetectContentType(head)
	ext, ok := imageExtensions[contentType]
	if !ok {
		return nil, pkgerrors.UploadTypeUnsupported
	}

	key := fmt.Sprintf("tenants/%s/%s/%s.%s", tenantID, kind, s.newID(), ext)
	obj, err := s.store.Upload(ctx, key, bytes.NewReader(data), int64(len(data)), contentType)
	if err != nil {
		logger.Logger.Error("Failed to store upload",
			zap.String("tenant_id", tenantID),
			zap.String("key", key),
			zap.Error(err),
		)
		return nil, pkgerrors.Wrap(pkgerrors.UploadFailed, err)
	}

	metrics.RecordUpload(ctx, string(kind), obj.Size)
	s.deletePrevious(ctx, previousURL, obj.Key)
	return obj, nil
}

func (s *UploadService) deletePrevious(ctx context.Context, previousURL, currentKey string) {
	if previousURL == "" {
		return
	}
	key, ok := s.store.KeyFromURL(previousURL)
	if !ok || key == currentKey {
		return
	}
	if err := s.store.Delete(ctx, key); err != nil {
		logger.Logger.Warn("Failed to delete replaced upload", zap.String("key", key), zap.Error(err))
	}
}
