package blob

import (
	"context"
	"fmt"
	"io"
	"sync"

	"go.uber.org/zap"

	"Kinship/config"
	"Kinship/pkg/errors"
	"Kinship/pkg/logger"
)

// Object 上传成功后的对象信息
type Object struct {
	Key         string
	URL         string
	Size        int64
	ContentType string
}

// Client 对象存储
type Client interface {
	Upload(ctx context.Context, key string, body io.Reader, size int64, contentType string) (*Object, error)
	Delete(ctx context.Context, key string) error
	// KeyFromURL 把 Upload 返回的 URL 还原为 key；不是本存储的 URL 时返回 false
	KeyFromURL(url string) (string, bool)
}

var (
	blobClient Client
	blobOnce   sync.Once
	blobErr    error
)

// Init 按 BLOB_PROVIDER 初始化
func Init(ctx context.Context) error {
	blobOnce.Do(func() {
		cfg := config.Cfg

		switch cfg.BlobProvider {
		case "s3":
			blobClient, blobErr = NewS3Client(ctx, S3Config{
				Endpoint:      cfg.S3Endpoint,
				Region:        cfg.S3Region,
				AccessKey:     cfg.S3AccessKey,
				SecretKey:     cfg.S3SecretKey,
				Bucket:        cfg.S3Bucket,
				PublicBaseURL: cfg.S3PublicBaseURL,
			})
		case "memory":
			blobClient = NewMemoryClient("memory://" + cfg.S3Bucket)
		default:
			blobErr = fmt.Errorf("%w: %s", errors.ErrUnsupportedBlobProvider, cfg.BlobProvider)
		}

		if blobErr != nil {
			logger.Logger.Error("Failed to initialize blob client", zap.Error(blobErr))
			return
		}

		logger.Logger.Info("Blob client initialized successfully",
			zap.String("provider", cfg.BlobProvider),
			zap.String("bucket", cfg.S3Bucket),
		)
	})

	return blobErr
}

func GetClient() Client {
	if blobClient == nil {
		panic("Blob client not initialized, call blob.Init() first")
	}
	return blobClient
}

// Lookup 未初始化或初始化失败时返回 nil
func Lookup() Client {
	if blobErr != nil || blobClient == nil {
		return nil
	}
	return blobClient
}
