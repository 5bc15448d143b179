package uploader

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"farm_community/internal/pkg/config"

	"github.com/google/uuid"
)

// Uploader 对象存储，上传后返回可公开访问的 URL
type Uploader interface {
	Upload(ctx context.Context, key string, r io.Reader, size int64, contentType string) (string, error)
}

// ObjectKey 生成对象键: <prefix>/YYYYMMDD/uuid.ext
func ObjectKey(prefix, filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	return fmt.Sprintf("%s/%s/%s%s", strings.Trim(prefix, "/"), time.Now().Format("20060102"), uuid.New().String(), ext)
}

// New 按配置创建上传器
func New(cfg config.StorageConfig) (Uploader, error) {
	switch cfg.Driver {
	case "oss":
		return NewAliyunOSSUploader(cfg.OSS)
	case "minio":
		return NewMinioUploader(context.Background(), cfg.Minio)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}
