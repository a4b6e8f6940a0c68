package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/url"
	"path"
	"strings"
	"time"

	"ncmc/config"
)

// ErrNotFound 对象不存在
var ErrNotFound = errors.New("storage: object not found")

// ObjectInfo 文件信息
type ObjectInfo struct {
	Key          string
	Size         int64
	LastModified time.Time
	ContentType  string
}

// Sink 解码产物（音频）的存放位置，Put 返回可用于播放器和下载链接的 URL
type Sink interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) (string, error)
	Open(ctx context.Context, key string) (io.ReadCloser, ObjectInfo, error)
	Stat(ctx context.Context, key string) (ObjectInfo, error)
}

// New 根据 MEDIA_BACKEND 创建存储
func New(ctx context.Context, cfg *config.Config) (Sink, error) {
	switch cfg.MediaBackend {
	case "", "local":
		return NewLocalSink(cfg.OutputDir, cfg.MediaURLPrefix)
	case "minio":
		client, err := NewMinioClient(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioRegion, cfg.MinioUseSSL)
		if err != nil {
			return nil, err
		}
		if err := client.EnsureBucket(ctx); err != nil {
			return nil, err
		}
		client.urlPrefix = cfg.MediaURLPrefix
		return client, nil
	default:
		return nil, fmt.Errorf("unknown media backend %q", cfg.MediaBackend)
	}
}

// MediaKey 以内容哈希为目录，同一个容器无论被拖入多少次都落在同一个对象上
func MediaKey(hash, name, format string) string {
	base := strings.TrimSuffix(path.Base(name), path.Ext(name))
	if len(hash) > 16 {
		hash = hash[:16]
	}
	return "tracks/" + hash + "/" + base + "." + format
}

// ContentType 按扩展名推断 MIME
func ContentType(key string) string {
	switch strings.ToLower(path.Ext(key)) {
	case ".mp3":
		return "audio/mpeg"
	case ".flac":
		return "audio/flac"
	case ".ogg":
		return "audio/ogg"
	}
	if ct := mime.TypeByExtension(path.Ext(key)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

// publicURL 对每一段做转义，文件名里常有中文和空格
func publicURL(prefix, key string) string {
	segs := strings.Split(key, "/")
	for i, s := range segs {
		segs[i] = url.PathEscape(s)
	}
	return prefix + strings.Join(segs, "/")
}

// cleanKey 拒绝跳出根目录的 key
func cleanKey(key string) (string, error) {
	cleaned := strings.TrimPrefix(path.Clean("/"+key), "/")
	if cleaned == "" || cleaned != strings.TrimPrefix(key, "/") {
		return "", fmt.Errorf("invalid object key %q", key)
	}
	return cleaned, nil
}
