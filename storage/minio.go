package storage

import (
	"context"
	"fmt"
	"io"
	"time"

	"ncmc/logger"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// BucketStats 存储桶统计信息
type BucketStats struct {
	TotalObjects int64
	TotalSize    int64
	LastModified time.Time
}

// MinioClient 封装了 MinIO 客户端，实现 Sink
type MinioClient struct {
	client     *minio.Client
	bucketName string
	region     string
	urlPrefix  string
}

// NewMinioClient 创建一个新的 MinIO 客户端
func NewMinioClient(endpoint, accessKey, secretKey, bucketName, region string, useSSL bool) (*MinioClient, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
		Region: region,
	})
	if err != nil {
		return nil, fmt.Errorf("创建 MinIO 客户端失败: %w", err)
	}

	return &MinioClient{
		client:     client,
		bucketName: bucketName,
		region:     region,
		urlPrefix:  "/media/",
	}, nil
}

// EnsureBucket 检查存储桶，不存在则创建
func (m *MinioClient) EnsureBucket(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	exists, err := m.client.BucketExists(ctx, m.bucketName)
	if err != nil {
		return fmt.Errorf("检查存储桶失败: %w", err)
	}
	if exists {
		return nil
	}
	if err := m.client.MakeBucket(ctx, m.bucketName, minio.MakeBucketOptions{Region: m.region}); err != nil {
		return fmt.Errorf("创建存储桶失败: %w", err)
	}
	logger.Info("成功创建存储桶", logger.String("bucket", m.bucketName))
	return nil
}

// Put 上传对象，size 未知时传 -1
func (m *MinioClient) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) (string, error) {
	if _, err := cleanKey(key); err != nil {
		return "", err
	}
	_, err := m.client.PutObject(ctx, m.bucketName, key, r, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("上传对象 %s 失败: %w", key, err)
	}
	return publicURL(m.urlPrefix, key), nil
}

// Open 获取对象内容
func (m *MinioClient) Open(ctx context.Context, key string) (io.ReadCloser, ObjectInfo, error) {
	info, err := m.Stat(ctx, key)
	if err != nil {
		return nil, ObjectInfo{}, err
	}
	obj, err := m.client.GetObject(ctx, m.bucketName, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, ObjectInfo{}, fmt.Errorf("读取对象 %s 失败: %w", key, err)
	}
	return obj, info, nil
}

// Stat 获取对象信息
func (m *MinioClient) Stat(ctx context.Context, key string) (ObjectInfo, error) {
	st, err := m.client.StatObject(ctx, m.bucketName, key, minio.StatObjectOptions{})
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return ObjectInfo{}, ErrNotFound
		}
		return ObjectInfo{}, err
	}
	return ObjectInfo{
		Key:          st.Key,
		Size:         st.Size,
		LastModified: st.LastModified,
		ContentType:  st.ContentType,
	}, nil
}

// List 列出前缀下的所有对象
func (m *MinioClient) List(ctx context.Context, prefix string) ([]ObjectInfo, *BucketStats, error) {
	stats := &BucketStats{}
	var objects []ObjectInfo
	for object := range m.client.ListObjects(ctx, m.bucketName, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	}) {
		if object.Err != nil {
			return nil, nil, fmt.Errorf("列出对象时出错: %w", object.Err)
		}
		objects = append(objects, ObjectInfo{
			Key:          object.Key,
			Size:         object.Size,
			LastModified: object.LastModified,
			ContentType:  ContentType(object.Key),
		})
		stats.TotalObjects++
		stats.TotalSize += object.Size
		if object.LastModified.After(stats.LastModified) {
			stats.LastModified = object.LastModified
		}
	}
	return objects, stats, nil
}

// DeletePrefix 递归删除前缀下的对象，返回删除数量
func (m *MinioClient) DeletePrefix(ctx context.Context, prefix string) (int, error) {
	objects, _, err := m.List(ctx, prefix)
	if err != nil {
		return 0, err
	}
	if len(objects) == 0 {
		return 0, fmt.Errorf("目录 %s 为空或不存在", prefix)
	}

	objectsCh := make(chan minio.ObjectInfo, len(objects))
	go func() {
		defer close(objectsCh)
		for _, obj := range objects {
			objectsCh <- minio.ObjectInfo{Key: obj.Key}
		}
	}()

	for rerr := range m.client.RemoveObjects(ctx, m.bucketName, objectsCh, minio.RemoveObjectsOptions{}) {
		if rerr.Err != nil {
			return 0, fmt.Errorf("删除对象 %s 失败: %w", rerr.ObjectName, rerr.Err)
		}
	}
	return len(objects), nil
}

// Bucket 返回桶名
func (m *MinioClient) Bucket() string { return m.bucketName }

// FormatSize 格式化文件大小
func FormatSize(size int64) string {
	const unit = 1024
	if size < unit {
		return fmt.Sprintf("%d B", size)
	}
	div, exp := int64(unit), 0
	for n := size / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(size)/float64(div), "KMGTPE"[exp])
}
