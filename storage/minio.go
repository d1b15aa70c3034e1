package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"
	"time"

	"pitwall/config"
	"pitwall/logger"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// radioPrefix 无线电音频在存储桶中的前缀
const radioPrefix = "radio/"

// ObjectInfo 文件信息
type ObjectInfo struct {
	Key          string
	Size         int64
	LastModified time.Time
	ContentType  string
}

// BucketStats 存储桶统计信息
type BucketStats struct {
	TotalObjects int64
	TotalSize    int64
	LastModified time.Time
}

// AudioArchive mirrors downloaded team-radio clips into a MinIO bucket so
// retries of failed transcriptions do not download the clip again.
type AudioArchive struct {
	client *minio.Client
	bucket string
}

// NewAudioArchive 连接 MinIO 并确保存储桶存在
func NewAudioArchive(ctx context.Context, cfg *config.Config) (*AudioArchive, error) {
	client, err := minio.New(cfg.MinioEndpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.MinioAccessKey, cfg.MinioSecretKey, ""),
		Secure: cfg.MinioUseSSL,
		Region: cfg.MinioRegion,
	})
	if err != nil {
		return nil, fmt.Errorf("创建 MinIO 客户端失败: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	exists, err := client.BucketExists(ctx, cfg.MinioBucket)
	if err != nil {
		return nil, fmt.Errorf("检查存储桶失败: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.MinioBucket, minio.MakeBucketOptions{Region: cfg.MinioRegion}); err != nil {
			return nil, fmt.Errorf("创建存储桶失败: %w", err)
		}
		logger.Info("Created MinIO bucket", logger.String("bucket", cfg.MinioBucket))
	}

	return &AudioArchive{client: client, bucket: cfg.MinioBucket}, nil
}

// ObjectKey maps an audio URL to its object key: radio/<url path>.
func ObjectKey(audioURL string) string {
	u, err := url.Parse(audioURL)
	if err != nil || u.Path == "" {
		return radioPrefix + strings.TrimLeft(audioURL, "/")
	}
	p := strings.TrimPrefix(u.Path, "/static/")
	return radioPrefix + strings.TrimLeft(path.Clean("/"+p), "/")
}

// Get returns the archived clip, ok=false when it was never stored.
func (a *AudioArchive) Get(ctx context.Context, audioURL string) ([]byte, bool, error) {
	key := ObjectKey(audioURL)
	obj, err := a.client.GetObject(ctx, a.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, false, fmt.Errorf("get object %s: %w", key, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("read object %s: %w", key, err)
	}
	return data, true, nil
}

func (a *AudioArchive) Put(ctx context.Context, audioURL string, data []byte) error {
	key := ObjectKey(audioURL)
	_, err := a.client.PutObject(ctx, a.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: "audio/mpeg",
	})
	if err != nil {
		return fmt.Errorf("put object %s: %w", key, err)
	}
	return nil
}

// List 列出前缀下的对象
func (a *AudioArchive) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	var objects []ObjectInfo
	for obj := range a.client.ListObjects(ctx, a.bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("list objects: %w", obj.Err)
		}
		objects = append(objects, ObjectInfo{
			Key:          obj.Key,
			Size:         obj.Size,
			LastModified: obj.LastModified,
			ContentType:  obj.ContentType,
		})
	}
	return objects, nil
}

// Stats 汇总前缀下的对象数量和大小
func (a *AudioArchive) Stats(ctx context.Context, prefix string) (BucketStats, error) {
	var stats BucketStats
	objects, err := a.List(ctx, prefix)
	if err != nil {
		return stats, err
	}
	for _, obj := range objects {
		stats.TotalObjects++
		stats.TotalSize += obj.Size
		if obj.LastModified.After(stats.LastModified) {
			stats.LastModified = obj.LastModified
		}
	}
	return stats, nil
}

// DeletePrefix removes every object under prefix and returns how many were removed.
func (a *AudioArchive) DeletePrefix(ctx context.Context, prefix string) (int, error) {
	if prefix == "" {
		return 0, fmt.Errorf("refusing to delete without a prefix")
	}
	objectsCh := make(chan minio.ObjectInfo)
	listed := 0
	go func() {
		defer close(objectsCh)
		for obj := range a.client.ListObjects(ctx, a.bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
			if obj.Err != nil {
				logger.Warn("List object failed", logger.ErrorField(obj.Err))
				continue
			}
			listed++
			objectsCh <- obj
		}
	}()

	failed := 0
	var firstErr error
	for res := range a.client.RemoveObjects(ctx, a.bucket, objectsCh, minio.RemoveObjectsOptions{}) {
		failed++
		if firstErr == nil {
			firstErr = fmt.Errorf("remove %s: %w", res.ObjectName, res.Err)
		}
	}
	return listed - failed, firstErr
}

// Bucket 返回存储桶名称
func (a *AudioArchive) Bucket() string { return a.bucket }
