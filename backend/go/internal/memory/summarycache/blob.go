package summarycache

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/minio/minio-go/v7"
)

// ErrBlobNotFound 表示对象不存在。
var ErrBlobNotFound = errors.New("对象不存在")

// BlobStore 是摘要缓存使用的对象存储。
type BlobStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	// Get 返回对象内容，不存在时返回 ErrBlobNotFound。
	Get(ctx context.Context, key string) ([]byte, error)
	// LastModified 返回对象最后修改时间，不存在时返回 ErrBlobNotFound。
	LastModified(ctx context.Context, key string) (time.Time, error)
	// Delete 删除对象，对象不存在不算错误。
	Delete(ctx context.Context, key string) error
}

// MinIOBlobStore 把对象存放在 MinIO 的一个存储桶中。
type MinIOBlobStore struct {
	client *minio.Client
	bucket string
}

// NewMinIOBlobStore 创建存储。存储桶需已存在。
func NewMinIOBlobStore(client *minio.Client, bucket string) *MinIOBlobStore {
	return &MinIOBlobStore{client: client, bucket: bucket}
}

func (s *MinIOBlobStore) Put(ctx context.Context, key string, data []byte, contentType string) error {
	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return fmt.Errorf("上传对象 '%s' 失败: %w", key, err)
	}
	return nil
}

func (s *MinIOBlobStore) Get(ctx context.Context, key string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, minioErr(err)
	}
	defer obj.Close()
	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, minioErr(err)
	}
	return data, nil
}

func (s *MinIOBlobStore) LastModified(ctx context.Context, key string) (time.Time, error) {
	info, err := s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		return time.Time{}, minioErr(err)
	}
	return info.LastModified, nil
}

func (s *MinIOBlobStore) Delete(ctx context.Context, key string) error {
	err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{})
	if err != nil && !errors.Is(minioErr(err), ErrBlobNotFound) {
		return fmt.Errorf("删除对象 '%s' 失败: %w", key, err)
	}
	return nil
}

func minioErr(err error) error {
	if minio.ToErrorResponse(err).Code == "NoSuchKey" {
		return ErrBlobNotFound
	}
	return err
}

type memoryBlob struct {
	data    []byte
	modTime time.Time
}

// MemoryBlobStore 是进程内的对象存储，用于开发和测试。
type MemoryBlobStore struct {
	mu    sync.RWMutex
	blobs map[string]memoryBlob
	now   func() time.Time
}

// NewMemoryBlobStore 创建空的内存对象存储。
func NewMemoryBlobStore() *MemoryBlobStore {
	return &MemoryBlobStore{blobs: make(map[string]memoryBlob), now: time.Now}
}

func (s *MemoryBlobStore) Put(ctx context.Context, key string, data []byte, contentType string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blobs[key] = memoryBlob{data: append([]byte(nil), data...), modTime: s.now()}
	return nil
}

func (s *MemoryBlobStore) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.blobs[key]
	if !ok {
		return nil, ErrBlobNotFound
	}
	return append([]byte(nil), b.data...), nil
}

func (s *MemoryBlobStore) LastModified(ctx context.Context, key string) (time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.blobs[key]
	if !ok {
		return time.Time{}, ErrBlobNotFound
	}
	return b.modTime, nil
}

func (s *MemoryBlobStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.blobs, key)
	return nil
}
