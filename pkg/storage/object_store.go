package storage

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// BlobStorage archives original documents.
type BlobStorage interface {
	// Upload stores data under a user-scoped key and returns the storage ref.
	Upload(ctx context.Context, userID, key string, data []byte) (string, error)
	// Delete removes the object behind a ref returned by Upload.
	Delete(ctx context.Context, ref string) error
}

// Presigner is an optional capability of stores that can hand out
// time-limited download URLs.
type Presigner interface {
	PresignGet(ctx context.Context, ref string, expiry time.Duration) (string, error)
}

// MinioStore implements BlobStorage for MinIO/S3 compatible storage.
type MinioStore struct {
	client *minio.Client
	bucket string
}

// NewMinioStore connects to MinIO and ensures the bucket exists.
func NewMinioStore(endpoint, accessKey, secretKey, bucket string, useSSL bool) (*MinioStore, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("init minio client: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket: %w", err)
		}
	}
	return &MinioStore{client: client, bucket: bucket}, nil
}

// Upload puts the object at content/<user>/<key>. The ref is bucket/objectKey.
func (m *MinioStore) Upload(ctx context.Context, userID, key string, data []byte) (string, error) {
	objectKey, err := objectKey(userID, key)
	if err != nil {
		return "", err
	}
	_, err = m.client.PutObject(ctx, m.bucket, objectKey, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: http.DetectContentType(data),
	})
	if err != nil {
		return "", fmt.Errorf("put object: %w", err)
	}
	return m.bucket + "/" + objectKey, nil
}

// PresignGet generates a pre-signed GET URL.
func (m *MinioStore) PresignGet(ctx context.Context, ref string, expiry time.Duration) (string, error) {
	key, err := m.keyFromRef(ref)
	if err != nil {
		return "", err
	}
	url, err := m.client.PresignedGetObject(ctx, m.bucket, key, expiry, nil)
	if err != nil {
		return "", fmt.Errorf("presign get: %w", err)
	}
	return url.String(), nil
}

// Delete removes an object.
func (m *MinioStore) Delete(ctx context.Context, ref string) error {
	key, err := m.keyFromRef(ref)
	if err != nil {
		return err
	}
	if err := m.client.RemoveObject(ctx, m.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("delete object: %w", err)
	}
	return nil
}

func (m *MinioStore) keyFromRef(ref string) (string, error) {
	key, ok := strings.CutPrefix(ref, m.bucket+"/")
	if !ok || key == "" {
		return "", fmt.Errorf("ref %q is not in bucket %s", ref, m.bucket)
	}
	return key, nil
}

func objectKey(userID, key string) (string, error) {
	userID = safeSegment(userID)
	key = safeSegment(key)
	if userID == "" || key == "" {
		return "", fmt.Errorf("user id and key required")
	}
	return path.Join("content", userID, key), nil
}

func safeSegment(s string) string {
	s = strings.TrimSpace(s)
	s = strings.NewReplacer("/", "_", "\\", "_").Replace(s)
	if s == "." || s == ".." {
		return ""
	}
	return s
}
