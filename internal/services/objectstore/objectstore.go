package objectstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/strandapp/strand-service/internal/config"
)

// Store is the object-storage capability: put bytes, get a public URL back.
// Individual calls are fallible; callers wrap them in the retrying transport.
type Store struct {
	client     *minio.Client
	bucketName string
	useSSL     bool
	presignTTL time.Duration
}

// New creates a new object store backed by MinIO
func New(cfg *config.Config) (*Store, error) {
	client, err := minio.New(cfg.MinIO.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.MinIO.AccessKeyID, cfg.MinIO.SecretAccessKey, ""),
		Secure: cfg.MinIO.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	store := &Store{
		client:     client,
		bucketName: cfg.MinIO.BucketName,
		useSSL:     cfg.MinIO.UseSSL,
		presignTTL: time.Duration(cfg.MinIO.PresignedURLTTL) * time.Second,
	}

	if err := store.ensureBucket(); err != nil {
		return nil, fmt.Errorf("failed to ensure bucket exists: %w", err)
	}

	return store, nil
}

// ensureBucket creates the bucket if it doesn't exist
func (s *Store) ensureBucket() error {
	ctx := context.Background()

	exists, err := s.client.BucketExists(ctx, s.bucketName)
	if err != nil {
		return fmt.Errorf("failed to check if bucket exists: %w", err)
	}

	if !exists {
		err = s.client.MakeBucket(ctx, s.bucketName, minio.MakeBucketOptions{})
		if err != nil {
			return fmt.Errorf("failed to create bucket: %w", err)
		}
	}

	return nil
}

// GenerateObjectKey creates a unique object key namespaced under the owner.
func (s *Store) GenerateObjectKey(ownerID, fileName string) string {
	ext := strings.ToLower(filepath.Ext(fileName))
	return fmt.Sprintf("users/%s/media/%s%s", ownerID, uuid.New().String(), ext)
}

// Put writes the object and returns its public URL.
func (s *Store) Put(ctx context.Context, objectKey string, data []byte, contentType string) (string, error) {
	_, err := s.client.PutObject(ctx, s.bucketName, objectKey,
		bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return "", err
	}
	return s.PublicURL(objectKey), nil
}

// PutReader writes the object from a streaming reader of known size.
func (s *Store) PutReader(ctx context.Context, objectKey string, r io.Reader, size int64, contentType string) (string, error) {
	_, err := s.client.PutObject(ctx, s.bucketName, objectKey, r, size,
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return "", err
	}
	return s.PublicURL(objectKey), nil
}

// PresignedPutURL creates a presigned URL the client (or the direct uploader)
// can PUT bytes to, bypassing the application tier's body-size ceiling.
func (s *Store) PresignedPutURL(ctx context.Context, objectKey string) (string, error) {
	presignedURL, err := s.client.PresignedPutObject(ctx, s.bucketName, objectKey, s.presignTTL)
	if err != nil {
		return "", fmt.Errorf("failed to generate presigned URL: %w", err)
	}
	return presignedURL.String(), nil
}

// PresignTTL returns how long presigned URLs stay valid.
func (s *Store) PresignTTL() time.Duration {
	return s.presignTTL
}

// PublicURL returns the public URL for accessing an object.
func (s *Store) PublicURL(objectKey string) string {
	scheme := "http"
	if s.useSSL {
		scheme = "https"
	}

	endpoint := strings.TrimPrefix(s.client.EndpointURL().String(), scheme+"://")
	return fmt.Sprintf("%s://%s/%s/%s", scheme, endpoint, s.bucketName, objectKey)
}

// Stat returns information about an object.
func (s *Store) Stat(ctx context.Context, objectKey string) (minio.ObjectInfo, error) {
	return s.client.StatObject(ctx, s.bucketName, objectKey, minio.StatObjectOptions{})
}

// Remove deletes an object from storage.
func (s *Store) Remove(ctx context.Context, objectKey string) error {
	return s.client.RemoveObject(ctx, s.bucketName, objectKey, minio.RemoveObjectOptions{})
}

// List streams every object in the bucket. Used by the orphan sweeper.
func (s *Store) List(ctx context.Context) <-chan minio.ObjectInfo {
	return s.client.ListObjects(ctx, s.bucketName, minio.ListObjectsOptions{
		Recursive: true,
	})
}
