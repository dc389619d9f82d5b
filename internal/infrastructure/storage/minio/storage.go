package minio

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

type Config struct {
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	UseSSL          bool
	Bucket          string

	// PresignExpiry bounds playback URL validity. Defaults to 1 hour.
	PresignExpiry time.Duration
}

// Storage keeps video artifacts in a MinIO/S3 bucket. The storage ref recorded
// on a video is the object key.
type Storage struct {
	client *minio.Client
	cfg    Config
}

func New(ctx context.Context, cfg Config) (*Storage, error) {
	if cfg.PresignExpiry <= 0 {
		cfg.PresignExpiry = time.Hour
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket: %w", err)
		}
	}

	return &Storage{client: client, cfg: cfg}, nil
}

func (s *Storage) Save(ctx context.Context, key string, data io.Reader) (string, error) {
	// Size -1 streams the upload without buffering the whole artifact.
	_, err := s.client.PutObject(ctx, s.cfg.Bucket, key, data, -1, minio.PutObjectOptions{})
	if err != nil {
		return "", fmt.Errorf("put object: %w", err)
	}
	return key, nil
}

func (s *Storage) Open(ctx context.Context, ref string) (io.ReadCloser, error) {
	obj, err := s.client.GetObject(ctx, s.cfg.Bucket, ref, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get object: %w", err)
	}
	return obj, nil
}

func (s *Storage) Remove(ctx context.Context, ref string) error {
	if err := s.client.RemoveObject(ctx, s.cfg.Bucket, ref, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("remove object: %w", err)
	}
	return nil
}

// LocalPath always reports false; remote artifacts are materialized on demand.
func (s *Storage) LocalPath(string) (string, bool) {
	return "", false
}

func (s *Storage) PlaybackURL(ctx context.Context, ref string) (string, error) {
	u, err := s.client.PresignedGetObject(ctx, s.cfg.Bucket, ref, s.cfg.PresignExpiry, nil)
	if err != nil {
		return "", fmt.Errorf("presign object: %w", err)
	}
	return u.String(), nil
}

func (s *Storage) MaterializeTo(ctx context.Context, ref, localPath string) error {
	if err := s.client.FGetObject(ctx, s.cfg.Bucket, ref, localPath, minio.GetObjectOptions{}); err != nil {
		_ = os.Remove(localPath)
		return fmt.Errorf("download object: %w", err)
	}
	return nil
}
