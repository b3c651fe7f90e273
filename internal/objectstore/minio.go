package objectstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"thirdcoast.systems/sonicstream/internal/faults"
)

// MinioConfig describes an S3-compatible endpoint.
type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	UseSSL    bool
}

// Minio stores objects in one S3 bucket.
type Minio struct {
	Client *minio.Client
	Bucket string
}

// NewMinio connects to the endpoint and creates the bucket if it is missing.
func NewMinio(ctx context.Context, cfg MinioConfig) (*Minio, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("objectstore: create minio client: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, classify("bucket exists", cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{Region: cfg.Region}); err != nil {
			return nil, classify("make bucket", cfg.Bucket, err)
		}
		slog.Info("created object store bucket", "bucket", cfg.Bucket)
	}

	return &Minio{Client: client, Bucket: cfg.Bucket}, nil
}

func (s *Minio) Put(ctx context.Context, key, localPath string) error {
	k, err := CleanKey(key)
	if err != nil {
		return err
	}
	_, err = s.Client.FPutObject(ctx, s.Bucket, k, localPath, minio.PutObjectOptions{ContentType: ContentType(k)})
	return classify("put", k, err)
}

func (s *Minio) PutBytes(ctx context.Context, key string, data []byte, contentType string) error {
	k, err := CleanKey(key)
	if err != nil {
		return err
	}
	if contentType == "" {
		contentType = ContentType(k)
	}
	_, err = s.Client.PutObject(ctx, s.Bucket, k, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{ContentType: contentType})
	return classify("put", k, err)
}

func (s *Minio) Get(ctx context.Context, key, localPath string) error {
	k, err := CleanKey(key)
	if err != nil {
		return err
	}
	return classify("get", k, s.Client.FGetObject(ctx, s.Bucket, k, localPath, minio.GetObjectOptions{}))
}

func (s *Minio) GetBytes(ctx context.Context, key string) ([]byte, error) {
	k, err := CleanKey(key)
	if err != nil {
		return nil, err
	}
	obj, err := s.Client.GetObject(ctx, s.Bucket, k, minio.GetObjectOptions{})
	if err != nil {
		return nil, classify("get", k, err)
	}
	defer obj.Close()

	// GetObject is lazy; a missing key surfaces on the first read.
	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, classify("get", k, err)
	}
	return data, nil
}

func (s *Minio) Exists(ctx context.Context, key string) (bool, error) {
	k, err := CleanKey(key)
	if err != nil {
		return false, err
	}
	_, err = s.Client.StatObject(ctx, s.Bucket, k, minio.StatObjectOptions{})
	if err == nil {
		return true, nil
	}
	err = classify("stat", k, err)
	if errors.Is(err, ErrNotExist) {
		return false, nil
	}
	return false, err
}

func (s *Minio) Delete(ctx context.Context, key string) error {
	k, err := CleanKey(key)
	if err != nil {
		return err
	}
	err = classify("delete", k, s.Client.RemoveObject(ctx, s.Bucket, k, minio.RemoveObjectOptions{}))
	if errors.Is(err, ErrNotExist) {
		return nil
	}
	return err
}

func (s *Minio) DeletePrefix(ctx context.Context, prefix string) (int, error) {
	p, err := CleanKey(prefix)
	if err != nil {
		return 0, err
	}

	objects := make(chan minio.ObjectInfo)
	listErr := make(chan error, 1)
	listed := make(chan struct{})
	count := 0
	go func() {
		defer close(listed)
		defer close(objects)
		for obj := range s.Client.ListObjects(ctx, s.Bucket, minio.ListObjectsOptions{Prefix: p, Recursive: true}) {
			if obj.Err != nil {
				listErr <- obj.Err
				return
			}
			select {
			case objects <- obj:
				count++
			case <-ctx.Done():
				listErr <- ctx.Err()
				return
			}
		}
	}()

	var firstErr error
	failed := 0
	for rerr := range s.Client.RemoveObjects(ctx, s.Bucket, objects, minio.RemoveObjectsOptions{}) {
		failed++
		if firstErr == nil {
			firstErr = rerr.Err
		}
	}
	<-listed

	select {
	case err := <-listErr:
		return count - failed, classify("list", p, err)
	default:
	}
	if firstErr != nil {
		return count - failed, classify("delete prefix", p, firstErr)
	}
	return count, nil
}

func (s *Minio) SignedReadURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	k, err := CleanKey(key)
	if err != nil {
		return "", err
	}
	ok, err := s.Exists(ctx, k)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNotExist, k)
	}
	u, err := s.Client.PresignedGetObject(ctx, s.Bucket, k, ttl, nil)
	if err != nil {
		return "", classify("presign", k, err)
	}
	return u.String(), nil
}

// classify maps S3 errors onto ErrNotExist and faults.ErrStoreUnavailable.
// Other errors pass through wrapped.
func classify(op, key string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("objectstore: %s %s: %w", op, key, err)
	}

	resp := minio.ToErrorResponse(err)
	switch {
	case resp.Code == "NoSuchKey" || resp.Code == "NoSuchObject" || (resp.StatusCode == http.StatusNotFound && resp.Code != "NoSuchBucket"):
		return fmt.Errorf("%w: %s", ErrNotExist, key)
	case resp.StatusCode >= 500 || resp.Code == "SlowDown" || resp.Code == "RequestTimeout":
		return faults.Wrap(faults.ErrStoreUnavailable, "objectstore", op, key, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return faults.Wrap(faults.ErrStoreUnavailable, "objectstore", op, key, err)
	}
	return fmt.Errorf("objectstore: %s %s: %w", op, key, err)
}

var _ Store = (*Minio)(nil)
