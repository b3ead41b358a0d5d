package filestore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"golang.org/x/sync/singleflight"

	"github.com/urban-yield/urban-api/internal/config"
)

// NewMinIOClient builds a MinIO client from configuration.
func NewMinIOClient(cfg config.MinioConfig) (*minio.Client, error) {
	opts := &minio.Options{
		Creds:     credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure:    cfg.UseSSL,
		Region:    cfg.Region,
		Transport: newTransport(),
	}
	return minio.New(cfg.Endpoint, opts)
}

// Minio stores uploads as objects keyed {subdir}/{id}{ext} in one bucket.
// Resolved objects are downloaded into cacheDir so stagers get a local path.
type Minio struct {
	client *minio.Client
	bucket string
	cache  *downloadCache
}

// NewMinio creates a Minio store, creating the bucket when it is missing.
func NewMinio(ctx context.Context, client *minio.Client, bucket, region, cacheDir string) (*Minio, error) {
	if client == nil {
		return nil, fmt.Errorf("minio client is required")
	}
	if err := ensureBucket(ctx, client, bucket, region); err != nil {
		return nil, fmt.Errorf("ensure bucket %s: %w", bucket, err)
	}
	if err := os.MkdirAll(cacheDir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	s := &Minio{client: client, bucket: bucket}
	s.cache = &downloadCache{dir: cacheDir, fetch: s.fetch}
	return s, nil
}

func (s *Minio) Save(ctx context.Context, r io.Reader, filename, subdir string) (string, string, error) {
	if !safeSegment(subdir, true) {
		return "", "", fmt.Errorf("%w: invalid subdirectory %q", ErrStorage, subdir)
	}
	ext := filepath.Ext(filename)

	for attempt := 0; attempt < maxSaveAttempts; attempt++ {
		id := uuid.NewString()
		key := path.Join(subdir, id+ext)

		_, err := s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{})
		if err == nil {
			continue
		}
		if minio.ToErrorResponse(err).Code != "NoSuchKey" {
			return "", "", fmt.Errorf("%w: %v", ErrStorage, err)
		}

		if _, err := s.client.PutObject(ctx, s.bucket, key, r, -1, minio.PutObjectOptions{
			ContentType: "application/octet-stream",
		}); err != nil {
			return "", "", fmt.Errorf("%w: %v", ErrStorage, err)
		}
		return key, id, nil
	}
	return "", "", fmt.Errorf("%w: could not allocate a unique id", ErrStorage)
}

func (s *Minio) Resolve(ctx context.Context, id, subdir string) (string, bool, error) {
	key, ok, err := s.find(ctx, id, subdir)
	if err != nil || !ok {
		return "", false, err
	}

	local, err := s.cache.get(ctx, key)
	if err != nil {
		return "", false, err
	}
	return local, true, nil
}

func (s *Minio) fetch(ctx context.Context, key, local string) error {
	if err := s.client.FGetObject(ctx, s.bucket, key, local, minio.GetObjectOptions{}); err != nil {
		return fmt.Errorf("download %s: %w", key, err)
	}
	return nil
}

func (s *Minio) Delete(ctx context.Context, id, subdir string) (bool, error) {
	key, ok, err := s.find(ctx, id, subdir)
	if err != nil || !ok {
		return false, err
	}
	if err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return false, fmt.Errorf("delete %s: %w", key, err)
	}
	if err := s.cache.evict(key); err != nil {
		return true, err
	}
	return true, nil
}

// Ping checks that the bucket is reachable.
func (s *Minio) Ping(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("bucket missing: %s", s.bucket)
	}
	return nil
}

// find returns the key of the first object below subdir that belongs to id.
func (s *Minio) find(ctx context.Context, id, subdir string) (string, bool, error) {
	if !safeSegment(id, false) || !safeSegment(subdir, true) {
		return "", false, nil
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	prefix := id
	if subdir != "" {
		prefix = subdir + "/" + id
	}
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Prefix: prefix}) {
		if obj.Err != nil {
			return "", false, fmt.Errorf("list %s: %w", prefix, obj.Err)
		}
		if matchesID(path.Base(obj.Key), id) {
			return obj.Key, true, nil
		}
	}
	return "", false, nil
}

// downloadCache keeps fetched objects under dir. Concurrent requests for the
// same key share one fetch.
type downloadCache struct {
	dir   string
	fetch func(ctx context.Context, key, local string) error
	group singleflight.Group
}

func (c *downloadCache) path(key string) string {
	return filepath.Join(c.dir, filepath.FromSlash(key))
}

// get returns the local path of key, fetching it when it is not cached yet.
func (c *downloadCache) get(ctx context.Context, key string) (string, error) {
	local := c.path(key)
	_, err, _ := c.group.Do(key, func() (any, error) {
		if _, err := os.Stat(local); err == nil {
			return nil, nil
		}
		if err := os.MkdirAll(filepath.Dir(local), 0o755); err != nil {
			return nil, fmt.Errorf("create cache dir: %w", err)
		}
		return nil, c.fetch(ctx, key, local)
	})
	if err != nil {
		return "", err
	}
	return local, nil
}

func (c *downloadCache) evict(key string) error {
	if err := os.Remove(c.path(key)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("evict cached %s: %w", key, err)
	}
	return nil
}

func ensureBucket(ctx context.Context, client *minio.Client, bucket string, region string) error {
	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	return client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: region})
}

func newTransport() *http.Transport {
	dialer := &net.Dialer{
		Timeout:   5 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}
