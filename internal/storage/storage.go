// Package storage keeps uploaded originals and branding logos in an
// S3-compatible object store.
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"legalease/api/internal/config"
	"legalease/api/internal/util"
)

type Object struct {
	Key          string    `json:"key"`
	Size         int64     `json:"size"`
	ContentType  string    `json:"contentType,omitempty"`
	LastModified time.Time `json:"lastModified"`
}

type Store struct {
	client        *minio.Client
	publicBaseURL string
	endpointURL   string
}

// New connects to the object store and makes sure every bucket exists.
func New(ctx context.Context, cfg config.StorageConfig, buckets ...string) (*Store, error) {
	if strings.TrimSpace(cfg.Endpoint) == "" {
		return nil, errors.New("storage endpoint is required")
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}

	scheme := "http"
	if cfg.UseSSL {
		scheme = "https"
	}
	s := &Store{
		client:        client,
		publicBaseURL: strings.TrimRight(cfg.PublicBaseURL, "/"),
		endpointURL:   scheme + "://" + cfg.Endpoint,
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	for _, bucket := range buckets {
		if err := s.ensureBucket(ctx, bucket); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *Store) ensureBucket(ctx context.Context, bucket string) error {
	exists, err := s.client.BucketExists(ctx, bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", bucket, err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("create bucket %s: %w", bucket, err)
	}
	slog.InfoContext(ctx, "storage bucket created", "bucket", bucket)
	return nil
}

// Put writes data under key. Existing objects are overwritten.
func (s *Store) Put(ctx context.Context, bucket, key string, data []byte, contentType string) error {
	_, err := s.client.PutObject(ctx, bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("put object %s/%s: %w", bucket, key, err)
	}
	return nil
}

func (s *Store) Remove(ctx context.Context, bucket, key string) error {
	if err := s.client.RemoveObject(ctx, bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("remove object %s/%s: %w", bucket, key, err)
	}
	return nil
}

// List returns every object under prefix, newest first.
func (s *Store) List(ctx context.Context, bucket, prefix string) ([]Object, error) {
	objects := make([]Object, 0)
	for info := range s.client.ListObjects(ctx, bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if info.Err != nil {
			return nil, fmt.Errorf("list objects %s/%s: %w", bucket, prefix, info.Err)
		}
		objects = append(objects, Object{
			Key:          info.Key,
			Size:         info.Size,
			ContentType:  info.ContentType,
			LastModified: info.LastModified,
		})
	}
	sortNewestFirst(objects)
	return objects, nil
}

func (s *Store) Ping(ctx context.Context) error {
	_, err := s.client.ListBuckets(ctx)
	return err
}

// PublicURL is the browser-facing address of an object.
func (s *Store) PublicURL(bucket, key string) string {
	return PublicURL(s.publicBaseURL, s.endpointURL, bucket, key)
}

func PublicURL(publicBaseURL, endpointURL, bucket, key string) string {
	base := publicBaseURL
	if base == "" {
		base = endpointURL
	}
	segments := strings.Split(key, "/")
	for i, segment := range segments {
		segments[i] = url.PathEscape(segment)
	}
	return fmt.Sprintf("%s/%s/%s", strings.TrimRight(base, "/"), bucket, strings.Join(segments, "/"))
}

// DocumentKey is where an uploaded original lives: {userId}/{unix-ms}-{name}.
func DocumentKey(userID, fileName string, now time.Time) string {
	return fmt.Sprintf("%s/%d-%s", userID, now.UnixMilli(), util.SanitizeFilename(fileName))
}

func LogoPrefix(userID string) string {
	return "logos/" + userID + "/"
}

// LogoKey is where a branding logo lives: logos/{userId}/{unix-ms}-{name}.
func LogoKey(userID, fileName string, now time.Time) string {
	return fmt.Sprintf("%s%d-%s", LogoPrefix(userID), now.UnixMilli(), util.SanitizeFilename(fileName))
}

func sortNewestFirst(objects []Object) {
	sort.SliceStable(objects, func(i, j int) bool {
		return objects[i].LastModified.After(objects[j].LastModified)
	})
}
