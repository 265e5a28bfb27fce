package storage

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"wavecast/config"
	"wavecast/logger"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ObjectStore mirrors accepted uploads into a MinIO bucket and serves them
// back through a proxying static handler. Local disk stays the source of
// truth; the mirror is optional.
type ObjectStore struct {
	client *minio.Client
	bucket string
}

// InitMinio initializes the MinIO client and ensures the bucket exists.
// Returns (nil, nil) when no endpoint is configured.
func InitMinio(cfg *config.Config) (*ObjectStore, error) {
	if cfg.MinioEndpoint == "" {
		return nil, nil
	}

	client, err := minio.New(cfg.MinioEndpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.MinioAccessKey, cfg.MinioSecretKey, ""),
		Secure: cfg.MinioUseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	exists, err := client.BucketExists(ctx, cfg.MinioBucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket %s: %w", cfg.MinioBucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.MinioBucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("failed to create bucket %s: %w", cfg.MinioBucket, err)
		}
		logger.Info("created MinIO bucket", logger.String("bucket", cfg.MinioBucket))
	}

	return &ObjectStore{client: client, bucket: cfg.MinioBucket}, nil
}

// Enabled reports whether the mirror is configured. Safe on a nil receiver.
func (s *ObjectStore) Enabled() bool {
	return s != nil && s.client != nil
}

// MirrorFile copies a local file into the bucket under objectPath.
func (s *ObjectStore) MirrorFile(ctx context.Context, objectPath, localPath, contentType string) error {
	if !s.Enabled() {
		return nil
	}

	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("failed to open %s for mirroring: %w", localPath, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", localPath, err)
	}

	_, err = s.client.PutObject(ctx, s.bucket, objectPath, f, info.Size(), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("failed to mirror %s to MinIO: %w", objectPath, err)
	}
	return nil
}

// Remove deletes an object from the bucket. Best effort: callers log and
// move on.
func (s *ObjectStore) Remove(ctx context.Context, objectPath string) error {
	if !s.Enabled() {
		return nil
	}
	return s.client.RemoveObject(ctx, s.bucket, objectPath, minio.RemoveObjectOptions{})
}

// StaticHandler serves bucket objects under the given URL prefix.
func (s *ObjectStore) StaticHandler(prefix string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		objectPath := strings.TrimPrefix(r.URL.Path, prefix)

		ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
		defer cancel()

		object, err := s.client.GetObject(ctx, s.bucket, objectPath, minio.GetObjectOptions{})
		if err != nil {
			http.Error(w, "File not found", http.StatusNotFound)
			return
		}
		defer object.Close()

		// GetObject is lazy; Stat surfaces missing keys.
		info, err := object.Stat()
		if err != nil {
			http.Error(w, "File not found", http.StatusNotFound)
			return
		}

		contentType := info.ContentType
		if contentType == "" {
			contentType = detectContentType(objectPath)
		}
		w.Header().Set("Content-Type", contentType)
		w.Header().Set("Cache-Control", "public, max-age=31536000")

		if _, err := io.Copy(w, object); err != nil {
			logger.Error("error serving file from MinIO", logger.String("object", objectPath), logger.ErrorField(err))
		}
	})
}

// detectContentType guesses a content type from the object path prefix.
func detectContentType(path string) string {
	switch {
	case strings.HasPrefix(path, "images/"):
		return "image/jpeg"
	case strings.HasPrefix(path, "audio/"):
		return "audio/mpeg"
	default:
		return "application/octet-stream"
	}
}
