package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	cloudstorage "cloud.google.com/go/storage"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	gcs "google.golang.org/api/storage/v1"
)

// MaxSignedURLTTL is the longest lifetime a V4 signature accepts.
const MaxSignedURLTTL = 7 * 24 * time.Hour

// GCSBlobStore stores objects in a Google Cloud Storage bucket using a
// service account key.
type GCSBlobStore struct {
	service  *gcs.Service
	bucket   string
	accessID string
	key      []byte
}

// NewGCSBlobStore creates a bucket client from a service account JSON key.
func NewGCSBlobStore(ctx context.Context, bucket, credentialsFile string) (*GCSBlobStore, error) {
	b, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("unable to read credentials file: %w", err)
	}

	jwtCfg, err := google.JWTConfigFromJSON(b, gcs.DevstorageReadWriteScope)
	if err != nil {
		return nil, fmt.Errorf("unable to parse service account key: %w", err)
	}
	if jwtCfg.Email == "" || len(jwtCfg.PrivateKey) == 0 {
		return nil, errors.New("service account key has no client_email or private_key")
	}

	srv, err := gcs.NewService(ctx, option.WithHTTPClient(jwtCfg.Client(ctx)))
	if err != nil {
		return nil, fmt.Errorf("unable to create Storage service: %w", err)
	}

	return &GCSBlobStore{
		service:  srv,
		bucket:   bucket,
		accessID: jwtCfg.Email,
		key:      jwtCfg.PrivateKey,
	}, nil
}

// Download streams an object into destPath
func (g *GCSBlobStore) Download(ctx context.Context, objectPath, destPath string) error {
	resp, err := g.service.Objects.Get(g.bucket, strings.TrimPrefix(objectPath, "/")).Context(ctx).Download()
	if err != nil {
		var apiErr *googleapi.Error
		if errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound {
			return fmt.Errorf("%s: %w", objectPath, ErrNotFound)
		}
		return fmt.Errorf("download %s: %w", objectPath, err)
	}
	defer resp.Body.Close()

	if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
		return err
	}
	out, err := os.Create(destPath)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, resp.Body); err != nil {
		out.Close()
		return fmt.Errorf("download %s: %w", objectPath, err)
	}
	return out.Close()
}

// Upload writes localPath to destPath in the bucket
func (g *GCSBlobStore) Upload(ctx context.Context, localPath, destPath, contentType string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return err
	}
	defer f.Close()

	obj := &gcs.Object{
		Name:        strings.TrimPrefix(destPath, "/"),
		ContentType: contentType,
	}
	_, err = g.service.Objects.Insert(g.bucket, obj).
		Media(f, googleapi.ContentType(contentType)).
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("upload %s: %w", destPath, err)
	}
	return nil
}

// SignedURL returns a V4 signed GET URL for objectPath.
func (g *GCSBlobStore) SignedURL(_ context.Context, objectPath string, ttl time.Duration) (string, error) {
	if ttl <= 0 || ttl > MaxSignedURLTTL {
		return "", fmt.Errorf("signed url ttl %s out of range (0, %s]", ttl, MaxSignedURLTTL)
	}
	u, err := cloudstorage.SignedURL(g.bucket, strings.TrimPrefix(objectPath, "/"), &cloudstorage.SignedURLOptions{
		GoogleAccessID: g.accessID,
		PrivateKey:     g.key,
		Method:         http.MethodGet,
		Expires:        time.Now().Add(ttl),
		Scheme:         cloudstorage.SigningSchemeV4,
	})
	if err != nil {
		return "", fmt.Errorf("sign url for %s: %w", objectPath, err)
	}
	return u, nil
}
