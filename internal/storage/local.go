package storage

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// LocalBlobStore keeps objects under a directory on local disk and issues
// HMAC-signed URLs served by the /blobs route.
type LocalBlobStore struct {
	root      string
	publicURL string
	secret    []byte
	now       func() time.Time
}

// NewLocalBlobStore creates the root directory if needed. An empty secret
// gets a random one, so issued URLs stop working after a restart.
func NewLocalBlobStore(root, publicURL, secret string) (*LocalBlobStore, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create blob directory: %w", err)
	}
	key := []byte(secret)
	if len(key) == 0 {
		key = make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return nil, fmt.Errorf("generate signing secret: %w", err)
		}
	}
	return &LocalBlobStore{
		root:      root,
		publicURL: strings.TrimRight(publicURL, "/"),
		secret:    key,
		now:       time.Now,
	}, nil
}

// resolve maps an object path to a file under root, rejecting escapes.
func (s *LocalBlobStore) resolve(objectPath string) (string, error) {
	clean := filepath.Clean("/" + filepath.FromSlash(objectPath))
	if clean == string(filepath.Separator) {
		return "", fmt.Errorf("invalid object path %q", objectPath)
	}
	return filepath.Join(s.root, clean), nil
}

// Download copies an object to destPath
func (s *LocalBlobStore) Download(ctx context.Context, objectPath, destPath string) error {
	src, err := s.resolve(objectPath)
	if err != nil {
		return err
	}
	if err := copyFile(ctx, src, destPath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%s: %w", objectPath, ErrNotFound)
		}
		return err
	}
	return nil
}

// Upload copies localPath into the store. The content type is implied by
// the extension when served.
func (s *LocalBlobStore) Upload(ctx context.Context, localPath, destPath, _ string) error {
	dst, err := s.resolve(destPath)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return fmt.Errorf("failed to create object directory: %w", err)
	}
	return copyFile(ctx, localPath, dst)
}

// SignedURL returns publicURL/blobs/<path>?expires=..&signature=..
func (s *LocalBlobStore) SignedURL(_ context.Context, objectPath string, ttl time.Duration) (string, error) {
	if _, err := s.resolve(objectPath); err != nil {
		return "", err
	}
	expires := strconv.FormatInt(s.now().Add(ttl).Unix(), 10)
	return fmt.Sprintf("%s/blobs/%s?expires=%s&signature=%s",
		s.publicURL, escapeObjectPath(objectPath), expires, s.sign(objectPath, expires)), nil
}

// Verify checks a signed URL's parameters and returns the local file to serve.
func (s *LocalBlobStore) Verify(objectPath, expires, signature string) (string, error) {
	exp, err := strconv.ParseInt(expires, 10, 64)
	if err != nil {
		return "", errors.New("invalid expiry")
	}
	if s.now().Unix() > exp {
		return "", errors.New("url expired")
	}
	want := s.sign(objectPath, expires)
	if !hmac.Equal([]byte(want), []byte(signature)) {
		return "", errors.New("invalid signature")
	}
	return s.resolve(objectPath)
}

func (s *LocalBlobStore) sign(objectPath, expires string) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(strings.TrimPrefix(objectPath, "/")))
	mac.Write([]byte{0})
	mac.Write([]byte(expires))
	return hex.EncodeToString(mac.Sum(nil))
}

func copyFile(ctx context.Context, src, dst string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// SanitizeFilename makes name safe to use as a single path element
func SanitizeFilename(name string) string {
	replacer := strings.NewReplacer(
		"/", "_", "\\", "_", ":", "_", "*", "_", "?", "_",
		"\"", "_", "<", "_", ">", "_", "|", "_",
	)
	result := strings.TrimSpace(replacer.Replace(name))
	if result == "" {
		result = "untitled"
	}
	if len(result) > 100 {
		result = result[:100]
	}
	return result
}
