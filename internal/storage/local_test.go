package storage

import (
	"context"
	"errors"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBlobStore(t *testing.T) *LocalBlobStore {
	t.Helper()
	s, err := NewLocalBlobStore(filepath.Join(t.TempDir(), "blobs"), "http://localhost:3001/", "secret")
	require.NoError(t, err)
	return s
}

func TestLocalBlobStore_UploadDownload(t *testing.T) {
	s := newTestBlobStore(t)
	ctx := context.Background()

	src := filepath.Join(t.TempDir(), "output-e1.mp3")
	require.NoError(t, os.WriteFile(src, []byte("mp3"), 0o644))
	require.NoError(t, s.Upload(ctx, src, "episodes/u1/compressed_ep.mp3", "audio/mpeg"))

	dst := filepath.Join(t.TempDir(), "copy.mp3")
	require.NoError(t, s.Download(ctx, "episodes/u1/compressed_ep.mp3", dst))
	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "mp3", string(data))
}

func TestLocalBlobStore_DownloadMissing(t *testing.T) {
	s := newTestBlobStore(t)

	err := s.Download(context.Background(), "episodes/u1/none.mp3", filepath.Join(t.TempDir(), "x"))
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestLocalBlobStore_SignedURLVerifies(t *testing.T) {
	s := newTestBlobStore(t)

	raw, err := s.SignedURL(context.Background(), "episodes/u1/compressed_my ep.mp3", time.Hour)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(raw, "http://localhost:3001/blobs/episodes/u1/compressed_my%20ep.mp3?"))

	u, err := url.Parse(raw)
	require.NoError(t, err)
	objectPath := strings.TrimPrefix(u.Path, "/blobs/")
	local, err := s.Verify(objectPath, u.Query().Get("expires"), u.Query().Get("signature"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(s.root, "episodes", "u1", "compressed_my ep.mp3"), local)
}

func TestLocalBlobStore_VerifyRejects(t *testing.T) {
	s := newTestBlobStore(t)
	now := time.Unix(1_700_000_000, 0)
	s.now = func() time.Time { return now }

	raw, err := s.SignedURL(context.Background(), "episodes/u1/a.mp3", time.Minute)
	require.NoError(t, err)
	u, err := url.Parse(raw)
	require.NoError(t, err)
	expires, sig := u.Query().Get("expires"), u.Query().Get("signature")

	_, err = s.Verify("episodes/u1/b.mp3", expires, sig)
	assert.Error(t, err, "signature bound to path")

	_, err = s.Verify("episodes/u1/a.mp3", "9999999999", sig)
	assert.Error(t, err, "signature bound to expiry")

	_, err = s.Verify("episodes/u1/a.mp3", "soon", sig)
	assert.Error(t, err)

	s.now = func() time.Time { return now.Add(2 * time.Minute) }
	_, err = s.Verify("episodes/u1/a.mp3", expires, sig)
	assert.EqualError(t, err, "url expired")
}

func TestLocalBlobStore_ResolveStaysUnderRoot(t *testing.T) {
	s := newTestBlobStore(t)

	p, err := s.resolve("../../etc/passwd")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(p, s.root+string(filepath.Separator)))

	_, err = s.resolve("/")
	assert.Error(t, err)
}

func TestSanitizeFilename(t *testing.T) {
	assert.Equal(t, "a_b_c", SanitizeFilename("a/b:c"))
	assert.Equal(t, "untitled", SanitizeFilename("  "))
	assert.Len(t, SanitizeFilename(strings.Repeat("x", 150)), 100)
}
