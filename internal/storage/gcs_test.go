package storage

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/hex"
	"encoding/json"
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	gcs "google.golang.org/api/storage/v1"
)

const testAccessID = "uploader@podflow.iam.gserviceaccount.com"

func writeServiceAccountKey(t *testing.T, pemKey []byte) string {
	t.Helper()
	b, err := json.Marshal(map[string]string{
		"type":           "service_account",
		"project_id":     "podflow",
		"private_key_id": "k1",
		"private_key":    string(pemKey),
		"client_email":   testAccessID,
		"token_uri":      "https://oauth2.googleapis.com/token",
	})
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "sa.json")
	require.NoError(t, os.WriteFile(path, b, 0o600))
	return path
}

func pkcs8Key(t *testing.T) []byte {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	der, err := x509.MarshalPKCS8PrivateKey(key)
	require.NoError(t, err)
	return pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})
}

func TestGCSBlobStore_SignedURL(t *testing.T) {
	store, err := NewGCSBlobStore(context.Background(), "podflow-audio", writeServiceAccountKey(t, pkcs8Key(t)))
	require.NoError(t, err)

	raw, err := store.SignedURL(context.Background(), "/episodes/u1/compressed_my show.mp3", MaxSignedURLTTL)
	require.NoError(t, err)

	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "storage.googleapis.com", u.Host)
	assert.Equal(t, "/podflow-audio/episodes/u1/compressed_my%20show.mp3", u.EscapedPath())

	q := u.Query()
	assert.Equal(t, "GOOG4-RSA-SHA256", q.Get("X-Goog-Algorithm"))
	assert.True(t, strings.HasPrefix(q.Get("X-Goog-Credential"), testAccessID+"/"))
	assert.Equal(t, "host", q.Get("X-Goog-SignedHeaders"))

	expires, err := strconv.Atoi(q.Get("X-Goog-Expires"))
	require.NoError(t, err)
	assert.Greater(t, expires, 0)
	assert.LessOrEqual(t, expires, int(MaxSignedURLTTL/time.Second))

	sig, err := hex.DecodeString(q.Get("X-Goog-Signature"))
	require.NoError(t, err)
	assert.Len(t, sig, 256)
}

func TestGCSBlobStore_SignedURLPKCS1Key(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	pemKey := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})

	store := &GCSBlobStore{bucket: "b", accessID: testAccessID, key: pemKey}
	_, err = store.SignedURL(context.Background(), "o.mp3", time.Hour)
	assert.NoError(t, err)
}

func TestGCSBlobStore_SignedURLRejectsTTL(t *testing.T) {
	store := &GCSBlobStore{bucket: "b", accessID: testAccessID, key: pkcs8Key(t)}

	_, err := store.SignedURL(context.Background(), "o.mp3", 0)
	assert.Error(t, err)
	_, err = store.SignedURL(context.Background(), "o.mp3", 8*24*time.Hour)
	assert.Error(t, err)
}

func TestGCSBlobStore_SignedURLBadKey(t *testing.T) {
	store := &GCSBlobStore{bucket: "b", accessID: testAccessID, key: []byte("not pem")}

	_, err := store.SignedURL(context.Background(), "o.mp3", time.Hour)
	assert.Error(t, err)
}

func TestNewGCSBlobStore_MissingCredentials(t *testing.T) {
	_, err := NewGCSBlobStore(context.Background(), "b", filepath.Join(t.TempDir(), "absent.json"))
	assert.Error(t, err)
}

func TestGCSBlobStore_DownloadMissingObject(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":{"code":404,"message":"No such object"}}`))
	}))
	defer srv.Close()

	service, err := gcs.NewService(context.Background(),
		option.WithEndpoint(srv.URL+"/"),
		option.WithHTTPClient(srv.Client()))
	require.NoError(t, err)
	store := &GCSBlobStore{service: service, bucket: "b"}

	err = store.Download(context.Background(), "episodes/u1/missing.mp3", filepath.Join(t.TempDir(), "out.mp3"))
	assert.ErrorIs(t, err, ErrNotFound)
}
