package transcription

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/codebuildervaibhav/podflow/internal/types"
)

type fakeSettings struct {
	byUser map[string]*types.UserSettings
	err    error
	calls  atomic.Int32
}

func (f *fakeSettings) GetUserSettings(_ context.Context, userID string) (*types.UserSettings, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return f.byUser[userID], nil
}

type whisperServer struct {
	*httptest.Server
	mu       sync.Mutex
	hits     int
	authSeen []string
	langSeen []string
}

func newWhisperServer(t *testing.T, status int, body any) *whisperServer {
	t.Helper()
	ws := &whisperServer{}
	ws.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws.mu.Lock()
		ws.hits++
		ws.authSeen = append(ws.authSeen, r.Header.Get("Authorization"))
		if err := r.ParseMultipartForm(32 << 20); err == nil {
			ws.langSeen = append(ws.langSeen, r.FormValue("language"))
		}
		ws.mu.Unlock()

		if !strings.HasSuffix(r.URL.Path, "/audio/transcriptions") {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	}))
	t.Cleanup(ws.Close)
	return ws
}

func (ws *whisperServer) hitCount() int {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	return ws.hits
}

func writeAudio(t *testing.T, size int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "output-e1.mp3")
	require.NoError(t, os.WriteFile(path, make([]byte, size), 0o644))
	return path
}

var verboseBody = map[string]any{
	"task":     "transcribe",
	"language": "english",
	"duration": 9.5,
	"text":     "ignored when segments exist",
	"segments": []map[string]any{
		{"id": 1, "start": 4.0, "end": 9.5, "text": " Second part."},
		{"id": 0, "start": 0.0, "end": 4.0, "text": " Welcome to the show."},
	},
}

func TestTranscribe_SegmentsJoinedAndOrdered(t *testing.T) {
	srv := newWhisperServer(t, http.StatusOK, verboseBody)
	wt := NewWhisperTranscriber(WhisperConfig{
		BaseURL:       srv.URL + "/v1",
		DefaultAPIKey: "sk-default",
		Language:      "en-US",
	}, nil, zap.NewNop())

	result, err := wt.Transcribe(context.Background(), writeAudio(t, 1024), "u1")
	require.NoError(t, err)

	assert.Equal(t, "Welcome to the show. Second part.", result.Text)
	require.Len(t, result.Segments, 2)
	assert.Equal(t, 0.0, result.Segments[0].Start)
	assert.Equal(t, 4.0, result.Segments[1].Start)
	assert.Equal(t, 9.5, result.Duration)
	assert.Equal(t, []string{"Bearer sk-default"}, srv.authSeen)
	assert.Equal(t, []string{"en"}, srv.langSeen)
}

func TestTranscribe_FallsBackToServiceTextWithoutSegments(t *testing.T) {
	srv := newWhisperServer(t, http.StatusOK, map[string]any{"text": "  just text  "})
	wt := NewWhisperTranscriber(WhisperConfig{BaseURL: srv.URL + "/v1", DefaultAPIKey: "k"}, nil, zap.NewNop())

	result, err := wt.Transcribe(context.Background(), writeAudio(t, 10), "")
	require.NoError(t, err)

	assert.Equal(t, "just text", result.Text)
	assert.Empty(t, result.Segments)
}

func TestTranscribe_UserKeyAndLanguageWin(t *testing.T) {
	srv := newWhisperServer(t, http.StatusOK, verboseBody)
	settings := &fakeSettings{byUser: map[string]*types.UserSettings{
		"u1": {UserID: "u1", OpenAIAPIKey: "sk-user", DefaultLanguage: "de"},
	}}
	wt := NewWhisperTranscriber(WhisperConfig{
		BaseURL:       srv.URL + "/v1",
		DefaultAPIKey: "sk-default",
		Language:      "en",
	}, settings, zap.NewNop())

	_, err := wt.Transcribe(context.Background(), writeAudio(t, 10), "u1")
	require.NoError(t, err)

	assert.Equal(t, []string{"Bearer sk-user"}, srv.authSeen)
	assert.Equal(t, []string{"de"}, srv.langSeen)
}

func TestTranscribe_SettingsErrorFallsBackToDefaultKey(t *testing.T) {
	srv := newWhisperServer(t, http.StatusOK, verboseBody)
	settings := &fakeSettings{err: errors.New("db locked")}
	wt := NewWhisperTranscriber(WhisperConfig{BaseURL: srv.URL + "/v1", DefaultAPIKey: "sk-default"}, settings, zap.NewNop())

	_, err := wt.Transcribe(context.Background(), writeAudio(t, 10), "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"Bearer sk-default"}, srv.authSeen)
}

func TestTranscribe_FileTooLargeMakesNoCalls(t *testing.T) {
	srv := newWhisperServer(t, http.StatusOK, verboseBody)
	settings := &fakeSettings{}
	wt := NewWhisperTranscriber(WhisperConfig{
		BaseURL:       srv.URL + "/v1",
		DefaultAPIKey: "sk-default",
		MaxFileBytes:  1024,
	}, settings, zap.NewNop())

	_, err := wt.Transcribe(context.Background(), writeAudio(t, 1025), "u1")

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrFileTooLarge))
	assert.Equal(t, 0, srv.hitCount())
	assert.Equal(t, int32(0), settings.calls.Load())
}

func TestTranscribe_MissingCredential(t *testing.T) {
	srv := newWhisperServer(t, http.StatusOK, verboseBody)
	settings := &fakeSettings{byUser: map[string]*types.UserSettings{"u1": {UserID: "u1"}}}
	wt := NewWhisperTranscriber(WhisperConfig{BaseURL: srv.URL + "/v1"}, settings, zap.NewNop())

	_, err := wt.Transcribe(context.Background(), writeAudio(t, 10), "u1")

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMissingCredential))
	assert.Contains(t, err.Error(), "no OpenAI API key available")
	assert.Equal(t, 0, srv.hitCount())
}

func TestTranscribe_ServiceErrorIsTranscriptionFailed(t *testing.T) {
	srv := newWhisperServer(t, http.StatusUnauthorized, map[string]any{
		"error": map[string]any{
			"message": "Incorrect API key provided",
			"type":    "invalid_request_error",
			"code":    "invalid_api_key",
		},
	})
	wt := NewWhisperTranscriber(WhisperConfig{BaseURL: srv.URL + "/v1", DefaultAPIKey: "sk-bad"}, nil, zap.NewNop())

	_, err := wt.Transcribe(context.Background(), writeAudio(t, 10), "u1")

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTranscriptionFailed))
	assert.Contains(t, err.Error(), "Incorrect API key provided")
	assert.Equal(t, 1, srv.hitCount())
}

func TestTranscribe_MissingFile(t *testing.T) {
	wt := NewWhisperTranscriber(WhisperConfig{DefaultAPIKey: "k"}, nil, zap.NewNop())

	_, err := wt.Transcribe(context.Background(), filepath.Join(t.TempDir(), "gone.mp3"), "u1")
	assert.True(t, errors.Is(err, ErrTranscriptionFailed))
}

func TestNormalizeLanguage(t *testing.T) {
	assert.Equal(t, "en", NormalizeLanguage("en"))
	assert.Equal(t, "en", NormalizeLanguage("en-GB"))
	assert.Equal(t, "pt", NormalizeLanguage(" pt-BR "))
	assert.Equal(t, "", NormalizeLanguage(""))
	assert.Equal(t, "", NormalizeLanguage("und"))
	assert.Equal(t, "", NormalizeLanguage("not a language"))
}
