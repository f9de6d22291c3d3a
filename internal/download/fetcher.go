package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/codebuildervaibhav/podflow/internal/transcription"
)

// BlobDownloader copies a blob-store object to a local file.
type BlobDownloader interface {
	Download(ctx context.Context, objectPath, destPath string) error
}

// Request describes where the source audio lives and where to put it.
type Request struct {
	// BlobPath is the blob-store object path; always required.
	BlobPath string
	// URL is an optional direct link tried first.
	URL string
	// Dest is the local scratch path to write.
	Dest string
}

// Fetcher retrieves source audio into scratch storage
type Fetcher struct {
	client    *http.Client
	blobs     BlobDownloader
	ytDlpPath string
	logger    *zap.Logger
}

// NewFetcher creates a fetcher. client may be nil.
func NewFetcher(client *http.Client, blobs BlobDownloader, ytDlpPath string, logger *zap.Logger) *Fetcher {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Minute}
	}
	if ytDlpPath == "" {
		ytDlpPath = "yt-dlp"
	}
	return &Fetcher{
		client:    client,
		blobs:     blobs,
		ytDlpPath: ytDlpPath,
		logger:    logger,
	}
}

// Fetch downloads the source audio and returns the local path written. A
// failed direct download falls back to the blob store; only when both fail
// is ErrFetchFailed returned.
func (f *Fetcher) Fetch(ctx context.Context, req Request) (string, error) {
	if req.Dest == "" {
		return "", fmt.Errorf("%w: no destination path", transcription.ErrFetchFailed)
	}
	if err := os.MkdirAll(filepath.Dir(req.Dest), 0755); err != nil {
		return "", fmt.Errorf("%w: create scratch directory: %v", transcription.ErrFetchFailed, err)
	}

	var directErr error
	if req.URL != "" {
		path, err := f.fetchDirect(ctx, req.URL, req.Dest)
		if err == nil {
			return path, nil
		}
		directErr = err
		_ = os.Remove(req.Dest)
		f.logger.Warn("direct download failed, falling back to blob store",
			zap.String("url", req.URL),
			zap.String("blob_path", req.BlobPath),
			zap.Error(err))
	}

	if req.BlobPath == "" {
		return "", fetchFailed(directErr, errors.New("no blob path"))
	}
	if err := f.blobs.Download(ctx, req.BlobPath, req.Dest); err != nil {
		_ = os.Remove(req.Dest)
		return "", fetchFailed(directErr, err)
	}
	return req.Dest, nil
}

func (f *Fetcher) fetchDirect(ctx context.Context, url, dest string) (string, error) {
	if IsVideoLink(url) {
		return f.captureWithYtDlp(ctx, url, dest)
	}
	if id := DriveFileID(url); id != "" {
		url = "https://drive.google.com/uc?export=download&id=" + id
	}
	return dest, f.fetchURL(ctx, url, dest)
}

func (f *Fetcher) fetchURL(ctx context.Context, url, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	n, copyErr := io.Copy(out, resp.Body)
	closeErr := out.Close()
	if copyErr != nil {
		return fmt.Errorf("stream body: %w", copyErr)
	}
	if closeErr != nil {
		return closeErr
	}

	f.logger.Info("downloaded audio from direct URL", zap.String("dest", dest), zap.Int64("bytes", n))
	return nil
}

// captureWithYtDlp extracts the audio track of a video page as mp3. The
// written file keeps dest's base name with an .mp3 extension.
func (f *Fetcher) captureWithYtDlp(ctx context.Context, url, dest string) (string, error) {
	base := strings.TrimSuffix(dest, filepath.Ext(dest))
	cmd := exec.CommandContext(ctx, f.ytDlpPath,
		"-x",
		"--audio-format", "mp3",
		"--no-playlist",
		"-o", base+".%(ext)s",
		url,
	)

	output, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("yt-dlp failed: %v: %s", err, strings.TrimSpace(string(output)))
	}

	path := base + ".mp3"
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("yt-dlp produced no audio: %w", err)
	}
	f.logger.Info("captured audio from video link", zap.String("url", url), zap.String("dest", path))
	return path, nil
}

func fetchFailed(directErr, blobErr error) error {
	if directErr != nil {
		return fmt.Errorf("%w: direct URL: %v; storage: %v", transcription.ErrFetchFailed, directErr, blobErr)
	}
	return fmt.Errorf("%w: storage: %v", transcription.ErrFetchFailed, blobErr)
}

var videoLinkPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?:youtube\.com/(?:[^/]+/.+/|(?:v|e(?:mbed)?|shorts)/|.*[?&]v=)|youtu\.be/)[^"&?/\s]{11}`),
	regexp.MustCompile(`vimeo\.com/[0-9]+`),
}

var (
	driveFilePattern = regexp.MustCompile(`drive\.google\.com/file/d/([a-zA-Z0-9_-]+)`)
	driveOpenPattern = regexp.MustCompile(`drive\.google\.com/(?:open|uc)\?(?:.*&)?id=([a-zA-Z0-9_-]+)`)
)

// DriveFileID extracts the file ID from a Google Drive share link, or "".
func DriveFileID(url string) string {
	if m := driveFilePattern.FindStringSubmatch(url); len(m) > 1 {
		return m[1]
	}
	if m := driveOpenPattern.FindStringSubmatch(url); len(m) > 1 {
		return m[1]
	}
	return ""
}

// IsVideoLink reports whether url points at a YouTube or Vimeo video page.
func IsVideoLink(url string) bool {
	for _, re := range videoLinkPatterns {
		if re.MatchString(url) {
			return true
		}
	}
	return false
}
