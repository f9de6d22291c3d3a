package transcription

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// TranscoderConfig selects the ffmpeg binaries and the output encoding.
type TranscoderConfig struct {
	FFmpegPath  string
	FFprobePath string
	Codec       string
	Bitrate     string
	Format      string
}

// Transcoder re-encodes audio with ffmpeg, reporting progress in [0,100].
type Transcoder struct {
	cfg    TranscoderConfig
	logger *zap.Logger
}

// NewTranscoder creates a transcoder
func NewTranscoder(cfg TranscoderConfig, logger *zap.Logger) *Transcoder {
	if cfg.FFmpegPath == "" {
		cfg.FFmpegPath = "ffmpeg"
	}
	if cfg.FFprobePath == "" {
		cfg.FFprobePath = "ffprobe"
	}
	if cfg.Codec == "" {
		cfg.Codec = "libmp3lame"
	}
	if cfg.Bitrate == "" {
		cfg.Bitrate = "64k"
	}
	if cfg.Format == "" {
		cfg.Format = "mp3"
	}
	return &Transcoder{cfg: cfg, logger: logger}
}

// Transcode converts inputPath into outputPath. The channel layout of the
// input is preserved. onProgress may be nil.
func (t *Transcoder) Transcode(ctx context.Context, inputPath, outputPath string, onProgress func(int)) error {
	if onProgress == nil {
		onProgress = func(int) {}
	}

	duration, err := t.probeDuration(ctx, inputPath)
	if err != nil {
		// Progress then only jumps to 100 at the end.
		t.logger.Warn("ffprobe duration unavailable", zap.String("input", inputPath), zap.Error(err))
	}

	args := buildFFmpegArgs(inputPath, outputPath, t.cfg)
	cmd := exec.CommandContext(ctx, t.cfg.FFmpegPath, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTranscodeFailed, err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("%w: start ffmpeg: %v", ErrTranscodeFailed, err)
	}
	readProgress(stdout, duration, onProgress)

	if err := cmd.Wait(); err != nil {
		return fmt.Errorf("%w: ffmpeg: %v: %s", ErrTranscodeFailed, err, tail(stderr.String(), 512))
	}

	info, err := os.Stat(outputPath)
	if err != nil {
		return fmt.Errorf("%w: ffmpeg completed but output file is missing: %v", ErrTranscodeFailed, err)
	}
	onProgress(100)

	t.logger.Info("audio compressed",
		zap.String("output", outputPath),
		zap.Int64("bytes", info.Size()),
		zap.String("bitrate", t.cfg.Bitrate))
	return nil
}

func (t *Transcoder) probeDuration(ctx context.Context, inputPath string) (float64, error) {
	cmd := exec.CommandContext(ctx, t.cfg.FFprobePath,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		inputPath,
	)
	out, err := cmd.Output()
	if err != nil {
		return 0, err
	}
	return strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
}

func buildFFmpegArgs(inputPath, outputPath string, cfg TranscoderConfig) []string {
	return []string{
		"-hide_banner",
		"-nostdin",
		"-loglevel", "error",
		"-y",
		"-i", inputPath,
		"-vn",
		"-c:a", cfg.Codec,
		"-b:a", cfg.Bitrate,
		"-f", cfg.Format,
		"-progress", "pipe:1",
		"-nostats",
		outputPath,
	}
}

// readProgress consumes ffmpeg's -progress key=value stream. Values are
// reported only when they grow.
func readProgress(r io.Reader, durationSeconds float64, onProgress func(int)) {
	last := -1
	emit := func(p int) {
		if p > 100 {
			p = 100
		}
		if p > last {
			last = p
			onProgress(p)
		}
	}

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		key, value, ok := strings.Cut(strings.TrimSpace(scanner.Text()), "=")
		if !ok {
			continue
		}
		switch key {
		case "out_time_us", "out_time_ms":
			// Both keys carry microseconds.
			if durationSeconds <= 0 {
				continue
			}
			us, err := strconv.ParseInt(value, 10, 64)
			if err != nil || us < 0 {
				continue
			}
			emit(int(float64(us) / 1e6 / durationSeconds * 100))
		case "progress":
			if value == "end" {
				emit(100)
			}
		}
	}
	// Drain so ffmpeg never blocks on a full pipe.
	_, _ = io.Copy(io.Discard, r)
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}

// ValidateAudioFormat checks if the file format is supported
func ValidateAudioFormat(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	supportedFormats := []string{
		".mp3", ".wav", ".m4a", ".ogg", ".flac", ".webm", ".aac", ".wma", ".opus",
		".mp4", ".mov", ".mkv",
	}

	for _, format := range supportedFormats {
		if ext == format {
			return true
		}
	}
	return false
}
