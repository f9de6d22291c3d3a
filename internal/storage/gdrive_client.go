package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"

	"github.com/codebuildervaibhav/podflow/internal/transcript"
	"github.com/codebuildervaibhav/podflow/internal/types"
)

const folderMimeType = "application/vnd.google-apps.folder"

// DriveClient archives completed transcripts to Google Drive
type DriveClient struct {
	service    *drive.Service
	folderName string
	folderID   string
	attempts   int
	backoff    time.Duration
	logger     *zap.Logger
}

// NewDriveClient creates a Drive client from OAuth client credentials and a
// previously authorised token file. The server never runs the browser flow.
func NewDriveClient(ctx context.Context, credentialsFile, tokenFile, folderName string, logger *zap.Logger) (*DriveClient, error) {
	b, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("unable to read credentials file: %w", err)
	}

	config, err := google.ConfigFromJSON(b, drive.DriveFileScope)
	if err != nil {
		return nil, fmt.Errorf("unable to parse credentials: %w", err)
	}

	tok, err := tokenFromFile(tokenFile)
	if err != nil {
		return nil, fmt.Errorf("unable to read token file %s: %w", tokenFile, err)
	}

	srv, err := drive.NewService(ctx, option.WithHTTPClient(config.Client(ctx, tok)))
	if err != nil {
		return nil, fmt.Errorf("unable to create Drive service: %w", err)
	}

	dc := &DriveClient{
		service:    srv,
		folderName: folderName,
		attempts:   3,
		backoff:    time.Second,
		logger:     logger,
	}

	if err := dc.ensureFolder(ctx); err != nil {
		return nil, err
	}

	return dc, nil
}

// tokenFromFile retrieves a token from a local file
func tokenFromFile(file string) (*oauth2.Token, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	tok := &oauth2.Token{}
	err = json.NewDecoder(f).Decode(tok)
	return tok, err
}

// ensureFolder finds or creates the root folder
func (dc *DriveClient) ensureFolder(ctx context.Context) error {
	id, err := dc.findOrCreateFolder(ctx, dc.folderName, "")
	if err != nil {
		return fmt.Errorf("unable to prepare folder %q: %w", dc.folderName, err)
	}
	dc.folderID = id
	return nil
}

// Archive uploads the transcript with retries. Attempt n waits n*n*backoff
// before retrying.
func (dc *DriveClient) Archive(ctx context.Context, ep *types.Episode) error {
	var err error
	for attempt := 1; attempt <= dc.attempts; attempt++ {
		if _, err = dc.Upload(ctx, ep); err == nil {
			return nil
		}
		dc.logger.Warn("transcript archive attempt failed",
			zap.String("episode_id", ep.EpisodeID),
			zap.Int("attempt", attempt),
			zap.Error(err))
		if attempt == dc.attempts {
			break
		}
		select {
		case <-ctx.Done():
			return errors.Join(err, ctx.Err())
		case <-time.After(time.Duration(attempt*attempt) * dc.backoff):
		}
	}
	return err
}

// Upload writes the transcript text and a metadata JSON file into
// <folder>/YYYY/MM/DD and returns a link to the metadata file.
func (dc *DriveClient) Upload(ctx context.Context, ep *types.Episode) (string, error) {
	now := time.Now()
	folderID, err := dc.ensureDateFolder(ctx, now)
	if err != nil {
		return "", err
	}

	baseFilename := fmt.Sprintf("%s_%s", now.Format("20060102_150405"), SanitizeFilename(ep.EpisodeID))

	txtFile := &drive.File{
		Name:    baseFilename + ".txt",
		Parents: []string{folderID},
	}
	if _, err := dc.service.Files.Create(txtFile).Media(strings.NewReader(ep.Transcript)).Context(ctx).Do(); err != nil {
		return "", fmt.Errorf("failed to upload transcript: %w", err)
	}

	metadata := map[string]any{
		"episode_id":       ep.EpisodeID,
		"user_id":          ep.UserID,
		"file_name":        ep.FileName,
		"compressed_path":  ep.CompressedFilePath,
		"duration_seconds": ep.Duration,
		"duration":         transcript.FormatTimestamp(ep.Duration),
		"word_count":       ep.WordCount,
		"total_pages":      ep.TotalPages,
		"created_at":       ep.CreatedAt,
		"markers":          transcript.Markers(ep.Segments),
		"segments":         ep.Segments,
	}
	metaJSON, err := json.MarshalIndent(metadata, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode metadata: %w", err)
	}

	metaFile := &drive.File{
		Name:     baseFilename + "_meta.json",
		Parents:  []string{folderID},
		MimeType: "application/json",
	}
	createdMeta, err := dc.service.Files.Create(metaFile).Media(strings.NewReader(string(metaJSON))).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("failed to upload metadata: %w", err)
	}

	return fmt.Sprintf("https://drive.google.com/file/d/%s/view", createdMeta.Id), nil
}

// ensureDateFolder creates nested year/month/day folders
func (dc *DriveClient) ensureDateFolder(ctx context.Context, t time.Time) (string, error) {
	parent := dc.folderID
	for _, name := range []string{
		fmt.Sprintf("%d", t.Year()),
		fmt.Sprintf("%02d", t.Month()),
		fmt.Sprintf("%02d", t.Day()),
	} {
		id, err := dc.findOrCreateFolder(ctx, name, parent)
		if err != nil {
			return "", err
		}
		parent = id
	}
	return parent, nil
}

// findOrCreateFolder finds or creates a folder; an empty parentID means My Drive.
func (dc *DriveClient) findOrCreateFolder(ctx context.Context, name, parentID string) (string, error) {
	query := fmt.Sprintf("name='%s' and mimeType='%s' and trashed=false", escapeDriveQuery(name), folderMimeType)
	if parentID != "" {
		query += fmt.Sprintf(" and '%s' in parents", parentID)
	}

	r, err := dc.service.Files.List().Q(query).Spaces("drive").Fields("files(id)").Context(ctx).Do()
	if err != nil {
		return "", err
	}
	if len(r.Files) > 0 {
		return r.Files[0].Id, nil
	}

	folder := &drive.File{
		Name:     name,
		MimeType: folderMimeType,
	}
	if parentID != "" {
		folder.Parents = []string{parentID}
	}

	file, err := dc.service.Files.Create(folder).Fields("id").Context(ctx).Do()
	if err != nil {
		return "", err
	}
	return file.Id, nil
}

func escapeDriveQuery(s string) string {
	return strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(s)
}
