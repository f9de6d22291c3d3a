package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/codebuildervaibhav/podflow/internal/types"
)

// MetadataDB handles SQLite database operations
type MetadataDB struct {
	db *sql.DB
}

// NewMetadataDB creates a new metadata database
func NewMetadataDB(dbPath string) (*MetadataDB, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// modernc sqlite serialises writers; one connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	createTableSQL := `
	CREATE TABLE IF NOT EXISTS episodes (
		episode_id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		file_name TEXT NOT NULL,
		compressed_path TEXT NOT NULL,
		audio_url TEXT NOT NULL,
		transcript TEXT NOT NULL,
		total_pages INTEGER NOT NULL,
		segments TEXT NOT NULL,
		duration REAL,
		word_count INTEGER,
		created_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_episodes_created_at ON episodes(created_at);
	CREATE INDEX IF NOT EXISTS idx_episodes_user_id ON episodes(user_id);

	CREATE TABLE IF NOT EXISTS settings (
		user_id TEXT PRIMARY KEY,
		openai_api_key TEXT NOT NULL DEFAULT '',
		default_language TEXT NOT NULL DEFAULT '',
		updated_at INTEGER NOT NULL
	);
	`

	if _, err := db.Exec(createTableSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return &MetadataDB{db: db}, nil
}

// SaveEpisode inserts or replaces a completed episode
func (mdb *MetadataDB) SaveEpisode(ctx context.Context, ep *types.Episode) error {
	segments, err := json.Marshal(ep.Segments)
	if err != nil {
		return fmt.Errorf("failed to encode segments: %w", err)
	}
	createdAt := ep.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	query := `
	INSERT INTO episodes (episode_id, user_id, file_name, compressed_path, audio_url, transcript,
		total_pages, segments, duration, word_count, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(episode_id) DO UPDATE SET
		user_id = excluded.user_id,
		file_name = excluded.file_name,
		compressed_path = excluded.compressed_path,
		audio_url = excluded.audio_url,
		transcript = excluded.transcript,
		total_pages = excluded.total_pages,
		segments = excluded.segments,
		duration = excluded.duration,
		word_count = excluded.word_count,
		created_at = excluded.created_at
	`
	_, err = mdb.db.ExecContext(ctx, query,
		ep.EpisodeID, ep.UserID, ep.FileName, ep.CompressedFilePath, ep.AudioURL, ep.Transcript,
		ep.TotalPages, string(segments), ep.Duration, ep.WordCount, createdAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to save episode: %w", err)
	}
	return nil
}

const episodeColumns = `episode_id, user_id, file_name, compressed_path, audio_url, transcript,
	total_pages, segments, duration, word_count, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEpisode(row rowScanner) (*types.Episode, error) {
	var (
		ep        types.Episode
		segments  string
		createdAt int64
	)
	err := row.Scan(&ep.EpisodeID, &ep.UserID, &ep.FileName, &ep.CompressedFilePath, &ep.AudioURL,
		&ep.Transcript, &ep.TotalPages, &segments, &ep.Duration, &ep.WordCount, &createdAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(segments), &ep.Segments); err != nil {
		return nil, fmt.Errorf("failed to decode segments: %w", err)
	}
	if ep.Segments == nil {
		ep.Segments = []types.Segment{}
	}
	ep.CreatedAt = time.Unix(createdAt, 0).UTC()
	return &ep, nil
}

// GetEpisode retrieves an episode by ID
func (mdb *MetadataDB) GetEpisode(ctx context.Context, episodeID string) (*types.Episode, error) {
	row := mdb.db.QueryRowContext(ctx, `SELECT `+episodeColumns+` FROM episodes WHERE episode_id = ?`, episodeID)
	ep, err := scanEpisode(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("episode %s: %w", episodeID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get episode: %w", err)
	}
	return ep, nil
}

// ListEpisodes returns the most recent episodes, newest first
func (mdb *MetadataDB) ListEpisodes(ctx context.Context, limit int) ([]*types.Episode, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := mdb.db.QueryContext(ctx,
		`SELECT `+episodeColumns+` FROM episodes ORDER BY created_at DESC, episode_id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list episodes: %w", err)
	}
	defer rows.Close()

	episodes := []*types.Episode{}
	for rows.Next() {
		ep, err := scanEpisode(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan episode: %w", err)
		}
		episodes = append(episodes, ep)
	}
	return episodes, rows.Err()
}

// GetUserSettings returns nil, nil when the user has saved nothing.
func (mdb *MetadataDB) GetUserSettings(ctx context.Context, userID string) (*types.UserSettings, error) {
	var (
		s         types.UserSettings
		updatedAt int64
	)
	err := mdb.db.QueryRowContext(ctx,
		`SELECT user_id, openai_api_key, default_language, updated_at FROM settings WHERE user_id = ?`, userID).
		Scan(&s.UserID, &s.OpenAIAPIKey, &s.DefaultLanguage, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get settings: %w", err)
	}
	s.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	return &s, nil
}

// SaveUserSettings inserts or replaces a user's settings
func (mdb *MetadataDB) SaveUserSettings(ctx context.Context, s *types.UserSettings) error {
	updatedAt := s.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}
	_, err := mdb.db.ExecContext(ctx, `
	INSERT INTO settings (user_id, openai_api_key, default_language, updated_at)
	VALUES (?, ?, ?, ?)
	ON CONFLICT(user_id) DO UPDATE SET
		openai_api_key = excluded.openai_api_key,
		default_language = excluded.default_language,
		updated_at = excluded.updated_at
	`, s.UserID, s.OpenAIAPIKey, s.DefaultLanguage, updatedAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to save settings: %w", err)
	}
	return nil
}

// Close closes the database connection
func (mdb *MetadataDB) Close() error {
	return mdb.db.Close()
}
