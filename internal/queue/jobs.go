package queue

import (
	"path/filepath"
	"strings"
	"time"
)

// Job represents one compression and transcription request
type Job struct {
	EpisodeID string
	UserID    string
	FileName  string
	FilePath  string
	AudioURL  string
	CreatedAt time.Time
}

// NewJob creates a new job with default values. Fields are copied, so the
// arguments may alias a request buffer that is reused after the handler returns.
func NewJob(episodeID, userID, fileName, filePath, audioURL string) *Job {
	return &Job{
		EpisodeID: ownedField(episodeID),
		UserID:    ownedField(userID),
		FileName:  ownedField(fileName),
		FilePath:  ownedField(filePath),
		AudioURL:  ownedField(audioURL),
		CreatedAt: time.Now(),
	}
}

func ownedField(s string) string {
	return strings.Clone(strings.TrimSpace(s))
}

// MissingFields lists the required fields that are empty.
func (j *Job) MissingFields() []string {
	var missing []string
	for _, f := range []struct{ name, value string }{
		{"episodeId", j.EpisodeID},
		{"userId", j.UserID},
		{"fileName", j.FileName},
		{"filePath", j.FilePath},
	} {
		if f.value == "" {
			missing = append(missing, f.name)
		}
	}
	return missing
}

// inputExt is the extension the downloaded source keeps.
func (j *Job) inputExt() string {
	if ext := filepath.Ext(j.FileName); ext != "" {
		return strings.ToLower(ext)
	}
	return strings.ToLower(filepath.Ext(j.FilePath))
}

// compressedObjectPath is episodes/<userId>/compressed_<base>.mp3
func (j *Job) compressedObjectPath() string {
	base := filepath.Base(j.FileName)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	if base == "" || base == "." || base == "/" {
		base = j.EpisodeID
	}
	return "episodes/" + j.UserID + "/compressed_" + base + ".mp3"
}
