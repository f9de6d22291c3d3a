package types

import "time"

// Job status constants
const (
	StatusDownloading  = "downloading"
	StatusCompressing  = "compressing"
	StatusTranscribing = "transcribing"
	StatusCompleted    = "completed"
	StatusFailed       = "failed"
	StatusNotFound     = "not_found"
)

// IsTerminal reports whether no further writes follow a record with this status.
func IsTerminal(status string) bool {
	return status == StatusCompleted || status == StatusFailed
}

// Segment represents a timestamped segment of transcription
type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// Timestamp is one show-notes marker ("00:12:40 - Guest intro").
type Timestamp struct {
	Time        string `json:"time"`
	Description string `json:"description"`
}

// ShowNotes is the placeholder the AI step fills in later.
type ShowNotes struct {
	Summary    string      `json:"summary"`
	Timestamps []Timestamp `json:"timestamps"`
}

// JobRecord is the polled view of one compression job.
type JobRecord struct {
	Status             string    `json:"status"`
	Progress           int       `json:"progress"`
	Message            string    `json:"message,omitempty"`
	Error              string    `json:"error,omitempty"`
	AudioURL           string    `json:"audioUrl,omitempty"`
	CompressedFilePath string    `json:"compressedFilePath,omitempty"`
	Transcript         string    `json:"transcript"`
	TranscriptPages    []string  `json:"transcriptPages"`
	TotalPages         int       `json:"totalPages"`
	Segments           []Segment `json:"segments"`
	ShowNotes          ShowNotes `json:"showNotes"`
	NeedsCompression   bool      `json:"needsCompression"`
	UpdatedAt          time.Time `json:"updatedAt"`
}

// NewJobRecord returns a record whose collection fields are empty rather than nil,
// so clients never see null where a list is expected.
func NewJobRecord(status string, progress int) JobRecord {
	return JobRecord{
		Status:          status,
		Progress:        progress,
		TranscriptPages: []string{},
		Segments:        []Segment{},
		ShowNotes: ShowNotes{
			Timestamps: []Timestamp{},
		},
		NeedsCompression: status != StatusCompleted,
		UpdatedAt:        time.Now(),
	}
}

// NotFoundRecord is returned for episode ids the store has never seen.
func NotFoundRecord() JobRecord {
	r := NewJobRecord(StatusNotFound, 0)
	r.Error = "Compression status not found"
	return r
}

// TranscriptionResult represents the output from Whisper
type TranscriptionResult struct {
	Text     string
	Language string
	Duration float64
	Segments []Segment
}

// UserSettings holds the per-user values the pipeline consults.
type UserSettings struct {
	UserID          string    `json:"userId"`
	OpenAIAPIKey    string    `json:"openaiApiKey"`
	DefaultLanguage string    `json:"defaultLanguage"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// Episode is the persisted outcome of a completed job.
type Episode struct {
	EpisodeID          string    `json:"episodeId"`
	UserID             string    `json:"userId"`
	FileName           string    `json:"fileName"`
	CompressedFilePath string    `json:"compressedFilePath"`
	AudioURL           string    `json:"audioUrl"`
	Transcript         string    `json:"transcript"`
	TotalPages         int       `json:"totalPages"`
	Segments           []Segment `json:"segments"`
	Duration           float64   `json:"duration"`
	WordCount          int       `json:"wordCount"`
	CreatedAt          time.Time `json:"createdAt"`
}
