package transcription

import (
	"errors"
	"fmt"
)

// Stage names as they appear in logs and error messages.
const (
	StageFetch      = "fetch"
	StageTranscode  = "transcode"
	StageTranscribe = "transcribe"
	StageUpload     = "upload"
)

var (
	ErrFetchFailed         = errors.New("audio download failed")
	ErrTranscodeFailed     = errors.New("audio compression failed")
	ErrFileTooLarge        = errors.New("file too large for transcription")
	ErrMissingCredential   = errors.New("no OpenAI API key available")
	ErrTranscriptionFailed = errors.New("transcription failed")
	ErrUploadFailed        = errors.New("upload failed")
)

// StageError is a stage-aware pipeline failure. Err wraps one of the
// package sentinels.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

// Unwrap exposes the underlying error for errors.Is / errors.As.
func (e *StageError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewStageError wraps err as a failure of stage.
func NewStageError(stage string, err error) *StageError {
	return &StageError{Stage: stage, Err: err}
}
