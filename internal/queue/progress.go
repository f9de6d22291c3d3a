package queue

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/codebuildervaibhav/podflow/internal/status"
	"github.com/codebuildervaibhav/podflow/internal/types"
)

// Overall progress windows per state.
const (
	progressCompressFloor   = 10
	progressCompressCeiling = 40
	progressTranscribeFloor = 50
	progressTranscribed     = 80
	progressDone            = 100
)

var stageMessages = map[string]string{
	types.StatusDownloading:  "Downloading audio...",
	types.StatusCompressing:  "Compressing audio...",
	types.StatusTranscribing: "Transcribing audio...",
	types.StatusCompleted:    "Compression and transcription completed",
}

// Rescale maps a stage-local percentage into the [floor, ceiling] window of
// overall job progress. Out-of-range input is clamped.
func Rescale(stageProgress, floor, ceiling int) int {
	if stageProgress < 0 {
		stageProgress = 0
	}
	if stageProgress > 100 {
		stageProgress = 100
	}
	return floor + stageProgress*(ceiling-floor)/100
}

// jobRun is the only writer of one episode's record while its job executes.
// Progress never decreases and nothing is written after a terminal record.
type jobRun struct {
	store     status.Store
	episodeID string
	// finish wraps the terminal write; the pool uses it to retire the
	// episode atomically with that write.
	finish func(write func())

	mu       sync.Mutex
	progress int
	terminal bool
}

func newJobRun(store status.Store, episodeID string, finish func(write func())) *jobRun {
	if finish == nil {
		finish = func(write func()) { write() }
	}
	return &jobRun{store: store, episodeID: episodeID, finish: finish}
}

func (r *jobRun) advance(state string, progress int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.terminal {
		return
	}
	if progress < r.progress {
		progress = r.progress
	}
	r.progress = progress

	rec := types.NewJobRecord(state, progress)
	rec.Message = stageMessages[state]
	r.store.Set(r.episodeID, rec)
}

func (r *jobRun) complete(rec types.JobRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.terminal {
		return
	}
	r.terminal = true
	r.progress = rec.Progress
	r.finish(func() { r.store.Set(r.episodeID, rec) })
}

// fail writes the failure record, keeping the last progress reached.
func (r *jobRun) fail(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.terminal {
		return
	}
	r.terminal = true
	rec := failedRecord(r.progress, err)
	r.finish(func() { r.store.Set(r.episodeID, rec) })
}

func failedRecord(progress int, err error) types.JobRecord {
	rec := types.NewJobRecord(types.StatusFailed, progress)
	rec.Error = err.Error()
	if rec.Error == "" {
		rec.Error = "unknown error"
	}
	return rec
}

// scratch owns the job's temporary files. Release deletes every tracked
// path exactly once.
type scratch struct {
	dir       string
	episodeID string
	logger    *zap.Logger

	mu    sync.Mutex
	paths []string
	once  sync.Once
}

func newScratch(dir, episodeID string, logger *zap.Logger) (*scratch, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	return &scratch{dir: dir, episodeID: episodeID, logger: logger}, nil
}

// path reserves a unique file name such as input-<episodeId>-<id>.mp3.
func (s *scratch) path(prefix, ext string) string {
	name := prefix + "-" + sanitizeName(s.episodeID) + "-" + uuid.NewString()[:8] + ext
	p := filepath.Join(s.dir, name)
	s.track(p)
	return p
}

func (s *scratch) track(p string) {
	if p == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.paths {
		if existing == p {
			return
		}
	}
	s.paths = append(s.paths, p)
}

func (s *scratch) owns(p string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.paths {
		if filepath.Clean(existing) == p {
			return true
		}
	}
	return false
}

func (s *scratch) Release() {
	s.once.Do(func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for _, p := range s.paths {
			if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
				s.logger.Warn("failed to remove scratch file", zap.String("path", p), zap.Error(err))
			}
		}
	})
}

func sanitizeName(s string) string {
	out := []byte(s)
	for i, c := range out {
		switch {
		case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9', c == '-', c == '_':
		default:
			out[i] = '_'
		}
	}
	if len(out) == 0 {
		return "episode"
	}
	return string(out)
}
