package cleanup

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestSweep_RemovesOnlyOldFiles(t *testing.T) {
	dir := t.TempDir()
	oldFile := filepath.Join(dir, "input-e1-abc.mp3")
	freshFile := filepath.Join(dir, "output-e2-def.mp3")
	require.NoError(t, os.WriteFile(oldFile, []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(freshFile, []byte("y"), 0o644))

	past := time.Now().Add(-7 * time.Hour)
	require.NoError(t, os.Chtimes(oldFile, past, past))

	s := NewScheduler(dir, "@every 30m", 6, nil, zap.NewNop())

	assert.Equal(t, 1, s.Sweep())
	assert.NoFileExists(t, oldFile)
	assert.FileExists(t, freshFile)
}

func TestSweep_MissingDirectory(t *testing.T) {
	s := NewScheduler(filepath.Join(t.TempDir(), "absent"), "@every 30m", 6, nil, zap.NewNop())
	assert.Equal(t, 0, s.Sweep())
}

func TestStart_InvalidSchedule(t *testing.T) {
	s := NewScheduler(t.TempDir(), "every now and then", 6, nil, zap.NewNop())
	assert.Error(t, s.Start())
}

func TestStartStop(t *testing.T) {
	s := NewScheduler(t.TempDir(), "@every 1h", 6, nil, zap.NewNop())
	require.NoError(t, s.Start())
	s.Stop()
}

type guardFunc func(path string) bool

func (g guardFunc) InUse(path string) bool { return g(path) }

func TestSweep_KeepsFilesOfRunningJobs(t *testing.T) {
	dir := t.TempDir()
	running := filepath.Join(dir, "input-e1-abc.wav")
	orphan := filepath.Join(dir, "input-e2-def.wav")
	past := time.Now().Add(-7 * time.Hour)
	for _, p := range []string{running, orphan} {
		require.NoError(t, os.WriteFile(p, []byte("x"), 0o644))
		require.NoError(t, os.Chtimes(p, past, past))
	}

	s := NewScheduler(dir, "@every 30m", 6, guardFunc(func(p string) bool { return p == running }), zap.NewNop())

	assert.Equal(t, 1, s.Sweep())
	assert.FileExists(t, running)
	assert.NoFileExists(t, orphan)
}
