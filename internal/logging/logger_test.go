package logging

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestBuffer_KeepsMostRecentLines(t *testing.T) {
	buf := NewBuffer(3)
	for i := 0; i < 5; i++ {
		_, err := fmt.Fprintf(buf, "line %d\n", i)
		require.NoError(t, err)
	}

	assert.Equal(t, []string{"line 2", "line 3", "line 4"}, buf.Lines())
}

func TestNewWithWriter_WritesJSON(t *testing.T) {
	buf := NewBuffer(10)
	logger, err := NewWithWriter("info", buf)
	require.NoError(t, err)

	logger.Debug("hidden")
	logger.Info("job completed", zap.String("episode_id", "e1"))

	lines := buf.Lines()
	require.Len(t, lines, 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "job completed", entry["msg"])
	assert.Equal(t, "e1", entry["episode_id"])
	assert.Equal(t, "info", entry["level"])
}

func TestNewWithWriter_RejectsUnknownLevel(t *testing.T) {
	_, err := NewWithWriter("chatty", NewBuffer(1))
	assert.Error(t, err)
}
