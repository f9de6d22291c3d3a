package transcript

import (
	"fmt"
	"strings"

	"github.com/codebuildervaibhav/podflow/internal/types"
)

// Join rebuilds the full transcript from segment texts, separated by single spaces.
func Join(segments []types.Segment) string {
	parts := make([]string, 0, len(segments))
	for _, seg := range segments {
		if text := strings.TrimSpace(seg.Text); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " ")
}

// FormatTimestamp renders seconds as HH:MM:SS.
func FormatTimestamp(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	total := int(seconds)
	return fmt.Sprintf("%02d:%02d:%02d", total/3600, (total%3600)/60, total%60)
}

// Markers returns one timestamp per segment start.
func Markers(segments []types.Segment) []types.Timestamp {
	markers := make([]types.Timestamp, 0, len(segments))
	for _, seg := range segments {
		markers = append(markers, types.Timestamp{
			Time:        FormatTimestamp(seg.Start),
			Description: strings.TrimSpace(seg.Text),
		})
	}
	return markers
}

// WordCount counts whitespace-separated words.
func WordCount(text string) int {
	return len(strings.Fields(text))
}
