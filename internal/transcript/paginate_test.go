package transcript

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codebuildervaibhav/podflow/internal/types"
)

func TestPaginate_EmptyInput(t *testing.T) {
	assert.Empty(t, Paginate(""))
	assert.Empty(t, Paginate("   \n\t "))
}

func TestPaginateWithBudget_SplitsAtSentenceBoundaries(t *testing.T) {
	text := "Hello world. This is sentence two. Sentence three here."

	pages := PaginateWithBudget(text, 5)

	assert.Equal(t, []string{
		"Hello world.",
		"This is sentence two.",
		"Sentence three here.",
	}, pages)
}

func TestPaginateWithBudget_AccumulatesUntilBudget(t *testing.T) {
	text := "One two. Three four. Five six. Seven."

	pages := PaginateWithBudget(text, 4)

	assert.Equal(t, []string{"One two. Three four.", "Five six. Seven."}, pages)
}

func TestPaginateWithBudget_OversizedSentenceIsOwnPage(t *testing.T) {
	long := strings.TrimSpace(strings.Repeat("word ", 12)) + "."
	text := "Short one. " + long + " Tail end."

	pages := PaginateWithBudget(text, 5)

	require.Len(t, pages, 3)
	assert.Equal(t, "Short one.", pages[0])
	assert.Equal(t, long, pages[1])
	assert.Equal(t, "Tail end.", pages[2])
}

func TestPaginate_KeepsTrailingFragment(t *testing.T) {
	pages := Paginate("First sentence. and then it trailed off")

	require.Len(t, pages, 1)
	assert.Equal(t, "First sentence. and then it trailed off", pages[0])
}

func TestPaginate_IdempotentAndCovering(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 400; i++ {
		switch i % 3 {
		case 0:
			b.WriteString("This is a fairly ordinary sentence with nine words. ")
		case 1:
			b.WriteString("Really?  ")
		default:
			b.WriteString("Wow!\nThat was   spaced out... ")
		}
	}
	text := b.String()

	pages := Paginate(text)
	again := Paginate(strings.Join(pages, " "))

	assert.Equal(t, pages, again)
	assert.Equal(t, strings.Fields(text), strings.Fields(strings.Join(pages, " ")))
}

func TestPaginate_WordBudget(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 300; i++ {
		b.WriteString("Alpha beta gamma delta epsilon zeta eta. ")
	}

	pages := Paginate(b.String())

	require.Greater(t, len(pages), 1)
	for _, page := range pages {
		assert.LessOrEqual(t, WordCount(page), WordsPerPage)
	}
}

func TestSentences_TerminatorWithoutSpaceDoesNotSplit(t *testing.T) {
	assert.Equal(t, []string{"Version 2.5 is out.", "Go get it!"}, Sentences("Version 2.5 is out. Go get it!"))
}

func TestJoin_TrimsAndSkipsEmpty(t *testing.T) {
	segments := []types.Segment{
		{Start: 0, End: 1.5, Text: " Hello there."},
		{Start: 1.5, End: 2, Text: "   "},
		{Start: 2, End: 4, Text: "General Kenobi. "},
	}

	assert.Equal(t, "Hello there. General Kenobi.", Join(segments))
}

func TestFormatTimestamp(t *testing.T) {
	assert.Equal(t, "00:00:00", FormatTimestamp(0))
	assert.Equal(t, "00:01:05", FormatTimestamp(65.9))
	assert.Equal(t, "01:02:03", FormatTimestamp(3723))
	assert.Equal(t, "00:00:00", FormatTimestamp(-4))
}

func TestMarkers(t *testing.T) {
	markers := Markers([]types.Segment{{Start: 61, Text: " intro "}})

	require.Len(t, markers, 1)
	assert.Equal(t, types.Timestamp{Time: "00:01:01", Description: "intro"}, markers[0])
}
