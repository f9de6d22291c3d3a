package transcript

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// WordsPerPage is the page budget used by the UI.
const WordsPerPage = 500

// Paginate splits text into sentence-aligned pages of at most WordsPerPage words.
func Paginate(text string) []string {
	return PaginateWithBudget(text, WordsPerPage)
}

// PaginateWithBudget splits text into pages whose word count stays within budget.
// A sentence is never split: one that alone exceeds the budget forms its own page.
func PaginateWithBudget(text string, budget int) []string {
	pages := []string{}
	if budget < 1 {
		budget = 1
	}

	var current []string
	wordCount := 0
	for _, sentence := range Sentences(text) {
		words := len(strings.Fields(sentence))
		if wordCount+words > budget && len(current) > 0 {
			pages = append(pages, strings.Join(current, " "))
			current = nil
			wordCount = 0
		}
		current = append(current, sentence)
		wordCount += words
	}

	if len(current) > 0 {
		pages = append(pages, strings.Join(current, " "))
	}
	return pages
}

// Sentences splits text after runs of '.', '!' or '?' that are followed by
// whitespace or the end of input. Trailing text without a terminator is kept
// as the final sentence. Returned sentences are trimmed and never empty.
func Sentences(text string) []string {
	var sentences []string
	start := 0
	i := 0
	for i < len(text) {
		if !isTerminator(text[i]) {
			_, size := utf8.DecodeRuneInString(text[i:])
			i += size
			continue
		}
		for i < len(text) && isTerminator(text[i]) {
			i++
		}
		if i == len(text) {
			break
		}
		next, _ := utf8.DecodeRuneInString(text[i:])
		if unicode.IsSpace(next) {
			if s := strings.TrimSpace(text[start:i]); s != "" {
				sentences = append(sentences, s)
			}
			start = i
		}
	}
	if s := strings.TrimSpace(text[start:]); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}

func isTerminator(b byte) bool {
	return b == '.' || b == '!' || b == '?'
}
