package services

import (
	"strings"
	"unicode/utf8"

	"github.com/jdkato/prose/v2"
)

// SessionTitle derives a sidebar title from a session's first question: its
// first sentence, cut on a word boundary to at most maxRunes runes.
func SessionTitle(question string, maxRunes int) string {
	text := strings.Join(strings.Fields(question), " ")
	if text == "" {
		return ""
	}

	if doc, err := prose.NewDocument(text,
		prose.WithTagging(false),
		prose.WithExtraction(false),
	); err == nil {
		if sentences := doc.Sentences(); len(sentences) > 0 {
			if first := strings.TrimSpace(sentences[0].Text); first != "" {
				text = first
			}
		}
	}

	return truncateRunes(text, maxRunes)
}

func truncateRunes(text string, maxRunes int) string {
	if maxRunes <= 0 || utf8.RuneCountInString(text) <= maxRunes {
		return text
	}
	runes := []rune(text)
	cut := string(runes[:maxRunes-1])
	if i := strings.LastIndex(cut, " "); i > 0 {
		cut = cut[:i]
	}
	return strings.TrimRight(cut, " ,;:-") + "…"
}
