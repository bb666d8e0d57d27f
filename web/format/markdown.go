package format

import (
	"html/template"
	"regexp"
	"strings"

	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
	lru "github.com/hashicorp/golang-lru"
)

// LoadingText stands in for an answer that has not arrived yet.
const LoadingText = "Loading..."

var listItemRe = regexp.MustCompile(`^(\d+\.|[-*+])\s`)

// Renderer turns answer text into HTML. Rendered answers are cached by text;
// history pages re-render the same answers on every load.
type Renderer struct {
	cache *lru.Cache
}

// NewRenderer creates a renderer whose cache holds up to size answers.
func NewRenderer(size int) (*Renderer, error) {
	if size <= 0 {
		size = 1
	}
	cache, err := lru.New(size)
	if err != nil {
		return nil, err
	}
	return &Renderer{cache: cache}, nil
}

// RenderAnswer converts markdown answer text to HTML. Raw HTML in the answer
// is dropped, links with unsafe schemes are not rendered as anchors, and the
// rest open in a new tab.
func (r *Renderer) RenderAnswer(text string) template.HTML {
	if strings.TrimSpace(text) == "" {
		return ""
	}
	if cached, ok := r.cache.Get(text); ok {
		return cached.(template.HTML)
	}

	normalized := normalizeMarkdownLists(PreprocessAnswerText(text))

	// Parsers are stateful; one per render.
	p := parser.NewWithExtensions(parser.CommonExtensions | parser.AutoHeadingIDs)
	renderer := html.NewRenderer(html.RendererOptions{
		Flags: html.CommonFlags | html.SkipHTML | html.HrefTargetBlank |
			html.Safelink | html.NofollowLinks | html.NoopenerLinks,
	})
	out := template.HTML(markdown.ToHTML([]byte(normalized), p, renderer))

	r.cache.Add(text, out)
	return out
}

// Len reports how many rendered answers are cached.
func (r *Renderer) Len() int {
	return r.cache.Len()
}

// normalizeMarkdownLists ensures list items have proper spacing for markdown parsing.
// Markdown requires a blank line before lists, but models often leave it out.
func normalizeMarkdownLists(text string) string {
	lines := strings.Split(text, "\n")
	result := make([]string, 0, len(lines))
	inFence := false

	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") {
			inFence = !inFence
		}

		if !inFence && i > 0 && listItemRe.MatchString(trimmed) {
			prev := strings.TrimSpace(lines[i-1])
			if prev != "" && !listItemRe.MatchString(prev) {
				result = append(result, "")
			}
		}
		result = append(result, line)
	}

	return strings.Join(result, "\n")
}

// PreprocessAnswerText normalizes model output before rendering.
func PreprocessAnswerText(text string) string {
	if text == "" {
		return text
	}

	text = strings.ReplaceAll(text, "\r\n", "\n")
	return strings.NewReplacer(
		"“", "\"",
		"”", "\"",
		"‘", "'",
		"’", "'",
	).Replace(text)
}
