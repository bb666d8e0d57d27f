package format

import (
	"strings"
	"testing"
)

func newTestRenderer(t *testing.T) *Renderer {
	t.Helper()
	r, err := NewRenderer(8)
	if err != nil {
		t.Fatalf("NewRenderer() error = %v", err)
	}
	return r
}

func TestRenderAnswerMarkdown(t *testing.T) {
	r := newTestRenderer(t)
	got := string(r.RenderAnswer("**Summary**\n- one\n- two"))

	if !strings.Contains(got, "<strong>Summary</strong>") {
		t.Errorf("missing bold heading in %q", got)
	}
	if !strings.Contains(got, "<li>one</li>") || !strings.Contains(got, "<li>two</li>") {
		t.Errorf("list not rendered in %q", got)
	}
}

func TestRenderAnswerDropsRawHTML(t *testing.T) {
	r := newTestRenderer(t)
	got := string(r.RenderAnswer("hello <script>alert(1)</script> world"))
	if strings.Contains(got, "<script>") {
		t.Fatalf("raw html leaked: %q", got)
	}
}

func TestRenderAnswerLinksOpenInNewTab(t *testing.T) {
	r := newTestRenderer(t)
	got := string(r.RenderAnswer("[docs](https://go.dev)"))
	if !strings.Contains(got, `target="_blank"`) {
		t.Fatalf("link missing target: %q", got)
	}
	if !strings.Contains(got, `rel="nofollow noopener"`) {
		t.Fatalf("link missing rel: %q", got)
	}
}

func TestRenderAnswerDropsUnsafeLinks(t *testing.T) {
	r := newTestRenderer(t)
	for _, text := range []string{
		"click [here](javascript:alert(1))",
		"click [here](JavaScript:alert(1))",
		"click [here](data:text/html;base64,PHNjcmlwdD4=)",
	} {
		got := string(r.RenderAnswer(text))
		if strings.Contains(got, "<a ") || strings.Contains(strings.ToLower(got), "javascript:") || strings.Contains(got, "data:") {
			t.Errorf("RenderAnswer(%q) kept an unsafe link: %q", text, got)
		}
		if !strings.Contains(got, "here") {
			t.Errorf("RenderAnswer(%q) dropped the link text: %q", text, got)
		}
	}
}

func TestRenderAnswerEmpty(t *testing.T) {
	r := newTestRenderer(t)
	if got := r.RenderAnswer("   "); got != "" {
		t.Fatalf("RenderAnswer(blank) = %q, want empty", got)
	}
	if r.Len() != 0 {
		t.Fatalf("blank answers should not be cached")
	}
}

func TestRenderAnswerCaches(t *testing.T) {
	r := newTestRenderer(t)
	first := r.RenderAnswer("cached *text*")
	second := r.RenderAnswer("cached *text*")
	if first != second {
		t.Fatalf("cached render differs: %q vs %q", first, second)
	}
	if r.Len() != 1 {
		t.Fatalf("cache len = %d, want 1", r.Len())
	}
}

func TestNormalizeMarkdownLists(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"inserts blank line", "Steps:\n1. a\n2. b", "Steps:\n\n1. a\n2. b"},
		{"keeps existing blank", "Steps:\n\n- a", "Steps:\n\n- a"},
		{"leaves fenced code", "```\nx\n- y\n```", "```\nx\n- y\n```"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := normalizeMarkdownLists(tt.in); got != tt.want {
				t.Errorf("normalizeMarkdownLists() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestPreprocessAnswerText(t *testing.T) {
	got := PreprocessAnswerText("“quoted” it’s\r\nnext")
	want := "\"quoted\" it's\nnext"
	if got != want {
		t.Fatalf("PreprocessAnswerText() = %q, want %q", got, want)
	}
}
