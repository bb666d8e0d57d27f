package components

import (
	"context"
	"html/template"
	"strings"
	"testing"

	"askme/web/format"
	"askme/web/types"

	"github.com/a-h/templ"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type upperRenderer struct{}

func (upperRenderer) RenderAnswer(text string) template.HTML {
	return template.HTML("<p>" + strings.ToUpper(text) + "</p>")
}

func render(t *testing.T, c templ.Component) string {
	t.Helper()
	var sb strings.Builder
	require.NoError(t, c.Render(context.Background(), &sb))
	return sb.String()
}

func TestQuestionBubbleEscapes(t *testing.T) {
	entry := types.HistoryEntry{Position: 3, Question: `<script>alert("x")</script>`}
	html := render(t, QuestionBubble(entry))
	require.Contains(t, html, `id="question-3"`)
	require.NotContains(t, html, "<script>")
	require.Contains(t, html, "&lt;script&gt;")
}

func TestAnswerBubbleStates(t *testing.T) {
	pending := types.HistoryEntry{Position: 1, Status: types.StatusPending}
	html := render(t, AnswerBubble(pending, upperRenderer{}))
	require.Contains(t, html, `id="answer-1"`)
	require.Contains(t, html, format.LoadingText)

	answered := types.HistoryEntry{Position: 1, Status: types.StatusAnswered, Answer: "done"}
	html = render(t, AnswerBubble(answered, upperRenderer{}))
	require.Contains(t, html, "<p>DONE</p>")
	require.NotContains(t, html, format.LoadingText)
	require.NotContains(t, html, "bubble-failed")

	failed := types.HistoryEntry{Position: 1, Status: types.StatusFailed, Answer: types.ErrorAnswer}
	html = render(t, AnswerBubble(failed, upperRenderer{}))
	require.Contains(t, html, "bubble-failed")
	require.Contains(t, html, `data-status="failed"`)
}

func TestHistoryPanelLinksToQuestions(t *testing.T) {
	entries := []types.HistoryEntry{
		{Position: 0, Question: "first"},
		{Position: 1, Question: "second & more"},
	}
	html := render(t, HistoryPanel(entries))
	require.Contains(t, html, `href="#question-0"`)
	require.Contains(t, html, `data-target="question-1"`)
	require.Contains(t, html, "second &amp; more")
}

func TestSidebarMarksActiveSession(t *testing.T) {
	active := types.Session{ID: uuid.New(), Title: "Active"}
	other := types.Session{ID: uuid.New(), Title: "Other"}
	html := render(t, Sidebar(PageChat, []types.Session{other, active}, active.ID))

	require.Contains(t, html, `<li class="session active"><a href="/dashboard/`+active.ID.String()+`"`)
	require.Contains(t, html, `<li class="session"><a href="/dashboard/`+other.ID.String()+`"`)
	require.Contains(t, html, `action="/sessions/`+other.ID.String()+`/delete"`)
	require.Contains(t, html, `<li class="nav-item active"><a href="/dashboard">Chat</a>`)
}

func TestAskForm(t *testing.T) {
	html := render(t, AskForm())
	require.Contains(t, html, `placeholder="Ask Me"`)
	require.Contains(t, html, `name="message"`)
	require.Contains(t, html, ">Ask</button>")
}
