package llmclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	apperrors "askme/errors"

	"go.uber.org/zap"
)

func newTestGemini(t *testing.T, stream bool, handler http.HandlerFunc) *GeminiClient {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewGeminiClient(GeminiOptions{
		BaseURL: server.URL + "/",
		APIKey:  "test-key",
		Model:   "gemini-test",
		Stream:  stream,
	}, server.Client(), zap.NewNop())
}

func TestGeminiGenerateSendsContentsAndReadsFirstPart(t *testing.T) {
	var gotPath, gotKey string
	var gotBody generateRequest
	client := newTestGemini(t, false, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("x-goog-api-key")
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &gotBody); err != nil {
			t.Errorf("decode request: %v", err)
		}
		fmt.Fprint(w, `{"candidates":[{"content":{"parts":[{"text":"Hello there"},{"text":" ignored"}]}}]}`)
	})

	answer, err := client.Generate(context.Background(), []Message{{Role: RoleUser, Text: "hi"}}, nil)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if answer != "Hello there" {
		t.Fatalf("answer = %q, want %q", answer, "Hello there")
	}
	if gotPath != "/models/gemini-test:generateContent" {
		t.Fatalf("path = %q", gotPath)
	}
	if gotKey != "test-key" {
		t.Fatalf("api key header = %q", gotKey)
	}
	if len(gotBody.Contents) != 1 || gotBody.Contents[0].Parts[0].Text != "hi" || gotBody.Contents[0].Role != RoleUser {
		t.Fatalf("unexpected request body: %+v", gotBody)
	}
}

func TestGeminiGenerateNoCandidates(t *testing.T) {
	client := newTestGemini(t, false, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"candidates":[]}`)
	})

	_, err := client.Generate(context.Background(), []Message{{Role: RoleUser, Text: "hi"}}, nil)
	if !errors.Is(err, ErrNoAnswer) {
		t.Fatalf("err = %v, want ErrNoAnswer", err)
	}
}

func TestGeminiGenerateHTTPError(t *testing.T) {
	client := newTestGemini(t, false, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"bad key"}}`, http.StatusForbidden)
	})

	_, err := client.Generate(context.Background(), []Message{{Role: RoleUser, Text: "hi"}}, nil)
	if !errors.Is(err, ErrNoAnswer) {
		t.Fatalf("err = %v, want ErrNoAnswer", err)
	}
	if !strings.Contains(err.Error(), "403") || !strings.Contains(err.Error(), "bad key") {
		t.Fatalf("error should carry status and body: %v", err)
	}
}

func TestGeminiGenerateHTTPErrorNotJSON(t *testing.T) {
	client := newTestGemini(t, false, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream connect error", http.StatusBadGateway)
	})

	_, err := client.Generate(context.Background(), []Message{{Role: RoleUser, Text: "hi"}}, nil)
	if !errors.Is(err, apperrors.ErrLLMCommunication) {
		t.Fatalf("err = %v, want ErrLLMCommunication", err)
	}
	if errors.Is(err, ErrNoAnswer) {
		t.Fatalf("transport-level failure reported as no answer: %v", err)
	}
}

func TestGeminiGenerateAPIErrorBody(t *testing.T) {
	client := newTestGemini(t, false, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"error":{"code":400,"message":"quota","status":"RESOURCE_EXHAUSTED"}}`)
	})

	_, err := client.Generate(context.Background(), []Message{{Role: RoleUser, Text: "hi"}}, nil)
	if !errors.Is(err, ErrNoAnswer) {
		t.Fatalf("err = %v, want ErrNoAnswer", err)
	}
	if !strings.Contains(err.Error(), "RESOURCE_EXHAUSTED") {
		t.Fatalf("error should carry the API status: %v", err)
	}
}

func TestGeminiGenerateUndecodableBody(t *testing.T) {
	client := newTestGemini(t, false, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"candidates":[`)
	})

	_, err := client.Generate(context.Background(), []Message{{Role: RoleUser, Text: "hi"}}, nil)
	if !errors.Is(err, apperrors.ErrLLMCommunication) {
		t.Fatalf("err = %v, want ErrLLMCommunication", err)
	}
}

func TestGeminiStreamForwardsChunks(t *testing.T) {
	var gotQuery string
	client := newTestGemini(t, true, func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		for _, chunk := range []string{"Go ", "is ", "fun."} {
			fmt.Fprintf(w, "data: {\"candidates\":[{\"content\":{\"parts\":[{\"text\":%q}]}}]}\n\n", chunk)
			flusher.Flush()
		}
	})

	var chunks []string
	answer, err := client.Generate(context.Background(), []Message{{Role: RoleUser, Text: "hi"}}, func(c string) error {
		chunks = append(chunks, c)
		return nil
	})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if answer != "Go is fun." {
		t.Fatalf("answer = %q", answer)
	}
	if len(chunks) != 3 {
		t.Fatalf("chunks = %v, want 3", chunks)
	}
	if gotQuery != "alt=sse" {
		t.Fatalf("query = %q, want alt=sse", gotQuery)
	}
}

func TestGeminiStreamKeepsCollectingAfterReaderFails(t *testing.T) {
	client := newTestGemini(t, true, func(w http.ResponseWriter, r *http.Request) {
		for _, chunk := range []string{"one ", "two"} {
			fmt.Fprintf(w, "data: {\"candidates\":[{\"content\":{\"parts\":[{\"text\":%q}]}}]}\n\n", chunk)
		}
	})

	calls := 0
	answer, err := client.Generate(context.Background(), []Message{{Role: RoleUser, Text: "hi"}}, func(string) error {
		calls++
		return errors.New("client gone")
	})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if answer != "one two" {
		t.Fatalf("answer = %q", answer)
	}
	if calls != 1 {
		t.Fatalf("onChunk calls = %d, want 1", calls)
	}
}

func TestGeminiStreamEmpty(t *testing.T) {
	client := newTestGemini(t, true, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "data: {\"candidates\":[]}\n\n")
	})

	_, err := client.Generate(context.Background(), []Message{{Role: RoleUser, Text: "hi"}}, func(string) error { return nil })
	if !errors.Is(err, ErrNoAnswer) {
		t.Fatalf("err = %v, want ErrNoAnswer", err)
	}
}

func TestGeminiHistoryRoles(t *testing.T) {
	req := toGeminiRequest([]Message{
		{Role: RoleUser, Text: "q1"},
		{Role: RoleModel, Text: "a1"},
		{Role: "assistant", Text: "treated as user"},
	})
	if req.Contents[1].Role != RoleModel {
		t.Fatalf("role = %q, want model", req.Contents[1].Role)
	}
	if req.Contents[2].Role != RoleUser {
		t.Fatalf("role = %q, want user", req.Contents[2].Role)
	}
}

func TestGenerateRejectsEmptyConversation(t *testing.T) {
	client := NewGeminiClient(GeminiOptions{}, nil, zap.NewNop())
	_, err := client.Generate(context.Background(), nil, nil)
	if !apperrors.IsInvalidInput(err) {
		t.Fatalf("err = %v, want invalid input", err)
	}
}
