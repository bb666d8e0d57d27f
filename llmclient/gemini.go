package llmclient

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	apperrors "askme/errors"

	"go.uber.org/zap"
)

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type generateRequest struct {
	Contents []geminiContent `json:"contents"`
}

type generateResponse struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// firstText is candidates[0].content.parts[0].text, or "".
func (r generateResponse) firstText() string {
	if len(r.Candidates) == 0 || len(r.Candidates[0].Content.Parts) == 0 {
		return ""
	}
	return r.Candidates[0].Content.Parts[0].Text
}

// chunkText joins every part of the first candidate; stream chunks may split
// text across parts.
func (r generateResponse) chunkText() string {
	if len(r.Candidates) == 0 {
		return ""
	}
	var b strings.Builder
	for _, p := range r.Candidates[0].Content.Parts {
		b.WriteString(p.Text)
	}
	return b.String()
}

// GeminiOptions configures the generative-language client.
type GeminiOptions struct {
	BaseURL string
	APIKey  string
	Model   string
	Stream  bool
}

// GeminiClient talks to the generateContent / streamGenerateContent endpoints.
type GeminiClient struct {
	opts       GeminiOptions
	httpClient *http.Client
	logger     *zap.Logger
}

func NewGeminiClient(opts GeminiOptions, httpClient *http.Client, logger *zap.Logger) *GeminiClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	return &GeminiClient{opts: opts, httpClient: httpClient, logger: logger}
}

func (c *GeminiClient) Name() string { return "gemini" }

// Generate sends the conversation and returns the answer text.
func (c *GeminiClient) Generate(ctx context.Context, messages []Message, onChunk ChunkFunc) (string, error) {
	if len(messages) == 0 {
		return "", apperrors.WrapError(apperrors.ErrInvalidInput, "no messages")
	}
	body, err := json.Marshal(toGeminiRequest(messages))
	if err != nil {
		return "", fmt.Errorf("marshal generate request: %w", err)
	}

	if c.opts.Stream && onChunk != nil {
		return c.stream(ctx, body, onChunk)
	}
	return c.generate(ctx, body)
}

func toGeminiRequest(messages []Message) generateRequest {
	req := generateRequest{Contents: make([]geminiContent, 0, len(messages))}
	for _, m := range messages {
		role := RoleUser
		if m.Role == RoleModel {
			role = RoleModel
		}
		req.Contents = append(req.Contents, geminiContent{Role: role, Parts: []geminiPart{{Text: m.Text}}})
	}
	return req
}

func (c *GeminiClient) endpoint(method string) string {
	return fmt.Sprintf("%s/models/%s:%s", c.opts.BaseURL, c.opts.Model, method)
}

func (c *GeminiClient) post(ctx context.Context, url string, body []byte, accept string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create generate request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	if c.opts.APIKey != "" {
		req.Header.Set("x-goog-api-key", c.opts.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrLLMCommunication, err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		msg := strings.TrimSpace(string(bodyBytes))
		c.logger.Warn("Gemini returned an error status",
			zap.Int("status", resp.StatusCode),
			zap.String("body", msg))
		// A JSON error reply is an answer without text.
		if json.Valid(bodyBytes) {
			return nil, fmt.Errorf("%w: gemini status %s: %s", ErrNoAnswer, resp.Status, msg)
		}
		return nil, fmt.Errorf("%w: gemini status %s: %s", apperrors.ErrLLMCommunication, resp.Status, msg)
	}
	return resp, nil
}

func (c *GeminiClient) apiError(gr generateResponse) error {
	c.logger.Warn("Gemini returned an error object",
		zap.Int("code", gr.Error.Code),
		zap.String("status", gr.Error.Status),
		zap.String("message", gr.Error.Message))
	return fmt.Errorf("%w: gemini [%s]: %s", ErrNoAnswer, gr.Error.Status, gr.Error.Message)
}

func (c *GeminiClient) generate(ctx context.Context, body []byte) (string, error) {
	resp, err := c.post(ctx, c.endpoint("generateContent"), body, "")
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var gr generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&gr); err != nil {
		return "", fmt.Errorf("%w: decode generate response: %v", apperrors.ErrLLMCommunication, err)
	}
	if gr.Error != nil {
		return "", c.apiError(gr)
	}

	text := gr.firstText()
	if text == "" {
		return "", ErrNoAnswer
	}
	return text, nil
}

func (c *GeminiClient) stream(ctx context.Context, body []byte, onChunk ChunkFunc) (string, error) {
	resp, err := c.post(ctx, c.endpoint("streamGenerateContent")+"?alt=sse", body, "text/event-stream")
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var answer strings.Builder
	forward := true
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		data, ok := strings.CutPrefix(line, "data:")
		if !ok {
			continue
		}
		data = strings.TrimSpace(data)
		if data == "" || data == "[DONE]" {
			continue
		}

		var gr generateResponse
		if err := json.Unmarshal([]byte(data), &gr); err != nil {
			c.logger.Warn("Skipping undecodable stream chunk", zap.Error(err))
			continue
		}
		if gr.Error != nil {
			return answer.String(), c.apiError(gr)
		}

		chunk := gr.chunkText()
		if chunk == "" {
			continue
		}
		answer.WriteString(chunk)
		if forward {
			if err := onChunk(chunk); err != nil {
				// The reader went away; keep collecting so the answer is stored.
				c.logger.Debug("Stopped forwarding stream chunks", zap.Error(err))
				forward = false
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return answer.String(), fmt.Errorf("%w: read stream: %v", apperrors.ErrLLMCommunication, err)
	}

	if answer.Len() == 0 {
		return "", ErrNoAnswer
	}
	return answer.String(), nil
}
