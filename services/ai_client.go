package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"
)

// GenerateItem is one piece of content returned by the generation API:
// a topic, a reply, or a tag suggestion set for an existing topic.
type GenerateItem struct {
	Title          string   `json:"title"`
	Content        string   `json:"content"`
	Tags           []string `json:"tags"`
	IrrelevantTags []string `json:"irrelevant_tags"`
	TopicID        uint     `json:"topic_id"`
}

// GenerateTopicPayload describes an existing topic sent to the API for
// batched tag maintenance.
type GenerateTopicPayload struct {
	TopicID uint     `json:"topic_id"`
	Title   string   `json:"title"`
	Excerpt string   `json:"excerpt"`
	Tags    []string `json:"tags"`
}

// GenerateRequest is the payload for one /tasks/generate call. One call
// is made per scheduled run; there is no retry inside a run.
type GenerateRequest struct {
	TaskType     string                 `json:"task_type"`
	Count        int                    `json:"count"`
	Instructions string                 `json:"instructions"`
	Context      []string               `json:"context,omitempty"`
	Topics       []GenerateTopicPayload `json:"topics,omitempty"`
}

// GenerateResponse is the parsed result of a /tasks/generate call.
type GenerateResponse struct {
	Items       []GenerateItem `json:"items"`
	CreditsUsed int            `json:"credits_used"`
}

// RAGResult is one semantic-search hit against the indexed forum content.
type RAGResult struct {
	PostID  uint    `json:"post_id"`
	Title   string  `json:"title"`
	Excerpt string  `json:"excerpt"`
	Score   float64 `json:"score"`
}

// ChatSource is a citation attached to an assistant chat reply.
type ChatSource struct {
	PostID uint   `json:"post_id"`
	Title  string `json:"title"`
}

// ChatResult is the parsed result of a /chat/message call.
type ChatResult struct {
	Content     string       `json:"content"`
	Sources     []ChatSource `json:"sources"`
	CreditsUsed int          `json:"credits_used"`
}

// AIClient is the shared abstraction over the external AI HTTP API. All
// task execution, semantic search and chatbot traffic goes through it;
// errors surface as generic wrapped errors with no transient/permanent
// distinction.
type AIClient interface {
	GenerateContent(ctx context.Context, req GenerateRequest) (*GenerateResponse, error)
	RAGSearch(ctx context.Context, query string, limit int) ([]RAGResult, error)
	CheckDuplicate(ctx context.Context, title, content string) (float64, error)
	ChatMessage(ctx context.Context, history []map[string]string, message string) (*ChatResult, error)
}

type aiClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// NewAIClient creates the HTTP-backed AIClient. The timeout covers the
// whole request; it is the only cancellation mechanism besides ctx.
func NewAIClient(baseURL, apiKey string, timeout time.Duration) AIClient {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &aiClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: timeout},
	}
}

// apiEnvelope is the wire envelope shared by all endpoints.
type apiEnvelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

func (c *aiClient) post(ctx context.Context, path string, payload interface{}, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode request for %s: %w", path, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build request for %s: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("AI API request to %s failed: %w", path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read AI API response from %s: %w", path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		log.Printf("ERROR: [AIClient] %s returned HTTP %d: %.200s", path, resp.StatusCode, string(raw))
		return fmt.Errorf("AI API returned HTTP %d for %s", resp.StatusCode, path)
	}

	var envelope apiEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return fmt.Errorf("failed to decode AI API response from %s: %w", path, err)
	}
	if !envelope.Success {
		msg := envelope.Error
		if msg == "" {
			msg = "unknown error"
		}
		return fmt.Errorf("AI API error for %s: %s", path, msg)
	}
	if out != nil && len(envelope.Data) > 0 {
		if err := json.Unmarshal(envelope.Data, out); err != nil {
			return fmt.Errorf("failed to decode AI API data from %s: %w", path, err)
		}
	}
	return nil
}

// GenerateContent performs the single generation call of a task run.
func (c *aiClient) GenerateContent(ctx context.Context, req GenerateRequest) (*GenerateResponse, error) {
	var out GenerateResponse
	if err := c.post(ctx, "/tasks/generate", req, &out); err != nil {
		return nil, err
	}
	log.Printf("INFO: [AIClient] /tasks/generate returned %d items (%d credits).", len(out.Items), out.CreditsUsed)
	return &out, nil
}

// RAGSearch runs a semantic search over the indexed forum content.
func (c *aiClient) RAGSearch(ctx context.Context, query string, limit int) ([]RAGResult, error) {
	if limit <= 0 {
		limit = 5
	}
	payload := map[string]interface{}{"query": query, "limit": limit}
	var out struct {
		Results []RAGResult `json:"results"`
	}
	if err := c.post(ctx, "/rag/search", payload, &out); err != nil {
		return nil, err
	}
	return out.Results, nil
}

// CheckDuplicate returns the highest similarity score between the draft
// content and existing indexed content, in [0, 1].
func (c *aiClient) CheckDuplicate(ctx context.Context, title, content string) (float64, error) {
	payload := map[string]string{"title": title, "content": content}
	var out struct {
		Similarity float64 `json:"similarity"`
	}
	if err := c.post(ctx, "/rag/duplicate-check", payload, &out); err != nil {
		return 0, err
	}
	return out.Similarity, nil
}

// ChatMessage sends one chatbot turn with prior history.
func (c *aiClient) ChatMessage(ctx context.Context, history []map[string]string, message string) (*ChatResult, error) {
	payload := map[string]interface{}{"history": history, "message": message}
	var out ChatResult
	if err := c.post(ctx, "/chat/message", payload, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
