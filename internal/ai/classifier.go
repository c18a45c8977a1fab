// Package ai classifies mirrored messages with an OpenAI-compatible chat
// completions endpoint and writes the results back to the local store.
package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/nhle/mail-triage/internal/model"
)

const (
	DefaultModel   = "Qwen/Qwen2.5-14B-Instruct"
	DefaultBaseURL = "https://router.huggingface.co/v1"
	DefaultTimeout = 25 * time.Second

	maxBodyChars    = 8000
	maxSummaryChars = 280

	// FallbackSummary is stored when the model returns no usable summary.
	FallbackSummary = "No summary generated."
)

var (
	// ErrEmptyBody is returned when there is nothing to classify.
	ErrEmptyBody = errors.New("message has no body")

	// ErrNoAPIKey is returned when the classifier is not configured.
	ErrNoAPIKey = errors.New("classifier api key not set")

	// ErrUnparseable is returned when the model reply holds no JSON object.
	ErrUnparseable = errors.New("classifier reply is not a JSON object")
)

// Input is the part of a message the classifier sees.
type Input struct {
	Subject string
	Sender  string
	To      []string
	Cc      []string
	Body    string
}

// Analysis is the classifier verdict for one message.
type Analysis struct {
	Summary  string
	Type     model.MessageType
	Priority int
}

// ReplyInput describes the message a reply draft is written for.
type ReplyInput struct {
	Subject      string
	Sender       string
	To           []string
	Cc           []string
	Body         string
	CurrentDraft string
}

// Classifier produces triage verdicts and reply suggestions.
type Classifier interface {
	Analyze(ctx context.Context, in Input) (*Analysis, error)
	SuggestReply(ctx context.Context, in ReplyInput) (string, error)
}

// HTTPClassifier talks to a chat completions endpoint.
type HTTPClassifier struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
}

// NewHTTPClassifier creates a classifier. Empty values fall back to the
// package defaults.
func NewHTTPClassifier(baseURL, apiKey, modelName string, timeout time.Duration) *HTTPClassifier {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if strings.TrimSpace(modelName) == "" {
		modelName = DefaultModel
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &HTTPClassifier{
		baseURL: baseURL,
		apiKey:  strings.TrimSpace(apiKey),
		model:   strings.TrimSpace(modelName),
		client:  &http.Client{Timeout: timeout},
	}
}

// Enabled reports whether an API key is configured.
func (c *HTTPClassifier) Enabled() bool {
	return c.apiKey != ""
}

// Ping sends a one-token completion to check the endpoint, model and key.
func (c *HTTPClassifier) Ping(ctx context.Context) error {
	_, err := c.complete(ctx, []chatMessage{{Role: "user", Content: "ping"}}, 0, 1)
	return err
}

const analyzeSystemPrompt = "You are an email triage assistant. Return JSON only with keys: " +
	"summary, type, priority. " +
	"type must be one of: read-only, junk-uncertain, junk, response-needed. " +
	"priority must be an integer 1 to 3. " +
	"Use priority 3 for urgent/time-sensitive messages requiring action, " +
	"2 for important but not urgent, 1 for low urgency. " +
	"summary must be one concise sentence under 35 words."

// Analyze classifies one message.
func (c *HTTPClassifier) Analyze(ctx context.Context, in Input) (*Analysis, error) {
	body := strings.TrimSpace(in.Body)
	if body == "" {
		return nil, ErrEmptyBody
	}

	var sb strings.Builder
	sb.WriteString("Classify this email.\n\n")
	fmt.Fprintf(&sb, "Subject: %s\n", subjectOrDefault(in.Subject))
	fmt.Fprintf(&sb, "From: %s\n", strings.TrimSpace(in.Sender))
	fmt.Fprintf(&sb, "To: %s\n", strings.Join(in.To, ", "))
	fmt.Fprintf(&sb, "Cc: %s\n", strings.Join(in.Cc, ", "))
	fmt.Fprintf(&sb, "Body:\n%s\n\n", truncateRunes(body, maxBodyChars))
	sb.WriteString("Return strictly valid JSON.")

	text, err := c.complete(ctx, []chatMessage{
		{Role: "system", Content: analyzeSystemPrompt},
		{Role: "user", Content: sb.String()},
	}, 0.0, 260)
	if err != nil {
		return nil, err
	}
	return parseAnalysis(text)
}

// SuggestReply writes a plain-text reply body for the message.
func (c *HTTPClassifier) SuggestReply(ctx context.Context, in ReplyInput) (string, error) {
	body := strings.TrimSpace(in.Body)
	if body == "" && strings.TrimSpace(in.Subject) == "" {
		return "", ErrEmptyBody
	}

	var sb strings.Builder
	sb.WriteString("Write a reply draft for this email thread.\n\n")
	fmt.Fprintf(&sb, "Original subject: %s\n", subjectOrDefault(in.Subject))
	fmt.Fprintf(&sb, "Sender: %s\n", strings.TrimSpace(in.Sender))
	fmt.Fprintf(&sb, "Planned To: %s\n", strings.Join(in.To, ", "))
	fmt.Fprintf(&sb, "Planned Cc: %s\n", strings.Join(in.Cc, ", "))
	fmt.Fprintf(&sb, "Original message body:\n%s\n\n", truncateRunes(body, maxBodyChars))
	if draft := strings.TrimSpace(in.CurrentDraft); draft != "" {
		sb.WriteString("If useful, improve this existing draft while preserving intent:\n")
		sb.WriteString(draft)
		sb.WriteString("\n\n")
	}
	sb.WriteString("Keep it professional, clear, and actionable.")

	text, err := c.complete(ctx, []chatMessage{
		{Role: "system", Content: "You write concise, natural email replies. " +
			"Return only the reply body text, no markdown, no subject line."},
		{Role: "user", Content: sb.String()},
	}, 0.35, 420)
	if err != nil {
		return "", err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("empty reply suggestion")
	}
	return text, nil
}

// === Wire types ===

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content json.RawMessage `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type chatErrorResponse struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// complete sends one chat completion request and returns the reply text.
func (c *HTTPClassifier) complete(ctx context.Context, msgs []chatMessage, temperature float64, maxTokens int) (string, error) {
	if !c.Enabled() {
		return "", ErrNoAPIKey
	}

	bodyBytes, err := json.Marshal(chatRequest{
		Model:       c.model,
		Messages:    msgs,
		Temperature: temperature,
		MaxTokens:   maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(
		ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(bodyBytes),
	)
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("calling classifier: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var apiErr chatErrorResponse
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Error.Message != "" {
			return "", fmt.Errorf("classifier error (%d): %s", resp.StatusCode, apiErr.Error.Message)
		}
		return "", fmt.Errorf("classifier error (%d): %s", resp.StatusCode, string(respBody))
	}

	var result chatResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", fmt.Errorf("decoding response: %w", err)
	}
	if len(result.Choices) == 0 {
		return "", fmt.Errorf("classifier returned no choices")
	}
	return contentText(result.Choices[0].Message.Content), nil
}

// contentText accepts both a plain string and a list of {"text": ...} parts.
func contentText(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var parts []struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(raw, &parts); err == nil {
		var sb strings.Builder
		for _, p := range parts {
			sb.WriteString(p.Text)
		}
		return strings.TrimSpace(sb.String())
	}
	return ""
}

// === Reply parsing ===

var jsonObjectPattern = regexp.MustCompile(`\{[\s\S]*\}`)

// extractJSONBlock returns the outermost {...} span of text.
func extractJSONBlock(text string) string {
	stripped := strings.TrimSpace(text)
	if stripped == "" {
		return ""
	}
	if strings.HasPrefix(stripped, "{") && strings.HasSuffix(stripped, "}") {
		return stripped
	}
	return strings.TrimSpace(jsonObjectPattern.FindString(stripped))
}

func parseAnalysis(text string) (*Analysis, error) {
	block := extractJSONBlock(text)
	if block == "" {
		return nil, ErrUnparseable
	}

	var raw struct {
		Summary  any             `json:"summary"`
		Type     any             `json:"type"`
		Priority json.RawMessage `json:"priority"`
	}
	if err := json.Unmarshal([]byte(block), &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnparseable, err)
	}

	typ := model.MessageType(strings.ToLower(strings.TrimSpace(stringify(raw.Type))))
	if !typ.Triage() {
		typ = model.TypeReadOnly
	}

	summary := cleanSummary(stringify(raw.Summary))
	if summary == "" {
		summary = FallbackSummary
	}

	return &Analysis{
		Summary:  summary,
		Type:     typ,
		Priority: model.ClampPriority(parsePriority(raw.Priority)),
	}, nil
}

// parsePriority reads an integer or numeric string; anything else is low.
func parsePriority(raw json.RawMessage) int {
	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		return int(n)
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if v, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			return v
		}
	}
	return model.PriorityLow
}

// cleanSummary collapses whitespace and caps the length.
func cleanSummary(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if r := []rune(s); len(r) > maxSummaryChars {
		return string(r[:maxSummaryChars-3]) + "..."
	}
	return s
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	default:
		return fmt.Sprint(t)
	}
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func subjectOrDefault(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "(No subject)"
	}
	return s
}
