package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"codementor/internal/config"
	"codementor/internal/model"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"golang.org/x/time/rate"
)

var (
	ErrNoEvaluator   = errors.New("no evaluator configured")
	ErrEmptyResponse = errors.New("empty response from evaluator")
)

// Completer sends a prompt to an LLM and returns its raw text reply.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// EvaluatorService scores code submissions through an LLM provider. Calls
// are rate limited and bounded by a timeout.
type EvaluatorService struct {
	provider Completer
	limiter  *rate.Limiter
	timeout  time.Duration
}

// NewEvaluatorService creates the evaluator for cfg.Provider
func NewEvaluatorService(cfg *config.EvaluatorConfig) *EvaluatorService {
	var provider Completer
	switch cfg.Provider {
	case config.ProviderGemini:
		provider = NewGeminiClient(cfg)
	case config.ProviderAnthropic:
		provider = NewAnthropicClient(cfg)
	}
	return NewEvaluatorServiceWith(provider, cfg.RequestsPerMinute, cfg.Timeout())
}

// NewEvaluatorServiceWith wraps provider directly. A nil provider selects
// the offline heuristic evaluator.
func NewEvaluatorServiceWith(provider Completer, perMinute int, timeout time.Duration) *EvaluatorService {
	if perMinute <= 0 {
		perMinute = 60
	}
	return &EvaluatorService{
		provider: provider,
		limiter:  rate.NewLimiter(rate.Limit(float64(perMinute)/60.0), perMinute),
		timeout:  timeout,
	}
}

// Evaluate returns a transport error when the provider cannot be reached.
// An unparseable reply is not an error: it yields a zero score carrying the
// raw text.
func (s *EvaluatorService) Evaluate(ctx context.Context, req model.EvaluationRequest) (model.Evaluation, error) {
	if s.provider == nil {
		return mockEvaluate(req), nil
	}
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	if err := s.limiter.Wait(ctx); err != nil {
		return model.Evaluation{}, fmt.Errorf("rate limit: %w", err)
	}
	raw, err := s.provider.Complete(ctx, buildEvaluationPrompt(req))
	if err != nil {
		return model.Evaluation{}, err
	}
	return parseEvaluation(raw), nil
}

func buildEvaluationPrompt(req model.EvaluationRequest) string {
	task := req.Task
	if task == "" {
		task = "No specific task provided. Evaluate general code quality."
	}
	return fmt.Sprintf(`Evaluate the following %s code snippet based on the task. Provide a score out of 10 and explain any errors.
Code:
%s

Task:
%s

Return ONLY valid JSON with "score" (integer from 0 to 10) and "feedback" (string, explaining errors and correctness).`,
		req.Language, req.Code, task)
}

// parseEvaluation decodes the model reply, tolerating markdown code fences.
func parseEvaluation(raw string) model.Evaluation {
	cleaned := strings.ReplaceAll(raw, "```json", "")
	cleaned = strings.ReplaceAll(cleaned, "```", "")
	cleaned = strings.TrimSpace(cleaned)

	var out struct {
		Score    *float64 `json:"score"`
		Feedback string   `json:"feedback"`
	}
	if err := json.Unmarshal([]byte(cleaned), &out); err != nil || out.Score == nil {
		return model.Evaluation{Score: 0, Feedback: "Evaluator response could not be parsed. Raw response: " + raw}
	}
	return model.Evaluation{Score: clampScore(int(*out.Score + 0.5)), Feedback: out.Feedback}
}

func clampScore(score int) int {
	switch {
	case score < 0:
		return 0
	case score > 10:
		return 10
	}
	return score
}

// mockEvaluate scores by code length when no provider is configured.
func mockEvaluate(req model.EvaluationRequest) model.Evaluation {
	words := len(strings.Fields(req.Code))
	switch {
	case words == 0:
		return model.Evaluation{Score: 0, Feedback: "No code submitted."}
	case words < 5:
		return model.Evaluation{Score: 3, Feedback: "Very short solution. Mock evaluation (no API key configured)."}
	case words < 20:
		return model.Evaluation{Score: 6, Feedback: "Reasonable attempt. Mock evaluation (no API key configured)."}
	}
	return model.Evaluation{Score: 8, Feedback: "Substantial solution. Mock evaluation (no API key configured)."}
}

// GeminiClient calls the Gemini generateContent endpoint
type GeminiClient struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

func NewGeminiClient(cfg *config.EvaluatorConfig) *GeminiClient {
	return &GeminiClient{
		endpoint: cfg.ModelEndpoint(),
		apiKey:   cfg.GeminiAPIKey,
		client:   &http.Client{Timeout: cfg.Timeout()},
	}
}

func (g *GeminiClient) Complete(ctx context.Context, prompt string) (string, error) {
	reqBody := map[string]interface{}{
		"contents": []map[string]interface{}{
			{
				"parts": []map[string]string{
					{"text": prompt},
				},
			},
		},
		"generationConfig": map[string]interface{}{
			"responseMimeType": "application/json",
		},
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return "", err
	}

	url := fmt.Sprintf("%s?key=%s", g.endpoint, g.apiKey)
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(jsonBody))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("gemini: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var geminiResp struct {
		Candidates []struct {
			Content struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"content"`
		} `json:"candidates"`
	}
	if err := json.Unmarshal(body, &geminiResp); err != nil {
		return "", err
	}

	if len(geminiResp.Candidates) > 0 && len(geminiResp.Candidates[0].Content.Parts) > 0 {
		return geminiResp.Candidates[0].Content.Parts[0].Text, nil
	}
	return "", ErrEmptyResponse
}

// MessagesClient is the subset of the Anthropic SDK used here. It is
// satisfied by *sdk.MessageService.
type MessagesClient interface {
	New(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) (*sdk.Message, error)
}

// AnthropicClient calls the Claude Messages API
type AnthropicClient struct {
	msg       MessagesClient
	model     string
	maxTokens int64
}

func NewAnthropicClient(cfg *config.EvaluatorConfig) *AnthropicClient {
	ac := sdk.NewClient(option.WithAPIKey(cfg.AnthropicAPIKey))
	return NewAnthropicClientWith(&ac.Messages, cfg.AnthropicModel, cfg.MaxTokens)
}

func NewAnthropicClientWith(msg MessagesClient, modelID string, maxTokens int64) *AnthropicClient {
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	return &AnthropicClient{msg: msg, model: modelID, maxTokens: maxTokens}
}

func (a *AnthropicClient) Complete(ctx context.Context, prompt string) (string, error) {
	msg, err := a.msg.New(ctx, sdk.MessageNewParams{
		Model:     sdk.Model(a.model),
		MaxTokens: a.maxTokens,
		Messages:  []sdk.MessageParam{sdk.NewUserMessage(sdk.NewTextBlock(prompt))},
	})
	if err != nil {
		return "", fmt.Errorf("anthropic messages.new: %w", err)
	}
	var sb strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	if sb.Len() == 0 {
		return "", ErrEmptyResponse
	}
	return sb.String(), nil
}
