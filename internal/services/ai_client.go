package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/skillforge/skillforge-backend/internal/pkg/envutil"
	"github.com/skillforge/skillforge-backend/internal/pkg/logger"
)

// GenerationUsage carries the provider's token accounting for one call.
type GenerationUsage struct {
	PromptTokens     int
	CompletionTokens int
	Model            string
}

// AIClient is the single seam between the job executor and the language
// model provider. Implementations make exactly one provider call per
// invocation; retry policy belongs to the caller.
type AIClient interface {
	GenerateText(ctx context.Context, system string, user string) (string, *GenerationUsage, error)
}

// ProviderHTTPError is a non-2xx answer from the model provider. The
// executor inspects the status code to classify the failure for users.
type ProviderHTTPError struct {
	StatusCode int
	Body       string
}

func (e *ProviderHTTPError) Error() string {
	return fmt.Sprintf("provider http %d: %s", e.StatusCode, e.Body)
}

func (e *ProviderHTTPError) HTTPStatusCode() int { return e.StatusCode }

type openAIClient struct {
	log        *logger.Logger
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
}

func NewOpenAIClient(log *logger.Logger) (AIClient, error) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("missing OPENAI_API_KEY")
	}

	baseURL := envutil.String("OPENAI_BASE_URL", "https://api.openai.com")
	model := envutil.String("OPENAI_MODEL", "gpt-4o")

	// Generation calls can legitimately run for minutes on long courses.
	timeout := envutil.Seconds("OPENAI_TIMEOUT_SECONDS", 180*time.Second)

	return &openAIClient{
		log:        log.With("service", "OpenAIClient"),
		baseURL:    baseURL,
		apiKey:     apiKey,
		model:      model,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

type chatCompletionRequest struct {
	Model    string `json:"model"`
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
	Temperature float64 `json:"temperature,omitempty"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
	Model string `json:"model"`
}

func (c *openAIClient) GenerateText(ctx context.Context, system string, user string) (string, *GenerationUsage, error) {
	req := chatCompletionRequest{
		Model: c.model,
		Messages: []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		}{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Temperature: 0.2,
	}

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(req); err != nil {
		return "", nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/chat/completions", &buf)
	if err != nil {
		return "", nil, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", nil, err
	}
	raw, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return "", nil, readErr
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", nil, &ProviderHTTPError{StatusCode: resp.StatusCode, Body: string(raw)}
	}

	var out chatCompletionResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", nil, fmt.Errorf("provider decode error: %w", err)
	}
	if len(out.Choices) == 0 {
		return "", nil, fmt.Errorf("provider returned no choices")
	}

	usage := &GenerationUsage{
		PromptTokens:     out.Usage.PromptTokens,
		CompletionTokens: out.Usage.CompletionTokens,
		Model:            out.Model,
	}
	if usage.Model == "" {
		usage.Model = c.model
	}
	return out.Choices[0].Message.Content, usage, nil
}
