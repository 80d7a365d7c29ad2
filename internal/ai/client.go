package ai

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

	"github.com/sony/gobreaker"
)

// AIClient клиент OpenAI-совместимого chat completions API (Groq)
type AIClient struct {
	apiKey  string
	baseURL string
	model   string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
}

// ChatRequest тело запроса chat completions
type ChatRequest struct {
	Model          string          `json:"model"`
	Messages       []Message       `json:"messages"`
	Temperature    float64         `json:"temperature"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	ResponseFormat *ResponseFormat `json:"response_format,omitempty"`
}

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ResponseFormat режим ответа, json_object требует валидный JSON
type ResponseFormat struct {
	Type string `json:"type"`
}

type ChatResponse struct {
	Choices []struct {
		Message Message `json:"message"`
	} `json:"choices"`
}

// StatusError ответ API с кодом отличным от 200
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("AI API error %d: %s", e.Code, e.Body)
}

// IsRateLimited ошибка означает исчерпание квоты (429)
func IsRateLimited(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == http.StatusTooManyRequests
}

// NewAIClient создает клиента; после 3 подряд сетевых ошибок запросы не отправляются timeout*3
func NewAIClient(apiKey, baseURL, model string, timeout time.Duration) *AIClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	st := gobreaker.Settings{Name: "ai"}
	st.ReadyToTrip = func(counts gobreaker.Counts) bool { return counts.ConsecutiveFailures >= 3 }
	st.Timeout = 3 * timeout
	// 429 означает живой сервис, такие ответы не размыкают цепь
	st.IsSuccessful = func(err error) bool { return err == nil || IsRateLimited(err) }

	return &AIClient{
		apiKey:  apiKey,
		baseURL: baseURL,
		model:   model,
		client:  &http.Client{Timeout: timeout},
		breaker: gobreaker.NewCircuitBreaker(st),
	}
}

// endpoint строит адрес без двойного /v1
func (a *AIClient) endpoint() string {
	endpoint := strings.TrimRight(a.baseURL, "/")
	if !strings.HasSuffix(endpoint, "/v1") {
		endpoint += "/v1"
	}
	return endpoint + "/chat/completions"
}

// Chat отправляет сообщения и возвращает текст первого ответа
func (a *AIClient) Chat(ctx context.Context, req ChatRequest) (string, error) {
	if req.Model == "" {
		req.Model = a.model
	}

	out, err := a.breaker.Execute(func() (interface{}, error) {
		return a.do(ctx, req)
	})
	if err != nil {
		return "", err
	}
	return out.(string), nil
}

func (a *AIClient) do(ctx context.Context, body ChatRequest) (string, error) {
	jsonData, err := json.Marshal(body)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint(), bytes.NewBuffer(jsonData))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", a.apiKey))

	resp, err := a.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}

	if resp.StatusCode != http.StatusOK {
		text := string(data)
		if len(text) > 200 {
			text = text[:200]
		}
		return "", &StatusError{Code: resp.StatusCode, Body: text}
	}

	var chatResp ChatResponse
	if err := json.Unmarshal(data, &chatResp); err != nil {
		return "", err
	}
	if len(chatResp.Choices) == 0 {
		return "", fmt.Errorf("no response from AI")
	}

	return chatResp.Choices[0].Message.Content, nil
}
