package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"docchat/internal/port"
)

// HTTPModel talks to an OpenAI-compatible completions endpoint, such as the
// one Ollama and llama.cpp servers expose.
type HTTPModel struct {
	baseURL string
	name    string
	apiKey  string
	client  *http.Client
}

var _ port.Model = (*HTTPModel)(nil)

func NewHTTPModel(baseURL, name, apiKey string) *HTTPModel {
	return &HTTPModel{
		baseURL: strings.TrimRight(baseURL, "/"),
		name:    name,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 5 * time.Minute},
	}
}

func (m *HTTPModel) Name() string { return m.name }

type completionRequest struct {
	Model       string   `json:"model"`
	Prompt      string   `json:"prompt"`
	MaxTokens   int      `json:"max_tokens"`
	Temperature float64  `json:"temperature"`
	TopP        float64  `json:"top_p"`
	Stop        []string `json:"stop,omitempty"`
	Stream      bool     `json:"stream"`
}

type completionResponse struct {
	Choices []struct {
		Text         string `json:"text"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Complete runs a single blocking completion.
func (m *HTTPModel) Complete(ctx context.Context, prompt string, params port.SamplingParams) (string, error) {
	resp, err := m.post(ctx, prompt, params, false)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var parsed completionResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decode completion response: %w", err)
	}
	if parsed.Error != nil {
		return "", fmt.Errorf("completion failed: %s", parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("completion returned no choices")
	}
	return parsed.Choices[0].Text, nil
}

// Stream runs a streaming completion, invoking emit for every text delta in
// order. Emit returning an error aborts the stream and propagates.
func (m *HTTPModel) Stream(ctx context.Context, prompt string, params port.SamplingParams, emit func(string) error) error {
	resp, err := m.post(ctx, prompt, params, true)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "" || payload == "[DONE]" {
			if payload == "[DONE]" {
				return nil
			}
			continue
		}

		var chunk completionResponse
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			return fmt.Errorf("decode stream chunk: %w", err)
		}
		if chunk.Error != nil {
			return fmt.Errorf("stream failed: %s", chunk.Error.Message)
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		if text := chunk.Choices[0].Text; text != "" {
			if err := emit(text); err != nil {
				return err
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read stream: %w", err)
	}
	return nil
}

func (m *HTTPModel) post(ctx context.Context, prompt string, params port.SamplingParams, stream bool) (*http.Response, error) {
	body, err := json.Marshal(completionRequest{
		Model:       m.name,
		Prompt:      prompt,
		MaxTokens:   params.MaxTokens,
		Temperature: params.Temperature,
		TopP:        params.TopP,
		Stop:        params.Stop,
		Stream:      stream,
	})
	if err != nil {
		return nil, fmt.Errorf("encode completion request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+"/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create completion request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if m.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+m.apiKey)
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call completion endpoint: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, fmt.Errorf("completion endpoint returned %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}
	return resp, nil
}

// HTTPLoader probes the completions server before handing out the model, so
// an unreachable server puts the client into fallback mode instead of
// failing every request.
type HTTPLoader struct {
	baseURL string
	name    string
	apiKey  string
	timeout time.Duration
}

var _ port.ModelLoader = (*HTTPLoader)(nil)

func NewHTTPLoader(baseURL, name, apiKey string, timeout time.Duration) *HTTPLoader {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPLoader{
		baseURL: strings.TrimRight(baseURL, "/"),
		name:    name,
		apiKey:  apiKey,
		timeout: timeout,
	}
}

func (l *HTTPLoader) Load(ctx context.Context) (port.Model, error) {
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.baseURL+"/models", nil)
	if err != nil {
		return nil, fmt.Errorf("create probe request: %w", err)
	}
	if l.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+l.apiKey)
	}

	client := &http.Client{Timeout: l.timeout}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("probe model server: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("model server probe returned %d", resp.StatusCode)
	}
	return NewHTTPModel(l.baseURL, l.name, l.apiKey), nil
}
