package provider

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const (
	defaultOpenAIBaseURL = "https://api.openai.com"
	openAIModel          = "gpt-4o-mini"
)

// OpenAIProvider calls the OpenAI chat completions API, with native SSE
// streaming support.
type OpenAIProvider struct {
	logger     *slog.Logger
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

func NewOpenAIProvider(logger *slog.Logger, baseURL, apiKey string, httpClient *http.Client) *OpenAIProvider {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 120 * time.Second}
	}
	return &OpenAIProvider{
		logger:     logger.With("provider", "openai"),
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
	}
}

func (p *OpenAIProvider) Name() string { return "openai" }

type openAIChatRequest struct {
	Model    string          `json:"model"`
	Messages []openAIMessage `json:"messages"`
	Stream   bool            `json:"stream,omitempty"`
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIChatResponse struct {
	Choices []struct {
		Message openAIMessage `json:"message"`
	} `json:"choices"`
}

type openAIStreamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

func (p *OpenAIProvider) Generate(ctx context.Context, prompt string, opts Options) (string, error) {
	resp, err := p.post(ctx, openAIChatRequest{
		Model:    openAIModel,
		Messages: p.messages(prompt, opts),
	})
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var decoded openAIChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("%w: failed to decode openai response: %v", ErrProvider, err)
	}
	if len(decoded.Choices) == 0 {
		return "", fmt.Errorf("%w: openai response contained no choices", ErrProvider)
	}
	return decoded.Choices[0].Message.Content, nil
}

func (p *OpenAIProvider) GenerateStream(ctx context.Context, prompt string, opts Options, onToken func(string)) (string, error) {
	resp, err := p.post(ctx, openAIChatRequest{
		Model:    openAIModel,
		Messages: p.messages(prompt, opts),
		Stream:   true,
	})
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var full strings.Builder
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "[DONE]" {
			break
		}

		var chunk openAIStreamChunk
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			p.logger.WarnContext(ctx, "Skipping unparseable stream chunk", "error", err)
			continue
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		delta := chunk.Choices[0].Delta.Content
		if delta == "" {
			continue
		}
		full.WriteString(delta)

		// Stop surfacing tokens once the consumer is gone; the upstream
		// request is torn down with the context.
		if ctx.Err() != nil {
			return full.String(), ctx.Err()
		}
		if onToken != nil {
			onToken(delta)
		}
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("%w: openai stream read failed: %v", ErrProvider, err)
	}
	return full.String(), nil
}

func (p *OpenAIProvider) messages(prompt string, opts Options) []openAIMessage {
	return []openAIMessage{
		{Role: "system", Content: "You are an email drafting assistant. Tone: " + opts.Tone},
		{Role: "user", Content: prompt},
	}
}

func (p *OpenAIProvider) post(ctx context.Context, body openAIChatRequest) (*http.Response, error) {
	encoded, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to encode request: %v", ErrProvider, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/chat/completions", bytes.NewReader(encoded))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProvider, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: openai request failed: %v", ErrProvider, err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		p.logger.ErrorContext(ctx, "OpenAI API returned non-200", "status", resp.StatusCode, "body", string(snippet))
		return nil, fmt.Errorf("%w: openai returned status %d", ErrProvider, resp.StatusCode)
	}
	return resp, nil
}
