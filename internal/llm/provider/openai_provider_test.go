package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestOpenAIProvider_Generate_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "POST", r.Method)
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req openAIChatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.False(t, req.Stream)
		require.Len(t, req.Messages, 2)
		assert.Contains(t, req.Messages[0].Content, "Tone: formal")

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(openAIChatResponse{
			Choices: []struct {
				Message openAIMessage `json:"message"`
			}{{Message: openAIMessage{Role: "assistant", Content: "Dear sender, thank you."}}},
		})
	}))
	defer server.Close()

	p := NewOpenAIProvider(discardLogger(), server.URL, "test-key", server.Client())

	text, err := p.Generate(context.Background(), "draft a reply", Options{Tone: "formal"})
	require.NoError(t, err)
	assert.Equal(t, "Dear sender, thank you.", text)
}

func TestOpenAIProvider_Generate_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, `{"error":{"message":"rate limited"}}`)
	}))
	defer server.Close()

	p := NewOpenAIProvider(discardLogger(), server.URL, "test-key", server.Client())

	_, err := p.Generate(context.Background(), "draft a reply", Options{Tone: "concise"})
	assert.ErrorIs(t, err, ErrProvider)
}

func TestOpenAIProvider_GenerateStream_DeliversDeltasInOrder(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req openAIChatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.True(t, req.Stream)

		w.Header().Set("Content-Type", "text/event-stream")
		for _, delta := range []string{"Hi", " there", "."} {
			fmt.Fprintf(w, "data: {\"choices\":[{\"delta\":{\"content\":%q}}]}\n\n", delta)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer server.Close()

	p := NewOpenAIProvider(discardLogger(), server.URL, "test-key", server.Client())

	var got []string
	text, err := p.GenerateStream(context.Background(), "draft a reply", Options{Tone: "friendly"}, func(delta string) {
		got = append(got, delta)
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"Hi", " there", "."}, got)
	assert.Equal(t, "Hi there.", text)
}

func TestOpenAIProvider_GenerateStream_SkipsUnparseableChunks(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: this-is-not-json\n\n")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"ok\"}}]}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer server.Close()

	p := NewOpenAIProvider(discardLogger(), server.URL, "test-key", server.Client())

	text, err := p.GenerateStream(context.Background(), "prompt", Options{}, nil)
	require.NoError(t, err)
	assert.Equal(t, "ok", text)
}

func TestSingleShotStream_OneTokenEvent(t *testing.T) {
	mock := NewMockProvider([]string{"full result"}, nil)

	var events []string
	text, err := SingleShotStream(context.Background(), mock, "prompt", Options{}, func(delta string) {
		events = append(events, delta)
	})
	require.NoError(t, err)
	assert.Equal(t, "full result", text)
	assert.Equal(t, []string{"full result"}, events)
}

func TestMockProvider_StreamStopsOnCancel(t *testing.T) {
	mock := NewMockProvider([]string{"a", "b", "c"}, nil)
	ctx, cancel := context.WithCancel(context.Background())

	var events []string
	_, err := mock.GenerateStream(ctx, "prompt", Options{}, func(delta string) {
		events = append(events, delta)
		cancel()
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []string{"a"}, events)
}

func TestNew_SelectsByKey(t *testing.T) {
	logger := discardLogger()

	p, err := New("openai", "k", logger)
	require.NoError(t, err)
	assert.Equal(t, "openai", p.Name())

	p, err = New("gemini", "k", logger)
	require.NoError(t, err)
	assert.Equal(t, "gemini", p.Name())

	p, err = New("mock", "", logger)
	require.NoError(t, err)
	assert.Equal(t, "mock", p.Name())

	_, err = New("anthropic-carrier-pigeon", "k", logger)
	assert.Error(t, err)
}
