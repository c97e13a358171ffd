package autopost

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autopost/autopost/config"
)

const chatCompletionsURL = "https://llm.example.test/v1/chat/completions"

func openAIConfig() *config.Configuration {
	return &config.Configuration{
		OpenAI: config.OpenAIConfig{APIKey: "sk-test", BaseURL: "https://llm.example.test/v1/"},
		Caption: config.CaptionConfig{
			SystemPrompt: "你是一位创意助理。",
			Temperature:  0.8,
			MaxTokens:    200,
		},
	}
}

func TestNewOpenAICaptioner_RequiresKey(t *testing.T) {
	assert.Nil(t, NewOpenAICaptioner(&config.Configuration{}, nil))
}

func TestOpenAICaptioner_Complete(t *testing.T) {
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder(http.MethodPost, chatCompletionsURL, func(req *http.Request) (*http.Response, error) {
		assert.Equal(t, "Bearer sk-test", req.Header.Get("Authorization"))

		body, err := io.ReadAll(req.Body)
		require.NoError(t, err)
		var payload map[string]interface{}
		require.NoError(t, json.Unmarshal(body, &payload))
		assert.Equal(t, "gpt-4o-mini", payload["model"])
		assert.Equal(t, 0.8, payload["temperature"])
		messages, ok := payload["messages"].([]interface{})
		require.True(t, ok)
		require.Len(t, messages, 2)
		assert.Equal(t, "system", messages[0].(map[string]interface{})["role"])
		assert.Equal(t, "prompt\n文件名：a.jpg", messages[1].(map[string]interface{})["content"])

		return httpmock.NewJsonResponse(http.StatusOK, map[string]interface{}{
			"id":      "chatcmpl-1",
			"object":  "chat.completion",
			"created": 1717200000,
			"model":   "gpt-4o-mini",
			"choices": []map[string]interface{}{{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]interface{}{"role": "assistant", "content": "今天也要开心 🌈"},
			}},
		})
	})

	c := NewOpenAICaptioner(openAIConfig(), &http.Client{Transport: transport})
	require.NotNil(t, c)

	text, err := c.Complete(context.Background(), "prompt\n文件名：a.jpg", "gpt-4o-mini")
	require.NoError(t, err)
	assert.Equal(t, "今天也要开心 🌈", text)
	assert.Equal(t, 1, transport.GetTotalCallCount())
}

func TestOpenAICaptioner_ErrorsAreRemoteCaptionErrors(t *testing.T) {
	tests := []struct {
		name      string
		responder httpmock.Responder
	}{
		{name: "quota", responder: httpmock.NewStringResponder(http.StatusTooManyRequests, `{"error":{"message":"quota exceeded","type":"insufficient_quota"}}`)},
		{name: "no choices", responder: httpmock.NewStringResponder(http.StatusOK, `{"id":"x","object":"chat.completion","choices":[]}`)},
		{name: "transport", responder: httpmock.NewErrorResponder(errors.New("connection reset"))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			transport := httpmock.NewMockTransport()
			transport.RegisterResponder(http.MethodPost, chatCompletionsURL, tt.responder)
			c := NewOpenAICaptioner(openAIConfig(), &http.Client{Transport: transport})

			_, err := c.Complete(context.Background(), "prompt", "gpt-4o-mini")
			var rce *RemoteCaptionError
			require.True(t, errors.As(err, &rce))
			assert.Equal(t, "gpt-4o-mini", rce.Model)
			assert.Equal(t, 1, transport.GetTotalCallCount())
		})
	}
}
