package autopost

import (
	"context"
	"errors"
	"net/http"

	openai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/autopost/autopost/config"
)

// OpenAICaptioner generates captions through the chat completions API.
type OpenAICaptioner struct {
	client       openai.Client
	systemPrompt string
	temperature  float64
	maxTokens    int64
}

// NewOpenAICaptioner returns nil when no API key is configured.
// httpClient may be nil. The SDK's own retries are disabled so one attempt is one call.
func NewOpenAICaptioner(cnf *config.Configuration, httpClient *http.Client) *OpenAICaptioner {
	if cnf.OpenAI.APIKey == "" {
		return nil
	}
	opts := []option.RequestOption{
		option.WithAPIKey(cnf.OpenAI.APIKey),
		option.WithMaxRetries(0),
	}
	if cnf.OpenAI.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cnf.OpenAI.BaseURL))
	}
	if httpClient != nil {
		opts = append(opts, option.WithHTTPClient(httpClient))
	}
	return &OpenAICaptioner{
		client:       openai.NewClient(opts...),
		systemPrompt: cnf.Caption.SystemPrompt,
		temperature:  cnf.Caption.Temperature,
		maxTokens:    cnf.Caption.MaxTokens,
	}
}

func (o *OpenAICaptioner) Complete(ctx context.Context, prompt, model string) (string, error) {
	msgs := []openai.ChatCompletionMessageParamUnion{}
	if o.systemPrompt != "" {
		msgs = append(msgs, openai.SystemMessage(o.systemPrompt))
	}
	msgs = append(msgs, openai.UserMessage(prompt))

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(model),
		Messages: msgs,
	}
	if o.temperature > 0 {
		params.Temperature = openai.Float(o.temperature)
	}
	if o.maxTokens > 0 {
		params.MaxTokens = openai.Int(o.maxTokens)
	}

	resp, err := o.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", &RemoteCaptionError{Model: model, Err: err}
	}
	if len(resp.Choices) == 0 {
		return "", &RemoteCaptionError{Model: model, Err: errors.New("openai: empty choices")}
	}
	return resp.Choices[0].Message.Content, nil
}
