// Package vision analyzes camera frames with a multimodal chat model. Each
// call carries its own system prompt because the orchestrator uses the same
// backend for two very different jobs: answering about the user's view
// directly, and distilling the view into a web search query.
package vision

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/chris/lens/internal/llm"
)

type Client struct {
	client openai.Client
	model  string
}

func New(apiKey, model string) *Client {
	var opts []option.RequestOption
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	client := openai.NewClient(opts...)
	if model == "" {
		model = string(openai.ChatModelGPT4o)
	}
	return &Client{client: client, model: model}
}

// Result is one vision call's answer plus its token cost, attributed to the
// vision model so per-model accounting stays accurate.
type Result struct {
	Text  string
	Model string
	Usage llm.Usage
}

// Analyze sends the image and query to the vision model under the supplied
// system prompt and returns the model's text.
func (c *Client) Analyze(ctx context.Context, systemPrompt, query string, image []byte) (*Result, error) {
	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage([]openai.ChatCompletionContentPartUnionParam{
				openai.TextContentPart(query),
				openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
					URL: dataURL(image),
				}),
			}),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("vision analyze: %w", err)
	}

	result := &Result{
		Model: c.model,
		Usage: llm.Usage{
			InputTokens:  int(resp.Usage.PromptTokens),
			OutputTokens: int(resp.Usage.CompletionTokens),
			TotalTokens:  int(resp.Usage.TotalTokens),
		},
	}
	if len(resp.Choices) > 0 {
		result.Text = resp.Choices[0].Message.Content
	}
	return result, nil
}

// dataURL inlines the image as a base64 data URL, sniffing the content type
// from the bytes (glasses firmware sends JPEG but the web playground is not
// so disciplined).
func dataURL(image []byte) string {
	mime := http.DetectContentType(image)
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(image)
}
