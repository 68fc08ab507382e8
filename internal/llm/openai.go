package llm

import (
	"context"
	"fmt"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/packages/param"
)

type OpenAIClient struct {
	client openai.Client
	model  string
}

func NewOpenAIClient(apiKey, model string) *OpenAIClient {
	var opts []option.RequestOption
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	client := openai.NewClient(opts...)
	if model == "" {
		model = string(openai.ChatModelGPT4o)
	}
	return &OpenAIClient{client: client, model: model}
}

// Model returns the chat model identifier used for token accounting.
func (c *OpenAIClient) Model() string {
	return c.model
}

func (c *OpenAIClient) Chat(ctx context.Context, messages []Message, tools []Tool) (*Response, error) {
	// Convert tools. Tool choice stays on the API default ("auto" whenever
	// tools are present), which is what the turn protocol wants.
	var oaiTools []openai.ChatCompletionToolUnionParam
	for _, t := range tools {
		oaiTools = append(oaiTools, openai.ChatCompletionFunctionTool(openai.FunctionDefinitionParam{
			Name:        t.Name,
			Description: openai.String(t.Description),
			Parameters:  openai.FunctionParameters(t.Parameters),
		}))
	}

	// Convert messages
	var oaiMsgs []openai.ChatCompletionMessageParamUnion
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			oaiMsgs = append(oaiMsgs, openai.SystemMessage(m.Content))
		case RoleUser:
			oaiMsgs = append(oaiMsgs, openai.UserMessage(m.Content))
		case RoleTool:
			oaiMsgs = append(oaiMsgs, openai.ToolMessage(m.Content, m.ToolCallID))
		case RoleAssistant:
			if len(m.ToolCalls) > 0 {
				toolCalls := make([]openai.ChatCompletionMessageToolCallUnionParam, len(m.ToolCalls))
				for j, tc := range m.ToolCalls {
					toolCalls[j] = openai.ChatCompletionMessageToolCallUnionParam{
						OfFunction: &openai.ChatCompletionMessageFunctionToolCallParam{
							ID: tc.ID,
							Function: openai.ChatCompletionMessageFunctionToolCallFunctionParam{
								Name:      tc.Name,
								Arguments: tc.Arguments,
							},
						},
					}
				}
				oaiMsgs = append(oaiMsgs, openai.ChatCompletionMessageParamUnion{
					OfAssistant: &openai.ChatCompletionAssistantMessageParam{
						Content: openai.ChatCompletionAssistantMessageParamContentUnion{
							OfString: param.NewOpt(m.Content),
						},
						ToolCalls: toolCalls,
					},
				})
			} else {
				oaiMsgs = append(oaiMsgs, openai.AssistantMessage(m.Content))
			}
		}
	}

	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(c.model),
		Messages: oaiMsgs,
		Tools:    oaiTools,
	})
	if err != nil {
		return nil, fmt.Errorf("openai chat: %w", err)
	}

	result := &Response{
		Usage: Usage{
			InputTokens:  int(resp.Usage.PromptTokens),
			OutputTokens: int(resp.Usage.CompletionTokens),
			TotalTokens:  int(resp.Usage.TotalTokens),
		},
	}

	if len(resp.Choices) == 0 {
		return result, nil
	}

	choice := resp.Choices[0]
	result.Content = choice.Message.Content

	for _, tc := range choice.Message.ToolCalls {
		ftc := tc.AsFunction()
		result.ToolCalls = append(result.ToolCalls, ToolCall{
			ID:        ftc.ID,
			Name:      ftc.Function.Name,
			Arguments: ftc.Function.Arguments,
		})
	}

	return result, nil
}
