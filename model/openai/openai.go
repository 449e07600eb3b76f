// Package openai adapts OpenAI chat completions to the model interfaces.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"github.com/openai/openai-go/v2/shared"

	"github.com/clinicoai/clinico-go/model"
	"github.com/clinicoai/clinico-go/schema"
)

const defaultModel = "gpt-4o-mini"

// ChatModel implements model.ChatModel and model.StructuredModel against
// OpenAI's chat completions API.
//
// Features:
//   - tool/function calling with opaque call IDs round-tripped verbatim
//   - schema-constrained output via response_format json_schema
//   - fixed request timeout and a small retry budget for transient errors
//
// Example:
//
//	m := openai.New(os.Getenv("OPENAI_API_KEY"), "gpt-4o-mini")
//	out, err := m.Chat(ctx, messages, tools)
type ChatModel struct {
	client     openai.Client
	modelName  string
	timeout    time.Duration
	maxRetries int
	retryDelay time.Duration
}

// New creates an OpenAI-backed ChatModel. An empty modelName selects the
// default model.
func New(apiKey, modelName string) *ChatModel {
	if modelName == "" {
		modelName = defaultModel
	}
	return &ChatModel{
		client:     openai.NewClient(option.WithAPIKey(apiKey)),
		modelName:  modelName,
		timeout:    60 * time.Second,
		maxRetries: 2,
		retryDelay: time.Second,
	}
}

// Chat implements model.ChatModel.
func (m *ChatModel) Chat(ctx context.Context, messages []model.Message, tools []model.ToolSpec) (model.ChatOut, error) {
	params := openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(m.modelName),
		Messages: convertMessages(messages),
	}
	if len(tools) > 0 {
		params.Tools = convertTools(tools)
	}

	completion, err := m.complete(ctx, params)
	if err != nil {
		return model.ChatOut{}, err
	}
	if len(completion.Choices) == 0 {
		return model.ChatOut{}, errors.New("openai: empty completion response")
	}

	choice := completion.Choices[0].Message
	out := model.ChatOut{Text: choice.Content}
	for _, tc := range choice.ToolCalls {
		args := map[string]any{}
		if raw := tc.Function.Arguments; raw != "" {
			if err := json.Unmarshal([]byte(raw), &args); err != nil {
				return model.ChatOut{}, fmt.Errorf("openai: malformed tool call arguments: %w", err)
			}
		}
		out.ToolCalls = append(out.ToolCalls, model.ToolCall{
			ID:   tc.ID,
			Name: tc.Function.Name,
			Args: args,
		})
	}
	return out, nil
}

// GenerateStructured implements model.StructuredModel using json_schema
// response format built from the descriptor. The output is validated
// against the descriptor before it is returned.
func (m *ChatModel) GenerateStructured(ctx context.Context, prompt string, desc *schema.Descriptor) (map[string]string, error) {
	params := openai.ChatCompletionNewParams{
		Model: shared.ChatModel(m.modelName),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &shared.ResponseFormatJSONSchemaParam{
				JSONSchema: shared.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:   desc.DocType(),
					Strict: openai.Bool(true),
					Schema: desc.JSONSchema(),
				},
			},
		},
	}

	completion, err := m.complete(ctx, params)
	if err != nil {
		return nil, err
	}
	if len(completion.Choices) == 0 {
		return nil, errors.New("openai: empty completion response")
	}

	raw := completion.Choices[0].Message.Content
	out, err := decodeStructured(raw)
	if err != nil {
		return nil, err
	}
	if err := desc.Conform(out); err != nil {
		return nil, fmt.Errorf("openai: output does not match schema: %w", err)
	}
	return out, nil
}

// complete performs one API round trip with timeout and retry on transient
// errors. The retry budget lives here, at the capability layer; the workflow
// engine never retries.
func (m *ChatModel) complete(ctx context.Context, params openai.ChatCompletionNewParams) (*openai.ChatCompletion, error) {
	var lastErr error
	for attempt := 0; attempt <= m.maxRetries; attempt++ {
		reqCtx, cancel := context.WithTimeout(ctx, m.timeout)
		completion, err := m.client.Chat.Completions.New(reqCtx, params)
		cancel()
		if err == nil {
			return completion, nil
		}
		lastErr = err

		if !isTransient(err) || attempt >= m.maxRetries {
			break
		}
		select {
		case <-time.After(m.retryDelay * time.Duration(attempt+1)):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return nil, fmt.Errorf("openai: completion failed: %w", lastErr)
}

// decodeStructured parses a JSON object of string fields, tolerating a
// markdown code fence around the payload.
func decodeStructured(raw string) (map[string]string, error) {
	cleaned := strings.TrimSpace(raw)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)

	var out map[string]string
	if err := json.Unmarshal([]byte(cleaned), &out); err != nil {
		return nil, fmt.Errorf("openai: structured output is not a string-field object: %w", err)
	}
	return out, nil
}

func convertMessages(messages []model.Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case model.RoleSystem:
			out = append(out, openai.SystemMessage(msg.Content))
		case model.RoleUser:
			out = append(out, openai.UserMessage(msg.Content))
		case model.RoleTool:
			out = append(out, openai.ToolMessage(msg.Content, msg.ToolCallID))
		case model.RoleAssistant:
			if len(msg.ToolCalls) == 0 {
				out = append(out, openai.AssistantMessage(msg.Content))
				continue
			}
			assistant := openai.ChatCompletionAssistantMessageParam{}
			if msg.Content != "" {
				assistant.Content = openai.ChatCompletionAssistantMessageParamContentUnion{
					OfString: openai.String(msg.Content),
				}
			}
			for _, tc := range msg.ToolCalls {
				args, _ := json.Marshal(tc.Args)
				assistant.ToolCalls = append(assistant.ToolCalls, openai.ChatCompletionMessageToolCallUnionParam{
					OfFunction: &openai.ChatCompletionMessageFunctionToolCallParam{
						ID: tc.ID,
						Function: openai.ChatCompletionMessageFunctionToolCallFunctionParam{
							Name:      tc.Name,
							Arguments: string(args),
						},
					},
				})
			}
			out = append(out, openai.ChatCompletionMessageParamUnion{OfAssistant: &assistant})
		}
	}
	return out
}

func convertTools(tools []model.ToolSpec) []openai.ChatCompletionToolUnionParam {
	out := make([]openai.ChatCompletionToolUnionParam, 0, len(tools))
	for _, t := range tools {
		out = append(out, openai.ChatCompletionFunctionTool(shared.FunctionDefinitionParam{
			Name:        t.Name,
			Description: openai.String(t.Description),
			Parameters:  shared.FunctionParameters(t.Schema),
		}))
	}
	return out
}

func isTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	lower := strings.ToLower(err.Error())
	for _, pattern := range []string{"timeout", "connection", "temporar", "rate limit", "429", "500", "502", "503", "504"} {
		if strings.Contains(lower, pattern) {
			return true
		}
	}
	return false
}
