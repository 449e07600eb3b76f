// Package anthropic adapts Anthropic's Messages API to the model interfaces.
package anthropic

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/clinicoai/clinico-go/model"
	"github.com/clinicoai/clinico-go/schema"
)

const (
	defaultModel     = "claude-3-5-sonnet-latest"
	defaultMaxTokens = 4096
)

// ChatModel implements model.ChatModel and model.StructuredModel against
// Anthropic's Messages API.
//
// Anthropic-specific handling:
//   - system prompts are extracted from the history into the separate
//     system parameter
//   - tool_use / tool_result content blocks map to ToolCalls and RoleTool
//     messages, IDs preserved verbatim
//   - schema-constrained output uses a forced tool whose input schema is the
//     descriptor, which is Anthropic's structured-output mechanism
type ChatModel struct {
	client    anthropic.Client
	modelName string
	maxTokens int64
}

// New creates an Anthropic-backed ChatModel. An empty modelName selects the
// default model.
func New(apiKey, modelName string) *ChatModel {
	if modelName == "" {
		modelName = defaultModel
	}
	return &ChatModel{
		client:    anthropic.NewClient(option.WithAPIKey(apiKey)),
		modelName: modelName,
		maxTokens: defaultMaxTokens,
	}
}

// Chat implements model.ChatModel.
func (m *ChatModel) Chat(ctx context.Context, messages []model.Message, tools []model.ToolSpec) (model.ChatOut, error) {
	system, conversation := splitSystem(messages)

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(m.modelName),
		MaxTokens: m.maxTokens,
		Messages:  conversation,
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	for _, t := range tools {
		params.Tools = append(params.Tools, toolParam(t))
	}

	message, err := m.client.Messages.New(ctx, params)
	if err != nil {
		return model.ChatOut{}, fmt.Errorf("anthropic: completion failed: %w", err)
	}

	var out model.ChatOut
	for _, block := range message.Content {
		switch v := block.AsAny().(type) {
		case anthropic.TextBlock:
			out.Text += v.Text
		case anthropic.ToolUseBlock:
			args := map[string]any{}
			if len(v.Input) > 0 {
				if err := json.Unmarshal(v.Input, &args); err != nil {
					return model.ChatOut{}, fmt.Errorf("anthropic: malformed tool input: %w", err)
				}
			}
			out.ToolCalls = append(out.ToolCalls, model.ToolCall{ID: v.ID, Name: v.Name, Args: args})
		}
	}
	return out, nil
}

// GenerateStructured implements model.StructuredModel by forcing a single
// tool whose input schema is the descriptor and reading the tool_use input
// back as the document.
func (m *ChatModel) GenerateStructured(ctx context.Context, prompt string, desc *schema.Descriptor) (map[string]string, error) {
	js := desc.JSONSchema()
	toolName := "record_" + desc.DocType()

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(m.modelName),
		MaxTokens: m.maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
		Tools: []anthropic.ToolUnionParam{{
			OfTool: &anthropic.ToolParam{
				Name:        toolName,
				Description: anthropic.String("Record the structured document fields."),
				InputSchema: anthropic.ToolInputSchemaParam{
					Properties: js["properties"],
					Required:   desc.Names(),
				},
			},
		}},
		ToolChoice: anthropic.ToolChoiceUnionParam{
			OfTool: &anthropic.ToolChoiceToolParam{Name: toolName},
		},
	}

	message, err := m.client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("anthropic: completion failed: %w", err)
	}

	for _, block := range message.Content {
		v, ok := block.AsAny().(anthropic.ToolUseBlock)
		if !ok {
			continue
		}
		var out map[string]string
		if err := json.Unmarshal(v.Input, &out); err != nil {
			return nil, fmt.Errorf("anthropic: structured output is not a string-field object: %w", err)
		}
		if err := desc.Conform(out); err != nil {
			return nil, fmt.Errorf("anthropic: output does not match schema: %w", err)
		}
		return out, nil
	}
	return nil, fmt.Errorf("anthropic: model returned no structured output")
}

// splitSystem extracts system messages into Anthropic's separate system
// parameter and converts the rest of the history.
func splitSystem(messages []model.Message) (string, []anthropic.MessageParam) {
	var system string
	var conversation []anthropic.MessageParam

	for _, msg := range messages {
		switch msg.Role {
		case model.RoleSystem:
			if system != "" {
				system += "\n\n"
			}
			system += msg.Content
		case model.RoleUser:
			conversation = append(conversation, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))
		case model.RoleTool:
			conversation = append(conversation, anthropic.NewUserMessage(
				anthropic.NewToolResultBlock(msg.ToolCallID, msg.Content, false),
			))
		case model.RoleAssistant:
			var blocks []anthropic.ContentBlockParamUnion
			if msg.Content != "" {
				blocks = append(blocks, anthropic.NewTextBlock(msg.Content))
			}
			for _, tc := range msg.ToolCalls {
				blocks = append(blocks, anthropic.NewToolUseBlock(tc.ID, tc.Args, tc.Name))
			}
			if len(blocks) > 0 {
				conversation = append(conversation, anthropic.NewAssistantMessage(blocks...))
			}
		}
	}
	return system, conversation
}

func toolParam(t model.ToolSpec) anthropic.ToolUnionParam {
	properties := any(map[string]any{})
	var required []string
	if t.Schema != nil {
		if p, ok := t.Schema["properties"]; ok {
			properties = p
		}
		if r, ok := t.Schema["required"].([]string); ok {
			required = r
		}
	}
	return anthropic.ToolUnionParam{
		OfTool: &anthropic.ToolParam{
			Name:        t.Name,
			Description: anthropic.String(t.Description),
			InputSchema: anthropic.ToolInputSchemaParam{
				Properties: properties,
				Required:   required,
			},
		},
	}
}
