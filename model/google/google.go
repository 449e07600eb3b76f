// Package google adapts Google's Gemini API to the model interfaces.
package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/generative-ai-go/genai"
	"github.com/google/uuid"
	"google.golang.org/api/option"

	"github.com/clinicoai/clinico-go/model"
	"github.com/clinicoai/clinico-go/schema"
)

const defaultModel = "gemini-2.0-flash"

// ChatModel implements model.ChatModel and model.StructuredModel against
// Google's Gemini API.
//
// Gemini does not assign IDs to function calls, so the adapter mints an
// opaque UUID per call; the workflow's ID round-trip invariant holds locally
// and the FunctionResponse is correlated by tool name on the wire.
type ChatModel struct {
	client    *genai.Client
	modelName string
}

// New creates a Gemini-backed ChatModel. An empty modelName selects the
// default model. Close releases the underlying client.
func New(ctx context.Context, apiKey, modelName string) (*ChatModel, error) {
	if modelName == "" {
		modelName = defaultModel
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("google: client init failed: %w", err)
	}
	return &ChatModel{client: client, modelName: modelName}, nil
}

// Close releases the underlying API client.
func (m *ChatModel) Close() error { return m.client.Close() }

// Chat implements model.ChatModel.
func (m *ChatModel) Chat(ctx context.Context, messages []model.Message, tools []model.ToolSpec) (model.ChatOut, error) {
	gm := m.client.GenerativeModel(m.modelName)

	system, history, last := convertHistory(messages)
	if system != "" {
		gm.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(system)}}
	}
	if len(tools) > 0 {
		gm.Tools = []*genai.Tool{{FunctionDeclarations: convertTools(tools)}}
	}
	if len(last) == 0 {
		return model.ChatOut{}, errors.New("google: no message to send")
	}

	cs := gm.StartChat()
	cs.History = history

	resp, err := cs.SendMessage(ctx, last...)
	if err != nil {
		return model.ChatOut{}, fmt.Errorf("google: completion failed: %w", err)
	}
	return parseResponse(resp)
}

// GenerateStructured implements model.StructuredModel via Gemini's JSON
// response schema.
func (m *ChatModel) GenerateStructured(ctx context.Context, prompt string, desc *schema.Descriptor) (map[string]string, error) {
	gm := m.client.GenerativeModel(m.modelName)
	gm.ResponseMIMEType = "application/json"
	gm.ResponseSchema = descriptorSchema(desc)

	resp, err := gm.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return nil, fmt.Errorf("google: completion failed: %w", err)
	}

	out, parseErr := parseResponse(resp)
	if parseErr != nil {
		return nil, parseErr
	}

	var fields map[string]string
	if err := json.Unmarshal([]byte(out.Text), &fields); err != nil {
		return nil, fmt.Errorf("google: structured output is not a string-field object: %w", err)
	}
	if err := desc.Conform(fields); err != nil {
		return nil, fmt.Errorf("google: output does not match schema: %w", err)
	}
	return fields, nil
}

// convertHistory splits the message list into system text, chat history and
// the parts of the final message to send.
func convertHistory(messages []model.Message) (string, []*genai.Content, []genai.Part) {
	var system string
	var contents []*genai.Content

	for _, msg := range messages {
		switch msg.Role {
		case model.RoleSystem:
			if system != "" {
				system += "\n\n"
			}
			system += msg.Content
		case model.RoleUser:
			contents = append(contents, &genai.Content{Role: "user", Parts: []genai.Part{genai.Text(msg.Content)}})
		case model.RoleTool:
			contents = append(contents, &genai.Content{Role: "function", Parts: []genai.Part{
				genai.FunctionResponse{Name: msg.Name, Response: map[string]any{"content": msg.Content}},
			}})
		case model.RoleAssistant:
			var parts []genai.Part
			if msg.Content != "" {
				parts = append(parts, genai.Text(msg.Content))
			}
			for _, tc := range msg.ToolCalls {
				parts = append(parts, genai.FunctionCall{Name: tc.Name, Args: tc.Args})
			}
			if len(parts) > 0 {
				contents = append(contents, &genai.Content{Role: "model", Parts: parts})
			}
		}
	}

	if len(contents) == 0 {
		return system, nil, nil
	}
	lastContent := contents[len(contents)-1]
	return system, contents[:len(contents)-1], lastContent.Parts
}

func convertTools(tools []model.ToolSpec) []*genai.FunctionDeclaration {
	out := make([]*genai.FunctionDeclaration, 0, len(tools))
	for _, t := range tools {
		decl := &genai.FunctionDeclaration{Name: t.Name, Description: t.Description}
		if t.Schema != nil {
			decl.Parameters = jsonSchemaToGenai(t.Schema)
		}
		out = append(out, decl)
	}
	return out
}

// jsonSchemaToGenai converts the flat object schemas used by tool specs into
// the SDK's schema type. Only string properties are needed here.
func jsonSchemaToGenai(js map[string]any) *genai.Schema {
	out := &genai.Schema{Type: genai.TypeObject, Properties: map[string]*genai.Schema{}}
	if props, ok := js["properties"].(map[string]any); ok {
		for name, raw := range props {
			prop := &genai.Schema{Type: genai.TypeString}
			if pm, ok := raw.(map[string]any); ok {
				if desc, ok := pm["description"].(string); ok {
					prop.Description = desc
				}
			}
			out.Properties[name] = prop
		}
	}
	if required, ok := js["required"].([]string); ok {
		out.Required = required
	}
	return out
}

func descriptorSchema(desc *schema.Descriptor) *genai.Schema {
	out := &genai.Schema{
		Type:       genai.TypeObject,
		Properties: map[string]*genai.Schema{},
		Required:   desc.Names(),
	}
	for _, f := range desc.Fields() {
		out.Properties[f.Name] = &genai.Schema{Type: genai.TypeString, Description: f.Description}
	}
	return out
}

func parseResponse(resp *genai.GenerateContentResponse) (model.ChatOut, error) {
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return model.ChatOut{}, errors.New("google: empty completion response")
	}

	var out model.ChatOut
	for _, part := range resp.Candidates[0].Content.Parts {
		switch v := part.(type) {
		case genai.Text:
			out.Text += string(v)
		case genai.FunctionCall:
			out.ToolCalls = append(out.ToolCalls, model.ToolCall{
				ID:   "call_" + uuid.NewString(),
				Name: v.Name,
				Args: v.Args,
			})
		}
	}
	return out, nil
}
