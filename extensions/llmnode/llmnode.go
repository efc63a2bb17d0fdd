// Package llmnode adapts graph/model chat providers into callable graph
// nodes: each registered provider becomes one "llm.chat.<name>" definition
// that takes a prompt (and optional system prompt and tool specs) and
// returns the model's text and tool calls. It is an extension, not part of
// the core graph package, per the engine's domain-specific-node boundary.
package llmnode

import (
	"context"
	"encoding/json"

	"github.com/flowgraph/engine/graph"
	"github.com/flowgraph/engine/graph/model"
	"github.com/flowgraph/engine/graph/model/anthropic"
	"github.com/flowgraph/engine/graph/model/google"
	"github.com/flowgraph/engine/graph/model/openai"
)

// Module adapts one or more model.ChatModel providers into graph.NodeDefinitions.
// Providers are looked up by name under definition id "llm.chat.<name>".
type Module struct {
	providers map[string]model.ChatModel
}

// NewModule returns a Module with no providers configured.
func NewModule() *Module {
	return &Module{providers: make(map[string]model.ChatModel)}
}

// With registers chat under definition id "llm.chat.<name>".
func (m *Module) With(name string, chat model.ChatModel) *Module {
	m.providers[name] = chat
	return m
}

// WithAnthropic registers Anthropic's Claude API under "llm.chat.anthropic".
func (m *Module) WithAnthropic(apiKey, modelName string) *Module {
	return m.With("anthropic", anthropic.NewChatModel(apiKey, modelName))
}

// WithOpenAI registers OpenAI's chat completion API under "llm.chat.openai".
func (m *Module) WithOpenAI(apiKey, modelName string) *Module {
	return m.With("openai", openai.NewChatModel(apiKey, modelName))
}

// WithGoogle registers Google's Gemini API under "llm.chat.google".
func (m *Module) WithGoogle(apiKey, modelName string) *Module {
	return m.With("google", google.NewChatModel(apiKey, modelName))
}

// Definitions implements graph.DefinitionProvider: one callable node per
// registered provider.
func (m *Module) Definitions() []*graph.NodeDefinition {
	defs := make([]*graph.NodeDefinition, 0, len(m.providers))
	for name, chat := range m.providers {
		defs = append(defs, buildChatDefinition(name, chat))
	}
	return defs
}

func buildChatDefinition(name string, chat model.ChatModel) *graph.NodeDefinition {
	return graph.NewNodeBuilder("llm.chat."+name, "Chat ("+name+")").
		Category("LLM").
		Description("Sends a prompt to the " + name + " chat model and returns its response.").
		Callable().
		Input("System", "string", nil, "multiline").
		Input("Prompt", "string", nil, "multiline").
		Input("ToolsJSON", "string", nil, "").
		Output("Text", "string").
		Output("ToolCallsJSON", "string").
		OnExecute(func(ctx context.Context, nc *graph.NodeContext) error {
			var system, prompt, toolsJSON string
			if err := nc.GetInputAs(ctx, "System", &system); err != nil {
				return err
			}
			if err := nc.GetInputAs(ctx, "Prompt", &prompt); err != nil {
				return err
			}
			if err := nc.GetInputAs(ctx, "ToolsJSON", &toolsJSON); err != nil {
				return err
			}

			var tools []model.ToolSpec
			if toolsJSON != "" {
				if err := json.Unmarshal([]byte(toolsJSON), &tools); err != nil {
					return err
				}
			}

			var messages []model.Message
			if system != "" {
				messages = append(messages, model.Message{Role: model.RoleSystem, Content: system})
			}
			messages = append(messages, model.Message{Role: model.RoleUser, Content: prompt})

			out, err := chat.Chat(ctx, messages, tools)
			if err != nil {
				return err
			}

			nc.SetOutput("Text", out.Text)
			callsJSON, err := json.Marshal(out.ToolCalls)
			if err != nil {
				return err
			}
			nc.SetOutput("ToolCallsJSON", string(callsJSON))
			return nc.Trigger(ctx, "Exit")
		}).
		Build()
}
