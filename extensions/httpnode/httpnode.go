// Package httpnode adapts graph/tool.Tool implementations into callable
// graph nodes. It ships one definition, "tool.http_request", backed by
// tool.HTTPTool, plus a Module so arbitrary tool.Tool values can be
// registered under "tool.<name>" the same way.
package httpnode

import (
	"context"
	"encoding/json"

	"github.com/flowgraph/engine/graph"
	"github.com/flowgraph/engine/graph/tool"
)

// Module adapts one or more tool.Tool implementations into graph.NodeDefinitions.
// Each registered tool becomes a callable node under id "tool.<name>".
type Module struct {
	tools map[string]tool.Tool
}

// NewModule returns a Module pre-populated with tool.NewHTTPTool under the
// id "tool.http_request". Call With to register additional tools.
func NewModule() *Module {
	m := &Module{tools: make(map[string]tool.Tool)}
	m.With(tool.NewHTTPTool())
	return m
}

// With registers t under "tool.<t.Name()>".
func (m *Module) With(t tool.Tool) *Module {
	m.tools[t.Name()] = t
	return m
}

// Definitions implements graph.DefinitionProvider: one callable node per
// registered tool.
func (m *Module) Definitions() []*graph.NodeDefinition {
	defs := make([]*graph.NodeDefinition, 0, len(m.tools))
	for name, t := range m.tools {
		defs = append(defs, buildToolDefinition(name, t))
	}
	return defs
}

func buildToolDefinition(name string, t tool.Tool) *graph.NodeDefinition {
	return graph.NewNodeBuilder("tool."+name, "Tool ("+name+")").
		Category("Tools").
		Description("Invokes the " + name + " tool and returns its structured output.").
		Callable().
		Input("InputJSON", "string", nil, "multiline").
		Output("OutputJSON", "string").
		Output("Error", "string").
		OnExecute(func(ctx context.Context, nc *graph.NodeContext) error {
			var inputJSON string
			if err := nc.GetInputAs(ctx, "InputJSON", &inputJSON); err != nil {
				return err
			}

			var input map[string]interface{}
			if inputJSON != "" {
				if err := json.Unmarshal([]byte(inputJSON), &input); err != nil {
					return err
				}
			}

			out, err := t.Call(ctx, input)
			if err != nil {
				nc.SetOutput("Error", err.Error())
				nc.SetOutput("OutputJSON", "")
				return nc.Trigger(ctx, "Exit")
			}

			outJSON, err := json.Marshal(out)
			if err != nil {
				return err
			}
			nc.SetOutput("OutputJSON", string(outJSON))
			nc.SetOutput("Error", "")
			return nc.Trigger(ctx, "Exit")
		}).
		Build()
}
