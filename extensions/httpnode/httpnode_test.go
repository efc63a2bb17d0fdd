package httpnode

import (
	"context"
	"errors"
	"testing"

	"github.com/flowgraph/engine/graph"
	"github.com/flowgraph/engine/graph/tool"
)

type fakeTool struct {
	name string
	out  map[string]interface{}
	err  error

	lastInput map[string]interface{}
}

func (f *fakeTool) Name() string { return f.name }

func (f *fakeTool) Call(ctx context.Context, input map[string]interface{}) (map[string]interface{}, error) {
	f.lastInput = input
	return f.out, f.err
}

func TestNewModuleRegistersHTTPRequestByDefault(t *testing.T) {
	m := NewModule()
	defs := m.Definitions()
	if len(defs) != 1 || defs[0].ID != "tool.http_request" {
		t.Errorf("defs = %v, want single tool.http_request", defs)
	}
}

func TestModuleWithAddsAdditionalTools(t *testing.T) {
	m := NewModule().With(&fakeTool{name: "echo"})
	defs := m.Definitions()
	if len(defs) != 2 {
		t.Fatalf("len(defs) = %d, want 2", len(defs))
	}
	ids := map[string]bool{}
	for _, d := range defs {
		ids[d.ID] = true
	}
	if !ids["tool.http_request"] || !ids["tool.echo"] {
		t.Errorf("defs = %v, want tool.http_request and tool.echo", ids)
	}
}

func TestToolDefinitionShape(t *testing.T) {
	def := buildToolDefinition("echo", &fakeTool{name: "echo"})
	if !def.Callable {
		t.Error("tool definition should be callable")
	}
	if _, ok := findInput(def, "InputJSON"); !ok {
		t.Error("missing InputJSON input")
	}
	if _, ok := findOutput(def, "OutputJSON"); !ok {
		t.Error("missing OutputJSON output")
	}
	if _, ok := findOutput(def, "Error"); !ok {
		t.Error("missing Error output")
	}
}

func findInput(def *graph.NodeDefinition, name string) (graph.SocketData, bool) {
	for _, s := range def.InputTemplates {
		if s.Name == name {
			return s, true
		}
	}
	return graph.SocketData{}, false
}

func findOutput(def *graph.NodeDefinition, name string) (graph.SocketData, bool) {
	for _, s := range def.OutputTemplates {
		if s.Name == name {
			return s, true
		}
	}
	return graph.SocketData{}, false
}

type toolRunModule struct {
	t         tool.Tool
	gotOutput *string
	gotErr    *string
}

func (m toolRunModule) Definitions() []*graph.NodeDefinition {
	toolDef := buildToolDefinition("fake", m.t)

	start := graph.NewNodeBuilder("test.start", "Start").
		ExecutionInitiator().
		OnExecute(func(ctx context.Context, nc *graph.NodeContext) error {
			return nc.Trigger(ctx, "Exit")
		}).
		Build()

	sink := graph.NewNodeBuilder("test.sink", "Sink").
		Callable().
		Input("OutputJSON", "string", nil, "").
		Input("Error", "string", nil, "").
		OnExecute(func(ctx context.Context, nc *graph.NodeContext) error {
			var out, errStr string
			if err := nc.GetInputAs(ctx, "OutputJSON", &out); err != nil {
				return err
			}
			if err := nc.GetInputAs(ctx, "Error", &errStr); err != nil {
				return err
			}
			*m.gotOutput = out
			*m.gotErr = errStr
			return nc.Trigger(ctx, "Exit")
		}).
		Build()

	return []*graph.NodeDefinition{toolDef, start, sink}
}

func graphForTool() graph.GraphData {
	return graph.GraphData{
		Nodes: []graph.NodeData{
			{ID: "start", DefinitionID: "test.start", ExecInit: true,
				Outputs: []graph.SocketData{{Name: "Exit", TypeName: graph.ExecTypeName, IsExecution: true}}},
			{ID: "tool", DefinitionID: "tool.fake", Callable: true,
				Inputs: []graph.SocketData{
					{Name: "Enter", TypeName: graph.ExecTypeName, IsInput: true, IsExecution: true},
					{Name: "InputJSON", TypeName: "string", IsInput: true},
				},
				Outputs: []graph.SocketData{
					{Name: "Exit", TypeName: graph.ExecTypeName, IsExecution: true},
					{Name: "OutputJSON", TypeName: "string"},
					{Name: "Error", TypeName: "string"},
				}},
			{ID: "sink", DefinitionID: "test.sink", Callable: true,
				Inputs: []graph.SocketData{
					{Name: "Enter", TypeName: graph.ExecTypeName, IsInput: true, IsExecution: true},
					{Name: "OutputJSON", TypeName: "string", IsInput: true},
					{Name: "Error", TypeName: "string", IsInput: true},
				}},
		},
		Connections: []graph.ConnectionData{
			{OutputNodeID: "start", OutputSocket: "Exit", InputNodeID: "tool", InputSocket: "Enter", IsExecution: true},
			{OutputNodeID: "tool", OutputSocket: "Exit", InputNodeID: "sink", InputSocket: "Enter", IsExecution: true},
			{OutputNodeID: "tool", OutputSocket: "OutputJSON", InputNodeID: "sink", InputSocket: "OutputJSON"},
			{OutputNodeID: "tool", OutputSocket: "Error", InputNodeID: "sink", InputSocket: "Error"},
		},
	}
}

func TestToolNodeRunsThroughEngineAndWritesOutput(t *testing.T) {
	ft := &fakeTool{name: "fake", out: map[string]interface{}{"status_code": float64(200)}}
	var gotOutput, gotErr string
	registry := graph.NewRegistry()
	if _, err := registry.RegisterModule(toolRunModule{t: ft, gotOutput: &gotOutput, gotErr: &gotErr}); err != nil {
		t.Fatalf("RegisterModule() error = %v", err)
	}

	result, err := graph.Execute(context.Background(), graphForTool(), registry, nil, nil, graph.NewRunOptions(), "run-tool")
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if len(result.Errors) != 0 {
		t.Fatalf("result.Errors = %v, want none", result.Errors)
	}
	if gotOutput != `{"status_code":200}` {
		t.Errorf("gotOutput = %q, want status_code 200", gotOutput)
	}
	if gotErr != "" {
		t.Errorf("gotErr = %q, want empty", gotErr)
	}
}

func TestToolNodeCarriesToolErrorWithoutFailingDispatch(t *testing.T) {
	ft := &fakeTool{name: "fake", err: errors.New("boom")}
	var gotOutput, gotErr string
	registry := graph.NewRegistry()
	if _, err := registry.RegisterModule(toolRunModule{t: ft, gotOutput: &gotOutput, gotErr: &gotErr}); err != nil {
		t.Fatalf("RegisterModule() error = %v", err)
	}

	result, err := graph.Execute(context.Background(), graphForTool(), registry, nil, nil, graph.NewRunOptions(), "run-tool-err")
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if len(result.Errors) != 0 {
		t.Fatalf("result.Errors = %v, want none (tool errors are carried as data, not engine failures)", result.Errors)
	}
	if gotErr != "boom" {
		t.Errorf("gotErr = %q, want boom", gotErr)
	}
	if gotOutput != "" {
		t.Errorf("gotOutput = %q, want empty", gotOutput)
	}
}
