package graph

import (
	"context"
	"encoding/json"
	"fmt"
)

// ExecTypeName is the sentinel type name carried by every execution socket.
// Execution sockets never carry a value.
const ExecTypeName = "<exec>"

// SocketValue is a typed, serialized cell. It round-trips through a
// persistence boundary as (TypeName, Payload) and is only deserialized into
// a concrete Go value the first time a node reads it.
type SocketValue struct {
	TypeName string          `json:"type_name"`
	Payload  json.RawMessage `json:"payload"`
}

// NewSocketValue serializes v into a SocketValue tagged with typeName.
func NewSocketValue(typeName string, v any) (SocketValue, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return SocketValue{}, fmt.Errorf("serialize %s: %w", typeName, err)
	}
	return SocketValue{TypeName: typeName, Payload: payload}, nil
}

// Decode deserializes the payload into out. Called lazily by the runtime the
// first time a default value is read from storage.
func (v SocketValue) Decode(out any) error {
	if len(v.Payload) == 0 {
		return nil
	}
	return json.Unmarshal(v.Payload, out)
}

// DecodeAny deserializes the payload into a generic any, using the shape
// encoding/json produces for untyped JSON (map[string]any, []any, float64,
// string, bool, nil).
func (v SocketValue) DecodeAny() (any, error) {
	if len(v.Payload) == 0 {
		return nil, nil
	}
	var out any
	if err := json.Unmarshal(v.Payload, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// SocketData is an immutable socket on a node, as it appears in a persisted
// graph. Name is unique within (node, is_input); execution sockets always
// carry TypeName == ExecTypeName and a nil Default.
type SocketData struct {
	Name        string       `json:"name"`
	TypeName    string       `json:"type_name"`
	IsInput     bool         `json:"is_input"`
	IsExecution bool         `json:"is_execution"`
	Default     *SocketValue `json:"default,omitempty"`
	Hint        string       `json:"hint,omitempty"`
}

// NodeData is an immutable node as it appears in a persisted graph. Callable
// nodes carry control sockets (an Enter input, an Exit output, or more);
// ExecInit nodes have no Enter socket and are roots of control flow.
type NodeData struct {
	ID           string       `json:"id"`
	Name         string       `json:"name"`
	DefinitionID string       `json:"definition_id"`
	Callable     bool         `json:"callable"`
	ExecInit     bool         `json:"exec_init"`
	Inputs       []SocketData `json:"inputs"`
	Outputs      []SocketData `json:"outputs"`
}

// InputByName returns the named input socket and whether it exists.
func (n NodeData) InputByName(name string) (SocketData, bool) {
	for _, s := range n.Inputs {
		if s.Name == name {
			return s, true
		}
	}
	return SocketData{}, false
}

// OutputByName returns the named output socket and whether it exists.
func (n NodeData) OutputByName(name string) (SocketData, bool) {
	for _, s := range n.Outputs {
		if s.Name == name {
			return s, true
		}
	}
	return SocketData{}, false
}

// ConnectionData is an immutable connection between two node sockets.
// IsExecution must match the IsExecution flag of both endpoints. A data
// input socket may have at most one incoming data connection; execution
// inputs and all outputs may have many.
type ConnectionData struct {
	OutputNodeID   string `json:"output_node_id"`
	OutputSocket   string `json:"output_socket_name"`
	InputNodeID    string `json:"input_node_id"`
	InputSocket    string `json:"input_socket_name"`
	IsExecution    bool   `json:"is_execution"`
}

// GraphVariable declares a graph-scoped variable. It induces two synthetic
// node definitions at registration time: variable.get.<ID> and
// variable.set.<ID> (see variable.go).
type GraphVariable struct {
	ID           string       `json:"id"`
	Name         string       `json:"name"`
	TypeName     string       `json:"type_name"`
	DefaultValue *SocketValue `json:"default_value,omitempty"`
}

// GraphEvent declares a graph-scoped custom event. It induces two synthetic
// node definitions: event.listener.<ID> and event.trigger.<ID> (see
// variable.go and the event bus in graph/bus).
type GraphEvent struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// GraphData is the persisted shape of a graph: nodes, connections, variable
// and event declarations, and a schema version. Editor-only concerns
// (position, size, overlays) are opaque to the engine and are not modeled
// here.
type GraphData struct {
	SchemaVersion int              `json:"schema_version"`
	Nodes         []NodeData       `json:"nodes"`
	Connections   []ConnectionData `json:"connections"`
	Variables     []GraphVariable  `json:"variables"`
	Events        []GraphEvent     `json:"events"`
}

// StreamSocketInfo records the sockets a streaming producer declared via
// NodeBuilder.StreamOutput: the data socket an item is written to, the
// execution socket fired once per item, and an optional execution socket
// fired once the stream is fully drained.
type StreamSocketInfo struct {
	ItemDataSocket      string
	OnItemExecSocket    string
	CompletedExecSocket string
}

// StreamMode controls how NodeContext.Emit dispatches a stream item's
// downstream subgraph.
type StreamMode int

const (
	// StreamSequential awaits downstream completion before Emit returns.
	StreamSequential StreamMode = iota
	// StreamFireAndForget detaches the downstream dispatch into a tracked
	// background task and returns immediately.
	StreamFireAndForget
)

// NodeInstance is the class-based execution shape: a value constructed once
// per (run, node), given its services exactly once via OnCreated, then
// invoked on every dispatch via Execute.
type NodeInstance interface {
	// OnCreated is called exactly once per (run, node) before the first
	// Execute call.
	OnCreated(services ServiceProvider) error
	// Execute runs the node's behavior using the per-node façade.
	Execute(ctx context.Context, nc *NodeContext) error
}

// ServiceProvider is the abstract dependency-injection container the
// runtime exposes to node instances. It is intentionally minimal: the
// engine core never depends on what is registered behind it.
type ServiceProvider interface {
	Service(key string) (any, bool)
}

// InlineExecutor is the function-based execution shape for nodes built with
// NodeBuilder.OnExecute, bypassing instance construction entirely.
type InlineExecutor func(ctx context.Context, nc *NodeContext) error

// NodeDefinition is the registry's unit of currency: metadata, socket
// templates, and exactly one of an instance factory or an inline executor.
// Definitions are immutable after Build and are shared for the process
// lifetime once registered.
type NodeDefinition struct {
	ID          string
	Name        string
	Category    string
	Description string

	InputTemplates  []SocketData
	OutputTemplates []SocketData

	Callable bool
	ExecInit bool

	StreamSockets []StreamSocketInfo

	// NewInstance is set for class-based nodes; nil for inline nodes.
	NewInstance func() NodeInstance
	// InlineExecutor is set for inline nodes; nil for class-based nodes.
	InlineExecutor InlineExecutor

	// Factory stamps out a fresh NodeData from this definition's socket
	// templates, generating a new unique node id.
	Factory func() NodeData
}

// NewNodeData stamps out a NodeData from def's templates using id as the
// node's unique identifier. Used by Factory implementations and by the
// variable/event synthetic definitions.
func NewNodeData(id, name string, def *NodeDefinition) NodeData {
	return NodeData{
		ID:           id,
		Name:         name,
		DefinitionID: def.ID,
		Callable:     def.Callable,
		ExecInit:     def.ExecInit,
		Inputs:       append([]SocketData(nil), def.InputTemplates...),
		Outputs:      append([]SocketData(nil), def.OutputTemplates...),
	}
}
