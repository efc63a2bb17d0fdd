package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/flowgraph/engine/graph/bus"
)

// NodeContext is the façade a node's body sees: it never touches the
// registry, storage, or gate directly. One NodeContext is constructed per
// dispatch of execute_node_by_id and is not safe to retain past the
// Execute call that received it.
type NodeContext struct {
	rt       *ExecutionRuntime
	node     NodeData
	def      *NodeDefinition
	depth    int
	visiting map[string]bool
}

// NodeID returns the id of the node this context was dispatched for.
func (nc *NodeContext) NodeID() string { return nc.node.ID }

// DefinitionID returns the definition_id the node was resolved from.
func (nc *NodeContext) DefinitionID() string { return nc.def.ID }

// Services exposes the runtime's dependency-injection container.
func (nc *NodeContext) Services() ServiceProvider { return nc.rt.services }

// GetInput resolves socketName as untyped data: the upstream producer's
// value if the socket is connected (pulling and executing the upstream
// node first if it hasn't run yet), or the socket's decoded default value
// if unconnected, or nil if neither applies.
func (nc *NodeContext) GetInput(ctx context.Context, socketName string) (any, error) {
	raw, ok, err := nc.resolve(ctx, socketName)
	if err != nil {
		return nil, err
	}
	if ok {
		return raw, nil
	}
	return nc.defaultValue(socketName)
}

// GetInputAs resolves socketName and assigns it into out, which must be a
// non-nil pointer. Coercion is tried in order: exact assignable type,
// numeric conversion, then a JSON round-trip; a socket with no connection
// and no default leaves out untouched (the zero value).
func (nc *NodeContext) GetInputAs(ctx context.Context, socketName string, out any) error {
	raw, ok, err := nc.resolve(ctx, socketName)
	if err != nil {
		return err
	}
	if !ok {
		return nc.decodeDefaultInto(socketName, out)
	}
	return assignValue(raw, out)
}

// SetOutput stores value under this node's output socket. It is visible to
// downstream GetInput calls immediately, before Execute returns.
func (nc *NodeContext) SetOutput(name string, value any) {
	nc.rt.storage.Set(nc.node.ID, name, value)
}

// Trigger dispatches every node connected to the named execution output
// socket, in connection declaration order, waiting for each to finish
// before dispatching the next. The execution gate is consulted before each
// dispatch.
func (nc *NodeContext) Trigger(ctx context.Context, socketName string) error {
	conns := nc.rt.execOut[socketKey{nc.node.ID, socketName}]
	for _, c := range conns {
		if err := nc.rt.gate.Wait(ctx); err != nil {
			return newCancelled(c.InputNodeID, err)
		}
		if err := nc.rt.runNode(ctx, c.InputNodeID, nc.depth+1, nil); err != nil {
			return err
		}
	}
	return nil
}

// Emit writes one stream item to a socket declared via
// NodeBuilder.StreamOutput and dispatches its on-item execution socket.
// StreamSequential blocks until the downstream subgraph finishes;
// StreamFireAndForget detaches it into a tracked background task that
// CompleteStream joins before any completed-stream execution socket fires.
// The runtime does not join these tasks when the producer node completes;
// a producer that never calls CompleteStream leaves them unjoined.
func (nc *NodeContext) Emit(ctx context.Context, itemSocket string, item any, mode StreamMode) error {
	info, ok := nc.streamInfo(itemSocket)
	if !ok {
		return &EngineError{Kind: KindGraphInvariant, Message: "no stream declared for socket " + itemSocket, NodeID: nc.node.ID}
	}
	nc.SetOutput(info.ItemDataSocket, item)

	if mode == StreamSequential {
		return nc.Trigger(ctx, info.OnItemExecSocket)
	}
	nc.rt.spawnStreamTask(nc.node.ID, itemSocket, func() {
		_ = nc.Trigger(ctx, info.OnItemExecSocket)
	})
	return nil
}

// CompleteStream blocks until every fire-and-forget item dispatched via
// Emit for itemSocket has finished, then, if the stream declared a
// completed-exec socket, triggers it.
func (nc *NodeContext) CompleteStream(ctx context.Context, itemSocket string) error {
	nc.rt.joinStreamTasks(nc.node.ID, itemSocket)
	info, ok := nc.streamInfo(itemSocket)
	if !ok || info.CompletedExecSocket == "" {
		return nil
	}
	return nc.Trigger(ctx, info.CompletedExecSocket)
}

// GetVariable reads a graph variable's current value from run storage.
func (nc *NodeContext) GetVariable(id string) (any, bool) {
	return nc.rt.storage.GetVariable(id)
}

// SetVariable writes a graph variable's value into run storage.
func (nc *NodeContext) SetVariable(id string, value any) {
	nc.rt.storage.SetVariable(id, value)
}

// EmitFeedback publishes a feedback event attributable to this node.
func (nc *NodeContext) EmitFeedback(severity bus.Severity, tag, message string) {
	nc.rt.bus.Publish(bus.Event{
		RunID:    nc.rt.runID,
		NodeID:   nc.node.ID,
		NodeName: nc.node.Name,
		Kind:     bus.KindFeedback,
		Severity: severity,
		Tag:      tag,
		Message:  message,
	})
}

func (nc *NodeContext) streamInfo(itemSocket string) (StreamSocketInfo, bool) {
	for _, s := range nc.def.StreamSockets {
		if s.ItemDataSocket == itemSocket {
			return s, true
		}
	}
	return StreamSocketInfo{}, false
}

// resolve returns the current value of socketName, pulling and executing
// the upstream producer first if the socket is connected and the upstream
// node has not executed yet. ok is false when the socket has no incoming
// connection.
func (nc *NodeContext) resolve(ctx context.Context, socketName string) (any, bool, error) {
	conn, connected := nc.rt.dataIn[socketKey{nc.node.ID, socketName}]
	if !connected {
		return nil, false, nil
	}
	if err := nc.rt.runNode(ctx, conn.OutputNodeID, nc.depth+1, nc.visiting); err != nil {
		return nil, false, err
	}
	v, ok := nc.rt.storage.Get(conn.OutputNodeID, conn.OutputSocket)
	return v, ok, nil
}

func (nc *NodeContext) defaultValue(socketName string) (any, error) {
	sock, ok := nc.node.InputByName(socketName)
	if !ok || sock.Default == nil {
		return nil, nil
	}
	return sock.Default.DecodeAny()
}

func (nc *NodeContext) decodeDefaultInto(socketName string, out any) error {
	sock, ok := nc.node.InputByName(socketName)
	if !ok || sock.Default == nil {
		return nil
	}
	return sock.Default.Decode(out)
}

// assignValue coerces raw into out (a pointer): exact assignable type,
// then numeric conversion, then a JSON round-trip.
func assignValue(raw any, out any) error {
	rv := reflect.ValueOf(out)
	if rv.Kind() != reflect.Ptr || rv.IsNil() {
		return fmt.Errorf("GetInputAs: out must be a non-nil pointer")
	}
	elem := rv.Elem()

	if raw == nil {
		return nil
	}
	rawVal := reflect.ValueOf(raw)

	if rawVal.Type().AssignableTo(elem.Type()) {
		elem.Set(rawVal)
		return nil
	}
	if isNumericKind(rawVal.Kind()) && isNumericKind(elem.Kind()) && rawVal.Type().ConvertibleTo(elem.Type()) {
		elem.Set(rawVal.Convert(elem.Type()))
		return nil
	}

	data, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("coerce input: %w", err)
	}
	return json.Unmarshal(data, out)
}

func isNumericKind(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	default:
		return false
	}
}
