package graph

// NodeBuilder provides fluent construction of a NodeDefinition: metadata,
// an ordered socket list, and exactly one of an instance factory or an
// inline executor. Adding a duplicate (name, isInput) socket is a no-op, so
// a Configure method can be called defensively without guarding itself.
type NodeBuilder struct {
	id          string
	name        string
	category    string
	description string

	inputs  []SocketData
	outputs []SocketData
	seen    map[socketKeyName]struct{}

	callable bool
	execInit bool

	streams []StreamSocketInfo

	newInstance func() NodeInstance
	inline      InlineExecutor
}

type socketKeyName struct {
	name    string
	isInput bool
}

// NewNodeBuilder starts building a definition with the given registry id
// and display name.
func NewNodeBuilder(id, name string) *NodeBuilder {
	return &NodeBuilder{
		id:   id,
		name: name,
		seen: make(map[socketKeyName]struct{}),
	}
}

// Category sets the UI grouping category.
func (b *NodeBuilder) Category(category string) *NodeBuilder {
	b.category = category
	return b
}

// Description sets the human-readable description.
func (b *NodeBuilder) Description(description string) *NodeBuilder {
	b.description = description
	return b
}

// Callable marks the node as having control-flow sockets: it adds an Enter
// execution input and an Exit execution output.
func (b *NodeBuilder) Callable() *NodeBuilder {
	b.callable = true
	b.addSocket(SocketData{Name: "Enter", TypeName: ExecTypeName, IsInput: true, IsExecution: true})
	b.addSocket(SocketData{Name: "Exit", TypeName: ExecTypeName, IsInput: false, IsExecution: true})
	return b
}

// ExecutionInitiator marks the node as a root of control flow: it has no
// Enter socket, only an Exit.
func (b *NodeBuilder) ExecutionInitiator() *NodeBuilder {
	b.execInit = true
	b.addSocket(SocketData{Name: "Exit", TypeName: ExecTypeName, IsInput: false, IsExecution: true})
	return b
}

// ExecutionInput adds a named execution input socket, for nodes with more
// than one entry point (e.g. a loop body's re-entry).
func (b *NodeBuilder) ExecutionInput(name string) *NodeBuilder {
	b.addSocket(SocketData{Name: name, TypeName: ExecTypeName, IsInput: true, IsExecution: true})
	return b
}

// ExecutionOutput adds a named execution output socket, for nodes with
// more than one exit path (e.g. a branch's True/False).
func (b *NodeBuilder) ExecutionOutput(name string) *NodeBuilder {
	b.addSocket(SocketData{Name: name, TypeName: ExecTypeName, IsInput: false, IsExecution: true})
	return b
}

// Input adds a data input socket. def may be nil (no default; the node's
// typed accessor returns the zero value if unconnected). hint is an
// optional editor hint (e.g. "multiline", "filepath") opaque to the engine.
func (b *NodeBuilder) Input(name, typeName string, def *SocketValue, hint string) *NodeBuilder {
	b.addSocket(SocketData{Name: name, TypeName: typeName, IsInput: true, Default: def, Hint: hint})
	return b
}

// Output adds a data output socket.
func (b *NodeBuilder) Output(name, typeName string) *NodeBuilder {
	b.addSocket(SocketData{Name: name, TypeName: typeName, IsInput: false})
	return b
}

// StreamOutput adds a streaming data output: a data socket the producer
// writes one item to at a time (item), an execution socket fired once per
// item (onItem), and an optional execution socket fired once the stream is
// fully drained (completed, pass "" to omit). The triple is recorded as a
// StreamSocketInfo so the runtime can join fire-and-forget emissions.
func (b *NodeBuilder) StreamOutput(itemTypeName, item, onItem, completed string) *NodeBuilder {
	b.Output(item, itemTypeName)
	b.ExecutionOutput(onItem)
	info := StreamSocketInfo{ItemDataSocket: item, OnItemExecSocket: onItem}
	if completed != "" {
		b.ExecutionOutput(completed)
		info.CompletedExecSocket = completed
	}
	b.streams = append(b.streams, info)
	return b
}

// OnExecute registers an inline executor, producing a function-based node
// with no backing NodeInstance.
func (b *NodeBuilder) OnExecute(fn InlineExecutor) *NodeBuilder {
	b.inline = fn
	return b
}

// NewInstance registers a class-based node's instance factory.
func (b *NodeBuilder) NewInstance(factory func() NodeInstance) *NodeBuilder {
	b.newInstance = factory
	return b
}

func (b *NodeBuilder) addSocket(s SocketData) {
	key := socketKeyName{name: s.Name, isInput: s.IsInput}
	if _, ok := b.seen[key]; ok {
		return
	}
	b.seen[key] = struct{}{}
	if s.IsInput {
		b.inputs = append(b.inputs, s)
	} else {
		b.outputs = append(b.outputs, s)
	}
}

// Build finalizes the definition. The returned definition's Factory stamps
// out a fresh NodeData with a newly generated unique id on each call.
func (b *NodeBuilder) Build() *NodeDefinition {
	def := &NodeDefinition{
		ID:              b.id,
		Name:            b.name,
		Category:        b.category,
		Description:     b.description,
		InputTemplates:  append([]SocketData(nil), b.inputs...),
		OutputTemplates: append([]SocketData(nil), b.outputs...),
		Callable:        b.callable,
		ExecInit:        b.execInit,
		StreamSockets:   append([]StreamSocketInfo(nil), b.streams...),
		NewInstance:     b.newInstance,
		InlineExecutor:  b.inline,
	}
	def.Factory = func() NodeData {
		return NewNodeData(newNodeID(), b.name, def)
	}
	return def
}
