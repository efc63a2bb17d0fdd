package graph

import (
	"context"
	"sync"
	"time"

	"github.com/flowgraph/engine/graph/bus"
)

// ExecutionRuntime is the per-run orchestrator: it resolves every node's
// definition once at construction, builds the adjacency maps dispatch
// walks at run time, and owns the storage, gate, and event bus for the
// run's lifetime. A new ExecutionRuntime is constructed for every run;
// nothing here is reused across runs.
type ExecutionRuntime struct {
	runID    string
	graph    GraphData
	opts     RunOptions
	services ServiceProvider

	storage *RuntimeStorage
	gate    *Gate
	bus     *bus.Bus

	nodeByID    map[string]NodeData
	definitions map[string]*NodeDefinition      // nodeID -> resolved definition
	execOut     map[socketKey][]ConnectionData  // (nodeID, execOutSocket) -> ordered downstream connections
	dataIn      map[socketKey]ConnectionData    // (nodeID, dataInSocket) -> single upstream connection

	instMu    sync.Mutex
	instances map[string]NodeInstance // nodeID -> instantiated class-based instance

	unsubs []func() // event-listener subscriptions to tear down at run end

	streamMu sync.Mutex
	streams  map[socketKey]*sync.WaitGroup // (nodeID, itemSocket) -> in-flight fire-and-forget tasks
}

// NewExecutionRuntime resolves every node against registry (falling
// through to the synthetic variable/event definitions graph declares),
// builds the dispatch maps, and subscribes every event.listener node to
// its graph event. The returned runtime has not executed anything yet;
// call Execute (graph/service.go) to run it.
func NewExecutionRuntime(graphData GraphData, registry *Registry, eventBus *bus.Bus, services ServiceProvider, opts RunOptions, runID string) (*ExecutionRuntime, error) {
	rt := &ExecutionRuntime{
		runID:       runID,
		graph:       graphData,
		opts:        opts,
		services:    services,
		storage:     NewRuntimeStorage(),
		gate:        NewGate(),
		bus:         eventBus,
		nodeByID:    make(map[string]NodeData, len(graphData.Nodes)),
		definitions: make(map[string]*NodeDefinition, len(graphData.Nodes)),
		execOut:     make(map[socketKey][]ConnectionData),
		dataIn:      make(map[socketKey]ConnectionData),
		instances:   make(map[string]NodeInstance),
		streams:     make(map[socketKey]*sync.WaitGroup),
	}
	rt.gate.metrics = opts.Metrics

	synth := newSynthDefinitions(graphData)

	for _, n := range graphData.Nodes {
		rt.nodeByID[n.ID] = n

		def, ok := registry.ResolveByID(n.DefinitionID)
		if !ok {
			def, ok = synth[n.DefinitionID]
		}
		if !ok {
			var warn bool
			def, warn = registry.ResolveByName(n.DefinitionID)
			if warn && rt.bus != nil {
				rt.bus.Publish(bus.Event{
					RunID: runID, NodeID: n.ID, Kind: bus.KindFeedback,
					Severity: bus.SeverityWarning,
					Message:  "multiple definitions share name " + n.DefinitionID + "; resolved to the first registered",
				})
			}
		}
		if def == nil {
			return nil, newDefinitionMissing(n.ID, n.DefinitionID)
		}
		rt.definitions[n.ID] = def
	}

	for _, c := range graphData.Connections {
		if c.IsExecution {
			key := socketKey{c.OutputNodeID, c.OutputSocket}
			rt.execOut[key] = append(rt.execOut[key], c)
		} else {
			rt.dataIn[socketKey{c.InputNodeID, c.InputSocket}] = c
		}
	}

	for _, v := range graphData.Variables {
		if val, ok := opts.InitialVariables[v.Name]; ok {
			rt.storage.SetVariable(v.ID, val)
		}
	}

	for _, n := range graphData.Nodes {
		if eventID, ok := listenerEventID(n.DefinitionID); ok && rt.bus != nil {
			nodeID := n.ID
			unsub := rt.bus.Subscribe(eventID, func(ctx context.Context) {
				rt.storage.PushGeneration()
				defer rt.storage.PopGeneration()
				_ = rt.runNode(ctx, nodeID, 0, nil)
			})
			rt.unsubs = append(rt.unsubs, unsub)
		}
	}

	return rt, nil
}

// Close tears down event-listener subscriptions and disposes every
// instantiated class-based node instance whose type implements Dispose()
// error.
func (rt *ExecutionRuntime) Close() {
	for _, unsub := range rt.unsubs {
		unsub()
	}
	rt.instMu.Lock()
	defer rt.instMu.Unlock()
	for _, inst := range rt.instances {
		if d, ok := inst.(interface{ Dispose() error }); ok {
			_ = d.Dispose()
		}
	}
}

// runNode dispatches one node: data-cycle check, call-depth guard,
// cancellation check, node lookup, idempotency check, NodeStarted,
// definition/instance resolution and invocation, metrics, then
// NodeCompleted or NodeFailed. The idempotency check marks a non-callable
// node executed atomically before it is invoked, so a node that fails stays
// marked for the rest of its generation.
//
// visiting tracks nodes currently in progress along the lazy data-pull
// chain that led to this call; it is nil for a fresh dispatch (an
// execution-triggered node, an initiator, or an event listener), and
// shared down the chain of GetInput-driven pulls so a data cycle the
// validator should have already rejected is still caught here rather than
// recursing forever.
func (rt *ExecutionRuntime) runNode(ctx context.Context, nodeID string, depth int, visiting map[string]bool) error {
	if visiting == nil {
		visiting = make(map[string]bool)
	}
	if visiting[nodeID] {
		return newDataCycle(append(keysOf(visiting), nodeID))
	}
	if depth > rt.opts.MaxCallDepth {
		rt.opts.Metrics.depthGuardTripped(nodeID)
		return newExecDepthExceeded(nodeID, rt.opts.MaxCallDepth)
	}
	if ctx.Err() != nil {
		return newCancelled(nodeID, ctx.Err())
	}

	nd, ok := rt.nodeByID[nodeID]
	if !ok {
		return newNodeNotFound(nodeID)
	}
	// Idempotency only caps non-callable nodes (spec's "executes at most
	// once per generation"); callable nodes are re-entrant by design and
	// must re-run on every trigger (e.g. a loop body's Print on each
	// iteration).
	if !nd.Callable && !rt.storage.MarkExecuted(nodeID) {
		return nil
	}
	visiting[nodeID] = true
	defer delete(visiting, nodeID)

	def := rt.definitions[nodeID]

	rt.opts.Metrics.nodeStarted()
	if rt.bus != nil {
		rt.bus.Publish(bus.Event{RunID: rt.runID, NodeID: nodeID, NodeName: nd.Name, Kind: bus.KindNodeStarted})
	}
	start := time.Now()

	nc := &NodeContext{rt: rt, node: nd, def: def, depth: depth, visiting: visiting}
	execErr := rt.dispatch(ctx, nc, def)

	elapsedMS := float64(time.Since(start)) / float64(time.Millisecond)
	rt.opts.Metrics.nodeFinished(nodeID, elapsedMS, execErr == nil)

	if execErr != nil {
		if rt.bus != nil {
			var kind ErrorKind
			if ee, ok := execErr.(*EngineError); ok {
				kind = ee.Kind
			} else {
				kind = KindUserFault
			}
			rt.bus.Publish(bus.Event{
				RunID: rt.runID, NodeID: nodeID, NodeName: nd.Name, Kind: bus.KindNodeFailed,
				Message: execErr.Error(), ErrorKind: string(kind),
			})
		}
		return execErr
	}

	if rt.bus != nil {
		rt.bus.Publish(bus.Event{RunID: rt.runID, NodeID: nodeID, NodeName: nd.Name, Kind: bus.KindNodeCompleted})
	}
	return nil
}

func (rt *ExecutionRuntime) dispatch(ctx context.Context, nc *NodeContext, def *NodeDefinition) error {
	if def.InlineExecutor != nil {
		if err := def.InlineExecutor(ctx, nc); err != nil {
			return wrapNodeError(nc.node.ID, err)
		}
		return nil
	}
	if def.NewInstance == nil {
		return newNoImplementation(nc.node.ID, def.ID)
	}
	inst, err := rt.instanceFor(nc.node.ID, def)
	if err != nil {
		return err
	}
	if err := inst.Execute(ctx, nc); err != nil {
		return wrapNodeError(nc.node.ID, err)
	}
	return nil
}

// instanceFor returns the cached instance for nodeID, constructing and
// calling OnCreated exactly once the first time it is needed.
func (rt *ExecutionRuntime) instanceFor(nodeID string, def *NodeDefinition) (NodeInstance, error) {
	rt.instMu.Lock()
	defer rt.instMu.Unlock()
	if inst, ok := rt.instances[nodeID]; ok {
		return inst, nil
	}
	inst := def.NewInstance()
	if err := inst.OnCreated(rt.services); err != nil {
		return nil, newUserFault(nodeID, err)
	}
	rt.instances[nodeID] = inst
	return inst, nil
}

func keysOf(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

func wrapNodeError(nodeID string, err error) error {
	if ee, ok := err.(*EngineError); ok {
		if ee.NodeID == "" {
			ee.NodeID = nodeID
		}
		return ee
	}
	return newUserFault(nodeID, err)
}

func (rt *ExecutionRuntime) spawnStreamTask(nodeID, itemSocket string, fn func()) {
	key := socketKey{nodeID, itemSocket}
	rt.streamMu.Lock()
	wg, ok := rt.streams[key]
	if !ok {
		wg = &sync.WaitGroup{}
		rt.streams[key] = wg
	}
	wg.Add(1)
	rt.streamMu.Unlock()

	rt.opts.Metrics.streamTaskStarted()
	go func() {
		defer wg.Done()
		defer rt.opts.Metrics.streamTaskFinished()
		fn()
	}()
}

func (rt *ExecutionRuntime) joinStreamTasks(nodeID, itemSocket string) {
	rt.streamMu.Lock()
	wg, ok := rt.streams[socketKey{nodeID, itemSocket}]
	rt.streamMu.Unlock()
	if !ok {
		return
	}
	wg.Wait()
}
