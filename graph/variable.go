package graph

import (
	"context"
	"strings"
)

// Synthetic definition_id prefixes for graph-scoped variables and events.
// A node carrying one of these prefixes has no backing registry entry or
// NodeInstance class; its NodeDefinition is built on the fly from the
// GraphVariable/GraphEvent it names, by id, in newSynthDefinitions.
const (
	prefixVariableGet = "variable.get."
	prefixVariableSet = "variable.set."
	prefixEventListen = "event.listener."
	prefixEventTrigger = "event.trigger."
)

// newSynthDefinitions builds the four synthetic NodeDefinitions for every
// variable and event the graph declares, keyed by definition_id
// ("variable.get.<id>", etc.).
func newSynthDefinitions(g GraphData) map[string]*NodeDefinition {
	out := make(map[string]*NodeDefinition, 4*(len(g.Variables)+len(g.Events)))
	for _, v := range g.Variables {
		out[prefixVariableGet+v.ID] = buildVariableGetDefinition(v)
		out[prefixVariableSet+v.ID] = buildVariableSetDefinition(v)
	}
	for _, e := range g.Events {
		out[prefixEventListen+e.ID] = buildEventListenerDefinition(e)
		out[prefixEventTrigger+e.ID] = buildEventTriggerDefinition(e)
	}
	return out
}

// listenerEventID reports the event id a definition_id of the form
// "event.listener.<id>" names, if it is one.
func listenerEventID(definitionID string) (string, bool) {
	if strings.HasPrefix(definitionID, prefixEventListen) {
		return strings.TrimPrefix(definitionID, prefixEventListen), true
	}
	return "", false
}

// buildVariableGetDefinition returns a pure data node (no execution
// sockets) with one output, "Value", that reads the variable's current
// value from run storage, or its declared default if never set.
func buildVariableGetDefinition(v GraphVariable) *NodeDefinition {
	b := NewNodeBuilder(prefixVariableGet+v.ID, "Get "+v.Name).
		Category("Variables").
		Output("Value", v.TypeName).
		OnExecute(func(ctx context.Context, nc *NodeContext) error {
			if val, ok := nc.GetVariable(v.ID); ok {
				nc.SetOutput("Value", val)
				return nil
			}
			if v.DefaultValue != nil {
				decoded, err := v.DefaultValue.DecodeAny()
				if err != nil {
					return err
				}
				nc.SetOutput("Value", decoded)
				return nil
			}
			nc.SetOutput("Value", nil)
			return nil
		})
	return b.Build()
}

// buildVariableSetDefinition returns a callable node with a "Value" input
// that writes the variable into run storage and passes the value through
// on its own "Value" output before triggering Exit.
func buildVariableSetDefinition(v GraphVariable) *NodeDefinition {
	b := NewNodeBuilder(prefixVariableSet+v.ID, "Set "+v.Name).
		Category("Variables").
		Callable().
		Input("Value", v.TypeName, v.DefaultValue, "").
		Output("Value", v.TypeName).
		OnExecute(func(ctx context.Context, nc *NodeContext) error {
			val, err := nc.GetInput(ctx, "Value")
			if err != nil {
				return err
			}
			nc.SetVariable(v.ID, val)
			nc.SetOutput("Value", val)
			return nc.Trigger(ctx, "Exit")
		})
	return b.Build()
}

// buildEventTriggerDefinition returns a callable node that fires the
// named graph event on the bus (running every subscribed event.listener
// node synchronously) before continuing its own Exit.
func buildEventTriggerDefinition(e GraphEvent) *NodeDefinition {
	b := NewNodeBuilder(prefixEventTrigger+e.ID, "Trigger "+e.Name).
		Category("Events").
		Callable().
		OnExecute(func(ctx context.Context, nc *NodeContext) error {
			nc.rt.bus.PublishEventFired(ctx, nc.rt.runID, e.ID)
			return nc.Trigger(ctx, "Exit")
		})
	return b.Build()
}

// buildEventListenerDefinition returns an execution-initiator-shaped node
// (Exit only, no Enter) whose body is only ever reached through the bus
// subscription NewExecutionRuntime sets up for it; it is never scanned as
// a normal execution initiator at run start.
func buildEventListenerDefinition(e GraphEvent) *NodeDefinition {
	b := NewNodeBuilder(prefixEventListen+e.ID, "On "+e.Name).
		Category("Events").
		ExecutionInitiator().
		OnExecute(func(ctx context.Context, nc *NodeContext) error {
			return nc.Trigger(ctx, "Exit")
		})
	return b.Build()
}
