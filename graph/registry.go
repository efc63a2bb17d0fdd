package graph

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// NodeType is the "configure + execute" capability registry discovery
// looks for on a module's exported node types: Configure populates a
// NodeBuilder with the node's metadata and sockets; Execute is the node's
// behavior, invoked through the same NodeInstance contract as any other
// class-based node.
type NodeType interface {
	ID() string
	Name() string
	Configure(b *NodeBuilder)
	Execute(ctx context.Context, nc *NodeContext) error
}

// DefinitionProvider lets a module hand the registry pre-built definitions
// directly, bypassing the Configure/Execute discovery path. Useful for
// synthetic definitions (variables, events) or definitions built from data
// rather than from a Go type.
type DefinitionProvider interface {
	Definitions() []*NodeDefinition
}

// Module is anything RegisterModule can harvest definitions from: zero or
// more discoverable NodeTypes, zero or more directly provided Definitions,
// or both.
type Module interface{}

// ModuleHandle is returned by RegisterModule and identifies the set of
// definitions a later RemoveModule call should detach.
type ModuleHandle struct {
	ids []string
}

// Registry owns all NodeDefinitions for the process lifetime following
// discovery, and provides deterministic lookup by id or by display name.
// The registry is append-only during discovery; RemoveModule is the only
// way definitions leave it, and existing runs that already captured a
// definition reference are unaffected by a later removal.
type Registry struct {
	mu       sync.RWMutex
	byID     map[string]*NodeDefinition
	order    []string            // insertion order of ids, for name tie-breaks
	byName   map[string][]string // name -> ids in insertion order
	detached map[string]bool
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		byID:     make(map[string]*NodeDefinition),
		byName:   make(map[string][]string),
		detached: make(map[string]bool),
	}
}

// RegisterModule collects definitions from m: any NodeType returned by a
// NodeTypes() []NodeType method on m, plus any definitions from
// DefinitionProvider. A duplicate id within the batch being registered is a
// DefinitionConflict and the whole batch is rejected.
func (r *Registry) RegisterModule(m Module) (*ModuleHandle, error) {
	var defs []*NodeDefinition

	if lister, ok := m.(interface{ NodeTypes() []NodeType }); ok {
		for _, nt := range lister.NodeTypes() {
			b := NewNodeBuilder(nt.ID(), nt.Name())
			nt.Configure(b)
			def := b.Build()
			def.NewInstance = func(nt NodeType) func() NodeInstance {
				return func() NodeInstance { return &nodeTypeInstance{nt: nt} }
			}(nt)
			defs = append(defs, def)
		}
	}
	if provider, ok := m.(DefinitionProvider); ok {
		defs = append(defs, provider.Definitions()...)
	}

	seen := make(map[string]struct{}, len(defs))
	for _, d := range defs {
		if _, dup := seen[d.ID]; dup {
			return nil, &EngineError{Kind: KindDefinitionConflict, Message: fmt.Sprintf("duplicate definition id %q within module", d.ID)}
		}
		seen[d.ID] = struct{}{}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, d := range defs {
		if _, exists := r.byID[d.ID]; exists {
			return nil, &EngineError{Kind: KindDefinitionConflict, Message: fmt.Sprintf("definition id %q already registered", d.ID)}
		}
	}
	ids := make([]string, 0, len(defs))
	for _, d := range defs {
		r.byID[d.ID] = d
		r.order = append(r.order, d.ID)
		r.byName[d.Name] = append(r.byName[d.Name], d.ID)
		ids = append(ids, d.ID)
	}
	return &ModuleHandle{ids: ids}, nil
}

// RemoveModule detaches the definitions a prior RegisterModule call
// introduced. New resolution attempts for those ids fail; runs already in
// flight keep whatever definition reference they captured at construction
// time and complete normally.
func (r *Registry) RemoveModule(h *ModuleHandle) {
	if h == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range h.ids {
		delete(r.byID, id)
		r.detached[id] = true
	}
}

// Definitions returns all registered definitions in stable UI order:
// category ascending, then name, then id.
func (r *Registry) Definitions() []*NodeDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*NodeDefinition, 0, len(r.byID))
	for _, id := range r.order {
		if d, ok := r.byID[id]; ok {
			out = append(out, d)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Category != out[j].Category {
			return out[i].Category < out[j].Category
		}
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// ResolveByID is the primary lookup path, O(1).
func (r *Registry) ResolveByID(id string) (*NodeDefinition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.byID[id]
	return d, ok
}

// ResolveByName is the fallback lookup path used when a node's
// definition_id is absent. When multiple definitions share a name, the
// first one registered (stable insertion order) is returned and warn is
// true so the caller can surface a FeedbackMessage.
func (r *Registry) ResolveByName(name string) (def *NodeDefinition, warn bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := r.byName[name]
	for _, id := range ids {
		if d, ok := r.byID[id]; ok {
			return d, len(ids) > 1
		}
	}
	return nil, false
}

// nodeTypeInstance adapts a discovered NodeType into the NodeInstance
// contract so RegisterModule can use the same instantiate-and-cache path
// for both discovery styles.
type nodeTypeInstance struct {
	nt NodeType
}

func (n *nodeTypeInstance) OnCreated(ServiceProvider) error { return nil }

func (n *nodeTypeInstance) Execute(ctx context.Context, nc *NodeContext) error {
	return n.nt.Execute(ctx, nc)
}
