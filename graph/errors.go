package graph

import (
	"errors"
	"fmt"
)

// ErrorKind classifies the failures the engine can produce, matching the
// taxonomy a graph author needs to tell apart: failures that abort before
// any node runs, failures a node raised itself, and failures produced by the
// runtime's own defenses (recursion depth, cancellation, cycle fallback).
type ErrorKind string

const (
	// KindGraphInvariant marks a structurally malformed graph: duplicate
	// sockets, dangling connections, or an execution-flag mismatch between
	// a connection and its endpoints. Surfaced at load/validate time.
	KindGraphInvariant ErrorKind = "graph_invariant"

	// KindValidationError marks a data-flow cycle. Blocks execution.
	KindValidationError ErrorKind = "validation_error"

	// KindDefinitionMissing marks a node whose definition_id does not
	// resolve in the registry at run time.
	KindDefinitionMissing ErrorKind = "definition_missing"

	// KindDefinitionConflict marks two definitions registered under the
	// same id within one module.
	KindDefinitionConflict ErrorKind = "definition_conflict"

	// KindDataCycle is the runtime's fallback detector for a data-flow
	// cycle that validation should have already rejected.
	KindDataCycle ErrorKind = "data_cycle"

	// KindExecDepthExceeded marks an execution-flow cycle caught at run
	// time by the call-depth guard.
	KindExecDepthExceeded ErrorKind = "exec_depth_exceeded"

	// KindCancelled marks a run unwound because its cancellation token
	// tripped.
	KindCancelled ErrorKind = "cancelled"

	// KindUserFault marks an error raised by a node's own body.
	KindUserFault ErrorKind = "user_fault"

	// KindNodeNotFound marks dispatch to an id absent from the node map.
	KindNodeNotFound ErrorKind = "node_not_found"

	// KindNoImplementation marks a definition with neither an inline
	// executor nor an instance factory.
	KindNoImplementation ErrorKind = "no_implementation"
)

// EngineError is the structured error type returned by every fallible
// engine operation. Message is human-readable; Kind is stable and intended
// for programmatic branching; NodeID is set whenever the failure can be
// attributed to one node.
type EngineError struct {
	Kind    ErrorKind
	Message string
	NodeID  string
	Cause   error
}

func (e *EngineError) Error() string {
	if e.NodeID != "" {
		return fmt.Sprintf("%s: node %s: %s", e.Kind, e.NodeID, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap exposes Cause for errors.Is / errors.As chains.
func (e *EngineError) Unwrap() error { return e.Cause }

// Is lets errors.Is(err, graph.ErrCancelled) match any EngineError of kind
// KindCancelled, regardless of message or node attribution.
func (e *EngineError) Is(target error) bool {
	var other *EngineError
	if errors.As(target, &other) && other.NodeID == "" && other.Cause == nil {
		return e.Kind == other.Kind
	}
	return false
}

// Sentinel errors for kind-only comparisons via errors.Is.
var (
	ErrCancelled        = &EngineError{Kind: KindCancelled, Message: "execution cancelled"}
	ErrExecDepthExceeded = &EngineError{Kind: KindExecDepthExceeded, Message: "call depth exceeded"}
	ErrDataCycle        = &EngineError{Kind: KindDataCycle, Message: "data cycle detected during input resolution"}
)

func newNodeNotFound(nodeID string) *EngineError {
	return &EngineError{Kind: KindNodeNotFound, Message: "node not found", NodeID: nodeID}
}

func newNoImplementation(nodeID, definitionID string) *EngineError {
	return &EngineError{
		Kind:    KindNoImplementation,
		Message: fmt.Sprintf("definition %q has neither an inline executor nor an instance factory", definitionID),
		NodeID:  nodeID,
	}
}

func newDefinitionMissing(nodeID, definitionID string) *EngineError {
	return &EngineError{
		Kind:    KindDefinitionMissing,
		Message: fmt.Sprintf("definition %q does not resolve in the registry", definitionID),
		NodeID:  nodeID,
	}
}

func newExecDepthExceeded(nodeID string, limit int) *EngineError {
	return &EngineError{
		Kind:    KindExecDepthExceeded,
		Message: fmt.Sprintf("call depth exceeded limit of %d", limit),
		NodeID:  nodeID,
	}
}

func newDataCycle(path []string) *EngineError {
	return &EngineError{
		Kind:    KindDataCycle,
		Message: fmt.Sprintf("data cycle detected: %v", path),
		NodeID:  lastOf(path),
	}
}

func newUserFault(nodeID string, cause error) *EngineError {
	return &EngineError{Kind: KindUserFault, Message: cause.Error(), NodeID: nodeID, Cause: cause}
}

func newCancelled(nodeID string, cause error) *EngineError {
	return &EngineError{Kind: KindCancelled, Message: "execution cancelled", NodeID: nodeID, Cause: cause}
}

func lastOf(s []string) string {
	if len(s) == 0 {
		return ""
	}
	return s[len(s)-1]
}
