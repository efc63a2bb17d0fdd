// Package graph provides the core execution engine for a visual dataflow and
// control-flow graph runtime.
//
// A graph is a directed multigraph of nodes connected by two disjoint edge
// families: data edges, which propagate values lazily on read, and execution
// edges, which sequence control flow via a coroutine-style trigger/suspend
// model. The package is organized around the same pipeline every run takes:
//
//	GraphData -> Validate -> NewExecutionRuntime -> Execute -> (events + final storage)
//
// Node discovery and registration live in registry.go and builder.go. Graph
// shape and static validation live in model.go and validator.go. Per-run
// state lives in storage.go. The orchestrator (runtime.go) drives dispatch
// through the per-node façade in context.go, special-casing variable and
// event nodes (variable.go) and checking the debug gate (gate.go) before
// every trigger. service.go is the package's single public entry point.
package graph
