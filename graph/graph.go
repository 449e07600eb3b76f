// Package graph provides the workflow graph engine: a registry of named
// nodes and edges compiled into an immutable, executable plan that threads a
// shared state through the nodes until a terminal edge is reached.
package graph

import (
	"fmt"
	"strings"
)

// END is the terminal edge target. Routing to END stops the execution and
// returns the current state to the caller. END is not a node and cannot be
// registered as one.
const END = "__end__"

// Graph is a mutable builder for workflow graphs.
//
// Register nodes with AddNode, wire them with AddEdge (fixed target) or
// AddRouter (target resolved from state at runtime), designate the entry
// node with SetEntry, then call Compile to obtain an immutable
// CompiledGraph. Builder methods chain and panic on structural misuse
// (empty IDs, duplicates, nil functions); these are programming errors,
// not runtime conditions.
//
// Graph is not safe for concurrent building. Build on one goroutine,
// compile once, share the CompiledGraph freely.
type Graph[S any] struct {
	nodes   map[string]NodeFunc[S]
	edges   map[string]string
	routers map[string]RouterFunc[S]
	reducer Reducer[S]
	entry   string
}

// New creates a graph builder for state type S.
//
// The reducer merges each node's delta into the running state and is
// required: workflow semantics such as message append and fetch-once context
// caching live in the reducer, not in the engine.
func New[S any](reducer Reducer[S]) *Graph[S] {
	if reducer == nil {
		panic("graph: reducer cannot be nil")
	}
	return &Graph[S]{
		nodes:   make(map[string]NodeFunc[S]),
		edges:   make(map[string]string),
		routers: make(map[string]RouterFunc[S]),
		reducer: reducer,
	}
}

// AddNode registers a named node. Returns the graph for chaining.
//
// Panics if id is empty, reserved, contains whitespace, duplicates an
// existing node, or fn is nil.
func (g *Graph[S]) AddNode(id string, fn NodeFunc[S]) *Graph[S] {
	if id == "" {
		panic("graph: node ID cannot be empty")
	}
	if strings.EqualFold(id, "end") || strings.EqualFold(id, END) {
		panic("graph: node ID cannot be the terminal marker")
	}
	if strings.ContainsAny(id, " \t\n\r") {
		panic("graph: node ID cannot contain whitespace")
	}
	if fn == nil {
		panic("graph: node function cannot be nil")
	}
	if _, exists := g.nodes[id]; exists {
		panic(fmt.Sprintf("graph: duplicate node ID: %s", id))
	}
	g.nodes[id] = fn
	return g
}

// AddEdge wires a fixed edge: after from completes, execution always moves
// to to (a node ID or END). A node may have one fixed edge or one router,
// never both and never two fixed edges; Compile enforces this.
func (g *Graph[S]) AddEdge(from, to string) *Graph[S] {
	if from == "" || to == "" {
		panic("graph: edge endpoints cannot be empty")
	}
	if _, dup := g.edges[from]; dup {
		panic(fmt.Sprintf("graph: node %s already has a fixed edge", from))
	}
	g.edges[from] = to
	return g
}

// AddRouter wires a conditional edge: after from completes, router is invoked
// with the merged state and must return a declared node ID or END.
func (g *Graph[S]) AddRouter(from string, router RouterFunc[S]) *Graph[S] {
	if from == "" {
		panic("graph: router source cannot be empty")
	}
	if router == nil {
		panic("graph: router function cannot be nil")
	}
	if _, dup := g.routers[from]; dup {
		panic(fmt.Sprintf("graph: node %s already has a router", from))
	}
	g.routers[from] = router
	return g
}

// SetEntry designates the node execution starts at.
func (g *Graph[S]) SetEntry(id string) *Graph[S] {
	if id == "" {
		panic("graph: entry node ID cannot be empty")
	}
	g.entry = id
	return g
}
