package graph

import (
	"errors"
	"fmt"
)

// Compilation errors. Compile joins every violation it finds so a malformed
// graph reports all problems at once.
var (
	// ErrNoEntry indicates SetEntry was never called.
	ErrNoEntry = errors.New("graph: entry node not set")

	// ErrEntryNotFound indicates the entry references an unregistered node.
	ErrEntryNotFound = errors.New("graph: entry node not registered")

	// ErrNodeNotFound indicates an edge endpoint references an unregistered node.
	ErrNodeNotFound = errors.New("graph: node not registered")

	// ErrAmbiguousRoute indicates a node has both a fixed edge and a router.
	ErrAmbiguousRoute = errors.New("graph: node has both a fixed edge and a router")

	// ErrDeadEnd indicates a node has no outgoing edge at all.
	ErrDeadEnd = errors.New("graph: node has no outgoing edge")
)

// Compile validates the builder and produces an immutable CompiledGraph.
//
// Checks, in order:
//  1. entry node is set and registered
//  2. every fixed edge source and target is a registered node (or END target)
//  3. every router source is a registered node
//  4. no node carries both a fixed edge and a router
//  5. every node has some outgoing edge (fixed or router)
//
// Router return values cannot be validated here, routers being arbitrary
// functions, so the engine re-validates each routing decision at runtime.
func (g *Graph[S]) Compile() (*CompiledGraph[S], error) {
	var errs []error

	if g.entry == "" {
		errs = append(errs, ErrNoEntry)
	} else if _, ok := g.nodes[g.entry]; !ok {
		errs = append(errs, fmt.Errorf("%w: entry %q", ErrEntryNotFound, g.entry))
	}

	for from, to := range g.edges {
		if _, ok := g.nodes[from]; !ok {
			errs = append(errs, fmt.Errorf("%w: edge source %q", ErrNodeNotFound, from))
		}
		if to != END {
			if _, ok := g.nodes[to]; !ok {
				errs = append(errs, fmt.Errorf("%w: edge target %q", ErrNodeNotFound, to))
			}
		}
		if _, both := g.routers[from]; both {
			errs = append(errs, fmt.Errorf("%w: node %q", ErrAmbiguousRoute, from))
		}
	}

	for from := range g.routers {
		if _, ok := g.nodes[from]; !ok {
			errs = append(errs, fmt.Errorf("%w: router source %q", ErrNodeNotFound, from))
		}
	}

	for id := range g.nodes {
		_, hasEdge := g.edges[id]
		_, hasRouter := g.routers[id]
		if !hasEdge && !hasRouter {
			errs = append(errs, fmt.Errorf("%w: node %q", ErrDeadEnd, id))
		}
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	nodes := make(map[string]NodeFunc[S], len(g.nodes))
	for id, fn := range g.nodes {
		nodes[id] = fn
	}
	edges := make(map[string]string, len(g.edges))
	for from, to := range g.edges {
		edges[from] = to
	}
	routers := make(map[string]RouterFunc[S], len(g.routers))
	for from, r := range g.routers {
		routers[from] = r
	}

	return &CompiledGraph[S]{
		nodes:   nodes,
		edges:   edges,
		routers: routers,
		reducer: g.reducer,
		entry:   g.entry,
	}, nil
}

// CompiledGraph is an immutable, executable workflow graph.
//
// It is created by Compile and never mutated afterwards, so a single
// CompiledGraph can back many concurrent Run calls; each execution owns its
// own state and the graph is the only shared object.
type CompiledGraph[S any] struct {
	nodes   map[string]NodeFunc[S]
	edges   map[string]string
	routers map[string]RouterFunc[S]
	reducer Reducer[S]
	entry   string
}

// Entry returns the entry node ID.
func (cg *CompiledGraph[S]) Entry() string { return cg.entry }

// HasNode reports whether id is a registered node.
func (cg *CompiledGraph[S]) HasNode(id string) bool {
	_, ok := cg.nodes[id]
	return ok
}

// NodeIDs returns the registered node IDs in unspecified order.
func (cg *CompiledGraph[S]) NodeIDs() []string {
	ids := make([]string, 0, len(cg.nodes))
	for id := range cg.nodes {
		ids = append(ids, id)
	}
	return ids
}
