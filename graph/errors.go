package graph

import (
	"errors"
	"fmt"
)

// ErrMaxSteps indicates the execution reached the step ceiling without
// hitting END. Routers are arbitrary functions, so nothing in a graph's
// declaration prevents a cycle; the ceiling is the backstop.
var ErrMaxSteps = errors.New("graph: execution exceeded maximum steps")

// ErrRevisitLimit indicates a node was re-entered more often than the graph
// permits along a single execution.
var ErrRevisitLimit = errors.New("graph: node re-entered beyond visit limit")

// ErrUndeclaredRoute indicates a router returned a target that is neither a
// registered node nor END. This is a protocol violation and is fatal to the
// execution.
var ErrUndeclaredRoute = errors.New("graph: router returned undeclared target")

// ExecutionError wraps a failure inside a running workflow with the node
// that produced it and a snapshot of the state at the point of failure.
//
// The engine performs no retries; whether the wrapped cause was worth
// retrying is a property of the capability that raised it.
type ExecutionError struct {
	// NodeID is the node executing (or routing) when the failure occurred.
	NodeID string

	// RunID identifies the execution.
	RunID string

	// State is the merged workflow state at failure, for diagnosis.
	// Its concrete type is the graph's state type S.
	State any

	// Err is the underlying cause.
	Err error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("graph: run %s: node %s: %v", e.RunID, e.NodeID, e.Err)
}

// Unwrap returns the underlying cause for errors.Is / errors.As.
func (e *ExecutionError) Unwrap() error { return e.Err }
