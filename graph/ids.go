package graph

import "github.com/google/uuid"

// newNodeID generates the unique id stamped onto a freshly factory-built
// NodeData. Node identity only needs to be unique within a graph document,
// but a random UUID keeps the editor from ever needing a counter shared
// across concurrently edited graphs.
func newNodeID() string {
	return uuid.NewString()
}
