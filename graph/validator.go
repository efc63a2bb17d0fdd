package graph

import "sort"

// Severity classifies a validation Diagnostic.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// Diagnostic is one message produced by Validate.
type Diagnostic struct {
	Severity Severity
	Message  string
	NodeID   string
}

// ValidationResult is the full output of Validate. A graph with
// HasErrors == true must never be passed to NewExecutionRuntime.
type ValidationResult struct {
	Diagnostics []Diagnostic
	HasErrors   bool
}

// Validate runs the four pure, ordering-stable checks described by the
// graph validator: data-flow acyclicity (error), exec-flow cycles
// (warning), unconnected/undefaulted inputs (warning), and unreachable
// callable nodes (info). Validating the same graph twice yields an
// identical Diagnostics slice.
func Validate(nodes []NodeData, connections []ConnectionData) ValidationResult {
	// nodeIDs drives every outer node-visit loop below in the graph's own
	// insertion order (graphData.Nodes order); sort.Strings is used only
	// within adjacency-set iteration, never here.
	nodeIDs := make([]string, 0, len(nodes))
	nodeByID := make(map[string]NodeData, len(nodes))
	for _, n := range nodes {
		nodeIDs = append(nodeIDs, n.ID)
		nodeByID[n.ID] = n
	}

	var dataConns, execConns []ConnectionData
	for _, c := range connections {
		if c.IsExecution {
			execConns = append(execConns, c)
		} else {
			dataConns = append(dataConns, c)
		}
	}

	var diags []Diagnostic

	if cyc := findCycleSurvivors(nodeIDs, dataConns); len(cyc) > 0 {
		diags = append(diags, Diagnostic{
			Severity: SeverityError,
			Message:  "data-flow cycle detected among nodes: " + joinIDs(cyc),
		})
	}

	if cyc := findCycleSurvivors(nodeIDs, execConns); len(cyc) > 0 {
		diags = append(diags, Diagnostic{
			Severity: SeverityWarning,
			Message:  "execution-flow cycle detected among nodes: " + joinIDs(cyc) + " (tolerated; enforced at run time by the call-depth guard)",
		})
	}

	diags = append(diags, checkConnectedOrDefaulted(nodeIDs, nodeByID, dataConns)...)
	diags = append(diags, checkReachability(nodeIDs, nodeByID, execConns)...)

	hasErrors := false
	for _, d := range diags {
		if d.Severity == SeverityError {
			hasErrors = true
			break
		}
	}
	return ValidationResult{Diagnostics: diags, HasErrors: hasErrors}
}

// findCycleSurvivors runs Kahn's algorithm over the given connection family
// restricted to the nodes in nodeIDs and returns, in nodeIDs order, every
// node that still has non-zero in-degree after repeatedly removing
// zero-in-degree nodes: the nodes on a cycle plus any node downstream of one.
func findCycleSurvivors(nodeIDs []string, conns []ConnectionData) []string {
	inDegree := make(map[string]int, len(nodeIDs))
	adj := make(map[string][]string)
	touched := make(map[string]bool)
	for _, id := range nodeIDs {
		inDegree[id] = 0
	}
	for _, c := range conns {
		adj[c.OutputNodeID] = append(adj[c.OutputNodeID], c.InputNodeID)
		inDegree[c.InputNodeID]++
		touched[c.OutputNodeID] = true
		touched[c.InputNodeID] = true
	}
	for from := range adj {
		sort.Strings(adj[from])
	}

	queue := make([]string, 0)
	for _, id := range nodeIDs {
		if touched[id] && inDegree[id] == 0 {
			queue = append(queue, id)
		}
	}
	sort.Strings(queue)

	removed := make(map[string]bool)
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		removed[cur] = true
		next := make([]string, 0)
		for _, to := range adj[cur] {
			inDegree[to]--
			if inDegree[to] == 0 {
				next = append(next, to)
			}
		}
		sort.Strings(next)
		queue = append(queue, next...)
	}

	var survivors []string
	for _, id := range nodeIDs {
		if touched[id] && !removed[id] {
			survivors = append(survivors, id)
		}
	}
	return survivors
}

func checkConnectedOrDefaulted(nodeIDs []string, nodeByID map[string]NodeData, dataConns []ConnectionData) []Diagnostic {
	connected := make(map[socketKey]bool)
	for _, c := range dataConns {
		connected[socketKey{c.InputNodeID, c.InputSocket}] = true
	}

	var diags []Diagnostic
	for _, id := range nodeIDs {
		n := nodeByID[id]
		for _, in := range n.Inputs {
			if in.IsExecution {
				continue
			}
			if connected[socketKey{n.ID, in.Name}] {
				continue
			}
			if in.Default != nil {
				continue
			}
			diags = append(diags, Diagnostic{
				Severity: SeverityWarning,
				Message:  "input " + in.Name + " has neither an incoming connection nor a default value",
				NodeID:   n.ID,
			})
		}
	}
	return diags
}

func checkReachability(nodeIDs []string, nodeByID map[string]NodeData, execConns []ConnectionData) []Diagnostic {
	adj := make(map[string][]string)
	for _, c := range execConns {
		adj[c.OutputNodeID] = append(adj[c.OutputNodeID], c.InputNodeID)
	}
	for from := range adj {
		sort.Strings(adj[from])
	}

	reached := make(map[string]bool)
	var queue []string
	for _, id := range nodeIDs {
		if nodeByID[id].ExecInit {
			queue = append(queue, id)
			reached[id] = true
		}
	}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, to := range adj[cur] {
			if !reached[to] {
				reached[to] = true
				queue = append(queue, to)
			}
		}
	}

	var diags []Diagnostic
	for _, id := range nodeIDs {
		n := nodeByID[id]
		if n.Callable && !n.ExecInit && !reached[id] {
			diags = append(diags, Diagnostic{
				Severity: SeverityInfo,
				Message:  "callable node is unreachable from any execution initiator",
				NodeID:   n.ID,
			})
		}
	}
	return diags
}

func joinIDs(ids []string) string {
	out := ""
	for i, id := range ids {
		if i > 0 {
			out += ", "
		}
		out += id
	}
	return out
}
