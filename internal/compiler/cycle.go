package compiler

import (
	"fmt"
	"sort"
	"strings"

	"github.com/voltlab/netir/internal/ir"
)

// cycleDiagnostics performs static cycle analysis on the instantiation
// relation. A library whose cells form a DAG produces no diagnostics.
//
// The algorithm:
//  1. Build the cell -> instantiated-cell graph (primitives and blackboxes
//     are leaves and cannot close a cycle)
//  2. Use Tarjan's algorithm to find strongly connected components
//  3. Report each SCC with size > 1, and each self-loop, as a V104 error
func cycleDiagnostics(lib *ir.Library) []Diagnostic {
	graph := buildInstantiationGraph(lib)
	if len(graph) == 0 {
		return nil
	}

	sccs := tarjanSCC(graph)

	var diags []Diagnostic
	for _, scc := range sccs {
		if len(scc) > 1 || (len(scc) == 1 && hasSelfLoop(scc[0], graph)) {
			diags = append(diags, cycleSCCToDiagnostic(lib, scc, graph))
		}
	}
	return diags
}

// instantiationGraph maps each cell id to the cell ids it instantiates.
type instantiationGraph map[ir.CellID][]ir.CellID

func buildInstantiationGraph(lib *ir.Library) instantiationGraph {
	graph := make(instantiationGraph)
	for _, d := range lib.Defs() {
		c, ok := d.(*ir.Cell)
		if !ok {
			continue
		}
		// Ensure the node exists even with no outgoing edges.
		if graph[c.ID()] == nil {
			graph[c.ID()] = []ir.CellID{}
		}
		for _, inst := range c.Instances() {
			if inst == nil {
				continue
			}
			if _, ok := lib.Def(inst.Child()).(*ir.Cell); ok {
				graph[c.ID()] = append(graph[c.ID()], inst.Child())
			}
		}
	}
	return graph
}

func hasSelfLoop(node ir.CellID, graph instantiationGraph) bool {
	for _, neighbor := range graph[node] {
		if neighbor == node {
			return true
		}
	}
	return false
}

// tarjanSCC finds strongly connected components. Single-node SCCs without
// self-loops are not cycles. Nodes are visited in ascending id order so the
// output is deterministic.
func tarjanSCC(graph instantiationGraph) [][]ir.CellID {
	var (
		index   = 0
		stack   []ir.CellID
		indices = make(map[ir.CellID]int)
		lowlink = make(map[ir.CellID]int)
		onStack = make(map[ir.CellID]bool)
		sccs    [][]ir.CellID
	)

	var strongConnect func(ir.CellID)
	strongConnect = func(v ir.CellID) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range graph[v] {
			if _, visited := indices[w]; !visited {
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		if lowlink[v] == indices[v] {
			var scc []ir.CellID
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			sccs = append(sccs, scc)
		}
	}

	nodes := make([]ir.CellID, 0, len(graph))
	for node := range graph {
		nodes = append(nodes, node)
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i] < nodes[j] })
	for _, node := range nodes {
		if _, visited := indices[node]; !visited {
			strongConnect(node)
		}
	}

	return sccs
}

func cycleSCCToDiagnostic(lib *ir.Library, scc []ir.CellID, graph instantiationGraph) Diagnostic {
	path := reconstructCyclePath(scc, graph)
	names := make([]string, len(path))
	for i, id := range path {
		names[i] = lib.Def(id).Name()
	}
	return Diagnostic{
		Code:     CodeCycle,
		Severity: SeverityError,
		Cell:     scc[0],
		Message:  fmt.Sprintf("instantiation cycle: %s", strings.Join(names, " -> ")),
	}
}

// reconstructCyclePath walks edges inside the SCC from its first member
// until it returns to the start, yielding a representative cycle.
func reconstructCyclePath(scc []ir.CellID, graph instantiationGraph) []ir.CellID {
	if len(scc) == 1 {
		return []ir.CellID{scc[0], scc[0]}
	}
	sccSet := make(map[ir.CellID]bool, len(scc))
	for _, node := range scc {
		sccSet[node] = true
	}

	start := scc[0]
	current := start
	path := []ir.CellID{current}
	visited := make(map[ir.CellID]bool)

	for {
		visited[current] = true
		next := ir.CellID(-1)
		for _, neighbor := range graph[current] {
			if sccSet[neighbor] && (!visited[neighbor] || neighbor == start) {
				next = neighbor
				break
			}
		}
		if next < 0 {
			break
		}
		path = append(path, next)
		if next == start {
			break
		}
		current = next
	}
	return path
}
