// Package graph answers static structure questions about the tool
// surface: what a tool depends on, what would break if it changed, and
// whether the declared dependency edges stay acyclic. The graph is
// fixed at construction; every query is a pure function of it.
package graph

import (
	"fmt"
	"sort"

	"github.com/braidhq/engine/internal/chain"
)

// Graph output formats.
const (
	FormatNodesEdges = "nodes-edges"
	FormatAdjacency  = "adjacency"
)

// Node describes one tool: its category, the tools it calls into, and
// its declared interface surface.
type Node struct {
	Name         string   `json:"name"`
	Category     string   `json:"category"`
	Dependencies []string `json:"dependencies,omitempty"`
	Inputs       []string `json:"inputs,omitempty"`
	Outputs      []string `json:"outputs,omitempty"`
	Effects      []string `json:"effects,omitempty"`
}

// DependencySet splits reachable nodes into the immediate neighbors and
// everything further out. The two lists never overlap and never include
// the queried tool.
type DependencySet struct {
	Direct     []string `json:"direct"`
	Transitive []string `json:"transitive"`
}

// Edge is one dependency arrow for the nodes-edges format.
type Edge struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// View is a materialized graph in the requested format.
type View struct {
	Format    string              `json:"format"`
	Nodes     []Node              `json:"nodes,omitempty"`
	Edges     []Edge              `json:"edges,omitempty"`
	Adjacency map[string][]string `json:"adjacency,omitempty"`
}

// ViewOptions filter and shape a Graph call.
type ViewOptions struct {
	Category string
	Format   string
}

// CycleReport is the DetectCycles result.
type CycleReport struct {
	HasCircular bool       `json:"hasCircular"`
	Cycles      [][]string `json:"cycles"`
}

// ChainRef marks one step of a static chain that dispatches the tool.
type ChainRef struct {
	Chain      string `json:"chain"`
	StepIndex  int    `json:"step_index"`
	TotalSteps int    `json:"total_steps"`
	Required   bool   `json:"required"`
}

// ImpactReport summarizes what changing or removing a tool touches.
type ImpactReport struct {
	Tool           string        `json:"tool"`
	Category       string        `json:"category"`
	Effects        []string      `json:"effects"`
	Inputs         []string      `json:"inputs"`
	Outputs        []string      `json:"outputs"`
	Dependencies   DependencySet `json:"dependencies"`
	Dependents     DependencySet `json:"dependents"`
	AffectedChains []ChainRef    `json:"affected_chains"`
	ImpactScore    int           `json:"impact_score"`
}

// Analyzer holds the immutable graph snapshot.
type Analyzer struct {
	nodes   map[string]*Node
	names   []string
	forward map[string][]string
	reverse map[string][]string
	chains  []*chain.Definition
}

// New builds an analyzer over nodes, cross-referencing the static
// chains for impact queries. Dynamic chains have no fixed steps and are
// ignored.
func New(nodes []Node, chains []*chain.Definition) *Analyzer {
	a := &Analyzer{
		nodes:   make(map[string]*Node, len(nodes)),
		forward: make(map[string][]string, len(nodes)),
		reverse: make(map[string][]string, len(nodes)),
	}
	for i := range nodes {
		n := nodes[i]
		a.nodes[n.Name] = &n
		a.names = append(a.names, n.Name)
		a.forward[n.Name] = append([]string(nil), n.Dependencies...)
		for _, dep := range n.Dependencies {
			a.reverse[dep] = append(a.reverse[dep], n.Name)
		}
	}
	sort.Strings(a.names)
	for _, d := range chains {
		if d.Dynamic {
			continue
		}
		a.chains = append(a.chains, d)
	}
	return a
}

// Nodes returns the snapshot's nodes ordered by name.
func (a *Analyzer) Nodes() []Node {
	out := make([]Node, 0, len(a.names))
	for _, name := range a.names {
		out = append(out, *a.nodes[name])
	}
	return out
}

// Dependencies returns what the tool calls into, directly and through
// intermediaries.
func (a *Analyzer) Dependencies(name string) (DependencySet, error) {
	if _, ok := a.nodes[name]; !ok {
		return DependencySet{}, fmt.Errorf("unknown tool: %s", name)
	}
	return a.walk(name, a.forward), nil
}

// Dependents returns what calls into the tool, directly and through
// intermediaries.
func (a *Analyzer) Dependents(name string) (DependencySet, error) {
	if _, ok := a.nodes[name]; !ok {
		return DependencySet{}, fmt.Errorf("unknown tool: %s", name)
	}
	return a.walk(name, a.reverse), nil
}

// walk BFSes edges from start, splitting the first ring from the rest.
func (a *Analyzer) walk(start string, edges map[string][]string) DependencySet {
	direct := append([]string(nil), edges[start]...)
	sort.Strings(direct)

	seen := map[string]struct{}{start: {}}
	for _, d := range direct {
		seen[d] = struct{}{}
	}

	var transitive []string
	queue := append([]string(nil), direct...)
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		for _, next := range edges[current] {
			if _, ok := seen[next]; ok {
				continue
			}
			seen[next] = struct{}{}
			transitive = append(transitive, next)
			queue = append(queue, next)
		}
	}
	sort.Strings(transitive)
	return DependencySet{Direct: direct, Transitive: transitive}
}

// Graph materializes the snapshot. A category filter keeps only that
// category's nodes and drops edges that cross out of it.
func (a *Analyzer) Graph(opts ViewOptions) (View, error) {
	format := opts.Format
	if format == "" {
		format = FormatNodesEdges
	}
	if format != FormatNodesEdges && format != FormatAdjacency {
		return View{}, fmt.Errorf("unknown graph format: %s", opts.Format)
	}

	kept := make(map[string]struct{}, len(a.names))
	for _, name := range a.names {
		if opts.Category == "" || a.nodes[name].Category == opts.Category {
			kept[name] = struct{}{}
		}
	}

	view := View{Format: format}
	if format == FormatAdjacency {
		view.Adjacency = make(map[string][]string, len(kept))
		for _, name := range a.names {
			if _, ok := kept[name]; !ok {
				continue
			}
			deps := make([]string, 0)
			for _, dep := range a.forward[name] {
				if _, ok := kept[dep]; ok {
					deps = append(deps, dep)
				}
			}
			sort.Strings(deps)
			view.Adjacency[name] = deps
		}
		return view, nil
	}

	for _, name := range a.names {
		if _, ok := kept[name]; !ok {
			continue
		}
		view.Nodes = append(view.Nodes, *a.nodes[name])
		for _, dep := range a.forward[name] {
			if _, ok := kept[dep]; ok {
				view.Edges = append(view.Edges, Edge{From: name, To: dep})
			}
		}
	}
	return view, nil
}

// DetectCycles DFSes every node with a recursion stack. A revisit while
// on the stack records the stack slice from the first occurrence, with
// the revisited node appended to close the loop.
func (a *Analyzer) DetectCycles() CycleReport {
	const (
		white = 0 // unvisited
		gray  = 1 // on the stack
		black = 2 // finished
	)
	color := make(map[string]int, len(a.names))
	var stack []string
	var cycles [][]string

	var visit func(name string)
	visit = func(name string) {
		color[name] = gray
		stack = append(stack, name)
		for _, next := range a.forward[name] {
			switch color[next] {
			case white:
				visit(next)
			case gray:
				for i, onStack := range stack {
					if onStack == next {
						cycle := append([]string(nil), stack[i:]...)
						cycles = append(cycles, append(cycle, next))
						break
					}
				}
			}
		}
		stack = stack[:len(stack)-1]
		color[name] = black
	}

	for _, name := range a.names {
		if color[name] == white {
			visit(name)
		}
	}
	return CycleReport{HasCircular: len(cycles) > 0, Cycles: cycles}
}

// Impact cross-references a tool's dependents with the static chains
// that dispatch it and condenses the affected set into a bounded score.
func (a *Analyzer) Impact(name string) (ImpactReport, error) {
	node, ok := a.nodes[name]
	if !ok {
		return ImpactReport{}, fmt.Errorf("unknown tool: %s", name)
	}

	deps := a.walk(name, a.forward)
	dependents := a.walk(name, a.reverse)

	var refs []ChainRef
	requiredRefs := 0
	for _, def := range a.chains {
		for i, step := range def.Steps {
			if step.Tool != name {
				continue
			}
			refs = append(refs, ChainRef{
				Chain:      def.Name,
				StepIndex:  i,
				TotalSteps: len(def.Steps),
				Required:   step.Required,
			})
			if step.Required {
				requiredRefs++
			}
		}
	}

	score := 15*len(dependents.Direct) + 5*len(dependents.Transitive) + 10*len(refs) + 5*requiredRefs
	if score > 100 {
		score = 100
	}

	return ImpactReport{
		Tool:           node.Name,
		Category:       node.Category,
		Effects:        node.Effects,
		Inputs:         node.Inputs,
		Outputs:        node.Outputs,
		Dependencies:   deps,
		Dependents:     dependents,
		AffectedChains: refs,
		ImpactScore:    score,
	}, nil
}
