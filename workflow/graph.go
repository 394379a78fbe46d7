package workflow

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// End is the routing sentinel that terminates a run.
const End = "__end__"

// StageFunc runs one stage. It mutates state in place and must set
// state.NextAction before returning nil.
type StageFunc func(ctx context.Context, state *State) error

// Graph is a builder for a directed graph of named stages. Edges are either
// unconditional (always go to one stage) or conditional (route by
// state.NextAction). Cycles are allowed.
type Graph struct {
	entry       string
	stages      map[string]StageFunc
	order       []string
	edges       map[string]string
	conditional map[string]map[string]string
	errs        []error
}

// NewGraph creates a graph that starts at entry.
func NewGraph(entry string) *Graph {
	return &Graph{
		entry:       entry,
		stages:      make(map[string]StageFunc),
		edges:       make(map[string]string),
		conditional: make(map[string]map[string]string),
	}
}

// AddStage registers a stage.
func (g *Graph) AddStage(name string, fn StageFunc) *Graph {
	switch {
	case name == "" || name == End:
		g.errs = append(g.errs, fmt.Errorf("invalid stage name %q", name))
	case fn == nil:
		g.errs = append(g.errs, fmt.Errorf("stage %q has nil function", name))
	case g.stages[name] != nil:
		g.errs = append(g.errs, fmt.Errorf("duplicate stage name %q", name))
	default:
		g.stages[name] = fn
		g.order = append(g.order, name)
	}
	return g
}

// AddEdge makes from always proceed to to, regardless of NextAction.
func (g *Graph) AddEdge(from, to string) *Graph {
	if _, ok := g.edges[from]; ok {
		g.errs = append(g.errs, fmt.Errorf("stage %q already has an edge", from))
		return g
	}
	g.edges[from] = to
	return g
}

// AddConditionalEdges routes from by looking up NextAction in routes.
func (g *Graph) AddConditionalEdges(from string, routes map[string]string) *Graph {
	if _, ok := g.conditional[from]; ok {
		g.errs = append(g.errs, fmt.Errorf("stage %q already has conditional edges", from))
		return g
	}
	copied := make(map[string]string, len(routes))
	for k, v := range routes {
		copied[k] = v
	}
	g.conditional[from] = copied
	return g
}

// Compile validates the graph and returns an Engine for it.
func (g *Graph) Compile(opts ...EngineOption) (*Engine, error) {
	if err := g.validate(); err != nil {
		return nil, err
	}

	e := newEngine(g, opts...)
	if cycles := g.cycles(); len(cycles) > 0 {
		for _, c := range cycles {
			e.logger.Debug("Workflow graph contains a cycle", "cycle", c)
		}
	}
	return e, nil
}

func (g *Graph) validate() error {
	errs := append([]error(nil), g.errs...)

	if _, ok := g.stages[g.entry]; !ok {
		errs = append(errs, fmt.Errorf("entry stage %q is not registered", g.entry))
	}

	for _, name := range g.order {
		_, hasEdge := g.edges[name]
		_, hasCond := g.conditional[name]
		switch {
		case hasEdge && hasCond:
			errs = append(errs, fmt.Errorf("stage %q has both an edge and conditional edges", name))
		case !hasEdge && !hasCond:
			errs = append(errs, fmt.Errorf("%w: %s", ErrNoEdge, name))
		}
	}

	for from, to := range g.edges {
		if _, ok := g.stages[from]; !ok {
			errs = append(errs, fmt.Errorf("edge from unknown stage %q", from))
		}
		if !g.known(to) {
			errs = append(errs, fmt.Errorf("edge %s -> %s targets unknown stage", from, to))
		}
	}
	for from, routes := range g.conditional {
		if _, ok := g.stages[from]; !ok {
			errs = append(errs, fmt.Errorf("conditional edges from unknown stage %q", from))
		}
		if len(routes) == 0 {
			errs = append(errs, fmt.Errorf("stage %q has an empty route map", from))
		}
		for action, to := range routes {
			if !g.known(to) {
				errs = append(errs, fmt.Errorf("route %s[%s] -> %s targets unknown stage", from, action, to))
			}
		}
	}

	if _, ok := g.stages[g.entry]; ok {
		seen := g.reachable()
		for _, name := range g.order {
			if !seen[name] {
				errs = append(errs, fmt.Errorf("stage %q is unreachable from %q", name, g.entry))
			}
		}
	}

	return errors.Join(errs...)
}

// reachable returns every stage reachable from the entry.
func (g *Graph) reachable() map[string]bool {
	seen := map[string]bool{g.entry: true}
	queue := []string{g.entry}
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		for _, next := range g.successors(node) {
			if next == End || seen[next] {
				continue
			}
			seen[next] = true
			queue = append(queue, next)
		}
	}
	return seen
}

func (g *Graph) known(name string) bool {
	if name == End {
		return true
	}
	_, ok := g.stages[name]
	return ok
}

func (g *Graph) successors(name string) []string {
	if to, ok := g.edges[name]; ok {
		return []string{to}
	}
	var out []string
	for _, to := range g.conditional[name] {
		out = append(out, to)
	}
	sort.Strings(out)
	return out
}

// cycles returns each back edge found by DFS from the entry, rendered as
// "a -> b -> a".
func (g *Graph) cycles() []string {
	var (
		found   []string
		visited = make(map[string]bool)
		onStack = make(map[string]bool)
		path    []string
		dfs     func(string)
	)
	dfs = func(node string) {
		visited[node] = true
		onStack[node] = true
		path = append(path, node)
		for _, next := range g.successors(node) {
			if next == End {
				continue
			}
			if onStack[next] {
				start := 0
				for i, p := range path {
					if p == next {
						start = i
						break
					}
				}
				cycle := append(append([]string(nil), path[start:]...), next)
				found = append(found, strings.Join(cycle, " -> "))
				continue
			}
			if !visited[next] {
				dfs(next)
			}
		}
		path = path[:len(path)-1]
		onStack[node] = false
	}
	dfs(g.entry)
	return found
}
