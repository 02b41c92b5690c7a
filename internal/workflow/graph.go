package workflow

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel node names marking the entry and exit of a graph.
const (
	Start = "__start__"
	End   = "__end__"
)

var ErrGraphDefinition = errors.New("invalid graph definition")

type GraphDefinitionError struct {
	Reason string
}

func (e *GraphDefinitionError) Error() string {
	return "graph definition: " + e.Reason
}

func (e *GraphDefinitionError) Unwrap() error { return ErrGraphDefinition }

func graphErr(format string, args ...any) error {
	return &GraphDefinitionError{Reason: fmt.Sprintf(format, args...)}
}

type Node struct {
	Name        string
	DisplayName string
	Stage       Stage
}

type Edge struct {
	From string
	To   string
}

// compiledNode is a node placed on the execution path, 1-based index.
type compiledNode struct {
	Node
	Index int
}

// Compile validates nodes and edges and returns a Pipeline that visits the
// nodes along the single path from Start to End.
func Compile(nodes []Node, edges []Edge) (*Pipeline, error) {
	if len(nodes) == 0 {
		return nil, graphErr("no nodes declared")
	}
	byName := make(map[string]Node, len(nodes))
	for _, n := range nodes {
		name := strings.TrimSpace(n.Name)
		if name == "" {
			return nil, graphErr("node missing name")
		}
		if name == Start || name == End {
			return nil, graphErr("node name %q is reserved", name)
		}
		if _, dup := byName[name]; dup {
			return nil, graphErr("duplicate node name %q", name)
		}
		if n.Stage == nil {
			return nil, graphErr("node %q has no stage bound", name)
		}
		if strings.TrimSpace(n.DisplayName) == "" {
			n.DisplayName = name
		}
		n.Name = name
		byName[name] = n
	}

	out := map[string][]string{}
	in := map[string][]string{}
	for _, e := range edges {
		from, to := strings.TrimSpace(e.From), strings.TrimSpace(e.To)
		if from == End || to == Start {
			return nil, graphErr("edge %s -> %s runs against the graph direction", from, to)
		}
		if from != Start {
			if _, ok := byName[from]; !ok {
				return nil, graphErr("edge references unknown node %q", from)
			}
		}
		if to != End {
			if _, ok := byName[to]; !ok {
				return nil, graphErr("edge references unknown node %q", to)
			}
		}
		out[from] = append(out[from], to)
		in[to] = append(in[to], from)
	}

	if len(out[Start]) != 1 {
		return nil, graphErr("expected exactly one edge from start, got %d", len(out[Start]))
	}
	if len(in[End]) != 1 {
		return nil, graphErr("expected exactly one edge into end, got %d", len(in[End]))
	}
	for _, n := range nodes {
		name := strings.TrimSpace(n.Name)
		if len(in[name]) != 1 || len(out[name]) != 1 {
			return nil, graphErr("node %q must have exactly one inbound and one outbound edge (in=%d out=%d)",
				name, len(in[name]), len(out[name]))
		}
	}

	order, err := topoOrder(nodes, out)
	if err != nil {
		return nil, err
	}

	// Walk the path from Start; with degree 1 everywhere this visits every
	// node exactly once unless part of the graph is a detached ring, which
	// the Kahn pass above has already rejected.
	path := make([]compiledNode, 0, len(nodes))
	cur := out[Start][0]
	for cur != End {
		path = append(path, compiledNode{Node: byName[cur], Index: len(path) + 1})
		if len(path) > len(nodes) {
			return nil, graphErr("path does not terminate")
		}
		cur = out[cur][0]
	}
	if len(path) != len(nodes) || len(order) != len(nodes) {
		return nil, graphErr("%d of %d nodes are unreachable from start", len(nodes)-len(path), len(nodes))
	}
	return &Pipeline{nodes: path}, nil
}

// topoOrder is a Kahn topological sort over the declared nodes, stable by
// declaration order. Sentinels are excluded.
func topoOrder(nodes []Node, out map[string][]string) ([]string, error) {
	deg := map[string]int{}
	for _, n := range nodes {
		deg[strings.TrimSpace(n.Name)] = 0
	}
	for from, tos := range out {
		if from == Start {
			continue
		}
		for _, to := range tos {
			if to != End {
				deg[to]++
			}
		}
	}

	order := make([]string, 0, len(nodes))
	added := map[string]bool{}
	for {
		progressed := false
		for _, n := range nodes {
			name := strings.TrimSpace(n.Name)
			if added[name] || deg[name] != 0 {
				continue
			}
			added[name] = true
			order = append(order, name)
			for _, to := range out[name] {
				if to != End {
					deg[to]--
				}
			}
			progressed = true
		}
		if !progressed {
			break
		}
	}
	if len(order) != len(nodes) {
		return nil, graphErr("cycle detected in stage graph")
	}
	return order, nil
}
