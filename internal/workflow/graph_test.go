package workflow

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okStage() Stage {
	return StageFunc(func(context.Context, ExecutionContext, Scheduler) Result { return Ok(Delta{}) })
}

func nodes(names ...string) []Node {
	out := make([]Node, 0, len(names))
	for _, n := range names {
		out = append(out, Node{Name: n, Stage: okStage()})
	}
	return out
}

func TestCompileLinearPath(t *testing.T) {
	p, err := Compile(nodes("a", "b", "c"), []Edge{
		{From: "b", To: "c"},
		{From: Start, To: "a"},
		{From: "c", To: End},
		{From: "a", To: "b"},
	})
	require.NoError(t, err)

	got := p.Nodes()
	require.Len(t, got, 3)
	assert.Equal(t, "a", got[0].Name)
	assert.Equal(t, 1, got[0].Index)
	assert.Equal(t, "c", got[2].Name)
	assert.Equal(t, 3, got[2].Index)
	assert.Equal(t, "b", got[1].DisplayName, "display name defaults to the node name")
}

func TestCompileRejectsInvalidGraphs(t *testing.T) {
	cases := []struct {
		name  string
		nodes []Node
		edges []Edge
	}{
		{"unknown edge target", nodes("a"), []Edge{{Start, "a"}, {"a", "ghost"}, {"a", End}}},
		{"missing start", nodes("a"), []Edge{{"a", End}}},
		{"two starts", nodes("a", "b"), []Edge{{Start, "a"}, {Start, "b"}, {"a", End}, {"b", End}}},
		{"branch", nodes("a", "b", "c"), []Edge{{Start, "a"}, {"a", "b"}, {"a", "c"}, {"b", End}}},
		{"detached ring", nodes("a", "b", "c"), []Edge{{Start, "a"}, {"a", End}, {"b", "c"}, {"c", "b"}}},
		{"duplicate name", nodes("a", "a"), []Edge{{Start, "a"}, {"a", End}}},
		{"reserved name", nodes(Start), []Edge{{Start, End}}},
		{"backwards edge", nodes("a"), []Edge{{Start, "a"}, {"a", End}, {End, "a"}}},
		{"no nodes", nil, []Edge{{Start, End}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Compile(tc.nodes, tc.edges)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrGraphDefinition), "want ErrGraphDefinition, got %v", err)
			var gde *GraphDefinitionError
			assert.ErrorAs(t, err, &gde)
		})
	}
}

func TestCompileRejectsUnboundStage(t *testing.T) {
	_, err := Compile([]Node{{Name: "a"}}, []Edge{{Start, "a"}, {"a", End}})
	assert.ErrorIs(t, err, ErrGraphDefinition)
}

func TestDefinitionFromYAML(t *testing.T) {
	raw := []byte(`
nodes:
  - name: first
    display_name: First step
  - name: second
edges:
  - {from: __start__, to: first}
  - {from: first, to: second}
  - {from: second, to: __end__}
`)
	def, err := ParseDefinition(raw)
	require.NoError(t, err)

	p, err := def.Compile(map[string]Stage{"first": okStage(), "second": okStage()})
	require.NoError(t, err)
	require.Equal(t, 2, p.Len())
	assert.Equal(t, "First step", p.Nodes()[0].DisplayName)

	_, err = def.Compile(map[string]Stage{"first": okStage()})
	assert.ErrorIs(t, err, ErrGraphDefinition)
}

func TestDefaultDefinitionCompiles(t *testing.T) {
	stages := map[string]Stage{}
	for _, n := range DefaultDefinition().Nodes {
		stages[n.Name] = okStage()
	}
	p, err := DefaultDefinition().Compile(stages)
	require.NoError(t, err)

	var names []string
	for _, n := range p.Nodes() {
		names = append(names, n.Name)
	}
	assert.Equal(t, []string{
		StagePromptEnhancer, StageImageCollector, StageImageMaker, StageProductionProcess, StageModelMaker,
	}, names)
}
