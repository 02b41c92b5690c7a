package workflow

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Stage names of the creative-brief pipeline.
const (
	StagePromptEnhancer    = "prompt_enhancer"
	StageImageCollector    = "image_collector"
	StageImageMaker        = "image_maker"
	StageProductionProcess = "production_process"
	StageModelMaker        = "model_maker"
)

// Definition is the declarative shape of a pipeline, loadable from YAML:
//
//	nodes:
//	  - name: prompt_enhancer
//	    display_name: Prompt enhancement
//	edges:
//	  - {from: __start__, to: prompt_enhancer}
type Definition struct {
	Nodes []NodeDef `yaml:"nodes"`
	Edges []EdgeDef `yaml:"edges"`
}

type NodeDef struct {
	Name        string `yaml:"name"`
	DisplayName string `yaml:"display_name"`
}

type EdgeDef struct {
	From string `yaml:"from"`
	To   string `yaml:"to"`
}

func DefaultDefinition() Definition {
	nodes := []NodeDef{
		{Name: StagePromptEnhancer, DisplayName: "Prompt enhancement"},
		{Name: StageImageCollector, DisplayName: "Image collection"},
		{Name: StageImageMaker, DisplayName: "Image generation"},
		{Name: StageProductionProcess, DisplayName: "Production process"},
		{Name: StageModelMaker, DisplayName: "3D modeling"},
	}
	return Linear(nodes...)
}

// Linear builds a definition chaining nodes in the given order.
func Linear(nodes ...NodeDef) Definition {
	def := Definition{Nodes: nodes}
	prev := Start
	for _, n := range nodes {
		def.Edges = append(def.Edges, EdgeDef{From: prev, To: n.Name})
		prev = n.Name
	}
	def.Edges = append(def.Edges, EdgeDef{From: prev, To: End})
	return def
}

func ParseDefinition(raw []byte) (Definition, error) {
	var def Definition
	if err := yaml.Unmarshal(raw, &def); err != nil {
		return Definition{}, &GraphDefinitionError{Reason: "parse yaml: " + err.Error()}
	}
	return def, nil
}

func LoadDefinition(path string) (Definition, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Definition{}, fmt.Errorf("read pipeline definition %s: %w", path, err)
	}
	return ParseDefinition(raw)
}

// Compile binds each declared node to the stage registered under its name
// and compiles the graph.
func (d Definition) Compile(stages map[string]Stage) (*Pipeline, error) {
	nodes := make([]Node, 0, len(d.Nodes))
	for _, n := range d.Nodes {
		st, ok := stages[n.Name]
		if !ok {
			return nil, graphErr("no stage registered for node %q", n.Name)
		}
		nodes = append(nodes, Node{Name: n.Name, DisplayName: n.DisplayName, Stage: st})
	}
	edges := make([]Edge, 0, len(d.Edges))
	for _, e := range d.Edges {
		edges = append(edges, Edge{From: e.From, To: e.To})
	}
	return Compile(nodes, edges)
}
