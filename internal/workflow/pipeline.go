package workflow

import (
	"context"
	"fmt"
)

// StageError reports a Fatal stage result that aborted a run.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// StageOutput is one (stageName, output) pair produced by Run.
type StageOutput struct {
	Stage       string
	DisplayName string
	Index       int
	Kind        ResultKind
	Reason      string
	Output      map[string]any
}

// NodeInfo describes a compiled node without exposing its stage.
type NodeInfo struct {
	Name        string
	DisplayName string
	Index       int
}

// Pipeline is a compiled, ordered path of stages. It is immutable and safe
// to share between concurrent runs.
type Pipeline struct {
	nodes []compiledNode
}

func (p *Pipeline) Len() int { return len(p.nodes) }

func (p *Pipeline) Nodes() []NodeInfo {
	out := make([]NodeInfo, 0, len(p.nodes))
	for _, n := range p.nodes {
		out = append(out, NodeInfo{Name: n.Name, DisplayName: n.DisplayName, Index: n.Index})
	}
	return out
}

// Instrument returns a copy of p whose stages are wrapped with progress
// instrumentation.
func (p *Pipeline) Instrument(emitter Emitter, opts ...InstrumentOption) *Pipeline {
	total := len(p.nodes)
	wrapped := make([]compiledNode, len(p.nodes))
	for i, n := range p.nodes {
		n.Stage = Wrap(n.Name, n.DisplayName, n.Index, total, n.Stage, emitter, opts...)
		wrapped[i] = n
	}
	return &Pipeline{nodes: wrapped}
}

// Run executes every stage in compiled order against the context owned by h.
// Each stage sees a fresh snapshot; its delta is merged before the next stage
// starts. A Fatal result stops the run with a *StageError.
func (p *Pipeline) Run(ctx context.Context, h *Handle, sched Scheduler) ([]StageOutput, error) {
	if h == nil {
		return nil, fmt.Errorf("pipeline run: nil context handle")
	}
	if sched == nil {
		sched = NopScheduler
	}
	outputs := make([]StageOutput, 0, len(p.nodes))
	for _, n := range p.nodes {
		if err := ctx.Err(); err != nil {
			return outputs, err
		}
		in, ok := h.Snapshot()
		if !ok {
			return outputs, fmt.Errorf("pipeline run: context released before stage %s", n.Name)
		}
		res := n.Stage.Execute(ctx, in, sched)
		if res.Kind == ResultFatal {
			err := res.Err
			if err == nil {
				err = fmt.Errorf("fatal result without error")
			}
			return outputs, &StageError{Stage: n.Name, Err: err}
		}
		if !h.Apply(n.Name, res.Delta) {
			return outputs, fmt.Errorf("pipeline run: context released during stage %s", n.Name)
		}
		outputs = append(outputs, StageOutput{
			Stage:       n.Name,
			DisplayName: n.DisplayName,
			Index:       n.Index,
			Kind:        res.Kind,
			Reason:      res.Reason,
			Output:      res.Delta.Output,
		})
	}
	return outputs, nil
}
