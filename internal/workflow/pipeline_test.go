package workflow

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingEmitter struct {
	mu     sync.Mutex
	events []ProgressEvent
}

func (r *recordingEmitter) Emit(_ context.Context, ev ProgressEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recordingEmitter) snapshot() []ProgressEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]ProgressEvent(nil), r.events...)
}

func linear(t *testing.T, stages map[string]Stage, order ...string) *Pipeline {
	t.Helper()
	defs := make([]NodeDef, 0, len(order))
	for _, n := range order {
		defs = append(defs, NodeDef{Name: n, DisplayName: "Display " + n})
	}
	p, err := Linear(defs...).Compile(stages)
	require.NoError(t, err)
	return p
}

func TestRunEmitsStartCompletePairsInOrder(t *testing.T) {
	var seen []string
	mk := func(name string) Stage {
		return StageFunc(func(_ context.Context, in ExecutionContext, _ Scheduler) Result {
			seen = append(seen, name)
			return Ok(Delta{Output: map[string]any{"stage": name}})
		})
	}
	rec := &recordingEmitter{}
	p := linear(t, map[string]Stage{"a": mk("a"), "b": mk("b"), "c": mk("c")}, "a", "b", "c").Instrument(rec)

	h := NewHandle(NewExecutionContext("job-1", 42, 0, "prompt"))
	outs, err := p.Run(context.Background(), h, nil)
	require.NoError(t, err)
	require.Len(t, outs, 3)
	assert.Equal(t, []string{"a", "b", "c"}, seen)

	events := rec.snapshot()
	require.Len(t, events, 6)
	started := map[string]int{}
	for i, name := range []string{"a", "b", "c"} {
		s, c := events[2*i], events[2*i+1]
		assert.Equal(t, EventNodeStarted, s.EventType)
		assert.Equal(t, EventNodeCompleted, c.EventType)
		assert.Equal(t, name, s.CurrentNode)
		assert.Equal(t, name, c.CurrentNode)
		assert.Equal(t, i+1, s.CurrentNodeIndex)
		assert.Equal(t, 3, s.TotalNodes)
		assert.Equal(t, i*100/3, s.Progress)
		assert.Equal(t, (i+1)*100/3, c.Progress)
		assert.Equal(t, "job-1", c.JobID)
		assert.Equal(t, int64(42), c.ImageProjectID)
		started[name]++
	}
	for name, n := range started {
		assert.Equal(t, 1, n, "stage %s started more than once", name)
	}
	assert.Equal(t, 100, events[5].Progress)

	final, ok := h.Snapshot()
	require.True(t, ok)
	assert.Equal(t, map[string]any{"stage": "b"}, final.StageResults["b"])
}

func TestRunMergesDeltasBetweenStages(t *testing.T) {
	first := StageFunc(func(_ context.Context, in ExecutionContext, _ Scheduler) Result {
		return Ok(Delta{EnhancedPrompt: Str(in.OriginalPrompt + " (enhanced)"), Keywords: []string{"tea"}})
	})
	var observed ExecutionContext
	second := StageFunc(func(_ context.Context, in ExecutionContext, _ Scheduler) Result {
		observed = in
		in.Keywords[0] = "mutated-local-copy"
		return Ok(Delta{})
	})
	p := linear(t, map[string]Stage{"first": first, "second": second}, "first", "second")

	h := NewHandle(NewExecutionContext("job-2", 1, 0, "teacup"))
	_, err := p.Run(context.Background(), h, nil)
	require.NoError(t, err)

	assert.Equal(t, "teacup (enhanced)", observed.EnhancedPrompt)
	final, _ := h.Snapshot()
	assert.Equal(t, []string{"tea"}, final.Keywords, "stages only see snapshots")
}

func TestRunDegradedIsSuccessWithAnnotation(t *testing.T) {
	deg := StageFunc(func(context.Context, ExecutionContext, Scheduler) Result {
		return Degraded(Delta{ProductionProcess: Str("template"), Output: map[string]any{"productionProcess": "template"}}, "analyzer down")
	})
	rec := &recordingEmitter{}
	p := linear(t, map[string]Stage{"only": deg}, "only").Instrument(rec)

	h := NewHandle(NewExecutionContext("job-3", 1, 0, "x"))
	outs, err := p.Run(context.Background(), h, nil)
	require.NoError(t, err)
	require.Len(t, outs, 1)
	assert.Equal(t, ResultDegraded, outs[0].Kind)

	events := rec.snapshot()
	require.Len(t, events, 2)
	completed := events[1]
	assert.Equal(t, EventNodeCompleted, completed.EventType)
	payload, ok := completed.NodeResult.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, true, payload["degraded"])
	assert.Equal(t, "analyzer down", payload["reason"])
	assert.Contains(t, completed.Message, "fallback")
}

func TestRunStopsOnFatal(t *testing.T) {
	boom := errors.New("registry unavailable")
	var laterRan bool
	stages := map[string]Stage{
		"ok": okStage(),
		"bad": StageFunc(func(context.Context, ExecutionContext, Scheduler) Result {
			return Fatal(boom)
		}),
		"later": StageFunc(func(context.Context, ExecutionContext, Scheduler) Result {
			laterRan = true
			return Ok(Delta{})
		}),
	}
	rec := &recordingEmitter{}
	p := linear(t, stages, "ok", "bad", "later").Instrument(rec)

	_, err := p.Run(context.Background(), NewHandle(NewExecutionContext("job-4", 1, 0, "x")), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	var se *StageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "bad", se.Stage)
	assert.False(t, laterRan)

	events := rec.snapshot()
	require.Len(t, events, 4)
	assert.Equal(t, EventNodeFailed, events[3].EventType)
	assert.Equal(t, "registry unavailable", events[3].ErrorMessage)
}

func TestInstrumentationRepanics(t *testing.T) {
	rec := &recordingEmitter{}
	var outcomes []string
	st := Wrap("p", "Panicky", 1, 1, StageFunc(func(context.Context, ExecutionContext, Scheduler) Result {
		panic("kaboom")
	}), rec, WithStageObserver(func(_ string, outcome string, _ time.Duration) {
		outcomes = append(outcomes, outcome)
	}))

	assert.PanicsWithValue(t, "kaboom", func() {
		st.Execute(context.Background(), ExecutionContext{JobID: "job-5"}, NopScheduler)
	})
	events := rec.snapshot()
	require.Len(t, events, 2)
	assert.Equal(t, EventNodeFailed, events[1].EventType)
	assert.Equal(t, []string{"panic"}, outcomes)
}

func TestRunHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	stages := map[string]Stage{
		"a": StageFunc(func(context.Context, ExecutionContext, Scheduler) Result {
			cancel()
			return Ok(Delta{})
		}),
		"b": okStage(),
	}
	outs, err := linear(t, stages, "a", "b").Run(ctx, NewHandle(NewExecutionContext("job-6", 1, 0, "x")), nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, outs, 1)
}
