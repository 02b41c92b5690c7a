package workflow

import (
	"maps"
	"slices"
	"sync"
)

// ImageResource is an image produced or collected by a stage.
type ImageResource struct {
	URL         string `json:"url"`
	Description string `json:"description,omitempty"`
	Category    string `json:"category,omitempty"`
}

// 3D artifact lifecycle as recorded on the context.
const (
	ThreeDSubmitted   = "SUBMITTED"
	ThreeDReady       = "READY"
	ThreeDPlaceholder = "PLACEHOLDER"
)

// ExecutionContext is the state threaded through one job's stages. Stages
// never hold a pointer to the live value: they read a snapshot and return a
// Delta, and the Handle owning the live value applies it.
type ExecutionContext struct {
	JobID             string
	ProjectID         int64
	UserID            int64
	OriginalPrompt    string
	EnhancedPrompt    string
	Keywords          []string
	ReferenceImages   []ImageResource
	AIImage           *ImageResource
	ProductionProcess string
	ThreeDModelURL    string
	ModelPreviewURL   string
	ThreeDStatus      string
	CurrentStep       string
	StageResults      map[string]any
	Extensions        map[string]any
}

func NewExecutionContext(jobID string, projectID, userID int64, prompt string) *ExecutionContext {
	return &ExecutionContext{
		JobID:          jobID,
		ProjectID:      projectID,
		UserID:         userID,
		OriginalPrompt: prompt,
		StageResults:   map[string]any{},
		Extensions:     map[string]any{},
	}
}

// PrimaryKeyword returns the first extracted keyword, or "".
func (c ExecutionContext) PrimaryKeyword() string {
	if len(c.Keywords) == 0 {
		return ""
	}
	return c.Keywords[0]
}

// EffectivePrompt prefers the enhanced prompt and falls back to the original.
func (c ExecutionContext) EffectivePrompt() string {
	if c.EnhancedPrompt != "" {
		return c.EnhancedPrompt
	}
	return c.OriginalPrompt
}

func (c *ExecutionContext) clone() ExecutionContext {
	out := *c
	out.Keywords = slices.Clone(c.Keywords)
	out.ReferenceImages = slices.Clone(c.ReferenceImages)
	if c.AIImage != nil {
		img := *c.AIImage
		out.AIImage = &img
	}
	out.StageResults = maps.Clone(c.StageResults)
	out.Extensions = maps.Clone(c.Extensions)
	if out.StageResults == nil {
		out.StageResults = map[string]any{}
	}
	if out.Extensions == nil {
		out.Extensions = map[string]any{}
	}
	return out
}

// Delta is the set of context changes a stage returns. Nil pointers and nil
// slices leave the corresponding field untouched.
type Delta struct {
	EnhancedPrompt    *string
	Keywords          []string
	ReferenceImages   []ImageResource
	AIImage           *ImageResource
	ProductionProcess *string
	ThreeDModelURL    *string
	ModelPreviewURL   *string
	ThreeDStatus      *string
	CurrentStep       string
	// Output is the stage's result payload, recorded under its name and
	// published in NODE_COMPLETED.
	Output     map[string]any
	Extensions map[string]any
}

// Str is a helper for populating optional Delta fields.
func Str(s string) *string { return &s }

func (c *ExecutionContext) apply(d Delta) {
	if d.EnhancedPrompt != nil {
		c.EnhancedPrompt = *d.EnhancedPrompt
	}
	if d.Keywords != nil {
		c.Keywords = slices.Clone(d.Keywords)
	}
	if d.ReferenceImages != nil {
		c.ReferenceImages = slices.Clone(d.ReferenceImages)
	}
	if d.AIImage != nil {
		img := *d.AIImage
		c.AIImage = &img
	}
	if d.ProductionProcess != nil {
		c.ProductionProcess = *d.ProductionProcess
	}
	if d.ThreeDModelURL != nil {
		c.ThreeDModelURL = *d.ThreeDModelURL
	}
	if d.ModelPreviewURL != nil {
		c.ModelPreviewURL = *d.ModelPreviewURL
	}
	if d.ThreeDStatus != nil {
		c.ThreeDStatus = *d.ThreeDStatus
	}
	if d.CurrentStep != "" {
		c.CurrentStep = d.CurrentStep
	}
	if c.Extensions == nil {
		c.Extensions = map[string]any{}
	}
	for k, v := range d.Extensions {
		c.Extensions[k] = v
	}
}

/*
Handle is the owned reference cell for one job's live ExecutionContext.

The Supervisor creates it, the Pipeline reads snapshots from and applies deltas
to it, and a deferred completion receives it explicitly. Once Release is
called the context is detached: later Update calls report false and the
caller must route its result elsewhere (the job registry).
*/
type Handle struct {
	mu  sync.Mutex
	ctx *ExecutionContext
}

func NewHandle(ec *ExecutionContext) *Handle {
	return &Handle{ctx: ec}
}

// Snapshot returns a deep copy of the live context. ok is false after Release.
func (h *Handle) Snapshot() (ExecutionContext, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.ctx == nil {
		return ExecutionContext{}, false
	}
	return h.ctx.clone(), true
}

// Apply merges d into the live context and records d.Output under stage.
func (h *Handle) Apply(stage string, d Delta) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.ctx == nil {
		return false
	}
	h.ctx.apply(d)
	if stage != "" && d.Output != nil {
		if h.ctx.StageResults == nil {
			h.ctx.StageResults = map[string]any{}
		}
		h.ctx.StageResults[stage] = maps.Clone(d.Output)
	}
	return true
}

// Update runs fn against the live context under the handle's lock.
func (h *Handle) Update(fn func(*ExecutionContext)) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.ctx == nil {
		return false
	}
	fn(h.ctx)
	return true
}

// Release detaches the live context and returns its final state.
func (h *Handle) Release() (ExecutionContext, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.ctx == nil {
		return ExecutionContext{}, false
	}
	final := h.ctx.clone()
	h.ctx = nil
	return final, true
}

func (h *Handle) Released() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.ctx == nil
}
