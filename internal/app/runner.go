package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	types "github.com/yungbote/craftflow-backend/internal/domain"
	"github.com/yungbote/craftflow-backend/internal/jobs"
	"github.com/yungbote/craftflow-backend/internal/platform/dbctx"
	"github.com/yungbote/craftflow-backend/internal/workflow"
)

// EventWriter writes progress events as JSON lines and reports the first
// terminal event it sees.
type EventWriter struct {
	mu       sync.Mutex
	enc      *json.Encoder
	terminal chan workflow.ProgressEvent
}

func NewEventWriter(w io.Writer) *EventWriter {
	return &EventWriter{enc: json.NewEncoder(w), terminal: make(chan workflow.ProgressEvent, 1)}
}

func (e *EventWriter) Emit(_ context.Context, ev workflow.ProgressEvent) {
	e.mu.Lock()
	_ = e.enc.Encode(ev)
	e.mu.Unlock()
	if ev.IsTerminal() {
		select {
		case e.terminal <- ev:
		default:
		}
	}
}

func (e *EventWriter) Terminal() <-chan workflow.ProgressEvent { return e.terminal }

type RunRequest struct {
	UserID    int64
	ProjectID int64
	Prompt    string
	// Turns seed the project's conversation as "role: content" lines.
	Turns        []string
	WaitDeferred bool
}

// RunOnce executes a single workflow in-process. A zero ProjectID creates a
// new project for the user.
func (a *App) RunOnce(ctx context.Context, req RunRequest, events *EventWriter) (jobs.Job, error) {
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" || req.UserID < 1 {
		return jobs.Job{}, errors.New("user id and prompt are required")
	}
	dbc := dbctx.Of(ctx)
	projectID := req.ProjectID
	if projectID == 0 {
		p, err := a.Repos.ImageProject.Create(dbc, &types.ImageProject{UserID: req.UserID, Title: projectTitle(prompt), Prompt: prompt})
		if err != nil {
			return jobs.Job{}, err
		}
		projectID = p.ID
	} else if _, err := a.Repos.ImageProject.GetOwned(dbc, projectID, req.UserID); err != nil {
		return jobs.Job{}, fmt.Errorf("project %d: %w", projectID, err)
	}

	if turns := parseTurns(projectID, req.UserID, req.Turns); len(turns) > 0 {
		if err := a.Repos.ChatTurn.Append(dbc, turns...); err != nil {
			return jobs.Job{}, err
		}
	}
	if err := a.Repos.ImageProject.MarkProcessing(dbc, projectID, prompt); err != nil {
		return jobs.Job{}, err
	}

	sub, err := a.Supervisor.Submit(ctx, req.UserID, projectID, prompt)
	if err != nil {
		return jobs.Job{}, err
	}
	select {
	case <-events.Terminal():
	case <-ctx.Done():
		return jobs.Job{}, ctx.Err()
	}
	if req.WaitDeferred {
		if err := a.waitDeferred(ctx); err != nil {
			return jobs.Job{}, err
		}
	}
	return a.Registry.Get(ctx, sub.JobID)
}

func (a *App) waitDeferred(ctx context.Context) error {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	for a.Supervisor.Pending() > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}

func parseTurns(projectID, userID int64, raw []string) []*types.ChatTurn {
	out := make([]*types.ChatTurn, 0, len(raw))
	now := time.Now()
	for i, line := range raw {
		role, content, ok := strings.Cut(line, ":")
		if !ok {
			role, content = "user", line
		}
		role, content = strings.ToLower(strings.TrimSpace(role)), strings.TrimSpace(content)
		if content == "" {
			continue
		}
		out = append(out, &types.ChatTurn{
			ProjectID: projectID,
			UserID:    userID,
			Role:      role,
			Content:   content,
			// Distinct timestamps keep the seeded order stable.
			CreatedAt: now.Add(time.Duration(i) * time.Millisecond),
		})
	}
	return out
}

func projectTitle(prompt string) string {
	const maxTitle = 60
	r := []rune(prompt)
	if len(r) <= maxTitle {
		return prompt
	}
	return string(r[:maxTitle]) + "..."
}
