package jobs

import (
	"encoding/json"
	"fmt"
	"maps"
	"strings"
	"time"
)

type Status int32

const (
	StatusPending Status = iota
	StatusRunning
	StatusCompleted
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "PENDING"
	case StatusRunning:
		return "RUNNING"
	case StatusCompleted:
		return "COMPLETED"
	case StatusFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

func (s Status) Terminal() bool { return s == StatusCompleted || s == StatusFailed }

func ParseStatus(raw string) (Status, error) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "PENDING":
		return StatusPending, nil
	case "RUNNING":
		return StatusRunning, nil
	case "COMPLETED":
		return StatusCompleted, nil
	case "FAILED":
		return StatusFailed, nil
	}
	return StatusPending, fmt.Errorf("unknown job status %q", raw)
}

func (s Status) MarshalJSON() ([]byte, error) { return json.Marshal(s.String()) }

func (s *Status) UnmarshalJSON(b []byte) error {
	var raw string
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	v, err := ParseStatus(raw)
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// Job is a point-in-time copy of a workflow run's record.
type Job struct {
	ID          string         `json:"jobId"`
	UserID      int64          `json:"userId"`
	ProjectID   int64          `json:"imageProjectId"`
	Prompt      string         `json:"originalPrompt"`
	Status      Status         `json:"status"`
	Message     string         `json:"message,omitempty"`
	Progress    int            `json:"progress"`
	Result      map[string]any `json:"result,omitempty"`
	Error       string         `json:"errorMessage,omitempty"`
	CreatedAt   time.Time      `json:"createdAt"`
	UpdatedAt   time.Time      `json:"updatedAt"`
	CompletedAt *time.Time     `json:"completedAt,omitempty"`
}

func (j Job) clone() Job {
	out := j
	out.Result = maps.Clone(j.Result)
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		out.CompletedAt = &t
	}
	return out
}
