package workflow

import "time"

type EventType string

const (
	EventWorkflowStarted   EventType = "WORKFLOW_STARTED"
	EventNodeStarted       EventType = "NODE_STARTED"
	EventNodeCompleted     EventType = "NODE_COMPLETED"
	EventNodeFailed        EventType = "NODE_FAILED"
	EventWorkflowCompleted EventType = "WORKFLOW_COMPLETED"
	EventWorkflowFailed    EventType = "WORKFLOW_FAILED"
	// EventArtifactReady is published by a deferred completion after the run
	// has already finished. It is informational and never terminal.
	EventArtifactReady EventType = "ARTIFACT_READY"
)

type NodeStatus string

const (
	NodePending   NodeStatus = "PENDING"
	NodeRunning   NodeStatus = "RUNNING"
	NodeCompleted NodeStatus = "COMPLETED"
	NodeFailed    NodeStatus = "FAILED"
	NodeSkipped   NodeStatus = "SKIPPED"
)

// ProgressEvent is an immutable notification of a transition in a job's run.
// Field names are the wire contract consumed by browser clients.
type ProgressEvent struct {
	EventType        EventType  `json:"eventType"`
	JobID            string     `json:"jobId,omitempty"`
	ImageProjectID   int64      `json:"imageProjectId,omitempty"`
	CurrentNode      string     `json:"currentNode,omitempty"`
	NodeDisplayName  string     `json:"nodeDisplayName,omitempty"`
	Status           NodeStatus `json:"status"`
	Progress         int        `json:"progress"`
	Message          string     `json:"message,omitempty"`
	NodeResult       any        `json:"nodeResult,omitempty"`
	ErrorMessage     string     `json:"errorMessage,omitempty"`
	Timestamp        time.Time  `json:"timestamp"`
	TotalNodes       int        `json:"totalNodes,omitempty"`
	CurrentNodeIndex int        `json:"currentNodeIndex,omitempty"`
}

func (e ProgressEvent) IsTerminal() bool {
	return e.EventType == EventWorkflowCompleted || e.EventType == EventWorkflowFailed
}

// StageProgress returns the percentage reached after completed of total
// stages, clamped to [0,100].
func StageProgress(completed, total int) int {
	if total <= 0 || completed <= 0 {
		return 0
	}
	if completed >= total {
		return 100
	}
	return completed * 100 / total
}

func ConnectionEstablished(jobID string, projectID int64) ProgressEvent {
	return ProgressEvent{
		EventType:      EventWorkflowStarted,
		JobID:          jobID,
		ImageProjectID: projectID,
		Status:         NodePending,
		Progress:       0,
		Message:        "connection established, waiting for workflow",
		Timestamp:      time.Now(),
	}
}

func WorkflowStarted(jobID string, projectID int64, total int) ProgressEvent {
	return ProgressEvent{
		EventType:      EventWorkflowStarted,
		JobID:          jobID,
		ImageProjectID: projectID,
		Status:         NodeRunning,
		Progress:       0,
		Message:        "workflow started",
		Timestamp:      time.Now(),
		TotalNodes:     total,
	}
}

func NodeStarted(jobID string, projectID int64, node, display string, index, total int) ProgressEvent {
	return ProgressEvent{
		EventType:        EventNodeStarted,
		JobID:            jobID,
		ImageProjectID:   projectID,
		CurrentNode:      node,
		NodeDisplayName:  display,
		Status:           NodeRunning,
		Progress:         StageProgress(index-1, total),
		Message:          "started: " + display,
		Timestamp:        time.Now(),
		TotalNodes:       total,
		CurrentNodeIndex: index,
	}
}

func NodeCompletedEvent(jobID string, projectID int64, node, display string, result any, index, total int) ProgressEvent {
	return ProgressEvent{
		EventType:        EventNodeCompleted,
		JobID:            jobID,
		ImageProjectID:   projectID,
		CurrentNode:      node,
		NodeDisplayName:  display,
		Status:           NodeCompleted,
		Progress:         StageProgress(index, total),
		Message:          "completed: " + display,
		NodeResult:       result,
		Timestamp:        time.Now(),
		TotalNodes:       total,
		CurrentNodeIndex: index,
	}
}

func NodeFailedEvent(jobID string, projectID int64, node, display, errMsg string, index, total int) ProgressEvent {
	return ProgressEvent{
		EventType:        EventNodeFailed,
		JobID:            jobID,
		ImageProjectID:   projectID,
		CurrentNode:      node,
		NodeDisplayName:  display,
		Status:           NodeFailed,
		Progress:         StageProgress(index-1, total),
		Message:          "failed: " + display,
		ErrorMessage:     errMsg,
		Timestamp:        time.Now(),
		TotalNodes:       total,
		CurrentNodeIndex: index,
	}
}

func WorkflowCompleted(jobID string, projectID int64, result any, total int) ProgressEvent {
	return ProgressEvent{
		EventType:        EventWorkflowCompleted,
		JobID:            jobID,
		ImageProjectID:   projectID,
		Status:           NodeCompleted,
		Progress:         100,
		Message:          "workflow completed",
		NodeResult:       result,
		Timestamp:        time.Now(),
		TotalNodes:       total,
		CurrentNodeIndex: total,
	}
}

func WorkflowFailed(jobID string, projectID int64, errMsg string) ProgressEvent {
	return ProgressEvent{
		EventType:      EventWorkflowFailed,
		JobID:          jobID,
		ImageProjectID: projectID,
		Status:         NodeFailed,
		Progress:       0,
		Message:        "workflow failed",
		ErrorMessage:   errMsg,
		Timestamp:      time.Now(),
	}
}

func ArtifactReady(jobID string, projectID int64, node, display string, result any) ProgressEvent {
	return ProgressEvent{
		EventType:       EventArtifactReady,
		JobID:           jobID,
		ImageProjectID:  projectID,
		CurrentNode:     node,
		NodeDisplayName: display,
		Status:          NodeCompleted,
		Progress:        100,
		Message:         "artifact ready: " + display,
		NodeResult:      result,
		Timestamp:       time.Now(),
	}
}
