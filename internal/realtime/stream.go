package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/yungbote/craftflow-backend/internal/workflow"
)

// EventName is the SSE event name every progress frame is sent under.
const EventName = "workflow-progress"

var errStreamingUnsupported = errors.New("streaming unsupported")

// Stream writes conn's events to w as server-sent events until ctx ends or
// the connection is closed. A closed connection's queued events are flushed
// before returning. The caller owns Release.
func Stream(ctx context.Context, w http.ResponseWriter, conn *Connection, heartbeat time.Duration) error {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return errStreamingUnsupported
	}
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	if heartbeat <= 0 {
		heartbeat = DefaultHeartbeat
	}
	ticker := time.NewTicker(heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-conn.Done():
			return drain(w, flusher, conn)
		case <-ticker.C:
			if _, err := io.WriteString(w, ": ping\n\n"); err != nil {
				return fmt.Errorf("write heartbeat: %w", err)
			}
			flusher.Flush()
		case ev := <-conn.Outbound():
			if err := writeFrame(w, ev); err != nil {
				return err
			}
			flusher.Flush()
		}
	}
}

func drain(w io.Writer, flusher http.Flusher, conn *Connection) error {
	for {
		select {
		case ev := <-conn.Outbound():
			if err := writeFrame(w, ev); err != nil {
				return err
			}
		default:
			flusher.Flush()
			return nil
		}
	}
}

func writeFrame(w io.Writer, ev workflow.ProgressEvent) error {
	raw, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal progress event: %w", err)
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", EventName, raw); err != nil {
		return fmt.Errorf("write progress event: %w", err)
	}
	return nil
}
