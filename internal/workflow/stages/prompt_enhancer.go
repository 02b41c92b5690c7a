package stages

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/yungbote/craftflow-backend/internal/platform/logger"
	"github.com/yungbote/craftflow-backend/internal/workflow"
)

// HistoryLimit is how many prior turns the enhancer folds into its summary.
const HistoryLimit = 20

var errNoSummarizer = errors.New("summarizer not configured")

type PromptEnhancer struct {
	log        *logger.Logger
	history    HistoryLoader
	summarizer Summarizer
}

func NewPromptEnhancer(log *logger.Logger, history HistoryLoader, summarizer Summarizer) *PromptEnhancer {
	return &PromptEnhancer{log: log.With("stage", workflow.StagePromptEnhancer), history: history, summarizer: summarizer}
}

func (s *PromptEnhancer) Execute(ctx context.Context, in workflow.ExecutionContext, _ workflow.Scheduler) workflow.Result {
	keywords := ExtractKeywords(in.OriginalPrompt)
	turns := s.loadHistory(ctx, in.ProjectID)
	transcript := FormatHistory(turns)

	summary, err := s.summarize(ctx, transcript)
	if err != nil {
		s.log.Warn("Summarizer failed; using raw prompt", "job_id", in.JobID, "error", err)
		return workflow.Degraded(workflow.Delta{
			EnhancedPrompt: workflow.Str(in.OriginalPrompt),
			Keywords:       keywords,
			CurrentStep:    "Prompt enhancement",
			Output: map[string]any{
				"enhancedPrompt": in.OriginalPrompt,
				"keyPoint":       strings.Join(keywords, ","),
			},
		}, "summarizer unavailable: "+err.Error())
	}

	enhanced := ComposeEnhancedPrompt(summary, in.OriginalPrompt)
	return workflow.Ok(workflow.Delta{
		EnhancedPrompt: workflow.Str(enhanced),
		Keywords:       keywords,
		CurrentStep:    "Prompt enhancement",
		Output: map[string]any{
			"enhancedPrompt": enhanced,
			"keyPoint":       strings.Join(keywords, ","),
			"historyTurns":   len(turns),
		},
	})
}

// A failed history lookup is not a stage failure; the summary just has
// nothing to work with.
func (s *PromptEnhancer) loadHistory(ctx context.Context, projectID int64) []ChatTurn {
	if s.history == nil {
		return nil
	}
	turns, err := s.history.RecentTurns(ctx, projectID, HistoryLimit)
	if err != nil {
		s.log.Warn("Load chat history failed", "project_id", projectID, "error", err)
		return nil
	}
	return turns
}

func (s *PromptEnhancer) summarize(ctx context.Context, transcript string) (string, error) {
	if s.summarizer == nil {
		return "", errNoSummarizer
	}
	out, err := s.summarizer.Summarize(ctx, transcript)
	if err != nil {
		return "", fmt.Errorf("summarize history: %w", err)
	}
	if strings.TrimSpace(out) == "" {
		return "", errors.New("summarize history: empty summary")
	}
	return out, nil
}

// FormatHistory renders turns oldest first between history markers.
func FormatHistory(turns []ChatTurn) string {
	if len(turns) == 0 {
		return "No prior conversation."
	}
	sorted := append([]ChatTurn(nil), turns...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].CreatedAt.Before(sorted[j].CreatedAt) })

	var b strings.Builder
	b.WriteString("=== conversation history ===\n")
	for _, t := range sorted {
		role := "AI"
		if strings.EqualFold(t.Role, "user") {
			role = "User"
		}
		fmt.Fprintf(&b, "[%s]: %s\n", role, t.Content)
	}
	b.WriteString("=== end of history ===\n")
	return b.String()
}

func ComposeEnhancedPrompt(summary, prompt string) string {
	var b strings.Builder
	b.WriteString("=== conversation summary ===\n")
	b.WriteString(summary)
	b.WriteString("\n\n")
	if strings.TrimSpace(prompt) != "" {
		b.WriteString("=== current user input ===\n")
		b.WriteString(prompt)
	}
	return b.String()
}
