package clients

import (
	"context"
	"errors"
	"strings"

	"github.com/yungbote/craftflow-backend/internal/platform/logger"
	"github.com/yungbote/craftflow-backend/internal/platform/openai"
)

const summarizeSystem = `Summarize the design conversation below for an image designer.
Keep the user's stated product type, materials, colors, cultural motifs and constraints.
Drop greetings and repetition. Answer in at most five sentences.`

const processSystem = `You are a master craftsperson. Given a product concept image and its description,
write the production process as a numbered markdown list: materials, tools, then steps.
Keep each step to one or two sentences.`

// Summarizer condenses chat history through a chat model.
type Summarizer struct {
	log *logger.Logger
	llm openai.Client
}

func NewSummarizer(log *logger.Logger, llm openai.Client) *Summarizer {
	return &Summarizer{log: log.With("client", "Summarizer"), llm: llm}
}

func (s *Summarizer) Summarize(ctx context.Context, history string) (string, error) {
	if strings.TrimSpace(history) == "" {
		return "", errors.New("empty history")
	}
	out, err := s.llm.GenerateText(ctx, summarizeSystem, history)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// ProcessAnalyzer derives a production process from the synthesized image.
type ProcessAnalyzer struct {
	log *logger.Logger
	llm openai.Client
}

func NewProcessAnalyzer(log *logger.Logger, llm openai.Client) *ProcessAnalyzer {
	return &ProcessAnalyzer{log: log.With("client", "ProcessAnalyzer"), llm: llm}
}

func (a *ProcessAnalyzer) Analyze(ctx context.Context, imageURL, prompt string) (string, error) {
	if strings.TrimSpace(imageURL) == "" {
		return "", errors.New("image url required")
	}
	out, err := a.llm.GenerateTextWithImages(ctx, processSystem, prompt, []openai.ImageInput{{ImageURL: imageURL, Detail: "low"}})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}
