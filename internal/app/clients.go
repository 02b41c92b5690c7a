package app

import (
	"context"
	"fmt"

	"github.com/yungbote/craftflow-backend/internal/clients"
	"github.com/yungbote/craftflow-backend/internal/platform/gcp"
	"github.com/yungbote/craftflow-backend/internal/platform/logger"
	"github.com/yungbote/craftflow-backend/internal/platform/openai"
	"github.com/yungbote/craftflow-backend/internal/workflow/stages"
)

// Clients holds the external collaborators. A nil field means the provider
// is not configured and its stage falls back to placeholders.
type Clients struct {
	ObjectStore gcp.ObjectStore

	Summarizer stages.Summarizer
	Analyzer   stages.ProcessAnalyzer
	Generator  stages.ImageGenerator
	Searcher   stages.ImageSearcher
	Models     stages.ModelProvider
}

func wireClients(ctx context.Context, log *logger.Logger, cfg Config) (Clients, error) {
	log.Info("Wiring clients...")
	var out Clients

	// Object storage
	if cfg.ObjectStore.Enabled() {
		store, err := gcp.NewObjectStore(ctx, log, cfg.ObjectStore)
		if err != nil {
			return Clients{}, fmt.Errorf("init object store: %w", err)
		}
		out.ObjectStore = store
	}

	// OpenAI-compatible
	if cfg.OpenAI.APIKey != "" {
		llm, err := openai.NewClient(log, cfg.OpenAI)
		if err != nil {
			out.Close()
			return Clients{}, fmt.Errorf("init openai client: %w", err)
		}
		out.Summarizer = clients.NewSummarizer(log, llm)
		out.Analyzer = clients.NewProcessAnalyzer(log, llm)
		out.Generator = clients.NewImageGenerator(log, llm, out.ObjectStore, cfg.OpenAI)
	} else {
		log.Warn("OPENAI_API_KEY not set; prompt, image and process stages use placeholders")
	}

	// Image search
	if cfg.ImageSearch.Enabled() {
		search, err := clients.NewImageSearchClient(log, cfg.ImageSearch)
		if err != nil {
			out.Close()
			return Clients{}, fmt.Errorf("init image search client: %w", err)
		}
		out.Searcher = search
	}

	// Image-to-3D
	if cfg.Model3D.Enabled() {
		models, err := clients.NewModel3DClient(log, cfg.Model3D)
		if err != nil {
			out.Close()
			return Clients{}, fmt.Errorf("init 3d model client: %w", err)
		}
		out.Models = models
	}
	return out, nil
}

func (c *Clients) Close() {
	if c == nil {
		return
	}
	if c.ObjectStore != nil {
		_ = c.ObjectStore.Close()
	}
}
