package clients

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/craftflow-backend/internal/platform/gcp"
	"github.com/yungbote/craftflow-backend/internal/platform/logger"
	"github.com/yungbote/craftflow-backend/internal/platform/openai"
	"github.com/yungbote/craftflow-backend/internal/workflow/stages"
)

// ImageGenerator renders the concept image and, when an object store is
// configured, re-hosts it so the URL outlives the provider's signed link.
type ImageGenerator struct {
	log      *logger.Logger
	llm      openai.Client
	store    gcp.ObjectStore
	download func(ctx context.Context, url string) ([]byte, string, error)
}

func NewImageGenerator(log *logger.Logger, llm openai.Client, store gcp.ObjectStore, llmCfg openai.Config) *ImageGenerator {
	hc := &http.Client{Timeout: 60 * time.Second}
	return &ImageGenerator{
		log:   log.With("client", "ImageGenerator"),
		llm:   llm,
		store: store,
		download: func(ctx context.Context, url string) ([]byte, string, error) {
			return openai.Download(ctx, hc, llmCfg, url)
		},
	}
}

// ComposeImagePrompt appends reference-image guidance to the prompt.
func ComposeImagePrompt(prompt string, references []string) string {
	prompt = strings.TrimSpace(prompt)
	if len(references) == 0 {
		return prompt
	}
	var b strings.Builder
	b.WriteString(prompt)
	b.WriteString("\n\nDraw style and composition cues from these reference images:")
	for _, r := range references {
		b.WriteString("\n- ")
		b.WriteString(r)
	}
	return b.String()
}

func (g *ImageGenerator) Generate(ctx context.Context, prompt string, references []string) (stages.GeneratedImage, error) {
	img, err := g.llm.GenerateImage(ctx, ComposeImagePrompt(prompt, references))
	if err != nil {
		return stages.GeneratedImage{}, err
	}
	out := stages.GeneratedImage{URL: img.URL, RevisedPrompt: img.RevisedPrompt}

	if g.store == nil {
		if out.URL == "" && len(img.Bytes) > 0 {
			out.URL = fmt.Sprintf("data:%s;base64,%s", img.MimeType, base64.StdEncoding.EncodeToString(img.Bytes))
		}
		return out, nil
	}

	data, mime := img.Bytes, img.MimeType
	if len(data) == 0 {
		data, mime, err = g.download(ctx, img.URL)
		if err != nil {
			g.log.Warn("Download generated image failed; keeping provider URL", "error", err)
			return out, nil
		}
	}
	key := "images/" + uuid.NewString() + gcp.ExtensionForMime(mime)
	url, err := g.store.Upload(ctx, key, mime, data)
	if err != nil {
		if out.URL == "" {
			return stages.GeneratedImage{}, fmt.Errorf("upload generated image: %w", err)
		}
		g.log.Warn("Upload generated image failed; keeping provider URL", "error", err)
		return out, nil
	}
	out.URL = url
	return out, nil
}
