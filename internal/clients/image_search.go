package clients

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/yungbote/craftflow-backend/internal/platform/envutil"
	"github.com/yungbote/craftflow-backend/internal/platform/httpx"
	"github.com/yungbote/craftflow-backend/internal/platform/logger"
)

// MaxSearchImages caps how many URLs a search returns.
const MaxSearchImages = 3

var (
	displayURLPattern = regexp.MustCompile(`"display_url"\s*:\s*"([^"]+)"`)
	imageURLPattern   = regexp.MustCompile(`(?i)https://[^\s"'\\]+\.(?:jpeg|jpg|png|gif|webp)`)
)

type ImageSearchConfig struct {
	URL        string
	Token      string
	WorkflowID string
	Timeout    time.Duration
}

func ImageSearchConfigFromEnv() ImageSearchConfig {
	return ImageSearchConfig{
		URL:        envutil.String("IMAGE_SEARCH_URL", ""),
		Token:      envutil.String("IMAGE_SEARCH_TOKEN", ""),
		WorkflowID: envutil.String("IMAGE_SEARCH_WORKFLOW_ID", ""),
		Timeout:    envutil.Duration("IMAGE_SEARCH_TIMEOUT", 30*time.Second),
	}
}

func (c ImageSearchConfig) Enabled() bool { return c.URL != "" && c.Token != "" }

// ImageSearchClient calls a hosted search workflow. The response is an event
// stream whose data lines carry a JSON "content" string listing images under
// "imageurl"; anything unparseable falls back to scanning for URLs.
type ImageSearchClient struct {
	log        *logger.Logger
	http       *httpx.Client
	workflowID string
}

func NewImageSearchClient(log *logger.Logger, cfg ImageSearchConfig) (*ImageSearchClient, error) {
	if !cfg.Enabled() {
		return nil, errors.New("missing IMAGE_SEARCH_URL or IMAGE_SEARCH_TOKEN")
	}
	serviceLog := log.With("client", "ImageSearchClient")
	return &ImageSearchClient{
		log: serviceLog,
		http: &httpx.Client{
			Service: "image-search",
			BaseURL: cfg.URL,
			Headers: map[string]string{
				"Authorization": "Bearer " + cfg.Token,
				"Accept":        "text/event-stream, application/json",
			},
			HTTP:       &http.Client{Timeout: cfg.Timeout},
			MaxRetries: 1,
			Log:        serviceLog,
		},
		workflowID: cfg.WorkflowID,
	}, nil
}

type searchRequest struct {
	WorkflowID string            `json:"workflow_id,omitempty"`
	Parameters map[string]string `json:"parameters"`
}

func (c *ImageSearchClient) Search(ctx context.Context, keyword string) ([]string, error) {
	raw, err := c.http.Do(ctx, http.MethodPost, "", searchRequest{
		WorkflowID: c.workflowID,
		Parameters: map[string]string{"mainpotic": keyword},
	})
	if err != nil {
		return nil, err
	}
	urls := ParseSearchResponse(string(raw))
	c.log.Debug("Image search finished", "keyword", keyword, "images", len(urls))
	return urls, nil
}

type searchEvent struct {
	Content string `json:"content"`
}

type searchContent struct {
	ImageURL []struct {
		DisplayURL string `json:"display_url"`
	} `json:"imageurl"`
}

// ParseSearchResponse extracts at most MaxSearchImages unique image URLs.
func ParseSearchResponse(body string) []string {
	var urls []string
	sc := bufio.NewScanner(strings.NewReader(body))
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		data, ok := strings.CutPrefix(line, "data:")
		if !ok {
			continue
		}
		var ev searchEvent
		if err := json.Unmarshal([]byte(strings.TrimSpace(data)), &ev); err != nil || ev.Content == "" {
			continue
		}
		var content searchContent
		if err := json.Unmarshal([]byte(ev.Content), &content); err != nil {
			continue
		}
		for _, img := range content.ImageURL {
			urls = appendUnique(urls, img.DisplayURL)
		}
	}
	if len(urls) == 0 {
		for _, m := range displayURLPattern.FindAllStringSubmatch(body, -1) {
			urls = appendUnique(urls, m[1])
		}
	}
	if len(urls) == 0 {
		for _, m := range imageURLPattern.FindAllString(body, -1) {
			urls = appendUnique(urls, m)
		}
	}
	if len(urls) > MaxSearchImages {
		urls = urls[:MaxSearchImages]
	}
	return urls
}

func appendUnique(urls []string, u string) []string {
	u = strings.TrimSpace(u)
	if u == "" {
		return urls
	}
	for _, existing := range urls {
		if existing == u {
			return urls
		}
	}
	return append(urls, u)
}
