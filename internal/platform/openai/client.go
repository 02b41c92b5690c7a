package openai

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/yungbote/craftflow-backend/internal/platform/envutil"
	"github.com/yungbote/craftflow-backend/internal/platform/httpx"
	"github.com/yungbote/craftflow-backend/internal/platform/logger"
	"github.com/yungbote/craftflow-backend/internal/platform/promptstyle"
)

// ImageInput is a multimodal image reference: an https URL or a data URL.
type ImageInput struct {
	ImageURL string
	Detail   string // "low" | "high"
}

type ImageGeneration struct {
	Bytes         []byte
	MimeType      string
	URL           string
	RevisedPrompt string
}

// Client is the OpenAI-compatible API surface the workflow uses.
type Client interface {
	GenerateText(ctx context.Context, system string, user string) (string, error)
	GenerateTextWithImages(ctx context.Context, system string, user string, images []ImageInput) (string, error)
	GenerateImage(ctx context.Context, prompt string) (ImageGeneration, error)
}

type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	VisionModel string
	ImageModel  string
	ImageSize   string
	Timeout     time.Duration
	MaxRetries  int
	// Temperature is omitted from requests when nil.
	Temperature *float64
}

func ConfigFromEnv() Config {
	cfg := Config{
		APIKey:      envutil.String("OPENAI_API_KEY", ""),
		BaseURL:     strings.TrimRight(envutil.String("OPENAI_BASE_URL", "https://api.openai.com"), "/"),
		Model:       envutil.String("OPENAI_MODEL", "gpt-4o-mini"),
		VisionModel: envutil.String("OPENAI_VISION_MODEL", ""),
		ImageModel:  envutil.String("OPENAI_IMAGE_MODEL", "dall-e-3"),
		ImageSize:   envutil.String("OPENAI_IMAGE_SIZE", "1024x1024"),
		Timeout:     envutil.Duration("OPENAI_TIMEOUT_SECONDS", 180*time.Second),
		MaxRetries:  envutil.Int("OPENAI_MAX_RETRIES", 3),
	}
	switch strings.ToLower(envutil.String("OPENAI_TEMPERATURE", "")) {
	case "off", "none", "false":
	case "":
		t := 0.7
		cfg.Temperature = &t
	default:
		t := envutil.Float("OPENAI_TEMPERATURE", 0.7)
		cfg.Temperature = &t
	}
	return cfg
}

type client struct {
	log  *logger.Logger
	cfg  Config
	http *httpx.Client

	// noTemp remembers models that rejected the temperature parameter.
	noTempMu sync.RWMutex
	noTemp   map[string]bool
}

func NewClient(log *logger.Logger, cfg Config) (Client, error) {
	if log == nil {
		return nil, errors.New("logger required")
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("missing OPENAI_API_KEY")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com"
	}
	if cfg.VisionModel == "" {
		cfg.VisionModel = cfg.Model
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 180 * time.Second
	}
	serviceLog := log.With("service", "OpenAIClient")
	return &client{
		log: serviceLog,
		cfg: cfg,
		http: &httpx.Client{
			Service:    "openai",
			BaseURL:    cfg.BaseURL,
			Headers:    map[string]string{"Authorization": "Bearer " + cfg.APIKey},
			HTTP:       &http.Client{Timeout: cfg.Timeout},
			MaxRetries: cfg.MaxRetries,
			Log:        serviceLog,
		},
		noTemp: map[string]bool{},
	}, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature *float64      `json:"temperature,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
			Refusal string `json:"refusal,omitempty"`
		} `json:"message"`
	} `json:"choices"`
}

func (c *client) GenerateText(ctx context.Context, system string, user string) (string, error) {
	return c.chat(ctx, c.cfg.Model, []chatMessage{
		{Role: "system", Content: promptstyle.ApplySystem(system, "text")},
		{Role: "user", Content: user},
	})
}

func (c *client) GenerateTextWithImages(ctx context.Context, system string, user string, images []ImageInput) (string, error) {
	content := make([]map[string]any, 0, 1+len(images))
	content = append(content, map[string]any{"type": "text", "text": user})
	for _, img := range images {
		u := strings.TrimSpace(img.ImageURL)
		if u == "" {
			continue
		}
		image := map[string]any{"url": u}
		if d := strings.TrimSpace(img.Detail); d != "" {
			image["detail"] = d
		}
		content = append(content, map[string]any{"type": "image_url", "image_url": image})
	}
	if len(content) == 1 {
		return c.GenerateText(ctx, system, user)
	}
	return c.chat(ctx, c.cfg.VisionModel, []chatMessage{
		{Role: "system", Content: promptstyle.ApplySystem(system, "image")},
		{Role: "user", Content: content},
	})
}

// chat retries once without temperature when the model rejects it.
func (c *client) chat(ctx context.Context, model string, messages []chatMessage) (string, error) {
	req := chatRequest{Model: model, Messages: messages}
	if !c.modelIsNoTemp(model) {
		req.Temperature = c.cfg.Temperature
	}

	var resp chatResponse
	err := c.http.DoJSON(ctx, http.MethodPost, "/v1/chat/completions", req, &resp)
	if err != nil && req.Temperature != nil && isUnsupportedTemperature(err) {
		c.noteNoTemp(model)
		req.Temperature = nil
		err = c.http.DoJSON(ctx, http.MethodPost, "/v1/chat/completions", req, &resp)
	}
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("openai: no choices in response")
	}
	msg := resp.Choices[0].Message
	if msg.Refusal != "" {
		return "", fmt.Errorf("model refused: %s", msg.Refusal)
	}
	if strings.TrimSpace(msg.Content) == "" {
		return "", errors.New("openai: empty completion")
	}
	return msg.Content, nil
}

func (c *client) modelIsNoTemp(model string) bool {
	c.noTempMu.RLock()
	defer c.noTempMu.RUnlock()
	return c.noTemp[strings.ToLower(model)]
}

func (c *client) noteNoTemp(model string) {
	c.noTempMu.Lock()
	c.noTemp[strings.ToLower(model)] = true
	c.noTempMu.Unlock()
	c.log.Info("Model rejected temperature; omitting from now on", "model", model)
}

func isUnsupportedTemperature(err error) bool {
	msg := strings.ToLower(err.Error())
	if !strings.Contains(msg, "temperature") {
		return false
	}
	for _, s := range []string{"unsupported", "unknown parameter", "not supported", "does not support", "only the default"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

type imagesGenerationRequest struct {
	Model          string `json:"model"`
	Prompt         string `json:"prompt"`
	N              int    `json:"n,omitempty"`
	Size           string `json:"size,omitempty"`
	ResponseFormat string `json:"response_format,omitempty"`
}

type imagesGenerationResponse struct {
	Data []struct {
		B64JSON       string `json:"b64_json"`
		URL           string `json:"url"`
		RevisedPrompt string `json:"revised_prompt"`
	} `json:"data"`
}

// GenerateImage returns either decoded bytes (b64 responses) or a hosted URL.
func (c *client) GenerateImage(ctx context.Context, prompt string) (ImageGeneration, error) {
	var out ImageGeneration
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return out, errors.New("image prompt required")
	}
	req := imagesGenerationRequest{
		Model:  c.cfg.ImageModel,
		Prompt: prompt,
		N:      1,
		Size:   c.cfg.ImageSize,
	}
	if !strings.HasPrefix(strings.ToLower(c.cfg.ImageModel), "gpt-image-") {
		req.ResponseFormat = "b64_json"
	}

	var resp imagesGenerationResponse
	if err := c.http.DoJSON(ctx, http.MethodPost, "/v1/images/generations", req, &resp); err != nil {
		return out, err
	}
	if len(resp.Data) == 0 {
		return out, errors.New("no image returned")
	}
	item := resp.Data[0]
	out.RevisedPrompt = strings.TrimSpace(item.RevisedPrompt)
	out.URL = strings.TrimSpace(item.URL)
	if b64 := strings.TrimSpace(item.B64JSON); b64 != "" {
		raw, err := base64.StdEncoding.DecodeString(b64)
		if err != nil || len(raw) == 0 {
			return out, fmt.Errorf("decode image base64: %w", err)
		}
		out.Bytes = raw
		out.MimeType = "image/png"
		return out, nil
	}
	if out.URL == "" {
		return out, errors.New("image response missing b64_json and url")
	}
	return out, nil
}

// Download fetches a generated asset. OpenAI auth is attached only for
// OpenAI-controlled hosts; signed blob URLs reject unrelated headers.
func Download(ctx context.Context, httpClient *http.Client, cfg Config, rawURL string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, "", err
	}
	if shouldAttachAuth(cfg.BaseURL, rawURL) {
		req.Header.Set("Authorization", "Bearer "+cfg.APIKey)
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, "", &httpx.StatusError{Service: "openai", StatusCode: resp.StatusCode, Body: string(raw)}
	}
	ct := strings.TrimSpace(strings.Split(resp.Header.Get("Content-Type"), ";")[0])
	return raw, ct, nil
}

func shouldAttachAuth(baseURL, rawURL string) bool {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return false
	}
	if bu, err := url.Parse(strings.TrimSpace(baseURL)); err == nil && strings.EqualFold(bu.Hostname(), host) {
		return true
	}
	return host == "openai.com" || strings.HasSuffix(host, ".openai.com")
}
