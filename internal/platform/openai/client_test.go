package openai

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/craftflow-backend/internal/platform/logger"
)

func newTestClient(t *testing.T, h http.HandlerFunc) Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	temp := 0.5
	c, err := NewClient(logger.NewNop(), Config{APIKey: "sk-test", BaseURL: srv.URL, Model: "m", ImageModel: "dall-e-3", Temperature: &temp})
	require.NoError(t, err)
	return c
}

func TestGenerateText(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "m", req.Model)
		require.Len(t, req.Messages, 2)
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"summary"}}]}`))
	})
	out, err := c.GenerateText(context.Background(), "Summarize", "hi")
	require.NoError(t, err)
	assert.Equal(t, "summary", out)
}

func TestGenerateTextDropsRejectedTemperature(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if calls.Add(1) == 1 {
			require.NotNil(t, req.Temperature)
			http.Error(w, `{"error":{"message":"Unsupported parameter: 'temperature'"}}`, http.StatusBadRequest)
			return
		}
		assert.Nil(t, req.Temperature)
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"ok"}}]}`))
	})
	out, err := c.GenerateText(context.Background(), "s", "u")
	require.NoError(t, err)
	assert.Equal(t, "ok", out)

	_, err = c.GenerateText(context.Background(), "s", "u")
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestGenerateTextWithImagesSendsImageParts(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var raw map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&raw))
		msgs := raw["messages"].([]any)
		user := msgs[1].(map[string]any)
		parts := user["content"].([]any)
		require.Len(t, parts, 2)
		assert.Equal(t, "image_url", parts[1].(map[string]any)["type"])
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"1. carve"}}]}`))
	})
	out, err := c.GenerateTextWithImages(context.Background(), "Analyze", "tea set", []ImageInput{{ImageURL: "https://img/x.png"}, {ImageURL: " "}})
	require.NoError(t, err)
	assert.Equal(t, "1. carve", out)
}

func TestGenerateImage(t *testing.T) {
	png := []byte{0x89, 'P', 'N', 'G'}
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req imagesGenerationRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "b64_json", req.ResponseFormat)
		_ = json.NewEncoder(w).Encode(map[string]any{"data": []map[string]any{{"b64_json": base64.StdEncoding.EncodeToString(png), "revised_prompt": "rp"}}})
	})
	img, err := c.GenerateImage(context.Background(), "teapot")
	require.NoError(t, err)
	assert.Equal(t, png, img.Bytes)
	assert.Equal(t, "rp", img.RevisedPrompt)

	_, err = c.GenerateImage(context.Background(), "  ")
	assert.Error(t, err)
}

func TestShouldAttachAuth(t *testing.T) {
	assert.True(t, shouldAttachAuth("https://api.openai.com", "https://api.openai.com/files/x"))
	assert.True(t, shouldAttachAuth("http://proxy.local", "http://proxy.local/img"))
	assert.False(t, shouldAttachAuth("https://api.openai.com", "https://blob.core.windows.net/x?sig=1"))
}

func TestNewClientRequiresKey(t *testing.T) {
	_, err := NewClient(logger.NewNop(), Config{})
	assert.Error(t, err)
}
