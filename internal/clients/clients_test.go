package clients

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/craftflow-backend/internal/platform/logger"
	"github.com/yungbote/craftflow-backend/internal/platform/openai"
)

type fakeLLM struct {
	text  string
	err   error
	image openai.ImageGeneration

	gotSystem string
	gotUser   string
	gotImages []openai.ImageInput
}

func (f *fakeLLM) GenerateText(_ context.Context, system, user string) (string, error) {
	f.gotSystem, f.gotUser = system, user
	return f.text, f.err
}

func (f *fakeLLM) GenerateTextWithImages(_ context.Context, system, user string, images []openai.ImageInput) (string, error) {
	f.gotSystem, f.gotUser, f.gotImages = system, user, images
	return f.text, f.err
}

func (f *fakeLLM) GenerateImage(_ context.Context, prompt string) (openai.ImageGeneration, error) {
	f.gotUser = prompt
	return f.image, f.err
}

type fakeStore struct {
	keys []string
	err  error
}

func (s *fakeStore) Upload(_ context.Context, key, _ string, _ []byte) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	s.keys = append(s.keys, key)
	return "https://cdn.example/" + key, nil
}

func (s *fakeStore) PublicURL(key string) string { return "https://cdn.example/" + key }
func (s *fakeStore) Close() error                { return nil }

func TestSummarizerAndAnalyzer(t *testing.T) {
	llm := &fakeLLM{text: "  a blue tea set  "}
	sum := NewSummarizer(logger.NewNop(), llm)
	out, err := sum.Summarize(context.Background(), "user: blue tea set")
	require.NoError(t, err)
	assert.Equal(t, "a blue tea set", out)

	_, err = sum.Summarize(context.Background(), " ")
	assert.Error(t, err)

	an := NewProcessAnalyzer(logger.NewNop(), llm)
	_, err = an.Analyze(context.Background(), "https://img/x.png", "tea set")
	require.NoError(t, err)
	require.Len(t, llm.gotImages, 1)
	assert.Equal(t, "https://img/x.png", llm.gotImages[0].ImageURL)
}

func TestImageGeneratorUploadsBytes(t *testing.T) {
	llm := &fakeLLM{image: openai.ImageGeneration{Bytes: []byte{1, 2}, MimeType: "image/png", RevisedPrompt: "rp"}}
	store := &fakeStore{}
	g := NewImageGenerator(logger.NewNop(), llm, store, openai.Config{})

	img, err := g.Generate(context.Background(), "teapot", []string{"https://ref/1.jpg"})
	require.NoError(t, err)
	require.Len(t, store.keys, 1)
	assert.True(t, strings.HasPrefix(store.keys[0], "images/"))
	assert.True(t, strings.HasSuffix(store.keys[0], ".png"))
	assert.Equal(t, "https://cdn.example/"+store.keys[0], img.URL)
	assert.Equal(t, "rp", img.RevisedPrompt)
	assert.Contains(t, llm.gotUser, "https://ref/1.jpg")
}

func TestImageGeneratorWithoutStore(t *testing.T) {
	llm := &fakeLLM{image: openai.ImageGeneration{Bytes: []byte("x"), MimeType: "image/png"}}
	g := NewImageGenerator(logger.NewNop(), llm, nil, openai.Config{})
	img, err := g.Generate(context.Background(), "teapot", nil)
	require.NoError(t, err)
	assert.Equal(t, "data:image/png;base64,eA==", img.URL)

	llm.image = openai.ImageGeneration{URL: "https://provider/img.png"}
	img, err = g.Generate(context.Background(), "teapot", nil)
	require.NoError(t, err)
	assert.Equal(t, "https://provider/img.png", img.URL)
}

func TestImageGeneratorUploadFailureKeepsProviderURL(t *testing.T) {
	llm := &fakeLLM{image: openai.ImageGeneration{URL: "https://provider/img.png"}}
	g := NewImageGenerator(logger.NewNop(), llm, &fakeStore{err: errors.New("denied")}, openai.Config{})
	g.download = func(context.Context, string) ([]byte, string, error) { return []byte("x"), "image/jpeg", nil }

	img, err := g.Generate(context.Background(), "teapot", nil)
	require.NoError(t, err)
	assert.Equal(t, "https://provider/img.png", img.URL)
}

func TestParseSearchResponse(t *testing.T) {
	content, _ := json.Marshal(map[string]any{"imageurl": []map[string]string{
		{"display_url": "https://img/a.jpg"},
		{"display_url": "https://img/b.jpg"},
		{"display_url": "https://img/a.jpg"},
		{"display_url": ""},
	}})
	line, _ := json.Marshal(map[string]string{"content": string(content), "node_type": "End"})
	body := "id: 0\nevent: Message\ndata: " + string(line) + "\n\nevent: Done\ndata: {}\n"
	assert.Equal(t, []string{"https://img/a.jpg", "https://img/b.jpg"}, ParseSearchResponse(body))

	regexOnly := `garbage "display_url": "https://img/1.png", "display_url":"https://img/2.png","display_url":"https://img/3.png","display_url":"https://img/4.png"`
	assert.Equal(t, []string{"https://img/1.png", "https://img/2.png", "https://img/3.png"}, ParseSearchResponse(regexOnly))

	relaxed := `see https://x.example/p/cat.JPEG and https://x.example/doc.pdf`
	assert.Equal(t, []string{"https://x.example/p/cat.JPEG"}, ParseSearchResponse(relaxed))

	assert.Empty(t, ParseSearchResponse("nothing here"))
}

func TestImageSearchClient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		var req searchRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "wf-1", req.WorkflowID)
		assert.Equal(t, "teapot", req.Parameters["mainpotic"])
		_, _ = w.Write([]byte(`data: {"content":"{\"imageurl\":[{\"display_url\":\"https://img/t.jpg\"}]}"}` + "\n"))
	}))
	defer srv.Close()

	c, err := NewImageSearchClient(logger.NewNop(), ImageSearchConfig{URL: srv.URL, Token: "tok", WorkflowID: "wf-1"})
	require.NoError(t, err)
	urls, err := c.Search(context.Background(), "teapot")
	require.NoError(t, err)
	assert.Equal(t, []string{"https://img/t.jpg"}, urls)

	_, err = NewImageSearchClient(logger.NewNop(), ImageSearchConfig{})
	assert.Error(t, err)
}

func TestModel3DClient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/submit":
			var req submitRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "STL", req.ResultFormat)
			assert.Equal(t, "https://img/x.png", req.ImageURL)
			_, _ = w.Write([]byte(`{"Response":{"JobId":"job-42"}}`))
		case "/query":
			_, _ = w.Write([]byte(`{"Status":"DONE","ResultFile3Ds":[{"Url":"https://m/x.stl","PreviewImageUrl":"https://m/x.png"}]}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c, err := NewModel3DClient(logger.NewNop(), Model3DConfig{URL: srv.URL, ResultFormat: "STL"})
	require.NoError(t, err)

	id, err := c.Submit(context.Background(), "https://img/x.png")
	require.NoError(t, err)
	assert.Equal(t, "job-42", id)

	job, err := c.Query(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "DONE", job.Status)
	assert.Equal(t, "https://m/x.stl", job.ModelURL)
	assert.Equal(t, "https://m/x.png", job.PreviewURL)
}
