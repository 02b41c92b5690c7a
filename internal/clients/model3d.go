package clients

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/yungbote/craftflow-backend/internal/platform/envutil"
	"github.com/yungbote/craftflow-backend/internal/platform/httpx"
	"github.com/yungbote/craftflow-backend/internal/platform/logger"
	"github.com/yungbote/craftflow-backend/internal/workflow/stages"
)

type Model3DConfig struct {
	URL          string
	Token        string
	ResultFormat string
	Timeout      time.Duration
}

func Model3DConfigFromEnv() Model3DConfig {
	return Model3DConfig{
		URL:          envutil.String("MODEL3D_URL", ""),
		Token:        envutil.String("MODEL3D_TOKEN", ""),
		ResultFormat: envutil.String("MODEL3D_RESULT_FORMAT", "STL"),
		Timeout:      envutil.Duration("MODEL3D_TIMEOUT", 30*time.Second),
	}
}

func (c Model3DConfig) Enabled() bool { return c.URL != "" }

// Model3DClient submits image-to-3D jobs and queries their state. Responses
// may be flat or wrapped in a "Response" envelope.
type Model3DClient struct {
	log          *logger.Logger
	http         *httpx.Client
	resultFormat string
}

func NewModel3DClient(log *logger.Logger, cfg Model3DConfig) (*Model3DClient, error) {
	if !cfg.Enabled() {
		return nil, errors.New("missing MODEL3D_URL")
	}
	headers := map[string]string{}
	if cfg.Token != "" {
		headers["Authorization"] = "Bearer " + cfg.Token
	}
	serviceLog := log.With("client", "Model3DClient")
	return &Model3DClient{
		log: serviceLog,
		http: &httpx.Client{
			Service:    "model3d",
			BaseURL:    cfg.URL,
			Headers:    headers,
			HTTP:       &http.Client{Timeout: cfg.Timeout},
			MaxRetries: 2,
			Log:        serviceLog,
		},
		resultFormat: cfg.ResultFormat,
	}, nil
}

type submitRequest struct {
	ImageURL     string `json:"ImageUrl"`
	ResultFormat string `json:"ResultFormat"`
}

type submitBody struct {
	JobID string `json:"JobId"`
}

type submitResponse struct {
	submitBody
	Response *submitBody `json:"Response"`
}

func (c *Model3DClient) Submit(ctx context.Context, imageURL string) (string, error) {
	var resp submitResponse
	if err := c.http.DoJSON(ctx, http.MethodPost, "/submit", submitRequest{ImageURL: imageURL, ResultFormat: c.resultFormat}, &resp); err != nil {
		return "", err
	}
	id := resp.JobID
	if resp.Response != nil && resp.Response.JobID != "" {
		id = resp.Response.JobID
	}
	if id == "" {
		return "", errors.New("model3d: response missing JobId")
	}
	return id, nil
}

type queryRequest struct {
	JobID string `json:"JobId"`
}

type queryBody struct {
	Status        string `json:"Status"`
	ResultFile3Ds []struct {
		URL             string `json:"Url"`
		PreviewImageURL string `json:"PreviewImageUrl"`
	} `json:"ResultFile3Ds"`
}

type queryResponse struct {
	queryBody
	Response *queryBody `json:"Response"`
}

func (c *Model3DClient) Query(ctx context.Context, externalJobID string) (stages.ModelJob, error) {
	var resp queryResponse
	if err := c.http.DoJSON(ctx, http.MethodPost, "/query", queryRequest{JobID: externalJobID}, &resp); err != nil {
		return stages.ModelJob{}, err
	}
	body := resp.queryBody
	if resp.Response != nil {
		body = *resp.Response
	}
	job := stages.ModelJob{Status: body.Status}
	if len(body.ResultFile3Ds) > 0 {
		job.ModelURL = body.ResultFile3Ds[0].URL
		job.PreviewURL = body.ResultFile3Ds[0].PreviewImageURL
	}
	return job, nil
}
