package observability

import (
	"bytes"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	m.ObserveAPI("GET", "/x", "200", time.Millisecond)
	m.RunStarted()
	m.RunFinished("COMPLETED", time.Second)
	m.StageFinished("promptEnhancer", "OK", time.Second)
	m.DeferredFinished("modelSynthesizer", "applied")
	m.ObserveJobs(map[string]int{"RUNNING": 1})

	var buf bytes.Buffer
	require.NoError(t, m.WritePrometheus(&buf))
	assert.Empty(t, buf.String())

	rec := httptest.NewRecorder()
	m.WriteHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.Equal(t, 503, rec.Code)
}

func TestWorkflowObserverMetrics(t *testing.T) {
	m := New()
	m.RunStarted()
	m.StageFinished("imageSynthesizer", "DEGRADED", 300*time.Millisecond)
	m.DeferredFinished("modelSynthesizer", "discarded")
	m.RunFinished("COMPLETED", 2*time.Second)

	assert.Equal(t, 1.0, m.runsStarted.Value())
	assert.Equal(t, 0.0, m.runsInflight.Value())
	assert.Equal(t, 1.0, m.runsFinished.Value("completed"))
	assert.Equal(t, 1.0, m.stageOutcomes.Value("imageSynthesizer", "degraded"))
	assert.Equal(t, uint64(1), m.stageDuration.Count("imageSynthesizer"))
	assert.Equal(t, 1.0, m.deferredOutcomes.Value("modelSynthesizer", "discarded"))
}

func TestWritePrometheusFormat(t *testing.T) {
	m := New()
	m.ObserveAPI("POST", "/api/workflow/execute", "200", 30*time.Millisecond)
	m.ObserveConnections(3, 2, 1, 5, 0)

	rec := httptest.NewRecorder()
	m.WriteHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body := rec.Body.String()

	assert.Equal(t, "text/plain; version=0.0.4", rec.Header().Get("Content-Type"))
	assert.Contains(t, body, "# TYPE cf_api_requests_total counter")
	assert.Contains(t, body, `cf_api_requests_total{method="POST",route="/api/workflow/execute",status="200"} 1`)
	assert.Contains(t, body, `cf_api_request_duration_seconds_bucket{method="POST",route="/api/workflow/execute",status="200",le="0.05"} 1`)
	assert.Contains(t, body, `cf_api_request_duration_seconds_bucket{method="POST",route="/api/workflow/execute",status="200",le="0.025"} 0`)
	assert.Contains(t, body, `cf_progress_connections{kind="aliases"} 1`)
	assert.Contains(t, body, "cf_progress_events_dropped 5")

	// aliases sorts before connections
	assert.Less(t, strings.Index(body, `kind="aliases"`), strings.Index(body, `kind="connections"`))
}

func TestLabelString(t *testing.T) {
	assert.Equal(t, "", labelString(nil, []string{"x"}))
	assert.Equal(t, `{a="1",b="unknown"}`, labelString([]string{"a", "b"}, []string{"1"}))
	assert.Equal(t, `{a="q\"\\\n"}`, labelString([]string{"a"}, []string{"q\"\\\n"}))
	assert.Equal(t, `{le="+Inf"}`, withLe("", "+Inf"))
	assert.Equal(t, `{a="1",le="0.5"}`, withLe(`{a="1"}`, "0.5"))
}

func TestParseHeaders(t *testing.T) {
	assert.Nil(t, parseHeaders(" , =x"))
	assert.Equal(t, map[string]string{"api-key": "abc", "x": "y"}, parseHeaders("api-key=abc, x = y"))
	assert.Equal(t, 1.0, clampRatio(3))
	assert.Equal(t, 0.0, clampRatio(-1))
}
