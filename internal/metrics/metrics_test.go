package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_New(t *testing.T) {
	m := New()
	assert.NotNil(t, m.RequestsTotal)
	assert.NotNil(t, m.RequestDuration)
	assert.NotNil(t, m.AlignmentsTotal)
	assert.NotNil(t, m.ExtractedTotal)
	assert.NotNil(t, m.InquiriesTotal)
	assert.NotNil(t, m.SchedulerRunsTotal)
}

func TestMetrics_RecordRequest(t *testing.T) {
	m := New()
	m.RecordRequest("/api/v1/align", 200, 0.01)
	m.RecordRequest("/api/v1/align", 200, 0.02)
	m.RecordRequest("/api/v1/align", 400, 0.001)

	body := getMetricsBody(t, m)
	assert.Contains(t, body, `align_requests_total{route="/api/v1/align",status="200"} 2`)
	assert.Contains(t, body, `align_requests_total{route="/api/v1/align",status="400"} 1`)
	assert.Contains(t, body, "align_request_duration_seconds")
}

func TestMetrics_RecordAlignment(t *testing.T) {
	m := New()
	m.RecordAlignment(2, 1, 1, 0, 3, 0)

	body := getMetricsBody(t, m)
	assert.Contains(t, body, "align_alignments_parsed_total 1")
	assert.Contains(t, body, `align_extracted_items_total{kind="achievement"} 2`)
	assert.Contains(t, body, `align_extracted_items_total{kind="risk"} 3`)
}

func TestMetrics_RecordInquiryAndRuns(t *testing.T) {
	m := New()
	m.RecordInquiry(1)
	m.RecordInquiry(1)
	m.RecordSchedulerRun("inquiry-sweep", "completed")

	body := getMetricsBody(t, m)
	assert.Contains(t, body, `align_inquiries_generated_total{priority="1"} 2`)
	assert.Contains(t, body, `align_scheduler_runs_total{job="inquiry-sweep",status="completed"} 1`)
}

func getMetricsBody(t *testing.T, m *Metrics) string {
	t.Helper()
	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(body)
}
