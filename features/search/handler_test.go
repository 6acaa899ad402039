package search

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketpulse/apps/worker/features/queue"
	"marketpulse/apps/worker/internal/upstream"
)

type mockRecorder struct {
	runs []Run
	err  error
}

func (m *mockRecorder) RecordRun(ctx context.Context, run Run) error {
	m.runs = append(m.runs, run)
	return m.err
}

func newRequester() Requester {
	return upstream.NewMercadoLibre("http://upstream", "MLM", nil, upstream.RetryConfig{})
}

func TestBuildRequest(t *testing.T) {
	h := NewHandler(newRequester(), &mockRecorder{})

	req, err := h.BuildRequest(json.RawMessage(`{"query_text":"laptop","category":"MLM1652","offset":50,"limit":10}`))
	require.NoError(t, err)

	assert.Equal(t, "http://upstream/sites/MLM/search", req.URL)
	assert.Equal(t, "laptop", req.Query.Get("q"))
	assert.Equal(t, "MLM1652", req.Query.Get("category"))
	assert.Equal(t, "50", req.Query.Get("offset"))
	assert.Equal(t, "10", req.Query.Get("limit"))
}

func TestBuildRequest_Defaults(t *testing.T) {
	h := NewHandler(newRequester(), &mockRecorder{})

	req, err := h.BuildRequest(json.RawMessage(`{"query_text":"laptop"}`))
	require.NoError(t, err)
	assert.Equal(t, "50", req.Query.Get("limit"))
	assert.Equal(t, "0", req.Query.Get("offset"))
}

func TestBuildRequest_MissingQueryText(t *testing.T) {
	h := NewHandler(newRequester(), &mockRecorder{})

	_, err := h.BuildRequest(json.RawMessage(`{"site_id":"MLM"}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "query_text")
}

func TestBuildRequest_MalformedJSON(t *testing.T) {
	h := NewHandler(newRequester(), &mockRecorder{})

	_, err := h.BuildRequest(json.RawMessage(`{"query_text":`))
	require.Error(t, err)
}

func TestOnResult_RecordsCompletedRun(t *testing.T) {
	rec := &mockRecorder{}
	h := NewHandler(newRequester(), rec)

	j := &queue.Job{ID: 1, Type: "search", Payload: json.RawMessage(`{"query_text":"laptop","domain_id":"MLM-LAPTOPS"}`)}
	result := json.RawMessage(`{"results":[{"id":"MLM1"},{"id":"MLM2"}],"paging":{"total":2,"offset":0}}`)

	require.NoError(t, h.OnResult(context.Background(), j, result))
	require.Len(t, rec.runs, 1)

	run := rec.runs[0]
	assert.Equal(t, RunCompleted, run.Status)
	assert.Equal(t, "laptop", run.QueryText)
	assert.Equal(t, "MLM-LAPTOPS", run.DomainID)
	assert.Equal(t, "MLM", run.SiteID)
	assert.Equal(t, 200, run.HTTPStatus)
	assert.Len(t, run.Results, 2)
}

func TestOnResult_UndecodableResultFails(t *testing.T) {
	rec := &mockRecorder{}
	h := NewHandler(newRequester(), rec)

	j := &queue.Job{ID: 1, Type: "search", Payload: json.RawMessage(`{"query_text":"laptop"}`)}
	err := h.OnResult(context.Background(), j, json.RawMessage(`not-json`))
	require.Error(t, err)
	assert.Empty(t, rec.runs)
}

func TestOnFailure_RecordsFailedRun(t *testing.T) {
	rec := &mockRecorder{}
	h := NewHandler(newRequester(), rec)

	j := &queue.Job{ID: 1, Type: "search", Payload: json.RawMessage(`{"query_text":"laptop"}`)}
	h.OnFailure(context.Background(), j, upstream.Outcome{
		HTTPStatus: 429,
		ErrorBody:  json.RawMessage(`{"message":"too many requests"}`),
	})

	require.Len(t, rec.runs, 1)
	run := rec.runs[0]
	assert.Equal(t, RunFailed, run.Status)
	assert.Equal(t, 429, run.HTTPStatus)
	assert.JSONEq(t, `{"message":"too many requests"}`, string(run.Error))
}

func TestHandlerTerminalStatuses(t *testing.T) {
	h := NewHandler(newRequester(), &mockRecorder{})
	assert.Equal(t, queue.StatusDone, h.Success)
	assert.Equal(t, queue.StatusDead, h.Dead)
}
