package viewer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiaot623/gogo/crewtrace/internal/domain"
	"github.com/xiaot623/gogo/crewtrace/internal/finalizer"
	"github.com/xiaot623/gogo/crewtrace/internal/poller"
	"github.com/xiaot623/gogo/crewtrace/internal/session"
)

type fakeCrews struct {
	traceID string
	err     error
	crewID  string
}

func (f *fakeCrews) Kickoff(_ context.Context, crewID string, _ map[string]string) (string, error) {
	f.crewID = crewID
	return f.traceID, f.err
}

type idleFetcher struct{}

func (idleFetcher) FetchEvents(context.Context, string, int64) (domain.PollResponse, error) {
	return domain.PollResponse{}, nil
}

func newTestHandler(t *testing.T, crews *fakeCrews) (*Handler, *session.Session, *finalizer.MemoryHistory) {
	t.Helper()
	history := finalizer.NewMemoryHistory()
	sess := session.New(poller.New(idleFetcher{}, time.Hour, time.Second), finalizer.New(history))
	t.Cleanup(sess.Stop)
	if crews == nil {
		crews = &fakeCrews{}
	}
	return NewHandler(context.Background(), sess, crews, history), sess, history
}

func doJSON(t *testing.T, e *echo.Echo, method, path, body string, fn echo.HandlerFunc) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	require.NoError(t, fn(e.NewContext(req, rec)))
	return rec
}

func decodeFrame(t *testing.T, rec *httptest.ResponseRecorder) domain.Frame {
	t.Helper()
	var frame domain.Frame
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &frame))
	return frame
}

func TestKickoffStartsSession(t *testing.T) {
	e := echo.New()
	crews := &fakeCrews{traceID: "0123456789abcdef0123456789abcdef"}
	h, sess, _ := newTestHandler(t, crews)

	rec := doJSON(t, e, http.MethodPost, "/v1/session/kickoff", `{"crew_id":"crew-1","topology":{"agents":[{"id":"A1","role":"Writer"}],"process":"sequential"}}`, h.Kickoff)
	require.Equal(t, http.StatusOK, rec.Code)

	frame := decodeFrame(t, rec)
	assert.Equal(t, crews.traceID, frame.TraceID)
	assert.Equal(t, "crew-1", crews.crewID)
	assert.True(t, sess.Running())
}

func TestKickoffErrors(t *testing.T) {
	e := echo.New()
	h, _, _ := newTestHandler(t, &fakeCrews{err: errors.New("unreachable")})

	rec := doJSON(t, e, http.MethodPost, "/v1/session/kickoff", `{}`, h.Kickoff)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, e, http.MethodPost, "/v1/session/kickoff", `{"crew_id":"crew-1"}`, h.Kickoff)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestStartRequiresTraceID(t *testing.T) {
	e := echo.New()
	h, _, _ := newTestHandler(t, nil)

	rec := doJSON(t, e, http.MethodPost, "/v1/session/start", `{"trace_id":""}`, h.Start)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCursorAndFrames(t *testing.T) {
	e := echo.New()
	h, sess, _ := newTestHandler(t, nil)

	rec := doJSON(t, e, http.MethodPost, "/v1/session/cursor", `{"index":0}`, h.MoveCursor)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = doJSON(t, e, http.MethodPost, "/v1/session/start", `{"trace_id":"t1","topology":{"agents":[{"id":"A1","role":"Writer"}],"tasks":[{"id":"T1","agent_id":"A1"}]}}`, h.Start)
	require.Equal(t, http.StatusOK, rec.Code)

	sess.Merge("t1", []domain.ExecutionEvent{
		{ID: "e1", Type: domain.EventTypeLLMCall, Timestamp: 1, AgentID: "A1"},
		{ID: "e2", Type: domain.EventTypeCompletion, Timestamp: 2, AgentID: "A1"},
	})

	rec = doJSON(t, e, http.MethodGet, "/v1/session/frame", "", h.GetFrame)
	frame := decodeFrame(t, rec)
	assert.Equal(t, 1, frame.Index)
	assert.Empty(t, frame.ActiveNodes())

	rec = doJSON(t, e, http.MethodPost, "/v1/session/cursor", `{"index":0}`, h.MoveCursor)
	require.Equal(t, http.StatusOK, rec.Code)
	frame = decodeFrame(t, rec)
	assert.Equal(t, 0, frame.Index)
	assert.False(t, frame.Tracking)
	require.Len(t, frame.ActiveNodes(), 1)
	assert.Equal(t, "A1", frame.ActiveNodes()[0].NodeID)

	rec = doJSON(t, e, http.MethodGet, "/v1/session/frame?index=1", "", h.GetFrame)
	assert.Equal(t, 1, decodeFrame(t, rec).Index)

	rec = doJSON(t, e, http.MethodGet, "/v1/session/frame?index=x", "", h.GetFrame)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, e, http.MethodPost, "/v1/session/follow", "", h.Follow)
	frame = decodeFrame(t, rec)
	assert.Equal(t, 1, frame.Index)
	assert.True(t, frame.Tracking)

	rec = doJSON(t, e, http.MethodGet, "/v1/session/events", "", h.GetEvents)
	var events domain.PollResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &events))
	assert.Len(t, events.Events, 2)

	rec = doJSON(t, e, http.MethodPost, "/v1/session/stop", "", h.Stop)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, sess.TraceID())
}

func TestListResults(t *testing.T) {
	e := echo.New()
	h, _, history := newTestHandler(t, nil)
	require.NoError(t, history.AppendResult(context.Background(), domain.Result{TraceID: "t1", Status: domain.TraceStatusCompleted, Output: "done"}))

	rec := doJSON(t, e, http.MethodGet, "/v1/session/results?limit=5", "", h.ListResults)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Results []domain.Result `json:"results"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Results, 1)
	assert.Equal(t, "done", body.Results[0].Output)
}
