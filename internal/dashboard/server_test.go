package dashboard

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calebmo/candlebot/internal/engine"
	"github.com/calebmo/candlebot/internal/storage"
)

type fakeControls struct {
	snap      engine.Snapshot
	paused    int
	resumed   int
	refreshed int
	applied   []string
}

func (f *fakeControls) Snapshot() engine.Snapshot { return f.snap }
func (f *fakeControls) Pause()                    { f.paused++ }
func (f *fakeControls) Resume()                   { f.resumed++ }
func (f *fakeControls) RefreshUniverse()          { f.refreshed++ }
func (f *fakeControls) ApplyConfig(doc string)    { f.applied = append(f.applied, doc) }

func newTestServer(t *testing.T, ctl *fakeControls) (*Server, *storage.MockStore) {
	t.Helper()
	log := logrus.New()
	log.SetOutput(io.Discard)
	store := storage.NewMockStore()
	s := NewServer(Config{ListenAddr: "127.0.0.1:0", RefreshHz: 2}, ctl, store, prometheus.NewRegistry(), log)
	return s, store
}

func TestSnapshotEndpoint(t *testing.T) {
	ctl := &fakeControls{snap: engine.Snapshot{
		Connected: true,
		CycleID:   "abc123",
		UpdatedAt: time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC),
	}}
	s, _ := newTestServer(t, ctl)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/snapshot", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var got engine.Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.True(t, got.Connected)
	assert.Equal(t, "abc123", got.CycleID)
}

func TestHealthReflectsConnection(t *testing.T) {
	ctl := &fakeControls{}
	s, _ := newTestServer(t, ctl)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	ctl.snap.Connected = true
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestControlEndpoints(t *testing.T) {
	ctl := &fakeControls{}
	s, _ := newTestServer(t, ctl)

	for _, path := range []string{"/api/pause", "/api/resume", "/api/refresh-universe"} {
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, path, nil))
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}
	assert.Equal(t, 1, ctl.paused)
	assert.Equal(t, 1, ctl.resumed)
	assert.Equal(t, 1, ctl.refreshed)
}

func TestApplyConfigEndpoint(t *testing.T) {
	ctl := &fakeControls{}
	s, _ := newTestServer(t, ctl)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/config", strings.NewReader(`{"ranking":{"top_n":3}}`))
	s.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, ctl.applied, 1)
	assert.JSONEq(t, `{"ranking":{"top_n":3}}`, ctl.applied[0])

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/api/config", strings.NewReader("not json"))
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Len(t, ctl.applied, 1)
}

func TestDecisionsEndpointLimits(t *testing.T) {
	s, store := newTestServer(t, &fakeControls{})
	for i := 0; i < 5; i++ {
		_, err := store.TryInsertDecision(&storage.DecisionRecord{
			IdempotencyKey: string(rune('a' + i)),
			Symbol:         "EURUSD",
			Status:         storage.StatusNoSignal,
		})
		require.NoError(t, err)
	}

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/decisions?limit=3", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var rows []storage.DecisionRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rows))
	assert.Len(t, rows, 3)

	// Bad limit falls back to the default.
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/decisions?limit=-1", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rows))
	assert.Len(t, rows, 5)
}

func TestMetricsEndpoint(t *testing.T) {
	s, _ := newTestServer(t, &fakeControls{})
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestIndexRenders(t *testing.T) {
	s, _ := newTestServer(t, &fakeControls{})
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "candlebot")
	// 2 Hz from the test config.
	assert.Contains(t, rec.Body.String(), `data-refresh="500"`)
}
