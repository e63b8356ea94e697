package web

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conorfennell/knolrep/internal/clock"
	"github.com/conorfennell/knolrep/internal/domain"
	"github.com/conorfennell/knolrep/internal/knol"
	"github.com/conorfennell/knolrep/internal/review"
	"github.com/conorfennell/knolrep/internal/storage"
	cardsync "github.com/conorfennell/knolrep/internal/sync"
)

var t0 = time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)

var (
	goroutine = domain.Card{Question: "What is a goroutine?", Answer: "A lightweight thread."}
	channel   = domain.Card{Question: "What is a channel?", Answer: "A typed conduit."}
)

type testServer struct {
	*Server
	db  *storage.DB
	dir string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	db, err := storage.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	c := clock.Fixed(t0)
	svc := review.NewService(db, c, log)
	runner := &cardsync.Runner{
		DB:          db,
		Reviews:     svc,
		LearnerID:   "alice",
		ReposDir:    filepath.Join(t.TempDir(), "repos"),
		Concurrency: 1,
		Clock:       c,
		Log:         log,
	}

	dir := t.TempDir()
	content := "Q: " + goroutine.Question + "\nA: " + goroutine.Answer + "\n\nQ: " + channel.Question + "\nA: " + channel.Answer + "\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "go.md"), []byte(content), 0o644))

	return &testServer{Server: NewServer(db, svc, runner, "alice", log), db: db, dir: dir}
}

func (ts *testServer) do(t *testing.T, method, path, body string, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	ts.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

// addAndSync registers the test directory as a source and syncs it.
func (ts *testServer) addAndSync(t *testing.T) {
	t.Helper()
	body, _ := json.Marshal(createSourceRequest{Path: ts.dir, Name: "golang"})
	rec := ts.do(t, http.MethodPost, "/api/sources", string(body))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = ts.do(t, http.MethodPost, "/api/sync", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode[syncResponse](t, rec)
	require.Len(t, resp.Sources, 1)
	require.Equal(t, 2, resp.Sources[0].Introduced)
	require.Empty(t, resp.Error)
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestDueAfterSync(t *testing.T) {
	ts := newTestServer(t)
	ts.addAndSync(t)

	rec := ts.do(t, http.MethodGet, "/api/due", "")
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[struct {
		Cards []dueCard `json:"cards"`
	}](t, rec)
	require.Len(t, resp.Cards, 2)
	for _, c := range resp.Cards {
		assert.Equal(t, "golang", c.Collection)
		assert.True(t, c.NextReviewAt.Equal(t0))
	}
	// Equal due times fall back to hash order.
	assert.Less(t, resp.Cards[0].Hash, resp.Cards[1].Hash)

	rec = ts.do(t, http.MethodGet, "/api/due?limit=1", "")
	resp = decode[struct {
		Cards []dueCard `json:"cards"`
	}](t, rec)
	assert.Len(t, resp.Cards, 1)

	rec = ts.do(t, http.MethodGet, "/api/due?collection=other", "")
	resp = decode[struct {
		Cards []dueCard `json:"cards"`
	}](t, rec)
	assert.Empty(t, resp.Cards)

	rec = ts.do(t, http.MethodGet, "/api/due?limit=many", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Bob was never introduced to any card.
	rec = ts.do(t, http.MethodGet, "/api/due", "", LearnerHeader, "bob")
	resp = decode[struct {
		Cards []dueCard `json:"cards"`
	}](t, rec)
	assert.Empty(t, resp.Cards)
}

func TestReviewFlow(t *testing.T) {
	ts := newTestServer(t)
	ts.addAndSync(t)
	hash := knol.Hash(goroutine)

	rec := ts.do(t, http.MethodPost, "/api/cards/"+knol.ShortHash(hash)+"/reviews", `{"quality":4}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	st := decode[stateResponse](t, rec)
	assert.Equal(t, 1, st.Repetitions)
	assert.Equal(t, 1, st.Interval)
	assert.InDelta(t, 2.5, st.EaseFactor, 1e-9)
	assert.True(t, st.NextReviewAt.Equal(t0.AddDate(0, 0, 1)))
	require.NotNil(t, st.LastQuality)
	assert.Equal(t, 4, *st.LastQuality)
	assert.Len(t, st.History, 1)

	rec = ts.do(t, http.MethodGet, "/api/cards/"+hash, "")
	require.Equal(t, http.StatusOK, rec.Code)
	card := decode[cardResponse](t, rec)
	assert.Equal(t, goroutine.Answer, card.Answer)
	require.NotNil(t, card.State)
	assert.Equal(t, 1, card.State.Interval)

	rec = ts.do(t, http.MethodGet, "/api/streak", "")
	require.Equal(t, http.StatusOK, rec.Code)
	streak := decode[streakResponse](t, rec)
	assert.Equal(t, 1, streak.Current)
	assert.Equal(t, 1, streak.Longest)
	assert.Equal(t, "2025-06-15", streak.LastStudyDate)
	assert.Equal(t, []string{"2025-06-15"}, streak.StudyDates)

	rec = ts.do(t, http.MethodGet, "/api/stats", "")
	require.Equal(t, http.StatusOK, rec.Code)
	stats := decode[statsResponse](t, rec)
	assert.Equal(t, statsResponse{Total: 2, New: 1, Learning: 1, Due: 1}, stats)
}

func TestReviewErrors(t *testing.T) {
	ts := newTestServer(t)
	ts.addAndSync(t)
	hash := knol.Hash(goroutine)

	testCases := []struct {
		name   string
		path   string
		body   string
		header []string
		want   int
	}{
		{"quality too high", "/api/cards/" + hash + "/reviews", `{"quality":6}`, nil, http.StatusBadRequest},
		{"quality negative", "/api/cards/" + hash + "/reviews", `{"quality":-1}`, nil, http.StatusBadRequest},
		{"quality missing", "/api/cards/" + hash + "/reviews", `{}`, nil, http.StatusBadRequest},
		{"bad json", "/api/cards/" + hash + "/reviews", `{`, nil, http.StatusBadRequest},
		{"unknown card", "/api/cards/ffffffff/reviews", `{"quality":4}`, nil, http.StatusNotFound},
		{"learner without state", "/api/cards/" + hash + "/reviews", `{"quality":4}`, []string{LearnerHeader, "bob"}, http.StatusNotFound},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			rec := ts.do(t, http.MethodPost, tc.path, tc.body, tc.header...)
			assert.Equal(t, tc.want, rec.Code, rec.Body.String())
		})
	}

	// None of the rejected reviews touched the state.
	rec := ts.do(t, http.MethodGet, "/api/cards/"+hash, "")
	card := decode[cardResponse](t, rec)
	require.NotNil(t, card.State)
	assert.Zero(t, card.State.Repetitions)
	assert.Empty(t, card.State.History)
}

func TestCardWithoutState(t *testing.T) {
	ts := newTestServer(t)
	ts.addAndSync(t)

	rec := ts.do(t, http.MethodGet, "/api/cards/"+knol.Hash(channel), "", LearnerHeader, "bob")
	require.Equal(t, http.StatusOK, rec.Code)
	card := decode[cardResponse](t, rec)
	assert.Equal(t, channel.Question, card.Question)
	assert.Nil(t, card.State)
}

func TestSources(t *testing.T) {
	ts := newTestServer(t)
	ts.addAndSync(t)

	body, _ := json.Marshal(createSourceRequest{Path: ts.dir})
	rec := ts.do(t, http.MethodPost, "/api/sources", string(body))
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/sources", `{"path":""}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/sources", "")
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[struct {
		Sources []sourceResponse `json:"sources"`
	}](t, rec)
	require.Len(t, list.Sources, 1)
	src := list.Sources[0]
	assert.Equal(t, storage.SourceLocal, src.Type)
	assert.Equal(t, "golang", src.Name)
	assert.NotNil(t, src.LastScanned)

	rec = ts.do(t, http.MethodDelete, "/api/sources/abc", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = ts.do(t, http.MethodDelete, "/api/sources/999", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(t, http.MethodDelete, "/api/sources/1", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	// Deleting the source removed its cards and their review states.
	rec = ts.do(t, http.MethodGet, "/api/stats", "")
	assert.Equal(t, statsResponse{}, decode[statsResponse](t, rec))
}

func TestMethodNotAllowed(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodPut, "/api/sources", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
