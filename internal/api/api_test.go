package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/recall/internal/review"
	"github.com/starford/recall/internal/reviewservice"
	"github.com/starford/recall/internal/schedule"
	"github.com/starford/recall/internal/storage"
	"github.com/starford/recall/internal/testutil"
)

var testNow = time.Date(2026, 3, 10, 9, 0, 0, 0, time.Local)

var testVault = map[string]string{
	"hub.md":   "---\ntags: [review]\n---\nSee [[a]] and [[b]].\n",
	"a.md":     "---\ntags: [review]\nsr-due: 2026-03-01\nsr-interval: 4\nsr-ease: 250\n---\nBack to [[hub]].\n",
	"b.md":     "---\ntags: [review]\nsr-due: 2026-09-01\nsr-interval: 60\nsr-ease: 250\n---\nLater.\n",
	"deck.md":  "#flashcards\n\n## Graphs\n\nWhat is a DAG::A directed acyclic graph\n",
	"plain.md": "No tags here.\n",
}

// testEnv sets up a temp vault, SQLite DB, synced review service and router.
// A non-empty authToken enables token mode.
func testEnv(t *testing.T, authToken string) (*reviewservice.Service, http.Handler, *storage.FS) {
	t.Helper()
	return testEnvWithSSE(t, authToken, nil)
}

func testEnvWithSSE(t *testing.T, authToken string, sseHandler http.Handler) (*reviewservice.Service, http.Handler, *storage.FS) {
	t.Helper()

	store := testutil.TestVault(t, testVault)
	svc, err := reviewservice.New(store, testutil.TestDB(t), reviewservice.Options{
		Params:   schedule.DefaultParams(),
		Settings: review.Settings{TagsToReview: []string{"review"}, FlashcardsTag: "flashcards"},
	}, testutil.Logger(),
		reviewservice.WithClock(func() time.Time { return testNow }),
		reviewservice.WithSchedulerOptions(schedule.WithoutFuzz()),
	)
	require.NoError(t, err)
	_, err = svc.Sync(context.Background())
	require.NoError(t, err)
	router := NewRouter(svc, authToken != "", authToken, sseHandler)
	return svc, router, store
}

func do(t *testing.T, h http.Handler, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, target, &buf)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestQueue(t *testing.T) {
	_, router, _ := testEnv(t, "")

	w := do(t, router, http.MethodGet, "/queue?top=2", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp QueueResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.NotesDue, 1)
	assert.Equal(t, "a.md", resp.NotesDue[0].Path)
	require.Len(t, resp.Upcoming, 1)
	assert.Equal(t, "b.md", resp.Upcoming[0].Path)
	require.Len(t, resp.NotesNew, 1)
	assert.Equal(t, "hub.md", resp.NotesNew[0].Path)
	assert.Equal(t, 1, resp.Stats.CardsNew)
	assert.Len(t, resp.TopRanked, 2)
}

func TestQueue_InvalidTop(t *testing.T) {
	_, router, _ := testEnv(t, "")

	w := do(t, router, http.MethodGet, "/queue?top=-1", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestNextNote(t *testing.T) {
	_, router, _ := testEnv(t, "")

	w := do(t, router, http.MethodGet, "/notes/next", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var n review.Note
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &n))
	assert.Equal(t, "a.md", n.Path, "the due note comes first")
}

func TestReviewNote(t *testing.T) {
	_, router, store := testEnv(t, "")

	w := do(t, router, http.MethodPost, "/notes/review/a.md", ReviewRequest{Response: schedule.Good})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var res NoteResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Equal(t, 10, res.Schedule.Interval)
	assert.Equal(t, 250, res.Schedule.Ease)

	data, err := store.Read("a.md")
	require.NoError(t, err)
	assert.Contains(t, string(data), "sr-due: 2026-03-20\nsr-interval: 10\nsr-ease: 250\n")

	// Reviewed notes leave the queue.
	w = do(t, router, http.MethodPost, "/notes/review/a.md", ReviewRequest{Response: schedule.Good})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestReviewNote_BadResponse(t *testing.T) {
	_, router, _ := testEnv(t, "")

	for _, body := range []string{`{"response":"meh"}`, `{}`, `not json`} {
		req := httptest.NewRequest(http.MethodPost, "/notes/review/a.md", strings.NewReader(body))
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code, "body %s", body)
	}
}

func TestReviewNote_EncodedPath(t *testing.T) {
	svc, router, _ := testEnv(t, "")

	// hub.md is new; its ease comes from its scheduled neighbours.
	w := do(t, router, http.MethodPost, "/notes/review/hub%2Emd", ReviewRequest{Response: schedule.Hard})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	_, ok := svc.Queue(context.Background()).Note("hub.md")
	assert.False(t, ok, "hub.md still queued after review")
}

func TestGetNote(t *testing.T) {
	_, router, _ := testEnv(t, "")

	w := do(t, router, http.MethodGet, "/notes/hub.md", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var note NoteDetail
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &note))
	assert.True(t, note.Queued)
	assert.Positive(t, note.Score)
	assert.Equal(t, []string{"a.md"}, note.Backlinks)

	w = do(t, router, http.MethodGet, "/notes/nope.md", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestPreviewNote(t *testing.T) {
	_, router, _ := testEnv(t, "")

	w := do(t, router, http.MethodGet, "/notes/preview/a.md", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var resp PreviewResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Previews, 3)
	assert.Equal(t, schedule.Hard, resp.Previews[0].Response)
	assert.Equal(t, 2.0, resp.Previews[0].Interval)

	w = do(t, router, http.MethodGet, "/notes/preview/plain.md", nil)
	assert.Equal(t, http.StatusNotFound, w.Code, "unqueued note")
}

func TestSkipNote(t *testing.T) {
	_, router, _ := testEnv(t, "")

	require.Equal(t, http.StatusNoContent, do(t, router, http.MethodPost, "/notes/skip/a.md", nil).Code)
	assert.Equal(t, http.StatusNotFound, do(t, router, http.MethodPost, "/notes/skip/a.md", nil).Code)
}

func TestNextNote_EmptyQueue(t *testing.T) {
	_, router, _ := testEnv(t, "")

	do(t, router, http.MethodPost, "/notes/skip/a.md", nil)
	do(t, router, http.MethodPost, "/notes/skip/hub.md", nil)
	w := do(t, router, http.MethodGet, "/notes/next", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCards(t *testing.T) {
	_, router, store := testEnv(t, "")

	w := do(t, router, http.MethodGet, "/cards/next", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var c Card
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &c))
	assert.Equal(t, "What is a DAG", c.Front)
	assert.Equal(t, "Graphs", c.Context)

	w = do(t, router, http.MethodPost, "/cards/"+c.ID+"/review", ReviewRequest{Response: schedule.Easy})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	data, _ := store.Read("deck.md")
	assert.True(t, strings.HasSuffix(string(data), "What is a DAG::A directed acyclic graph\n<!--SR:2026-03-14,4,270-->\n"),
		"deck not rewritten:\n%s", data)

	w = do(t, router, http.MethodPost, "/cards/"+c.ID+"/skip", nil)
	assert.Equal(t, http.StatusNotFound, w.Code, "reviewed card")
}

func TestReviews(t *testing.T) {
	_, router, _ := testEnv(t, "")

	do(t, router, http.MethodPost, "/notes/review/a.md", ReviewRequest{Response: schedule.Easy})

	w := do(t, router, http.MethodGet, "/reviews?kind=note", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var resp ReviewsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Reviews, 1)
	assert.Equal(t, "a.md", resp.Reviews[0].Item)
	assert.Equal(t, "Easy", resp.Reviews[0].Response)

	w = do(t, router, http.MethodGet, "/reviews?kind=card", nil)
	resp = ReviewsResponse{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Empty(t, resp.Reviews)

	w = do(t, router, http.MethodGet, "/reviews?kind=deck", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSync(t *testing.T) {
	_, router, store := testEnv(t, "")

	require.NoError(t, store.Write("new.md", []byte("---\ntags: [review]\n---\n")))
	w := do(t, router, http.MethodPost, "/sync", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var rep SyncReport
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rep))
	assert.Equal(t, 1, rep.Index.Indexed)
	assert.Equal(t, 2, rep.Queue.NotesNew)
}

func TestAuthMiddleware_ValidToken(t *testing.T) {
	_, router, _ := testEnv(t, "secret123")

	req := httptest.NewRequest(http.MethodGet, "/queue", nil)
	req.Header.Set("Authorization", "Bearer secret123")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAuthMiddleware_MissingToken(t *testing.T) {
	_, router, _ := testEnv(t, "secret123")

	w := do(t, router, http.MethodGet, "/queue", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthMiddleware_WrongToken(t *testing.T) {
	_, router, _ := testEnv(t, "secret123")

	req := httptest.NewRequest(http.MethodGet, "/queue", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

// SSE endpoint auth tests.

func blockingSSE() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
		<-r.Context().Done()
	})
}

func TestSSEEvents_AuthProtected(t *testing.T) {
	_, router, _ := testEnvWithSSE(t, "secret", blockingSSE())

	w := do(t, router, http.MethodGet, "/events", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestSSEEvents_ValidToken(t *testing.T) {
	_, router, _ := testEnvWithSSE(t, "tok", blockingSSE())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/events", nil).WithContext(ctx)
	req.Header.Set("Authorization", "Bearer tok")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.NotEqual(t, http.StatusUnauthorized, w.Code)
}

func TestSSEEvents_QueryToken(t *testing.T) {
	_, router, _ := testEnvWithSSE(t, "tok", blockingSSE())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/events?access_token=tok", nil).WithContext(ctx)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.NotEqual(t, http.StatusUnauthorized, w.Code)

	w = do(t, router, http.MethodGet, "/events?access_token=nope", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
