package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/tiktok-monitor/internal/crawler"
	"github.com/JakeFAU/tiktok-monitor/internal/storage/memory"
)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

type fakeCrawler struct {
	mu      sync.Mutex
	ok      bool
	count   int
	calls   []string
	budgets []crawler.Budget
}

func (f *fakeCrawler) CrawlVideo(_ context.Context, videoID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "video:"+videoID)
	return f.ok
}

func (f *fakeCrawler) CrawlUser(_ context.Context, secUID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "user:"+secUID)
	return f.ok
}

func (f *fakeCrawler) CrawlUserVideos(_ context.Context, secUID string, budget crawler.Budget) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "user_videos:"+secUID)
	f.budgets = append(f.budgets, budget)
	return f.count
}

type fakeResolver struct {
	targets map[string]crawler.ShareTarget
}

func (f fakeResolver) ResolveShareLink(_ context.Context, link string) crawler.Outcome[crawler.ShareTarget] {
	if target, ok := f.targets[link]; ok {
		return crawler.Found(target)
	}
	return crawler.Absent[crawler.ShareTarget](crawler.ReasonShape)
}

type fixture struct {
	store   *memory.Store
	crawler *fakeCrawler
	server  *Server
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	f := fixture{
		store:   memory.NewStore(fixedClock{now: time.Unix(1700000000, 0).UTC()}),
		crawler: &fakeCrawler{ok: true, count: 30},
	}
	resolver := fakeResolver{targets: map[string]crawler.ShareTarget{
		"https://vm.tiktok.com/ZM123/": {
			ResolvedURL: "https://www.tiktok.com/@someone/video/7300000000000000001",
			VideoID:     "7300000000000000001",
		},
		"https://www.tiktok.com/@someone": {
			ResolvedURL: "https://www.tiktok.com/@someone",
			SecUID:      "MS4wsomeone",
		},
	}}
	f.server = NewServer(f.store, f.crawler, resolver, Config{
		Budget:          crawler.Budget{MaxItems: 100, PageSize: 30},
		DefaultInterval: 600,
	}, zap.NewNop())
	return f
}

func (f fixture) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, bytes.NewReader([]byte(body)))
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func (f fixture) seed(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	for _, v := range []crawler.Video{
		{VideoID: "1", PlayCount: 10, AuthorID: "author-a"},
		{VideoID: "2", PlayCount: 300, AuthorID: "author-b"},
		{VideoID: "3", PlayCount: 20, AuthorID: "author-a"},
	} {
		require.NoError(t, f.store.UpsertVideo(ctx, v))
	}
	require.NoError(t, f.store.UpsertVideo(ctx, crawler.Video{VideoID: "1", PlayCount: 15, AuthorID: "author-a"}))
	require.NoError(t, f.store.UpsertUser(ctx, crawler.User{SecUID: "MS4wA", Username: "alpha"}))
}

func TestProbesAndBanner(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	tests := []struct {
		path string
		want string
	}{
		{path: "/", want: "TikTok Monitor API"},
		{path: "/healthz", want: `"ok"`},
		{path: "/readyz", want: `"ready"`},
	}
	for _, tt := range tests {
		rec := f.do(t, http.MethodGet, tt.path, "")
		assert.Equal(t, http.StatusOK, rec.Code, tt.path)
		assert.Contains(t, rec.Body.String(), tt.want)
		assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	}
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.do(t, http.MethodGet, "/healthz", "")
	rec := f.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "http_requests_total")
}

func TestRequestIDHeader(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/healthz", "")
	assert.Len(t, rec.Header().Get("X-Request-ID"), 36)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "caller-id")
	rec = httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	assert.Equal(t, "caller-id", rec.Header().Get("X-Request-ID"))
}

func TestVideoRoutes(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.seed(t)

	rec := f.do(t, http.MethodGet, "/api/videos?limit=2", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode(t, rec)["videos"], 2)

	rec = f.do(t, http.MethodGet, "/api/videos/top?limit=1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	top := decode(t, rec)["videos"].([]any)
	require.Len(t, top, 1)
	assert.Equal(t, "2", top[0].(map[string]any)["video_id"])

	rec = f.do(t, http.MethodGet, "/api/videos/1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.InDelta(t, 15, decode(t, rec)["play_count"], 0)

	rec = f.do(t, http.MethodGet, "/api/videos/1/history", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode(t, rec)["history"], 2)

	rec = f.do(t, http.MethodGet, "/api/videos/missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = f.do(t, http.MethodGet, "/api/videos/missing/history", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/videos?limit=abc", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = f.do(t, http.MethodGet, "/api/videos?offset=-1", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUserRoutes(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.seed(t)

	rec := f.do(t, http.MethodGet, "/api/users", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode(t, rec)["users"], 1)

	rec = f.do(t, http.MethodGet, "/api/users/MS4wA", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "alpha", decode(t, rec)["username"])

	rec = f.do(t, http.MethodGet, "/api/users/nobody", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/users/author-a/videos", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode(t, rec)["videos"], 2)
}

func TestEmptyListsEncodeAsArrays(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	for _, path := range []string{"/api/videos", "/api/users", "/api/tasks", "/api/logs"} {
		rec := f.do(t, http.MethodGet, path, "")
		require.Equal(t, http.StatusOK, rec.Code, path)
		assert.NotContains(t, rec.Body.String(), "null", path)
	}
}

func TestTaskRoutes(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/tasks", `{"task_type":"user_videos","target_id":"MS4wA"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	task := decode(t, rec)["task"].(map[string]any)
	assert.Equal(t, "MS4wA", task["name"])
	assert.InDelta(t, 600, task["interval"], 0)
	assert.Equal(t, true, task["enabled"])
	id := int64(task["id"].(float64))

	rec = f.do(t, http.MethodGet, "/api/tasks", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode(t, rec)["tasks"], 1)

	rec = f.do(t, http.MethodGet, "/api/tasks?active=true", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode(t, rec)["tasks"], 1)

	rec = f.do(t, http.MethodDelete, "/api/tasks/"+jsonNumber(id), "")
	require.Equal(t, http.StatusOK, rec.Code)
	rec = f.do(t, http.MethodDelete, "/api/tasks/"+jsonNumber(id), "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = f.do(t, http.MethodDelete, "/api/tasks/abc", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func jsonNumber(n int64) string {
	b, _ := json.Marshal(n)
	return string(b)
}

func TestCreateTaskValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
		want string
	}{
		{name: "invalid json", body: `{`, want: "invalid JSON"},
		{name: "unknown type", body: `{"task_type":"playlist","target_id":"x"}`, want: "task_type"},
		{name: "missing target", body: `{"task_type":"video","target_id":"  "}`, want: "target_id"},
		{name: "negative interval", body: `{"task_type":"video","target_id":"1","interval":-5}`, want: "interval"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := newFixture(t)
			rec := f.do(t, http.MethodPost, "/api/tasks", tt.body)
			require.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.want)
		})
	}
}

func TestRecentLogs(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	for i := 0; i < 3; i++ {
		require.NoError(t, f.store.AddLog(context.Background(), crawler.CrawlLog{
			TargetType: "video", TargetID: "1", Status: crawler.StatusSuccess,
		}))
	}
	rec := f.do(t, http.MethodGet, "/api/logs?limit=2", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode(t, rec)["logs"], 2)
}

func TestCrawlRoutes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		target   string
		body     string
		ok       bool
		wantCode int
		wantCall string
		wantBody string
	}{
		{name: "video via query", target: "/api/crawl/video?video_id=42", ok: true, wantCode: http.StatusOK, wantCall: "video:42", wantBody: `"success":true`},
		{name: "video via json", target: "/api/crawl/video", body: `{"video_id":"43"}`, ok: true, wantCode: http.StatusOK, wantCall: "video:43", wantBody: `"video_id":"43"`},
		{name: "video failure", target: "/api/crawl/video?video_id=44", wantCode: http.StatusOK, wantCall: "video:44", wantBody: `"success":false`},
		{name: "video missing id", target: "/api/crawl/video", wantCode: http.StatusBadRequest, wantBody: "video_id is required"},
		{name: "user", target: "/api/crawl/user", body: `{"sec_uid":"MS4w"}`, ok: true, wantCode: http.StatusOK, wantCall: "user:MS4w", wantBody: `"sec_uid":"MS4w"`},
		{name: "user missing id", target: "/api/crawl/user", body: `{}`, wantCode: http.StatusBadRequest, wantBody: "sec_uid is required"},
		{name: "user videos", target: "/api/crawl/user-videos?sec_uid=MS4w", wantCode: http.StatusOK, wantCall: "user_videos:MS4w", wantBody: `"count":30`},
		{name: "user videos bad limit", target: "/api/crawl/user-videos?sec_uid=MS4w&max_videos=x", wantCode: http.StatusBadRequest, wantBody: "max_videos"},
		{name: "bad json", target: "/api/crawl/user", body: `{`, wantCode: http.StatusBadRequest, wantBody: "invalid JSON"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := newFixture(t)
			f.crawler.ok = tt.ok
			rec := f.do(t, http.MethodPost, tt.target, tt.body)
			require.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
			assert.Contains(t, rec.Body.String(), tt.wantBody)
			if tt.wantCall == "" {
				assert.Empty(t, f.crawler.calls)
			} else {
				assert.Equal(t, []string{tt.wantCall}, f.crawler.calls)
			}
		})
	}
}

func TestCrawlUserVideosBudget(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	rec := f.do(t, http.MethodPost, "/api/crawl/user-videos", `{"sec_uid":"MS4w","max_videos":10}`)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = f.do(t, http.MethodPost, "/api/crawl/user-videos", `{"sec_uid":"MS4w"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	require.Len(t, f.crawler.budgets, 2)
	assert.Equal(t, crawler.Budget{MaxItems: 10, PageSize: 30}, f.crawler.budgets[0])
	assert.Equal(t, crawler.Budget{MaxItems: 100, PageSize: 30}, f.crawler.budgets[1])
}

func TestResolve(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/resolve", `{"url":"https://vm.tiktok.com/ZM123/"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "7300000000000000001", body["video_id"])
	assert.Equal(t, "https://vm.tiktok.com/ZM123/", body["url"])
	assert.Equal(t, "https://www.tiktok.com/@someone/video/7300000000000000001", body["resolved_url"])
	assert.NotContains(t, body, "sec_uid")

	rec = f.do(t, http.MethodPost, "/api/resolve", `{"url":"https://www.tiktok.com/@someone"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "MS4wsomeone", decode(t, rec)["sec_uid"])

	rec = f.do(t, http.MethodPost, "/api/resolve", `{"url":"https://example.com"}`)
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "shape", decode(t, rec)["reason"])

	rec = f.do(t, http.MethodPost, "/api/resolve", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRecoverMiddleware(t *testing.T) {
	t.Parallel()

	h := recoverMiddleware(zap.NewNop())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "internal server error")
}

func TestTimeoutMiddleware(t *testing.T) {
	t.Parallel()

	h := timeoutMiddleware(10 * time.Millisecond)(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
