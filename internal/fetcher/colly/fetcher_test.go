package collyfetcher

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/JakeFAU/tiktok-monitor/internal/crawler"
	"github.com/JakeFAU/tiktok-monitor/internal/signer"
)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

// recorder captures the last request seen by a test server.
type recorder struct {
	mu     sync.Mutex
	header http.Header
	query  url.Values
	raw    string
}

func (r *recorder) capture(req *http.Request) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.header = req.Header.Clone()
	r.query = req.URL.Query()
	r.raw = req.URL.RawQuery
}

func newServer(t *testing.T, rec *recorder, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if rec != nil {
			rec.capture(r)
		}
		handler(w, r)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func hostOf(t *testing.T, raw string) string {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u.Hostname()
}

func TestFetchSignsAndSendsHeaders(t *testing.T) {
	t.Parallel()

	rec := &recorder{}
	srv := newServer(t, rec, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"item_info":{}}`))
	})

	now := time.Unix(1700000000, 0)
	f, err := New(Config{
		Cookie:      "sid=abc",
		SignedHosts: []string{hostOf(t, srv.URL)},
	}, WithClock(fixedClock{t: now}))
	require.NoError(t, err)

	out := f.Fetch(context.Background(), crawler.Request{
		Endpoint: crawler.EndpointVideoDetail,
		URL:      srv.URL + "/api/item/detail/",
		Query:    crawler.Query{{Key: "item_id", Value: "7300000000000000000"}},
		Sign:     true,
	})
	body, ok := out.Get()
	require.True(t, ok, out.String())
	assert.JSONEq(t, `{"item_info":{}}`, string(body))

	sig, err := signer.Sign(srv.URL+"/api/item/detail/?item_id=7300000000000000000", signer.DefaultUserAgent, now)
	require.NoError(t, err)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Equal(t, sig.Token, rec.query.Get(signer.QueryParam))
	assert.Equal(t, "7300000000000000000", rec.query.Get("item_id"))
	assert.Equal(t, signer.DefaultUserAgent, rec.header.Get("User-Agent"))
	assert.Equal(t, "application/json", rec.header.Get("Accept"))
	assert.Equal(t, "en-US,en;q=0.9", rec.header.Get("Accept-Language"))
	assert.Equal(t, "https://www.tiktok.com/", rec.header.Get("Referer"))
	assert.Equal(t, "sid=abc", rec.header.Get("Cookie"))
}

func TestFetchSkipsSigningForOtherHosts(t *testing.T) {
	t.Parallel()

	rec := &recorder{}
	srv := newServer(t, rec, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	})

	f, err := New(Config{UserAgent: "test-agent"})
	require.NoError(t, err)

	out := f.Fetch(context.Background(), crawler.Request{
		URL:   srv.URL + "/api/post/item_list/",
		Query: crawler.Query{{Key: "sec_user_id", Value: "a"}, {Key: "count", Value: "30"}},
		Sign:  true,
	})
	require.True(t, out.OK())

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Equal(t, "sec_user_id=a&count=30", rec.raw)
	assert.Empty(t, rec.header.Get("Cookie"))
	assert.Equal(t, "test-agent", rec.header.Get("User-Agent"))
}

func TestFetchNon200IsStatusAbsence(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		status int
	}{
		{name: "not found", status: http.StatusNotFound},
		{name: "forbidden", status: http.StatusForbidden},
		{name: "created", status: http.StatusCreated},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			srv := newServer(t, nil, func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(`{}`))
			})
			f, err := New(Config{})
			require.NoError(t, err)

			out := f.Fetch(context.Background(), crawler.Request{URL: srv.URL})
			assert.Equal(t, crawler.ReasonStatus, out.Reason())
		})
	}
}

func TestFetchTransportFailure(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	f, err := New(Config{Timeout: time.Second})
	require.NoError(t, err)

	out := f.Fetch(context.Background(), crawler.Request{URL: addr})
	assert.Equal(t, crawler.ReasonTransport, out.Reason())
}

func TestFetchCanceledContext(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	srv := newServer(t, nil, func(w http.ResponseWriter, _ *http.Request) {
		<-release
		_, _ = w.Write([]byte(`{}`))
	})
	defer close(release)

	f, err := New(Config{Timeout: 5 * time.Second})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	out := f.Fetch(ctx, crawler.Request{URL: srv.URL})
	assert.Equal(t, crawler.ReasonTransport, out.Reason())
}

func TestFetchRepeatsSameURL(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	hits := 0
	srv := newServer(t, nil, func(w http.ResponseWriter, _ *http.Request) {
		mu.Lock()
		hits++
		mu.Unlock()
		_, _ = w.Write([]byte(`{}`))
	})

	f, err := New(Config{})
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		require.True(t, f.Fetch(context.Background(), crawler.Request{URL: srv.URL + "/same"}).OK())
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 3, hits)
}

func TestFetchConcurrentCalls(t *testing.T) {
	t.Parallel()

	srv := newServer(t, nil, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":"` + r.URL.Query().Get("item_id") + `"}`))
	})

	f, err := New(Config{Timeout: 5 * time.Second, SignedHosts: []string{hostOf(t, srv.URL)}})
	require.NoError(t, err)

	const workers = 8
	bodies := make([]string, workers)
	var wg sync.WaitGroup
	for i := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out := f.Fetch(context.Background(), crawler.Request{
				URL:   srv.URL + "/api/item/detail/",
				Query: crawler.Query{{Key: "item_id", Value: strconv.Itoa(i)}},
				Sign:  true,
			})
			body, _ := out.Get()
			bodies[i] = string(body)
		}()
	}
	wg.Wait()

	for i, body := range bodies {
		assert.JSONEq(t, `{"id":"`+strconv.Itoa(i)+`"}`, body)
	}
}

func TestFetchHonorsTimeout(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	srv := newServer(t, nil, func(w http.ResponseWriter, _ *http.Request) {
		<-release
		_, _ = w.Write([]byte(`{}`))
	})
	t.Cleanup(func() { close(release) })

	f, err := New(Config{Timeout: 50 * time.Millisecond})
	require.NoError(t, err)

	out := f.Fetch(context.Background(), crawler.Request{URL: srv.URL + "/slow"})
	assert.Equal(t, crawler.ReasonTransport, out.Reason())
}

func TestFetchLogsUnderGivenLoggerName(t *testing.T) {
	t.Parallel()

	srv := newServer(t, nil, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})
	core, logs := observer.New(zap.WarnLevel)
	f, err := New(Config{}, WithLogger(zap.New(core).Named("fetcher")))
	require.NoError(t, err)

	require.False(t, f.Fetch(context.Background(), crawler.Request{URL: srv.URL + "/denied"}).OK())

	entries := logs.FilterMessage("request failed").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "fetcher", entries[0].LoggerName)
}

func TestResolveFollowsRedirects(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/ZMabc/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/@alice/video/7300000000000000000?is_from_webapp=1", http.StatusFound)
	})
	mux.HandleFunc("/@alice/video/7300000000000000000", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	f, err := New(Config{})
	require.NoError(t, err)

	got, ok := f.Resolve(context.Background(), srv.URL+"/ZMabc/").Get()
	require.True(t, ok)
	assert.Equal(t, srv.URL+"/@alice/video/7300000000000000000?is_from_webapp=1", got)
}

func TestNewRejectsBadInput(t *testing.T) {
	t.Parallel()

	_, err := New(Config{UserAgent: "agent 中"})
	require.Error(t, err)

	_, err = New(Config{Proxy: "http://[::1"})
	require.Error(t, err)

	f, err := New(Config{Proxy: "http://127.0.0.1:3128"})
	require.NoError(t, err)
	assert.NotNil(t, f)
}

func TestConfigureCollectorHooks(t *testing.T) {
	t.Parallel()

	f, err := New(Config{Cookie: "a=b"})
	require.NoError(t, err)
	var result response

	hooks := &stubHooks{}
	f.configureCollectorHooks(hooks, &result)
	if hooks.onRequest == nil || hooks.onResponse == nil || hooks.onError == nil {
		t.Fatal("expected hooks to be registered")
	}

	collyReq := &colly.Request{Headers: &http.Header{"Accept": {"text/html"}}}
	hooks.onRequest(collyReq)
	assert.Equal(t, "application/json", collyReq.Headers.Get("Accept"))
	assert.Equal(t, []string{"application/json"}, collyReq.Headers.Values("Accept"))
	assert.Equal(t, "a=b", collyReq.Headers.Get("Cookie"))

	hooks.onResponse(&colly.Response{
		StatusCode: http.StatusOK,
		Body:       []byte("body"),
		Request:    &colly.Request{URL: mustParseURL(t, "https://example.com/final")},
	})
	assert.Equal(t, http.StatusOK, result.status)
	assert.Equal(t, "https://example.com/final", result.finalURL)
	body, ok := result.body().Get()
	require.True(t, ok)
	assert.Equal(t, "body", string(body))

	hooks.onError(&colly.Response{StatusCode: http.StatusTooManyRequests}, errors.New("Too Many Requests"))
	assert.Equal(t, http.StatusTooManyRequests, result.status)
	assert.Equal(t, crawler.ReasonStatus, result.body().Reason())

	var bare response
	f.configureCollectorHooks(hooks, &bare)
	hooks.onError(nil, errors.New("boom"))
	assert.EqualError(t, bare.err, "boom")
	assert.Equal(t, crawler.ReasonTransport, bare.body().Reason())
}

func TestShouldSign(t *testing.T) {
	t.Parallel()

	f, err := New(Config{})
	require.NoError(t, err)
	assert.True(t, f.shouldSign("https://www.tiktok.com/api/item/detail/"))
	assert.True(t, f.shouldSign("https://WWW.TIKTOK.COM/api/x"))
	assert.False(t, f.shouldSign("https://web.tiktok.com/api/x"))
	assert.False(t, f.shouldSign("://bad"))
}

func mustParseURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("failed to parse url %q: %v", raw, err)
	}
	return u
}

type stubHooks struct {
	onRequest  colly.RequestCallback
	onResponse colly.ResponseCallback
	onError    colly.ErrorCallback
}

func (s *stubHooks) OnRequest(cb colly.RequestCallback) {
	s.onRequest = cb
}

func (s *stubHooks) OnResponse(cb colly.ResponseCallback) {
	s.onResponse = cb
}

func (s *stubHooks) OnError(cb colly.ErrorCallback) {
	s.onError = cb
}
