// Package collyfetcher implements crawler.Fetcher using gocolly.
package collyfetcher

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/tiktok-monitor/internal/crawler"
	"github.com/JakeFAU/tiktok-monitor/internal/metrics"
	"github.com/JakeFAU/tiktok-monitor/internal/signer"
)

const (
	endpointResolve = "resolve"
	outcomeOK       = "ok"

	defaultReferer        = "https://www.tiktok.com/"
	defaultAccept         = "application/json"
	defaultAcceptLanguage = "en-US,en;q=0.9"
	defaultTimeout        = 30 * time.Second
)

// DefaultSignedHosts lists the hosts whose requests carry a signature.
var DefaultSignedHosts = []string{"www.tiktok.com"}

// Config controls collector behavior.
type Config struct {
	UserAgent string
	Cookie    string
	// Proxy is an optional proxy URL applied to every request.
	Proxy              string
	Timeout            time.Duration
	SignedHosts        []string
	InsecureSkipVerify bool
}

// Fetcher implements crawler.Fetcher using the Colly collector.
type Fetcher struct {
	cfg           Config
	signer        *signer.Signer
	clock         crawler.Clock
	headers       http.Header
	signedHosts   map[string]struct{}
	baseCollector *colly.Collector
	logger        *zap.Logger
}

// Option customizes a Fetcher.
type Option func(*Fetcher)

// WithClock sets the clock used for signature timestamps.
func WithClock(clock crawler.Clock) Option {
	return func(f *Fetcher) {
		if clock != nil {
			f.clock = clock
		}
	}
}

// WithLogger sets the fetcher logger.
func WithLogger(logger *zap.Logger) Option {
	return func(f *Fetcher) {
		if logger != nil {
			f.logger = logger
		}
	}
}

type collectorHooks interface {
	OnRequest(colly.RequestCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// New builds a Fetcher. It fails when the user agent cannot be signed or the
// proxy URL does not parse.
func New(cfg Config, opts ...Option) (*Fetcher, error) {
	sgn, err := signer.New(cfg.UserAgent)
	if err != nil {
		return nil, fmt.Errorf("create signer: %w", err)
	}
	cfg.UserAgent = sgn.UserAgent()

	transport := newHTTPTransport(cfg.InsecureSkipVerify)
	if cfg.Proxy != "" {
		proxyURL, err := url.Parse(cfg.Proxy)
		if err != nil {
			return nil, fmt.Errorf("parse proxy url: %w", err)
		}
		transport.Proxy = http.ProxyURL(proxyURL)
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	// Clones share the backend client, so its timeout is set once here.
	c := colly.NewCollector(colly.Async(false), colly.AllowURLRevisit())
	c.WithTransport(transport)
	c.SetRequestTimeout(cfg.Timeout)

	hosts := cfg.SignedHosts
	if len(hosts) == 0 {
		hosts = DefaultSignedHosts
	}
	signed := make(map[string]struct{}, len(hosts))
	for _, h := range hosts {
		signed[strings.ToLower(strings.TrimSpace(h))] = struct{}{}
	}

	f := &Fetcher{
		cfg:           cfg,
		signer:        sgn,
		clock:         systemClock{},
		headers:       defaultHeaders(cfg),
		signedHosts:   signed,
		baseCollector: c,
		logger:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

func defaultHeaders(cfg Config) http.Header {
	h := http.Header{}
	h.Set("Accept", defaultAccept)
	h.Set("Accept-Language", defaultAcceptLanguage)
	h.Set("Referer", defaultReferer)
	if cfg.Cookie != "" {
		h.Set("Cookie", cfg.Cookie)
	}
	return h
}

// Fetch executes one GET and returns the body of an HTTP 200 reply.
func (f *Fetcher) Fetch(ctx context.Context, request crawler.Request) crawler.Outcome[[]byte] {
	target := f.targetURL(request)
	result := f.visit(ctx, target)

	out := result.body()
	f.observe(request.Endpoint, target, result, out)
	return out
}

// Resolve follows redirects without signing and returns the final URL. Any
// HTTP reply counts, whatever its status.
func (f *Fetcher) Resolve(ctx context.Context, rawURL string) crawler.Outcome[string] {
	result := f.visit(ctx, rawURL)

	var out crawler.Outcome[string]
	if result.status == 0 || result.finalURL == "" {
		out = crawler.Absent[string](crawler.ReasonTransport)
	} else {
		out = crawler.Found(result.finalURL)
	}
	f.observe(endpointResolve, rawURL, result, out)
	return out
}

// targetURL joins the query and, when asked and allowed, signs the result.
func (f *Fetcher) targetURL(request crawler.Request) string {
	encoded := request.Query.Encode()
	if request.Sign && f.shouldSign(request.URL) {
		return f.signer.SignURL(request.URL, encoded, f.clock.Now()).SignedURL
	}
	return signer.JoinQuery(request.URL, encoded)
}

func (f *Fetcher) shouldSign(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	_, ok := f.signedHosts[strings.ToLower(u.Hostname())]
	return ok
}

func (f *Fetcher) buildCollector(result *response) *colly.Collector {
	collector := f.baseCollector.Clone()
	collector.UserAgent = f.cfg.UserAgent
	f.configureCollectorHooks(collector, result)
	return collector
}

func (f *Fetcher) configureCollectorHooks(hooks collectorHooks, result *response) {
	hooks.OnRequest(func(r *colly.Request) {
		f.copyHeaders(r)
	})

	hooks.OnResponse(func(r *colly.Response) {
		result.record(r)
	})

	hooks.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode != 0 {
			result.record(r)
		}
		result.err = err
	})
}

func (f *Fetcher) copyHeaders(r *colly.Request) {
	for key, values := range f.headers {
		r.Headers.Del(key)
		for _, v := range values {
			r.Headers.Add(key, v)
		}
	}
}

// visit runs one collector. A cancelled context abandons the callbacks'
// result, which stays owned by the collector goroutine.
func (f *Fetcher) visit(ctx context.Context, target string) response {
	result := &response{}
	collector := f.buildCollector(result)
	if err := f.runCollector(ctx, collector, target); err != nil {
		if ctx.Err() != nil {
			return response{err: err}
		}
		if result.status == 0 {
			result.err = err
		}
	}
	return *result
}

func (f *Fetcher) runCollector(ctx context.Context, collector *colly.Collector, target string) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(target)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("colly visit failed: %w", err)
		}
		return nil
	}
}

func (f *Fetcher) observe(endpoint, target string, result response, out interface{ Reason() crawler.AbsentReason }) {
	reason := out.Reason()
	if reason == "" {
		metrics.ObserveFetch(endpoint, outcomeOK)
		return
	}
	metrics.ObserveFetch(endpoint, string(reason))

	fields := []zap.Field{
		zap.String("endpoint", endpoint),
		zap.String("url", target),
		zap.String("reason", string(reason)),
	}
	if result.status != 0 {
		fields = append(fields, zap.Int("status", result.status))
		f.logger.Warn("request failed", fields...)
		return
	}
	f.logger.Error("request error", append(fields, zap.Error(result.err))...)
}

// response captures what the collector callbacks saw.
type response struct {
	status   int
	data     []byte
	finalURL string
	err      error
}

func (r *response) record(resp *colly.Response) {
	r.status = resp.StatusCode
	r.data = append([]byte(nil), resp.Body...)
	if resp.Request != nil && resp.Request.URL != nil {
		r.finalURL = resp.Request.URL.String()
	}
}

func (r *response) body() crawler.Outcome[[]byte] {
	switch {
	case r.status == 0:
		return crawler.Absent[[]byte](crawler.ReasonTransport)
	case r.status != http.StatusOK:
		return crawler.Absent[[]byte](crawler.ReasonStatus)
	default:
		return crawler.Found(r.data)
	}
}

func newHTTPTransport(insecure bool) *http.Transport {
	t := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
	if insecure {
		t.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // opt-in
	}
	return t
}

type systemClock struct{}

func (systemClock) Now() time.Time {
	return time.Now().UTC()
}
