package crawler

import (
	"context"
	"errors"
	"sync"
	"time"
)

// fakeFetcher replays canned outcomes per endpoint, in order.
type fakeFetcher struct {
	mu        sync.Mutex
	responses map[string][]Outcome[[]byte]
	resolved  map[string]Outcome[string]
	requests  []Request
	resolves  []string
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		responses: make(map[string][]Outcome[[]byte]),
		resolved:  make(map[string]Outcome[string]),
	}
}

func (f *fakeFetcher) queue(endpoint string, outcomes ...Outcome[[]byte]) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses[endpoint] = append(f.responses[endpoint], outcomes...)
}

func (f *fakeFetcher) queueBody(endpoint string, bodies ...string) {
	for _, b := range bodies {
		f.queue(endpoint, Found([]byte(b)))
	}
}

func (f *fakeFetcher) Fetch(_ context.Context, req Request) Outcome[[]byte] {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	queued := f.responses[req.Endpoint]
	if len(queued) == 0 {
		return Absent[[]byte](ReasonTransport)
	}
	out := queued[0]
	f.responses[req.Endpoint] = queued[1:]
	return out
}

func (f *fakeFetcher) Resolve(_ context.Context, rawURL string) Outcome[string] {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resolves = append(f.resolves, rawURL)
	if out, ok := f.resolved[rawURL]; ok {
		return out
	}
	return Absent[string](ReasonTransport)
}

func (f *fakeFetcher) calls(endpoint string) []Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Request
	for _, r := range f.requests {
		if r.Endpoint == endpoint {
			out = append(out, r)
		}
	}
	return out
}

// fakeRecords records upserts and can be told to fail.
type fakeRecords struct {
	mu      sync.Mutex
	videos  []Video
	users   []User
	failErr error
}

func (s *fakeRecords) UpsertVideo(_ context.Context, v Video) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.videos = append(s.videos, v)
	return s.failErr
}

func (s *fakeRecords) UpsertUser(_ context.Context, u User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users = append(s.users, u)
	return s.failErr
}

type blobPut struct {
	path        string
	contentType string
	data        []byte
}

type fakeBlobs struct {
	mu   sync.Mutex
	puts []blobPut
	err  error
}

func (b *fakeBlobs) PutObject(_ context.Context, path, contentType string, data []byte) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return "", b.err
	}
	b.puts = append(b.puts, blobPut{path: path, contentType: contentType, data: data})
	return "mem://" + path, nil
}

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

var errBoom = errors.New("boom")
