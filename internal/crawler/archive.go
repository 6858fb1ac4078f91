package crawler

import (
	"context"
	"fmt"
	"path"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/tiktok-monitor/internal/hash/sha256"
)

const archiveContentType = "application/json"

// archiver writes raw detail responses to a BlobStore. A body identical to
// the last one archived for the same key is skipped. A nil archiver is a
// no-op.
type archiver struct {
	store  BlobStore
	prefix string
	clock  Clock
	logger *zap.Logger
	hasher sha256.Hasher

	mu   sync.Mutex
	last map[string]string
}

func newArchiver(store BlobStore, prefix string, clock Clock) *archiver {
	if clock == nil {
		clock = systemClock{}
	}
	return &archiver{
		store:  store,
		prefix: strings.Trim(prefix, "/"),
		clock:  clock,
		logger: zap.NewNop(),
		hasher: sha256.New(),
		last:   make(map[string]string),
	}
}

func (a *archiver) objectPath(kind, key string, at time.Time) string {
	name := fmt.Sprintf("%d.json", at.Unix())
	if a.prefix == "" {
		return path.Join(kind, key, name)
	}
	return path.Join(a.prefix, kind, key, name)
}

// put stores body and logs failures; archiving never affects the crawl.
func (a *archiver) put(ctx context.Context, kind, key string, body []byte) {
	if a == nil {
		return
	}
	id := kind + "/" + key
	digest := a.hasher.Hash(body)
	a.mu.Lock()
	unchanged := a.last[id] == digest
	a.mu.Unlock()
	if unchanged {
		a.logger.Debug("raw payload unchanged", zap.String("key", id), zap.String("sha256", digest))
		return
	}

	p := a.objectPath(kind, key, a.clock.Now())
	uri, err := a.store.PutObject(ctx, p, archiveContentType, body)
	if err != nil {
		a.logger.Warn("archive raw payload failed", zap.String("path", p), zap.Error(err))
		return
	}
	a.mu.Lock()
	a.last[id] = digest
	a.mu.Unlock()
	a.logger.Debug("archived raw payload", zap.String("uri", uri), zap.String("sha256", digest))
}

type systemClock struct{}

func (systemClock) Now() time.Time {
	return time.Now().UTC()
}
