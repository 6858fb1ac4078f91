// Package memory contains an in-memory crawl event publisher for tests and
// local runs.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/JakeFAU/tiktok-monitor/internal/crawler"
)

// Publisher stores published events for inspection.
type Publisher struct {
	mu     sync.RWMutex
	events []crawler.CrawlEvent
}

// New returns a memory Publisher.
func New() *Publisher {
	return &Publisher{}
}

// Publish records the event and returns a pseudo ID.
func (p *Publisher) Publish(_ context.Context, event crawler.CrawlEvent) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return fmt.Sprintf("memory-%d", len(p.events)), nil
}

// Events returns a copy of the recorded events.
func (p *Publisher) Events() []crawler.CrawlEvent {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]crawler.CrawlEvent, len(p.events))
	copy(out, p.events)
	return out
}
