// Package pubsub publishes crawl events to Google Cloud Pub/Sub.
package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	pubsub "cloud.google.com/go/pubsub/v2"

	"github.com/JakeFAU/tiktok-monitor/internal/crawler"
)

var _ crawler.Publisher = (*Publisher)(nil)

// publishFunc sends one message and blocks until the server acknowledges it.
type publishFunc func(ctx context.Context, msg *pubsub.Message) (string, error)

// Publisher wraps a Pub/Sub topic publisher.
type Publisher struct {
	publish publishFunc
	stop    func()
}

// New creates a Publisher for the provided topic publisher.
func New(publisher *pubsub.Publisher) *Publisher {
	return &Publisher{
		publish: func(ctx context.Context, msg *pubsub.Message) (string, error) {
			return publisher.Publish(ctx, msg).Get(ctx)
		},
		stop: publisher.Stop,
	}
}

// Open dials Pub/Sub with application default credentials and returns a
// Publisher for projects/<projectID>/topics/<topicID>. close releases the
// client.
func Open(ctx context.Context, projectID, topicID string) (*Publisher, func() error, error) {
	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, nil, fmt.Errorf("create pubsub client: %w", err)
	}
	p := New(client.Publisher(fullTopicName(projectID, topicID)))
	closeFn := func() error {
		p.Stop()
		if err := client.Close(); err != nil {
			return fmt.Errorf("close pubsub client: %w", err)
		}
		return nil
	}
	return p, closeFn, nil
}

func fullTopicName(projectID, topicID string) string {
	return fmt.Sprintf("projects/%s/topics/%s", projectID, topicID)
}

// Publish marshals the event to JSON and publishes it. Attributes carry the
// task type and status so subscribers can filter without decoding.
func (p *Publisher) Publish(ctx context.Context, event crawler.CrawlEvent) (string, error) {
	if p.publish == nil {
		return "", fmt.Errorf("pubsub publisher is not configured")
	}
	data, err := json.Marshal(event)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	msg := &pubsub.Message{Data: data, Attributes: attributes(event)}
	id, err := p.publish(ctx, msg)
	if err != nil {
		return "", fmt.Errorf("publish message: %w", err)
	}
	return id, nil
}

// Stop flushes pending messages.
func (p *Publisher) Stop() {
	if p.stop != nil {
		p.stop()
	}
}

func attributes(event crawler.CrawlEvent) map[string]string {
	return map[string]string{
		"task_id":   strconv.FormatInt(event.TaskID, 10),
		"task_type": string(event.TaskType),
		"status":    event.Status,
	}
}
