// Package notifications delivers best-effort order and payout notices.
// Delivery failures are logged and never surface to callers.
package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"

	"github.com/angelmondragon/marketcore/pkg/logger"
)

const (
	TopicOrderCreated    = "order.created"
	TopicOrderStatus     = "order.status_changed"
	TopicPayoutRequested = "vendor.payout.requested"

	defaultPublishTimeout = 5 * time.Second
)

// Notifier sends a notice on topic. Implementations must not block callers
// on delivery problems.
type Notifier interface {
	Notify(ctx context.Context, topic, title, body string)
}

// LogNotifier writes notices to the structured log.
type LogNotifier struct {
	logg *logger.Logger
}

func NewLogNotifier(logg *logger.Logger) *LogNotifier {
	return &LogNotifier{logg: logg}
}

func (n *LogNotifier) Notify(ctx context.Context, topic, title, body string) {
	if n == nil || n.logg == nil {
		return
	}
	ctx = n.logg.WithFields(ctx, map[string]any{"topic": topic, "title": title, "body": body})
	n.logg.Info(ctx, "notification")
}

type publishResult interface {
	Get(ctx context.Context) (string, error)
}

type publisher interface {
	Publish(ctx context.Context, msg *gcppubsub.Message) publishResult
}

// Message is the JSON payload published for each notice.
type Message struct {
	Topic  string    `json:"topic"`
	Title  string    `json:"title"`
	Body   string    `json:"body"`
	SentAt time.Time `json:"sent_at"`
}

// PubSubNotifier publishes notices to the configured notification topic.
// Notify hands the message to the publisher and returns; the server ack is
// awaited in the background.
type PubSubNotifier struct {
	pub     publisher
	logg    *logger.Logger
	timeout time.Duration
	now     func() time.Time
	pending sync.WaitGroup
}

// NewPubSubNotifier wraps a Pub/Sub publisher.
func NewPubSubNotifier(p *gcppubsub.Publisher, logg *logger.Logger) (*PubSubNotifier, error) {
	if p == nil {
		return nil, fmt.Errorf("pubsub publisher required")
	}
	return newPubSubNotifier(&gcpPublisher{Publisher: p}, logg), nil
}

func newPubSubNotifier(pub publisher, logg *logger.Logger) *PubSubNotifier {
	return &PubSubNotifier{pub: pub, logg: logg, timeout: defaultPublishTimeout, now: time.Now}
}

func (n *PubSubNotifier) Notify(ctx context.Context, topic, title, body string) {
	result, err := n.publish(ctx, topic, title, body)
	if err != nil {
		n.logFailure(ctx, topic, err)
		return
	}
	// The caller's request may finish before the ack arrives.
	waitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), n.timeout)
	n.pending.Add(1)
	go func() {
		defer n.pending.Done()
		defer cancel()
		if _, err := result.Get(waitCtx); err != nil {
			n.logFailure(ctx, topic, err)
		}
	}()
}

// Close waits for outstanding publish results.
func (n *PubSubNotifier) Close() error {
	n.pending.Wait()
	return nil
}

func (n *PubSubNotifier) logFailure(ctx context.Context, topic string, err error) {
	if n.logg == nil {
		return
	}
	n.logg.Error(n.logg.WithField(ctx, "topic", topic), "publish notification", err)
}

func (n *PubSubNotifier) publish(ctx context.Context, topic, title, body string) (publishResult, error) {
	payload, err := json.Marshal(Message{Topic: topic, Title: title, Body: body, SentAt: n.now().UTC()})
	if err != nil {
		return nil, fmt.Errorf("encode notification: %w", err)
	}
	msg := &gcppubsub.Message{
		Data:       payload,
		Attributes: map[string]string{"topic": topic},
	}
	result := n.pub.Publish(context.WithoutCancel(ctx), msg)
	if result == nil {
		return nil, errors.New("publisher returned nil result")
	}
	return result, nil
}

type gcpPublisher struct {
	*gcppubsub.Publisher
}

func (p *gcpPublisher) Publish(ctx context.Context, msg *gcppubsub.Message) publishResult {
	return p.Publisher.Publish(ctx, msg)
}
