package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/rs/zerolog"

	"github.com/angelmondragon/marketcore/pkg/logger"
)

type stubResult struct {
	err     error
	release <-chan struct{}
}

func (r stubResult) Get(ctx context.Context) (string, error) {
	if r.release != nil {
		select {
		case <-r.release:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return "id-1", r.err
}

type stubPublisher struct {
	msgs    []*gcppubsub.Message
	err     error
	release <-chan struct{}
}

func (p *stubPublisher) Publish(_ context.Context, msg *gcppubsub.Message) publishResult {
	p.msgs = append(p.msgs, msg)
	return stubResult{err: p.err, release: p.release}
}

func TestPubSubNotifierPublishesJSON(t *testing.T) {
	pub := &stubPublisher{}
	n := newPubSubNotifier(pub, logger.Nop())
	n.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }

	n.Notify(context.Background(), TopicPayoutRequested, "Payout requested", "vendor 7 requested 500.00")

	if len(pub.msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(pub.msgs))
	}
	msg := pub.msgs[0]
	if msg.Attributes["topic"] != TopicPayoutRequested {
		t.Fatalf("unexpected attributes %v", msg.Attributes)
	}
	var decoded Message
	if err := json.Unmarshal(msg.Data, &decoded); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if decoded.Title != "Payout requested" || decoded.Body != "vendor 7 requested 500.00" {
		t.Fatalf("unexpected payload %+v", decoded)
	}
	if !decoded.SentAt.Equal(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)) {
		t.Fatalf("unexpected sent_at %v", decoded.SentAt)
	}
}

func TestPubSubNotifierLogsFailures(t *testing.T) {
	var buf bytes.Buffer
	logg := logger.New(logger.Options{ServiceName: "test", Level: zerolog.InfoLevel, Output: &buf})
	n := newPubSubNotifier(&stubPublisher{err: errors.New("unavailable")}, logg)

	n.Notify(context.Background(), TopicOrderCreated, "t", "b")
	_ = n.Close()

	if !strings.Contains(buf.String(), "publish notification") || !strings.Contains(buf.String(), "unavailable") {
		t.Fatalf("expected failure to be logged, got %s", buf.String())
	}
}

func TestPubSubNotifierDoesNotWaitForAck(t *testing.T) {
	var buf bytes.Buffer
	logg := logger.New(logger.Options{ServiceName: "test", Level: zerolog.InfoLevel, Output: &buf})
	release := make(chan struct{})
	n := newPubSubNotifier(&stubPublisher{err: errors.New("late failure"), release: release}, logg)

	ctx, cancel := context.WithCancel(context.Background())
	returned := make(chan struct{})
	go func() {
		n.Notify(ctx, TopicOrderStatus, "t", "b")
		close(returned)
	}()
	select {
	case <-returned:
	case <-time.After(2 * time.Second):
		t.Fatal("Notify blocked on the publish result")
	}

	cancel()
	close(release)
	_ = n.Close()
	if !strings.Contains(buf.String(), "late failure") {
		t.Fatalf("expected background failure to be logged, got %s", buf.String())
	}
}

func TestLogNotifierWritesFields(t *testing.T) {
	var buf bytes.Buffer
	logg := logger.New(logger.Options{ServiceName: "test", Level: zerolog.InfoLevel, Output: &buf})
	NewLogNotifier(logg).Notify(context.Background(), TopicOrderStatus, "Order shipped", "order abc")

	if !strings.Contains(buf.String(), `"topic":"order.status_changed"`) {
		t.Fatalf("expected topic field, got %s", buf.String())
	}
}

func TestNewPubSubNotifierRequiresPublisher(t *testing.T) {
	if _, err := NewPubSubNotifier(nil, logger.Nop()); err == nil {
		t.Fatal("expected error")
	}
}
