package mqtt

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/banshee-data/rotation.report/internal/magrev"
)

type publishedMessage struct {
	topic   string
	qos     byte
	payload []byte
}

// mockClient records publishes; everything else is a no-op.
type mockClient struct {
	mu        sync.Mutex
	published []publishedMessage
}

func (c *mockClient) snapshot() []publishedMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]publishedMessage, len(c.published))
	copy(out, c.published)
	return out
}

func (c *mockClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.published = append(c.published, publishedMessage{topic, qos, payload.([]byte)})
	return &mockToken{}
}

func (c *mockClient) IsConnected() bool       { return true }
func (c *mockClient) IsConnectionOpen() bool  { return true }
func (c *mockClient) Connect() mqtt.Token     { return &mockToken{} }
func (c *mockClient) Disconnect(quiesce uint) {}

func (c *mockClient) AddRoute(topic string, callback mqtt.MessageHandler) {}
func (c *mockClient) Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token {
	return &mockToken{}
}
func (c *mockClient) SubscribeMultiple(filters map[string]byte, callback mqtt.MessageHandler) mqtt.Token {
	return &mockToken{}
}
func (c *mockClient) Unsubscribe(topics ...string) mqtt.Token { return &mockToken{} }
func (c *mockClient) OptionsReader() mqtt.ClientOptionsReader {
	return mqtt.ClientOptionsReader{}
}

type mockToken struct{}

func (t *mockToken) Wait() bool                     { return true }
func (t *mockToken) WaitTimeout(time.Duration) bool { return true }

func (t *mockToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (t *mockToken) Error() error { return nil }

func newTestPublisher(t *testing.T, cfg PublisherConfig) (*Publisher, *mockClient) {
	t.Helper()
	manager := magrev.NewManager()
	detector, err := magrev.NewPhaseDetector(magrev.DefaultDetectorConfig())
	if err != nil {
		t.Fatal(err)
	}
	manager.Register(magrev.AlgorithmPhase, detector)
	client := &mockClient{}
	return newPublisherWithClient(cfg, client, manager), client
}

func TestPublishRevolution(t *testing.T) {
	p, client := newTestPublisher(t, PublisherConfig{QoS: 1})

	p.PublishRevolution(magrev.RevolutionEvent{Count: 7, UnixNanos: 12345, Quality: 0.91})

	msgs := client.snapshot()
	if len(msgs) != 1 {
		t.Fatalf("published %d messages, want 1", len(msgs))
	}
	if msgs[0].topic != "rotation/revolution" {
		t.Errorf("topic = %s", msgs[0].topic)
	}
	if msgs[0].qos != 1 {
		t.Errorf("qos = %d", msgs[0].qos)
	}
	var event magrev.RevolutionEvent
	if err := json.Unmarshal(msgs[0].payload, &event); err != nil {
		t.Fatal(err)
	}
	if event.Count != 7 || event.UnixNanos != 12345 || event.Quality != 0.91 {
		t.Errorf("event = %+v", event)
	}
}

func TestTopicPrefix(t *testing.T) {
	p, client := newTestPublisher(t, PublisherConfig{TopicPrefix: "garage/wheel"})

	p.PublishRevolution(magrev.RevolutionEvent{Count: 1})

	msgs := client.snapshot()
	if len(msgs) != 1 || msgs[0].topic != "garage/wheel/revolution" {
		t.Errorf("messages = %+v", msgs)
	}
}

func TestRunPublishesStatusUntilCancelled(t *testing.T) {
	p, client := newTestPublisher(t, PublisherConfig{StatusInterval: 10 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for len(client.snapshot()) < 3 {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for status publishes")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop on cancel")
	}

	msgs := client.snapshot()
	if msgs[0].topic != "rotation/status" {
		t.Errorf("topic = %s", msgs[0].topic)
	}
	var snap magrev.Snapshot
	if err := json.Unmarshal(msgs[0].payload, &snap); err != nil {
		t.Fatal(err)
	}
	if snap.Algorithm != magrev.AlgorithmPhase {
		t.Errorf("snapshot = %+v", snap)
	}
}
