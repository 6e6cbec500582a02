// Package mqtt publishes detector state to an MQTT broker so dashboards
// and other consumers can follow a ride without polling the HTTP API.
package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/banshee-data/rotation.report/internal/magrev"
)

// PublisherConfig configures the broker connection and topic layout.
type PublisherConfig struct {
	// Broker is the MQTT broker URL, e.g. "tcp://localhost:1883".
	Broker string
	// ClientID identifies this publisher to the broker.
	ClientID string
	// TopicPrefix is prepended to every topic. Defaults to "rotation".
	TopicPrefix string
	// StatusInterval is how often a status snapshot is published.
	// Defaults to 1s.
	StatusInterval time.Duration
	// QoS for all publishes. Defaults to 0.
	QoS byte
}

func (c *PublisherConfig) prefix() string {
	if c.TopicPrefix == "" {
		return "rotation"
	}
	return c.TopicPrefix
}

func (c *PublisherConfig) interval() time.Duration {
	if c.StatusInterval <= 0 {
		return time.Second
	}
	return c.StatusInterval
}

// Publisher pushes periodic status snapshots and per-revolution events
// to the broker. Revolution events are published as they happen, status
// on a fixed interval.
type Publisher struct {
	cfg     PublisherConfig
	client  mqtt.Client
	manager *magrev.Manager
}

// NewPublisher builds a publisher for the given broker. Connect must be
// called before Run.
func NewPublisher(cfg PublisherConfig, manager *magrev.Manager) *Publisher {
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectRetryInterval(5 * time.Second)

	return &Publisher{
		cfg:     cfg,
		client:  mqtt.NewClient(opts),
		manager: manager,
	}
}

// newPublisherWithClient wires a pre-built client, for tests.
func newPublisherWithClient(cfg PublisherConfig, client mqtt.Client, manager *magrev.Manager) *Publisher {
	return &Publisher{cfg: cfg, client: client, manager: manager}
}

// Connect establishes the broker connection.
func (p *Publisher) Connect() error {
	if token := p.client.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("mqtt connect: %w", token.Error())
	}
	log.Printf("[MQTT] connected to %s", p.cfg.Broker)
	return nil
}

// Run publishes status snapshots until ctx is cancelled, then
// disconnects.
func (p *Publisher) Run(ctx context.Context) {
	ticker := time.NewTicker(p.cfg.interval())
	defer ticker.Stop()
	defer p.client.Disconnect(250)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.publishStatus()
		}
	}
}

func (p *Publisher) publishStatus() {
	snap := p.manager.Snapshot()
	payload, err := json.Marshal(snap)
	if err != nil {
		log.Printf("[MQTT] marshal status: %v", err)
		return
	}
	p.publish(p.cfg.prefix()+"/status", payload)
}

// PublishRevolution sends one revolution event. It is shaped to chain
// behind the session controller on the detector's revolution callback.
func (p *Publisher) PublishRevolution(e magrev.RevolutionEvent) {
	payload, err := json.Marshal(e)
	if err != nil {
		log.Printf("[MQTT] marshal revolution: %v", err)
		return
	}
	p.publish(p.cfg.prefix()+"/revolution", payload)
}

func (p *Publisher) publish(topic string, payload []byte) {
	token := p.client.Publish(topic, p.cfg.QoS, false, payload)
	// Fire and forget at QoS 0; only surface hard errors.
	go func() {
		if token.Wait() && token.Error() != nil {
			log.Printf("[MQTT] publish %s: %v", topic, token.Error())
		}
	}()
}
