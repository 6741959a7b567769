// Package alerts publishes guard decisions to NATS so out-of-process
// consumers (the archiver, dashboards) can react without being in the
// submission path. Publishing is strictly best effort: the guard never
// fails a decision because the alert bus is down.
package alerts

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/nats-io/nats.go"
)

// NATS subject patterns used by the guard services.
const (
	// SubjectSuspicious carries one Alert per suspicious event.
	SubjectSuspicious = "guard.suspicious"

	// SubjectBlocked carries one Alert per newly applied block.
	SubjectBlocked = "guard.blocked"
)

// Alert is the wire form of a published guard event.
type Alert struct {
	Fingerprint string         `json:"fingerprint"`
	UserAgent   string         `json:"userAgent"`
	URL         string         `json:"url"`
	Action      string         `json:"action"`
	Reason      string         `json:"reason"`
	Ts          int64          `json:"ts"`
	Details     map[string]any `json:"details,omitempty"`
}

// Publisher is what the guard pipeline sees. The NATS client implements it;
// tests use a recording fake; Noop disables alerting entirely.
type Publisher interface {
	PublishSuspicious(alert Alert)
	PublishBlocked(alert Alert)
}

// Noop is a Publisher that discards every alert.
type Noop struct{}

func (Noop) PublishSuspicious(Alert) {}
func (Noop) PublishBlocked(Alert)    {}

// Config holds NATS connection settings.
type Config struct {
	URL           string
	Name          string
	ReconnectWait time.Duration
	MaxReconnects int
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		URL:           "nats://localhost:4222",
		Name:          "hobbyhub-guard",
		ReconnectWait: 2 * time.Second,
		MaxReconnects: -1, // infinite reconnects
	}
}

// Client wraps the NATS connection.
type Client struct {
	conn *nats.Conn
}

// NewClient connects to NATS with the given config and returns a ready
// client. It returns an error if the initial connection fails.
func NewClient(config Config) (*Client, error) {
	opts := []nats.Option{
		nats.Name(config.Name),
		nats.ReconnectWait(config.ReconnectWait),
		nats.MaxReconnects(config.MaxReconnects),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Printf("[alerts] disconnected: %v", err)
			} else {
				log.Printf("[alerts] disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Printf("[alerts] reconnected to %s", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			log.Printf("[alerts] connection closed")
		}),
	}

	nc, err := nats.Connect(config.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("alerts: nats connect: %w", err)
	}

	log.Printf("[alerts] connected to %s", nc.ConnectedUrl())
	return &Client{conn: nc}, nil
}

// PublishSuspicious publishes a suspicious-event alert. Failures are logged
// and swallowed.
func (c *Client) PublishSuspicious(alert Alert) {
	c.publish(SubjectSuspicious, alert)
}

// PublishBlocked publishes a block alert. Failures are logged and swallowed.
func (c *Client) PublishBlocked(alert Alert) {
	c.publish(SubjectBlocked, alert)
}

func (c *Client) publish(subject string, alert Alert) {
	data, err := json.Marshal(alert)
	if err != nil {
		log.Printf("[alerts] marshal alert: %v", err)
		return
	}
	if err := c.conn.Publish(subject, data); err != nil {
		log.Printf("[alerts] publish %s: %v", subject, err)
	}
}

// SubscribeSuspicious registers a handler for suspicious-event alerts.
func (c *Client) SubscribeSuspicious(handler func(Alert)) (*nats.Subscription, error) {
	return c.subscribe(SubjectSuspicious, handler)
}

// SubscribeBlocked registers a handler for block alerts.
func (c *Client) SubscribeBlocked(handler func(Alert)) (*nats.Subscription, error) {
	return c.subscribe(SubjectBlocked, handler)
}

func (c *Client) subscribe(subject string, handler func(Alert)) (*nats.Subscription, error) {
	sub, err := c.conn.Subscribe(subject, func(msg *nats.Msg) {
		var alert Alert
		if err := json.Unmarshal(msg.Data, &alert); err != nil {
			log.Printf("[alerts] unmarshal on %s: %v", subject, err)
			return
		}
		handler(alert)
	})
	if err != nil {
		return nil, fmt.Errorf("alerts: subscribe %s: %w", subject, err)
	}
	return sub, nil
}

// Close drains the connection.
func (c *Client) Close() {
	if err := c.conn.Drain(); err != nil {
		log.Printf("[alerts] connection drain: %v", err)
	}
	log.Printf("[alerts] client closed")
}
