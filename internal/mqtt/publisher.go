package mqtt

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"adsb2mqtt/internal/models"

	paho "github.com/eclipse/paho.mqtt.golang"
)

const (
	qosAtLeastOnce byte = 1
	protocolV311        = 4
)

// ErrPublishTimeout is returned when the broker does not acknowledge a publish in time
var ErrPublishTimeout = errors.New("mqtt publish timed out")

// Config holds broker connection settings
type Config struct {
	Server         string
	Port           int
	Username       string
	Password       string
	UseTLS         bool
	ClientID       string
	TopicBase      string
	PublishTimeout time.Duration
}

// client is the part of paho.Client the publisher needs
type client interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	IsConnectionOpen() bool
	Disconnect(quiesce uint)
}

// Publisher publishes flights as JSON documents to {TopicBase}/{icao}
type Publisher struct {
	client    client
	topicBase string
	timeout   time.Duration
}

// Connect dials the broker and returns a publisher on the new session
func Connect(ctx context.Context, cfg Config) (*Publisher, error) {
	scheme := "tcp"
	if cfg.UseTLS {
		scheme = "ssl"
	}

	opts := paho.NewClientOptions().
		AddBroker(fmt.Sprintf("%s://%s:%d", scheme, cfg.Server, cfg.Port)).
		SetClientID(cfg.ClientID).
		SetUsername(cfg.Username).
		SetPassword(cfg.Password).
		SetProtocolVersion(protocolV311).
		SetCleanSession(true).
		SetKeepAlive(5 * time.Second).
		SetAutoReconnect(true).
		SetConnectTimeout(10 * time.Second).
		SetOnConnectHandler(func(paho.Client) {
			slog.Info("MQTT connected", "server", cfg.Server, "port", cfg.Port)
		}).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			slog.Warn("MQTT disconnected", "error", err)
		})
	if cfg.UseTLS {
		opts.SetTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12})
	}

	c := paho.NewClient(opts)
	token := c.Connect()
	select {
	case <-token.Done():
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker %s:%d: %w", cfg.Server, cfg.Port, err)
	}

	return newPublisher(c, cfg.TopicBase, cfg.PublishTimeout), nil
}

func newPublisher(c client, topicBase string, timeout time.Duration) *Publisher {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Publisher{
		client:    c,
		topicBase: topicBase,
		timeout:   timeout,
	}
}

// Topic returns the topic a flight is published on
func (p *Publisher) Topic(icao string) string {
	return p.topicBase + "/" + icao
}

// Publish sends one flight and waits for the broker's acknowledgement
func (p *Publisher) Publish(ctx context.Context, flight models.Flight, distanceNM float64) error {
	payload, err := models.NewFlightPayload(flight, distanceNM)
	if err != nil {
		return err
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode payload for %s: %w", flight.ICAO, err)
	}

	topic := p.Topic(flight.ICAO)
	token := p.client.Publish(topic, qosAtLeastOnce, false, data)

	timer := time.NewTimer(p.timeout)
	defer timer.Stop()
	select {
	case <-token.Done():
	case <-timer.C:
		return fmt.Errorf("%w: %s", ErrPublishTimeout, topic)
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", topic, err)
	}

	slog.Debug("Published MQTT message", "topic", topic, "bytes", len(data))
	return nil
}

// Connected reports whether the broker session is up. It is false while paho reconnects.
func (p *Publisher) Connected() bool {
	return p.client.IsConnectionOpen()
}

// Close disconnects from the broker, allowing 250ms for in-flight work
func (p *Publisher) Close() error {
	p.client.Disconnect(250)
	return nil
}
