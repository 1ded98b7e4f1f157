package telemetry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Defaults for the broker session.
const (
	DefaultConnectTimeout = 10 * time.Second
	DefaultHandleTimeout  = 5 * time.Second
	disconnectQuiesceMS   = 250
	subscribeQoS          = 1
)

// SubscriberConfig configures a Subscriber.
type SubscriberConfig struct {
	BrokerURL string // e.g. tcp://localhost:1883
	ClientID  string
	Handler   *Handler
	Logger    *slog.Logger
}

// Subscriber keeps an MQTT session open and feeds device messages to a
// Handler. Subscriptions are restored on every reconnect.
type Subscriber struct {
	client  mqtt.Client
	handler *Handler
	logger  *slog.Logger
}

// NewSubscriber creates a Subscriber. It does not connect.
func NewSubscriber(cfg SubscriberConfig) (*Subscriber, error) {
	if cfg.BrokerURL == "" {
		return nil, errors.New("mqtt broker url is required")
	}
	if cfg.Handler == nil {
		return nil, errors.New("mqtt handler is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	s := &Subscriber{handler: cfg.Handler, logger: cfg.Logger}

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.BrokerURL).
		SetClientID(cfg.ClientID).
		SetOrderMatters(false).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetCleanSession(true).
		SetConnectTimeout(DefaultConnectTimeout).
		SetOnConnectHandler(s.onConnect).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			s.logger.Warn("mqtt connection lost", slog.String("error", err.Error()))
		})
	s.client = mqtt.NewClient(opts)
	return s, nil
}

// Start connects to the broker, waiting at most until ctx is done.
func (s *Subscriber) Start(ctx context.Context) error {
	token := s.client.Connect()
	select {
	case <-token.Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to connect to mqtt broker: %w", err)
	}
	return nil
}

// onConnect subscribes to the device topics; it runs after every (re)connect.
func (s *Subscriber) onConnect(client mqtt.Client) {
	filters := make(map[string]byte)
	for _, topic := range s.handler.Topics() {
		filters[topic] = subscribeQoS
	}
	token := client.SubscribeMultiple(filters, s.onMessage)
	if !token.WaitTimeout(DefaultConnectTimeout) {
		s.logger.Error("mqtt subscribe timed out")
		return
	}
	if err := token.Error(); err != nil {
		s.logger.Error("mqtt subscribe failed", slog.String("error", err.Error()))
		return
	}
	s.logger.Info("mqtt subscribed", slog.Any("topics", s.handler.Topics()))
}

func (s *Subscriber) onMessage(_ mqtt.Client, msg mqtt.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), DefaultHandleTimeout)
	defer cancel()
	// Handle logs and counts every outcome.
	_ = s.handler.Handle(ctx, msg.Topic(), msg.Payload())
}

// IsConnectionOpen reports whether the session is currently up.
func (s *Subscriber) IsConnectionOpen() bool {
	return s.client.IsConnectionOpen()
}

// Stop disconnects from the broker.
func (s *Subscriber) Stop() {
	s.client.Disconnect(disconnectQuiesceMS)
	s.logger.Info("mqtt subscriber stopped")
}
