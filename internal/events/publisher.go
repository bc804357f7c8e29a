// Package events publishes user lifecycle events to an MQTT broker.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"prediction-platform/internal/config"
	"prediction-platform/internal/logger"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type Type string

const (
	UserRegistered    Type = "registered"
	UserEmailVerified Type = "email_verified"
	UserPasswordReset Type = "password_reset"
	UserBanned        Type = "banned"
	UserUnbanned      Type = "unbanned"
)

type Event struct {
	Type       Type              `json:"type"`
	UserID     uuid.UUID         `json:"user_id"`
	OccurredAt time.Time         `json:"occurred_at"`
	Data       map[string]string `json:"data,omitempty"`
}

type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close()
}

// New connects to cfg.Broker, or returns a Noop publisher when no broker is
// configured.
func New(cfg *config.MQTTConfig) (Publisher, error) {
	if cfg.Broker == "" {
		return Noop{}, nil
	}
	p := NewMQTTPublisher(cfg)
	if err := p.Connect(); err != nil {
		return nil, err
	}
	return p, nil
}

type MQTTPublisher struct {
	client      mqtt.Client
	broker      string
	topicPrefix string
}

const (
	publishQoS     = 1
	publishTimeout = 5 * time.Second
)

func NewMQTTPublisher(cfg *config.MQTTConfig) *MQTTPublisher {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetUsername(cfg.Username)
	opts.SetPassword(cfg.Password)
	opts.SetCleanSession(true)
	opts.SetKeepAlive(30 * time.Second)
	opts.SetConnectTimeout(10 * time.Second)
	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(time.Minute)

	opts.SetOnConnectHandler(func(mqtt.Client) {
		logger.Info("MQTT client connected", zap.String("broker", cfg.Broker))
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		logger.Warn("MQTT connection lost", zap.Error(err))
	})
	opts.SetReconnectingHandler(func(mqtt.Client, *mqtt.ClientOptions) {
		logger.Info("Reconnecting to MQTT broker")
	})

	return &MQTTPublisher{
		client:      mqtt.NewClient(opts),
		broker:      cfg.Broker,
		topicPrefix: cfg.TopicPrefix,
	}
}

func (p *MQTTPublisher) Connect() error {
	token := p.client.Connect()
	token.Wait()
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to connect to MQTT broker %s: %w", p.broker, err)
	}
	return nil
}

func (p *MQTTPublisher) Topic(t Type) string {
	return p.topicPrefix + "/" + string(t)
}

func (p *MQTTPublisher) Publish(ctx context.Context, event Event) error {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	token := p.client.Publish(p.Topic(event.Type), publishQoS, false, payload)
	select {
	case <-token.Done():
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(publishTimeout):
		return fmt.Errorf("timed out publishing %s event", event.Type)
	}
	return token.Error()
}

func (p *MQTTPublisher) Close() {
	p.client.Disconnect(250)
	logger.Info("Disconnected from MQTT broker")
}

type Noop struct{}

func (Noop) Publish(context.Context, Event) error { return nil }

func (Noop) Close() {}
