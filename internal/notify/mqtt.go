// Package notify pushes fired reminders to an MQTT broker so phones,
// dashboards, and home-automation rules can react to them.
package notify

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"

	"github.com/aide-agent/aide/internal/config"
)

// publisher is the subset of autopaho.ConnectionManager the sink uses,
// split out so tests can substitute a recorder.
type publisher interface {
	Publish(ctx context.Context, p *paho.Publish) (*paho.PublishResponse, error)
	Disconnect(ctx context.Context) error
	AwaitConnection(ctx context.Context) error
}

// MQTTSink publishes reminder notifications and an availability topic.
// It implements scheduler.Notifier.
type MQTTSink struct {
	cfg    config.MQTTConfig
	logger *slog.Logger
	now    func() time.Time

	mu sync.Mutex
	cm publisher
}

// reminderPayload is the JSON body published for each fired reminder.
type reminderPayload struct {
	Text    string `json:"text"`
	FiredAt string `json:"fired_at"`
}

// NewMQTTSink creates a sink but does not connect. Call
// [MQTTSink.Start] before the first Notify.
func NewMQTTSink(cfg config.MQTTConfig, logger *slog.Logger) *MQTTSink {
	if cfg.DeviceName == "" {
		cfg.DeviceName = "aide"
	}
	return &MQTTSink{cfg: cfg, logger: logger, now: time.Now}
}

func (s *MQTTSink) baseTopic() string         { return "aide/" + s.cfg.DeviceName }
func (s *MQTTSink) availabilityTopic() string { return s.baseTopic() + "/availability" }
func (s *MQTTSink) reminderTopic() string     { return s.baseTopic() + "/reminder" }

// Start connects to the broker and publishes "online". autopaho keeps
// retrying in the background, so a slow broker does not fail startup.
func (s *MQTTSink) Start(ctx context.Context) error {
	brokerURL, err := url.Parse(s.cfg.Broker)
	if err != nil {
		return fmt.Errorf("parse mqtt broker URL: %w", err)
	}

	availTopic := s.availabilityTopic()

	pahoCfg := autopaho.ClientConfig{
		ServerUrls:      []*url.URL{brokerURL},
		KeepAlive:       30,
		ConnectUsername: s.cfg.Username,
		ConnectPassword: []byte(s.cfg.Password),
		WillMessage: &paho.WillMessage{
			Topic:   availTopic,
			Payload: []byte("offline"),
			QoS:     1,
			Retain:  true,
		},
		OnConnectionUp: func(cm *autopaho.ConnectionManager, _ *paho.Connack) {
			s.logger.Info("mqtt connected to broker", "broker", s.cfg.Broker)
			if _, err := cm.Publish(ctx, &paho.Publish{
				Topic:   availTopic,
				Payload: []byte("online"),
				QoS:     1,
				Retain:  true,
			}); err != nil {
				s.logger.Warn("mqtt availability publish failed", "error", err)
			}
		},
		OnConnectError: func(err error) {
			s.logger.Warn("mqtt connection error", "error", err)
		},
		ClientConfig: paho.ClientConfig{
			ClientID: "aide-" + s.cfg.DeviceName,
		},
	}

	if brokerURL.Scheme == "mqtts" || brokerURL.Scheme == "ssl" {
		pahoCfg.TlsCfg = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	cm, err := autopaho.NewConnection(ctx, pahoCfg)
	if err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}

	s.mu.Lock()
	s.cm = cm
	s.mu.Unlock()

	connCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := cm.AwaitConnection(connCtx); err != nil {
		s.logger.Warn("mqtt initial connection timed out, retrying in background", "error", err)
	}
	return nil
}

// Notify publishes the reminder text as retained JSON. It satisfies
// scheduler.Notifier.
func (s *MQTTSink) Notify(ctx context.Context, text string) error {
	s.mu.Lock()
	cm := s.cm
	s.mu.Unlock()
	if cm == nil {
		return fmt.Errorf("mqtt sink not started")
	}

	payload, err := json.Marshal(reminderPayload{
		Text:    text,
		FiredAt: s.now().Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("marshal reminder payload: %w", err)
	}

	if _, err := cm.Publish(ctx, &paho.Publish{
		Topic:   s.reminderTopic(),
		Payload: payload,
		QoS:     1,
		Retain:  true,
	}); err != nil {
		return fmt.Errorf("publish reminder: %w", err)
	}

	s.logger.Debug("reminder published", "topic", s.reminderTopic())
	return nil
}

// Stop publishes "offline" and disconnects. Safe to call before Start.
func (s *MQTTSink) Stop(ctx context.Context) error {
	s.mu.Lock()
	cm := s.cm
	s.cm = nil
	s.mu.Unlock()
	if cm == nil {
		return nil
	}

	if _, err := cm.Publish(ctx, &paho.Publish{
		Topic:   s.availabilityTopic(),
		Payload: []byte("offline"),
		QoS:     1,
		Retain:  true,
	}); err != nil {
		s.logger.Warn("mqtt availability publish failed", "error", err)
	}
	return cm.Disconnect(ctx)
}
