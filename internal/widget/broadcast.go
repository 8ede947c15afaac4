package widget

import (
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/tkaraca/prayer-widget-service/internal/observability"
)

// Broadcaster requests a repaint from the widget host. The message carries
// the set of active widget instance IDs so the host only redraws surfaces
// that still exist.
type Broadcaster interface {
	RequestRepaint(instanceIDs []string) error
}

// repaintMessage is the payload published to the widget host.
type repaintMessage struct {
	Action      string   `json:"action"`
	InstanceIDs []string `json:"instanceIds"`
	SentAtUnix  int64    `json:"sentAt"`
}

const repaintAction = "widget.repaint"

// MQTTBroadcaster publishes repaint requests over MQTT.
type MQTTBroadcaster struct {
	client mqtt.Client
	topic  string
	logger *zap.Logger
}

// NewMQTTBroadcaster connects to the broker and returns a broadcaster
// publishing on the given topic.
func NewMQTTBroadcaster(brokerURL, clientID, topic string, logger *zap.Logger) (*MQTTBroadcaster, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(brokerURL)
	opts.SetClientID(clientID)
	opts.SetAutoReconnect(true)
	opts.OnConnect = func(c mqtt.Client) {
		logger.Info("connected to MQTT broker", zap.String("broker", brokerURL))
	}
	opts.OnConnectionLost = func(c mqtt.Client, err error) {
		logger.Warn("MQTT connection lost", zap.Error(err))
	}

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("connect to MQTT broker: %w", token.Error())
	}
	return &MQTTBroadcaster{client: client, topic: topic, logger: logger}, nil
}

// RequestRepaint publishes one repaint message. QoS 1: the widget host should
// see the repaint even across a short broker hiccup; duplicates are harmless
// because repainting is idempotent.
func (b *MQTTBroadcaster) RequestRepaint(instanceIDs []string) error {
	payload, err := json.Marshal(repaintMessage{
		Action:      repaintAction,
		InstanceIDs: instanceIDs,
		SentAtUnix:  time.Now().Unix(),
	})
	if err != nil {
		return fmt.Errorf("marshal repaint message: %w", err)
	}

	token := b.client.Publish(b.topic, 1, false, payload)
	token.Wait()
	if token.Error() != nil {
		return fmt.Errorf("publish repaint: %w", token.Error())
	}
	observability.WidgetRepaintsTotal.Inc()
	return nil
}

// Close disconnects from the broker.
func (b *MQTTBroadcaster) Close() {
	b.client.Disconnect(250)
}

// NoopBroadcaster is used when no widget host broker is configured; pushes
// still land in storage, repaints are skipped.
type NoopBroadcaster struct{}

// RequestRepaint implements Broadcaster.
func (NoopBroadcaster) RequestRepaint(instanceIDs []string) error { return nil }
