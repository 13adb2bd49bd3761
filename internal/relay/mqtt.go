package relay

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// MQTTMessenger publishes node messages to an MQTT broker on
// <capability>/<node-id><path> at QoS 0.
type MQTTMessenger struct {
	capability string
	opts       *mqtt.ClientOptions

	mu     sync.Mutex
	client mqtt.Client
}

// NewMQTTMessenger returns a messenger for broker. The connection is opened on
// first use.
func NewMQTTMessenger(broker, clientID, capability string) *MQTTMessenger {
	if clientID == "" {
		host, _ := os.Hostname()
		clientID = fmt.Sprintf("medaka-%s-%d", host, os.Getpid())
	}
	if capability == "" {
		capability = DefaultCapability
	}
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetConnectTimeout(5 * time.Second).
		SetAutoReconnect(true)
	return &MQTTMessenger{capability: capability, opts: opts}
}

// Topic returns the topic a node listens on for path.
func Topic(capability, nodeID, path string) string {
	return capability + "/" + nodeID + "/" + strings.TrimPrefix(path, "/")
}

// Send implements Messenger.
func (m *MQTTMessenger) Send(ctx context.Context, node Node, path string, payload []byte) error {
	client, err := m.connect(ctx)
	if err != nil {
		return err
	}
	token := client.Publish(Topic(m.capability, node.ID, path), 0, false, payload)
	return waitToken(ctx, token)
}

// Close disconnects from the broker.
func (m *MQTTMessenger) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.client != nil && m.client.IsConnected() {
		m.client.Disconnect(250)
	}
	m.client = nil
}

func (m *MQTTMessenger) connect(ctx context.Context) (mqtt.Client, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.client != nil && m.client.IsConnected() {
		return m.client, nil
	}
	client := mqtt.NewClient(m.opts)
	if err := waitToken(ctx, client.Connect()); err != nil {
		return nil, fmt.Errorf("connect mqtt: %w", err)
	}
	m.client = client
	return client, nil
}

func waitToken(ctx context.Context, token mqtt.Token) error {
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}
