package attribute

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	mochi "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/hooks/auth"
	"github.com/mochi-mqtt/server/v2/listeners"
	"github.com/stretchr/testify/require"
)

const mochiTCPPort = 18831

func startBroker(t *testing.T) string {
	broker := mochi.New(nil)
	require.NoError(t, broker.AddHook(&auth.AllowHook{}, nil))
	require.NoError(t, broker.AddListener(listeners.NewTCP(listeners.Config{
		Type:    "tcp",
		Address: fmt.Sprintf("localhost:%d", mochiTCPPort),
	})))
	require.NoError(t, broker.Serve())
	t.Cleanup(func() { broker.Close() })
	return fmt.Sprintf("tcp://localhost:%d", mochiTCPPort)
}

func TestMQTTTopic(t *testing.T) {
	p := &MQTTPublisher{prefix: "soil-moisture"}
	require.Equal(t, "soil-moisture/relative-humidity/measured-value", p.Topic(RelativeHumidity, MeasuredValue))
	require.Equal(t, "soil-moisture/power-config/battery-voltage", p.Topic(PowerConfig, BatteryVoltage))
}

func TestMQTTPublisherRequiresBroker(t *testing.T) {
	_, err := NewMQTTPublisher(MQTTConfig{}, nil)
	require.Error(t, err)
}

func TestMQTTPublishWhileDisconnectedDoesNotBlock(t *testing.T) {
	p, err := NewMQTTPublisher(MQTTConfig{
		Broker:      "tcp://127.0.0.1:1",
		TopicPrefix: "soil-moisture",
		ClientID:    "offline",
	}, nil)
	require.NoError(t, err)
	defer p.Close()

	start := time.Now()
	p.PublishAttribute(PowerConfig, BatteryVoltage, 27)
	require.True(t, time.Since(start) < publishTimeout, "publish blocked for %s", time.Since(start))
}

func TestMQTTPublish(t *testing.T) {
	brokerURL := startBroker(t)

	joined := make(chan bool, 4)
	p, err := NewMQTTPublisher(MQTTConfig{
		Broker:      brokerURL,
		TopicPrefix: "soil-moisture",
		ClientID:    "publisher",
	}, func(j bool) { joined <- j })
	require.NoError(t, err)
	defer p.Close()

	select {
	case j := <-joined:
		require.True(t, j)
	case <-time.After(5 * time.Second):
		t.Fatal("publisher did not connect")
	}

	p.PublishAttribute(RelativeHumidity, MeasuredValue, 7700)

	received := make(chan mqtt.Message, 1)
	sub := mqtt.NewClient(mqtt.NewClientOptions().AddBroker(brokerURL).SetClientID("subscriber"))
	token := sub.Connect()
	require.True(t, token.WaitTimeout(5*time.Second))
	require.NoError(t, token.Error())
	defer sub.Disconnect(250)

	// Retained, so the subscriber still sees it.
	token = sub.Subscribe(p.Topic(RelativeHumidity, MeasuredValue), 1, func(_ mqtt.Client, m mqtt.Message) {
		select {
		case received <- m:
		default:
		}
	})
	require.True(t, token.WaitTimeout(5*time.Second))
	require.NoError(t, token.Error())

	select {
	case m := <-received:
		var payload mqttPayload
		require.NoError(t, json.Unmarshal(m.Payload(), &payload))
		require.Equal(t, uint16(RelativeHumidity), payload.Cluster)
		require.Equal(t, uint16(MeasuredValue), payload.Attribute)
		require.Equal(t, 7700, payload.Value)
	case <-time.After(5 * time.Second):
		t.Fatal("no attribute message received")
	}
}
