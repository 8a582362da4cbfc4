package attribute

import (
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
)

const (
	publishTimeout       = 5 * time.Second
	connectRetryInterval = 10 * time.Second
)

type MQTTConfig struct {
	Broker      string
	TopicPrefix string
	ClientID    string
}

// MQTTPublisher publishes attributes as retained JSON messages, one topic per
// attribute. The broker connection doubles as the node's network attachment.
type MQTTPublisher struct {
	client mqtt.Client
	prefix string
}

type mqttPayload struct {
	Cluster   uint16    `json:"cluster"`
	Attribute uint16    `json:"attribute"`
	Name      string    `json:"name"`
	Value     int       `json:"value"`
	Timestamp time.Time `json:"timestamp"`
}

// NewMQTTPublisher starts connecting to the broker in the background.
// onJoined is called with true every time the connection is made and with
// false when it is lost.
func NewMQTTPublisher(conf MQTTConfig, onJoined func(bool)) (*MQTTPublisher, error) {
	if conf.Broker == "" {
		return nil, fmt.Errorf("no mqtt broker given")
	}
	clientID := conf.ClientID
	if clientID == "" {
		clientID = "soil-moisture-" + uuid.NewString()
	}
	p := &MQTTPublisher{prefix: conf.TopicPrefix}
	statusTopic := p.statusTopic()

	opts := mqtt.NewClientOptions().
		AddBroker(conf.Broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(connectRetryInterval).
		SetWill(statusTopic, "offline", 1, true).
		SetOnConnectHandler(func(c mqtt.Client) {
			log.Infof("Connected to MQTT broker %s", conf.Broker)
			c.Publish(statusTopic, 1, true, "online")
			if onJoined != nil {
				onJoined(true)
			}
		}).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			log.Errorf("Lost connection to MQTT broker: %v", err)
			if onJoined != nil {
				onJoined(false)
			}
		})

	p.client = mqtt.NewClient(opts)
	log.Infof("Connecting to MQTT broker %s as %s", conf.Broker, clientID)
	p.client.Connect()
	return p, nil
}

func (p *MQTTPublisher) statusTopic() string {
	return p.prefix + "/status"
}

// Topic returns the topic an attribute is published on.
func (p *MQTTPublisher) Topic(cluster Cluster, id ID) string {
	return fmt.Sprintf("%s/%s/%s", p.prefix, cluster, cluster.Name(id))
}

func (p *MQTTPublisher) PublishAttribute(cluster Cluster, id ID, value int) {
	payload, err := json.Marshal(mqttPayload{
		Cluster:   uint16(cluster),
		Attribute: uint16(id),
		Name:      cluster.Name(id),
		Value:     value,
		Timestamp: time.Now(),
	})
	if err != nil {
		log.Errorf("Error marshalling attribute: %v", err)
		return
	}

	topic := p.Topic(cluster, id)
	token := p.client.Publish(topic, 1, true, payload)
	if !p.client.IsConnectionOpen() {
		// Retained at qos 1, sent once the connection is made.
		log.Debugf("Not connected to broker, queued %s", topic)
		return
	}
	if !token.WaitTimeout(publishTimeout) {
		log.Errorf("Timed out publishing to %s", topic)
		return
	}
	if err := token.Error(); err != nil {
		log.Errorf("Failed to publish to %s: %v", topic, err)
		return
	}
	log.Debugf("Published %s: %s", topic, payload)
}

// Close publishes the offline status and disconnects.
func (p *MQTTPublisher) Close() {
	if p.client.IsConnected() {
		p.client.Publish(p.statusTopic(), 1, true, "offline").WaitTimeout(publishTimeout)
	}
	p.client.Disconnect(250)
}
