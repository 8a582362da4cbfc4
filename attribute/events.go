package attribute

import (
	"time"

	"github.com/TheCacophonyProject/event-reporter/v3/eventclient"
)

// EventPublisher queues attribute reports with the event reporter so they are
// uploaded with the rest of the device events.
type EventPublisher struct {
	addEvent func(eventclient.Event) error
}

func NewEventPublisher() *EventPublisher {
	return &EventPublisher{addEvent: eventclient.AddEvent}
}

func eventType(cluster Cluster) string {
	switch cluster {
	case RelativeHumidity:
		return "soilMoisture"
	case PowerConfig:
		return "batteryStatus"
	}
	return "attribute"
}

func (p *EventPublisher) PublishAttribute(cluster Cluster, id ID, value int) {
	err := p.addEvent(eventclient.Event{
		Timestamp: time.Now(),
		Type:      eventType(cluster),
		Details: map[string]interface{}{
			"cluster":   uint16(cluster),
			"attribute": uint16(id),
			"name":      cluster.Name(id),
			"value":     value,
		},
	})
	if err != nil {
		log.Errorf("Error adding event: %v", err)
	}
}
