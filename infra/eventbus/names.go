package eventbus

import (
	"fmt"
	"strings"

	"github.com/nguyennn/account-svc/pkg/domain/events"
)

const defaultTopicPrefix = "accounts.events"

// streamNameFor returns the Redis stream carrying events of the given type.
func streamNameFor(eventType events.EventType) string {
	return nameFor("events", eventType)
}

// dlqStreamName returns the DLQ stream name for the given event type.
func dlqStreamName(eventType events.EventType) string {
	return nameFor("dlq", eventType)
}

// groupNameFor returns the Redis consumer group name for the event type.
func groupNameFor(eventType events.EventType) string {
	return nameFor("group", eventType)
}

func nameFor(prefix string, eventType events.EventType) string {
	parts := strings.Split(eventType.String(), ".")
	if len(parts) == 2 {
		return fmt.Sprintf(
			"%s:%s:%s",
			prefix,
			strings.ToLower(parts[0]),
			strings.ToLower(parts[1]))
	}
	return fmt.Sprintf("%s:%s", prefix, strings.ToLower(eventType.String()))
}

// topicNameFor returns the Kafka topic for the event type, e.g.
// accounts.events.transaction.initiated.
func topicNameFor(prefix string, eventType events.EventType) string {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = defaultTopicPrefix
	}
	return fmt.Sprintf("%s.%s", prefix, strings.ToLower(eventType.String()))
}

func dlqTopicNameFor(prefix string, eventType events.EventType) string {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = defaultTopicPrefix
	}
	return fmt.Sprintf("%s.dlq.%s", prefix, strings.ToLower(eventType.String()))
}

// queueNameFor returns the RabbitMQ queue for the event type.
func queueNameFor(eventType events.EventType) string {
	return strings.ToLower(eventType.String())
}

func dlqQueueNameFor(eventType events.EventType) string {
	return queueNameFor(eventType) + ".dlq"
}
