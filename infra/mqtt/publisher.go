package mqtt

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/gridwise/tariffsim/core/events"
	"github.com/gridwise/tariffsim/internal/eventbus"
)

// Topic suffixes used by StartEventPublisher.
const (
	TopicTimeslot     = "timeslot"
	TopicTariff       = "tariff"
	TopicSubscription = "subscription"
)

// StartEventPublisher subscribes to the event bus and forwards simulation
// events to MQTT topics under the given prefix. It stops when the context is
// canceled.
func StartEventPublisher(ctx context.Context, bus eventbus.EventBus, pub Publisher, prefix string) {
	if bus == nil || pub == nil {
		return
	}
	if prefix == "" {
		prefix = "tariffsim"
	}
	prefix = strings.TrimSuffix(prefix, "/")
	sub := bus.Subscribe()
	go func() {
		defer bus.Unsubscribe(sub)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-sub:
				if !ok {
					return
				}
				switch ev.(type) {
				case events.TimeslotEvent:
					_, _ = pub.PublishEvent(prefix+"/"+TopicTimeslot, ev)
				case events.TariffPublishedEvent, events.TariffRevokedEvent:
					_, _ = pub.PublishEvent(prefix+"/"+TopicTariff, ev)
				case events.SubscriptionMoveEvent:
					_, _ = pub.PublishEvent(prefix+"/"+TopicSubscription, ev)
				}
			}
		}
	}()
}

// MockPublisher records published events for tests.
type MockPublisher struct {
	mu       sync.Mutex
	Messages map[string][]any
	FailAll  bool
}

// NewMockPublisher creates a new MockPublisher.
func NewMockPublisher() *MockPublisher {
	return &MockPublisher{Messages: make(map[string][]any)}
}

// PublishEvent records the payload or returns an error if configured to fail.
func (m *MockPublisher) PublishEvent(topic string, payload any) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailAll {
		return "", fmt.Errorf("publish failed")
	}
	m.Messages[topic] = append(m.Messages[topic], payload)
	return fmt.Sprintf("msg-%d", len(m.Messages[topic])), nil
}

// Count returns the number of messages recorded for the topic.
func (m *MockPublisher) Count(topic string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Messages[topic])
}

// Disconnect implements Publisher.
func (m *MockPublisher) Disconnect() {}
