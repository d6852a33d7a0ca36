package nats

import (
	"context"
	"sync"
)

// MockPublisher is a mock implementation of Publisher for testing.
type MockPublisher struct {
	mu              sync.RWMutex
	exchangeEvents  []*ExchangeEvent
	inventoryEvents []*InventoryEvent
	publishError    error
	closed          bool
}

// NewMockPublisher creates a new mock publisher for testing.
func NewMockPublisher() *MockPublisher {
	return &MockPublisher{}
}

// PublishExchange records the event and returns any configured error.
func (m *MockPublisher) PublishExchange(ctx context.Context, event *ExchangeEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.publishError != nil {
		return m.publishError
	}
	m.exchangeEvents = append(m.exchangeEvents, event)
	return nil
}

// PublishInventory records the event and returns any configured error.
func (m *MockPublisher) PublishInventory(ctx context.Context, event *InventoryEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.publishError != nil {
		return m.publishError
	}
	m.inventoryEvents = append(m.inventoryEvents, event)
	return nil
}

// Close marks the publisher as closed.
func (m *MockPublisher) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// GetExchangeEvents returns a copy of all published exchange events.
func (m *MockPublisher) GetExchangeEvents() []*ExchangeEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()

	events := make([]*ExchangeEvent, len(m.exchangeEvents))
	copy(events, m.exchangeEvents)
	return events
}

// GetInventoryEvents returns a copy of all published inventory events.
func (m *MockPublisher) GetInventoryEvents() []*InventoryEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()

	events := make([]*InventoryEvent, len(m.inventoryEvents))
	copy(events, m.inventoryEvents)
	return events
}

// SetPublishError configures the mock to fail every publish.
func (m *MockPublisher) SetPublishError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.publishError = err
}

// Reset clears all published events and errors.
func (m *MockPublisher) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.exchangeEvents = nil
	m.inventoryEvents = nil
	m.publishError = nil
	m.closed = false
}

// IsClosed returns whether the publisher has been closed.
func (m *MockPublisher) IsClosed() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.closed
}
