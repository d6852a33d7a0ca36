package session

import (
	"context"

	"github.com/brojonat/nftex/service/exchange"
	"github.com/brojonat/nftex/service/inventory"
)

// EventType names a session event.
type EventType string

const (
	AddressChanged      EventType = "address_changed"
	InventoryLoaded     EventType = "inventory_loaded"
	InventoryLoadFailed EventType = "inventory_load_failed"
	ExchangeCompleted   EventType = "exchange_completed"
)

// Event is delivered to subscribers after the session state it describes
// has been applied.
type Event struct {
	Type    EventType
	Address string
	// Tag is the load tag for inventory events.
	Tag       uint64
	Inventory *inventory.Inventory
	Outcome   *exchange.Outcome
	Err       error
}

// Handler observes session events. Handlers run synchronously on the
// goroutine that caused the event and must not call back into the session.
type Handler func(ctx context.Context, ev Event)
