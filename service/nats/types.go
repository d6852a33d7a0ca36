package nats

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/brojonat/nftex/service/exchange"
	"github.com/brojonat/nftex/service/session"
)

// ExchangeEvent is published to "exchanges.{address}" after every
// exchange submission.
type ExchangeEvent struct {
	ExchangeID      string `json:"exchange_id"`
	Address         string `json:"address"`
	ContractAddress string `json:"contract_address"`
	TokenID         string `json:"token_id"`
	PriceDecimal    string `json:"price_decimal,omitempty"`

	Outcome string `json:"outcome"`
	Reason  string `json:"reason,omitempty"`
	TxHash  string `json:"tx_hash,omitempty"`
	// Refreshed is false when the transfer succeeded but the inventory
	// refresh that follows it failed.
	Refreshed bool `json:"refreshed"`

	PublishedAt time.Time `json:"published_at"`
}

// InventoryEvent is published to "inventory.{address}" whenever a session
// applies a load result.
type InventoryEvent struct {
	Address string `json:"address"`
	Status  string `json:"status"` // "loaded" or "failed"
	Listed  int    `json:"listed"`
	Owned   int    `json:"owned"`
	Error   string `json:"error,omitempty"`
	Tag     uint64 `json:"tag"`

	PublishedAt time.Time `json:"published_at"`
}

// FromOutcome converts an exchange outcome into an event. Only the
// user-facing reason is published, never the underlying error.
func FromOutcome(out exchange.Outcome) *ExchangeEvent {
	return &ExchangeEvent{
		ExchangeID:      out.ExchangeID,
		Address:         out.Address,
		ContractAddress: out.Key.ContractAddress,
		TokenID:         out.Key.TokenID,
		PriceDecimal:    out.Price,
		Outcome:         string(out.Kind),
		Reason:          out.Reason,
		TxHash:          out.TxHash,
		Refreshed:       out.Kind == exchange.KindSuccess && out.Inventory != nil,
		PublishedAt:     time.Now().UTC(),
	}
}

// FromSessionEvent converts an inventory session event. It returns nil for
// events that are not about inventory loads.
func FromSessionEvent(ev session.Event) *InventoryEvent {
	var status string
	switch ev.Type {
	case session.InventoryLoaded:
		status = "loaded"
	case session.InventoryLoadFailed:
		status = "failed"
	default:
		return nil
	}
	out := &InventoryEvent{
		Address:     ev.Address,
		Status:      status,
		Tag:         ev.Tag,
		PublishedAt: time.Now().UTC(),
	}
	if ev.Inventory != nil {
		out.Listed = len(ev.Inventory.Listed)
		out.Owned = len(ev.Inventory.Owned)
	}
	if ev.Err != nil {
		out.Error = ev.Err.Error()
	}
	return out
}

// DecodeEvent decodes a message from the stream into an *ExchangeEvent or
// an *InventoryEvent depending on its subject.
func DecodeEvent(subject string, data []byte) (interface{}, error) {
	prefix, _, _ := strings.Cut(subject, ".")
	switch prefix {
	case ExchangeSubjectPrefix:
		var ev ExchangeEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, fmt.Errorf("decode exchange event: %w", err)
		}
		return &ev, nil
	case InventorySubjectPrefix:
		var ev InventoryEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, fmt.Errorf("decode inventory event: %w", err)
		}
		return &ev, nil
	default:
		return nil, fmt.Errorf("unknown subject %q", subject)
	}
}
