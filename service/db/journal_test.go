package db

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/brojonat/nftex/service/exchange"
	"github.com/brojonat/nftex/service/inventory"
)

func TestParamsFromOutcome(t *testing.T) {
	id := uuid.New()
	out := exchange.Outcome{
		Kind:       exchange.KindFailed,
		ExchangeID: id.String(),
		Address:    "0xA1",
		Key:        inventory.DedupKey{ContractAddress: "0xC1", TokenID: "1"},
		Price:      "1.0",
		Reason:     exchange.ReasonTransferFailed,
		TxHash:     "0xdead",
		Err:        errors.New("execution reverted"),
	}

	params := ParamsFromOutcome(out)

	assert.Equal(t, id, params.ID)
	assert.Equal(t, "0xA1", params.Address)
	assert.Equal(t, "0xC1", params.ContractAddress)
	assert.Equal(t, "1", params.TokenID)
	assert.Equal(t, "1.0", params.PriceDecimal)
	assert.Equal(t, "failed", params.Outcome)
	assert.Equal(t, exchange.ReasonTransferFailed, params.Reason)
	assert.Equal(t, "0xdead", params.TxHash)
	assert.Equal(t, "execution reverted", params.ErrorDetail)
}

func TestParamsFromOutcome_InvalidID(t *testing.T) {
	params := ParamsFromOutcome(exchange.Outcome{Kind: exchange.KindSuccess, ExchangeID: "not-a-uuid"})
	assert.Equal(t, uuid.Nil, params.ID)
	assert.Empty(t, params.ErrorDetail)
}
