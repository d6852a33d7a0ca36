package db

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/brojonat/nftex/service/exchange"
	"github.com/brojonat/nftex/service/session"
)

// ParamsFromOutcome maps an exchange outcome onto a journal row.
func ParamsFromOutcome(out exchange.Outcome) CreateExchangeParams {
	id, err := uuid.Parse(out.ExchangeID)
	if err != nil {
		id = uuid.Nil
	}
	params := CreateExchangeParams{
		ID:              id,
		Address:         out.Address,
		ContractAddress: out.Key.ContractAddress,
		TokenID:         out.Key.TokenID,
		PriceDecimal:    out.Price,
		Outcome:         string(out.Kind),
		Reason:          out.Reason,
		TxHash:          out.TxHash,
	}
	if out.Err != nil {
		params.ErrorDetail = out.Err.Error()
	}
	return params
}

// JournalHandler returns a session handler that journals every completed
// exchange. Write failures are logged and never affect the session.
func (s *Store) JournalHandler(logger *slog.Logger) session.Handler {
	return func(ctx context.Context, ev session.Event) {
		if ev.Type != session.ExchangeCompleted || ev.Outcome == nil {
			return
		}
		if _, err := s.CreateExchange(ctx, ParamsFromOutcome(*ev.Outcome)); err != nil {
			logger.ErrorContext(ctx, "failed to journal exchange",
				"exchange_id", ev.Outcome.ExchangeID,
				"address", ev.Address,
				"error", err,
			)
		}
	}
}
