package temporal

import "context"

// ExchangeStarter runs exchanges through Temporal. *Client satisfies it.
type ExchangeStarter interface {
	StartExchange(ctx context.Context, input ExchangeInput) (*ExchangeResult, error)
}
