package interfaces

import (
	"context"

	"fno-desk/internal/types"
)

// Broker is the slice of KiteConnect the desk uses. Instrument keys are
// EXCHANGE:TRADINGSYMBOL.
type Broker interface {
	Instruments(ctx context.Context, exchange string) ([]types.Instrument, error)
	Quote(ctx context.Context, keys []string) (map[string]types.Quote, error)
	LTP(ctx context.Context, keys []string) (map[string]float64, error)
	Positions(ctx context.Context) (types.Positions, error)
	Margins(ctx context.Context) (types.Margins, error)
	Orders(ctx context.Context) ([]types.Order, error)
	PlaceOrder(ctx context.Context, req types.OrderReq) (types.OrderResp, error)
	Start(ctx context.Context, instruments []types.Instrument) error
	Stop(ctx context.Context)
}
