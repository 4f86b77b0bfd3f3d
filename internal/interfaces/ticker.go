package interfaces

import (
	"context"

	"fno-desk/internal/types"
)

// TickerManager streams quotes for subscribed instruments.
type TickerManager interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context)
	Subscribe(ctx context.Context, instruments []types.Instrument) error
	Quote(key string) (types.Quote, bool)
}
