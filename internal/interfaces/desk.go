package interfaces

import (
	"context"

	"fno-desk/internal/types"
)

// Selection is the set of contracts picked by the user for the next batch.
type Selection interface {
	Legs() []types.Leg
	Clear()
}

type Desk interface {
	// PlaceBatch submits every leg of sel on side and clears sel once the
	// batch has been submitted.
	PlaceBatch(ctx context.Context, side types.Side, sel Selection) (*types.BatchResult, error)
	ExitPositions(ctx context.Context, req types.ExitRequest) (*types.BatchResult, error)
}
