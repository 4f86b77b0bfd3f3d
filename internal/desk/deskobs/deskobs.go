package deskobs

import (
	"context"
	"time"

	"fno-desk/internal/interfaces"
	"fno-desk/internal/logger"
	"fno-desk/internal/trace"
	"fno-desk/internal/types"
)

type observableDesk struct {
	desk interfaces.Desk
}

var _ interfaces.Desk = (*observableDesk)(nil)

func Wrap(d interfaces.Desk) interfaces.Desk {
	return &observableDesk{
		desk: d,
	}
}

func (od *observableDesk) PlaceBatch(ctx context.Context, side types.Side, sel interfaces.Selection) (*types.BatchResult, error) {
	ctx, span := trace.StartSpan(ctx, "desk.PlaceBatch")
	defer span.End()

	start := time.Now()
	legs := len(sel.Legs())

	logger.InfoSkip(ctx, 1, "Submitting batch",
		"side", side,
		"legs", legs,
	)

	result, err := od.desk.PlaceBatch(ctx, side, sel)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Batch rejected", err,
			"side", side,
			"legs", legs,
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return result, err
	}

	logger.InfoSkip(ctx, 1, "Batch completed",
		"batch_id", result.BatchID,
		"side", side,
		"placed", result.Placed(),
		"failed", result.Failed(),
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return result, nil
}

func (od *observableDesk) ExitPositions(ctx context.Context, req types.ExitRequest) (*types.BatchResult, error) {
	ctx, span := trace.StartSpan(ctx, "desk.ExitPositions")
	defer span.End()

	start := time.Now()

	logger.InfoSkip(ctx, 1, "Exiting positions",
		"all", req.All,
		"symbols", req.Symbols,
		"instrument_type", req.InstrumentType,
		"exchange", req.Exchange,
	)

	result, err := od.desk.ExitPositions(ctx, req)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Exit failed", err,
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return result, err
	}

	logger.InfoSkip(ctx, 1, "Exit completed",
		"batch_id", result.BatchID,
		"orders", len(result.Legs),
		"placed", result.Placed(),
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return result, nil
}
