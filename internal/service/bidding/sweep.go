package bidding

import (
	"context"
	"log/slog"
	"time"
)

// SettleExpired finds auctions past their deadline that were never settled
// and settles each in turn, oldest expiration first. One auction's failure
// never blocks the rest of the batch. The batch size bounds a single pass;
// the scheduler calls this repeatedly.
func (s *service) SettleExpired(ctx context.Context, now time.Time) (*SweepResult, error) {
	ids, err := s.store.ExpiredUnsettled(ctx, now, sweepBatchSize)
	if err != nil {
		return nil, err
	}

	result := &SweepResult{}
	for _, id := range ids {
		result.Attempted++
		if err := s.SettleAuction(ctx, id, now); err != nil {
			result.Failed++
			s.logger.ErrorContext(ctx, "sweep settlement failed",
				slog.String("auction_id", id.String()),
				slog.Any("error", err))
		}
	}

	if result.Attempted > 0 {
		s.logger.InfoContext(ctx, "sweep pass complete",
			slog.Int("attempted", result.Attempted),
			slog.Int("failed", result.Failed))
	}
	s.metrics.RecordSweep(ctx, result.Attempted, result.Failed)

	return result, nil
}
