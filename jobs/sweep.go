package jobs

import (
	"context"
	"log/slog"

	"github.com/hibiken/asynq"
)

// SessionSweeper deletes expired session records.
type SessionSweeper interface {
	DeleteExpiredSessions(ctx context.Context) (int64, error)
}

// SweepHandler processes the periodic session sweep.
type SweepHandler struct {
	sweeper SessionSweeper
	logger  *slog.Logger
}

// NewSweepHandler constructs a SweepHandler.
func NewSweepHandler(sweeper SessionSweeper, logger *slog.Logger) *SweepHandler {
	return &SweepHandler{sweeper: sweeper, logger: logger}
}

// ProcessTask implements asynq.Handler for TaskTypeSessionSweep.
func (h *SweepHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	removed, err := h.sweeper.DeleteExpiredSessions(ctx)
	if err != nil {
		return err
	}
	if h.logger != nil && removed > 0 {
		h.logger.Info("expired sessions removed", slog.Int64("count", removed))
	}
	return nil
}
