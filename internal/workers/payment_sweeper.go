package workers

import (
	"context"
	"errors"
	"time"

	"validhub/internal/logger"
	"validhub/internal/models"
	"validhub/internal/processor"
	"validhub/internal/services"

	"go.uber.org/zap"
)

const sweepBatchSize = 50

// Pending sessions younger than this are still being driven by the client's
// own verify call and are left alone.
const sweepMinAge = 2 * time.Minute

type StaleOrderStore interface {
	ListStalePending(ctx context.Context, olderThan time.Duration, limit int) ([]models.PaymentSession, error)
}

type Verifier interface {
	Verify(ctx context.Context, userID, sessionID string) (services.VerifyResult, error)
}

// PaymentSweeper re-verifies pending checkout sessions that the client never
// came back for. Verification is idempotent, so the sweeper and a late client
// call can race safely.
type PaymentSweeper struct {
	orders   StaleOrderStore
	verifier Verifier
	interval time.Duration
}

func NewPaymentSweeper(orders StaleOrderStore, verifier Verifier, interval time.Duration) *PaymentSweeper {
	return &PaymentSweeper{
		orders:   orders,
		verifier: verifier,
		interval: interval,
	}
}

func (s *PaymentSweeper) Run(ctx context.Context) {
	logger.Log.Info("payment sweeper started", zap.Duration("interval", s.interval))
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.Log.Info("payment sweeper stopped")
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *PaymentSweeper) sweep(ctx context.Context) {
	sweepCtx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()

	orders, err := s.orders.ListStalePending(sweepCtx, sweepMinAge, sweepBatchSize)
	if err != nil {
		logger.Log.Error("failed to list stale pending sessions", zap.Error(err))
		return
	}
	for _, order := range orders {
		result, err := s.verifier.Verify(sweepCtx, order.UserID, order.SessionID)
		if err != nil {
			if errors.Is(err, processor.ErrUnavailable) {
				logger.Log.Warn("processor unavailable, leaving session pending",
					zap.String("session_id", order.SessionID))
				return
			}
			logger.Log.Error("failed to verify pending session",
				zap.String("session_id", order.SessionID), zap.Error(err))
			continue
		}
		if result.CreditedCredits > 0 {
			logger.Log.Info("credited stale paid session",
				zap.String("session_id", order.SessionID),
				zap.Int64("credits", result.CreditedCredits))
		}
	}
}
