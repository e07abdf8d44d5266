package gateway

import (
	"context"
	"time"

	"staybook-backend/internal/logger"
)

// PollConfig bounds a status polling loop
type PollConfig struct {
	Interval    time.Duration
	MaxAttempts int
}

// StatusCheck asks the gateway for the current state of one payment
type StatusCheck func(ctx context.Context) (*TransactionResult, error)

// Poll calls check until it reports a final status, the attempts run out or
// ctx is done. Running out of attempts or context yields StatusTimeout; the
// payment is never reported as completed or failed unless the gateway said so.
// Retryable check errors use up an attempt; any other error ends the loop.
func Poll(ctx context.Context, externalID string, cfg PollConfig, check StatusCheck) (*TransactionResult, error) {
	timeout := &TransactionResult{ExternalID: externalID, Status: StatusTimeout}

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		res, err := check(ctx)
		switch {
		case err != nil && !IsRetryable(err):
			return nil, err
		case err != nil:
			logger.Warn("Status check failed, will retry", "external_id", externalID, "attempt", attempt, "error", err)
		case res.Status.Final():
			return res, nil
		}

		if attempt == cfg.MaxAttempts {
			break
		}

		timer := time.NewTimer(cfg.Interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			logger.Info("Polling cancelled", "external_id", externalID, "attempt", attempt)
			return timeout, nil
		case <-timer.C:
		}
	}

	logger.Info("Polling exhausted attempts", "external_id", externalID, "max_attempts", cfg.MaxAttempts)
	return timeout, nil
}
