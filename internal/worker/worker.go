package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/hameed6991/queueless/internal/queue"
	"github.com/hameed6991/queueless/internal/store"
)

const (
	defaultThresholdMinutes = 5
	defaultSendTimeout      = 5 * time.Second
	cycleLockKey            = "queueless:alert-cycle"
	cycleLockTTL            = 30 * time.Second
)

// AlertTitle is the fixed headline for every wait alert.
const AlertTitle = "Almost your turn"

type Worker struct {
	store       store.TokenStore
	notifier    Notifier
	threshold   int
	sendTimeout time.Duration
	locker      Locker
	now         func() time.Time
	log         *logrus.Logger
}

type Config struct {
	ThresholdMinutes int
	SendTimeout      time.Duration
	Locker           Locker
	Now              func() time.Time
	Log              *logrus.Logger
}

func New(st store.TokenStore, notifier Notifier, cfg Config) *Worker {
	threshold := cfg.ThresholdMinutes
	if threshold <= 0 {
		threshold = defaultThresholdMinutes
	}
	sendTimeout := cfg.SendTimeout
	if sendTimeout <= 0 {
		sendTimeout = defaultSendTimeout
	}
	now := cfg.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	log := cfg.Log
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Worker{
		store:       st,
		notifier:    notifier,
		threshold:   threshold,
		sendTimeout: sendTimeout,
		locker:      cfg.Locker,
		now:         now,
		log:         log,
	}
}

// Run performs one alert cycle: refresh every waiting queue's estimates, then
// notify each customer whose wait dropped to the threshold and who has not
// been alerted today. Per-token failures are logged and retried next cycle;
// only store-level failures abort the cycle.
func (w *Worker) Run(ctx context.Context) error {
	if w.locker != nil {
		acquired, err := w.locker.Acquire(ctx, cycleLockKey, cycleLockTTL)
		if err != nil {
			return err
		}
		if !acquired {
			return nil
		}
	}

	day := w.now()

	if err := w.refreshAllEstimates(ctx, day); err != nil {
		return err
	}

	candidates, err := w.store.ListAlertCandidates(ctx, day, w.threshold)
	if err != nil {
		return err
	}

	for _, cand := range candidates {
		if err := w.sendAlert(ctx, cand); err != nil {
			w.log.WithError(err).WithFields(logrus.Fields{
				"token_id":    cand.TokenID,
				"business_id": cand.BusinessID,
			}).Warn("alert send failed, will retry next cycle")
			continue
		}
		if err := w.store.MarkAlertSent(ctx, cand.TokenID); err != nil {
			w.log.WithError(err).WithField("token_id", cand.TokenID).
				Error("mark alert sent failed")
		}
	}
	return nil
}

func (w *Worker) refreshAllEstimates(ctx context.Context, day time.Time) error {
	businessIDs, err := w.store.ListWaitingBusinessIDs(ctx, day)
	if err != nil {
		return err
	}

	for _, businessID := range businessIDs {
		business, err := w.store.GetActiveBusiness(ctx, businessID)
		if err != nil {
			w.log.WithError(err).WithField("business_id", businessID).
				Warn("skipping estimate refresh")
			continue
		}
		waiting, err := w.store.ListWaitingTokens(ctx, businessID, day)
		if err != nil {
			return err
		}
		estimates := queue.ComputeEstimates(waiting, queue.EffectiveAvgMinutes(business.AvgTimeMinutes))
		if err := w.store.UpdateEstimates(ctx, businessID, estimates); err != nil {
			return err
		}
	}
	return nil
}

func (w *Worker) sendAlert(ctx context.Context, cand store.AlertCandidate) error {
	alert := Alert{
		Title:                AlertTitle,
		Body:                 alertBody(cand),
		TokenID:              cand.TokenID,
		TokenNumber:          cand.TokenNumber,
		BusinessID:           cand.BusinessID,
		EstimatedWaitMinutes: cand.EstimatedWaitMinutes,
	}
	sendCtx, cancel := context.WithTimeout(ctx, w.sendTimeout)
	defer cancel()
	return w.notifier.Send(sendCtx, cand.Handle, alert)
}

func alertBody(cand store.AlertCandidate) string {
	return fmt.Sprintf("Only ~%d minutes left at %s (Token %d).",
		cand.EstimatedWaitMinutes, cand.BusinessName, cand.TokenNumber)
}

// Start ticks the worker until the context is cancelled.
func Start(ctx context.Context, interval time.Duration, w *Worker) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.Run(ctx); err != nil {
				w.log.WithError(err).Error("alert cycle failed")
			}
		}
	}
}
