// Package reconcile retries cascade deletes that left the two tables out of step.
package reconcile

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/fiffu/substore/config"
	"github.com/fiffu/substore/lib/models"
	"github.com/fiffu/substore/lib/store"
	"github.com/fiffu/substore/senders"
	"github.com/fiffu/substore/senders/email"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var errIncomplete = errors.New("cascade delete still incomplete")

type Cascader interface {
	DeleteCascade(ctx context.Context, appID string, artifactIDs []models.ArtifactID, userIDs []string, states []models.State) (store.CascadeResult, error)
}

type Worker struct {
	ledger   *Ledger
	cascader Cascader
	senders  senders.Registry
	log      *zap.Logger

	mu          sync.Mutex
	alarmClock  *alarmClock
	maxAttempts int
	recipient   string
	batchSize   int
	runTimeout  time.Duration
}

type Metrics struct {
	Selected  int
	Resolved  int
	Retrying  int
	Abandoned int
}

func NewWorker(lc fx.Lifecycle, cfg *config.Config, log *zap.Logger, ledger *Ledger, cascader Cascader, senders senders.Registry) *Worker {
	interval := cfg.ReconcileInterval()
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	w := &Worker{
		ledger:      ledger,
		cascader:    cascader,
		senders:     senders,
		log:         log,
		alarmClock:  newAlarmClock(interval),
		maxAttempts: max(cfg.Reconcile.MaxAttempts, 1),
		recipient:   cfg.Reconcile.AlertRecipient,
		batchSize:   20,
		runTimeout:  time.Minute,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			w.Start()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Sugar().Info("Trying to stop reconciler")
			w.Stop()
			return nil
		},
	})
	return w
}

func (w *Worker) Start() {
	c := w.alarmClock.Start(context.Background())

	go func() {
		for range c {
			ctx, cancel := context.WithTimeout(context.Background(), w.runTimeout)
			w.RunOnce(ctx)
			cancel()
		}
	}()
}

// Stop waits for an in-flight run to finish.
func (w *Worker) Stop() {
	w.alarmClock.Stop()
	w.mu.Lock()
	defer w.mu.Unlock()
	w.log.Sugar().Info("Reconciler stopped")
}

// Nudge schedules a run without waiting for the next interval.
func (w *Worker) Nudge() {
	w.alarmClock.Nudge()
}

func (w *Worker) RunOnce(ctx context.Context) Metrics {
	w.mu.Lock()
	defer w.mu.Unlock()

	start := time.Now()
	m := Metrics{}

	err := w.ledger.EachPending(ctx, w.batchSize, func(rec *PendingCascade) {
		m.Selected++
		switch w.retry(ctx, rec) {
		case outcomeResolved:
			m.Resolved++
		case outcomeAbandoned:
			m.Abandoned++
		default:
			m.Retrying++
		}
	})
	if err != nil {
		w.log.Sugar().Errorw("Failed to load pending cascades", "err", err)
	}

	if m.Selected > 0 {
		w.log.Sugar().Infow("Reconciler completed",
			"selected", m.Selected, "resolved", m.Resolved, "retrying", m.Retrying, "abandoned", m.Abandoned,
			"elapsed_msecs", time.Since(start).Milliseconds())
	}
	return m
}

type outcome int

const (
	outcomeRetrying outcome = iota
	outcomeResolved
	outcomeAbandoned
)

func (w *Worker) retry(ctx context.Context, rec *PendingCascade) outcome {
	result, err := w.cascader.DeleteCascade(ctx, rec.AppID, rec.ArtifactIDs, rec.UserIDs, rec.States)
	if err == nil && !result.Complete() {
		err = errIncomplete
	}
	if err == nil {
		if err := w.ledger.Resolve(ctx, rec); err != nil {
			w.log.Sugar().Errorw("Failed to resolve pending cascade", "id", rec.ID, "err", err)
			return outcomeRetrying
		}
		w.log.Sugar().Infow("Pending cascade resolved", "id", rec.ID, "appId", rec.AppID)
		return outcomeResolved
	}

	if ferr := w.ledger.Fail(ctx, rec, err, w.maxAttempts); ferr != nil {
		w.log.Sugar().Errorw("Failed to update pending cascade", "id", rec.ID, "err", ferr)
		return outcomeRetrying
	}
	if !rec.Abandoned {
		w.log.Sugar().Warnw("Pending cascade retry failed", "id", rec.ID, "attempts", rec.Attempts, "err", err)
		return outcomeRetrying
	}

	w.log.Sugar().Errorw("Pending cascade abandoned", "id", rec.ID, "appId", rec.AppID, "attempts", rec.Attempts, "err", err)
	w.alert(ctx, rec)
	return outcomeAbandoned
}

func (w *Worker) alert(ctx context.Context, rec *PendingCascade) {
	if w.recipient == "" {
		w.log.Sugar().Warnw("No alert recipient configured", "id", rec.ID)
		return
	}
	sender, ok := w.senders[senders.PlatformEmail]
	if !ok {
		w.log.Sugar().Warnw("No email sender registered", "id", rec.ID)
		return
	}

	artifactIDs := make([][]string, len(rec.ArtifactIDs))
	for i, a := range rec.ArtifactIDs {
		artifactIDs[i] = a.IDs()
	}
	ef := &email.AbandonedCascadeFormat{
		RecordID:    rec.ID,
		AppID:       rec.AppID,
		ArtifactIDs: artifactIDs,
		UserIDs:     rec.UserIDs,
		Attempts:    rec.Attempts,
		LastError:   rec.LastError,
		Since:       rec.CreatedAt,
	}
	if _, err := sender.Send(ctx, ef.Subject(), ef.Body(), w.recipient); err != nil {
		w.log.Sugar().Errorw("Failed to send abandoned cascade alert", "id", rec.ID, "err", err)
	}
}
