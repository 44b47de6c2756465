// Package jobs contains background workers that run on a schedule.
// The pledge charge job collects due recurring pledges through the payment gateway; the
// reminder notifier emails donors ahead of their next charge.
// Jobs are idempotent: re-running after a crash, or on two replicas at once, produces the
// same result as a single clean run.
package jobs

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/temple4/community-core/internal/config"
	"github.com/temple4/community-core/internal/giving"
	"github.com/temple4/community-core/internal/safego"
	"github.com/temple4/community-core/internal/telemetry"
)

// PledgeAdvancer lists due pledges and applies charge outcomes to them. An empty tenantID
// means every tenant.
type PledgeAdvancer interface {
	ListDuePledges(ctx context.Context, tenantID string, limit int) ([]*giving.Pledge, error)
	AdvancePledge(ctx context.Context, tenantID, pledgeID string, chargeSucceeded bool, at time.Time) (*giving.Pledge, error)
}

// ChargeRunStats summarizes one run of the charge job.
type ChargeRunStats struct {
	Due       int
	Succeeded int
	Declined  int
	Errors    int
}

// PledgeChargeJob periodically charges every ACTIVE pledge whose next charge date has passed.
type PledgeChargeJob struct {
	advancer  PledgeAdvancer
	gateway   ChargeGateway
	interval  time.Duration
	batchSize int
	now       func() time.Time

	runMu  sync.Mutex
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewPledgeChargeJob creates a new pledge charge job
func NewPledgeChargeJob(advancer PledgeAdvancer, gateway ChargeGateway, cfg config.PledgeChargeJobConfig) *PledgeChargeJob {
	interval := cfg.Interval
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = 100
	}
	return &PledgeChargeJob{
		advancer:  advancer,
		gateway:   gateway,
		interval:  interval,
		batchSize: batch,
		now:       time.Now,
		stopCh:    make(chan struct{}),
	}
}

// Start runs the job immediately and then on every tick until ctx is cancelled or Stop is called.
func (j *PledgeChargeJob) Start(ctx context.Context) {
	slog.Info("starting pledge charge job", "interval", j.interval, "batch_size", j.batchSize)

	j.wg.Add(1)
	safego.Go("pledge-charge-job", func() {
		defer j.wg.Done()

		ticker := time.NewTicker(j.interval)
		defer ticker.Stop()

		j.RunOnce(ctx)
		for {
			select {
			case <-ticker.C:
				j.RunOnce(ctx)
			case <-j.stopCh:
				slog.Info("pledge charge job stopped")
				return
			case <-ctx.Done():
				slog.Info("pledge charge job context cancelled")
				return
			}
		}
	})
}

// Stop stops the job and waits for an in-flight run to finish
func (j *PledgeChargeJob) Stop() {
	close(j.stopCh)
	j.wg.Wait()
}

// RunOnce charges all currently due pledges. Concurrent calls in the same process are collapsed:
// a call made while another run is in progress returns immediately with ok=false.
func (j *PledgeChargeJob) RunOnce(ctx context.Context) (stats ChargeRunStats, ok bool) {
	if !j.runMu.TryLock() {
		slog.Info("pledge charge run already in progress, skipping")
		return stats, false
	}
	defer j.runMu.Unlock()

	start := time.Now()
	defer func() {
		telemetry.JobDuration.WithLabelValues("pledge_charge").Observe(time.Since(start).Seconds())
	}()

	// pledges whose charge errored stay due, so stop once a batch brings nothing new
	seen := make(map[string]bool)
	for ctx.Err() == nil {
		due, err := j.advancer.ListDuePledges(ctx, "", j.batchSize)
		if err != nil {
			slog.Error("failed to list due pledges", "error", err)
			break
		}

		fresh := 0
		for _, p := range due {
			if seen[p.ID] {
				continue
			}
			seen[p.ID] = true
			fresh++
			j.chargeOne(ctx, p, &stats)
		}
		if fresh == 0 || len(due) < j.batchSize {
			break
		}
	}

	if stats.Due > 0 {
		slog.Info("pledge charge run finished",
			"due", stats.Due, "succeeded", stats.Succeeded, "declined", stats.Declined, "errors", stats.Errors,
			"duration", time.Since(start))
	}
	return stats, true
}

func (j *PledgeChargeJob) chargeOne(ctx context.Context, p *giving.Pledge, stats *ChargeRunStats) {
	stats.Due++
	req := NewChargeRequest(p)

	succeeded, err := j.gateway.Charge(ctx, req)
	if err != nil {
		stats.Errors++
		slog.Warn("charge attempt failed, will retry next run",
			"pledge_id", p.ID, "tenant_id", p.TenantID, "charge_at", req.ChargeAt, "error", err)
		return
	}

	// a success is keyed by the scheduled date and a decline by the attempt time, so replaying
	// either outcome is a no-op
	at := p.NextChargeAt
	if !succeeded {
		at = j.now()
	}
	if _, err := j.advancer.AdvancePledge(ctx, p.TenantID, p.ID, succeeded, at); err != nil {
		stats.Errors++
		slog.Error("failed to advance pledge", "pledge_id", p.ID, "succeeded", succeeded, "error", err)
		return
	}
	if succeeded {
		stats.Succeeded++
	} else {
		stats.Declined++
	}
}
