package routing

import (
	"context"
	"time"

	"go.uber.org/zap"

	"feeledger/internal/model"
)

// Summary counts the outcome of one backfill sweep.
type Summary struct {
	Scanned               int `json:"scanned"`
	Updated               int `json:"updated"`
	SkippedNoPool         int `json:"skipped_no_pool"`
	SkippedNoVerification int `json:"skipped_no_verification"`
	SkippedNoFees         int `json:"skipped_no_fees"`
	Failed                int `json:"failed"`
}

// SweepConfig controls the backfill sweep pacing.
type SweepConfig struct {
	// Delay between pools; keeps sequential reads under third-party RPC
	// rate limits.
	InterCallDelay time.Duration
}

// Sweep performs routing retroactively for every project with a known
// pool: pools claimed before, or without, successful automatic routing.
// Projects are processed sequentially; one failure never stops the rest.
func (c *Coordinator) Sweep(ctx context.Context, cfg SweepConfig) (Summary, error) {
	summary := Summary{}
	if cfg.InterCallDelay <= 0 {
		cfg.InterCallDelay = 500 * time.Millisecond
	}

	projects, err := c.store.ProjectsWithPool(ctx)
	if err != nil {
		return summary, err
	}

	for i, project := range projects {
		select {
		case <-ctx.Done():
			return summary, ctx.Err()
		default:
		}

		summary.Scanned++
		item := c.sweepOne(ctx, project, &summary)
		c.logger.Info("backfill item",
			zap.String("status", item.status),
			zap.String("project_id", project.ID),
			zap.String("pool_id", project.PoolID),
			zap.String("wallet", project.OwnerWallet),
			zap.String("detail", item.detail),
		)

		if i < len(projects)-1 {
			timer := time.NewTimer(cfg.InterCallDelay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return summary, ctx.Err()
			case <-timer.C:
			}
		}
	}

	c.logger.Info("backfill sweep complete",
		zap.Int("scanned", summary.Scanned),
		zap.Int("updated", summary.Updated),
		zap.Int("skipped_no_pool", summary.SkippedNoPool),
		zap.Int("skipped_no_verification", summary.SkippedNoVerification),
		zap.Int("skipped_no_fees", summary.SkippedNoFees),
		zap.Int("failed", summary.Failed),
	)
	return summary, nil
}

type sweepItem struct {
	status string
	detail string
}

func (c *Coordinator) sweepOne(ctx context.Context, project model.Project, summary *Summary) sweepItem {
	if project.PoolID == "" {
		summary.SkippedNoPool++
		return sweepItem{status: "SKIP", detail: "no pool"}
	}
	if project.OwnerWallet == "" || project.VerificationMethod == "" {
		summary.SkippedNoVerification++
		return sweepItem{status: "SKIP", detail: "no verification"}
	}

	result, err := c.Ensure(ctx, Request{
		PoolID:    project.PoolID,
		Wallet:    project.OwnerWallet,
		ProjectID: project.ID,
	})
	if err != nil {
		summary.Failed++
		return sweepItem{status: "FAIL", detail: err.Error()}
	}

	if result.EscrowAction == model.EscrowNone && !result.LockerRoutingUpdated && !result.HookRoutingUpdated {
		summary.SkippedNoFees++
		return sweepItem{status: "SKIP", detail: "no fees, nothing to update"}
	}

	summary.Updated++
	return sweepItem{status: "OK", detail: string(result.EscrowAction)}
}
