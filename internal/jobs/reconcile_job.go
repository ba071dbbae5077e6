package jobs

import (
	"context"

	"github.com/Temutjin2k/taxi-dispatch/internal/domain/types"
	"github.com/Temutjin2k/taxi-dispatch/internal/service/dispatch"
	"github.com/Temutjin2k/taxi-dispatch/pkg/logger"
	wrap "github.com/Temutjin2k/taxi-dispatch/pkg/logger/wrapper"
)

type Recoverer interface {
	Recover(ctx context.Context) (dispatch.RecoverReport, error)
}

// ReconcileJob restarts driver searches that lost their task and cancels the expired ones
type ReconcileJob struct {
	engine Recoverer
	l      logger.Logger
}

func NewReconcileJob(engine Recoverer, l logger.Logger) *ReconcileJob {
	return &ReconcileJob{engine: engine, l: l}
}

func (j *ReconcileJob) Name() string { return "reconcile_searches" }

func (j *ReconcileJob) Run(ctx context.Context) {
	ctx = wrap.WithAction(ctx, types.ActionRecoverSearches)

	report, err := j.engine.Recover(ctx)
	if err != nil {
		j.l.Error(wrap.ErrorCtx(ctx, err), "reconciliation failed", err)
		return
	}
	if report.Restarted > 0 || report.Cancelled > 0 {
		j.l.Info(ctx, "reconciled searches", "restarted", report.Restarted, "cancelled", report.Cancelled)
	}
}
