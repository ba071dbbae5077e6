package dispatch

import (
	"context"
	"fmt"

	"github.com/Temutjin2k/taxi-dispatch/internal/domain/models"
	"github.com/Temutjin2k/taxi-dispatch/internal/domain/types"
	wrap "github.com/Temutjin2k/taxi-dispatch/pkg/logger/wrapper"
)

const recoverBatch = 500

// RecoverReport summarizes one reconciliation pass
type RecoverReport struct {
	Restarted int
	Cancelled int
}

// Recover finds searching orders that no task is working on, typically after a
// crash or a failed search. Orders still within the search window get a new
// search, the rest are cancelled and their passengers notified.
// Orders left in created for longer than one offer timeout are dispatched as well.
func (e *Engine) Recover(ctx context.Context) (RecoverReport, error) {
	ctx = wrap.WithAction(ctx, types.ActionRecoverSearches)
	var report RecoverReport

	searching, err := e.orders.ListByStatus(ctx, types.StatusSearchingDriver, recoverBatch)
	if err != nil {
		return report, wrap.Error(ctx, fmt.Errorf("list searching orders: %w", err))
	}
	created, err := e.orders.ListByStatus(ctx, types.StatusCreated, recoverBatch)
	if err != nil {
		return report, wrap.Error(ctx, fmt.Errorf("list created orders: %w", err))
	}

	now := e.clock.Now()
	pending := make(map[int64]struct{}, len(searching)+len(created))

	for _, o := range searching {
		pending[o.ID] = struct{}{}
		if e.sup.IsActive(o.ID) {
			continue
		}
		octx := wrap.WithOrderID(ctx, o.ID)

		if now.Sub(o.CreatedAt) < e.cfg.MaxSearchDuration {
			if e.Dispatch(octx, o.ID) {
				report.Restarted++
				e.log.Info(octx, "orphaned search restarted")
			}
			continue
		}

		ok, err := e.sm.Transition(octx, o.ID, types.StatusSearchingDriver, types.StatusCancelled)
		if err != nil {
			e.log.Error(wrap.ErrorCtx(octx, err), "failed to cancel orphaned order", err)
			continue
		}
		e.sup.Forget(o.ID)
		if !ok {
			continue
		}
		report.Cancelled++
		e.log.Warn(octx, "orphaned order cancelled after the search window")
		e.publish(octx, models.OrderEvent{
			OrderID:   o.ID,
			Status:    types.StatusCancelled,
			ActorKind: models.SystemActor.Kind,
			At:        now,
		})
	}

	for _, o := range created {
		pending[o.ID] = struct{}{}
		if now.Sub(o.CreatedAt) < e.cfg.OfferTimeout || e.sup.IsActive(o.ID) {
			continue
		}
		if e.Dispatch(wrap.WithOrderID(ctx, o.ID), o.ID) {
			report.Restarted++
		}
	}

	// failures of orders resolved since are no longer interesting
	for _, info := range e.sup.Failed() {
		if _, ok := pending[info.OrderID]; !ok && !e.sup.IsActive(info.OrderID) {
			e.sup.Forget(info.OrderID)
		}
	}

	if report.Restarted > 0 || report.Cancelled > 0 {
		e.log.Info(ctx, "searches reconciled", "restarted", report.Restarted, "cancelled", report.Cancelled)
	}
	return report, nil
}

// Stats reports running and failed searches
func (e *Engine) Stats() (active, failed int) {
	return len(e.sup.Active()), len(e.sup.Failed())
}
