package order

import (
	"context"
	"fmt"

	"github.com/Temutjin2k/taxi-dispatch/internal/domain/types"
	wrap "github.com/Temutjin2k/taxi-dispatch/pkg/logger/wrapper"
	"github.com/Temutjin2k/taxi-dispatch/pkg/metrics"
	"github.com/Temutjin2k/taxi-dispatch/pkg/trm"
)

var transitions = map[types.OrderStatus]map[types.OrderStatus]struct{}{
	types.StatusCreated: {
		types.StatusSearchingDriver: {},
		types.StatusCancelled:       {},
	},
	types.StatusSearchingDriver: {
		types.StatusDriverAssigned: {},
		types.StatusCancelled:      {},
	},
	types.StatusDriverAssigned: {
		types.StatusDriverArrived: {},
		types.StatusCancelled:     {},
	},
	types.StatusDriverArrived: {
		types.StatusInProgress: {},
		types.StatusCancelled:  {},
	},
	types.StatusInProgress: {
		types.StatusCompleted: {},
	},
}

// CanTransition reports whether an order may move from one status to another
func CanTransition(from, to types.OrderStatus) bool {
	next, ok := transitions[from]
	if !ok {
		return false
	}
	_, ok = next[to]
	return ok
}

// StateMachine performs guarded status updates. Every update is conditional on the
// expected prior status, so concurrent callers cannot both win.
type StateMachine struct {
	repo   OrderMover
	signal Signaler
}

// NewStateMachine creates a state machine. signal may be nil.
func NewStateMachine(repo OrderMover, signal Signaler) *StateMachine {
	return &StateMachine{repo: repo, signal: signal}
}

// Assign binds the driver to the order if it is still searching.
// false means another actor resolved the order first.
func (m *StateMachine) Assign(ctx context.Context, orderID, driverID int64) (bool, error) {
	ctx = wrap.WithAction(wrap.WithDriverID(wrap.WithOrderID(ctx, orderID), driverID), types.ActionAssignDriver)

	ok, err := m.repo.Assign(ctx, orderID, driverID)
	metrics.RecordAssignment(ok, err)
	if err != nil {
		return false, wrap.Error(ctx, fmt.Errorf("assign driver: %w", err))
	}
	if ok {
		m.wake(ctx, orderID)
	}
	return ok, nil
}

// Transition moves the order from one status to another. Pairs outside the table fail with
// ErrInvalidTransition; searching_driver to driver_assigned needs a driver and goes through Assign.
// false means the order was not in the expected status.
func (m *StateMachine) Transition(ctx context.Context, orderID int64, from, to types.OrderStatus) (bool, error) {
	if !CanTransition(from, to) || (from == types.StatusSearchingDriver && to == types.StatusDriverAssigned) {
		return false, fmt.Errorf("%w: %s -> %s", types.ErrInvalidTransition, from, to)
	}
	ctx = wrap.WithAction(wrap.WithOrderID(ctx, orderID), types.ActionOrderTransition)

	ok, err := m.repo.Transition(ctx, orderID, from, to)
	if err != nil {
		return false, wrap.Error(ctx, fmt.Errorf("transition %s -> %s: %w", from, to, err))
	}
	if ok && from == types.StatusSearchingDriver {
		m.wake(ctx, orderID)
	}
	return ok, nil
}

// wake is deferred until commit when the update runs inside a transaction
func (m *StateMachine) wake(ctx context.Context, orderID int64) {
	if m.signal == nil {
		return
	}
	trm.AfterCommit(ctx, func() { m.signal.Wake(orderID) })
}
