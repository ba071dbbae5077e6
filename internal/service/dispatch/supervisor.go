package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Temutjin2k/taxi-dispatch/pkg/logger"
	wrap "github.com/Temutjin2k/taxi-dispatch/pkg/logger/wrapper"
)

type TaskState string

const (
	TaskRunning TaskState = "running"
	TaskFailed  TaskState = "failed"
)

// TaskInfo is a snapshot of a search task
type TaskInfo struct {
	OrderID    int64     `json:"order_id"`
	State      TaskState `json:"state"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at,omitempty"`
	Err        string    `json:"error,omitempty"`
}

type task struct {
	info   TaskInfo
	cancel context.CancelFunc
}

// Supervisor runs at most one task per order and remembers the ones that failed,
// so a reconciler can resume or close their orders.
type Supervisor struct {
	root   context.Context
	stop   context.CancelFunc
	log    logger.Logger
	wg     sync.WaitGroup
	mu     sync.Mutex
	active map[int64]*task
	failed map[int64]TaskInfo
	closed bool
}

func NewSupervisor(log logger.Logger) *Supervisor {
	root, stop := context.WithCancel(context.Background())
	return &Supervisor{
		root:   root,
		stop:   stop,
		log:    log,
		active: make(map[int64]*task),
		failed: make(map[int64]TaskInfo),
	}
}

// Start runs fn for orderID unless a task for it is already running.
// It reports whether a new task was started.
func (s *Supervisor) Start(orderID int64, lc wrap.LogCtx, fn func(ctx context.Context) error) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}
	if _, ok := s.active[orderID]; ok {
		return false
	}

	ctx, cancel := context.WithCancel(wrap.WithLogCtx(s.root, lc))
	t := &task{
		info:   TaskInfo{OrderID: orderID, State: TaskRunning, StartedAt: time.Now().UTC()},
		cancel: cancel,
	}
	s.active[orderID] = t
	delete(s.failed, orderID)

	s.wg.Add(1)
	go s.run(ctx, t, fn)
	return true
}

func (s *Supervisor) run(ctx context.Context, t *task, fn func(ctx context.Context) error) {
	defer s.wg.Done()
	defer t.cancel()

	var err error
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("search panicked: %v", r)
			}
		}()
		err = fn(ctx)
	}()

	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.active, t.info.OrderID)

	if err == nil {
		return
	}
	if errors.Is(err, context.Canceled) && s.root.Err() != nil {
		s.log.Info(ctx, "search interrupted by shutdown")
		return
	}

	info := t.info
	info.State = TaskFailed
	info.FinishedAt = time.Now().UTC()
	info.Err = err.Error()
	s.failed[info.OrderID] = info
	s.log.Error(wrap.ErrorCtx(ctx, err), "search task failed", err)
}

// IsActive reports whether a task for orderID is running
func (s *Supervisor) IsActive(orderID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.active[orderID]
	return ok
}

// Active lists running tasks ordered by order id
func (s *Supervisor) Active() []TaskInfo {
	s.mu.Lock()
	out := make([]TaskInfo, 0, len(s.active))
	for _, t := range s.active {
		out = append(out, t.info)
	}
	s.mu.Unlock()
	return sortInfos(out)
}

// Failed lists tasks that ended with an error and were not restarted since
func (s *Supervisor) Failed() []TaskInfo {
	s.mu.Lock()
	out := make([]TaskInfo, 0, len(s.failed))
	for _, info := range s.failed {
		out = append(out, info)
	}
	s.mu.Unlock()
	return sortInfos(out)
}

// Forget drops the failure record of orderID
func (s *Supervisor) Forget(orderID int64) {
	s.mu.Lock()
	delete(s.failed, orderID)
	s.mu.Unlock()
}

// Wait blocks until every started task has returned
func (s *Supervisor) Wait() {
	s.wg.Wait()
}

// Shutdown cancels all tasks and waits for them until ctx expires.
// No task can be started afterwards.
func (s *Supervisor) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.stop()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("search tasks still running: %w", ctx.Err())
	}
}

func sortInfos(infos []TaskInfo) []TaskInfo {
	sort.Slice(infos, func(i, j int) bool { return infos[i].OrderID < infos[j].OrderID })
	return infos
}
