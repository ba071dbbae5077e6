package jobs

import (
	"context"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Temutjin2k/taxi-dispatch/internal/service/dispatch"
	"github.com/Temutjin2k/taxi-dispatch/pkg/logger"
)

func testLogger() logger.Logger {
	return logger.New(io.Discard, "test", logger.LevelError)
}

type countingPinger struct{ calls atomic.Int32 }

func (p *countingPinger) PingAll(context.Context) int {
	p.calls.Add(1)
	return 1
}

type stubRecoverer struct {
	calls  atomic.Int32
	report dispatch.RecoverReport
	err    error
}

func (r *stubRecoverer) Recover(ctx context.Context) (dispatch.RecoverReport, error) {
	r.calls.Add(1)
	if _, ok := ctx.Deadline(); !ok {
		panic("job context has no deadline")
	}
	return r.report, r.err
}

func TestJobManager_RunsJobs(t *testing.T) {
	pinger := &countingPinger{}
	rec := &stubRecoverer{report: dispatch.RecoverReport{Restarted: 1}}

	m := NewJobManager(testLogger()).
		Add("* * * * * *", NewPingJob(pinger, testLogger())).
		Add("* * * * * *", NewReconcileJob(rec, testLogger())).
		Add("", NewPingJob(&countingPinger{}, testLogger()))
	require.NoError(t, m.StartAll(context.Background()))

	assert.Eventually(t, func() bool {
		return pinger.calls.Load() > 0 && rec.calls.Load() > 0
	}, 3*time.Second, 50*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	m.StopAll(ctx)
	assert.Len(t, m.jobs, 2)
}

func TestJobManager_InvalidSpec(t *testing.T) {
	m := NewJobManager(testLogger()).
		Add("* * * * * *", NewPingJob(&countingPinger{}, testLogger())).
		Add("every minute", NewPingJob(&countingPinger{}, testLogger()))

	err := m.StartAll(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ping_connections")
	assert.Empty(t, m.cron.Entries())
}

func TestReconcileJob_ToleratesErrors(t *testing.T) {
	rec := &stubRecoverer{err: assert.AnError}
	job := NewReconcileJob(rec, testLogger())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NotPanics(t, func() { job.Run(ctx) })
	assert.Equal(t, int32(1), rec.calls.Load())
}
