package dispatch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	wrap "github.com/Temutjin2k/taxi-dispatch/pkg/logger/wrapper"
)

func TestSupervisor_OneTaskPerOrder(t *testing.T) {
	sup := NewSupervisor(testLogger)
	release := make(chan struct{})
	block := func(ctx context.Context) error {
		<-release
		return nil
	}

	assert.True(t, sup.Start(1, wrap.LogCtx{}, block))
	assert.False(t, sup.Start(1, wrap.LogCtx{}, block))
	assert.True(t, sup.Start(2, wrap.LogCtx{}, block))

	active := sup.Active()
	require.Len(t, active, 2)
	assert.Equal(t, int64(1), active[0].OrderID)
	assert.Equal(t, TaskRunning, active[0].State)

	close(release)
	sup.Wait()
	assert.Empty(t, sup.Active())
	assert.True(t, sup.Start(1, wrap.LogCtx{}, func(context.Context) error { return nil }), "restart after finish")
	sup.Wait()
}

func TestSupervisor_RecordsFailuresAndPanics(t *testing.T) {
	sup := NewSupervisor(testLogger)

	sup.Start(1, wrap.LogCtx{}, func(context.Context) error { return errors.New("store down") })
	sup.Start(2, wrap.LogCtx{}, func(context.Context) error { panic("nil map") })
	sup.Start(3, wrap.LogCtx{}, func(context.Context) error { return nil })
	sup.Wait()

	failed := sup.Failed()
	require.Len(t, failed, 2)
	assert.Equal(t, "store down", failed[0].Err)
	assert.Contains(t, failed[1].Err, "nil map")
	assert.False(t, failed[1].FinishedAt.IsZero())

	sup.Start(1, wrap.LogCtx{}, func(context.Context) error { return nil })
	sup.Wait()
	sup.Forget(2)
	assert.Empty(t, sup.Failed(), "restart and forget clear failures")
}

func TestSupervisor_Shutdown(t *testing.T) {
	sup := NewSupervisor(testLogger)
	started := make(chan struct{})
	sup.Start(1, wrap.LogCtx{}, func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	})
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, sup.Shutdown(ctx))

	assert.Empty(t, sup.Failed(), "interruption by shutdown is not a failure")
	assert.False(t, sup.Start(2, wrap.LogCtx{}, func(context.Context) error { return nil }))
}

func TestSupervisor_ShutdownTimeout(t *testing.T) {
	sup := NewSupervisor(testLogger)
	release := make(chan struct{})
	defer close(release)
	sup.Start(1, wrap.LogCtx{}, func(context.Context) error {
		<-release
		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, sup.Shutdown(ctx), context.DeadlineExceeded)
}

func TestWaker(t *testing.T) {
	w := NewWaker()
	w.Wake(1)

	ch, unsubscribe := w.Subscribe(1)
	w.Wake(1)
	w.Wake(1)
	select {
	case <-ch:
	default:
		t.Fatal("expected a wake signal")
	}
	select {
	case <-ch:
		t.Fatal("signals coalesce")
	default:
	}

	newer, unsubscribeNewer := w.Subscribe(1)
	unsubscribe()
	w.Wake(1)
	select {
	case <-newer:
	default:
		t.Fatal("stale unsubscribe removed the newer listener")
	}
	unsubscribeNewer()
	w.Wake(1)
}
