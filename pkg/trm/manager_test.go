package trm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAfterCommit_OutsideTransactionRunsNow(t *testing.T) {
	ran := false
	AfterCommit(context.Background(), func() { ran = true })
	assert.True(t, ran)
}

func TestAfterCommit_DeferredUntilCommit(t *testing.T) {
	ctx := context.WithValue(context.Background(), afterCommitKey, &afterCommit{})
	var order []int

	AfterCommit(ctx, func() { order = append(order, 1) })
	AfterCommit(ctx, func() { order = append(order, 2) })
	assert.Empty(t, order)

	runAfterCommit(ctx)
	assert.Equal(t, []int{1, 2}, order)

	runAfterCommit(ctx)
	assert.Equal(t, []int{1, 2}, order, "hooks run once")
}
