package jobs

import (
	"context"

	"github.com/Temutjin2k/taxi-dispatch/internal/domain/types"
	"github.com/Temutjin2k/taxi-dispatch/pkg/logger"
	wrap "github.com/Temutjin2k/taxi-dispatch/pkg/logger/wrapper"
)

// Pinger sweeps live channels and returns how many were evicted
type Pinger interface {
	PingAll(ctx context.Context) int
}

// PingJob keeps live channels warm and evicts the dead ones
type PingJob struct {
	pinger Pinger
	l      logger.Logger
}

func NewPingJob(pinger Pinger, l logger.Logger) *PingJob {
	return &PingJob{pinger: pinger, l: l}
}

func (j *PingJob) Name() string { return "ping_connections" }

func (j *PingJob) Run(ctx context.Context) {
	if evicted := j.pinger.PingAll(ctx); evicted > 0 {
		j.l.Info(wrap.WithAction(ctx, types.ActionPingConnections), "evicted dead connections", "count", evicted)
	}
}
