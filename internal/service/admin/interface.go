package admin

import (
	"context"

	"github.com/Temutjin2k/taxi-dispatch/internal/domain/models"
	"github.com/Temutjin2k/taxi-dispatch/internal/domain/types"
	"github.com/Temutjin2k/taxi-dispatch/internal/service/dispatch"
)

type StatsRepo interface {
	Stats(ctx context.Context) (*models.SystemStats, error)
}

// ConnectionCounter reports live connections per actor kind
type ConnectionCounter interface {
	Counts() map[types.ActorKind]int
}

// SearchMonitor exposes running and failed driver searches
type SearchMonitor interface {
	Active() []dispatch.TaskInfo
	Failed() []dispatch.TaskInfo
}
