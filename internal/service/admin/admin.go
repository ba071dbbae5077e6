package admin

import (
	"context"

	"github.com/Temutjin2k/taxi-dispatch/internal/domain/models"
	"github.com/Temutjin2k/taxi-dispatch/internal/domain/types"
	"github.com/Temutjin2k/taxi-dispatch/internal/service/dispatch"
	"github.com/Temutjin2k/taxi-dispatch/pkg/logger"
	wrap "github.com/Temutjin2k/taxi-dispatch/pkg/logger/wrapper"
)

type AdminService struct {
	stats    StatsRepo
	conns    ConnectionCounter
	searches SearchMonitor
	l        logger.Logger
}

func NewAdminService(stats StatsRepo, conns ConnectionCounter, searches SearchMonitor, l logger.Logger) *AdminService {
	return &AdminService{
		stats:    stats,
		conns:    conns,
		searches: searches,
		l:        l,
	}
}

// Stats combines store aggregates with the live state of this instance
func (s *AdminService) Stats(ctx context.Context) (*models.SystemStats, error) {
	st, err := s.stats.Stats(ctx)
	if err != nil {
		return nil, wrap.Error(wrap.WithAction(ctx, "system_stats"), err)
	}

	st.Connections = s.conns.Counts()
	st.OnlineDriversWS = st.Connections[types.ActorDriver]
	st.ActiveSearches = len(s.searches.Active())
	st.FailedSearches = len(s.searches.Failed())
	return st, nil
}

// SearchReport lists the driver searches this instance is running or has lost
type SearchReport struct {
	Active []dispatch.TaskInfo `json:"active"`
	Failed []dispatch.TaskInfo `json:"failed"`
}

func (s *AdminService) Searches(_ context.Context) SearchReport {
	return SearchReport{
		Active: s.searches.Active(),
		Failed: s.searches.Failed(),
	}
}
