package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/Temutjin2k/taxi-dispatch/pkg/logger"
	wrap "github.com/Temutjin2k/taxi-dispatch/pkg/logger/wrapper"
)

const runTimeout = 20 * time.Second

// Job is a unit of scheduled work
type Job interface {
	Name() string
	Run(ctx context.Context)
}

// JobManager runs every scheduled job on one seconds-resolution cron
type JobManager struct {
	cron *cron.Cron
	jobs []scheduled
	l    logger.Logger
}

type scheduled struct {
	spec string
	job  Job
}

func NewJobManager(l logger.Logger) *JobManager {
	return &JobManager{
		cron: cron.New(cron.WithSeconds(), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		l:    l,
	}
}

// Add registers job under spec. A blank spec disables the job.
func (m *JobManager) Add(spec string, job Job) *JobManager {
	if spec != "" {
		m.jobs = append(m.jobs, scheduled{spec: spec, job: job})
	}
	return m
}

// StartAll schedules every job and starts the cron. Nothing runs if any spec is invalid.
func (m *JobManager) StartAll(ctx context.Context) error {
	for _, s := range m.jobs {
		job := s.job
		_, err := m.cron.AddFunc(s.spec, func() {
			runCtx, cancel := context.WithTimeout(wrap.WithAction(context.Background(), job.Name()), runTimeout)
			defer cancel()
			job.Run(runCtx)
		})
		if err != nil {
			for _, e := range m.cron.Entries() {
				m.cron.Remove(e.ID)
			}
			return fmt.Errorf("failed to schedule %s job: %w", job.Name(), err)
		}
	}

	m.cron.Start()
	m.l.Info(wrap.WithAction(ctx, "jobs_start"), "scheduled jobs started", "count", len(m.jobs))
	return nil
}

// StopAll stops scheduling and waits for running jobs until ctx is done
func (m *JobManager) StopAll(ctx context.Context) {
	select {
	case <-m.cron.Stop().Done():
	case <-ctx.Done():
		m.l.Warn(wrap.WithAction(ctx, "jobs_stop"), "scheduled jobs still running at shutdown")
	}
}
