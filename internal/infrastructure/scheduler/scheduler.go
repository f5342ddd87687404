package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/semmidev/keepsake/internal/domain"
)

// Scheduler runs named jobs on six-field cron specs. A job never overlaps
// with itself; a tick that arrives while it is still running is skipped.
type Scheduler struct {
	cron   *cron.Cron
	logger domain.Logger
	ctx    context.Context
	cancel context.CancelFunc
	mu     sync.Mutex
	ids    map[string]cron.EntryID
}

func New(logger domain.Logger) *Scheduler {
	if logger == nil {
		logger = domain.NopLogger()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:   cron.New(cron.WithSeconds(), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
		ids:    make(map[string]cron.EntryID),
	}
}

func (s *Scheduler) AddJob(name, spec string, job func(context.Context) error) error {
	id, err := s.cron.AddFunc(spec, func() {
		start := time.Now()
		s.logger.Infof("Job %s started", name)
		if err := job(s.ctx); err != nil {
			s.logger.Errorf("Job %s failed after %s: %v", name, time.Since(start).Round(time.Second), err)
			return
		}
		s.logger.Infof("Job %s finished in %s", name, time.Since(start).Round(time.Second))
	})
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.ids[name] = id
	s.mu.Unlock()
	return nil
}

// Next returns when the named job fires next.
func (s *Scheduler) Next(name string) (time.Time, bool) {
	s.mu.Lock()
	id, ok := s.ids[name]
	s.mu.Unlock()
	if !ok {
		return time.Time{}, false
	}
	return s.cron.Entry(id).Next, true
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop cancels the context handed to running jobs and waits for them.
func (s *Scheduler) Stop() {
	s.cancel()
	ctx := s.cron.Stop()
	<-ctx.Done()
}
