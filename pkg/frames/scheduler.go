package frames

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/zeromicro/go-zero/core/logx"
)

// Scheduler revisits the active frames on a fixed cadence while the view is
// in the foreground. Each run sleeps a random jitter first so frames across
// hosts do not refresh in lockstep.
type Scheduler struct {
	interval time.Duration
	jitter   time.Duration
	run      func(ctx context.Context)

	cron       *cron.Cron
	foreground atomic.Bool

	mu     sync.Mutex
	entry  cron.EntryID
	armed  bool
	ctx    context.Context
	cancel context.CancelFunc
	rand   func(n int64) int64
}

// NewScheduler returns a scheduler calling run every interval. Non-positive
// values fall back to the defaults.
func NewScheduler(interval, jitter time.Duration, run func(ctx context.Context)) *Scheduler {
	if interval <= 0 {
		interval = DefaultRefreshInterval
	}
	if jitter < 0 {
		jitter = DefaultRefreshJitter
	}
	logger := cronLogger{}
	s := &Scheduler{
		interval: interval,
		jitter:   jitter,
		run:      run,
		cron: cron.New(
			cron.WithLogger(logger),
			cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
		),
		rand: rand.Int63n,
	}
	s.foreground.Store(true)
	return s
}

// Start arms the job and starts the cron runner. ctx bounds every run.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()
	if err := s.Rearm(); err != nil {
		return err
	}
	s.cron.Start()
	return nil
}

// Rearm restarts the cadence from now, e.g. after a symbol change.
func (s *Scheduler) Rearm() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.armed {
		s.cron.Remove(s.entry)
		s.armed = false
	}
	id, err := s.cron.AddFunc(fmt.Sprintf("@every %s", s.interval), s.tick)
	if err != nil {
		return fmt.Errorf("frames: arm refresh schedule: %w", err)
	}
	s.entry = id
	s.armed = true
	return nil
}

// SetForeground gates runs; a background view skips its scheduled refreshes.
func (s *Scheduler) SetForeground(on bool) {
	s.foreground.Store(on)
}

// Foreground reports the gate state.
func (s *Scheduler) Foreground() bool {
	return s.foreground.Load()
}

// Stop halts the runner and waits for a running job to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()
	<-s.cron.Stop().Done()
}

func (s *Scheduler) tick() {
	if !s.foreground.Load() {
		return
	}
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()
	if ctx == nil {
		ctx = context.Background()
	}
	if s.jitter > 0 {
		delay := time.Duration(s.rand(int64(s.jitter) + 1))
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
	if ctx.Err() != nil {
		return
	}
	s.run(ctx)
}

// cronLogger routes cron's internal logging to logx.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...any) {
	logx.Debugf("cron: %s %v", msg, keysAndValues)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...any) {
	logx.Errorf("cron: %s err=%v %v", msg, err, keysAndValues)
}
