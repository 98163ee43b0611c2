package scheduler

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"endwatch/pkg/logx"
)

// Service runs periodic jobs on cron specs (including "@every 10s").
//
// Each job carries a skip-if-running guard: if a slow run is still in flight
// when the next tick fires, the tick is skipped rather than overlapped. This
// is what keeps single-writer state owned by a job safe from reentrancy.
type Service struct {
	mu sync.Mutex

	log    logx.Logger
	parser cron.Parser
	c      *cron.Cron
	defs   []jobDef

	runCtx    context.Context
	runCancel context.CancelFunc
}

type jobDef struct {
	name    string
	spec    string
	timeout time.Duration
	run     func(ctx context.Context) error
	state   *runState
}

type runState struct {
	mu      sync.Mutex
	running bool
}

// tryAcquire marks the job running; it reports false if a run is in flight.
func (r *runState) tryAcquire() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return false
	}
	r.running = true
	return true
}

func (r *runState) release() {
	r.mu.Lock()
	r.running = false
	r.mu.Unlock()
}

func New(log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		log: log,
		// SecondOptional allows both 5-field and 6-field (with seconds) cron specs.
		parser: cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
	}
}

// Add registers a job. Must be called before Start.
func (s *Service) Add(name, spec string, timeout time.Duration, run func(ctx context.Context) error) error {
	if _, err := s.parser.Parse(spec); err != nil {
		return fmt.Errorf("job %s: invalid spec %q: %w", name, spec, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.defs = append(s.defs, jobDef{
		name:    name,
		spec:    spec,
		timeout: timeout,
		run:     run,
		state:   &runState{},
	})
	return nil
}

// Every registers an interval job, e.g. Every("watcher", 10*time.Second, ...).
func (s *Service) Every(name string, interval, timeout time.Duration, run func(ctx context.Context) error) error {
	if interval <= 0 {
		return fmt.Errorf("job %s: interval must be > 0", name)
	}
	return s.Add(name, "@every "+interval.String(), timeout, run)
}

func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return
	}
	s.runCtx, s.runCancel = context.WithCancel(ctx)
	s.c = cron.New(cron.WithParser(s.parser))

	for i := range s.defs {
		d := s.defs[i]
		_, err := s.c.AddFunc(d.spec, func() { s.execOne(d) })
		if err != nil {
			s.log.Error("failed to schedule job", logx.String("job", d.name), logx.Err(err))
			continue
		}
		s.log.Debug("job scheduled", logx.String("job", d.name), logx.String("spec", d.spec))
	}
	s.c.Start()
}

func (s *Service) Stop() {
	s.mu.Lock()
	c := s.c
	s.c = nil
	cancel := s.runCancel
	s.runCancel = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if c != nil {
		// Wait for in-flight runs so single-writer state is quiesced on exit.
		<-c.Stop().Done()
	}
}

func (s *Service) execOne(d jobDef) {
	if !d.state.tryAcquire() {
		s.log.Debug("job still running; tick skipped", logx.String("job", d.name))
		return
	}
	defer d.state.release()

	defer func() {
		if r := recover(); r != nil {
			s.log.Error("panic in job",
				logx.String("job", d.name),
				logx.Any("panic", r),
				logx.String("stack", string(debug.Stack())))
		}
	}()

	s.mu.Lock()
	ctx := s.runCtx
	s.mu.Unlock()
	if ctx == nil || ctx.Err() != nil {
		return
	}

	runCtx := ctx
	var cancel context.CancelFunc
	if d.timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	start := time.Now()
	err := d.run(runCtx)
	dur := time.Since(start)
	if err != nil {
		s.log.Warn("job failed", logx.String("job", d.name), logx.Err(err), logx.Duration("dur", dur))
		return
	}
	// Avoid noisy logs for very frequent jobs: only elevate when it took noticeable time.
	if dur >= 750*time.Millisecond {
		s.log.Info("job completed", logx.String("job", d.name), logx.Duration("dur", dur))
	} else {
		s.log.Debug("job completed", logx.String("job", d.name), logx.Duration("dur", dur))
	}
}
