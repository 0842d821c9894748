// Package scheduler fires every caller on a fixed interval. Each tick hands
// one task per caller to a worker pool; callers run independently, so one
// failure never cancels or delays its siblings.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/lex00/wetwire-fargate-go/internal/caller"
	"github.com/lex00/wetwire-fargate-go/internal/metrics"
	"github.com/lex00/wetwire-fargate-go/internal/trigger"
)

// Invoker runs one caller once.
type Invoker interface {
	Invoke(ctx context.Context, c trigger.Caller) error
}

// InvokerFunc adapts a function to Invoker.
type InvokerFunc func(ctx context.Context, c trigger.Caller) error

func (f InvokerFunc) Invoke(ctx context.Context, c trigger.Caller) error {
	return f(ctx, c)
}

// Result is the outcome of one caller in one tick.
type Result struct {
	Caller string
	// Skipped is set when the caller's previous invocation was still running
	Skipped  bool
	Err      error
	Duration time.Duration
}

// TickReport collects the results of one tick, sorted by caller name.
type TickReport struct {
	ID       string
	Started  time.Time
	Finished time.Time
	Results  []Result
}

// Err aggregates the failed invocations of the tick, or returns nil.
func (r TickReport) Err() error {
	var merr *multierror.Error
	for _, res := range r.Results {
		if res.Err != nil {
			merr = multierror.Append(merr, fmt.Errorf("%s: %w", res.Caller, res.Err))
		}
	}
	return merr.ErrorOrNil()
}

// Result returns the result for one caller.
func (r TickReport) Result(name string) (Result, bool) {
	for _, res := range r.Results {
		if res.Caller == name {
			return res, true
		}
	}
	return Result{}, false
}

// Options tune a Scheduler.
type Options struct {
	Interval time.Duration
	// Timeout bounds each invocation; defaults to the caller's own timeout
	Timeout time.Duration
	// FireImmediately runs a tick as soon as Run starts
	FireImmediately bool
	Metrics         *metrics.Scheduler
	// OnTick receives every report produced by Run
	OnTick func(TickReport)
}

// Scheduler owns the ticker and the per-caller in-flight flags.
type Scheduler struct {
	callers  []trigger.Caller
	invoker  Invoker
	logger   zerolog.Logger
	opts     Options
	inflight map[string]*atomic.Bool
}

// New creates a scheduler for callers.
func New(callers []trigger.Caller, invoker Invoker, logger zerolog.Logger, opts Options) (*Scheduler, error) {
	if len(callers) == 0 {
		return nil, errors.New("scheduler needs at least one caller")
	}
	if invoker == nil {
		return nil, errors.New("scheduler needs an invoker")
	}
	if opts.Interval <= 0 {
		return nil, fmt.Errorf("invalid interval %s", opts.Interval)
	}

	inflight := make(map[string]*atomic.Bool, len(callers))
	for _, c := range callers {
		if _, dup := inflight[c.Name]; dup {
			return nil, fmt.Errorf("duplicate caller %q", c.Name)
		}
		inflight[c.Name] = &atomic.Bool{}
	}

	return &Scheduler{
		callers:  callers,
		invoker:  invoker,
		logger:   logger.With().Str("component", "scheduler").Logger(),
		opts:     opts,
		inflight: inflight,
	}, nil
}

// Run ticks every interval until ctx is cancelled, then waits for
// outstanding invocations. Ticks do not wait for each other; a caller still
// running from an earlier tick is skipped.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.opts.Interval)
	defer ticker.Stop()

	var wg sync.WaitGroup
	defer wg.Wait()

	fire := func() {
		wg.Add(1)
		go func() {
			defer wg.Done()
			report := s.Tick(ctx)
			if s.opts.OnTick != nil {
				s.opts.OnTick(report)
			}
		}()
	}

	s.logger.Info().
		Dur("interval", s.opts.Interval).
		Int("callers", len(s.callers)).
		Msg("scheduler started")

	if s.opts.FireImmediately {
		fire()
	}

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("scheduler stopping")
			return nil
		case <-ticker.C:
			fire()
		}
	}
}

type task struct {
	caller trigger.Caller
	flag   *atomic.Bool
}

// Tick dispatches one task per caller to a worker pool and waits for all of
// them to settle.
func (s *Scheduler) Tick(ctx context.Context) TickReport {
	report := TickReport{ID: uuid.New().String(), Started: time.Now()}
	s.opts.Metrics.Tick()

	tasks := make(chan task, len(s.callers))
	results := make(chan Result, len(s.callers))

	var g errgroup.Group
	for i := 0; i < len(s.callers); i++ {
		g.Go(func() error {
			for t := range tasks {
				results <- s.execute(ctx, report.ID, t)
			}
			return nil
		})
	}

	for _, c := range s.callers {
		flag := s.inflight[c.Name]
		if !flag.CompareAndSwap(false, true) {
			s.opts.Metrics.Skip(c.Name)
			s.logger.Warn().Str("tick", report.ID).Str("caller", c.Name).Msg("previous invocation still running; skipped")
			results <- Result{Caller: c.Name, Skipped: true}
			continue
		}
		tasks <- task{caller: c, flag: flag}
	}
	close(tasks)
	_ = g.Wait()
	close(results)

	for res := range results {
		report.Results = append(report.Results, res)
	}
	sort.Slice(report.Results, func(i, j int) bool {
		return report.Results[i].Caller < report.Results[j].Caller
	})
	report.Finished = time.Now()

	failed := 0
	for _, res := range report.Results {
		if res.Err != nil {
			failed++
		}
	}
	s.logger.Info().
		Str("tick", report.ID).
		Int("callers", len(report.Results)).
		Int("failed", failed).
		Dur("elapsed", report.Finished.Sub(report.Started)).
		Msg("tick settled")

	return report
}

func (s *Scheduler) execute(ctx context.Context, tickID string, t task) (res Result) {
	defer t.flag.Store(false)

	timeout := s.opts.Timeout
	if timeout == 0 {
		timeout = t.caller.Timeout
	}
	if timeout == 0 {
		timeout = trigger.DefaultTimeout
	}
	ictx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	res.Caller = t.caller.Name

	defer func() {
		if r := recover(); r != nil {
			res.Err = fmt.Errorf("invocation panicked: %v", r)
		}
		res.Duration = time.Since(start)
		s.opts.Metrics.Observe(t.caller.Name, outcome(res.Err), res.Duration)

		var entry *zerolog.Event
		if res.Err != nil {
			entry = s.logger.Error().Err(res.Err)
		} else {
			entry = s.logger.Info()
		}
		entry.Str("tick", tickID).
			Str("caller", t.caller.Name).
			Str("placement", string(t.caller.Placement)).
			Dur("duration", res.Duration).
			Msg("invocation settled")
	}()

	err := s.invoker.Invoke(ictx, t.caller)
	if err != nil && errors.Is(ictx.Err(), context.DeadlineExceeded) && !errors.Is(err, caller.ErrUpstream) {
		err = &caller.UpstreamError{Target: t.caller.Target.URL(), Err: err}
	}
	res.Err = err
	return res
}

func outcome(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeSuccess
	case errors.Is(err, caller.ErrNetworkRejection):
		return metrics.OutcomeRejected
	case errors.Is(err, caller.ErrUpstream):
		return metrics.OutcomeUpstream
	default:
		return metrics.OutcomeError
	}
}
