package photometer

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/sweeney/photometer/internal/hal"
	"github.com/sweeney/photometer/internal/logic"
)

// DefaultPeriod is the time between cycle starts.
const DefaultPeriod = 900 * time.Second

// State is the scheduler's position in its control loop.
type State string

const (
	StateWaiting   State = "WAITING"
	StateMeasuring State = "MEASURING"
	StateStopped   State = "STOPPED"
)

// Scheduler fires a cycle immediately and then once per period, and keeps
// the hardware safe on every exit path.
type Scheduler struct {
	runner    *Runner
	reg       *Registry
	indicator hal.Indicator
	period    time.Duration
	now       func() time.Time
	sleep     SleepFunc
	logger    *log.Logger

	// ErrorPath receives a best-effort description of a fatal fault.
	ErrorPath string
	// MaxCycles stops the loop after that many cycles; 0 runs until cancelled.
	MaxCycles int

	// OnState is called on every state change.
	OnState func(State)
	// OnWait is called before every wait increment.
	OnWait func(logic.Decision)
	// OnCycle is called after every completed cycle.
	OnCycle func(CycleReport)
}

// NewScheduler creates a Scheduler. A nil indicator is treated as absent,
// nil now/sleep select the real clock.
func NewScheduler(runner *Runner, reg *Registry, indicator hal.Indicator, period time.Duration, now func() time.Time, sleep SleepFunc, logger *log.Logger) *Scheduler {
	if indicator == nil {
		indicator = hal.NoIndicator{}
	}
	if now == nil {
		now = time.Now
	}
	if sleep == nil {
		sleep = Sleep
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Scheduler{
		runner:    runner,
		reg:       reg,
		indicator: indicator,
		period:    period,
		now:       now,
		sleep:     sleep,
		logger:    logger,
	}
}

// Run executes the Waiting/Measuring loop until ctx is cancelled, MaxCycles
// is reached or a fault occurs. Faults (including panics) are written to
// ErrorPath and returned. Channels are reset and the indicator switched off
// before Run returns in every case. Cancellation returns ctx.Err().
func (s *Scheduler) Run(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			perr, ok := r.(error)
			if !ok {
				perr = fmt.Errorf("%v", r)
			}
			err = newError(ErrFault, "cycle", "panic", perr)
		}
		if err != nil && !isCancel(err) {
			s.logger.Printf("scheduler: %v", err)
			AppendErrorRecord(s.ErrorPath, s.now(), err)
		}
		if rerr := s.reg.ResetAll(); rerr != nil {
			s.logger.Printf("scheduler: reset on exit: %v", rerr)
			if err == nil {
				err = rerr
			}
		}
		s.indicator.Off()
		s.setState(StateStopped)
	}()

	state := logic.NewScheduleState()
	s.setState(StateWaiting)
	for cycles := 0; s.MaxCycles == 0 || cycles < s.MaxCycles; cycles++ {
		if err := s.waitUntilDue(ctx, &state); err != nil {
			return err
		}
		if err := s.measure(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (s *Scheduler) waitUntilDue(ctx context.Context, state *logic.ScheduleState) error {
	for {
		now := s.now()
		d, next := logic.Check(*state, now, s.period)
		if d.Due {
			*state = next
			return nil
		}
		s.logger.Printf("scheduler: time %s, last measurement %s, delta %v, next measurement in %v",
			now.Local().Format(TimestampLayout), state.LastCycleStart.Local().Format(TimestampLayout),
			d.Elapsed.Truncate(time.Second), d.Remaining.Truncate(time.Second))
		if s.OnWait != nil {
			s.OnWait(d)
		}
		if err := s.sleep(ctx, logic.WaitStep(d.Remaining, logic.MaxWaitStep)); err != nil {
			return err
		}
	}
}

func (s *Scheduler) measure(ctx context.Context) (err error) {
	release := s.reg.Arm()
	s.setState(StateMeasuring)
	s.indicator.On()
	defer func() {
		s.indicator.Off()
		if rerr := release(); rerr != nil && err == nil {
			err = rerr
		}
		if err == nil {
			s.setState(StateWaiting)
		}
	}()

	report, err := s.runner.RunCycle(ctx)
	if err != nil {
		if isCancel(err) {
			return err
		}
		var perr *Error
		if errors.As(err, &perr) {
			return err
		}
		return newError(ErrFault, "cycle", "", err)
	}
	s.logger.Printf("scheduler: cycle complete: %d records in %v", report.Records, report.Duration.Truncate(time.Millisecond))
	if s.OnCycle != nil {
		s.OnCycle(report)
	}
	return nil
}

func (s *Scheduler) setState(st State) {
	if s.OnState != nil {
		s.OnState(st)
	}
}

func isCancel(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
