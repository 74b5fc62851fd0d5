package photometer

import (
	"context"
	"log"
	"time"
)

// DefaultProgram is the original duty-cycle program: 0 to MaxDuty/2 in steps of 3000.
func DefaultProgram() []int {
	var p []int
	for d := 0; d < MaxDuty/2; d += 3000 {
		p = append(p, d)
	}
	return p
}

// Sink consumes measurement records in production order.
type Sink interface {
	Record(rec Record) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(rec Record) error

func (f SinkFunc) Record(rec Record) error { return f(rec) }

// CycleReport summarizes one completed cycle.
type CycleReport struct {
	Start    time.Time
	Duration time.Duration
	Records  int
}

// Runner sweeps every channel through the intensity program.
type Runner struct {
	reg     *Registry
	exec    *Executor
	program []int
	store   Sink
	extra   []Sink
	logger  *log.Logger
}

// NewRunner creates a Runner. Records go to store first, then to every extra sink.
// Errors from extra sinks are logged and do not interrupt the cycle.
func NewRunner(reg *Registry, exec *Executor, program []int, store Sink, logger *log.Logger, extra ...Sink) *Runner {
	if logger == nil {
		logger = log.Default()
	}
	p := make([]int, len(program))
	copy(p, program)
	return &Runner{reg: reg, exec: exec, program: p, store: store, extra: extra, logger: logger}
}

// RunCycle measures channels in registration order and, for each channel,
// intensities in program order, writing one record per measurement.
func (r *Runner) RunCycle(ctx context.Context) (CycleReport, error) {
	report := CycleReport{Start: r.exec.now()}
	for id := 0; id < r.reg.Len(); id++ {
		for _, intensity := range r.program {
			rec, err := r.exec.Measure(ctx, id, intensity)
			if err != nil {
				report.Duration = r.exec.now().Sub(report.Start)
				return report, err
			}
			if err := r.store.Record(rec); err != nil {
				report.Duration = r.exec.now().Sub(report.Start)
				return report, err
			}
			for _, s := range r.extra {
				if err := s.Record(rec); err != nil {
					r.logger.Printf("cycle: forward record: %v", err)
				}
			}
			report.Records++
		}
	}
	report.Duration = r.exec.now().Sub(report.Start)
	return report, nil
}
