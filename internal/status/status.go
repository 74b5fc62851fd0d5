// Package status provides a thread-safe status tracker for the photometer daemon.
// The scheduler goroutine writes it; HTTP handlers and MQTT lifecycle events read it.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/photometer/internal/logic"
	"github.com/sweeney/photometer/internal/photometer"
)

// Config contains daemon configuration for display.
type Config struct {
	Backend  string
	Channels int
	Period   time.Duration
	Warmup   time.Duration
	Repeats  int
	Interval time.Duration
	Steps    int // intensity program length
	LogPath  string
	Broker   string
	HTTPAddr string
}

// ChannelSummary is the self-test outcome for one channel.
type ChannelSummary struct {
	LED      int
	Resistor int
	Dark     logic.Summary
	Bright   logic.Summary
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	State             photometer.State
	CyclesCompleted   int
	RecordsWritten    int
	LastCycleStart    time.Time
	LastCycleDuration time.Duration
	NextDue           time.Time
	StorageWritable   bool
	LastFault         string
	SelfTest          []ChannelSummary
	StartTime         time.Time
	Now               time.Time
	MQTTConnected     bool
	Config            Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewTracker creates a Tracker with the given start time and config.
// Storage is assumed writable until a cycle reports otherwise.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime:       startTime,
			StorageWritable: true,
			Config:          cfg,
		},
	}
}

// SetState records the scheduler state.
func (t *Tracker) SetState(st photometer.State) {
	t.mu.Lock()
	t.snap.State = st
	t.mu.Unlock()
}

// RecordCycle counts a completed cycle and schedules the next one a period
// after its start.
func (t *Tracker) RecordCycle(report photometer.CycleReport, storageWritable bool) {
	t.mu.Lock()
	t.snap.CyclesCompleted++
	t.snap.RecordsWritten += report.Records
	t.snap.LastCycleStart = report.Start
	t.snap.LastCycleDuration = report.Duration
	t.snap.NextDue = report.Start.Add(t.snap.Config.Period)
	t.snap.StorageWritable = storageWritable
	t.mu.Unlock()
}

// SetNextDue sets when the next cycle is expected to start.
func (t *Tracker) SetNextDue(due time.Time) {
	t.mu.Lock()
	t.snap.NextDue = due
	t.mu.Unlock()
}

// SetFault records the fault that stopped the scheduler.
func (t *Tracker) SetFault(err error) {
	t.mu.Lock()
	if err == nil {
		t.snap.LastFault = ""
	} else {
		t.snap.LastFault = err.Error()
	}
	t.mu.Unlock()
}

// SetSelfTest stores the per-channel self-test summaries.
func (t *Tracker) SetSelfTest(results []photometer.SelfTestResult) {
	summaries := make([]ChannelSummary, len(results))
	for i, r := range results {
		summaries[i] = ChannelSummary{
			LED:      r.Channel.LED,
			Resistor: r.Channel.Resistor,
			Dark:     r.DarkSummary(),
			Bright:   r.BrightSummary(),
		}
	}
	t.mu.Lock()
	t.snap.SelfTest = summaries
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	if s.SelfTest != nil {
		s.SelfTest = append([]ChannelSummary(nil), s.SelfTest...)
	}
	t.mu.RUnlock()
	s.Now = time.Now()
	return s
}
