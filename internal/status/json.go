package status

import (
	"encoding/json"
	"time"

	"github.com/sweeney/photometer/internal/logic"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string        `json:"event,omitempty"`
	Reason        string        `json:"reason,omitempty"`
	State         string        `json:"state"`
	Cycles        int           `json:"cycles_completed"`
	Records       int           `json:"records_written"`
	LastCycle     *CycleJSON    `json:"last_cycle,omitempty"`
	NextDue       string        `json:"next_due,omitempty"`
	Storage       StorageJSON   `json:"storage"`
	LastFault     string        `json:"last_fault,omitempty"`
	SelfTest      []ChannelJSON `json:"self_test,omitempty"`
	UptimeSeconds int64         `json:"uptime_seconds"`
	StartTime     string        `json:"start_time"`
	Timestamp     string        `json:"timestamp"`
	MQTT          MQTTStatus    `json:"mqtt"`
	Config        ConfigJSON    `json:"config"`
}

// CycleJSON describes the last completed cycle.
type CycleJSON struct {
	Start      string `json:"start"`
	DurationMs int64  `json:"duration_ms"`
}

// StorageJSON reports the record log.
type StorageJSON struct {
	Writable bool   `json:"writable"`
	LogPath  string `json:"log_path"`
}

// ChannelJSON is one channel's self-test summary.
type ChannelJSON struct {
	LED      int         `json:"led"`
	Resistor int         `json:"resistor"`
	Dark     SummaryJSON `json:"dark"`
	Bright   SummaryJSON `json:"bright"`
}

// SummaryJSON is min/max/mean of a sample set.
type SummaryJSON struct {
	Min  float64 `json:"min"`
	Max  float64 `json:"max"`
	Mean float64 `json:"mean"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	Backend    string `json:"backend"`
	Channels   int    `json:"channels"`
	PeriodS    int64  `json:"period_s"`
	WarmupMs   int64  `json:"warmup_ms"`
	Repeats    int    `json:"repeats"`
	IntervalMs int64  `json:"interval_ms"`
	Steps      int    `json:"program_steps"`
	Broker     string `json:"broker"`
	HTTPAddr   string `json:"http_addr"`
}

func summaryJSON(s logic.Summary) SummaryJSON {
	return SummaryJSON{Min: s.Min, Max: s.Max, Mean: s.Mean}
}

func buildInner(snap Snapshot) StatusInner {
	state := string(snap.State)
	if state == "" {
		state = "STARTING"
	}

	inner := StatusInner{
		State:         state,
		Cycles:        snap.CyclesCompleted,
		Records:       snap.RecordsWritten,
		Storage:       StorageJSON{Writable: snap.StorageWritable, LogPath: snap.Config.LogPath},
		LastFault:     snap.LastFault,
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Config: ConfigJSON{
			Backend:    snap.Config.Backend,
			Channels:   snap.Config.Channels,
			PeriodS:    int64(snap.Config.Period / time.Second),
			WarmupMs:   snap.Config.Warmup.Milliseconds(),
			Repeats:    snap.Config.Repeats,
			IntervalMs: snap.Config.Interval.Milliseconds(),
			Steps:      snap.Config.Steps,
			Broker:     snap.Config.Broker,
			HTTPAddr:   snap.Config.HTTPAddr,
		},
	}
	if !snap.LastCycleStart.IsZero() {
		inner.LastCycle = &CycleJSON{
			Start:      snap.LastCycleStart.UTC().Format(time.RFC3339),
			DurationMs: snap.LastCycleDuration.Milliseconds(),
		}
	}
	if !snap.NextDue.IsZero() {
		inner.NextDue = snap.NextDue.UTC().Format(time.RFC3339)
	}
	for _, c := range snap.SelfTest {
		inner.SelfTest = append(inner.SelfTest, ChannelJSON{
			LED:      c.LED,
			Resistor: c.Resistor,
			Dark:     summaryJSON(c.Dark),
			Bright:   summaryJSON(c.Bright),
		})
	}
	return inner
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: buildInner(snap)}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
