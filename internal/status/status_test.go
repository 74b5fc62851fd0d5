package status

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sweeney/photometer/internal/photometer"
)

func testConfig() Config {
	return Config{
		Backend:  "fake",
		Channels: 8,
		Period:   900 * time.Second,
		Warmup:   2 * time.Second,
		Repeats:  5,
		Interval: 200 * time.Millisecond,
		Steps:    11,
		LogPath:  "20260101-000000_output.csv",
		Broker:   "tcp://localhost:1883",
		HTTPAddr: ":8080",
	}
}

func TestNewTracker(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tr := NewTracker(start, testConfig())

	snap := tr.Snapshot()
	if !snap.StartTime.Equal(start) {
		t.Errorf("StartTime: got %v, want %v", snap.StartTime, start)
	}
	if snap.Config.Channels != 8 {
		t.Errorf("Config.Channels: got %d, want 8", snap.Config.Channels)
	}
	if !snap.StorageWritable {
		t.Error("expected StorageWritable=true initially")
	}
	if snap.CyclesCompleted != 0 {
		t.Errorf("expected no cycles, got %d", snap.CyclesCompleted)
	}
	if snap.MQTTConnected {
		t.Error("expected MQTTConnected=false initially")
	}
}

func TestSetState(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})

	tr.SetState(photometer.StateMeasuring)
	if got := tr.Snapshot().State; got != photometer.StateMeasuring {
		t.Errorf("State: got %q, want MEASURING", got)
	}
}

func TestRecordCycle(t *testing.T) {
	tr := NewTracker(time.Now(), testConfig())
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	tr.RecordCycle(photometer.CycleReport{Start: start, Duration: 3 * time.Minute, Records: 88}, true)
	tr.RecordCycle(photometer.CycleReport{Start: start.Add(15 * time.Minute), Duration: 3 * time.Minute, Records: 88}, false)

	snap := tr.Snapshot()
	if snap.CyclesCompleted != 2 {
		t.Errorf("CyclesCompleted: got %d, want 2", snap.CyclesCompleted)
	}
	if snap.RecordsWritten != 176 {
		t.Errorf("RecordsWritten: got %d, want 176", snap.RecordsWritten)
	}
	if !snap.LastCycleStart.Equal(start.Add(15 * time.Minute)) {
		t.Errorf("LastCycleStart: got %v", snap.LastCycleStart)
	}
	if want := start.Add(30 * time.Minute); !snap.NextDue.Equal(want) {
		t.Errorf("NextDue: got %v, want %v", snap.NextDue, want)
	}
	if snap.StorageWritable {
		t.Error("expected StorageWritable=false after failing cycle")
	}
}

func TestSetFault(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})

	tr.SetFault(errors.New("sample: unexpected fault: adc timeout"))
	if got := tr.Snapshot().LastFault; got != "sample: unexpected fault: adc timeout" {
		t.Errorf("LastFault: got %q", got)
	}

	tr.SetFault(nil)
	if got := tr.Snapshot().LastFault; got != "" {
		t.Errorf("LastFault should clear, got %q", got)
	}
}

func TestSetSelfTest(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})

	tr.SetSelfTest([]photometer.SelfTestResult{{
		Channel: photometer.ChannelPair{LED: 2, Resistor: 10},
		Dark:    []uint16{10, 20, 30},
		Bright:  []uint16{60000, 61000},
	}})

	snap := tr.Snapshot()
	if len(snap.SelfTest) != 1 {
		t.Fatalf("expected 1 summary, got %d", len(snap.SelfTest))
	}
	s := snap.SelfTest[0]
	if s.LED != 2 || s.Resistor != 10 {
		t.Errorf("pair: got %d/%d", s.LED, s.Resistor)
	}
	if s.Dark.Mean != 20 || s.Dark.Min != 10 || s.Dark.Max != 30 {
		t.Errorf("dark: %+v", s.Dark)
	}
	if s.Bright.Mean != 60500 {
		t.Errorf("bright mean: got %v", s.Bright.Mean)
	}
}

func TestSetMQTTConnected(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})

	tr.SetMQTTConnected(true)
	if !tr.Snapshot().MQTTConnected {
		t.Error("expected MQTTConnected=true")
	}

	tr.SetMQTTConnected(false)
	if tr.Snapshot().MQTTConnected {
		t.Error("expected MQTTConnected=false")
	}
}

func TestSnapshotUptime(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	snap := Snapshot{StartTime: start, Now: start.Add(90 * time.Second)}

	if snap.Uptime() != 90*time.Second {
		t.Errorf("Uptime: got %v, want 90s", snap.Uptime())
	}
}

func TestSnapshotNowIsSet(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})

	before := time.Now()
	snap := tr.Snapshot()
	after := time.Now()

	if snap.Now.Before(before) || snap.Now.After(after) {
		t.Errorf("Now %v not within [%v, %v]", snap.Now, before, after)
	}
}

func TestSnapshotIsCopy(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})
	tr.SetSelfTest([]photometer.SelfTestResult{{Channel: photometer.ChannelPair{LED: 1}}})

	snap := tr.Snapshot()
	snap.SelfTest[0].LED = 99
	snap.CyclesCompleted = 42

	again := tr.Snapshot()
	if again.SelfTest[0].LED != 1 {
		t.Error("modifying snapshot self-test should not affect tracker")
	}
	if again.CyclesCompleted != 0 {
		t.Error("modifying snapshot should not affect tracker")
	}
}

func TestFormatJSON(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	snap := Snapshot{
		State:             photometer.StateWaiting,
		CyclesCompleted:   3,
		RecordsWritten:    264,
		LastCycleStart:    start.Add(30 * time.Minute),
		LastCycleDuration: 2*time.Minute + 500*time.Millisecond,
		NextDue:           start.Add(45 * time.Minute),
		StorageWritable:   true,
		StartTime:         start,
		Now:               start.Add(35 * time.Minute),
		MQTTConnected:     true,
		Config:            testConfig(),
	}

	data := FormatJSON(snap)

	var parsed StatusJSON
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}

	s := parsed.Status
	if s.State != "WAITING" {
		t.Errorf("State: got %q, want WAITING", s.State)
	}
	if s.Cycles != 3 || s.Records != 264 {
		t.Errorf("counts: got %d cycles, %d records", s.Cycles, s.Records)
	}
	if s.LastCycle == nil {
		t.Fatal("expected last_cycle")
	}
	if s.LastCycle.Start != "2026-01-01T00:30:00Z" {
		t.Errorf("LastCycle.Start: got %s", s.LastCycle.Start)
	}
	if s.LastCycle.DurationMs != 120500 {
		t.Errorf("LastCycle.DurationMs: got %d", s.LastCycle.DurationMs)
	}
	if s.NextDue != "2026-01-01T00:45:00Z" {
		t.Errorf("NextDue: got %s", s.NextDue)
	}
	if !s.Storage.Writable || s.Storage.LogPath != "20260101-000000_output.csv" {
		t.Errorf("Storage: %+v", s.Storage)
	}
	if s.UptimeSeconds != 2100 {
		t.Errorf("UptimeSeconds: got %d, want 2100", s.UptimeSeconds)
	}
	if !s.MQTT.Connected || s.MQTT.Broker != "tcp://localhost:1883" {
		t.Errorf("MQTT: %+v", s.MQTT)
	}
	if s.Config.PeriodS != 900 || s.Config.WarmupMs != 2000 || s.Config.IntervalMs != 200 {
		t.Errorf("Config: %+v", s.Config)
	}
	// Event and Reason should be omitted
	if s.Event != "" || s.Reason != "" {
		t.Errorf("expected no event/reason for web format, got %q/%q", s.Event, s.Reason)
	}
}

func TestFormatJSONBeforeFirstCycle(t *testing.T) {
	snap := Snapshot{
		StartTime: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		Now:       time.Date(2026, 1, 1, 0, 0, 1, 0, time.UTC),
	}

	var parsed map[string]map[string]interface{}
	if err := json.Unmarshal(FormatJSON(snap), &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}

	status := parsed["status"]
	if status["state"] != "STARTING" {
		t.Errorf("state: got %v, want STARTING", status["state"])
	}
	for _, key := range []string{"last_cycle", "next_due", "last_fault", "self_test"} {
		if _, exists := status[key]; exists {
			t.Errorf("%s should be omitted before the first cycle", key)
		}
	}
}

func TestFormatJSONSelfTest(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})
	tr.SetSelfTest([]photometer.SelfTestResult{{
		Channel: photometer.ChannelPair{LED: 0, Resistor: 8},
		Dark:    []uint16{100},
		Bright:  []uint16{50000},
	}})

	var parsed StatusJSON
	if err := json.Unmarshal(FormatJSON(tr.Snapshot()), &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if len(parsed.Status.SelfTest) != 1 {
		t.Fatalf("expected 1 self-test entry, got %d", len(parsed.Status.SelfTest))
	}
	ch := parsed.Status.SelfTest[0]
	if ch.Resistor != 8 || ch.Dark.Mean != 100 || ch.Bright.Max != 50000 {
		t.Errorf("self-test entry: %+v", ch)
	}
}

func TestFormatStatusEvent(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	snap := Snapshot{
		State:     photometer.StateStopped,
		LastFault: "sample: unexpected fault: adc timeout",
		StartTime: start,
		Now:       start.Add(time.Hour),
		Config:    testConfig(),
	}

	data := FormatStatusEvent(snap, "FAULT", "sample: unexpected fault: adc timeout")

	var parsed StatusJSON
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if parsed.Status.Event != "FAULT" {
		t.Errorf("Event: got %q, want FAULT", parsed.Status.Event)
	}
	if parsed.Status.Reason == "" {
		t.Error("expected reason")
	}
	if parsed.Status.State != "STOPPED" {
		t.Errorf("State: got %q", parsed.Status.State)
	}
	if parsed.Status.LastFault != snap.LastFault {
		t.Errorf("LastFault: got %q", parsed.Status.LastFault)
	}
}

func TestFormatStatusEventOmitsReasonWhenEmpty(t *testing.T) {
	snap := Snapshot{StartTime: time.Now(), Now: time.Now()}

	var parsed map[string]map[string]interface{}
	if err := json.Unmarshal(FormatStatusEvent(snap, "STARTUP", ""), &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if _, exists := parsed["status"]["reason"]; exists {
		t.Error("reason field should be omitted for startup events")
	}
	if parsed["status"]["event"] != "STARTUP" {
		t.Errorf("event: got %v", parsed["status"]["event"])
	}
}

func TestConcurrentAccess(t *testing.T) {
	tr := NewTracker(time.Now(), testConfig())
	var wg sync.WaitGroup

	// Writer
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			tr.SetState(photometer.StateMeasuring)
			tr.RecordCycle(photometer.CycleReport{Start: time.Now(), Records: i}, i%2 == 0)
			tr.SetMQTTConnected(i%2 == 0)
			tr.SetSelfTest([]photometer.SelfTestResult{{}})
		}
	}()

	// Reader
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			snap := tr.Snapshot()
			_ = FormatJSON(snap)
		}
	}()

	wg.Wait()
}
