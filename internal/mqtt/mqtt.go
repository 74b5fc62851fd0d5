// Package mqtt provides MQTT publishing with abstraction for testing.
package mqtt

import (
	"encoding/json"
	"time"

	"github.com/sweeney/photometer/internal/logic"
	"github.com/sweeney/photometer/internal/photometer"
)

// DefaultTopicPrefix is the root of all photometer topics.
const DefaultTopicPrefix = "photometer"

// System lifecycle events.
const (
	EventStartup     = "STARTUP"
	EventShutdown    = "SHUTDOWN"
	EventCycle       = "CYCLE"
	EventFault       = "FAULT"
	EventReconnected = "RECONNECTED"
)

// Topics are the topics a publisher writes to.
type Topics struct {
	Records string
	System  string
}

// NewTopics derives the topic set from a prefix.
func NewTopics(prefix string) Topics {
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return Topics{
		Records: prefix + "/records",
		System:  prefix + "/system",
	}
}

// Publisher publishes measurement records and lifecycle events to MQTT.
type Publisher interface {
	// PublishRecord sends one measurement record to the broker.
	// Returns error if publishing fails (should not stop acquisition).
	PublishRecord(rec photometer.Record) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// SystemEvent represents a system lifecycle event (startup, shutdown, cycle, fault).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string
	Reason     string // signal name for SHUTDOWN, error text for FAULT
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// RecordPayload is the MQTT message payload for a measurement record.
type RecordPayload struct {
	Record RecordInner `json:"record"`
}

// RecordInner contains the record details.
type RecordInner struct {
	Timestamp string   `json:"timestamp"`
	LED       int      `json:"led"`
	Resistor  int      `json:"resistor"`
	Intensity int      `json:"intensity"`
	Samples   []uint16 `json:"samples"`
	Mean      float64  `json:"mean"`
}

// FormatRecordPayload creates the JSON payload for a record.
func FormatRecordPayload(rec photometer.Record) ([]byte, error) {
	samples := rec.Samples
	if samples == nil {
		samples = []uint16{}
	}
	payload := RecordPayload{
		Record: RecordInner{
			Timestamp: rec.Time.UTC().Format(time.RFC3339),
			LED:       rec.LED,
			Resistor:  rec.Resistor,
			Intensity: rec.Intensity,
			Samples:   samples,
			Mean:      logic.Summarize(rec.Samples).Mean,
		},
	}
	return json.Marshal(payload)
}

// SystemPayload represents the MQTT message payload for system events.
// Used for simple events (LWT, RECONNECTED) that don't carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	}
	return json.Marshal(payload)
}

// RecordSink adapts a Publisher to the cycle runner's sink.
type RecordSink struct {
	Publisher Publisher
}

// Record publishes rec.
func (s RecordSink) Record(rec photometer.Record) error {
	return s.Publisher.PublishRecord(rec)
}

var _ photometer.Sink = RecordSink{}
