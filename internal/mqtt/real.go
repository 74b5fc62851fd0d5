package mqtt

import (
	"fmt"
	"log"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/sweeney/photometer/internal/photometer"
)

// bufferCapacity holds a little over one default cycle of records.
const bufferCapacity = 128

const (
	connectTimeout = 10 * time.Second
	publishTimeout = 5 * time.Second
)

// Options configures a RealPublisher.
type Options struct {
	Broker      string
	ClientID    string
	TopicPrefix string
}

// RealPublisher publishes to an actual MQTT broker. Messages produced while
// the connection is down are buffered and replayed on reconnect.
type RealPublisher struct {
	client paho.Client
	topics Topics

	mu        sync.Mutex
	buf       *ringBuffer
	connected bool
	replaying bool // a flush owns the buffer; new messages queue behind it
	connects  int
}

// NewRealPublisher creates a publisher connected to the given broker.
// The broker's last will announces an unexpected disconnect.
func NewRealPublisher(o Options) (*RealPublisher, error) {
	clientID := o.ClientID
	if clientID == "" {
		clientID = "photometer"
	}
	p := newPublisher(nil, NewTopics(o.TopicPrefix))

	will, err := FormatSystemPayload(SystemEvent{
		Timestamp: time.Now(),
		Event:     EventShutdown,
		Reason:    "MQTT_DISCONNECT",
	})
	if err != nil {
		return nil, fmt.Errorf("format will payload: %w", err)
	}

	opts := paho.NewClientOptions().
		AddBroker(o.Broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5*time.Second).
		SetBinaryWill(p.topics.System, will, 1, false).
		SetOnConnectHandler(p.onConnect).
		SetConnectionLostHandler(p.onConnectionLost)

	p.client = paho.NewClient(opts)
	token := p.client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return nil, fmt.Errorf("connection timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}

	return p, nil
}

func newPublisher(client paho.Client, topics Topics) *RealPublisher {
	return &RealPublisher{
		client: client,
		topics: topics,
		buf:    newRingBuffer(bufferCapacity),
	}
}

// PublishRecord sends a measurement record to the MQTT broker.
func (p *RealPublisher) PublishRecord(rec photometer.Record) error {
	payload, err := FormatRecordPayload(rec)
	if err != nil {
		return fmt.Errorf("format record payload: %w", err)
	}
	// QoS 0 (at-most-once), not retained
	return p.publish(bufferedMsg{topic: p.topics.Records, payload: payload})
}

// PublishSystem sends a system lifecycle event to the MQTT broker.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}
	// QoS 1 (at-least-once): lifecycle events should arrive
	return p.publish(bufferedMsg{topic: p.topics.System, payload: payload, qos: 1, retained: event.Retained})
}

// IsConnected reports whether the broker connection is up.
func (p *RealPublisher) IsConnected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connected
}

// Buffered returns the number of messages waiting for a reconnect.
func (p *RealPublisher) Buffered() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.buf.len()
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	if n := p.Buffered(); n > 0 {
		log.Printf("mqtt: closing with %d unsent messages", n)
	}
	p.client.Disconnect(1000) // 1 second timeout
	return nil
}

// publish sends msg directly only when nothing is waiting ahead of it.
// Otherwise it queues msg and, when connected with no flush running, drains
// the backlog itself.
func (p *RealPublisher) publish(msg bufferedMsg) error {
	p.mu.Lock()
	if !p.connected || p.replaying || p.buf.len() > 0 {
		p.buf.push(msg)
		flush := p.connected && !p.replaying
		if flush {
			p.replaying = true
		}
		p.mu.Unlock()
		if flush {
			return p.flush()
		}
		return nil
	}
	p.mu.Unlock()

	if err := p.send(msg); err != nil {
		p.mu.Lock()
		p.buf.push(msg)
		p.mu.Unlock()
		return err
	}
	return nil
}

func (p *RealPublisher) send(msg bufferedMsg) error {
	token := p.client.Publish(msg.topic, msg.qos, msg.retained, msg.payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish %s: timeout", msg.topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", msg.topic, err)
	}
	return nil
}

// flush sends buffered messages oldest first until the buffer is empty.
// The caller must have set replaying. Messages published meanwhile are
// buffered and go out in the same flush, after the older backlog.
func (p *RealPublisher) flush() error {
	replayed := 0
	defer func() {
		if replayed > 0 {
			log.Printf("mqtt: replayed %d buffered messages", replayed)
		}
	}()
	for {
		p.mu.Lock()
		pending := p.buf.drainAll()
		if len(pending) == 0 {
			p.replaying = false
			p.mu.Unlock()
			return nil
		}
		p.mu.Unlock()

		for i, msg := range pending {
			if err := p.send(msg); err != nil {
				p.mu.Lock()
				p.buf.requeue(pending[i:])
				p.replaying = false
				p.mu.Unlock()
				return fmt.Errorf("replay: %w", err)
			}
			replayed++
		}
	}
}

// onConnect replays buffered messages in order and announces reconnects.
func (p *RealPublisher) onConnect(paho.Client) {
	p.mu.Lock()
	p.connected = true
	p.connects++
	reconnect := p.connects > 1
	flush := !p.replaying
	if flush {
		p.replaying = true
	}
	p.mu.Unlock()

	if flush {
		if err := p.flush(); err != nil {
			log.Printf("mqtt: %v", err)
			return
		}
	}

	if reconnect {
		if err := p.PublishSystem(SystemEvent{Timestamp: time.Now(), Event: EventReconnected}); err != nil {
			log.Printf("mqtt: publish reconnected: %v", err)
		}
	}
}

func (p *RealPublisher) onConnectionLost(_ paho.Client, err error) {
	p.mu.Lock()
	p.connected = false
	p.mu.Unlock()
	log.Printf("mqtt: connection lost: %v", err)
}

var (
	_ Publisher        = (*RealPublisher)(nil)
	_ ConnectionStatus = (*RealPublisher)(nil)
)
