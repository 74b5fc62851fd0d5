// Command photometer drives a multi-channel LED/photoresistor absorbance
// photometer: it sweeps every channel through an intensity program once per
// period, appends the samples to a log and publishes them to MQTT.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/sweeney/photometer/internal/config"
	"github.com/sweeney/photometer/internal/hal"
	"github.com/sweeney/photometer/internal/logic"
	"github.com/sweeney/photometer/internal/mqtt"
	"github.com/sweeney/photometer/internal/photometer"
	"github.com/sweeney/photometer/internal/status"
	"github.com/sweeney/photometer/internal/web"
)

// overrides are command-line values that replace config file settings when set.
type overrides struct {
	LogPath      string
	Broker       string
	HTTPAddr     string
	Backend      string
	SkipSelfTest bool
}

// options control a single daemon run.
type options struct {
	SelfTestOnly bool
	Cycles       int
}

func main() {
	configPath := flag.String("config", "photometer.yaml", "YAML config file (missing file = defaults)")
	logPath := flag.String("log", "", "record log path (default <timestamp>_output.csv)")
	broker := flag.String("broker", "", "MQTT broker address (overrides config)")
	httpAddr := flag.String("http", "", "HTTP status address (overrides config)")
	backend := flag.String("backend", "", "hardware backend: serial, gpio or fake (overrides config)")
	selfTest := flag.Bool("self-test", false, "run the self-test sweep and exit")
	skipSelfTest := flag.Bool("skip-self-test", false, "skip the self-test before the first cycle")
	cycles := flag.Int("cycles", 0, "stop after this many cycles (0 to run until interrupted)")
	writeConfig := flag.Bool("write-config", false, "write the effective config to -config and exit")

	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("fatal: %v", err)
	}
	applyOverrides(cfg, overrides{
		LogPath:      *logPath,
		Broker:       *broker,
		HTTPAddr:     *httpAddr,
		Backend:      *backend,
		SkipSelfTest: *skipSelfTest,
	})
	if err := cfg.Validate(); err != nil {
		log.Fatalf("fatal: %v", err)
	}

	if *writeConfig {
		if err := cfg.Save(*configPath); err != nil {
			log.Fatalf("fatal: %v", err)
		}
		log.Printf("wrote %s", *configPath)
		return
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	ctx, reason, cancel := watchSignals(context.Background(), sigCh)
	defer cancel()

	if err := run(ctx, cfg, options{SelfTestOnly: *selfTest, Cycles: *cycles}, reason); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

func applyOverrides(cfg *config.Config, o overrides) {
	if o.LogPath != "" {
		cfg.Storage.LogPath = o.LogPath
	}
	if o.Broker != "" {
		cfg.MQTT.Broker = o.Broker
	}
	if o.HTTPAddr != "" {
		cfg.HTTP.Address = o.HTTPAddr
	}
	if o.Backend != "" {
		cfg.Hardware.Backend = o.Backend
	}
	if o.SkipSelfTest {
		cfg.Measurement.SelfTest = false
	}
}

// watchSignals returns a context cancelled by the first signal on sig and a
// function reporting that signal's name.
func watchSignals(parent context.Context, sig <-chan os.Signal) (context.Context, func() string, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	var (
		mu   sync.Mutex
		name string
	)
	go func() {
		select {
		case s := <-sig:
			log.Printf("received %v, shutting down", s)
			mu.Lock()
			name = signalName(s)
			mu.Unlock()
			cancel()
		case <-ctx.Done():
		}
	}()
	reason := func() string {
		mu.Lock()
		defer mu.Unlock()
		return name
	}
	return ctx, reason, cancel
}

func signalName(s os.Signal) string {
	switch s {
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGTERM:
		return "SIGTERM"
	}
	return "UNKNOWN"
}

func openHardware(cfg *config.Config) (hal.Hardware, error) {
	switch cfg.Hardware.Backend {
	case config.BackendSerial:
		return hal.NewSerial(cfg.Hardware.Serial.Port, cfg.Hardware.Serial.Baud)
	case config.BackendGPIO:
		return hal.NewGPIO(cfg.GPIO())
	case config.BackendFake:
		return newSimBoard(cfg.ADCInput(), cfg.Pairs(), time.Now().UnixNano()), nil
	}
	return nil, fmt.Errorf("unknown backend %q", cfg.Hardware.Backend)
}

func run(ctx context.Context, cfg *config.Config, opts options, reason func() string) error {
	hw, err := openHardware(cfg)
	if err != nil {
		return fmt.Errorf("init hardware: %w", err)
	}
	defer func() {
		if err := hw.Close(); err != nil {
			log.Printf("close hardware: %v", err)
		}
	}()

	// Nil publisher interfaces must stay nil, not typed nil pointers.
	var (
		publisher  mqtt.Publisher
		mqttStatus mqtt.ConnectionStatus
	)
	if cfg.MQTT.Broker != "" {
		p, err := mqtt.NewRealPublisher(mqtt.Options{
			Broker:      cfg.MQTT.Broker,
			ClientID:    cfg.MQTT.ClientID,
			TopicPrefix: cfg.MQTT.TopicPrefix,
		})
		if err != nil {
			log.Printf("mqtt: %v (continuing without publishing)", err)
		} else {
			defer p.Close()
			publisher, mqttStatus = p, p
		}
	}

	start := time.Now()
	logPath := cfg.Storage.LogPath
	if logPath == "" {
		logPath = photometer.DefaultLogPath(start)
	}
	tracker := status.NewTracker(start, trackerConfig(cfg, logPath))

	if cfg.HTTP.Address != "" {
		srv := web.New(cfg.HTTP.Address, tracker)
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("http server error: %v", err)
			}
		}()
		defer srv.Shutdown(context.Background())
		log.Printf("http status server listening on %s", cfg.HTTP.Address)
	}

	d := &daemon{
		cfg:        cfg,
		hw:         hw,
		publisher:  publisher,
		mqttStatus: mqttStatus,
		tracker:    tracker,
		store:      photometer.NewStore(logPath, os.Stdout, log.Default()),
		now:        time.Now,
		sleep:      photometer.Sleep,
		logger:     log.Default(),
		reason:     reason,
	}
	return d.run(ctx, opts)
}

func trackerConfig(cfg *config.Config, logPath string) status.Config {
	return status.Config{
		Backend:  cfg.Hardware.Backend,
		Channels: len(cfg.Channels),
		Period:   cfg.Measurement.Period,
		Warmup:   cfg.Measurement.Warmup,
		Repeats:  cfg.Measurement.Repeats,
		Interval: cfg.Measurement.Interval,
		Steps:    len(cfg.Measurement.Program),
		LogPath:  logPath,
		Broker:   cfg.MQTT.Broker,
		HTTPAddr: cfg.HTTP.Address,
	}
}

// daemon wires the photometer core to its outer surfaces.
type daemon struct {
	cfg        *config.Config
	hw         hal.Hardware
	publisher  mqtt.Publisher
	mqttStatus mqtt.ConnectionStatus
	tracker    *status.Tracker
	store      *photometer.Store
	now        func() time.Time
	sleep      photometer.SleepFunc
	logger     *log.Logger
	reason     func() string
}

func (d *daemon) run(ctx context.Context, opts options) error {
	reg, err := photometer.NewRegistry(d.hw, d.cfg.ADCInput(), d.cfg.Pairs())
	if err != nil {
		return err
	}
	exec := photometer.NewExecutor(reg, d.cfg.Timing(), d.now, d.sleep)

	d.logger.Printf("started: backend=%s channels=%d period=%v warmup=%v repeats=%d interval=%v log=%s",
		d.cfg.Hardware.Backend, reg.Len(), d.cfg.Measurement.Period, d.cfg.Measurement.Warmup,
		d.cfg.Measurement.Repeats, d.cfg.Measurement.Interval, d.store.Path())
	d.publishStatus(mqtt.EventStartup, "", true)

	if opts.SelfTestOnly || d.cfg.Measurement.SelfTest {
		cal := photometer.NewCalibrator(reg, exec, d.logger)
		results, err := cal.Run(ctx)
		if err != nil {
			return d.finish(err, true)
		}
		d.tracker.SetSelfTest(results)
		if opts.SelfTestOnly {
			return d.finish(nil, false)
		}
	}

	var sinks []photometer.Sink
	if d.publisher != nil {
		sinks = append(sinks, mqtt.RecordSink{Publisher: d.publisher})
	}
	runner := photometer.NewRunner(reg, exec, d.cfg.Measurement.Program, d.store, d.logger, sinks...)

	sched := photometer.NewScheduler(runner, reg, hal.NewIndicator(d.hw, d.cfg.Hardware.IndicatorPin),
		d.cfg.Measurement.Period, d.now, d.sleep, d.logger)
	sched.ErrorPath = d.cfg.Storage.ErrorPath
	sched.MaxCycles = opts.Cycles
	sched.OnState = d.tracker.SetState
	sched.OnWait = func(dec logic.Decision) {
		d.tracker.SetNextDue(d.now().Add(dec.Remaining))
		d.refreshMQTT()
	}
	sched.OnCycle = func(r photometer.CycleReport) {
		d.tracker.RecordCycle(r, d.store.Writable())
		d.publishStatus(mqtt.EventCycle, "", false)
	}

	// The scheduler records its own faults in the error file.
	return d.finish(sched.Run(ctx), false)
}

// finish publishes the terminal lifecycle event. Faults are returned so the
// process exits non-zero; cancellation and completion are clean exits.
func (d *daemon) finish(err error, record bool) error {
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		if record {
			d.logger.Printf("self-test: %v", err)
			photometer.AppendErrorRecord(d.cfg.Storage.ErrorPath, d.now(), err)
		}
		d.tracker.SetFault(err)
		d.publishStatus(mqtt.EventFault, err.Error(), true)
		return err
	}

	reason := "COMPLETE"
	if r := d.reason(); r != "" {
		reason = r
	} else if err != nil {
		reason = "CANCELLED"
	}
	d.publishStatus(mqtt.EventShutdown, reason, true)
	return nil
}

func (d *daemon) refreshMQTT() {
	if d.mqttStatus != nil {
		d.tracker.SetMQTTConnected(d.mqttStatus.IsConnected())
	}
}

// publishStatus sends a lifecycle event carrying the full status snapshot.
func (d *daemon) publishStatus(event, reason string, retained bool) {
	d.refreshMQTT()
	if d.publisher == nil {
		return
	}
	snap := d.tracker.Snapshot()
	ev := mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      event,
		Reason:     reason,
		Retained:   retained,
		RawPayload: status.FormatStatusEvent(snap, event, reason),
	}
	if err := d.publisher.PublishSystem(ev); err != nil {
		d.logger.Printf("failed to publish %s event: %v", event, err)
	}
}
