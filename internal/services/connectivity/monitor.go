package connectivity

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/locus/internal/common"
	"github.com/ternarybob/locus/internal/interfaces"
)

// OfflineSink receives the offline flag after every sample
type OfflineSink func(offline bool)

var errProbePanic = errors.New("reachability probe panicked")

// Monitor samples a Probe on a fixed interval and publishes an offline flag.
// Sampling errors count as offline. There is no backoff or jitter.
type Monitor struct {
	probe        Probe
	sink         OfflineSink
	eventService interfaces.EventService
	interval     time.Duration
	timeout      time.Duration
	logger       arbor.ILogger

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	offline *bool
}

// NewMonitor creates a monitor; eventService may be nil
func NewMonitor(probe Probe, sink OfflineSink, eventService interfaces.EventService, config *common.ConnectivityConfig, logger arbor.ILogger) *Monitor {
	return &Monitor{
		probe:        probe,
		sink:         sink,
		eventService: eventService,
		interval:     common.ParseDuration(config.Interval, 5*time.Second),
		timeout:      common.ParseDuration(config.ProbeTimeout, 3*time.Second),
		logger:       logger,
	}
}

// Start samples immediately, then every interval until Stop or ctx is done.
// Calling Start on a running monitor is a no-op.
func (m *Monitor) Start(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cancel != nil {
		return
	}

	loopCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	m.cancel = cancel
	m.done = done

	common.SafeGo(m.logger, "connectivity-monitor", func() {
		defer close(done)
		m.run(loopCtx)
	})

	m.logger.Debug().Str("interval", m.interval.String()).Msg("Connectivity monitor started")
}

// Stop cancels the loop and waits for it to exit
func (m *Monitor) Stop() {
	m.mu.Lock()
	cancel, done := m.cancel, m.done
	m.cancel, m.done = nil, nil
	m.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	m.logger.Debug().Msg("Connectivity monitor stopped")
}

func (m *Monitor) run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.Sample(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Sample(ctx)
		}
	}
}

// Sample takes one reading, publishes it and returns the offline flag
func (m *Monitor) Sample(ctx context.Context) bool {
	probeCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	offline := true
	reading, err := m.check(probeCtx)
	if err != nil {
		m.logger.Warn().Err(err).Msg("Reachability check failed, assuming offline")
	} else {
		offline = !reading.Online()
	}

	if ctx.Err() != nil {
		// shutting down; a cancelled probe says nothing about the network
		return m.Offline()
	}

	m.sink(offline)
	m.record(offline, reading)
	return offline
}

func (m *Monitor) check(ctx context.Context) (reading Reachability, err error) {
	err = errProbePanic // replaced unless Check panics
	defer common.RecoverAndLog(m.logger, "connectivity-probe")
	return m.probe.Check(ctx)
}

// record logs and publishes transitions. Delivery is synchronous so
// subscribers see transitions in the order they were sampled.
func (m *Monitor) record(offline bool, reading Reachability) {
	m.mu.Lock()
	changed := m.offline == nil || *m.offline != offline
	m.offline = &offline
	m.mu.Unlock()

	if !changed {
		return
	}

	m.logger.Info().
		Bool("offline", offline).
		Bool("connected", reading.Connected).
		Bool("internet_reachable", reading.InternetReachable).
		Msg("Connectivity changed")

	if m.eventService == nil {
		return
	}
	event := interfaces.Event{
		Type: interfaces.EventConnectivityChanged,
		Payload: map[string]interface{}{
			"offline":   offline,
			"timestamp": time.Now().Format(time.RFC3339),
		},
	}
	if err := m.eventService.PublishSync(context.Background(), event); err != nil {
		m.logger.Warn().Err(err).Msg("Failed to publish connectivity event")
	}
}

// Offline returns the last published flag; false before the first sample
func (m *Monitor) Offline() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.offline != nil && *m.offline
}
