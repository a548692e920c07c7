package hub

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dyscypliner/dyscypliner-go/pkg/liveness"
	"github.com/dyscypliner/dyscypliner-go/pkg/log"
	"github.com/dyscypliner/dyscypliner-go/pkg/observer"
	"github.com/dyscypliner/dyscypliner-go/pkg/registry"
	"github.com/dyscypliner/dyscypliner-go/pkg/status"
	"github.com/dyscypliner/dyscypliner-go/pkg/wire"
)

// Hub errors.
var (
	ErrNotRunning     = errors.New("hub not running")
	ErrAlreadyRunning = errors.New("hub already running")
)

// Config configures hub timing and logging.
type Config struct {
	// ReportGrace is how long a device may stay silent before the sweep
	// declares it Offline.
	ReportGrace time.Duration

	// ScanInterval is how often the sweep runs. Must be strictly less than
	// ReportGrace so an expired device is caught on the first sweep after
	// its grace period ends.
	ScanInterval time.Duration

	// Logger receives hub events (optional).
	Logger log.Logger
}

// DefaultConfig returns the hub's fixed production timing.
func DefaultConfig() Config {
	return Config{
		ReportGrace:  liveness.DefaultReportGrace,
		ScanInterval: liveness.DefaultScanInterval,
	}
}

// Validate checks the configuration timing invariant.
func (c Config) Validate() error {
	if c.ScanInterval >= c.ReportGrace {
		return fmt.Errorf("scan interval %v must be less than report grace %v",
			c.ScanInterval, c.ReportGrace)
	}
	return nil
}

// Hub orchestrates the device registry, liveness tracker and observer set.
// All state mutation happens on the command loop goroutine.
type Hub struct {
	config    Config
	registry  *registry.Registry
	tracker   *liveness.Tracker
	observers *observer.Set
	logger    log.Logger

	// cmds is the single inbound command queue. Commands run to completion
	// in arrival order on the loop goroutine.
	cmds chan func()

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New creates a hub. Zero timing fields fall back to the defaults.
func New(config Config) (*Hub, error) {
	if config.ReportGrace == 0 {
		config.ReportGrace = liveness.DefaultReportGrace
	}
	if config.ScanInterval == 0 {
		config.ScanInterval = liveness.DefaultScanInterval
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	logger := config.Logger
	if logger == nil {
		logger = log.NoopLogger{}
	}

	return &Hub{
		config:    config,
		registry:  registry.New(),
		tracker:   liveness.NewTracker(config.ReportGrace),
		observers: observer.NewSet(),
		logger:    logger,
		cmds:      make(chan func()),
	}, nil
}

// Start starts the command loop and the periodic liveness sweep.
func (h *Hub) Start(ctx context.Context) error {
	if h.running.Swap(true) {
		return ErrAlreadyRunning
	}

	h.ctx, h.cancel = context.WithCancel(ctx)
	h.wg.Add(1)
	go h.run()

	return nil
}

// Stop stops the command loop. Pending synchronous calls return ErrNotRunning.
func (h *Hub) Stop() error {
	if !h.running.Swap(false) {
		return nil
	}
	h.cancel()
	h.wg.Wait()
	return nil
}

// Connect registers an observer and delivers the initialization message
// carrying the full device snapshot as the first message through the sink.
// Delivery happens inside the command, so no broadcast can be interleaved
// before the snapshot. This is a point-to-point reply; nothing is fanned out.
func (h *Hub) Connect(sink observer.Sink) (observer.Token, error) {
	var (
		token observer.Token
		err   error
	)
	if doErr := h.do(func() {
		var init string
		init, err = wire.EncodeInit(h.registry.Snapshot())
		if err != nil {
			// An unreadable INIT payload leaves the observer in an
			// unrecoverable state, so the connect is aborted.
			h.logError(err, "encoding init payload")
			return
		}
		token = h.observers.Register(sink)
		if err = sink.Send(init); err != nil {
			h.observers.Deregister(token)
			h.logError(err, "delivering init payload")
			return
		}
		h.logger.Log(log.Event{
			Timestamp:    time.Now(),
			ConnectionID: token.String(),
			Category:     log.CategoryState,
			StateChange: &log.StateChangeEvent{
				Entity:   log.StateEntityConnection,
				NewState: "CONNECTED",
			},
		})
	}); doErr != nil {
		return observer.Token{}, doErr
	}
	return token, err
}

// Disconnect deregisters an observer. Unknown or already-removed tokens are
// a no-op.
func (h *Hub) Disconnect(token observer.Token) {
	_ = h.do(func() {
		h.observers.Deregister(token)
		h.logger.Log(log.Event{
			Timestamp:    time.Now(),
			ConnectionID: token.String(),
			Category:     log.CategoryState,
			StateChange: &log.StateChangeEvent{
				Entity:   log.StateEntityConnection,
				OldState: "CONNECTED",
				NewState: "DISCONNECTED",
			},
		})
	})
}

// AddDevice creates a device and announces it to all observers.
func (h *Hub) AddDevice(name string) (string, error) {
	var id string
	if err := h.do(func() {
		d := h.registry.Add(name)
		id = d.ID
		h.logger.Log(log.Event{
			Timestamp: time.Now(),
			Direction: log.DirectionIn,
			Category:  log.CategoryCommand,
			DeviceID:  id,
			Command:   &log.CommandEvent{Verb: "ADDDEV", Argument: name, Accepted: true},
		})
		h.broadcast(wire.EncodeNewDevice(d))
	}); err != nil {
		return "", err
	}
	return id, nil
}

// DeviceAlive processes a liveness report for key. The transport boundary
// guarantees s is never Offline; an unknown key is silently ignored.
func (h *Hub) DeviceAlive(key string, s status.Status) {
	_ = h.do(func() {
		now := time.Now()
		accepted := false

		switch {
		case h.tracker.Known(key):
			h.tracker.Touch(key, now)
			if h.registry.SetStatus(key, s) {
				accepted = true
				h.broadcast(wire.EncodeNewStatus(key, s))
			}
		default:
			// First report since startup or since a timeout eviction. The
			// silent-to-alive transition is announced even when the stored
			// status equals the reported one.
			if h.registry.ForceStatus(key, s) {
				h.tracker.Touch(key, now)
				accepted = true
				h.broadcast(wire.EncodeNewStatus(key, s))
			}
		}

		h.logger.Log(log.Event{
			Timestamp: now,
			Direction: log.DirectionIn,
			Category:  log.CategoryCommand,
			DeviceID:  key,
			Command:   &log.CommandEvent{Verb: "ALIVE", Argument: s.String(), Accepted: accepted},
		})
	})
}

// Find returns a copy of the device with the given id.
func (h *Hub) Find(id string) (registry.Device, bool) {
	return h.registry.Find(id)
}

// DeviceCount returns the number of registered devices.
func (h *Hub) DeviceCount() int {
	return h.registry.Len()
}

// ObserverCount returns the number of connected observers.
func (h *Hub) ObserverCount() int {
	return h.observers.Len()
}

// run is the command loop. The sweep ticker feeds the same loop, so sweeps
// never interleave with other commands.
func (h *Hub) run() {
	defer h.wg.Done()

	ticker := time.NewTicker(h.config.ScanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-h.ctx.Done():
			return
		case cmd := <-h.cmds:
			cmd()
		case now := <-ticker.C:
			h.sweep(now)
		}
	}
}

// do posts fn to the command loop and waits for it to complete.
func (h *Hub) do(fn func()) error {
	if !h.running.Load() {
		return ErrNotRunning
	}

	done := make(chan struct{})
	select {
	case h.cmds <- func() {
		fn()
		close(done)
	}:
	case <-h.ctx.Done():
		return ErrNotRunning
	}

	select {
	case <-done:
		return nil
	case <-h.ctx.Done():
		return ErrNotRunning
	}
}

// sweep evicts silent devices and announces each one Offline. Devices that
// just timed out are forced Offline unconditionally: the eviction itself is
// the state change, regardless of the stored status.
func (h *Hub) sweep(now time.Time) {
	evicted := h.tracker.Sweep(now)
	for _, id := range evicted {
		h.registry.ForceStatus(id, status.Offline)
		h.logger.Log(log.Event{
			Timestamp: now,
			Category:  log.CategoryState,
			DeviceID:  id,
			StateChange: &log.StateChangeEvent{
				Entity:   log.StateEntityDevice,
				NewState: status.Offline.String(),
				Reason:   "report grace expired",
			},
		})
		h.broadcast(wire.EncodeNewStatus(id, status.Offline))
	}
}

// broadcast fans text out to every observer. Runs on the loop goroutine;
// delivery itself is non-blocking per observer.
func (h *Hub) broadcast(text string) {
	h.logger.Log(log.Event{
		Timestamp: time.Now(),
		Direction: log.DirectionOut,
		Category:  log.CategoryBroadcast,
		Broadcast: &log.BroadcastEvent{Message: text, Observers: h.observers.Len()},
	})
	h.observers.Broadcast(text)
}

func (h *Hub) logError(err error, context string) {
	h.logger.Log(log.Event{
		Timestamp: time.Now(),
		Category:  log.CategoryError,
		Error:     &log.ErrorEventData{Message: err.Error(), Context: context},
	})
}
