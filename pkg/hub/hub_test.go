package hub

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dyscypliner/dyscypliner-go/pkg/status"
	"github.com/dyscypliner/dyscypliner-go/pkg/wire"
)

// recordingSink collects delivered messages with receive timestamps.
type recordingSink struct {
	mu       sync.Mutex
	messages []string
	times    []time.Time
}

func (s *recordingSink) Send(text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, text)
	s.times = append(s.times, time.Now())
	return nil
}

func (s *recordingSink) received() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.messages))
	copy(out, s.messages)
	return out
}

// broadcasts returns everything received after the INIT message.
func (s *recordingSink) broadcasts() []string {
	got := s.received()
	if len(got) > 0 && strings.HasPrefix(got[0], "INIT ") {
		return got[1:]
	}
	return got
}

func (s *recordingSink) count(prefix string) int {
	n := 0
	for _, m := range s.broadcasts() {
		if strings.HasPrefix(m, prefix) {
			n++
		}
	}
	return n
}

// startHub starts a hub with test timing and stops it on cleanup.
func startHub(t *testing.T, config Config) *Hub {
	t.Helper()

	h, err := New(config)
	require.NoError(t, err)
	require.NoError(t, h.Start(context.Background()))
	t.Cleanup(func() { _ = h.Stop() })
	return h
}

// connect attaches a fresh recording sink and verifies it received INIT.
func connect(t *testing.T, h *Hub) *recordingSink {
	t.Helper()

	sink := &recordingSink{}
	_, err := h.Connect(sink)
	require.NoError(t, err)

	got := sink.received()
	require.Len(t, got, 1)
	require.True(t, strings.HasPrefix(got[0], "INIT "), "first message must be INIT, got %q", got[0])
	return sink
}

// fastConfig keeps sweeps far in the future so tests control timing.
func fastConfig() Config {
	return Config{ReportGrace: time.Hour, ScanInterval: time.Minute}
}

func TestConfigValidate(t *testing.T) {
	_, err := New(Config{ReportGrace: 10 * time.Second, ScanInterval: 10 * time.Second})
	assert.Error(t, err, "scan interval equal to grace must be rejected")

	_, err = New(Config{ReportGrace: 5 * time.Second, ScanInterval: 10 * time.Second})
	assert.Error(t, err, "scan interval above grace must be rejected")
}

func TestDefaultConfigInvariant(t *testing.T) {
	config := DefaultConfig()
	require.NoError(t, config.Validate())
	assert.Equal(t, 15*time.Second, config.ReportGrace)
	assert.Equal(t, 10*time.Second, config.ScanInterval)
}

func TestStartTwice(t *testing.T) {
	h, err := New(fastConfig())
	require.NoError(t, err)
	require.NoError(t, h.Start(context.Background()))
	defer h.Stop()

	assert.ErrorIs(t, h.Start(context.Background()), ErrAlreadyRunning)
}

func TestNotRunning(t *testing.T) {
	h, err := New(fastConfig())
	require.NoError(t, err)

	_, addErr := h.AddDevice("dev")
	assert.ErrorIs(t, addErr, ErrNotRunning)
}

func TestAddDeviceUniqueIDs(t *testing.T) {
	h := startHub(t, fastConfig())

	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		id, err := h.AddDevice("dev")
		require.NoError(t, err)
		require.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
}

func TestAddDeviceBroadcasts(t *testing.T) {
	h := startHub(t, fastConfig())
	sink := connect(t, h)

	id, err := h.AddDevice("sensor-A")
	require.NoError(t, err)

	got := sink.broadcasts()
	require.Len(t, got, 1)
	assert.Equal(t, "NEWDEV "+id+" sensor-A OFFLINE", got[0])
}

func TestConnectSnapshotCompleteness(t *testing.T) {
	h := startHub(t, fastConfig())

	names := []string{"first", "second", "third"}
	ids := make([]string, len(names))
	for i, name := range names {
		id, err := h.AddDevice(name)
		require.NoError(t, err)
		ids[i] = id
	}
	h.DeviceAlive(ids[1], status.Angry)

	sink := connect(t, h)

	devices, err := wire.DecodeInit(sink.received()[0])
	require.NoError(t, err)
	require.Len(t, devices, len(names))
	for i, d := range devices {
		assert.Equal(t, ids[i], d.ID)
		assert.Equal(t, names[i], d.Name)
	}
	assert.Equal(t, status.Angry, devices[1].Status)
	assert.Equal(t, status.Offline, devices[0].Status)
}

func TestConnectDoesNotBroadcast(t *testing.T) {
	h := startHub(t, fastConfig())

	first := connect(t, h)
	connect(t, h)

	assert.Empty(t, first.broadcasts(), "connecting an observer must not fan out")
}

func TestDeviceAliveFirstReport(t *testing.T) {
	h := startHub(t, fastConfig())
	id, err := h.AddDevice("dev")
	require.NoError(t, err)

	sink := connect(t, h)

	h.DeviceAlive(id, status.Good)

	got := sink.broadcasts()
	require.Len(t, got, 1)
	assert.Equal(t, "NEWSTATUS "+id+" GOOD", got[0])

	d, ok := h.Find(id)
	require.True(t, ok)
	assert.Equal(t, status.Good, d.Status)
}

func TestDeviceAliveSuppressesRedundantBroadcast(t *testing.T) {
	h := startHub(t, fastConfig())
	id, err := h.AddDevice("dev")
	require.NoError(t, err)

	sink := connect(t, h)

	h.DeviceAlive(id, status.Good)
	h.DeviceAlive(id, status.Good) // same status, live device: suppressed

	assert.Equal(t, 1, sink.count("NEWSTATUS"), "redundant report must not broadcast")

	h.DeviceAlive(id, status.Dysciplined) // actual change: announced
	assert.Equal(t, 2, sink.count("NEWSTATUS"))
}

func TestDeviceAliveFirstSeenAlwaysAnnounces(t *testing.T) {
	h := startHub(t, fastConfig())
	id, err := h.AddDevice("dev")
	require.NoError(t, err)

	// Stored status already Good, but no liveness entry: the silent-to-alive
	// transition must be announced even though the status value is unchanged.
	require.True(t, h.registry.ForceStatus(id, status.Good))

	sink := connect(t, h)

	h.DeviceAlive(id, status.Good)

	got := sink.broadcasts()
	require.Len(t, got, 1)
	assert.Equal(t, "NEWSTATUS "+id+" GOOD", got[0])
}

func TestDeviceAliveUnknownKey(t *testing.T) {
	h := startHub(t, fastConfig())
	sink := connect(t, h)

	h.DeviceAlive("nosuchdevice0000", status.Good)

	assert.Empty(t, sink.broadcasts(), "unknown key must be a silent no-op")
	assert.False(t, h.tracker.Known("nosuchdevice0000"), "no liveness entry for unknown key")
}

func TestDisconnectIdempotent(t *testing.T) {
	h := startHub(t, fastConfig())

	sink := &recordingSink{}
	token, err := h.Connect(sink)
	require.NoError(t, err)

	h.Disconnect(token)
	h.Disconnect(token) // second time: no-op

	_, err = h.AddDevice("dev")
	require.NoError(t, err)
	assert.Empty(t, sink.broadcasts(), "disconnected observer must not receive broadcasts")
	assert.Equal(t, 0, h.ObserverCount())
}

func TestSweepForcesOffline(t *testing.T) {
	h := startHub(t, fastConfig())

	idA, err := h.AddDevice("a")
	require.NoError(t, err)
	idB, err := h.AddDevice("b")
	require.NoError(t, err)

	sink := connect(t, h)

	h.DeviceAlive(idA, status.Good)
	h.DeviceAlive(idB, status.Angry)

	// Run the sweep directly on the loop with a future timestamp.
	require.NoError(t, h.do(func() {
		h.sweep(time.Now().Add(2 * time.Hour))
	}))

	// One OFFLINE announcement per evicted device, not batched.
	offline := 0
	for _, m := range sink.broadcasts() {
		if strings.HasSuffix(m, "OFFLINE") {
			offline++
		}
	}
	assert.Equal(t, 2, offline)

	for _, id := range []string{idA, idB} {
		d, ok := h.Find(id)
		require.True(t, ok)
		assert.Equal(t, status.Offline, d.Status)
		assert.False(t, h.tracker.Known(id), "liveness entry must be evicted")
	}
}

func TestReportAfterEvictionAnnouncesAgain(t *testing.T) {
	h := startHub(t, fastConfig())
	id, err := h.AddDevice("dev")
	require.NoError(t, err)

	sink := connect(t, h)

	h.DeviceAlive(id, status.Good)
	require.NoError(t, h.do(func() {
		h.sweep(time.Now().Add(2 * time.Hour))
	}))
	h.DeviceAlive(id, status.Good)

	want := []string{
		"NEWSTATUS " + id + " GOOD",
		"NEWSTATUS " + id + " OFFLINE",
		"NEWSTATUS " + id + " GOOD",
	}
	assert.Equal(t, want, sink.broadcasts())
}

func TestTimeoutObservedWithinWindow(t *testing.T) {
	if testing.Short() {
		t.Skip("timing test")
	}

	const (
		grace = 120 * time.Millisecond
		scan  = 80 * time.Millisecond
	)
	h := startHub(t, Config{ReportGrace: grace, ScanInterval: scan})

	id, err := h.AddDevice("dev")
	require.NoError(t, err)

	sink := connect(t, h)

	reported := time.Now()
	h.DeviceAlive(id, status.Good)

	// The device must be observed Offline no earlier than the grace period
	// and no later than one scan interval past it (plus scheduling slack).
	deadline := reported.Add(grace + scan + 100*time.Millisecond)
	var offlineAt time.Time
	for time.Now().Before(deadline) {
		sink.mu.Lock()
		for i, m := range sink.messages {
			if strings.HasSuffix(m, "OFFLINE") {
				offlineAt = sink.times[i]
			}
		}
		sink.mu.Unlock()
		if !offlineAt.IsZero() {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	require.False(t, offlineAt.IsZero(), "device was never observed Offline")
	assert.GreaterOrEqual(t, offlineAt.Sub(reported), grace,
		"Offline observed before the grace period expired")
	assert.Equal(t, 1, sink.count("NEWSTATUS "+id+" OFFLINE"),
		"exactly one Offline announcement expected")
}

func TestCommandsSerializedUnderLoad(t *testing.T) {
	h := startHub(t, fastConfig())
	sink := connect(t, h)

	const workers = 10
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			id, err := h.AddDevice("dev")
			if err != nil {
				return
			}
			h.DeviceAlive(id, status.Good)
			h.DeviceAlive(id, status.Good)
		}()
	}
	wg.Wait()

	// Every device: one NEWDEV plus exactly one NEWSTATUS (second report
	// suppressed).
	assert.Equal(t, workers, sink.count("NEWDEV"))
	assert.Equal(t, workers, sink.count("NEWSTATUS"))
	assert.Equal(t, workers, h.DeviceCount())
}
