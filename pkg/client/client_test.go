package client_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dyscypliner/dyscypliner-go/pkg/client"
	"github.com/dyscypliner/dyscypliner-go/pkg/hub"
	"github.com/dyscypliner/dyscypliner-go/pkg/server"
	"github.com/dyscypliner/dyscypliner-go/pkg/status"
	"github.com/dyscypliner/dyscypliner-go/pkg/wire"
)

const (
	testLogin    = "operator"
	testPassword = "hunter2"
)

func startTestServer(t *testing.T) (*hub.Hub, string) {
	t.Helper()

	h, err := hub.New(hub.Config{ReportGrace: time.Hour, ScanInterval: time.Minute})
	if err != nil {
		t.Fatalf("Failed to create hub: %v", err)
	}
	if err := h.Start(context.Background()); err != nil {
		t.Fatalf("Failed to start hub: %v", err)
	}
	t.Cleanup(func() { _ = h.Stop() })

	srv, err := server.New(server.Config{
		Address:  "127.0.0.1:0",
		Login:    testLogin,
		Password: testPassword,
	}, h)
	if err != nil {
		t.Fatalf("Failed to create server: %v", err)
	}
	if err := srv.Start(context.Background()); err != nil {
		t.Fatalf("Failed to start server: %v", err)
	}
	t.Cleanup(func() { _ = srv.Stop() })

	return h, srv.Addr().String()
}

// announcements collects callback invocations for assertion.
type announcements struct {
	mu   sync.Mutex
	seen []wire.Announcement
}

func (a *announcements) record(ann wire.Announcement) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.seen = append(a.seen, ann)
}

func (a *announcements) waitFor(t *testing.T, n int) []wire.Announcement {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		a.mu.Lock()
		if len(a.seen) >= n {
			out := make([]wire.Announcement, len(a.seen))
			copy(out, a.seen)
			a.mu.Unlock()
			return out
		}
		a.mu.Unlock()
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("Timed out waiting for %d announcements", n)
	return nil
}

func TestClientMirrorsRoster(t *testing.T) {
	h, addr := startTestServer(t)

	id, err := h.AddDevice("boiler")
	if err != nil {
		t.Fatalf("Failed to add device: %v", err)
	}

	anns := &announcements{}
	c, err := client.New(client.Config{
		Addr:           addr,
		Login:          testLogin,
		Password:       testPassword,
		OnAnnouncement: anns.record,
	})
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}
	if err := c.Open(context.Background()); err != nil {
		t.Fatalf("Failed to open client: %v", err)
	}
	defer c.Close()

	got := anns.waitFor(t, 1)
	if got[0].Kind != wire.AnnounceInit {
		t.Fatalf("First announcement was %v, want INIT", got[0].Kind)
	}

	d, ok := c.Find(id)
	if !ok || d.Name != "boiler" || d.Status != status.Offline {
		t.Errorf("Roster entry wrong: %+v ok=%v", d, ok)
	}

	h.DeviceAlive(id, status.Good)
	anns.waitFor(t, 2)

	d, _ = c.Find(id)
	if d.Status != status.Good {
		t.Errorf("Status not mirrored, got %v", d.Status)
	}
}

func TestClientAddDevice(t *testing.T) {
	h, addr := startTestServer(t)

	anns := &announcements{}
	c, err := client.New(client.Config{
		Addr:           addr,
		Login:          testLogin,
		Password:       testPassword,
		OnAnnouncement: anns.record,
	})
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}
	if err := c.Open(context.Background()); err != nil {
		t.Fatalf("Failed to open client: %v", err)
	}
	defer c.Close()

	anns.waitFor(t, 1) // INIT

	if err := c.AddDevice(context.Background(), "fridge"); err != nil {
		t.Fatalf("AddDevice failed: %v", err)
	}

	got := anns.waitFor(t, 2)
	if got[1].Kind != wire.AnnounceNewDevice || got[1].Device.Name != "fridge" {
		t.Errorf("Expected NEWDEV fridge, got %+v", got[1])
	}
	if h.DeviceCount() != 1 {
		t.Errorf("Expected 1 device on the hub, got %d", h.DeviceCount())
	}
}

func TestClientBadCredentials(t *testing.T) {
	_, addr := startTestServer(t)

	c, err := client.New(client.Config{
		Addr:     addr,
		Login:    testLogin,
		Password: "wrong",
	})
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}
	defer c.Close()

	if err := c.Open(context.Background()); !errors.Is(err, client.ErrBadCredential) {
		t.Errorf("Expected ErrBadCredential, got %v", err)
	}
}

func TestClientAddDeviceWhenDisconnected(t *testing.T) {
	c, err := client.New(client.Config{Addr: "127.0.0.1:1", Login: "a", Password: "b"})
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}

	if err := c.AddDevice(context.Background(), "x"); !errors.Is(err, client.ErrNotConnected) {
		t.Errorf("Expected ErrNotConnected, got %v", err)
	}
}

func TestClientCloseIdempotent(t *testing.T) {
	_, addr := startTestServer(t)

	c, err := client.New(client.Config{
		Addr:     addr,
		Login:    testLogin,
		Password: testPassword,
	})
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}
	if err := c.Open(context.Background()); err != nil {
		t.Fatalf("Failed to open client: %v", err)
	}

	c.Close()
	c.Close()

	if c.State() != client.StateClosed {
		t.Errorf("Expected CLOSED, got %v", c.State())
	}
	if err := c.Open(context.Background()); !errors.Is(err, client.ErrClientClosed) {
		t.Errorf("Reopen after close: expected ErrClientClosed, got %v", err)
	}
}
