package link

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"audio-relay/internal/clock/mock"
	"audio-relay/internal/models"
	"audio-relay/internal/resilience"
)

// scriptedDevice fails the first failFirst Associate calls and succeeds afterwards.
type scriptedDevice struct {
	mu        sync.Mutex
	failFirst int
	attempts  int
	up        bool
}

func (d *scriptedDevice) Associate(context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.attempts++
	if d.attempts <= d.failFirst {
		return errors.New("association refused")
	}
	d.up = true
	return nil
}

func (d *scriptedDevice) Associated() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.up
}

func (d *scriptedDevice) drop() {
	d.mu.Lock()
	d.up = false
	d.mu.Unlock()
}

func TestEnsureConnected_DownTwiceThenUp(t *testing.T) {
	clk := mock.New(time.Unix(0, 0))
	dev := &scriptedDevice{failFirst: 2}
	l := New(dev, resilience.Backoff{Delay: 500 * time.Millisecond, MaxAttempts: 10, Clock: clk})

	if err := l.EnsureConnected(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dev.attempts != 3 {
		t.Errorf("attempts = %d, want 3", dev.attempts)
	}
	sleeps := clk.Sleeps()
	if len(sleeps) != 2 || sleeps[0] != 500*time.Millisecond || sleeps[1] != 500*time.Millisecond {
		t.Errorf("sleeps = %v, want [500ms 500ms]", sleeps)
	}
	if l.State() != models.Connected {
		t.Errorf("state = %v, want connected", l.State())
	}
}

func TestEnsureConnected_AlreadyUpMakesNoAttempt(t *testing.T) {
	dev := &scriptedDevice{up: true}
	l := New(dev, resilience.Backoff{Clock: mock.New(time.Unix(0, 0))})

	if err := l.EnsureConnected(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dev.attempts != 0 {
		t.Errorf("attempts = %d, want 0", dev.attempts)
	}
}

func TestEnsureConnected_Exhausted(t *testing.T) {
	dev := &scriptedDevice{failFirst: 100}
	l := New(dev, resilience.Backoff{Delay: time.Second, MaxAttempts: 3, Clock: mock.New(time.Unix(0, 0))})

	err := l.EnsureConnected(context.Background())
	if !errors.Is(err, resilience.ErrConnectivityExhausted) {
		t.Fatalf("err = %v, want ErrConnectivityExhausted", err)
	}
	if dev.attempts != 3 {
		t.Errorf("attempts = %d, want 3", dev.attempts)
	}
	if l.State() != models.Disconnected {
		t.Errorf("state = %v, want disconnected", l.State())
	}
}

func TestIsConnected_ObservesLoss(t *testing.T) {
	dev := &scriptedDevice{up: true}
	l := New(dev, resilience.Backoff{})

	if !l.IsConnected() || l.State() != models.Connected {
		t.Fatal("expected connected link")
	}
	dev.drop()
	if l.IsConnected() {
		t.Fatal("expected link down after drop")
	}
	if l.State() != models.Disconnected {
		t.Errorf("state = %v, want disconnected", l.State())
	}
}

func testNetDevice(cfg NetDeviceConfig, ifaces []net.Interface, addrs map[string][]net.Addr) *NetDevice {
	d := NewNetDevice(cfg)
	d.interfaces = func() ([]net.Interface, error) { return ifaces, nil }
	d.addrs = func(i net.Interface) ([]net.Addr, error) { return addrs[i.Name], nil }
	return d
}

func TestNetDevice_Associated(t *testing.T) {
	ifaces := []net.Interface{
		{Name: "lo", Flags: net.FlagUp | net.FlagLoopback},
		{Name: "eth0", Flags: 0},
		{Name: "wlan0", Flags: net.FlagUp},
	}
	addrs := map[string][]net.Addr{
		"lo":    {&net.IPNet{IP: net.ParseIP("127.0.0.1")}},
		"eth0":  {&net.IPNet{IP: net.ParseIP("10.0.0.2")}},
		"wlan0": {&net.IPNet{IP: net.ParseIP("192.168.10.42")}},
	}

	tests := []struct {
		name  string
		iface string
		addrs map[string][]net.Addr
		want  bool
	}{
		{"named interface up with address", "wlan0", addrs, true},
		{"named interface down", "eth0", addrs, false},
		{"any interface", "", addrs, true},
		{"missing interface", "wlan1", addrs, false},
		{"link-local only", "wlan0", map[string][]net.Addr{
			"wlan0": {&net.IPNet{IP: net.ParseIP("169.254.1.1")}},
		}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := testNetDevice(NetDeviceConfig{Interface: tt.iface}, ifaces, tt.addrs)
			if got := d.Associated(); got != tt.want {
				t.Errorf("Associated() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNetDevice_AssociateRunsCommand(t *testing.T) {
	ifaces := []net.Interface{{Name: "wlan0", Flags: net.FlagUp}}
	addrs := map[string][]net.Addr{"wlan0": {&net.IPNet{IP: net.ParseIP("192.168.10.42")}}}
	d := testNetDevice(NetDeviceConfig{Interface: "wlan0", ConnectCommand: "nmcli device connect wlan0"}, ifaces, addrs)

	var gotName string
	var gotArgs []string
	d.run = func(_ context.Context, name string, args ...string) ([]byte, error) {
		gotName, gotArgs = name, args
		return nil, nil
	}

	if err := d.Associate(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotName != "nmcli" || len(gotArgs) != 3 || gotArgs[2] != "wlan0" {
		t.Errorf("ran %q %v, want nmcli [device connect wlan0]", gotName, gotArgs)
	}

	d.run = func(context.Context, string, ...string) ([]byte, error) {
		return []byte("no secrets"), errors.New("exit status 4")
	}
	if err := d.Associate(context.Background()); err == nil {
		t.Fatal("expected error from failing connect command")
	}
}

func TestNetDevice_AssociateWithoutAddress(t *testing.T) {
	d := testNetDevice(NetDeviceConfig{Interface: "wlan0"}, nil, nil)
	if err := d.Associate(context.Background()); !errors.Is(err, ErrNotAssociated) {
		t.Fatalf("err = %v, want ErrNotAssociated", err)
	}
}
