package link

import (
	"context"
	"fmt"
	"net"
	"os/exec"
	"strings"
	"time"
)

const defaultCommandTimeout = 15 * time.Second

// NetDevice is a [Device] backed by the host's network interfaces.
//
// A connect attempt optionally runs an association command (for example
// "nmcli device connect wlan0") and then probes the interface. The link is
// up when the interface is up and holds a non-loopback unicast address.
type NetDevice struct {
	iface          string
	command        []string
	commandTimeout time.Duration

	// Overridable for tests
	interfaces func() ([]net.Interface, error)
	addrs      func(net.Interface) ([]net.Addr, error)
	run        func(ctx context.Context, name string, args ...string) ([]byte, error)
}

// NetDeviceConfig holds configuration for a NetDevice
type NetDeviceConfig struct {
	Interface      string        // e.g., "wlan0"; empty matches any non-loopback interface
	ConnectCommand string        // e.g., "nmcli device connect wlan0"; empty only probes
	CommandTimeout time.Duration // Bound on one ConnectCommand run
}

// NewNetDevice creates a new NetDevice
func NewNetDevice(config NetDeviceConfig) *NetDevice {
	timeout := config.CommandTimeout
	if timeout <= 0 {
		timeout = defaultCommandTimeout
	}
	return &NetDevice{
		iface:          config.Interface,
		command:        strings.Fields(config.ConnectCommand),
		commandTimeout: timeout,
		interfaces:     net.Interfaces,
		addrs:          func(i net.Interface) ([]net.Addr, error) { return i.Addrs() },
		run: func(ctx context.Context, name string, args ...string) ([]byte, error) {
			return exec.CommandContext(ctx, name, args...).CombinedOutput()
		},
	}
}

// Associate implements [Device]
func (d *NetDevice) Associate(ctx context.Context) error {
	if len(d.command) > 0 {
		cmdCtx, cancel := context.WithTimeout(ctx, d.commandTimeout)
		defer cancel()
		out, err := d.run(cmdCtx, d.command[0], d.command[1:]...)
		if err != nil {
			return fmt.Errorf("connect command %q failed: %w (%s)",
				strings.Join(d.command, " "), err, strings.TrimSpace(string(out)))
		}
	}
	if !d.Associated() {
		return ErrNotAssociated
	}
	return nil
}

// Associated implements [Device]
func (d *NetDevice) Associated() bool {
	ifaces, err := d.interfaces()
	if err != nil {
		return false
	}
	for _, iface := range ifaces {
		if d.iface != "" && iface.Name != d.iface {
			continue
		}
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := d.addrs(iface)
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			if hasUnicastIP(addr) {
				return true
			}
		}
	}
	return false
}

// hasUnicastIP reports whether addr carries a usable, non-loopback address
func hasUnicastIP(addr net.Addr) bool {
	var ip net.IP
	switch v := addr.(type) {
	case *net.IPNet:
		ip = v.IP
	case *net.IPAddr:
		ip = v.IP
	default:
		return false
	}
	return ip.IsGlobalUnicast() && !ip.IsLoopback()
}
