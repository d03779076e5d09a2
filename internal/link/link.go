// Package link tracks the device's network association.
//
// The operating system owns the wireless association; this package only
// triggers connect attempts through a [Device] and observes the result.
// Loss of the link is detected passively, by probing, and never acted on
// here: the pipeline decides when to call [Link.EnsureConnected].
package link

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"audio-relay/internal/models"
	"audio-relay/internal/resilience"
)

// ErrNotAssociated is returned by a connect attempt that completed without
// the device becoming associated.
var ErrNotAssociated = errors.New("network link not associated")

// Device is the platform side of the link.
type Device interface {
	// Associate performs one connect attempt. It returns nil once the
	// device is associated.
	Associate(ctx context.Context) error

	// Associated is a non-blocking probe of the current association.
	Associated() bool
}

// Link maintains a single network association
type Link struct {
	device Device
	policy resilience.Backoff

	mu    sync.Mutex
	state models.LinkState
}

// New creates a link over device using policy for connect retries
func New(device Device, policy resilience.Backoff) *Link {
	if policy.Name == "" {
		policy.Name = "link"
	}
	return &Link{
		device: device,
		policy: policy,
		state:  models.Disconnected,
	}
}

// IsConnected probes the device and reports whether the link is up.
// A previously connected link that probes down moves to Disconnected.
func (l *Link) IsConnected() bool {
	up := l.device.Associated()

	l.mu.Lock()
	defer l.mu.Unlock()
	switch {
	case up && l.state != models.Connected:
		l.state = models.Connected
	case !up && l.state == models.Connected:
		l.state = models.Disconnected
		log.Println("Link: Connection lost")
	}
	return up
}

// State returns the last observed link state
func (l *Link) State() models.LinkState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// RetryPolicy returns the policy used to restore the connection
func (l *Link) RetryPolicy() resilience.Backoff {
	return l.policy
}

// EnsureConnected blocks until the link is up, retrying under the link's
// backoff policy. It returns an error wrapping
// [resilience.ErrConnectivityExhausted] when the policy gives up, or the
// context error on cancellation.
func (l *Link) EnsureConnected(ctx context.Context) error {
	if l.IsConnected() {
		return nil
	}

	l.setState(models.Connecting)
	log.Println("Link: Connecting...")

	attempts, err := l.policy.Retry(ctx, func(ctx context.Context, n int) error {
		if err := l.device.Associate(ctx); err != nil {
			return err
		}
		if !l.device.Associated() {
			return ErrNotAssociated
		}
		return nil
	})
	if err != nil {
		l.setState(models.Disconnected)
		return fmt.Errorf("link connect failed: %w", err)
	}

	l.setState(models.Connected)
	log.Printf("Link: Connected after %d attempt(s)", attempts)
	return nil
}

func (l *Link) setState(s models.LinkState) {
	l.mu.Lock()
	l.state = s
	l.mu.Unlock()
}
