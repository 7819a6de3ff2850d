package transport

import (
	"sync"
	"sync/atomic"
	"time"
)

// deadline flags a per-packet timeout without blocking the reader.
//
// A single timer checks the expiry on every firing. If the expiry lies in
// the future (a re-arm raced the firing) it reschedules itself for the
// remainder; otherwise it sets the one-shot expired flag, calls interrupt
// and stops. arm resets the flag for the next packet.
type deadline struct {
	mu        sync.Mutex
	timer     *time.Timer
	expiry    time.Time
	interrupt func()
	expired   atomic.Bool
}

// arm starts a deadline of timeout from now. interrupt is called once if it
// elapses and must unblock any pending read.
func (d *deadline) arm(timeout time.Duration, interrupt func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.expired.Store(false)
	d.expiry = time.Now().Add(timeout)
	d.interrupt = interrupt
	if d.timer == nil {
		d.timer = time.AfterFunc(timeout, d.check)
		return
	}
	d.timer.Reset(timeout)
}

// disarm cancels the deadline. The expired flag keeps its value.
func (d *deadline) disarm() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.expiry = time.Time{}
	d.interrupt = nil
	if d.timer != nil {
		d.timer.Stop()
	}
}

// Expired reports whether the last armed deadline elapsed.
func (d *deadline) Expired() bool {
	return d.expired.Load()
}

func (d *deadline) check() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.expiry.IsZero() {
		return
	}
	if remaining := time.Until(d.expiry); remaining > 0 {
		d.timer.Reset(remaining)
		return
	}

	d.expired.Store(true)
	d.expiry = time.Time{}
	if d.interrupt != nil {
		d.interrupt()
		d.interrupt = nil
	}
}
