package dma

import (
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/ardnew/dmauart/hal"
	"github.com/ardnew/dmauart/pkg"
)

// Bounded wait defaults for Stop.
const (
	DefaultStopTimeout  = time.Millisecond
	DefaultPollInterval = time.Microsecond
)

// Handle identifies the channel bound to one direction. Handles are created
// by [New] and stay bound to their direction for the lifetime of the Manager.
type Handle struct {
	dir   hal.Direction
	ch    hal.Channel
	valid bool
}

// Direction returns the direction the handle is bound to.
func (h Handle) Direction() hal.Direction { return h.dir }

// Channel returns the hardware channel behind the handle.
func (h Handle) Channel() hal.Channel { return h.ch }

// Valid reports whether the handle was issued by a Manager.
func (h Handle) Valid() bool { return h.valid }

// String returns a short description for logging.
func (h Handle) String() string {
	if !h.valid {
		return "dma(invalid)"
	}
	return fmt.Sprintf("dma(%s:%d)", h.dir, h.ch)
}

// Option configures a Manager.
type Option func(*Manager)

// WithStopTimeout sets the bound on the active wait performed by Stop.
func WithStopTimeout(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.stopTimeout = d
		}
	}
}

// WithPollInterval sets the polling period used while waiting for a channel
// to go idle. Zero yields the processor between polls instead of sleeping.
func WithPollInterval(d time.Duration) Option {
	return func(m *Manager) {
		if d >= 0 {
			m.pollInterval = d
		}
	}
}

// Manager starts and stops transfers on the two channels of one peripheral
// instance. It owns the channel registers while a channel is armed and
// refuses a second start on an armed direction.
type Manager struct {
	ctrl    hal.DMA
	handles [2]Handle

	mutex  sync.Mutex
	armed  [2]bool
	length [2]int

	stopTimeout  time.Duration
	pollInterval time.Duration
}

// New creates a Manager binding rx and tx to the receive and transmit
// directions. The two channels must differ.
func New(ctrl hal.DMA, rx, tx hal.Channel, opts ...Option) (*Manager, error) {
	if ctrl == nil {
		return nil, fmt.Errorf("dma: nil controller: %w", pkg.ErrInvalidArgument)
	}
	if rx == tx {
		return nil, fmt.Errorf("dma: channel %d bound to both directions: %w", rx, pkg.ErrInvalidArgument)
	}
	m := &Manager{
		ctrl:         ctrl,
		stopTimeout:  DefaultStopTimeout,
		pollInterval: DefaultPollInterval,
	}
	m.handles[hal.DirRx] = Handle{dir: hal.DirRx, ch: rx, valid: true}
	m.handles[hal.DirTx] = Handle{dir: hal.DirTx, ch: tx, valid: true}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Handle returns the handle bound to dir.
func (m *Manager) Handle(dir hal.Direction) Handle {
	if !dir.Valid() {
		return Handle{}
	}
	return m.handles[dir]
}

// Start arms the channel for dir with buf. A chained start continues a
// sequence on an armed channel and is accepted only once the hardware reports
// the previous block finished.
func (m *Manager) Start(dir hal.Direction, buf []byte, chained bool) (Handle, error) {
	if !dir.Valid() || len(buf) == 0 {
		return Handle{}, pkg.ErrInvalidArgument
	}
	h := m.handles[dir]

	m.mutex.Lock()
	defer m.mutex.Unlock()

	if m.armed[dir] && (!chained || m.ctrl.Busy(h.ch)) {
		return Handle{}, pkg.ErrBusy
	}
	if err := m.ctrl.Start(h.ch, dir, buf); err != nil {
		m.armed[dir] = false
		return Handle{}, fmt.Errorf("dma: start %s: %w", h, err)
	}
	m.armed[dir] = true
	m.length[dir] = len(buf)

	pkg.LogDebug(pkg.ComponentDMA, "channel armed",
		"handle", h.String(),
		"length", len(buf),
		"chained", chained)
	return h, nil
}

// Stop requests the hardware to stop h and waits, bounded by the stop
// timeout, until the channel is idle or has nothing left to transfer. The
// channel is disarmed even when the wait expires; in that case Stop returns
// [pkg.ErrTimeout].
func (m *Manager) Stop(h Handle) error {
	if !m.owns(h) {
		return pkg.ErrInvalidArgument
	}
	m.ctrl.Stop(h.ch)
	err := m.waitIdle(h)

	m.mutex.Lock()
	m.armed[h.dir] = false
	m.mutex.Unlock()

	if err != nil {
		pkg.LogWarn(pkg.ComponentDMA, "channel did not stop",
			"handle", h.String(),
			"timeout", m.stopTimeout,
			"remaining", m.ctrl.Remaining(h.ch))
	}
	return err
}

// Release disarms h after the hardware completed the transfer on its own.
func (m *Manager) Release(h Handle) {
	if !m.owns(h) {
		return
	}
	m.mutex.Lock()
	m.armed[h.dir] = false
	m.mutex.Unlock()
}

// Remaining returns the bytes h has not yet transferred.
func (m *Manager) Remaining(h Handle) int {
	if !m.owns(h) {
		return 0
	}
	return m.ctrl.Remaining(h.ch)
}

// Transferred returns the bytes moved since the last Start on h
// (length minus remaining).
func (m *Manager) Transferred(h Handle) int {
	if !m.owns(h) {
		return 0
	}
	m.mutex.Lock()
	length := m.length[h.dir]
	m.mutex.Unlock()

	n := length - m.ctrl.Remaining(h.ch)
	if n < 0 {
		return 0
	}
	return n
}

// Armed reports whether the channel for dir is armed.
func (m *Manager) Armed(dir hal.Direction) bool {
	if !dir.Valid() {
		return false
	}
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.armed[dir]
}

// Busy reports whether the hardware channel behind h is active.
func (m *Manager) Busy(h Handle) bool {
	if !m.owns(h) {
		return false
	}
	return m.ctrl.Busy(h.ch)
}

// owns reports whether h was issued by this Manager.
func (m *Manager) owns(h Handle) bool {
	return h.valid && h.dir.Valid() && m.handles[h.dir] == h
}

// waitIdle polls the channel until it is idle or drained.
func (m *Manager) waitIdle(h Handle) error {
	deadline := time.Now().Add(m.stopTimeout)
	for {
		if !m.ctrl.Busy(h.ch) || m.ctrl.Remaining(h.ch) == 0 {
			return nil
		}
		if time.Now().After(deadline) {
			return pkg.ErrTimeout
		}
		if m.pollInterval > 0 {
			time.Sleep(m.pollInterval)
		} else {
			runtime.Gosched()
		}
	}
}
