package engine

import (
	"sync"
	"time"

	"github.com/ardnew/dmauart/dma"
	"github.com/ardnew/dmauart/event"
	"github.com/ardnew/dmauart/hal"
	"github.com/ardnew/dmauart/pkg"
)

// rxState is the lifecycle state of the receive session.
type rxState uint8

const (
	rxDisabled rxState = iota // No session; initial and terminal
	rxArmed                   // Channel running into the current buffer
	rxDraining                // Interrupts masked; the worker is stopping the channel
	rxAwaiting                // Buffer returned; waiting for the owner's next buffer
)

func (s rxState) String() string {
	switch s {
	case rxDisabled:
		return "disabled"
	case rxArmed:
		return "armed"
	case rxDraining:
		return "draining"
	case rxAwaiting:
		return "awaiting"
	default:
		return "unknown"
	}
}

// receiver is the receive session. Its mutex is the interrupt mask: the
// interrupt entry points, the deferred worker and the owner API all run with
// it held, so the state machine is never observed half-updated.
type receiver struct {
	e     *Engine
	mutex sync.Mutex

	state   rxState
	session uint64 // bumped per session; deferred work from older sessions is dropped
	flush   uint64 // bumped per deferred drain; only the latest one runs
	timeout time.Duration

	handle   dma.Handle
	buf      []byte // buffer bound to the channel
	consumed int    // bytes of buf already reported
	next     []byte // buffer supplied through BufferResponse, not yet bound

	spurious int            // consecutive idle interrupts without new data
	reason   pkg.StopReason // set when the session must stop after the drain

	timer scheduler
}

func (r *receiver) init(e *Engine) {
	r.e = e
	r.handle = e.dma.Handle(hal.DirRx)
}

func (r *receiver) active() bool {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.state != rxDisabled
}

func (r *receiver) enable(buf []byte, timeout time.Duration) error {
	if len(buf) == 0 || timeout < 0 {
		return pkg.ErrInvalidArgument
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()

	if r.state != rxDisabled {
		return pkg.ErrBusy
	}
	if err := clearIdle(r.e.periph); err != nil {
		return err
	}
	if err := r.bindLocked(buf); err != nil {
		return err
	}

	r.session++
	r.timeout = timeout
	r.reason = pkg.StopNone
	r.next = nil
	r.state = rxArmed
	r.e.periph.SetIdleInterrupt(true)
	r.e.stats.rxSessions.Add(1)

	pkg.LogDebug(pkg.ComponentRx, "receive enabled",
		"session", r.session,
		"length", len(buf),
		"timeout", timeout)
	return nil
}

func (r *receiver) disable() {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if r.state == rxDisabled {
		return
	}
	r.e.periph.SetIdleInterrupt(false)
	r.e.periph.DisableDMATrigger(hal.DirRx)
	r.timer.cancel()

	if r.state == rxArmed || r.state == rxDraining {
		r.stopChannelLocked()
	}
	pkg.LogDebug(pkg.ComponentRx, "receive disabled", "session", r.session)
	r.finishLocked()
}

func (r *receiver) bufferResponse(buf []byte) error {
	if len(buf) == 0 {
		return pkg.ErrInvalidArgument
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()

	if r.state != rxAwaiting {
		return pkg.ErrInvalidState
	}
	if r.next != nil {
		return pkg.ErrBusy
	}
	r.next = buf
	return nil
}

// idle handles a line-idle interrupt whose flag was already cleared.
func (r *receiver) idle() {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if r.state != rxArmed {
		return
	}

	delta := r.e.dma.Transferred(r.handle) - r.consumed
	if delta <= 0 {
		r.spurious++
		r.e.stats.spuriousIdle.Add(1)
		if max := r.e.cfg.MaxSpuriousIdle; max > 0 && r.spurious >= max {
			pkg.LogWarn(pkg.ComponentRx, "receive stalled",
				"session", r.session,
				"idle", r.spurious)
			r.stopLaterLocked(pkg.StopStalled)
		}
		return
	}
	r.spurious = 0

	if r.timeout == 0 {
		r.reportLocked(delta)
		r.drainLaterLocked(0)
		return
	}
	// Each idle restarts the quiet period, so bursts flush once.
	r.scheduleDrainLocked(r.timeout)
}

// complete handles the transfer-complete interrupt: the buffer is full.
func (r *receiver) complete() {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if r.state != rxArmed || r.e.dma.Remaining(r.handle) != 0 {
		return
	}
	if r.timeout == 0 {
		if delta := r.e.dma.Transferred(r.handle) - r.consumed; delta > 0 {
			r.reportLocked(delta)
		}
	}
	r.drainLaterLocked(0)
}

// fault ends the session after a line error.
func (r *receiver) fault(reason pkg.StopReason) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	switch r.state {
	case rxArmed, rxDraining:
		pkg.LogWarn(pkg.ComponentRx, "line error",
			"session", r.session,
			"reason", reason.String())
		r.stopLaterLocked(reason)
	case rxAwaiting:
		r.stopLocked(reason)
	}
}

// drainLaterLocked masks the session and hands the channel stop to the worker.
func (r *receiver) drainLaterLocked(d time.Duration) {
	r.state = rxDraining
	r.scheduleDrainLocked(d)
}

// scheduleDrainLocked replaces the pending deferred drain. A drain whose
// timer fired before the replacement but is still waiting for the mutex
// finds a newer flush number and does nothing.
func (r *receiver) scheduleDrainLocked(d time.Duration) {
	r.flush++
	session, flush := r.session, r.flush
	r.timer.schedule(d, func() { r.drain(session, flush) })
}

func (r *receiver) stopLaterLocked(reason pkg.StopReason) {
	r.reason = reason
	r.e.periph.DisableDMATrigger(hal.DirRx)
	r.drainLaterLocked(0)
}

// drain is the deferred worker. It stops the channel, reports what the
// channel wrote since the last report and returns the buffer to the owner.
func (r *receiver) drain(session, flush uint64) {
	r.mutex.Lock()
	if session == r.session && flush == r.flush && (r.state == rxArmed || r.state == rxDraining) {
		r.drainLocked()
	}
	r.mutex.Unlock()
	r.e.events.Deliver()
}

func (r *receiver) drainLocked() {
	r.state = rxDraining
	r.e.periph.DisableDMATrigger(hal.DirRx)
	err := r.stopChannelLocked()

	if r.reason != pkg.StopNone {
		r.stopLocked(r.reason)
		return
	}
	if err != nil {
		// The channel may still own the buffer; never rebind it.
		pkg.LogWarn(pkg.ComponentRx, "receive forced down",
			"session", r.session,
			"error", err)
		r.stopLocked(pkg.StopChannelTimeout)
		return
	}
	if r.consumed == 0 {
		// Nothing landed in this buffer; keep it bound.
		if err := r.bindLocked(r.buf); err != nil {
			pkg.LogError(pkg.ComponentRx, "re-arm failed", "error", err)
			r.stopLocked(pkg.StopHardwareFault)
			return
		}
		r.state = rxArmed
		return
	}

	r.state = rxAwaiting
	r.e.stats.rxRotations.Add(1)
	session := r.session
	r.e.events.Post(event.Event{
		Type: event.RxBufRequest,
		Buf:  r.buf,
		Len:  r.consumed,
	}, func() { r.rotate(session) })
	r.buf = nil
}

// rotate runs after the owner handled RxBufRequest.
func (r *receiver) rotate(session uint64) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if session != r.session || r.state != rxAwaiting {
		return
	}
	buf := r.next
	r.next = nil
	if buf == nil {
		pkg.LogDebug(pkg.ComponentRx, "no buffer supplied", "session", r.session)
		r.finishLocked()
		return
	}
	if err := r.bindLocked(buf); err != nil {
		pkg.LogError(pkg.ComponentRx, "rotation failed", "error", err)
		r.stopLocked(pkg.StopHardwareFault)
		return
	}
	r.state = rxArmed
	pkg.LogDebug(pkg.ComponentRx, "buffer rotated",
		"session", r.session,
		"length", len(buf))
}

// bindLocked zero-fills buf, arms the channel with it and opens the trigger.
func (r *receiver) bindLocked(buf []byte) error {
	clear(buf)
	h, err := r.e.dma.Start(hal.DirRx, buf, false)
	if err != nil {
		return err
	}
	r.handle = h
	r.buf = buf
	r.consumed = 0
	r.spurious = 0
	r.e.periph.EnableDMATrigger(hal.DirRx)
	return nil
}

// stopChannelLocked stops the channel and reports bytes it wrote after the
// last report. The error is [pkg.ErrTimeout] when the bounded wait expired.
func (r *receiver) stopChannelLocked() error {
	err := r.e.dma.Stop(r.handle)
	if err != nil {
		r.e.stats.stopTimeouts.Add(1)
	}
	if delta := r.e.dma.Transferred(r.handle) - r.consumed; delta > 0 {
		r.reportLocked(delta)
	}
	return err
}

func (r *receiver) reportLocked(n int) {
	r.e.events.Post(event.Event{
		Type:   event.RxReady,
		Buf:    r.buf,
		Offset: r.consumed,
		Len:    n,
	}, nil)
	r.consumed += n
	r.e.stats.rxBytes.Add(uint64(n))
}

// stopLocked emits RxStopped and ends the session.
func (r *receiver) stopLocked(reason pkg.StopReason) {
	r.e.events.Post(event.Event{Type: event.RxStopped, Reason: reason}, nil)
	r.finishLocked()
}

// finishLocked masks receive, emits RxDisabled and returns to rxDisabled.
func (r *receiver) finishLocked() {
	r.timer.cancel()
	r.e.periph.SetIdleInterrupt(false)
	r.e.periph.DisableDMATrigger(hal.DirRx)

	r.e.events.Post(event.Event{Type: event.RxDisabled, Buf: r.buf}, nil)

	r.state = rxDisabled
	r.session++
	r.buf = nil
	r.next = nil
	r.consumed = 0
	r.spurious = 0
	r.reason = pkg.StopNone
}
