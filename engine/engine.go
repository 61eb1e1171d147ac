package engine

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/ardnew/dmauart/dma"
	"github.com/ardnew/dmauart/event"
	"github.com/ardnew/dmauart/hal"
	"github.com/ardnew/dmauart/pkg"
)

// DefaultMaxSpuriousIdle is the number of consecutive idle interrupts that
// report no new data before a receive session is considered stalled.
const DefaultMaxSpuriousIdle = 16

// Config holds the per-instance engine configuration.
type Config struct {
	RxChannel hal.Channel // DMA channel bound to receive
	TxChannel hal.Channel // DMA channel bound to transmit

	// StopTimeout bounds the active wait for a channel to stop.
	StopTimeout time.Duration
	// PollInterval is the polling period of that wait.
	PollInterval time.Duration

	// MaxSpuriousIdle bounds consecutive empty idle interrupts; zero disables
	// the check.
	MaxSpuriousIdle int
}

// DefaultConfig returns the configuration used when fields are left zero.
func DefaultConfig() Config {
	return Config{
		RxChannel:       0,
		TxChannel:       1,
		StopTimeout:     dma.DefaultStopTimeout,
		PollInterval:    dma.DefaultPollInterval,
		MaxSpuriousIdle: DefaultMaxSpuriousIdle,
	}
}

// Engine is the asynchronous DMA transport for one serial peripheral
// instance. It owns one receive session and one transmit session and
// reports their progress through the registered callback.
//
// Engine implements [hal.InterruptHandler]; bring-up code routes the
// peripheral and DMA interrupts to it.
type Engine struct {
	periph hal.Peripheral
	dma    *dma.Manager
	events event.Dispatcher
	cfg    Config

	rx receiver
	tx transmitter

	stats counters
}

var _ hal.InterruptHandler = (*Engine)(nil)

// New creates an engine over an initialized peripheral and DMA controller.
// A nil controller selects [hal.NoDMA]: the instance is created, but every
// transfer is refused with [pkg.ErrNotSupported].
func New(p hal.Peripheral, d hal.DMA, cfg Config) (*Engine, error) {
	if p == nil {
		return nil, fmt.Errorf("engine: nil peripheral: %w", pkg.ErrInvalidArgument)
	}
	if d == nil {
		d = hal.NoDMA{}
	}
	def := DefaultConfig()
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = def.StopTimeout
	}
	if cfg.PollInterval < 0 {
		cfg.PollInterval = def.PollInterval
	}
	if cfg.MaxSpuriousIdle < 0 {
		cfg.MaxSpuriousIdle = 0
	}

	m, err := dma.New(d, cfg.RxChannel, cfg.TxChannel,
		dma.WithStopTimeout(cfg.StopTimeout),
		dma.WithPollInterval(cfg.PollInterval))
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}

	e := &Engine{
		periph: p,
		dma:    m,
		cfg:    cfg,
	}
	e.rx.init(e)
	e.tx.init(e)

	// Receive starts masked; EnableReceive unmasks idle detection.
	p.SetIdleInterrupt(false)
	p.DisableDMATrigger(hal.DirRx)
	p.DisableDMATrigger(hal.DirTx)

	pkg.LogDebug(pkg.ComponentEngine, "engine created",
		"rxChannel", cfg.RxChannel,
		"txChannel", cfg.TxChannel,
		"stopTimeout", cfg.StopTimeout)
	return e, nil
}

// SetCallback registers the owner callback. Events are delivered from one
// context at a time, in generation order. The callback must not block; it
// may call [Engine.BufferResponse], [Engine.DisableReceive], [Engine.Send]
// and [Engine.AbortSend].
func (e *Engine) SetCallback(cb event.Callback) {
	e.events.SetCallback(cb)
}

// EnableReceive starts a receive session into buf. With timeout zero, data
// is reported as soon as the line goes idle; otherwise the report is
// deferred until the line has been quiet for timeout, coalescing bursts.
func (e *Engine) EnableReceive(buf []byte, timeout time.Duration) error {
	return e.rx.enable(buf, timeout)
}

// DisableReceive ends the receive session. Data received but not yet
// reported is reported first, then RxDisabled. It is a no-op when no session
// is active.
//
// Called from the callback, or with no delivery in progress, DisableReceive
// delivers RxDisabled before it returns. Called from another goroutine while
// a callback is running, it returns once the channel is stopped and
// RxDisabled is queued; the delivering goroutine delivers it after the
// running callback, and nothing for the session follows it.
func (e *Engine) DisableReceive() {
	e.rx.disable()
	e.events.Deliver()
}

// BufferResponse supplies the next receive buffer. It is valid only while
// the callback handles RxBufRequest; the buffer is zero-filled and bound
// before the callback's caller regains control. It returns
// [pkg.ErrInvalidState] outside that window and [pkg.ErrBusy] when a buffer
// was already supplied for this request.
func (e *Engine) BufferResponse(buf []byte) error {
	return e.rx.bufferResponse(buf)
}

// Send transmits buf. The single terminal event is TxDone or TxAborted. A
// non-zero timeout aborts the send when it expires.
func (e *Engine) Send(buf []byte, timeout time.Duration) error {
	if len(buf) == 0 {
		return pkg.ErrInvalidArgument
	}
	return e.tx.start([][]byte{buf}, timeout)
}

// SendChain transmits the blocks of a chain in order as one logical send.
// Only the last block's completion produces TxDone, carrying the total length.
func (e *Engine) SendChain(head *Block, timeout time.Duration) error {
	blocks, err := head.collect()
	if err != nil {
		return err
	}
	return e.tx.start(blocks, timeout)
}

// AbortSend aborts the active send. TxAborted is emitted once the channel has
// stopped. It is a no-op when nothing is sending. Delivery follows the same
// rule as [Engine.DisableReceive]: TxAborted is delivered before AbortSend
// returns unless another goroutine is running the callback, in which case
// that goroutine delivers it next in order.
func (e *Engine) AbortSend() {
	e.tx.abort()
	e.events.Deliver()
}

// LineInterrupt services the peripheral interrupt: line errors and line idle.
func (e *Engine) LineInterrupt() {
	if e.periph.ErrorFlagIsSet() {
		reason := pkg.StopHardwareFault
		if c, ok := e.periph.(hal.ErrorClassifier); ok {
			if r := c.ErrorReason(); r != pkg.StopNone {
				reason = r
			}
		}
		e.periph.ClearErrorFlag()
		e.stats.faults.Add(1)
		e.rx.fault(reason)
	}
	if e.periph.IdleFlagIsSet() {
		if err := clearIdle(e.periph); err != nil {
			e.stats.faults.Add(1)
			e.rx.fault(pkg.StopHardwareFault)
		} else {
			e.rx.idle()
		}
	}
	e.events.Deliver()
}

// DMAInterrupt services a transfer-complete interrupt for dir.
func (e *Engine) DMAInterrupt(dir hal.Direction) {
	switch dir {
	case hal.DirRx:
		e.rx.complete()
	case hal.DirTx:
		e.tx.complete()
	}
	e.events.Deliver()
}

// Receiving reports whether a receive session is active.
func (e *Engine) Receiving() bool {
	return e.rx.active()
}

// Sending reports whether a send is in flight.
func (e *Engine) Sending() bool {
	return e.tx.active()
}

// Stats returns a snapshot of the engine counters.
func (e *Engine) Stats() Stats {
	return e.stats.snapshot()
}

// Stats holds counters since the engine was created.
type Stats struct {
	RxBytes      uint64 // bytes reported by RxReady
	RxRotations  uint64 // buffers returned through RxBufRequest
	RxSessions   uint64 // receive sessions started
	TxBytes      uint64 // bytes completed by TxDone
	TxSends      uint64 // sends started
	TxAborts     uint64 // sends ended by TxAborted
	SpuriousIdle uint64 // idle interrupts without new data
	StopTimeouts uint64 // bounded waits that expired
	Faults       uint64 // hardware faults observed
}

type counters struct {
	rxBytes      atomic.Uint64
	rxRotations  atomic.Uint64
	rxSessions   atomic.Uint64
	txBytes      atomic.Uint64
	txSends      atomic.Uint64
	txAborts     atomic.Uint64
	spuriousIdle atomic.Uint64
	stopTimeouts atomic.Uint64
	faults       atomic.Uint64
}

func (c *counters) snapshot() Stats {
	return Stats{
		RxBytes:      c.rxBytes.Load(),
		RxRotations:  c.rxRotations.Load(),
		RxSessions:   c.rxSessions.Load(),
		TxBytes:      c.txBytes.Load(),
		TxSends:      c.txSends.Load(),
		TxAborts:     c.txAborts.Load(),
		SpuriousIdle: c.spuriousIdle.Load(),
		StopTimeouts: c.stopTimeouts.Load(),
		Faults:       c.faults.Load(),
	}
}
