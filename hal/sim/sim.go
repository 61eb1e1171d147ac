package sim

import (
	"sync"

	"github.com/ardnew/dmauart/hal"
	"github.com/ardnew/dmauart/pkg"
)

// DefaultFIFODepth is the receive FIFO depth. Bytes arriving while the FIFO
// is full are dropped and latch an overrun error.
const DefaultFIFODepth = 4096

// Transmitter consumes the bytes moved by the transmit channel. It runs on
// the controller's transmit goroutine, so a slow transmitter never delays
// other interrupts. The transfer-complete interrupt is raised after it returns.
type Transmitter func(p []byte) error

// Option configures a Controller.
type Option func(*Controller)

// WithFIFODepth sets the receive FIFO depth.
func WithFIFODepth(n int) Option {
	return func(c *Controller) {
		if n > 0 {
			c.depth = n
		}
	}
}

// WithTransmitter sets the function receiving transmitted bytes.
func WithTransmitter(fn Transmitter) Option {
	return func(c *Controller) {
		c.transmit = fn
	}
}

// WithManualTransmit leaves transmit progress to [Controller.AdvanceTransmit].
func WithManualTransmit() Option {
	return func(c *Controller) {
		c.manualTx = true
	}
}

// channel is one DMA channel.
type channel struct {
	dir    hal.Direction
	buf    []byte
	pos    int
	busy   bool
	kicked bool   // transmit job queued for this start
	gen    uint64 // bumped by Start and Stop; stale transmit jobs compare it
}

// irq is a queued interrupt, run on the interrupt goroutine.
type irq func(h hal.InterruptHandler)

// txJob is one transmit block waiting for the transmit goroutine.
type txJob struct {
	chn  *channel
	gen  uint64
	data []byte
}

// Controller is a simulated serial peripheral and DMA controller.
type Controller struct {
	mutex   sync.Mutex
	handler hal.InterruptHandler

	// Peripheral
	trigger     [2]bool
	idleIRQ     bool
	idleFlag    bool
	idlePending bool // line went idle while the FIFO still held bytes
	stickyIdle  int  // acknowledges the idle flag survives
	stuckIdle   bool // idle flag cannot be cleared at all
	errFlag     bool
	errReason   pkg.StopReason
	fifo        []byte
	depth       int
	dropped     int

	// DMA
	channels  map[hal.Channel]*channel
	stuckStop bool

	// Transmit
	transmit Transmitter
	manualTx bool
	txLog    []byte
	txJobs   []txJob
	txWake   chan struct{}

	// Interrupt delivery
	irqs      []irq
	wake      chan struct{}
	closeCh   chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

var (
	_ hal.Peripheral      = (*Controller)(nil)
	_ hal.DMA             = (*Controller)(nil)
	_ hal.ErrorClassifier = (*Controller)(nil)
)

// New creates a controller and starts its interrupt and transmit goroutines.
func New(opts ...Option) *Controller {
	c := &Controller{
		depth:    DefaultFIFODepth,
		channels: make(map[hal.Channel]*channel),
		txWake:   make(chan struct{}, 1),
		wake:     make(chan struct{}, 1),
		closeCh:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.wg.Add(2)
	go c.run()
	go c.runTransmit()
	return c
}

// SetHandler registers the interrupt handler.
func (c *Controller) SetHandler(h hal.InterruptHandler) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.handler = h
}

// SetTransmitter replaces the function receiving transmitted bytes.
func (c *Controller) SetTransmitter(fn Transmitter) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.transmit = fn
}

// Close stops interrupt delivery and transmission. Queued interrupts and
// transmit blocks are discarded. A transmitter call in progress is waited for.
func (c *Controller) Close() error {
	c.closeOnce.Do(func() {
		close(c.closeCh)
	})
	c.wg.Wait()
	return nil
}

// ----------------------------------------------------------------------------
// Peripheral
// ----------------------------------------------------------------------------

// EnableDMATrigger implements [hal.Peripheral].
func (c *Controller) EnableDMATrigger(dir hal.Direction) {
	if !dir.Valid() {
		return
	}
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.trigger[dir] = true
	switch dir {
	case hal.DirRx:
		c.pumpLocked()
	case hal.DirTx:
		c.kickLocked()
	}
}

// DisableDMATrigger implements [hal.Peripheral].
func (c *Controller) DisableDMATrigger(dir hal.Direction) {
	if !dir.Valid() {
		return
	}
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.trigger[dir] = false
}

// SetIdleInterrupt implements [hal.Peripheral]. Unmasking with the flag
// already set raises the interrupt.
func (c *Controller) SetIdleInterrupt(enabled bool) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.idleIRQ = enabled
	if enabled && c.idleFlag {
		c.raiseLocked(lineIRQ)
	}
}

// IdleFlagIsSet implements [hal.Peripheral].
func (c *Controller) IdleFlagIsSet() bool {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.idleFlag
}

// AcknowledgeIdle implements [hal.Peripheral].
func (c *Controller) AcknowledgeIdle() {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.stickyIdle > 0 {
		c.stickyIdle--
		return
	}
	if !c.stuckIdle {
		c.idleFlag = false
	}
}

// ForceClearIdle implements [hal.Peripheral].
func (c *Controller) ForceClearIdle() {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if !c.stuckIdle {
		c.idleFlag = false
	}
}

// ErrorFlagIsSet implements [hal.Peripheral].
func (c *Controller) ErrorFlagIsSet() bool {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.errFlag
}

// ClearErrorFlag implements [hal.Peripheral].
func (c *Controller) ClearErrorFlag() {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.errFlag = false
	c.errReason = pkg.StopNone
}

// ErrorReason implements [hal.ErrorClassifier].
func (c *Controller) ErrorReason() pkg.StopReason {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.errReason
}

// ----------------------------------------------------------------------------
// DMA
// ----------------------------------------------------------------------------

// Start implements [hal.DMA].
func (c *Controller) Start(ch hal.Channel, dir hal.Direction, buf []byte) error {
	if !dir.Valid() || len(buf) == 0 {
		return pkg.ErrInvalidArgument
	}
	c.mutex.Lock()
	defer c.mutex.Unlock()

	chn := c.channelLocked(ch)
	chn.dir = dir
	chn.buf = buf
	chn.pos = 0
	chn.busy = true
	chn.kicked = false
	chn.gen++

	switch dir {
	case hal.DirRx:
		c.pumpLocked()
	case hal.DirTx:
		c.kickLocked()
	}
	return nil
}

// Stop implements [hal.DMA].
func (c *Controller) Stop(ch hal.Channel) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	chn, ok := c.channels[ch]
	if !ok {
		return
	}
	chn.gen++
	if !c.stuckStop {
		chn.busy = false
	}
}

// Remaining implements [hal.DMA].
func (c *Controller) Remaining(ch hal.Channel) int {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	chn, ok := c.channels[ch]
	if !ok {
		return 0
	}
	return len(chn.buf) - chn.pos
}

// Busy implements [hal.DMA].
func (c *Controller) Busy(ch hal.Channel) bool {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	chn, ok := c.channels[ch]
	return ok && chn.busy
}

func (c *Controller) channelLocked(ch hal.Channel) *channel {
	chn, ok := c.channels[ch]
	if !ok {
		chn = &channel{}
		c.channels[ch] = chn
	}
	return chn
}

// activeLocked returns the busy channel moving data in dir.
func (c *Controller) activeLocked(dir hal.Direction) *channel {
	for _, chn := range c.channels {
		if chn.busy && chn.dir == dir {
			return chn
		}
	}
	return nil
}

// ----------------------------------------------------------------------------
// Line
// ----------------------------------------------------------------------------

// Receive puts bytes on the line. It returns how many fit in the FIFO; the
// rest are dropped and latch an overrun.
func (c *Controller) Receive(p []byte) int {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	n := min(len(p), c.depth-len(c.fifo))
	c.fifo = append(c.fifo, p[:n]...)
	if n < len(p) {
		c.dropped += len(p) - n
		c.latchErrorLocked(pkg.StopOverrun)
	}
	c.pumpLocked()
	return n
}

// Idle marks the line idle. The idle flag rises once the FIFO is empty.
func (c *Controller) Idle() {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if len(c.fifo) > 0 {
		c.idlePending = true
		return
	}
	c.setIdleLocked()
}

// InjectError latches a line error and raises the interrupt.
func (c *Controller) InjectError(reason pkg.StopReason) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.latchErrorLocked(reason)
}

// Buffered returns the number of bytes waiting in the FIFO.
func (c *Controller) Buffered() int {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return len(c.fifo)
}

// Dropped returns the number of bytes lost to FIFO overrun.
func (c *Controller) Dropped() int {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.dropped
}

// Transmitted returns a copy of every byte the transmit channel completed.
func (c *Controller) Transmitted() []byte {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return append([]byte(nil), c.txLog...)
}

// AdvanceTransmit moves up to n bytes of the active transmit transfer when
// the controller was created with [WithManualTransmit]. It returns the bytes
// moved; finishing the block raises the transfer-complete interrupt.
func (c *Controller) AdvanceTransmit(n int) int {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	chn := c.activeLocked(hal.DirTx)
	if chn == nil || !c.trigger[hal.DirTx] {
		return 0
	}
	n = min(n, len(chn.buf)-chn.pos)
	c.txLog = append(c.txLog, chn.buf[chn.pos:chn.pos+n]...)
	chn.pos += n
	if chn.pos == len(chn.buf) {
		chn.busy = false
		c.raiseLocked(dmaIRQ(hal.DirTx))
	}
	return n
}

// SetStickyIdle makes the next n acknowledge sequences leave the idle flag
// set, so only the forced clear removes it.
func (c *Controller) SetStickyIdle(n int) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.stickyIdle = n
}

// SetStuckIdle makes the idle flag impossible to clear.
func (c *Controller) SetStuckIdle(stuck bool) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.stuckIdle = stuck
}

// SetStuckStop makes stopped channels keep reporting busy.
func (c *Controller) SetStuckStop(stuck bool) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.stuckStop = stuck
}

// pumpLocked moves FIFO bytes into the active receive buffer.
func (c *Controller) pumpLocked() {
	if chn := c.activeLocked(hal.DirRx); chn != nil && c.trigger[hal.DirRx] {
		n := copy(chn.buf[chn.pos:], c.fifo)
		chn.pos += n
		c.fifo = c.fifo[n:]
		if chn.pos == len(chn.buf) {
			chn.busy = false
			c.raiseLocked(dmaIRQ(hal.DirRx))
		}
	}
	if len(c.fifo) == 0 {
		c.fifo = nil
		if c.idlePending {
			c.idlePending = false
			c.setIdleLocked()
		}
	}
}

// kickLocked queues the active transmit transfer for the transmit goroutine.
func (c *Controller) kickLocked() {
	chn := c.activeLocked(hal.DirTx)
	if chn == nil || chn.kicked || c.manualTx || !c.trigger[hal.DirTx] {
		return
	}
	chn.kicked = true
	c.txJobs = append(c.txJobs, txJob{
		chn:  chn,
		gen:  chn.gen,
		data: append([]byte(nil), chn.buf[chn.pos:]...),
	})
	select {
	case c.txWake <- struct{}{}:
	default:
	}
}

// transmitBlock hands a block to the transmitter and completes the transfer
// unless the channel was stopped or restarted meanwhile.
func (c *Controller) transmitBlock(job txJob) {
	c.mutex.Lock()
	fn := c.transmit
	c.mutex.Unlock()

	if fn != nil {
		if err := fn(job.data); err != nil {
			pkg.LogWarn(pkg.ComponentSim, "transmit failed",
				"length", len(job.data),
				"error", err)
			return
		}
	}

	c.mutex.Lock()
	defer c.mutex.Unlock()

	if job.chn.gen != job.gen || !job.chn.busy {
		return
	}
	c.txLog = append(c.txLog, job.data...)
	job.chn.pos = len(job.chn.buf)
	job.chn.busy = false
	c.raiseLocked(dmaIRQ(hal.DirTx))
}

func (c *Controller) setIdleLocked() {
	c.idleFlag = true
	if c.idleIRQ {
		c.raiseLocked(lineIRQ)
	}
}

func (c *Controller) latchErrorLocked(reason pkg.StopReason) {
	c.errFlag = true
	if c.errReason == pkg.StopNone {
		c.errReason = reason
	}
	c.raiseLocked(lineIRQ)
}

// ----------------------------------------------------------------------------
// Interrupt delivery
// ----------------------------------------------------------------------------

func lineIRQ(h hal.InterruptHandler) {
	if h != nil {
		h.LineInterrupt()
	}
}

func dmaIRQ(dir hal.Direction) irq {
	return func(h hal.InterruptHandler) {
		if h != nil {
			h.DMAInterrupt(dir)
		}
	}
}

func (c *Controller) raiseLocked(fn irq) {
	c.irqs = append(c.irqs, fn)
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

func (c *Controller) run() {
	defer c.wg.Done()
	for {
		select {
		case <-c.closeCh:
			return
		case <-c.wake:
		}
		for {
			c.mutex.Lock()
			if len(c.irqs) == 0 {
				c.mutex.Unlock()
				break
			}
			fn := c.irqs[0]
			c.irqs[0] = nil
			c.irqs = c.irqs[1:]
			h := c.handler
			c.mutex.Unlock()

			select {
			case <-c.closeCh:
				return
			default:
			}
			fn(h)
		}
	}
}

func (c *Controller) runTransmit() {
	defer c.wg.Done()
	for {
		select {
		case <-c.closeCh:
			return
		case <-c.txWake:
		}
		for {
			c.mutex.Lock()
			if len(c.txJobs) == 0 {
				c.mutex.Unlock()
				break
			}
			job := c.txJobs[0]
			c.txJobs[0] = txJob{}
			c.txJobs = c.txJobs[1:]
			c.mutex.Unlock()

			select {
			case <-c.closeCh:
				return
			default:
			}
			c.transmitBlock(job)
		}
	}
}
