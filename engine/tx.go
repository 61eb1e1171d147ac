package engine

import (
	"sync"
	"time"

	"github.com/ardnew/dmauart/dma"
	"github.com/ardnew/dmauart/event"
	"github.com/ardnew/dmauart/hal"
	"github.com/ardnew/dmauart/pkg"
)

// MaxChainLength bounds the number of blocks walked in a chain. Longer and
// cyclic chains are rejected.
const MaxChainLength = 64

// Block is one element of a chained send.
type Block struct {
	Data []byte
	Next *Block
}

// Chain links bufs into a chain, in order.
func Chain(bufs ...[]byte) *Block {
	var head *Block
	for i := len(bufs) - 1; i >= 0; i-- {
		head = &Block{Data: bufs[i], Next: head}
	}
	return head
}

// Len returns the total length of the chain starting at b.
func (b *Block) Len() int {
	n := 0
	for i := 0; b != nil && i < MaxChainLength; b, i = b.Next, i+1 {
		n += len(b.Data)
	}
	return n
}

// collect returns the non-empty blocks of the chain.
func (b *Block) collect() ([][]byte, error) {
	if b == nil {
		return nil, pkg.ErrInvalidArgument
	}
	var blocks [][]byte
	n := 0
	for blk := b; blk != nil; blk = blk.Next {
		if n++; n > MaxChainLength {
			return nil, pkg.ErrInvalidArgument
		}
		if len(blk.Data) > 0 {
			blocks = append(blocks, blk.Data)
		}
	}
	if len(blocks) == 0 {
		return nil, pkg.ErrInvalidArgument
	}
	return blocks, nil
}

type txState uint8

const (
	txIdle txState = iota
	txSending
	txAborting
)

// transmitter is the transmit session.
type transmitter struct {
	e     *Engine
	mutex sync.Mutex

	state  txState
	send   uint64
	handle dma.Handle
	blocks [][]byte
	index  int // block on the channel
	sent   int // bytes of blocks before index
	total  int

	timer scheduler
}

func (t *transmitter) init(e *Engine) {
	t.e = e
	t.handle = e.dma.Handle(hal.DirTx)
}

func (t *transmitter) active() bool {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	return t.state != txIdle
}

func (t *transmitter) start(blocks [][]byte, timeout time.Duration) error {
	if timeout < 0 {
		return pkg.ErrInvalidArgument
	}

	t.mutex.Lock()
	defer t.mutex.Unlock()

	if t.state != txIdle {
		return pkg.ErrBusy
	}
	h, err := t.e.dma.Start(hal.DirTx, blocks[0], false)
	if err != nil {
		return err
	}

	total := 0
	for _, b := range blocks {
		total += len(b)
	}
	t.handle = h
	t.blocks = blocks
	t.index = 0
	t.sent = 0
	t.total = total
	t.send++
	t.state = txSending
	t.e.stats.txSends.Add(1)

	pkg.LogDebug(pkg.ComponentTx, "send started",
		"send", t.send,
		"blocks", len(blocks),
		"length", total,
		"timeout", timeout)

	if timeout > 0 {
		send := t.send
		t.timer.schedule(timeout, func() { t.expire(send) })
	}
	t.e.periph.EnableDMATrigger(hal.DirTx)
	return nil
}

// complete handles the transfer-complete interrupt for the current block.
func (t *transmitter) complete() {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	// A completion racing an abort finds the session idle and is dropped.
	if t.state != txSending || t.e.dma.Remaining(t.handle) != 0 {
		return
	}

	t.sent += len(t.blocks[t.index])
	t.index++
	if t.index < len(t.blocks) {
		h, err := t.e.dma.Start(hal.DirTx, t.blocks[t.index], true)
		if err != nil {
			pkg.LogError(pkg.ComponentTx, "chain continuation failed",
				"block", t.index,
				"error", err)
			t.e.stats.txAborts.Add(1)
			t.finishLocked(event.TxAborted, t.sent)
			return
		}
		t.handle = h
		return
	}

	t.e.dma.Release(t.handle)
	t.e.stats.txBytes.Add(uint64(t.total))
	pkg.LogDebug(pkg.ComponentTx, "send done", "send", t.send, "length", t.total)
	t.finishLocked(event.TxDone, t.total)
}

func (t *transmitter) abort() {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	if t.state != txSending {
		return
	}
	t.abortLocked()
}

// expire is the send timeout.
func (t *transmitter) expire(send uint64) {
	t.mutex.Lock()
	if send == t.send && t.state == txSending {
		pkg.LogWarn(pkg.ComponentTx, "send timed out", "send", send)
		t.abortLocked()
	}
	t.mutex.Unlock()
	t.e.events.Deliver()
}

func (t *transmitter) abortLocked() {
	t.state = txAborting
	t.timer.cancel()
	t.e.periph.DisableDMATrigger(hal.DirTx)
	if err := t.e.dma.Stop(t.handle); err != nil {
		t.e.stats.stopTimeouts.Add(1)
	}
	n := t.sent + t.e.dma.Transferred(t.handle)
	t.e.stats.txAborts.Add(1)
	pkg.LogDebug(pkg.ComponentTx, "send aborted", "send", t.send, "sent", n)
	t.finishLocked(event.TxAborted, n)
}

func (t *transmitter) finishLocked(typ event.Type, n int) {
	t.timer.cancel()
	t.e.periph.DisableDMATrigger(hal.DirTx)

	ev := event.Event{Type: typ, Len: n}
	if len(t.blocks) == 1 {
		ev.Buf = t.blocks[0]
	}
	t.e.events.Post(ev, nil)

	t.state = txIdle
	t.blocks = nil
	t.index = 0
}
