// Package engine implements the asynchronous DMA transport for a serial
// peripheral: a receive session that rotates owner-supplied buffers and
// flushes on line idle, and a transmit session that sends a buffer or a
// chain of blocks as one logical transfer.
//
// # Contexts
//
// Work happens in three contexts. The interrupt context is whatever calls
// [Engine.LineInterrupt] or [Engine.DMAInterrupt]; it never blocks. The
// deferred worker is a timer goroutine that stops channels (a bounded wait)
// and rotates buffers. The owner context calls the public API. Each session
// is guarded by its own mutex, which plays the part of the interrupt mask.
//
// # Events
//
// Progress is reported through one callback, one event at a time and in
// generation order. Within a receive buffer, RxReady events never overlap
// and leave no gap; the bytes reported across all RxReady events equal the
// bytes the channel wrote. The buffer is handed back with RxBufRequest; the
// owner answers with [Engine.BufferResponse] from inside the callback, or
// the session ends with RxDisabled. Every send ends with exactly one of
// TxDone or TxAborted.
//
// Example:
//
//	e, err := engine.New(periph, dmac, engine.DefaultConfig())
//	if err != nil {
//		return err
//	}
//	e.SetCallback(func(ev event.Event) {
//		switch ev.Type {
//		case event.RxReady:
//			consume(ev.Data())
//		case event.RxBufRequest:
//			e.BufferResponse(nextBuffer())
//		}
//	})
//	if err := e.EnableReceive(make([]byte, 64), time.Millisecond); err != nil {
//		return err
//	}
//
// [Stream] wraps the event interface in blocking reads and writes.
package engine
