// Package sim implements an in-memory serial peripheral with a DMA
// controller, satisfying [hal.Peripheral] and [hal.DMA].
//
// The controller models the parts of the hardware the engine depends on:
// a receive FIFO drained by the RX channel while its trigger is enabled,
// a line-idle flag raised once the FIFO is empty, a latched line error, a
// transmit channel that hands its bytes to a transmitter function on its
// own goroutine, and an interrupt line. Interrupts are queued and delivered in order from a
// single goroutine to the registered [hal.InterruptHandler], the way an
// interrupt controller serializes vectors of equal priority.
//
// Tests and bridges drive the line with [Controller.Receive],
// [Controller.Idle] and [Controller.InjectError]. Knobs such as
// [Controller.SetStickyIdle] and [Controller.SetStuckStop] reproduce the
// hardware quirks the engine must tolerate.
//
// Example:
//
//	c := sim.New()
//	defer c.Close()
//
//	e, err := engine.New(c, c, engine.DefaultConfig())
//	if err != nil {
//		return err
//	}
//	c.SetHandler(e)
//
//	c.Receive([]byte("hello"))
//	c.Idle()
package sim
