// Package serialport drives the engine from a host serial port.
//
// A Bridge owns a port opened with go.bug.st/serial and a [sim.Controller]
// standing in for the peripheral and its DMA controller. A reader goroutine
// moves received bytes into the controller's FIFO; a read that times out
// after data marks the line idle, so the port's read timeout acts as the
// idle-line detector. Bytes moved by the transmit channel are written to the
// port and drained before the transfer completes.
//
// Example:
//
//	b, err := serialport.Open(serialport.DefaultConfig("/dev/ttyUSB0"))
//	if err != nil {
//		return err
//	}
//	defer b.Close()
//
//	c := b.Controller()
//	e, err := engine.New(c, c, engine.DefaultConfig())
//	if err != nil {
//		return err
//	}
//	b.Attach(e)
package serialport
