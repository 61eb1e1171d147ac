// Package dma manages the DMA channels of one serial peripheral instance.
//
// A [Manager] binds one hardware channel to each direction for its whole
// lifetime and hands out a [Handle] per direction. It refuses to arm a
// direction twice ([pkg.ErrBusy]) and performs the bounded active wait that
// must precede reconfiguring a channel:
//
//	h, err := m.Start(hal.DirRx, buf, false)
//	...
//	if err := m.Stop(h); errors.Is(err, pkg.ErrTimeout) {
//	    // forced; channel treated as released
//	}
//
// The wait defaults to [DefaultStopTimeout] polled every
// [DefaultPollInterval]. It must only run in worker context, never from an
// interrupt handler.
package dma
