package event

import (
	"fmt"

	"github.com/ardnew/dmauart/pkg"
)

// Type identifies the kind of an Event.
type Type uint8

// Event types.
const (
	TxDone       Type = iota + 1 // Send completed; Len holds the total length
	TxAborted                    // Send aborted; Len holds the bytes actually sent
	RxReady                      // Data available in Buf[Offset : Offset+Len]
	RxBufRequest                 // Current buffer drained and returned; supply the next one
	RxDisabled                   // Receive session ended
	RxStopped                    // Receive stopped by a fault; Reason says why
)

// String returns the event type name.
func (t Type) String() string {
	switch t {
	case TxDone:
		return "TxDone"
	case TxAborted:
		return "TxAborted"
	case RxReady:
		return "RxReady"
	case RxBufRequest:
		return "RxBufRequest"
	case RxDisabled:
		return "RxDisabled"
	case RxStopped:
		return "RxStopped"
	default:
		return "Unknown"
	}
}

// Event is a notification delivered to the owner callback.
//
// For RxReady, Buf is the currently bound receive buffer and Offset is
// relative to it, never cumulative across buffers. Buf stays owned by the
// engine until the RxBufRequest that follows; the callback may read
// Buf[Offset:Offset+Len] but must not retain the slice past that point
// unless it kept ownership of the memory itself.
type Event struct {
	Type   Type
	Buf    []byte
	Offset int
	Len    int
	Reason pkg.StopReason
}

// Data returns the bytes an RxReady event reports, or nil for other types.
func (e Event) Data() []byte {
	if e.Type != RxReady || e.Buf == nil {
		return nil
	}
	return e.Buf[e.Offset : e.Offset+e.Len]
}

// String returns a compact description for logging.
func (e Event) String() string {
	switch e.Type {
	case RxReady:
		return fmt.Sprintf("%s{offset=%d len=%d}", e.Type, e.Offset, e.Len)
	case TxDone, TxAborted:
		return fmt.Sprintf("%s{len=%d}", e.Type, e.Len)
	case RxStopped:
		return fmt.Sprintf("%s{reason=%s}", e.Type, e.Reason)
	default:
		return e.Type.String()
	}
}

// Terminal reports whether e ends a receive session or a send.
func (e Event) Terminal() bool {
	return e.Type == RxDisabled || e.Type == TxDone || e.Type == TxAborted
}
