package pkg

import "errors"

// Engine errors.
var (
	// ErrInvalidArgument indicates a nil or zero-length buffer, or an otherwise
	// unusable argument. Returned synchronously; never produces an event.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrBusy indicates a session or send is already active on that direction.
	ErrBusy = errors.New("resource busy")

	// ErrHardwareFault indicates the peripheral reported an error condition or
	// a status flag could not be cleared.
	ErrHardwareFault = errors.New("hardware fault")

	// ErrTimeout indicates a channel failed to reach idle within the bounded wait.
	ErrTimeout = errors.New("channel stop timeout")

	// ErrInvalidState indicates the operation is not valid in the current state.
	ErrInvalidState = errors.New("invalid state")

	// ErrNotSupported indicates the instance was built without the capability.
	ErrNotSupported = errors.New("not supported")

	// ErrStalled indicates a receive session stopped making progress.
	ErrStalled = errors.New("receive stalled")

	// ErrOverrun indicates data was lost because no buffer was available.
	ErrOverrun = errors.New("data overrun")

	// ErrClosed indicates the port or engine has been closed.
	ErrClosed = errors.New("closed")

	// ErrAborted indicates a send ended with TxAborted.
	ErrAborted = errors.New("transfer aborted")
)

// StopReason identifies why a receive session stopped.
type StopReason int

// Stop reasons carried by RxStopped events.
const (
	StopNone           StopReason = iota // Not stopped
	StopHardwareFault                    // Peripheral error flag observed
	StopStalled                          // Too many consecutive empty idle interrupts
	StopOverrun                          // Peripheral FIFO overrun
	StopChannelTimeout                   // Receive channel did not stop within the bounded wait
)

// String returns a string representation of the stop reason.
func (r StopReason) String() string {
	switch r {
	case StopNone:
		return "none"
	case StopHardwareFault:
		return "hardware fault"
	case StopStalled:
		return "stalled"
	case StopOverrun:
		return "overrun"
	case StopChannelTimeout:
		return "channel timeout"
	default:
		return "unknown"
	}
}

// Error returns the corresponding error for the stop reason.
func (r StopReason) Error() error {
	switch r {
	case StopNone:
		return nil
	case StopStalled:
		return ErrStalled
	case StopOverrun:
		return ErrOverrun
	case StopChannelTimeout:
		return ErrTimeout
	default:
		return ErrHardwareFault
	}
}
