package hal

import "github.com/ardnew/dmauart/pkg"

// Direction identifies the transfer direction of a DMA channel or trigger.
type Direction uint8

// Transfer directions.
const (
	DirRx Direction = iota // Peripheral to memory
	DirTx                  // Memory to peripheral
)

// String returns a short direction name.
func (d Direction) String() string {
	switch d {
	case DirRx:
		return "rx"
	case DirTx:
		return "tx"
	default:
		return "unknown"
	}
}

// Valid reports whether d is one of the defined directions.
func (d Direction) Valid() bool {
	return d == DirRx || d == DirTx
}

// Channel identifies a hardware DMA channel.
type Channel uint8

// Peripheral is the control surface of a serial peripheral operating in DMA
// trigger mode. Implementations are assumed to be initialized (clocks, pins,
// interrupt controller) before the engine uses them.
//
// Methods are called from both interrupt and worker contexts and must not block.
type Peripheral interface {
	// EnableDMATrigger routes the peripheral's data requests for dir to the
	// DMA controller.
	EnableDMATrigger(dir Direction)

	// DisableDMATrigger stops issuing data requests for dir.
	DisableDMATrigger(dir Direction)

	// SetIdleInterrupt masks or unmasks the line-idle interrupt.
	SetIdleInterrupt(enabled bool)

	// IdleFlagIsSet reports the line-idle status flag.
	IdleFlagIsSet() bool

	// AcknowledgeIdle performs the hardware acknowledge sequence for the
	// idle flag: read the status register, then read the data register.
	AcknowledgeIdle()

	// ForceClearIdle clears the idle flag directly. It is the fallback when
	// the acknowledge sequence left the flag set.
	ForceClearIdle()

	// ErrorFlagIsSet reports whether a line error (framing, parity, noise,
	// overrun) is latched.
	ErrorFlagIsSet() bool

	// ClearErrorFlag clears any latched line error.
	ClearErrorFlag()
}

// DMA is the channel-level interface of a DMA controller.
type DMA interface {
	// Start configures ch for a transfer of len(buf) bytes in direction dir
	// and arms it. The peripheral trigger is enabled separately.
	Start(ch Channel, dir Direction, buf []byte) error

	// Stop requests the hardware to stop ch. The channel may remain busy
	// for a short time after Stop returns.
	Stop(ch Channel)

	// Remaining returns the number of bytes ch has not yet transferred.
	Remaining(ch Channel) int

	// Busy reports whether ch is still active.
	Busy(ch Channel) bool
}

// InterruptHandler receives the interrupts raised by a peripheral and its
// DMA channels. Bring-up code registers the engine as the handler for the
// peripheral and channel interrupt vectors.
type InterruptHandler interface {
	// LineInterrupt services the peripheral interrupt (line idle, line error).
	LineInterrupt()

	// DMAInterrupt services a transfer-complete interrupt for dir.
	DMAInterrupt(dir Direction)
}

// NoDMA is the DMA implementation used by instances built without DMA support.
// Every transfer is refused with [pkg.ErrNotSupported].
type NoDMA struct{}

// Start always returns [pkg.ErrNotSupported].
func (NoDMA) Start(Channel, Direction, []byte) error { return pkg.ErrNotSupported }

// Stop is a no-op.
func (NoDMA) Stop(Channel) {}

// Remaining always returns 0.
func (NoDMA) Remaining(Channel) int { return 0 }

// Busy always returns false.
func (NoDMA) Busy(Channel) bool { return false }

// ErrorClassifier is implemented by peripherals that can tell which line
// error is latched. The engine uses it, when present, to pick the reason
// carried by RxStopped; otherwise every line error is a hardware fault.
type ErrorClassifier interface {
	ErrorReason() pkg.StopReason
}
