// Package hal defines the hardware collaborators consumed by the transport
// engine.
//
// The HAL provides a platform-agnostic interface between the engine and the
// serial peripheral and DMA controller. Platform vendors implement these
// interfaces; the engine never performs clock, pin or interrupt-controller
// configuration itself.
//
// # Interface Overview
//
//   - [Peripheral]: DMA trigger routing, idle-line detection and line errors
//   - [DMA]: start, stop and progress of a single hardware channel
//   - [InterruptHandler]: the entry points bring-up code calls from the
//     peripheral and DMA interrupt vectors
//
// # Idle flag acknowledgement
//
// Many UARTs clear the idle flag only through a read of the status register
// followed by a read of the data register, and the sequence can race with a
// new character. The peripheral therefore exposes the acknowledge sequence
// ([Peripheral.AcknowledgeIdle]) and a direct clear
// ([Peripheral.ForceClearIdle]) separately; the engine commits with the
// first, confirms with [Peripheral.IdleFlagIsSet], falls back to the
// second, and reports a hardware fault if the flag is still set.
//
// # Optional DMA support
//
// Instances without a DMA controller use [NoDMA], which refuses every
// transfer with [pkg.ErrNotSupported].
//
// An in-memory implementation for testing is available in
// [github.com/ardnew/dmauart/hal/sim], and a host serial port backend in
// [github.com/ardnew/dmauart/hal/serialport].
package hal
