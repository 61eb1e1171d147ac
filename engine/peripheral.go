package engine

import (
	"github.com/ardnew/dmauart/hal"
	"github.com/ardnew/dmauart/pkg"
)

// clearIdle acknowledges the idle flag in two phases. The commit runs the
// hardware acknowledge sequence; the confirm re-reads the flag and forces
// it clear if a character raced the acknowledge. A flag that survives both
// is a hardware fault.
func clearIdle(p hal.Peripheral) error {
	p.AcknowledgeIdle()
	if !p.IdleFlagIsSet() {
		return nil
	}
	p.ForceClearIdle()
	if p.IdleFlagIsSet() {
		pkg.LogWarn(pkg.ComponentHAL, "idle flag stuck after forced clear")
		return pkg.ErrHardwareFault
	}
	return nil
}
