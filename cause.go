package rvhv

import "fmt"

// TrapCause is the closed classification of a guest exit, derived fresh
// from scause after every entry and never persisted.
type TrapCause int

const (
	// CauseOther covers every cause the dispatcher does not model,
	// including all interrupts and store/fetch guest page faults.
	CauseOther TrapCause = iota
	// CauseEnvCall is an SBI environment call from VS-mode.
	CauseEnvCall
	// CauseIllegalInstruction is an illegal-instruction exception
	// raised by the guest.
	CauseIllegalInstruction
	// CauseGuestPageFault is a load guest-page fault: the guest
	// touched a guest-physical page with no stage-2 backing.
	CauseGuestPageFault
)

// classifyTrap maps a raw scause value onto the dispatcher's closed
// cause set. Only the load variant of the guest page faults is
// recoverable; instruction and store guest faults fall through to
// CauseOther and are fatal.
func classifyTrap(scause uint64) TrapCause {
	if scause&scauseInterrupt != 0 {
		return CauseOther
	}
	switch scause {
	case ExcVSEnvCall:
		return CauseEnvCall
	case ExcIllegalInstruction:
		return CauseIllegalInstruction
	case ExcLoadGuestPageFault:
		return CauseGuestPageFault
	default:
		return CauseOther
	}
}

func (c TrapCause) String() string {
	switch c {
	case CauseEnvCall:
		return "environment call"
	case CauseIllegalInstruction:
		return "illegal instruction"
	case CauseGuestPageFault:
		return "guest page fault"
	case CauseOther:
		return "other"
	default:
		return fmt.Sprintf("TrapCause(%d)", int(c))
	}
}
