package rvhv

import "fmt"

// SBI extension IDs the decoder recognizes. Per the SBI calling
// convention the extension ID is passed in A7 and the function ID in
// A6.
const (
	sbiExtLegacySetTimer uint64 = 0x00
	sbiExtLegacyPutChar  uint64 = 0x01
	sbiExtLegacyGetChar  uint64 = 0x02
	sbiExtLegacyShutdown uint64 = 0x08
	sbiExtBase           uint64 = 0x10
	sbiExtHSM            uint64 = 0x48534D   // "HSM"
	sbiExtReset          uint64 = 0x53525354 // "SRST"
	sbiExtTimer          uint64 = 0x54494D45 // "TIME"
)

// SBICallKind names the decoded request variant.
type SBICallKind int

const (
	// SBIReset is a system reset/shutdown request (legacy shutdown or
	// the SRST extension). The only variant the machine fully handles.
	SBIReset SBICallKind = iota
	// The remaining variants are recognized but deliberately
	// unsupported: dispatching one is a structured fatal error, not an
	// abort.
	SBIBase
	SBISetTimer
	SBIConsolePutChar
	SBIConsoleGetChar
	SBIHSM
)

// SBIMessage is a decoded firmware call. It exists only transiently
// during trap dispatch; the argument registers stay in the guest
// context.
type SBIMessage struct {
	Kind      SBICallKind
	Extension uint64
	Function  uint64
}

// DecodeSBI classifies the pending environment call from the guest's
// argument registers. Unknown extensions are a decode error wrapping
// ErrBadCall.
func DecodeSBI(regs *GuestRegs) (SBIMessage, error) {
	args := regs.ArgRegs()
	ext, fid := args[7], args[6]

	msg := SBIMessage{Extension: ext, Function: fid}
	switch ext {
	case sbiExtLegacyShutdown, sbiExtReset:
		msg.Kind = SBIReset
	case sbiExtBase:
		msg.Kind = SBIBase
	case sbiExtLegacySetTimer, sbiExtTimer:
		msg.Kind = SBISetTimer
	case sbiExtLegacyPutChar:
		msg.Kind = SBIConsolePutChar
	case sbiExtLegacyGetChar:
		msg.Kind = SBIConsoleGetChar
	case sbiExtHSM:
		msg.Kind = SBIHSM
	default:
		return SBIMessage{}, fmt.Errorf("sbi extension %#x function %#x: %w", ext, fid, ErrBadCall)
	}
	return msg, nil
}

func (k SBICallKind) String() string {
	switch k {
	case SBIReset:
		return "Reset"
	case SBIBase:
		return "Base"
	case SBISetTimer:
		return "SetTimer"
	case SBIConsolePutChar:
		return "ConsolePutChar"
	case SBIConsoleGetChar:
		return "ConsoleGetChar"
	case SBIHSM:
		return "HSM"
	default:
		return fmt.Sprintf("SBICallKind(%d)", int(k))
	}
}
