package rvhv

// hstatus fields.
const (
	// HStatusSPV: supervisor previous virtualization mode. Set so sret
	// targets VS-mode.
	HStatusSPV uint64 = 1 << 7
	// HStatusSPVP: supervisor previous virtual privilege. Set so
	// VS-mode memory is accessible from HS-mode during trap handling.
	HStatusSPVP uint64 = 1 << 8
)

// sstatus fields.
const (
	// SStatusSPP: previous privilege was supervisor.
	SStatusSPP uint64 = 1 << 8
)

// hgatp packing.
const (
	// HGATPModeSv39x4 selects Sv39x4 second-stage translation.
	HGATPModeSv39x4 uint64 = 8

	hgatpModeShift = 60
	hgatpPPNMask   = (uint64(1) << 44) - 1
)

// scause exception codes as they appear after an exit from VS-mode.
const (
	ExcIllegalInstruction  uint64 = 2
	ExcVSEnvCall           uint64 = 10
	ExcInstGuestPageFault  uint64 = 20
	ExcLoadGuestPageFault  uint64 = 21
	ExcStoreGuestPageFault uint64 = 23

	scauseInterrupt uint64 = 1 << 63
)

// CSRBank is the capability through which the machine reads and writes
// host-visible control-and-status registers. Passing it in explicitly
// (rather than touching ambient hardware state) lets tests substitute a
// simulated register bank.
type CSRBank interface {
	HStatus() uint64
	SetHStatus(v uint64)

	SStatus() uint64
	SetSStatus(v uint64)

	// SCause and STVal describe the most recent trap. They are only
	// meaningful between a guest exit and the next entry.
	SCause() uint64
	STVal() uint64

	HGATP() uint64
	SetHGATP(v uint64)

	// HFenceGVMA invalidates all second-stage translation cache
	// entries. Must be ordered after a SetHGATP and before the next
	// guest entry.
	HFenceGVMA()
}

// packHGATP builds an hgatp value from a translation mode and the
// physical page number of the root page table.
func packHGATP(mode, rootPPN uint64) uint64 {
	return mode<<hgatpModeShift | rootPPN&hgatpPPNMask
}
