package rvhv

import "fmt"

// GPR identifies a RISC-V general-purpose register by ABI role.
type GPR int

const (
	RegZero GPR = iota // x0, hardwired zero
	RegRA              // x1
	RegSP              // x2
	RegGP              // x3
	RegTP              // x4
	RegT0
	RegT1
	RegT2
	RegS0
	RegS1
	RegA0 // x10, first SBI argument register
	RegA1 // x11, second SBI argument register
	RegA2
	RegA3
	RegA4
	RegA5
	RegA6 // SBI function ID
	RegA7 // SBI extension ID
	RegS2
	RegS3
	RegS4
	RegS5
	RegS6
	RegS7
	RegS8
	RegS9
	RegS10
	RegS11
	RegT3
	RegT4
	RegT5
	RegT6
)

// NumGPRs is the number of general-purpose register slots.
const NumGPRs = 32

// GuestRegs holds the guest's general-purpose register file.
type GuestRegs struct {
	regs [NumGPRs]uint64
}

// Reg returns the value of register r.
func (g *GuestRegs) Reg(r GPR) (uint64, error) {
	if r < RegZero || r >= NumGPRs {
		return 0, fmt.Errorf("rvhv: invalid register %d (must be %d-%d)", r, RegZero, NumGPRs-1)
	}
	return g.regs[r], nil
}

// SetReg sets register r to v. Writes to RegZero are dropped, matching
// the hardwired x0 register.
func (g *GuestRegs) SetReg(r GPR, v uint64) error {
	if r < RegZero || r >= NumGPRs {
		return fmt.Errorf("rvhv: invalid register %d (must be %d-%d)", r, RegZero, NumGPRs-1)
	}
	if r == RegZero {
		return nil
	}
	g.regs[r] = v
	return nil
}

// RegBatch represents a batch of register operations.
type RegBatch map[GPR]uint64

// GetRegs retrieves multiple registers in a single call.
func (g *GuestRegs) GetRegs(regs []GPR) (RegBatch, error) {
	batch := make(RegBatch, len(regs))
	for _, reg := range regs {
		val, err := g.Reg(reg)
		if err != nil {
			return nil, err
		}
		batch[reg] = val
	}
	return batch, nil
}

// SetRegs sets multiple registers in a single call.
func (g *GuestRegs) SetRegs(batch RegBatch) error {
	for reg, val := range batch {
		if err := g.SetReg(reg, val); err != nil {
			return err
		}
	}
	return nil
}

// ArgRegs returns the eight SBI argument registers A0-A7 in order.
func (g *GuestRegs) ArgRegs() [8]uint64 {
	var args [8]uint64
	copy(args[:], g.regs[RegA0:RegA7+1])
	return args
}

// Context is the guest register context: the general-purpose register
// file plus the privileged state the entry primitive loads and the trap
// path updates. Exactly one Context exists per running guest; it is the
// sole source of truth for guest state while the guest is not
// executing.
type Context struct {
	Regs GuestRegs

	// HStatus and SStatus are the hypervisor-status and
	// supervisor-status values loaded on entry.
	HStatus uint64
	SStatus uint64

	// SEPC is the guest program counter: the entry address before the
	// first entry, the guest-visible resumption point afterwards.
	SEPC uint64
}

func (r GPR) String() string {
	names := [NumGPRs]string{
		"zero", "ra", "sp", "gp", "tp", "t0", "t1", "t2",
		"s0", "s1", "a0", "a1", "a2", "a3", "a4", "a5",
		"a6", "a7", "s2", "s3", "s4", "s5", "s6", "s7",
		"s8", "s9", "s10", "s11", "t3", "t4", "t5", "t6",
	}
	if r < RegZero || r >= NumGPRs {
		return fmt.Sprintf("GPR(%d)", int(r))
	}
	return names[r]
}
