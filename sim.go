package rvhv

import (
	"encoding/binary"
	"fmt"
)

// SimCSRBank is an in-memory CSR bank. It records the order of hgatp
// writes and stage-2 fences so callers can check the install ordering.
type SimCSRBank struct {
	hstatus uint64
	sstatus uint64
	scause  uint64
	stval   uint64
	hgatp   uint64

	// Trace holds "hgatp", "hfence.gvma", and "enter" events in the
	// order they happened.
	Trace []string
}

// NewSimCSRBank returns a bank with all registers zero.
func NewSimCSRBank() *SimCSRBank {
	return &SimCSRBank{}
}

func (b *SimCSRBank) HStatus() uint64     { return b.hstatus }
func (b *SimCSRBank) SetHStatus(v uint64) { b.hstatus = v }
func (b *SimCSRBank) SStatus() uint64     { return b.sstatus }
func (b *SimCSRBank) SetSStatus(v uint64) { b.sstatus = v }
func (b *SimCSRBank) SCause() uint64      { return b.scause }
func (b *SimCSRBank) STVal() uint64       { return b.stval }
func (b *SimCSRBank) HGATP() uint64       { return b.hgatp }

func (b *SimCSRBank) SetHGATP(v uint64) {
	b.hgatp = v
	b.Trace = append(b.Trace, "hgatp")
}

func (b *SimCSRBank) HFenceGVMA() {
	b.Trace = append(b.Trace, "hfence.gvma")
}

// setTrap latches a trap cause and value, as the hardware would on a
// guest exit.
func (b *SimCSRBank) setTrap(scause, stval uint64) {
	b.scause = scause
	b.stval = stval
}

// SimOpKind names a simulated guest operation.
type SimOpKind int

const (
	// OpLoad reads the doubleword at Addr into A0. Faults with a load
	// guest-page fault while the page is unbacked, then re-executes.
	OpLoad SimOpKind = iota
	// OpStore writes A0 to Addr. Faults with a store guest-page fault
	// while the page is unbacked (which the dispatcher treats as
	// fatal).
	OpStore
	// OpIllegal executes an instruction the host does not model.
	OpIllegal
	// OpEcall loads the SBI registers and issues an environment call.
	OpEcall
)

// SimOp is one instruction-sized step of a simulated guest program.
type SimOp struct {
	Kind SimOpKind

	// Addr is the guest-physical address for OpLoad/OpStore.
	Addr uint64

	// Raw is the instruction encoding reported in stval for OpIllegal.
	Raw uint64

	// Ext, Fid, A0, A1 populate the SBI registers for OpEcall.
	Ext uint64
	Fid uint64
	A0  uint64
	A1  uint64
}

// SimGuest interprets a scripted guest program against a simulated CSR
// bank and the machine's address space. It implements GuestEntry: each
// Enter executes operations until one traps, latches scause/stval the
// way real hardware would, and returns. Each operation occupies one
// instruction slot, so the context's SEPC indexes the program and
// host-side SEPC adjustments (skip, re-execute) behave exactly as they
// would on hardware.
type SimGuest struct {
	csr   *SimCSRBank
	space *AddressSpace
	entry uint64
	prog  []SimOp
}

// NewSimGuest builds a simulated guest whose program starts at entry.
func NewSimGuest(csr *SimCSRBank, space *AddressSpace, entry uint64, prog []SimOp) *SimGuest {
	return &SimGuest{csr: csr, space: space, entry: entry, prog: prog}
}

// Enter runs the guest from the context's SEPC until an operation
// traps. Host general-purpose state is trivially preserved; only the
// context and the simulated CSRs change.
func (g *SimGuest) Enter(ctx *Context) error {
	if ctx.HStatus&HStatusSPV == 0 {
		return fmt.Errorf("rvhv: context not prepared for guest mode (hstatus=%#x)", ctx.HStatus)
	}
	if g.csr.HGATP()>>hgatpModeShift != HGATPModeSv39x4 {
		return fmt.Errorf("rvhv: stage-2 root not installed (hgatp=%#x)", g.csr.HGATP())
	}
	g.csr.Trace = append(g.csr.Trace, "enter")

	for {
		if ctx.SEPC < g.entry || (ctx.SEPC-g.entry)%InstrLen != 0 {
			return fmt.Errorf("rvhv: guest pc %#x outside program", ctx.SEPC)
		}
		idx := (ctx.SEPC - g.entry) / InstrLen
		if idx >= uint64(len(g.prog)) {
			return fmt.Errorf("rvhv: guest ran off the end of its program at pc %#x", ctx.SEPC)
		}

		op := g.prog[idx]
		switch op.Kind {
		case OpLoad:
			if !g.space.Backed(op.Addr) {
				g.csr.setTrap(ExcLoadGuestPageFault, op.Addr)
				return nil
			}
			var buf [8]byte
			if err := g.space.ReadAt(op.Addr, buf[:]); err != nil {
				return fmt.Errorf("rvhv: simulated load at %#x: %w", op.Addr, err)
			}
			if err := ctx.Regs.SetReg(RegA0, binary.LittleEndian.Uint64(buf[:])); err != nil {
				return err
			}
			ctx.SEPC += InstrLen

		case OpStore:
			if !g.space.Backed(op.Addr) {
				g.csr.setTrap(ExcStoreGuestPageFault, op.Addr)
				return nil
			}
			a0, err := ctx.Regs.Reg(RegA0)
			if err != nil {
				return err
			}
			var buf [8]byte
			binary.LittleEndian.PutUint64(buf[:], a0)
			if err := g.space.Write(op.Addr, buf[:]); err != nil {
				return fmt.Errorf("rvhv: simulated store at %#x: %w", op.Addr, err)
			}
			ctx.SEPC += InstrLen

		case OpIllegal:
			g.csr.setTrap(ExcIllegalInstruction, op.Raw)
			return nil

		case OpEcall:
			if err := ctx.Regs.SetRegs(RegBatch{
				RegA0: op.A0,
				RegA1: op.A1,
				RegA6: op.Fid,
				RegA7: op.Ext,
			}); err != nil {
				return err
			}
			g.csr.setTrap(ExcVSEnvCall, 0)
			return nil

		default:
			return fmt.Errorf("rvhv: unknown simulated op %d at pc %#x", op.Kind, ctx.SEPC)
		}
	}
}

// DemoProgram is the scripted counterpart of the demo guest kernel:
// touch an unbacked page, execute an unmodeled instruction, read the
// serviced page back, then shut down with the expected argument pair.
func DemoProgram(touch uint64) []SimOp {
	return []SimOp{
		{Kind: OpLoad, Addr: touch},
		{Kind: OpIllegal, Raw: 0xffff_ffff},
		{Kind: OpLoad, Addr: touch},
		{Kind: OpEcall, Ext: sbiExtLegacyShutdown, A0: ShutdownMagicA0, A1: ShutdownMagicA1},
	}
}
