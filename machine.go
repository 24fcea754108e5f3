package rvhv

import (
	"encoding/binary"
	"fmt"
	"sync"
	"time"
)

// Fixed constants forming the ABI boundary with the demo guest.
const (
	// GuestEntryAddr is the guest-physical address execution starts at.
	GuestEntryAddr uint64 = 0x8020_0000

	// PageSize is the guest page size.
	PageSize = 4096

	// InstrLen is the fixed instruction width used to skip an illegal
	// instruction.
	InstrLen = 4

	// ShutdownMagicA0 and ShutdownMagicA1 are the argument pair a Reset
	// request must carry to count as a clean shutdown.
	ShutdownMagicA0 uint64 = 0x6688
	ShutdownMagicA1 uint64 = 0x1234

	// IllegalInstrMagic is the diagnostic value placed in A1 after an
	// illegal instruction is skipped.
	IllegalInstrMagic uint64 = 0x1234

	// PageFaultMagic is the 8-byte value written at a serviced faulting
	// address.
	PageFaultMagic uint64 = 0x6688
)

// GuestEntry is the VM-entry primitive: a synchronous transfer into
// guest mode that returns exactly once a trap fires, with host state
// preserved and the trap cause/value registers left consistent with the
// event. The machine depends only on the documented Context fields, not
// on any internal save/restore convention.
type GuestEntry interface {
	Enter(ctx *Context) error
}

// GuestEntryFunc adapts a function to the GuestEntry interface.
type GuestEntryFunc func(ctx *Context) error

func (f GuestEntryFunc) Enter(ctx *Context) error { return f(ctx) }

// Config carries the collaborators a Machine runs against.
type Config struct {
	// CSR is the privileged-register capability. Required.
	CSR CSRBank

	// Guest is the VM-entry primitive. Required.
	Guest GuestEntry

	// Space is the guest-physical address space. Required.
	Space *AddressSpace

	// Entry is the guest entry address. Defaults to GuestEntryAddr.
	Entry uint64

	// Logf, when set, receives trap traces (illegal instructions,
	// serviced page faults, reset requests). Nil means silent.
	Logf func(format string, args ...any)
}

// Machine runs a single guest: it owns the guest register context and
// drives the entry/dispatch loop. Single-shot; a machine whose guest
// has terminated cannot be rerun.
type Machine struct {
	csr   CSRBank
	guest GuestEntry
	space *AddressSpace
	entry uint64
	logf  func(format string, args ...any)

	ctx      Context
	finished bool

	closed  bool
	closeMu sync.Mutex
}

// NewMachine validates cfg and builds a machine around it.
func NewMachine(cfg Config) (*Machine, error) {
	if cfg.CSR == nil {
		return nil, fmt.Errorf("rvhv: config requires a CSR bank")
	}
	if cfg.Guest == nil {
		return nil, fmt.Errorf("rvhv: config requires a guest entry primitive")
	}
	if cfg.Space == nil {
		return nil, fmt.Errorf("rvhv: config requires an address space")
	}
	entry := cfg.Entry
	if entry == 0 {
		entry = GuestEntryAddr
	}
	if !isPageAligned(entry) {
		return nil, fmt.Errorf("rvhv: entry %#x not page-aligned: %w", entry, ErrInvalidAlignment)
	}
	logf := cfg.Logf
	if logf == nil {
		logf = func(string, ...any) {}
	}
	return &Machine{
		csr:   cfg.CSR,
		guest: cfg.Guest,
		space: cfg.Space,
		entry: entry,
		logf:  logf,
	}, nil
}

// Context exposes the guest register context. Callers must not mutate
// it while Run is executing.
func (m *Machine) Context() *Context {
	return &m.ctx
}

// prepareGuestContext sets up the context so the entry primitive lands
// in VS-mode at the entry address. The live hstatus and the context
// copy are write-through equal on first entry.
func (m *Machine) prepareGuestContext() {
	hs := m.csr.HStatus()
	// SPV so sret returns to guest mode, SPVP so VS-mode memory stays
	// accessible from HS-mode on synchronous re-entry.
	hs |= HStatusSPV | HStatusSPVP
	m.csr.SetHStatus(hs)
	m.ctx.HStatus = hs

	m.ctx.SStatus = m.csr.SStatus() | SStatusSPP
	m.ctx.SEPC = m.entry
}

// installStage2 binds the address space's translation root and flushes
// the stage-2 translation cache. The fence must follow the hgatp write
// and precede the first guest entry; reordering leaves stale mappings
// visible. Idempotent.
func (m *Machine) installStage2() {
	m.csr.SetHGATP(packHGATP(HGATPModeSv39x4, m.space.Root()))
	m.csr.HFenceGVMA()
}

// runStep performs one guest entry and dispatches the resulting trap.
// done=true means the loop must stop (clean shutdown when err is nil).
func (m *Machine) runStep() (done bool, err error) {
	start := time.Now()
	if err := m.guest.Enter(&m.ctx); err != nil {
		return true, fmt.Errorf("rvhv: guest entry: %w", err)
	}
	recordEntry(time.Since(start))

	return m.handleTrap()
}

// handleTrap classifies the trap cause left by the last exit and
// executes exactly one policy: terminate, resume unmodified, or
// fault-service-then-resume. Stateless across calls.
func (m *Machine) handleTrap() (done bool, err error) {
	scause := m.csr.SCause()
	switch classifyTrap(scause) {
	case CauseEnvCall:
		msg, derr := DecodeSBI(&m.ctx.Regs)
		if derr != nil {
			return true, derr
		}
		recordSBICall()
		m.logf("sbi call: %s (ext=%#x fid=%#x)", msg.Kind, msg.Extension, msg.Function)
		if msg.Kind != SBIReset {
			return true, fmt.Errorf("sbi %s call (ext=%#x fid=%#x): %w", msg.Kind, msg.Extension, msg.Function, ErrUnsupportedCall)
		}
		args := m.ctx.Regs.ArgRegs()
		a0, a1 := args[0], args[1]
		m.logf("reset requested: a0=%#x a1=%#x", a0, a1)
		if a0 != ShutdownMagicA0 || a1 != ShutdownMagicA1 {
			return true, fmt.Errorf("reset arguments a0=%#x a1=%#x (want %#x, %#x): %w",
				a0, a1, ShutdownMagicA0, ShutdownMagicA1, ErrBadShutdownArgs)
		}
		recordReset()
		return true, nil

	case CauseIllegalInstruction:
		m.logf("illegal instruction %#x at sepc=%#x", m.csr.STVal(), m.ctx.SEPC)
		// Skip the instruction; no inspection of its bits.
		m.ctx.SEPC += InstrLen
		if err := m.ctx.Regs.SetReg(RegA1, IllegalInstrMagic); err != nil {
			return true, err
		}
		recordIllegalSkip()
		return false, nil

	case CauseGuestPageFault:
		addr := m.csr.STVal()
		m.logf("guest page fault at %#x sepc=%#x", addr, m.ctx.SEPC)
		if err := m.space.MapAlloc(alignDown(addr), PageSize, PermRead|PermWrite|PermUser, true); err != nil {
			return true, fmt.Errorf("rvhv: backing faulting page %#x: %w", alignDown(addr), err)
		}
		var magic [8]byte
		binary.LittleEndian.PutUint64(magic[:], PageFaultMagic)
		if err := m.space.Write(addr, magic[:]); err != nil {
			return true, fmt.Errorf("rvhv: writing fault sentinel at %#x: %w", addr, err)
		}
		recordPageFault()
		// SEPC untouched: the faulting instruction re-executes and now
		// succeeds.
		return false, nil

	default:
		return true, fmt.Errorf("trap cause %#x (%s) sepc=%#x stval=%#x: %w",
			scause, classifyTrap(scause), m.ctx.SEPC, m.csr.STVal(), ErrUnhandledTrap)
	}
}

// Run prepares the guest context, installs the stage-2 root, and
// repeats entry+dispatch until the dispatcher signals termination.
// Returns nil only when the guest shut down cleanly through a Reset
// call with the expected argument pair; every fatal condition is a
// typed error. Single-shot.
func (m *Machine) Run() error {
	m.closeMu.Lock()
	defer m.closeMu.Unlock()

	if m.closed {
		return ErrMachineClosed
	}
	if m.finished {
		return ErrMachineFinished
	}

	start := time.Now()
	defer func() {
		recordRun(time.Since(start))
	}()

	m.prepareGuestContext()
	m.installStage2()

	for {
		done, err := m.runStep()
		if err != nil {
			recordFatalTrap()
			m.finished = true
			return err
		}
		if done {
			m.finished = true
			return nil
		}
	}
}

// Close marks the machine unusable. It does not close the address
// space, which the caller owns. Idempotent.
func (m *Machine) Close() error {
	if m == nil {
		return nil
	}
	m.closeMu.Lock()
	defer m.closeMu.Unlock()
	m.closed = true
	return nil
}

// Supported reports whether native VS-mode guest entry is available.
// It always returns false today: entering a real guest requires an
// HS-mode assembly shim this package does not ship. The simulated
// backend (SimCSRBank, SimGuest) works everywhere.
func Supported() (bool, error) {
	return false, nil
}
