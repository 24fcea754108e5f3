// Package rvhv is the trap-and-dispatch core of a minimal type-1
// hypervisor for RISC-V guests running under the hypervisor (H)
// extension with second-stage (G-stage) address translation.
//
// The package prepares a guest register context, installs a stage-2
// translation root, enters the guest through an opaque entry primitive,
// and classifies every trap that hands control back: firmware (SBI)
// calls, illegal instructions, and guest page faults are handled; any
// other cause is fatal.
//
// # Basic Usage
//
// Build an address space and load a guest image:
//
//	space, err := rvhv.NewAddressSpace(rvhv.GuestEntryAddr, 16<<20)
//	if err != nil {
//		log.Fatal("Failed to create address space:", err)
//	}
//	defer space.Close()
//
//	if err := rvhv.LoadImage("guest.bin", space, rvhv.GuestEntryAddr); err != nil {
//		log.Fatal("Failed to load guest image:", err)
//	}
//
// Create a machine and run the guest until it shuts down:
//
//	csr := rvhv.NewSimCSRBank()
//	m, err := rvhv.NewMachine(rvhv.Config{
//		CSR:   csr,
//		Guest: guest, // a rvhv.GuestEntry implementation
//		Space: space,
//	})
//	if err != nil {
//		log.Fatal("Failed to create machine:", err)
//	}
//
//	if err := m.Run(); err != nil {
//		log.Fatal("Guest failed:", err) // fatal trap, bad SBI call, ...
//	}
//	// nil: the guest issued a clean shutdown call.
//
// # Trap Handling
//
// After every guest entry the machine reads the trap cause and applies
// exactly one policy:
//
//   - SBI environment call: a Reset request with the expected argument
//     pair shuts the guest down cleanly; any other request is fatal.
//   - Illegal instruction: the guest program counter is advanced past
//     the instruction and a diagnostic value is placed in A1.
//   - Guest page fault: the touched page is backed on demand and the
//     faulting instruction re-executes.
//   - Anything else: fatal, reported with cause, sepc, and stval.
//
// # Privileged State
//
// All control-and-status register access goes through the CSRBank
// interface, and the guest entry itself through GuestEntry, so the
// whole loop runs against simulated hardware. SimCSRBank and SimGuest
// are the in-repo implementations; entering a real VS-mode guest needs
// an HS-mode assembly shim that this package does not ship (see
// Supported).
//
// # Error Handling
//
// Recoverable traps never surface as errors. Fatal conditions are
// reported as HVError values wrapping the package's sentinel errors
// (ErrBadShutdownArgs, ErrUnsupportedCall, ErrUnhandledTrap, ...), so
// callers can tell a guest-requested shutdown (nil) from a hypervisor
// failure.
package rvhv
