package rvhv_test

import (
	"fmt"
	"log"

	rvhv "github.com/immunotec18/go-rvhv"
)

// ExampleMachine_Run boots the scripted demo guest against the
// simulated backend: it faults on an untouched page, executes an
// unmodeled instruction, and shuts itself down.
func ExampleMachine_Run() {
	space, err := rvhv.NewAddressSpace(rvhv.GuestEntryAddr, 16*rvhv.PageSize)
	if err != nil {
		log.Fatal(err)
	}
	defer space.Close()

	touch := rvhv.GuestEntryAddr + 4*rvhv.PageSize
	csr := rvhv.NewSimCSRBank()
	guest := rvhv.NewSimGuest(csr, space, rvhv.GuestEntryAddr, rvhv.DemoProgram(touch))

	m, err := rvhv.NewMachine(rvhv.Config{
		CSR:   csr,
		Guest: guest,
		Space: space,
	})
	if err != nil {
		log.Fatal(err)
	}
	defer m.Close()

	if err := m.Run(); err != nil {
		fmt.Println("guest failed:", err)
		return
	}

	fmt.Println("shutdown vm normally")
	fmt.Println("touched page backed:", space.Backed(touch))
	// Output:
	// shutdown vm normally
	// touched page backed: true
}
