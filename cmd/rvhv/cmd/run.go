/*
Copyright © 2025 immunotec18

Permission is hereby granted, free of charge, to any person obtaining a copy
of this software and associated documentation files (the "Software"), to deal
in the Software without restriction, including without limitation the rights
to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
copies of the Software, and to permit persons to whom the Software is
furnished to do so, subject to the following conditions:

The above copyright notice and this permission notice shall be included in
all copies or substantial portions of the Software.

THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
THE SOFTWARE.
*/
package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/fatih/color"
	rvhv "github.com/immunotec18/go-rvhv"
	"github.com/spf13/cobra"
)

var (
	memSize     uint64
	entryAddr   uint64
	touchAddr   uint64
	jsonMetrics bool
	verbose     bool
)

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().Uint64Var(&memSize, "mem-size", 16<<20, "Guest-physical region size (bytes)")
	runCmd.Flags().Uint64VarP(&entryAddr, "entry", "a", rvhv.GuestEntryAddr, "Guest entry physical address")
	runCmd.Flags().Uint64Var(&touchAddr, "touch", 0, "Unbacked address the demo guest touches (default entry + mem-size/2)")
	runCmd.Flags().BoolVar(&jsonMetrics, "json", false, "Dump run metrics as JSON on exit")
	runCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Trace traps as they are handled")
}

var runCmd = &cobra.Command{
	Use:   "run [image]",
	Short: "Boot the demo guest, loading an optional raw image first",
	Long: `Boot one guest under the simulated backend and run it to completion.

If an image file is given it is loaded at the entry address before the
guest starts. The guest itself follows the built-in demo script: touch
an unbacked page, execute an unmodeled instruction, read the serviced
page back, then issue the shutdown call.

Exit status is 0 only when the guest shuts down cleanly; every fatal
trap stops the process with a diagnostic.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runGuest,
}

func runGuest(cmd *cobra.Command, args []string) error {
	fmt.Println("Hypervisor ...")

	space, err := rvhv.NewAddressSpace(entryAddr, memSize)
	if err != nil {
		return fmt.Errorf("creating address space: %w", err)
	}
	defer space.Close()

	if len(args) > 0 {
		if err := rvhv.LoadImage(args[0], space, entryAddr); err != nil {
			return fmt.Errorf("loading guest image: %w", err)
		}
	}

	touch := touchAddr
	if touch == 0 {
		touch = entryAddr + memSize/2
	}

	csr := rvhv.NewSimCSRBank()
	guest := rvhv.NewSimGuest(csr, space, entryAddr, rvhv.DemoProgram(touch))

	var logf func(string, ...any)
	if verbose {
		logf = func(format string, a ...any) {
			fmt.Fprintf(os.Stderr, "rvhv: "+format+"\n", a...)
		}
	}

	m, err := rvhv.NewMachine(rvhv.Config{
		CSR:   csr,
		Guest: guest,
		Space: space,
		Entry: entryAddr,
		Logf:  logf,
	})
	if err != nil {
		return fmt.Errorf("creating machine: %w", err)
	}
	defer m.Close()

	runErr := m.Run()

	if jsonMetrics {
		out, err := json.Marshal(rvhv.GetMetrics())
		if err != nil {
			return fmt.Errorf("marshaling metrics: %w", err)
		}
		fmt.Println(string(out))
	}

	if runErr != nil {
		color.Red("Guest failed: %v", runErr)
		return runErr
	}

	color.Green("Shutdown vm normally!")
	return nil
}
