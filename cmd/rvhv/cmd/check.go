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
	"fmt"
	"runtime"

	rvhv "github.com/immunotec18/go-rvhv"
	"github.com/spf13/cobra"
	"golang.org/x/sys/unix"
)

func init() {
	rootCmd.AddCommand(checkCmd)
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check native guest-entry support on this platform",
	RunE: func(cmd *cobra.Command, args []string) error {
		ok, err := rvhv.Supported()
		if err != nil {
			fmt.Printf("native entry: error: %v\n", err)
		} else {
			fmt.Printf("native entry: %v\n", ok)
		}
		if !ok {
			fmt.Println("backend: simulated (SimCSRBank + SimGuest)")
		}

		fmt.Printf("host: %s/%s, page size %d\n", runtime.GOOS, runtime.GOARCH, unix.Getpagesize())
		fmt.Printf("guest: riscv64, page size %d, entry %#x\n", rvhv.PageSize, rvhv.GuestEntryAddr)

		return nil
	},
}
