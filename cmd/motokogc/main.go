// Command motokogc drives the two GC core collectors (semi-space copying
// and threaded mark-compact) over small in-memory scenario heaps, for
// inspecting and demonstrating their behavior outside of a full language
// runtime. Run "motokogc help" for a list of commands.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "motokogc: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "motokogc",
		Short: "Inspect and drive the Wasm GC core's collectors",
		Long: `motokogc builds small scenario heaps and runs them through the copying
or mark-compact collector, printing the object graph and the observability
counters (live size, allocated, reclaimed, max live) the GC entry point
exposes.`,
		SilenceUsage: true,
	}
	root.AddCommand(newRunCmd())
	root.AddCommand(newStatsCmd())
	root.AddCommand(newObjgraphCmd())
	root.AddCommand(newShellCmd())
	return root
}
