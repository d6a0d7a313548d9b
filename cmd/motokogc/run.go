package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/dfinity-labs/motoko-gc/internal/gc"
	"github.com/dfinity-labs/motoko-gc/internal/gc/diag"
)

func newRunCmd() *cobra.Command {
	var algo string
	var spaceSize uint32
	var collections int

	cmd := &cobra.Command{
		Use:   "run <scenario>",
		Short: "Build a scenario heap and collect it, printing live-object counts before and after",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := parseAlgorithm(algo)
			if err != nil {
				return err
			}
			b, err := buildScenario(args[0], a, spaceSize)
			if err != nil {
				return err
			}
			defer b.Mem.Close()

			t := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintf(t, "algorithm\t%s\n", a)
			fmt.Fprintf(t, "objects before\t%d\n", countObjects(b.GC))
			for i := 0; i < collections; i++ {
				b.GC.Collect()
			}
			fmt.Fprintf(t, "objects after\t%d\n", countObjects(b.GC))
			fmt.Fprintf(t, "live bytes\t%d\n", b.GC.LiveSize())
			fmt.Fprintf(t, "reclaimed bytes\t%d\n", b.GC.Reclaimed())
			fmt.Fprintf(t, "allocated bytes\t%d\n", b.GC.TotalAllocated())
			return t.Flush()
		},
	}
	cmd.Flags().StringVar(&algo, "algo", "mark-compact", "collector to run: mark-compact or copying")
	cmd.Flags().Uint32Var(&spaceSize, "space-size", 64*1024, "bytes reserved for the dynamic heap (or each semi-space, for copying)")
	cmd.Flags().IntVar(&collections, "collections", 1, "number of collections to run back to back (tests idempotence for >1)")
	return cmd
}

func countObjects(c *gc.Context) int {
	n := 0
	diag.ForEachObject(c, func(diag.Object) bool {
		n++
		return true
	})
	return n
}
