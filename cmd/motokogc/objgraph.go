package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dfinity-labs/motoko-gc/internal/gc/diag"
	"github.com/dfinity-labs/motoko-gc/internal/heap"
)

func newObjgraphCmd() *cobra.Command {
	var algo string
	var spaceSize uint32
	var out string
	var collect bool

	cmd := &cobra.Command{
		Use:   "objgraph <scenario>",
		Short: "Dump the scenario's live object graph to a .dot file",
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
			if collect {
				b.GC.Collect()
			}

			w, err := os.Create(out)
			if err != nil {
				return err
			}
			defer w.Close()

			fmt.Fprintf(w, "digraph {\n")
			diag.ForEachRootPtr(b.GC, func(r diag.Root, target heap.Address) bool {
				fmt.Fprintf(w, "r%d [label=\"root %d\",shape=hexagon]\n", r.Index, r.Index)
				fmt.Fprintf(w, "r%d -> o%x\n", r.Index, target)
				return true
			})
			diag.ForEachObject(b.GC, func(o diag.Object) bool {
				fmt.Fprintf(w, "o%x [label=\"%s\\n%d w\"]\n", o.Addr, o.Tag, o.Size)
				diag.ForEachPtr(b.GC.Memory(), o.Addr, func(fieldAddr, target heap.Address) bool {
					fmt.Fprintf(w, "o%x -> o%x\n", o.Addr, target)
					return true
				})
				return true
			})
			fmt.Fprintf(w, "}\n")

			fmt.Fprintf(os.Stderr, "wrote object graph to %q\n", out)
			return nil
		},
	}
	cmd.Flags().StringVar(&algo, "algo", "mark-compact", "collector to run: mark-compact or copying")
	cmd.Flags().Uint32Var(&spaceSize, "space-size", 64*1024, "bytes reserved for the dynamic heap (or each semi-space, for copying)")
	cmd.Flags().StringVar(&out, "out", "tmp.dot", "output .dot file path")
	cmd.Flags().BoolVar(&collect, "collect", false, "run a collection before dumping the graph")
	return cmd
}
