package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/dfinity-labs/motoko-gc/internal/gc/diag"
	"github.com/dfinity-labs/motoko-gc/internal/heap"
)

func newShellCmd() *cobra.Command {
	var algo string
	var spaceSize uint32

	cmd := &cobra.Command{
		Use:   "shell <scenario>",
		Short: "Start an interactive heap inspector REPL over a scenario",
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

			rl, err := readline.New("motokogc> ")
			if err != nil {
				return fmt.Errorf("shell: %w", err)
			}
			defer rl.Close()

			fmt.Fprintf(rl.Stderr(), "scenario %q loaded under %s; type 'help' for commands\n", args[0], a)
			for {
				line, err := rl.Readline()
				if err == readline.ErrInterrupt {
					continue
				}
				if err == io.EOF {
					return nil
				}
				if err != nil {
					return err
				}
				fields := strings.Fields(line)
				if len(fields) == 0 {
					continue
				}
				switch fields[0] {
				case "help":
					fmt.Fprintln(rl.Stdout(), "commands: list, roots, closures, collect, recall <handle>, quit")
				case "list":
					diag.ForEachObject(b.GC, func(o diag.Object) bool {
						fmt.Fprintf(rl.Stdout(), "%#x  %-8s %d words\n", o.Addr, o.Tag, o.Size)
						return true
					})
				case "roots":
					diag.ForEachRootPtr(b.GC, func(r diag.Root, target heap.Address) bool {
						fmt.Fprintf(rl.Stdout(), "root[%d] -> %#x\n", r.Index, target)
						return true
					})
				case "closures":
					fmt.Fprintf(rl.Stdout(), "count=%d loc=%#x\n", b.GC.ClosureCount(), b.GC.ClosureTableLoc())
				case "recall":
					if len(fields) != 2 {
						fmt.Fprintln(rl.Stderr(), "usage: recall <handle>")
						continue
					}
					h, err := strconv.ParseUint(fields[1], 10, 32)
					if err != nil {
						fmt.Fprintf(rl.Stderr(), "bad handle %q: %v\n", fields[1], err)
						continue
					}
					p := b.GC.RecallClosure(uint32(h))
					fmt.Fprintf(rl.Stdout(), "handle %d -> %#x\n", h, heap.Unskew(p))
				case "collect":
					liveBefore := countObjects(b.GC)
					b.GC.Collect()
					fmt.Fprintf(rl.Stdout(), "collected: %d -> %d live objects, %d bytes reclaimed\n",
						liveBefore, countObjects(b.GC), b.GC.Reclaimed())
				case "quit", "exit":
					return nil
				default:
					fmt.Fprintf(rl.Stderr(), "unknown command %q; type 'help'\n", fields[0])
				}
			}
		},
	}
	cmd.Flags().StringVar(&algo, "algo", "mark-compact", "collector to run: mark-compact or copying")
	cmd.Flags().Uint32Var(&spaceSize, "space-size", 64*1024, "bytes reserved for the dynamic heap (or each semi-space, for copying)")
	return cmd
}
