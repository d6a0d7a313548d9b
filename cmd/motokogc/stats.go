package main

import (
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/dfinity-labs/motoko-gc/internal/gc/diag"
)

func newStatsCmd() *cobra.Command {
	var algo string
	var spaceSize uint32

	cmd := &cobra.Command{
		Use:   "stats <scenario>",
		Short: "Print a post-collection histogram of live objects by tag",
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
			b.GC.Collect()

			type bucket struct {
				tag   string
				count int
				bytes uint64
			}
			counts := map[string]*bucket{}
			var order []string
			diag.ForEachObject(b.GC, func(o diag.Object) bool {
				key := o.Tag.String()
				bk, ok := counts[key]
				if !ok {
					bk = &bucket{tag: key}
					counts[key] = bk
					order = append(order, key)
				}
				bk.count++
				bk.bytes += uint64(o.Size) * 4
				return true
			})
			sort.Slice(order, func(i, j int) bool { return order[i] < order[j] })

			t := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', tabwriter.AlignRight)
			fmt.Fprintf(t, "tag\tcount\tbytes\t\n")
			for _, key := range order {
				bk := counts[key]
				fmt.Fprintf(t, "%s\t%d\t%d\t\n", bk.tag, bk.count, bk.bytes)
			}
			fmt.Fprintf(t, "\t\t\t\n")
			fmt.Fprintf(t, "live\t\t%d\t\n", b.GC.LiveSize())
			fmt.Fprintf(t, "reclaimed\t\t%d\t\n", b.GC.Reclaimed())
			fmt.Fprintf(t, "max live\t\t%d\t\n", b.GC.MaxLiveSize())
			return t.Flush()
		},
	}
	cmd.Flags().StringVar(&algo, "algo", "mark-compact", "collector to run: mark-compact or copying")
	cmd.Flags().Uint32Var(&spaceSize, "space-size", 64*1024, "bytes reserved for the dynamic heap (or each semi-space, for copying)")
	return cmd
}
