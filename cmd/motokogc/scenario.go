package main

import (
	"fmt"

	"github.com/dfinity-labs/motoko-gc/internal/gc"
	"github.com/dfinity-labs/motoko-gc/internal/gctest"
)

// scenarios are small canned object graphs the run/stats/objgraph/shell
// subcommands can drive a collection over, since this tool has no core
// file to load -- the heap is built in memory instead of parsed off disk.
// The "seed" scenario is the literal graph from the GC core's own test
// suite (object 1 is unreachable garbage; object 3 self-references).
var scenarios = map[string]gctest.Heap{
	"seed": {
		Refs: map[gctest.ObjectIdx][]gctest.ObjectIdx{
			0: {0, 2},
			1: {},
			2: {0},
			3: {3},
		},
		Roots:        []gctest.ObjectIdx{0, 2, 3},
		ClosureTable: []gctest.ObjectIdx{0},
	},
	"cycle": {
		Refs: map[gctest.ObjectIdx][]gctest.ObjectIdx{
			0: {1},
			1: {0},
			2: {},
		},
		Roots: []gctest.ObjectIdx{0},
	},
	"chain": {
		Refs: map[gctest.ObjectIdx][]gctest.ObjectIdx{
			0: {1}, 1: {2}, 2: {3}, 3: {4}, 4: {},
			5: {}, // garbage, unreachable from roots or the closure table
		},
		Roots:        []gctest.ObjectIdx{0},
		ClosureTable: []gctest.ObjectIdx{4},
	},
}

func scenarioNames() []string {
	names := make([]string, 0, len(scenarios))
	for name := range scenarios {
		names = append(names, name)
	}
	return names
}

func buildScenario(name string, algo gc.Algorithm, spaceSize uint32) (*gctest.Built, error) {
	h, ok := scenarios[name]
	if !ok {
		return nil, fmt.Errorf("unknown scenario %q (known: %v)", name, scenarioNames())
	}
	return gctest.Build(algo, spaceSize, h)
}

func parseAlgorithm(name string) (gc.Algorithm, error) {
	switch name {
	case "mark-compact", "":
		return gc.MarkCompact, nil
	case "copying":
		return gc.Copying, nil
	default:
		return 0, fmt.Errorf("unknown algorithm %q (want mark-compact or copying)", name)
	}
}
