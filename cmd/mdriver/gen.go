package main

import (
	"io"
	"math/rand"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var (
	genIDs     int
	genOps     int
	genMaxSize int
	genSeed    int64
	genOutput  string
)

func init() {
	cmd := newGenCmd()
	cmd.Flags().IntVar(&genIDs, "ids", 100, "Maximum number of allocations live at once")
	cmd.Flags().IntVar(&genOps, "ops", 1000, "Number of random operations before the final frees")
	cmd.Flags().IntVar(&genMaxSize, "max-size", 4096, "Largest payload requested")
	cmd.Flags().Int64Var(&genSeed, "seed", 1, "Random seed")
	cmd.Flags().StringVarP(&genOutput, "output", "o", "", "Write the trace to a file instead of stdout")
	rootCmd.AddCommand(cmd)
}

func newGenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gen",
		Short: "Generate a random trace",
		Long: `The gen command writes a random trace of allocations, reallocations and
frees. Every allocation is freed by the end of the trace.

Example:
  mdriver gen --ops 5000 --seed 7 -o random.rep`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGen()
		},
	}
	return cmd
}

func runGen() error {
	if genIDs <= 0 || genOps < 0 || genMaxSize <= 0 {
		return errors.New("--ids and --max-size must be positive and --ops must not be negative")
	}

	trace := GenerateTrace(rand.New(rand.NewSource(genSeed)), genIDs, genOps, genMaxSize)

	var out io.Writer = os.Stdout
	if genOutput != "" {
		file, err := os.Create(genOutput)
		if err != nil {
			return errors.Wrap(err, "failed to create output file")
		}
		defer file.Close()
		out = file
	}

	if err := trace.Write(out); err != nil {
		return errors.Wrap(err, "failed to write trace")
	}

	printVerbose("Generated %d ops over %d ids\n", len(trace.Ops), trace.NumIDs)
	return nil
}

// GenerateTrace builds a valid random trace: ids are only resized or freed while live, and every
// id still live after ops operations is freed at the end
func GenerateTrace(rng *rand.Rand, numIDs, ops, maxSize int) *Trace {
	trace := &Trace{
		Name:   "generated",
		NumIDs: numIDs,
		Weight: 1,
	}

	sizes := make([]int, numIDs)
	live := make([]bool, numIDs)
	var liveIDs, freeIDs []int
	for id := numIDs - 1; id >= 0; id-- {
		freeIDs = append(freeIDs, id)
	}

	peak, payload := 0, 0
	removeLive := func(index int) int {
		id := liveIDs[index]
		liveIDs[index] = liveIDs[len(liveIDs)-1]
		liveIDs = liveIDs[:len(liveIDs)-1]
		return id
	}

	for i := 0; i < ops; i++ {
		roll := rng.Intn(10)
		switch {
		case len(liveIDs) == 0 || (roll < 5 && len(freeIDs) > 0):
			id := freeIDs[len(freeIDs)-1]
			freeIDs = freeIDs[:len(freeIDs)-1]

			size := 1 + rng.Intn(maxSize)
			trace.Ops = append(trace.Ops, Op{Kind: OpAlloc, ID: id, Size: size})
			sizes[id] = size
			live[id] = true
			liveIDs = append(liveIDs, id)
			payload += size

		case roll < 7:
			id := liveIDs[rng.Intn(len(liveIDs))]
			size := 1 + rng.Intn(maxSize)
			trace.Ops = append(trace.Ops, Op{Kind: OpRealloc, ID: id, Size: size})
			payload += size - sizes[id]
			sizes[id] = size

		default:
			id := removeLive(rng.Intn(len(liveIDs)))
			trace.Ops = append(trace.Ops, Op{Kind: OpFree, ID: id})
			payload -= sizes[id]
			live[id] = false
			freeIDs = append(freeIDs, id)
		}

		peak = max(peak, payload)
	}

	for id := range live {
		if live[id] {
			trace.Ops = append(trace.Ops, Op{Kind: OpFree, ID: id})
		}
	}

	trace.SuggestedHeapSize = peak
	return trace
}
