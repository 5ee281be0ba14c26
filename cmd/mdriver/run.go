package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/vkngwrapper/heapalloc/heap"
)

var (
	runPolicy    string
	runArenaSize int
	runChunkSize int
	runMapped    bool
	runCheck     bool
	runAudit     bool
)

func init() {
	cmd := newRunCmd()
	cmd.Flags().StringVar(&runPolicy, "policy", "first", "Free block search: first or next")
	cmd.Flags().IntVar(&runArenaSize, "arena", 0, "Bytes reserved for each heap (default 20Mb)")
	cmd.Flags().IntVar(&runChunkSize, "chunk", 0, "Minimum bytes requested each time the heap grows (default 4Kb)")
	cmd.Flags().BoolVar(&runMapped, "mapped", false, "Back heaps with reserved virtual memory instead of a Go slice")
	cmd.Flags().BoolVar(&runCheck, "check", false, "Validate the heap after every operation")
	cmd.Flags().BoolVar(&runAudit, "audit", false, "Track live pointers and panic on invalid frees")
	rootCmd.AddCommand(cmd)
}

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <trace>...",
		Short: "Replay one or more traces",
		Long: `The run command replays each trace against a fresh heap and reports the
number of operations, the peak live payload, the final heap size and the
resulting utilization.

Example:
  mdriver run traces/*.rep
  mdriver run --policy next --check traces/binary.rep
  mdriver run --json traces/coalescing.rep`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			options, err := replayOptions()
			if err != nil {
				return err
			}
			return runTraces(args, options)
		},
	}
	return cmd
}

func parsePolicy(name string) (heap.FitPolicy, error) {
	switch name {
	case "first":
		return heap.FitPolicyFirstFit, nil
	case "next":
		return heap.FitPolicyNextFit, nil
	}
	return 0, errors.Errorf("unknown policy %q: expected first or next", name)
}

func replayOptions() (ReplayOptions, error) {
	policy, err := parsePolicy(runPolicy)
	if err != nil {
		return ReplayOptions{}, err
	}

	options := ReplayOptions{
		Heap: heap.CreateOptions{
			FitPolicy: policy,
			ChunkSize: runChunkSize,
		},
		ArenaSize: runArenaSize,
		Mapped:    runMapped,
		Check:     runCheck,
	}
	if runAudit {
		options.Heap.Flags |= heap.CreateAuditAllocations
	}

	return options, nil
}

func loadTrace(path string) (*Trace, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open trace")
	}
	defer file.Close()

	return ParseTrace(filepath.Base(path), file)
}

func runTraces(paths []string, options ReplayOptions) error {
	logger := newLogger()

	var results []Result
	var failures int

	writer := jwriter.NewWriter()
	arr := writer.Array()

	for _, path := range paths {
		printVerbose("Replaying %s with %s\n", path, options.Heap.FitPolicy)

		trace, err := loadTrace(path)
		if err != nil {
			return err
		}

		var obj jwriter.ObjectState
		var inspect func(h *heap.Heap)
		if jsonOut {
			obj = arr.Object()
			inspect = func(h *heap.Heap) {
				h.PrintDetailedMap(obj.Name("Heap"))
			}
		}

		result, err := Replay(logger, trace, options, inspect)
		if err != nil {
			failures++
			printInfo("%s: FAILED: %v\n", trace.Name, err)
		} else {
			results = append(results, result)
		}

		if jsonOut {
			writeResult(&obj, result, err)
			obj.End()
		}
	}

	arr.End()

	if jsonOut {
		if err := writer.Error(); err != nil {
			return errors.Wrap(err, "failed to build json output")
		}
		fmt.Fprintln(os.Stdout, string(writer.Bytes()))
	} else {
		printSummary(results)
	}

	if failures > 0 {
		return errors.Errorf("%d of %d traces failed", failures, len(paths))
	}
	return nil
}

func writeResult(obj *jwriter.ObjectState, result Result, err error) {
	obj.Name("Trace").String(result.Name)
	obj.Name("Valid").Bool(err == nil)
	if err != nil {
		obj.Name("Error").String(err.Error())
	}
	obj.Name("Ops").Int(result.Ops)
	obj.Name("PeakPayload").Int(result.PeakPayload)
	obj.Name("HeapSize").Int(result.HeapSize)
	obj.Name("Extensions").Int(result.Extensions)
	obj.Name("Utilization").Float64(result.Utilization)
}

func printSummary(results []Result) {
	if len(results) == 0 {
		return
	}

	printInfo("%-24s %8s %12s %12s %6s %7s\n", "trace", "ops", "peak", "heap", "grows", "util")

	var totalOps int
	var totalUtilization float64
	for _, result := range results {
		printInfo("%-24s %8d %12d %12d %6d %6.1f%%\n",
			result.Name,
			result.Ops,
			result.PeakPayload,
			result.HeapSize,
			result.Extensions,
			result.Utilization*100,
		)
		totalOps += result.Ops
		totalUtilization += result.Utilization
	}

	printInfo("%-24s %8d %12s %12s %6s %6.1f%%\n", "total", totalOps, "", "", "", totalUtilization/float64(len(results))*100)
}
