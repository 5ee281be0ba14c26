package main

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// OpKind is a single trace operation
type OpKind byte

const (
	OpAlloc   OpKind = 'a'
	OpRealloc OpKind = 'r'
	OpFree    OpKind = 'f'
)

func (k OpKind) String() string {
	switch k {
	case OpAlloc:
		return "alloc"
	case OpRealloc:
		return "realloc"
	case OpFree:
		return "free"
	}
	return "unknown"
}

type Op struct {
	Kind OpKind
	ID   int
	Size int
}

// Trace is an allocation trace in the malloc-lab format: four header values (suggested heap
// size, number of ids, number of ops, weight) followed by one operation per line
type Trace struct {
	Name              string
	SuggestedHeapSize int
	NumIDs            int
	Weight            int
	Ops               []Op
}

// ParseTrace reads a trace. Blank lines and lines starting with '#' are ignored.
func ParseTrace(name string, r io.Reader) (*Trace, error) {
	trace := &Trace{Name: name}
	var header []int
	numOps := 0

	scanner := bufio.NewScanner(r)
	lineNumber := 0
	for scanner.Scan() {
		lineNumber++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		if len(header) < 4 {
			value, err := strconv.Atoi(line)
			if err != nil {
				return nil, errors.Errorf("%s:%d: invalid header value %q", name, lineNumber, line)
			}
			if value < 0 {
				return nil, errors.Errorf("%s:%d: header value %d is negative", name, lineNumber, value)
			}
			header = append(header, value)
			if len(header) == 4 {
				trace.SuggestedHeapSize = header[0]
				trace.NumIDs = header[1]
				numOps = header[2]
				trace.Weight = header[3]
			}
			continue
		}

		op, err := parseOp(line, trace.NumIDs)
		if err != nil {
			return nil, errors.Wrapf(err, "%s:%d", name, lineNumber)
		}
		trace.Ops = append(trace.Ops, op)
	}

	if err := scanner.Err(); err != nil {
		return nil, errors.Wrapf(err, "failed to read %s", name)
	}

	if len(header) < 4 {
		return nil, errors.Errorf("%s: incomplete header", name)
	}

	if len(trace.Ops) != numOps {
		return nil, errors.Errorf("%s: header declares %d ops but the trace contains %d", name, numOps, len(trace.Ops))
	}

	return trace, nil
}

func parseOp(line string, numIDs int) (Op, error) {
	fields := strings.Fields(line)
	if len(fields[0]) != 1 {
		return Op{}, errors.Errorf("unknown operation %q", fields[0])
	}

	op := Op{Kind: OpKind(fields[0][0])}
	expectedFields := 3
	switch op.Kind {
	case OpAlloc, OpRealloc:
	case OpFree:
		expectedFields = 2
	default:
		return Op{}, errors.Errorf("unknown operation %q", fields[0])
	}

	if len(fields) != expectedFields {
		return Op{}, errors.Errorf("%s expects %d fields but found %d", op.Kind, expectedFields, len(fields))
	}

	var err error
	op.ID, err = strconv.Atoi(fields[1])
	if err != nil || op.ID < 0 || op.ID >= numIDs {
		return Op{}, errors.Errorf("invalid id %q", fields[1])
	}

	if expectedFields == 3 {
		op.Size, err = strconv.Atoi(fields[2])
		if err != nil || op.Size < 0 {
			return Op{}, errors.Errorf("invalid size %q", fields[2])
		}
	}

	return op, nil
}

// Write writes the trace in the format read by ParseTrace
func (t *Trace) Write(w io.Writer) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "%d\n%d\n%d\n%d\n", t.SuggestedHeapSize, t.NumIDs, len(t.Ops), t.Weight)

	for _, op := range t.Ops {
		if op.Kind == OpFree {
			fmt.Fprintf(bw, "%c %d\n", op.Kind, op.ID)
		} else {
			fmt.Fprintf(bw, "%c %d %d\n", op.Kind, op.ID, op.Size)
		}
	}

	return bw.Flush()
}
