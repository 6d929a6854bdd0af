package state

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

var (
	ErrGraphLoad   = errors.New("malformed topology line")
	ErrSparseGraph = errors.New("vertex ids are not dense")
)

// LineError describes a topology line that was skipped.
type LineError struct {
	Line int
	Text string
	Err  error
}

func (e *LineError) Error() string {
	return fmt.Sprintf("line %d %q: %v", e.Line, e.Text, e.Err)
}

func (e *LineError) Unwrap() error {
	return e.Err
}

func (e *LineError) Is(target error) bool {
	return target == ErrGraphLoad
}

type edge struct {
	src, dst VertexId
	rel      Relationship
	line     int
	text     string
}

func parseEdge(line string) (edge, error) {
	fields := strings.FieldsFunc(line, func(r rune) bool {
		return r == ' ' || r == '\t' || r == '-' || r == ';'
	})
	if len(fields) != 3 {
		return edge{}, fmt.Errorf("expected `src - dst ; rel`, got %d fields", len(fields))
	}
	var nums [3]int64
	for i, f := range fields {
		n, err := strconv.ParseInt(f, 10, 32)
		if err != nil {
			return edge{}, err
		}
		if n < 0 {
			return edge{}, fmt.Errorf("negative value %d", n)
		}
		if i < 2 && n >= MaxVertices {
			return edge{}, fmt.Errorf("vertex id %d exceeds %d", n, MaxVertices-1)
		}
		nums[i] = n
	}
	if nums[2] > int64(Provider) {
		return edge{}, fmt.Errorf("unknown relationship code %d", nums[2])
	}
	return edge{src: VertexId(nums[0]), dst: VertexId(nums[1]), rel: Relationship(nums[2])}, nil
}

// ParseGraph reads an edge list of `src - dst ; rel` lines, where rel is dst's role from src's point of view.
// Malformed lines are skipped and recorded in Graph.Skipped. Only read errors are returned.
func ParseGraph(r io.Reader) (*Graph, error) {
	sc := bufio.NewScanner(r)
	edges := make([]edge, 0)
	skipped := make([]error, 0)
	size := 0
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		e, err := parseEdge(line)
		if err != nil {
			skipped = append(skipped, &LineError{lineNo, line, err})
			continue
		}
		e.line, e.text = lineNo, line
		size = max(size, int(e.src)+1, int(e.dst)+1)
		edges = append(edges, e)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	// each edge names at most two new vertices
	if size > 2*len(edges)+MaxIdGap {
		return nil, fmt.Errorf("%w: highest id %d with %d edges", ErrSparseGraph, size-1, len(edges))
	}

	g := NewGraph(size)
	for _, e := range edges {
		if err := g.Connect(e.src, e.dst, e.rel); err != nil {
			skipped = append(skipped, &LineError{e.line, e.text, err})
		}
	}
	g.Skipped = skipped
	if err := g.AssignPreferences(); err != nil {
		return nil, err
	}
	return g, nil
}

func LoadGraph(path string) (*Graph, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open graph: %w", err)
	}
	defer f.Close()
	return ParseGraph(f)
}
