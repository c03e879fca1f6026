package prepfan

// frame.go implements the rectangular in-memory dataset the treatment core consumes.

import (
	"fmt"
	"hash/fnv"
	"math"
	"sort"
)

// Slicer is an optional function that returns true if the row is to be used in calculations.
type Slicer func(row int) bool

// SlicerAnd creates a Slicer that is s1 && s2
func SlicerAnd(s1, s2 Slicer) Slicer {
	return func(row int) bool {
		return s1(row) && s2(row)
	}
}

// SlicerOr creates a Slicer that is s1 || s2
func SlicerOr(s1, s2 Slicer) Slicer {
	return func(row int) bool {
		return s1(row) || s2(row)
	}
}

// IndexSlicer creates a Slicer that is true on the given rows
func IndexSlicer(rows []int) Slicer {
	in := make(map[int]bool, len(rows))
	for _, r := range rows {
		in[r] = true
	}

	return func(row int) bool { return in[row] }
}

// ColRole is the type of data a column holds
type ColRole int

const (
	// ColNumeric - real-valued with NaN/Inf as the missing sentinel
	ColNumeric ColRole = 0 + iota
	// ColCategorical - string labels with an explicit missing mask
	ColCategorical
)

func (r ColRole) String() string {
	switch r {
	case ColNumeric:
		return "numeric"
	case ColCategorical:
		return "categorical"
	}

	return "unknown"
}

// MissingLevel is the level token that stands in for a missing categorical cell.
const MissingLevel = "missing"

// Column is a single named, typed vector.  Numeric columns store data in X with NaN (or Inf)
// marking bad cells.  Categorical columns store labels in Lvl with Miss marking missing cells,
// so the empty string remains a legal level.
type Column struct {
	Name string
	Role ColRole
	X    []float64
	Lvl  []string
	Miss []bool
}

// Len returns the number of rows
func (c *Column) Len() int {
	if c.Role == ColNumeric {
		return len(c.X)
	}

	return len(c.Lvl)
}

// IsMissing returns true if the cell at row is missing/NaN/infinite
func (c *Column) IsMissing(row int) bool {
	switch c.Role {
	case ColNumeric:
		return math.IsNaN(c.X[row]) || math.IsInf(c.X[row], 0)
	case ColCategorical:
		return c.Miss != nil && c.Miss[row]
	}

	return false
}

// Level returns the label at row, with missing cells mapped to MissingLevel
func (c *Column) Level(row int) string {
	if c.IsMissing(row) {
		return MissingLevel
	}

	return c.Lvl[row]
}

// HasMissing returns true if any cell of the column is missing
func (c *Column) HasMissing() bool {
	for row := 0; row < c.Len(); row++ {
		if c.IsMissing(row) {
			return true
		}
	}

	return false
}

// Subset returns a new Column restricted to rows
func (c *Column) Subset(rows []int) *Column {
	out := &Column{Name: c.Name, Role: c.Role}

	switch c.Role {
	case ColNumeric:
		out.X = make([]float64, len(rows))
		for ind, r := range rows {
			out.X[ind] = c.X[r]
		}
	case ColCategorical:
		out.Lvl = make([]string, len(rows))
		out.Miss = make([]bool, len(rows))
		for ind, r := range rows {
			out.Lvl[ind] = c.Lvl[r]
			if c.Miss != nil {
				out.Miss[ind] = c.Miss[r]
			}
		}
	}

	return out
}

// ByCounts tallies the levels of a categorical column, missing cells counted under MissingLevel.
// Rows where sl is false are skipped.
func (c *Column) ByCounts(sl Slicer) map[string]int {
	counts := make(map[string]int)

	for row := 0; row < c.Len(); row++ {
		if sl != nil && !sl(row) {
			continue
		}

		counts[c.Level(row)]++
	}

	return counts
}

// SortedLevels returns the keys of counts in lexical order
func SortedLevels(counts map[string]int) []string {
	lvls := make([]string, 0, len(counts))
	for l := range counts {
		lvls = append(lvls, l)
	}

	sort.Strings(lvls)

	return lvls
}

// Finite returns the finite values of a numeric column, restricted to sl
func (c *Column) Finite(sl Slicer) []float64 {
	x := make([]float64, 0, c.Len())

	for row := 0; row < c.Len(); row++ {
		if sl != nil && !sl(row) {
			continue
		}

		if !c.IsMissing(row) {
			x = append(x, c.X[row])
		}
	}

	return x
}

// Frame is an ordered collection of equal-length columns.  Frames are treated as immutable:
// the Append methods return a new Frame that shares the existing column storage.
type Frame struct {
	cols []*Column
}

// NewFrame creates an empty Frame
func NewFrame() *Frame {
	return &Frame{cols: make([]*Column, 0)}
}

// check verifies name is new and the column length agrees with the frame
func (f *Frame) check(name string, n int) error {
	if f.Get(name) != nil {
		return Wrapper(ErrFrame, fmt.Sprintf("column %s exists already", name))
	}

	if len(f.cols) > 0 && n != f.Rows() {
		return Wrapper(ErrFrame, fmt.Sprintf("column %s has %d rows, frame has %d", name, n, f.Rows()))
	}

	return nil
}

// AppendNum appends a numeric column
func (f *Frame) AppendNum(name string, x []float64) (*Frame, error) {
	if e := f.check(name, len(x)); e != nil {
		return nil, e
	}

	c := &Column{Name: name, Role: ColNumeric, X: x}

	return &Frame{cols: append(append(make([]*Column, 0, len(f.cols)+1), f.cols...), c)}, nil
}

// AppendCat appends a categorical column.  miss may be nil if no cell is missing.
func (f *Frame) AppendCat(name string, lvl []string, miss []bool) (*Frame, error) {
	if e := f.check(name, len(lvl)); e != nil {
		return nil, e
	}

	if miss != nil && len(miss) != len(lvl) {
		return nil, Wrapper(ErrFrame, fmt.Sprintf("column %s: miss mask has %d rows, labels have %d", name, len(miss), len(lvl)))
	}

	c := &Column{Name: name, Role: ColCategorical, Lvl: lvl, Miss: miss}

	return &Frame{cols: append(append(make([]*Column, 0, len(f.cols)+1), f.cols...), c)}, nil
}

// Get returns the column of name, nil if absent
func (f *Frame) Get(name string) *Column {
	for _, c := range f.cols {
		if c.Name == name {
			return c
		}
	}

	return nil
}

// Names returns the column names in order
func (f *Frame) Names() []string {
	names := make([]string, len(f.cols))
	for ind, c := range f.cols {
		names[ind] = c.Name
	}

	return names
}

// Rows returns the number of rows
func (f *Frame) Rows() int {
	if len(f.cols) == 0 {
		return 0
	}

	return f.cols[0].Len()
}

// Cols returns the number of columns
func (f *Frame) Cols() int {
	return len(f.cols)
}

// Subset returns a new Frame restricted to rows
func (f *Frame) Subset(rows []int) *Frame {
	cols := make([]*Column, len(f.cols))
	for ind, c := range f.cols {
		cols[ind] = c.Subset(rows)
	}

	return &Frame{cols: cols}
}

// Hash returns a digest of the frame's schema and cell values.  Used to recognize when a
// transform is handed the same frame the plan was fit on.
func (f *Frame) Hash() uint64 {
	h := fnv.New64a()

	for _, c := range f.cols {
		_, _ = h.Write([]byte(c.Name))

		switch c.Role {
		case ColNumeric:
			for _, x := range c.X {
				b := math.Float64bits(x)
				_, _ = h.Write([]byte{byte(b), byte(b >> 8), byte(b >> 16), byte(b >> 24), byte(b >> 32), byte(b >> 40), byte(b >> 48), byte(b >> 56)})
			}
		case ColCategorical:
			for row := 0; row < c.Len(); row++ {
				_, _ = h.Write([]byte(c.Level(row)))
				_, _ = h.Write([]byte{0})
			}
		}
	}

	return h.Sum64()
}
