// Package dataframe is the typed columnar result table every backend
// driver decodes rows into and every formatter renders from. Columns
// are strongly typed; nullable variants carry a parallel validity mask
// rather than a pointer slice, so bulk operations (sort, stringify)
// don't pay an allocation per cell.
package dataframe

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/tesseract-olap/tesseract/internal/util"
)

// Kind tags a Column's concrete element type.
type Kind int

const (
	KindInt8 Kind = iota
	KindInt16
	KindInt32
	KindInt64
	KindUint8
	KindUint16
	KindUint32
	KindUint64
	KindFloat32
	KindFloat64
	KindText
	KindNullableInt64
	KindNullableFloat64
	KindNullableText
)

// Column is one named column of a DataFrame. Exactly one of the typed
// slices is populated, selected by Kind; Valid is only meaningful (and
// only allocated) for nullable kinds.
type Column struct {
	Name  string
	Kind  Kind
	Ints  []int64
	UInts []uint64
	F32s  []float32
	F64s  []float64
	Texts []string
	Valid []bool // parity with Ints/F64s/Texts for nullable kinds
}

// NewColumn returns an empty column of the given kind with capacity
// hinted by n.
func NewColumn(name string, kind Kind, n int) *Column {
	c := &Column{Name: name, Kind: kind}
	switch kind {
	case KindInt8, KindInt16, KindInt32, KindInt64, KindNullableInt64:
		c.Ints = make([]int64, 0, n)
	case KindUint8, KindUint16, KindUint32, KindUint64:
		c.UInts = make([]uint64, 0, n)
	case KindFloat32:
		c.F32s = make([]float32, 0, n)
	case KindFloat64, KindNullableFloat64:
		c.F64s = make([]float64, 0, n)
	case KindText, KindNullableText:
		c.Texts = make([]string, 0, n)
	}
	if kind == KindNullableInt64 || kind == KindNullableFloat64 || kind == KindNullableText {
		c.Valid = make([]bool, 0, n)
	}
	return c
}

func (c *Column) IsNullable() bool {
	return c.Kind == KindNullableInt64 || c.Kind == KindNullableFloat64 || c.Kind == KindNullableText
}

// Len returns the number of rows this column holds.
func (c *Column) Len() int {
	switch c.Kind {
	case KindInt8, KindInt16, KindInt32, KindInt64, KindNullableInt64:
		return len(c.Ints)
	case KindUint8, KindUint16, KindUint32, KindUint64:
		return len(c.UInts)
	case KindFloat32:
		return len(c.F32s)
	case KindFloat64, KindNullableFloat64:
		return len(c.F64s)
	default:
		return len(c.Texts)
	}
}

// DataFrame is a set of same-length named columns.
type DataFrame struct {
	Columns []*Column
}

func New(columns ...*Column) *DataFrame {
	return &DataFrame{Columns: columns}
}

// Len returns the row count, or 0 for a DataFrame with no columns.
func (df *DataFrame) Len() int {
	if len(df.Columns) == 0 {
		return 0
	}
	return df.Columns[0].Len()
}

func (df *DataFrame) ColumnByName(name string) *Column {
	for _, c := range df.Columns {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func (df *DataFrame) Header() []string {
	names := make([]string, len(df.Columns))
	for i, c := range df.Columns {
		names[i] = c.Name
	}
	return names
}

// SortColumn sorts every column of the DataFrame by the ordering of the
// named column's values, ascending. Floats (nullable or not) cannot be
// sort keys: NaN/Inf ordering is underspecified and the property the
// spec relies on (idempotent re-run) would break silently.
func (df *DataFrame) SortColumn(name string) error {
	key := df.ColumnByName(name)
	if key == nil {
		return util.NewFormatterError(fmt.Sprintf("sort column %q not found", name), nil)
	}
	if key.Kind == KindFloat32 || key.Kind == KindFloat64 || key.Kind == KindNullableFloat64 {
		return util.NewFormatterError(fmt.Sprintf("column %q is unsortable (float)", name), nil)
	}

	n := df.Len()
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}

	less := lessFunc(key)
	sort.SliceStable(idx, func(a, b int) bool { return less(idx[a], idx[b]) })

	for _, c := range df.Columns {
		permute(c, idx)
	}
	return nil
}

func lessFunc(c *Column) func(i, j int) bool {
	switch c.Kind {
	case KindInt8, KindInt16, KindInt32, KindInt64, KindNullableInt64:
		return func(i, j int) bool { return c.Ints[i] < c.Ints[j] }
	case KindUint8, KindUint16, KindUint32, KindUint64:
		return func(i, j int) bool { return c.UInts[i] < c.UInts[j] }
	default:
		return func(i, j int) bool { return c.Texts[i] < c.Texts[j] }
	}
}

func permute(c *Column, idx []int) {
	switch c.Kind {
	case KindInt8, KindInt16, KindInt32, KindInt64, KindNullableInt64:
		out := make([]int64, len(idx))
		for i, j := range idx {
			out[i] = c.Ints[j]
		}
		c.Ints = out
	case KindUint8, KindUint16, KindUint32, KindUint64:
		out := make([]uint64, len(idx))
		for i, j := range idx {
			out[i] = c.UInts[j]
		}
		c.UInts = out
	case KindFloat32:
		out := make([]float32, len(idx))
		for i, j := range idx {
			out[i] = c.F32s[j]
		}
		c.F32s = out
	case KindFloat64, KindNullableFloat64:
		out := make([]float64, len(idx))
		for i, j := range idx {
			out[i] = c.F64s[j]
		}
		c.F64s = out
	default:
		out := make([]string, len(idx))
		for i, j := range idx {
			out[i] = c.Texts[j]
		}
		c.Texts = out
	}
	if c.Valid != nil {
		out := make([]bool, len(idx))
		for i, j := range idx {
			out[i] = c.Valid[j]
		}
		c.Valid = out
	}
}

// Stringify renders every cell to its textual form in one pass, used by
// the logic-layer merge step when columns from different sibling
// queries must be reconciled to a common type. Null cells render as
// empty string.
func (df *DataFrame) Stringify() [][]string {
	n := df.Len()
	out := make([][]string, n)
	for i := range out {
		out[i] = make([]string, len(df.Columns))
	}
	for ci, c := range df.Columns {
		for ri := 0; ri < n; ri++ {
			out[ri][ci] = stringifyCell(c, ri)
		}
	}
	return out
}

func stringifyCell(c *Column, i int) string {
	if c.Valid != nil && !c.Valid[i] {
		return ""
	}
	switch c.Kind {
	case KindInt8, KindInt16, KindInt32, KindInt64, KindNullableInt64:
		return strconv.FormatInt(c.Ints[i], 10)
	case KindUint8, KindUint16, KindUint32, KindUint64:
		return strconv.FormatUint(c.UInts[i], 10)
	case KindFloat32:
		return strconv.FormatFloat(float64(c.F32s[i]), 'g', -1, 32)
	case KindFloat64, KindNullableFloat64:
		return strconv.FormatFloat(c.F64s[i], 'g', -1, 64)
	default:
		return c.Texts[i]
	}
}

// Remove deletes row i from every column, in O(n).
func (df *DataFrame) Remove(i int) {
	for _, c := range df.Columns {
		removeAt(c, i)
	}
}

func removeAt(c *Column, i int) {
	switch c.Kind {
	case KindInt8, KindInt16, KindInt32, KindInt64, KindNullableInt64:
		c.Ints = append(c.Ints[:i], c.Ints[i+1:]...)
	case KindUint8, KindUint16, KindUint32, KindUint64:
		c.UInts = append(c.UInts[:i], c.UInts[i+1:]...)
	case KindFloat32:
		c.F32s = append(c.F32s[:i], c.F32s[i+1:]...)
	case KindFloat64, KindNullableFloat64:
		c.F64s = append(c.F64s[:i], c.F64s[i+1:]...)
	default:
		c.Texts = append(c.Texts[:i], c.Texts[i+1:]...)
	}
	if c.Valid != nil {
		c.Valid = append(c.Valid[:i], c.Valid[i+1:]...)
	}
}

// Datum is a single cell value handed to a Filter predicate.
type Datum struct {
	Null bool
	Int  int64
	F64  float64
	Text string
}

// Filter keeps only the rows for which pred, given a name->Datum view of
// the row, returns true. O(n) single pass with a compacting copy.
func (df *DataFrame) Filter(pred func(row map[string]Datum) bool) {
	n := df.Len()
	keep := make([]bool, n)
	row := make(map[string]Datum, len(df.Columns))
	for i := 0; i < n; i++ {
		for _, c := range df.Columns {
			row[c.Name] = cellDatum(c, i)
		}
		keep[i] = pred(row)
	}

	for _, c := range df.Columns {
		compact(c, keep)
	}
}

func cellDatum(c *Column, i int) Datum {
	if c.Valid != nil && !c.Valid[i] {
		return Datum{Null: true}
	}
	switch c.Kind {
	case KindInt8, KindInt16, KindInt32, KindInt64, KindNullableInt64:
		return Datum{Int: c.Ints[i]}
	case KindUint8, KindUint16, KindUint32, KindUint64:
		return Datum{Int: int64(c.UInts[i])}
	case KindFloat32:
		return Datum{F64: float64(c.F32s[i])}
	case KindFloat64, KindNullableFloat64:
		return Datum{F64: c.F64s[i]}
	default:
		return Datum{Text: c.Texts[i]}
	}
}

func compact(c *Column, keep []bool) {
	switch c.Kind {
	case KindInt8, KindInt16, KindInt32, KindInt64, KindNullableInt64:
		out := c.Ints[:0]
		for i, k := range keep {
			if k {
				out = append(out, c.Ints[i])
			}
		}
		c.Ints = out
	case KindUint8, KindUint16, KindUint32, KindUint64:
		out := c.UInts[:0]
		for i, k := range keep {
			if k {
				out = append(out, c.UInts[i])
			}
		}
		c.UInts = out
	case KindFloat32:
		out := c.F32s[:0]
		for i, k := range keep {
			if k {
				out = append(out, c.F32s[i])
			}
		}
		c.F32s = out
	case KindFloat64, KindNullableFloat64:
		out := c.F64s[:0]
		for i, k := range keep {
			if k {
				out = append(out, c.F64s[i])
			}
		}
		c.F64s = out
	default:
		out := c.Texts[:0]
		for i, k := range keep {
			if k {
				out = append(out, c.Texts[i])
			}
		}
		c.Texts = out
	}
	if c.Valid != nil {
		out := c.Valid[:0]
		for i, k := range keep {
			if k {
				out = append(out, c.Valid[i])
			}
		}
		c.Valid = out
	}
}
