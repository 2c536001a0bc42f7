// Package query is the user-level request object: what the HTTP layer
// builds from query-string options before handing off to
// internal/compiler. It names schema entities (dimension/level/measure
// names) rather than resolved columns; internal/queryir carries the
// resolved form.
package query

import "github.com/tesseract-olap/tesseract/internal/names"

// Comparison is the operator of a Constraint.
type Comparison int

const (
	CmpEQ Comparison = iota
	CmpNEQ
	CmpLT
	CmpLTE
	CmpGT
	CmpGTE
)

// Constraint is a `column OP n` test applied by top_where and filters.
type Constraint struct {
	Op Comparison
	N  float64
}

// CalcKind distinguishes a plain measure reference from the reserved
// calculation names usable in sort/top_where/filter expressions.
type CalcKind int

const (
	CalcMeasure CalcKind = iota
	CalcRCA
	CalcGrowth
	CalcRate
)

// MeaOrCalc is a tagged reference to either a named measure or one of
// the reserved calculation result columns.
type MeaOrCalc struct {
	Kind CalcKind
	Name string // measure name, only meaningful when Kind == CalcMeasure
}

type SortDirection int

const (
	SortAsc SortDirection = iota
	SortDesc
)

type TopQuery struct {
	N             uint64
	ByDimension    names.LevelName
	SortExprs     []MeaOrCalc
	Direction     SortDirection
}

type TopWhereQuery struct {
	By         MeaOrCalc
	Constraint Constraint
}

type SortQuery struct {
	Column    MeaOrCalc
	Direction SortDirection
}

type LimitQuery struct {
	Offset *uint64
	N      uint64
}

// FilterOp chains a second constraint onto a filter.
type FilterOp int

const (
	FilterOpNone FilterOp = iota
	FilterOpAnd
	FilterOpOr
)

type FilterQuery struct {
	By          MeaOrCalc
	Constraint  Constraint
	Op          FilterOp
	Constraint2 Constraint // only meaningful when Op != FilterOpNone
}

type RCAQuery struct {
	Drill1  names.LevelName
	Drill2  names.LevelName
	Measure string
}

type GrowthQuery struct {
	TimeDrill names.LevelName
	Measure   string
}

type RateQuery struct {
	LevelName     names.LevelName
	MemberValues  []string
}

type PropertyRef struct {
	Property names.Property
}

type MeasureRef struct {
	Name string
}

// Query is the fully-parsed, schema-name-addressed request the HTTP
// layer builds for the core aggregate endpoint.
type Query struct {
	Cube        string
	Drilldowns  []names.LevelName
	Cuts        []names.Cut
	Measures    []MeasureRef
	Properties  []PropertyRef
	Captions    []PropertyRef

	Parents               bool
	Top                    *TopQuery
	TopWhere               *TopWhereQuery
	Sort                   *SortQuery
	Limit                  *LimitQuery
	Filters                []FilterQuery
	RCA                    *RCAQuery
	Growth                 *GrowthQuery
	Rate                   *RateQuery

	Debug                  bool
	Sparse                 bool
	ExcludeDefaultMembers  bool
}
