// Package queryir is the dialect-neutral intermediate representation the
// compiler produces from a user Query plus a Schema, and that each
// sqlgen backend turns into a concrete SQL string. It carries resolved
// table names and column names instead of dimension/level names, so
// that the generators never need to consult the schema again.
package queryir

import (
	"strings"

	"github.com/tesseract-olap/tesseract/internal/names"
	"github.com/tesseract-olap/tesseract/internal/schema/aggregator"
)

// SortDirection controls the ORDER BY direction for both a query-level
// sort and a top-n sort.
type SortDirection int

const (
	SortAsc SortDirection = iota
	SortDesc
)

// ConstraintOp is the comparison operator of a top_where/filter
// constraint.
type ConstraintOp int

const (
	ConstraintGT ConstraintOp = iota
	ConstraintGTE
	ConstraintLT
	ConstraintLTE
	ConstraintEQ
)

// Constraint is a single `column OP value` condition, used by both
// top_where and filters.
type Constraint struct {
	Op    ConstraintOp
	Value float64
}

func (c ConstraintOp) SQL() string {
	switch c {
	case ConstraintGT:
		return ">"
	case ConstraintGTE:
		return ">="
	case ConstraintLT:
		return "<"
	case ConstraintLTE:
		return "<="
	default:
		return "="
	}
}

// QueryIR is the fully resolved, backend-neutral shape of a single
// aggregate query. A sqlgen.Generator turns this into one SQL statement.
type QueryIR struct {
	Table     TableSQL
	Cuts      []CutSQL
	Drills    []DrilldownSQL
	Measures  []MeasureSQL
	Filters   []FilterSQL
	Top       *TopSQL
	TopWhere  *TopWhereSQL
	Sort      *SortSQL
	Limit     *LimitSQL
	RCA       *RCASQL
	Growth    *GrowthSQL
	Rate      *RateSQL
	Sparse    bool
}

// TableSQL names the fact table a query scans.
type TableSQL struct {
	Name       string
	PrimaryKey string
}

// LevelColumn is a single level's key column, plus its optional
// human-readable label column.
type LevelColumn struct {
	KeyColumn  string
	NameColumn string // empty when the level has no separate label column
}

// DrilldownSQL is a resolved drilldown of one level: its key/label
// columns plus any requested property columns, bound to the dimension
// table it needs to be joined or subqueried against. A drilldown with
// parents resolves into one DrilldownSQL per ancestor level.
type DrilldownSQL struct {
	AliasPostfix    string
	Table           Table
	PrimaryKey      string
	ForeignKey      string
	LevelColumns    []LevelColumn
	PropertyColumns []string
}

// Table identifies a schema-defined source table/view plus its
// containing namespace, mirroring the dialect-specific quoting each
// backend driver applies.
type Table struct {
	Schema string
	Name   string
}

// FullName returns "schema.name", or bare "name" when Schema is unset.
func (t Table) FullName() string {
	if t.Schema == "" {
		return t.Name
	}
	return t.Schema + "." + t.Name
}

// colVec returns one SQL fragment per level: "key, name" when the level
// has a label column, or bare "key" otherwise, plus a trailing fragment
// joining any requested property columns.
func (d DrilldownSQL) colVec() []string {
	cols := make([]string, 0, len(d.LevelColumns)+1)
	for _, l := range d.LevelColumns {
		if l.NameColumn != "" {
			cols = append(cols, l.KeyColumn+", "+l.NameColumn)
		} else {
			cols = append(cols, l.KeyColumn)
		}
	}
	if len(d.PropertyColumns) > 0 {
		cols = append(cols, strings.Join(d.PropertyColumns, ", "))
	}
	return cols
}

// ColString renders the bare column list: "key1, name1, key2".
func (d DrilldownSQL) ColString() string {
	return strings.Join(d.colVec(), ", ")
}

// Columns returns the same fragments as ColString, unjoined, so callers
// building a GROUP BY list across several drilldowns can join them
// together without re-splitting a pre-joined string.
func (d DrilldownSQL) Columns() []string {
	return d.colVec()
}

// ColAliasString renders "key1 as key1_alias, name1 as name1_alias, ...",
// used when projecting a dimension subquery.
func (d DrilldownSQL) ColAliasString() string {
	cols := make([]string, 0, len(d.LevelColumns)+1)
	for _, l := range d.LevelColumns {
		if l.NameColumn != "" {
			cols = append(cols, l.KeyColumn+" as "+l.KeyColumn+"_"+d.AliasPostfix+", "+l.NameColumn+" as "+l.NameColumn+"_"+d.AliasPostfix)
		} else {
			cols = append(cols, l.KeyColumn+" as "+l.KeyColumn+"_"+d.AliasPostfix)
		}
	}
	if len(d.PropertyColumns) > 0 {
		cols = append(cols, strings.Join(d.PropertyColumns, ", "))
	}
	return strings.Join(cols, ", ")
}

// ColAliasOnlyString renders the aliased names without their source
// expressions: "key1_alias, name1_alias", used to select the output of a
// dimension subquery in the outer query.
func (d DrilldownSQL) ColAliasOnlyString() []string {
	cols := make([]string, 0, len(d.LevelColumns)+1)
	for _, l := range d.LevelColumns {
		if l.NameColumn != "" {
			cols = append(cols, l.KeyColumn+"_"+d.AliasPostfix, l.NameColumn+"_"+d.AliasPostfix)
		} else {
			cols = append(cols, l.KeyColumn+"_"+d.AliasPostfix)
		}
	}
	cols = append(cols, d.PropertyColumns...)
	return cols
}

// ColQualString renders the fact-table-qualified column list:
// "fact.key1, fact.name1", used when the drilldown is joined inline
// rather than via a subquery.
func (d DrilldownSQL) ColQualString() string {
	cols := make([]string, 0, len(d.LevelColumns)+1)
	for _, l := range d.LevelColumns {
		if l.NameColumn != "" {
			cols = append(cols, d.Table.Name+"."+l.KeyColumn+", "+d.Table.Name+"."+l.NameColumn)
		} else {
			cols = append(cols, d.Table.Name+"."+l.KeyColumn)
		}
	}
	if len(d.PropertyColumns) > 0 {
		qualified := make([]string, len(d.PropertyColumns))
		for i, p := range d.PropertyColumns {
			qualified[i] = d.Table.Name + "." + p
		}
		cols = append(cols, strings.Join(qualified, ", "))
	}
	return strings.Join(cols, ", ")
}

// MemberType controls whether a CutSQL's member values are quoted as SQL
// string literals (Text) or emitted bare (NonText, numeric id keys).
type MemberType int

const (
	MemberNonText MemberType = iota
	MemberText
)

// CutSQL is a resolved restriction of a level's fact-table foreign key
// to a set of dimension-table member keys.
type CutSQL struct {
	Table      Table
	PrimaryKey string
	ForeignKey string
	Column     string
	Members    []string
	MemberType MemberType
	Mask       names.Mask
}

func (c CutSQL) MembersString() string {
	if c.MemberType == MemberText {
		quoted := make([]string, len(c.Members))
		for i, m := range c.Members {
			quoted[i] = "'" + strings.ReplaceAll(m, "'", "''") + "'"
		}
		return strings.Join(quoted, ", ")
	}
	return strings.Join(c.Members, ", ")
}

func (c CutSQL) ColQualString() string {
	return c.Table.Name + "." + c.Column
}

func (c CutSQL) MaskSQLString() string {
	if c.Mask == names.MaskExclude {
		return "not in"
	}
	return "in"
}

// MeasureSQL is a single requested measure, bound to its fact-table
// column and the aggregator that combines rows into the measure value.
// The expression that actually applies the aggregator is dialect
// specific (see sqlgen), since several aggregators (median, moe) have no
// portable SQL form.
type MeasureSQL struct {
	Aggregator aggregator.Aggregator
	Column     string
}

type TopSQL struct {
	N             uint64
	ByColumn      string
	SortColumns   []string
	SortDirection SortDirection
}

type TopWhereSQL struct {
	ByColumn   string
	Constraint Constraint
}

type FilterSQL struct {
	ByColumn   string
	Constraint Constraint
}

type LimitSQL struct {
	Offset *uint64
	N      uint64
}

type SortSQL struct {
	Direction SortDirection
	Column    string
}

// RCASQL carries the two drilldown chains (dim 1 and dim 2) and the
// measure that a Revealed Comparative Advantage calculation pivots across.
type RCASQL struct {
	Drill1 []DrilldownSQL
	Drill2 []DrilldownSQL
	Mea    MeasureSQL
	Debug  bool
}

// GrowthSQL carries the time drilldown and the index (into QueryIR's
// Measures slice) of the measure a growth calculation computes
// period-over-period deltas for. Carrying the index explicitly avoids
// the fragile "parse the trailing digit off the measure alias" trick
// the original implementation used.
type GrowthSQL struct {
	TimeDrill DrilldownSQL
	MeaIndex  int
}

// RateSQL carries the extra drilldown a rate calculation groups by (the
// level the requested member values live on) and the member values
// themselves; the measure rate is computed for is always meas[0].
type RateSQL struct {
	Drilldown DrilldownSQL
	Members   []string
}

// DimSubquery is a standalone `select <cols>, <pk> as <fk> from <table>`
// statement joined into the primary aggregation when a drilldown needs
// dimension-table columns the fact table doesn't carry directly. A cut
// with no matching drilldown filters the fact table through
// `fk in (select pk ...)` instead.
type DimSubquery struct {
	SQL        string
	ForeignKey string
	DimCols    []string
}

// BuildDimSubquery assembles the dimension-table subquery for a
// drilldown; it applies no cut. The clickhouse dialect appends a cut on
// the same dimension table to the subquery's WHERE clause itself, so
// such a cut filters the dimension subquery, not the fact-table WHERE.
func BuildDimSubquery(drill *DrilldownSQL) DimSubquery {
	if drill == nil {
		return DimSubquery{}
	}
	sql := "select " + drill.ColAliasString() + ", " + drill.PrimaryKey + " as " + drill.ForeignKey +
		" from " + drill.Table.FullName()
	return DimSubquery{
		SQL:        sql,
		ForeignKey: drill.ForeignKey,
		DimCols:    drill.ColAliasOnlyString(),
	}
}
