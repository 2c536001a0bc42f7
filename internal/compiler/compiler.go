// Package compiler resolves a query.Query against a schema.Schema and
// produces a queryir.QueryIR: every name is replaced by its concrete
// table/column, and two drills/cuts that happen to land on the same
// physical column (as in RCA, which cross-joins two drilldown axes) are
// told apart by a unique alias postfix.
package compiler

import (
	"fmt"

	"github.com/tesseract-olap/tesseract/internal/names"
	"github.com/tesseract-olap/tesseract/internal/query"
	"github.com/tesseract-olap/tesseract/internal/queryir"
	"github.com/tesseract-olap/tesseract/internal/schema"
	"github.com/tesseract-olap/tesseract/internal/util"
)

// Compile resolves q against s and returns the backend-neutral IR.
func Compile(s *schema.Schema, q *query.Query) (*queryir.QueryIR, error) {
	cube := s.CubeByName(q.Cube)
	if cube == nil {
		return nil, util.NewSchemaError(fmt.Sprintf("unknown cube %q", q.Cube), nil)
	}

	ir := &queryir.QueryIR{
		Table: queryir.TableSQL{
			Name:       cube.Table.FullName(),
			PrimaryKey: "",
		},
		Sparse: q.Sparse,
	}

	aliasSeq := 0
	nextAlias := func(base string) string {
		aliasSeq++
		return fmt.Sprintf("%s%d", base, aliasSeq)
	}

	for _, dn := range q.Drilldowns {
		drills, err := resolveDrilldownChain(cube, dn, q.Parents, nextAlias)
		if err != nil {
			return nil, err
		}
		ir.Drills = append(ir.Drills, drills...)
	}

	for _, c := range q.Cuts {
		cutSQL, err := resolveCut(cube, c)
		if err != nil {
			return nil, err
		}
		ir.Cuts = append(ir.Cuts, cutSQL)
	}

	for _, m := range q.Measures {
		mea := cube.MeasureByName(m.Name)
		if mea == nil {
			return nil, util.NewSchemaError(fmt.Sprintf("unknown measure %q in cube %q", m.Name, cube.Name), nil)
		}
		ir.Measures = append(ir.Measures, queryir.MeasureSQL{
			Aggregator: mea.Aggregator,
			Column:     mea.Column,
		})
	}

	if q.RCA != nil {
		drill1, err := resolveDrilldownChain(cube, q.RCA.Drill1, false, nextAlias)
		if err != nil {
			return nil, err
		}
		drill2, err := resolveDrilldownChain(cube, q.RCA.Drill2, false, nextAlias)
		if err != nil {
			return nil, err
		}
		mea := cube.MeasureByName(q.RCA.Measure)
		if mea == nil {
			return nil, util.NewSchemaError(fmt.Sprintf("unknown measure %q for rca", q.RCA.Measure), nil)
		}
		ir.RCA = &queryir.RCASQL{
			Drill1: drill1,
			Drill2: drill2,
			Mea:    queryir.MeasureSQL{Aggregator: mea.Aggregator, Column: mea.Column},
			Debug:  q.Debug,
		}
	}

	if q.Growth != nil {
		timeDrill, err := resolveDrilldownChain(cube, q.Growth.TimeDrill, false, nextAlias)
		if err != nil {
			return nil, err
		}
		if len(timeDrill) != 1 {
			return nil, util.NewInputError("growth time drill must resolve to exactly one level", nil)
		}
		idx, err := measureIndex(cube, ir, q.Growth.Measure)
		if err != nil {
			return nil, err
		}
		ir.Growth = &queryir.GrowthSQL{TimeDrill: timeDrill[0], MeaIndex: idx}
	}

	if q.Rate != nil {
		drill, err := resolveDrilldownChain(cube, q.Rate.LevelName, false, nextAlias)
		if err != nil {
			return nil, err
		}
		ir.Rate = &queryir.RateSQL{Drilldown: drill[0], Members: q.Rate.MemberValues}
	}

	if q.Top != nil {
		_, _, topLevel, _, err := resolveLevel(cube, q.Top.ByDimension)
		if err != nil {
			return nil, err
		}
		sortCols := make([]string, 0, len(q.Top.SortExprs))
		for _, e := range q.Top.SortExprs {
			col, err := resolveMeaOrCalc(cube, ir, e)
			if err != nil {
				return nil, err
			}
			sortCols = append(sortCols, col)
		}
		ir.Top = &queryir.TopSQL{
			N:             q.Top.N,
			ByColumn:      topLevel.KeyColumn,
			SortColumns:   sortCols,
			SortDirection: queryir.SortDirection(q.Top.Direction),
		}
	}
	if q.TopWhere != nil {
		col, err := resolveMeaOrCalc(cube, ir, q.TopWhere.By)
		if err != nil {
			return nil, err
		}
		ir.TopWhere = &queryir.TopWhereSQL{ByColumn: col, Constraint: toIRConstraint(q.TopWhere.Constraint)}
	}
	if q.Sort != nil {
		col, err := resolveMeaOrCalc(cube, ir, q.Sort.Column)
		if err != nil {
			return nil, err
		}
		ir.Sort = &queryir.SortSQL{Direction: queryir.SortDirection(q.Sort.Direction), Column: col}
	}
	if q.Limit != nil {
		ir.Limit = &queryir.LimitSQL{Offset: q.Limit.Offset, N: q.Limit.N}
	}
	for _, f := range q.Filters {
		col, err := resolveMeaOrCalc(cube, ir, f.By)
		if err != nil {
			return nil, err
		}
		ir.Filters = append(ir.Filters, queryir.FilterSQL{ByColumn: col, Constraint: toIRConstraint(f.Constraint)})
	}

	return ir, nil
}

func toIRConstraint(c query.Constraint) queryir.Constraint {
	op := queryir.ConstraintEQ
	switch c.Op {
	case query.CmpGT:
		op = queryir.ConstraintGT
	case query.CmpGTE:
		op = queryir.ConstraintGTE
	case query.CmpLT:
		op = queryir.ConstraintLT
	case query.CmpLTE:
		op = queryir.ConstraintLTE
	}
	return queryir.Constraint{Op: op, Value: c.N}
}

// resolveDrilldownChain resolves a single requested level into one
// DrilldownSQL, or — when parents is true — into one DrilldownSQL per
// ancestor level from root to the requested level, preserving order.
func resolveDrilldownChain(cube *schema.Cube, ln names.LevelName, parents bool, nextAlias func(string) string) ([]queryir.DrilldownSQL, error) {
	dim, hier, _, idx, err := resolveLevel(cube, ln)
	if err != nil {
		return nil, err
	}

	startIdx := idx
	if parents {
		startIdx = 0
	}

	out := make([]queryir.DrilldownSQL, 0, idx-startIdx+1)
	for i := startIdx; i <= idx; i++ {
		l := hier.Levels[i]
		out = append(out, buildDrilldownSQL(cube, dim, hier, l, nextAlias(l.Name)))
	}
	return out, nil
}

func buildDrilldownSQL(cube *schema.Cube, dim *schema.Dimension, hier *schema.Hierarchy, level *schema.Level, alias string) queryir.DrilldownSQL {
	table := hier.SourceTable(cube.Table)
	primaryKey := hier.EffectivePrimaryKey()
	foreignKey := dim.ForeignKey

	col := queryir.LevelColumn{KeyColumn: level.KeyColumn, NameColumn: level.NameColumn}

	propCols := make([]string, 0, len(level.Properties))
	for _, p := range level.Properties {
		propCols = append(propCols, p.Column)
	}

	return queryir.DrilldownSQL{
		AliasPostfix:    alias,
		Table:           queryir.Table{Schema: table.Schema, Name: table.Name},
		PrimaryKey:      primaryKey,
		ForeignKey:      foreignKey,
		LevelColumns:    []queryir.LevelColumn{col},
		PropertyColumns: propCols,
	}
}

func resolveCut(cube *schema.Cube, c names.Cut) (queryir.CutSQL, error) {
	dim, hier, level, _, err := resolveLevel(cube, c.LevelName)
	if err != nil {
		return queryir.CutSQL{}, err
	}

	table := hier.SourceTable(cube.Table)
	memberType := queryir.MemberNonText
	if level.KeyType == schema.KeyTypeText {
		memberType = queryir.MemberText
	}

	return queryir.CutSQL{
		Table:      queryir.Table{Schema: table.Schema, Name: table.Name},
		PrimaryKey: hier.EffectivePrimaryKey(),
		ForeignKey: dim.ForeignKey,
		Column:     level.KeyColumn,
		Members:    c.Members,
		MemberType: memberType,
		Mask:       c.Mask,
	}, nil
}

// measureIndex returns the position within ir.Measures of the named
// measure, appending it (resolved from cube) if the query didn't
// already request it as an output column.
func measureIndex(cube *schema.Cube, ir *queryir.QueryIR, name string) (int, error) {
	mea := cube.MeasureByName(name)
	if mea == nil {
		return 0, util.NewSchemaError(fmt.Sprintf("unknown measure %q", name), nil)
	}
	for i, m := range ir.Measures {
		if m.Column == mea.Column {
			return i, nil
		}
	}
	ir.Measures = append(ir.Measures, queryir.MeasureSQL{Aggregator: mea.Aggregator, Column: mea.Column})
	return len(ir.Measures) - 1, nil
}

// resolveMeaOrCalc resolves a sort/top_where/filter expression to the
// output column name it refers to: a plain measure resolves to its
// final_m{i} aggregation slot (registering it if the query hadn't
// already requested it), while the reserved calculation names resolve to
// the fixed column name their generator emits.
func resolveMeaOrCalc(cube *schema.Cube, ir *queryir.QueryIR, e query.MeaOrCalc) (string, error) {
	switch e.Kind {
	case query.CalcRCA:
		return "rca", nil
	case query.CalcGrowth:
		return "growth", nil
	case query.CalcRate:
		return "rate_0", nil
	default:
		idx, err := measureIndex(cube, ir, e.Name)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("final_m%d", idx), nil
	}
}

// resolveLevel looks up ln's dimension/hierarchy/level within cube,
// returning the index of the level within its hierarchy's Levels slice
// (needed by the parents expansion).
func resolveLevel(cube *schema.Cube, ln names.LevelName) (*schema.Dimension, *schema.Hierarchy, *schema.Level, int, error) {
	dim := cube.DimensionByName(ln.Dimension)
	if dim == nil {
		return nil, nil, nil, 0, util.NewSchemaError(fmt.Sprintf("unknown dimension %q in cube %q", ln.Dimension, cube.Name), nil)
	}
	hier := dim.HierarchyByName(ln.Hierarchy)
	if hier == nil {
		return nil, nil, nil, 0, util.NewSchemaError(fmt.Sprintf("unknown hierarchy %q in dimension %q", ln.Hierarchy, ln.Dimension), nil)
	}
	level, idx := hier.LevelByName(ln.Level)
	if level == nil {
		return nil, nil, nil, 0, util.NewSchemaError(fmt.Sprintf("unknown level %q in hierarchy %q", ln.Level, ln.Hierarchy), nil)
	}
	return dim, hier, level, idx, nil
}
