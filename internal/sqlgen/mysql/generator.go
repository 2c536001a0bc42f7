// Package mysql generates MySQL/MariaDB-compatible SQL from a resolved
// QueryIR. MySQL 8+ supports window functions so growth reuses the same
// lag()-over() shape as the postgres dialect, but lacks FILTER (WHERE
// ...) and percentile_cont, so rate uses CASE WHEN and
// basic_grouped_median is rejected as unsupported.
package mysql

import (
	"fmt"
	"strings"

	"github.com/tesseract-olap/tesseract/internal/queryir"
	"github.com/tesseract-olap/tesseract/internal/sqlgen"
	"github.com/tesseract-olap/tesseract/internal/util"
)

const Kind = "mysql"

func init() {
	sqlgen.Register(Kind, generator{})
}

type generator struct{}

func (generator) Generate(ir *queryir.QueryIR) (string, error) {
	base, finalDrillCols, numMeasures, err := primaryAgg(ir)
	if err != nil {
		return "", err
	}

	switch {
	case ir.RCA != nil:
		return "", util.NewSchemaError("rca is not yet implemented for the mysql dialect", nil)
	case ir.Growth != nil:
		base, finalDrillCols = growthWrap(base, finalDrillCols, ir)
	case ir.Rate != nil:
		base, finalDrillCols, numMeasures = rateWrap(base, finalDrillCols, ir)
	}

	return wrapOptions(base, finalDrillCols, ir, numMeasures), nil
}

func primaryAgg(ir *queryir.QueryIR) (string, []string, int, error) {
	var inlineDrills, extDrills []queryir.DrilldownSQL
	for _, d := range ir.Drills {
		if d.Table.FullName() == ir.Table.Name {
			inlineDrills = append(inlineDrills, d)
		} else {
			extDrills = append(extDrills, d)
		}
	}

	selectCols := make([]string, 0, len(ir.Drills)+len(ir.Measures))
	groupCols := make([]string, 0, len(ir.Drills))
	joins := make([]string, 0, len(extDrills))

	for _, d := range inlineDrills {
		selectCols = append(selectCols, d.ColQualString())
		groupCols = append(groupCols, d.Columns()...)
	}
	for _, d := range extDrills {
		alias := "dim_" + d.AliasPostfix
		cols := aliasedCols(d, alias)
		selectCols = append(selectCols, cols...)
		groupCols = append(groupCols, cols...)
		joins = append(joins, fmt.Sprintf(
			"join %s %s on %s.%s = %s.%s",
			d.Table.FullName(), alias, ir.Table.Name, d.ForeignKey, alias, d.PrimaryKey,
		))
	}

	aggExprs := make([]string, len(ir.Measures))
	for i, mea := range ir.Measures {
		expr, err := aggExpr(mea)
		if err != nil {
			return "", nil, 0, err
		}
		aggExprs[i] = expr + " as final_m" + fmt.Sprint(i)
	}
	selectCols = append(selectCols, aggExprs...)

	var where string
	if clauses := cutClauses(ir.Cuts, ir.Table.Name); len(clauses) > 0 {
		where = " where " + strings.Join(clauses, " and ")
	}

	sql := fmt.Sprintf(
		"select %s from %s %s%s group by %s",
		strings.Join(selectCols, ", "), ir.Table.Name, strings.Join(joins, " "), where,
		strings.Join(groupCols, ", "),
	)

	return sql, groupCols, len(ir.Measures), nil
}

func aliasedCols(d queryir.DrilldownSQL, alias string) []string {
	out := make([]string, 0, len(d.LevelColumns))
	for _, l := range d.LevelColumns {
		out = append(out, alias+"."+l.KeyColumn)
		if l.NameColumn != "" {
			out = append(out, alias+"."+l.NameColumn)
		}
	}
	return out
}

func cutClauses(cuts []queryir.CutSQL, factTable string) []string {
	out := make([]string, 0, len(cuts))
	for _, c := range cuts {
		col := c.Column
		if c.Table.FullName() == factTable {
			col = factTable + "." + c.Column
		}
		out = append(out, fmt.Sprintf("%s %s (%s)", col, c.MaskSQLString(), c.MembersString()))
	}
	return out
}

func aggExpr(mea queryir.MeasureSQL) (string, error) {
	switch mea.Aggregator.Kind.String() {
	case "sum", "weighted_sum":
		return "sum(" + mea.Column + ")", nil
	case "count":
		return "count(" + mea.Column + ")", nil
	case "average", "weighted_average":
		return "avg(" + mea.Column + ")", nil
	case "basic_grouped_median":
		return "", util.NewSchemaError("aggregator basic_grouped_median is unsupported on the mysql dialect", nil)
	case "moe":
		return "sqrt(sum(power(" + mea.Column + " / 1.645, 2))) * 1.645", nil
	case "custom":
		return strings.ReplaceAll(mea.Aggregator.Template, "{col}", mea.Column), nil
	default:
		return "", util.NewSchemaError("unknown aggregator "+mea.Aggregator.Kind.String(), nil)
	}
}
