package clickhouse

import (
	"fmt"
	"strings"

	"github.com/tesseract-olap/tesseract/internal/queryir"
)

// rateWrap computes what fraction of the first measure's total each of a
// fixed set of member values accounts for, within each non-rate-dimension
// group: `member_value / sum(all member values in the group)`. The base
// aggregation already produced one row per (drilldown grain, rate
// member); this pivots those into one row per group with a column per
// requested member, then divides.
func rateWrap(base primaryAggResult, ir *queryir.QueryIR) (primaryAggResult, error) {
	r := ir.Rate
	rateCol := r.Drilldown.LevelColumns[0].KeyColumn
	meaCol := "final_m0"

	groupCols := make([]string, 0, len(base.finalDrillCols))
	for _, c := range base.finalDrillCols {
		if c != rateCol {
			groupCols = append(groupCols, c)
		}
	}

	memberExprs := make([]string, len(r.Members))
	for i, member := range r.Members {
		memberExprs[i] = fmt.Sprintf(
			"sumIf(%s, %s = '%s') as rate_m%d",
			meaCol, rateCol, strings.ReplaceAll(member, "'", "''"), i,
		)
	}
	totalExpr := fmt.Sprintf("sum(%s) as rate_total", meaCol)

	pivotSQL := fmt.Sprintf(
		"select %s, %s, %s from (%s) group by %s",
		strings.Join(groupCols, ", "), strings.Join(memberExprs, ", "), totalExpr,
		base.sql, strings.Join(groupCols, ", "),
	)

	outCols := append([]string{}, groupCols...)
	for i := range r.Members {
		outCols = append(outCols, fmt.Sprintf("rate_m%d / rate_total as rate_%d", i, i))
	}

	sql := fmt.Sprintf("select %s from (%s)", strings.Join(outCols, ", "), pivotSQL)

	return primaryAggResult{
		sql:            sql,
		finalDrillCols: groupCols,
		numMeasures:    len(r.Members),
	}, nil
}
