package postgres

import (
	"fmt"
	"strings"

	"github.com/tesseract-olap/tesseract/internal/queryir"
)

// rateWrap mirrors the clickhouse dialect's rate pivot using
// FILTER (WHERE ...), PostgreSQL's native conditional-aggregate syntax in
// place of ClickHouse's sumIf.
func rateWrap(base string, finalDrillCols []string, ir *queryir.QueryIR) (string, []string, int) {
	r := ir.Rate
	rateCol := r.Drilldown.LevelColumns[0].KeyColumn
	meaCol := "final_m0"

	groupCols := make([]string, 0, len(finalDrillCols))
	for _, c := range finalDrillCols {
		if c != rateCol {
			groupCols = append(groupCols, c)
		}
	}

	memberExprs := make([]string, len(r.Members))
	for i, member := range r.Members {
		memberExprs[i] = fmt.Sprintf(
			"sum(%s) filter (where %s = '%s') as rate_m%d",
			meaCol, rateCol, strings.ReplaceAll(member, "'", "''"), i,
		)
	}

	pivot := fmt.Sprintf(
		"select %s, %s, sum(%s) as rate_total from (%s) t group by %s",
		strings.Join(groupCols, ", "), strings.Join(memberExprs, ", "), meaCol, base, strings.Join(groupCols, ", "),
	)

	outCols := append([]string{}, groupCols...)
	for i := range r.Members {
		outCols = append(outCols, fmt.Sprintf("rate_m%d / rate_total as rate_%d", i, i))
	}

	sql := fmt.Sprintf("select %s from (%s) p", strings.Join(outCols, ", "), pivot)
	return sql, groupCols, len(r.Members)
}
