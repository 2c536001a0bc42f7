package mysql

import (
	"fmt"
	"strings"

	"github.com/tesseract-olap/tesseract/internal/queryir"
)

func growthWrap(base string, finalDrillCols []string, ir *queryir.QueryIR) (string, []string) {
	g := ir.Growth
	timeCol := g.TimeDrill.LevelColumns[0].KeyColumn
	meaCol := fmt.Sprintf("final_m%d", g.MeaIndex)

	partitionCols := make([]string, 0, len(finalDrillCols))
	for _, c := range finalDrillCols {
		if c != timeCol {
			partitionCols = append(partitionCols, c)
		}
	}

	prev := fmt.Sprintf("coalesce(lag(%s) over (partition by %s order by %s), %s)",
		meaCol, strings.Join(partitionCols, ", "), timeCol, meaCol)
	sql := fmt.Sprintf(
		"select *, %s - %s as final_m_diff, (%s - %s) / nullif(%s, 0) as growth from (%s) t",
		meaCol, prev, meaCol, prev, prev, base,
	)
	return sql, finalDrillCols
}
