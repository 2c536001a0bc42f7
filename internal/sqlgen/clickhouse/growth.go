package clickhouse

import (
	"fmt"
	"strings"

	"github.com/tesseract-olap/tesseract/internal/queryir"
)

// growthWrap wraps a finished primary aggregation with a period-over-period
// delta for one measure. ClickHouse has no portable LAG() window function
// pre-analytics-extension, so this pivots each group's time-ordered values
// into an array with groupArray, computes a lagged difference with
// arrayMap, then re-explodes one row per (group, time) with `array join`.
func growthWrap(base primaryAggResult, ir *queryir.QueryIR) (primaryAggResult, error) {
	g := ir.Growth
	timeCol := g.TimeDrill.LevelColumns[0].KeyColumn
	meaCol := fmt.Sprintf("final_m%d", g.MeaIndex)

	nonTimeCols := make([]string, 0, len(base.finalDrillCols))
	for _, c := range base.finalDrillCols {
		if c != timeCol {
			nonTimeCols = append(nonTimeCols, c)
		}
	}

	otherMeaCols := make([]string, 0, base.numMeasures)
	for i := 0; i < base.numMeasures; i++ {
		if i != g.MeaIndex {
			otherMeaCols = append(otherMeaCols, fmt.Sprintf("final_m%d", i))
		}
	}

	pivotSelect := append(append([]string{}, nonTimeCols...),
		fmt.Sprintf("groupArray(%s) as times", timeCol),
		fmt.Sprintf("groupArray(%s) as m_in_group", meaCol),
	)
	for _, c := range otherMeaCols {
		pivotSelect = append(pivotSelect, fmt.Sprintf("groupArray(%s) as g_%s", c, c))
	}

	pivotSQL := fmt.Sprintf(
		"select %s from (%s order by %s) group by %s",
		strings.Join(pivotSelect, ", "), base.sql, timeCol, strings.Join(nonTimeCols, ", "),
	)

	diffCols := append(append([]string{}, nonTimeCols...),
		"times", "m_in_group",
		"arrayEnumerate(m_in_group) as m_ids",
		"arrayMap((i, m) -> if(i = 1, 0, m - m_in_group[i - 1]), m_ids, m_in_group) as m_diff",
	)
	for _, c := range otherMeaCols {
		diffCols = append(diffCols, "g_"+c)
	}
	diffSQL := fmt.Sprintf("select %s from (%s)", strings.Join(diffCols, ", "), pivotSQL)

	explodeSelect := append(append([]string{}, nonTimeCols...), timeCol,
		fmt.Sprintf("%s as %s", "m", meaCol),
		fmt.Sprintf("m_diff_final / (m - m_diff_final) as growth"),
		"m_diff_final as final_m_diff",
	)
	explodeSelect = append(explodeSelect, otherMeaCols...)

	sql := fmt.Sprintf(
		"select %s from (%s) array join times as %s, m_in_group as m, m_diff as m_diff_final%s",
		strings.Join(explodeSelect, ", "), diffSQL, timeCol, arrayJoinGroupRefs(otherMeaCols),
	)

	finalDrillCols := append(append([]string{}, nonTimeCols...), timeCol)

	return primaryAggResult{
		sql:            sql,
		finalDrillCols: finalDrillCols,
		numMeasures:    base.numMeasures,
	}, nil
}

func arrayJoinGroupRefs(cols []string) string {
	var b strings.Builder
	for _, c := range cols {
		b.WriteString(fmt.Sprintf(", g_%s as %s", c, c))
	}
	return b.String()
}
