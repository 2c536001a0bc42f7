package clickhouse

import (
	"fmt"
	"strings"

	"github.com/tesseract-olap/tesseract/internal/queryir"
)

// rcaResult mirrors primaryAggResult for the Revealed Comparative Advantage
// pivot: the SQL it produces already carries the `rca` output column, so
// options.go treats it exactly like a plain primary aggregation.
type rcaResult struct {
	sql            string
	finalDrillCols []string
	numMeasures    int
}

// rcaSQL computes RCA = (a/b)/(c/d) where:
//   a = the measure aggregated over drills+drill1+drill2
//   b = the measure aggregated over drills+drill2
//   c = a summed across drill2 (collapsing it out), grouped by drills+drill1
//   d = b summed across drill2 (collapsing it out), grouped by drills
//
// a and b are each one primaryAgg call against a drill/cut set narrowed to
// avoid double-filtering on the axis being collapsed; c and d are derived
// from a and b respectively by a plain `group by` subquery over the a and
// b result sets, so no further table scan is needed.
func rcaSQL(ir *queryir.QueryIR) (rcaResult, error) {
	rca := ir.RCA
	drill1Cols := drillColumnSet(rca.Drill1)
	drill2Cols := drillColumnSet(rca.Drill2)

	acCuts := excludeCutsOn(ir.Cuts, drill2Cols)
	bdCuts := excludeCutsOn(ir.Cuts, union(drill1Cols, drill2Cols))

	allMeas := append([]queryir.MeasureSQL{rca.Mea}, ir.Measures...)

	aIR := &queryir.QueryIR{
		Table:    ir.Table,
		Cuts:     acCuts,
		Drills:   concatDrills(ir.Drills, rca.Drill1, rca.Drill2),
		Measures: allMeas,
	}
	bIR := &queryir.QueryIR{
		Table:    ir.Table,
		Cuts:     bdCuts,
		Drills:   concatDrills(ir.Drills, rca.Drill2),
		Measures: allMeas,
	}

	a, err := primaryAgg(aIR)
	if err != nil {
		return rcaResult{}, fmt.Errorf("rca: computing a: %w", err)
	}
	b, err := primaryAgg(bIR)
	if err != nil {
		return rcaResult{}, fmt.Errorf("rca: computing b: %w", err)
	}

	// final_m0 is always the rca measure's slot (index 0 of allMeas);
	// rename it to the pivot's own a/b so the outer select can combine
	// them arithmetically.
	aSQL := strings.Replace(a.sql, "final_m0", "a", 1)
	bSQL := strings.Replace(b.sql, "final_m0", "b", 1)

	dDrillCols := drillCols(ir.Drills)
	cDrillCols := append(append([]string{}, dDrillCols...), drillCols(rca.Drill1)...)

	// Pivot c (sum of a, collapsing drill2 out) from the a result set.
	cSQL := fmt.Sprintf(
		"select %s, sum(a) as c from (%s) group by %s",
		strings.Join(cDrillCols, ", "), aSQL, strings.Join(cDrillCols, ", "),
	)
	// Pivot d (sum of b, collapsing drill1 and drill2 out) from the b result set.
	dSQL := fmt.Sprintf(
		"select %s, sum(b) as d from (%s) group by %s",
		strings.Join(dDrillCols, ", "), bSQL, strings.Join(dDrillCols, ", "),
	)

	extMeaCols := make([]string, len(ir.Measures))
	for i := range ir.Measures {
		extMeaCols[i] = fmt.Sprintf("final_m%d", i+1)
	}

	acJoinCols := append(append([]string{}, dDrillCols...), drillCols(rca.Drill1)...)
	acSQL := fmt.Sprintf(
		"select * from (%s) all inner join (%s) using %s",
		aSQL, cSQL, strings.Join(acJoinCols, ", "),
	)
	bdSQL := fmt.Sprintf(
		"select * from (%s) all inner join (%s) using %s",
		bSQL, dSQL, strings.Join(dDrillCols, ", "),
	)

	finalDrillCols := append(append([]string{}, dDrillCols...), drillCols(rca.Drill1)...)
	finalDrillCols = append(finalDrillCols, drillCols(rca.Drill2)...)

	debugCols := ""
	if rca.Debug {
		debugCols = "a, b, c, d, "
	}

	selectCols := append([]string{}, finalDrillCols...)
	selectCols = append(selectCols, extMeaCols...)

	sql := fmt.Sprintf(
		"select %s, %s(a / b) / (c / d) as rca, %s from (%s) ac all inner join (%s) bd using %s",
		strings.Join(finalDrillCols, ", "), debugCols, strings.Join(selectCols[len(finalDrillCols):], ", "),
		acSQL, bdSQL, strings.Join(dDrillCols, ", "),
	)

	return rcaResult{
		sql:            sql,
		finalDrillCols: finalDrillCols,
		numMeasures:    len(ir.Measures) + 1,
	}, nil
}

func drillColumnSet(drills []queryir.DrilldownSQL) map[string]bool {
	set := map[string]bool{}
	for _, d := range drills {
		for _, l := range d.LevelColumns {
			set[l.KeyColumn] = true
			if l.NameColumn != "" {
				set[l.NameColumn] = true
			}
		}
	}
	return set
}

func union(a, b map[string]bool) map[string]bool {
	out := map[string]bool{}
	for k := range a {
		out[k] = true
	}
	for k := range b {
		out[k] = true
	}
	return out
}

func excludeCutsOn(cuts []queryir.CutSQL, cols map[string]bool) []queryir.CutSQL {
	out := make([]queryir.CutSQL, 0, len(cuts))
	for _, c := range cuts {
		if !cols[c.Column] {
			out = append(out, c)
		}
	}
	return out
}

func concatDrills(base []queryir.DrilldownSQL, extra ...[]queryir.DrilldownSQL) []queryir.DrilldownSQL {
	out := append([]queryir.DrilldownSQL{}, base...)
	for _, e := range extra {
		out = append(out, e...)
	}
	return out
}

func drillCols(drills []queryir.DrilldownSQL) []string {
	var out []string
	for _, d := range drills {
		out = append(out, d.Columns()...)
	}
	return out
}
