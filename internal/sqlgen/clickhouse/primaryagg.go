package clickhouse

import (
	"fmt"
	"strings"

	"github.com/tesseract-olap/tesseract/internal/queryir"
)

// primaryAggResult carries the finished primary-aggregation SQL plus the
// bits downstream stages (rca.go, growth.go, rate.go, options.go) need to
// keep building on top of it: the list of final drilldown column
// expressions (for GROUP BY / ORDER BY), and how many measures were
// emitted (for the sparse-row filter).
type primaryAggResult struct {
	sql            string
	finalDrillCols []string
	numMeasures    int
	selectMeas     []string
}

// primaryAgg implements the fact-scan/dimension-join/regroup pipeline:
// fact-table columns and inline (same-table) drilldowns/cuts are folded
// in a single grouped scan (pass1); any drilldown whose columns live on a
// separate dimension table is resolved through its own subquery and
// `all inner join`ed onto the fact scan by foreign key; a final
// select/group-by (pass2) folds the joined rows down to the requested
// grain.
func primaryAgg(ir *queryir.QueryIR) (primaryAggResult, error) {
	var inlineDrills, extDrills []queryir.DrilldownSQL
	for _, d := range ir.Drills {
		if d.Table.FullName() == ir.Table.Name {
			inlineDrills = append(inlineDrills, d)
		} else {
			extDrills = append(extDrills, d)
		}
	}

	var inlineCuts []queryir.CutSQL
	extCutsByFK := map[string][]queryir.CutSQL{}
	var standaloneExtCuts []queryir.CutSQL
	for _, c := range ir.Cuts {
		if c.Table.FullName() == ir.Table.Name {
			inlineCuts = append(inlineCuts, c)
			continue
		}
		matched := false
		for _, d := range extDrills {
			if d.Table.FullName() == c.Table.FullName() && d.ForeignKey == c.ForeignKey {
				extCutsByFK[d.ForeignKey] = append(extCutsByFK[d.ForeignKey], c)
				matched = true
				break
			}
		}
		if !matched {
			standaloneExtCuts = append(standaloneExtCuts, c)
		}
	}

	// Build one dim subquery per external drilldown, folding any cut on
	// the same dimension table into its WHERE clause rather than joining
	// the cut separately (the reference implementation's paired
	// drill+cut subquery form was abandoned upstream; filtering inside
	// the subquery is equivalent and simpler).
	dimSubs := make([]queryir.DimSubquery, 0, len(extDrills))
	for i := range extDrills {
		d := extDrills[i]
		sub := queryir.BuildDimSubquery(&d)
		if cuts := extCutsByFK[d.ForeignKey]; len(cuts) > 0 {
			clauses := make([]string, len(cuts))
			for j, c := range cuts {
				clauses[j] = cutSQLString(c)
			}
			sub.SQL += " where " + strings.Join(clauses, " and ")
		}
		dimSubs = append(dimSubs, sub)
	}

	// Subquery whose foreign key matches the fact table's primary key
	// joins first, so later joins chain off a grain that already
	// includes it.
	if ir.Table.PrimaryKey != "" {
		for i, s := range dimSubs {
			if s.ForeignKey == ir.Table.PrimaryKey && i != 0 {
				dimSubs[0], dimSubs[i] = dimSubs[i], dimSubs[0]
				break
			}
		}
	}

	// pass1: inline select list.
	selectCols := make([]string, 0, len(inlineDrills)+len(dimSubs)+len(ir.Measures))
	groupCols := make([]string, 0, len(inlineDrills)+len(dimSubs))
	for _, d := range inlineDrills {
		selectCols = append(selectCols, d.ColString())
		groupCols = append(groupCols, d.Columns()...)
	}
	for _, s := range dimSubs {
		selectCols = append(selectCols, s.ForeignKey)
		groupCols = append(groupCols, s.ForeignKey)
	}

	pass1Exprs := make([]string, len(ir.Measures))
	pass2Exprs := make([]string, len(ir.Measures))
	selectMeas := make([]string, len(ir.Measures))
	for i, mea := range ir.Measures {
		agg, err := measureAgg(mea.Aggregator, mea.Column, i)
		if err != nil {
			return primaryAggResult{}, err
		}
		pass1Exprs[i] = agg.pass1
		pass2Exprs[i] = agg.pass2
		selectMeas[i] = agg.selectMea
	}
	selectCols = append(selectCols, pass1Exprs...)

	var where string
	whereClauses := make([]string, 0, len(inlineCuts)+len(standaloneExtCuts))
	for _, c := range inlineCuts {
		whereClauses = append(whereClauses, cutSQLString(c))
	}
	for _, c := range standaloneExtCuts {
		whereClauses = append(whereClauses, fmt.Sprintf(
			"%s in (select %s from %s where %s)",
			c.ForeignKey, c.PrimaryKey, c.Table.FullName(), cutSQLString(c),
		))
	}
	if len(whereClauses) > 0 {
		where = " where " + strings.Join(whereClauses, " and ")
	}

	factSQL := fmt.Sprintf(
		"select %s from %s%s group by %s",
		strings.Join(selectCols, ", "), ir.Table.Name, where, strings.Join(groupCols, ", "),
	)

	// Chain in each dim subquery via `all inner join ... using (fk)`.
	joined := factSQL
	for _, s := range dimSubs {
		joined = fmt.Sprintf(
			"select * from (%s) all inner join (%s) using %s",
			joined, s.SQL, s.ForeignKey,
		)
	}

	// pass2: final regroup to the requested drill grain.
	finalDrillCols := make([]string, 0, len(inlineDrills)+len(dimSubs))
	for _, d := range inlineDrills {
		finalDrillCols = append(finalDrillCols, d.Columns()...)
	}
	for _, s := range dimSubs {
		finalDrillCols = append(finalDrillCols, s.DimCols...)
	}

	finalSelect := append(append([]string{}, finalDrillCols...), pass2Exprs...)
	finalSQL := fmt.Sprintf(
		"select %s from (%s) group by %s",
		strings.Join(finalSelect, ", "), joined, strings.Join(finalDrillCols, ", "),
	)

	return primaryAggResult{
		sql:            finalSQL,
		finalDrillCols: finalDrillCols,
		numMeasures:    len(ir.Measures),
		selectMeas:     selectMeas,
	}, nil
}
