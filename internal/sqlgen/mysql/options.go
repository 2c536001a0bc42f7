package mysql

import (
	"fmt"
	"strings"

	"github.com/tesseract-olap/tesseract/internal/queryir"
)

// wrapOptions mirrors the postgres dialect's wrapper. MySQL has no
// `distinct on`, so top-n-per-group falls back to a row_number() window
// function filtered in an outer select.
func wrapOptions(finalSQL string, finalDrillCols []string, ir *queryir.QueryIR, numMeasures int) string {
	drillColsStr := strings.Join(finalDrillCols, ", ")

	if ir.Top != nil {
		topWhere := ""
		if ir.TopWhere != nil {
			topWhere = fmt.Sprintf("where %s %s %v ", ir.TopWhere.ByColumn, ir.TopWhere.Constraint.Op.SQL(), ir.TopWhere.Constraint.Value)
		}
		descCols := make([]string, len(ir.Top.SortColumns))
		for i, c := range ir.Top.SortColumns {
			descCols[i] = c + " " + sortDirSQL(ir.Top.SortDirection)
		}
		ranked := fmt.Sprintf(
			"select t.*, row_number() over (partition by %s order by %s) as rn from (%s) t %s",
			ir.Top.ByColumn, strings.Join(descCols, ", "), finalSQL, topWhere,
		)
		finalSQL = fmt.Sprintf("select * from (%s) ranked where rn <= %d", ranked, ir.Top.N)
	}

	var sortSQL string
	switch {
	case ir.Sort != nil:
		sortSQL = fmt.Sprintf("order by %s %s, %s", ir.Sort.Column, sortDirSQL(ir.Sort.Direction), drillColsStr)
	case ir.Top != nil:
		descCols := make([]string, len(ir.Top.SortColumns))
		for i, c := range ir.Top.SortColumns {
			descCols[i] = c + " desc"
		}
		sortSQL = fmt.Sprintf("order by %s asc, %s", ir.Top.ByColumn, strings.Join(descCols, ", "))
	default:
		sortSQL = "order by " + drillColsStr
	}

	var limitSQL string
	if ir.Limit != nil {
		if ir.Limit.Offset != nil {
			limitSQL = fmt.Sprintf("limit %d, %d", *ir.Limit.Offset, ir.Limit.N)
		} else {
			limitSQL = fmt.Sprintf("limit %d", ir.Limit.N)
		}
	}

	var filterClauses []string
	for _, f := range ir.Filters {
		filterClauses = append(filterClauses, fmt.Sprintf("%s %s %v", f.ByColumn, f.Constraint.Op.SQL(), f.Constraint.Value))
	}
	if ir.Sparse {
		for i := 0; i < numMeasures; i++ {
			filterClauses = append(filterClauses, fmt.Sprintf("final_m%d is not null", i))
		}
	}
	filtersSQL := ""
	if len(filterClauses) > 0 {
		filtersSQL = "where " + strings.Join(filterClauses, " and ")
	}

	return fmt.Sprintf("select * from (%s) t %s %s %s", finalSQL, filtersSQL, sortSQL, limitSQL)
}

func sortDirSQL(d queryir.SortDirection) string {
	if d == queryir.SortDesc {
		return "desc"
	}
	return "asc"
}
