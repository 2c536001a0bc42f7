package clickhouse

import (
	"fmt"
	"strings"

	"github.com/tesseract-olap/tesseract/internal/queryir"
)

// wrapOptions applies the query-level wrapping options (top/top_where,
// sort, filters, sparse, limit) around a finished aggregation, in the
// same order as every other dialect in this family: top-n first (since
// it changes which rows exist at all), then the catch-all sort/filter/
// limit wrapper.
func wrapOptions(finalSQL string, finalDrillCols []string, ir *queryir.QueryIR, numMeasures int) string {
	drillColsStr := strings.Join(finalDrillCols, ", ")

	if ir.Top != nil {
		topWhere := ""
		if ir.TopWhere != nil {
			topWhere = fmt.Sprintf("where %s %s %v ", ir.TopWhere.ByColumn, ir.TopWhere.Constraint.Op.SQL(), ir.TopWhere.Constraint.Value)
		}
		finalSQL = fmt.Sprintf(
			"select * from (%s) %sorder by %s %s limit %d by %s",
			finalSQL, topWhere,
			strings.Join(ir.Top.SortColumns, ", "), sortDirSQL(ir.Top.SortDirection),
			ir.Top.N, ir.Top.ByColumn,
		)
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
			filterClauses = append(filterClauses, fmt.Sprintf("isNotNull(final_m%d)", i))
		}
	}
	filtersSQL := ""
	if len(filterClauses) > 0 {
		filtersSQL = "where " + strings.Join(filterClauses, " and ")
	}

	return fmt.Sprintf("select * from (%s) %s %s %s", finalSQL, filtersSQL, sortSQL, limitSQL)
}

func sortDirSQL(d queryir.SortDirection) string {
	if d == queryir.SortDesc {
		return "desc"
	}
	return "asc"
}
