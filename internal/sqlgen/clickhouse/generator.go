// Package clickhouse generates ClickHouse SQL from a resolved QueryIR: a
// three-stage pipeline of primary aggregation (primaryagg.go, or the rca
// pivot in rca.go), an optional special-calculation wrap (growth.go,
// rate.go), and the options wrapper every query gets (options.go).
package clickhouse

import (
	"github.com/tesseract-olap/tesseract/internal/queryir"
	"github.com/tesseract-olap/tesseract/internal/sqlgen"
)

// Kind is this dialect's registration key, matching the backend driver's
// Config.Kind value.
const Kind = "clickhouse"

func init() {
	sqlgen.Register(Kind, generator{})
}

type generator struct{}

func (generator) Generate(ir *queryir.QueryIR) (string, error) {
	var (
		sql            string
		finalDrillCols []string
		numMeasures    int
	)

	switch {
	case ir.RCA != nil:
		res, rerr := rcaSQL(ir)
		if rerr != nil {
			return "", rerr
		}
		sql, finalDrillCols, numMeasures = res.sql, res.finalDrillCols, res.numMeasures

	default:
		base, perr := primaryAgg(ir)
		if perr != nil {
			return "", perr
		}
		switch {
		case ir.Growth != nil:
			wrapped, werr := growthWrap(base, ir)
			if werr != nil {
				return "", werr
			}
			sql, finalDrillCols, numMeasures = wrapped.sql, wrapped.finalDrillCols, wrapped.numMeasures
		case ir.Rate != nil:
			wrapped, werr := rateWrap(base, ir)
			if werr != nil {
				return "", werr
			}
			sql, finalDrillCols, numMeasures = wrapped.sql, wrapped.finalDrillCols, wrapped.numMeasures
		default:
			sql, finalDrillCols, numMeasures = base.sql, base.finalDrillCols, base.numMeasures
		}
	}

	return wrapOptions(sql, finalDrillCols, ir, numMeasures), nil
}
