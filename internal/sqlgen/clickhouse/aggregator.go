package clickhouse

import (
	"fmt"
	"strings"

	"github.com/tesseract-olap/tesseract/internal/schema/aggregator"
	"github.com/tesseract-olap/tesseract/internal/util"
)

// aggSQL renders the three pieces of SQL a measure needs across the two
// group-by passes the primary aggregation performs (see primaryagg.go):
// pass1 folds fact-table rows into the per-dimension-subquery grain,
// pass2 folds those intermediate values up to the final drilldown grain,
// and selectMea is the bare column name carried through any layer that
// neither produces nor consumes the aggregate (e.g. rca.go's a/b/c/d
// pivot, which renames m{i} wholesale rather than re-aggregating it).
//
// There is no further source to crib this from: the reference
// implementation's two-pass variant was never checked into this pack,
// only a single-pass version (see the sum/avg conflation it likely grew
// out of). This is synthesized directly from the aggregate semantics of
// each Kind.
type aggSQL struct {
	pass1     string
	pass2     string
	selectMea string
}

// measureAgg renders pass1/pass2/selectMea for measure index i.
func measureAgg(agg aggregator.Aggregator, col string, i int) (aggSQL, error) {
	m := fmt.Sprintf("m%d", i)
	finalM := fmt.Sprintf("final_m%d", i)

	switch agg.Kind {
	case aggregator.KindSum, aggregator.KindCount:
		expr1 := "sum(" + col + ")"
		if agg.Kind == aggregator.KindCount {
			expr1 = "count(" + col + ")"
		}
		return aggSQL{
			pass1:     expr1 + " as " + m,
			pass2:     "sum(" + m + ") as " + finalM,
			selectMea: m,
		}, nil

	case aggregator.KindAverage:
		// Re-averaging an average across the dimension-subquery join is
		// only exact when every intermediate group has equal weight;
		// this mirrors the same approximation the original single-pass
		// avg(col) aggregator makes, just carried across two passes.
		return aggSQL{
			pass1:     "avg(" + col + ") as " + m,
			pass2:     "avg(" + m + ") as " + finalM,
			selectMea: m,
		}, nil

	case aggregator.KindWeightedSum:
		return aggSQL{
			pass1:     "sum(" + col + " * " + agg.WeightColumn + ") as " + m,
			pass2:     "sum(" + m + ") as " + finalM,
			selectMea: m,
		}, nil

	case aggregator.KindWeightedAverage:
		return aggSQL{
			pass1:     "sum(" + col + " * " + agg.WeightColumn + ") / sum(" + agg.WeightColumn + ") as " + m,
			pass2:     "avg(" + m + ") as " + finalM,
			selectMea: m,
		}, nil

	case aggregator.KindMoe:
		expr := "sqrt(sum(power(%s / 1.645, 2))) * 1.645"
		return aggSQL{
			pass1:     fmt.Sprintf(expr, col) + " as " + m,
			pass2:     fmt.Sprintf(expr, m) + " as " + finalM,
			selectMea: m,
		}, nil

	case aggregator.KindWeightedAverageMoe:
		pass1 := fmt.Sprintf(
			"sqrt(sum(power((%s * %s) / 1.645, 2))) * 1.645 / nullIf(sum(%s), 0)",
			col, agg.PrimaryWeight, agg.PrimaryWeight,
		)
		pass2 := fmt.Sprintf("sqrt(sum(power(%s / 1.645, 2))) * 1.645", m)
		return aggSQL{
			pass1:     pass1 + " as " + m,
			pass2:     pass2 + " as " + finalM,
			selectMea: m,
		}, nil

	case aggregator.KindCustom:
		return aggSQL{
			pass1:     strings.ReplaceAll(agg.Template, "{col}", col) + " as " + m,
			pass2:     "sum(" + m + ") as " + finalM,
			selectMea: m,
		}, nil

	case aggregator.KindBasicGroupedMedian:
		return aggSQL{}, util.NewSchemaError(
			"aggregator basic_grouped_median has no two-pass-stable clickhouse form; reject the query instead of computing a wrong median",
			nil,
		)

	default:
		return aggSQL{}, util.NewSchemaError(fmt.Sprintf("unknown aggregator kind %q", agg.Kind), nil)
	}
}
