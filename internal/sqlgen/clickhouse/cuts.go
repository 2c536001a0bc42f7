package clickhouse

import "github.com/tesseract-olap/tesseract/internal/queryir"

// cutSQLString renders a single cut's WHERE fragment: `col in (members)` or
// `col not in (members)`.
func cutSQLString(cut queryir.CutSQL) string {
	return cut.Column + " " + cut.MaskSQLString() + " (" + cut.MembersString() + ")"
}
