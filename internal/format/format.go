// Package format renders a dataframe.DataFrame to one of the three wire
// formats the HTTP surface exposes: CSV, JSON records, and JSON arrays.
package format

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"

	"github.com/tesseract-olap/tesseract/internal/dataframe"
	"github.com/tesseract-olap/tesseract/internal/util"
)

// Kind selects one of the three supported wire formats.
type Kind string

const (
	CSV         Kind = "csv"
	JSONRecords Kind = "jsonrecords"
	JSONArrays  Kind = "jsonarrays"
)

// ParseKind maps a format query-string/extension value to a Kind,
// defaulting handled by the caller per endpoint (csv for core aggregate,
// jsonrecords for logic-layer).
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case CSV, JSONRecords, JSONArrays:
		return Kind(s), nil
	case "":
		return "", nil
	default:
		return "", util.NewInputError(fmt.Sprintf("unknown format %q", s), nil)
	}
}

func ContentType(k Kind) string {
	switch k {
	case CSV:
		return "text/csv"
	default:
		return "application/json"
	}
}

// Write renders df in the given format to w.
func Write(w io.Writer, df *dataframe.DataFrame, k Kind) error {
	switch k {
	case CSV:
		return writeCSV(w, df)
	case JSONArrays:
		return writeJSONArrays(w, df)
	default:
		return writeJSONRecords(w, df)
	}
}

func writeCSV(w io.Writer, df *dataframe.DataFrame) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(df.Header()); err != nil {
		return util.NewFormatterError("writing csv header", err)
	}
	n := df.Len()
	row := make([]string, len(df.Columns))
	for i := 0; i < n; i++ {
		for ci, c := range df.Columns {
			row[ci] = csvCell(c, i)
		}
		if err := cw.Write(row); err != nil {
			return util.NewFormatterError("writing csv row", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func csvCell(c *dataframe.Column, i int) string {
	if c.Valid != nil && !c.Valid[i] {
		return ""
	}
	return cellString(c, i)
}

func writeJSONRecords(w io.Writer, df *dataframe.DataFrame) error {
	header := df.Header()
	n := df.Len()
	records := make([]map[string]any, n)
	for i := 0; i < n; i++ {
		rec := make(map[string]any, len(df.Columns))
		for _, c := range df.Columns {
			rec[c.Name] = cellJSON(c, i)
		}
		records[i] = rec
	}
	enc := json.NewEncoder(w)
	return wrapFormatterErr(enc.Encode(map[string]any{
		"data":   records,
		"source": header,
	}))
}

func writeJSONArrays(w io.Writer, df *dataframe.DataFrame) error {
	header := df.Header()
	n := df.Len()
	rows := make([][]any, n)
	for i := 0; i < n; i++ {
		row := make([]any, len(df.Columns))
		for ci, c := range df.Columns {
			row[ci] = cellJSON(c, i)
		}
		rows[i] = row
	}
	enc := json.NewEncoder(w)
	return wrapFormatterErr(enc.Encode(map[string]any{
		"headers": header,
		"data":    rows,
	}))
}

func wrapFormatterErr(err error) error {
	if err == nil {
		return nil
	}
	return util.NewFormatterError("encoding json", err)
}

func cellJSON(c *dataframe.Column, i int) any {
	if c.Valid != nil && !c.Valid[i] {
		return nil
	}
	switch c.Kind {
	case dataframe.KindInt8, dataframe.KindInt16, dataframe.KindInt32, dataframe.KindInt64, dataframe.KindNullableInt64:
		return c.Ints[i]
	case dataframe.KindUint8, dataframe.KindUint16, dataframe.KindUint32, dataframe.KindUint64:
		return c.UInts[i]
	case dataframe.KindFloat32:
		return c.F32s[i]
	case dataframe.KindFloat64, dataframe.KindNullableFloat64:
		return c.F64s[i]
	default:
		return c.Texts[i]
	}
}

func cellString(c *dataframe.Column, i int) string {
	v := cellJSON(c, i)
	if v == nil {
		return ""
	}
	return fmt.Sprintf("%v", v)
}
