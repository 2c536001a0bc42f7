package backend

import (
	"database/sql"
	"fmt"

	"github.com/tesseract-olap/tesseract/internal/dataframe"
)

// DecodeRows drains rows into one DataFrame, inferring each column's
// dataframe.Kind from the driver's reported column type. Shared by every
// dialect driver since all three (clickhouse-go/v2, pgx's database/sql
// shim, go-sql-driver/mysql) expose the same database/sql.Rows surface.
func DecodeRows(rows *sql.Rows) (*dataframe.DataFrame, error) {
	defer rows.Close()

	cols, err := rows.ColumnTypes()
	if err != nil {
		return nil, fmt.Errorf("backend: reading column types: %w", err)
	}

	kinds := make([]dataframe.Kind, len(cols))
	df := dataframe.New()
	for i, c := range cols {
		kinds[i] = KindForDBType(c.DatabaseTypeName())
		df.Columns = append(df.Columns, dataframe.NewColumn(c.Name(), kinds[i], 0))
	}

	scanTargets := make([]any, len(cols))
	for rows.Next() {
		for i, k := range kinds {
			scanTargets[i] = ScanTargetFor(k)
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return nil, fmt.Errorf("backend: scanning row: %w", err)
		}
		for i, k := range kinds {
			AppendScanned(df.Columns[i], k, scanTargets[i])
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("backend: iterating rows: %w", err)
	}
	return df, nil
}

// NewPageFrame builds an empty DataFrame shaped to cols, for use by a
// streaming ExecSQLStream implementation that decodes one page at a time
// instead of the whole result set at once.
func NewPageFrame(cols []*sql.ColumnType) *dataframe.DataFrame {
	df := dataframe.New()
	for _, c := range cols {
		df.Columns = append(df.Columns, dataframe.NewColumn(c.Name(), KindForDBType(c.DatabaseTypeName()), 0))
	}
	return df
}

// ScanInto scans the current row of rows into page, whose columns must
// have been built by NewPageFrame from the same cols.
func ScanInto(rows *sql.Rows, page *dataframe.DataFrame, cols []*sql.ColumnType) error {
	targets := make([]any, len(cols))
	for i, c := range page.Columns {
		targets[i] = ScanTargetFor(c.Kind)
	}
	if err := rows.Scan(targets...); err != nil {
		return err
	}
	for i, c := range page.Columns {
		AppendScanned(c, c.Kind, targets[i])
	}
	return nil
}

func KindForDBType(dbType string) dataframe.Kind {
	switch dbType {
	case "INT8", "TINYINT":
		return dataframe.KindInt8
	case "INT16", "SMALLINT":
		return dataframe.KindInt16
	case "INT32", "INT", "INTEGER", "MEDIUMINT":
		return dataframe.KindInt32
	case "INT64", "BIGINT":
		return dataframe.KindInt64
	case "UINT8":
		return dataframe.KindUint8
	case "UINT16":
		return dataframe.KindUint16
	case "UINT32":
		return dataframe.KindUint32
	case "UINT64":
		return dataframe.KindUint64
	case "FLOAT32", "FLOAT4", "REAL":
		return dataframe.KindFloat32
	case "FLOAT64", "FLOAT8", "DOUBLE", "DECIMAL", "NUMERIC":
		return dataframe.KindFloat64
	default:
		return dataframe.KindText
	}
}

func ScanTargetFor(k dataframe.Kind) any {
	switch k {
	case dataframe.KindInt8, dataframe.KindInt16, dataframe.KindInt32, dataframe.KindInt64,
		dataframe.KindUint8, dataframe.KindUint16, dataframe.KindUint32, dataframe.KindUint64:
		return new(sql.NullInt64)
	case dataframe.KindFloat32, dataframe.KindFloat64:
		return new(sql.NullFloat64)
	default:
		return new(sql.NullString)
	}
}

func AppendScanned(col *dataframe.Column, k dataframe.Kind, target any) {
	switch k {
	case dataframe.KindInt8, dataframe.KindInt16, dataframe.KindInt32, dataframe.KindInt64:
		v := target.(*sql.NullInt64)
		col.Ints = append(col.Ints, v.Int64)
	case dataframe.KindUint8, dataframe.KindUint16, dataframe.KindUint32, dataframe.KindUint64:
		v := target.(*sql.NullInt64)
		col.UInts = append(col.UInts, uint64(v.Int64))
	case dataframe.KindFloat32:
		v := target.(*sql.NullFloat64)
		col.F32s = append(col.F32s, float32(v.Float64))
	case dataframe.KindFloat64:
		v := target.(*sql.NullFloat64)
		col.F64s = append(col.F64s, v.Float64)
	default:
		v := target.(*sql.NullString)
		col.Texts = append(col.Texts, v.String)
	}
}
