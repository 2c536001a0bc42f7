package format

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"

	"github.com/tesseract-olap/tesseract/internal/dataframe"
)

// StreamState is the explicit state machine a streaming formatter walks
// through: one header, then one step per inner DataFrame block, then one
// footer. JSON variants need Done as a distinct state from SendFooter
// because the closing bracket must be written even when zero blocks
// arrived.
type StreamState int

const (
	StateSendHeader StreamState = iota
	StateSendBlock
	StateSendFooter
	StateDone
)

// StreamWriter drives one Kind's state machine across a channel of
// incoming DataFrame blocks. The final row count is unknown up front
// (the whole point of streaming), so JSON variants track whether any
// row has been written yet to decide whether to emit a separator.
type StreamWriter struct {
	w           io.Writer
	kind        Kind
	state       StreamState
	header      []string
	wroteAnyRow bool
	csvw        *csv.Writer
}

func NewStreamWriter(w io.Writer, kind Kind) *StreamWriter {
	return &StreamWriter{w: w, kind: kind, state: StateSendHeader}
}

// Open transitions SendHeader -> SendBlock, writing the header (CSV) or
// opening brace/array (JSON).
func (sw *StreamWriter) Open(header []string) error {
	if sw.state != StateSendHeader {
		return fmt.Errorf("format: Open called out of order")
	}
	sw.header = header
	switch sw.kind {
	case CSV:
		sw.csvw = csv.NewWriter(sw.w)
		if err := sw.csvw.Write(header); err != nil {
			return err
		}
		sw.csvw.Flush()
	case JSONArrays:
		if _, err := io.WriteString(sw.w, `{"headers":`); err != nil {
			return err
		}
		b, _ := json.Marshal(header)
		if _, err := sw.w.Write(b); err != nil {
			return err
		}
		if _, err := io.WriteString(sw.w, `,"data":[`); err != nil {
			return err
		}
	default: // JSONRecords
		if _, err := io.WriteString(sw.w, `{"data":[`); err != nil {
			return err
		}
	}
	sw.state = StateSendBlock
	return nil
}

// WriteBlock emits one DataFrame's worth of rows. May be called any
// number of times while in StateSendBlock.
func (sw *StreamWriter) WriteBlock(df *dataframe.DataFrame) error {
	if sw.state != StateSendBlock {
		return fmt.Errorf("format: WriteBlock called out of order")
	}
	n := df.Len()
	switch sw.kind {
	case CSV:
		row := make([]string, len(df.Columns))
		for i := 0; i < n; i++ {
			for ci, c := range df.Columns {
				row[ci] = csvCell(c, i)
			}
			if err := sw.csvw.Write(row); err != nil {
				return err
			}
		}
		sw.csvw.Flush()
		return sw.csvw.Error()
	case JSONArrays:
		for i := 0; i < n; i++ {
			if sw.wroteAnyRow {
				if _, err := io.WriteString(sw.w, ","); err != nil {
					return err
				}
			}
			row := make([]any, len(df.Columns))
			for ci, c := range df.Columns {
				row[ci] = cellJSON(c, i)
			}
			b, err := json.Marshal(row)
			if err != nil {
				return err
			}
			if _, err := sw.w.Write(b); err != nil {
				return err
			}
			sw.wroteAnyRow = true
		}
		return nil
	default: // JSONRecords
		for i := 0; i < n; i++ {
			if sw.wroteAnyRow {
				if _, err := io.WriteString(sw.w, ","); err != nil {
					return err
				}
			}
			rec := make(map[string]any, len(df.Columns))
			for _, c := range df.Columns {
				rec[c.Name] = cellJSON(c, i)
			}
			b, err := json.Marshal(rec)
			if err != nil {
				return err
			}
			if _, err := sw.w.Write(b); err != nil {
				return err
			}
			sw.wroteAnyRow = true
		}
		return nil
	}
}

// Close transitions SendBlock -> SendFooter -> Done, writing the closing
// bracket/object for JSON variants. CSV needs no footer.
func (sw *StreamWriter) Close() error {
	if sw.state != StateSendBlock {
		return fmt.Errorf("format: Close called out of order")
	}
	sw.state = StateSendFooter
	switch sw.kind {
	case JSONArrays, JSONRecords:
		if _, err := io.WriteString(sw.w, "]}"); err != nil {
			return err
		}
	}
	sw.state = StateDone
	return nil
}
