package audit

import (
	"errors"
	"fmt"
	"io"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
)

// Schema returns the Arrow schema for audit entries.
//
// Fields:
//   - request_id: int64
//   - status: string
//   - value: int64 (nullable) - balance for BAL, account for ISF/OVF
//   - start_us: int64 - arrival, microseconds since the epoch
//   - end_us: int64 - completion, microseconds since the epoch
func Schema() *arrow.Schema {
	return arrow.NewSchema(
		[]arrow.Field{
			{Name: "request_id", Type: arrow.PrimitiveTypes.Int64},
			{Name: "status", Type: arrow.BinaryTypes.String},
			{Name: "value", Type: arrow.PrimitiveTypes.Int64, Nullable: true},
			{Name: "start_us", Type: arrow.PrimitiveTypes.Int64},
			{Name: "end_us", Type: arrow.PrimitiveTypes.Int64},
		},
		nil,
	)
}

// EntriesToRecord builds one record batch from entries.
// The caller must Release the returned record.
func EntriesToRecord(mem memory.Allocator, entries []Entry) arrow.Record {
	builder := array.NewRecordBuilder(mem, Schema())
	defer builder.Release()

	idBuilder := builder.Field(0).(*array.Int64Builder)
	statusBuilder := builder.Field(1).(*array.StringBuilder)
	valueBuilder := builder.Field(2).(*array.Int64Builder)
	startBuilder := builder.Field(3).(*array.Int64Builder)
	endBuilder := builder.Field(4).(*array.Int64Builder)

	for _, e := range entries {
		idBuilder.Append(e.RequestID)
		statusBuilder.Append(e.Status)
		if e.HasValue {
			valueBuilder.Append(e.Value)
		} else {
			valueBuilder.AppendNull()
		}
		startBuilder.Append(e.Start.Micros())
		endBuilder.Append(e.End.Micros())
	}

	return builder.NewRecord()
}

// ExportArrow writes entries to w as an Arrow IPC stream with one batch.
func ExportArrow(w io.Writer, entries []Entry) error {
	rec := EntriesToRecord(memory.DefaultAllocator, entries)
	defer rec.Release()

	writer := ipc.NewWriter(w, ipc.WithSchema(rec.Schema()))
	if err := writer.Write(rec); err != nil {
		_ = writer.Close()
		return fmt.Errorf("write arrow record: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("close arrow writer: %w", err)
	}
	return nil
}

// ImportArrow reads every batch of an Arrow IPC stream written by
// ExportArrow.
func ImportArrow(r io.Reader) ([]Entry, error) {
	reader, err := ipc.NewReader(r, ipc.WithSchema(Schema()))
	if err != nil {
		return nil, fmt.Errorf("create arrow reader: %w", err)
	}
	defer reader.Release()

	var entries []Entry
	for reader.Next() {
		batch, err := recordToEntries(reader.Record())
		if err != nil {
			return nil, err
		}
		entries = append(entries, batch...)
	}
	if err := reader.Err(); err != nil {
		return nil, fmt.Errorf("read arrow stream: %w", err)
	}
	return entries, nil
}

func recordToEntries(rec arrow.Record) ([]Entry, error) {
	if rec.NumCols() != 5 {
		return nil, fmt.Errorf("invalid record: expected 5 columns, got %d", rec.NumCols())
	}

	ids, ok := rec.Column(0).(*array.Int64)
	if !ok {
		return nil, errors.New("column 0 (request_id) is not an Int64 array")
	}
	statuses, ok := rec.Column(1).(*array.String)
	if !ok {
		return nil, errors.New("column 1 (status) is not a String array")
	}
	values, ok := rec.Column(2).(*array.Int64)
	if !ok {
		return nil, errors.New("column 2 (value) is not an Int64 array")
	}
	starts, ok := rec.Column(3).(*array.Int64)
	if !ok {
		return nil, errors.New("column 3 (start_us) is not an Int64 array")
	}
	ends, ok := rec.Column(4).(*array.Int64)
	if !ok {
		return nil, errors.New("column 4 (end_us) is not an Int64 array")
	}

	entries := make([]Entry, rec.NumRows())
	for i := range entries {
		e := Entry{
			RequestID: ids.Value(i),
			Status:    statuses.Value(i),
			Start:     fromMicros(starts.Value(i)),
			End:       fromMicros(ends.Value(i)),
		}
		if values.IsValid(i) {
			e.Value, e.HasValue = values.Value(i), true
		}
		entries[i] = e
	}
	return entries, nil
}

func fromMicros(us int64) Timestamp {
	return Timestamp{Sec: us / 1_000_000, Usec: us % 1_000_000}
}
