package dataset

import (
	"bytes"
	"fmt"
	"io"

	"github.com/parquet-go/parquet-go"
)

// EncodeParquet serializes records into a parquet buffer suitable for the
// snapshot store or a local snapshot file.
func EncodeParquet(records []Record) ([]byte, error) {
	buf := bytes.NewBuffer(nil)
	writer := parquet.NewGenericWriter[Record](buf)
	if _, err := writer.Write(records); err != nil {
		return nil, fmt.Errorf("write parquet rows: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close parquet writer: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeParquet reads records back from a parquet buffer.
func DecodeParquet(data []byte) ([]Record, error) {
	reader := parquet.NewGenericReader[Record](bytes.NewReader(data))
	defer func() { _ = reader.Close() }()

	records := make([]Record, 0, reader.NumRows())
	chunk := make([]Record, 256)
	for {
		n, err := reader.Read(chunk)
		records = append(records, chunk[:n]...)
		if err == io.EOF {
			return records, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read parquet rows: %w", err)
		}
	}
}
