package indexer

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/xitongsys/parquet-go-source/writerfile"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"
	"lukechampine.com/blake3"
)

const exportPageSize = 500

// Manifest describes a finished export.
type Manifest struct {
	Path     string `json:"path"`
	Rows     int    `json:"rows"`
	FirstSeq uint64 `json:"first_seq,omitempty"`
	LastSeq  uint64 `json:"last_seq,omitempty"`
	Checksum string `json:"blake3"`
}

type parquetRow struct {
	Seq        int64  `parquet:"name=seq, type=INT64"`
	ID         string `parquet:"name=id, type=BYTE_ARRAY, convertedtype=UTF8"`
	Type       string `parquet:"name=type, type=BYTE_ARRAY, convertedtype=UTF8"`
	Attributes string `parquet:"name=attributes, type=BYTE_ARRAY, convertedtype=UTF8"`
	IndexedAt  string `parquet:"name=indexed_at, type=BYTE_ARRAY, convertedtype=UTF8"`
}

// ExportParquet writes every event matching f to path. The filter limit is
// ignored; rows are paged from the database.
func (ix *Indexer) ExportParquet(ctx context.Context, path string, f Filter) (Manifest, error) {
	file, err := os.Create(path)
	if err != nil {
		return Manifest{}, fmt.Errorf("indexer: create parquet: %w", err)
	}
	fw := writerfile.NewWriterFile(file)
	pw, err := writer.NewParquetWriter(fw, new(parquetRow), 1)
	if err != nil {
		file.Close()
		return Manifest{}, fmt.Errorf("indexer: parquet schema: %w", err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	manifest := Manifest{Path: path}
	page := f
	page.Limit = exportPageSize
	for {
		if err := ctx.Err(); err != nil {
			file.Close()
			return Manifest{}, err
		}
		var rows []EventRecord
		if err := ix.scope(ctx, page).Limit(exportPageSize).Find(&rows).Error; err != nil {
			file.Close()
			return Manifest{}, err
		}
		for _, row := range rows {
			if err := pw.Write(&parquetRow{
				Seq:        int64(row.Seq),
				ID:         row.ID.String(),
				Type:       row.Type,
				Attributes: row.Payload,
				IndexedAt:  row.IndexedAt.UTC().Format(time.RFC3339Nano),
			}); err != nil {
				file.Close()
				return Manifest{}, fmt.Errorf("indexer: parquet write: %w", err)
			}
			if manifest.Rows == 0 {
				manifest.FirstSeq = row.Seq
			}
			manifest.LastSeq = row.Seq
			manifest.Rows++
		}
		if len(rows) < exportPageSize {
			break
		}
		page.AfterSeq = rows[len(rows)-1].Seq
	}
	if err := pw.WriteStop(); err != nil {
		file.Close()
		return Manifest{}, fmt.Errorf("indexer: parquet finalize: %w", err)
	}
	if err := file.Close(); err != nil {
		return Manifest{}, err
	}
	sum, err := checksum(path)
	if err != nil {
		return Manifest{}, err
	}
	manifest.Checksum = sum
	ix.logger.Info("events exported", "path", path, "rows", manifest.Rows)
	return manifest, nil
}

func checksum(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer file.Close()
	h := blake3.New(32, nil)
	if _, err := io.Copy(h, file); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
