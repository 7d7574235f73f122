package spreadsheet

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/koustreak/tablekit/internal/database"
	"github.com/koustreak/tablekit/internal/errs"
	"github.com/koustreak/tablekit/internal/logger"
	"github.com/koustreak/tablekit/internal/pgmeta"
	"golang.org/x/sync/errgroup"
)

// Options tunes bulk inserts.
type Options struct {
	BatchSize    int           // rows per INSERT
	Concurrency  int           // batches submitted together as one group
	BatchTimeout time.Duration // wall-clock limit per batch
	ChunkBytes   int           // bytes of file read before a streamed batch is flushed
}

// DefaultOptions returns 1000-row batches, 10 at a time, 30s each.
func DefaultOptions() Options {
	return Options{
		BatchSize:    1000,
		Concurrency:  10,
		BatchTimeout: 30 * time.Second,
		ChunkBytes:   100 * 1024,
	}
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.BatchSize <= 0 {
		o.BatchSize = def.BatchSize
	}
	if o.Concurrency <= 0 {
		o.Concurrency = def.Concurrency
	}
	if o.BatchTimeout <= 0 {
		o.BatchTimeout = def.BatchTimeout
	}
	if o.ChunkBytes <= 0 {
		o.ChunkBytes = def.ChunkBytes
	}
	return o
}

// ProgressFunc receives the running count of inserted rows (or bytes read,
// for streamed files) and the total, 0 when unknown.
type ProgressFunc func(done, total int64)

// Result summarises an import.
type Result struct {
	Inserted int `json:"inserted"`
	Batches  int `json:"batches"`
}

// Importer inserts rows through an Execer in batches.
type Importer struct {
	db   database.Execer
	opts Options
}

// NewImporter creates an Importer. Zero option fields take defaults.
func NewImporter(db database.Execer, opts Options) *Importer {
	return &Importer{db: db, opts: opts.withDefaults()}
}

// WithExecer returns a copy of the importer that writes through db, so an
// import can join a caller's transaction.
func (im *Importer) WithExecer(db database.Execer) *Importer {
	return &Importer{db: db, opts: im.opts}
}

// Options returns the effective options.
func (im *Importer) Options() Options {
	return im.opts
}

func (im *Importer) insertBatch(ctx context.Context, table pgmeta.TableRef, columns []string, batch []map[string]any) error {
	ctx, cancel := context.WithTimeout(ctx, im.opts.BatchTimeout)
	defer cancel()

	sql, args, err := database.Insert(table.Schema, table.Name).Columns(columns...).Rows(batch).Build()
	if err != nil {
		return err
	}
	if _, err := im.db.Exec(ctx, sql, args...); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) && !errs.IsTimeout(err) {
			return errs.Wrap(errs.ErrKindTimeout, "batch insert timed out", err)
		}
		return err
	}
	return nil
}

func chunk(rows []map[string]any, size int) [][]map[string]any {
	var out [][]map[string]any
	for start := 0; start < len(rows); start += size {
		end := min(start+size, len(rows))
		out = append(out, rows[start:end])
	}
	return out
}

func stopped(inserted, total int, err error) error {
	switch {
	case inserted == 0:
		return err
	case total == 0:
		return errs.Wrap(errs.ErrKindPartialFailure, fmt.Sprintf("import stopped after %d rows", inserted), err)
	}
	return errs.Wrap(errs.ErrKindPartialFailure,
		fmt.Sprintf("import stopped after %d of %d rows", inserted, total), err)
}

// InsertRows inserts rows in batches of BatchSize. Up to Concurrency
// batches run together as a group; the whole group is awaited, and a group
// with any failed batch stops the import. Progress is reported only after
// a group fully succeeds.
func (im *Importer) InsertRows(ctx context.Context, table pgmeta.TableRef, columns []string, rows []map[string]any, onProgress ProgressFunc) (Result, error) {
	var res Result
	if len(rows) == 0 {
		return res, nil
	}
	log := logger.FromContext(ctx).Table(table.Schema, table.Name)

	batches := chunk(rows, im.opts.BatchSize)
	total := len(rows)
	reported := 0

	for start := 0; start < len(batches); start += im.opts.Concurrency {
		group := batches[start:min(start+im.opts.Concurrency, len(batches))]
		inserted := make([]int, len(group))

		var g errgroup.Group
		for i, batch := range group {
			g.Go(func() error {
				if err := im.insertBatch(ctx, table, columns, batch); err != nil {
					return err
				}
				inserted[i] = len(batch)
				return nil
			})
		}
		err := g.Wait()

		groupRows := 0
		for _, n := range inserted {
			if n > 0 {
				groupRows += n
				res.Batches++
			}
		}
		res.Inserted += groupRows

		if err != nil {
			log.ErrorWith("import batch group failed", err, map[string]any{
				"inserted": res.Inserted,
				"total":    total,
			})
			return res, stopped(res.Inserted, total, err)
		}

		reported += groupRows
		if onProgress != nil {
			onProgress(int64(reported), int64(total))
		}
	}

	log.InfoWith("rows imported", map[string]any{"rows": res.Inserted, "batches": res.Batches})
	return res, nil
}

// countingReader tracks bytes consumed from the underlying reader.
type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

// InsertFile streams a spreadsheet from r and inserts it batch by batch,
// sequentially, aborting at the first failed batch. A batch is flushed when
// it holds BatchSize rows or ChunkBytes bytes have been read since the last
// flush. size is the total byte length for progress, 0 if unknown.
func (im *Importer) InsertFile(ctx context.Context, table pgmeta.TableRef, r io.Reader, size int64, opts ParseOptions, columns []pgmeta.Column, onProgress ProgressFunc) (Result, error) {
	var res Result
	cr := &countingReader{r: r}
	rr := newRecordReader(cr, opts)

	first, err := rr.Read()
	if errors.Is(err, io.EOF) {
		return res, errs.New(errs.ErrKindInvalidInput, "spreadsheet is empty")
	}
	if err != nil {
		return res, parseError(err)
	}
	headers := headersOf(first)

	var pending []Row
	lastFlush := int64(0)

	flush := func() error {
		if len(pending) == 0 {
			return nil
		}
		values, used := FormatRows(pending, headers, columns)
		if len(used) == 0 {
			return errs.New(errs.ErrKindInvalidInput, "no spreadsheet header matches a table column")
		}
		if err := im.insertBatch(ctx, table, used, values); err != nil {
			return stopped(res.Inserted, 0, err)
		}
		res.Inserted += len(pending)
		res.Batches++
		pending = pending[:0]
		lastFlush = cr.n
		if onProgress != nil {
			onProgress(cr.n, size)
		}
		return nil
	}

	for {
		record, err := rr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return res, parseError(err)
		}
		pending = append(pending, rowOf(headers, record))
		if len(pending) >= im.opts.BatchSize || cr.n-lastFlush >= int64(im.opts.ChunkBytes) {
			if err := flush(); err != nil {
				return res, err
			}
		}
	}
	if err := flush(); err != nil {
		return res, err
	}
	return res, nil
}
