package spreadsheet

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/koustreak/tablekit/internal/database/dbtest"
	"github.com/koustreak/tablekit/internal/errs"
	"github.com/koustreak/tablekit/internal/pgmeta"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var people = pgmeta.TableRef{Schema: "public", Name: "people"}

func makeRows(n int) []map[string]any {
	rows := make([]map[string]any, n)
	for i := range rows {
		rows[i] = map[string]any{"id": i + 1}
	}
	return rows
}

type progressLog struct {
	mu    sync.Mutex
	calls [][2]int64
}

func (p *progressLog) record(done, total int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, [2]int64{done, total})
}

func TestInsertRows_BatchCount(t *testing.T) {
	db := dbtest.New()
	im := NewImporter(db, Options{BatchSize: 1000})
	progress := &progressLog{}

	res, err := im.InsertRows(context.Background(), people, []string{"id"}, makeRows(2500), progress.record)
	require.NoError(t, err)

	assert.Equal(t, 3, db.Count("INSERT INTO"))
	assert.Equal(t, Result{Inserted: 2500, Batches: 3}, res)
	assert.Equal(t, [][2]int64{{2500, 2500}}, progress.calls)
}

func TestInsertRows_StopsAfterFailedGroup(t *testing.T) {
	boom := errs.New(errs.ErrKindQueryFailed, "violates not-null constraint")
	db := dbtest.New(dbtest.FailOnNth("INSERT INTO", 2, boom))
	im := NewImporter(db, Options{BatchSize: 1000, Concurrency: 1})
	progress := &progressLog{}

	res, err := im.InsertRows(context.Background(), people, []string{"id"}, makeRows(2500), progress.record)
	require.Error(t, err)

	assert.True(t, errs.IsPartialFailure(err))
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 2, db.Count("INSERT INTO"), "the third batch is never submitted")
	assert.Equal(t, 1000, res.Inserted)
	assert.Equal(t, [][2]int64{{1000, 2500}}, progress.calls)
}

func TestInsertRows_GroupIsAwaitedBeforeStopping(t *testing.T) {
	boom := errs.New(errs.ErrKindQueryFailed, "bad row")
	db := dbtest.New(dbtest.FailOnNth("INSERT INTO", 1, boom))
	im := NewImporter(db, Options{BatchSize: 10, Concurrency: 2})
	progress := &progressLog{}

	res, err := im.InsertRows(context.Background(), people, []string{"id"}, makeRows(25), progress.record)
	require.Error(t, err)

	assert.Equal(t, 2, db.Count("INSERT INTO"), "both batches of the first group run")
	assert.Equal(t, 10, res.Inserted)
	assert.Empty(t, progress.calls, "no progress for a failed group")
}

func TestInsertRows_FirstGroupFailureIsNotPartial(t *testing.T) {
	db := dbtest.New(dbtest.FailOn("INSERT INTO", errs.New(errs.ErrKindPermissionDenied, "denied")))
	im := NewImporter(db, Options{BatchSize: 5, Concurrency: 1})

	_, err := im.InsertRows(context.Background(), people, []string{"id"}, makeRows(7), nil)
	assert.True(t, errs.IsPermissionDenied(err))
}

func TestInsertRows_BatchTimeout(t *testing.T) {
	db := dbtest.New(dbtest.WithExecHook(func(ctx context.Context, _ string) error {
		<-ctx.Done()
		return ctx.Err()
	}))
	im := NewImporter(db, Options{BatchSize: 10, BatchTimeout: 20 * time.Millisecond})

	_, err := im.InsertRows(context.Background(), people, []string{"id"}, makeRows(3), nil)
	require.Error(t, err)
	assert.True(t, errs.IsTimeout(err))
}

func TestInsertRows_Empty(t *testing.T) {
	db := dbtest.New()
	res, err := NewImporter(db, Options{}).InsertRows(context.Background(), people, []string{"id"}, nil, nil)
	require.NoError(t, err)
	assert.Zero(t, res)
	assert.Empty(t, db.Statements())
}

func TestInsertRows_UsesJSONRecordset(t *testing.T) {
	db := dbtest.New()
	_, err := NewImporter(db, Options{}).InsertRows(context.Background(), people, []string{"id"}, makeRows(2), nil)
	require.NoError(t, err)

	stmt := db.Statements()[0]
	assert.Contains(t, stmt.SQL, `json_populate_recordset(NULL::"public"."people", $1::json)`)
	assert.Equal(t, []any{`[{"id":1},{"id":2}]`}, stmt.Args)
}

func peopleColumns() []pgmeta.Column {
	return []pgmeta.Column{
		{Name: "id", Format: "int8"},
		{Name: "name", Format: "text", IsNullable: true},
	}
}

func TestInsertFile(t *testing.T) {
	text := "id,name,ignored\n1,alice,x\n2,,x\n3,carol,x\n4,dan,x\n5,erin,x\n"
	db := dbtest.New()
	im := NewImporter(db, Options{BatchSize: 2})
	progress := &progressLog{}

	res, err := im.InsertFile(context.Background(), people, strings.NewReader(text), int64(len(text)),
		ParseOptions{FileName: "people.csv"}, peopleColumns(), progress.record)
	require.NoError(t, err)

	assert.Equal(t, Result{Inserted: 5, Batches: 3}, res)
	assert.Len(t, progress.calls, 3)
	assert.Equal(t, int64(len(text)), progress.calls[2][0])

	first := db.Statements()[0]
	assert.Contains(t, first.SQL, `("id", "name")`)
	assert.Equal(t, []any{`[{"id":"1","name":"alice"},{"id":"2","name":null}]`}, first.Args)
}

func TestInsertFile_AbortsOnFailedBatch(t *testing.T) {
	text := "id,name\n1,a\n2,b\n3,c\n"
	db := dbtest.New(dbtest.FailOnNth("INSERT INTO", 1, errs.New(errs.ErrKindQueryFailed, "duplicate key")))
	im := NewImporter(db, Options{BatchSize: 1})

	res, err := im.InsertFile(context.Background(), people, strings.NewReader(text), 0,
		ParseOptions{}, peopleColumns(), nil)
	require.Error(t, err)
	assert.True(t, errs.IsQueryFailed(err))
	assert.Equal(t, 0, res.Inserted)
	assert.Equal(t, 1, db.Count("INSERT INTO"))
}

func TestInsertFile_NoMatchingHeaders(t *testing.T) {
	db := dbtest.New()
	_, err := NewImporter(db, Options{}).InsertFile(context.Background(), people,
		strings.NewReader("foo\n1\n"), 0, ParseOptions{}, peopleColumns(), nil)
	assert.True(t, errs.IsInvalidInput(err))
}
