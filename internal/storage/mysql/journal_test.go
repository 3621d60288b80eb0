package mysql

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync/atomic"
	"testing"
	"testing/fstest"

	mysqldriver "github.com/go-sql-driver/mysql"

	"LLM-Oracle-Chain/deploy/migrations"
	"LLM-Oracle-Chain/internal/storage"
)

func TestSQLJournalRecord(t *testing.T) {
	t.Parallel()

	db, drv := newMockDB(t, []mockOperation{
		execOp(insertFinalizationSQL, mockResult{rowsAffected: 1}),
		{typ: opExec, query: insertFinalizationSQL, err: &mysqldriver.MySQLError{Number: erDupEntry, Message: "Duplicate entry"}},
		{typ: opExec, query: insertFinalizationSQL, err: errors.New("connection reset")},
	})
	defer drv.assertConsumed(t)
	defer db.Close()

	journal := &SQLJournal{db: db}
	entry := storage.Finalization{ID: "id-1", Request: "req", Response: "4", Signature: "sig", ModelAttempts: 1, SubmitAttempts: 1, CreatedAt: 1}
	if err := journal.Record(context.Background(), entry); err != nil {
		t.Fatalf("record failed: %v", err)
	}
	if err := journal.Record(context.Background(), entry); !errors.Is(err, storage.ErrDuplicate) {
		t.Fatalf("expected duplicate error, got %v", err)
	}
	err := journal.Record(context.Background(), entry)
	if err == nil || errors.Is(err, storage.ErrDuplicate) {
		t.Fatalf("expected plain failure, got %v", err)
	}
}

func TestSQLJournalRecent(t *testing.T) {
	t.Parallel()

	rows := mockRowsData{
		columns: []string{"id", "request", "user", "chat_context", "callback_program", "prompt", "response", "signature", "model_attempts", "submit_attempts", "created_at"},
		values: [][]driver.Value{
			{"id-2", "req-2", "u", "c", "p", "prompt", "5", "sig-2", int64(2), int64(3), int64(20)},
			{"id-1", "req-1", "u", "c", "p", "prompt", "4", "sig-1", int64(1), int64(1), int64(10)},
		},
	}
	db, drv := newMockDB(t, []mockOperation{queryOp(selectRecentSQL, rows)})
	defer drv.assertConsumed(t)
	defer db.Close()

	journal := &SQLJournal{db: db}
	list, err := journal.Recent(context.Background(), 2)
	if err != nil {
		t.Fatalf("recent failed: %v", err)
	}
	if len(list) != 2 || list[0].ID != "id-2" || list[0].SubmitAttempts != 3 || list[1].Response != "4" {
		t.Fatalf("unexpected list: %+v", list)
	}
}

func TestSQLJournalRunMigrations(t *testing.T) {
	t.Parallel()

	pending, err := loadJournalMigrations(migrations.Files)
	if err != nil {
		t.Fatalf("load migrations: %v", err)
	}
	if len(pending) != 1 || pending[0].version != 1 {
		t.Fatalf("unexpected embedded migrations: %+v", pending)
	}

	ops := []mockOperation{
		execOp(createJournalMigrationsSQL, mockResult{}),
		queryOp(selectJournalMigrationsSQL, mockRowsData{columns: []string{"version", "name", "checksum"}}),
		beginOp(),
	}
	for _, stmt := range pending[0].statements {
		ops = append(ops, execOp(stmt, mockResult{}))
	}
	ops = append(ops, execOp(insertJournalMigrationSQL, mockResult{rowsAffected: 1}), commitOp())
	db, drv := newMockDB(t, ops)
	defer drv.assertConsumed(t)
	defer db.Close()

	journal := &SQLJournal{db: db}
	if err := journal.runMigrations(context.Background()); err != nil {
		t.Fatalf("run migrations failed: %v", err)
	}
}

func TestSQLJournalSkipsAppliedMigrations(t *testing.T) {
	t.Parallel()

	fsys := fstest.MapFS{"0001_init.sql": {Data: []byte("CREATE TABLE a (id INT);")}}
	pending, err := loadJournalMigrations(fsys)
	if err != nil {
		t.Fatalf("load migrations: %v", err)
	}
	applied := mockRowsData{
		columns: []string{"version", "name", "checksum"},
		values:  [][]driver.Value{{int64(1), "0001_init.sql", pending[0].checksum}},
	}
	db, drv := newMockDB(t, []mockOperation{
		execOp(createJournalMigrationsSQL, mockResult{}),
		queryOp(selectJournalMigrationsSQL, applied),
	})
	defer drv.assertConsumed(t)
	defer db.Close()

	journal := &SQLJournal{db: db}
	if err := journal.migrate(context.Background(), fsys); err != nil {
		t.Fatalf("migrate failed: %v", err)
	}
}

func TestSQLJournalDetectsSchemaDrift(t *testing.T) {
	t.Parallel()

	fsys := fstest.MapFS{"0001_init.sql": {Data: []byte("CREATE TABLE a (id INT);")}}
	cases := map[string][][]driver.Value{
		"edited migration": {{int64(1), "0001_init.sql", strings.Repeat("0", 64)}},
		"unknown version":  nil,
	}
	for name, values := range cases {
		t.Run(name, func(t *testing.T) {
			if values == nil {
				pending, _ := loadJournalMigrations(fsys)
				values = [][]driver.Value{
					{int64(1), "0001_init.sql", pending[0].checksum},
					{int64(2), "0002_later.sql", strings.Repeat("f", 64)},
				}
			}
			db, drv := newMockDB(t, []mockOperation{
				execOp(createJournalMigrationsSQL, mockResult{}),
				queryOp(selectJournalMigrationsSQL, mockRowsData{columns: []string{"version", "name", "checksum"}, values: values}),
			})
			defer drv.assertConsumed(t)
			defer db.Close()

			journal := &SQLJournal{db: db}
			if err := journal.migrate(context.Background(), fsys); !errors.Is(err, ErrSchemaDrift) {
				t.Fatalf("expected schema drift, got %v", err)
			}
		})
	}
}

func TestSQLJournalRollsBackFailedMigration(t *testing.T) {
	t.Parallel()

	fsys := fstest.MapFS{"0001_init.sql": {Data: []byte("CREATE TABLE a (id INT);")}}
	db, drv := newMockDB(t, []mockOperation{
		execOp(createJournalMigrationsSQL, mockResult{}),
		queryOp(selectJournalMigrationsSQL, mockRowsData{columns: []string{"version", "name", "checksum"}}),
		beginOp(),
		{typ: opExec, query: "CREATE TABLE a (id INT)", err: errors.New("syntax error")},
		{typ: opRollback},
	})
	defer drv.assertConsumed(t)
	defer db.Close()

	journal := &SQLJournal{db: db}
	if err := journal.migrate(context.Background(), fsys); err == nil {
		t.Fatalf("expected failure")
	}
}

func TestLoadJournalMigrationsValidatesNames(t *testing.T) {
	t.Parallel()

	cases := map[string]fstest.MapFS{
		"missing prefix":    {"init.sql": {Data: []byte("SELECT 1;")}},
		"non numeric":       {"abc_init.sql": {Data: []byte("SELECT 1;")}},
		"duplicate version": {"0001_a.sql": {Data: []byte("SELECT 1;")}, "01_b.sql": {Data: []byte("SELECT 2;")}},
	}
	for name, fsys := range cases {
		if _, err := loadJournalMigrations(fsys); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}

	ordered, err := loadJournalMigrations(fstest.MapFS{
		"0010_late.sql":  {Data: []byte("SELECT 10;")},
		"0002_early.sql": {Data: []byte("SELECT 2; SELECT 3;")},
		"0003_empty.sql": {Data: []byte("  ;  ")},
	})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(ordered) != 2 || ordered[0].version != 2 || ordered[1].version != 10 || len(ordered[0].statements) != 2 {
		t.Fatalf("unexpected order: %+v", ordered)
	}
}

type operationType int

const (
	opExec operationType = iota
	opQuery
	opBegin
	opCommit
	opRollback
)

type mockOperation struct {
	typ    operationType
	query  string
	result mockResult
	rows   mockRowsData
	err    error
}

type mockResult struct {
	lastInsertID int64
	rowsAffected int64
}

func (r mockResult) LastInsertId() (int64, error) { return r.lastInsertID, nil }
func (r mockResult) RowsAffected() (int64, error) { return r.rowsAffected, nil }

type mockRowsData struct {
	columns []string
	values  [][]driver.Value
}

type queueDriver struct {
	ops []mockOperation
	idx int32
}

var driverSeq atomic.Int32

func newMockDB(t *testing.T, ops []mockOperation) (*sql.DB, *queueDriver) {
	t.Helper()

	drv := &queueDriver{ops: ops}
	name := fmt.Sprintf("mock-mysql-%d", driverSeq.Add(1))
	sql.Register(name, drv)

	db, err := sql.Open(name, "")
	if err != nil {
		t.Fatalf("open mock db failed: %v", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	return db, drv
}

func execOp(query string, result mockResult) mockOperation {
	return mockOperation{typ: opExec, query: query, result: result}
}

func queryOp(query string, rows mockRowsData) mockOperation {
	return mockOperation{typ: opQuery, query: query, rows: rows}
}

func beginOp() mockOperation { return mockOperation{typ: opBegin} }

func commitOp() mockOperation { return mockOperation{typ: opCommit} }

func (d *queueDriver) assertConsumed(t *testing.T) {
	t.Helper()

	if int(atomic.LoadInt32(&d.idx)) != len(d.ops) {
		t.Fatalf("not all operations consumed: %d/%d", atomic.LoadInt32(&d.idx), len(d.ops))
	}
}

func (d *queueDriver) Open(string) (driver.Conn, error) {
	return &mockConn{driver: d}, nil
}

// next 按顺序取出下一个预期操作，并校验类型与 SQL 文本。
func (d *queueDriver) next(expected operationType, query string) (*mockOperation, error) {
	idx := int(atomic.LoadInt32(&d.idx))
	if idx >= len(d.ops) {
		return nil, fmt.Errorf("unexpected operation: %v", expected)
	}
	op := &d.ops[idx]
	if op.typ != expected {
		return nil, fmt.Errorf("expected operation %v, got %v", expected, op.typ)
	}
	atomic.AddInt32(&d.idx, 1)
	if op.query != "" && normalizeSQL(op.query) != normalizeSQL(query) {
		return nil, fmt.Errorf("unexpected query. want %q got %q", normalizeSQL(op.query), normalizeSQL(query))
	}
	return op, nil
}

type mockConn struct {
	driver *queueDriver
}

func (c *mockConn) Prepare(query string) (driver.Stmt, error) {
	return nil, fmt.Errorf("prepare not supported: %s", query)
}

func (c *mockConn) Close() error { return nil }

func (c *mockConn) Begin() (driver.Tx, error) {
	return c.BeginTx(context.Background(), driver.TxOptions{})
}

func (c *mockConn) BeginTx(context.Context, driver.TxOptions) (driver.Tx, error) {
	op, err := c.driver.next(opBegin, "")
	if err != nil {
		return nil, err
	}
	if op.err != nil {
		return nil, op.err
	}
	return &mockTx{driver: c.driver}, nil
}

func (c *mockConn) ExecContext(_ context.Context, query string, _ []driver.NamedValue) (driver.Result, error) {
	op, err := c.driver.next(opExec, query)
	if err != nil {
		return nil, err
	}
	if op.err != nil {
		return nil, op.err
	}
	return op.result, nil
}

func (c *mockConn) QueryContext(_ context.Context, query string, _ []driver.NamedValue) (driver.Rows, error) {
	op, err := c.driver.next(opQuery, query)
	if err != nil {
		return nil, err
	}
	if op.err != nil {
		return nil, op.err
	}
	return &mockRows{columns: op.rows.columns, values: op.rows.values}, nil
}

func (c *mockConn) Ping(context.Context) error { return nil }

type mockTx struct {
	driver *queueDriver
}

func (t *mockTx) Commit() error {
	op, err := t.driver.next(opCommit, "")
	if err != nil {
		return err
	}
	return op.err
}

func (t *mockTx) Rollback() error {
	op, err := t.driver.next(opRollback, "")
	if err != nil {
		return err
	}
	return op.err
}

type mockRows struct {
	columns []string
	values  [][]driver.Value
	idx     int
}

func (r *mockRows) Columns() []string { return r.columns }
func (r *mockRows) Close() error      { return nil }

func (r *mockRows) Next(dest []driver.Value) error {
	if r.idx >= len(r.values) {
		return io.EOF
	}
	copy(dest, r.values[r.idx])
	r.idx++
	return nil
}

func normalizeSQL(query string) string {
	return strings.Join(strings.Fields(query), " ")
}
