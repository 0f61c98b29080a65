// pkg/compiler/compiler_test.go
package compiler

import (
	"bytes"
	"math/rand"
	"path/filepath"
	"testing"

	"lunaris/pkg/catalog"
	"lunaris/pkg/pager"
	"lunaris/pkg/record"
	"lunaris/pkg/sql/parser"
	"lunaris/pkg/types"
	"lunaris/pkg/vm"
)

func openTestDB(t *testing.T) (*pager.Pager, *catalog.Catalog) {
	t.Helper()
	dir := t.TempDir()
	p, err := pager.Open(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("pager.Open: %v", err)
	}
	t.Cleanup(func() { p.Close() })
	cat, err := catalog.Create(p)
	if err != nil {
		t.Fatalf("catalog.Create: %v", err)
	}
	return p, cat
}

func mustParse(t *testing.T, sql string) parser.Statement {
	t.Helper()
	stmt, err := parser.New(sql).Parse()
	if err != nil {
		t.Fatalf("Parse(%q): %v", sql, err)
	}
	return stmt
}

func mustCreateTable(t *testing.T, cat *catalog.Catalog, sql string) *catalog.Entry {
	t.Helper()
	ct := mustParse(t, sql).(*parser.CreateTableStmt)
	schema, err := BuildSchema(ct)
	if err != nil {
		t.Fatalf("BuildSchema: %v", err)
	}
	entry, err := cat.CreateTable(ct.TableName, schema)
	if err != nil {
		t.Fatalf("CreateTable: %v", err)
	}
	return entry
}

func mustRun(t *testing.T, p *pager.Pager, cat *catalog.Catalog, sql string) *vm.Result {
	t.Helper()
	stmt := mustParse(t, sql)
	prog, err := NewCompiler(cat).Compile(stmt)
	if err != nil {
		t.Fatalf("Compile(%q): %v", sql, err)
	}
	res, err := vm.NewVM(prog, p, cat).Run()
	if err != nil {
		t.Fatalf("Run(%q): %v", sql, err)
	}
	return res
}

func TestCompileInsertAndSelectStar(t *testing.T) {
	p, cat := openTestDB(t)
	mustCreateTable(t, cat, "CREATE TABLE t(id INTEGER, name VARCHAR(8))")

	ins := mustRun(t, p, cat, "INSERT INTO t VALUES (1,'a'),(2,'bb'),(3,'ccc')")
	if ins.RowCount != 3 {
		t.Fatalf("insert RowCount = %d, want 3", ins.RowCount)
	}

	sel := mustRun(t, p, cat, "SELECT * FROM t")
	if len(sel.Rows) != 3 {
		t.Fatalf("select rows = %d, want 3", len(sel.Rows))
	}
	if sel.ColumnNames[0] != "id" || sel.ColumnNames[1] != "name" {
		t.Fatalf("column names = %v", sel.ColumnNames)
	}
	if sel.Rows[0][0].Integer() != 1 || sel.Rows[0][1].Text() != "a" {
		t.Fatalf("row 0 = %+v", sel.Rows[0])
	}
	if sel.Rows[2][1].Text() != "ccc" {
		t.Fatalf("row 2 = %+v", sel.Rows[2])
	}
}

func TestCompileInsertWithColumnList(t *testing.T) {
	p, cat := openTestDB(t)
	mustCreateTable(t, cat, "CREATE TABLE t(id INTEGER, name VARCHAR(8), score FLOAT)")

	mustRun(t, p, cat, "INSERT INTO t (id, name) VALUES (1, 'a')")
	sel := mustRun(t, p, cat, "SELECT id, name, score FROM t")
	if len(sel.Rows) != 1 {
		t.Fatalf("rows = %d, want 1", len(sel.Rows))
	}
	row := sel.Rows[0]
	if row[0].Integer() != 1 || row[1].Text() != "a" {
		t.Fatalf("row = %+v", row)
	}
	if !row[2].IsNull() {
		t.Fatalf("expected score NULL, got %+v", row[2])
	}
}

func TestCompileSelectColumnList(t *testing.T) {
	p, cat := openTestDB(t)
	mustCreateTable(t, cat, "CREATE TABLE t(id INTEGER, name VARCHAR(8))")
	mustRun(t, p, cat, "INSERT INTO t VALUES (1,'a'),(2,'b')")

	sel := mustRun(t, p, cat, "SELECT name, id FROM t")
	if len(sel.ColumnNames) != 2 || sel.ColumnNames[0] != "name" || sel.ColumnNames[1] != "id" {
		t.Fatalf("column names = %v", sel.ColumnNames)
	}
	if sel.Rows[0][0].Text() != "a" || sel.Rows[0][1].Integer() != 1 {
		t.Fatalf("row 0 = %+v", sel.Rows[0])
	}
}

func TestCompileSelectWithWhereComparison(t *testing.T) {
	p, cat := openTestDB(t)
	mustCreateTable(t, cat, "CREATE TABLE t(id INTEGER, name VARCHAR(8))")
	mustRun(t, p, cat, "INSERT INTO t VALUES (1,'a'),(2,'b'),(3,'c'),(4,'d')")

	sel := mustRun(t, p, cat, "SELECT id FROM t WHERE id >= 2")
	if len(sel.Rows) != 3 {
		t.Fatalf("rows = %d, want 3", len(sel.Rows))
	}
	for _, row := range sel.Rows {
		if row[0].Integer() < 2 {
			t.Fatalf("unexpected row %+v", row)
		}
	}
}

func TestCompileSelectWhereAndOrPrecedence(t *testing.T) {
	p, cat := openTestDB(t)
	mustCreateTable(t, cat, "CREATE TABLE t(id INTEGER, name VARCHAR(8))")
	for i := int64(1); i <= 8; i++ {
		mustRun(t, p, cat, sqlInsertOne(i))
	}

	// (id > 3 AND id < 6) OR id = 1  ->  {1, 4, 5}
	sel := mustRun(t, p, cat, "SELECT id FROM t WHERE (id > 3 AND id < 6) OR id = 1")
	got := map[int64]bool{}
	for _, row := range sel.Rows {
		got[row[0].Integer()] = true
	}
	want := []int64{1, 4, 5}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for _, id := range want {
		if !got[id] {
			t.Fatalf("missing id %d in %v", id, got)
		}
	}
}

func sqlInsertOne(id int64) string {
	return "INSERT INTO t VALUES (" + itoa(id) + ",'x')"
}

func itoa(n int64) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

func TestCompileDeleteWithWhere(t *testing.T) {
	p, cat := openTestDB(t)
	mustCreateTable(t, cat, "CREATE TABLE t(id INTEGER, name VARCHAR(8))")
	for i := int64(1); i <= 5; i++ {
		mustRun(t, p, cat, sqlInsertOne(i))
	}

	del := mustRun(t, p, cat, "DELETE FROM t WHERE id = 3")
	if del.RowCount != 1 {
		t.Fatalf("RowCount = %d, want 1", del.RowCount)
	}

	sel := mustRun(t, p, cat, "SELECT id FROM t")
	if len(sel.Rows) != 4 {
		t.Fatalf("rows = %d, want 4", len(sel.Rows))
	}
	for _, row := range sel.Rows {
		if row[0].Integer() == 3 {
			t.Fatalf("id 3 still present")
		}
	}
}

func TestCompileDeleteWithoutWhere(t *testing.T) {
	p, cat := openTestDB(t)
	mustCreateTable(t, cat, "CREATE TABLE orders(id INTEGER, name VARCHAR(8))")
	for i := int64(1); i <= 10; i++ {
		mustRun(t, p, cat, "INSERT INTO orders VALUES ("+itoa(i)+",'x')")
	}

	del := mustRun(t, p, cat, "DELETE FROM orders")
	if del.RowCount != 10 {
		t.Fatalf("RowCount = %d, want 10", del.RowCount)
	}

	sel := mustRun(t, p, cat, "SELECT * FROM orders")
	if len(sel.Rows) != 0 {
		t.Fatalf("rows = %d, want 0", len(sel.Rows))
	}
}

func TestCompileDeleteConsecutiveMatches(t *testing.T) {
	p, cat := openTestDB(t)
	mustCreateTable(t, cat, "CREATE TABLE t(id INTEGER, name VARCHAR(8))")
	for i := int64(0); i < 10; i++ {
		mustRun(t, p, cat, sqlInsertOne(i))
	}

	// Deletes the first three rows, a run of adjacent deletes in key order,
	// exercising DeleteCurrent's invalid-until-Next contract across
	// consecutive matches.
	del := mustRun(t, p, cat, "DELETE FROM t WHERE id < 3")
	if del.RowCount != 3 {
		t.Fatalf("RowCount = %d, want 3", del.RowCount)
	}
	sel := mustRun(t, p, cat, "SELECT id FROM t")
	if len(sel.Rows) != 7 {
		t.Fatalf("rows = %d, want 7", len(sel.Rows))
	}
	for _, row := range sel.Rows {
		if row[0].Integer() < 3 {
			t.Fatalf("unexpected surviving row %+v", row)
		}
	}
}

func TestCompileUnknownTableErrors(t *testing.T) {
	_, cat := openTestDB(t)
	stmt := mustParse(t, "SELECT * FROM nope")
	if _, err := NewCompiler(cat).Compile(stmt); err != catalog.ErrUnknownTable {
		t.Fatalf("err = %v, want ErrUnknownTable", err)
	}
}

func TestCompileUnknownColumnErrors(t *testing.T) {
	_, cat := openTestDB(t)
	mustCreateTable(t, cat, "CREATE TABLE t(id INTEGER)")
	stmt := mustParse(t, "SELECT ghost FROM t")
	if _, err := NewCompiler(cat).Compile(stmt); err != types.ErrColumnNotFound {
		t.Fatalf("err = %v, want ErrColumnNotFound", err)
	}
}

func TestCompileInsertValueCountMismatchErrors(t *testing.T) {
	_, cat := openTestDB(t)
	mustCreateTable(t, cat, "CREATE TABLE t(id INTEGER, name VARCHAR(8))")
	stmt := mustParse(t, "INSERT INTO t (id) VALUES (1, 'a')")
	if _, err := NewCompiler(cat).Compile(stmt); err == nil {
		t.Fatalf("expected value-count mismatch error")
	}
}

// TestEndToEndShuffledBulkInsertOrdersByKey exercises the end-to-end
// scenario of inserting a large key set in random order and reading it
// back in ascending order, with the file growing past one page and the
// catalog surviving a reopen.
func TestEndToEndShuffledBulkInsertOrdersByKey(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bulk.db")

	const n = 10000
	keys := make([]int64, n)
	for i := range keys {
		keys[i] = int64(i + 1)
	}
	rng := rand.New(rand.NewSource(1))
	rng.Shuffle(len(keys), func(i, j int) { keys[i], keys[j] = keys[j], keys[i] })

	p, err := pager.Open(path)
	if err != nil {
		t.Fatalf("pager.Open: %v", err)
	}
	cat, err := catalog.Create(p)
	if err != nil {
		t.Fatalf("catalog.Create: %v", err)
	}
	mustCreateTable(t, cat, "CREATE TABLE t(id INTEGER)")

	for _, k := range keys {
		mustRun(t, p, cat, "INSERT INTO t VALUES ("+itoa(k)+")")
	}

	if p.PageCount()*pager.PageSize <= 4096 {
		t.Fatalf("expected file to grow past one page, got %d pages", p.PageCount())
	}

	sel := mustRun(t, p, cat, "SELECT id FROM t")
	if len(sel.Rows) != n {
		t.Fatalf("rows = %d, want %d", len(sel.Rows), n)
	}
	for i, row := range sel.Rows {
		if row[0].Integer() != int64(i+1) {
			t.Fatalf("row %d = %d, want %d", i, row[0].Integer(), i+1)
		}
	}

	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	p2, err := pager.Open(path)
	if err != nil {
		t.Fatalf("reopen pager.Open: %v", err)
	}
	defer p2.Close()
	cat2 := catalog.Open(p2)

	sel2 := mustRun(t, p2, cat2, "SELECT id FROM t")
	if len(sel2.Rows) != n {
		t.Fatalf("rows after reopen = %d, want %d", len(sel2.Rows), n)
	}
}

func TestEndToEndBooleanNullDoesNotMatch(t *testing.T) {
	p, cat := openTestDB(t)
	mustCreateTable(t, cat, "CREATE TABLE u(id INTEGER, active BOOLEAN)")
	mustRun(t, p, cat, "INSERT INTO u VALUES (1, TRUE), (2, FALSE), (3, NULL)")

	sel := mustRun(t, p, cat, "SELECT * FROM u WHERE active = TRUE")
	if len(sel.Rows) != 1 {
		t.Fatalf("rows = %d, want 1", len(sel.Rows))
	}
	if sel.Rows[0][0].Integer() != 1 {
		t.Fatalf("row = %+v, want id 1", sel.Rows[0])
	}
}

func TestEndToEndDeleteByKeyLeavesRemainderIntact(t *testing.T) {
	p, cat := openTestDB(t)
	mustCreateTable(t, cat, "CREATE TABLE t(id INTEGER)")
	for i := int64(1); i <= 10000; i++ {
		mustRun(t, p, cat, "INSERT INTO t VALUES ("+itoa(i)+")")
	}

	mustRun(t, p, cat, "DELETE FROM t WHERE id = 5000")

	sel := mustRun(t, p, cat, "SELECT id FROM t WHERE id = 5000")
	if len(sel.Rows) != 0 {
		t.Fatalf("rows = %d, want 0", len(sel.Rows))
	}

	all := mustRun(t, p, cat, "SELECT id FROM t")
	if len(all.Rows) != 9999 {
		t.Fatalf("remaining rows = %d, want 9999", len(all.Rows))
	}
}

func TestEndToEndValueTooLongLeavesTableUnchanged(t *testing.T) {
	p, cat := openTestDB(t)
	mustCreateTable(t, cat, "CREATE TABLE t(id INTEGER, name VARCHAR(8))")
	mustRun(t, p, cat, "INSERT INTO t VALUES (1,'a'),(2,'bb'),(3,'ccc')")
	if err := p.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	before := snapshotPages(t, p)

	stmt := mustParse(t, "INSERT INTO t VALUES (4,'too_long_string')")
	prog, err := NewCompiler(cat).Compile(stmt)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if _, err := vm.NewVM(prog, p, cat).Run(); err != record.ErrValueTooLong {
		t.Fatalf("err = %v, want ErrValueTooLong", err)
	}
	if err := p.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	after := snapshotPages(t, p)
	if !bytes.Equal(before, after) {
		t.Fatalf("table pages changed after a rejected insert")
	}

	sel := mustRun(t, p, cat, "SELECT * FROM t")
	if len(sel.Rows) != 3 {
		t.Fatalf("rows = %d, want 3 (unchanged)", len(sel.Rows))
	}
}

// snapshotPages reads every allocated page's raw bytes, for byte-for-byte
// before/after comparisons.
func snapshotPages(t *testing.T, p *pager.Pager) []byte {
	t.Helper()
	var buf bytes.Buffer
	for i := uint32(0); i < p.PageCount(); i++ {
		page, err := p.Get(i)
		if err != nil {
			t.Fatalf("Get(%d): %v", i, err)
		}
		buf.Write(page.Data())
	}
	return buf.Bytes()
}
