// pkg/catalog/catalog_test.go
package catalog

import (
	"path/filepath"
	"testing"

	"lunaris/pkg/pager"
	"lunaris/pkg/types"
)

func openTestPager(t *testing.T) *pager.Pager {
	t.Helper()
	dir := t.TempDir()
	p, err := pager.Open(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("pager.Open: %v", err)
	}
	t.Cleanup(func() { p.Close() })
	return p
}

func testSchema(t *testing.T) *types.Schema {
	t.Helper()
	s, err := types.NewSchema([]types.Column{
		{Name: "id", Type: types.ColInteger},
		{Name: "name", Type: types.ColVarchar, VarcharN: 32},
	})
	if err != nil {
		t.Fatalf("NewSchema: %v", err)
	}
	return s
}

func TestCatalogCreateAndLookup(t *testing.T) {
	p := openTestPager(t)
	cat, err := Create(p)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	entry, err := cat.CreateTable("Users", testSchema(t))
	if err != nil {
		t.Fatalf("CreateTable: %v", err)
	}
	if entry.RootPage == 0 {
		t.Fatalf("expected nonzero root page")
	}

	found, err := cat.Lookup("users")
	if err != nil {
		t.Fatalf("Lookup (lowercase): %v", err)
	}
	if found.Name != "Users" {
		t.Fatalf("expected display name %q preserved, got %q", "Users", found.Name)
	}

	found2, err := cat.Lookup("USERS")
	if err != nil {
		t.Fatalf("Lookup (uppercase): %v", err)
	}
	if found2.RootPage != entry.RootPage {
		t.Fatalf("root page mismatch across case-insensitive lookups")
	}
}

func TestCatalogDuplicateTable(t *testing.T) {
	p := openTestPager(t)
	cat, err := Create(p)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := cat.CreateTable("t", testSchema(t)); err != nil {
		t.Fatalf("CreateTable: %v", err)
	}
	if _, err := cat.CreateTable("T", testSchema(t)); err != ErrDuplicateTable {
		t.Fatalf("expected ErrDuplicateTable, got %v", err)
	}
}

func TestCatalogUnknownTable(t *testing.T) {
	p := openTestPager(t)
	cat, err := Create(p)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := cat.Lookup("nope"); err != ErrUnknownTable {
		t.Fatalf("expected ErrUnknownTable, got %v", err)
	}
}

func TestCatalogAdvanceRowID(t *testing.T) {
	p := openTestPager(t)
	cat, err := Create(p)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := cat.CreateTable("t", testSchema(t)); err != nil {
		t.Fatalf("CreateTable: %v", err)
	}

	first, err := cat.AdvanceRowID("t")
	if err != nil {
		t.Fatalf("AdvanceRowID: %v", err)
	}
	second, err := cat.AdvanceRowID("t")
	if err != nil {
		t.Fatalf("AdvanceRowID: %v", err)
	}
	if first != 1 || second != 2 {
		t.Fatalf("expected rowids 1, 2, got %d, %d", first, second)
	}
}

func TestCatalogReopenSurvives(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.db")

	p, err := pager.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	cat, err := Create(p)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := cat.CreateTable("t", testSchema(t)); err != nil {
		t.Fatalf("CreateTable: %v", err)
	}
	if err := p.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	p2, err := pager.Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer p2.Close()

	cat2 := Open(p2)
	entry, err := cat2.Lookup("t")
	if err != nil {
		t.Fatalf("Lookup after reopen: %v", err)
	}
	if len(entry.Schema.Columns) != 2 {
		t.Fatalf("expected 2 columns after reopen, got %d", len(entry.Schema.Columns))
	}
}
