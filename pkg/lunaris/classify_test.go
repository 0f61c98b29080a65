// pkg/lunaris/classify_test.go
package lunaris

import (
	"errors"
	"testing"

	"lunaris/pkg/btree"
	"lunaris/pkg/catalog"
	"lunaris/pkg/pager"
	"lunaris/pkg/record"
	"lunaris/pkg/types"
)

func TestClassifyMapsSentinelErrors(t *testing.T) {
	cases := []struct {
		err  error
		want Kind
	}{
		{catalog.ErrUnknownTable, KindUnknownTable},
		{catalog.ErrDuplicateTable, KindDuplicateTable},
		{types.ErrColumnNotFound, KindUnknownColumn},
		{types.ErrDuplicateColumn, KindParse},
		{record.ErrSchemaMismatch, KindTypeMismatch},
		{record.ErrValueTooLong, KindValueTooLong},
		{record.ErrCorruptRow, KindInternalCorruption},
		{btree.ErrDuplicateKey, KindDuplicateKey},
		{btree.ErrNodeFull, KindInternalCorruption},
		{btree.ErrKeyNotFound, KindInternalCorruption},
		{pager.ErrInvalidHeader, KindInternalCorruption},
		{pager.ErrPageNotFound, KindInternalCorruption},
		{pager.ErrDatabaseLocked, KindIO},
	}
	for _, c := range cases {
		got := Classify(c.err)
		if got.Kind != c.want {
			t.Errorf("Classify(%v).Kind = %v, want %v", c.err, got.Kind, c.want)
		}
	}
}

func TestClassifyWrappedError(t *testing.T) {
	err := &wrapErr{catalog.ErrUnknownTable}
	got := Classify(err)
	if got.Kind != KindUnknownTable {
		t.Fatalf("Kind = %v, want KindUnknownTable", got.Kind)
	}
}

type wrapErr struct{ inner error }

func (w *wrapErr) Error() string { return "wrapped: " + w.inner.Error() }
func (w *wrapErr) Unwrap() error { return w.inner }

func TestClassifyPassesThroughExistingError(t *testing.T) {
	e := New(KindValueTooLong, "name too long")
	got := Classify(e)
	if got != e {
		t.Fatalf("Classify should return the same *Error unchanged")
	}
}

func TestClassifyUnknownErrorDefaultsToIO(t *testing.T) {
	got := Classify(errors.New("disk exploded"))
	if got.Kind != KindIO {
		t.Fatalf("Kind = %v, want KindIO", got.Kind)
	}
}

func TestClassifyNilIsNil(t *testing.T) {
	if Classify(nil) != nil {
		t.Fatalf("Classify(nil) should be nil")
	}
}
