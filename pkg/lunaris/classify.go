// pkg/lunaris/classify.go
package lunaris

import (
	"errors"

	"lunaris/pkg/btree"
	"lunaris/pkg/catalog"
	"lunaris/pkg/pager"
	"lunaris/pkg/record"
	"lunaris/pkg/types"
)

// Classify converts a component-internal error into its canonical Kind,
// per spec §7's rule that "component-internal errors convert to these
// canonical kinds at the session boundary". Parser errors are not
// handled here: pkg/session wraps those as KindParse directly, since it
// is the only caller that knows an error came from parsing rather than
// from compiling, executing, or storage.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}
	if e, ok := As(err); ok {
		return e
	}

	var corrupt *pager.ErrCorruption
	switch {
	case errors.Is(err, catalog.ErrUnknownTable):
		return New(KindUnknownTable, "%v", err)
	case errors.Is(err, catalog.ErrDuplicateTable):
		return New(KindDuplicateTable, "%v", err)
	case errors.Is(err, types.ErrColumnNotFound):
		return New(KindUnknownColumn, "%v", err)
	case errors.Is(err, types.ErrDuplicateColumn):
		return New(KindParse, "%v", err)
	case errors.Is(err, record.ErrSchemaMismatch):
		return New(KindTypeMismatch, "%v", err)
	case errors.Is(err, record.ErrValueTooLong):
		return New(KindValueTooLong, "%v", err)
	case errors.Is(err, record.ErrCorruptRow):
		return New(KindInternalCorruption, "%v", err)
	case errors.Is(err, btree.ErrDuplicateKey):
		return New(KindDuplicateKey, "%v", err)
	case errors.Is(err, btree.ErrNodeFull), errors.Is(err, btree.ErrKeyNotFound):
		return New(KindInternalCorruption, "%v", err)
	case errors.Is(err, pager.ErrInvalidHeader), errors.Is(err, pager.ErrPageNotFound):
		return New(KindInternalCorruption, "%v", err)
	case errors.As(err, &corrupt):
		return New(KindInternalCorruption, "%v", err)
	case errors.Is(err, pager.ErrDatabaseLocked):
		return New(KindIO, "%v", err)
	default:
		return New(KindIO, "%v", err)
	}
}
