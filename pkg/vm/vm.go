// pkg/vm/vm.go
package vm

import (
	"context"
	"fmt"

	"lunaris/pkg/btree"
	"lunaris/pkg/catalog"
	"lunaris/pkg/pager"
	"lunaris/pkg/record"
	"lunaris/pkg/types"
)

// cursorState is one open cursor slot: the underlying B+ tree cursor plus
// the static info the compiler recorded for it.
type cursorState struct {
	tree   *btree.BTree
	cursor *btree.Cursor
	info   CursorInfo
}

// Result is the outcome of running a Program: either a row set (SELECT) or
// an affected-row count (INSERT/DELETE), per spec §4.5/§4.6.
type Result struct {
	Kind        StatementKind
	ColumnNames []string
	Rows        [][]types.Value
	RowCount    int64
}

// VM is the register-based bytecode interpreter that executes a compiled
// Program, per spec §4.6: a single instruction pointer and a linear
// register file, deterministic and single-threaded per statement.
type VM struct {
	program   *Program
	pager     *pager.Pager
	catalog   *catalog.Catalog
	pc        int
	registers []types.Value
	cursors   []*cursorState
	results   [][]types.Value
	rowCount  int64
	halted    bool
}

// NewVM creates a VM ready to run program against pager's B+ trees, using
// cat to allocate synthetic rowids for tables without a leading INTEGER
// primary key.
func NewVM(program *Program, p *pager.Pager, cat *catalog.Catalog) *VM {
	return &VM{
		program:   program,
		pager:     p,
		catalog:   cat,
		registers: make([]types.Value, program.NumRegisters),
		cursors:   make([]*cursorState, len(program.Cursors)),
		results:   make([][]types.Value, 0),
	}
}

// Run executes the program until Halt.
func (vm *VM) Run() (*Result, error) {
	return vm.RunContext(context.Background())
}

// RunContext executes the program until Halt, checking ctx periodically so
// a long-running scan can be cancelled between instructions.
func (vm *VM) RunContext(ctx context.Context) (*Result, error) {
	vm.halted = false
	const maxSteps = 10_000_000
	const contextCheckInterval = 256

	for steps := 0; !vm.halted && steps < maxSteps; steps++ {
		if steps%contextCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		if vm.pc < 0 || vm.pc >= len(vm.program.Instructions) {
			return nil, fmt.Errorf("vm: program counter out of bounds: %d", vm.pc)
		}

		instr := vm.program.Instructions[vm.pc]
		if err := vm.step(instr); err != nil {
			return nil, err
		}
	}

	if !vm.halted {
		return nil, fmt.Errorf("vm: program did not halt within %d steps", maxSteps)
	}

	return &Result{
		Kind:        vm.program.Kind,
		ColumnNames: vm.program.ColumnNames,
		Rows:        vm.results,
		RowCount:    vm.finalRowCount(),
	}, nil
}

// finalRowCount reports the count last written by IncrCounter or
// ResultCount, or 0 if the program ran neither (pure SELECT programs).
func (vm *VM) finalRowCount() int64 {
	return vm.rowCount
}

// step executes a single instruction and advances pc, unless the
// instruction itself sets pc (a jump).
func (vm *VM) step(instr Instruction) error {
	advance := true

	switch instr.Op {
	case OpOpenRead, OpOpenWrite:
		info := vm.program.Cursors[instr.A]
		tree := btree.Open(vm.pager, uint32(instr.B))
		vm.cursors[instr.A] = &cursorState{tree: tree, cursor: tree.Cursor(), info: info}

	case OpRewind:
		cs := vm.cursors[instr.A]
		if err := cs.cursor.SeekFirst(); err != nil {
			return err
		}
		if !cs.cursor.Valid() {
			vm.pc = instr.B
			advance = false
		}

	case OpNext:
		cs := vm.cursors[instr.A]
		if err := cs.cursor.Next(); err != nil {
			return err
		}
		if cs.cursor.Valid() {
			vm.pc = instr.B
			advance = false
		}

	case OpColumn:
		cs := vm.cursors[instr.A]
		row, err := vm.decodeCurrentRow(cs)
		if err != nil {
			return err
		}
		if instr.B < 0 || instr.B >= len(row) {
			return fmt.Errorf("vm: column index %d out of range for %q", instr.B, cs.info.Table)
		}
		vm.registers[instr.C] = row[instr.B]

	case OpLoadConst:
		vm.registers[instr.A] = instr.Const

	case OpCompare:
		left, right := vm.registers[instr.A], vm.registers[instr.B]
		if evalCompare(instr.Cmp, left, right) {
			vm.pc = instr.C
			advance = false
		}

	case OpJumpIfFalse:
		if !isTruthy(vm.registers[instr.A]) {
			vm.pc = instr.B
			advance = false
		}

	case OpJumpIfTrue:
		if isTruthy(vm.registers[instr.A]) {
			vm.pc = instr.B
			advance = false
		}

	case OpAnd:
		vm.registers[instr.C] = types.NewBoolean(isTruthy(vm.registers[instr.A]) && isTruthy(vm.registers[instr.B]))

	case OpOr:
		vm.registers[instr.C] = types.NewBoolean(isTruthy(vm.registers[instr.A]) || isTruthy(vm.registers[instr.B]))

	case OpEmitRow:
		row := make([]types.Value, instr.B)
		copy(row, vm.registers[instr.A:instr.A+instr.B])
		vm.results = append(vm.results, row)

	case OpMakeRow:
		if err := vm.execMakeRow(instr); err != nil {
			return err
		}

	case OpDeleteCurrent:
		cs := vm.cursors[instr.A]
		if err := cs.cursor.DeleteCurrent(); err != nil {
			return err
		}

	case OpIncrCounter:
		vm.registers[instr.A] = types.NewInteger(vm.registers[instr.A].Integer() + 1)
		vm.rowCount = vm.registers[instr.A].Integer()

	case OpResultCount:
		vm.rowCount = vm.registers[instr.A].Integer()

	case OpHalt:
		vm.halted = true

	default:
		return fmt.Errorf("vm: unknown opcode %v", instr.Op)
	}

	if advance && !vm.halted {
		vm.pc++
	}
	return nil
}

// decodeCurrentRow decodes the row the cursor is positioned on against its
// table's schema. The payload always holds every declared column,
// including a leading INTEGER primary key, which execMakeRow stores
// alongside its duplicated use as the tree key.
func (vm *VM) decodeCurrentRow(cs *cursorState) (types.Row, error) {
	payload, err := cs.cursor.Payload()
	if err != nil {
		return nil, err
	}
	return record.Decode(cs.info.Schema, payload)
}

// execMakeRow encodes registers[B:B+C] against the destination cursor's
// schema and inserts it, choosing the tree key per spec §9: the leading
// INTEGER column's value if the table has one, otherwise the catalog's
// next synthetic rowid.
func (vm *VM) execMakeRow(instr Instruction) error {
	cs := vm.cursors[instr.A]
	row := make(types.Row, instr.C)
	copy(row, vm.registers[instr.B:instr.B+instr.C])

	var key int64
	if cs.info.LeadingPK {
		if row[0].Kind() != types.KindInteger {
			return fmt.Errorf("vm: primary key column is not an integer")
		}
		key = row[0].Integer()
	} else {
		rowid, err := vm.catalog.AdvanceRowID(cs.info.Table)
		if err != nil {
			return err
		}
		key = rowid
	}

	payload, err := record.Encode(cs.info.Schema, row)
	if err != nil {
		return err
	}
	return cs.cursor.Insert(key, payload)
}

// evalCompare applies op to left and right per spec §3's comparison rules.
// An undefined comparison (either operand Null, or incompatible kinds)
// reports false, so Compare simply falls through rather than jumping.
func evalCompare(op CompareOp, left, right types.Value) bool {
	cmp, ok := left.Compare(right)
	if !ok {
		return false
	}
	switch op {
	case CmpEq:
		return cmp == 0
	case CmpNe:
		return cmp != 0
	case CmpLt:
		return cmp < 0
	case CmpLe:
		return cmp <= 0
	case CmpGt:
		return cmp > 0
	case CmpGe:
		return cmp >= 0
	default:
		return false
	}
}

// isTruthy implements spec §4.5's three-valued-to-boolean collapse: only a
// Boolean register holding true is truthy. Null and everything else is
// false.
func isTruthy(v types.Value) bool {
	return v.Kind() == types.KindBoolean && v.Boolean()
}
