// pkg/vm/opcode.go
// Package vm implements the register-based bytecode interpreter that
// executes compiled SQL statements over B+ tree cursors.
package vm

import (
	"lunaris/pkg/types"
)

// Opcode identifies one VM instruction, per spec §4.5's complete opcode
// table.
type Opcode uint8

const (
	OpOpenRead Opcode = iota
	OpOpenWrite
	OpRewind
	OpNext
	OpColumn
	OpLoadConst
	OpCompare
	OpJumpIfFalse
	OpJumpIfTrue
	OpAnd
	OpOr
	OpEmitRow
	OpMakeRow
	OpDeleteCurrent
	OpIncrCounter
	OpResultCount
	OpHalt
)

func (op Opcode) String() string {
	switch op {
	case OpOpenRead:
		return "OpenRead"
	case OpOpenWrite:
		return "OpenWrite"
	case OpRewind:
		return "Rewind"
	case OpNext:
		return "Next"
	case OpColumn:
		return "Column"
	case OpLoadConst:
		return "LoadConst"
	case OpCompare:
		return "Compare"
	case OpJumpIfFalse:
		return "JumpIfFalse"
	case OpJumpIfTrue:
		return "JumpIfTrue"
	case OpAnd:
		return "And"
	case OpOr:
		return "Or"
	case OpEmitRow:
		return "EmitRow"
	case OpMakeRow:
		return "MakeRow"
	case OpDeleteCurrent:
		return "DeleteCurrent"
	case OpIncrCounter:
		return "IncrCounter"
	case OpResultCount:
		return "ResultCount"
	case OpHalt:
		return "Halt"
	default:
		return "Unknown"
	}
}

// CompareOp identifies the predicate a Compare instruction evaluates.
// Limited to the six operators spec §4.5 names.
type CompareOp uint8

const (
	CmpEq CompareOp = iota
	CmpNe
	CmpLt
	CmpLe
	CmpGt
	CmpGe
)

// Instruction is a single VM operation. Operand meaning varies per Op:
//
//	OpenRead/OpenWrite  A=cursor         B=root page
//	Rewind              A=cursor         B=jump target if the tree is empty
//	Next                A=cursor         B=jump target if another row exists
//	Column              A=cursor         B=column index   C=dest register
//	LoadConst           A=dest register  Const=literal value
//	Compare             A=reg_a B=reg_b  C=jump target if Cmp holds; Cmp=predicate
//	JumpIfFalse/True    A=register       B=jump target
//	And/Or              A=reg_a B=reg_b  C=dest register
//	EmitRow             A=first register B=register count
//	MakeRow             A=cursor         B=first register C=register count
//	DeleteCurrent       A=cursor
//	IncrCounter         A=register
//	ResultCount         A=register
//	Halt                (no operands)
type Instruction struct {
	Op      Opcode
	A, B, C int
	Const   types.Value
	Cmp     CompareOp
}

// CursorInfo describes one cursor slot a program opens: the table it reads
// or writes, that table's schema, and whether its primary key is the
// leading INTEGER column rather than a synthetic rowid (spec §9).
type CursorInfo struct {
	Table     string
	Schema    *types.Schema
	LeadingPK bool
}

// Program is the compiler's output: an instruction sequence plus the
// resources the VM must allocate to run it (spec §4.5).
type Program struct {
	Instructions []Instruction
	NumRegisters int
	Cursors      []CursorInfo
	ColumnNames  []string
	Kind         StatementKind
}

// StatementKind distinguishes a program that emits a row set from one that
// reports an affected-row count, per spec §4.5.
type StatementKind int

const (
	KindRows StatementKind = iota
	KindRowCount
)

// NewProgram returns an empty program ready for instructions to be
// appended by the compiler.
func NewProgram() *Program {
	return &Program{}
}

// Emit appends instr and returns its address, for later jump-target
// patching.
func (p *Program) Emit(instr Instruction) int {
	addr := len(p.Instructions)
	p.Instructions = append(p.Instructions, instr)
	return addr
}

// Patch rewrites the jump-target operand (B) of the instruction at addr.
// Used by the compiler to back-patch forward jumps once the target
// address is known.
func (p *Program) Patch(addr, target int) {
	p.Instructions[addr].B = target
}

// Here returns the address the next Emit call will use.
func (p *Program) Here() int {
	return len(p.Instructions)
}
