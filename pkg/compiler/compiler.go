// pkg/compiler/compiler.go
// Package compiler turns parsed SQL statements into vm.Program bytecode.
package compiler

import (
	"fmt"

	"lunaris/pkg/catalog"
	"lunaris/pkg/sql/lexer"
	"lunaris/pkg/sql/parser"
	"lunaris/pkg/types"
	"lunaris/pkg/vm"
)

// Compiler turns one parsed statement into a vm.Program against cat. A
// Compiler is single-use: callers construct a fresh one per statement.
type Compiler struct {
	catalog *catalog.Catalog
	prog    *vm.Program
	nextReg int
}

// NewCompiler returns a Compiler that resolves table and column names
// against cat.
func NewCompiler(cat *catalog.Catalog) *Compiler {
	return &Compiler{catalog: cat}
}

// Compile compiles stmt into a Program the vm package can run. CREATE
// TABLE never reaches here: it has no row-level behavior to compile and
// is applied directly against the catalog by the session layer (see
// BuildSchema).
func (c *Compiler) Compile(stmt parser.Statement) (*vm.Program, error) {
	c.prog = vm.NewProgram()
	c.nextReg = 0

	switch s := stmt.(type) {
	case *parser.SelectStmt:
		return c.compileSelect(s)
	case *parser.InsertStmt:
		return c.compileInsert(s)
	case *parser.DeleteStmt:
		return c.compileDelete(s)
	case *parser.CreateTableStmt:
		return nil, fmt.Errorf("compiler: CREATE TABLE is not compiled to bytecode, use BuildSchema")
	default:
		return nil, fmt.Errorf("compiler: unsupported statement type %T", stmt)
	}
}

func (c *Compiler) allocReg() int {
	r := c.nextReg
	c.nextReg++
	return r
}

// compileSelect compiles a full-scan, optionally WHERE-filtered, SELECT
// into a Rewind/Next loop that decodes the requested columns into a
// contiguous register run and emits them with EmitRow.
func (c *Compiler) compileSelect(s *parser.SelectStmt) (*vm.Program, error) {
	entry, err := c.catalog.Lookup(s.TableName)
	if err != nil {
		return nil, err
	}
	schema := entry.Schema

	indices, names, err := c.resolveSelectColumns(s.Columns, schema)
	if err != nil {
		return nil, err
	}

	cursor := 0
	c.prog.Cursors = []vm.CursorInfo{{Table: entry.Name, Schema: schema, LeadingPK: schema.LeadingIntegerKey()}}
	c.prog.ColumnNames = names
	c.prog.Kind = vm.KindRows

	c.prog.Emit(vm.Instruction{Op: vm.OpOpenRead, A: cursor, B: int(entry.RootPage)})
	rewindAddr := c.prog.Emit(vm.Instruction{Op: vm.OpRewind, A: cursor})
	loopStart := c.prog.Here()

	outFirst := -1
	outCount := len(indices)
	for i, idx := range indices {
		reg := c.allocReg()
		if i == 0 {
			outFirst = reg
		}
		c.prog.Emit(vm.Instruction{Op: vm.OpColumn, A: cursor, B: idx, C: reg})
	}

	emitRow := func() {
		c.prog.Emit(vm.Instruction{Op: vm.OpEmitRow, A: outFirst, B: outCount})
	}

	if s.Where != nil {
		condReg, err := c.compileBoolExpr(s.Where, schema, cursor)
		if err != nil {
			return nil, err
		}
		skipAddr := c.prog.Emit(vm.Instruction{Op: vm.OpJumpIfFalse, A: condReg})
		emitRow()
		c.prog.Patch(skipAddr, c.prog.Here())
	} else {
		emitRow()
	}

	c.prog.Emit(vm.Instruction{Op: vm.OpNext, A: cursor, B: loopStart})
	c.prog.Patch(rewindAddr, c.prog.Here())
	c.prog.Emit(vm.Instruction{Op: vm.OpHalt})

	c.prog.NumRegisters = c.nextReg
	return c.prog, nil
}

// resolveSelectColumns expands * into every declared column, in schema
// order, or resolves an explicit column list against schema.
func (c *Compiler) resolveSelectColumns(cols []parser.SelectColumn, schema *types.Schema) ([]int, []string, error) {
	if len(cols) == 1 && cols[0].Star {
		names := schema.Names()
		indices := make([]int, len(names))
		for i := range names {
			indices[i] = i
		}
		return indices, names, nil
	}

	indices := make([]int, 0, len(cols))
	names := make([]string, 0, len(cols))
	for _, col := range cols {
		idx, err := schema.IndexOf(col.Name)
		if err != nil {
			return nil, nil, err
		}
		indices = append(indices, idx)
		names = append(names, col.Name)
	}
	return indices, names, nil
}

// compileInsert compiles one or more VALUES rows into MakeRow calls
// against a single OpenWrite cursor, counting affected rows.
func (c *Compiler) compileInsert(s *parser.InsertStmt) (*vm.Program, error) {
	entry, err := c.catalog.Lookup(s.TableName)
	if err != nil {
		return nil, err
	}
	schema := entry.Schema

	colOrder, err := c.resolveInsertColumns(s.Columns, schema)
	if err != nil {
		return nil, err
	}

	cursor := 0
	c.prog.Cursors = []vm.CursorInfo{{Table: entry.Name, Schema: schema, LeadingPK: schema.LeadingIntegerKey()}}
	c.prog.Kind = vm.KindRowCount

	c.prog.Emit(vm.Instruction{Op: vm.OpOpenWrite, A: cursor, B: int(entry.RootPage)})
	counterReg := c.allocReg()
	c.prog.Emit(vm.Instruction{Op: vm.OpLoadConst, A: counterReg, Const: types.NewInteger(0)})

	for _, row := range s.Values {
		if len(row) != len(colOrder) {
			return nil, fmt.Errorf("compiler: expected %d values, got %d", len(colOrder), len(row))
		}

		regs := make([]int, len(schema.Columns))
		for i := range regs {
			regs[i] = c.allocReg()
		}
		for _, r := range regs {
			c.prog.Emit(vm.Instruction{Op: vm.OpLoadConst, A: r, Const: types.NewNull()})
		}
		for i, expr := range row {
			lit, ok := expr.(*parser.Literal)
			if !ok {
				return nil, fmt.Errorf("compiler: INSERT values must be literals")
			}
			c.prog.Emit(vm.Instruction{Op: vm.OpLoadConst, A: regs[colOrder[i]], Const: lit.Value})
		}

		c.prog.Emit(vm.Instruction{Op: vm.OpMakeRow, A: cursor, B: regs[0], C: len(regs)})
		c.prog.Emit(vm.Instruction{Op: vm.OpIncrCounter, A: counterReg})
	}

	c.prog.Emit(vm.Instruction{Op: vm.OpResultCount, A: counterReg})
	c.prog.Emit(vm.Instruction{Op: vm.OpHalt})

	c.prog.NumRegisters = c.nextReg
	return c.prog, nil
}

// resolveInsertColumns maps each value position to the schema column
// index it fills. An explicit column list may name a subset of columns,
// in any order; columns left unnamed default to NULL. Omitting the list
// requires a value for every column, in declared order.
func (c *Compiler) resolveInsertColumns(cols []string, schema *types.Schema) ([]int, error) {
	if cols == nil {
		order := make([]int, len(schema.Columns))
		for i := range order {
			order[i] = i
		}
		return order, nil
	}

	order := make([]int, len(cols))
	for i, name := range cols {
		idx, err := schema.IndexOf(name)
		if err != nil {
			return nil, err
		}
		order[i] = idx
	}
	return order, nil
}

// compileDelete compiles a full-scan, optionally WHERE-filtered, DELETE
// into a Rewind/Next loop that calls DeleteCurrent on matching rows.
// DeleteCurrent leaves the cursor invalid until the following Next, so
// every row, deleted or not, falls through to the same Next instruction.
func (c *Compiler) compileDelete(s *parser.DeleteStmt) (*vm.Program, error) {
	entry, err := c.catalog.Lookup(s.TableName)
	if err != nil {
		return nil, err
	}
	schema := entry.Schema

	cursor := 0
	c.prog.Cursors = []vm.CursorInfo{{Table: entry.Name, Schema: schema, LeadingPK: schema.LeadingIntegerKey()}}
	c.prog.Kind = vm.KindRowCount

	c.prog.Emit(vm.Instruction{Op: vm.OpOpenWrite, A: cursor, B: int(entry.RootPage)})
	counterReg := c.allocReg()
	c.prog.Emit(vm.Instruction{Op: vm.OpLoadConst, A: counterReg, Const: types.NewInteger(0)})
	rewindAddr := c.prog.Emit(vm.Instruction{Op: vm.OpRewind, A: cursor})
	loopStart := c.prog.Here()

	deleteRow := func() {
		c.prog.Emit(vm.Instruction{Op: vm.OpDeleteCurrent, A: cursor})
		c.prog.Emit(vm.Instruction{Op: vm.OpIncrCounter, A: counterReg})
	}

	if s.Where != nil {
		condReg, err := c.compileBoolExpr(s.Where, schema, cursor)
		if err != nil {
			return nil, err
		}
		skipAddr := c.prog.Emit(vm.Instruction{Op: vm.OpJumpIfFalse, A: condReg})
		deleteRow()
		c.prog.Patch(skipAddr, c.prog.Here())
	} else {
		deleteRow()
	}

	c.prog.Emit(vm.Instruction{Op: vm.OpNext, A: cursor, B: loopStart})
	c.prog.Patch(rewindAddr, c.prog.Here())
	c.prog.Emit(vm.Instruction{Op: vm.OpResultCount, A: counterReg})
	c.prog.Emit(vm.Instruction{Op: vm.OpHalt})

	c.prog.NumRegisters = c.nextReg
	return c.prog, nil
}

// compileBoolExpr compiles a WHERE expression into a single register
// holding its Boolean result. Leaf comparisons materialize into a fresh
// register via LoadConst true / Compare-jump-past / LoadConst false,
// since Compare itself is a fused test-and-branch with no destination
// register. AND/OR combine two already-materialized registers with the
// dedicated And/Or opcodes.
func (c *Compiler) compileBoolExpr(expr parser.Expression, schema *types.Schema, cursor int) (int, error) {
	bin, ok := expr.(*parser.BinaryExpr)
	if !ok {
		return 0, fmt.Errorf("compiler: unsupported WHERE expression %T", expr)
	}

	switch bin.Op {
	case lexer.AND, lexer.OR:
		leftReg, err := c.compileBoolExpr(bin.Left, schema, cursor)
		if err != nil {
			return 0, err
		}
		rightReg, err := c.compileBoolExpr(bin.Right, schema, cursor)
		if err != nil {
			return 0, err
		}
		out := c.allocReg()
		op := vm.OpAnd
		if bin.Op == lexer.OR {
			op = vm.OpOr
		}
		c.prog.Emit(vm.Instruction{Op: op, A: leftReg, B: rightReg, C: out})
		return out, nil

	default:
		cmp, err := compareOpFor(bin.Op)
		if err != nil {
			return 0, err
		}
		leftReg, err := c.compileOperand(bin.Left, schema, cursor)
		if err != nil {
			return 0, err
		}
		rightReg, err := c.compileOperand(bin.Right, schema, cursor)
		if err != nil {
			return 0, err
		}

		out := c.allocReg()
		c.prog.Emit(vm.Instruction{Op: vm.OpLoadConst, A: out, Const: types.NewBoolean(true)})
		cmpAddr := c.prog.Emit(vm.Instruction{Op: vm.OpCompare, A: leftReg, B: rightReg, Cmp: cmp})
		c.prog.Emit(vm.Instruction{Op: vm.OpLoadConst, A: out, Const: types.NewBoolean(false)})
		c.prog.Instructions[cmpAddr].C = c.prog.Here()
		return out, nil
	}
}

// compileOperand compiles one side of a comparison: a column reference
// reads via Column, a literal loads via LoadConst.
func (c *Compiler) compileOperand(expr parser.Expression, schema *types.Schema, cursor int) (int, error) {
	switch e := expr.(type) {
	case *parser.ColumnRef:
		idx, err := schema.IndexOf(e.Name)
		if err != nil {
			return 0, err
		}
		reg := c.allocReg()
		c.prog.Emit(vm.Instruction{Op: vm.OpColumn, A: cursor, B: idx, C: reg})
		return reg, nil
	case *parser.Literal:
		reg := c.allocReg()
		c.prog.Emit(vm.Instruction{Op: vm.OpLoadConst, A: reg, Const: e.Value})
		return reg, nil
	default:
		return 0, fmt.Errorf("compiler: unsupported comparison operand %T", expr)
	}
}

func compareOpFor(op lexer.TokenType) (vm.CompareOp, error) {
	switch op {
	case lexer.EQ:
		return vm.CmpEq, nil
	case lexer.NEQ:
		return vm.CmpNe, nil
	case lexer.LT:
		return vm.CmpLt, nil
	case lexer.LTE:
		return vm.CmpLe, nil
	case lexer.GT:
		return vm.CmpGt, nil
	case lexer.GTE:
		return vm.CmpGe, nil
	default:
		return 0, fmt.Errorf("compiler: unsupported comparison operator %v", op)
	}
}

// BuildSchema turns a CREATE TABLE statement's column definitions into a
// Schema, for the session layer to pass to catalog.CreateTable directly.
// CREATE TABLE has no row-level behavior, so it is never compiled to
// bytecode.
func BuildSchema(stmt *parser.CreateTableStmt) (*types.Schema, error) {
	cols := make([]types.Column, len(stmt.Columns))
	for i, cd := range stmt.Columns {
		cols[i] = types.Column{Name: cd.Name, Type: cd.Type, VarcharN: cd.VarcharN}
	}
	return types.NewSchema(cols)
}
