// pkg/sql/parser/parser.go
package parser

import (
	"fmt"
	"strconv"

	"lunaris/pkg/sql/lexer"
	"lunaris/pkg/types"
)

// Parser is a recursive descent SQL parser for the minimal dialect spec §6
// describes: CREATE TABLE, INSERT, SELECT, DELETE, with WHERE limited to
// column/literal comparisons combined by AND/OR/parens.
type Parser struct {
	lexer *lexer.Lexer
	cur   lexer.Token
	peek  lexer.Token
}

// New creates a new Parser for the given SQL input.
func New(input string) *Parser {
	p := &Parser{lexer: lexer.New(input)}
	p.nextToken()
	p.nextToken()
	return p
}

func (p *Parser) nextToken() {
	p.cur = p.peek
	p.peek = p.lexer.NextToken()
}

func (p *Parser) curIs(t lexer.TokenType) bool  { return p.cur.Type == t }
func (p *Parser) peekIs(t lexer.TokenType) bool { return p.peek.Type == t }

func (p *Parser) expectPeek(t lexer.TokenType) bool {
	if p.peekIs(t) {
		p.nextToken()
		return true
	}
	return false
}

// Parse parses a single statement from the input.
func (p *Parser) Parse() (Statement, error) {
	switch p.cur.Type {
	case lexer.CREATE:
		return p.parseCreateTable()
	case lexer.INSERT:
		return p.parseInsert()
	case lexer.SELECT:
		return p.parseSelect()
	case lexer.DELETE:
		return p.parseDelete()
	default:
		return nil, fmt.Errorf("unexpected token: %q", p.cur.Literal)
	}
}

// parseCreateTable parses: CREATE TABLE name (col TYPE, ...)
func (p *Parser) parseCreateTable() (*CreateTableStmt, error) {
	if !p.expectPeek(lexer.TABLE) {
		return nil, fmt.Errorf("expected TABLE after CREATE, got %q", p.peek.Literal)
	}
	if !p.expectPeek(lexer.IDENT) {
		return nil, fmt.Errorf("expected table name, got %q", p.peek.Literal)
	}
	stmt := &CreateTableStmt{TableName: p.cur.Literal}

	if !p.expectPeek(lexer.LPAREN) {
		return nil, fmt.Errorf("expected '(', got %q", p.peek.Literal)
	}

	for {
		col, err := p.parseColumnDef()
		if err != nil {
			return nil, err
		}
		stmt.Columns = append(stmt.Columns, col)

		if p.peekIs(lexer.COMMA) {
			p.nextToken()
			continue
		}
		break
	}

	if len(stmt.Columns) == 0 {
		return nil, fmt.Errorf("CREATE TABLE requires at least one column")
	}

	if !p.expectPeek(lexer.RPAREN) {
		return nil, fmt.Errorf("expected ')' or ',', got %q", p.peek.Literal)
	}

	return stmt, nil
}

// parseColumnDef parses: name TYPE, where TYPE is INTEGER | FLOAT | BOOLEAN
// | VARCHAR(n). Leaves cur on the definition's last token.
func (p *Parser) parseColumnDef() (ColumnDef, error) {
	if !p.expectPeek(lexer.IDENT) {
		return ColumnDef{}, fmt.Errorf("expected column name, got %q", p.peek.Literal)
	}
	col := ColumnDef{Name: p.cur.Literal}

	p.nextToken()
	switch p.cur.Type {
	case lexer.INTEGER_TYPE:
		col.Type = types.ColInteger
	case lexer.FLOAT_TYPE:
		col.Type = types.ColFloat
	case lexer.BOOLEAN_TYPE:
		col.Type = types.ColBoolean
	case lexer.VARCHAR_TYPE:
		col.Type = types.ColVarchar
		if !p.expectPeek(lexer.LPAREN) {
			return col, fmt.Errorf("expected '(' after VARCHAR, got %q", p.peek.Literal)
		}
		if !p.expectPeek(lexer.INT) {
			return col, fmt.Errorf("expected VARCHAR length, got %q", p.peek.Literal)
		}
		n, err := strconv.Atoi(p.cur.Literal)
		if err != nil || n < 1 {
			return col, fmt.Errorf("invalid VARCHAR length: %q", p.cur.Literal)
		}
		col.VarcharN = n
		if !p.expectPeek(lexer.RPAREN) {
			return col, fmt.Errorf("expected ')' after VARCHAR length, got %q", p.peek.Literal)
		}
	default:
		return col, fmt.Errorf("expected column type, got %q", p.cur.Literal)
	}

	return col, nil
}

// parseInsert parses: INSERT INTO table [(cols)] VALUES (v, ...), ...
func (p *Parser) parseInsert() (*InsertStmt, error) {
	if !p.expectPeek(lexer.INTO) {
		return nil, fmt.Errorf("expected INTO after INSERT, got %q", p.peek.Literal)
	}
	if !p.expectPeek(lexer.IDENT) {
		return nil, fmt.Errorf("expected table name, got %q", p.peek.Literal)
	}
	stmt := &InsertStmt{TableName: p.cur.Literal}

	if p.peekIs(lexer.LPAREN) {
		p.nextToken()
		cols, err := p.parseIdentList()
		if err != nil {
			return nil, err
		}
		stmt.Columns = cols
		if !p.expectPeek(lexer.RPAREN) {
			return nil, fmt.Errorf("expected ')', got %q", p.peek.Literal)
		}
	}

	if !p.expectPeek(lexer.VALUES) {
		return nil, fmt.Errorf("expected VALUES, got %q", p.peek.Literal)
	}

	for {
		if !p.expectPeek(lexer.LPAREN) {
			return nil, fmt.Errorf("expected '(', got %q", p.peek.Literal)
		}
		row, err := p.parseExpressionList()
		if err != nil {
			return nil, err
		}
		stmt.Values = append(stmt.Values, row)
		if !p.expectPeek(lexer.RPAREN) {
			return nil, fmt.Errorf("expected ')', got %q", p.peek.Literal)
		}

		if p.peekIs(lexer.COMMA) {
			p.nextToken()
			continue
		}
		break
	}

	return stmt, nil
}

// parseSelect parses: SELECT (* | col, ...) FROM table [WHERE expr]
func (p *Parser) parseSelect() (*SelectStmt, error) {
	p.nextToken() // consume SELECT
	stmt := &SelectStmt{}

	if p.curIs(lexer.STAR) {
		stmt.Columns = []SelectColumn{{Star: true}}
	} else {
		for {
			if !p.curIs(lexer.IDENT) {
				return nil, fmt.Errorf("expected column name or '*', got %q", p.cur.Literal)
			}
			stmt.Columns = append(stmt.Columns, SelectColumn{Name: p.cur.Literal})
			if p.peekIs(lexer.COMMA) {
				p.nextToken()
				p.nextToken()
				continue
			}
			break
		}
	}

	if !p.expectPeek(lexer.FROM) {
		return nil, fmt.Errorf("expected FROM, got %q", p.peek.Literal)
	}
	if !p.expectPeek(lexer.IDENT) {
		return nil, fmt.Errorf("expected table name, got %q", p.peek.Literal)
	}
	stmt.TableName = p.cur.Literal

	if p.peekIs(lexer.WHERE) {
		p.nextToken()
		p.nextToken()
		where, err := p.parseExpression(lowest)
		if err != nil {
			return nil, err
		}
		stmt.Where = where
	}

	return stmt, nil
}

// parseDelete parses: DELETE FROM table [WHERE expr]
func (p *Parser) parseDelete() (*DeleteStmt, error) {
	if !p.expectPeek(lexer.FROM) {
		return nil, fmt.Errorf("expected FROM after DELETE, got %q", p.peek.Literal)
	}
	if !p.expectPeek(lexer.IDENT) {
		return nil, fmt.Errorf("expected table name, got %q", p.peek.Literal)
	}
	stmt := &DeleteStmt{TableName: p.cur.Literal}

	if p.peekIs(lexer.WHERE) {
		p.nextToken()
		p.nextToken()
		where, err := p.parseExpression(lowest)
		if err != nil {
			return nil, err
		}
		stmt.Where = where
	}

	return stmt, nil
}

func (p *Parser) parseIdentList() ([]string, error) {
	var idents []string
	p.nextToken()
	for {
		if !p.curIs(lexer.IDENT) {
			return nil, fmt.Errorf("expected identifier, got %q", p.cur.Literal)
		}
		idents = append(idents, p.cur.Literal)
		if p.peekIs(lexer.COMMA) {
			p.nextToken()
			p.nextToken()
			continue
		}
		break
	}
	return idents, nil
}

func (p *Parser) parseExpressionList() ([]Expression, error) {
	var exprs []Expression
	p.nextToken()
	for {
		expr, err := p.parseExpression(lowest)
		if err != nil {
			return nil, err
		}
		exprs = append(exprs, expr)
		if p.peekIs(lexer.COMMA) {
			p.nextToken()
			p.nextToken()
			continue
		}
		break
	}
	return exprs, nil
}

// Precedence levels, lowest to highest.
const (
	_ int = iota
	lowest
	orPrec
	andPrec
	comparePrec
)

var precedences = map[lexer.TokenType]int{
	lexer.OR:  orPrec,
	lexer.AND: andPrec,
	lexer.EQ:  comparePrec,
	lexer.NEQ: comparePrec,
	lexer.LT:  comparePrec,
	lexer.GT:  comparePrec,
	lexer.LTE: comparePrec,
	lexer.GTE: comparePrec,
}

func (p *Parser) peekPrecedence() int {
	if prec, ok := precedences[p.peek.Type]; ok {
		return prec
	}
	return lowest
}

// parseExpression implements the restricted grammar of §4.5: comparisons
// whose operands are column references or literals, combined with AND, OR,
// and parentheses. It does not require one operand of each kind, so
// column-to-column comparisons also parse. No NOT, IN, or LIKE.
func (p *Parser) parseExpression(precedence int) (Expression, error) {
	left, err := p.parsePrefixExpression()
	if err != nil {
		return nil, err
	}

	for !p.peekIs(lexer.EOF) && !p.peekIs(lexer.SEMICOLON) && !p.peekIs(lexer.RPAREN) &&
		precedence < p.peekPrecedence() {
		p.nextToken()
		op := p.cur.Type
		prec := precedences[op]
		p.nextToken()
		right, err := p.parseExpression(prec)
		if err != nil {
			return nil, err
		}
		left = &BinaryExpr{Left: left, Op: op, Right: right}
	}

	return left, nil
}

func (p *Parser) parsePrefixExpression() (Expression, error) {
	switch p.cur.Type {
	case lexer.INT:
		n, err := strconv.ParseInt(p.cur.Literal, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid integer literal: %q", p.cur.Literal)
		}
		return &Literal{Value: types.NewInteger(n)}, nil
	case lexer.FLOAT:
		f, err := strconv.ParseFloat(p.cur.Literal, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid float literal: %q", p.cur.Literal)
		}
		return &Literal{Value: types.NewFloat(f)}, nil
	case lexer.STRING:
		return &Literal{Value: types.NewText(p.cur.Literal)}, nil
	case lexer.TRUE_KW:
		return &Literal{Value: types.NewBoolean(true)}, nil
	case lexer.FALSE_KW:
		return &Literal{Value: types.NewBoolean(false)}, nil
	case lexer.NULL_KW:
		return &Literal{Value: types.NewNull()}, nil
	case lexer.IDENT:
		return &ColumnRef{Name: p.cur.Literal}, nil
	case lexer.LPAREN:
		p.nextToken()
		expr, err := p.parseExpression(lowest)
		if err != nil {
			return nil, err
		}
		if !p.expectPeek(lexer.RPAREN) {
			return nil, fmt.Errorf("expected ')', got %q", p.peek.Literal)
		}
		return expr, nil
	default:
		return nil, fmt.Errorf("unexpected token in expression: %q", p.cur.Literal)
	}
}
