package sql

import (
	"quelldb/internal/expr"
	"quelldb/internal/types"
)

// JoinKind enumerates the supported join flavors. Comma-separated FROM
// items lower to CrossJoin with a nil On clause.
type JoinKind int

const (
	CrossJoin JoinKind = iota
	InnerJoin
	LeftJoin
	RightJoin
)

// TableRef is the sum type for one FROM-clause source: a named table, a
// join of two sources, or a parenthesized subquery with an alias.
type TableRef interface{ tableRef() }

// NamedTable references a table by name, with an optional alias.
type NamedTable struct {
	Name  string
	Alias string
}

func (NamedTable) tableRef() {}

// Join combines two table references.
type Join struct {
	Left, Right TableRef
	Kind        JoinKind
	On          *expr.Node
}

func (Join) tableRef() {}

// Subquery is a FROM-clause subquery, which must carry an alias.
type Subquery struct {
	Stmt  *SelectStmt
	Alias string
}

func (Subquery) tableRef() {}

// FuncCall is an aggregate function invocation in a select item, e.g.
// COUNT(*), SUM(amount).
type FuncCall struct {
	Name string
	Arg  *expr.Node
	Star bool
}

// SelectItem is one entry of a SELECT list: either a scalar expression or
// an aggregate function call, with an optional output alias.
type SelectItem struct {
	Expr  *expr.Node
	Func  *FuncCall
	Alias string
	Star  bool // SELECT * (or table.*)
	Table string
}

// OrderByItem is one ORDER BY key.
type OrderByItem struct {
	Expr *expr.Node
	Desc bool
}

// SelectStmt is a fully parsed SELECT statement.
type SelectStmt struct {
	Distinct bool
	Items    []SelectItem
	From     TableRef
	Where    *expr.Node
	GroupBy  []*expr.Node
	Having   *expr.Node
	OrderBy  []OrderByItem
	Limit    *int64
	Offset   *int64
}

// InsertStmt is a fully parsed INSERT statement.
type InsertStmt struct {
	Table   string
	Columns []string
	Rows    [][]*expr.Node
}

// Assignment is one SET clause of an UPDATE statement.
type Assignment struct {
	Column string
	Value  *expr.Node
}

// UpdateStmt is a fully parsed UPDATE statement.
type UpdateStmt struct {
	Table       string
	Assignments []Assignment
	Where       *expr.Node
}

// DeleteStmt is a fully parsed DELETE statement.
type DeleteStmt struct {
	Table string
	Where *expr.Node
}

// ---- expression grammar ----
//
// Precedence, loosest to tightest:
//   OR < AND < comparisons < additive < multiplicative < unary NOT < primary

func (p *Parser) parseExpr() (*expr.Node, error) { return p.parseOr() }

func (p *Parser) parseOr() (*expr.Node, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.keyword("or") != "" {
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = expr.Or(left, right)
	}
	return left, nil
}

func (p *Parser) parseAnd() (*expr.Node, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for p.keyword("and") != "" {
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		left = expr.And(left, right)
	}
	return left, nil
}

func (p *Parser) parseNot() (*expr.Node, error) {
	if p.keyword("not") != "" {
		operand, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return expr.Not(operand), nil
	}
	return p.parseCmp()
}

var cmpOps = []struct {
	sym string
	op  expr.CompareOp
}{
	{">=", expr.CmpGE}, {"<=", expr.CmpLE}, {"!=", expr.CmpNE}, {"<>", expr.CmpNE},
	{"=", expr.CmpEQ}, {">", expr.CmpGT}, {"<", expr.CmpLT},
}

func (p *Parser) parseCmp() (*expr.Node, error) {
	left, err := p.parseAdd()
	if err != nil {
		return nil, err
	}
	for _, c := range cmpOps {
		if p.sym(c.sym) {
			right, err := p.parseAdd()
			if err != nil {
				return nil, err
			}
			return expr.Compare(c.op, left, right), nil
		}
	}
	return left, nil
}

func (p *Parser) parseAdd() (*expr.Node, error) {
	left, err := p.parseMul()
	if err != nil {
		return nil, err
	}
	for {
		switch {
		case p.sym("+"):
			right, err := p.parseMul()
			if err != nil {
				return nil, err
			}
			left = expr.Binary(expr.OpAdd, left, right)
		case p.sym("-"):
			right, err := p.parseMul()
			if err != nil {
				return nil, err
			}
			left = expr.Binary(expr.OpSub, left, right)
		default:
			return left, nil
		}
	}
}

func (p *Parser) parseMul() (*expr.Node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for {
		switch {
		case p.sym("*"):
			right, err := p.parseUnary()
			if err != nil {
				return nil, err
			}
			left = expr.Binary(expr.OpMul, left, right)
		case p.sym("/"):
			right, err := p.parseUnary()
			if err != nil {
				return nil, err
			}
			left = expr.Binary(expr.OpDiv, left, right)
		case p.sym("%"):
			right, err := p.parseUnary()
			if err != nil {
				return nil, err
			}
			left = expr.Binary(expr.OpMod, left, right)
		default:
			return left, nil
		}
	}
}

func (p *Parser) parseUnary() (*expr.Node, error) {
	if p.sym("-") {
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return expr.Binary(expr.OpSub, expr.Literal(types.IntValue(0)), operand), nil
	}
	return p.parseAtom()
}

func (p *Parser) parseAtom() (*expr.Node, error) {
	if p.sym("(") {
		inner, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if err := p.mustSym(")"); err != nil {
			return nil, err
		}
		return inner, nil
	}
	if p.keyword("null") != "" {
		return expr.Literal(types.NullValue()), nil
	}
	if p.keyword("true") != "" {
		return expr.Literal(types.BoolValue(true)), nil
	}
	if p.keyword("false") != "" {
		return expr.Literal(types.BoolValue(false)), nil
	}
	if s, ok := p.str(); ok {
		return expr.Literal(types.StringValue(s)), nil
	}
	if isFloat, iv, fv, ok := p.number(); ok {
		if isFloat {
			return expr.Literal(types.DoubleValue(fv)), nil
		}
		return expr.Literal(types.IntValue(iv)), nil
	}
	id, ok := p.ident()
	if !ok {
		return nil, NewParseError(p.idx, "expected expression")
	}
	table := ""
	column := id
	if p.sym(".") {
		second, err := p.mustIdent()
		if err != nil {
			return nil, err
		}
		table = id
		column = second
	}
	return expr.ColumnRef(table, column), nil
}

// parseFuncCallArg parses "(" [* | expr] ")" after an aggregate function
// name has already been consumed.
func (p *Parser) parseFuncCallArgs() (*expr.Node, bool, error) {
	if err := p.mustSym("("); err != nil {
		return nil, false, err
	}
	if p.sym("*") {
		if err := p.mustSym(")"); err != nil {
			return nil, false, err
		}
		return nil, true, nil
	}
	arg, err := p.parseExpr()
	if err != nil {
		return nil, false, err
	}
	if err := p.mustSym(")"); err != nil {
		return nil, false, err
	}
	return arg, false, nil
}
