// Package sql implements the SQL surface: a hand-rolled, character-cursor
// lexer and recursive-descent parser producing a statement AST whose
// scalar expressions are quelldb's shared expr.Node tree.
package sql

import (
	"strings"

	"quelldb/internal/expr"
)

var aggregateNames = map[string]bool{
	"count": true, "sum": true, "avg": true, "min": true, "max": true,
}

// Parse parses a single SQL statement and returns its AST: one of
// *SelectStmt, *InsertStmt, *UpdateStmt, or *DeleteStmt.
func Parse(input string) (interface{}, error) {
	p := &Parser{input: strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(input), ";"))}
	var stmt interface{}
	var err error
	switch {
	case p.peekKeyword("select"):
		stmt, err = p.parseSelect()
	case p.peekKeyword("insert"):
		stmt, err = p.parseInsert()
	case p.peekKeyword("update"):
		stmt, err = p.parseUpdate()
	case p.peekKeyword("delete"):
		stmt, err = p.parseDelete()
	default:
		return nil, NewParseError(p.idx, "expected SELECT, INSERT, UPDATE, or DELETE")
	}
	if err != nil {
		return nil, err
	}
	if !p.atEnd() {
		return nil, NewParseError(p.idx, "unexpected trailing input")
	}
	return stmt, nil
}

func (p *Parser) parseSelect() (*SelectStmt, error) {
	if p.keyword("select") == "" {
		return nil, NewParseError(p.idx, "expected SELECT")
	}
	stmt := &SelectStmt{}
	if p.keyword("distinct") != "" {
		stmt.Distinct = true
	} else {
		p.keyword("all")
	}

	items, err := p.parseSelectList()
	if err != nil {
		return nil, err
	}
	stmt.Items = items

	if p.keyword("from") == "" {
		return nil, NewParseError(p.idx, "expected FROM")
	}
	from, err := p.parseFromClause()
	if err != nil {
		return nil, err
	}
	stmt.From = from

	if p.keyword("where") != "" {
		w, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		stmt.Where = w
	}

	if p.keyword("group") != "" {
		if p.keyword("by") == "" {
			return nil, NewParseError(p.idx, "expected BY after GROUP")
		}
		for {
			e, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			stmt.GroupBy = append(stmt.GroupBy, e)
			if !p.sym(",") {
				break
			}
		}
	}

	if p.keyword("having") != "" {
		h, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		stmt.Having = h
	}

	if p.keyword("order") != "" {
		if p.keyword("by") == "" {
			return nil, NewParseError(p.idx, "expected BY after ORDER")
		}
		for {
			e, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			desc := false
			if p.keyword("desc") != "" {
				desc = true
			} else {
				p.keyword("asc")
			}
			stmt.OrderBy = append(stmt.OrderBy, OrderByItem{Expr: e, Desc: desc})
			if !p.sym(",") {
				break
			}
		}
	}

	if p.keyword("limit") != "" {
		_, n, _, ok := p.number()
		if !ok {
			return nil, NewParseError(p.idx, "expected integer after LIMIT")
		}
		stmt.Limit = &n
		if p.keyword("offset") != "" {
			_, off, _, ok := p.number()
			if !ok {
				return nil, NewParseError(p.idx, "expected integer after OFFSET")
			}
			stmt.Offset = &off
		}
	}

	return stmt, nil
}

func (p *Parser) parseSelectList() ([]SelectItem, error) {
	var items []SelectItem
	for {
		item, err := p.parseSelectItem()
		if err != nil {
			return nil, err
		}
		items = append(items, item)
		if !p.sym(",") {
			break
		}
	}
	return items, nil
}

func (p *Parser) parseSelectItem() (SelectItem, error) {
	if p.sym("*") {
		return SelectItem{Star: true}, nil
	}

	save := p.idx
	if id, ok := p.ident(); ok {
		if aggregateNames[strings.ToLower(id)] {
			p.skipSpace()
			if p.idx < len(p.input) && p.input[p.idx] == '(' {
				arg, star, err := p.parseFuncCallArgs()
				if err != nil {
					return SelectItem{}, err
				}
				item := SelectItem{Func: &FuncCall{Name: strings.ToUpper(id), Arg: arg, Star: star}}
				item.Alias = p.parseOptionalAlias(strings.ToUpper(id))
				return item, nil
			}
		}
		if p.sym(".") {
			if p.sym("*") {
				return SelectItem{Star: true, Table: id}, nil
			}
		}
		p.idx = save
	}

	e, err := p.parseExpr()
	if err != nil {
		return SelectItem{}, err
	}
	item := SelectItem{Expr: e}
	item.Alias = p.parseOptionalAlias("")
	return item, nil
}

func (p *Parser) parseOptionalAlias(defaultName string) string {
	if p.keyword("as") != "" {
		if id, ok := p.ident(); ok {
			return id
		}
	}
	save := p.idx
	if id, ok := p.ident(); ok {
		return id
	}
	p.idx = save
	return defaultName
}

func (p *Parser) parseFromClause() (TableRef, error) {
	left, err := p.parseTableRefPrimary()
	if err != nil {
		return nil, err
	}
	for {
		switch {
		case p.sym(","):
			right, err := p.parseTableRefPrimary()
			if err != nil {
				return nil, err
			}
			left = Join{Left: left, Right: right, Kind: CrossJoin}
		case p.keyword("inner") != "":
			if p.keyword("join") == "" {
				return nil, NewParseError(p.idx, "expected JOIN after INNER")
			}
			right, on, err := p.parseJoinRHS()
			if err != nil {
				return nil, err
			}
			left = Join{Left: left, Right: right, Kind: InnerJoin, On: on}
		case p.keyword("left") != "":
			p.keyword("outer")
			if p.keyword("join") == "" {
				return nil, NewParseError(p.idx, "expected JOIN after LEFT")
			}
			right, on, err := p.parseJoinRHS()
			if err != nil {
				return nil, err
			}
			left = Join{Left: left, Right: right, Kind: LeftJoin, On: on}
		case p.keyword("right") != "":
			p.keyword("outer")
			if p.keyword("join") == "" {
				return nil, NewParseError(p.idx, "expected JOIN after RIGHT")
			}
			right, on, err := p.parseJoinRHS()
			if err != nil {
				return nil, err
			}
			left = Join{Left: left, Right: right, Kind: RightJoin, On: on}
		case p.keyword("join") != "":
			right, on, err := p.parseJoinRHS()
			if err != nil {
				return nil, err
			}
			left = Join{Left: left, Right: right, Kind: InnerJoin, On: on}
		default:
			return left, nil
		}
	}
}

func (p *Parser) parseJoinRHS() (TableRef, *expr.Node, error) {
	right, err := p.parseTableRefPrimary()
	if err != nil {
		return nil, nil, err
	}
	if p.keyword("on") == "" {
		return nil, nil, NewParseError(p.idx, "expected ON")
	}
	on, err := p.parseExpr()
	if err != nil {
		return nil, nil, err
	}
	return right, on, nil
}

func (p *Parser) parseTableRefPrimary() (TableRef, error) {
	if p.sym("(") {
		sub, err := p.parseSelect()
		if err != nil {
			return nil, err
		}
		if err := p.mustSym(")"); err != nil {
			return nil, err
		}
		alias := p.parseOptionalAlias("")
		if alias == "" {
			return nil, NewParseError(p.idx, "subquery in FROM requires an alias")
		}
		return Subquery{Stmt: sub, Alias: alias}, nil
	}
	name, err := p.mustIdent()
	if err != nil {
		return nil, err
	}
	alias := p.parseOptionalAlias(name)
	return NamedTable{Name: name, Alias: alias}, nil
}

func (p *Parser) parseInsert() (*InsertStmt, error) {
	if p.keyword("insert") == "" || p.keyword("into") == "" {
		return nil, NewParseError(p.idx, "expected INSERT INTO")
	}
	table, err := p.mustIdent()
	if err != nil {
		return nil, err
	}
	stmt := &InsertStmt{Table: table}

	if p.sym("(") {
		for {
			col, err := p.mustIdent()
			if err != nil {
				return nil, err
			}
			stmt.Columns = append(stmt.Columns, col)
			if p.sym(",") {
				continue
			}
			break
		}
		if err := p.mustSym(")"); err != nil {
			return nil, err
		}
	}

	if p.keyword("values") == "" {
		return nil, NewParseError(p.idx, "expected VALUES")
	}
	for {
		if err := p.mustSym("("); err != nil {
			return nil, err
		}
		var row []*expr.Node
		for {
			e, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			row = append(row, e)
			if p.sym(",") {
				continue
			}
			break
		}
		if err := p.mustSym(")"); err != nil {
			return nil, err
		}
		stmt.Rows = append(stmt.Rows, row)
		if p.sym(",") {
			continue
		}
		break
	}
	return stmt, nil
}

func (p *Parser) parseUpdate() (*UpdateStmt, error) {
	if p.keyword("update") == "" {
		return nil, NewParseError(p.idx, "expected UPDATE")
	}
	table, err := p.mustIdent()
	if err != nil {
		return nil, err
	}
	if p.keyword("set") == "" {
		return nil, NewParseError(p.idx, "expected SET")
	}
	stmt := &UpdateStmt{Table: table}
	for {
		col, err := p.mustIdent()
		if err != nil {
			return nil, err
		}
		if err := p.mustSym("="); err != nil {
			return nil, err
		}
		val, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		stmt.Assignments = append(stmt.Assignments, Assignment{Column: col, Value: val})
		if p.sym(",") {
			continue
		}
		break
	}
	if p.keyword("where") != "" {
		w, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		stmt.Where = w
	}
	return stmt, nil
}

func (p *Parser) parseDelete() (*DeleteStmt, error) {
	if p.keyword("delete") == "" || p.keyword("from") == "" {
		return nil, NewParseError(p.idx, "expected DELETE FROM")
	}
	table, err := p.mustIdent()
	if err != nil {
		return nil, err
	}
	stmt := &DeleteStmt{Table: table}
	if p.keyword("where") != "" {
		w, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		stmt.Where = w
	}
	return stmt, nil
}
