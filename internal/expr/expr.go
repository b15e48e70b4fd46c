// Package expr implements the scalar expression engine: a tagged-variant
// AST and an evaluator that resolves column references through an Env.
// Expressions are parsed by the SQL parser in internal/sql.
package expr

import (
	"quelldb/internal/types"
	"quelldb/pkg/dberr"
)

// Kind tags the variant each Node carries.
type Kind int

const (
	KindColumnRef Kind = iota
	KindLiteral
	KindCompare
	KindAnd
	KindOr
	KindNot
	KindBinary
)

// CompareOp enumerates the comparison operators.
type CompareOp int

const (
	CmpEQ CompareOp = iota
	CmpNE
	CmpLT
	CmpLE
	CmpGT
	CmpGE
)

// BinaryOp enumerates the arithmetic operators.
type BinaryOp int

const (
	OpAdd BinaryOp = iota
	OpSub
	OpMul
	OpDiv
	OpMod
)

// Node is the tagged-variant expression tree. Exactly the fields
// relevant to Kind are populated; this mirrors the teacher's QLNode
// discrimination-by-kind style rather than a Go type switch over an
// interface per node type, since every node shares a uniform evaluation
// contract.
type Node struct {
	Kind Kind

	// KindColumnRef
	Column string
	Table  string // optional qualifier, "" if unqualified

	// KindLiteral
	Literal types.Value

	// KindCompare, KindBinary
	Left, Right *Node
	CompareOp   CompareOp
	BinaryOp    BinaryOp

	// KindAnd, KindOr
	LHS, RHS *Node

	// KindNot
	Operand *Node
}

// ColumnRef builds a column-reference node.
func ColumnRef(table, column string) *Node {
	return &Node{Kind: KindColumnRef, Table: table, Column: column}
}

// Literal builds a literal-value node.
func Literal(v types.Value) *Node { return &Node{Kind: KindLiteral, Literal: v} }

// Compare builds a comparison node.
func Compare(op CompareOp, left, right *Node) *Node {
	return &Node{Kind: KindCompare, CompareOp: op, Left: left, Right: right}
}

// And builds a logical AND node.
func And(lhs, rhs *Node) *Node { return &Node{Kind: KindAnd, LHS: lhs, RHS: rhs} }

// Or builds a logical OR node.
func Or(lhs, rhs *Node) *Node { return &Node{Kind: KindOr, LHS: lhs, RHS: rhs} }

// Not builds a logical NOT node.
func Not(operand *Node) *Node { return &Node{Kind: KindNot, Operand: operand} }

// Binary builds an arithmetic binary node.
func Binary(op BinaryOp, left, right *Node) *Node {
	return &Node{Kind: KindBinary, BinaryOp: op, Left: left, Right: right}
}

// Env resolves column references during evaluation.
type Env interface {
	Get(table, column string) (types.Value, bool)
}

// recordEnv adapts a single types.Record (optionally qualified by a
// table/alias name) to Env.
type recordEnv struct {
	table string
	rec   types.Record
}

// NewRecordEnv builds an Env over a single record, optionally scoped to
// table (qualified lookups must match table, unqualified lookups always
// match).
func NewRecordEnv(table string, rec types.Record) Env {
	return &recordEnv{table: table, rec: rec}
}

func (e *recordEnv) Get(table, column string) (types.Value, bool) {
	if table != "" && e.table != "" && table != e.table {
		return types.NullValue(), false
	}
	return e.rec.Get(column)
}

// MultiEnv looks a column up across several named environments: a
// qualified reference goes to the environment of that name, an
// unqualified one to any environment that has the column (map iteration
// order picks among several). The join
// operators do not use it; they resolve through exec's row environment.
type MultiEnv struct {
	envs map[string]Env
}

// NewMultiEnv builds a MultiEnv from name->Env pairs.
func NewMultiEnv(envs map[string]Env) *MultiEnv { return &MultiEnv{envs: envs} }

func (m *MultiEnv) Get(table, column string) (types.Value, bool) {
	if table != "" {
		if e, ok := m.envs[table]; ok {
			return e.Get(table, column)
		}
		return types.NullValue(), false
	}
	for _, e := range m.envs {
		if v, ok := e.Get("", column); ok {
			return v, true
		}
	}
	return types.NullValue(), false
}

// Eval evaluates node against env, resolving column references and
// applying comparison/logical/arithmetic semantics. Division and modulo
// by zero return a DomainError; AND/OR short-circuit their left operand.
func Eval(node *Node, env Env) (types.Value, error) {
	switch node.Kind {
	case KindColumnRef:
		v, ok := env.Get(node.Table, node.Column)
		if !ok {
			return types.Value{}, dberr.Newf(dberr.InvalidArgument, "unknown column %q", qualifiedName(node.Table, node.Column))
		}
		return v, nil

	case KindLiteral:
		return node.Literal, nil

	case KindNot:
		v, err := Eval(node.Operand, env)
		if err != nil {
			return types.Value{}, err
		}
		return types.BoolValue(!v.AsBool()), nil

	case KindAnd:
		l, err := Eval(node.LHS, env)
		if err != nil {
			return types.Value{}, err
		}
		if !l.AsBool() {
			return types.BoolValue(false), nil
		}
		r, err := Eval(node.RHS, env)
		if err != nil {
			return types.Value{}, err
		}
		return types.BoolValue(r.AsBool()), nil

	case KindOr:
		l, err := Eval(node.LHS, env)
		if err != nil {
			return types.Value{}, err
		}
		if l.AsBool() {
			return types.BoolValue(true), nil
		}
		r, err := Eval(node.RHS, env)
		if err != nil {
			return types.Value{}, err
		}
		return types.BoolValue(r.AsBool()), nil

	case KindCompare:
		l, err := Eval(node.Left, env)
		if err != nil {
			return types.Value{}, err
		}
		r, err := Eval(node.Right, env)
		if err != nil {
			return types.Value{}, err
		}
		return evalCompare(node.CompareOp, l, r), nil

	case KindBinary:
		l, err := Eval(node.Left, env)
		if err != nil {
			return types.Value{}, err
		}
		r, err := Eval(node.Right, env)
		if err != nil {
			return types.Value{}, err
		}
		return evalBinary(node.BinaryOp, l, r)

	default:
		return types.Value{}, dberr.New(dberr.LogicError, "unknown expression node kind")
	}
}

func qualifiedName(table, column string) string {
	if table == "" {
		return column
	}
	return table + "." + column
}

func evalCompare(op CompareOp, l, r types.Value) types.Value {
	c := types.Compare(l, r)
	switch op {
	case CmpEQ:
		return types.BoolValue(c == 0)
	case CmpNE:
		return types.BoolValue(c != 0)
	case CmpLT:
		return types.BoolValue(c < 0)
	case CmpLE:
		return types.BoolValue(c <= 0)
	case CmpGT:
		return types.BoolValue(c > 0)
	case CmpGE:
		return types.BoolValue(c >= 0)
	default:
		return types.BoolValue(false)
	}
}

func evalBinary(op BinaryOp, l, r types.Value) (types.Value, error) {
	if l.IsNull() || r.IsNull() {
		return types.NullValue(), nil
	}
	if l.Kind == types.KindString || r.Kind == types.KindString {
		if op == OpAdd && l.Kind == types.KindString && r.Kind == types.KindString {
			return types.StringValue(l.S + r.S), nil
		}
		return types.Value{}, dberr.Newf(dberr.DomainError, "arithmetic operator requires numeric operands")
	}

	useDouble := l.Kind == types.KindDouble || r.Kind == types.KindDouble
	lf, rf := numericOf(l), numericOf(r)

	switch op {
	case OpAdd:
		if useDouble {
			return types.DoubleValue(lf + rf), nil
		}
		return types.IntValue(l.I + r.I), nil
	case OpSub:
		if useDouble {
			return types.DoubleValue(lf - rf), nil
		}
		return types.IntValue(l.I - r.I), nil
	case OpMul:
		if useDouble {
			return types.DoubleValue(lf * rf), nil
		}
		return types.IntValue(l.I * r.I), nil
	case OpDiv:
		if rf == 0 {
			return types.Value{}, dberr.New(dberr.DomainError, "division by zero")
		}
		if useDouble {
			return types.DoubleValue(lf / rf), nil
		}
		if r.I == 0 {
			return types.Value{}, dberr.New(dberr.DomainError, "division by zero")
		}
		return types.IntValue(l.I / r.I), nil
	case OpMod:
		if useDouble {
			return types.Value{}, dberr.New(dberr.DomainError, "modulo requires integer operands")
		}
		if r.I == 0 {
			return types.Value{}, dberr.New(dberr.DomainError, "modulo by zero")
		}
		return types.IntValue(l.I % r.I), nil
	default:
		return types.Value{}, dberr.New(dberr.LogicError, "unknown binary operator")
	}
}

func numericOf(v types.Value) float64 {
	if v.Kind == types.KindInt {
		return float64(v.I)
	}
	return v.D
}
