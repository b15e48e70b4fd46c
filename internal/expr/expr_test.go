package expr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quelldb/internal/types"
)

func recEnv() Env {
	rec := types.Record{
		Cols: []string{"age", "name"},
		Vals: []types.Value{types.IntValue(30), types.StringValue("bob")},
	}
	return NewRecordEnv("t", rec)
}

func TestEvalColumnRef(t *testing.T) {
	v, err := Eval(ColumnRef("", "age"), recEnv())
	require.NoError(t, err)
	assert.Equal(t, types.IntValue(30), v)
}

func TestEvalColumnRefUnknownColumn(t *testing.T) {
	_, err := Eval(ColumnRef("", "missing"), recEnv())
	assert.Error(t, err)
}

func TestEvalQualifiedColumnRefMismatchedTable(t *testing.T) {
	_, err := Eval(ColumnRef("other", "age"), recEnv())
	assert.Error(t, err)
}

func TestEvalCompare(t *testing.T) {
	v, err := Eval(Compare(CmpGT, ColumnRef("", "age"), Literal(types.IntValue(18))), recEnv())
	require.NoError(t, err)
	assert.True(t, v.AsBool())
}

func TestEvalAndShortCircuits(t *testing.T) {
	panicking := &Node{Kind: Kind(999)} // would error if ever evaluated
	v, err := Eval(And(Literal(types.BoolValue(false)), panicking), recEnv())
	require.NoError(t, err)
	assert.False(t, v.AsBool())
}

func TestEvalOrShortCircuits(t *testing.T) {
	panicking := &Node{Kind: Kind(999)}
	v, err := Eval(Or(Literal(types.BoolValue(true)), panicking), recEnv())
	require.NoError(t, err)
	assert.True(t, v.AsBool())
}

func TestEvalNot(t *testing.T) {
	v, err := Eval(Not(Literal(types.BoolValue(false))), recEnv())
	require.NoError(t, err)
	assert.True(t, v.AsBool())
}

func TestEvalBinaryArithmetic(t *testing.T) {
	v, err := Eval(Binary(OpAdd, Literal(types.IntValue(2)), Literal(types.IntValue(3))), recEnv())
	require.NoError(t, err)
	assert.Equal(t, types.IntValue(5), v)
}

func TestEvalBinaryPromotesToDouble(t *testing.T) {
	v, err := Eval(Binary(OpMul, Literal(types.IntValue(2)), Literal(types.DoubleValue(1.5))), recEnv())
	require.NoError(t, err)
	assert.Equal(t, types.DoubleValue(3.0), v)
}

func TestEvalDivisionByZeroIsDomainError(t *testing.T) {
	_, err := Eval(Binary(OpDiv, Literal(types.IntValue(1)), Literal(types.IntValue(0))), recEnv())
	assert.Error(t, err)
}

func TestEvalModuloByZeroIsDomainError(t *testing.T) {
	_, err := Eval(Binary(OpMod, Literal(types.IntValue(1)), Literal(types.IntValue(0))), recEnv())
	assert.Error(t, err)
}

func TestEvalBinaryOnNullShortCircuitsToNull(t *testing.T) {
	v, err := Eval(Binary(OpAdd, Literal(types.NullValue()), Literal(types.IntValue(1))), recEnv())
	require.NoError(t, err)
	assert.True(t, v.IsNull())
}

func TestEvalStringConcatenationViaAdd(t *testing.T) {
	v, err := Eval(Binary(OpAdd, Literal(types.StringValue("foo")), Literal(types.StringValue("bar"))), recEnv())
	require.NoError(t, err)
	assert.Equal(t, types.StringValue("foobar"), v)
}

func TestEvalArithmeticRejectsStringOperand(t *testing.T) {
	_, err := Eval(Binary(OpSub, Literal(types.StringValue("foo")), Literal(types.IntValue(1))), recEnv())
	assert.Error(t, err)
}

func TestMultiEnvResolvesQualifiedAndUnqualified(t *testing.T) {
	left := NewRecordEnv("a", types.Record{Cols: []string{"id"}, Vals: []types.Value{types.IntValue(1)}})
	right := NewRecordEnv("b", types.Record{Cols: []string{"name"}, Vals: []types.Value{types.StringValue("x")}})
	multi := NewMultiEnv(map[string]Env{"a": left, "b": right})

	v, err := Eval(ColumnRef("a", "id"), multi)
	require.NoError(t, err)
	assert.Equal(t, types.IntValue(1), v)

	v, err = Eval(ColumnRef("", "name"), multi)
	require.NoError(t, err)
	assert.Equal(t, types.StringValue("x"), v)
}
