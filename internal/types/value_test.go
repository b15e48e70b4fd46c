package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalStringRoundTripsThroughParseLiteral(t *testing.T) {
	cases := []struct {
		ct ColumnType
		v  Value
	}{
		{Integer, IntValue(-42)},
		{Double, DoubleValue(3.5)},
		{String, StringValue("hello world")},
	}
	for _, c := range cases {
		got, err := ParseLiteral(c.ct, c.v.CanonicalString())
		require.NoError(t, err)
		assert.Equal(t, c.v, got)
	}
}

func TestAsBoolTruthiness(t *testing.T) {
	assert.False(t, NullValue().AsBool())
	assert.False(t, IntValue(0).AsBool())
	assert.True(t, IntValue(1).AsBool())
	assert.False(t, DoubleValue(0).AsBool())
	assert.False(t, StringValue("").AsBool())
	assert.True(t, StringValue("x").AsBool())
	assert.True(t, BoolValue(true).AsBool())
}

func TestCompareNullSortsFirst(t *testing.T) {
	assert.Equal(t, -1, Compare(NullValue(), IntValue(0)))
	assert.Equal(t, 1, Compare(IntValue(0), NullValue()))
	assert.Equal(t, 0, Compare(NullValue(), NullValue()))
}

func TestCompareNumericToleratesIntDoubleMix(t *testing.T) {
	assert.Equal(t, 0, Compare(IntValue(3), DoubleValue(3.0)))
	assert.Equal(t, -1, Compare(IntValue(2), DoubleValue(3.0)))
	assert.Equal(t, 1, Compare(DoubleValue(5.5), IntValue(2)))
}

func TestCompareFallsBackToLexicographic(t *testing.T) {
	assert.Equal(t, -1, Compare(StringValue("apple"), StringValue("banana")))
}

func TestParseLiteralRejectsMalformedInteger(t *testing.T) {
	_, err := ParseLiteral(Integer, "not-a-number")
	assert.Error(t, err)
}

func TestTableSchemaValidateRejectsDuplicateColumns(t *testing.T) {
	schema := TableSchema{
		Name: "accounts",
		Columns: []ColumnDefinition{
			{Name: "id", Type: Integer, MaxLength: 20},
			{Name: "id", Type: String, MaxLength: 20},
		},
	}
	assert.Error(t, schema.Validate())
}

func TestTableSchemaValidateRejectsZeroMaxLength(t *testing.T) {
	schema := TableSchema{
		Name:    "accounts",
		Columns: []ColumnDefinition{{Name: "id", Type: Integer, MaxLength: 0}},
	}
	assert.Error(t, schema.Validate())
}

func TestRecordValidateAgainstRejectsOverLengthValue(t *testing.T) {
	schema := &TableSchema{
		Name:    "t",
		Columns: []ColumnDefinition{{Name: "name", Type: String, MaxLength: 3}},
	}
	rec := Record{Cols: []string{"name"}, Vals: []Value{StringValue("toolong")}}
	assert.Error(t, rec.ValidateAgainst(schema))
}

func TestEncodeRowDecodeRowRoundTripWithNulls(t *testing.T) {
	schema := &TableSchema{
		Name: "t",
		Columns: []ColumnDefinition{
			{Name: "id", Type: Integer, MaxLength: 20},
			{Name: "note", Type: String, MaxLength: 100},
		},
	}
	rec := Record{Cols: []string{"id", "note"}, Vals: []Value{IntValue(7), NullValue()}}

	data, err := EncodeRow(schema, rec)
	require.NoError(t, err)

	decoded, err := DecodeRow(schema, data)
	require.NoError(t, err)
	assert.Equal(t, IntValue(7), decoded.Vals[0])
	assert.True(t, decoded.Vals[1].IsNull())
}

func TestToSchemaOrderReordersColumns(t *testing.T) {
	schema := &TableSchema{
		Name: "t",
		Columns: []ColumnDefinition{
			{Name: "id", Type: Integer, MaxLength: 20},
			{Name: "name", Type: String, MaxLength: 20},
		},
	}
	rec := Record{Cols: []string{"name", "id"}, Vals: []Value{StringValue("bob"), IntValue(1)}}

	ordered, err := rec.ToSchemaOrder(schema)
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "name"}, ordered.Cols)
	assert.Equal(t, IntValue(1), ordered.Vals[0])
	assert.Equal(t, StringValue("bob"), ordered.Vals[1])
}

func TestCloneIsIndependentOfOriginal(t *testing.T) {
	rec := Record{Cols: []string{"id"}, Vals: []Value{IntValue(1)}}
	clone := rec.Clone()
	clone.Set("id", IntValue(2))
	assert.Equal(t, IntValue(1), rec.Vals[0])
	assert.Equal(t, IntValue(2), clone.Vals[0])
}
