package exec

// Limit drains and discards Offset rows of input, then yields up to
// Limit further rows (a nil bound means unbounded).
type Limit struct {
	input  Operator
	limit  *int64
	offset *int64

	remainingOffset int64
	remainingLimit  int64
	unbounded       bool
}

// NewLimit builds a Limit over input.
func NewLimit(input Operator, limit, offset *int64) *Limit {
	return &Limit{input: input, limit: limit, offset: offset}
}

func (l *Limit) Schema() RowSchema { return l.input.Schema() }

func (l *Limit) Open() error {
	if err := l.input.Open(); err != nil {
		return err
	}
	l.remainingOffset = 0
	if l.offset != nil {
		l.remainingOffset = *l.offset
	}
	l.unbounded = l.limit == nil
	if !l.unbounded {
		l.remainingLimit = *l.limit
	}
	return nil
}

func (l *Limit) Next() (Row, bool, error) {
	for l.remainingOffset > 0 {
		_, ok, err := l.input.Next()
		if err != nil || !ok {
			return Row{}, false, err
		}
		l.remainingOffset--
	}
	if !l.unbounded && l.remainingLimit <= 0 {
		return Row{}, false, nil
	}
	row, ok, err := l.input.Next()
	if err != nil || !ok {
		return Row{}, false, err
	}
	if !l.unbounded {
		l.remainingLimit--
	}
	return row, true, nil
}

func (l *Limit) Close() error { return l.input.Close() }

// Alias rebinds every column of input to a single new table name,
// implementing a subquery's required alias.
type Alias struct {
	input  Operator
	schema RowSchema
}

// NewAlias builds an Alias over input.
func NewAlias(input Operator, newName string) *Alias {
	in := input.Schema()
	schema := make(RowSchema, len(in))
	for i, cs := range in {
		schema[i] = ColumnSchema{Table: newName, Name: cs.Name}
	}
	return &Alias{input: input, schema: schema}
}

func (a *Alias) Schema() RowSchema { return a.schema }

func (a *Alias) Open() error { return a.input.Open() }

func (a *Alias) Next() (Row, bool, error) {
	row, ok, err := a.input.Next()
	if err != nil || !ok {
		return Row{}, false, err
	}
	return Row{Values: row.Values}, true, nil
}

func (a *Alias) Close() error { return a.input.Close() }
