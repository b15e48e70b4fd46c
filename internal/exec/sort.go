package exec

import (
	"sort"

	"quelldb/internal/expr"
	"quelldb/internal/plan"
	"quelldb/internal/types"
)

// Sort materializes input and yields its rows ordered by a sequence of
// sort keys, each independently ascending or descending.
type Sort struct {
	input Operator
	keys  []plan.SortKey

	rows []Row
	pos  int
}

// NewSort builds a Sort over input.
func NewSort(input Operator, keys []plan.SortKey) *Sort {
	return &Sort{input: input, keys: keys}
}

func (s *Sort) Schema() RowSchema { return s.input.Schema() }

func (s *Sort) Open() error {
	if err := s.input.Open(); err != nil {
		return err
	}
	s.rows = nil
	for {
		row, ok, err := s.input.Next()
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		s.rows = append(s.rows, row)
	}

	schema := s.input.Schema()
	var sortErr error
	sort.SliceStable(s.rows, func(i, j int) bool {
		if sortErr != nil {
			return false
		}
		for _, k := range s.keys {
			lv, err := expr.Eval(k.Expr, NewRowEnv(schema, s.rows[i]))
			if err != nil {
				sortErr = err
				return false
			}
			rv, err := expr.Eval(k.Expr, NewRowEnv(schema, s.rows[j]))
			if err != nil {
				sortErr = err
				return false
			}
			c := types.Compare(lv, rv)
			if c == 0 {
				continue
			}
			if k.Desc {
				return c > 0
			}
			return c < 0
		}
		return false
	})
	s.pos = 0
	return sortErr
}

func (s *Sort) Next() (Row, bool, error) {
	if s.pos >= len(s.rows) {
		return Row{}, false, nil
	}
	row := s.rows[s.pos]
	s.pos++
	return row, true, nil
}

func (s *Sort) Close() error { return s.input.Close() }
