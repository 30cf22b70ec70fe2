// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package expr

import "fmt"

// Sort is an ordering of query results. Its kind must be assignable to
// KindSort.
type Sort interface {
	Expression
}

// Direction is a sort direction.
type Direction int

const (
	Ascending Direction = iota
	Descending
)

// PathSort orders by a single expression.
type PathSort struct {
	Expr      TypedExpression
	Direction Direction
}

// Asc orders by e, ascending.
func Asc(e TypedExpression) *PathSort {
	return &PathSort{Expr: e, Direction: Ascending}
}

// Desc orders by e, descending.
func Desc(e TypedExpression) *PathSort {
	return &PathSort{Expr: e, Direction: Descending}
}

func (s *PathSort) Kind() Kind {
	return KindPathSort
}

func (s *PathSort) Validate() error {
	if s.Expr == nil {
		return fmt.Errorf("sort without expression")
	}
	return s.Expr.Validate()
}

// CompositeSort applies several sorts in order.
type CompositeSort struct {
	Sorts []Sort
}

// Sorts combines sorts, flattening nested composites. Nil sorts are ignored.
func Sorts(sorts ...Sort) Sort {
	var ss []Sort
	for _, s := range sorts {
		switch s := s.(type) {
		case nil:
		case *CompositeSort:
			ss = append(ss, s.Sorts...)
		default:
			ss = append(ss, s)
		}
	}
	switch len(ss) {
	case 0:
		return nil
	case 1:
		return ss[0]
	}
	return &CompositeSort{Sorts: ss}
}

func (s *CompositeSort) Kind() Kind {
	return KindCompositeSort
}

func (s *CompositeSort) Validate() error {
	if len(s.Sorts) == 0 {
		return fmt.Errorf("empty composite sort")
	}
	for _, sort := range s.Sorts {
		if sort == nil {
			return fmt.Errorf("nil sort in composite sort")
		}
		if err := sort.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// OrderBySort is a raw SQL ORDER BY fragment.
type OrderBySort struct {
	SQL string
}

// OrderBy returns a raw SQL sort.
func OrderBy(sql string) *OrderBySort {
	return &OrderBySort{SQL: sql}
}

func (s *OrderBySort) Kind() Kind {
	return KindOrderBySort
}

func (s *OrderBySort) Validate() error {
	if s.SQL == "" {
		return fmt.Errorf("empty order by")
	}
	return checkText(s.SQL)
}
