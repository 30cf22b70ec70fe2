// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package expr

import "fmt"

// JoinType is the type of a join between data targets.
type JoinType int

const (
	InnerJoin JoinType = iota
	LeftJoin
	RightJoin
)

func (j JoinType) String() string {
	switch j {
	case LeftJoin:
		return "LEFT JOIN"
	case RightJoin:
		return "RIGHT JOIN"
	}
	return "INNER JOIN"
}

// Join joins a data target on a condition.
type Join struct {
	Target string
	Type   JoinType
	On     Filter
}

// DataTarget names the table a query or write operation acts on, with its
// joins.
type DataTarget struct {
	name  string
	joins []Join
}

// Target returns the data target with the given name.
func Target(name string) *DataTarget {
	return &DataTarget{name: name}
}

func (t *DataTarget) Kind() Kind {
	return KindTarget
}

func (t *DataTarget) Validate() error {
	if t == nil || t.name == "" {
		return fmt.Errorf("data target without name")
	}
	if err := checkText(t.name); err != nil {
		return err
	}
	for _, j := range t.joins {
		if j.Target == "" {
			return fmt.Errorf("join without target on %q", t.name)
		}
		if err := checkText(j.Target); err != nil {
			return err
		}
		if j.On != nil {
			if err := j.On.Validate(); err != nil {
				return err
			}
		}
	}
	return nil
}

// Name returns the data target name.
func (t *DataTarget) Name() string {
	return t.name
}

// Joins returns the joins in declaration order.
func (t *DataTarget) Joins() []Join {
	return t.joins
}

// Join returns a copy of t joined with target on the given condition.
func (t *DataTarget) Join(target string, typ JoinType, on Filter) *DataTarget {
	c := &DataTarget{name: t.name, joins: make([]Join, len(t.joins), len(t.joins)+1)}
	copy(c.joins, t.joins)
	c.joins = append(c.joins, Join{Target: target, Type: typ, On: on})
	return c
}

// InnerJoin returns a copy of t inner joined with target.
func (t *DataTarget) InnerJoin(target string, on Filter) *DataTarget {
	return t.Join(target, InnerJoin, on)
}

// LeftJoin returns a copy of t left joined with target.
func (t *DataTarget) LeftJoin(target string, on Filter) *DataTarget {
	return t.Join(target, LeftJoin, on)
}

// RightJoin returns a copy of t right joined with target.
func (t *DataTarget) RightJoin(target string, on Filter) *DataTarget {
	return t.Join(target, RightJoin, on)
}

// EqualTo returns a filter comparing two expressions, typically the paths
// a join is made on.
func EqualTo(left, right TypedExpression) Filter {
	return NewOperationFilter(left, EQ, right)
}
