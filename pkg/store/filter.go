package store

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"carelink/pkg/apperr"
)

type Op int

const (
	OpEq Op = iota
	OpIn
	OpRange
)

// Cond is one predicate on a named field.
type Cond struct {
	Field  string
	Op     Op
	Value  any
	Values []any
	// Range bounds, half-open [From, To). A nil bound is open.
	From, To any
}

func Eq(field string, v any) Cond {
	return Cond{Field: field, Op: OpEq, Value: normalize(v)}
}

func In[V any](field string, vs ...V) Cond {
	values := make([]any, 0, len(vs))
	for _, v := range vs {
		values = append(values, normalize(v))
	}
	return Cond{Field: field, Op: OpIn, Values: values}
}

// Between matches from <= field < to. Zero times and nil pointers are open bounds.
func Between(field string, from, to any) Cond {
	return Cond{Field: field, Op: OpRange, From: bound(from), To: bound(to)}
}

// Filter is an abstract predicate plus ordering. Results are newest first
// unless a sort is given.
type Filter struct {
	Conds     []Cond
	OrderBy   string
	Ascending bool
	Limit     int
}

func Where(conds ...Cond) Filter {
	return Filter{Conds: conds}
}

// And returns f with extra conditions.
func (f Filter) And(conds ...Cond) Filter {
	f.Conds = append(append([]Cond(nil), f.Conds...), conds...)
	return f
}

func (f Filter) Sort(field string, ascending bool) Filter {
	f.OrderBy = field
	f.Ascending = ascending
	return f
}

func (f Filter) Take(n int) Filter {
	f.Limit = n
	return f
}

func (f Filter) orderField() string {
	if strings.TrimSpace(f.OrderBy) == "" {
		return "createdAt"
	}
	return f.OrderBy
}

func bound(v any) any {
	switch t := v.(type) {
	case nil:
		return nil
	case time.Time:
		if t.IsZero() {
			return nil
		}
		return t
	case *time.Time:
		if t == nil || t.IsZero() {
			return nil
		}
		return *t
	}
	return normalize(v)
}

// normalize folds named string/number types onto their base kinds so that
// enum values compare equal to the plain strings entities report.
func normalize(v any) any {
	switch t := v.(type) {
	case nil, string, bool, int64, float64, time.Time:
		return v
	case int:
		return int64(t)
	case *time.Time:
		if t == nil {
			return nil
		}
		return *t
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.String:
		return rv.String()
	case reflect.Bool:
		return rv.Bool()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int()
	case reflect.Float32, reflect.Float64:
		return rv.Float()
	}
	return v
}

// compare orders two normalized values of the same kind.
func compare(a, b any) (int, error) {
	switch x := a.(type) {
	case string:
		if y, ok := b.(string); ok {
			return strings.Compare(x, y), nil
		}
	case int64:
		if y, ok := b.(int64); ok {
			return cmpOrdered(x, y), nil
		}
	case float64:
		if y, ok := b.(float64); ok {
			return cmpOrdered(x, y), nil
		}
	case time.Time:
		if y, ok := b.(time.Time); ok {
			return x.Compare(y), nil
		}
	case bool:
		if y, ok := b.(bool); ok {
			if x == y {
				return 0, nil
			}
			if !x {
				return -1, nil
			}
			return 1, nil
		}
	}
	return 0, fmt.Errorf("cannot compare %T with %T", a, b)
}

func cmpOrdered[V int64 | float64](a, b V) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func unknownField(name string) error {
	return apperr.New(apperr.Validation, "unknown filter field").With("field", name)
}

// matches evaluates c against a record's field accessor.
func (c Cond) matches(get func(string) (any, bool)) (bool, error) {
	raw, ok := get(c.Field)
	if !ok {
		return false, unknownField(c.Field)
	}
	v := normalize(raw)
	switch c.Op {
	case OpEq:
		n, err := compare(v, c.Value)
		return err == nil && n == 0, err
	case OpIn:
		for _, want := range c.Values {
			n, err := compare(v, want)
			if err != nil {
				return false, err
			}
			if n == 0 {
				return true, nil
			}
		}
		return false, nil
	case OpRange:
		if c.From != nil {
			n, err := compare(v, c.From)
			if err != nil || n < 0 {
				return false, err
			}
		}
		if c.To != nil {
			n, err := compare(v, c.To)
			if err != nil || n >= 0 {
				return false, err
			}
		}
		return true, nil
	}
	return false, fmt.Errorf("unknown filter op %d", c.Op)
}
