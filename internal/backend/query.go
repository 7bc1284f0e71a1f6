package backend

import (
	"net/url"
	"strconv"
	"strings"
)

// Filter operators understood by the table endpoint.
const (
	OpEq    = "eq"
	OpNeq   = "neq"
	OpIs    = "is"
	OpILike = "ilike"
	OpIn    = "in"
)

// Filter is a single column predicate, e.g. conversation_id=eq.<id>.
type Filter struct {
	Column string
	Op     string
	Value  string
	Values []string // OpIn only
}

func (f Filter) encode() string {
	if f.Op == OpIn {
		return "in.(" + strings.Join(f.Values, ",") + ")"
	}
	return f.Op + "." + f.Value
}

// Order is one sort key.
type Order struct {
	Column    string
	Ascending bool
}

// Query describes a filtered table read or the row set of a write. Builder
// methods return a modified copy so a base query can be shared.
type Query struct {
	columns string
	filters []Filter
	any     [][]Filter
	order   []Order
	limit   int
	single  bool
	maybe   bool
}

// Select starts a query returning the given columns (all when empty).
func Select(columns ...string) Query {
	return Query{columns: strings.Join(columns, ",")}
}

// Where starts a query with no column list, for updates and deletes.
func Where() Query { return Query{} }

func (q Query) with(f Filter) Query {
	q.filters = append(append([]Filter(nil), q.filters...), f)
	return q
}

func (q Query) Eq(column, value string) Query {
	return q.with(Filter{Column: column, Op: OpEq, Value: value})
}

func (q Query) Neq(column, value string) Query {
	return q.with(Filter{Column: column, Op: OpNeq, Value: value})
}

// IsNull matches rows where column is null.
func (q Query) IsNull(column string) Query {
	return q.with(Filter{Column: column, Op: OpIs, Value: "null"})
}

// ILike is a case-insensitive pattern match; % is the wildcard.
func (q Query) ILike(column, pattern string) Query {
	return q.with(Filter{Column: column, Op: OpILike, Value: pattern})
}

func (q Query) In(column string, values []string) Query {
	return q.with(Filter{Column: column, Op: OpIn, Values: append([]string(nil), values...)})
}

// Or adds a disjunction; the row matches when any of the filters does.
func (q Query) Or(filters ...Filter) Query {
	q.any = append(append([][]Filter(nil), q.any...), filters)
	return q
}

func (q Query) OrderBy(column string, ascending bool) Query {
	q.order = append(append([]Order(nil), q.order...), Order{Column: column, Ascending: ascending})
	return q
}

func (q Query) Limit(n int) Query {
	q.limit = n
	return q
}

// Single asks for exactly one row decoded as an object; zero rows is an error.
func (q Query) Single() Query {
	q.single = true
	return q
}

// MaybeSingle is Single but zero rows decodes nothing and is not an error.
func (q Query) MaybeSingle() Query {
	q.maybe = true
	return q
}

func (q Query) Columns() string { return q.columns }

func (q Query) Filters() []Filter { return q.filters }

func (q Query) Disjunctions() [][]Filter { return q.any }

func (q Query) Orders() []Order { return q.order }

func (q Query) RowLimit() int { return q.limit }

func (q Query) IsSingle() bool { return q.single }

func (q Query) IsMaybeSingle() bool { return q.maybe }

// Values encodes the query as table endpoint parameters.
func (q Query) Values() url.Values {
	v := url.Values{}
	if q.columns != "" {
		v.Set("select", q.columns)
	}
	for _, f := range q.filters {
		v.Add(f.Column, f.encode())
	}
	for _, group := range q.any {
		parts := make([]string, 0, len(group))
		for _, f := range group {
			parts = append(parts, f.Column+"."+f.encode())
		}
		v.Add("or", "("+strings.Join(parts, ",")+")")
	}
	if len(q.order) > 0 {
		keys := make([]string, 0, len(q.order))
		for _, o := range q.order {
			dir := "desc"
			if o.Ascending {
				dir = "asc"
			}
			keys = append(keys, o.Column+"."+dir)
		}
		v.Set("order", strings.Join(keys, ","))
	}
	if q.limit > 0 {
		v.Set("limit", strconv.Itoa(q.limit))
	}
	return v
}

// EqFilter builds a bare equality filter for use inside Or.
func EqFilter(column, value string) Filter {
	return Filter{Column: column, Op: OpEq, Value: value}
}
