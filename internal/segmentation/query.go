package segmentation

import "encoding/json"

// Query assembles a structured query against one source table.
type Query struct {
	sourceTable int
	filter      Clause
	fields      []int
	breakout    []int
	count       bool
	orderByAgg  bool
	limit       int
}

// NewQuery starts a query against tableID.
func NewQuery(tableID int) *Query {
	return &Query{sourceTable: tableID}
}

// Filter sets the predicate. A nil clause leaves the query unfiltered.
func (q *Query) Filter(c Clause) *Query {
	q.filter = c
	return q
}

// Fields restricts the projection to the given field ids, in order.
func (q *Query) Fields(ids ...int) *Query {
	q.fields = append(q.fields, ids...)
	return q
}

// Breakout groups rows by the given field ids.
func (q *Query) Breakout(ids ...int) *Query {
	q.breakout = append(q.breakout, ids...)
	return q
}

// Count adds a row-count aggregation.
func (q *Query) Count() *Query {
	q.count = true
	return q
}

// OrderByCountDesc sorts aggregated rows by the count, highest first.
func (q *Query) OrderByCountDesc() *Query {
	q.orderByAgg = true
	return q
}

// Limit caps the number of returned rows. Zero means no limit.
func (q *Query) Limit(n int) *Query {
	q.limit = n
	return q
}

// Map returns the query in its wire form.
func (q *Query) Map() map[string]any {
	m := map[string]any{"source-table": q.sourceTable}
	if q.filter != nil {
		m["filter"] = q.filter
	}
	if len(q.fields) > 0 {
		refs := make([]any, len(q.fields))
		for i, id := range q.fields {
			refs[i] = FieldRef(id)
		}
		m["fields"] = refs
	}
	if len(q.breakout) > 0 {
		refs := make([]any, len(q.breakout))
		for i, id := range q.breakout {
			refs[i] = FieldRef(id)
		}
		m["breakout"] = refs
	}
	if q.count {
		m["aggregation"] = []any{[]any{"count"}}
	}
	if q.orderByAgg && q.count {
		m["order-by"] = []any{[]any{"desc", []any{"aggregation", 0}}}
	}
	if q.limit > 0 {
		m["limit"] = q.limit
	}
	return m
}

// MarshalJSON implements json.Marshaler.
func (q *Query) MarshalJSON() ([]byte, error) {
	return json.Marshal(q.Map())
}
