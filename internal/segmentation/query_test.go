package segmentation

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueryUnfiltered(t *testing.T) {
	b, err := json.Marshal(NewQuery(42).Filter(nil))
	require.NoError(t, err)
	assert.JSONEq(t, `{"source-table": 42}`, string(b))
}

func TestQueryProjectionAndLimit(t *testing.T) {
	q := NewQuery(42).
		Filter(Combine([]FilterValue{{FieldID: 7, Operator: OpIsNotNull}})).
		Fields(7, 8).
		Limit(100)

	b, err := json.Marshal(q)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"source-table": 42,
		"filter": ["not-null", ["field", 7, null]],
		"fields": [["field", 7, null], ["field", 8, null]],
		"limit": 100
	}`, string(b))
}

func TestQueryDistribution(t *testing.T) {
	q := NewQuery(42).Breakout(7).Count().OrderByCountDesc().Limit(20)

	b, err := json.Marshal(q)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"source-table": 42,
		"breakout": [["field", 7, null]],
		"aggregation": [["count"]],
		"order-by": [["desc", ["aggregation", 0]]],
		"limit": 20
	}`, string(b))
}

func TestOrderByRequiresAggregation(t *testing.T) {
	m := NewQuery(1).OrderByCountDesc().Map()
	_, ok := m["order-by"]
	assert.False(t, ok)
}
