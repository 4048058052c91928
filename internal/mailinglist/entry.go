// Package mailinglist turns filtered warehouse rows into mailing-list
// records and CSV files.
package mailinglist

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Entry is one exported contact: column name to display value, in column
// order. The column set is discovered per table at runtime.
type Entry struct {
	keys   []string
	values map[string]string
}

// NewEntry returns an empty entry.
func NewEntry() *Entry {
	return &Entry{values: map[string]string{}}
}

// FromRow maps a result row onto its column names by position.
func FromRow(cols []string, row []any) *Entry {
	e := &Entry{keys: make([]string, 0, len(cols)), values: make(map[string]string, len(cols))}
	for i, col := range cols {
		var v any
		if i < len(row) {
			v = row[i]
		}
		e.Set(col, v)
	}
	return e
}

// Set stores v under key, appending key on first use.
func (e *Entry) Set(key string, v any) {
	if _, ok := e.values[key]; !ok {
		e.keys = append(e.keys, key)
	}
	e.values[key] = Stringify(v)
}

// Get returns the value for key, or "".
func (e *Entry) Get(key string) string {
	return e.values[key]
}

// Keys returns the column names in insertion order.
func (e *Entry) Keys() []string {
	return e.keys
}

// Len returns the number of columns.
func (e *Entry) Len() int { return len(e.keys) }

// MarshalJSON encodes the entry as an object with keys in column order.
func (e *Entry) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range e.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		vb, err := json.Marshal(e.values[k])
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Stringify renders a warehouse scalar for a mailing list. Nulls and the
// placeholder strings "null", "undefined" and "NaN" become "".
func Stringify(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		switch strings.TrimSpace(x) {
		case "null", "NULL", "undefined", "NaN":
			return ""
		}
		return x
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return ""
		}
		if x == math.Trunc(x) && math.Abs(x) < 1e15 {
			return strconv.FormatInt(int64(x), 10)
		}
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	case json.Number:
		return x.String()
	default:
		return fmt.Sprint(x)
	}
}
