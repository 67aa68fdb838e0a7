package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"strconv"

	"github.com/mevdschee/tqingest/ilp"
)

// jsonRow is one input line:
//
//	{"table":"trades","symbols":{"sym":"ETH-USD"},"columns":{"price":2615.54,"qty":3},"at":1700000000000000000}
//
// Object keys are written in sorted order. Whole numbers become integer
// columns, arrays of numbers become float arrays.
type jsonRow struct {
	Table   string                     `json:"table"`
	Symbols map[string]string          `json:"symbols"`
	Columns map[string]json.RawMessage `json:"columns"`
	At      *int64                     `json:"at"`
}

func parseRow(line []byte) (ilp.Row, error) {
	var jr jsonRow
	if err := json.Unmarshal(line, &jr); err != nil {
		return ilp.Row{}, err
	}

	r := ilp.Row{Table: jr.Table}
	for _, name := range sortedKeys(jr.Symbols) {
		r.Symbols = append(r.Symbols, ilp.F(name, jr.Symbols[name]))
	}
	for _, name := range sortedKeys(jr.Columns) {
		v, err := columnValue(jr.Columns[name])
		if err != nil {
			return ilp.Row{}, fmt.Errorf("column %q: %w", name, err)
		}
		r.Columns = append(r.Columns, ilp.F(name, v))
	}
	if jr.At != nil {
		r.At = ilp.AtNanos(*jr.At)
	}
	return r, nil
}

func columnValue(raw json.RawMessage) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}

	switch v := v.(type) {
	case nil, bool, string:
		return v, nil
	case json.Number:
		if n, err := strconv.ParseInt(v.String(), 10, 64); err == nil {
			return n, nil
		}
		return v.Float64()
	case []any:
		out := make([]float64, len(v))
		for i, e := range v {
			n, ok := e.(json.Number)
			if !ok {
				return nil, fmt.Errorf("array element %d is not a number", i)
			}
			f, err := n.Float64()
			if err != nil {
				return nil, err
			}
			out[i] = f
		}
		return out, nil
	}
	return nil, fmt.Errorf("unsupported value %s", raw)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
