package mart

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// MarshalRecords encodes rows as a JSON array of column-keyed objects.
func (s Schema) MarshalRecords(rows any) ([]byte, error) {
	recs, err := s.Records(rows)
	if err != nil {
		return nil, err
	}
	if recs == nil {
		recs = []map[string]any{}
	}
	return json.Marshal(recs)
}

// UnmarshalRecords decodes a JSON array written by MarshalRecords, restoring
// each column to its catalog value type: string, int, bool, decimal.Decimal
// or time.Time (UTC). Missing and null columns are nil.
func (s Schema) UnmarshalRecords(data []byte) ([]map[string]any, error) {
	var raw []map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("table %s: %w", s.Name, err)
	}
	out := make([]map[string]any, len(raw))
	for i, r := range raw {
		rec := make(map[string]any, len(s.Columns))
		for _, c := range s.Columns {
			v, err := decodeColumn(c.Type, r[c.Name])
			if err != nil {
				return nil, fmt.Errorf("table %s row %d column %s: %w", s.Name, i, c.Name, err)
			}
			rec[c.Name] = v
		}
		out[i] = rec
	}
	return out, nil
}

func decodeColumn(t ColumnType, msg json.RawMessage) (any, error) {
	if len(msg) == 0 || string(msg) == "null" {
		return nil, nil
	}
	switch t {
	case Integer:
		var n int
		err := json.Unmarshal(msg, &n)
		return n, err
	case Boolean:
		var b bool
		err := json.Unmarshal(msg, &b)
		return b, err
	case Numeric:
		var d decimal.Decimal
		err := json.Unmarshal(msg, &d)
		return d, err
	case Timestamptz:
		var ts time.Time
		if err := json.Unmarshal(msg, &ts); err != nil {
			return nil, err
		}
		return ts.UTC(), nil
	default:
		var str string
		err := json.Unmarshal(msg, &str)
		return str, err
	}
}
