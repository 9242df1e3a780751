package features

import (
	"encoding/json"
	"fmt"
)

// UnknownCode is the code assigned to categories never seen during fit.
const UnknownCode = -1

// Unseen records a categorical value that had no code in the table.
type Unseen struct {
	Column string
	Value  string
}

// EncodingTable maps each categorical column's values to integer codes. Codes are assigned in
// first-seen order during Fit and the table is frozen afterwards.
type EncodingTable struct {
	categories map[string][]string
	codes      map[string]map[string]int
	frozen     bool
}

// NewEncodingTable returns an empty, unfrozen table.
func NewEncodingTable() *EncodingTable {
	return &EncodingTable{
		categories: make(map[string][]string),
		codes:      make(map[string]map[string]int),
	}
}

// Fit assigns codes for the given categorical columns over the training records and freezes
// the table. Records must already be normalized and sanitized.
func (t *EncodingTable) Fit(records []Record, columns []string) error {
	if t.frozen {
		return &AlreadyFittedError{Component: "encoder"}
	}
	for _, c := range columns {
		t.categories[c] = []string{}
		t.codes[c] = make(map[string]int)
	}
	for _, rec := range records {
		for _, f := range rec {
			codes, ok := t.codes[f.Name]
			if !ok {
				continue
			}
			key := f.Value.Category()
			if _, seen := codes[key]; seen {
				continue
			}
			codes[key] = len(t.categories[f.Name])
			t.categories[f.Name] = append(t.categories[f.Name], key)
		}
	}
	t.frozen = true
	return nil
}

// Frozen reports whether Fit has completed.
func (t *EncodingTable) Frozen() bool { return t.frozen }

// Columns returns the number of encoded columns.
func (t *EncodingTable) Columns() int { return len(t.categories) }

// Code returns the code for value in column. ok is false when the column is not categorical.
// Unseen values return UnknownCode with ok true.
func (t *EncodingTable) Code(column, value string) (code int, ok bool) {
	codes, ok := t.codes[column]
	if !ok {
		return 0, false
	}
	if c, seen := codes[value]; seen {
		return c, true
	}
	return UnknownCode, true
}

// Categories returns a copy of the categories of column in code order.
func (t *EncodingTable) Categories(column string) []string {
	return append([]string(nil), t.categories[column]...)
}

// Encode replaces every categorical value in rec with its code. The table is only read.
func (t *EncodingTable) Encode(rec Record) (Record, []Unseen) {
	out := rec.clone()
	var unseen []Unseen
	for i, f := range out {
		key := f.Value.Category()
		code, ok := t.Code(f.Name, key)
		if !ok {
			continue
		}
		if code == UnknownCode {
			unseen = append(unseen, Unseen{Column: f.Name, Value: key})
		}
		out[i].Value = Num(float64(code))
	}
	return out, unseen
}

// MarshalJSON stores each column as its ordered category list; the code is the list index.
func (t *EncodingTable) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.categories)
}

// UnmarshalJSON rebuilds the lookup index and freezes the table.
func (t *EncodingTable) UnmarshalJSON(data []byte) error {
	var categories map[string][]string
	if err := json.Unmarshal(data, &categories); err != nil {
		return fmt.Errorf("decode encoding table: %w", err)
	}
	t.categories = make(map[string][]string, len(categories))
	t.codes = make(map[string]map[string]int, len(categories))
	for col, values := range categories {
		codes := make(map[string]int, len(values))
		for i, v := range values {
			if _, dup := codes[v]; dup {
				return fmt.Errorf("decode encoding table: duplicate category %q in column %q", v, col)
			}
			codes[v] = i
		}
		t.categories[col] = values
		t.codes[col] = codes
	}
	t.frozen = true
	return nil
}
