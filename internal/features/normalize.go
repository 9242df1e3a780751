package features

import "strings"

// DefaultDropColumns are identifier-only columns that never reach the classifier.
var DefaultDropColumns = []string{"flow id", "timestamp", "label"}

// CanonicalName lower-cases a column name and strips surrounding whitespace.
func CanonicalName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Normalizer canonicalizes column names and removes identifier columns.
type Normalizer struct {
	drop map[string]struct{}
}

// NewNormalizer builds a normalizer that drops the given columns. Names are canonicalized, so
// "Flow ID" and "flow id" are the same column.
func NewNormalizer(drop []string) Normalizer {
	n := Normalizer{drop: make(map[string]struct{}, len(drop))}
	for _, d := range drop {
		n.drop[CanonicalName(d)] = struct{}{}
	}
	return n
}

// Normalize returns a copy of rec with canonical names and without dropped columns.
func (n Normalizer) Normalize(rec Record) (Record, error) {
	out := make(Record, 0, len(rec))
	seen := make(map[string]struct{}, len(rec))
	for _, f := range rec {
		name := CanonicalName(f.Name)
		if name == "" {
			return nil, &SchemaError{Reason: "empty column name"}
		}
		if _, ok := n.drop[name]; ok {
			continue
		}
		if _, dup := seen[name]; dup {
			return nil, &SchemaError{Reason: "duplicate column " + name}
		}
		seen[name] = struct{}{}
		out = append(out, Field{Name: name, Value: f.Value})
	}
	if len(out) == 0 {
		return nil, &SchemaError{Reason: "no feature columns"}
	}
	return out, nil
}
