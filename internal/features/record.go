// Package features converts raw flow records into the numeric vectors the classifier consumes.
//
// The package is split into a fit side, which learns an Artifact (schema, categorical encoding
// table and scaling parameters) from a training set exactly once, and an apply side, which
// transforms any record with a previously fitted Artifact. Training, batch inference and live
// serving all go through Artifact.Transform so every call site sees identical statistics.
package features

import (
	"errors"
	"math"
	"strconv"
)

// Kind classifies a raw scalar.
type Kind uint8

const (
	Missing Kind = iota
	Number
	Text
)

func (k Kind) String() string {
	switch k {
	case Number:
		return "number"
	case Text:
		return "text"
	default:
		return "missing"
	}
}

// Value is a raw scalar as it arrives from a CSV row or a request body.
type Value struct {
	Kind Kind
	Num  float64
	Str  string
}

func Num(f float64) Value { return Value{Kind: Number, Num: f} }
func Str(s string) Value { return Value{Kind: Text, Str: s} }
func Null() Value { return Value{Kind: Missing} }
func (v Value) IsMissing() bool { return v.Kind == Missing }

// Category returns the string key used to look the value up in an EncodingTable.
func (v Value) Category() string {
	switch v.Kind {
	case Text:
		return v.Str
	case Number:
		return strconv.FormatFloat(v.Num, 'f', -1, 64)
	default:
		return ""
	}
}

// ParseValue types a raw cell. Empty cells and the usual NA spellings are missing, anything
// strconv accepts as a float (including Inf and out-of-range magnitudes) is a number,
// everything else is text.
func ParseValue(s string) Value {
	switch s {
	case "", "NA", "NaN", "nan", "N/A", "null", "NULL":
		return Null()
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil && !errors.Is(err, strconv.ErrRange) {
		return Str(s)
	}
	if math.IsNaN(f) {
		return Null()
	}
	return Num(f)
}

// Field is one named cell of a record.
type Field struct {
	Name  string
	Value Value
}

// Record is an ordered column -> value mapping. Column names may carry arbitrary casing and
// whitespace until the record has been normalized.
type Record []Field

// Get returns the value for name and whether it was present.
func (r Record) Get(name string) (Value, bool) {
	for _, f := range r {
		if f.Name == name {
			return f.Value, true
		}
	}
	return Value{}, false
}

// Names returns the column names in record order.
func (r Record) Names() []string {
	names := make([]string, len(r))
	for i, f := range r {
		names[i] = f.Name
	}
	return names
}

// clone copies the record so stages never write into the caller's slice.
func (r Record) clone() Record {
	out := make(Record, len(r))
	copy(out, r)
	return out
}
