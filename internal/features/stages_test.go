package features

import (
	"encoding/json"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func posInf() float64 { return math.Inf(1) }

func TestParseValue(t *testing.T) {
	testCases := []struct {
		in   string
		want Value
	}{
		{"", Null()},
		{"NaN", Null()},
		{"NA", Null()},
		{"12", Num(12)},
		{"-0.5", Num(-0.5)},
		{"Infinity", Num(math.Inf(1))},
		{"-inf", Num(math.Inf(-1))},
		{"1e400", Num(math.Inf(1))},
		{"-1e400", Num(math.Inf(-1))},
		{"tcp", Str("tcp")},
		{"6 ", Str("6 ")},
	}
	for _, tc := range testCases {
		t.Run(tc.in, func(t *testing.T) {
			assert.Equal(t, tc.want, ParseValue(tc.in))
		})
	}
}

func TestFit_OverflowCellKeepsColumnNumeric(t *testing.T) {
	train := []Record{
		{{Name: "rate", Value: ParseValue("1.0")}},
		{{Name: "rate", Value: ParseValue("1e400")}},
		{{Name: "rate", Value: ParseValue("3.0")}},
	}
	a, err := Fit(train, FitOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"rate"}, a.Schema().Select(Numeric))

	out, err := a.Transform(Record{{Name: "rate", Value: ParseValue("1e400")}})
	require.NoError(t, err)
	assert.False(t, math.IsInf(out.Vector[0], 0))
}

func TestNormalizer_Normalize(t *testing.T) {
	n := NewNormalizer(DefaultDropColumns)
	in := Record{
		{Name: " Flow ID ", Value: Str("1")},
		{Name: "  Destination Port", Value: Num(80)},
		{Name: "TIMESTAMP", Value: Str("now")},
		{Name: "Protocol ", Value: Num(6)},
		{Name: "Label", Value: Str("BENIGN")},
	}
	out, err := n.Normalize(in)
	require.NoError(t, err)
	assert.Equal(t, []string{"destination port", "protocol"}, out.Names())
	assert.Equal(t, " Flow ID ", in[0].Name, "input must not be modified")
}

func TestNormalizer_Errors(t *testing.T) {
	n := NewNormalizer(DefaultDropColumns)

	testCases := []struct {
		name string
		in   Record
	}{
		{"nil record", nil},
		{"only identifiers", Record{{Name: "Flow ID", Value: Str("x")}, {Name: "label", Value: Num(0)}}},
		{"duplicate after canonicalization", Record{{Name: "Port", Value: Num(1)}, {Name: " port", Value: Num(2)}}},
		{"blank name", Record{{Name: "  ", Value: Num(1)}}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := n.Normalize(tc.in)
			var schemaErr *SchemaError
			assert.True(t, errors.As(err, &schemaErr), "got %v", err)
		})
	}
}

func TestSanitize(t *testing.T) {
	in := Record{
		{Name: "a", Value: Null()},
		{Name: "b", Value: Num(math.Inf(1))},
		{Name: "c", Value: Num(math.Inf(-1))},
		{Name: "d", Value: Num(math.NaN())},
		{Name: "e", Value: Num(3.5)},
		{Name: "f", Value: Str("udp")},
	}
	out := Sanitize(in)
	assert.Equal(t, Record{
		{Name: "a", Value: Num(0)},
		{Name: "b", Value: Num(0)},
		{Name: "c", Value: Num(0)},
		{Name: "d", Value: Num(0)},
		{Name: "e", Value: Num(3.5)},
		{Name: "f", Value: Str("udp")},
	}, out)
	assert.True(t, in[0].Value.IsMissing(), "input must not be modified")
}

func TestEncodingTable_FitOnce(t *testing.T) {
	tbl := NewEncodingTable()
	rows := []Record{{{Name: "proto", Value: Str("tcp")}}}
	require.NoError(t, tbl.Fit(rows, []string{"proto"}))
	assert.True(t, tbl.Frozen())

	err := tbl.Fit(rows, []string{"proto"})
	var fitted *AlreadyFittedError
	require.True(t, errors.As(err, &fitted))
	assert.Equal(t, "encoder", fitted.Component)
}

func TestEncodingTable_FirstSeenOrder(t *testing.T) {
	tbl := NewEncodingTable()
	rows := []Record{
		{{Name: "proto", Value: Str("udp")}, {Name: "flag", Value: Str("S")}},
		{{Name: "proto", Value: Str("tcp")}, {Name: "flag", Value: Str("S")}},
		{{Name: "proto", Value: Str("udp")}, {Name: "flag", Value: Str("SA")}},
		{{Name: "proto", Value: Str("icmp")}, {Name: "flag", Value: Str("F")}},
	}
	require.NoError(t, tbl.Fit(rows, []string{"proto", "flag"}))
	assert.Equal(t, []string{"udp", "tcp", "icmp"}, tbl.Categories("proto"))
	assert.Equal(t, []string{"S", "SA", "F"}, tbl.Categories("flag"))
	assert.Equal(t, 2, tbl.Columns())
}

func TestEncodingTable_UnknownCategory(t *testing.T) {
	tbl := NewEncodingTable()
	require.NoError(t, tbl.Fit([]Record{{{Name: "proto", Value: Str("tcp")}}}, []string{"proto"}))

	out, unseen := tbl.Encode(Record{{Name: "proto", Value: Str("quic")}, {Name: "port", Value: Num(443)}})
	assert.Equal(t, Num(UnknownCode), out[0].Value)
	assert.Equal(t, Num(443), out[1].Value)
	assert.Equal(t, []Unseen{{Column: "proto", Value: "quic"}}, unseen)
	assert.Equal(t, []string{"tcp"}, tbl.Categories("proto"), "apply must not append categories")
}

func TestEncodingTable_JSON(t *testing.T) {
	tbl := NewEncodingTable()
	require.NoError(t, tbl.Fit([]Record{
		{{Name: "proto", Value: Str("tcp")}},
		{{Name: "proto", Value: Str("udp")}},
	}, []string{"proto"}))

	data, err := json.Marshal(tbl)
	require.NoError(t, err)
	assert.JSONEq(t, `{"proto":["tcp","udp"]}`, string(data))

	loaded := NewEncodingTable()
	require.NoError(t, json.Unmarshal(data, loaded))
	assert.True(t, loaded.Frozen())
	code, ok := loaded.Code("proto", "udp")
	assert.True(t, ok)
	assert.Equal(t, 1, code)

	assert.Error(t, json.Unmarshal([]byte(`{"proto":["tcp","tcp"]}`), NewEncodingTable()))
}

func TestScaler_FitAndScale(t *testing.T) {
	s := NewScaler()
	rows := []Record{
		{{Name: "bytes", Value: Num(10)}, {Name: "pkts", Value: Num(1)}},
		{{Name: "bytes", Value: Num(20)}, {Name: "pkts", Value: Num(1)}},
		{{Name: "bytes", Value: Num(30)}, {Name: "pkts", Value: Num(1)}},
	}
	require.NoError(t, s.Fit(rows, []string{"bytes", "pkts"}))

	st, ok := s.Stats("bytes")
	require.True(t, ok)
	assert.InDelta(t, 20, st.Mean, 1e-12)
	assert.InDelta(t, math.Sqrt(200.0/3.0), st.Std, 1e-12)

	pk, _ := s.Stats("pkts")
	assert.True(t, pk.ZeroVariance())

	out := s.Scale(Record{{Name: "bytes", Value: Num(20)}, {Name: "pkts", Value: Num(99)}, {Name: "other", Value: Num(7)}})
	assert.Equal(t, Num(0), out[0].Value)
	assert.Equal(t, Num(0), out[1].Value)
	assert.Equal(t, Num(7), out[2].Value)

	err := s.Fit(rows, []string{"bytes"})
	var fitted *AlreadyFittedError
	assert.True(t, errors.As(err, &fitted))
}

func TestScaler_UsesStoredStatistics(t *testing.T) {
	s := NewScaler()
	require.NoError(t, s.Fit([]Record{
		{{Name: "x", Value: Num(0)}},
		{{Name: "x", Value: Num(2)}},
	}, []string{"x"}))

	// A batch whose own mean is 100 must still be scaled with the training mean of 1.
	for _, v := range []float64{99, 100, 101} {
		out := s.Scale(Record{{Name: "x", Value: Num(v)}})
		assert.InDelta(t, v-1, out[0].Value.Num, 1e-12)
	}
}

func TestScaler_RejectsInvalidJSON(t *testing.T) {
	assert.Error(t, json.Unmarshal([]byte(`{"x":{"mean":1,"std":-1}}`), NewScaler()))
	assert.Error(t, json.Unmarshal([]byte(`[1,2]`), NewScaler()))
}

func TestAssemble(t *testing.T) {
	schema := Schema{Columns: []Column{{Name: "a", Kind: Numeric}, {Name: "b", Kind: Categorical}}}

	vec, dropped, err := Assemble(Record{
		{Name: "z", Value: Num(9)},
		{Name: "b", Value: Num(2)},
		{Name: "a", Value: Num(1)},
	}, schema)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2}, vec)
	assert.Equal(t, []string{"z"}, dropped)

	_, _, err = Assemble(Record{{Name: "a", Value: Num(1)}}, schema)
	var mismatch *SchemaMismatchError
	require.True(t, errors.As(err, &mismatch))
	assert.Equal(t, "b", mismatch.Column)
}
