package features

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func protoDurRows() []Record {
	return []Record{
		{{Name: "proto", Value: Str("tcp")}, {Name: "dur", Value: Num(1.0)}},
		{{Name: "proto", Value: Str("udp")}, {Name: "dur", Value: Num(3.0)}},
	}
}

func fitProtoDur(t *testing.T) *Artifact {
	t.Helper()
	a, err := Fit(protoDurRows(), FitOptions{})
	require.NoError(t, err)
	return a
}

func TestFit_EndToEndExample(t *testing.T) {
	a := fitProtoDur(t)

	assert.Equal(t, []string{"proto", "dur"}, a.Schema().Names())
	assert.Equal(t, []string{"tcp", "udp"}, a.Categories("proto"))

	st, ok := a.Stats("dur")
	require.True(t, ok)
	assert.InDelta(t, 2.0, st.Mean, 1e-12)
	assert.InDelta(t, 1.0, st.Std, 1e-12)

	out, err := a.Transform(Record{{Name: "proto", Value: Str("tcp")}, {Name: "dur", Value: Num(4.0)}})
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 2.0}, out.Vector)
	assert.Empty(t, out.Unseen)

	out, err = a.Transform(Record{{Name: "proto", Value: Str("icmp")}, {Name: "dur", Value: Num(2.0)}})
	require.NoError(t, err)
	assert.Equal(t, []float64{-1, 0.0}, out.Vector)
	assert.Equal(t, []Unseen{{Column: "proto", Value: "icmp"}}, out.Unseen)
}

func TestTransform_Deterministic(t *testing.T) {
	a := fitProtoDur(t)
	rec := Record{{Name: " Proto ", Value: Str("udp")}, {Name: "DUR", Value: Num(7.25)}}

	first, err := a.Transform(rec)
	require.NoError(t, err)
	second, err := a.Transform(rec)
	require.NoError(t, err)

	b1, _ := json.Marshal(first.Vector)
	b2, _ := json.Marshal(second.Vector)
	assert.Equal(t, b1, b2)
}

func TestTransform_DoesNotRefit(t *testing.T) {
	a := fitProtoDur(t)
	before, err := json.Marshal(a)
	require.NoError(t, err)

	x, err := a.Transform(Record{{Name: "proto", Value: Str("tcp")}, {Name: "dur", Value: Num(100)}})
	require.NoError(t, err)
	y, err := a.Transform(Record{{Name: "proto", Value: Str("gre")}, {Name: "dur", Value: Num(-50)}})
	require.NoError(t, err)
	assert.NotEqual(t, x.Vector, y.Vector)

	after, err := json.Marshal(a)
	require.NoError(t, err)
	assert.JSONEq(t, string(before), string(after))
}

func TestTransform_SchemaStability(t *testing.T) {
	a := fitProtoDur(t)
	inputs := []Record{
		{{Name: "proto", Value: Str("tcp")}, {Name: "dur", Value: Num(1)}},
		{{Name: "dur", Value: Num(1)}, {Name: "proto", Value: Str("tcp")}},
		{{Name: "proto", Value: Str("tcp")}, {Name: "dur", Value: Num(1)}, {Name: "extra", Value: Str("x")}},
		{{Name: "Flow ID", Value: Str("f-1")}, {Name: "proto", Value: Null()}, {Name: "dur", Value: Null()}},
	}
	for i, rec := range inputs {
		out, err := a.Transform(rec)
		require.NoError(t, err, "input %d", i)
		assert.Len(t, out.Vector, a.Schema().Len(), "input %d", i)
	}
}

func TestTransform_ReorderedColumnsMatch(t *testing.T) {
	a := fitProtoDur(t)
	x, err := a.Transform(Record{{Name: "proto", Value: Str("udp")}, {Name: "dur", Value: Num(5)}})
	require.NoError(t, err)
	y, err := a.Transform(Record{{Name: "dur", Value: Num(5)}, {Name: "proto", Value: Str("udp")}})
	require.NoError(t, err)
	assert.Equal(t, x.Vector, y.Vector)
}

func TestTransform_ExtraColumnsReported(t *testing.T) {
	a := fitProtoDur(t)
	out, err := a.Transform(Record{
		{Name: "proto", Value: Str("tcp")},
		{Name: "src ip", Value: Str("10.0.0.1")},
		{Name: "dur", Value: Num(2)},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"src ip"}, out.Dropped)
}

func TestTransform_MissingColumnFails(t *testing.T) {
	a := fitProtoDur(t)
	_, err := a.Transform(Record{{Name: "proto", Value: Str("tcp")}})
	require.Error(t, err)

	var stage *StageError
	require.True(t, errors.As(err, &stage))
	assert.Equal(t, StageAssemble, stage.Stage)

	var mismatch *SchemaMismatchError
	require.True(t, errors.As(err, &mismatch))
	assert.Equal(t, "dur", mismatch.Column)
}

func TestTransform_TextInNumericColumnFails(t *testing.T) {
	a := fitProtoDur(t)
	_, err := a.Transform(Record{{Name: "proto", Value: Str("tcp")}, {Name: "dur", Value: Str("slow")}})
	var mismatch *SchemaMismatchError
	require.True(t, errors.As(err, &mismatch))
	assert.Equal(t, "dur", mismatch.Column)
}

func TestTransform_EmptyRecordFails(t *testing.T) {
	a := fitProtoDur(t)
	_, err := a.Transform(Record{{Name: "Label", Value: Num(1)}})

	var stage *StageError
	require.True(t, errors.As(err, &stage))
	assert.Equal(t, StageNormalize, stage.Stage)
	var schemaErr *SchemaError
	assert.True(t, errors.As(err, &schemaErr))
}

func TestFit_ZeroVarianceColumn(t *testing.T) {
	rows := []Record{
		{{Name: "const", Value: Num(5)}, {Name: "x", Value: Num(1)}},
		{{Name: "const", Value: Num(5)}, {Name: "x", Value: Num(2)}},
	}
	a, err := Fit(rows, FitOptions{})
	require.NoError(t, err)

	for _, v := range []float64{5, 0, -3, 1e9} {
		out, err := a.Transform(Record{{Name: "const", Value: Num(v)}, {Name: "x", Value: Num(1)}})
		require.NoError(t, err)
		assert.Equal(t, 0.0, out.Vector[0])
	}
}

func TestFit_SanitizesBeforeFitting(t *testing.T) {
	rows := []Record{
		{{Name: "bytes", Value: Num(2)}},
		{{Name: "bytes", Value: Null()}},
		{{Name: "bytes", Value: Num(posInf())}},
		{{Name: "bytes", Value: Num(2)}},
	}
	a, err := Fit(rows, FitOptions{})
	require.NoError(t, err)
	st, _ := a.Stats("bytes")
	assert.InDelta(t, 1.0, st.Mean, 1e-12)
	assert.InDelta(t, 1.0, st.Std, 1e-12)
}

func TestFit_DropsIdentifierColumns(t *testing.T) {
	rows := []Record{
		{{Name: "Flow ID", Value: Str("a")}, {Name: " Timestamp", Value: Str("t")}, {Name: "Label", Value: Str("BENIGN")}, {Name: "Duration", Value: Num(1)}},
	}
	a, err := Fit(rows, FitOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"duration"}, a.Schema().Names())
}

func TestFit_CustomDropColumns(t *testing.T) {
	rows := []Record{{{Name: "id", Value: Num(1)}, {Name: "duration", Value: Num(1)}}}
	a, err := Fit(rows, FitOptions{DropColumns: []string{"ID"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"duration"}, a.Schema().Names())
	assert.Equal(t, []string{"id"}, a.DropColumns())
}

func TestFit_Errors(t *testing.T) {
	_, err := Fit(nil, FitOptions{})
	var schemaErr *SchemaError
	assert.True(t, errors.As(err, &schemaErr))

	ragged := []Record{
		{{Name: "a", Value: Num(1)}, {Name: "b", Value: Num(1)}},
		{{Name: "a", Value: Num(2)}},
	}
	_, err = Fit(ragged, FitOptions{})
	var mismatch *SchemaMismatchError
	require.True(t, errors.As(err, &mismatch))
	assert.Equal(t, "b", mismatch.Column)
}

func TestFit_NumericValuesInCategoricalColumn(t *testing.T) {
	rows := []Record{
		{{Name: "service", Value: Str("http")}},
		{{Name: "service", Value: Num(53)}},
		{{Name: "service", Value: Null()}},
	}
	a, err := Fit(rows, FitOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"http", "53", "0"}, a.Categories("service"))

	out, err := a.Transform(Record{{Name: "service", Value: Str("53")}})
	require.NoError(t, err)
	assert.Equal(t, []float64{1}, out.Vector)
}

func TestArtifact_JSONRoundTrip(t *testing.T) {
	a := fitProtoDur(t)
	data, err := json.Marshal(a)
	require.NoError(t, err)

	var loaded Artifact
	require.NoError(t, json.Unmarshal(data, &loaded))
	assert.Equal(t, FormatVersion, loaded.Version())

	for _, rec := range []Record{
		{{Name: "proto", Value: Str("udp")}, {Name: "dur", Value: Num(0.5)}},
		{{Name: "proto", Value: Str("sctp")}, {Name: "dur", Value: Num(9)}},
	} {
		want, err := a.Transform(rec)
		require.NoError(t, err)
		got, err := loaded.Transform(rec)
		require.NoError(t, err)
		assert.Equal(t, want.Vector, got.Vector)
	}
}

func TestArtifact_IncompatibleVersion(t *testing.T) {
	a := fitProtoDur(t)
	data, err := json.Marshal(a)
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))
	doc["format_version"] = FormatVersion + 1
	data, err = json.Marshal(doc)
	require.NoError(t, err)

	var loaded Artifact
	err = json.Unmarshal(data, &loaded)
	var versionErr *IncompatibleVersionError
	require.True(t, errors.As(err, &versionErr))
	assert.Equal(t, FormatVersion+1, versionErr.Got)
}

func TestArtifact_ConcurrentTransform(t *testing.T) {
	a := fitProtoDur(t)
	rec := Record{{Name: "proto", Value: Str("udp")}, {Name: "dur", Value: Num(2.5)}}
	want, err := a.Transform(rec)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				got, err := a.Transform(rec)
				if assert.NoError(t, err) {
					assert.Equal(t, want.Vector, got.Vector)
				}
			}
		}()
	}
	wg.Wait()
}

func TestTransformAll_FailFast(t *testing.T) {
	a := fitProtoDur(t)
	rows := []Record{
		{{Name: "proto", Value: Str("tcp")}, {Name: "dur", Value: Num(1)}},
		{{Name: "proto", Value: Str("tcp")}},
	}
	X, err := a.TransformAll(rows)
	assert.Nil(t, X)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "row 1")
}
