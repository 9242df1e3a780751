package features

import (
	"encoding/json"
	"fmt"
)

// Artifact format versions this build can apply.
const (
	FormatVersion    = 1
	MinFormatVersion = 1
)

// Pipeline stage names, used to tag transform failures.
const (
	StageNormalize = "normalize"
	StageSanitize  = "sanitize"
	StageEncode    = "encode"
	StageScale     = "scale"
	StageAssemble  = "assemble"
)

// Artifact is the frozen result of fitting the pipeline: feature schema, encoding table and
// scaling parameters. It is never modified after Fit or decoding and can be shared by any
// number of goroutines.
type Artifact struct {
	version    int
	drop       []string
	schema     Schema
	encoding   *EncodingTable
	scaling    *Scaler
	normalizer Normalizer
}

// Transformed is the output of applying an artifact to one record.
type Transformed struct {
	Vector  []float64
	Unseen  []Unseen
	Dropped []string
}

// FitOptions controls Fit.
type FitOptions struct {
	// DropColumns are identifier columns removed by the normalizer. Nil means DefaultDropColumns.
	DropColumns []string
}

// Fit learns an artifact from training records. It is the only place schema, encoding and
// scaling parameters are computed.
func Fit(records []Record, opts FitOptions) (*Artifact, error) {
	if len(records) == 0 {
		return nil, &SchemaError{Reason: "empty training set"}
	}
	drop := opts.DropColumns
	if drop == nil {
		drop = DefaultDropColumns
	}
	norm := NewNormalizer(drop)

	clean := make([]Record, len(records))
	for i, rec := range records {
		n, err := norm.Normalize(rec)
		if err != nil {
			return nil, fmt.Errorf("training row %d: %w", i, err)
		}
		clean[i] = Sanitize(n)
	}

	schema := inferSchema(clean)
	for i, rec := range clean {
		if len(rec) != schema.Len() {
			for _, c := range schema.Columns {
				if _, ok := rec.Get(c.Name); !ok {
					return nil, &SchemaMismatchError{Column: c.Name, Reason: fmt.Sprintf("missing in training row %d", i)}
				}
			}
		}
	}

	enc := NewEncodingTable()
	if err := enc.Fit(clean, schema.Select(Categorical)); err != nil {
		return nil, err
	}
	scaler := NewScaler()
	if err := scaler.Fit(clean, schema.Select(Numeric)); err != nil {
		return nil, err
	}

	canonical := make([]string, len(drop))
	for i, d := range drop {
		canonical[i] = CanonicalName(d)
	}
	return &Artifact{
		version:    FormatVersion,
		drop:       canonical,
		schema:     schema,
		encoding:   enc,
		scaling:    scaler,
		normalizer: norm,
	}, nil
}

// inferSchema orders columns by first appearance and marks a column categorical when any
// training value in it is text.
func inferSchema(records []Record) Schema {
	var schema Schema
	pos := make(map[string]int)
	for _, rec := range records {
		for _, f := range rec {
			i, ok := pos[f.Name]
			if !ok {
				i = len(schema.Columns)
				pos[f.Name] = i
				schema.Columns = append(schema.Columns, Column{Name: f.Name, Kind: Numeric})
			}
			if f.Value.Kind == Text {
				schema.Columns[i].Kind = Categorical
			}
		}
	}
	return schema
}

// Transform applies the fitted pipeline to rec. The artifact is only read, so concurrent calls
// are safe and repeated calls return identical vectors.
func (a *Artifact) Transform(rec Record) (Transformed, error) {
	n, err := a.normalizer.Normalize(rec)
	if err != nil {
		return Transformed{}, &StageError{Stage: StageNormalize, Err: err}
	}
	s := Sanitize(n)
	e, unseen := a.encoding.Encode(s)
	sc := a.scaling.Scale(e)
	vec, dropped, err := Assemble(sc, a.schema)
	if err != nil {
		return Transformed{}, &StageError{Stage: StageAssemble, Err: err}
	}
	return Transformed{Vector: vec, Unseen: unseen, Dropped: dropped}, nil
}

// TransformAll transforms records in order and stops at the first failure.
func (a *Artifact) TransformAll(records []Record) ([][]float64, error) {
	X := make([][]float64, len(records))
	for i, rec := range records {
		t, err := a.Transform(rec)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		X[i] = t.Vector
	}
	return X, nil
}

func (a *Artifact) Version() int { return a.version }

// Schema returns a copy of the feature schema.
func (a *Artifact) Schema() Schema {
	return Schema{Columns: append([]Column(nil), a.schema.Columns...)}
}

// DropColumns returns the identifier columns removed before transformation.
func (a *Artifact) DropColumns() []string { return append([]string(nil), a.drop...) }

// Categories returns the fitted categories of a categorical column in code order.
func (a *Artifact) Categories(column string) []string { return a.encoding.Categories(column) }

// Code looks up the code of value in a categorical column.
func (a *Artifact) Code(column, value string) (int, bool) { return a.encoding.Code(column, value) }

// Stats returns the fitted moments of a numeric column.
func (a *Artifact) Stats(column string) (ColumnStats, bool) { return a.scaling.Stats(column) }

type artifactJSON struct {
	FormatVersion int            `json:"format_version"`
	DropColumns   []string       `json:"drop_columns"`
	Schema        Schema         `json:"schema"`
	Encoding      *EncodingTable `json:"encoding"`
	Scaling       *Scaler        `json:"scaling"`
}

func (a *Artifact) MarshalJSON() ([]byte, error) {
	return json.Marshal(artifactJSON{
		FormatVersion: a.version,
		DropColumns:   a.drop,
		Schema:        a.schema,
		Encoding:      a.encoding,
		Scaling:       a.scaling,
	})
}

// UnmarshalJSON decodes a persisted artifact. Unsupported format versions fail with
// IncompatibleVersionError before anything else is interpreted.
func (a *Artifact) UnmarshalJSON(data []byte) error {
	var head struct {
		FormatVersion int `json:"format_version"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return fmt.Errorf("decode artifact header: %w", err)
	}
	if err := CheckFormatVersion(head.FormatVersion); err != nil {
		return err
	}

	raw := artifactJSON{Encoding: NewEncodingTable(), Scaling: NewScaler()}
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode artifact: %w", err)
	}
	if raw.Encoding == nil || raw.Scaling == nil {
		return &SchemaError{Reason: "artifact is missing encoding or scaling parameters"}
	}
	if raw.Schema.Len() == 0 {
		return &SchemaError{Reason: "artifact has an empty schema"}
	}
	for _, c := range raw.Schema.Columns {
		switch c.Kind {
		case Categorical:
			if _, ok := raw.Encoding.Code(c.Name, ""); !ok {
				return &SchemaMismatchError{Column: c.Name, Reason: "no encoding for categorical column"}
			}
		case Numeric:
			if _, ok := raw.Scaling.Stats(c.Name); !ok {
				return &SchemaMismatchError{Column: c.Name, Reason: "no scaling parameters for numeric column"}
			}
		default:
			return &SchemaMismatchError{Column: c.Name, Reason: "unknown column kind " + string(c.Kind)}
		}
	}

	*a = Artifact{
		version:    raw.FormatVersion,
		drop:       raw.DropColumns,
		schema:     raw.Schema,
		encoding:   raw.Encoding,
		scaling:    raw.Scaling,
		normalizer: NewNormalizer(raw.DropColumns),
	}
	return nil
}

// CheckFormatVersion fails with IncompatibleVersionError when v cannot be applied.
func CheckFormatVersion(v int) error {
	if v < MinFormatVersion || v > FormatVersion {
		return &IncompatibleVersionError{Got: v, Min: MinFormatVersion, Max: FormatVersion}
	}
	return nil
}
