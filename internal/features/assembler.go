package features

// ColumnKind tells the pipeline which transform a schema column receives.
type ColumnKind string

const (
	Numeric     ColumnKind = "numeric"
	Categorical ColumnKind = "categorical"
)

// Column is one entry of the feature schema.
type Column struct {
	Name string     `json:"name"`
	Kind ColumnKind `json:"kind"`
}

// Schema is the ordered list of columns the classifier expects. Position i of every assembled
// vector is Columns[i].
type Schema struct {
	Columns []Column `json:"columns"`
}

func (s Schema) Len() int { return len(s.Columns) }

// Names returns column names in vector order.
func (s Schema) Names() []string {
	names := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		names[i] = c.Name
	}
	return names
}

// Select returns the names of columns of the given kind, in schema order.
func (s Schema) Select(kind ColumnKind) []string {
	var names []string
	for _, c := range s.Columns {
		if c.Kind == kind {
			names = append(names, c.Name)
		}
	}
	return names
}

// Assemble lays rec out as a vector in schema order. A schema column absent from rec, or one
// that still holds a non-numeric value, fails with SchemaMismatchError. Columns the schema does
// not name are dropped and reported back to the caller.
func Assemble(rec Record, schema Schema) ([]float64, []string, error) {
	index := make(map[string]int, len(rec))
	for i, f := range rec {
		index[f.Name] = i
	}

	vec := make([]float64, len(schema.Columns))
	for i, c := range schema.Columns {
		j, ok := index[c.Name]
		if !ok {
			return nil, nil, &SchemaMismatchError{Column: c.Name, Reason: "required column missing"}
		}
		v := rec[j].Value
		if v.Kind != Number {
			return nil, nil, &SchemaMismatchError{Column: c.Name, Reason: "expected numeric value, got " + v.Kind.String()}
		}
		vec[i] = v.Num
		delete(index, c.Name)
	}

	var dropped []string
	if len(index) > 0 {
		for _, f := range rec {
			if _, extra := index[f.Name]; extra {
				dropped = append(dropped, f.Name)
			}
		}
	}
	return vec, dropped, nil
}
