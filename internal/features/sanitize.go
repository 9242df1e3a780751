package features

import "math"

// Neutral replaces missing and infinite values.
const Neutral = 0.0

// Sanitize fills missing values and neutralizes infinities. It looks at one record only, so
// rows can be sanitized independently and in any order.
func Sanitize(rec Record) Record {
	out := rec.clone()
	for i, f := range out {
		switch f.Value.Kind {
		case Missing:
			out[i].Value = Num(Neutral)
		case Number:
			if math.IsInf(f.Value.Num, 0) || math.IsNaN(f.Value.Num) {
				out[i].Value = Num(Neutral)
			}
		}
	}
	return out
}
