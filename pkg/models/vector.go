package models

// Vector is an embedding. A nil Vector means "absent" and encodes as JSON null.
type Vector []float64

// Present reports whether the vector carries any components.
func (v Vector) Present() bool { return len(v) > 0 }

// Clone returns an independent copy of v, preserving nil.
func (v Vector) Clone() Vector {
	if v == nil {
		return nil
	}
	return append(Vector{}, v...)
}

// Mean returns the element-wise mean of the present vectors. Vectors whose
// dimension differs from the first present vector are skipped. The result is
// an empty, non-nil Vector when nothing contributes.
func Mean(vectors ...Vector) Vector {
	var (
		sum Vector
		n   int
	)
	for _, v := range vectors {
		if !v.Present() {
			continue
		}
		if sum == nil {
			sum = make(Vector, len(v))
		}
		if len(v) != len(sum) {
			continue
		}
		for i, x := range v {
			sum[i] += x
		}
		n++
	}
	if n == 0 {
		return Vector{}
	}
	for i := range sum {
		sum[i] /= float64(n)
	}
	return sum
}
