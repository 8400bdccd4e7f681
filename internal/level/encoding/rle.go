package encoding

// Run is a maximal span of identical values in row-major scan order.
type Run[V comparable] struct {
	Value V
	Count int
}

// Compress converts a dense sequence into maximal runs.
// Adjacent runs never share a value and the counts sum to len(seq).
func Compress[V comparable](seq []V) ([]Run[V], error) {
	if len(seq) == 0 {
		return nil, ErrEmptySequence
	}
	runs := make([]Run[V], 0, 16)
	cur := Run[V]{Value: seq[0], Count: 1}
	for _, v := range seq[1:] {
		if v == cur.Value {
			cur.Count++
			continue
		}
		runs = append(runs, cur)
		cur = Run[V]{Value: v, Count: 1}
	}
	return append(runs, cur), nil
}

// TotalCount sums run counts. Each count must lie in [0, MaxRunLength].
func TotalCount[V comparable](runs []Run[V]) (int, error) {
	total := 0
	for _, r := range runs {
		if r.Count < 0 || r.Count > MaxRunLength {
			return 0, &RangeError{Index: -1, Count: r.Count, Reason: "run count out of range"}
		}
		total += r.Count
	}
	return total, nil
}

// Expand rebuilds the dense sequence. The run total is checked against want
// before anything is allocated.
func Expand[V comparable](runs []Run[V], want int) ([]V, error) {
	got, err := TotalCount(runs)
	if err != nil {
		return nil, err
	}
	if got != want {
		return nil, &ShapeMismatchError{Want: want, Got: got}
	}
	out := make([]V, 0, want)
	for _, r := range runs {
		for k := 0; k < r.Count; k++ {
			out = append(out, r.Value)
		}
	}
	return out, nil
}
