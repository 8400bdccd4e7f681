package encoding

import "fmt"

// MaxCells bounds width*height of a single layer. Editors stop at 1024x1024;
// the headroom lets tools handle oversized imports without trusting the input.
const MaxCells = 1 << 24

// CellCount validates a grid size and returns width*height.
func CellCount(width, height int) (int, error) {
	if width <= 0 || height <= 0 {
		return 0, fmt.Errorf("encoding: invalid grid size %dx%d", width, height)
	}
	if width > MaxCells/height {
		return 0, fmt.Errorf("encoding: grid %dx%d exceeds %d cells", width, height, MaxCells)
	}
	return width * height, nil
}

// Linearize flattens a sparse packed-key map (key = y*width+x) into a dense
// row-major slice. Unset cells take def.
func Linearize[V comparable](cells map[int]V, width, height int, def V) ([]V, error) {
	n, err := CellCount(width, height)
	if err != nil {
		return nil, err
	}
	out := make([]V, n)
	for i := range out {
		out[i] = def
	}
	for k, v := range cells {
		if k < 0 || k >= n {
			return nil, fmt.Errorf("encoding: cell key %d outside %dx%d grid", k, width, height)
		}
		out[k] = v
	}
	return out, nil
}

// Sparsify is the inverse of Linearize: cells equal to def are omitted.
func Sparsify[V comparable](dense []V, def V) map[int]V {
	out := make(map[int]V)
	for i, v := range dense {
		if v != def {
			out[i] = v
		}
	}
	return out
}
