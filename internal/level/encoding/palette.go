package encoding

import (
	"encoding/json"
	"fmt"
)

// IndexedRun is a run over palette indices. Its JSON form is [index,count].
type IndexedRun struct {
	Index int
	Count int
}

func (r IndexedRun) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]int{r.Index, r.Count})
}

func (r *IndexedRun) UnmarshalJSON(b []byte) error {
	var pair []int
	if err := json.Unmarshal(b, &pair); err != nil {
		return fmt.Errorf("indexed run: %w", err)
	}
	if len(pair) != 2 {
		return fmt.Errorf("indexed run: want [index,count], got %d elements", len(pair))
	}
	r.Index, r.Count = pair[0], pair[1]
	return nil
}

// BuildPalette assigns each distinct value the next index in first-occurrence order.
func BuildPalette[V comparable](seq []V) ([]V, map[V]int) {
	palette := make([]V, 0, 8)
	index := make(map[V]int)
	for _, v := range seq {
		if _, ok := index[v]; ok {
			continue
		}
		index[v] = len(palette)
		palette = append(palette, v)
	}
	return palette, index
}

// PaletteOf builds a palette directly from runs; equivalent to BuildPalette
// over the expanded sequence.
func PaletteOf[V comparable](runs []Run[V]) ([]V, map[V]int) {
	palette := make([]V, 0, 8)
	index := make(map[V]int)
	for _, r := range runs {
		if _, ok := index[r.Value]; ok {
			continue
		}
		index[r.Value] = len(palette)
		palette = append(palette, r.Value)
	}
	return palette, index
}

// RemapRuns replaces run values with their palette index.
func RemapRuns[V comparable](runs []Run[V], index map[V]int) ([]IndexedRun, error) {
	out := make([]IndexedRun, len(runs))
	for i, r := range runs {
		idx, ok := index[r.Value]
		if !ok {
			return nil, fmt.Errorf("encoding: run %d value %v missing from palette", i, r.Value)
		}
		out[i] = IndexedRun{Index: idx, Count: r.Count}
	}
	return out, nil
}

// OptimizePalette drops palette entries no run references and renumbers the
// runs to the compacted indices. Kept entries retain their relative order.
func OptimizePalette[V comparable](palette []V, runs []IndexedRun) ([]V, []IndexedRun, error) {
	used := make([]bool, len(palette))
	for i, r := range runs {
		if r.Index < 0 || r.Index >= len(palette) {
			return nil, nil, fmt.Errorf("%w: run %d references index %d, palette has %d entries", ErrUnknownIndex, i, r.Index, len(palette))
		}
		used[r.Index] = true
	}
	remap := make([]int, len(palette))
	compact := make([]V, 0, len(palette))
	for i, u := range used {
		if !u {
			continue
		}
		remap[i] = len(compact)
		compact = append(compact, palette[i])
	}
	out := make([]IndexedRun, len(runs))
	for i, r := range runs {
		out[i] = IndexedRun{Index: remap[r.Index], Count: r.Count}
	}
	return compact, out, nil
}

// ResolveRuns maps indexed runs back onto concrete palette values.
func ResolveRuns[V comparable](palette []V, runs []IndexedRun) ([]Run[V], error) {
	out := make([]Run[V], len(runs))
	for i, r := range runs {
		if r.Index < 0 || r.Index >= len(palette) {
			return nil, fmt.Errorf("%w: run %d references index %d, palette has %d entries", ErrUnknownIndex, i, r.Index, len(palette))
		}
		out[i] = Run[V]{Value: palette[r.Index], Count: r.Count}
	}
	return out, nil
}
