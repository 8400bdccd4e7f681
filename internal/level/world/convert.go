package world

import (
	"fmt"

	"biomelevel.ai/internal/level/blocks"
	"biomelevel.ai/internal/level/encoding"
)

type LayerStats struct {
	LayerType   string       `json:"layer_type"`
	Shape       blocks.Shape `json:"-"`
	ShapeName   string       `json:"shape"`
	Width       int          `json:"width"`
	Height      int          `json:"height"`
	PaletteSize int          `json:"palette_size"`
	Runs        int          `json:"runs"`
	PayloadLen  int          `json:"payload_len,omitempty"` // base64 length for shape A
}

// Stats decodes every layer and validates its cell total without installing it.
func Stats(c *Container) ([]LayerStats, error) {
	out := make([]LayerStats, 0, len(c.Layers))
	for i, b := range c.Layers {
		runs, dims, err := b.Runs()
		if err != nil {
			return nil, fmt.Errorf("world: layers[%d] (%q): %w", i, b.Type(), err)
		}
		dims, want, err := resolveDims(dims, c.Metadata.WorldSize)
		if err != nil {
			return nil, fmt.Errorf("world: layers[%d] (%q): %w", i, b.Type(), err)
		}
		got, err := encoding.TotalCount(runs)
		if err != nil {
			return nil, fmt.Errorf("world: layers[%d] (%q): %w", i, b.Type(), err)
		}
		if got != want {
			return nil, fmt.Errorf("world: layers[%d]: %w", i, &encoding.ShapeMismatchError{LayerType: b.Type(), Want: want, Got: got})
		}
		palette, _ := encoding.PaletteOf(runs)
		st := LayerStats{
			LayerType:   b.Type(),
			Shape:       b.Kind(),
			ShapeName:   b.Kind().String(),
			Width:       dims.Width,
			Height:      dims.Height,
			PaletteSize: len(palette),
			Runs:        len(runs),
		}
		if a, ok := b.(*blocks.Base64Block); ok {
			st.PayloadLen = len(a.DataB64)
		}
		out = append(out, st)
	}
	return out, nil
}

// Convert rewrites every block into shape. Shape zero picks the newest shape
// each layer can take (A, or B when its palette does not fit a tag byte).
// Blocks without declared dimensions get world_size dimensions.
func Convert(c *Container, shape blocks.Shape) (*Container, error) {
	out := &Container{Metadata: c.Metadata, Layers: make([]blocks.Block, 0, len(c.Layers))}
	for i, b := range c.Layers {
		runs, dims, err := b.Runs()
		if err != nil {
			return nil, fmt.Errorf("world: layers[%d] (%q): %w", i, b.Type(), err)
		}
		dims, want, err := resolveDims(dims, c.Metadata.WorldSize)
		if err != nil {
			return nil, fmt.Errorf("world: layers[%d] (%q): %w", i, b.Type(), err)
		}
		got, err := encoding.TotalCount(runs)
		if err != nil {
			return nil, fmt.Errorf("world: layers[%d] (%q): %w", i, b.Type(), err)
		}
		if got != want {
			return nil, fmt.Errorf("world: layers[%d]: %w", i, &encoding.ShapeMismatchError{LayerType: b.Type(), Want: want, Got: got})
		}
		runs = mergeRuns(runs)

		target := shape
		if target == 0 {
			palette, _ := encoding.PaletteOf(runs)
			if target, err = pickShape(len(palette), false); err != nil {
				return nil, err
			}
		}
		nb, err := blocks.FromRuns(target, b.Type(), runs, dims.Width, dims.Height)
		if err != nil {
			return nil, fmt.Errorf("world: layers[%d] (%q): %w", i, b.Type(), err)
		}
		out.Layers = append(out.Layers, nb)
	}
	switch shape {
	case 0, blocks.ShapeBase64:
		out.Metadata.FormatVersion = FormatVersion
	case blocks.ShapeIndexed:
		out.Metadata.FormatVersion = 2
	case blocks.ShapeLiteral:
		out.Metadata.FormatVersion = 1
	}
	return out, nil
}

// mergeRuns drops empty runs and joins neighbours holding the same value.
// Legacy exporters did not always emit maximal runs.
func mergeRuns(runs []encoding.Run[string]) []encoding.Run[string] {
	out := make([]encoding.Run[string], 0, len(runs))
	for _, r := range runs {
		if r.Count == 0 {
			continue
		}
		if n := len(out); n > 0 && out[n-1].Value == r.Value {
			out[n-1].Count += r.Count
			continue
		}
		out = append(out, r)
	}
	return out
}
