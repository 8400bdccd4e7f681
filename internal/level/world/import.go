package world

import (
	"errors"
	"fmt"

	"biomelevel.ai/internal/level/blocks"
	"biomelevel.ai/internal/level/encoding"
	"biomelevel.ai/internal/level/grid"
)

type LayerReport struct {
	LayerType string
	Shape     blocks.Shape
	Width     int
	Height    int
	Runs      int
	Cells     int // non-default cells installed
}

type Report struct {
	Layers  []LayerReport
	Skipped []string // layer types with no target layer
}

// Import decodes every block and installs the result into target. Nothing is
// installed unless every block decodes to exactly width*height cells that
// match its target layer's size.
func Import(c *Container, target grid.LayerSet) (Report, error) {
	type staged struct {
		layer grid.Layer
		cells map[int]string
	}
	var (
		rep   Report
		stage []staged
		seen  = map[string]bool{}
	)
	for i, b := range c.Layers {
		l, ok := target.Layer(b.Type())
		if !ok {
			rep.Skipped = append(rep.Skipped, b.Type())
			continue
		}
		if seen[b.Type()] {
			return Report{}, fmt.Errorf("world: layers[%d]: duplicate layer type %q", i, b.Type())
		}
		seen[b.Type()] = true

		cells, lr, err := decodeInto(b, c.Metadata.WorldSize, l)
		if err != nil {
			return Report{}, fmt.Errorf("world: layers[%d] (%q): %w", i, b.Type(), err)
		}
		rep.Layers = append(rep.Layers, lr)
		stage = append(stage, staged{layer: l, cells: cells})
	}
	for _, s := range stage {
		s.layer.Replace(s.cells)
	}
	return rep, nil
}

func decodeInto(b blocks.Block, worldSize int, l grid.Layer) (map[int]string, LayerReport, error) {
	dense, dims, runs, err := decodeDense(b, worldSize)
	if err != nil {
		return nil, LayerReport{}, err
	}
	lw, lh := l.Size()
	if lw != dims.Width || lh != dims.Height {
		return nil, LayerReport{}, fmt.Errorf("block is %dx%d, target layer is %dx%d: %w",
			dims.Width, dims.Height, lw, lh,
			&encoding.ShapeMismatchError{LayerType: b.Type(), Want: lw * lh, Got: len(dense)})
	}
	cells := encoding.Sparsify(dense, l.Default())
	return cells, LayerReport{
		LayerType: b.Type(),
		Shape:     b.Kind(),
		Width:     dims.Width,
		Height:    dims.Height,
		Runs:      runs,
		Cells:     len(cells),
	}, nil
}

// decodeDense resolves a block to its dense row-major cells. Blocks without
// declared dimensions use a worldSize x worldSize grid.
func decodeDense(b blocks.Block, worldSize int) ([]string, blocks.Dims, int, error) {
	runs, dims, err := b.Runs()
	if err != nil {
		return nil, blocks.Dims{}, 0, err
	}
	dims, want, err := resolveDims(dims, worldSize)
	if err != nil {
		return nil, blocks.Dims{}, 0, err
	}
	dense, err := encoding.Expand(runs, want)
	if err != nil {
		var sm *encoding.ShapeMismatchError
		if errors.As(err, &sm) {
			sm.LayerType = b.Type()
		}
		return nil, blocks.Dims{}, 0, err
	}
	return dense, dims, len(runs), nil
}

func resolveDims(dims blocks.Dims, worldSize int) (blocks.Dims, int, error) {
	if !dims.Declared() {
		if worldSize <= 0 {
			return blocks.Dims{}, 0, fmt.Errorf("block declares no size and metadata.world_size is %d", worldSize)
		}
		dims = blocks.Dims{Width: worldSize, Height: worldSize}
	}
	n, err := encoding.CellCount(dims.Width, dims.Height)
	if err != nil {
		return blocks.Dims{}, 0, err
	}
	return dims, n, nil
}
