package world

import (
	"fmt"
	"sync"

	"biomelevel.ai/internal/level/blocks"
	"biomelevel.ai/internal/level/encoding"
	"biomelevel.ai/internal/level/grid"
)

type ExportOptions struct {
	// Shape forces every layer into one shape. Zero picks shape A, falling back
	// to shape B for layers whose palette does not fit the tag byte.
	Shape blocks.Shape
	// Strict turns the shape-B fallback into a RangeError.
	Strict bool
	// Parallelism bounds how many layers encode at once; <= 1 is sequential.
	Parallelism int
}

// Export runs every layer through linearize, compress, palette and block
// encoding. Output order follows layers regardless of Parallelism.
func Export(meta Metadata, layers []grid.Layer, opts ExportOptions) (*Container, error) {
	if meta.FormatVersion == 0 {
		meta.FormatVersion = FormatVersion
	}
	out := make([]blocks.Block, len(layers))
	errs := make([]error, len(layers))

	if opts.Parallelism <= 1 {
		for i, l := range layers {
			out[i], errs[i] = ExportLayer(l, opts)
		}
	} else {
		var wg sync.WaitGroup
		sem := make(chan struct{}, opts.Parallelism)
		for i, l := range layers {
			wg.Add(1)
			sem <- struct{}{}
			go func(i int, l grid.Layer) {
				defer wg.Done()
				defer func() { <-sem }()
				out[i], errs[i] = ExportLayer(l, opts)
			}(i, l)
		}
		wg.Wait()
	}

	for i, err := range errs {
		if err != nil {
			return nil, fmt.Errorf("world: export layer %d (%q): %w", i, layers[i].Type(), err)
		}
	}
	return &Container{Metadata: meta, Layers: out}, nil
}

// ExportLayer encodes a single layer.
func ExportLayer(l grid.Layer, opts ExportOptions) (blocks.Block, error) {
	w, h := l.Size()
	dense, err := encoding.Linearize(l.Cells(), w, h, l.Default())
	if err != nil {
		return nil, err
	}
	runs, err := encoding.Compress(dense)
	if err != nil {
		return nil, err
	}
	palette, index := encoding.BuildPalette(dense)
	indexed, err := encoding.RemapRuns(runs, index)
	if err != nil {
		return nil, err
	}
	palette, indexed, err = encoding.OptimizePalette(palette, indexed)
	if err != nil {
		return nil, err
	}

	shape := opts.Shape
	if shape == 0 {
		shape, err = pickShape(len(palette), opts.Strict)
		if err != nil {
			return nil, err
		}
	}
	switch shape {
	case blocks.ShapeBase64:
		return blocks.EncodeLayer(indexed, palette, l.Type(), w, h)
	case blocks.ShapeIndexed:
		return &blocks.IndexedBlock{LayerType: l.Type(), Palette: palette, ColorData: indexed, Width: w, Height: h}, nil
	default:
		return blocks.FromRuns(shape, l.Type(), runs, w, h)
	}
}

func pickShape(paletteSize int, strict bool) (blocks.Shape, error) {
	if paletteSize <= encoding.MaxPaletteSize {
		return blocks.ShapeBase64, nil
	}
	if strict {
		return 0, &encoding.RangeError{
			Index:  paletteSize - 1,
			Count:  -1,
			Reason: fmt.Sprintf("palette of %d values exceeds the %d a tag byte can address", paletteSize, encoding.MaxPaletteSize),
		}
	}
	return blocks.ShapeIndexed, nil
}
