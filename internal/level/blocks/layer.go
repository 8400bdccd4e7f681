package blocks

import (
	"fmt"

	"biomelevel.ai/internal/level/encoding"
)

// UnsupportedEncodingError reports a shape-A block whose encoding tag this
// build does not understand.
type UnsupportedEncodingError struct {
	LayerType string
	Encoding  string
}

func (e *UnsupportedEncodingError) Error() string {
	return fmt.Sprintf("blocks: layer %q: unsupported encoding %q", e.LayerType, e.Encoding)
}

// Decoded is the content of a shape-A block after base64 and tag-byte decoding.
type Decoded struct {
	LayerType string
	Palette   []string
	Runs      []encoding.IndexedRun
	Width     int
	Height    int
}

// EncodeLayer packs indexed runs into a shape-A block.
func EncodeLayer(runs []encoding.IndexedRun, palette []string, layerType string, width, height int) (*Base64Block, error) {
	for i, r := range runs {
		if r.Index < 0 || r.Index >= len(palette) {
			return nil, fmt.Errorf("blocks: layer %q: %w: run %d references index %d, palette has %d entries", layerType, encoding.ErrUnknownIndex, i, r.Index, len(palette))
		}
	}
	raw, err := encoding.EncodeRuns(runs)
	if err != nil {
		return nil, fmt.Errorf("blocks: layer %q: %w", layerType, err)
	}
	pal := make([]string, len(palette))
	copy(pal, palette)
	return &Base64Block{
		LayerType: layerType,
		Palette:   pal,
		Encoding:  EncodingRLEBase64V1,
		Width:     width,
		Height:    height,
		DataB64:   encoding.ToBase64(raw),
	}, nil
}

// DecodeLayer unframes and decodes a shape-A block.
func DecodeLayer(b *Base64Block) (Decoded, error) {
	if b.Encoding != EncodingRLEBase64V1 {
		return Decoded{}, &UnsupportedEncodingError{LayerType: b.LayerType, Encoding: b.Encoding}
	}
	raw, err := encoding.FromBase64(b.DataB64)
	if err != nil {
		return Decoded{}, fmt.Errorf("blocks: layer %q: %w", b.LayerType, err)
	}
	runs, err := encoding.DecodeRuns(raw)
	if err != nil {
		return Decoded{}, fmt.Errorf("blocks: layer %q: %w", b.LayerType, err)
	}
	return Decoded{
		LayerType: b.LayerType,
		Palette:   b.Palette,
		Runs:      runs,
		Width:     b.Width,
		Height:    b.Height,
	}, nil
}

// FromRuns builds a block of the requested shape from concrete runs. The
// palette is built in first-occurrence order and trimmed to referenced entries.
func FromRuns(shape Shape, layerType string, runs []encoding.Run[string], width, height int) (Block, error) {
	switch shape {
	case ShapeLiteral:
		data := make([]LiteralRun, len(runs))
		for i, r := range runs {
			data[i] = LiteralRun{Color: r.Value, Count: r.Count}
		}
		return &LiteralBlock{LayerType: layerType, ColorData: data}, nil
	case ShapeBase64, ShapeIndexed:
	default:
		return nil, fmt.Errorf("blocks: unknown shape %v", shape)
	}

	palette, index := encoding.PaletteOf(runs)
	indexed, err := encoding.RemapRuns(runs, index)
	if err != nil {
		return nil, fmt.Errorf("blocks: layer %q: %w", layerType, err)
	}
	palette, indexed, err = encoding.OptimizePalette(palette, indexed)
	if err != nil {
		return nil, fmt.Errorf("blocks: layer %q: %w", layerType, err)
	}
	if shape == ShapeBase64 {
		return EncodeLayer(indexed, palette, layerType, width, height)
	}
	return &IndexedBlock{
		LayerType: layerType,
		Palette:   palette,
		ColorData: indexed,
		Width:     width,
		Height:    height,
	}, nil
}
