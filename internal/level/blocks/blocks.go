// Package blocks implements the per-layer wire shapes of a world container.
//
// Three shapes coexist for backward compatibility:
//
//	A  {layer_type, palette, encoding, width, height, data_b64}   tag-byte runs, base64 framed
//	B  {layer_type, palette, color_data: [[index,count],...]}    indexed runs as JSON arrays
//	C  {layer_type, color_data: [{color,count},...]}             literal runs, no palette
//
// Every shape resolves to the same ordered run list over concrete cell values.
package blocks

import (
	"fmt"

	"biomelevel.ai/internal/level/encoding"
)

// EncodingRLEBase64V1 is the only encoding tag shape A currently carries.
const EncodingRLEBase64V1 = "rle-base64-v1"

type Shape int

const (
	ShapeBase64 Shape = iota + 1
	ShapeIndexed
	ShapeLiteral
)

func (s Shape) String() string {
	switch s {
	case ShapeBase64:
		return "rle-base64"
	case ShapeIndexed:
		return "indexed"
	case ShapeLiteral:
		return "literal"
	default:
		return fmt.Sprintf("shape(%d)", int(s))
	}
}

// Dims are the grid dimensions a block declares. Zero means "not declared"
// (shapes B and C predate per-layer dimensions).
type Dims struct {
	Width  int
	Height int
}

func (d Dims) Declared() bool { return d.Width > 0 && d.Height > 0 }

// Block is one serialized layer. The set of implementations is closed.
type Block interface {
	Kind() Shape
	Type() string
	// Runs resolves the block to concrete runs and its declared dimensions.
	Runs() ([]encoding.Run[string], Dims, error)

	isBlock()
}

type Base64Block struct {
	LayerType string   `json:"layer_type"`
	Palette   []string `json:"palette"`
	Encoding  string   `json:"encoding"`
	Width     int      `json:"width"`
	Height    int      `json:"height"`
	DataB64   string   `json:"data_b64"`
}

type IndexedBlock struct {
	LayerType string                `json:"layer_type"`
	Palette   []string              `json:"palette"`
	ColorData []encoding.IndexedRun `json:"color_data"`
	Width     int                   `json:"width,omitempty"`
	Height    int                   `json:"height,omitempty"`
}

type LiteralRun struct {
	Color string `json:"color"`
	Count int    `json:"count"`
}

type LiteralBlock struct {
	LayerType string       `json:"layer_type"`
	ColorData []LiteralRun `json:"color_data"`
}

func (*Base64Block) isBlock()  {}
func (*IndexedBlock) isBlock() {}
func (*LiteralBlock) isBlock() {}

func (*Base64Block) Kind() Shape  { return ShapeBase64 }
func (*IndexedBlock) Kind() Shape { return ShapeIndexed }
func (*LiteralBlock) Kind() Shape { return ShapeLiteral }

func (b *Base64Block) Type() string  { return b.LayerType }
func (b *IndexedBlock) Type() string { return b.LayerType }
func (b *LiteralBlock) Type() string { return b.LayerType }

func (b *Base64Block) Runs() ([]encoding.Run[string], Dims, error) {
	d, err := DecodeLayer(b)
	if err != nil {
		return nil, Dims{}, err
	}
	runs, err := encoding.ResolveRuns(d.Palette, d.Runs)
	if err != nil {
		return nil, Dims{}, fmt.Errorf("layer %q: %w", b.LayerType, err)
	}
	return runs, Dims{Width: d.Width, Height: d.Height}, nil
}

func (b *IndexedBlock) Runs() ([]encoding.Run[string], Dims, error) {
	runs, err := encoding.ResolveRuns(b.Palette, b.ColorData)
	if err != nil {
		return nil, Dims{}, fmt.Errorf("layer %q: %w", b.LayerType, err)
	}
	return runs, Dims{Width: b.Width, Height: b.Height}, nil
}

func (b *LiteralBlock) Runs() ([]encoding.Run[string], Dims, error) {
	runs := make([]encoding.Run[string], len(b.ColorData))
	for i, r := range b.ColorData {
		runs[i] = encoding.Run[string]{Value: r.Color, Count: r.Count}
	}
	return runs, Dims{}, nil
}
