package grid

import (
	"crypto/sha256"
	"sort"
)

// Layer is the collaborator the codec reads on export and writes on import.
// Cell keys are packed as y*width+x.
type Layer interface {
	Type() string
	Size() (width, height int)
	Default() string
	// Cells returns the explicitly set cells. Callers must not modify the map.
	Cells() map[int]string
	// Replace installs a new sparse map; the layer takes ownership of it.
	Replace(cells map[int]string)
}

// LayerSet resolves import targets by layer type.
type LayerSet interface {
	Layer(layerType string) (Layer, bool)
}

func Key(x, y, width int) int { return y*width + x }

func Coords(key, width int) (x, y int) { return key % width, key / width }

// Grid is an in-memory Layer.
type Grid struct {
	kind          string
	width, height int
	def           string
	cells         map[int]string

	dirty bool
	hash  [32]byte
}

func New(kind string, width, height int, def string) *Grid {
	return &Grid{
		kind:   kind,
		width:  width,
		height: height,
		def:    def,
		cells:  map[int]string{},
		dirty:  true,
	}
}

func (g *Grid) Type() string           { return g.kind }
func (g *Grid) Size() (int, int)       { return g.width, g.height }
func (g *Grid) Default() string        { return g.def }
func (g *Grid) Cells() map[int]string  { return g.cells }
func (g *Grid) Len() int               { return len(g.cells) }
func (g *Grid) InBounds(x, y int) bool { return x >= 0 && y >= 0 && x < g.width && y < g.height }

func (g *Grid) Replace(cells map[int]string) {
	if cells == nil {
		cells = map[int]string{}
	}
	g.cells = cells
	g.dirty = true
}

// Digest hashes the non-default cells in key order. Grids with the same
// visible content digest equally even if one stores explicit defaults.
func (g *Grid) Digest() [32]byte {
	if g.dirty || g.hash == ([32]byte{}) {
		h := sha256.New()
		keys := make([]int, 0, len(g.cells))
		for k, v := range g.cells {
			if v != g.def {
				keys = append(keys, k)
			}
		}
		sort.Ints(keys)
		h.Write([]byte(g.kind))
		h.Write([]byte{0})
		h.Write([]byte(g.def))
		h.Write([]byte{0})
		var tmp [8]byte
		putUint64(tmp[:], uint64(g.width)<<32|uint64(g.height))
		h.Write(tmp[:])
		for _, k := range keys {
			putUint64(tmp[:], uint64(k))
			h.Write(tmp[:])
			h.Write([]byte(g.cells[k]))
			h.Write([]byte{0})
		}
		copy(g.hash[:], h.Sum(nil))
		g.dirty = false
	}
	return g.hash
}

func putUint64(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
}
