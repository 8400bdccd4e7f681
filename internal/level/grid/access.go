package grid

func (g *Grid) Get(x, y int) string {
	if !g.InBounds(x, y) {
		return g.def
	}
	if v, ok := g.cells[Key(x, y, g.width)]; ok {
		return v
	}
	return g.def
}

// Set writes one cell. Writing the default value clears the cell, so the
// sparse map only ever holds non-default values. Out-of-bounds writes are ignored.
func (g *Grid) Set(x, y int, v string) {
	if !g.InBounds(x, y) {
		return
	}
	k := Key(x, y, g.width)
	if v == g.def {
		if _, ok := g.cells[k]; ok {
			delete(g.cells, k)
			g.dirty = true
		}
		return
	}
	if cur, ok := g.cells[k]; ok && cur == v {
		return
	}
	g.cells[k] = v
	g.dirty = true
}

// FillRect sets every cell of the rectangle [x0,x1)x[y0,y1), clipped to the grid.
func (g *Grid) FillRect(x0, y0, x1, y1 int, v string) {
	for y := max(y0, 0); y < min(y1, g.height); y++ {
		for x := max(x0, 0); x < min(x1, g.width); x++ {
			g.Set(x, y, v)
		}
	}
}

// Stack is an ordered collection of layers, addressable by type.
type Stack struct {
	order  []Layer
	byType map[string]Layer
}

func NewStack(layers ...Layer) *Stack {
	s := &Stack{byType: map[string]Layer{}}
	for _, l := range layers {
		s.Add(l)
	}
	return s
}

// Add appends l, replacing any existing layer of the same type in place.
func (s *Stack) Add(l Layer) {
	if _, ok := s.byType[l.Type()]; ok {
		for i, cur := range s.order {
			if cur.Type() == l.Type() {
				s.order[i] = l
			}
		}
	} else {
		s.order = append(s.order, l)
	}
	s.byType[l.Type()] = l
}

func (s *Stack) Layer(layerType string) (Layer, bool) {
	l, ok := s.byType[layerType]
	return l, ok
}

func (s *Stack) Layers() []Layer {
	out := make([]Layer, len(s.order))
	copy(out, s.order)
	return out
}
