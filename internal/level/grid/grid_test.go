package grid

import "testing"

func TestGrid_SetGetKeepsSparse(t *testing.T) {
	g := New("terrain", 8, 4, "#000000")
	g.Set(3, 2, "#ff0000")
	g.Set(7, 3, "#00ff00")
	g.Set(9, 0, "#0000ff") // out of bounds

	if got := g.Get(3, 2); got != "#ff0000" {
		t.Fatalf("Get(3,2)=%q", got)
	}
	if got := g.Get(0, 0); got != "#000000" {
		t.Fatalf("Get(0,0)=%q, want default", got)
	}
	if g.Len() != 2 {
		t.Fatalf("Len=%d want 2", g.Len())
	}
	if v, ok := g.Cells()[Key(7, 3, 8)]; !ok || v != "#00ff00" {
		t.Fatalf("packed key lookup failed: %q %v", v, ok)
	}

	g.Set(3, 2, "#000000")
	if g.Len() != 1 {
		t.Fatalf("writing default should clear the cell, Len=%d", g.Len())
	}

	x, y := Coords(Key(7, 3, 8), 8)
	if x != 7 || y != 3 {
		t.Fatalf("Coords=(%d,%d)", x, y)
	}
}

func TestGrid_DigestTracksContent(t *testing.T) {
	a := New("terrain", 16, 16, "ocean")
	b := New("terrain", 16, 16, "ocean")
	a.FillRect(2, 2, 6, 5, "desert")
	b.FillRect(2, 2, 6, 5, "desert")
	if a.Digest() != b.Digest() {
		t.Fatalf("equal grids digest differently")
	}
	b.Set(0, 0, "grassland")
	if a.Digest() == b.Digest() {
		t.Fatalf("digest did not change after Set")
	}

	// Explicit defaults in the map do not change the digest.
	c := New("terrain", 16, 16, "ocean")
	c.FillRect(2, 2, 6, 5, "desert")
	cells := map[int]string{}
	for k, v := range c.Cells() {
		cells[k] = v
	}
	cells[Key(9, 9, 16)] = "ocean"
	c.Replace(cells)
	if a.Digest() != c.Digest() {
		t.Fatalf("stored default changed the digest")
	}
}

func TestStack_OrderAndReplace(t *testing.T) {
	s := NewStack(New("terrain", 4, 4, "a"), New("structures", 4, 4, ""))
	s.Add(New("hazard", 4, 4, "none"))
	s.Add(New("terrain", 4, 4, "b"))

	ls := s.Layers()
	if len(ls) != 3 {
		t.Fatalf("layers=%d want 3", len(ls))
	}
	if ls[0].Type() != "terrain" || ls[0].Default() != "b" {
		t.Fatalf("terrain not replaced in place: %s %s", ls[0].Type(), ls[0].Default())
	}
	if _, ok := s.Layer("hazard"); !ok {
		t.Fatalf("hazard missing")
	}
	if _, ok := s.Layer("height"); ok {
		t.Fatalf("unexpected height layer")
	}
}
