package encoding

import "testing"

func TestLinearize(t *testing.T) {
	cells := map[int]string{
		0:       "x",
		1*4 + 3: "y", // (3,1)
		2*4 + 0: "z", // (0,2)
		2*4 + 3: "w", // (3,2)
	}
	got, err := Linearize(cells, 4, 3, ".")
	if err != nil {
		t.Fatalf("Linearize: %v", err)
	}
	want := []string{
		"x", ".", ".", ".",
		".", ".", ".", "y",
		"z", ".", ".", "w",
	}
	if len(got) != len(want) {
		t.Fatalf("len=%d want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("cell %d: got %q want %q", i, got[i], want[i])
		}
	}

	back := Sparsify(got, ".")
	if len(back) != len(cells) {
		t.Fatalf("Sparsify len=%d want %d", len(back), len(cells))
	}
	for k, v := range cells {
		if back[k] != v {
			t.Fatalf("Sparsify key %d: got %q want %q", k, back[k], v)
		}
	}
}

func TestLinearize_Rejects(t *testing.T) {
	cases := []struct {
		name  string
		cells map[int]int
		w, h  int
	}{
		{"zero width", nil, 0, 4},
		{"negative height", nil, 4, -1},
		{"too large", nil, 1 << 13, 1 << 13},
		{"key past end", map[int]int{16: 1}, 4, 4},
		{"negative key", map[int]int{-1: 1}, 4, 4},
	}
	for _, tc := range cases {
		if _, err := Linearize(tc.cells, tc.w, tc.h, 0); err == nil {
			t.Fatalf("%s: expected error", tc.name)
		}
	}
}

func TestSparsify_DefaultOnlyIsEmpty(t *testing.T) {
	if got := Sparsify([]int{7, 7, 7}, 7); len(got) != 0 {
		t.Fatalf("expected empty map, got %v", got)
	}
}
