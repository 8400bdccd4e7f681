package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"testing"

	"biomelevel.ai/internal/level/blocks"
	"biomelevel.ai/internal/level/encoding"
)

func TestIsKnownCode(t *testing.T) {
	cases := []string{
		"",
		ErrBadRequest,
		ErrNotFound,
		ErrBadEncoding,
		ErrTruncated,
		ErrUnsupportedEncoding,
		ErrShapeMismatch,
		ErrInternal,
	}
	for _, c := range cases {
		if !IsKnownCode(c) {
			t.Fatalf("expected known code: %q", c)
		}
	}
	if IsKnownCode("E_NOT_DEFINED") {
		t.Fatalf("expected unknown code rejected")
	}
}

func TestCodeFor(t *testing.T) {
	_, b64Err := encoding.FromBase64("!!!")
	_, truncErr := encoding.DecodeRuns([]byte{0x1F})
	_, unsupErr := blocks.DecodeLayer(&blocks.Base64Block{LayerType: "t", Palette: []string{"a"}, Encoding: "rle-base64-v9", DataB64: "AQ=="})
	var syntax error = json.Unmarshal([]byte(`{`), new(any))
	_, notFound := os.Open("/definitely/not/here.level.zst")

	cases := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"range", fmt.Errorf("wrap: %w", &encoding.RangeError{Index: 8, Reason: "index"}), ErrBadEncoding},
		{"empty", encoding.ErrEmptySequence, ErrBadEncoding},
		{"base64", b64Err, ErrBadEncoding},
		{"truncated", truncErr, ErrTruncated},
		{"unsupported", unsupErr, ErrUnsupportedEncoding},
		{"shape", fmt.Errorf("w: %w", &encoding.ShapeMismatchError{LayerType: "t", Want: 4, Got: 3}), ErrShapeMismatch},
		{"not found", notFound, ErrNotFound},
		{"syntax", syntax, ErrBadRequest},
		{"other", errors.New("boom"), ErrInternal},
	}
	for _, tc := range cases {
		if got := CodeFor(tc.err, ErrInternal); got != tc.want {
			t.Fatalf("%s: CodeFor(%v)=%q want %q", tc.name, tc.err, got, tc.want)
		}
		if !IsKnownCode(CodeFor(tc.err, ErrInternal)) {
			t.Fatalf("%s: unknown code", tc.name)
		}
	}
}
