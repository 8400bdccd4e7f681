package encoding

import (
	"errors"
	"fmt"
)

// ErrEmptySequence is returned when a grid with no cells is compressed.
var ErrEmptySequence = errors.New("encoding: empty sequence")

// ErrUnknownIndex is returned when a run references an index the palette does not have.
var ErrUnknownIndex = errors.New("encoding: palette index out of range")

// RangeError reports a run that cannot be represented in the tag-byte layout:
// a palette index outside the 3-bit tag field, or a count outside [0, MaxRunLength].
type RangeError struct {
	Index  int
	Count  int
	Reason string
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("encoding: run (index=%d count=%d) not representable: %s", e.Index, e.Count, e.Reason)
}

// TruncatedDataError reports a ULEB128 continuation that runs past the end of the buffer.
type TruncatedDataError struct {
	Offset int // offset of the first continuation byte
	Len    int // buffer length
}

func (e *TruncatedDataError) Error() string {
	return fmt.Sprintf("encoding: truncated run length at byte %d of %d", e.Offset, e.Len)
}

// ShapeMismatchError reports decoded runs whose total does not cover the grid exactly.
type ShapeMismatchError struct {
	LayerType string
	Want      int // width*height
	Got       int // sum of run counts
}

func (e *ShapeMismatchError) Error() string {
	if e.LayerType != "" {
		return fmt.Sprintf("encoding: layer %q decodes to %d cells, want %d", e.LayerType, e.Got, e.Want)
	}
	return fmt.Sprintf("encoding: runs cover %d cells, want %d", e.Got, e.Want)
}
