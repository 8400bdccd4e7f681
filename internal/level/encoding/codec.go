package encoding

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
)

// Tag byte layout: bits 7-5 hold the palette index, bits 4-0 the inline run
// length. A length field of LenSentinel means the full count follows as ULEB128.
const (
	lenBits = 5

	LenSentinel  = 1<<lenBits - 1 // 31
	MaxInlineLen = LenSentinel - 1 // 30
	MaxTagIndex  = 0xFF >> lenBits // 7

	// MaxPaletteSize is the largest palette a tag-byte layer can address.
	MaxPaletteSize = MaxTagIndex + 1

	// MaxRunLength caps a single run; no layer holds more cells than this.
	MaxRunLength = MaxCells
)

// EncodeRuns packs indexed runs into tag bytes with ULEB128 continuations.
func EncodeRuns(runs []IndexedRun) ([]byte, error) {
	buf := make([]byte, 0, len(runs)*2)
	for _, r := range runs {
		if r.Index < 0 || r.Index > MaxTagIndex {
			return nil, &RangeError{Index: r.Index, Count: r.Count, Reason: fmt.Sprintf("palette index exceeds tag field maximum %d", MaxTagIndex)}
		}
		if r.Count < 0 || r.Count > MaxRunLength {
			return nil, &RangeError{Index: r.Index, Count: r.Count, Reason: "run count out of range"}
		}
		if r.Count <= MaxInlineLen {
			buf = append(buf, byte(r.Index<<lenBits|r.Count))
			continue
		}
		buf = append(buf, byte(r.Index<<lenBits|LenSentinel))
		buf = AppendUvarint(buf, uint64(r.Count))
	}
	return buf, nil
}

// DecodeRuns is the inverse of EncodeRuns.
func DecodeRuns(data []byte) ([]IndexedRun, error) {
	runs := make([]IndexedRun, 0, len(data))
	for i := 0; i < len(data); {
		tag := data[i]
		i++
		r := IndexedRun{Index: int(tag >> lenBits), Count: int(tag & LenSentinel)}
		if r.Count == LenSentinel {
			v, n, err := ReadUvarint(data, i)
			if err != nil {
				return nil, err
			}
			if v > MaxRunLength {
				return nil, &RangeError{Index: r.Index, Count: -1, Reason: fmt.Sprintf("run length %d at byte %d exceeds %d", v, i, MaxRunLength)}
			}
			r.Count = int(v)
			i += n
		}
		runs = append(runs, r)
	}
	return runs, nil
}

// AppendUvarint appends v as ULEB128: 7 payload bits per byte, low group
// first, 0x80 set on every byte but the last.
func AppendUvarint(buf []byte, v uint64) []byte {
	return binary.AppendUvarint(buf, v)
}

// ReadUvarint decodes a ULEB128 value starting at data[off] and returns it
// with the number of bytes consumed.
func ReadUvarint(data []byte, off int) (uint64, int, error) {
	if off >= len(data) {
		return 0, 0, &TruncatedDataError{Offset: off, Len: len(data)}
	}
	v, n := binary.Uvarint(data[off:])
	switch {
	case n == 0:
		return 0, 0, &TruncatedDataError{Offset: off, Len: len(data)}
	case n < 0:
		return 0, 0, &RangeError{Index: -1, Count: -1, Reason: fmt.Sprintf("varint at byte %d overflows 64 bits", off)}
	}
	return v, n, nil
}

// ToBase64 frames bytes with the standard padded alphabet.
func ToBase64(b []byte) string {
	return base64.StdEncoding.EncodeToString(b)
}

func FromBase64(s string) ([]byte, error) {
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("encoding: base64: %w", err)
	}
	return b, nil
}
