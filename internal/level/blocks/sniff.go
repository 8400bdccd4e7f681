package blocks

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Sniff decodes one layer block, picking the shape from which fields are present:
// data_b64 means shape A; color_data holding arrays means B, holding objects means C.
// An empty color_data is B when a palette is present and C otherwise.
func Sniff(raw []byte) (Block, error) {
	var probe struct {
		LayerType string          `json:"layer_type"`
		DataB64   *string         `json:"data_b64"`
		Palette   json.RawMessage `json:"palette"`
		ColorData json.RawMessage `json:"color_data"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, fmt.Errorf("blocks: layer block: %w", err)
	}

	var (
		b   Block
		err error
	)
	switch {
	case probe.DataB64 != nil:
		b, err = decodeAs[Base64Block](raw)
	case present(probe.ColorData):
		var elem byte
		elem, err = firstElement(probe.ColorData)
		if err != nil {
			return nil, fmt.Errorf("blocks: layer %q: color_data: %w", probe.LayerType, err)
		}
		switch elem {
		case '[':
			b, err = decodeAs[IndexedBlock](raw)
		case '{':
			b, err = decodeAs[LiteralBlock](raw)
		case 0:
			if present(probe.Palette) {
				b, err = decodeAs[IndexedBlock](raw)
			} else {
				b, err = decodeAs[LiteralBlock](raw)
			}
		default:
			return nil, fmt.Errorf("blocks: layer %q: color_data elements must be arrays or objects", probe.LayerType)
		}
	default:
		return nil, fmt.Errorf("blocks: layer %q has neither data_b64 nor color_data", probe.LayerType)
	}
	if err != nil {
		return nil, fmt.Errorf("blocks: layer %q: %w", probe.LayerType, err)
	}
	return b, nil
}

type blockPtr[T any] interface {
	*T
	Block
}

func decodeAs[T any, P blockPtr[T]](raw []byte) (Block, error) {
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return P(&v), nil
}

func present(m json.RawMessage) bool {
	m = bytes.TrimSpace(m)
	return len(m) > 0 && !bytes.Equal(m, []byte("null"))
}

// firstElement returns '[' or '{' for the first element of a JSON array,
// 0 for an empty array, and the first byte of anything else.
func firstElement(arr json.RawMessage) (byte, error) {
	arr = bytes.TrimSpace(arr)
	if len(arr) == 0 || arr[0] != '[' {
		return 0, fmt.Errorf("not an array")
	}
	rest := bytes.TrimSpace(arr[1:])
	if len(rest) == 0 {
		return 0, fmt.Errorf("unterminated array")
	}
	if rest[0] == ']' {
		return 0, nil
	}
	return rest[0], nil
}
