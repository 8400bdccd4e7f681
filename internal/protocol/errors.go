package protocol

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"io/fs"

	"biomelevel.ai/internal/level/blocks"
	"biomelevel.ai/internal/level/encoding"
)

const (
	// Protocol/transport validation.
	ErrBadRequest = "E_BAD_REQUEST"
	ErrNotFound   = "E_NOT_FOUND"

	// Layer codec.
	ErrBadEncoding         = "E_BAD_ENCODING"
	ErrTruncated           = "E_TRUNCATED"
	ErrUnsupportedEncoding = "E_UNSUPPORTED_ENCODING"
	ErrShapeMismatch       = "E_SHAPE_MISMATCH"

	ErrInternal = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrBadRequest:          {},
	ErrNotFound:            {},
	ErrBadEncoding:         {},
	ErrTruncated:           {},
	ErrUnsupportedEncoding: {},
	ErrShapeMismatch:       {},
	ErrInternal:            {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}

// CodeFor maps an error from the level pipeline to a wire code. Errors outside
// the codec taxonomy get fallback.
func CodeFor(err error, fallback string) string {
	var (
		rangeErr  *encoding.RangeError
		truncErr  *encoding.TruncatedDataError
		shapeErr  *encoding.ShapeMismatchError
		unsupErr  *blocks.UnsupportedEncodingError
		b64Err    base64.CorruptInputError
		syntaxErr *json.SyntaxError
		typeErr   *json.UnmarshalTypeError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &truncErr):
		return ErrTruncated
	case errors.As(err, &rangeErr), errors.Is(err, encoding.ErrEmptySequence), errors.Is(err, encoding.ErrUnknownIndex), errors.As(err, &b64Err):
		return ErrBadEncoding
	case errors.As(err, &unsupErr):
		return ErrUnsupportedEncoding
	case errors.As(err, &shapeErr):
		return ErrShapeMismatch
	case errors.Is(err, fs.ErrNotExist):
		return ErrNotFound
	case errors.As(err, &syntaxErr), errors.As(err, &typeErr):
		return ErrBadRequest
	}
	return fallback
}
