package channel

import (
	"encoding/hex"
	"fmt"
	"strings"
	"unicode"

	"serialscope/models"
)

// EncodePayload turns caller-supplied data into the bytes written to the
// device. ascii appends an LF; hex parses whitespace-separated byte pairs;
// binary packs a bit string MSB-first, zero-padding a trailing partial byte.
func EncodePayload(data, mode string) ([]byte, error) {
	switch mode {
	case models.ModeASCII:
		return append([]byte(data), '\n'), nil
	case models.ModeHex:
		return decodeHex(data)
	case models.ModeBinary:
		return decodeBinary(data)
	default:
		return nil, fmt.Errorf("%w: unknown mode %q", ErrInvalidEncoding, mode)
	}
}

func stripWhitespace(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}

func decodeHex(data string) ([]byte, error) {
	s := stripWhitespace(data)
	if len(s)%2 != 0 {
		return nil, fmt.Errorf("%w: odd-length hex string", ErrInvalidEncoding)
	}
	out, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidEncoding, err)
	}
	return out, nil
}

func decodeBinary(data string) ([]byte, error) {
	s := stripWhitespace(data)
	if s == "" {
		return []byte{}, nil
	}
	out := make([]byte, (len(s)+7)/8)
	for i, c := range s {
		switch c {
		case '1':
			out[i/8] |= 1 << (7 - i%8)
		case '0':
		default:
			return nil, fmt.Errorf("%w: %q is not a binary digit", ErrInvalidEncoding, c)
		}
	}
	return out, nil
}
