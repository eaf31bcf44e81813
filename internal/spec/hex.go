package spec

import (
	"encoding/hex"
	"fmt"
	"strings"
	"unicode"
)

// HexError reports malformed hex text in a fixture field.
type HexError struct {
	Context string // "<source>::<case> <field>", empty outside the loader
	Reason  string
}

func (e *HexError) Error() string {
	if e.Context == "" {
		return "invalid hex: " + e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Context, e.Reason)
}

// DecodeHex decodes fixture hex text.
//
// Whitespace and underscores are ignored anywhere in the input, a single
// leading 0x/0X is dropped, and digits are case-insensitive. The remaining
// digit count must be even. Empty input decodes to an empty (non-nil) slice.
func DecodeHex(s string) ([]byte, error) {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) || r == '_' {
			return -1
		}
		return r
	}, s)

	if strings.HasPrefix(cleaned, "0x") || strings.HasPrefix(cleaned, "0X") {
		cleaned = cleaned[2:]
	}
	if cleaned == "" {
		return []byte{}, nil
	}
	if len(cleaned)%2 != 0 {
		return nil, &HexError{Reason: "hex data has odd length"}
	}

	out, err := hex.DecodeString(cleaned)
	if err != nil {
		return nil, &HexError{Reason: err.Error()}
	}
	return out, nil
}

// EncodeHex renders bytes as lowercase hex with no separators.
func EncodeHex(b []byte) string {
	return hex.EncodeToString(b)
}

// decodeField decodes a case field and attaches load context to failures.
func decodeField(raw, source, caseName, field string) ([]byte, error) {
	b, err := DecodeHex(raw)
	if err != nil {
		if hexErr, ok := err.(*HexError); ok {
			hexErr.Context = fmt.Sprintf("%s::%s %s", source, caseName, field)
			return nil, hexErr
		}
		return nil, err
	}
	return b, nil
}
