package ncr

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// ErrDecode is returned when text does not belong to an encoding's alphabet.
var ErrDecode = errors.New("ncr: invalid encoded text")

// Encoding is a text representation for ciphertext bytes that survives chat filters.
type Encoding int

const (
	Base64 Encoding = iota
	Base64r
	NewBase64r
	Mc256
	Sus16
)

const (
	base64Alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789+/"

	base64rStart    rune = 0x4E00
	newBase64rStart rune = 0xAC00
	mc256Start      rune = 0x0100
	sus16Start      rune = 0x0D9E
)

var encodingNames = map[Encoding]string{
	Base64:     "base64",
	Base64r:    "base64r",
	NewBase64r: "newbase64r",
	Mc256:      "mc256",
	Sus16:      "sus16",
}

func (e Encoding) String() string {
	if name, ok := encodingNames[e]; ok {
		return name
	}
	return fmt.Sprintf("encoding(%d)", int(e))
}

// ParseEncoding resolves an encoding by its lower-case name.
func ParseEncoding(name string) (Encoding, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for enc, candidate := range encodingNames {
		if candidate == name {
			return enc, nil
		}
	}
	return 0, fmt.Errorf("unknown encoding %q", name)
}

// Encode renders raw bytes in the given encoding.
func Encode(enc Encoding, data []byte) string {
	switch enc {
	case Base64:
		return base64.RawStdEncoding.EncodeToString(data)
	case Base64r:
		return remapBase64(base64.RawStdEncoding.EncodeToString(data), base64rStart)
	case NewBase64r:
		return remapBase64(base64.RawStdEncoding.EncodeToString(data), newBase64rStart)
	case Mc256:
		var b strings.Builder
		b.Grow(len(data) * 2)
		for _, v := range data {
			b.WriteRune(mc256Start + rune(v))
		}
		return b.String()
	case Sus16:
		var b strings.Builder
		b.Grow(len(data) * 6)
		for _, v := range data {
			b.WriteRune(sus16Start + rune(v>>4))
			b.WriteRune(sus16Start + rune(v&0x0f))
		}
		return b.String()
	default:
		return ""
	}
}

// Decode parses text produced by Encode back into bytes.
func Decode(enc Encoding, text string) ([]byte, error) {
	switch enc {
	case Base64:
		return decodeBase64(text)
	case Base64r:
		plain, err := unmapBase64(text, base64rStart)
		if err != nil {
			return nil, err
		}
		return decodeBase64(plain)
	case NewBase64r:
		plain, err := unmapBase64(text, newBase64rStart)
		if err != nil {
			return nil, err
		}
		return decodeBase64(plain)
	case Mc256:
		out := make([]byte, 0, utf8.RuneCountInString(text))
		for _, r := range text {
			if r < mc256Start || r > mc256Start+0xff {
				return nil, ErrDecode
			}
			out = append(out, byte(r-mc256Start))
		}
		return out, nil
	case Sus16:
		runes := []rune(text)
		if len(runes)%2 != 0 {
			return nil, ErrDecode
		}
		out := make([]byte, 0, len(runes)/2)
		for i := 0; i < len(runes); i += 2 {
			hi, lo := runes[i]-sus16Start, runes[i+1]-sus16Start
			if hi < 0 || hi > 0x0f || lo < 0 || lo > 0x0f {
				return nil, ErrDecode
			}
			out = append(out, byte(hi<<4|lo))
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: unsupported encoding %d", ErrDecode, int(enc))
	}
}

func decodeBase64(text string) ([]byte, error) {
	out, err := base64.RawStdEncoding.DecodeString(strings.TrimRight(text, "="))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return out, nil
}

// remapBase64 shifts every base64 symbol onto a contiguous run of code points.
func remapBase64(text string, start rune) string {
	var b strings.Builder
	b.Grow(len(text) * 3)
	for i := 0; i < len(text); i++ {
		b.WriteRune(start + rune(strings.IndexByte(base64Alphabet, text[i])))
	}
	return b.String()
}

func unmapBase64(text string, start rune) (string, error) {
	out := make([]byte, 0, utf8.RuneCountInString(text))
	for _, r := range text {
		idx := r - start
		if idx < 0 || int(idx) >= len(base64Alphabet) {
			return "", ErrDecode
		}
		out = append(out, base64Alphabet[idx])
	}
	return string(out), nil
}
