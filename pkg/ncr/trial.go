package ncr

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Header is prepended to plaintext before encryption. Its presence after
// decryption is what separates a real hit from bytes that merely decoded.
const Header = "#%"

// Mode controls when outgoing content is encrypted.
type Mode int

const (
	Never Mode = iota
	OnDemand
	Always
)

func (m Mode) String() string {
	switch m {
	case Never:
		return "never"
	case OnDemand:
		return "on_demand"
	case Always:
		return "always"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// ParseMode accepts never, on_demand (or on-demand, ondemand) and always.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "on_demand", "on-demand", "ondemand":
		return OnDemand, nil
	case "never":
		return Never, nil
	case "always":
		return Always, nil
	default:
		return 0, fmt.Errorf("unknown encryption mode %q", s)
	}
}

// TrimHeader strips the header marker, reporting whether it was present.
func TrimHeader(s string) (string, bool) {
	if !strings.HasPrefix(s, Header) {
		return s, false
	}
	return s[len(Header):], true
}

// FindDecryption tries every active variant in priority order and returns the
// first one whose plaintext carries the header. Content is returned unchanged
// when nothing matches.
func FindDecryption(content string, key Key) (*Variant, string) {
	for _, v := range TrialVariants() {
		plain, err := Decrypt(v, content, key)
		if err != nil || !utf8.ValidString(plain) {
			continue
		}
		stripped, ok := TrimHeader(plain)
		if !ok {
			continue
		}
		found := v
		return &found, stripped
	}
	return nil, content
}

// ApplyEncryption prepares outgoing content. A variant learned from the inbound
// message is always mirrored; otherwise only Always encrypts, with DefaultVariant.
// Encryption failures fall back to the plain content.
func ApplyEncryption(mode Mode, variant *Variant, content string, key Key) string {
	if mode == Never {
		return content
	}

	v := DefaultVariant
	switch {
	case variant != nil:
		v = *variant
	case mode == Always:
	default:
		return content
	}

	sealed, err := Encrypt(v, Header+content, key)
	if err != nil {
		return content
	}
	return sealed
}
