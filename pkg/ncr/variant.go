package ncr

import (
	"fmt"
	"strings"
)

// Variant pairs a text encoding with a cipher mode.
type Variant struct {
	Encoding Encoding
	Mode     CipherMode
}

// DefaultVariant is used when encryption is forced without an inbound variant to mirror.
var DefaultVariant = Variant{Encoding: NewBase64r, Mode: CFB8}

var (
	allEncodings = []Encoding{Base64, Base64r, NewBase64r, Mc256, Sus16}
	allModes     = []CipherMode{CFB8, ECB, GCM}

	// trialEncodings is the decrypt-active subset, in priority order. Mc256 and
	// Sus16 stay encode-only.
	trialEncodings = []Encoding{NewBase64r, Base64r, Base64}
)

func (v Variant) String() string {
	return v.Encoding.String() + "/" + v.Mode.String()
}

// ParseVariant reads the "encoding/mode" form produced by String.
func ParseVariant(s string) (Variant, error) {
	encName, modeName, ok := strings.Cut(s, "/")
	if !ok {
		return Variant{}, fmt.Errorf("variant %q must look like encoding/mode", s)
	}
	enc, err := ParseEncoding(encName)
	if err != nil {
		return Variant{}, err
	}
	mode, err := ParseCipherMode(modeName)
	if err != nil {
		return Variant{}, err
	}
	return Variant{Encoding: enc, Mode: mode}, nil
}

// AllVariants lists all 15 encoding/mode combinations.
func AllVariants() []Variant {
	out := make([]Variant, 0, len(allEncodings)*len(allModes))
	for _, enc := range allEncodings {
		for _, mode := range allModes {
			out = append(out, Variant{Encoding: enc, Mode: mode})
		}
	}
	return out
}

// TrialVariants lists the combinations tried by FindDecryption, in trial order.
func TrialVariants() []Variant {
	out := make([]Variant, 0, len(trialEncodings)*len(allModes))
	for _, enc := range trialEncodings {
		for _, mode := range allModes {
			out = append(out, Variant{Encoding: enc, Mode: mode})
		}
	}
	return out
}
