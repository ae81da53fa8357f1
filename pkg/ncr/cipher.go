package ncr

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha1"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

// ErrCipher covers malformed ciphertext, bad key material and failed GCM authentication.
var ErrCipher = errors.New("ncr: cipher failure")

// DefaultKey is the shared key used when none is configured.
const DefaultKey = "blfrngArk3chG6wzncOZ5A=="

const (
	passphraseIterations = 65536
	passphraseKeyLen     = 16
	gcmNonceSize         = 12
)

var passphraseSalt = []byte{0x2b, 0x6f, 0x5a, 0x2c, 0x65, 0x71, 0x1e, 0x90, 0x3d, 0xb8, 0x07, 0x4c, 0xd1, 0x52, 0xa8, 0x13}

// CipherMode is the block-cipher mode applied over AES.
type CipherMode int

const (
	CFB8 CipherMode = iota
	ECB
	GCM
)

func (m CipherMode) String() string {
	switch m {
	case CFB8:
		return "cfb8"
	case ECB:
		return "ecb"
	case GCM:
		return "gcm"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// ParseCipherMode resolves a cipher mode by its lower-case name.
func ParseCipherMode(name string) (CipherMode, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "cfb8":
		return CFB8, nil
	case "ecb":
		return ECB, nil
	case "gcm":
		return GCM, nil
	default:
		return 0, fmt.Errorf("unknown cipher mode %q", name)
	}
}

// Key is raw AES key material.
type Key []byte

// ParseKey decodes a base64 AES-128/192/256 key.
func ParseKey(encoded string) (Key, error) {
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(encoded))
	if err != nil {
		return nil, fmt.Errorf("decode key: %w", err)
	}
	switch len(raw) {
	case 16, 24, 32:
		return Key(raw), nil
	default:
		return nil, fmt.Errorf("key must be 16, 24 or 32 bytes, got %d", len(raw))
	}
}

// KeyFromPassphrase derives an AES-128 key from a shared passphrase.
func KeyFromPassphrase(passphrase string) Key {
	return Key(pbkdf2.Key([]byte(passphrase), passphraseSalt, passphraseIterations, passphraseKeyLen, sha1.New))
}

// Encrypt seals plaintext under the variant and renders it in the variant's encoding.
func Encrypt(v Variant, plaintext string, key Key) (string, error) {
	return encryptWith(rand.Reader, v, plaintext, key)
}

func encryptWith(random io.Reader, v Variant, plaintext string, key Key) (string, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrCipher, err)
	}

	var sealed []byte
	switch v.Mode {
	case CFB8:
		iv := make([]byte, block.BlockSize())
		if _, err := io.ReadFull(random, iv); err != nil {
			return "", fmt.Errorf("%w: read iv: %v", ErrCipher, err)
		}
		sealed = append(iv, cfb8(block, iv, []byte(plaintext), false)...)
	case ECB:
		sealed = ecbEncrypt(block, pkcs7Pad([]byte(plaintext), block.BlockSize()))
	case GCM:
		aead, err := cipher.NewGCM(block)
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrCipher, err)
		}
		nonce := make([]byte, gcmNonceSize)
		if _, err := io.ReadFull(random, nonce); err != nil {
			return "", fmt.Errorf("%w: read nonce: %v", ErrCipher, err)
		}
		sealed = aead.Seal(nonce, nonce, []byte(plaintext), nil)
	default:
		return "", fmt.Errorf("%w: unsupported mode %d", ErrCipher, int(v.Mode))
	}

	return Encode(v.Encoding, sealed), nil
}

// Decrypt reverses Encrypt. A nil error does not imply the key was right for CFB8;
// callers verify the header marker.
func Decrypt(v Variant, text string, key Key) (string, error) {
	data, err := Decode(v.Encoding, text)
	if err != nil {
		return "", err
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrCipher, err)
	}

	switch v.Mode {
	case CFB8:
		bs := block.BlockSize()
		if len(data) <= bs {
			return "", fmt.Errorf("%w: ciphertext too short", ErrCipher)
		}
		return string(cfb8(block, data[:bs], data[bs:], true)), nil
	case ECB:
		bs := block.BlockSize()
		if len(data) == 0 || len(data)%bs != 0 {
			return "", fmt.Errorf("%w: ciphertext is not block aligned", ErrCipher)
		}
		plain, err := pkcs7Unpad(ecbDecrypt(block, data), bs)
		if err != nil {
			return "", err
		}
		return string(plain), nil
	case GCM:
		aead, err := cipher.NewGCM(block)
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrCipher, err)
		}
		if len(data) < gcmNonceSize+aead.Overhead() {
			return "", fmt.Errorf("%w: ciphertext too short", ErrCipher)
		}
		plain, err := aead.Open(nil, data[:gcmNonceSize], data[gcmNonceSize:], nil)
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrCipher, err)
		}
		return string(plain), nil
	default:
		return "", fmt.Errorf("%w: unsupported mode %d", ErrCipher, int(v.Mode))
	}
}

// cfb8 runs AES in 8-bit cipher feedback mode. The shift register is fed with
// ciphertext bytes in both directions.
func cfb8(block cipher.Block, iv, src []byte, decrypt bool) []byte {
	bs := block.BlockSize()
	shift := make([]byte, bs)
	copy(shift, iv)
	stream := make([]byte, bs)
	out := make([]byte, len(src))

	for i, b := range src {
		block.Encrypt(stream, shift)
		out[i] = b ^ stream[0]

		feedback := out[i]
		if decrypt {
			feedback = b
		}
		copy(shift, shift[1:])
		shift[bs-1] = feedback
	}

	return out
}

func ecbEncrypt(block cipher.Block, src []byte) []byte {
	bs := block.BlockSize()
	out := make([]byte, len(src))
	for i := 0; i < len(src); i += bs {
		block.Encrypt(out[i:i+bs], src[i:i+bs])
	}
	return out
}

func ecbDecrypt(block cipher.Block, src []byte) []byte {
	bs := block.BlockSize()
	out := make([]byte, len(src))
	for i := 0; i < len(src); i += bs {
		block.Decrypt(out[i:i+bs], src[i:i+bs])
	}
	return out
}

func pkcs7Pad(src []byte, blockSize int) []byte {
	n := blockSize - len(src)%blockSize
	return append(append([]byte{}, src...), bytes.Repeat([]byte{byte(n)}, n)...)
}

func pkcs7Unpad(src []byte, blockSize int) ([]byte, error) {
	n := int(src[len(src)-1])
	if n == 0 || n > blockSize || n > len(src) {
		return nil, fmt.Errorf("%w: bad padding", ErrCipher)
	}
	for _, b := range src[len(src)-n:] {
		if int(b) != n {
			return nil, fmt.Errorf("%w: bad padding", ErrCipher)
		}
	}
	return src[:len(src)-n], nil
}
