package cmd

import (
	"errors"
	"fmt"
	"strings"

	"pearlbot/pkg/config"
	"pearlbot/pkg/ncr"

	"github.com/spf13/cobra"
)

var (
	encryptVariant  string
	decryptVariant  string
	cryptKey        string
	cryptPassphrase string
)

// cryptCmd groups the offline chat encryption helpers.
var cryptCmd = &cobra.Command{
	Use:   "crypt",
	Short: "Encrypt or decrypt chat text",
	Long:  "Applies the chat encryption layer offline, for checking keys and variants against a game client.",
}

var encryptCmd = &cobra.Command{
	Use:   "encrypt <text>",
	Short: "Encrypt chat text",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, err := cryptKeyFromFlags()
		if err != nil {
			return err
		}
		sealed, err := encryptText(encryptVariant, strings.Join(args, " "), key)
		if err != nil {
			return err
		}
		cmd.Println(sealed)
		return nil
	},
}

var decryptCmd = &cobra.Command{
	Use:   "decrypt <text>",
	Short: "Decrypt chat text, trying every variant unless one is given",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, err := cryptKeyFromFlags()
		if err != nil {
			return err
		}
		plain, variant, err := decryptText(decryptVariant, args[0], key)
		if err != nil {
			return err
		}
		cmd.Printf("%s\t%s\n", variant, plain)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(cryptCmd)
	cryptCmd.AddCommand(encryptCmd, decryptCmd)

	cryptCmd.PersistentFlags().StringVar(&cryptKey, "key", "", "base64 AES key (default: shared key)")
	cryptCmd.PersistentFlags().StringVar(&cryptPassphrase, "passphrase", "", "derive the key from a passphrase")
	encryptCmd.Flags().StringVar(&encryptVariant, "variant", ncr.DefaultVariant.String(), "encoding/mode to encrypt with")
	decryptCmd.Flags().StringVar(&decryptVariant, "variant", "", "encoding/mode to decrypt with (default: try all)")
}

func cryptKeyFromFlags() (ncr.Key, error) {
	return config.EncryptionConfig{Key: cryptKey, Passphrase: cryptPassphrase}.ResolveKey()
}

func encryptText(variantName, text string, key ncr.Key) (string, error) {
	variant, err := ncr.ParseVariant(variantName)
	if err != nil {
		return "", err
	}
	return ncr.Encrypt(variant, ncr.Header+text, key)
}

// decryptText returns the plaintext and the variant that produced it.
func decryptText(variantName, text string, key ncr.Key) (string, string, error) {
	if variantName == "" {
		variant, plain := ncr.FindDecryption(text, key)
		if variant == nil {
			return "", "", errors.New("no variant decrypts this text with the given key")
		}
		return plain, variant.String(), nil
	}

	variant, err := ncr.ParseVariant(variantName)
	if err != nil {
		return "", "", err
	}
	plain, err := ncr.Decrypt(variant, text, key)
	if err != nil {
		return "", "", fmt.Errorf("decrypt %s: %w", variant, err)
	}
	stripped, ok := ncr.TrimHeader(plain)
	if !ok {
		return "", "", fmt.Errorf("decrypt %s: header missing, wrong key or variant", variant)
	}
	return stripped, variant.String(), nil
}
