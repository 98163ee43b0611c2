package watcher

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
)

const aesBlockSize = 16

// Text-config keys, selected by region. 128-bit, base64 in the client binary.
const (
	textKeyDomesticB64 = "Wgxugl5qVirx7r3km6nXtA=="
	textKeyOverseaB64  = "cZm86UfDp/kgJ3agKx+HZA=="
)

// Ancillary u8ExtraConfig.bin key material. Fixed 256-bit key and 128-bit IV,
// not derived from the payload.
const (
	extraBinKeyHex = "C0F30E1CE763BBC21CC355A34303AC50399444BFF68C4A22AF398C0A166EE143"
	extraBinIVHex  = "33467861192750649501937264608400"
)

// pkcs7Unpad strips PKCS7 padding when the trailing bytes form valid padding.
// Invalid padding returns the input unchanged: some upstream payloads are
// plain JSON that merely happens to flow through this path, and the caller
// detects the format afterwards.
func pkcs7Unpad(data []byte) []byte {
	if len(data) == 0 {
		return data
	}
	n := int(data[len(data)-1])
	if n < 1 || n > aesBlockSize || n > len(data) {
		return data
	}
	for _, b := range data[len(data)-n:] {
		if int(b) != n {
			return data
		}
	}
	return data[:len(data)-n]
}

func aesDecryptCBC(ciphertext, key, iv []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	if len(iv) != aes.BlockSize {
		return nil, errors.New("iv must be one AES block")
	}
	if len(ciphertext)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("ciphertext length %d is not a multiple of the block size", len(ciphertext))
	}
	out := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(out, ciphertext)
	return out, nil
}

// DecryptConfigText decrypts a base64 text-config payload: the first 16 bytes
// of the decoded string are the IV, the remainder the ciphertext. The key is
// picked by region. Output is UTF-8 JSON text.
func DecryptConfigText(ciphertextB64 string, oversea bool) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(ciphertextB64)
	if err != nil {
		return nil, fmt.Errorf("config text: base64 decode: %w", err)
	}
	if len(raw) <= aesBlockSize {
		return nil, fmt.Errorf("config text: payload too short (%d bytes)", len(raw))
	}

	keyB64 := textKeyDomesticB64
	if oversea {
		keyB64 = textKeyOverseaB64
	}
	key, err := base64.StdEncoding.DecodeString(keyB64)
	if err != nil {
		return nil, fmt.Errorf("config text: key decode: %w", err)
	}

	plain, err := aesDecryptCBC(raw[aesBlockSize:], key, raw[:aesBlockSize])
	if err != nil {
		return nil, fmt.Errorf("config text: %w", err)
	}
	return pkcs7Unpad(plain), nil
}

// DecryptExtraBin decrypts the raw u8ExtraConfig.bin body (no base64 layer)
// with the fixed key/IV. Output is UTF-8 JSON text.
func DecryptExtraBin(ciphertext []byte) ([]byte, error) {
	key, err := hex.DecodeString(extraBinKeyHex)
	if err != nil {
		return nil, err
	}
	iv, err := hex.DecodeString(extraBinIVHex)
	if err != nil {
		return nil, err
	}
	plain, err := aesDecryptCBC(ciphertext, key, iv)
	if err != nil {
		return nil, fmt.Errorf("extra bin: %w", err)
	}
	return pkcs7Unpad(plain), nil
}
