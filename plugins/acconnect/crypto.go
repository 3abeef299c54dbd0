package acconnect

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// sessionUser is the decrypted content of the EncryptedUserInfo field.
type sessionUser struct {
	UserID      string `json:"userID"`
	AccessToken string `json:"accessToken"`
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	pad := blockSize - (len(data) % blockSize)
	padding := bytes.Repeat([]byte{byte(pad)}, pad)
	return append(data, padding...)
}

func pkcs7Unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, errors.New("invalid padding size")
	}
	pad := int(data[len(data)-1])
	if pad == 0 || pad > blockSize || pad > len(data) {
		return nil, errors.New("invalid padding")
	}
	for i := 0; i < pad; i++ {
		if data[len(data)-1-i] != byte(pad) {
			return nil, errors.New("invalid padding")
		}
	}
	return data[:len(data)-pad], nil
}

func aesCbcEncrypt(plaintext, key, iv []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	padded := pkcs7Pad(append([]byte(nil), plaintext...), block.BlockSize())
	out := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out, padded)
	return out, nil
}

func aesCbcDecrypt(ciphertext, key, iv []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	if len(ciphertext) == 0 || len(ciphertext)%block.BlockSize() != 0 {
		return nil, errors.New("invalid cbc ciphertext length")
	}
	out := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(out, ciphertext)
	return pkcs7Unpad(out, block.BlockSize())
}

// encryptSessionBlob produces the base64 form the service embeds in /home/index.
func encryptSessionBlob(plaintext, key, iv []byte) (string, error) {
	raw, err := aesCbcEncrypt(plaintext, key, iv)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

func decryptSessionBlob(encoded string, key, iv []byte) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(encoded))
	if err != nil {
		return nil, fmt.Errorf("%w: decode base64: %v", ErrDecryption, err)
	}
	plain, err := aesCbcDecrypt(raw, key, iv)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryption, err)
	}
	if !utf8.Valid(plain) {
		return nil, fmt.Errorf("%w: plaintext is not utf-8", ErrDecryption)
	}
	return plain, nil
}

func decodeSessionUser(encoded string, key, iv []byte) (sessionUser, error) {
	plain, err := decryptSessionBlob(encoded, key, iv)
	if err != nil {
		return sessionUser{}, err
	}
	var user sessionUser
	if err := json.Unmarshal(plain, &user); err != nil {
		return sessionUser{}, fmt.Errorf("%w: decode user json: %v", ErrDecryption, err)
	}
	if user.UserID == "" {
		return sessionUser{}, fmt.Errorf("%w: user json missing userID", ErrDecryption)
	}
	return user, nil
}
