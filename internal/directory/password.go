package directory

import (
	"crypto/rand"
	"crypto/sha1"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"
)

const sshaPrefix = "{SSHA}"

// HashPassword returns an LDAP userPassword value: {SSHA} followed by
// base64(sha1(password + salt) + salt).
func HashPassword(password string, saltSize int) (string, error) {
	if saltSize <= 0 {
		saltSize = 4
	}
	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("error generating salt: %w", err)
	}
	return sshaHash(password, salt), nil
}

// CheckPassword compares password against a value produced by HashPassword.
func CheckPassword(password, hashed string) bool {
	if !strings.HasPrefix(hashed, sshaPrefix) {
		return false
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(hashed, sshaPrefix))
	if err != nil || len(raw) <= sha1.Size {
		return false
	}
	salt := raw[sha1.Size:]
	return subtle.ConstantTimeCompare([]byte(sshaHash(password, salt)), []byte(hashed)) == 1
}

func sshaHash(password string, salt []byte) string {
	h := sha1.New()
	h.Write([]byte(password))
	h.Write(salt)
	digest := h.Sum(nil)
	return sshaPrefix + base64.StdEncoding.EncodeToString(append(digest, salt...))
}
