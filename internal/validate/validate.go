// Package validate holds the input predicates shared by the directory
// operations. Every failure is reported as a *Error so callers can tell
// validation problems apart from storage failures.
package validate

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

const (
	KeyTypeRSA = "ssh-rsa"
	KeyTypeDSS = "ssh-dss"
)

var (
	nameRegex   = regexp.MustCompile(`^[A-Za-z0-9_.\-]+$`)
	domainLabel = regexp.MustCompile(`^[A-Za-z0-9]([A-Za-z0-9\-]{0,61}[A-Za-z0-9])?$`)
)

// Error is returned by every predicate in this package.
type Error struct {
	Field string
	Msg   string
}

func (e *Error) Error() string {
	return e.Msg
}

func errorf(field, format string, args ...interface{}) error {
	return &Error{Field: field, Msg: fmt.Sprintf(format, args...)}
}

// IsError reports whether err is, or wraps, a validation error.
func IsError(err error) bool {
	var vErr *Error
	return errors.As(err, &vErr)
}

// Name checks user, group and host names.
func Name(field, name string) error {
	if name == "" {
		return errorf(field, "%s is empty", field)
	}
	if !nameRegex.MatchString(name) {
		return errorf(field, "%s contains illegal characters! allowed characters are: A-Z a-z 0-9 _ - .", field)
	}
	return nil
}

// Domain checks that domain is a dot separated list of DNS labels.
func Domain(domain string) error {
	if domain == "" {
		return errorf("domain", "domain is empty")
	}
	if len(domain) > 253 {
		return errorf("domain", "domain %q is too long", domain)
	}
	for _, label := range strings.Split(domain, ".") {
		if !domainLabel.MatchString(label) {
			return errorf("domain", "invalid domain: %s", domain)
		}
	}
	return nil
}

// ParseID converts a textual uid or gid into an integer.
func ParseID(field, raw string) (int, error) {
	if strings.TrimSpace(raw) == "" {
		return 0, errorf(field, "%s is empty", strings.ToUpper(field))
	}
	id, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, errorf(field, "%s must be an integer! %s: %s", strings.ToUpper(field), strings.ToUpper(field), raw)
	}
	return id, nil
}

// IDInRange checks that id lies within [start, end].
func IDInRange(field string, id, start, end int) error {
	if id < start || id > end {
		return errorf(field, "%s is outside the allowed range (%d to %d)", strings.ToUpper(field), start, end)
	}
	return nil
}

// IDInUse reports whether id is already present in ids.
func IDInUse(id int, ids []int) bool {
	for _, existing := range ids {
		if existing == id {
			return true
		}
	}
	return false
}

// SSHPublicKey performs a structural check of a single ssh2 public key
// line: the algorithm token, a base64 payload and a length prefixed
// algorithm name inside the payload that matches the token.
func SSHPublicKey(key string) error {
	var keyType string
	switch {
	case strings.HasPrefix(key, KeyTypeRSA):
		keyType = KeyTypeRSA
	case strings.HasPrefix(key, KeyTypeDSS):
		keyType = KeyTypeDSS
	default:
		return errorf("ssh_key", "invalid ssh2 key: %s", key)
	}

	fields := strings.Fields(key)
	if len(fields) < 2 || fields[0] != keyType {
		return errorf("ssh_key", "invalid ssh2 key: %s", key)
	}

	data, err := base64.StdEncoding.DecodeString(fields[1])
	if err != nil {
		return errorf("ssh_key", "invalid ssh2 key: %s", key)
	}

	// The payload starts with a big-endian uint32 length followed by the algorithm name
	const intLen = 4
	if len(data) < intLen {
		return errorf("ssh_key", "invalid ssh2 key: %s", key)
	}
	strLen := int(binary.BigEndian.Uint32(data[:intLen]))
	if strLen != len(keyType) || len(data) < intLen+strLen {
		return errorf("ssh_key", "invalid ssh2 key: %s", key)
	}
	if !bytes.Equal(data[intLen:intLen+strLen], []byte(keyType)) {
		return errorf("ssh_key", "invalid ssh2 key: %s", key)
	}
	return nil
}
