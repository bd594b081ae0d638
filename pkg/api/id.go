package api

import (
	"crypto/rand"
	"math/big"
	"regexp"
)

const (
	idLength = 24
	charset  = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

	sandboxIDPrefix = "sbx_"
	messageIDPrefix = "msg_"
	requestIDPrefix = "req_"
)

var (
	sandboxIDPattern = regexp.MustCompile(`^sbx_[a-zA-Z0-9]{24}$`)
	messageIDPattern = regexp.MustCompile(`^msg_[a-zA-Z0-9]{24}$`)
	requestIDPattern = regexp.MustCompile(`^req_[a-zA-Z0-9]{24}$`)
)

// NewSandboxID generates a new sandbox context ID with the "sbx_"
// prefix followed by 24 cryptographically random alphanumeric
// characters. The ID doubles as the context's origin token: replies
// not carrying it are dropped by the message channel.
func NewSandboxID() string {
	return sandboxIDPrefix + randomAlphanumeric(idLength)
}

// NewMessageID generates a new message envelope ID with the "msg_"
// prefix followed by 24 cryptographically random alphanumeric
// characters.
func NewMessageID() string {
	return messageIDPrefix + randomAlphanumeric(idLength)
}

// NewRequestID generates a new HTTP request ID with the "req_" prefix
// followed by 24 cryptographically random alphanumeric characters.
func NewRequestID() string {
	return requestIDPrefix + randomAlphanumeric(idLength)
}

// ValidateSandboxID checks whether the given string is a valid sandbox
// ID (matches "sbx_" + 24 alphanumeric characters).
func ValidateSandboxID(id string) bool {
	return sandboxIDPattern.MatchString(id)
}

// ValidateMessageID checks whether the given string is a valid message
// ID (matches "msg_" + 24 alphanumeric characters).
func ValidateMessageID(id string) bool {
	return messageIDPattern.MatchString(id)
}

// ValidateRequestID checks whether the given string is a valid request
// ID (matches "req_" + 24 alphanumeric characters).
func ValidateRequestID(id string) bool {
	return requestIDPattern.MatchString(id)
}

func randomAlphanumeric(n int) string {
	max := big.NewInt(int64(len(charset)))
	b := make([]byte, n)
	for i := range b {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			panic("crypto/rand failed: " + err.Error())
		}
		b[i] = charset[idx.Int64()]
	}
	return string(b)
}
