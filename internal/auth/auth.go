// Package auth implements the credential store and per-request signer
// described in spec.md §4.2: loading the API key and HMAC secret from a
// per-user directory, and producing the three authentication headers
// (API key, signature, timestamp) plus a nonce for every outbound call.
package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrUnregistered is returned by Load when either credential file is missing
// or empty.
var ErrUnregistered = errors.New("auth: user is not registered")

const (
	apiKeyFile    = "api_key"
	secretKeyFile = "secret_key"

	// HeaderAPIKey, HeaderSignature, HeaderTimestamp and HeaderNonce are the
	// header names emitted by Signer.Sign, per spec.md §6.
	HeaderAPIKey    = "X-Api-Key"
	HeaderSignature = "X-Signature"
	HeaderTimestamp = "X-Timestamp"
	HeaderNonce     = "X-Nonce"
)

// Credentials holds the API key and HMAC secret loaded from disk. It is
// immutable after Load and never logged.
type Credentials struct {
	APIKey    string
	SecretKey string
	LoadedAt  time.Time
}

// Load reads api_key and secret_key from dir. Both files must exist and
// contain a non-empty trimmed string, or ErrUnregistered is returned.
func Load(dir string) (Credentials, error) {
	apiKey, err := readTrimmed(filepath.Join(dir, apiKeyFile))
	if err != nil || apiKey == "" {
		return Credentials{}, ErrUnregistered
	}

	secret, err := readTrimmed(filepath.Join(dir, secretKeyFile))
	if err != nil || secret == "" {
		return Credentials{}, ErrUnregistered
	}

	return Credentials{APIKey: apiKey, SecretKey: secret, LoadedAt: time.Now()}, nil
}

// Save writes the credential pair to dir, creating it if necessary.
func Save(dir string, apiKey, secretKey string) error {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, apiKeyFile), []byte(apiKey), 0o600); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, secretKeyFile), []byte(secretKey), 0o600)
}

func readTrimmed(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(b)), nil
}

// Signer produces per-request authentication headers for a fixed credential
// pair. It never retains the secret beyond this struct and never logs it.
type Signer struct {
	creds Credentials
	now   func() time.Time
	nonce func() string
}

// NewSigner builds a Signer around creds using wall-clock time and random
// nonces.
func NewSigner(creds Credentials) *Signer {
	return &Signer{
		creds: creds,
		now:   time.Now,
		nonce: func() string { return uuid.NewString() },
	}
}

// Headers are the four authentication headers to attach to a request.
type Headers struct {
	APIKey    string
	Signature string
	Timestamp string
	Nonce     string
}

// Sign computes the canonical message for one outbound call and returns the
// headers to attach to it.
//
// The canonical message is the newline-separated concatenation of: the
// uppercased method, the route path, the timestamp, the nonce, any extra
// header values (in order, e.g. a Range value), and the hex-SHA256 digest of
// each to-be-hashed body part (in order — the metadata text and, if present,
// the binary content).
func (s *Signer) Sign(method, route string, extraHeaders []string, bodyParts [][]byte) Headers {
	ts := strconv.FormatInt(s.now().Unix(), 10)
	nonce := s.nonce()

	lines := []string{strings.ToUpper(method), route, ts, nonce}
	lines = append(lines, extraHeaders...)
	for _, part := range bodyParts {
		sum := sha256.Sum256(part)
		lines = append(lines, hex.EncodeToString(sum[:]))
	}

	mac := hmac.New(sha256.New, []byte(s.creds.SecretKey))
	mac.Write([]byte(strings.Join(lines, "\n")))
	sig := hex.EncodeToString(mac.Sum(nil))

	return Headers{
		APIKey:    s.creds.APIKey,
		Signature: sig,
		Timestamp: ts,
		Nonce:     nonce,
	}
}
